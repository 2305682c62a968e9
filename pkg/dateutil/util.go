package dateutil

import (
	"fmt"
	"time"
)

const PeriodKeyLayout = "2006-01-02"

func BeginningOfDay(t time.Time) time.Time {
	year, month, day := t.Date()
	return time.Date(year, month, day, 0, 0, 0, 0, t.Location())
}

func NextDay(t time.Time) time.Time {
	return BeginningOfDay(t).AddDate(0, 0, 1)
}

func zone(offset time.Duration) *time.Location {
	return time.FixedZone(fmt.Sprintf("UTC%+d", int(offset.Hours())), int(offset.Seconds()))
}

// PeriodKey returns the key of the drop period that t belongs to. A period is
// keyed by the local calendar day (at the given fixed UTC offset) on which its
// drop happens, so from the drop hour on, t belongs to the next day's period.
func PeriodKey(t time.Time, offset time.Duration, dropHour int) string {
	local := t.In(zone(offset))
	if local.Hour() >= dropHour {
		local = local.AddDate(0, 0, 1)
	}

	return local.Format(PeriodKeyLayout)
}

// NextDrop returns the first drop instant strictly after t.
func NextDrop(t time.Time, offset time.Duration, dropHour int) time.Time {
	local := t.In(zone(offset))
	drop := BeginningOfDay(local).Add(time.Duration(dropHour) * time.Hour)
	if !drop.After(local) {
		drop = drop.AddDate(0, 0, 1)
	}

	return drop.UTC()
}

// ShiftPeriodKey moves key by days. It returns an error for a malformed key.
func ShiftPeriodKey(key string, days int) (string, error) {
	t, err := time.Parse(PeriodKeyLayout, key)
	if err != nil {
		return "", err
	}

	return t.AddDate(0, 0, days).Format(PeriodKeyLayout), nil
}

func ValidPeriodKey(key string) bool {
	_, err := time.Parse(PeriodKeyLayout, key)
	return err == nil
}
