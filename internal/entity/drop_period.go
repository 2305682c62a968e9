package entity

import (
	"database/sql"
	"time"

	"github.com/sevendrop/backend/pkg/enum"
)

type PeriodStatus string

var (
	PeriodOpen     = enum.New(PeriodStatus("open"))
	PeriodClosed   = enum.New(PeriodStatus("closed"))
	PeriodSettled  = enum.New(PeriodStatus("settled"))
	PeriodHalted   = enum.New(PeriodStatus("halted"))
	PeriodArchived = enum.New(PeriodStatus("archived"))
)

type DropPeriod struct {
	PeriodKey string `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Status     PeriodStatus `gorm:"index"`
	EntryCount int64
	ClosedAt   sql.NullTime
}
