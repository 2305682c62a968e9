package entity

type FreeEntryLog struct {
	Base

	UserUID   string `gorm:"uniqueIndex:idx_free_entry_user_period"`
	DeviceFP  string `gorm:"uniqueIndex:idx_free_entry_device_period"`
	PeriodKey string `gorm:"uniqueIndex:idx_free_entry_user_period;uniqueIndex:idx_free_entry_device_period"`
}
