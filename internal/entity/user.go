package entity

import "time"

type User struct {
	UID       string `gorm:"primaryKey"`
	CreatedAt time.Time
	UpdatedAt time.Time

	// Wallet is the Pi wallet address the user registered.
	Wallet string

	// Entries counts every entry the user was ever granted.
	Entries      int64
	ClaimedToday bool
}
