package entity

import "github.com/shopspring/decimal"

// Winner is the settlement of a period. At most one exists per period.
type Winner struct {
	Base

	PeriodKey string `gorm:"uniqueIndex"`
	UserUID   string
	EntryID   string

	// WinnerWallet is the wallet of the winner at draw time.
	WinnerWallet string

	// EntryCount, SnapshotDigest and Seed allow the draw to be reproduced.
	EntryCount     int
	SnapshotDigest string
	Seed           string

	PotTotal     decimal.Decimal `gorm:"type:decimal(30,7)"`
	WinnerAmount decimal.Decimal `gorm:"type:decimal(30,7)"`
	FeeAmount    decimal.Decimal `gorm:"type:decimal(30,7)"`
}
