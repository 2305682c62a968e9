package entity

import "github.com/sevendrop/backend/pkg/enum"

type EntrySource string

var (
	EntryFree         = enum.New(EntrySource("free"))
	EntryPaid         = enum.New(EntrySource("paid"))
	EntryReferralCode = enum.New(EntrySource("referral_code"))
	EntryReferral     = enum.New(EntrySource("referral"))
)

type Entry struct {
	Base

	UserUID   string `gorm:"index"`
	PeriodKey string `gorm:"index"`
	Source    EntrySource

	// Wallet is the wallet of the user when the entry was granted.
	Wallet string

	// Tier is the payment amount that bought this entry, empty for free and
	// bonus entries.
	Tier string
}
