package entity

import (
	"database/sql"

	"github.com/sevendrop/backend/pkg/enum"
	"github.com/shopspring/decimal"
)

type TransactionType string

var (
	TransactionEntry  = enum.New(TransactionType("entry"))
	TransactionPayout = enum.New(TransactionType("payout"))
)

type Transaction struct {
	Base

	UserUID   string          `gorm:"index"`
	PeriodKey string          `gorm:"index"`
	Type      TransactionType `gorm:"index"`
	Amount    decimal.Decimal `gorm:"type:decimal(30,7)"`

	// PaymentID is the provider payment identifier. It is unique so a
	// payment is never recorded twice.
	PaymentID sql.NullString `gorm:"uniqueIndex"`
	TxID      string
}
