package entity

import (
	"database/sql"

	"github.com/sevendrop/backend/pkg/enum"
	"github.com/shopspring/decimal"
)

type PayoutKind string

var (
	PayoutWinner = enum.New(PayoutKind("winner"))
	PayoutFee    = enum.New(PayoutKind("fee"))
)

type PayoutStatus string

var (
	PayoutPending = enum.New(PayoutStatus("pending"))
	PayoutSending = enum.New(PayoutStatus("sending"))

	// PayoutCreated means the provider accepted the payment. Its blockchain
	// transaction is not submitted or not completed yet.
	PayoutCreated    = enum.New(PayoutStatus("created"))
	PayoutCompleting = enum.New(PayoutStatus("completing"))

	// PayoutSent means the payment is completed on chain.
	PayoutSent    = enum.New(PayoutStatus("sent"))
	PayoutFailed  = enum.New(PayoutStatus("failed"))
	PayoutUnknown = enum.New(PayoutStatus("unknown"))
)

type Payout struct {
	Base

	WinnerID       string
	PeriodKey      string     `gorm:"uniqueIndex:idx_payout_period_kind"`
	Kind           PayoutKind `gorm:"uniqueIndex:idx_payout_period_kind"`
	DestinationUID string
	Amount         decimal.Decimal `gorm:"type:decimal(30,7)"`

	Status            PayoutStatus `gorm:"index"`
	ProviderPaymentID string
	// DestinationAddress is the wallet reported by the provider for the
	// payment.
	DestinationAddress string
	TxID               string
	Attempts           int
	LastError          string
	SentAt             sql.NullTime
}
