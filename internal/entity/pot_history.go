package entity

import "github.com/shopspring/decimal"

type PotHistory struct {
	Base

	PeriodKey string          `gorm:"uniqueIndex"`
	Total     decimal.Decimal `gorm:"type:decimal(30,7)"`
}
