package model

import "github.com/shopspring/decimal"

// BillingConfig is the active pricing configuration, stored as rows of
// the settings table.
//
// Fields:
//  FreeMinutes         – grace period charged at zero.
//  BillingBlockMinutes – size of one billable block.
//  RatePerBlock        – price of one block.
//  DailyMax            – optional cap per started 24h period.
type BillingConfig struct {
	FreeMinutes         int
	BillingBlockMinutes int
	RatePerBlock        decimal.Decimal
	DailyMax            *decimal.Decimal
}

// DefaultBillingConfig is used when the settings table has no rows.
func DefaultBillingConfig() BillingConfig {
	return BillingConfig{
		FreeMinutes:         0,
		BillingBlockMinutes: 30,
		RatePerBlock:        decimal.NewFromInt(20),
	}
}
