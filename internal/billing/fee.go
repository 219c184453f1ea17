// Package billing computes usage fees for a parking session.
package billing

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/parking-reservation/internal/apperr"
	"github.com/iliyamo/parking-reservation/internal/model"
)

// ComputeFee returns the fee owed for a session occupying [start, end).
//
// Duration is rounded up to whole minutes.  Sessions within the free
// period cost nothing; the remainder is billed in started blocks of
// BillingBlockMinutes at RatePerBlock.  When DailyMax is set the fee is
// capped at DailyMax per started 24h period.  The result is never
// negative.
func ComputeFee(cfg model.BillingConfig, start, end time.Time) (decimal.Decimal, error) {
	if start.IsZero() || end.IsZero() {
		return decimal.Zero, apperr.Validation("start and end are required")
	}
	if end.Before(start) {
		return decimal.Zero, apperr.Validation("end is before start")
	}
	if cfg.BillingBlockMinutes <= 0 {
		return decimal.Zero, apperr.Validation("billing block must be positive")
	}

	d := end.Sub(start)
	minutes := ceilDiv(int64(d), int64(time.Minute))
	free := int64(cfg.FreeMinutes)
	if free < 0 {
		free = 0
	}
	if minutes <= free {
		return decimal.Zero, nil
	}

	blocks := ceilDiv(minutes-free, int64(cfg.BillingBlockMinutes))
	fee := cfg.RatePerBlock.Mul(decimal.NewFromInt(blocks))

	if cfg.DailyMax != nil {
		days := ceilDiv(int64(d), int64(24*time.Hour))
		limit := cfg.DailyMax.Mul(decimal.NewFromInt(days))
		if fee.GreaterThan(limit) {
			fee = limit
		}
	}
	if fee.IsNegative() {
		return decimal.Zero, nil
	}
	return fee, nil
}

// ceilDiv divides two non-negative integers rounding up.
func ceilDiv(a, b int64) int64 {
	if a <= 0 {
		return 0
	}
	return (a + b - 1) / b
}
