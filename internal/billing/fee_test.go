package billing

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-reservation/internal/apperr"
	"github.com/iliyamo/parking-reservation/internal/model"
)

func cfg(free, block int, rate int64, dailyMax *int64) model.BillingConfig {
	c := model.BillingConfig{
		FreeMinutes:         free,
		BillingBlockMinutes: block,
		RatePerBlock:        decimal.NewFromInt(rate),
	}
	if dailyMax != nil {
		d := decimal.NewFromInt(*dailyMax)
		c.DailyMax = &d
	}
	return c
}

func ptr(v int64) *int64 { return &v }

func TestComputeFee(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name string
		cfg  model.BillingConfig
		dur  time.Duration
		want int64
	}{
		{"zero duration", cfg(0, 30, 20, nil), 0, 0},
		{"one second rounds to a minute", cfg(0, 30, 20, nil), time.Second, 20},
		{"61 minutes is three blocks", cfg(0, 30, 20, nil), 61 * time.Minute, 60},
		{"exactly one block", cfg(0, 30, 20, nil), 30 * time.Minute, 20},
		{"45 minutes without grace", cfg(0, 30, 20, nil), 45 * time.Minute, 40},
		{"inside free period", cfg(15, 30, 20, nil), 15 * time.Minute, 0},
		{"one minute past free period", cfg(15, 30, 20, nil), 16 * time.Minute, 20},
		{"partial minute past free period", cfg(15, 30, 20, nil), 15*time.Minute + time.Second, 20},
		{"grace subtracted before blocking", cfg(15, 30, 20, nil), 45 * time.Minute, 20},
		{"daily max caps one day", cfg(0, 30, 20, ptr(100)), 24 * time.Hour, 100},
		{"daily max per started day", cfg(0, 30, 20, ptr(100)), 30 * time.Hour, 200},
		{"below daily max", cfg(0, 30, 20, ptr(100)), 2 * time.Hour, 80},
		{"negative rate clamps to zero", cfg(0, 30, -5, nil), time.Hour, 0},
		{"negative free treated as zero", cfg(-10, 30, 20, nil), 10 * time.Minute, 20},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ComputeFee(tt.cfg, start, start.Add(tt.dur))
			require.NoError(t, err)
			assert.True(t, decimal.NewFromInt(tt.want).Equal(got), "want %d got %s", tt.want, got)
		})
	}
}

func TestComputeFeeValidation(t *testing.T) {
	start := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		cfg        model.BillingConfig
		start, end time.Time
	}{
		{"end before start", cfg(0, 30, 20, nil), start, start.Add(-time.Minute)},
		{"zero start", cfg(0, 30, 20, nil), time.Time{}, start},
		{"zero end", cfg(0, 30, 20, nil), start, time.Time{}},
		{"zero block", cfg(0, 0, 20, nil), start, start.Add(time.Hour)},
		{"negative block", cfg(0, -30, 20, nil), start, start.Add(time.Hour)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ComputeFee(tt.cfg, tt.start, tt.end)
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperr.ErrValidation))
		})
	}
}

func TestComputeFeeMonotonic(t *testing.T) {
	c := cfg(10, 15, 7, ptr(90))
	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	prev := decimal.Zero
	for m := 0; m <= 3*24*60; m += 7 {
		fee, err := ComputeFee(c, start, start.Add(time.Duration(m)*time.Minute))
		require.NoError(t, err)
		assert.False(t, fee.IsNegative())
		assert.False(t, fee.LessThan(prev), "fee dropped at %d minutes", m)
		prev = fee
	}
}
