package repository

import (
	"context"
	"database/sql"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/parking-reservation/internal/model"
)

// Keys of the pricing rows in the settings table.
const (
	settingFreeMinutes  = "free_minutes"
	settingRatePerBlock = "rate_per_30min"
	settingBlockMinutes = "billing_block_min"
	settingDailyMax     = "daily_max"
)

// SettingsRepo reads the key/value settings table.
type SettingsRepo struct {
	db *sql.DB
}

func NewSettingsRepo(db *sql.DB) *SettingsRepo { return &SettingsRepo{db: db} }

// BillingConfigTx assembles the active pricing.  Missing keys fall back to
// model.DefaultBillingConfig; a missing daily_max means no cap.
func (r *SettingsRepo) BillingConfigTx(ctx context.Context, tx *sql.Tx) (model.BillingConfig, error) {
	cfg := model.DefaultBillingConfig()
	rows, err := tx.QueryContext(ctx,
		`SELECT key_name, value_int, value_decimal FROM settings
		  WHERE key_name IN (?,?,?,?)`,
		settingFreeMinutes, settingRatePerBlock, settingBlockMinutes, settingDailyMax)
	if err != nil {
		return cfg, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			key    string
			intVal sql.NullInt64
			decVal decimal.NullDecimal
		)
		if err := rows.Scan(&key, &intVal, &decVal); err != nil {
			return cfg, err
		}
		switch key {
		case settingFreeMinutes:
			if intVal.Valid {
				cfg.FreeMinutes = int(intVal.Int64)
			}
		case settingBlockMinutes:
			if intVal.Valid {
				cfg.BillingBlockMinutes = int(intVal.Int64)
			}
		case settingRatePerBlock:
			if decVal.Valid {
				cfg.RatePerBlock = decVal.Decimal
			}
		case settingDailyMax:
			if decVal.Valid {
				d := decVal.Decimal
				cfg.DailyMax = &d
			}
		}
	}
	return cfg, rows.Err()
}
