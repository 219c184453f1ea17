package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequired(t *testing.T) {
	t.Helper()
	for k, v := range map[string]string{
		"APP_ENV":                "test",
		"APP_PORT":               "8080",
		"DB_USER":                "parking",
		"DB_HOST":                "localhost",
		"DB_PORT":                "3306",
		"DB_NAME":                "parking",
		"JWT_SECRET":             "secret",
		"ACCESS_TOKEN_TTL_MIN":   "15",
		"REFRESH_TOKEN_TTL_DAYS": "7",
		"BCRYPT_COST":            "4",
	} {
		t.Setenv(k, v)
	}
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("RABBITMQ_URL", "")
	t.Setenv("AMQP_URL", "amqp://broker:5672/")
	t.Setenv("DEFAULT_DEPOSIT", "")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 15, cfg.AccessTTLMin)
	assert.Equal(t, "amqp://broker:5672/", cfg.AMQPURL)
	assert.Equal(t, "smartparking", cfg.BusExchange)
	assert.Equal(t, "space.reports", cfg.ReportQueue)
	assert.Equal(t, time.Minute, cfg.SweepInterval)
	assert.Equal(t, "50", cfg.DefaultDeposit.String())
	assert.False(t, cfg.RefundOnCancel)
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("DEFAULT_DEPOSIT", "75.50")
	t.Setenv("REFUND_ON_CANCEL", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 30*time.Second, cfg.SweepInterval)
	assert.Equal(t, "75.5", cfg.DefaultDeposit.String())
	assert.True(t, cfg.RefundOnCancel)
}

func TestLoadReportsMissing(t *testing.T) {
	setRequired(t)
	t.Setenv("JWT_SECRET", "")
	t.Setenv("BCRYPT_COST", "many")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "JWT_SECRET")
	assert.Contains(t, err.Error(), "BCRYPT_COST")
}

func TestRateLimitConfig(t *testing.T) {
	t.Setenv("RATE_LIMIT_BURST", "5")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 5, cfg.Capacity)
	assert.Equal(t, 1, cfg.RefillTokens)
	assert.Equal(t, 2*time.Second, cfg.RefillInterval)
	assert.Equal(t, 10*time.Second, cfg.TTL)
}
