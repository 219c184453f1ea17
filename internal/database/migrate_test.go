package database

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSchemaCreatesEveryTable(t *testing.T) {
	all := strings.Join(schema, "\n")
	for _, table := range []string{
		"users", "refresh_tokens", "wallet_accounts", "wallet_transactions",
		"parking_spaces", "space_state_history", "reservations", "settings",
	} {
		assert.Contains(t, all, "CREATE TABLE IF NOT EXISTS "+table+" (", table)
	}
}

func TestSchemaIsRerunnable(t *testing.T) {
	for i, stmt := range schema {
		s := strings.TrimSpace(stmt)
		ok := strings.HasPrefix(s, "CREATE TABLE IF NOT EXISTS") || strings.HasPrefix(s, "INSERT IGNORE")
		assert.True(t, ok, "statement %d is not idempotent", i+1)
	}
}
