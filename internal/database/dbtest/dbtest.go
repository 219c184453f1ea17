// Package dbtest opens the MySQL database named by MYSQL_TEST_DSN for
// integration tests and skips them when it is unset.
package dbtest

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-reservation/internal/database"
)

// EnvDSN names the variable holding a go-sql-driver DSN of a scratch
// database.  Every table in it is emptied.
const EnvDSN = "MYSQL_TEST_DSN"

// Tables in an order that satisfies the foreign keys when deleting.
var tables = []string{
	"wallet_transactions",
	"reservations",
	"space_state_history",
	"parking_spaces",
	"refresh_tokens",
	"wallet_accounts",
	"users",
}

// Open connects, migrates and empties the test database.
func Open(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv(EnvDSN)
	if dsn == "" {
		t.Skip(EnvDSN + " not set")
	}
	cfg, err := mysql.ParseDSN(dsn)
	require.NoError(t, err)
	cfg.ParseTime = true
	cfg.Loc = time.UTC

	connector, err := mysql.NewConnector(cfg)
	require.NoError(t, err)
	db := sql.OpenDB(connector)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		t.Skipf("mysql not reachable: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, database.Migrate(context.Background(), db))
	Reset(t, db)
	return db
}

// Reset deletes every row except the pricing settings.
func Reset(t *testing.T, db *sql.DB) {
	t.Helper()
	for _, table := range tables {
		_, err := db.Exec("DELETE FROM " + table)
		require.NoError(t, err, table)
	}
}
