package repository_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-reservation/internal/apperr"
	"github.com/iliyamo/parking-reservation/internal/database/dbtest"
	"github.com/iliyamo/parking-reservation/internal/logger"
	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/repository"
	"github.com/iliyamo/parking-reservation/internal/repository/storetest"
	"github.com/iliyamo/parking-reservation/internal/service"
)

var userSeq atomic.Uint64

// newWallet registers a driver, whose wallet the user repository opens,
// and sets its balance.
func newWallet(t *testing.T, db *sql.DB, s *repository.MySQLStore, balance decimal.Decimal) uint64 {
	t.Helper()
	ctx := context.Background()
	users := repository.NewUserRepo(db, repository.NewWalletRepo(db))
	id, err := users.Create(ctx, fmt.Sprintf("driver%d@test.local", userSeq.Add(1)), "password-1", model.RoleDriver, 4)
	require.NoError(t, err)
	require.NoError(t, s.WithTx(ctx, func(tx repository.Tx) error {
		return tx.SetWalletBalance(ctx, id, balance)
	}))
	return id
}

func TestMySQLStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Fixture {
		db := dbtest.Open(t)
		s := repository.NewMySQLStore(db)
		return storetest.Fixture{
			Store: s,
			NewWallet: func(t *testing.T, balance decimal.Decimal) uint64 {
				return newWallet(t, db, s, balance)
			},
		}
	})
}

func TestMySQLWithTxRetriesLockErrors(t *testing.T) {
	s := repository.NewMySQLStore(dbtest.Open(t))
	ctx := context.Background()

	tests := []struct {
		name     string
		failures int
		err      *mysql.MySQLError
		attempts int
		wantErr  bool
	}{
		{"deadlock then success", 2, &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}, 3, false},
		{"lock wait then success", 1, &mysql.MySQLError{Number: 1205, Message: "Lock wait timeout exceeded"}, 2, false},
		{"deadlock every time", 10, &mysql.MySQLError{Number: 1213, Message: "Deadlock found"}, 3, true},
		{"duplicate is final", 10, &mysql.MySQLError{Number: 1062, Message: "Duplicate entry"}, 1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			calls := 0
			err := s.WithTx(ctx, func(repository.Tx) error {
				calls++
				if calls <= tt.failures {
					return tt.err
				}
				return nil
			})
			assert.Equal(t, tt.attempts, calls)
			if tt.wantErr {
				var me *mysql.MySQLError
				require.True(t, errors.As(err, &me))
				assert.Equal(t, tt.err.Number, me.Number)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestMySQLConcurrentCreatesOnOneSpace(t *testing.T) {
	db := dbtest.Open(t)
	s := repository.NewMySQLStore(db)
	log := logger.Discard()
	spaces := service.NewSpaceStateSynchronizer(nil, log)
	ledger := service.NewWalletLedger(s, log)
	mgr := service.NewReservationManager(s, ledger, service.NewConflictDetector(s, spaces, nil, log), spaces, service.Options{}, log)

	space := storetest.NewSpace(t, s, "CC-1")
	const drivers = 6
	users := make([]uint64, drivers)
	for i := range users {
		users[i] = newWallet(t, db, s, decimal.NewFromInt(100))
	}
	start := storetest.Base()

	var (
		wg      sync.WaitGroup
		ready   = make(chan struct{})
		mu      sync.Mutex
		winners []uint64
	)
	for _, uid := range users {
		wg.Add(1)
		go func(uid uint64) {
			defer wg.Done()
			<-ready
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_, err := mgr.Create(ctx, service.CreateRequest{
				UserID: uid, SpaceID: space, Start: start, End: start.Add(time.Hour), Deposit: decimal.NewFromInt(10),
			})
			if err == nil {
				mu.Lock()
				winners = append(winners, uid)
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, apperr.ErrConflict)
		}(uid)
	}
	close(ready)
	wg.Wait()

	require.Len(t, winners, 1)
	ctx := context.Background()
	for _, uid := range users {
		acct, err := ledger.Balance(ctx, uid)
		require.NoError(t, err)
		want := decimal.NewFromInt(100)
		if uid == winners[0] {
			want = decimal.NewFromInt(90)
		}
		assert.True(t, want.Equal(acct.Balance), "user %d balance %s", uid, acct.Balance)
	}

	var active int
	require.NoError(t, db.QueryRow(
		"SELECT COUNT(*) FROM reservations WHERE space_id = ? AND status IN ('reserved','checked-in')", space).Scan(&active))
	assert.Equal(t, 1, active)
}
