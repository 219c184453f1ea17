// Package storetest holds behaviour checks that every repository.Store
// implementation must pass.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/repository"
)

// Fixture is an empty store plus the seeding it cannot do through Tx.
type Fixture struct {
	Store repository.Store
	// NewWallet creates an owner with the given balance and returns its ID.
	NewWallet func(t *testing.T, balance decimal.Decimal) uint64
}

// Factory returns a fresh Fixture for each subtest.
type Factory func(t *testing.T) Fixture

var qrSeq atomic.Uint64

// Run executes every check against stores built by newFixture.
func Run(t *testing.T, newFixture Factory) {
	t.Run("OverlapIsHalfOpen", func(t *testing.T) { testOverlap(t, newFixture(t)) })
	t.Run("ExpireOverdueIsConditional", func(t *testing.T) { testExpireOverdue(t, newFixture(t)) })
	t.Run("IdleSpaces", func(t *testing.T) { testIdleSpaces(t, newFixture(t)) })
	t.Run("WalletRows", func(t *testing.T) { testWallet(t, newFixture(t)) })
	t.Run("RollbackOnError", func(t *testing.T) { testRollback(t, newFixture(t)) })
	t.Run("MissingRows", func(t *testing.T) { testMissing(t, newFixture(t)) })
}

// Base returns a whole-second instant an hour from now, so stored times
// compare equal after a round trip.
func Base() time.Time {
	return time.Now().UTC().Truncate(time.Second).Add(time.Hour)
}

// NewSpace inserts an available space.
func NewSpace(t *testing.T, s repository.Store, number string) uint64 {
	t.Helper()
	sp := model.ParkingSpace{SpaceNumber: number}
	require.NoError(t, s.WithTx(context.Background(), func(tx repository.Tx) error {
		return tx.InsertSpace(context.Background(), &sp)
	}))
	return sp.ID
}

// Book inserts a reservation with the given status and window.
func Book(t *testing.T, s repository.Store, userID, spaceID uint64, status model.ReservationStatus, start, end time.Time) uint64 {
	t.Helper()
	r := model.Reservation{
		UserID:        userID,
		SpaceID:       spaceID,
		QRCode:        fmt.Sprintf("%016x", qrSeq.Add(1)+uint64(time.Now().UnixNano())),
		DepositAmount: decimal.NewFromInt(10),
		DepositStatus: model.DepositHeld,
		Status:        status,
		StartTime:     start,
		EndTime:       end,
	}
	require.NoError(t, s.WithTx(context.Background(), func(tx repository.Tx) error {
		return tx.InsertReservation(context.Background(), &r)
	}))
	return r.ID
}

func find(t *testing.T, s repository.Store, id uint64) model.Reservation {
	t.Helper()
	var r model.Reservation
	require.NoError(t, s.WithTx(context.Background(), func(tx repository.Tx) (err error) {
		r, err = tx.FindReservation(context.Background(), id)
		return err
	}))
	return r
}

func testOverlap(t *testing.T, f Fixture) {
	ctx := context.Background()
	user := f.NewWallet(t, decimal.NewFromInt(100))
	space := NewSpace(t, f.Store, "OV-1")
	other := NewSpace(t, f.Store, "OV-2")
	base := Base()

	Book(t, f.Store, user, space, model.StatusReserved, base, base.Add(2*time.Hour))
	Book(t, f.Store, user, space, model.StatusCancelled, base.Add(5*time.Hour), base.Add(6*time.Hour))

	tests := []struct {
		name       string
		space      uint64
		start, end time.Time
		want       bool
	}{
		{"touches start", space, base.Add(-time.Hour), base, false},
		{"touches end", space, base.Add(2 * time.Hour), base.Add(3 * time.Hour), false},
		{"straddles start", space, base.Add(-time.Hour), base.Add(time.Second), true},
		{"straddles end", space, base.Add(time.Hour), base.Add(3 * time.Hour), true},
		{"inside", space, base.Add(30 * time.Minute), base.Add(time.Hour), true},
		{"covers", space, base.Add(-time.Hour), base.Add(3 * time.Hour), true},
		{"cancelled window", space, base.Add(5 * time.Hour), base.Add(6 * time.Hour), false},
		{"other space", other, base, base.Add(2 * time.Hour), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got bool
			require.NoError(t, f.Store.WithTx(ctx, func(tx repository.Tx) (err error) {
				got, err = tx.HasOverlap(ctx, tt.space, tt.start, tt.end)
				return err
			}))
			assert.Equal(t, tt.want, got)
		})
	}
}

func testExpireOverdue(t *testing.T, f Fixture) {
	ctx := context.Background()
	user := f.NewWallet(t, decimal.NewFromInt(100))
	space := NewSpace(t, f.Store, "EX-1")
	now := Base().Add(24 * time.Hour)

	overdue := Book(t, f.Store, user, space, model.StatusReserved, now.Add(-2*time.Hour), now.Add(-time.Minute))
	overdueIn := Book(t, f.Store, user, space, model.StatusCheckedIn, now.Add(-time.Minute), now.Add(-time.Second))
	endsNow := Book(t, f.Store, user, space, model.StatusReserved, now.Add(-time.Second), now)
	future := Book(t, f.Store, user, space, model.StatusReserved, now, now.Add(time.Hour))
	done := Book(t, f.Store, user, space, model.StatusCompleted, now.Add(-3*time.Hour), now.Add(-2*time.Hour))

	sweep := func() []uint64 {
		var ids []uint64
		require.NoError(t, f.Store.WithTx(ctx, func(tx repository.Tx) error {
			rows, err := tx.ExpireOverdue(ctx, now)
			for _, r := range rows {
				assert.Equal(t, model.StatusExpired, r.Status)
				ids = append(ids, r.ID)
			}
			return err
		}))
		return ids
	}

	assert.ElementsMatch(t, []uint64{overdue, overdueIn}, sweep())
	assert.Empty(t, sweep())

	assert.Equal(t, model.StatusExpired, find(t, f.Store, overdue).Status)
	assert.Equal(t, model.StatusExpired, find(t, f.Store, overdueIn).Status)
	assert.Equal(t, model.StatusReserved, find(t, f.Store, endsNow).Status)
	assert.Equal(t, model.StatusReserved, find(t, f.Store, future).Status)
	assert.Equal(t, model.StatusCompleted, find(t, f.Store, done).Status)
}

func testIdleSpaces(t *testing.T, f Fixture) {
	ctx := context.Background()
	user := f.NewWallet(t, decimal.NewFromInt(100))
	base := Base()

	stale := NewSpace(t, f.Store, "ID-1")
	covered := NewSpace(t, f.Store, "ID-2")
	free := NewSpace(t, f.Store, "ID-3")
	ended := NewSpace(t, f.Store, "ID-4")
	require.NoError(t, f.Store.WithTx(ctx, func(tx repository.Tx) error {
		for id, st := range map[uint64]model.SpaceState{stale: model.SpaceReserved, covered: model.SpaceOccupied, ended: model.SpaceReserved} {
			if err := tx.SetSpaceState(ctx, id, st); err != nil {
				return err
			}
		}
		return nil
	}))
	Book(t, f.Store, user, covered, model.StatusCheckedIn, base.Add(-time.Hour), base.Add(time.Hour))
	Book(t, f.Store, user, ended, model.StatusReserved, base.Add(-time.Hour), base)

	var idle []uint64
	require.NoError(t, f.Store.WithTx(ctx, func(tx repository.Tx) error {
		spaces, err := tx.IdleSpaces(ctx, base)
		for _, sp := range spaces {
			idle = append(idle, sp.ID)
		}
		return err
	}))
	assert.Equal(t, []uint64{stale, ended}, idle)
	assert.NotContains(t, idle, free)
}

func testWallet(t *testing.T, f Fixture) {
	ctx := context.Background()
	user := f.NewWallet(t, decimal.NewFromInt(40))

	require.NoError(t, f.Store.WithTx(ctx, func(tx repository.Tx) error {
		acct, err := tx.LockWallet(ctx, user)
		if err != nil {
			return err
		}
		assert.True(t, decimal.NewFromInt(40).Equal(acct.Balance), acct.Balance.String())
		if err := tx.SetWalletBalance(ctx, user, acct.Balance.Sub(decimal.RequireFromString("12.50"))); err != nil {
			return err
		}
		return tx.InsertWalletTx(ctx, &model.WalletTransaction{UserID: user, Type: model.TxHold, Amount: decimal.RequireFromString("12.50"), Note: "hold"})
	}))

	require.NoError(t, f.Store.WithTx(ctx, func(tx repository.Tx) error {
		acct, err := tx.LockWallet(ctx, user)
		if err != nil {
			return err
		}
		assert.True(t, decimal.RequireFromString("27.50").Equal(acct.Balance), acct.Balance.String())
		rows, err := tx.WalletHistory(ctx, user, 10)
		if err != nil {
			return err
		}
		require.Len(t, rows, 1)
		assert.Equal(t, model.TxHold, rows[0].Type)
		assert.True(t, decimal.RequireFromString("12.5").Equal(rows[0].Amount))
		assert.Nil(t, rows[0].ReservationID)
		return nil
	}))
}

func testRollback(t *testing.T, f Fixture) {
	ctx := context.Background()
	user := f.NewWallet(t, decimal.NewFromInt(100))
	space := NewSpace(t, f.Store, "RB-1")
	boom := errors.New("boom")

	err := f.Store.WithTx(ctx, func(tx repository.Tx) error {
		if err := tx.SetSpaceState(ctx, space, model.SpaceOccupied); err != nil {
			return err
		}
		if err := tx.SetWalletBalance(ctx, user, decimal.Zero); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	require.NoError(t, f.Store.WithTx(ctx, func(tx repository.Tx) error {
		sp, err := tx.LockSpace(ctx, space)
		if err != nil {
			return err
		}
		assert.Equal(t, model.SpaceAvailable, sp.CurrentState)
		acct, err := tx.LockWallet(ctx, user)
		if err != nil {
			return err
		}
		assert.True(t, decimal.NewFromInt(100).Equal(acct.Balance))
		return nil
	}))
}

func testMissing(t *testing.T, f Fixture) {
	ctx := context.Background()
	NewSpace(t, f.Store, "MS-1")

	err := f.Store.WithTx(ctx, func(tx repository.Tx) error {
		_, err := tx.LockSpace(ctx, 1<<40)
		assert.ErrorIs(t, err, repository.ErrNotFound)
		_, err = tx.GetReservation(ctx, 1<<40)
		assert.ErrorIs(t, err, repository.ErrNotFound)
		_, err = tx.LockWallet(ctx, 1<<40)
		assert.ErrorIs(t, err, repository.ErrNotFound)
		return tx.InsertSpace(ctx, &model.ParkingSpace{SpaceNumber: "MS-1"})
	})
	assert.ErrorIs(t, err, repository.ErrDuplicate)
}
