package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/repository"
	"github.com/iliyamo/parking-reservation/internal/repository/storetest"
)

func TestWithTxRollsBackOnError(t *testing.T) {
	s := New()
	s.AddSpace(1, "A-01")
	s.AddWallet(7, decimal.NewFromInt(100))
	ctx := context.Background()
	now := time.Now().UTC()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx repository.Tx) error {
		r := &model.Reservation{UserID: 7, SpaceID: 1, Status: model.StatusReserved, StartTime: now, EndTime: now.Add(time.Hour)}
		require.NoError(t, tx.InsertReservation(ctx, r))
		require.NoError(t, tx.SetWalletBalance(ctx, 7, decimal.Zero))
		require.NoError(t, tx.SetSpaceState(ctx, 1, model.SpaceReserved))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	assert.Empty(t, s.Reservations())
	w, _ := s.Wallet(7)
	assert.True(t, w.Balance.Equal(decimal.NewFromInt(100)))
	sp, _ := s.Space(1)
	assert.Equal(t, model.SpaceAvailable, sp.CurrentState)
}

func TestWithTxHonoursCancelledContext(t *testing.T) {
	s := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	called := false
	err := s.WithTx(ctx, func(repository.Tx) error { called = true; return nil })
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called)
}

func TestReservationQueries(t *testing.T) {
	s := New()
	s.AddSpace(1, "A-01")
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)

	err := s.WithTx(ctx, func(tx repository.Tx) error {
		for _, r := range []model.Reservation{
			{UserID: 7, SpaceID: 1, Status: model.StatusReserved, StartTime: now.Add(-time.Hour), EndTime: now.Add(time.Hour)},
			{UserID: 7, SpaceID: 1, Status: model.StatusCancelled, StartTime: now.Add(2 * time.Hour), EndTime: now.Add(3 * time.Hour)},
			{UserID: 7, SpaceID: 1, Status: model.StatusReserved, StartTime: now.Add(-3 * time.Hour), EndTime: now.Add(-2 * time.Hour)},
		} {
			r := r
			if err := tx.InsertReservation(ctx, &r); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	_ = s.WithTx(ctx, func(tx repository.Tx) error {
		overlap, err := tx.HasOverlap(ctx, 1, now.Add(time.Hour), now.Add(2*time.Hour))
		require.NoError(t, err)
		assert.False(t, overlap, "touching window")
		overlap, err = tx.HasOverlap(ctx, 1, now.Add(2*time.Hour), now.Add(3*time.Hour))
		require.NoError(t, err)
		assert.False(t, overlap, "cancelled row")
		overlap, err = tx.HasOverlap(ctx, 1, now, now.Add(time.Minute))
		require.NoError(t, err)
		assert.True(t, overlap)

		at, err := tx.ReservedAt(ctx, 1, now)
		require.NoError(t, err)
		require.NotNil(t, at)
		assert.Equal(t, uint64(1), at.ID)

		cur, err := tx.CurrentReservation(ctx, 7, now)
		require.NoError(t, err)
		require.NotNil(t, cur)
		assert.Equal(t, uint64(1), cur.ID)

		hist, err := tx.ReservationHistory(ctx, 7, now, 10, 0)
		require.NoError(t, err)
		require.Len(t, hist, 2)
		assert.Equal(t, uint64(2), hist[0].ID)
		assert.Equal(t, uint64(3), hist[1].ID)

		expired, err := tx.ExpireOverdue(ctx, now)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		assert.Equal(t, model.StatusExpired, expired[0].Status)
		return nil
	})
}

func TestStoreContract(t *testing.T) {
	storetest.Run(t, func(t *testing.T) storetest.Fixture {
		s := New()
		var nextUser uint64
		return storetest.Fixture{
			Store: s,
			NewWallet: func(_ *testing.T, balance decimal.Decimal) uint64 {
				nextUser++
				s.AddWallet(nextUser, balance)
				return nextUser
			},
		}
	})
}
