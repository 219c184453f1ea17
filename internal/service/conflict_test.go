package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-reservation/internal/model"
)

func TestExpirySweepConverges(t *testing.T) {
	f := newFixture(t, Options{})
	f.store.AddSpace(1, "A-01")
	f.store.AddWallet(7, dec(100))
	ctx := context.Background()
	now := f.clock.Now()

	r := f.create(t, 7, 1, now, now.Add(time.Hour), 50)
	f.clock.Advance(2 * time.Hour)
	f.bus.reset()

	res, err := f.conflicts.ExpirySweep(ctx)
	require.NoError(t, err)
	require.Len(t, res.Expired, 1)
	assert.Equal(t, r.ID, res.Expired[0].ID)
	assert.Equal(t, []SpaceChange{{SpaceID: 1, State: model.SpaceAvailable}}, res.Spaces)
	assert.Equal(t, []Message{{"smartparking/slot1/status", "available"}}, f.bus.messages())

	stored, _ := f.store.Reservation(r.ID)
	assert.Equal(t, model.StatusExpired, stored.Status)
	assert.Equal(t, model.DepositHeld, stored.DepositStatus)
	decEq(t, 50, f.balance(t, 7))
	assert.Equal(t, model.SpaceAvailable, f.spaceState(t, 1))

	reservations := f.store.Reservations()
	history := f.store.SpaceHistory(1)
	assert.Equal(t, model.SourceSweep, history[len(history)-1].Source)

	again, err := f.conflicts.ExpirySweep(ctx)
	require.NoError(t, err)
	assert.Empty(t, again.Expired)
	assert.Empty(t, again.Spaces)
	assert.Equal(t, reservations, f.store.Reservations())
	assert.Equal(t, history, f.store.SpaceHistory(1))
	assert.Len(t, f.bus.messages(), 1)
}

func TestExpirySweepReprojectsToNextBooking(t *testing.T) {
	f := newFixture(t, Options{})
	f.store.AddSpace(1, "A-01")
	f.store.AddWallet(7, dec(100))
	f.store.AddWallet(9, dec(100))
	ctx := context.Background()
	now := f.clock.Now()

	a := f.create(t, 7, 1, now, now.Add(time.Hour), 50)
	_, err := f.mgr.CheckIn(ctx, 7, a.ID, "")
	require.NoError(t, err)
	f.create(t, 9, 1, now.Add(3*time.Hour), now.Add(4*time.Hour), 50)
	assert.Equal(t, model.SpaceOccupied, f.spaceState(t, 1))

	f.clock.Advance(2 * time.Hour)
	res, err := f.conflicts.ExpirySweep(ctx)
	require.NoError(t, err)
	require.Len(t, res.Expired, 1)
	assert.Equal(t, a.ID, res.Expired[0].ID)
	assert.Equal(t, model.SpaceReserved, f.spaceState(t, 1))
}

func TestExpiredReservationFreesSlotForNewBooking(t *testing.T) {
	f := newFixture(t, Options{})
	f.store.AddSpace(1, "A-01")
	f.store.AddWallet(7, dec(100))
	now := f.clock.Now()

	old := f.create(t, 7, 1, now, now.Add(time.Hour), 40)
	f.clock.Advance(90 * time.Minute)

	// Create sweeps first, so the stale row neither conflicts nor lingers.
	next := f.create(t, 7, 1, now.Add(30*time.Minute), now.Add(3*time.Hour), 40)
	assert.NotEqual(t, old.ID, next.ID)
	stored, _ := f.store.Reservation(old.ID)
	assert.Equal(t, model.StatusExpired, stored.Status)
}

func TestExpirySweepLeavesCoveredSpaces(t *testing.T) {
	f := newFixture(t, Options{})
	f.store.AddSpace(1, "A-01")
	f.store.AddSpace(2, "A-02")
	f.store.AddWallet(7, dec(100))
	now := f.clock.Now()

	f.create(t, 7, 1, now, now.Add(time.Hour), 50)
	res, err := f.conflicts.ExpirySweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res.Expired)
	assert.Empty(t, res.Spaces)
	assert.Equal(t, model.SpaceReserved, f.spaceState(t, 1))
	assert.Equal(t, model.SpaceAvailable, f.spaceState(t, 2))
}
