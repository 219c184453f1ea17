package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/parking-reservation/internal/logger"
	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/repository/memory"
)

type recordingBus struct {
	mu   sync.Mutex
	msgs []Message
}

func (b *recordingBus) Publish(_ context.Context, topic, payload string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = append(b.msgs, Message{Topic: topic, Payload: payload})
	return nil
}

func (b *recordingBus) messages() []Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Message(nil), b.msgs...)
}

func (b *recordingBus) reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgs = nil
}

// MockBus is a testify mock for the message bus.
type MockBus struct {
	mock.Mock
}

func (m *MockBus) Publish(ctx context.Context, topic, payload string) error {
	args := m.Called(ctx, topic, payload)
	return args.Error(0)
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type fixture struct {
	store     *memory.Store
	bus       *recordingBus
	clock     *testClock
	ledger    *WalletLedger
	conflicts *ConflictDetector
	spaces    *SpaceStateSynchronizer
	mgr       *ReservationManager
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	return newFixtureWithBus(t, opts, &recordingBus{})
}

func newFixtureWithBus(t *testing.T, opts Options, bus Bus) *fixture {
	t.Helper()
	f := &fixture{
		store: memory.New(),
		clock: &testClock{t: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)},
	}
	if rb, ok := bus.(*recordingBus); ok {
		f.bus = rb
	}
	log := logger.Discard()
	opts.Now = f.clock.Now
	f.spaces = NewSpaceStateSynchronizer(bus, log)
	f.ledger = NewWalletLedger(f.store, log)
	f.conflicts = NewConflictDetector(f.store, f.spaces, f.clock.Now, log)
	f.mgr = NewReservationManager(f.store, f.ledger, f.conflicts, f.spaces, opts, log)
	f.store.SetBillingConfig(model.BillingConfig{
		FreeMinutes:         0,
		BillingBlockMinutes: 30,
		RatePerBlock:        dec(20),
	})
	return f
}

func (f *fixture) create(t *testing.T, userID, spaceID uint64, start, end time.Time, deposit int64) model.Reservation {
	t.Helper()
	r, err := f.mgr.Create(context.Background(), CreateRequest{
		UserID:  userID,
		SpaceID: spaceID,
		Start:   start,
		End:     end,
		Deposit: dec(deposit),
	})
	require.NoError(t, err)
	return r
}

func (f *fixture) balance(t *testing.T, userID uint64) decimal.Decimal {
	t.Helper()
	w, ok := f.store.Wallet(userID)
	require.True(t, ok)
	return w.Balance
}

func (f *fixture) spaceState(t *testing.T, spaceID uint64) model.SpaceState {
	t.Helper()
	sp, ok := f.store.Space(spaceID)
	require.True(t, ok)
	return sp.CurrentState
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func decEq(t *testing.T, want int64, got decimal.Decimal) {
	t.Helper()
	require.True(t, dec(want).Equal(got), "want %d got %s", want, got.String())
}
