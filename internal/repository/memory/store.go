// Package memory is an in-process repository.Store.  Units of work run one
// at a time against a private copy of the state which replaces the shared
// state only when the unit succeeds.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/repository"
)

type state struct {
	spaces       map[uint64]model.ParkingSpace
	reservations map[uint64]model.Reservation
	wallets      map[uint64]model.WalletAccount
	walletTxs    []model.WalletTransaction
	history      []model.SpaceStateChange
	billing      model.BillingConfig

	nextReservationID uint64
	nextWalletTxID    uint64
	nextHistoryID     uint64
}

func (s *state) clone() *state {
	c := *s
	c.spaces = make(map[uint64]model.ParkingSpace, len(s.spaces))
	for k, v := range s.spaces {
		c.spaces[k] = v
	}
	c.reservations = make(map[uint64]model.Reservation, len(s.reservations))
	for k, v := range s.reservations {
		c.reservations[k] = v
	}
	c.wallets = make(map[uint64]model.WalletAccount, len(s.wallets))
	for k, v := range s.wallets {
		c.wallets[k] = v
	}
	c.walletTxs = append([]model.WalletTransaction(nil), s.walletTxs...)
	c.history = append([]model.SpaceStateChange(nil), s.history...)
	return &c
}

type Store struct {
	mu sync.Mutex
	st *state
}

var _ repository.Store = (*Store)(nil)

func New() *Store {
	return &Store{st: &state{
		spaces:       make(map[uint64]model.ParkingSpace),
		reservations: make(map[uint64]model.Reservation),
		wallets:      make(map[uint64]model.WalletAccount),
		billing:      model.DefaultBillingConfig(),
	}}
}

// WithTx runs fn against a copy of the state and publishes the copy when
// fn returns nil.
func (s *Store) WithTx(ctx context.Context, fn func(tx repository.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	work := s.st.clone()
	if err := fn(&tx{st: work}); err != nil {
		return err
	}
	s.st = work
	return nil
}

// Seeding and inspection helpers.

func (s *Store) AddSpace(id uint64, number string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.spaces[id] = model.ParkingSpace{ID: id, SpaceNumber: number, CurrentState: model.SpaceAvailable, UpdatedAt: time.Now().UTC()}
}

func (s *Store) AddWallet(userID uint64, balance decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.wallets[userID] = model.WalletAccount{UserID: userID, Balance: balance, UpdatedAt: time.Now().UTC()}
}

func (s *Store) SetBillingConfig(cfg model.BillingConfig) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.st.billing = cfg
}

func (s *Store) Space(id uint64) (model.ParkingSpace, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sp, ok := s.st.spaces[id]
	return sp, ok
}

func (s *Store) Reservation(id uint64) (model.Reservation, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.st.reservations[id]
	return r, ok
}

func (s *Store) Reservations() []model.Reservation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Reservation, 0, len(s.st.reservations))
	for _, r := range s.st.reservations {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Wallet(userID uint64) (model.WalletAccount, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.st.wallets[userID]
	return w, ok
}

// WalletTransactions returns a user's ledger rows oldest first.
func (s *Store) WalletTransactions(userID uint64) []model.WalletTransaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.WalletTransaction
	for _, wt := range s.st.walletTxs {
		if wt.UserID == userID {
			out = append(out, wt)
		}
	}
	return out
}

func (s *Store) SpaceHistory(spaceID uint64) []model.SpaceStateChange {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.SpaceStateChange
	for _, ch := range s.st.history {
		if ch.SpaceID == spaceID {
			out = append(out, ch)
		}
	}
	return out
}

type tx struct {
	st *state
}

func (t *tx) LockSpace(_ context.Context, spaceID uint64) (model.ParkingSpace, error) {
	sp, ok := t.st.spaces[spaceID]
	if !ok {
		return model.ParkingSpace{}, repository.ErrNotFound
	}
	return sp, nil
}

func (t *tx) SetSpaceState(_ context.Context, spaceID uint64, st model.SpaceState) error {
	sp, ok := t.st.spaces[spaceID]
	if !ok {
		return repository.ErrNotFound
	}
	sp.CurrentState = st
	sp.UpdatedAt = time.Now().UTC()
	t.st.spaces[spaceID] = sp
	return nil
}

func (t *tx) InsertSpaceHistory(_ context.Context, ch model.SpaceStateChange) error {
	t.st.nextHistoryID++
	ch.ID = t.st.nextHistoryID
	ch.CreatedAt = time.Now().UTC()
	t.st.history = append(t.st.history, ch)
	return nil
}

func (t *tx) IdleSpaces(_ context.Context, now time.Time) ([]model.ParkingSpace, error) {
	var out []model.ParkingSpace
	for _, sp := range t.st.spaces {
		if sp.CurrentState == model.SpaceAvailable {
			continue
		}
		covered := false
		for _, r := range t.st.reservations {
			if r.SpaceID == sp.ID && r.Status.IsActive() && r.EndTime.After(now) {
				covered = true
				break
			}
		}
		if !covered {
			out = append(out, sp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) ListSpaces(context.Context) ([]model.ParkingSpace, error) {
	out := make([]model.ParkingSpace, 0, len(t.st.spaces))
	for _, sp := range t.st.spaces {
		out = append(out, sp)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SpaceNumber != out[j].SpaceNumber {
			return out[i].SpaceNumber < out[j].SpaceNumber
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (t *tx) InsertSpace(_ context.Context, sp *model.ParkingSpace) error {
	var maxID uint64
	for id, existing := range t.st.spaces {
		if existing.SpaceNumber == sp.SpaceNumber {
			return repository.ErrDuplicate
		}
		if id > maxID {
			maxID = id
		}
	}
	sp.ID = maxID + 1
	sp.CurrentState = model.SpaceAvailable
	sp.UpdatedAt = time.Now().UTC()
	t.st.spaces[sp.ID] = *sp
	return nil
}

func (t *tx) HasOverlap(_ context.Context, spaceID uint64, start, end time.Time) (bool, error) {
	for _, r := range t.st.reservations {
		if r.SpaceID == spaceID && r.Status.IsActive() && r.Overlaps(start, end) {
			return true, nil
		}
	}
	return false, nil
}

func (t *tx) ActiveReservationsForSpace(_ context.Context, spaceID uint64) ([]model.Reservation, error) {
	var out []model.Reservation
	for _, r := range t.st.reservations {
		if r.SpaceID == spaceID && r.Status.IsActive() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out, nil
}

func (t *tx) InsertReservation(_ context.Context, r *model.Reservation) error {
	t.st.nextReservationID++
	now := time.Now().UTC()
	r.ID = t.st.nextReservationID
	r.CreatedAt = now
	r.UpdatedAt = now
	t.st.reservations[r.ID] = *r
	return nil
}

func (t *tx) FindReservation(ctx context.Context, id uint64) (model.Reservation, error) {
	return t.GetReservation(ctx, id)
}

func (t *tx) GetReservation(_ context.Context, id uint64) (model.Reservation, error) {
	r, ok := t.st.reservations[id]
	if !ok {
		return model.Reservation{}, repository.ErrNotFound
	}
	return r, nil
}

func (t *tx) UpdateReservation(_ context.Context, r model.Reservation) error {
	if _, ok := t.st.reservations[r.ID]; !ok {
		return repository.ErrNotFound
	}
	r.UpdatedAt = time.Now().UTC()
	t.st.reservations[r.ID] = r
	return nil
}

func (t *tx) ReservedAt(_ context.Context, spaceID uint64, now time.Time) (*model.Reservation, error) {
	var found *model.Reservation
	for _, r := range t.st.reservations {
		if r.SpaceID != spaceID || r.Status != model.StatusReserved || !r.Contains(now) {
			continue
		}
		if found == nil || r.StartTime.Before(found.StartTime) {
			r := r
			found = &r
		}
	}
	return found, nil
}

func (t *tx) ExpireOverdue(_ context.Context, now time.Time) ([]model.Reservation, error) {
	var out []model.Reservation
	for id, r := range t.st.reservations {
		if r.Status.IsActive() && r.EndTime.Before(now) {
			r.Status = model.StatusExpired
			r.UpdatedAt = now
			t.st.reservations[id] = r
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *tx) CurrentReservation(_ context.Context, userID uint64, now time.Time) (*model.Reservation, error) {
	var found *model.Reservation
	for _, r := range t.st.reservations {
		if r.UserID != userID || !r.Status.IsActive() || !r.EndTime.After(now) {
			continue
		}
		if found == nil || r.StartTime.After(found.StartTime) {
			r := r
			found = &r
		}
	}
	return found, nil
}

func (t *tx) ReservationHistory(_ context.Context, userID uint64, now time.Time, limit, offset int) ([]model.Reservation, error) {
	var all []model.Reservation
	for _, r := range t.st.reservations {
		if r.UserID == userID && (r.Status.IsTerminal() || !r.EndTime.After(now)) {
			all = append(all, r)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StartTime.After(all[j].StartTime) })
	if offset >= len(all) {
		return nil, nil
	}
	all = all[offset:]
	if limit < len(all) {
		all = all[:limit]
	}
	return all, nil
}

func (t *tx) LockWallet(_ context.Context, userID uint64) (model.WalletAccount, error) {
	w, ok := t.st.wallets[userID]
	if !ok {
		return model.WalletAccount{}, repository.ErrNotFound
	}
	return w, nil
}

func (t *tx) SetWalletBalance(_ context.Context, userID uint64, balance decimal.Decimal) error {
	w, ok := t.st.wallets[userID]
	if !ok {
		return repository.ErrNotFound
	}
	w.Balance = balance
	w.UpdatedAt = time.Now().UTC()
	t.st.wallets[userID] = w
	return nil
}

func (t *tx) InsertWalletTx(_ context.Context, wt *model.WalletTransaction) error {
	t.st.nextWalletTxID++
	wt.ID = t.st.nextWalletTxID
	wt.CreatedAt = time.Now().UTC()
	t.st.walletTxs = append(t.st.walletTxs, *wt)
	return nil
}

func (t *tx) WalletHistory(_ context.Context, userID uint64, limit int) ([]model.WalletTransaction, error) {
	var out []model.WalletTransaction
	for i := len(t.st.walletTxs) - 1; i >= 0 && len(out) < limit; i-- {
		if t.st.walletTxs[i].UserID == userID {
			out = append(out, t.st.walletTxs[i])
		}
	}
	return out, nil
}

func (t *tx) BillingConfig(context.Context) (model.BillingConfig, error) {
	return t.st.billing, nil
}
