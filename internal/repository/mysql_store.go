package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/parking-reservation/internal/model"
)

// maxTxAttempts bounds the retries of a unit of work that hit an InnoDB
// deadlock or lock wait timeout.
const maxTxAttempts = 3

// MySQLStore implements Store on top of the table repositories.  Each unit
// of work is one READ COMMITTED transaction; isolation between units comes
// from explicit row locks taken in the order space, reservation, wallet.
type MySQLStore struct {
	db           *sql.DB
	Reservations *ReservationRepo
	Spaces       *SpaceRepo
	Wallets      *WalletRepo
	Settings     *SettingsRepo
}

// NewMySQLStore wires the table repositories around one connection pool.
func NewMySQLStore(db *sql.DB) *MySQLStore {
	return &MySQLStore{
		db:           db,
		Reservations: NewReservationRepo(db),
		Spaces:       NewSpaceRepo(db),
		Wallets:      NewWalletRepo(db),
		Settings:     NewSettingsRepo(db),
	}
}

// WithTx runs fn in a transaction and commits when it returns nil.
// Deadlocks and lock wait timeouts restart the whole unit.
func (s *MySQLStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runOnce(ctx, fn)
		if err == nil || !isRetryable(err) {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Duration(attempt*25) * time.Millisecond):
		}
	}
	return err
}

func (s *MySQLStore) runOnce(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := fn(&mysqlTx{s: s, tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

// mysqlTx binds the repositories to one *sql.Tx.
type mysqlTx struct {
	s  *MySQLStore
	tx *sql.Tx
}

var (
	_ Store = (*MySQLStore)(nil)
	_ Tx    = (*mysqlTx)(nil)
)

func (t *mysqlTx) LockSpace(ctx context.Context, spaceID uint64) (model.ParkingSpace, error) {
	return t.s.Spaces.LockTx(ctx, t.tx, spaceID)
}

func (t *mysqlTx) SetSpaceState(ctx context.Context, spaceID uint64, state model.SpaceState) error {
	return t.s.Spaces.SetStateTx(ctx, t.tx, spaceID, state)
}

func (t *mysqlTx) InsertSpaceHistory(ctx context.Context, ch model.SpaceStateChange) error {
	return t.s.Spaces.InsertHistoryTx(ctx, t.tx, ch)
}

func (t *mysqlTx) IdleSpaces(ctx context.Context, now time.Time) ([]model.ParkingSpace, error) {
	return t.s.Spaces.IdleTx(ctx, t.tx, now)
}

func (t *mysqlTx) ListSpaces(ctx context.Context) ([]model.ParkingSpace, error) {
	return t.s.Spaces.ListTx(ctx, t.tx)
}

func (t *mysqlTx) InsertSpace(ctx context.Context, sp *model.ParkingSpace) error {
	return t.s.Spaces.CreateTx(ctx, t.tx, sp)
}

func (t *mysqlTx) HasOverlap(ctx context.Context, spaceID uint64, start, end time.Time) (bool, error) {
	return t.s.Reservations.HasOverlapTx(ctx, t.tx, spaceID, start, end)
}

func (t *mysqlTx) ActiveReservationsForSpace(ctx context.Context, spaceID uint64) ([]model.Reservation, error) {
	return t.s.Reservations.ActiveForSpaceTx(ctx, t.tx, spaceID)
}

func (t *mysqlTx) InsertReservation(ctx context.Context, r *model.Reservation) error {
	return t.s.Reservations.CreateTx(ctx, t.tx, r)
}

func (t *mysqlTx) FindReservation(ctx context.Context, id uint64) (model.Reservation, error) {
	return t.s.Reservations.GetTx(ctx, t.tx, id)
}

func (t *mysqlTx) GetReservation(ctx context.Context, id uint64) (model.Reservation, error) {
	return t.s.Reservations.GetForUpdateTx(ctx, t.tx, id)
}

func (t *mysqlTx) UpdateReservation(ctx context.Context, r model.Reservation) error {
	return t.s.Reservations.UpdateTx(ctx, t.tx, r)
}

func (t *mysqlTx) ReservedAt(ctx context.Context, spaceID uint64, now time.Time) (*model.Reservation, error) {
	return t.s.Reservations.ReservedAtTx(ctx, t.tx, spaceID, now)
}

func (t *mysqlTx) ExpireOverdue(ctx context.Context, now time.Time) ([]model.Reservation, error) {
	return t.s.Reservations.ExpireOverdueTx(ctx, t.tx, now)
}

func (t *mysqlTx) CurrentReservation(ctx context.Context, userID uint64, now time.Time) (*model.Reservation, error) {
	return t.s.Reservations.CurrentForUserTx(ctx, t.tx, userID, now)
}

func (t *mysqlTx) ReservationHistory(ctx context.Context, userID uint64, now time.Time, limit, offset int) ([]model.Reservation, error) {
	return t.s.Reservations.HistoryForUserTx(ctx, t.tx, userID, now, limit, offset)
}

func (t *mysqlTx) LockWallet(ctx context.Context, userID uint64) (model.WalletAccount, error) {
	return t.s.Wallets.LockTx(ctx, t.tx, userID)
}

func (t *mysqlTx) SetWalletBalance(ctx context.Context, userID uint64, balance decimal.Decimal) error {
	return t.s.Wallets.SetBalanceTx(ctx, t.tx, userID, balance)
}

func (t *mysqlTx) InsertWalletTx(ctx context.Context, wt *model.WalletTransaction) error {
	return t.s.Wallets.InsertTxTx(ctx, t.tx, wt)
}

func (t *mysqlTx) WalletHistory(ctx context.Context, userID uint64, limit int) ([]model.WalletTransaction, error) {
	return t.s.Wallets.HistoryTx(ctx, t.tx, userID, limit)
}

func (t *mysqlTx) BillingConfig(ctx context.Context) (model.BillingConfig, error) {
	return t.s.Settings.BillingConfigTx(ctx, t.tx)
}
