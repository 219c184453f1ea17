package repository

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/parking-reservation/internal/model"
)

// Store runs units of work against the persistent state.  fn either
// commits as a whole or leaves no trace.  Implementations must serialize
// conflicting units on the same space row and the same wallet row.
type Store interface {
	WithTx(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the set of reads and writes available inside one unit of work.
// Methods that return a single row report ErrNotFound when it is missing.
// Lock* and GetReservation hold a row lock until the unit ends; take them
// in the order space, reservation, wallet.
type Tx interface {
	// Spaces
	LockSpace(ctx context.Context, spaceID uint64) (model.ParkingSpace, error)
	SetSpaceState(ctx context.Context, spaceID uint64, state model.SpaceState) error
	InsertSpaceHistory(ctx context.Context, ch model.SpaceStateChange) error
	IdleSpaces(ctx context.Context, now time.Time) ([]model.ParkingSpace, error)
	ListSpaces(ctx context.Context) ([]model.ParkingSpace, error)
	InsertSpace(ctx context.Context, sp *model.ParkingSpace) error

	// Reservations
	HasOverlap(ctx context.Context, spaceID uint64, start, end time.Time) (bool, error)
	ActiveReservationsForSpace(ctx context.Context, spaceID uint64) ([]model.Reservation, error)
	InsertReservation(ctx context.Context, r *model.Reservation) error
	FindReservation(ctx context.Context, id uint64) (model.Reservation, error)
	GetReservation(ctx context.Context, id uint64) (model.Reservation, error)
	UpdateReservation(ctx context.Context, r model.Reservation) error
	ReservedAt(ctx context.Context, spaceID uint64, now time.Time) (*model.Reservation, error)
	ExpireOverdue(ctx context.Context, now time.Time) ([]model.Reservation, error)
	CurrentReservation(ctx context.Context, userID uint64, now time.Time) (*model.Reservation, error)
	ReservationHistory(ctx context.Context, userID uint64, now time.Time, limit, offset int) ([]model.Reservation, error)

	// Wallets
	LockWallet(ctx context.Context, userID uint64) (model.WalletAccount, error)
	SetWalletBalance(ctx context.Context, userID uint64, balance decimal.Decimal) error
	InsertWalletTx(ctx context.Context, wt *model.WalletTransaction) error
	WalletHistory(ctx context.Context, userID uint64, limit int) ([]model.WalletTransaction, error)

	// Settings
	BillingConfig(ctx context.Context) (model.BillingConfig, error)
}
