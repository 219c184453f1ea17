package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// ReservationStatus is the lifecycle state of a reservation.
type ReservationStatus string

const (
	StatusReserved  ReservationStatus = "reserved"
	StatusCheckedIn ReservationStatus = "checked-in"
	StatusCancelled ReservationStatus = "cancelled"
	StatusExpired   ReservationStatus = "expired"
	StatusCompleted ReservationStatus = "completed"
)

// IsActive reports whether the status still claims its time window.
func (s ReservationStatus) IsActive() bool {
	return s == StatusReserved || s == StatusCheckedIn
}

// IsTerminal reports whether no further transition is possible.
func (s ReservationStatus) IsTerminal() bool {
	return s == StatusCancelled || s == StatusExpired || s == StatusCompleted
}

// DepositStatus tracks where the held deposit went.  A deposit leaves
// DepositHeld exactly once.
type DepositStatus string

const (
	DepositHeld     DepositStatus = "held"
	DepositCaptured DepositStatus = "captured"
	DepositReleased DepositStatus = "released"
)

// Reservation is a timed claim on a single parking space, backed by a
// wallet deposit.
//
// Fields:
//  ID            – primary key, assigned by the store.
//  UserID        – owner of the reservation.
//  SpaceID       – reserved parking space.
//  QRCode        – opaque check-in token (16 hex chars).
//  DepositAmount – amount moved from the wallet into the hold.
//  DepositStatus – held, captured or released.
//  Status        – lifecycle state.
//  StartTime     – inclusive start of the window.
//  EndTime       – exclusive end of the window.
//  CheckedInAt   – set once on the first check-in.
//  CheckedOutAt  – set on completion.
//  TotalFee      – fee computed on completion.
type Reservation struct {
	ID            uint64            // reservations.id
	UserID        uint64            // reservations.user_id
	SpaceID       uint64            // reservations.space_id
	QRCode        string            // reservations.qr_code
	DepositAmount decimal.Decimal   // reservations.deposit_amount
	DepositStatus DepositStatus     // reservations.deposit_status
	Status        ReservationStatus // reservations.status
	StartTime     time.Time         // reservations.start_time
	EndTime       time.Time         // reservations.end_time
	CheckedInAt   *time.Time        // reservations.checked_in_at (nullable)
	CheckedOutAt  *time.Time        // reservations.checked_out_at (nullable)
	TotalFee      *decimal.Decimal  // reservations.total_fee (nullable)
	CreatedAt     time.Time         // reservations.created_at
	UpdatedAt     time.Time         // reservations.updated_at
}

// Overlaps reports whether the reservation window intersects [start, end).
// Windows that only touch at an endpoint do not overlap.
func (r Reservation) Overlaps(start, end time.Time) bool {
	return r.StartTime.Before(end) && start.Before(r.EndTime)
}

// Contains reports whether t falls inside [StartTime, EndTime).
func (r Reservation) Contains(t time.Time) bool {
	return !t.Before(r.StartTime) && t.Before(r.EndTime)
}
