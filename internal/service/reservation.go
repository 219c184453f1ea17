package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/parking-reservation/internal/apperr"
	"github.com/iliyamo/parking-reservation/internal/billing"
	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/repository"
	"github.com/iliyamo/parking-reservation/internal/utils"
)

const (
	maxHistory         = 50
	defaultHistoryPage = 20
)

// Options tune the reservation engine.
type Options struct {
	DefaultDeposit decimal.Decimal  // used when a create request carries no deposit
	RefundOnCancel bool             // release the held deposit when a reservation is cancelled
	Now            func() time.Time // clock; time.Now when nil
}

// ReservationManager drives the reservation lifecycle.  Every mutating call
// is one unit of work; notifications are published after it commits.
type ReservationManager struct {
	store     repository.Store
	ledger    *WalletLedger
	conflicts *ConflictDetector
	spaces    *SpaceStateSynchronizer
	opts      Options
	log       *slog.Logger
}

func NewReservationManager(store repository.Store, ledger *WalletLedger, conflicts *ConflictDetector, spaces *SpaceStateSynchronizer, opts Options, log *slog.Logger) *ReservationManager {
	if store == nil || ledger == nil || conflicts == nil || spaces == nil {
		panic("nil dependency passed to NewReservationManager")
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if !opts.DefaultDeposit.IsPositive() {
		opts.DefaultDeposit = decimal.NewFromInt(50)
	}
	return &ReservationManager{
		store:     store,
		ledger:    ledger,
		conflicts: conflicts,
		spaces:    spaces,
		opts:      opts,
		log:       log.With("component", "reservations"),
	}
}

// CreateRequest is the input of Create.  A zero Deposit means the default.
type CreateRequest struct {
	UserID  uint64
	SpaceID uint64
	Start   time.Time
	End     time.Time
	Deposit decimal.Decimal
}

// Settlement is the outcome of Complete.
type Settlement struct {
	Reservation  model.Reservation
	TotalFee     decimal.Decimal
	ExtraDue     decimal.Decimal
	RefundAmount decimal.Decimal
}

// Current is the caller's ongoing reservation with a live fee estimate.
type Current struct {
	Reservation model.Reservation
	Elapsed     time.Duration
	FeeEstimate decimal.Decimal
}

// SpaceReport is the outcome of ReportResourceState.
type SpaceReport struct {
	Space         model.ParkingSpace
	AutoCheckedIn *model.Reservation
}

func (m *ReservationManager) now() time.Time { return m.opts.Now().UTC() }

// Create books [Start, End) on a space and holds the deposit.
func (m *ReservationManager) Create(ctx context.Context, req CreateRequest) (model.Reservation, error) {
	if req.Deposit.IsZero() {
		req.Deposit = m.opts.DefaultDeposit
	}
	switch {
	case req.UserID == 0:
		return model.Reservation{}, apperr.Validation("user is required")
	case req.SpaceID == 0:
		return model.Reservation{}, apperr.Validation("space_id is required")
	case req.Start.IsZero() || req.End.IsZero():
		return model.Reservation{}, apperr.Validation("start_time and end_time are required")
	case !req.Start.Before(req.End):
		return model.Reservation{}, apperr.Validation("start_time must be before end_time")
	}
	if err := checkAmount("deposit_amount", req.Deposit); err != nil {
		return model.Reservation{}, err
	}

	// Stale rows would otherwise show up as conflicts; the sweep logs its own failures.
	_, _ = m.conflicts.ExpirySweep(ctx)

	now := m.now()
	if !req.End.After(now) {
		return model.Reservation{}, apperr.Validation("end_time must be in the future")
	}
	code, err := utils.RandomHex(8)
	if err != nil {
		return model.Reservation{}, m.fail("create reservation", err)
	}

	res := model.Reservation{
		UserID:        req.UserID,
		SpaceID:       req.SpaceID,
		QRCode:        code,
		DepositAmount: req.Deposit,
		DepositStatus: model.DepositHeld,
		Status:        model.StatusReserved,
		StartTime:     req.Start.UTC(),
		EndTime:       req.End.UTC(),
	}
	var state model.SpaceState
	err = m.store.WithTx(ctx, func(tx repository.Tx) error {
		space, err := tx.LockSpace(ctx, req.SpaceID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("space not found")
		}
		if err != nil {
			return err
		}
		overlap, err := m.conflicts.HasOverlap(ctx, tx, req.SpaceID, res.StartTime, res.EndTime)
		if err != nil {
			return err
		}
		if overlap {
			return apperr.Conflict("time slot not available")
		}
		if err := tx.InsertReservation(ctx, &res); err != nil {
			return err
		}
		if err := m.ledger.Hold(ctx, tx, req.UserID, res.ID, res.DepositAmount); err != nil {
			return err
		}
		state, err = m.spaces.Sync(ctx, tx, space, now, model.SourceReservation)
		return err
	})
	if err != nil {
		return model.Reservation{}, m.fail("create reservation", err)
	}

	m.log.Info("reservation created", "reservation_id", res.ID, "user_id", res.UserID, "space_id", res.SpaceID, "space_state", state)
	m.spaces.Publish(ctx, Event{Kind: EventReserved, SpaceID: res.SpaceID, UserID: res.UserID, State: state})
	return res, nil
}

// lockReservation locks the reservation's space and then the reservation
// row.  Reservations of other users report NotFound.
func (m *ReservationManager) lockReservation(ctx context.Context, tx repository.Tx, userID, id uint64) (model.ParkingSpace, model.Reservation, error) {
	peek, err := tx.FindReservation(ctx, id)
	if errors.Is(err, repository.ErrNotFound) || (err == nil && userID != 0 && peek.UserID != userID) {
		return model.ParkingSpace{}, model.Reservation{}, apperr.NotFound("reservation not found")
	}
	if err != nil {
		return model.ParkingSpace{}, model.Reservation{}, err
	}
	space, err := tx.LockSpace(ctx, peek.SpaceID)
	if errors.Is(err, repository.ErrNotFound) {
		return model.ParkingSpace{}, model.Reservation{}, apperr.NotFound("space not found")
	}
	if err != nil {
		return model.ParkingSpace{}, model.Reservation{}, err
	}
	res, err := tx.GetReservation(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.ParkingSpace{}, model.Reservation{}, apperr.NotFound("reservation not found")
	}
	return space, res, err
}

// CheckIn marks the reservation as occupied.  Re-entry is allowed and keeps
// the first check-in time.  A non-empty code must equal the QR code.
func (m *ReservationManager) CheckIn(ctx context.Context, userID, id uint64, code string) (model.Reservation, error) {
	now := m.now()
	var (
		res        model.Reservation
		transition bool
	)
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		space, r, err := m.lockReservation(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if !r.Status.IsActive() {
			return apperr.State("reservation is not active")
		}
		if !r.EndTime.After(now) {
			return apperr.State("reservation expired")
		}
		if code != "" && code != r.QRCode {
			return apperr.Validation("invalid code")
		}
		transition = r.Status == model.StatusReserved
		res, err = m.checkIn(ctx, tx, space, r, now)
		return err
	})
	if err != nil {
		return model.Reservation{}, m.fail("check-in", err)
	}
	if transition {
		m.log.Info("reservation checked in", "reservation_id", res.ID, "space_id", res.SpaceID)
		m.spaces.Publish(ctx, Event{Kind: EventCheckedIn, SpaceID: res.SpaceID, UserID: res.UserID, State: model.SpaceOccupied})
	}
	return res, nil
}

// checkIn applies the checked-in transition to a locked reservation.
func (m *ReservationManager) checkIn(ctx context.Context, tx repository.Tx, space model.ParkingSpace, r model.Reservation, now time.Time) (model.Reservation, error) {
	r.Status = model.StatusCheckedIn
	if r.CheckedInAt == nil {
		t := now
		r.CheckedInAt = &t
	}
	if err := tx.UpdateReservation(ctx, r); err != nil {
		return r, err
	}
	_, err := m.spaces.Sync(ctx, tx, space, now, model.SourceReservation)
	return r, err
}

// Cancel ends a reservation that has not started settling.  Cancelling a
// terminal reservation is a no-op.
func (m *ReservationManager) Cancel(ctx context.Context, userID, id uint64) (model.Reservation, error) {
	now := m.now()
	var (
		res        model.Reservation
		state      model.SpaceState
		transition bool
	)
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		space, r, err := m.lockReservation(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		res = r
		if r.Status.IsTerminal() {
			return nil
		}
		transition = true
		res.Status = model.StatusCancelled
		if m.opts.RefundOnCancel && res.DepositStatus == model.DepositHeld {
			if err := m.ledger.Release(ctx, tx, res.UserID, res.ID, res.DepositAmount, noteCancelRefund); err != nil {
				return err
			}
			res.DepositStatus = model.DepositReleased
		}
		if err := tx.UpdateReservation(ctx, res); err != nil {
			return err
		}
		state, err = m.spaces.Sync(ctx, tx, space, now, model.SourceReservation)
		return err
	})
	if err != nil {
		return model.Reservation{}, m.fail("cancel", err)
	}
	if transition {
		m.log.Info("reservation cancelled", "reservation_id", res.ID, "space_id", res.SpaceID, "deposit_status", res.DepositStatus)
		m.spaces.Publish(ctx, Event{Kind: EventCancelled, SpaceID: res.SpaceID, UserID: res.UserID, State: state})
	}
	return res, nil
}

// Complete checks the car out, computes the fee from the check-in time and
// settles it against the held deposit.
func (m *ReservationManager) Complete(ctx context.Context, userID, id uint64) (Settlement, error) {
	now := m.now()
	var (
		out   Settlement
		state model.SpaceState
	)
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		space, r, err := m.lockReservation(ctx, tx, userID, id)
		if err != nil {
			return err
		}
		if r.Status != model.StatusCheckedIn || r.CheckedInAt == nil {
			return apperr.State("reservation is not checked in")
		}
		cfg, err := tx.BillingConfig(ctx)
		if err != nil {
			return err
		}
		end := now
		if end.Before(*r.CheckedInAt) {
			end = *r.CheckedInAt
		}
		fee, err := billing.ComputeFee(cfg, *r.CheckedInAt, end)
		if err != nil {
			return err
		}

		out = Settlement{TotalFee: fee, ExtraDue: decimal.Zero, RefundAmount: decimal.Zero}
		if fee.GreaterThan(r.DepositAmount) {
			out.ExtraDue = fee.Sub(r.DepositAmount)
			if err := m.ledger.Debit(ctx, tx, r.UserID, r.ID, out.ExtraDue, noteExtraFee); err != nil {
				return err
			}
			r.DepositStatus = model.DepositCaptured
		} else {
			out.RefundAmount = r.DepositAmount.Sub(fee)
			if out.RefundAmount.IsPositive() {
				if err := m.ledger.Release(ctx, tx, r.UserID, r.ID, out.RefundAmount, noteRefund); err != nil {
					return err
				}
			}
			r.DepositStatus = model.DepositReleased
		}

		r.Status = model.StatusCompleted
		r.CheckedOutAt = &end
		r.TotalFee = &fee
		if err := tx.UpdateReservation(ctx, r); err != nil {
			return err
		}
		out.Reservation = r
		state, err = m.spaces.Sync(ctx, tx, space, now, model.SourceReservation)
		return err
	})
	if err != nil {
		return Settlement{}, m.fail("complete", err)
	}

	r := out.Reservation
	m.log.Info("reservation completed", "reservation_id", r.ID, "total_fee", out.TotalFee.String(),
		"extra_due", out.ExtraDue.String(), "refund", out.RefundAmount.String())
	m.spaces.Publish(ctx, Event{Kind: EventCompleted, SpaceID: r.SpaceID, UserID: r.UserID, State: state})
	return out, nil
}

// ReportResourceState records a sensor observation.  An "occupied" report
// promotes the reserved reservation covering now to checked-in.
func (m *ReservationManager) ReportResourceState(ctx context.Context, spaceID uint64, observed model.SpaceState) (SpaceReport, error) {
	if spaceID == 0 {
		return SpaceReport{}, apperr.Validation("space_id is required")
	}
	if !observed.Valid() {
		return SpaceReport{}, apperr.Validation("invalid state")
	}
	now := m.now()
	var out SpaceReport
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		out = SpaceReport{}
		space, err := tx.LockSpace(ctx, spaceID)
		if errors.Is(err, repository.ErrNotFound) {
			return apperr.NotFound("space not found")
		}
		if err != nil {
			return err
		}
		if err := m.spaces.Record(ctx, tx, space, observed, model.SourceSensor); err != nil {
			return err
		}
		space.CurrentState = observed
		out.Space = space

		if observed != model.SpaceOccupied {
			return nil
		}
		r, err := tx.ReservedAt(ctx, spaceID, now)
		if err != nil || r == nil {
			return err
		}
		promoted, err := m.checkIn(ctx, tx, space, *r, now)
		if err != nil {
			return err
		}
		out.AutoCheckedIn = &promoted
		return nil
	})
	if err != nil {
		return SpaceReport{}, m.fail("report space state", err)
	}

	events := []Event{{Kind: EventSensorReport, SpaceID: spaceID, State: observed}}
	if r := out.AutoCheckedIn; r != nil {
		m.log.Info("auto check-in", "reservation_id", r.ID, "space_id", spaceID)
		events = append(events, Event{Kind: EventCheckedIn, SpaceID: spaceID, UserID: r.UserID, State: model.SpaceOccupied})
	}
	m.spaces.Publish(ctx, events...)
	return out, nil
}

// Get returns one of the caller's reservations.
func (m *ReservationManager) Get(ctx context.Context, userID, id uint64) (model.Reservation, error) {
	var res model.Reservation
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		r, err := tx.FindReservation(ctx, id)
		if errors.Is(err, repository.ErrNotFound) || (err == nil && r.UserID != userID) {
			return apperr.NotFound("reservation not found")
		}
		res = r
		return err
	})
	if err != nil {
		return model.Reservation{}, m.fail("get reservation", err)
	}
	return res, nil
}

// Current returns the caller's latest active reservation, or nil.
func (m *ReservationManager) Current(ctx context.Context, userID uint64) (*Current, error) {
	now := m.now()
	var out *Current
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		r, err := tx.CurrentReservation(ctx, userID, now)
		if err != nil || r == nil {
			return err
		}
		out = &Current{Reservation: *r, FeeEstimate: decimal.Zero}
		if r.CheckedInAt == nil || now.Before(*r.CheckedInAt) {
			return nil
		}
		cfg, err := tx.BillingConfig(ctx)
		if err != nil {
			return err
		}
		out.Elapsed = now.Sub(*r.CheckedInAt)
		out.FeeEstimate, err = billing.ComputeFee(cfg, *r.CheckedInAt, now)
		return err
	})
	if err != nil {
		return nil, m.fail("current reservation", err)
	}
	return out, nil
}

// History lists the caller's finished reservations, newest first.
func (m *ReservationManager) History(ctx context.Context, userID uint64, limit, offset int) ([]model.Reservation, error) {
	limit = clampLimit(limit, defaultHistoryPage, maxHistory)
	if offset < 0 {
		offset = 0
	}
	now := m.now()
	var out []model.Reservation
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ReservationHistory(ctx, userID, now, limit, offset)
		return err
	})
	if err != nil {
		return nil, m.fail("reservation history", err)
	}
	return out, nil
}

// Spaces lists every parking space with its current state.
func (m *ReservationManager) Spaces(ctx context.Context) ([]model.ParkingSpace, error) {
	var out []model.ParkingSpace
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		out, err = tx.ListSpaces(ctx)
		return err
	})
	if err != nil {
		return nil, m.fail("list spaces", err)
	}
	return out, nil
}

// AddSpace registers a new space in the available state.
func (m *ReservationManager) AddSpace(ctx context.Context, number string) (model.ParkingSpace, error) {
	number = strings.TrimSpace(number)
	if number == "" {
		return model.ParkingSpace{}, apperr.Validation("space_number is required")
	}
	sp := model.ParkingSpace{SpaceNumber: number}
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		err := tx.InsertSpace(ctx, &sp)
		if errors.Is(err, repository.ErrDuplicate) {
			return apperr.Conflict("space number already exists")
		}
		return err
	})
	if err != nil {
		return model.ParkingSpace{}, m.fail("add space", err)
	}
	m.log.Info("space added", "space_id", sp.ID, "space_number", sp.SpaceNumber)
	return sp, nil
}

// Pricing returns the billing configuration in effect.
func (m *ReservationManager) Pricing(ctx context.Context) (model.BillingConfig, error) {
	var cfg model.BillingConfig
	err := m.store.WithTx(ctx, func(tx repository.Tx) error {
		var err error
		cfg, err = tx.BillingConfig(ctx)
		return err
	})
	if err != nil {
		return model.BillingConfig{}, m.fail("pricing", err)
	}
	return cfg, nil
}

func (m *ReservationManager) fail(op string, err error) error {
	err = apperr.Wrap(err)
	if errors.Is(err, apperr.ErrInternal) {
		m.log.Error(op+" failed", "err", err)
	}
	return err
}
