package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"

	"github.com/iliyamo/parking-reservation/internal/model"
)

// ReservationRepo reads and writes the reservations table.  Every method
// runs inside a caller-supplied transaction; the caller commits or rolls
// back.  All timestamps are stored in UTC.
type ReservationRepo struct {
	db *sql.DB
}

// NewReservationRepo returns a new ReservationRepo bound to the given database.
func NewReservationRepo(db *sql.DB) *ReservationRepo { return &ReservationRepo{db: db} }

const reservationCols = `id, user_id, space_id, qr_code, deposit_amount, deposit_status, status,
	start_time, end_time, checked_in_at, checked_out_at, total_fee, created_at, updated_at`

const activeStatuses = `('reserved','checked-in')`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(s rowScanner) (model.Reservation, error) {
	var (
		r          model.Reservation
		depStatus  string
		status     string
		checkedIn  sql.NullTime
		checkedOut sql.NullTime
		totalFee   decimal.NullDecimal
	)
	err := s.Scan(&r.ID, &r.UserID, &r.SpaceID, &r.QRCode, &r.DepositAmount, &depStatus, &status,
		&r.StartTime, &r.EndTime, &checkedIn, &checkedOut, &totalFee, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return model.Reservation{}, err
	}
	r.DepositStatus = model.DepositStatus(depStatus)
	r.Status = model.ReservationStatus(status)
	if checkedIn.Valid {
		t := checkedIn.Time
		r.CheckedInAt = &t
	}
	if checkedOut.Valid {
		t := checkedOut.Time
		r.CheckedOutAt = &t
	}
	if totalFee.Valid {
		f := totalFee.Decimal
		r.TotalFee = &f
	}
	return r, nil
}

func scanReservations(rows *sql.Rows) ([]model.Reservation, error) {
	defer rows.Close()
	var out []model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// HasOverlapTx reports whether an active reservation of the space
// intersects [start, end).  Touching endpoints are not an overlap.
func (r *ReservationRepo) HasOverlapTx(ctx context.Context, tx *sql.Tx, spaceID uint64, start, end time.Time) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx,
		`SELECT 1 FROM reservations
		  WHERE space_id = ? AND status IN `+activeStatuses+`
		    AND start_time < ? AND end_time > ?
		  LIMIT 1`,
		spaceID, end.UTC(), start.UTC()).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// ActiveForSpaceTx lists the reserved and checked-in reservations of a space.
func (r *ReservationRepo) ActiveForSpaceTx(ctx context.Context, tx *sql.Tx, spaceID uint64) ([]model.Reservation, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+reservationCols+` FROM reservations
		  WHERE space_id = ? AND status IN `+activeStatuses+`
		  ORDER BY start_time`,
		spaceID)
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

// CreateTx inserts a new reservation within the scope of an existing
// transaction and populates the generated ID and timestamps.
func (r *ReservationRepo) CreateTx(ctx context.Context, tx *sql.Tx, res *model.Reservation) error {
	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx,
		`INSERT INTO reservations
		   (user_id, space_id, qr_code, deposit_amount, deposit_status, status, start_time, end_time, created_at, updated_at)
		 VALUES (?,?,?,?,?,?,?,?,?,?)`,
		res.UserID, res.SpaceID, res.QRCode, res.DepositAmount, string(res.DepositStatus), string(res.Status),
		res.StartTime.UTC(), res.EndTime.UTC(), now, now)
	if err != nil {
		return err
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	res.ID = uint64(id)
	res.CreatedAt = now
	res.UpdatedAt = now
	return nil
}

// GetTx loads a reservation without locking it.
func (r *ReservationRepo) GetTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Reservation, error) {
	res, err := scanReservation(tx.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, ErrNotFound
	}
	return res, err
}

// GetForUpdateTx loads a reservation and locks its row until the
// transaction ends.  It returns ErrNotFound when no row matches.
func (r *ReservationRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (model.Reservation, error) {
	res, err := scanReservation(tx.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM reservations WHERE id = ? FOR UPDATE`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return model.Reservation{}, ErrNotFound
	}
	return res, err
}

// UpdateTx writes back the mutable columns of a reservation.  The row
// should have been locked with GetForUpdateTx.
func (r *ReservationRepo) UpdateTx(ctx context.Context, tx *sql.Tx, res model.Reservation) error {
	var fee decimal.NullDecimal
	if res.TotalFee != nil {
		fee = decimal.NewNullDecimal(*res.TotalFee)
	}
	_, err := tx.ExecContext(ctx,
		`UPDATE reservations
		    SET status = ?, deposit_status = ?, checked_in_at = ?, checked_out_at = ?, total_fee = ?, updated_at = ?
		  WHERE id = ?`,
		string(res.Status), string(res.DepositStatus), nullTime(res.CheckedInAt), nullTime(res.CheckedOutAt),
		fee, time.Now().UTC(), res.ID)
	return err
}

// ReservedAtTx returns the reserved (not yet checked-in) reservation whose
// window contains now, or nil.
func (r *ReservationRepo) ReservedAtTx(ctx context.Context, tx *sql.Tx, spaceID uint64, now time.Time) (*model.Reservation, error) {
	res, err := scanReservation(tx.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM reservations
		  WHERE space_id = ? AND status = 'reserved' AND start_time <= ? AND end_time > ?
		  ORDER BY start_time LIMIT 1 FOR UPDATE`,
		spaceID, now.UTC(), now.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// ExpireOverdueTx marks every active reservation whose window ended before
// now as expired and returns the rows it changed.  Each update is
// conditional on the row still being active, so concurrent sweeps never
// expire the same reservation twice.
func (r *ReservationRepo) ExpireOverdueTx(ctx context.Context, tx *sql.Tx, now time.Time) ([]model.Reservation, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+reservationCols+` FROM reservations
		  WHERE status IN `+activeStatuses+` AND end_time < ?`,
		now.UTC())
	if err != nil {
		return nil, err
	}
	candidates, err := scanReservations(rows)
	if err != nil {
		return nil, err
	}
	var expired []model.Reservation
	for _, c := range candidates {
		result, err := tx.ExecContext(ctx,
			`UPDATE reservations SET status = 'expired', updated_at = ?
			  WHERE id = ? AND status IN `+activeStatuses+` AND end_time < ?`,
			now.UTC(), c.ID, now.UTC())
		if err != nil {
			return nil, err
		}
		if n, _ := result.RowsAffected(); n == 1 {
			c.Status = model.StatusExpired
			expired = append(expired, c)
		}
	}
	return expired, nil
}

// CurrentForUserTx returns the user's latest active reservation whose
// window has not ended, or nil.
func (r *ReservationRepo) CurrentForUserTx(ctx context.Context, tx *sql.Tx, userID uint64, now time.Time) (*model.Reservation, error) {
	res, err := scanReservation(tx.QueryRowContext(ctx,
		`SELECT `+reservationCols+` FROM reservations
		  WHERE user_id = ? AND status IN `+activeStatuses+` AND end_time > ?
		  ORDER BY start_time DESC LIMIT 1`,
		userID, now.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &res, nil
}

// HistoryForUserTx lists finished reservations (terminal, or whose window
// has passed), newest window first.
func (r *ReservationRepo) HistoryForUserTx(ctx context.Context, tx *sql.Tx, userID uint64, now time.Time, limit, offset int) ([]model.Reservation, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT `+reservationCols+` FROM reservations
		  WHERE user_id = ? AND (status IN ('expired','cancelled','completed') OR end_time <= ?)
		  ORDER BY start_time DESC
		  LIMIT ? OFFSET ?`,
		userID, now.UTC(), limit, offset)
	if err != nil {
		return nil, err
	}
	return scanReservations(rows)
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t.UTC(), Valid: true}
}
