package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/parking-reservation/internal/model"
)

// SpaceRepo manages parking_spaces and the space_state_history audit table.
type SpaceRepo struct {
	db *sql.DB
}

func NewSpaceRepo(db *sql.DB) *SpaceRepo { return &SpaceRepo{db: db} }

// DB exposes the underlying handle so callers can start transactions.
func (r *SpaceRepo) DB() *sql.DB { return r.db }

// LockTx loads a space and holds its row lock until the transaction ends.
// All reservation writes for a space serialize on this lock.
func (r *SpaceRepo) LockTx(ctx context.Context, tx *sql.Tx, id uint64) (model.ParkingSpace, error) {
	var (
		s     model.ParkingSpace
		state string
	)
	err := tx.QueryRowContext(ctx,
		"SELECT id, space_number, current_state, updated_at FROM parking_spaces WHERE id = ? FOR UPDATE",
		id).Scan(&s.ID, &s.SpaceNumber, &state, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ParkingSpace{}, ErrNotFound
	}
	if err != nil {
		return model.ParkingSpace{}, err
	}
	s.CurrentState = model.SpaceState(state)
	return s, nil
}

// SetStateTx overwrites current_state.
func (r *SpaceRepo) SetStateTx(ctx context.Context, tx *sql.Tx, id uint64, state model.SpaceState) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE parking_spaces SET current_state = ?, updated_at = ? WHERE id = ?",
		string(state), time.Now().UTC(), id)
	return err
}

// InsertHistoryTx appends one state change to the audit table.
func (r *SpaceRepo) InsertHistoryTx(ctx context.Context, tx *sql.Tx, ch model.SpaceStateChange) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO space_state_history (space_id, prev_state, new_state, source, created_at)
		 VALUES (?,?,?,?,?)`,
		ch.SpaceID, string(ch.PrevState), string(ch.NewState), string(ch.Source), time.Now().UTC())
	return err
}

// IdleTx lists spaces that are not available although no active
// reservation still covers them.  The result is a candidate list; callers
// re-check each space under its row lock before freeing it.
func (r *SpaceRepo) IdleTx(ctx context.Context, tx *sql.Tx, now time.Time) ([]model.ParkingSpace, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT p.id, p.space_number, p.current_state, p.updated_at
		   FROM parking_spaces p
		  WHERE p.current_state <> 'available'
		    AND NOT EXISTS (
		          SELECT 1 FROM reservations r
		           WHERE r.space_id = p.id
		             AND r.status IN `+activeStatuses+`
		             AND r.end_time > ?)
		  ORDER BY p.id`,
		now.UTC())
	if err != nil {
		return nil, err
	}
	return scanSpaces(rows)
}

// CreateTx inserts an available space and sets its ID.  A taken space
// number reports ErrDuplicate.
func (r *SpaceRepo) CreateTx(ctx context.Context, tx *sql.Tx, sp *model.ParkingSpace) error {
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx,
		"INSERT INTO parking_spaces (space_number, current_state, updated_at) VALUES (?, 'available', ?)",
		sp.SpaceNumber, now)
	if isDuplicate(err) {
		return ErrDuplicate
	}
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	sp.ID = uint64(id)
	sp.CurrentState = model.SpaceAvailable
	sp.UpdatedAt = now
	return nil
}

// ListTx returns every space ordered by space number.
func (r *SpaceRepo) ListTx(ctx context.Context, tx *sql.Tx) ([]model.ParkingSpace, error) {
	rows, err := tx.QueryContext(ctx,
		"SELECT id, space_number, current_state, updated_at FROM parking_spaces ORDER BY space_number, id")
	if err != nil {
		return nil, err
	}
	return scanSpaces(rows)
}

func scanSpaces(rows *sql.Rows) ([]model.ParkingSpace, error) {
	defer rows.Close()
	var out []model.ParkingSpace
	for rows.Next() {
		var (
			s     model.ParkingSpace
			state string
		)
		if err := rows.Scan(&s.ID, &s.SpaceNumber, &state, &s.UpdatedAt); err != nil {
			return nil, err
		}
		s.CurrentState = model.SpaceState(state)
		out = append(out, s)
	}
	return out, rows.Err()
}
