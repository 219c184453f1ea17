package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/iliyamo/parking-reservation/internal/apperr"
	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/repository"
)

// ConflictDetector answers slot availability from reservation rows and
// retires reservations whose window has passed.
type ConflictDetector struct {
	store  repository.Store
	spaces *SpaceStateSynchronizer
	now    func() time.Time
	log    *slog.Logger
}

func NewConflictDetector(store repository.Store, spaces *SpaceStateSynchronizer, now func() time.Time, log *slog.Logger) *ConflictDetector {
	if now == nil {
		now = time.Now
	}
	return &ConflictDetector{store: store, spaces: spaces, now: now, log: log.With("component", "conflict")}
}

// HasOverlap reports whether an active reservation of the space intersects
// [start, end).  Call it with the space row locked.
func (d *ConflictDetector) HasOverlap(ctx context.Context, tx repository.Tx, spaceID uint64, start, end time.Time) (bool, error) {
	return tx.HasOverlap(ctx, spaceID, start, end)
}

// SpaceChange is a derived state written by the sweep.
type SpaceChange struct {
	SpaceID uint64
	State   model.SpaceState
}

// SweepResult lists what one sweep changed.
type SweepResult struct {
	Expired []model.Reservation
	Spaces  []SpaceChange
}

// ExpirySweep expires active reservations whose end has passed and
// re-projects every space that lost its covering reservation.  It only
// touches rows that still qualify, so concurrent or repeated sweeps
// converge on the same state.
func (d *ConflictDetector) ExpirySweep(ctx context.Context) (SweepResult, error) {
	now := d.now().UTC()
	var res SweepResult
	err := d.store.WithTx(ctx, func(tx repository.Tx) error {
		res = SweepResult{}
		expired, err := tx.ExpireOverdue(ctx, now)
		if err != nil {
			return err
		}
		res.Expired = expired

		idle, err := tx.IdleSpaces(ctx, now)
		if err != nil {
			return err
		}
		candidates := make([]uint64, 0, len(idle)+len(expired))
		seen := make(map[uint64]bool)
		for _, sp := range idle {
			if !seen[sp.ID] {
				seen[sp.ID] = true
				candidates = append(candidates, sp.ID)
			}
		}
		for _, r := range expired {
			if !seen[r.SpaceID] {
				seen[r.SpaceID] = true
				candidates = append(candidates, r.SpaceID)
			}
		}

		for _, id := range candidates {
			space, err := tx.LockSpace(ctx, id)
			if errors.Is(err, repository.ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			prev := space.CurrentState
			next, err := d.spaces.Sync(ctx, tx, space, now, model.SourceSweep)
			if err != nil {
				return err
			}
			if next != prev {
				res.Spaces = append(res.Spaces, SpaceChange{SpaceID: id, State: next})
			}
		}
		return nil
	})
	if err != nil {
		err = apperr.Wrap(err)
		d.log.Error("expiry sweep failed", "err", err)
		return SweepResult{}, err
	}

	events := make([]Event, 0, len(res.Spaces))
	for _, ch := range res.Spaces {
		events = append(events, Event{Kind: EventFreed, SpaceID: ch.SpaceID, State: ch.State})
	}
	d.spaces.Publish(ctx, events...)
	if len(res.Expired) > 0 || len(res.Spaces) > 0 {
		d.log.Info("expiry sweep", "expired", len(res.Expired), "spaces", len(res.Spaces))
	}
	return res, nil
}
