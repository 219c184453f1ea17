package service

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/iliyamo/parking-reservation/internal/model"
	"github.com/iliyamo/parking-reservation/internal/repository"
)

// Bus publishes plain-text messages on named topics.  Delivery is not
// acknowledged.
type Bus interface {
	Publish(ctx context.Context, topic, payload string) error
}

// Message kinds, the last segment of a topic.
const (
	KindStatus            = "status"
	KindReservationStatus = "reservationStatus"
	KindConfirmedParkID   = "confirmedParkID"
	KindReset             = "reset"
	KindAlertStatus       = "alertStatus"
)

const publishTimeout = 3 * time.Second

// Topic names the topic for one kind of message about a space.
func Topic(spaceID uint64, kind string) string {
	return fmt.Sprintf("smartparking/slot%d/%s", spaceID, kind)
}

// EventKind is a committed transition that observers hear about.
type EventKind int

const (
	EventReserved EventKind = iota
	EventCheckedIn
	EventCancelled
	EventCompleted
	EventFreed
	EventSensorReport
)

// Event carries what is needed to render its messages.  State is the
// space state after the transition.
type Event struct {
	Kind    EventKind
	SpaceID uint64
	UserID  uint64
	State   model.SpaceState
}

// Message is one topic/payload pair.
type Message struct {
	Topic   string
	Payload string
}

// Messages renders the fixed topic convention for the event.
func (e Event) Messages() []Message {
	uid := strconv.FormatUint(e.UserID, 10)
	m := func(kind, payload string) Message { return Message{Topic: Topic(e.SpaceID, kind), Payload: payload} }
	switch e.Kind {
	case EventReserved:
		return []Message{m(KindReservationStatus, uid)}
	case EventCheckedIn:
		return []Message{
			m(KindStatus, string(model.SpaceOccupied)),
			m(KindConfirmedParkID, uid),
			m(KindReservationStatus, uid),
		}
	case EventCancelled:
		return []Message{
			m(KindStatus, string(e.State)),
			m(KindReservationStatus, "NONE"),
			m(KindConfirmedParkID, "NONE"),
		}
	case EventCompleted:
		return []Message{
			m(KindStatus, string(e.State)),
			m(KindReset, "true"),
		}
	case EventFreed:
		return []Message{m(KindStatus, string(e.State))}
	case EventSensorReport:
		switch e.State {
		case model.SpaceReserved:
			return []Message{m(KindReservationStatus, "reserved")}
		case model.SpaceOccupied:
			return []Message{m(KindConfirmedParkID, "occupied")}
		case model.SpaceUnauthorized:
			return []Message{m(KindAlertStatus, "ON")}
		case model.SpaceAvailable:
			return []Message{m(KindAlertStatus, "OFF")}
		}
	}
	return nil
}

// Project derives a space's state from its active reservations.  A
// checked-in reservation wins over a reserved one; reservations whose
// window has already ended are waiting for the sweep and do not count.
func Project(active []model.Reservation, now time.Time) model.SpaceState {
	state := model.SpaceAvailable
	for _, r := range active {
		if !r.Status.IsActive() || !r.EndTime.After(now) {
			continue
		}
		if r.Status == model.StatusCheckedIn {
			return model.SpaceOccupied
		}
		state = model.SpaceReserved
	}
	return state
}

// SpaceStateSynchronizer owns ParkingSpace.CurrentState.  Writes happen
// inside a unit of work; notifications go out after commit.
type SpaceStateSynchronizer struct {
	bus Bus
	log *slog.Logger
}

func NewSpaceStateSynchronizer(bus Bus, log *slog.Logger) *SpaceStateSynchronizer {
	return &SpaceStateSynchronizer{bus: bus, log: log.With("component", "spacesync")}
}

// Sync recomputes the projection for a space that the caller has already
// locked and stores it when it differs.
func (s *SpaceStateSynchronizer) Sync(ctx context.Context, tx repository.Tx, space model.ParkingSpace, now time.Time, source model.StateSource) (model.SpaceState, error) {
	active, err := tx.ActiveReservationsForSpace(ctx, space.ID)
	if err != nil {
		return "", err
	}
	next := Project(active, now)
	return next, s.Record(ctx, tx, space, next, source)
}

// Record writes state and its history row unless the space already has it.
func (s *SpaceStateSynchronizer) Record(ctx context.Context, tx repository.Tx, space model.ParkingSpace, state model.SpaceState, source model.StateSource) error {
	if space.CurrentState == state {
		return nil
	}
	if err := tx.SetSpaceState(ctx, space.ID, state); err != nil {
		return err
	}
	return tx.InsertSpaceHistory(ctx, model.SpaceStateChange{
		SpaceID:   space.ID,
		PrevState: space.CurrentState,
		NewState:  state,
		Source:    source,
	})
}

// Publish sends the messages for committed events.  Failures are logged
// and dropped.
func (s *SpaceStateSynchronizer) Publish(ctx context.Context, events ...Event) {
	if s.bus == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	for _, ev := range events {
		for _, msg := range ev.Messages() {
			if err := s.bus.Publish(ctx, msg.Topic, msg.Payload); err != nil {
				s.log.Warn("publish failed", "topic", msg.Topic, "err", err)
			}
		}
	}
}
