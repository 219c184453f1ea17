package model

import "time"

// SpaceState is the observable state of a parking space.
type SpaceState string

const (
	SpaceAvailable    SpaceState = "available"
	SpaceReserved     SpaceState = "reserved"
	SpaceOccupied     SpaceState = "occupied"
	SpaceUnauthorized SpaceState = "unauthorized"
)

// Valid reports whether s is one of the known states.
func (s SpaceState) Valid() bool {
	switch s {
	case SpaceAvailable, SpaceReserved, SpaceOccupied, SpaceUnauthorized:
		return true
	}
	return false
}

// StateSource names the writer that produced a state change.
type StateSource string

const (
	SourceReservation StateSource = "reservation"
	SourceSensor      StateSource = "sensor"
	SourceSweep       StateSource = "sweep"
)

// ParkingSpace mirrors the parking_spaces table.  CurrentState is a
// projection of the space's active reservations, except for
// "unauthorized" which only a sensor report can set.
type ParkingSpace struct {
	ID           uint64     // parking_spaces.id
	SpaceNumber  string     // parking_spaces.space_number
	CurrentState SpaceState // parking_spaces.current_state
	UpdatedAt    time.Time  // parking_spaces.updated_at
}

// SpaceStateChange is one row of the space_state_history audit table.
type SpaceStateChange struct {
	ID        uint64      // space_state_history.id
	SpaceID   uint64      // space_state_history.space_id
	PrevState SpaceState  // space_state_history.prev_state
	NewState  SpaceState  // space_state_history.new_state
	Source    StateSource // space_state_history.source
	CreatedAt time.Time   // space_state_history.created_at
}
