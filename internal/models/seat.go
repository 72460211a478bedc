package models

import (
	"time"

	"github.com/google/uuid"
)

// SeatState is the lifecycle state of a single seat on a trip.
type SeatState string

const (
	SeatAvailable SeatState = "available"
	SeatHeld      SeatState = "held"
	SeatBooked    SeatState = "booked"
)

// Valid reports whether s is one of the known seat states.
func (s SeatState) Valid() bool {
	switch s {
	case SeatAvailable, SeatHeld, SeatBooked:
		return true
	}
	return false
}

// Seat is one row of a trip's seat inventory. Seats are created once per
// trip and only ever change state; they are never deleted.
type Seat struct {
	ID            uuid.UUID  `db:"id" json:"id"`
	TripID        uuid.UUID  `db:"trip_id" json:"trip_id"`
	SeatNumber    int        `db:"seat_number" json:"seat_number"`
	State         SeatState  `db:"state" json:"state"`
	Holder        *string    `db:"holder" json:"holder,omitempty"`
	HoldExpiresAt *time.Time `db:"hold_expires_at" json:"hold_expires_at,omitempty"`
	BookingID     *uuid.UUID `db:"booking_id" json:"booking_id,omitempty"`
	Version       int64      `db:"version" json:"version"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
}

// EffectiveState resolves the seat's state at the given instant. A held seat
// whose hold expiry has passed is reported as available even if the sweeper
// has not flipped the row yet.
func (s *Seat) EffectiveState(now time.Time) SeatState {
	if s.State == SeatHeld && s.HoldExpiresAt != nil && !s.HoldExpiresAt.After(now) {
		return SeatAvailable
	}
	return s.State
}

// SeatView is the per-seat entry in an availability snapshot.
type SeatView struct {
	SeatNumber int       `json:"seat_number"`
	State      SeatState `json:"state"`
}

// TripAvailability is a consistent snapshot of a trip's seat map. The count
// and the per-seat states are computed from the same read so they always
// agree with each other.
type TripAvailability struct {
	TripID         uuid.UUID  `json:"trip_id"`
	AvailableSeats int        `json:"available_seats"`
	Seats          []SeatView `json:"seats"`
	AsOf           time.Time  `json:"as_of"`
}
