package models

import (
	"time"

	"github.com/google/uuid"
)

// HoldStatus is the lifecycle state of a seat hold.
type HoldStatus string

const (
	HoldActive    HoldStatus = "active"
	HoldConfirmed HoldStatus = "confirmed"
	HoldReleased  HoldStatus = "released"
	HoldExpired   HoldStatus = "expired"
)

// SeatHold records a temporary claim on a group of seats. The seat rows
// carry the authoritative holder and expiry; this record ties the group
// together so confirm, release and the expiry sweep act on all of its
// seats at once.
type SeatHold struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	TripID      uuid.UUID  `db:"trip_id" json:"trip_id"`
	SeatNumbers IntArray   `db:"seat_numbers" json:"seat_numbers"`
	Holder      string     `db:"holder" json:"holder"`
	Status      HoldStatus `db:"status" json:"status"`
	ExpiresAt   time.Time  `db:"expires_at" json:"expires_at"`
	BookingID   *uuid.UUID `db:"booking_id" json:"booking_id,omitempty"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time  `db:"updated_at" json:"updated_at"`
}

// ExpiredAt reports whether the hold's TTL has elapsed at the given instant.
func (h *SeatHold) ExpiredAt(now time.Time) bool {
	return !h.ExpiresAt.After(now)
}

// HoldSeatsRequest is the payload for placing a hold on a group of seats.
type HoldSeatsRequest struct {
	TripID      uuid.UUID `json:"trip_id" binding:"required"`
	SeatNumbers []int     `json:"seat_numbers" binding:"required,min=1,dive,min=1"`
}

// ConfirmHoldRequest identifies the hold to promote to booked. The hold may
// be named directly by ID, or matched by trip, seats and the caller's
// holder identity.
type ConfirmHoldRequest struct {
	HoldID      *uuid.UUID `json:"hold_id,omitempty"`
	TripID      uuid.UUID  `json:"trip_id" binding:"required"`
	SeatNumbers []int      `json:"seat_numbers" binding:"required,min=1,dive,min=1"`
	BookingID   *uuid.UUID `json:"booking_id,omitempty"`
}

// ReleaseSeatsRequest returns seats to available from an explicit prior
// state (held for cancellation before payment, booked for refunds).
type ReleaseSeatsRequest struct {
	TripID      uuid.UUID `json:"trip_id" binding:"required"`
	SeatNumbers []int     `json:"seat_numbers" binding:"required,min=1,dive,min=1"`
	From        SeatState `json:"from" binding:"required"`
}

// HoldSeatsResponse is returned after a successful hold.
type HoldSeatsResponse struct {
	HoldID      uuid.UUID `json:"hold_id"`
	TripID      uuid.UUID `json:"trip_id"`
	SeatNumbers []int     `json:"seat_numbers"`
	ExpiresAt   time.Time `json:"expires_at"`
}
