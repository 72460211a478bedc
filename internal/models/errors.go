package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ============================================================================
// RESERVATION ERROR TAXONOMY
// ============================================================================

var (
	// ErrTripNotFound is returned when the requested trip does not exist.
	ErrTripNotFound = errors.New("trip not found")

	// ErrTripDeparted is returned when a reservation is attempted against a
	// trip whose departure time has already passed.
	ErrTripDeparted = errors.New("trip has already departed")

	// ErrHoldNotFound is returned when a confirm or release references a hold
	// that does not exist, belongs to a different holder, or was already
	// consumed.
	ErrHoldNotFound = errors.New("hold not found")

	// ErrHoldExpired is returned when a confirm arrives after the hold's
	// expiry. The held seats are released back to available as part of
	// handling this failure.
	ErrHoldExpired = errors.New("hold has expired")

	// ErrInvalidTransition is returned when a release names seats whose
	// current state does not match the expected prior state.
	ErrInvalidTransition = errors.New("invalid seat state transition")

	// ErrAlreadyInitialized is returned when seat initialization runs twice
	// for the same trip.
	ErrAlreadyInitialized = errors.New("seat inventory already initialized for trip")

	// ErrStoreUnavailable wraps storage-level failures so callers can
	// distinguish an unreachable database from a domain rejection.
	ErrStoreUnavailable = errors.New("storage unavailable")

	// ErrTooManySeats is returned when a hold requests more seats than the
	// configured per-booking maximum.
	ErrTooManySeats = errors.New("requested seat count exceeds per-booking maximum")

	// ErrDuplicateSeats is returned when a hold request names the same seat
	// number more than once.
	ErrDuplicateSeats = errors.New("duplicate seat numbers in request")

	// ErrSeatOutOfRange is returned when a requested seat number falls
	// outside the trip's seat capacity.
	ErrSeatOutOfRange = errors.New("seat number out of range for trip")
)

// SeatConflictError reports which seats prevented an all-or-nothing
// transition from applying. No seats are modified when it is returned.
type SeatConflictError struct {
	TripID      string
	SeatNumbers []int
}

func (e *SeatConflictError) Error() string {
	nums := make([]string, len(e.SeatNumbers))
	for i, n := range e.SeatNumbers {
		nums[i] = strconv.Itoa(n)
	}
	return fmt.Sprintf("seats not available: %s", strings.Join(nums, ", "))
}

// IsSeatConflict reports whether err is (or wraps) a SeatConflictError and
// returns it when so.
func IsSeatConflict(err error) (*SeatConflictError, bool) {
	var conflict *SeatConflictError
	if errors.As(err, &conflict) {
		return conflict, true
	}
	return nil, false
}
