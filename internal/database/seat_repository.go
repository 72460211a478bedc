package database

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/swiftbus/booking-backend/internal/models"
)

// SeatRepository owns the seat inventory of every trip. All state changes go
// through Transition, which locks the affected rows, verifies every seat is
// in the expected state, applies the change to all of them and recomputes
// the trip's available-seat count inside one transaction. Seats are created
// once per trip and never deleted.
type SeatRepository struct {
	db *sqlx.DB
}

// NewSeatRepository creates a new seat repository
func NewSeatRepository(db *sqlx.DB) *SeatRepository {
	return &SeatRepository{db: db}
}

// TransitionParams describes one atomic all-or-nothing state change for a
// group of seats on a trip.
type TransitionParams struct {
	TripID      uuid.UUID
	SeatNumbers []int
	Expected    models.SeatState
	Next        models.SeatState
	Holder      *string    // holder recorded on the seats when Next is held or booked
	MatchHolder *string    // current holder the seats must carry when Expected is held or booked
	ExpiresAt   *time.Time // hold expiry recorded when Next is held
	BookingID   *uuid.UUID // booking recorded when Next is booked

	// RequireLiveHold makes Expected=held fail with ErrHoldExpired when the
	// hold's expiry has passed. ReleaseOnExpired additionally flips the whole
	// group back to available in the same transaction before returning the
	// error, so a late confirm frees the seats immediately.
	RequireLiveHold  bool
	ReleaseOnExpired bool
}

const lockSeatsQuery = `
	SELECT seat_number, state, holder, hold_expires_at
	FROM trip_seats
	WHERE trip_id = $1 AND seat_number = ANY($2)
	ORDER BY seat_number
	FOR UPDATE`

const tripExistsQuery = `SELECT EXISTS(SELECT 1 FROM trips WHERE id = $1)`

const recomputeAvailableQuery = `
	UPDATE trips
	SET available_seats = (
		SELECT COUNT(*) FROM trip_seats
		WHERE trip_id = $1 AND state = 'available'
	), updated_at = NOW()
	WHERE id = $1`

const holdSeatsQuery = `
	UPDATE trip_seats
	SET state = 'held', holder = $3, hold_expires_at = $4, booking_id = NULL,
	    version = version + 1, updated_at = NOW()
	WHERE trip_id = $1 AND seat_number = ANY($2)`

const bookSeatsQuery = `
	UPDATE trip_seats
	SET state = 'booked', holder = $3, hold_expires_at = NULL, booking_id = $4,
	    version = version + 1, updated_at = NOW()
	WHERE trip_id = $1 AND seat_number = ANY($2)`

const releaseSeatsQuery = `
	UPDATE trip_seats
	SET state = 'available', holder = NULL, hold_expires_at = NULL, booking_id = NULL,
	    version = version + 1, updated_at = NOW()
	WHERE trip_id = $1 AND seat_number = ANY($2)`

type seatLockRow struct {
	SeatNumber    int              `db:"seat_number"`
	State         models.SeatState `db:"state"`
	Holder        *string          `db:"holder"`
	HoldExpiresAt *time.Time       `db:"hold_expires_at"`
}

func (r seatLockRow) holdExpired(now time.Time) bool {
	return r.HoldExpiresAt != nil && !r.HoldExpiresAt.After(now)
}

// InitializeSeats creates the seat rows for a trip, numbered 1..capacity,
// all available. Running it twice for the same trip fails with
// ErrAlreadyInitialized.
func (r *SeatRepository) InitializeSeats(ctx context.Context, tripID uuid.UUID, capacity int) error {
	if capacity < 1 {
		return fmt.Errorf("seat capacity must be at least 1, got %d", capacity)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return storeError("begin transaction", err)
	}
	defer tx.Rollback()

	if err := initializeSeatsTx(ctx, tx, tripID, capacity); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storeError("commit seat initialization", err)
	}
	return nil
}

// initializeSeatsTx is shared with trip creation so a new trip and its seat
// rows land in one transaction.
func initializeSeatsTx(ctx context.Context, tx *sqlx.Tx, tripID uuid.UUID, capacity int) error {
	var exists bool
	if err := tx.GetContext(ctx, &exists, tripExistsQuery, tripID); err != nil {
		return storeError("check trip", err)
	}
	if !exists {
		return models.ErrTripNotFound
	}

	var seatCount int
	if err := tx.GetContext(ctx, &seatCount,
		`SELECT COUNT(*) FROM trip_seats WHERE trip_id = $1`, tripID); err != nil {
		return storeError("count existing seats", err)
	}
	if seatCount > 0 {
		return models.ErrAlreadyInitialized
	}

	insertQuery := `
		INSERT INTO trip_seats (id, trip_id, seat_number, state, version, created_at, updated_at)
		SELECT gen_random_uuid(), $1, gs, 'available', 1, NOW(), NOW()
		FROM generate_series(1, $2) AS gs`
	if _, err := tx.ExecContext(ctx, insertQuery, tripID, capacity); err != nil {
		return storeError("insert seat rows", err)
	}

	if _, err := tx.ExecContext(ctx, recomputeAvailableQuery, tripID); err != nil {
		return storeError("update available seat count", err)
	}
	return nil
}

// GetSeats returns all seat rows for a trip ordered by seat number.
func (r *SeatRepository) GetSeats(ctx context.Context, tripID uuid.UUID) ([]models.Seat, error) {
	seats := []models.Seat{}
	query := `
		SELECT id, trip_id, seat_number, state, holder, hold_expires_at, booking_id,
		       version, created_at, updated_at
		FROM trip_seats
		WHERE trip_id = $1
		ORDER BY seat_number`
	if err := r.db.SelectContext(ctx, &seats, query, tripID); err != nil {
		return nil, storeError("get seats", err)
	}
	if len(seats) == 0 {
		var exists bool
		if err := r.db.GetContext(ctx, &exists, tripExistsQuery, tripID); err != nil {
			return nil, storeError("check trip", err)
		}
		if !exists {
			return nil, models.ErrTripNotFound
		}
	}
	return seats, nil
}

// GetAvailability returns a snapshot of the trip's seat map. Held seats
// whose expiry has passed are reported as available, and the count is taken
// from the same rows as the per-seat states so the two always agree.
func (r *SeatRepository) GetAvailability(ctx context.Context, tripID uuid.UUID) (*models.TripAvailability, error) {
	seats, err := r.GetSeats(ctx, tripID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	snapshot := &models.TripAvailability{
		TripID: tripID,
		Seats:  make([]models.SeatView, 0, len(seats)),
		AsOf:   now,
	}
	for i := range seats {
		state := seats[i].EffectiveState(now)
		if state == models.SeatAvailable {
			snapshot.AvailableSeats++
		}
		snapshot.Seats = append(snapshot.Seats, models.SeatView{
			SeatNumber: seats[i].SeatNumber,
			State:      state,
		})
	}
	return snapshot, nil
}

// Transition applies one state change to a group of seats. Either every seat
// moves or none does: the rows are locked in seat-number order, each is
// checked against the expected state, and any mismatch aborts the whole
// group with a SeatConflictError naming the offending seats. A held seat
// whose expiry has passed counts as available when Expected is available, so
// a new holder can take over seats the sweeper has not reached yet.
func (r *SeatRepository) Transition(ctx context.Context, p TransitionParams) error {
	if len(p.SeatNumbers) == 0 {
		return fmt.Errorf("no seat numbers specified")
	}
	if !p.Expected.Valid() || !p.Next.Valid() {
		return models.ErrInvalidTransition
	}

	seats := append([]int(nil), p.SeatNumbers...)
	sort.Ints(seats)

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return storeError("begin transaction", err)
	}
	defer tx.Rollback()

	rows := []seatLockRow{}
	if err := tx.SelectContext(ctx, &rows, lockSeatsQuery, p.TripID, pq.Array(seats)); err != nil {
		return storeError("lock seat rows", err)
	}

	if len(rows) != len(seats) {
		var exists bool
		if err := tx.GetContext(ctx, &exists, tripExistsQuery, p.TripID); err != nil {
			return storeError("check trip", err)
		}
		if !exists {
			return models.ErrTripNotFound
		}
		return &models.SeatConflictError{
			TripID:      p.TripID.String(),
			SeatNumbers: missingSeatNumbers(seats, rows),
		}
	}

	now := time.Now().UTC()
	var conflicts []int
	expiredHold := false
	for _, row := range rows {
		if transitionAllowed(row, p, now) {
			continue
		}
		if p.Expected == models.SeatHeld && p.RequireLiveHold &&
			row.State == models.SeatHeld && holderMatches(row.Holder, p.MatchHolder) &&
			row.holdExpired(now) {
			expiredHold = true
			continue
		}
		conflicts = append(conflicts, row.SeatNumber)
	}

	if len(conflicts) > 0 {
		return &models.SeatConflictError{TripID: p.TripID.String(), SeatNumbers: conflicts}
	}

	if expiredHold {
		if !p.ReleaseOnExpired {
			return models.ErrHoldExpired
		}
		// The hold is dead, so free the whole group while we still hold the
		// row locks.
		if _, err := tx.ExecContext(ctx, releaseSeatsQuery, p.TripID, pq.Array(seats)); err != nil {
			return storeError("release expired seats", err)
		}
		if _, err := tx.ExecContext(ctx, recomputeAvailableQuery, p.TripID); err != nil {
			return storeError("update available seat count", err)
		}
		if err := tx.Commit(); err != nil {
			return storeError("commit expired hold release", err)
		}
		return models.ErrHoldExpired
	}

	switch p.Next {
	case models.SeatHeld:
		if p.Holder == nil || p.ExpiresAt == nil {
			return fmt.Errorf("holder and expiry are required to hold seats")
		}
		if _, err := tx.ExecContext(ctx, holdSeatsQuery, p.TripID, pq.Array(seats), *p.Holder, *p.ExpiresAt); err != nil {
			return storeError("hold seats", err)
		}
	case models.SeatBooked:
		holder := p.Holder
		if holder == nil {
			holder = p.MatchHolder
		}
		if holder == nil || p.BookingID == nil {
			return fmt.Errorf("holder and booking id are required to book seats")
		}
		if _, err := tx.ExecContext(ctx, bookSeatsQuery, p.TripID, pq.Array(seats), *holder, *p.BookingID); err != nil {
			return storeError("book seats", err)
		}
	case models.SeatAvailable:
		if _, err := tx.ExecContext(ctx, releaseSeatsQuery, p.TripID, pq.Array(seats)); err != nil {
			return storeError("release seats", err)
		}
	}

	if _, err := tx.ExecContext(ctx, recomputeAvailableQuery, p.TripID); err != nil {
		return storeError("update available seat count", err)
	}

	if err := tx.Commit(); err != nil {
		return storeError("commit seat transition", err)
	}
	return nil
}

// ReleaseExpired frees the seats of one expired hold. Only rows that are
// still held by the given holder with a past expiry are touched, so a seat
// that a new holder already took over is left alone. Safe to call more than
// once for the same hold.
func (r *SeatRepository) ReleaseExpired(ctx context.Context, tripID uuid.UUID, holder string, seatNumbers []int) (int, error) {
	query := `
		UPDATE trip_seats
		SET state = 'available', holder = NULL, hold_expires_at = NULL, booking_id = NULL,
		    version = version + 1, updated_at = NOW()
		WHERE trip_id = $1 AND seat_number = ANY($2)
		  AND state = 'held' AND holder = $3 AND hold_expires_at <= NOW()`
	return r.releaseExpiredWhere(ctx, tripID, query, tripID, pq.Array(seatNumbers), holder)
}

// SweepTripExpired frees every expired held seat on a trip regardless of
// holder. Used by the sweeper to clean up holds whose records were lost.
func (r *SeatRepository) SweepTripExpired(ctx context.Context, tripID uuid.UUID) (int, error) {
	query := `
		UPDATE trip_seats
		SET state = 'available', holder = NULL, hold_expires_at = NULL, booking_id = NULL,
		    version = version + 1, updated_at = NOW()
		WHERE trip_id = $1 AND state = 'held' AND hold_expires_at <= NOW()`
	return r.releaseExpiredWhere(ctx, tripID, query, tripID)
}

func (r *SeatRepository) releaseExpiredWhere(ctx context.Context, tripID uuid.UUID, query string, args ...interface{}) (int, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, storeError("begin transaction", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, storeError("release expired seats", err)
	}
	released, err := result.RowsAffected()
	if err != nil {
		return 0, storeError("read released row count", err)
	}

	if released > 0 {
		if _, err := tx.ExecContext(ctx, recomputeAvailableQuery, tripID); err != nil {
			return 0, storeError("update available seat count", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, storeError("commit expired seat release", err)
	}
	return int(released), nil
}

// ListTripsWithExpiredHolds returns the trips that still carry held seats
// with a past expiry.
func (r *SeatRepository) ListTripsWithExpiredHolds(ctx context.Context) ([]uuid.UUID, error) {
	tripIDs := []uuid.UUID{}
	query := `
		SELECT DISTINCT trip_id FROM trip_seats
		WHERE state = 'held' AND hold_expires_at <= NOW()`
	if err := r.db.SelectContext(ctx, &tripIDs, query); err != nil {
		return nil, storeError("list trips with expired holds", err)
	}
	return tripIDs, nil
}

func transitionAllowed(row seatLockRow, p TransitionParams, now time.Time) bool {
	switch p.Expected {
	case models.SeatAvailable:
		if row.State == models.SeatAvailable {
			return true
		}
		// Logical expiry: an expired hold no longer protects the seat.
		return row.State == models.SeatHeld && row.holdExpired(now)
	case models.SeatHeld:
		if row.State != models.SeatHeld || !holderMatches(row.Holder, p.MatchHolder) {
			return false
		}
		if p.RequireLiveHold && row.holdExpired(now) {
			return false
		}
		return true
	case models.SeatBooked:
		return row.State == models.SeatBooked && holderMatches(row.Holder, p.MatchHolder)
	}
	return false
}

func holderMatches(current *string, expected *string) bool {
	if expected == nil {
		return true
	}
	return current != nil && *current == *expected
}

func missingSeatNumbers(requested []int, rows []seatLockRow) []int {
	found := make(map[int]bool, len(rows))
	for _, row := range rows {
		found[row.SeatNumber] = true
	}
	var missing []int
	for _, n := range requested {
		if !found[n] {
			missing = append(missing, n)
		}
	}
	return missing
}

func storeError(op string, err error) error {
	return fmt.Errorf("failed to %s: %v: %w", op, err, models.ErrStoreUnavailable)
}
