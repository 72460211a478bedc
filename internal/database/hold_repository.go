package database

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/swiftbus/booking-backend/internal/models"
)

// HoldRepository persists seat-hold records. The seat rows carry the
// authoritative per-seat state; these records group a hold's seats so the
// whole group can be confirmed, released or swept together.
type HoldRepository struct {
	db *sqlx.DB
}

// NewHoldRepository creates a new hold repository
func NewHoldRepository(db *sqlx.DB) *HoldRepository {
	return &HoldRepository{db: db}
}

// CreateHold inserts a new active hold record.
func (r *HoldRepository) CreateHold(ctx context.Context, hold *models.SeatHold) error {
	seats := append([]int(nil), hold.SeatNumbers...)
	sort.Ints(seats)
	hold.SeatNumbers = seats

	query := `
		INSERT INTO seat_holds (id, trip_id, seat_numbers, holder, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW(), NOW())`
	_, err := r.db.ExecContext(ctx, query,
		hold.ID, hold.TripID, hold.SeatNumbers, hold.Holder, hold.Status, hold.ExpiresAt)
	if err != nil {
		return storeError("create hold", err)
	}
	return nil
}

// GetHoldByID returns the hold with the given ID or ErrHoldNotFound.
func (r *HoldRepository) GetHoldByID(ctx context.Context, id uuid.UUID) (*models.SeatHold, error) {
	var hold models.SeatHold
	query := `
		SELECT id, trip_id, seat_numbers, holder, status, expires_at, booking_id, created_at, updated_at
		FROM seat_holds
		WHERE id = $1`
	if err := r.db.GetContext(ctx, &hold, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrHoldNotFound
		}
		return nil, storeError("get hold", err)
	}
	return &hold, nil
}

// FindActiveHold matches an active hold by trip, exact seat group and
// holder. Seat numbers are stored sorted, so array equality identifies the
// group.
func (r *HoldRepository) FindActiveHold(ctx context.Context, tripID uuid.UUID, seatNumbers []int, holder string) (*models.SeatHold, error) {
	seats := models.IntArray(append([]int(nil), seatNumbers...))
	sort.Ints(seats)

	var hold models.SeatHold
	query := `
		SELECT id, trip_id, seat_numbers, holder, status, expires_at, booking_id, created_at, updated_at
		FROM seat_holds
		WHERE trip_id = $1 AND seat_numbers = $2 AND holder = $3 AND status = 'active'
		ORDER BY created_at DESC
		LIMIT 1`
	if err := r.db.GetContext(ctx, &hold, query, tripID, seats, holder); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrHoldNotFound
		}
		return nil, storeError("find active hold", err)
	}
	return &hold, nil
}

// MarkConfirmed moves an active hold to confirmed and records the booking
// it was consumed by. Returns ErrHoldNotFound if the hold is no longer
// active.
func (r *HoldRepository) MarkConfirmed(ctx context.Context, id uuid.UUID, bookingID uuid.UUID) error {
	query := `
		UPDATE seat_holds
		SET status = 'confirmed', booking_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'active'`
	return r.updateActive(ctx, query, id, bookingID)
}

// MarkReleased moves an active hold to released.
func (r *HoldRepository) MarkReleased(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE seat_holds
		SET status = 'released', updated_at = NOW()
		WHERE id = $1 AND status = 'active'`
	return r.updateActive(ctx, query, id)
}

// MarkExpired moves an active hold to expired. A hold that was already
// swept is left untouched, so repeated sweeps are harmless.
func (r *HoldRepository) MarkExpired(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE seat_holds
		SET status = 'expired', updated_at = NOW()
		WHERE id = $1 AND status = 'active'`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return storeError("mark hold expired", err)
	}
	// Zero rows means another sweep or a confirm got there first.
	_, err = result.RowsAffected()
	if err != nil {
		return storeError("read affected rows", err)
	}
	return nil
}

func (r *HoldRepository) updateActive(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeError("update hold", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storeError("read affected rows", err)
	}
	if affected == 0 {
		return models.ErrHoldNotFound
	}
	return nil
}

// GetExpiredActiveHolds returns holds that are still marked active but whose
// expiry has passed, oldest first.
func (r *HoldRepository) GetExpiredActiveHolds(ctx context.Context, asOf time.Time, limit int) ([]models.SeatHold, error) {
	holds := []models.SeatHold{}
	query := `
		SELECT id, trip_id, seat_numbers, holder, status, expires_at, booking_id, created_at, updated_at
		FROM seat_holds
		WHERE status = 'active' AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2`
	if err := r.db.SelectContext(ctx, &holds, query, asOf, limit); err != nil {
		return nil, storeError("get expired holds", err)
	}
	return holds, nil
}
