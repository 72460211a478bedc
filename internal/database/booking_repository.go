package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/swiftbus/booking-backend/internal/models"
)

// BookingRepository handles database operations for the bookings table
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `id, booking_reference, holder, trip_id, seat_numbers, passengers,
	total_price, status, payment_id, notes, created_at, updated_at`

// CreateBooking inserts a new booking record.
func (r *BookingRepository) CreateBooking(ctx context.Context, b *models.Booking) error {
	query := `
		INSERT INTO bookings (id, booking_reference, holder, trip_id, seat_numbers, passengers,
		                      total_price, status, payment_id, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())`
	_, err := r.db.ExecContext(ctx, query,
		b.ID, b.BookingReference, b.Holder, b.TripID, b.SeatNumbers, b.Passengers,
		b.TotalPrice, b.Status, b.PaymentID, b.Notes)
	if err != nil {
		return storeError("create booking", err)
	}
	return nil
}

// GetBookingByID returns the booking with the given ID.
func (r *BookingRepository) GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	var b models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = $1`
	if err := r.db.GetContext(ctx, &b, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("booking not found: %s", id)
		}
		return nil, storeError("get booking", err)
	}
	return &b, nil
}

// GetBookingByReference returns the booking with the given customer-facing
// reference.
func (r *BookingRepository) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	var b models.Booking
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE booking_reference = $1`
	if err := r.db.GetContext(ctx, &b, query, reference); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("booking not found: %s", reference)
		}
		return nil, storeError("get booking by reference", err)
	}
	return &b, nil
}

// ListBookingsByHolder returns a holder's bookings, newest first.
func (r *BookingRepository) ListBookingsByHolder(ctx context.Context, holder string, limit, offset int) ([]models.Booking, error) {
	bookings := []models.Booking{}
	query := `
		SELECT ` + bookingColumns + `
		FROM bookings
		WHERE holder = $1
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3`
	if err := r.db.SelectContext(ctx, &bookings, query, holder, limit, offset); err != nil {
		return nil, storeError("list bookings", err)
	}
	return bookings, nil
}

// MarkConfirmed moves a pending booking to confirmed and records the
// payment that settled it.
func (r *BookingRepository) MarkConfirmed(ctx context.Context, id uuid.UUID, paymentID string) error {
	query := `
		UPDATE bookings
		SET status = 'confirmed', payment_id = $2, updated_at = NOW()
		WHERE id = $1 AND status = 'pending'`
	return r.guardedUpdate(ctx, query, id, paymentID)
}

// MarkCancelled moves a pending or confirmed booking to cancelled.
func (r *BookingRepository) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	query := `
		UPDATE bookings
		SET status = 'cancelled', updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'confirmed')`
	return r.guardedUpdate(ctx, query, id)
}

func (r *BookingRepository) guardedUpdate(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return storeError("update booking", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return storeError("read affected rows", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: booking is not in a state that allows this update", models.ErrInvalidTransition)
	}
	return nil
}
