package database

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/swiftbus/booking-backend/internal/models"
)

// TripRepository manages the trip catalog.
type TripRepository struct {
	db *sqlx.DB
}

// NewTripRepository creates a new trip repository
func NewTripRepository(db *sqlx.DB) *TripRepository {
	return &TripRepository{db: db}
}

const tripColumns = `id, bus_name, from_city, to_city, departure_time, arrival_time,
	seat_capacity, fare, available_seats, status, created_at, updated_at`

// CreateTrip inserts a new trip and its seat inventory in one transaction.
// The seat rows exist from the moment the trip does, so there is no window
// where a trip can be booked without an inventory.
func (r *TripRepository) CreateTrip(ctx context.Context, trip *models.Trip) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return storeError("begin transaction", err)
	}
	defer tx.Rollback()

	query := `
		INSERT INTO trips (id, bus_name, from_city, to_city, departure_time, arrival_time,
		                   seat_capacity, fare, available_seats, status, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW(), NOW())`
	_, err = tx.ExecContext(ctx, query,
		trip.ID, trip.BusName, trip.FromCity, trip.ToCity, trip.DepartureTime, trip.ArrivalTime,
		trip.SeatCapacity, trip.Fare, trip.SeatCapacity, models.TripScheduled)
	if err != nil {
		return storeError("insert trip", err)
	}

	if err := initializeSeatsTx(ctx, tx, trip.ID, trip.SeatCapacity); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return storeError("commit trip creation", err)
	}

	trip.AvailableSeats = trip.SeatCapacity
	trip.Status = models.TripScheduled
	return nil
}

// GetTripByID returns the trip with the given ID or ErrTripNotFound.
func (r *TripRepository) GetTripByID(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	var trip models.Trip
	query := `SELECT ` + tripColumns + ` FROM trips WHERE id = $1`
	if err := r.db.GetContext(ctx, &trip, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, models.ErrTripNotFound
		}
		return nil, storeError("get trip", err)
	}
	return &trip, nil
}

// SearchTrips returns scheduled trips between two cities on a travel date
// that still have seats on the market, soonest departure first. The search
// reads the denormalized available-seats counter; the seat map endpoint is
// the authoritative per-seat view.
func (r *TripRepository) SearchTrips(ctx context.Context, q models.TripSearchQuery) ([]models.Trip, error) {
	dayStart := time.Date(q.TravelDate.Year(), q.TravelDate.Month(), q.TravelDate.Day(), 0, 0, 0, 0, q.TravelDate.Location())
	dayEnd := dayStart.Add(24 * time.Hour)

	trips := []models.Trip{}
	query := `
		SELECT ` + tripColumns + `
		FROM trips
		WHERE from_city ILIKE $1 AND to_city ILIKE $2
		  AND departure_time >= $3 AND departure_time < $4
		  AND status = 'scheduled' AND available_seats > 0
		ORDER BY departure_time ASC`
	if err := r.db.SelectContext(ctx, &trips, query, q.FromCity, q.ToCity, dayStart, dayEnd); err != nil {
		return nil, storeError("search trips", err)
	}
	return trips, nil
}
