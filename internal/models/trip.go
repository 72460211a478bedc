package models

import (
	"time"

	"github.com/google/uuid"
)

// TripStatus is the lifecycle state of a scheduled trip.
type TripStatus string

const (
	TripScheduled TripStatus = "scheduled"
	TripDeparted  TripStatus = "departed"
	TripArrived   TripStatus = "arrived"
	TripCancelled TripStatus = "cancelled"
)

// Trip is a scheduled bus departure with a fixed seat capacity. The
// available_seats column is a denormalized count maintained inside the same
// transaction as every seat mutation; the seat rows remain the source of
// truth.
type Trip struct {
	ID             uuid.UUID  `db:"id" json:"id"`
	BusName        string     `db:"bus_name" json:"bus_name"`
	FromCity       string     `db:"from_city" json:"from_city"`
	ToCity         string     `db:"to_city" json:"to_city"`
	DepartureTime  time.Time  `db:"departure_time" json:"departure_time"`
	ArrivalTime    time.Time  `db:"arrival_time" json:"arrival_time"`
	SeatCapacity   int        `db:"seat_capacity" json:"seat_capacity"`
	Fare           float64    `db:"fare" json:"fare"`
	AvailableSeats int        `db:"available_seats" json:"available_seats"`
	Status         TripStatus `db:"status" json:"status"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updated_at"`
}

// Departed reports whether the trip's departure time has passed.
func (t *Trip) Departed(now time.Time) bool {
	return !t.DepartureTime.After(now)
}

// CreateTripRequest is the payload for scheduling a new trip.
type CreateTripRequest struct {
	BusName       string    `json:"bus_name" binding:"required"`
	FromCity      string    `json:"from_city" binding:"required"`
	ToCity        string    `json:"to_city" binding:"required"`
	DepartureTime time.Time `json:"departure_time" binding:"required"`
	ArrivalTime   time.Time `json:"arrival_time" binding:"required"`
	SeatCapacity  int       `json:"seat_capacity" binding:"required,min=1,max=100"`
	Fare          float64   `json:"fare" binding:"required,gt=0"`
}

// TripSearchQuery holds the filters for the public trip search.
type TripSearchQuery struct {
	FromCity   string
	ToCity     string
	TravelDate time.Time
}
