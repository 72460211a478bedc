package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/swiftbus/booking-backend/internal/database"
	"github.com/swiftbus/booking-backend/internal/models"
)

// TripService manages the trip catalog. Creating a trip also creates its
// full seat inventory, so every trip is bookable the moment it exists.
type TripService struct {
	trips  *database.TripRepository
	logger *logrus.Logger
}

// NewTripService creates a new trip service
func NewTripService(trips *database.TripRepository, logger *logrus.Logger) *TripService {
	return &TripService{trips: trips, logger: logger}
}

// CreateTrip schedules a new trip and initializes its seat inventory.
func (s *TripService) CreateTrip(ctx context.Context, req *models.CreateTripRequest) (*models.Trip, error) {
	if !req.ArrivalTime.After(req.DepartureTime) {
		return nil, fmt.Errorf("arrival time must be after departure time")
	}
	if req.DepartureTime.Before(time.Now().UTC()) {
		return nil, fmt.Errorf("departure time must be in the future")
	}

	trip := &models.Trip{
		ID:            uuid.New(),
		BusName:       req.BusName,
		FromCity:      req.FromCity,
		ToCity:        req.ToCity,
		DepartureTime: req.DepartureTime,
		ArrivalTime:   req.ArrivalTime,
		SeatCapacity:  req.SeatCapacity,
		Fare:          req.Fare,
	}
	if err := s.trips.CreateTrip(ctx, trip); err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id":  trip.ID,
		"route":    fmt.Sprintf("%s-%s", trip.FromCity, trip.ToCity),
		"capacity": trip.SeatCapacity,
	}).Info("Trip created with seat inventory")
	return trip, nil
}

// GetTrip returns one trip by ID.
func (s *TripService) GetTrip(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	return s.trips.GetTripByID(ctx, id)
}

// SearchTrips returns bookable trips matching the query.
func (s *TripService) SearchTrips(ctx context.Context, q models.TripSearchQuery) ([]models.Trip, error) {
	if q.FromCity == "" || q.ToCity == "" {
		return nil, fmt.Errorf("from and to cities are required")
	}
	return s.trips.SearchTrips(ctx, q)
}
