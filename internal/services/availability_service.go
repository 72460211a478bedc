package services

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/swiftbus/booking-backend/internal/models"
)

// AvailabilityService exposes consistent seat-map snapshots. The available
// count is never stored separately from the seat states it describes: reads
// derive both from one query, and the denormalized counter on the trip row
// is recomputed inside the same transaction as every seat mutation.
type AvailabilityService struct {
	ledger SeatLedger
	logger *logrus.Logger
}

// NewAvailabilityService creates a new availability service
func NewAvailabilityService(ledger SeatLedger, logger *logrus.Logger) *AvailabilityService {
	return &AvailabilityService{ledger: ledger, logger: logger}
}

// GetTripAvailability returns the seat map and available count for a trip.
// Held seats past their expiry are shown as available even before the
// sweeper reclaims them.
func (s *AvailabilityService) GetTripAvailability(ctx context.Context, tripID uuid.UUID) (*models.TripAvailability, error) {
	return s.ledger.GetAvailability(ctx, tripID)
}

// GetSeatMap returns the raw seat rows for a trip.
func (s *AvailabilityService) GetSeatMap(ctx context.Context, tripID uuid.UUID) ([]models.Seat, error) {
	return s.ledger.GetSeats(ctx, tripID)
}
