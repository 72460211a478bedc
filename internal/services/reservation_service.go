package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/swiftbus/booking-backend/internal/config"
	"github.com/swiftbus/booking-backend/internal/database"
	"github.com/swiftbus/booking-backend/internal/models"
)

// ============================================================================
// STORAGE INTERFACES
// ============================================================================

// SeatLedger is the seat inventory surface the reservation manager drives.
// Implemented by database.SeatRepository.
type SeatLedger interface {
	InitializeSeats(ctx context.Context, tripID uuid.UUID, capacity int) error
	GetSeats(ctx context.Context, tripID uuid.UUID) ([]models.Seat, error)
	GetAvailability(ctx context.Context, tripID uuid.UUID) (*models.TripAvailability, error)
	Transition(ctx context.Context, p database.TransitionParams) error
	ReleaseExpired(ctx context.Context, tripID uuid.UUID, holder string, seatNumbers []int) (int, error)
	SweepTripExpired(ctx context.Context, tripID uuid.UUID) (int, error)
	ListTripsWithExpiredHolds(ctx context.Context) ([]uuid.UUID, error)
}

// HoldStore persists hold records. Implemented by database.HoldRepository.
type HoldStore interface {
	CreateHold(ctx context.Context, hold *models.SeatHold) error
	GetHoldByID(ctx context.Context, id uuid.UUID) (*models.SeatHold, error)
	FindActiveHold(ctx context.Context, tripID uuid.UUID, seatNumbers []int, holder string) (*models.SeatHold, error)
	MarkConfirmed(ctx context.Context, id uuid.UUID, bookingID uuid.UUID) error
	MarkReleased(ctx context.Context, id uuid.UUID) error
	MarkExpired(ctx context.Context, id uuid.UUID) error
	GetExpiredActiveHolds(ctx context.Context, asOf time.Time, limit int) ([]models.SeatHold, error)
}

// TripCatalog is the read surface of the trip repository the reservation
// manager needs.
type TripCatalog interface {
	GetTripByID(ctx context.Context, id uuid.UUID) (*models.Trip, error)
}

// ============================================================================
// RESERVATION SERVICE
// ============================================================================

// ReservationService owns the hold/confirm/release lifecycle. Every seat
// mutation goes through the ledger's atomic group transition, so two holders
// can never end up with the same seat.
type ReservationService struct {
	ledger SeatLedger
	holds  HoldStore
	trips  TripCatalog
	cfg    config.BookingConfig
	logger *logrus.Logger
}

// NewReservationService creates a new reservation service
func NewReservationService(ledger SeatLedger, holds HoldStore, trips TripCatalog, cfg config.BookingConfig, logger *logrus.Logger) *ReservationService {
	return &ReservationService{
		ledger: ledger,
		holds:  holds,
		trips:  trips,
		cfg:    cfg,
		logger: logger,
	}
}

// HoldSeats places a TTL-bound hold on a group of seats. All seats are
// taken or none are. Expired holds left behind by other holders do not
// block the seats.
func (s *ReservationService) HoldSeats(ctx context.Context, tripID uuid.UUID, seatNumbers []int, holder string) (*models.SeatHold, error) {
	seats, err := s.normalizeSeats(seatNumbers)
	if err != nil {
		return nil, err
	}

	trip, err := s.trips.GetTripByID(ctx, tripID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	if trip.Departed(now) || trip.Status == models.TripDeparted || trip.Status == models.TripArrived {
		return nil, models.ErrTripDeparted
	}
	if trip.Status == models.TripCancelled {
		return nil, fmt.Errorf("trip %s is cancelled", tripID)
	}
	for _, n := range seats {
		if n > trip.SeatCapacity {
			return nil, fmt.Errorf("%w: seat %d exceeds capacity %d", models.ErrSeatOutOfRange, n, trip.SeatCapacity)
		}
	}

	expiresAt := now.Add(s.cfg.HoldTTL)
	err = s.ledger.Transition(ctx, database.TransitionParams{
		TripID:      tripID,
		SeatNumbers: seats,
		Expected:    models.SeatAvailable,
		Next:        models.SeatHeld,
		Holder:      &holder,
		ExpiresAt:   &expiresAt,
	})
	if err != nil {
		return nil, err
	}

	hold := &models.SeatHold{
		ID:          uuid.New(),
		TripID:      tripID,
		SeatNumbers: seats,
		Holder:      holder,
		Status:      models.HoldActive,
		ExpiresAt:   expiresAt,
		CreatedAt:   now,
	}
	if err := s.holds.CreateHold(ctx, hold); err != nil {
		// The seats are held but the group record failed to persist. Free
		// them again; if that also fails the sweeper picks them up at expiry.
		if _, relErr := s.compensateHold(ctx, tripID, seats, holder); relErr != nil {
			s.logger.WithError(relErr).WithField("trip_id", tripID).
				Warn("Failed to release seats after hold record insert failed; sweeper will reclaim them")
		}
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"hold_id":    hold.ID,
		"trip_id":    tripID,
		"seats":      seats,
		"expires_at": expiresAt,
	}).Info("Seats held")
	return hold, nil
}

func (s *ReservationService) compensateHold(ctx context.Context, tripID uuid.UUID, seats []int, holder string) (int, error) {
	err := s.ledger.Transition(ctx, database.TransitionParams{
		TripID:      tripID,
		SeatNumbers: seats,
		Expected:    models.SeatHeld,
		Next:        models.SeatAvailable,
		MatchHolder: &holder,
	})
	if err != nil {
		return 0, err
	}
	return len(seats), nil
}

// ConfirmHold promotes a hold's seats from held to booked. The hold may be
// identified by ID or by (trip, seats, holder). A confirm after expiry
// fails with ErrHoldExpired and the seats go back on the market as part of
// handling that failure.
func (s *ReservationService) ConfirmHold(ctx context.Context, req models.ConfirmHoldRequest, holder string) (*models.SeatHold, error) {
	hold, err := s.resolveHold(ctx, req, holder)
	if err != nil {
		return nil, err
	}

	if req.BookingID == nil {
		return nil, fmt.Errorf("booking id is required to confirm a hold")
	}

	err = s.ledger.Transition(ctx, database.TransitionParams{
		TripID:           hold.TripID,
		SeatNumbers:      hold.SeatNumbers,
		Expected:         models.SeatHeld,
		Next:             models.SeatBooked,
		MatchHolder:      &hold.Holder,
		BookingID:        req.BookingID,
		RequireLiveHold:  true,
		ReleaseOnExpired: true,
	})
	if errors.Is(err, models.ErrHoldExpired) {
		if markErr := s.holds.MarkExpired(ctx, hold.ID); markErr != nil {
			s.logger.WithError(markErr).WithField("hold_id", hold.ID).Warn("Failed to mark hold expired")
		}
		return nil, models.ErrHoldExpired
	}
	if err != nil {
		return nil, err
	}

	if err := s.holds.MarkConfirmed(ctx, hold.ID, *req.BookingID); err != nil {
		// Seats are booked; the record update is best-effort bookkeeping.
		s.logger.WithError(err).WithField("hold_id", hold.ID).Warn("Failed to mark hold confirmed")
	}

	hold.Status = models.HoldConfirmed
	hold.BookingID = req.BookingID
	s.logger.WithFields(logrus.Fields{
		"hold_id":    hold.ID,
		"trip_id":    hold.TripID,
		"booking_id": req.BookingID,
	}).Info("Hold confirmed")
	return hold, nil
}

func (s *ReservationService) resolveHold(ctx context.Context, req models.ConfirmHoldRequest, holder string) (*models.SeatHold, error) {
	if req.HoldID != nil {
		hold, err := s.holds.GetHoldByID(ctx, *req.HoldID)
		if err != nil {
			return nil, err
		}
		// A hold belongs to whoever placed it.
		if hold.Holder != holder || hold.Status != models.HoldActive {
			return nil, models.ErrHoldNotFound
		}
		return hold, nil
	}
	return s.holds.FindActiveHold(ctx, req.TripID, req.SeatNumbers, holder)
}

// ReleaseSeats returns a group of seats to available from an explicitly
// named prior state. A mismatch between the expected and actual state is
// rejected with ErrInvalidTransition and nothing changes.
func (s *ReservationService) ReleaseSeats(ctx context.Context, req models.ReleaseSeatsRequest, holder string) error {
	if req.From != models.SeatHeld && req.From != models.SeatBooked {
		return fmt.Errorf("%w: seats can only be released from held or booked", models.ErrInvalidTransition)
	}
	seats, err := s.normalizeSeats(req.SeatNumbers)
	if err != nil {
		return err
	}

	err = s.ledger.Transition(ctx, database.TransitionParams{
		TripID:      req.TripID,
		SeatNumbers: seats,
		Expected:    req.From,
		Next:        models.SeatAvailable,
		MatchHolder: &holder,
	})
	if conflict, ok := models.IsSeatConflict(err); ok {
		return fmt.Errorf("%w: seats not in expected state: %v", models.ErrInvalidTransition, conflict.SeatNumbers)
	}
	if err != nil {
		return err
	}

	if req.From == models.SeatHeld {
		if hold, findErr := s.holds.FindActiveHold(ctx, req.TripID, seats, holder); findErr == nil {
			if markErr := s.holds.MarkReleased(ctx, hold.ID); markErr != nil {
				s.logger.WithError(markErr).WithField("hold_id", hold.ID).Warn("Failed to mark hold released")
			}
		}
	}

	s.logger.WithFields(logrus.Fields{
		"trip_id": req.TripID,
		"seats":   seats,
		"from":    req.From,
	}).Info("Seats released")
	return nil
}

// ReleaseExpiredHold frees the seats of one expired hold and marks its
// record expired. Seats already re-held by a newer holder are not touched,
// and running it twice for the same hold is a no-op.
func (s *ReservationService) ReleaseExpiredHold(ctx context.Context, hold *models.SeatHold) (int, error) {
	released, err := s.ledger.ReleaseExpired(ctx, hold.TripID, hold.Holder, hold.SeatNumbers)
	if err != nil {
		return 0, err
	}
	if err := s.holds.MarkExpired(ctx, hold.ID); err != nil {
		return released, err
	}
	return released, nil
}

func (s *ReservationService) normalizeSeats(seatNumbers []int) ([]int, error) {
	if len(seatNumbers) == 0 {
		return nil, fmt.Errorf("at least one seat number is required")
	}
	if len(seatNumbers) > s.cfg.MaxSeatsPerBooking {
		return nil, fmt.Errorf("%w: requested %d, maximum %d",
			models.ErrTooManySeats, len(seatNumbers), s.cfg.MaxSeatsPerBooking)
	}

	seats := append([]int(nil), seatNumbers...)
	sort.Ints(seats)
	for i, n := range seats {
		if n < 1 {
			return nil, fmt.Errorf("%w: seat %d", models.ErrSeatOutOfRange, n)
		}
		if i > 0 && seats[i-1] == n {
			return nil, fmt.Errorf("%w: seat %d", models.ErrDuplicateSeats, n)
		}
	}
	return seats, nil
}
