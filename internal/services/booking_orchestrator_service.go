package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/swiftbus/booking-backend/internal/events"
	"github.com/swiftbus/booking-backend/internal/models"
	"github.com/swiftbus/booking-backend/pkg/validator"
)

// BookingStore persists booking records. Implemented by
// database.BookingRepository.
type BookingStore interface {
	CreateBooking(ctx context.Context, b *models.Booking) error
	GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error)
	GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error)
	ListBookingsByHolder(ctx context.Context, holder string, limit, offset int) ([]models.Booking, error)
	MarkConfirmed(ctx context.Context, id uuid.UUID, paymentID string) error
	MarkCancelled(ctx context.Context, id uuid.UUID) error
}

// BookingOrchestratorService runs the end-to-end purchase flow:
// hold seats → capture passengers → charge payment → confirm the hold.
// A payment failure or an expired hold cancels the booking and the seats go
// back on the market; partial outcomes are never left behind.
type BookingOrchestratorService struct {
	reservations *ReservationService
	bookings     BookingStore
	trips        TripCatalog
	payments     PaymentProcessor
	publisher    events.Publisher
	contacts     *validator.PhoneValidator
	currency     string
	logger       *logrus.Logger
}

// NewBookingOrchestratorService creates a new orchestrator service
func NewBookingOrchestratorService(
	reservations *ReservationService,
	bookings BookingStore,
	trips TripCatalog,
	payments PaymentProcessor,
	publisher events.Publisher,
	currency string,
	logger *logrus.Logger,
) *BookingOrchestratorService {
	return &BookingOrchestratorService{
		reservations: reservations,
		bookings:     bookings,
		trips:        trips,
		payments:     payments,
		publisher:    publisher,
		contacts:     validator.NewPhoneValidator(),
		currency:     currency,
		logger:       logger,
	}
}

// CreateBooking runs the full purchase flow for a holder. When the request
// carries a hold ID the flow consumes that hold; otherwise the seats are
// held first as step one.
func (s *BookingOrchestratorService) CreateBooking(ctx context.Context, holder string, req *models.CreateBookingRequest) (*models.Booking, error) {
	if len(req.Passengers) != len(req.SeatNumbers) {
		return nil, fmt.Errorf("passenger count %d does not match seat count %d",
			len(req.Passengers), len(req.SeatNumbers))
	}
	for i := range req.Passengers {
		normalized, err := s.contacts.Validate(req.Passengers[i].Phone)
		if err != nil {
			return nil, fmt.Errorf("invalid phone number for passenger %q: %w", req.Passengers[i].Name, err)
		}
		req.Passengers[i].Phone = normalized
	}

	trip, err := s.trips.GetTripByID(ctx, req.TripID)
	if err != nil {
		return nil, err
	}

	// Step 1: ensure the seats are held.
	var hold *models.SeatHold
	ownsHold := false
	if req.HoldID != nil {
		hold, err = s.reservations.resolveHold(ctx, models.ConfirmHoldRequest{
			HoldID:      req.HoldID,
			TripID:      req.TripID,
			SeatNumbers: req.SeatNumbers,
		}, holder)
		if err != nil {
			return nil, err
		}
	} else {
		hold, err = s.reservations.HoldSeats(ctx, req.TripID, req.SeatNumbers, holder)
		if err != nil {
			return nil, err
		}
		ownsHold = true
	}

	// A hold resolved by ID may cover more seats than the request listed;
	// every held seat needs a passenger.
	if len(req.Passengers) != len(hold.SeatNumbers) {
		return nil, fmt.Errorf("passenger count %d does not match held seat count %d",
			len(req.Passengers), len(hold.SeatNumbers))
	}

	reference, err := generateBookingReference()
	if err != nil {
		return nil, fmt.Errorf("failed to generate booking reference: %w", err)
	}

	booking := &models.Booking{
		ID:               uuid.New(),
		BookingReference: reference,
		Holder:           holder,
		TripID:           req.TripID,
		SeatNumbers:      hold.SeatNumbers,
		Passengers:       models.PassengerList(req.Passengers),
		TotalPrice:       trip.Fare * float64(len(hold.SeatNumbers)),
		Status:           models.BookingPending,
	}
	if req.Notes != "" {
		booking.Notes = &req.Notes
	}

	if err := s.bookings.CreateBooking(ctx, booking); err != nil {
		s.abandonHold(ctx, hold, holder, ownsHold)
		return nil, err
	}

	// Step 2: charge.
	paymentID, err := s.payments.Charge(ctx, booking.BookingReference, booking.TotalPrice, s.currency)
	if err != nil {
		s.abandonHold(ctx, hold, holder, ownsHold)
		s.cancelBookingRecord(ctx, booking.ID)
		return nil, fmt.Errorf("payment failed: %w", err)
	}

	// Step 3: promote the hold to booked.
	_, err = s.reservations.ConfirmHold(ctx, models.ConfirmHoldRequest{
		HoldID:      &hold.ID,
		TripID:      req.TripID,
		SeatNumbers: hold.SeatNumbers,
		BookingID:   &booking.ID,
	}, holder)
	if err != nil {
		if refundErr := s.payments.Refund(ctx, paymentID); refundErr != nil {
			s.logger.WithError(refundErr).WithField("payment_id", paymentID).
				Error("Failed to refund after confirm failure")
		}
		s.cancelBookingRecord(ctx, booking.ID)
		if errors.Is(err, models.ErrHoldExpired) {
			return nil, models.ErrHoldExpired
		}
		return nil, err
	}

	if err := s.bookings.MarkConfirmed(ctx, booking.ID, paymentID); err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).
			Error("Seats booked but booking record not marked confirmed")
	}
	booking.Status = models.BookingConfirmed
	booking.PaymentID = &paymentID

	s.publish(ctx, events.BookingConfirmed, booking)
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"reference":  booking.BookingReference,
		"trip_id":    booking.TripID,
		"seats":      booking.SeatNumbers,
	}).Info("Booking confirmed")
	return booking, nil
}

// CancelBooking cancels a holder's booking and puts its seats back on the
// market. Confirmed bookings are refunded.
func (s *BookingOrchestratorService) CancelBooking(ctx context.Context, holder string, bookingID uuid.UUID) (*models.Booking, error) {
	booking, err := s.bookings.GetBookingByID(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if booking.Holder != holder {
		return nil, fmt.Errorf("booking %s does not belong to this holder", bookingID)
	}
	if booking.Status == models.BookingCancelled {
		return nil, fmt.Errorf("%w: booking already cancelled", models.ErrInvalidTransition)
	}

	trip, err := s.trips.GetTripByID(ctx, booking.TripID)
	if err != nil {
		return nil, err
	}
	if trip.Departed(time.Now().UTC()) {
		return nil, models.ErrTripDeparted
	}

	if booking.Status == models.BookingConfirmed {
		if err := s.reservations.ReleaseSeats(ctx, models.ReleaseSeatsRequest{
			TripID:      booking.TripID,
			SeatNumbers: booking.SeatNumbers,
			From:        models.SeatBooked,
		}, holder); err != nil {
			return nil, err
		}
		if booking.PaymentID != nil {
			if err := s.payments.Refund(ctx, *booking.PaymentID); err != nil {
				s.logger.WithError(err).WithField("payment_id", *booking.PaymentID).
					Error("Seats released but refund failed")
			}
		}
	}

	if err := s.bookings.MarkCancelled(ctx, booking.ID); err != nil {
		return nil, err
	}
	booking.Status = models.BookingCancelled

	s.publish(ctx, events.BookingCancelled, booking)
	s.logger.WithFields(logrus.Fields{
		"booking_id": booking.ID,
		"reference":  booking.BookingReference,
	}).Info("Booking cancelled")
	return booking, nil
}

// GetBookingByReference returns a holder's booking by its reference.
func (s *BookingOrchestratorService) GetBookingByReference(ctx context.Context, holder, reference string) (*models.Booking, error) {
	booking, err := s.bookings.GetBookingByReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if booking.Holder != holder {
		return nil, fmt.Errorf("booking %s does not belong to this holder", reference)
	}
	return booking, nil
}

// ListBookings returns a holder's bookings, newest first.
func (s *BookingOrchestratorService) ListBookings(ctx context.Context, holder string, limit, offset int) ([]models.Booking, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	return s.bookings.ListBookingsByHolder(ctx, holder, limit, offset)
}

// abandonHold frees seats after a failed flow step. Holds the caller
// brought with them are left active so the client can retry before the TTL
// runs out.
func (s *BookingOrchestratorService) abandonHold(ctx context.Context, hold *models.SeatHold, holder string, ownsHold bool) {
	if !ownsHold {
		return
	}
	err := s.reservations.ReleaseSeats(ctx, models.ReleaseSeatsRequest{
		TripID:      hold.TripID,
		SeatNumbers: hold.SeatNumbers,
		From:        models.SeatHeld,
	}, holder)
	if err != nil {
		s.logger.WithError(err).WithField("hold_id", hold.ID).
			Warn("Failed to release hold after booking failure; sweeper will reclaim it")
	}
}

func (s *BookingOrchestratorService) cancelBookingRecord(ctx context.Context, bookingID uuid.UUID) {
	if err := s.bookings.MarkCancelled(ctx, bookingID); err != nil {
		s.logger.WithError(err).WithField("booking_id", bookingID).
			Warn("Failed to mark booking cancelled")
	}
}

func (s *BookingOrchestratorService) publish(ctx context.Context, eventType events.EventType, booking *models.Booking) {
	if s.publisher == nil {
		return
	}
	event := events.BookingEvent{
		Type:        eventType,
		BookingID:   booking.ID,
		Reference:   booking.BookingReference,
		TripID:      booking.TripID,
		SeatNumbers: booking.SeatNumbers,
		Holder:      booking.Holder,
		TotalPrice:  booking.TotalPrice,
		OccurredAt:  time.Now().UTC(),
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.WithError(err).WithField("booking_id", booking.ID).
			Warn("Failed to publish booking event")
	}
}

const referenceAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// generateBookingReference generates a customer-facing reference like
// BK-7XK2M9QD. Ambiguous characters are excluded from the alphabet.
func generateBookingReference() (string, error) {
	code := make([]byte, 8)
	max := big.NewInt(int64(len(referenceAlphabet)))
	for i := range code {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		code[i] = referenceAlphabet[n.Int64()]
	}
	return "BK-" + string(code), nil
}
