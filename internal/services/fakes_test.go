package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/swiftbus/booking-backend/internal/database"
	"github.com/swiftbus/booking-backend/internal/events"
	"github.com/swiftbus/booking-backend/internal/models"
)

// fakeLedger is an in-memory seat inventory with the same transition
// contract as the SQL implementation: group transitions are all-or-nothing
// under one lock, and expired holds count as available to new holders.
type fakeLedger struct {
	mu    sync.Mutex
	seats map[uuid.UUID]map[int]*models.Seat
	// trips that fail every operation, to test failure isolation
	failTrips map[uuid.UUID]bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		seats:     make(map[uuid.UUID]map[int]*models.Seat),
		failTrips: make(map[uuid.UUID]bool),
	}
}

func (l *fakeLedger) InitializeSeats(ctx context.Context, tripID uuid.UUID, capacity int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.seats[tripID]; ok {
		return models.ErrAlreadyInitialized
	}
	inventory := make(map[int]*models.Seat, capacity)
	for n := 1; n <= capacity; n++ {
		inventory[n] = &models.Seat{
			ID:         uuid.New(),
			TripID:     tripID,
			SeatNumber: n,
			State:      models.SeatAvailable,
			Version:    1,
		}
	}
	l.seats[tripID] = inventory
	return nil
}

func (l *fakeLedger) GetSeats(ctx context.Context, tripID uuid.UUID) ([]models.Seat, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	inventory, ok := l.seats[tripID]
	if !ok {
		return nil, models.ErrTripNotFound
	}
	out := make([]models.Seat, 0, len(inventory))
	for _, seat := range inventory {
		out = append(out, *seat)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SeatNumber < out[j].SeatNumber })
	return out, nil
}

func (l *fakeLedger) GetAvailability(ctx context.Context, tripID uuid.UUID) (*models.TripAvailability, error) {
	seats, err := l.GetSeats(ctx, tripID)
	if err != nil {
		return nil, err
	}
	now := time.Now().UTC()
	snapshot := &models.TripAvailability{TripID: tripID, AsOf: now}
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

func (l *fakeLedger) Transition(ctx context.Context, p database.TransitionParams) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.failTrips[p.TripID] {
		return fmt.Errorf("ledger down: %w", models.ErrStoreUnavailable)
	}
	inventory, ok := l.seats[p.TripID]
	if !ok {
		return models.ErrTripNotFound
	}

	now := time.Now().UTC()
	var conflicts []int
	expiredHold := false
	for _, n := range p.SeatNumbers {
		seat, ok := inventory[n]
		if !ok {
			conflicts = append(conflicts, n)
			continue
		}
		if l.allowed(seat, p, now) {
			continue
		}
		if p.Expected == models.SeatHeld && p.RequireLiveHold &&
			seat.State == models.SeatHeld && matches(seat.Holder, p.MatchHolder) &&
			seat.HoldExpiresAt != nil && !seat.HoldExpiresAt.After(now) {
			expiredHold = true
			continue
		}
		conflicts = append(conflicts, n)
	}

	if len(conflicts) > 0 {
		sort.Ints(conflicts)
		return &models.SeatConflictError{TripID: p.TripID.String(), SeatNumbers: conflicts}
	}
	if expiredHold {
		if p.ReleaseOnExpired {
			for _, n := range p.SeatNumbers {
				l.clear(inventory[n])
			}
		}
		return models.ErrHoldExpired
	}

	for _, n := range p.SeatNumbers {
		seat := inventory[n]
		switch p.Next {
		case models.SeatHeld:
			seat.State = models.SeatHeld
			seat.Holder = copyString(p.Holder)
			seat.HoldExpiresAt = copyTime(p.ExpiresAt)
			seat.BookingID = nil
			seat.Version++
		case models.SeatBooked:
			seat.State = models.SeatBooked
			if p.Holder != nil {
				seat.Holder = copyString(p.Holder)
			}
			seat.HoldExpiresAt = nil
			seat.BookingID = p.BookingID
			seat.Version++
		case models.SeatAvailable:
			l.clear(seat)
		}
	}
	return nil
}

func (l *fakeLedger) allowed(seat *models.Seat, p database.TransitionParams, now time.Time) bool {
	switch p.Expected {
	case models.SeatAvailable:
		if seat.State == models.SeatAvailable {
			return true
		}
		return seat.State == models.SeatHeld && seat.HoldExpiresAt != nil && !seat.HoldExpiresAt.After(now)
	case models.SeatHeld:
		if seat.State != models.SeatHeld || !matches(seat.Holder, p.MatchHolder) {
			return false
		}
		if p.RequireLiveHold && seat.HoldExpiresAt != nil && !seat.HoldExpiresAt.After(now) {
			return false
		}
		return true
	case models.SeatBooked:
		return seat.State == models.SeatBooked && matches(seat.Holder, p.MatchHolder)
	}
	return false
}

func (l *fakeLedger) clear(seat *models.Seat) {
	seat.State = models.SeatAvailable
	seat.Holder = nil
	seat.HoldExpiresAt = nil
	seat.BookingID = nil
	seat.Version++
}

func (l *fakeLedger) ReleaseExpired(ctx context.Context, tripID uuid.UUID, holder string, seatNumbers []int) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failTrips[tripID] {
		return 0, fmt.Errorf("ledger down: %w", models.ErrStoreUnavailable)
	}
	inventory, ok := l.seats[tripID]
	if !ok {
		return 0, models.ErrTripNotFound
	}
	now := time.Now().UTC()
	released := 0
	for _, n := range seatNumbers {
		seat, ok := inventory[n]
		if !ok {
			continue
		}
		if seat.State == models.SeatHeld && matches(seat.Holder, &holder) &&
			seat.HoldExpiresAt != nil && !seat.HoldExpiresAt.After(now) {
			l.clear(seat)
			released++
		}
	}
	return released, nil
}

func (l *fakeLedger) SweepTripExpired(ctx context.Context, tripID uuid.UUID) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failTrips[tripID] {
		return 0, fmt.Errorf("ledger down: %w", models.ErrStoreUnavailable)
	}
	inventory, ok := l.seats[tripID]
	if !ok {
		return 0, models.ErrTripNotFound
	}
	now := time.Now().UTC()
	released := 0
	for _, seat := range inventory {
		if seat.State == models.SeatHeld && seat.HoldExpiresAt != nil && !seat.HoldExpiresAt.After(now) {
			l.clear(seat)
			released++
		}
	}
	return released, nil
}

func (l *fakeLedger) ListTripsWithExpiredHolds(ctx context.Context) ([]uuid.UUID, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now().UTC()
	var out []uuid.UUID
	for tripID, inventory := range l.seats {
		for _, seat := range inventory {
			if seat.State == models.SeatHeld && seat.HoldExpiresAt != nil && !seat.HoldExpiresAt.After(now) {
				out = append(out, tripID)
				break
			}
		}
	}
	return out, nil
}

// countByState is a test helper for checking the count invariant.
func (l *fakeLedger) countByState(tripID uuid.UUID, state models.SeatState) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	count := 0
	for _, seat := range l.seats[tripID] {
		if seat.State == state {
			count++
		}
	}
	return count
}

func matches(current, expected *string) bool {
	if expected == nil {
		return true
	}
	return current != nil && *current == *expected
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

// fakeHoldStore is an in-memory HoldStore.
type fakeHoldStore struct {
	mu    sync.Mutex
	holds map[uuid.UUID]*models.SeatHold
}

func newFakeHoldStore() *fakeHoldStore {
	return &fakeHoldStore{holds: make(map[uuid.UUID]*models.SeatHold)}
}

func (s *fakeHoldStore) CreateHold(ctx context.Context, hold *models.SeatHold) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *hold
	s.holds[hold.ID] = &copied
	return nil
}

func (s *fakeHoldStore) GetHoldByID(ctx context.Context, id uuid.UUID) (*models.SeatHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[id]
	if !ok {
		return nil, models.ErrHoldNotFound
	}
	copied := *hold
	return &copied, nil
}

func (s *fakeHoldStore) FindActiveHold(ctx context.Context, tripID uuid.UUID, seatNumbers []int, holder string) (*models.SeatHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := append([]int(nil), seatNumbers...)
	sort.Ints(want)
	for _, hold := range s.holds {
		if hold.TripID != tripID || hold.Holder != holder || hold.Status != models.HoldActive {
			continue
		}
		if sameSeats(hold.SeatNumbers, want) {
			copied := *hold
			return &copied, nil
		}
	}
	return nil, models.ErrHoldNotFound
}

func (s *fakeHoldStore) MarkConfirmed(ctx context.Context, id uuid.UUID, bookingID uuid.UUID) error {
	return s.setStatus(id, models.HoldConfirmed, &bookingID)
}

func (s *fakeHoldStore) MarkReleased(ctx context.Context, id uuid.UUID) error {
	return s.setStatus(id, models.HoldReleased, nil)
}

func (s *fakeHoldStore) MarkExpired(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[id]
	if !ok {
		return models.ErrHoldNotFound
	}
	if hold.Status == models.HoldActive {
		hold.Status = models.HoldExpired
	}
	return nil
}

func (s *fakeHoldStore) setStatus(id uuid.UUID, status models.HoldStatus, bookingID *uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	hold, ok := s.holds[id]
	if !ok || hold.Status != models.HoldActive {
		return models.ErrHoldNotFound
	}
	hold.Status = status
	if bookingID != nil {
		hold.BookingID = bookingID
	}
	return nil
}

func (s *fakeHoldStore) GetExpiredActiveHolds(ctx context.Context, asOf time.Time, limit int) ([]models.SeatHold, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.SeatHold
	for _, hold := range s.holds {
		if hold.Status == models.HoldActive && !hold.ExpiresAt.After(asOf) {
			out = append(out, *hold)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func sameSeats(a models.IntArray, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// fakeCatalog is an in-memory TripCatalog.
type fakeCatalog struct {
	mu    sync.Mutex
	trips map[uuid.UUID]*models.Trip
}

func newFakeCatalog() *fakeCatalog {
	return &fakeCatalog{trips: make(map[uuid.UUID]*models.Trip)}
}

func (c *fakeCatalog) addTrip(capacity int, departure time.Time) *models.Trip {
	c.mu.Lock()
	defer c.mu.Unlock()
	trip := &models.Trip{
		ID:             uuid.New(),
		BusName:        "Test Express",
		FromCity:       "Colombo",
		ToCity:         "Kandy",
		DepartureTime:  departure,
		ArrivalTime:    departure.Add(3 * time.Hour),
		SeatCapacity:   capacity,
		Fare:           1500,
		AvailableSeats: capacity,
		Status:         models.TripScheduled,
	}
	c.trips[trip.ID] = trip
	return trip
}

func (c *fakeCatalog) GetTripByID(ctx context.Context, id uuid.UUID) (*models.Trip, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	trip, ok := c.trips[id]
	if !ok {
		return nil, models.ErrTripNotFound
	}
	copied := *trip
	return &copied, nil
}

// fakeBookingStore is an in-memory BookingStore.
type fakeBookingStore struct {
	mu       sync.Mutex
	bookings map[uuid.UUID]*models.Booking
}

func newFakeBookingStore() *fakeBookingStore {
	return &fakeBookingStore{bookings: make(map[uuid.UUID]*models.Booking)}
}

func (s *fakeBookingStore) CreateBooking(ctx context.Context, b *models.Booking) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *b
	s.bookings[b.ID] = &copied
	return nil
}

func (s *fakeBookingStore) GetBookingByID(ctx context.Context, id uuid.UUID) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, fmt.Errorf("booking not found: %s", id)
	}
	copied := *b
	return &copied, nil
}

func (s *fakeBookingStore) GetBookingByReference(ctx context.Context, reference string) (*models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, b := range s.bookings {
		if b.BookingReference == reference {
			copied := *b
			return &copied, nil
		}
	}
	return nil, fmt.Errorf("booking not found: %s", reference)
}

func (s *fakeBookingStore) ListBookingsByHolder(ctx context.Context, holder string, limit, offset int) ([]models.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Booking
	for _, b := range s.bookings {
		if b.Holder == holder {
			out = append(out, *b)
		}
	}
	return out, nil
}

func (s *fakeBookingStore) MarkConfirmed(ctx context.Context, id uuid.UUID, paymentID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status != models.BookingPending {
		return models.ErrInvalidTransition
	}
	b.Status = models.BookingConfirmed
	b.PaymentID = &paymentID
	return nil
}

func (s *fakeBookingStore) MarkCancelled(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.bookings[id]
	if !ok || b.Status == models.BookingCancelled {
		return models.ErrInvalidTransition
	}
	b.Status = models.BookingCancelled
	return nil
}

// fakePublisher records published events.
type fakePublisher struct {
	mu     sync.Mutex
	events []events.BookingEvent
}

func (p *fakePublisher) Publish(ctx context.Context, event events.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakePublisher) Close() error { return nil }

func (p *fakePublisher) published() []events.BookingEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.BookingEvent(nil), p.events...)
}

// fakePayments approves or rejects charges on demand.
type fakePayments struct {
	mu      sync.Mutex
	fail    bool
	charges int
	refunds []string
}

func (p *fakePayments) Charge(ctx context.Context, reference string, amount float64, currency string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fail {
		return "", fmt.Errorf("card declined")
	}
	p.charges++
	return fmt.Sprintf("PAY-%d", p.charges), nil
}

func (p *fakePayments) Refund(ctx context.Context, paymentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.refunds = append(p.refunds, paymentID)
	return nil
}
