package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/google/uuid"

	"github.com/swiftbus/booking-backend/internal/models"
)

type sweeperFixture struct {
	*reservationFixture
	sweeper *SweeperService
}

func newSweeperFixture(t *testing.T, capacity int) *sweeperFixture {
	t.Helper()
	cfg := testBookingConfig()
	base := newReservationFixture(t, capacity, cfg)
	return &sweeperFixture{
		reservationFixture: base,
		sweeper:            NewSweeperService(base.service, base.ledger, base.holds, nil, cfg, testLogger()),
	}
}

// backdate moves a hold and its seats into the past so a sweep sees them
// as expired without the test sleeping through a real TTL.
func (fx *sweeperFixture) backdate(t *testing.T, holdID uuid.UUID) {
	t.Helper()
	past := time.Now().Add(-time.Minute)

	fx.holds.mu.Lock()
	hold, ok := fx.holds.holds[holdID]
	require.True(t, ok)
	hold.ExpiresAt = past
	tripID, holder, seats := hold.TripID, hold.Holder, []int(hold.SeatNumbers)
	fx.holds.mu.Unlock()

	fx.ledger.mu.Lock()
	defer fx.ledger.mu.Unlock()
	for _, n := range seats {
		seat := fx.ledger.seats[tripID][n]
		if seat.State == models.SeatHeld && seat.Holder != nil && *seat.Holder == holder {
			seat.HoldExpiresAt = &past
		}
	}
}

func TestSweeperRunOnce(t *testing.T) {
	ctx := context.Background()

	t.Run("Releases Expired Holds", func(t *testing.T) {
		fx := newSweeperFixture(t, 20)
		expired, err := fx.service.HoldSeats(ctx, fx.trip.ID, []int{1, 2, 3}, "holder-a")
		require.NoError(t, err)
		live, err := fx.service.HoldSeats(ctx, fx.trip.ID, []int{4, 5}, "holder-b")
		require.NoError(t, err)
		fx.backdate(t, expired.ID)

		result := fx.sweeper.RunOnce(ctx)
		assert.Equal(t, 1, result.HoldsExpired)
		assert.Equal(t, 3, result.SeatsReleased)
		assert.Equal(t, 0, result.TripsFailed)

		assert.Equal(t, 18, fx.ledger.countByState(fx.trip.ID, models.SeatAvailable))
		assert.Equal(t, 2, fx.ledger.countByState(fx.trip.ID, models.SeatHeld))

		stored, err := fx.holds.GetHoldByID(ctx, expired.ID)
		require.NoError(t, err)
		assert.Equal(t, models.HoldExpired, stored.Status)

		// The live hold is untouched.
		stored, err = fx.holds.GetHoldByID(ctx, live.ID)
		require.NoError(t, err)
		assert.Equal(t, models.HoldActive, stored.Status)
	})

	t.Run("Second Run Is A No-Op", func(t *testing.T) {
		fx := newSweeperFixture(t, 20)
		hold, err := fx.service.HoldSeats(ctx, fx.trip.ID, []int{1, 2}, "holder-a")
		require.NoError(t, err)
		fx.backdate(t, hold.ID)

		first := fx.sweeper.RunOnce(ctx)
		assert.Equal(t, 2, first.SeatsReleased)

		second := fx.sweeper.RunOnce(ctx)
		assert.Equal(t, SweepResult{}, second)
	})

	t.Run("Orphaned Seats Without A Hold Record", func(t *testing.T) {
		fx := newSweeperFixture(t, 20)
		hold, err := fx.service.HoldSeats(ctx, fx.trip.ID, []int{7, 8}, "holder-a")
		require.NoError(t, err)
		fx.backdate(t, hold.ID)

		// The hold record was already flipped but the seats never freed.
		fx.holds.mu.Lock()
		fx.holds.holds[hold.ID].Status = models.HoldExpired
		fx.holds.mu.Unlock()

		result := fx.sweeper.RunOnce(ctx)
		assert.Equal(t, 0, result.HoldsExpired)
		assert.Equal(t, 2, result.SeatsReleased)
		assert.Equal(t, 20, fx.ledger.countByState(fx.trip.ID, models.SeatAvailable))
	})

	t.Run("One Failing Trip Does Not Block Others", func(t *testing.T) {
		fx := newSweeperFixture(t, 20)
		badTrip := fx.catalog.addTrip(20, time.Now().Add(6*time.Hour))
		require.NoError(t, fx.ledger.InitializeSeats(ctx, badTrip.ID, 20))

		badHold, err := fx.service.HoldSeats(ctx, badTrip.ID, []int{1}, "holder-a")
		require.NoError(t, err)
		goodHold, err := fx.service.HoldSeats(ctx, fx.trip.ID, []int{1, 2}, "holder-b")
		require.NoError(t, err)
		fx.backdate(t, badHold.ID)
		fx.backdate(t, goodHold.ID)

		fx.ledger.mu.Lock()
		fx.ledger.failTrips[badTrip.ID] = true
		fx.ledger.mu.Unlock()

		result := fx.sweeper.RunOnce(ctx)
		assert.Equal(t, 1, result.HoldsExpired)
		assert.Equal(t, 2, result.SeatsReleased)
		assert.GreaterOrEqual(t, result.TripsFailed, 1)
		assert.Equal(t, 20, fx.ledger.countByState(fx.trip.ID, models.SeatAvailable))
	})
}

func TestSweeperDoesNotFreeConfirmedSeats(t *testing.T) {
	fx := newSweeperFixture(t, 20)
	ctx := context.Background()

	hold, err := fx.service.HoldSeats(ctx, fx.trip.ID, []int{1, 2}, "holder-a")
	require.NoError(t, err)

	bookingID := uuid.New()
	_, err = fx.service.ConfirmHold(ctx, models.ConfirmHoldRequest{
		HoldID:    &hold.ID,
		TripID:    fx.trip.ID,
		BookingID: &bookingID,
	}, "holder-a")
	require.NoError(t, err)

	// A stale expired record for the same hold must not touch booked seats.
	fx.holds.mu.Lock()
	fx.holds.holds[hold.ID].Status = models.HoldActive
	fx.holds.holds[hold.ID].ExpiresAt = time.Now().Add(-time.Minute)
	fx.holds.mu.Unlock()

	result := fx.sweeper.RunOnce(ctx)
	assert.Equal(t, 0, result.SeatsReleased)
	assert.Equal(t, 2, fx.ledger.countByState(fx.trip.ID, models.SeatBooked))
}
