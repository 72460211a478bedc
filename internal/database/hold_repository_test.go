package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/swiftbus/booking-backend/internal/models"
)

func newMockHoldRepo(t *testing.T) (*HoldRepository, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	sqlxDB := sqlx.NewDb(db, "sqlmock")
	return NewHoldRepository(sqlxDB), mock, func() { db.Close() }
}

func TestCreateHold(t *testing.T) {
	repo, mock, closeFn := newMockHoldRepo(t)
	defer closeFn()

	t.Run("Success Sorts Seat Numbers", func(t *testing.T) {
		hold := &models.SeatHold{
			ID:          uuid.New(),
			TripID:      uuid.New(),
			SeatNumbers: models.IntArray{5, 2, 9},
			Holder:      "holder-a",
			Status:      models.HoldActive,
			ExpiresAt:   time.Now().Add(10 * time.Minute),
		}

		mock.ExpectExec(`INSERT INTO seat_holds`).
			WithArgs(hold.ID, hold.TripID, sqlmock.AnyArg(), hold.Holder, hold.Status, hold.ExpiresAt).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.CreateHold(context.Background(), hold)
		require.NoError(t, err)
		assert.Equal(t, models.IntArray{2, 5, 9}, hold.SeatNumbers)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetHoldByID(t *testing.T) {
	repo, mock, closeFn := newMockHoldRepo(t)
	defer closeFn()

	t.Run("Not Found", func(t *testing.T) {
		id := uuid.New()
		mock.ExpectQuery(`SELECT id, trip_id, seat_numbers`).
			WithArgs(id).
			WillReturnRows(sqlmock.NewRows([]string{"id"}))

		hold, err := repo.GetHoldByID(context.Background(), id)
		assert.ErrorIs(t, err, models.ErrHoldNotFound)
		assert.Nil(t, hold)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMarkConfirmed(t *testing.T) {
	repo, mock, closeFn := newMockHoldRepo(t)
	defer closeFn()

	holdID := uuid.New()
	bookingID := uuid.New()

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec(`UPDATE seat_holds`).
			WithArgs(holdID, bookingID).
			WillReturnResult(sqlmock.NewResult(0, 1))

		err := repo.MarkConfirmed(context.Background(), holdID, bookingID)
		require.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("Already Consumed", func(t *testing.T) {
		mock.ExpectExec(`UPDATE seat_holds`).
			WithArgs(holdID, bookingID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.MarkConfirmed(context.Background(), holdID, bookingID)
		assert.ErrorIs(t, err, models.ErrHoldNotFound)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestMarkExpired(t *testing.T) {
	repo, mock, closeFn := newMockHoldRepo(t)
	defer closeFn()

	holdID := uuid.New()

	t.Run("Idempotent When Already Expired", func(t *testing.T) {
		mock.ExpectExec(`UPDATE seat_holds`).
			WithArgs(holdID).
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.MarkExpired(context.Background(), holdID)
		assert.NoError(t, err)
		assert.NoError(t, mock.ExpectationsWereMet())
	})
}

func TestGetExpiredActiveHolds(t *testing.T) {
	repo, mock, closeFn := newMockHoldRepo(t)
	defer closeFn()

	now := time.Now()
	holdID := uuid.New()
	tripID := uuid.New()

	rows := sqlmock.NewRows([]string{
		"id", "trip_id", "seat_numbers", "holder", "status", "expires_at",
		"booking_id", "created_at", "updated_at",
	}).AddRow(holdID, tripID, "{1,2}", "holder-a", "active", now.Add(-time.Minute), nil, now, now)

	mock.ExpectQuery(`SELECT id, trip_id, seat_numbers`).
		WithArgs(now, 100).
		WillReturnRows(rows)

	holds, err := repo.GetExpiredActiveHolds(context.Background(), now, 100)
	require.NoError(t, err)
	require.Len(t, holds, 1)
	assert.Equal(t, holdID, holds[0].ID)
	assert.Equal(t, models.IntArray{1, 2}, holds[0].SeatNumbers)
	assert.NoError(t, mock.ExpectationsWereMet())
}
