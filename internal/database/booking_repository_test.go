package database

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/buslink/booking-backend/internal/models"
)

func newBookingRepo(t *testing.T) (*BookingRepository, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	repo := NewBookingRepository(sqlx.NewDb(db, "sqlmock"))
	return repo, mock, func() { db.Close() }
}

func testBooking(seats ...string) *models.Booking {
	return &models.Booking{
		TripID:           "trip-1",
		Seats:            models.SeatList(seats),
		PassengerName:    "Nimal Perera",
		PassengerEmail:   "nimal@example.com",
		PassengerPhone:   "0771234567",
		PaymentMethod:    "card",
		Status:           models.BookingStatusPending,
		BookingReference: "BK-20250303-7XKQ2M",
	}
}

func TestCreateWithSeatCheckCommitsOnSuccess(t *testing.T) {
	repo, mock, cleanup := newBookingRepo(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM trips").
		WithArgs("trip-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("trip-1"))
	mock.ExpectQuery("SELECT seats FROM bookings").
		WithArgs("trip-1").
		WillReturnRows(sqlmock.NewRows([]string{"seats"}).AddRow("{B1}"))
	mock.ExpectQuery("INSERT INTO bookings").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))
	mock.ExpectCommit()

	booking := testBooking("A1", "A2")
	require.NoError(t, repo.CreateWithSeatCheck(booking))

	assert.NotEmpty(t, booking.ID)
	assert.False(t, booking.CreatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithSeatCheckRollsBackOnConflict(t *testing.T) {
	repo, mock, cleanup := newBookingRepo(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM trips").
		WithArgs("trip-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("trip-1"))
	mock.ExpectQuery("SELECT seats FROM bookings").
		WithArgs("trip-1").
		WillReturnRows(sqlmock.NewRows([]string{"seats"}).
			AddRow("{A1,A2}").
			AddRow("{C3}"))
	mock.ExpectRollback()

	err := repo.CreateWithSeatCheck(testBooking("A2", "B1"))

	var seatErr *models.SeatUnavailableError
	require.ErrorAs(t, err, &seatErr)
	assert.Equal(t, []string{"A2"}, seatErr.Taken)
	assert.ElementsMatch(t, []string{"A1", "A2", "C3"}, seatErr.Occupied)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithSeatCheckSurfacesReferenceCollision(t *testing.T) {
	repo, mock, cleanup := newBookingRepo(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM trips").
		WithArgs("trip-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow("trip-1"))
	mock.ExpectQuery("SELECT seats FROM bookings").
		WithArgs("trip-1").
		WillReturnRows(sqlmock.NewRows([]string{"seats"}))
	mock.ExpectQuery("INSERT INTO bookings").
		WillReturnError(&pq.Error{Code: "23505", Constraint: "bookings_booking_reference_key"})
	mock.ExpectRollback()

	err := repo.CreateWithSeatCheck(testBooking("A1"))
	require.Error(t, err)
	assert.True(t, IsUniqueViolation(err))

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateWithSeatCheckRejectsMissingTrip(t *testing.T) {
	repo, mock, cleanup := newBookingRepo(t)
	defer cleanup()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id FROM trips").
		WithArgs("trip-1").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err := repo.CreateWithSeatCheck(testBooking("A1"))
	assert.ErrorIs(t, err, models.ErrTripNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGetByReferenceNotFound(t *testing.T) {
	repo, mock, cleanup := newBookingRepo(t)
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM bookings").
		WithArgs("BK-UNKNOWN").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	_, err := repo.GetByReference("BK-UNKNOWN")
	assert.ErrorIs(t, err, models.ErrBookingNotFound)
}

func TestUpdateStatusGuardsExpectedStatus(t *testing.T) {
	repo, mock, cleanup := newBookingRepo(t)
	defer cleanup()

	mock.ExpectExec("UPDATE bookings").
		WithArgs("booking-1", models.BookingStatusPending, models.BookingStatusConfirmed).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.UpdateStatus("booking-1", models.BookingStatusPending, models.BookingStatusConfirmed))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusReportsLostRace(t *testing.T) {
	repo, mock, cleanup := newBookingRepo(t)
	defer cleanup()

	// The row no longer carries the status the caller read, so the
	// guarded update matches nothing.
	mock.ExpectExec("UPDATE bookings").
		WithArgs("booking-1", models.BookingStatusPending, models.BookingStatusConfirmed).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.UpdateStatus("booking-1", models.BookingStatusPending, models.BookingStatusConfirmed)
	assert.ErrorIs(t, err, models.ErrBookingStateChanged)
}

func TestCancelReportsLostRace(t *testing.T) {
	repo, mock, cleanup := newBookingRepo(t)
	defer cleanup()

	reason := "no longer travelling"
	mock.ExpectExec("UPDATE bookings").
		WithArgs("booking-1", &reason, models.BookingStatusConfirmed).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Cancel("booking-1", &reason, models.BookingStatusConfirmed)
	assert.ErrorIs(t, err, models.ErrBookingStateChanged)
}

func TestGetStalePending(t *testing.T) {
	repo, mock, cleanup := newBookingRepo(t)
	defer cleanup()

	now := time.Now()
	cutoff := now.Add(-30 * time.Minute)

	mock.ExpectQuery("SELECT (.+) FROM bookings").
		WithArgs(cutoff, 100).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "trip_id", "seats", "passenger_name", "passenger_email",
			"passenger_phone", "payment_method", "status", "booking_reference",
			"cancellation_reason", "cancelled_at", "created_at", "updated_at",
		}).AddRow("booking-1", "trip-1", "{A1}", "Nimal Perera", "nimal@example.com",
			"0771234567", "card", "pending", "BK-20250303-7XKQ2M", nil, nil, now.Add(-time.Hour), now))

	stale, err := repo.GetStalePending(cutoff, 100)
	require.NoError(t, err)
	require.Len(t, stale, 1)
	assert.Equal(t, "booking-1", stale[0].ID)
	assert.Equal(t, models.BookingStatusPending, stale[0].Status)
}
