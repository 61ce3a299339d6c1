package services

import (
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/buslink/booking-backend/internal/database"
	"github.com/buslink/booking-backend/internal/models"
)

func newTestMaterializer(t *testing.T) (*TripMaterializer, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	m := NewTripMaterializer(database.NewTripRepository(sqlxDB), logger)
	return m, mock, func() { db.Close() }
}

func testProjection() *models.ProjectedTrip {
	return &models.ProjectedTrip{
		RouteID:       "route-1",
		BusID:         "bus-1",
		DepartureDate: time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC),
		DepartureTime: "08:30",
		ArrivalTime:   "12:00",
		Fare:          1500,
	}
}

func tripColumns() []string {
	return []string{
		"id", "route_id", "bus_id", "departure_date", "departure_time",
		"arrival_time", "fare", "status", "created_at", "updated_at",
	}
}

func TestMaterializePersistedPassthrough(t *testing.T) {
	m, mock, cleanup := newTestMaterializer(t)
	defer cleanup()

	trip := &models.Trip{ID: "trip-1", Status: models.TripStatusScheduled}

	got, err := m.Materialize(models.PersistedRef(trip))
	require.NoError(t, err)
	assert.Same(t, trip, got)

	// No store access for persisted references.
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterializeReturnsExisting(t *testing.T) {
	m, mock, cleanup := newTestMaterializer(t)
	defer cleanup()

	p := testProjection()
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM trips").
		WithArgs(p.RouteID, p.DepartureDate, p.DepartureTime).
		WillReturnRows(sqlmock.NewRows(tripColumns()).
			AddRow("trip-1", p.RouteID, p.BusID, p.DepartureDate, p.DepartureTime,
				p.ArrivalTime, p.Fare, "scheduled", now, now))

	trip, err := m.Materialize(models.ProjectedRef(p))
	require.NoError(t, err)
	assert.Equal(t, "trip-1", trip.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterializeCreatesWhenAbsent(t *testing.T) {
	m, mock, cleanup := newTestMaterializer(t)
	defer cleanup()

	p := testProjection()
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM trips").
		WithArgs(p.RouteID, p.DepartureDate, p.DepartureTime).
		WillReturnRows(sqlmock.NewRows(tripColumns()))

	mock.ExpectQuery("INSERT INTO trips").
		WithArgs(sqlmock.AnyArg(), p.RouteID, p.BusID, p.DepartureDate, p.DepartureTime,
			p.ArrivalTime, p.Fare, models.TripStatusScheduled).
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(now, now))

	trip, err := m.Materialize(models.ProjectedRef(p))
	require.NoError(t, err)
	assert.NotEmpty(t, trip.ID)
	assert.Equal(t, models.TripStatusScheduled, trip.Status)
	assert.Equal(t, p.Fare, trip.Fare)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterializeRaceLoserReusesWinner(t *testing.T) {
	m, mock, cleanup := newTestMaterializer(t)
	defer cleanup()

	p := testProjection()
	now := time.Now()

	mock.ExpectQuery("SELECT (.+) FROM trips").
		WithArgs(p.RouteID, p.DepartureDate, p.DepartureTime).
		WillReturnRows(sqlmock.NewRows(tripColumns()))

	mock.ExpectQuery("INSERT INTO trips").
		WillReturnError(&pq.Error{Code: "23505"})

	mock.ExpectQuery("SELECT (.+) FROM trips").
		WithArgs(p.RouteID, p.DepartureDate, p.DepartureTime).
		WillReturnRows(sqlmock.NewRows(tripColumns()).
			AddRow("winner-trip", p.RouteID, p.BusID, p.DepartureDate, p.DepartureTime,
				p.ArrivalTime, p.Fare, "scheduled", now, now))

	trip, err := m.Materialize(models.ProjectedRef(p))
	require.NoError(t, err)
	assert.Equal(t, "winner-trip", trip.ID)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaterializeInvalidProjection(t *testing.T) {
	m, _, cleanup := newTestMaterializer(t)
	defer cleanup()

	t.Run("empty reference", func(t *testing.T) {
		_, err := m.Materialize(models.TripRef{})
		assert.ErrorIs(t, err, models.ErrInvalidProjection)
	})

	t.Run("missing route", func(t *testing.T) {
		p := testProjection()
		p.RouteID = ""
		_, err := m.Materialize(models.ProjectedRef(p))
		assert.ErrorIs(t, err, models.ErrInvalidProjection)
	})

	t.Run("missing bus", func(t *testing.T) {
		p := testProjection()
		p.BusID = ""
		_, err := m.Materialize(models.ProjectedRef(p))
		assert.ErrorIs(t, err, models.ErrInvalidProjection)
	})
}

func TestMaterializeStorageError(t *testing.T) {
	m, mock, cleanup := newTestMaterializer(t)
	defer cleanup()

	p := testProjection()

	mock.ExpectQuery("SELECT (.+) FROM trips").
		WillReturnError(assert.AnError)

	_, err := m.Materialize(models.ProjectedRef(p))
	assert.ErrorIs(t, err, models.ErrStorageUnavailable)
}
