package database

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/buslink/booking-backend/internal/models"
)

// BookingRepository handles database operations for bookings. Seat
// disjointness is enforced here: occupancy is recomputed from live
// booking rows inside the reservation transaction, never cached.
type BookingRepository struct {
	db *sqlx.DB
}

// NewBookingRepository creates a new BookingRepository
func NewBookingRepository(db *sqlx.DB) *BookingRepository {
	return &BookingRepository{db: db}
}

// CreateWithSeatCheck inserts a booking after re-reading the trip's
// occupied seats within the same transaction. The seat-holding rows are
// locked so a concurrent reservation on the same trip serializes behind
// this one. Returns *models.SeatUnavailableError when any requested
// seat is already held, and the raw driver error on a booking_reference
// unique violation (callers retry reference generation on those).
func (r *BookingRepository) CreateWithSeatCheck(booking *models.Booking) error {
	tx, err := r.db.Beginx()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := r.lockTripTx(tx, booking.TripID); err != nil {
		return err
	}

	occupied, err := r.occupiedSeatsTx(tx, booking.TripID)
	if err != nil {
		return fmt.Errorf("failed to read trip occupancy: %w", err)
	}

	occupiedSet := make(map[string]bool, len(occupied))
	for _, s := range occupied {
		occupiedSet[s] = true
	}

	var taken []string
	for _, seat := range booking.Seats {
		if occupiedSet[seat] {
			taken = append(taken, seat)
		}
	}
	if len(taken) > 0 {
		return &models.SeatUnavailableError{Taken: taken, Occupied: occupied}
	}

	if booking.ID == "" {
		booking.ID = uuid.New().String()
	}

	query := `
		INSERT INTO bookings (
			id, trip_id, seats, passenger_name, passenger_email,
			passenger_phone, payment_method, status, booking_reference
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9
		)
		RETURNING created_at, updated_at
	`

	err = tx.QueryRow(
		query,
		booking.ID, booking.TripID, booking.Seats, booking.PassengerName, booking.PassengerEmail,
		booking.PassengerPhone, booking.PaymentMethod, booking.Status, booking.BookingReference,
	).Scan(&booking.CreatedAt, &booking.UpdatedAt)
	if err != nil {
		return err
	}

	return tx.Commit()
}

// lockTripTx takes a row lock on the trip itself so concurrent
// reservations on the same trip serialize. Locking booking rows alone
// is not enough: a freshly materialized trip has no booking rows to
// lock, and row locks never block inserts the reader did not see.
func (r *BookingRepository) lockTripTx(tx *sqlx.Tx, tripID string) error {
	var id string
	err := tx.QueryRow(`SELECT id FROM trips WHERE id = $1 FOR UPDATE`, tripID).Scan(&id)
	if err == sql.ErrNoRows {
		return models.ErrTripNotFound
	}
	return err
}

// occupiedSeatsTx returns every seat held by a live booking on the
// trip. The trip row lock taken first is what serializes writers;
// this read just computes occupancy under that lock.
func (r *BookingRepository) occupiedSeatsTx(tx *sqlx.Tx, tripID string) ([]string, error) {
	query := `
		SELECT seats
		FROM bookings
		WHERE trip_id = $1
		  AND status NOT IN ('cancelled', 'refunded')
		FOR UPDATE
	`

	rows, err := tx.Query(query, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	occupied := []string{}
	for rows.Next() {
		var seats models.SeatList
		if err := rows.Scan(&seats); err != nil {
			return nil, err
		}
		occupied = append(occupied, seats...)
	}

	return occupied, rows.Err()
}

// OccupiedSeats returns the seats currently held by live bookings on a
// trip, without locking. Used for shopper-facing availability views.
func (r *BookingRepository) OccupiedSeats(tripID string) ([]string, error) {
	query := `
		SELECT seats
		FROM bookings
		WHERE trip_id = $1
		  AND status NOT IN ('cancelled', 'refunded')
	`

	rows, err := r.db.Query(query, tripID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	occupied := []string{}
	for rows.Next() {
		var seats models.SeatList
		if err := rows.Scan(&seats); err != nil {
			return nil, err
		}
		occupied = append(occupied, seats...)
	}

	return occupied, rows.Err()
}

// GetByID retrieves a booking by ID
func (r *BookingRepository) GetByID(bookingID string) (*models.Booking, error) {
	query := selectBooking + ` WHERE id = $1`
	return r.scanBooking(r.db.QueryRow(query, bookingID))
}

// GetByReference retrieves a booking by its booking reference
func (r *BookingRepository) GetByReference(reference string) (*models.Booking, error) {
	query := selectBooking + ` WHERE booking_reference = $1`
	return r.scanBooking(r.db.QueryRow(query, reference))
}

// UpdateStatus moves the booking along one lifecycle edge. The write is
// guarded by the status the caller read: if the row moved on in the
// meantime (expiry sweep vs late webhook, duplicate callbacks racing)
// zero rows match and ErrBookingStateChanged is returned so the caller
// re-reads instead of clobbering the concurrent transition.
func (r *BookingRepository) UpdateStatus(bookingID string, from, to models.BookingStatus) error {
	query := `
		UPDATE bookings
		SET status = $3, updated_at = NOW()
		WHERE id = $1
		  AND status = $2
	`

	result, err := r.db.Exec(query, bookingID, from, to)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrBookingStateChanged
	}

	return nil
}

// Cancel marks a booking cancelled and records the reason. Guarded by
// the status the caller read, like UpdateStatus.
func (r *BookingRepository) Cancel(bookingID string, reason *string, from models.BookingStatus) error {
	query := `
		UPDATE bookings
		SET status = 'cancelled',
			cancellation_reason = $2,
			cancelled_at = NOW(),
			updated_at = NOW()
		WHERE id = $1
		  AND status = $3
	`

	result, err := r.db.Exec(query, bookingID, reason, from)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return models.ErrBookingStateChanged
	}

	return nil
}

// GetStalePending retrieves PENDING bookings created before the cutoff.
// The expiry job cancels these when their payment never called back.
func (r *BookingRepository) GetStalePending(cutoff time.Time, limit int) ([]models.Booking, error) {
	query := selectBooking + `
		WHERE status = 'pending'
		  AND created_at < $1
		ORDER BY created_at
		LIMIT $2
	`

	rows, err := r.db.Query(query, cutoff, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := []models.Booking{}
	for rows.Next() {
		booking, err := r.scanBookingRows(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *booking)
	}

	return bookings, rows.Err()
}

const selectBooking = `
	SELECT id, trip_id, seats, passenger_name, passenger_email,
	       passenger_phone, payment_method, status, booking_reference,
	       cancellation_reason, cancelled_at, created_at, updated_at
	FROM bookings`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanBooking scans a single booking, mapping absence to ErrBookingNotFound
func (r *BookingRepository) scanBooking(row rowScanner) (*models.Booking, error) {
	booking, err := r.scanBookingRows(row)
	if err == sql.ErrNoRows {
		return nil, models.ErrBookingNotFound
	}
	return booking, err
}

func (r *BookingRepository) scanBookingRows(row rowScanner) (*models.Booking, error) {
	booking := &models.Booking{}
	var cancellationReason sql.NullString
	var cancelledAt sql.NullTime

	err := row.Scan(
		&booking.ID, &booking.TripID, &booking.Seats, &booking.PassengerName, &booking.PassengerEmail,
		&booking.PassengerPhone, &booking.PaymentMethod, &booking.Status, &booking.BookingReference,
		&cancellationReason, &cancelledAt, &booking.CreatedAt, &booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if cancellationReason.Valid {
		booking.CancellationReason = &cancellationReason.String
	}
	if cancelledAt.Valid {
		booking.CancelledAt = &cancelledAt.Time
	}

	return booking, nil
}
