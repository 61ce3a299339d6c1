package database

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/buslink/booking-backend/internal/models"
)

// PaymentIntentRepository handles database operations for payment_intents
type PaymentIntentRepository struct {
	db *sqlx.DB
}

// NewPaymentIntentRepository creates a new PaymentIntentRepository
func NewPaymentIntentRepository(db *sqlx.DB) *PaymentIntentRepository {
	return &PaymentIntentRepository{db: db}
}

// Create inserts a new payment intent in pending state
func (r *PaymentIntentRepository) Create(intent *models.PaymentIntent) error {
	query := `
		INSERT INTO payment_intents (
			id, booking_id, amount, currency, method, status, invoice_id
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7
		)
		RETURNING created_at, updated_at
	`

	if intent.ID == "" {
		intent.ID = uuid.New().String()
	}

	err := r.db.QueryRow(
		query,
		intent.ID, intent.BookingID, intent.Amount, intent.Currency,
		intent.Method, intent.Status, intent.InvoiceID,
	).Scan(&intent.CreatedAt, &intent.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment intent: %w", err)
	}

	return nil
}

// GetByInvoiceID retrieves a payment intent by the invoice id sent to the gateway
func (r *PaymentIntentRepository) GetByInvoiceID(invoiceID string) (*models.PaymentIntent, error) {
	query := selectPaymentIntent + ` WHERE invoice_id = $1`
	return r.scanIntent(r.db.QueryRow(query, invoiceID))
}

// GetByBookingID retrieves the payment intent attached to a booking
func (r *PaymentIntentRepository) GetByBookingID(bookingID string) (*models.PaymentIntent, error) {
	query := selectPaymentIntent + ` WHERE booking_id = $1 ORDER BY created_at DESC LIMIT 1`
	return r.scanIntent(r.db.QueryRow(query, bookingID))
}

// SetGatewayRefs stores the gateway transaction id and status indicator
// returned by initiate; the webhook verifier compares against them.
func (r *PaymentIntentRepository) SetGatewayRefs(intentID, gatewayUID, statusIndicator string) error {
	query := `
		UPDATE payment_intents
		SET gateway_uid = $2, status_indicator = $3, updated_at = NOW()
		WHERE id = $1
	`

	_, err := r.db.Exec(query, intentID, gatewayUID, statusIndicator)
	if err != nil {
		return fmt.Errorf("failed to store gateway refs: %w", err)
	}
	return nil
}

// UpdateStatus updates the intent status
func (r *PaymentIntentRepository) UpdateStatus(intentID string, status models.PaymentIntentStatus) error {
	query := `
		UPDATE payment_intents
		SET status = $2, updated_at = NOW()
		WHERE id = $1
	`

	result, err := r.db.Exec(query, intentID, status)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("payment intent not found")
	}

	return nil
}

const selectPaymentIntent = `
	SELECT id, booking_id, amount, currency, method, status, invoice_id,
	       gateway_uid, status_indicator, created_at, updated_at
	FROM payment_intents`

func (r *PaymentIntentRepository) scanIntent(row *sql.Row) (*models.PaymentIntent, error) {
	intent := &models.PaymentIntent{}
	var gatewayUID sql.NullString
	var statusIndicator sql.NullString

	err := row.Scan(
		&intent.ID, &intent.BookingID, &intent.Amount, &intent.Currency,
		&intent.Method, &intent.Status, &intent.InvoiceID,
		&gatewayUID, &statusIndicator, &intent.CreatedAt, &intent.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan payment intent: %w", err)
	}

	if gatewayUID.Valid {
		intent.GatewayUID = &gatewayUID.String
	}
	if statusIndicator.Valid {
		intent.StatusIndicator = &statusIndicator.String
	}

	return intent, nil
}
