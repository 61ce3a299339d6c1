package models

import "time"

// PaymentIntentStatus represents the status of a payment intent
type PaymentIntentStatus string

const (
	PaymentIntentPending   PaymentIntentStatus = "pending"
	PaymentIntentSucceeded PaymentIntentStatus = "succeeded"
	PaymentIntentFailed    PaymentIntentStatus = "failed"
	PaymentIntentExpired   PaymentIntentStatus = "expired"
)

// PaymentOutcome is the terminal result reported by the gateway boundary
type PaymentOutcome string

const (
	PaymentOutcomeSucceeded PaymentOutcome = "succeeded"
	PaymentOutcomeFailed    PaymentOutcome = "failed"
	PaymentOutcomeExpired   PaymentOutcome = "expired"
)

// PaymentIntent represents a payment attempt for a booking, one-to-one
// with the booking while it is payable. Status is driven only by the
// payment adapter.
type PaymentIntent struct {
	ID              string              `json:"id" db:"id"`
	BookingID       string              `json:"booking_id" db:"booking_id"`
	Amount          float64             `json:"amount" db:"amount"`
	Currency        string              `json:"currency" db:"currency"`
	Method          string              `json:"method" db:"method"`
	Status          PaymentIntentStatus `json:"status" db:"status"`
	InvoiceID       string              `json:"invoice_id" db:"invoice_id"`
	GatewayUID      *string             `json:"gateway_uid,omitempty" db:"gateway_uid"`
	StatusIndicator *string             `json:"status_indicator,omitempty" db:"status_indicator"`
	CreatedAt       time.Time           `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time           `json:"updated_at" db:"updated_at"`
}

// IsTerminal reports whether the intent has reached a final state
func (p *PaymentIntent) IsTerminal() bool {
	return p.Status != PaymentIntentPending
}
