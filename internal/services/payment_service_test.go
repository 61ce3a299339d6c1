package services

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/buslink/booking-backend/internal/config"
	"github.com/buslink/booking-backend/internal/database"
	"github.com/buslink/booking-backend/internal/models"
)

func newTestPaymentService(t *testing.T, cfg *config.PaymentConfig) (*PaymentService, sqlmock.Sqlmock, func()) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	sqlxDB := sqlx.NewDb(db, "sqlmock")
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	svc := NewPaymentService(database.NewPaymentIntentRepository(sqlxDB), cfg, logger)
	return svc, mock, func() { db.Close() }
}

func testPaymentConfig() *config.PaymentConfig {
	return &config.PaymentConfig{
		Environment:   "sandbox",
		MerchantKey:   "TESTKEY123",
		MerchantToken: "TESTTOKEN456",
		Currency:      "LKR",
	}
}

func intentColumns() []string {
	return []string{
		"id", "booking_id", "amount", "currency", "method", "status", "invoice_id",
		"gateway_uid", "status_indicator", "created_at", "updated_at",
	}
}

func TestGenerateCheckValue(t *testing.T) {
	svc, _, cleanup := newTestPaymentService(t, testPaymentConfig())
	defer cleanup()

	first := svc.GenerateCheckValue("PI-BK-20250303-7XKQ2M", "3000.00", "LKR")
	second := svc.GenerateCheckValue("PI-BK-20250303-7XKQ2M", "3000.00", "LKR")

	// SHA-512 as uppercase hex, deterministic for identical input.
	assert.Equal(t, first, second)
	assert.Len(t, first, 128)
	assert.Regexp(t, "^[0-9A-F]+$", first)

	// Any input change produces a different value.
	assert.NotEqual(t, first, svc.GenerateCheckValue("PI-BK-20250303-7XKQ2M", "3000.01", "LKR"))
	assert.NotEqual(t, first, svc.GenerateCheckValue("PI-OTHER", "3000.00", "LKR"))
}

func TestInitiateUnconfiguredStaysLocal(t *testing.T) {
	cfg := testPaymentConfig()
	cfg.MerchantKey = ""
	cfg.MerchantToken = ""

	svc, mock, cleanup := newTestPaymentService(t, cfg)
	defer cleanup()

	mock.ExpectQuery("INSERT INTO payment_intents").
		WillReturnRows(sqlmock.NewRows([]string{"created_at", "updated_at"}).AddRow(time.Now(), time.Now()))

	booking := &models.Booking{
		ID:               "booking-1",
		Seats:            models.SeatList{"A1", "A2"},
		PassengerName:    "Nimal Perera",
		PaymentMethod:    "card",
		BookingReference: "BK-20250303-7XKQ2M",
	}
	trip := &models.Trip{Fare: 1500}

	result, err := svc.Initiate(booking, trip)
	require.NoError(t, err)

	assert.Equal(t, "PI-BK-20250303-7XKQ2M", result.Intent.InvoiceID)
	assert.Equal(t, 3000.0, result.Intent.Amount)
	assert.Equal(t, models.PaymentIntentPending, result.Intent.Status)
	assert.Contains(t, result.PaymentURL, "PI-BK-20250303-7XKQ2M")

	assert.NoError(t, mock.ExpectationsWereMet())
}

func webhookBody(t *testing.T, svc *PaymentService, invoiceID, amount, currency, paymentStatus, uid string) []byte {
	t.Helper()

	payload := WebhookPayload{
		UID:             uid,
		InvoiceID:       invoiceID,
		Amount:          amount,
		CurrencyCode:    currency,
		PaymentStatus:   paymentStatus,
		StatusIndicator: "IND-1",
		CheckValue:      svc.GenerateCheckValue(invoiceID, amount, currency),
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	return body
}

func TestVerifyWebhookAccepts(t *testing.T) {
	svc, mock, cleanup := newTestPaymentService(t, testPaymentConfig())
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM payment_intents").
		WithArgs("PI-BK-1").
		WillReturnRows(sqlmock.NewRows(intentColumns()).
			AddRow("intent-1", "booking-1", 3000.0, "LKR", "card", "pending", "PI-BK-1",
				"UID-1", "IND-1", now, now))

	body := webhookBody(t, svc, "PI-BK-1", "3000.00", "LKR", "SUCCESS", "UID-1")

	intent, outcome, err := svc.VerifyWebhook(body)
	require.NoError(t, err)
	assert.Equal(t, "intent-1", intent.ID)
	assert.Equal(t, models.PaymentOutcomeSucceeded, outcome)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestVerifyWebhookRejectsBadCheckValue(t *testing.T) {
	svc, mock, cleanup := newTestPaymentService(t, testPaymentConfig())
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM payment_intents").
		WithArgs("PI-BK-1").
		WillReturnRows(sqlmock.NewRows(intentColumns()).
			AddRow("intent-1", "booking-1", 3000.0, "LKR", "card", "pending", "PI-BK-1",
				"UID-1", "IND-1", now, now))

	payload := WebhookPayload{
		UID:           "UID-1",
		InvoiceID:     "PI-BK-1",
		Amount:        "3000.00",
		CurrencyCode:  "LKR",
		PaymentStatus: "SUCCESS",
		CheckValue:    "FORGED",
	}
	body, err := json.Marshal(payload)
	require.NoError(t, err)

	_, _, err = svc.VerifyWebhook(body)
	assert.ErrorIs(t, err, models.ErrCallbackVerification)
}

func TestVerifyWebhookRejectsUIDMismatch(t *testing.T) {
	svc, mock, cleanup := newTestPaymentService(t, testPaymentConfig())
	defer cleanup()

	now := time.Now()
	mock.ExpectQuery("SELECT (.+) FROM payment_intents").
		WithArgs("PI-BK-1").
		WillReturnRows(sqlmock.NewRows(intentColumns()).
			AddRow("intent-1", "booking-1", 3000.0, "LKR", "card", "pending", "PI-BK-1",
				"UID-STORED", "IND-1", now, now))

	body := webhookBody(t, svc, "PI-BK-1", "3000.00", "LKR", "SUCCESS", "UID-OTHER")

	_, _, err := svc.VerifyWebhook(body)
	assert.ErrorIs(t, err, models.ErrCallbackVerification)
}

func TestVerifyWebhookRejectsUnknownInvoice(t *testing.T) {
	svc, mock, cleanup := newTestPaymentService(t, testPaymentConfig())
	defer cleanup()

	mock.ExpectQuery("SELECT (.+) FROM payment_intents").
		WithArgs("PI-UNKNOWN").
		WillReturnRows(sqlmock.NewRows(intentColumns()))

	body := webhookBody(t, svc, "PI-UNKNOWN", "3000.00", "LKR", "SUCCESS", "UID-1")

	_, _, err := svc.VerifyWebhook(body)
	assert.ErrorIs(t, err, models.ErrCallbackVerification)
}

func TestVerifyWebhookRejectsMalformedPayload(t *testing.T) {
	svc, _, cleanup := newTestPaymentService(t, testPaymentConfig())
	defer cleanup()

	_, _, err := svc.VerifyWebhook([]byte("not json"))
	assert.ErrorIs(t, err, models.ErrCallbackVerification)
}

func TestMapPaymentStatus(t *testing.T) {
	tests := []struct {
		status  string
		outcome models.PaymentOutcome
	}{
		{"SUCCESS", models.PaymentOutcomeSucceeded},
		{"success", models.PaymentOutcomeSucceeded},
		{"EXPIRED", models.PaymentOutcomeExpired},
		{"CANCELLED", models.PaymentOutcomeExpired},
		{"FAILED", models.PaymentOutcomeFailed},
		{"DECLINED", models.PaymentOutcomeFailed},
		{"", models.PaymentOutcomeFailed},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.outcome, mapPaymentStatus(tt.status), "status %q", tt.status)
	}
}

func TestApplyOutcomeIgnoresSettledIntent(t *testing.T) {
	svc, mock, cleanup := newTestPaymentService(t, testPaymentConfig())
	defer cleanup()

	intent := &models.PaymentIntent{
		ID:     "intent-1",
		Status: models.PaymentIntentSucceeded,
	}

	// No update expected for an already terminal intent.
	require.NoError(t, svc.ApplyOutcome(intent, models.PaymentOutcomeFailed))
	assert.Equal(t, models.PaymentIntentSucceeded, intent.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyOutcomeSettlesPendingIntent(t *testing.T) {
	svc, mock, cleanup := newTestPaymentService(t, testPaymentConfig())
	defer cleanup()

	mock.ExpectExec("UPDATE payment_intents").
		WithArgs("intent-1", models.PaymentIntentExpired).
		WillReturnResult(sqlmock.NewResult(0, 1))

	intent := &models.PaymentIntent{ID: "intent-1", Status: models.PaymentIntentPending}

	require.NoError(t, svc.ApplyOutcome(intent, models.PaymentOutcomeExpired))
	assert.Equal(t, models.PaymentIntentExpired, intent.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
