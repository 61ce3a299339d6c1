package services

import (
	"bytes"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/buslink/booking-backend/internal/config"
	"github.com/buslink/booking-backend/internal/database"
	"github.com/buslink/booking-backend/internal/models"
)

// PaymentEnvironmentURLs maps environment names to their IPG endpoint URLs
var PaymentEnvironmentURLs = map[string]string{
	"dev":        "https://payable-ipg-dev.web.app/ipg/dev",
	"sandbox":    "https://sandboxipgpayment.payable.lk/ipg/sandbox",
	"production": "https://ipgpayment.payable.lk/ipg/pro",
}

// PaymentService is the boundary between the booking pipeline and the
// external payment gateway. It owns the payment_intents table: intents
// are created here, and only terminal outcomes reported through
// VerifyWebhook move them out of pending.
type PaymentService struct {
	intentRepo *database.PaymentIntentRepository
	config     *config.PaymentConfig
	logger     *logrus.Logger
	client     *http.Client
}

// gatewayInitRequest is the payload sent to the IPG.
// NOTE: merchantToken is never sent, it is only folded into checkValue.
type gatewayInitRequest struct {
	MerchantKey string `json:"merchantKey"`

	ReturnURL  string `json:"returnUrl"`
	WebhookURL string `json:"webhookUrl,omitempty"`

	PaymentType  int    `json:"paymentType"` // 1 = one-time
	InvoiceID    string `json:"invoiceId"`
	Amount       string `json:"amount"`
	CurrencyCode string `json:"currencyCode"`

	OrderDescription string `json:"orderDescription,omitempty"`

	CustomerFirstName   string `json:"customerFirstName"`
	CustomerLastName    string `json:"customerLastName"`
	CustomerEmail       string `json:"customerEmail"`
	CustomerMobilePhone string `json:"customerMobilePhone"`

	CheckValue string `json:"checkValue"`

	IntegrationType    string `json:"integrationType"`
	IntegrationVersion string `json:"integrationVersion"`
}

// gatewayInitResponse is the IPG response to an initiation request
type gatewayInitResponse struct {
	Status          string `json:"status"`
	UID             string `json:"uid"`
	StatusIndicator string `json:"statusIndicator"`
	PaymentPage     string `json:"paymentPage"`
	Message         string `json:"message,omitempty"`
}

// WebhookPayload is the asynchronous payment notification from the gateway
type WebhookPayload struct {
	UID             string `json:"uid"`
	InvoiceID       string `json:"invoiceId"`
	Amount          string `json:"amount"`
	CurrencyCode    string `json:"currencyCode"`
	PaymentStatus   string `json:"paymentStatus"` // "SUCCESS", "FAILED", "CANCELLED", "EXPIRED"
	StatusIndicator string `json:"statusIndicator"`
	CheckValue      string `json:"checkValue"`
}

// InitiateResult carries what the booking handler needs to hand back to
// the passenger after initiation.
type InitiateResult struct {
	Intent     *models.PaymentIntent
	PaymentURL string
}

// NewPaymentService creates a new PaymentService
func NewPaymentService(
	intentRepo *database.PaymentIntentRepository,
	cfg *config.PaymentConfig,
	logger *logrus.Logger,
) *PaymentService {
	return &PaymentService{
		intentRepo: intentRepo,
		config:     cfg,
		logger:     logger,
		client: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GenerateCheckValue creates the SHA-512 checkValue for gateway authentication
// Step 1: hash1 = SHA512(merchantToken) uppercase hex
// Step 2: hash2 = SHA512("merchantKey|invoiceId|amount|currencyCode|hash1") uppercase hex
func (s *PaymentService) GenerateCheckValue(invoiceID, amount, currencyCode string) string {
	hash1 := sha512.Sum512([]byte(s.config.MerchantToken))
	hash1Hex := strings.ToUpper(hex.EncodeToString(hash1[:]))

	data := fmt.Sprintf("%s|%s|%s|%s|%s",
		s.config.MerchantKey,
		invoiceID,
		amount,
		currencyCode,
		hash1Hex,
	)
	hash2 := sha512.Sum512([]byte(data))
	return strings.ToUpper(hex.EncodeToString(hash2[:]))
}

// IsConfigured returns true if the gateway credentials are present
func (s *PaymentService) IsConfigured() bool {
	return s.config.MerchantKey != "" && s.config.MerchantToken != ""
}

// Initiate creates a pending payment intent for a booking and asks the
// gateway for a payment page. Without gateway credentials it stays
// local: the intent is still created so the webhook simulator and the
// expiry job behave the same in development.
func (s *PaymentService) Initiate(booking *models.Booking, trip *models.Trip) (*InitiateResult, error) {
	amount := trip.Fare * float64(len(booking.Seats))
	amountStr := fmt.Sprintf("%.2f", amount)

	intent := &models.PaymentIntent{
		BookingID: booking.ID,
		Amount:    amount,
		Currency:  s.config.Currency,
		Method:    booking.PaymentMethod,
		Status:    models.PaymentIntentPending,
		InvoiceID: fmt.Sprintf("PI-%s", booking.BookingReference),
	}

	if err := s.intentRepo.Create(intent); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	if !s.IsConfigured() {
		s.logger.WithFields(logrus.Fields{
			"invoice_id": intent.InvoiceID,
			"amount":     amountStr,
		}).Warn("Payment gateway not configured, returning local payment URL")
		return &InitiateResult{
			Intent:     intent,
			PaymentURL: fmt.Sprintf("/payments/simulate?invoice_id=%s", intent.InvoiceID),
		}, nil
	}

	checkValue := s.GenerateCheckValue(intent.InvoiceID, amountStr, intent.Currency)
	firstName, lastName := splitName(booking.PassengerName)
	if lastName == "" {
		lastName = "." // gateway requires a last name
	}

	request := &gatewayInitRequest{
		MerchantKey:         s.config.MerchantKey,
		ReturnURL:           s.config.ReturnURL,
		WebhookURL:          s.config.WebhookURL,
		PaymentType:         1,
		InvoiceID:           intent.InvoiceID,
		Amount:              amountStr,
		CurrencyCode:        intent.Currency,
		OrderDescription:    fmt.Sprintf("Bus booking %s", booking.BookingReference),
		CustomerFirstName:   firstName,
		CustomerLastName:    lastName,
		CustomerEmail:       booking.PassengerEmail,
		CustomerMobilePhone: booking.PassengerPhone,
		CheckValue:          checkValue,
		IntegrationType:     "Buslink",
		IntegrationVersion:  "1.0.0",
	}

	endpointURL, ok := PaymentEnvironmentURLs[s.config.Environment]
	if !ok {
		endpointURL = PaymentEnvironmentURLs["sandbox"]
	}

	s.logger.WithFields(logrus.Fields{
		"invoice_id": intent.InvoiceID,
		"amount":     amountStr,
		"currency":   intent.Currency,
		"endpoint":   endpointURL,
	}).Info("Initiating gateway payment")

	jsonBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := s.client.Post(endpointURL, "application/json", bytes.NewBuffer(jsonBody))
	if err != nil {
		s.logger.WithError(err).Error("Failed to call payment gateway")
		return nil, fmt.Errorf("failed to call payment gateway: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("payment gateway returned status %d: %s", resp.StatusCode, string(body))
	}

	var initResp gatewayInitResponse
	if err := json.Unmarshal(body, &initResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	// The gateway reports "PENDING" when the payment page is ready.
	if initResp.Status != "success" && initResp.Status != "PENDING" {
		errMsg := initResp.Message
		if errMsg == "" {
			errMsg = fmt.Sprintf("status=%s", initResp.Status)
		}
		return nil, fmt.Errorf("payment initiation failed: %s", errMsg)
	}
	if initResp.PaymentPage == "" {
		return nil, fmt.Errorf("payment initiation failed: no payment page URL returned")
	}

	if err := s.intentRepo.SetGatewayRefs(intent.ID, initResp.UID, initResp.StatusIndicator); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	intent.GatewayUID = &initResp.UID
	intent.StatusIndicator = &initResp.StatusIndicator

	s.logger.WithFields(logrus.Fields{
		"invoice_id":   intent.InvoiceID,
		"uid":          initResp.UID,
		"payment_page": initResp.PaymentPage,
	}).Info("Gateway payment initiated")

	return &InitiateResult{Intent: intent, PaymentURL: initResp.PaymentPage}, nil
}

// VerifyWebhook authenticates a gateway notification and resolves it to
// the payment intent it belongs to. The checkValue is recomputed from
// our own merchant credentials and the stored gateway references are
// compared against the payload; any mismatch fails verification and the
// payload is discarded without touching booking state.
func (s *PaymentService) VerifyWebhook(body []byte) (*models.PaymentIntent, models.PaymentOutcome, error) {
	var payload WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, "", fmt.Errorf("%w: malformed payload: %v", models.ErrCallbackVerification, err)
	}

	if payload.UID == "" || payload.InvoiceID == "" {
		return nil, "", fmt.Errorf("%w: missing required fields", models.ErrCallbackVerification)
	}

	intent, err := s.intentRepo.GetByInvoiceID(payload.InvoiceID)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	if intent == nil {
		return nil, "", fmt.Errorf("%w: unknown invoice %s", models.ErrCallbackVerification, payload.InvoiceID)
	}

	expected := s.GenerateCheckValue(payload.InvoiceID, payload.Amount, payload.CurrencyCode)
	if !strings.EqualFold(payload.CheckValue, expected) {
		s.logger.WithField("invoice_id", payload.InvoiceID).Warn("Webhook checkValue mismatch")
		return nil, "", fmt.Errorf("%w: checkValue mismatch", models.ErrCallbackVerification)
	}

	if intent.GatewayUID != nil && *intent.GatewayUID != payload.UID {
		return nil, "", fmt.Errorf("%w: transaction id mismatch", models.ErrCallbackVerification)
	}
	if intent.StatusIndicator != nil && payload.StatusIndicator != "" && *intent.StatusIndicator != payload.StatusIndicator {
		return nil, "", fmt.Errorf("%w: status indicator mismatch", models.ErrCallbackVerification)
	}

	outcome := mapPaymentStatus(payload.PaymentStatus)

	s.logger.WithFields(logrus.Fields{
		"invoice_id":     payload.InvoiceID,
		"uid":            payload.UID,
		"payment_status": payload.PaymentStatus,
		"outcome":        outcome,
	}).Info("Webhook verified")

	return intent, outcome, nil
}

// ApplyOutcome records a terminal outcome on the intent. Already
// terminal intents are left as they are so replayed webhooks cannot
// flip a settled payment.
func (s *PaymentService) ApplyOutcome(intent *models.PaymentIntent, outcome models.PaymentOutcome) error {
	if intent.IsTerminal() {
		s.logger.WithFields(logrus.Fields{
			"invoice_id": intent.InvoiceID,
			"status":     intent.Status,
		}).Info("Ignoring outcome for settled payment intent")
		return nil
	}

	var status models.PaymentIntentStatus
	switch outcome {
	case models.PaymentOutcomeSucceeded:
		status = models.PaymentIntentSucceeded
	case models.PaymentOutcomeExpired:
		status = models.PaymentIntentExpired
	default:
		status = models.PaymentIntentFailed
	}

	if err := s.intentRepo.UpdateStatus(intent.ID, status); err != nil {
		return fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	intent.Status = status
	return nil
}

// GetIntentForBooking returns the latest payment intent for a booking
func (s *PaymentService) GetIntentForBooking(bookingID string) (*models.PaymentIntent, error) {
	return s.intentRepo.GetByBookingID(bookingID)
}

// mapPaymentStatus folds the gateway's status vocabulary into the three
// terminal outcomes the booking pipeline understands. Anything
// unrecognised counts as a failure, not a success.
func mapPaymentStatus(paymentStatus string) models.PaymentOutcome {
	switch strings.ToUpper(paymentStatus) {
	case "SUCCESS":
		return models.PaymentOutcomeSucceeded
	case "EXPIRED", "CANCELLED":
		return models.PaymentOutcomeExpired
	default:
		return models.PaymentOutcomeFailed
	}
}

// splitName splits a full name into first and last name
func splitName(fullName string) (firstName, lastName string) {
	parts := strings.Fields(fullName)
	if len(parts) == 0 {
		return "Customer", ""
	}
	if len(parts) == 1 {
		return parts[0], ""
	}
	return parts[0], strings.Join(parts[1:], " ")
}
