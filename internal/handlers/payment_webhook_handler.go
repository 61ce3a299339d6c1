package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/buslink/booking-backend/internal/services"
)

// PaymentWebhookHandler receives asynchronous payment notifications
// from the gateway
type PaymentWebhookHandler struct {
	paymentSvc *services.PaymentService
	allocator  *services.SeatAllocator
	logger     *logrus.Logger
}

// NewPaymentWebhookHandler creates a new PaymentWebhookHandler
func NewPaymentWebhookHandler(
	paymentSvc *services.PaymentService,
	allocator *services.SeatAllocator,
	logger *logrus.Logger,
) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{
		paymentSvc: paymentSvc,
		allocator:  allocator,
		logger:     logger,
	}
}

// HandleWebhook verifies a gateway notification and applies its outcome
// to the payment intent and the booking. The response is always a
// generic acknowledgement: the gateway retries on non-200, and a
// payload that failed verification will never verify on a retry either.
// POST /api/v1/payments/webhook
func (h *PaymentWebhookHandler) HandleWebhook(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to read webhook body")
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	intent, outcome, err := h.paymentSvc.VerifyWebhook(body)
	if err != nil {
		h.logger.WithError(err).Warn("Webhook rejected")
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	if err := h.paymentSvc.ApplyOutcome(intent, outcome); err != nil {
		h.logger.WithError(err).WithField("invoice_id", intent.InvoiceID).Error("Failed to settle payment intent")
		c.JSON(http.StatusOK, gin.H{"status": "received"})
		return
	}

	if _, err := h.allocator.ConfirmPayment(intent.BookingID, outcome); err != nil {
		h.logger.WithError(err).WithFields(logrus.Fields{
			"invoice_id": intent.InvoiceID,
			"booking_id": intent.BookingID,
		}).Error("Failed to apply payment outcome to booking")
	}

	c.JSON(http.StatusOK, gin.H{"status": "received"})
}
