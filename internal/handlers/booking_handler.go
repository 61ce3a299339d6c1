package handlers

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/buslink/booking-backend/internal/database"
	"github.com/buslink/booking-backend/internal/models"
	"github.com/buslink/booking-backend/internal/services"
)

// materializeAttempts bounds retries when the store flakes mid-checkout
const materializeAttempts = 3

// BookingHandler handles passenger booking operations
type BookingHandler struct {
	tripRepo     *database.TripRepository
	projector    *services.ScheduleProjector
	materializer *services.TripMaterializer
	allocator    *services.SeatAllocator
	paymentSvc   *services.PaymentService
	logger       *logrus.Logger
}

// NewBookingHandler creates a new BookingHandler
func NewBookingHandler(
	tripRepo *database.TripRepository,
	projector *services.ScheduleProjector,
	materializer *services.TripMaterializer,
	allocator *services.SeatAllocator,
	paymentSvc *services.PaymentService,
	logger *logrus.Logger,
) *BookingHandler {
	return &BookingHandler{
		tripRepo:     tripRepo,
		projector:    projector,
		materializer: materializer,
		allocator:    allocator,
		paymentSvc:   paymentSvc,
		logger:       logger,
	}
}

// CreateBooking books seats on a trip and initiates payment
// POST /api/v1/bookings
func (h *BookingHandler) CreateBooking(c *gin.Context) {
	var req models.CreateBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body", "details": err.Error()})
		return
	}

	if err := req.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ref, err := h.resolveTripRef(&req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	trip, err := h.materializeWithRetry(ref)
	if err != nil {
		h.respondError(c, err)
		return
	}

	booking, err := h.allocator.CreateBooking(trip, &req)
	if err != nil {
		h.respondError(c, err)
		return
	}

	payment, err := h.paymentSvc.Initiate(booking, trip)
	if err != nil {
		// The booking exists in PENDING; the expiry job reclaims the
		// seats if the passenger never retries payment.
		h.logger.WithError(err).WithField("booking_id", booking.ID).Error("Payment initiation failed")
		c.JSON(http.StatusBadGateway, gin.H{
			"error":   "Payment initiation failed, please retry",
			"booking": booking,
		})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"booking":     booking,
		"payment_url": payment.PaymentURL,
		"invoice_id":  payment.Intent.InvoiceID,
	})
}

// GetBooking retrieves a booking by its reference
// GET /api/v1/bookings/:reference
func (h *BookingHandler) GetBooking(c *gin.Context) {
	booking, err := h.allocator.GetByReference(c.Param("reference"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": booking})
}

// CancelBooking cancels a booking by its reference
// POST /api/v1/bookings/:reference/cancel
func (h *BookingHandler) CancelBooking(c *gin.Context) {
	// Cancellation body is optional.
	var req models.CancelBookingRequest
	_ = c.ShouldBindJSON(&req)

	booking, err := h.allocator.GetByReference(c.Param("reference"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	cancelled, err := h.allocator.CancelBooking(booking.ID, req.Reason)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": cancelled})
}

// CheckInBooking marks a confirmed booking as checked in
// POST /api/v1/bookings/:reference/check-in
func (h *BookingHandler) CheckInBooking(c *gin.Context) {
	booking, err := h.allocator.GetByReference(c.Param("reference"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	checked, err := h.allocator.CheckIn(booking.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": checked})
}

// CompleteBooking marks a checked-in booking as completed
// POST /api/v1/staff/bookings/:reference/complete
func (h *BookingHandler) CompleteBooking(c *gin.Context) {
	booking, err := h.allocator.GetByReference(c.Param("reference"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	completed, err := h.allocator.Complete(booking.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": completed})
}

// RefundBooking marks a confirmed or cancelled booking as refunded.
// The money movement itself happens at the gateway; this records it.
// POST /api/v1/staff/bookings/:reference/refund
func (h *BookingHandler) RefundBooking(c *gin.Context) {
	booking, err := h.allocator.GetByReference(c.Param("reference"))
	if err != nil {
		h.respondError(c, err)
		return
	}

	refunded, err := h.allocator.Refund(booking.ID)
	if err != nil {
		h.respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"booking": refunded})
}

// resolveTripRef turns the request's trip reference into a TripRef. A
// trip id resolves directly; a structural key is matched against the
// route's projections for that date.
func (h *BookingHandler) resolveTripRef(req *models.CreateBookingRequest) (models.TripRef, error) {
	if req.TripID != nil {
		trip, err := h.tripRepo.GetByID(*req.TripID)
		if err != nil {
			return models.TripRef{}, err
		}
		return models.PersistedRef(trip), nil
	}

	date, err := time.Parse("2006-01-02", req.DepartureDate)
	if err != nil {
		return models.TripRef{}, err
	}

	projections, err := h.projector.ProjectRoute(req.RouteID, date, date)
	if err != nil {
		return models.TripRef{}, err
	}

	for i := range projections {
		if projections[i].DepartureTime == req.DepartureTime {
			return models.ProjectedRef(&projections[i]), nil
		}
	}

	return models.TripRef{}, models.ErrTripNotFound
}

// materializeWithRetry retries materialization on transient store
// failures. Races are resolved inside the materializer and never reach
// this loop.
func (h *BookingHandler) materializeWithRetry(ref models.TripRef) (*models.Trip, error) {
	var lastErr error
	for attempt := 0; attempt < materializeAttempts; attempt++ {
		trip, err := h.materializer.Materialize(ref)
		if err == nil {
			return trip, nil
		}
		lastErr = err
		if !errors.Is(err, models.ErrStorageUnavailable) {
			return nil, err
		}
	}
	return nil, lastErr
}

// respondError maps domain errors onto HTTP status codes
func (h *BookingHandler) respondError(c *gin.Context, err error) {
	var seatErr *models.SeatUnavailableError
	var invalidSeat *models.InvalidSeatError
	var transitionErr *models.InvalidStateTransitionError

	switch {
	case errors.As(err, &seatErr):
		c.JSON(http.StatusConflict, gin.H{
			"error":          "Some seats are no longer available",
			"taken_seats":    seatErr.Taken,
			"occupied_seats": seatErr.Occupied,
		})
	case errors.As(err, &invalidSeat):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &transitionErr):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrTripNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Trip not found"})
	case errors.Is(err, models.ErrBookingNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Booking not found"})
	case errors.Is(err, models.ErrInvalidProjection):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, models.ErrBookingStateChanged):
		c.JSON(http.StatusConflict, gin.H{"error": "Booking changed concurrently, please retry"})
	case errors.Is(err, models.ErrReferenceExhausted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Could not allocate a booking reference, please retry"})
	default:
		h.logger.WithError(err).Error("Unhandled booking error")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}
