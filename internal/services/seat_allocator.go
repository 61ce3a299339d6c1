package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/buslink/booking-backend/internal/database"
	"github.com/buslink/booking-backend/internal/models"
)

// referenceAlphabet excludes confusable characters (0/O, 1/I) so
// references survive being read over the phone. 32 characters keeps
// the byte modulo unbiased.
const referenceAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// referenceAttempts bounds regeneration on the rare reference collision
const referenceAttempts = 5

// Notifier enqueues outbound passenger notifications
type Notifier interface {
	Enqueue(channel models.MessageChannel, recipient, payload string) (*models.OutboundMessage, error)
}

// SeatAllocator owns the booking lifecycle: it reserves seats against
// materialized trips, drives the booking state machine, and reconciles
// bookings with payment outcomes. Seat disjointness is delegated to the
// repository's reservation transaction; no application-level locks.
type SeatAllocator struct {
	bookingRepo *database.BookingRepository
	busRepo     *database.BusRepository
	notifier    Notifier
	logger      *logrus.Logger
}

// NewSeatAllocator creates a new SeatAllocator
func NewSeatAllocator(
	bookingRepo *database.BookingRepository,
	busRepo *database.BusRepository,
	notifier Notifier,
	logger *logrus.Logger,
) *SeatAllocator {
	return &SeatAllocator{
		bookingRepo: bookingRepo,
		busRepo:     busRepo,
		notifier:    notifier,
		logger:      logger,
	}
}

// CreateBooking reserves the requested seats on a materialized trip and
// returns a PENDING booking. Seat labels are validated against the bus
// seat map first; availability is checked transactionally by the
// repository, so two shoppers racing on the same seat serialize and
// exactly one wins.
func (s *SeatAllocator) CreateBooking(trip *models.Trip, req *models.CreateBookingRequest) (*models.Booking, error) {
	if trip.Status != models.TripStatusScheduled {
		return nil, fmt.Errorf("trip is not open for booking (status: %s)", trip.Status)
	}

	bus, err := s.busRepo.GetByID(trip.BusID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}
	for _, seat := range req.Seats {
		if !bus.HasSeat(seat) {
			return nil, &models.InvalidSeatError{Seat: seat}
		}
	}

	for attempt := 0; attempt < referenceAttempts; attempt++ {
		reference, err := generateBookingReference()
		if err != nil {
			return nil, fmt.Errorf("failed to generate booking reference: %w", err)
		}

		booking := &models.Booking{
			TripID:           trip.ID,
			Seats:            models.SeatList(req.Seats),
			PassengerName:    req.PassengerName,
			PassengerEmail:   req.PassengerEmail,
			PassengerPhone:   req.PassengerPhone,
			PaymentMethod:    req.PaymentMethod,
			Status:           models.BookingStatusPending,
			BookingReference: reference,
		}

		err = s.bookingRepo.CreateWithSeatCheck(booking)
		if err == nil {
			s.logger.WithFields(logrus.Fields{
				"booking_id":        booking.ID,
				"booking_reference": booking.BookingReference,
				"trip_id":           trip.ID,
				"seats":             req.Seats,
			}).Info("Booking created")
			return booking, nil
		}

		var seatErr *models.SeatUnavailableError
		if errors.As(err, &seatErr) {
			return nil, seatErr
		}

		if database.IsUniqueViolation(err) {
			// Reference collision; regenerate and try again.
			continue
		}

		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	s.logger.Error("Booking reference space exhausted after repeated collisions")
	return nil, models.ErrReferenceExhausted
}

// ConfirmPayment applies a terminal payment outcome to a booking. Only
// effectful from PENDING: success confirms and enqueues the
// confirmation message, failure or expiry cancels (seats release
// implicitly since occupancy is computed from live bookings). Calling
// this on a booking already past PENDING returns the current state
// unchanged, which makes duplicate gateway callbacks harmless.
func (s *SeatAllocator) ConfirmPayment(bookingID string, outcome models.PaymentOutcome) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByID(bookingID)
	if err != nil {
		return nil, err
	}

	if booking.Status != models.BookingStatusPending {
		s.logger.WithFields(logrus.Fields{
			"booking_id": bookingID,
			"status":     booking.Status,
			"outcome":    outcome,
		}).Info("Duplicate payment outcome ignored")
		return booking, nil
	}

	switch outcome {
	case models.PaymentOutcomeSucceeded:
		if err := booking.TransitionTo(models.BookingStatusConfirmed); err != nil {
			return nil, err
		}
		err := s.bookingRepo.UpdateStatus(booking.ID, models.BookingStatusPending, models.BookingStatusConfirmed)
		if errors.Is(err, models.ErrBookingStateChanged) {
			return s.resolveLostOutcomeRace(bookingID, outcome)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
		}
		s.enqueueConfirmation(booking)

	case models.PaymentOutcomeFailed, models.PaymentOutcomeExpired:
		reason := fmt.Sprintf("payment %s", outcome)
		if err := booking.TransitionTo(models.BookingStatusCancelled); err != nil {
			return nil, err
		}
		booking.CancellationReason = &reason
		err := s.bookingRepo.Cancel(booking.ID, &reason, models.BookingStatusPending)
		if errors.Is(err, models.ErrBookingStateChanged) {
			return s.resolveLostOutcomeRace(bookingID, outcome)
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
		}

	default:
		return nil, fmt.Errorf("unknown payment outcome: %s", outcome)
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id":        booking.ID,
		"booking_reference": booking.BookingReference,
		"outcome":           outcome,
		"status":            booking.Status,
	}).Info("Payment outcome applied")

	return booking, nil
}

// resolveLostOutcomeRace handles an outcome whose status write matched
// zero rows: some concurrent transition (expiry sweep, duplicate
// callback, staff cancellation) got there first. Whatever is in the row
// now wins; the late outcome is dropped without enqueueing anything.
func (s *SeatAllocator) resolveLostOutcomeRace(bookingID string, outcome models.PaymentOutcome) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByID(bookingID)
	if err != nil {
		return nil, err
	}

	s.logger.WithFields(logrus.Fields{
		"booking_id": bookingID,
		"status":     booking.Status,
		"outcome":    outcome,
	}).Info("Payment outcome lost a concurrent transition, keeping current state")

	return booking, nil
}

// CancelBooking cancels a booking. Legal only from PENDING or
// CONFIRMED; any other starting state raises InvalidStateTransition
// naming the attempted edge. Safe to call repeatedly from the expiry
// sweep: cancelling an already-cancelled booking is a no-op. Retries
// once when the cancel write loses a race, since the booking may have
// just moved PENDING to CONFIRMED and still be cancellable.
func (s *SeatAllocator) CancelBooking(bookingID string, reason *string) (*models.Booking, error) {
	for attempt := 0; attempt < 2; attempt++ {
		booking, err := s.bookingRepo.GetByID(bookingID)
		if err != nil {
			return nil, err
		}

		if booking.Status == models.BookingStatusCancelled {
			return booking, nil
		}

		from := booking.Status
		if err := booking.TransitionTo(models.BookingStatusCancelled); err != nil {
			return nil, err
		}
		booking.CancellationReason = reason

		err = s.bookingRepo.Cancel(booking.ID, reason, from)
		if errors.Is(err, models.ErrBookingStateChanged) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
		}

		s.logger.WithFields(logrus.Fields{
			"booking_id":        booking.ID,
			"booking_reference": booking.BookingReference,
		}).Info("Booking cancelled")

		return booking, nil
	}

	return nil, models.ErrBookingStateChanged
}

// CheckIn moves a confirmed booking to CHECKED_IN
func (s *SeatAllocator) CheckIn(bookingID string) (*models.Booking, error) {
	return s.transition(bookingID, models.BookingStatusCheckedIn)
}

// Complete moves a checked-in booking to COMPLETED
func (s *SeatAllocator) Complete(bookingID string) (*models.Booking, error) {
	return s.transition(bookingID, models.BookingStatusCompleted)
}

// Refund moves a confirmed or cancelled booking to REFUNDED
func (s *SeatAllocator) Refund(bookingID string) (*models.Booking, error) {
	return s.transition(bookingID, models.BookingStatusRefunded)
}

// GetByReference retrieves a booking by its reference
func (s *SeatAllocator) GetByReference(reference string) (*models.Booking, error) {
	return s.bookingRepo.GetByReference(reference)
}

func (s *SeatAllocator) transition(bookingID string, target models.BookingStatus) (*models.Booking, error) {
	booking, err := s.bookingRepo.GetByID(bookingID)
	if err != nil {
		return nil, err
	}

	from := booking.Status
	if err := booking.TransitionTo(target); err != nil {
		return nil, err
	}

	err = s.bookingRepo.UpdateStatus(booking.ID, from, target)
	if errors.Is(err, models.ErrBookingStateChanged) {
		current, readErr := s.bookingRepo.GetByID(bookingID)
		if readErr != nil {
			return nil, readErr
		}
		if current.Status == target {
			return current, nil
		}
		return nil, &models.InvalidStateTransitionError{From: current.Status, To: target}
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	return booking, nil
}

// enqueueConfirmation queues the confirmation message for each channel
// the passenger gave us contact details for. Enqueue failures are
// logged, not surfaced: the booking is confirmed regardless.
func (s *SeatAllocator) enqueueConfirmation(booking *models.Booking) {
	payload := fmt.Sprintf(
		"Your booking %s is confirmed. Seats: %s. See you on board!",
		booking.BookingReference, strings.Join(booking.Seats, ", "),
	)

	if booking.PassengerEmail != "" {
		if _, err := s.notifier.Enqueue(models.ChannelEmail, booking.PassengerEmail, payload); err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to enqueue confirmation email")
		}
	}
	if booking.PassengerPhone != "" {
		if _, err := s.notifier.Enqueue(models.ChannelSMS, booking.PassengerPhone, payload); err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to enqueue confirmation SMS")
		}
	}
}

// generateBookingReference builds a date-stamped reference with a
// random suffix, e.g. BK-20250301-7XKQ2M.
func generateBookingReference() (string, error) {
	todayStr := time.Now().Format("20060102")

	suffix := make([]byte, 6)
	if _, err := rand.Read(suffix); err != nil {
		return "", err
	}
	for i, b := range suffix {
		suffix[i] = referenceAlphabet[int(b)%len(referenceAlphabet)]
	}

	return fmt.Sprintf("BK-%s-%s", todayStr, string(suffix)), nil
}
