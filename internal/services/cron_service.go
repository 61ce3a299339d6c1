package services

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
	"github.com/buslink/booking-backend/internal/config"
	"github.com/buslink/booking-backend/internal/database"
	"github.com/buslink/booking-backend/internal/models"
)

// expiryBatchSize bounds how many stale bookings a single expiry run touches
const expiryBatchSize = 100

// CronService manages scheduled background jobs: expiring bookings that
// never received a payment outcome, and pruning the notification queue.
type CronService struct {
	cron            *cron.Cron
	bookingRepo     *database.BookingRepository
	allocator       *SeatAllocator
	paymentSvc      *PaymentService
	notificationSvc *NotificationService
	bookingCfg      *config.BookingConfig
	notificationCfg *config.NotificationConfig
	logger          *logrus.Logger
}

// NewCronService creates a new CronService
func NewCronService(
	bookingRepo *database.BookingRepository,
	allocator *SeatAllocator,
	paymentSvc *PaymentService,
	notificationSvc *NotificationService,
	bookingCfg *config.BookingConfig,
	notificationCfg *config.NotificationConfig,
	logger *logrus.Logger,
) *CronService {
	return &CronService{
		cron:            cron.New(cron.WithSeconds()),
		bookingRepo:     bookingRepo,
		allocator:       allocator,
		paymentSvc:      paymentSvc,
		notificationSvc: notificationSvc,
		bookingCfg:      bookingCfg,
		notificationCfg: notificationCfg,
		logger:          logger,
	}
}

// Start schedules and starts all cron jobs
func (s *CronService) Start() error {
	s.logger.Info("Starting cron service")

	// Cron format: second minute hour day month weekday
	// Expire unpaid bookings every minute.
	_, err := s.cron.AddFunc("0 * * * * *", s.expireStaleBookingsJob)
	if err != nil {
		return fmt.Errorf("failed to schedule booking expiry job: %w", err)
	}

	// Prune terminal notification rows daily at 4 AM.
	_, err = s.cron.AddFunc("0 0 4 * * *", s.cleanupNotificationsJob)
	if err != nil {
		return fmt.Errorf("failed to schedule notification cleanup job: %w", err)
	}

	s.cron.Start()
	s.logger.Info("Cron service started")

	return nil
}

// Stop stops all cron jobs and waits for running ones to finish
func (s *CronService) Stop() {
	s.logger.Info("Stopping cron service")
	ctx := s.cron.Stop()
	<-ctx.Done()
	s.logger.Info("Cron service stopped")
}

// expireStaleBookingsJob cancels PENDING bookings whose payment window
// has lapsed without a gateway outcome. The seats they held become
// available again the moment the booking leaves PENDING.
func (s *CronService) expireStaleBookingsJob() {
	cutoff := time.Now().Add(-s.bookingCfg.PaymentTimeout)

	stale, err := s.bookingRepo.GetStalePending(cutoff, expiryBatchSize)
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch stale pending bookings")
		return
	}

	if len(stale) == 0 {
		return
	}

	s.logger.WithField("count", len(stale)).Info("Expiring unpaid bookings")

	for i := range stale {
		booking := &stale[i]

		intent, err := s.paymentSvc.GetIntentForBooking(booking.ID)
		if err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to load payment intent for stale booking")
			continue
		}
		if intent != nil {
			if err := s.paymentSvc.ApplyOutcome(intent, models.PaymentOutcomeExpired); err != nil {
				s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to expire payment intent")
				continue
			}
		}

		if _, err := s.allocator.ConfirmPayment(booking.ID, models.PaymentOutcomeExpired); err != nil {
			s.logger.WithError(err).WithField("booking_id", booking.ID).Error("Failed to expire stale booking")
			continue
		}

		s.logger.WithFields(logrus.Fields{
			"booking_id":        booking.ID,
			"booking_reference": booking.BookingReference,
		}).Info("Unpaid booking expired")
	}
}

// cleanupNotificationsJob prunes delivered and dead messages past the
// retention window
func (s *CronService) cleanupNotificationsJob() {
	retention := time.Duration(s.notificationCfg.RetentionDays) * 24 * time.Hour

	start := time.Now()
	removed, err := s.notificationSvc.Cleanup(retention)
	if err != nil {
		s.logger.WithError(err).Error("Notification cleanup job failed")
		return
	}

	s.logger.WithFields(logrus.Fields{
		"removed":  removed,
		"duration": time.Since(start),
	}).Info("Notification cleanup job finished")
}

// RunExpireStaleBookingsNow runs the booking expiry job immediately (for testing)
func (s *CronService) RunExpireStaleBookingsNow() {
	s.expireStaleBookingsJob()
}

// RunCleanupNotificationsNow runs the notification cleanup job immediately (for testing)
func (s *CronService) RunCleanupNotificationsNow() {
	s.cleanupNotificationsJob()
}
