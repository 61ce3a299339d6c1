package services

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/buslink/booking-backend/internal/database"
	"github.com/buslink/booking-backend/internal/models"
)

// Transport delivers a single message over one channel
type Transport interface {
	Send(recipient, payload string) error
}

// NotificationService runs the outbound message queue. Messages are
// enqueued durably and delivered by a background sweep; delivery state
// lives in the queue rows, and the transport is never called while a
// store transaction is open.
type NotificationService struct {
	messageRepo *database.OutboundMessageRepository
	transports  map[models.MessageChannel]Transport
	logger      *logrus.Logger
	stopCh      chan struct{}
	interval    time.Duration
	batchSize   int
	maxAttempts int
}

// NewNotificationService creates a new notification queue processor
func NewNotificationService(
	messageRepo *database.OutboundMessageRepository,
	transports map[models.MessageChannel]Transport,
	interval time.Duration,
	batchSize int,
	maxAttempts int,
	logger *logrus.Logger,
) *NotificationService {
	return &NotificationService{
		messageRepo: messageRepo,
		transports:  transports,
		logger:      logger,
		stopCh:      make(chan struct{}),
		interval:    interval,
		batchSize:   batchSize,
		maxAttempts: maxAttempts,
	}
}

// Enqueue appends a message to the queue in PENDING state. Delivery
// happens later on the sweep; callers never block on the transport.
func (s *NotificationService) Enqueue(channel models.MessageChannel, recipient, payload string) (*models.OutboundMessage, error) {
	if _, ok := s.transports[channel]; !ok {
		return nil, fmt.Errorf("no transport registered for channel %s", channel)
	}

	msg := &models.OutboundMessage{
		Channel:   channel,
		Recipient: recipient,
		Payload:   payload,
	}
	if err := s.messageRepo.Create(msg); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	s.logger.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"channel":    channel,
		"recipient":  recipient,
	}).Info("Message enqueued")

	return msg, nil
}

// Start begins the background delivery sweep
func (s *NotificationService) Start() {
	s.logger.WithField("interval", s.interval).Info("Starting notification queue processor")
	go s.run()
}

// Stop stops the background delivery sweep
func (s *NotificationService) Stop() {
	s.logger.Info("Stopping notification queue processor")
	close(s.stopCh)
}

func (s *NotificationService) run() {
	// Run immediately on start
	s.ProcessBatch()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.ProcessBatch()
		case <-s.stopCh:
			s.logger.Info("Notification queue processor stopped")
			return
		}
	}
}

// ProcessBatch picks up the next batch of deliverable messages and
// attempts each one. A failure is recorded against that message only;
// the rest of the batch still runs. Returns how many were delivered.
func (s *NotificationService) ProcessBatch() int {
	batch, err := s.messageRepo.GetPendingBatch(s.batchSize, s.maxAttempts)
	if err != nil {
		s.logger.WithError(err).Error("Failed to fetch pending messages")
		return 0
	}

	if len(batch) == 0 {
		return 0
	}

	s.logger.WithField("count", len(batch)).Info("Processing notification batch")

	delivered := 0
	for i := range batch {
		if s.deliver(&batch[i]) {
			delivered++
		}
	}

	return delivered
}

func (s *NotificationService) deliver(msg *models.OutboundMessage) bool {
	transport, ok := s.transports[msg.Channel]
	if !ok {
		// A message for an unregistered channel can never succeed.
		s.recordFailure(msg, "no transport for channel", models.MessageFailed)
		return false
	}

	if err := transport.Send(msg.Recipient, msg.Payload); err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"message_id": msg.ID,
			"channel":    msg.Channel,
			"attempts":   msg.Attempts + 1,
		}).Warn("Message delivery failed")

		s.recordFailure(msg, err.Error(), s.failureStatus(msg))
		return false
	}

	if err := s.messageRepo.MarkSent(msg.ID); err != nil {
		// The message went out but the row still says pending; the next
		// sweep will resend. Acceptable: delivery is at-least-once.
		s.logger.WithError(err).WithField("message_id", msg.ID).Error("Failed to mark message sent")
		return false
	}

	s.logger.WithFields(logrus.Fields{
		"message_id": msg.ID,
		"channel":    msg.Channel,
	}).Info("Message delivered")

	return true
}

// failureStatus decides where a failed attempt leaves the message:
// PENDING for the next sweep while under the attempt cap, FAILED once
// this attempt reaches it. FAILED messages are never picked up again.
func (s *NotificationService) failureStatus(msg *models.OutboundMessage) models.MessageStatus {
	if msg.Attempts+1 >= s.maxAttempts {
		return models.MessageFailed
	}
	return models.MessagePending
}

func (s *NotificationService) recordFailure(msg *models.OutboundMessage, errText string, status models.MessageStatus) {
	if err := s.messageRepo.RecordFailure(msg.ID, msg.Attempts+1, errText, status); err != nil {
		s.logger.WithError(err).WithField("message_id", msg.ID).Error("Failed to record delivery failure")
	}
}

// Cleanup removes SENT and FAILED messages older than the retention
// window. Returns the number of rows removed.
func (s *NotificationService) Cleanup(retention time.Duration) (int64, error) {
	cutoff := time.Now().Add(-retention)
	removed, err := s.messageRepo.DeleteTerminalBefore(cutoff)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrStorageUnavailable, err)
	}

	if removed > 0 {
		s.logger.WithField("count", removed).Info("Cleaned up terminal messages")
	}

	return removed, nil
}

// RunOnce runs a single delivery sweep (useful for testing or manual trigger)
func (s *NotificationService) RunOnce() int {
	return s.ProcessBatch()
}
