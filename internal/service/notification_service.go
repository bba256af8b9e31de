package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/tutor-scheduler-api/internal/models"
	"github.com/noah-isme/tutor-scheduler-api/pkg/jobs"
)

// JobTypeNotification tags queued notification jobs.
const JobTypeNotification = "notification"

type notificationOutbox interface {
	Insert(ctx context.Context, n *models.Notification) error
}

type notificationQueue interface {
	TryEnqueue(job jobs.Job) error
}

type notificationObserver interface {
	ObserveNotification(ok bool)
}

// NotificationService hands notifications to the outbox through the job queue.
// Delivery is best effort: failures are logged and counted, never returned to callers.
type NotificationService struct {
	outbox  notificationOutbox
	queue   notificationQueue
	metrics notificationObserver
	logger  *zap.Logger
}

// NewNotificationService constructs the dispatcher. Without a queue, notifications are written inline.
func NewNotificationService(outbox notificationOutbox, metrics notificationObserver, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{outbox: outbox, metrics: metrics, logger: logger}
}

// UseQueue routes future notifications through queue.
func (s *NotificationService) UseQueue(queue notificationQueue) {
	s.queue = queue
}

// Notify queues the notification for delivery. It never blocks on a full queue.
func (s *NotificationService) Notify(ctx context.Context, note models.Notification) {
	if note.ID == "" {
		note.ID = uuid.NewString()
	}
	if s.queue == nil {
		if err := s.write(ctx, note); err != nil {
			s.logger.Warn("notification dropped", zap.String("notification_id", note.ID), zap.String("recipient_id", note.RecipientID), zap.Error(err))
		}
		return
	}
	if err := s.queue.TryEnqueue(jobs.Job{ID: note.ID, Type: JobTypeNotification, Payload: note}); err != nil {
		s.observe(false)
		s.logger.Warn("notification not queued", zap.String("notification_id", note.ID), zap.String("recipient_id", note.RecipientID), zap.Error(err))
	}
}

// Handle is the queue handler persisting one notification to the outbox.
func (s *NotificationService) Handle(ctx context.Context, job jobs.Job) error {
	note, ok := job.Payload.(models.Notification)
	if !ok {
		s.logger.Error("discarding malformed notification job", zap.String("job_id", job.ID), zap.String("payload", fmt.Sprintf("%T", job.Payload)))
		return nil
	}
	return s.write(ctx, note)
}

// DeadLetter records a notification that exhausted its retries.
func (s *NotificationService) DeadLetter(job jobs.Job, err error) {
	s.logger.Error("notification abandoned", zap.String("notification_id", job.ID), zap.Int("attempts", job.Attempt), zap.Error(err))
}

func (s *NotificationService) write(ctx context.Context, note models.Notification) error {
	if s.outbox == nil {
		return fmt.Errorf("notification outbox not configured")
	}
	if err := s.outbox.Insert(ctx, &note); err != nil {
		s.observe(false)
		return err
	}
	s.observe(true)
	return nil
}

func (s *NotificationService) observe(ok bool) {
	if s.metrics != nil {
		s.metrics.ObserveNotification(ok)
	}
}
