package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/lensbook-api/internal/models"
	"github.com/noah-isme/lensbook-api/pkg/jobs"
	"github.com/noah-isme/lensbook-api/pkg/logger"
	"github.com/noah-isme/lensbook-api/pkg/messaging"
)

const notificationJobType = "notification"

// NotificationConfig tunes the dispatch worker pool.
type NotificationConfig struct {
	Workers    int
	BufferSize int
	MaxRetries int
	RetryDelay time.Duration
}

// NotificationService delivers domain events to the broker from a background worker pool.
// Notify never blocks the request that triggered the event and never fails it.
type NotificationService struct {
	publisher messaging.Publisher
	queue     *jobs.Queue
	metrics   *MetricsService
	logger    *zap.Logger
}

// NewNotificationService wires the publisher behind a job queue.
func NewNotificationService(publisher messaging.Publisher, metrics *MetricsService, logger *zap.Logger, cfg NotificationConfig) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := &NotificationService{publisher: publisher, metrics: metrics, logger: logger}
	svc.queue = jobs.NewQueue("notifications", svc.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		BufferSize: cfg.BufferSize,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Logger:     logger,
	})
	return svc
}

// Start launches the workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the workers and closes the publisher.
func (s *NotificationService) Stop() {
	s.queue.Stop()
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			s.logger.Warn("failed to close notification publisher", zap.Error(err))
		}
	}
}

// Notify enqueues event for delivery.
func (s *NotificationService) Notify(ctx context.Context, event models.NotificationEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	err := s.queue.Enqueue(jobs.Job{ID: event.ID, Type: notificationJobType, Payload: event})
	if err == nil {
		return
	}
	s.metrics.RecordNotification("dropped")
	log := logger.FromContext(ctx, s.logger).With(zap.String("event_type", string(event.Type)), zap.String("event_id", event.ID))
	if errors.Is(err, jobs.ErrQueueFull) {
		log.Warn("notification queue full, dropping event")
		return
	}
	log.Warn("notification not dispatched", zap.Error(err))
}

// Pending reports the number of buffered events.
func (s *NotificationService) Pending() int {
	return s.queue.Pending()
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	event, ok := job.Payload.(models.NotificationEvent)
	if !ok {
		s.metrics.RecordNotification("failed")
		return fmt.Errorf("unexpected notification payload %T", job.Payload)
	}
	if s.publisher == nil {
		return nil
	}
	if err := s.publisher.Publish(ctx, string(event.Type), event); err != nil {
		s.metrics.RecordNotification("failed")
		return err
	}
	s.metrics.RecordNotification("delivered")
	return nil
}
