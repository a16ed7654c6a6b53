package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	maxRetryDelay         = 5 * time.Minute
	jitterWindow          = 250 * time.Millisecond
)

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

// transport is the bus the publisher writes to: Pub/Sub or Kafka.
type transport interface {
	Ping(context.Context) error
	outbox.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error, retryAt time.Time) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type dlqRepository interface {
	InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type ServiceParams struct {
	Config        *config.Config
	Logger        *logger.Logger
	DB            dbClient
	Transport     transport
	TransportName string
	Repository    outboxRepository
	Registry      registryResolver
	DLQRepository dlqRepository
	Metrics       *metrics.OutboxMetrics
}

type Service struct {
	cfg           *config.Config
	logg          *logger.Logger
	db            dbClient
	repo          outboxRepository
	transport     transport
	transportName string
	registry      registryResolver
	dlq           dlqRepository
	metrics       *metrics.OutboxMetrics
	batchSize     int
	maxAttempts   int
	pollInterval  time.Duration
	now           func() time.Time
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.DB == nil {
		return nil, errors.New("database client is required")
	}
	if params.Transport == nil {
		return nil, errors.New("event transport is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}
	if params.Registry == nil {
		return nil, errors.New("event registry is required")
	}
	if params.DLQRepository == nil {
		return nil, errors.New("dlq repository is required")
	}

	transportName := params.TransportName
	if transportName == "" {
		transportName = "bus"
	}

	batch := params.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Service{
		cfg:           params.Config,
		logg:          params.Logger,
		db:            params.DB,
		repo:          params.Repository,
		transport:     params.Transport,
		transportName: transportName,
		registry:      params.Registry,
		dlq:           params.DLQRepository,
		metrics:       params.Metrics,
		batchSize:     batch,
		maxAttempts:   maxAttempts,
		pollInterval:  time.Duration(pollMs) * time.Millisecond,
		now:           time.Now,
	}, nil
}

// disposition is what a publish attempt decided for one outbox row.
type disposition int

const (
	published disposition = iota
	retryLater
	deadLetter
)

func (s *Service) ensureReadiness(ctx context.Context) error {
	checks := []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{s.transportName, s.transport.Ping},
	}
	for _, check := range checks {
		if err := check.ping(ctx); err != nil {
			s.logg.Error(ctx, check.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", check.name, err)
		}
	}
	return nil
}

// Run drains the outbox until ctx is canceled. Non-empty batches are
// followed immediately by the next fetch; empty ones wait a poll interval
// and failed ones back off exponentially. Rows whose publish failed are
// hidden from the fetch until their own retry time.
func (s *Service) Run(ctx context.Context) error {
	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}
	wait := s.pollInterval
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		processed, err := s.processBatch(ctx)
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = nextBackoff(wait, s.pollInterval, maxBackoff)
		case processed:
			wait = s.pollInterval
			continue
		default:
			wait = s.pollInterval
		}
		if err := s.sleep(ctx, withJitter(wait)); err != nil {
			return err
		}
	}
}

// processBatch claims up to batchSize rows inside one transaction so the
// row locks and status updates commit together.
func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0
		for _, event := range events {
			if err := s.dispatch(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

// dispatch publishes one row and records the outcome. Only bookkeeping
// failures are returned; publish failures are recorded on the row.
func (s *Service) dispatch(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	outcome, reason, topic, pubErr := s.attempt(ctx, event)
	fields := s.eventFields(event, topic)
	switch outcome {
	case published:
		if err := s.repo.MarkPublishedTx(tx, event.ID); err != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, err)
		}
		s.metrics.IncPublished(string(event.EventType))
		s.logg.Info(s.logg.WithFields(ctx, fields), "outbox event published")
		return nil
	case retryLater:
		delay := s.retryDelay(event.AttemptCount + 1)
		fields["attempt_count"] = event.AttemptCount + 1
		fields["error"] = pubErr.Error()
		fields["retry_in_ms"] = delay.Milliseconds()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox publish failed; will retry")
		s.metrics.IncFailed(string(event.EventType))
		if err := s.repo.MarkFailedTx(tx, event.ID, pubErr, s.now().Add(delay)); err != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, err)
		}
		return nil
	default:
		return s.deadLetter(ctx, tx, event, reason, pubErr, fields)
	}
}

func (s *Service) attempt(ctx context.Context, event models.OutboxEvent) (disposition, enums.OutboxDLQErrorReason, string, error) {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return deadLetter, enums.OutboxDLQReasonNonRetryable, "", err
	}
	topic := resolved.Descriptor.Topic
	if topic == "" {
		return deadLetter, enums.OutboxDLQReasonNonRetryable, "", fmt.Errorf("no topic for %s", event.EventType)
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	err = s.transport.Publish(publishCtx, topic, outbox.MessageFor(event, resolved.Envelope.EventID))
	cancel()

	var nonRetry registry.NonRetryableError
	switch {
	case err == nil:
		return published, "", topic, nil
	case errors.As(err, &nonRetry):
		return deadLetter, enums.OutboxDLQReasonNonRetryable, topic, err
	case event.AttemptCount+1 >= s.maxAttempts:
		return deadLetter, enums.OutboxDLQReasonMaxAttempts, topic, fmt.Errorf("max publish attempts reached: %w", err)
	default:
		return retryLater, "", topic, err
	}
}

// deadLetter copies the row into outbox_dlq and stops further attempts.
func (s *Service) deadLetter(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, reason enums.OutboxDLQErrorReason, cause error, fields map[string]any) error {
	fields["error_reason"] = reason
	fields["error"] = cause.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox event dead-lettered")
	s.metrics.IncDLQ(string(event.EventType), string(reason))

	msg := cause.Error()
	entry := models.OutboxDLQ{
		EventID:       event.ID,
		EventType:     event.EventType,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		Payload:       event.Payload,
		ErrorReason:   reason,
		ErrorMessage:  &msg,
		AttemptCount:  event.AttemptCount,
		FailedAt:      time.Now().UTC(),
	}
	if err := s.dlq.InsertTx(tx, entry); err != nil {
		return fmt.Errorf("insert dlq %s: %w", event.ID, err)
	}
	if err := s.repo.MarkTerminalTx(tx, event.ID, cause, s.maxAttempts); err != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, err)
	}
	return nil
}

func (s *Service) eventFields(event models.OutboxEvent, topic string) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if topic != "" {
		fields["topic"] = topic
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// retryDelay is how long a row waits after its nth failed attempt: the poll
// interval doubled per attempt, capped at maxRetryDelay, plus jitter.
func (s *Service) retryDelay(attempt int) time.Duration {
	delay := s.pollInterval
	for i := 1; i < attempt && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	return withJitter(min(delay, maxRetryDelay))
}

// nextBackoff doubles current (starting from base) and caps the result at limit.
func nextBackoff(current, base, limit time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	return min(current*2, limit)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + rand.N(jitterWindow)
}
