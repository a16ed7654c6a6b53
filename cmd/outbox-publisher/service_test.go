package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/events"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/registry"
)

func TestServiceProcessBatchContinuesAfterFailure(t *testing.T) {
	repo := &fakeRepo{
		events: []models.OutboxEvent{
			orderCreatedRow(t, 0),
			orderCreatedRow(t, 0),
		},
	}
	bus := &fakeTransport{errs: []error{errors.New("transient"), nil}}
	service, reg := newTestService(t, repo, bus, realRegistry(t), &fakeDLQRepo{}, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(repo.failed); got != 1 {
		t.Fatalf("unexpected number of failed rows: %d", got)
	}
	if got := len(repo.published); got != 1 {
		t.Fatalf("unexpected number of published rows: %d", got)
	}
	if repo.failed[0] != repo.events[0].ID {
		t.Fatalf("failed row recorded wrong ID")
	}
	if !repo.retryAt[0].After(time.Now()) {
		t.Fatalf("failed row should be deferred, retry at %v", repo.retryAt[0])
	}
	if repo.published[0] != repo.events[1].ID {
		t.Fatalf("published row recorded wrong ID")
	}
	if got := counterValue(t, reg, "outbox_published_total", "event_type", "order_created"); got != 1 {
		t.Fatalf("expected one published metric, got %v", got)
	}
	if got := counterValue(t, reg, "outbox_publish_failures_total", "event_type", "order_created"); got != 1 {
		t.Fatalf("expected one failure metric, got %v", got)
	}
}

func TestPublishUsesRegistryTopicAndAttributes(t *testing.T) {
	row := orderCreatedRow(t, 0)
	repo := &fakeRepo{events: []models.OutboxEvent{row}}
	bus := &fakeTransport{}
	service, _ := newTestService(t, repo, bus, realRegistry(t), &fakeDLQRepo{}, nil)

	if _, err := service.processBatch(context.Background()); err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if len(bus.sent) != 1 {
		t.Fatalf("expected one message, got %d", len(bus.sent))
	}
	sent := bus.sent[0]
	if sent.topic != "order-events" {
		t.Fatalf("unexpected topic %q", sent.topic)
	}
	if sent.msg.Key != row.AggregateID.String() {
		t.Fatalf("message key should be the aggregate id")
	}
	if sent.msg.EventType() != string(enums.EventOrderCreated) {
		t.Fatalf("unexpected event_type attribute %q", sent.msg.EventType())
	}
	if sent.msg.Attributes[outbox.AttrEventID] == "" {
		t.Fatalf("event_id attribute missing")
	}
	if !bytes.Equal(sent.msg.Data, row.Payload) {
		t.Fatalf("payload should be published verbatim")
	}
}

func TestServiceProcessBatchWritesDLQOnNonRetryable(t *testing.T) {
	event := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       json.RawMessage(`{"version":1,"eventId":"x","data":{}}`),
	}
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	dlqRepo := &fakeDLQRepo{}
	service, reg := newTestService(t, repo, &fakeTransport{}, realRegistry(t), dlqRepo, nil)

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if entry.Payload == nil || !bytes.Equal(entry.Payload, event.Payload) {
		t.Fatalf("dlq payload mismatch")
	}
	if entry.ErrorReason != enums.OutboxDLQReasonNonRetryable {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
	if got := counterValue(t, reg, "outbox_dlq_total", "event_type", "order_created", "reason", "non_retryable"); got != 1 {
		t.Fatalf("expected dlq metric, got %v", got)
	}
}

func TestServiceProcessBatchWritesDLQOnMaxAttempts(t *testing.T) {
	event := orderCreatedRow(t, 1)
	repo := &fakeRepo{events: []models.OutboxEvent{event}}
	bus := &fakeTransport{errs: []error{errors.New("transient")}}
	dlqRepo := &fakeDLQRepo{}
	service, _ := newTestService(t, repo, bus, realRegistry(t), dlqRepo, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    2,
	})

	processed, err := service.processBatch(context.Background())
	if err != nil {
		t.Fatalf("process batch returned error: %v", err)
	}
	if !processed {
		t.Fatalf("expected batch to report processed")
	}
	if got := len(dlqRepo.entries); got != 1 {
		t.Fatalf("expected dlq entry, got %d", got)
	}
	entry := dlqRepo.entries[0]
	if entry.EventID != event.ID {
		t.Fatalf("dlq event_id mismatch: %s", entry.EventID)
	}
	if entry.ErrorReason != enums.OutboxDLQReasonMaxAttempts {
		t.Fatalf("unexpected error reason: %s", entry.ErrorReason)
	}
	if len(repo.published) != 0 {
		t.Fatalf("terminal row must not be marked published")
	}
}

func TestNextBackoffCapsAtMax(t *testing.T) {
	if got := nextBackoff(0, time.Second, 10*time.Second); got != 2*time.Second {
		t.Fatalf("unexpected first backoff %v", got)
	}
	if got := nextBackoff(8*time.Second, time.Second, 10*time.Second); got != 10*time.Second {
		t.Fatalf("backoff should cap at max, got %v", got)
	}
	if got := withJitter(time.Second); got < time.Second || got >= time.Second+jitterWindow {
		t.Fatalf("jitter out of window: %v", got)
	}
}

func TestRunRetriesThroughShortOutage(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	row := orderCreatedRow(t, 0)
	repo := &stateRepo{rows: []models.OutboxEvent{row}}
	bus := &flakyTransport{failUntil: time.Now().Add(200 * time.Millisecond), onSuccess: cancel}
	dlqRepo := &fakeDLQRepo{}
	service, _ := newTestService(t, repo, bus, realRegistry(t), dlqRepo, &config.OutboxConfig{
		BatchSize:      1,
		PollIntervalMS: 100,
		MaxAttempts:    10,
	})

	if err := service.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("run should stop on cancel after publishing, got %v", err)
	}
	if len(dlqRepo.entries) != 0 {
		t.Fatalf("outage must not dead-letter the event, got %d dlq entries", len(dlqRepo.entries))
	}
	stored := repo.row(row.ID)
	if stored.PublishedAt == nil {
		t.Fatalf("event should be published once the bus recovers")
	}
	if bus.calls < 2 || bus.calls > 4 {
		t.Fatalf("expected a few spaced attempts, got %d", bus.calls)
	}
}

func TestRetryDelayGrowsAndCaps(t *testing.T) {
	service, _ := newTestService(t, &fakeRepo{}, &fakeTransport{}, realRegistry(t), &fakeDLQRepo{}, nil)

	first := service.retryDelay(1)
	if first < 100*time.Millisecond || first >= 100*time.Millisecond+jitterWindow {
		t.Fatalf("first retry delay out of range: %v", first)
	}
	third := service.retryDelay(3)
	if third < 400*time.Millisecond || third >= 400*time.Millisecond+jitterWindow {
		t.Fatalf("third retry delay out of range: %v", third)
	}
	if got := service.retryDelay(40); got < maxRetryDelay || got >= maxRetryDelay+jitterWindow {
		t.Fatalf("retry delay should cap at %v, got %v", maxRetryDelay, got)
	}
}

func newTestService(t *testing.T, repo outboxRepository, bus transport, reg registryResolver, dlq dlqRepository, outboxCfgOverride *config.OutboxConfig) (*Service, *prometheus.Registry) {
	t.Helper()
	outboxCfg := config.OutboxConfig{
		BatchSize:      2,
		PollIntervalMS: 100,
		MaxAttempts:    5,
	}
	if outboxCfgOverride != nil {
		outboxCfg = *outboxCfgOverride
	}
	cfg := &config.Config{
		Outbox: outboxCfg,
	}
	logg := logger.New(logger.Options{
		ServiceName: "outbox-publisher-test",
		Output:      io.Discard,
	})
	promReg := prometheus.NewRegistry()
	service, err := NewService(ServiceParams{
		Config:        cfg,
		Logger:        logg,
		DB:            &fakeDB{},
		Transport:     bus,
		TransportName: "fake",
		Repository:    repo,
		Registry:      reg,
		DLQRepository: dlq,
		Metrics:       metrics.NewOutboxMetrics(promReg),
	})
	if err != nil {
		t.Fatalf("failed to construct service: %v", err)
	}
	return service, promReg
}

// counterValue reads a counter from the registry; labels are name/value pairs.
func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels ...string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	want := map[string]string{}
	for i := 0; i+1 < len(labels); i += 2 {
		want[labels[i]] = labels[i+1]
	}
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, metric := range family.GetMetric() {
			if matchLabels(metric, want) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func matchLabels(metric *dto.Metric, want map[string]string) bool {
	if len(metric.GetLabel()) != len(want) {
		return false
	}
	for _, pair := range metric.GetLabel() {
		if want[pair.GetName()] != pair.GetValue() {
			return false
		}
	}
	return true
}

func realRegistry(t *testing.T) *registry.EventRegistry {
	t.Helper()
	reg, err := registry.NewEventRegistry(config.EventingConfig{
		OrderEventsTopic:     "order-events",
		PaymentCapturedTopic: "payment-captured",
		PaymentFailedTopic:   "payment-failed",
	})
	if err != nil {
		t.Fatalf("build registry: %v", err)
	}
	return reg
}

func orderCreatedRow(tb testing.TB, attempts int) models.OutboxEvent {
	tb.Helper()
	orderID := uuid.New()
	data, err := json.Marshal(events.OrderCreated{OrderID: orderID, OrderNumber: "ORD-1", UserID: "user-1", Status: enums.OrderStatusPending})
	if err != nil {
		tb.Fatalf("marshal event: %v", err)
	}
	env := outbox.PayloadEnvelope{
		Version:    outbox.EnvelopeVersion,
		EventID:    uuid.NewString(),
		EventType:  enums.EventOrderCreated,
		OccurredAt: time.Now(),
		Data:       data,
	}
	payload, err := json.Marshal(env)
	if err != nil {
		tb.Fatalf("marshal envelope: %v", err)
	}
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventOrderCreated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Payload:       payload,
		AttemptCount:  attempts,
	}
}

type fakeRepo struct {
	events    []models.OutboxEvent
	published []uuid.UUID
	failed    []uuid.UUID
	retryAt   []time.Time
}

func (f *fakeRepo) FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	return f.events, nil
}

func (f *fakeRepo) MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error {
	f.published = append(f.published, id)
	return nil
}

func (f *fakeRepo) MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error, retryAt time.Time) error {
	f.failed = append(f.failed, id)
	f.retryAt = append(f.retryAt, retryAt)
	return nil
}

func (f *fakeRepo) MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	f.failed = append(f.failed, id)
	return nil
}

type fakeDB struct{}

func (f *fakeDB) Ping(context.Context) error {
	return nil
}

func (f *fakeDB) WithTx(_ context.Context, fn func(*gorm.DB) error) error {
	return fn(nil)
}

type sentMessage struct {
	topic string
	msg   outbox.Message
}

type fakeTransport struct {
	errs []error
	sent []sentMessage
}

func (f *fakeTransport) Ping(context.Context) error {
	return nil
}

func (f *fakeTransport) Publish(_ context.Context, topic string, msg outbox.Message) error {
	var err error
	if len(f.errs) > 0 {
		err = f.errs[0]
		f.errs = f.errs[1:]
	}
	if err == nil {
		f.sent = append(f.sent, sentMessage{topic: topic, msg: msg})
	}
	return err
}

type fakeDLQRepo struct {
	entries []models.OutboxDLQ
}

func (f *fakeDLQRepo) InsertTx(tx *gorm.DB, entry models.OutboxDLQ) error {
	f.entries = append(f.entries, entry)
	return nil
}

// stateRepo keeps rows in memory and honours the retry gate like the SQL fetch.
type stateRepo struct {
	mu   sync.Mutex
	rows []models.OutboxEvent
}

func (r *stateRepo) FetchUnpublishedForPublish(_ *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now()
	var out []models.OutboxEvent
	for _, row := range r.rows {
		if row.PublishedAt != nil || row.AttemptCount >= maxAttempts {
			continue
		}
		if row.NextAttemptAt != nil && row.NextAttemptAt.After(now) {
			continue
		}
		out = append(out, row)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r *stateRepo) MarkPublishedTx(_ *gorm.DB, id uuid.UUID) error {
	return r.update(id, func(row *models.OutboxEvent) {
		now := time.Now()
		row.PublishedAt = &now
		row.NextAttemptAt = nil
	})
}

func (r *stateRepo) MarkFailedTx(_ *gorm.DB, id uuid.UUID, err error, retryAt time.Time) error {
	return r.update(id, func(row *models.OutboxEvent) {
		msg := err.Error()
		row.AttemptCount++
		row.LastError = &msg
		row.NextAttemptAt = &retryAt
	})
}

func (r *stateRepo) MarkTerminalTx(_ *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error {
	return r.update(id, func(row *models.OutboxEvent) {
		msg := err.Error()
		row.AttemptCount = terminalAttempts
		row.LastError = &msg
	})
}

func (r *stateRepo) update(id uuid.UUID, fn func(*models.OutboxEvent)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := range r.rows {
		if r.rows[i].ID == id {
			fn(&r.rows[i])
			return nil
		}
	}
	return errors.New("row not found")
}

func (r *stateRepo) row(id uuid.UUID) models.OutboxEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, row := range r.rows {
		if row.ID == id {
			return row
		}
	}
	return models.OutboxEvent{}
}

// flakyTransport fails every publish until failUntil.
type flakyTransport struct {
	failUntil time.Time
	onSuccess func()
	calls     int
}

func (f *flakyTransport) Ping(context.Context) error {
	return nil
}

func (f *flakyTransport) Publish(context.Context, string, outbox.Message) error {
	f.calls++
	if time.Now().Before(f.failUntil) {
		return errors.New("bus unavailable")
	}
	if f.onSuccess != nil {
		f.onSuccess()
	}
	return nil
}
