package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/consumers/orderstatus"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/kafka"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/idempotency"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "worker"

	logg = logger.ForApp("worker", cfg.App)

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	ordersService, err := orders.NewService(
		orders.NewRepository(dbClient.DB()),
		dbClient,
		outbox.NewService(outbox.NewRepository(dbClient.DB()), logg),
		logg,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create orders service", err)
		os.Exit(1)
	}

	dedupe, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create idempotency manager", err)
		os.Exit(1)
	}

	hook := payments.NewLoggingHook(logg, metrics.NewPaymentMetrics(prometheus.DefaultRegisterer))
	consumer, err := orderstatus.NewConsumer(ordersService, hook, dedupe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create order status consumer", err)
		os.Exit(1)
	}

	bus, busName, sources, closeBus, err := newSources(context.Background(), cfg, logg, consumer.Handle)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap event transport", err)
		os.Exit(1)
	}
	defer func() {
		if err := closeBus(); err != nil {
			logg.Error(context.Background(), "error closing event transport", err)
		}
	}()

	service, err := NewService(ServiceParams{
		Config:  cfg,
		Logger:  logg,
		DB:      dbClient,
		Redis:   redisClient,
		Bus:     bus,
		BusName: busName,
		Sources: sources,
		Handler: consumer.Handle,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create worker service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"transport":   busName,
	})
	logg.Info(ctx, "starting worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "worker shutting down gracefully")
}

// newSources binds the payment topics on the configured transport.
func newSources(ctx context.Context, cfg *config.Config, logg *logger.Logger, handler outbox.Handler) (pinger, string, []source, func() error, error) {
	if cfg.Eventing.UsesKafka() {
		topics := []string{cfg.Eventing.PaymentCapturedTopic, cfg.Eventing.PaymentFailedTopic}
		group, err := kafka.NewConsumerGroup(cfg.Kafka, topics, handler, logg)
		if err != nil {
			return nil, "", nil, nil, err
		}
		src := source{
			name: "kafka:" + cfg.Kafka.ConsumerGroup,
			run: func(ctx context.Context, _ outbox.Handler) error {
				return group.Run(ctx)
			},
		}
		return kafkaPinger{}, config.TransportKafka, []source{src}, group.Close, nil
	}

	client, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	if err != nil {
		return nil, "", nil, nil, err
	}
	sources := []source{
		{
			name: cfg.PubSub.PaymentCapturedSubscription,
			run: func(ctx context.Context, h outbox.Handler) error {
				return pubsub.Receive(ctx, client.PaymentCapturedSubscription(), h)
			},
		},
		{
			name: cfg.PubSub.PaymentFailedSubscription,
			run: func(ctx context.Context, h outbox.Handler) error {
				return pubsub.Receive(ctx, client.PaymentFailedSubscription(), h)
			},
		},
	}
	return client, config.TransportPubSub, sources, client.Close, nil
}

// kafkaPinger stands in for the readiness probe: the consumer group already
// reached the brokers when it was created.
type kafkaPinger struct{}

func (kafkaPinger) Ping(context.Context) error { return nil }
