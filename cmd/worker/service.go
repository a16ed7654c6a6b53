package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

type pinger interface {
	Ping(context.Context) error
}

// source is one stream of bus messages: a Pub/Sub subscription or a Kafka
// consumer group. Run blocks until ctx ends or the stream fails.
type source struct {
	name string
	run  func(ctx context.Context, handler outbox.Handler) error
}

type ServiceParams struct {
	Config  *config.Config
	Logger  *logger.Logger
	DB      pinger
	Redis   pinger
	Bus     pinger
	BusName string
	Sources []source
	Handler outbox.Handler
}

type Service struct {
	cfg     *config.Config
	logg    *logger.Logger
	db      pinger
	redis   pinger
	bus     pinger
	busName string
	sources []source
	handler outbox.Handler
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
	if params.Redis == nil {
		return nil, errors.New("redis client is required")
	}
	if params.Bus == nil {
		return nil, errors.New("event bus is required")
	}
	if len(params.Sources) == 0 {
		return nil, errors.New("at least one message source is required")
	}
	if params.Handler == nil {
		return nil, errors.New("message handler is required")
	}
	busName := params.BusName
	if busName == "" {
		busName = "bus"
	}

	return &Service{
		cfg:     params.Config,
		logg:    params.Logger,
		db:      params.DB,
		redis:   params.Redis,
		bus:     params.Bus,
		busName: busName,
		sources: params.Sources,
		handler: params.Handler,
	}, nil
}

func (s *Service) ensureReadiness(ctx context.Context) error {
	if err := pingDependency(ctx, s.logg, "database", s.db.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, "redis", s.redis.Ping); err != nil {
		return err
	}
	if err := pingDependency(ctx, s.logg, s.busName, s.bus.Ping); err != nil {
		return err
	}
	s.logg.Info(ctx, "all worker dependencies are ready")
	return nil
}

func pingDependency(ctx context.Context, logg *logger.Logger, name string, fn func(context.Context) error) error {
	if err := fn(ctx); err != nil {
		logg.Error(ctx, fmt.Sprintf("%s ping failed", name), err)
		return fmt.Errorf("%s ping failed: %w", name, err)
	}
	return nil
}

// Run consumes every source concurrently. The first source to fail stops the
// others.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if err := s.ensureReadiness(ctx); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(s.sources))
	for _, src := range s.sources {
		src := src
		go func() {
			srcCtx := s.logg.WithField(runCtx, "source", src.name)
			s.logg.Info(srcCtx, "consumer started")
			err := src.run(srcCtx, s.handler)
			if err != nil && !errors.Is(err, context.Canceled) {
				err = fmt.Errorf("%s: %w", src.name, err)
			}
			errCh <- err
		}()
	}

	var firstErr error
	for range s.sources {
		err := <-errCh
		if err != nil && !errors.Is(err, context.Canceled) && firstErr == nil {
			firstErr = err
			s.logg.Error(ctx, "consumer stopped unexpectedly", err)
			cancel()
		}
	}
	if firstErr != nil {
		return firstErr
	}
	s.logg.Info(ctx, "worker context canceled")
	return ctx.Err()
}
