package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	defaultStalePaymentAge   = 15 * time.Minute
	defaultStalePaymentBatch = 25
)

type paymentSweeper interface {
	SweepStale(ctx context.Context, createdBefore time.Time, limit int) (payments.SweepSummary, error)
}

type StalePaymentJobParams struct {
	Logger   *logger.Logger
	Payments paymentSweeper
	MaxAge   time.Duration
	Batch    int
}

// NewStalePaymentJob asks the provider about INITIATED payments whose webhook
// never arrived.
func NewStalePaymentJob(params StalePaymentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	age := params.MaxAge
	if age <= 0 {
		age = defaultStalePaymentAge
	}
	batch := params.Batch
	if batch <= 0 {
		batch = defaultStalePaymentBatch
	}
	return &stalePaymentJob{
		logg:     params.Logger,
		payments: params.Payments,
		age:      age,
		batch:    batch,
		now:      time.Now,
	}, nil
}

type stalePaymentJob struct {
	logg     *logger.Logger
	payments paymentSweeper
	age      time.Duration
	batch    int
	now      func() time.Time
}

func (j *stalePaymentJob) Name() string { return "stale-payment-verify" }

func (j *stalePaymentJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.age)
	summary, err := j.payments.SweepStale(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("stale payment sweep: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":   cutoff,
		"scanned":  summary.Scanned,
		"captured": summary.Captured,
	})
	j.logg.Info(logCtx, "stale payment sweep complete")
	return nil
}
