package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type stockReconciler interface {
	Run(ctx context.Context) (checkout.ReconcileSummary, error)
}

// NewStockCommitJob retries stock commits left behind by checkouts.
func NewStockCommitJob(reconciler stockReconciler, logg *logger.Logger) (Job, error) {
	if reconciler == nil {
		return nil, fmt.Errorf("stock reconciler required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &stockCommitJob{reconciler: reconciler, logg: logg}, nil
}

type stockCommitJob struct {
	reconciler stockReconciler
	logg       *logger.Logger
}

func (j *stockCommitJob) Name() string { return "stock-commit-reconcile" }

func (j *stockCommitJob) Run(ctx context.Context) error {
	summary, err := j.reconciler.Run(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"scanned":         summary.Scanned,
		"completed":       summary.Completed,
		"still_pending":   summary.StillPending,
		"needs_attention": summary.NeedsAttention,
	})
	if err != nil {
		return fmt.Errorf("stock commit reconcile: %w", err)
	}
	if summary.Scanned > 0 {
		j.logg.Info(logCtx, "stock commit reconcile complete")
	}
	return nil
}
