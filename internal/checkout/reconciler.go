package checkout

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type stalledCheckoutLister interface {
	ListStalledCheckouts(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Order, error)
}

// ReconcileSummary reports one reconciler pass.
type ReconcileSummary struct {
	Scanned        int
	Completed      int
	StillPending   int
	NeedsAttention int
}

// StockCommitReconciler retries stock commits for orders stuck at
// order_created longer than the grace period.
type StockCommitReconciler struct {
	orders    stalledCheckoutLister
	committer stockCommitter
	logg      *logger.Logger
	grace     time.Duration
	batchSize int
	now       func() time.Time
}

func NewStockCommitReconciler(orders stalledCheckoutLister, committer stockCommitter, grace time.Duration, batchSize int, logg *logger.Logger) (*StockCommitReconciler, error) {
	if orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if committer == nil {
		return nil, fmt.Errorf("stock committer required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if grace <= 0 {
		grace = 2 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 50
	}
	return &StockCommitReconciler{
		orders:    orders,
		committer: committer,
		logg:      logg,
		grace:     grace,
		batchSize: batchSize,
		now:       time.Now,
	}, nil
}

// Run processes one batch. Orders that still fail stay in order_created
// until the committer moves them to needs_attention.
func (r *StockCommitReconciler) Run(ctx context.Context) (ReconcileSummary, error) {
	var summary ReconcileSummary
	cutoff := r.now().UTC().Add(-r.grace)
	stalled, err := r.orders.ListStalledCheckouts(ctx, cutoff, r.batchSize)
	if err != nil {
		return summary, fmt.Errorf("list stalled checkouts: %w", err)
	}
	summary.Scanned = len(stalled)

	var errs error
	for i := range stalled {
		if err := ctx.Err(); err != nil {
			return summary, multierr.Append(errs, err)
		}
		order := &stalled[i]
		result, err := r.committer.Commit(ctx, order)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("order %s: %w", order.ID, err))
		}
		switch {
		case result.Failed == 0:
			summary.Completed++
		case result.Step == enums.CheckoutStepNeedsAttention:
			summary.NeedsAttention++
		default:
			summary.StillPending++
		}
	}

	if summary.Scanned > 0 {
		r.logg.Info(r.logg.WithFields(ctx, map[string]any{
			"scanned":         summary.Scanned,
			"completed":       summary.Completed,
			"still_pending":   summary.StillPending,
			"needs_attention": summary.NeedsAttention,
		}), "stock commit reconcile pass finished")
	}
	return summary, errs
}
