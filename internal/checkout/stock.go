package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

type stockReducer interface {
	ReduceStock(ctx context.Context, productID int64, quantity int) error
}

type progressStore interface {
	MarkItemStockCommitted(ctx context.Context, itemID uuid.UUID, at time.Time) error
	UpdateCheckoutProgress(ctx context.Context, id uuid.UUID, progress orders.CheckoutProgress) error
}

// CommitResult summarises one stock commit pass over an order.
type CommitResult struct {
	Committed int
	Failed    int
	Step      enums.CheckoutStep
	Attempts  int
}

// StockCommitter reduces catalog stock for the uncommitted items of an order
// and advances the order's checkout step cursor. Failures are never rolled
// back; they are logged as critical and left for the reconciler.
type StockCommitter struct {
	products    stockReducer
	progress    progressStore
	logg        *logger.Logger
	metrics     *metrics.CheckoutMetrics
	maxAttempts int
	now         func() time.Time
}

func NewStockCommitter(products stockReducer, progress progressStore, maxAttempts int, logg *logger.Logger, m *metrics.CheckoutMetrics) (*StockCommitter, error) {
	if products == nil {
		return nil, fmt.Errorf("product client required")
	}
	if progress == nil {
		return nil, fmt.Errorf("progress store required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &StockCommitter{
		products:    products,
		progress:    progress,
		logg:        logg,
		metrics:     m,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}, nil
}

// Commit attempts every item whose stock_committed_at is unset. Items are
// stamped as they succeed and again with the step cursor, so a failed stamp
// cannot lead the reconciler to reduce the same item twice. The returned
// error only covers step cursor persistence; stock failures are reported
// through CommitResult.Failed.
func (c *StockCommitter) Commit(ctx context.Context, order *models.Order) (CommitResult, error) {
	ctx = c.logg.WithOrderID(ctx, order.ID.String())

	var (
		failures   error
		persistErr error
		result     CommitResult
		committed  []uuid.UUID
		unstamped  []models.OrderItem
	)
	for i := range order.Items {
		item := &order.Items[i]
		if item.StockCommittedAt != nil {
			continue
		}
		if err := c.products.ReduceStock(ctx, item.ProductID, item.Quantity); err != nil {
			result.Failed++
			failures = multierr.Append(failures, fmt.Errorf("product %d qty %d: %w", item.ProductID, item.Quantity, err))
			c.metrics.IncStockCommitFailure()
			logCtx := c.logg.WithFields(ctx, map[string]any{
				"product_id":   item.ProductID,
				"quantity":     item.Quantity,
				"order_number": order.OrderNumber,
			})
			c.logg.Critical(logCtx, "stock commit failed after order creation", err)
			continue
		}
		at := c.now().UTC()
		if err := c.progress.MarkItemStockCommitted(ctx, item.ID, at); err != nil {
			c.logg.Warn(c.logg.WithField(ctx, "item_id", item.ID.String()), "stamp stock commit failed; retrying with checkout progress")
			unstamped = append(unstamped, *item)
		}
		item.StockCommittedAt = &at
		committed = append(committed, item.ID)
		result.Committed++
	}

	result.Attempts = order.StockCommitAttempts + 1
	progress := orders.CheckoutProgress{
		Attempts:       result.Attempts,
		CommittedItems: committed,
		CommittedAt:    c.now().UTC(),
	}
	switch {
	case failures == nil:
		progress.Step = enums.CheckoutStepStockCommitted
	case result.Attempts >= c.maxAttempts:
		progress.Step = enums.CheckoutStepNeedsAttention
	default:
		progress.Step = enums.CheckoutStepOrderCreated
	}
	if failures != nil {
		msg := failures.Error()
		progress.LastError = &msg
	}
	if err := c.progress.UpdateCheckoutProgress(ctx, order.ID, progress); err != nil {
		persistErr = fmt.Errorf("update checkout progress: %w", err)
		for _, item := range unstamped {
			logCtx := c.logg.WithFields(ctx, map[string]any{
				"product_id":   item.ProductID,
				"quantity":     item.Quantity,
				"order_number": order.OrderNumber,
			})
			c.logg.Critical(logCtx, "stock reduced but commit not recorded", err)
		}
	}

	if progress.Step == enums.CheckoutStepNeedsAttention {
		c.metrics.IncNeedsAttention()
		c.logg.Critical(c.logg.WithField(ctx, "attempts", result.Attempts), "stock commit retries exhausted; order needs attention", failures)
	}

	order.CheckoutStep = progress.Step
	order.StockCommitAttempts = progress.Attempts
	order.LastStockCommitError = progress.LastError
	result.Step = progress.Step
	return result, persistErr
}
