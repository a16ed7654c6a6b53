package payments

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

// UnhandledTransition describes a transition the system has no policy for,
// such as a refund of a captured payment or an order whose payment failed.
type UnhandledTransition struct {
	PaymentID uuid.UUID
	OrderID   uuid.UUID
	From      string
	To        string
	Source    string
	Reason    string
}

// UnhandledTransitionHook receives every unhandled transition.
type UnhandledTransitionHook interface {
	OnUnhandled(ctx context.Context, t UnhandledTransition)
}

type loggingHook struct {
	logg    *logger.Logger
	metrics *metrics.PaymentMetrics
}

// NewLoggingHook logs each unhandled transition as critical and counts it.
func NewLoggingHook(logg *logger.Logger, m *metrics.PaymentMetrics) UnhandledTransitionHook {
	return &loggingHook{logg: logg, metrics: m}
}

func (h *loggingHook) OnUnhandled(ctx context.Context, t UnhandledTransition) {
	h.metrics.IncUnhandled(t.From, t.To)
	if h.logg == nil {
		return
	}
	fields := map[string]any{
		"from":   t.From,
		"to":     t.To,
		"source": t.Source,
	}
	if t.PaymentID != uuid.Nil {
		fields["payment_id"] = t.PaymentID.String()
	}
	if t.OrderID != uuid.Nil {
		fields["order_id"] = t.OrderID.String()
	}
	if t.Reason != "" {
		fields["reason"] = t.Reason
	}
	h.logg.Critical(h.logg.WithFields(ctx, fields), fmt.Sprintf("unhandled transition %s -> %s", t.From, t.To), nil)
}
