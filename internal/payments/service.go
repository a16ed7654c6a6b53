package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/events"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/money"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

const (
	defaultPaymentMethod = "stripe"
	maxCASAttempts       = 3

	sourceWebhook = "webhook"
	sourceVerify  = "verify"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type orderLookup interface {
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
}

// Service is the payment state machine's effectful shell.
type Service interface {
	Initiate(ctx context.Context, input InitiateInput) (*PaymentResponse, error)
	CaptureByIntent(ctx context.Context, intentID string) (*models.Payment, error)
	FailByIntent(ctx context.Context, intentID, reason string) (*models.Payment, error)
	RefundByIntent(ctx context.Context, intentID string) (*models.Payment, error)
	VerifyStatus(ctx context.Context, orderID uuid.UUID) (bool, error)
	SweepStale(ctx context.Context, createdBefore time.Time, limit int) (SweepSummary, error)
}

type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Orders   orderLookup
	Provider Provider
	Hook     UnhandledTransitionHook
	Logger   *logger.Logger
	Metrics  *metrics.PaymentMetrics
}

type service struct {
	repo     Repository
	tx       txRunner
	outbox   outboxPublisher
	orders   orderLookup
	provider Provider
	hook     UnhandledTransitionHook
	logg     *logger.Logger
	metrics  *metrics.PaymentMetrics
}

func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders lookup required")
	}
	if params.Provider == nil {
		return nil, fmt.Errorf("payment provider required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	hook := params.Hook
	if hook == nil {
		hook = NewLoggingHook(params.Logger, params.Metrics)
	}
	return &service{
		repo:     params.Repo,
		tx:       params.Tx,
		outbox:   params.Outbox,
		orders:   params.Orders,
		provider: params.Provider,
		hook:     hook,
		logg:     params.Logger,
		metrics:  params.Metrics,
	}, nil
}

// Initiate creates at most one provider intent per idempotency key. The key
// is also sent to the provider so a retried network call cannot double-charge.
func (s *service) Initiate(ctx context.Context, input InitiateInput) (*PaymentResponse, error) {
	key := strings.TrimSpace(input.IdempotencyKey)
	if key == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header is required")
	}
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "orderId is required")
	}
	if !input.Amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if len(currency) != 3 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "currency must be a 3-letter ISO code")
	}

	existing, err := s.repo.FindByIdempotencyKey(ctx, key)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup payment by idempotency key")
	}
	if existing != nil {
		return s.replay(ctx, existing, input.OrderID)
	}

	if _, err := s.orders.Get(ctx, input.OrderID); err != nil {
		return nil, err
	}

	amount := money.Round(input.Amount)
	intent, err := s.provider.CreateIntent(ctx, CreateIntentParams{
		AmountMinor:    money.ToMinorUnits(amount),
		Currency:       currency,
		OrderID:        input.OrderID.String(),
		IdempotencyKey: key,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create payment intent")
	}

	payment := &models.Payment{
		ID:               uuid.New(),
		OrderID:          input.OrderID,
		Amount:           amount,
		Currency:         currency,
		Status:           enums.PaymentStatusInitiated,
		PaymentMethod:    defaultPaymentMethod,
		ProviderIntentID: intent.ID,
		IdempotencyKey:   key,
	}
	if err := s.repo.Create(ctx, payment); err != nil {
		if db.IsUniqueViolation(err, idempotencyKeyConstraint) || db.IsUniqueViolation(err, "payments.idempotency_key") ||
			db.IsUniqueViolation(err, providerIntentIDConstraint) || db.IsUniqueViolation(err, "payments.provider_intent_id") {
			winner, findErr := s.repo.FindByIdempotencyKey(ctx, key)
			if findErr == nil && winner != nil {
				return s.replay(ctx, winner, input.OrderID)
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist payment")
	}

	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, input.OrderID.String()), map[string]any{
		"payment_id": payment.ID.String(),
		"intent_id":  intent.ID,
	})
	s.logg.Info(logCtx, "payment initiated")

	return toResponse(payment, intent.ClientSecret), nil
}

// replay returns an existing payment. The client secret is only re-fetched
// while the payment is still INITIATED.
func (s *service) replay(ctx context.Context, p *models.Payment, orderID uuid.UUID) (*PaymentResponse, error) {
	if p.OrderID != orderID {
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key already used for another order").
			WithDetails(map[string]any{"paymentId": p.ID})
	}
	secret := ""
	if p.Status == enums.PaymentStatusInitiated {
		intent, err := s.provider.RetrieveIntent(ctx, p.ProviderIntentID)
		if err != nil {
			s.logg.Error(s.logg.WithField(ctx, "payment_id", p.ID.String()), "retrieve existing payment intent", err)
		} else {
			secret = intent.ClientSecret
		}
	}
	return toResponse(p, secret), nil
}

func (s *service) CaptureByIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	payment, err := s.findByIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found for intent").
			WithDetails(map[string]any{"intentId": intentID})
	}
	return s.apply(ctx, payment, enums.PaymentStatusCaptured, "", sourceWebhook)
}

// FailByIntent ignores intents it does not know about.
func (s *service) FailByIntent(ctx context.Context, intentID, reason string) (*models.Payment, error) {
	payment, err := s.findByIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		s.logg.Warn(s.logg.WithField(ctx, "intent_id", intentID), "payment failure for unknown intent ignored")
		return nil, nil
	}
	if strings.TrimSpace(reason) == "" {
		reason = "Unknown Error"
	}
	return s.apply(ctx, payment, enums.PaymentStatusFailed, reason, sourceWebhook)
}

// RefundByIntent has no policy yet; the transition always reaches the
// unhandled hook.
func (s *service) RefundByIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	payment, err := s.findByIntent(ctx, intentID)
	if err != nil {
		return nil, err
	}
	if payment == nil {
		return nil, nil
	}
	return s.apply(ctx, payment, enums.PaymentStatusRefunded, "", sourceWebhook)
}

// VerifyStatus polls the provider for the order's latest payment and applies
// the same capture path as the webhook.
func (s *service) VerifyStatus(ctx context.Context, orderID uuid.UUID) (bool, error) {
	payment, err := s.repo.FindLatestByOrder(ctx, orderID)
	if err != nil {
		return false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load latest payment")
	}
	if payment == nil {
		s.logg.Warn(s.logg.WithOrderID(ctx, orderID.String()), "no payment found for order")
		return false, nil
	}
	return s.verify(ctx, payment)
}

func (s *service) verify(ctx context.Context, payment *models.Payment) (bool, error) {
	if payment.Status == enums.PaymentStatusCaptured {
		return true, nil
	}
	logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, payment.OrderID.String()), map[string]any{
		"payment_id": payment.ID.String(),
	})
	intent, err := s.provider.RetrieveIntent(ctx, payment.ProviderIntentID)
	if err != nil {
		s.logg.Error(logCtx, "retrieve payment intent for verification", err)
		return false, nil
	}
	if !intent.Succeeded() {
		s.logg.Info(s.logg.WithField(logCtx, "intent_status", intent.Status), "payment not yet succeeded")
		return false, nil
	}
	updated, err := s.apply(ctx, payment, enums.PaymentStatusCaptured, "", sourceVerify)
	if err != nil {
		if errors.Is(err, ErrUnhandledTransition) {
			return false, nil
		}
		return false, err
	}
	return updated.Status == enums.PaymentStatusCaptured, nil
}

// SweepStale verifies INITIATED payments whose webhook may have been lost.
func (s *service) SweepStale(ctx context.Context, createdBefore time.Time, limit int) (SweepSummary, error) {
	var summary SweepSummary
	stale, err := s.repo.ListStale(ctx, createdBefore, limit)
	if err != nil {
		return summary, fmt.Errorf("list stale payments: %w", err)
	}
	summary.Scanned = len(stale)
	var errs error
	for i := range stale {
		captured, err := s.verify(ctx, &stale[i])
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("payment %s: %w", stale[i].ID, err))
			continue
		}
		if captured {
			summary.Captured++
		}
	}
	return summary, errs
}

// apply runs Transition under a compare-and-swap on the payment row. A lost
// race reloads the row and re-evaluates, so the loser sees a no-op.
func (s *service) apply(ctx context.Context, payment *models.Payment, target enums.PaymentStatus, reason, source string) (*models.Payment, error) {
	current := payment
	for attempt := 0; attempt < maxCASAttempts; attempt++ {
		decision, err := Transition(current.Status, target)
		if err != nil {
			s.metrics.IncTransition(string(current.Status), string(target), "unhandled")
			s.hook.OnUnhandled(ctx, UnhandledTransition{
				PaymentID: current.ID,
				OrderID:   current.OrderID,
				From:      string(current.Status),
				To:        string(target),
				Source:    source,
				Reason:    reason,
			})
			return current, pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "payment transition not handled")
		}
		if !decision.Changed {
			s.metrics.IncTransition(string(current.Status), string(target), "noop")
			return current, nil
		}

		var errMsg *string
		if target == enums.PaymentStatusFailed {
			errMsg = &reason
		}
		won := false
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			ok, err := s.repo.WithTx(tx).CompareAndSetStatus(ctx, current.ID, current.Status, decision.Next, errMsg)
			if err != nil {
				return err
			}
			if !ok {
				return nil
			}
			for _, eventType := range decision.Events {
				if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{Event: paymentEvent(eventType, current, reason)}); err != nil {
					return err
				}
			}
			won = true
			return nil
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "apply payment transition")
		}
		if won {
			s.metrics.IncTransition(string(current.Status), string(decision.Next), "applied")
			logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, current.OrderID.String()), map[string]any{
				"payment_id": current.ID.String(),
				"from":       current.Status,
				"to":         decision.Next,
				"source":     source,
			})
			s.logg.Info(logCtx, "payment status updated")
			updated := *current
			updated.Status = decision.Next
			updated.ErrorMessage = errMsg
			return &updated, nil
		}

		reloaded, err := s.repo.FindByID(ctx, current.ID)
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reload payment")
		}
		if reloaded == nil {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
		}
		current = reloaded
	}
	return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "payment status kept changing")
}

func (s *service) findByIntent(ctx context.Context, intentID string) (*models.Payment, error) {
	if strings.TrimSpace(intentID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id required")
	}
	payment, err := s.repo.FindByProviderIntentID(ctx, intentID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "lookup payment by intent")
	}
	return payment, nil
}

func paymentEvent(eventType enums.OutboxEventType, p *models.Payment, reason string) events.Event {
	switch eventType {
	case enums.EventPaymentCaptured:
		return events.PaymentCaptured{
			OrderID:          p.OrderID,
			PaymentID:        p.ID,
			Amount:           p.Amount,
			Currency:         p.Currency,
			ProviderIntentID: p.ProviderIntentID,
		}
	default:
		return events.PaymentFailed{
			OrderID:   p.OrderID,
			PaymentID: p.ID,
			Reason:    reason,
		}
	}
}

func toResponse(p *models.Payment, clientSecret string) *PaymentResponse {
	return &PaymentResponse{
		PaymentID:        p.ID,
		ProviderIntentID: p.ProviderIntentID,
		ClientSecret:     clientSecret,
		Status:           p.Status,
		Amount:           p.Amount,
		Currency:         p.Currency,
	}
}
