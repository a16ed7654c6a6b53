package stripewebhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/payments"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const (
	unknownFailureReason = "Unknown Error"
	// ConsumerName scopes Stripe event ids in the processed-message keyspace.
	ConsumerName = "stripe-webhook"
)

type paymentTransitions interface {
	CaptureByIntent(ctx context.Context, intentID string) (*models.Payment, error)
	FailByIntent(ctx context.Context, intentID, reason string) (*models.Payment, error)
	RefundByIntent(ctx context.Context, intentID string) (*models.Payment, error)
}

type eventVerifier interface {
	ConstructEvent(payload []byte, signature string) (stripe.Event, error)
}

type dedupe interface {
	CheckAndMarkProcessed(ctx context.Context, consumer, id string) (bool, error)
	Delete(ctx context.Context, consumer, id string) error
}

type ServiceParams struct {
	Verifier eventVerifier
	Payments paymentTransitions
	Dedupe   dedupe
	Logger   *logger.Logger
}

// Service verifies, dedupes and dispatches Stripe webhook deliveries.
type Service struct {
	verifier eventVerifier
	payments paymentTransitions
	dedupe   dedupe
	logg     *logger.Logger
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Verifier == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe verifier required")
	}
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments service required")
	}
	if params.Dedupe == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "dedupe manager required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		verifier: params.Verifier,
		payments: params.Payments,
		dedupe:   params.Dedupe,
		logg:     params.Logger,
	}, nil
}

// HandleWebhook rejects bad signatures before anything is read or changed.
// The dedupe mark is released when processing fails so Stripe's retry gets
// a second chance.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	if signature == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing")
	}
	event, err := s.verifier.ConstructEvent(payload, signature)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid webhook signature")
	}

	ctx = s.logg.WithFields(ctx, map[string]any{
		"stripe_event_id":   event.ID,
		"stripe_event_type": string(event.Type),
	})

	seen, err := s.dedupe.CheckAndMarkProcessed(ctx, ConsumerName, event.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check webhook idempotency")
	}
	if seen {
		s.logg.Info(ctx, "duplicate stripe event ignored")
		return nil
	}

	if err := s.HandleEvent(ctx, &event); err != nil {
		if errors.Is(err, payments.ErrUnhandledTransition) {
			return nil
		}
		if delErr := s.dedupe.Delete(ctx, ConsumerName, event.ID); delErr != nil {
			s.logg.Error(ctx, "release webhook idempotency mark", delErr)
		}
		return err
	}
	s.logg.Info(ctx, fmt.Sprintf("stripe event %s processed", event.ID))
	return nil
}

// HandleEvent dispatches a verified event.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded:
		intent, err := decodeIntent(event)
		if err != nil {
			return err
		}
		_, err = s.payments.CaptureByIntent(ctx, intent.ID)
		return err
	case stripe.EventTypePaymentIntentPaymentFailed:
		intent, err := decodeIntent(event)
		if err != nil {
			return err
		}
		reason := unknownFailureReason
		if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
			reason = intent.LastPaymentError.Msg
		}
		_, err = s.payments.FailByIntent(ctx, intent.ID, reason)
		return err
	case stripe.EventTypeChargeRefunded:
		var charge stripe.Charge
		if err := json.Unmarshal(event.Data.Raw, &charge); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode charge event")
		}
		if charge.PaymentIntent == nil || charge.PaymentIntent.ID == "" {
			s.logg.Warn(ctx, "refunded charge has no payment intent")
			return nil
		}
		_, err := s.payments.RefundByIntent(ctx, charge.PaymentIntent.ID)
		return err
	default:
		s.logg.Info(ctx, "unhandled stripe event type ignored")
		return nil
	}
}

func decodeIntent(event *stripe.Event) (*stripe.PaymentIntent, error) {
	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	if intent.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}
	return &intent, nil
}
