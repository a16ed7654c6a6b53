package payments

import (
	"errors"
	"fmt"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ErrUnhandledTransition marks a status pair with no defined handling.
var ErrUnhandledTransition = errors.New("unhandled payment transition")

// Decision is the outcome of Transition.
type Decision struct {
	Next    enums.PaymentStatus
	Changed bool
	Events  []enums.OutboxEventType
}

type transitionKey struct {
	from enums.PaymentStatus
	to   enums.PaymentStatus
}

var transitions = map[transitionKey]Decision{
	{enums.PaymentStatusInitiated, enums.PaymentStatusCaptured}: {
		Next: enums.PaymentStatusCaptured, Changed: true, Events: []enums.OutboxEventType{enums.EventPaymentCaptured},
	},
	{enums.PaymentStatusInitiated, enums.PaymentStatusFailed}: {
		Next: enums.PaymentStatusFailed, Changed: true, Events: []enums.OutboxEventType{enums.EventPaymentFailed},
	},
	{enums.PaymentStatusAuthorized, enums.PaymentStatusCaptured}: {
		Next: enums.PaymentStatusCaptured, Changed: true, Events: []enums.OutboxEventType{enums.EventPaymentCaptured},
	},
	{enums.PaymentStatusAuthorized, enums.PaymentStatusFailed}: {
		Next: enums.PaymentStatusFailed, Changed: true, Events: []enums.OutboxEventType{enums.EventPaymentFailed},
	},
	// the customer can retry a declined intent and still pay it.
	{enums.PaymentStatusFailed, enums.PaymentStatusCaptured}: {
		Next: enums.PaymentStatusCaptured, Changed: true, Events: []enums.OutboxEventType{enums.EventPaymentCaptured},
	},
	{enums.PaymentStatusCaptured, enums.PaymentStatusCaptured}: {Next: enums.PaymentStatusCaptured},
	{enums.PaymentStatusFailed, enums.PaymentStatusFailed}:     {Next: enums.PaymentStatusFailed},
}

// Transition is the payment state machine. It has no side effects: callers
// apply Next under a compare-and-swap and publish Events only if they win.
func Transition(current, target enums.PaymentStatus) (Decision, error) {
	d, ok := transitions[transitionKey{from: current, to: target}]
	if !ok {
		return Decision{Next: current}, fmt.Errorf("%w: %s -> %s", ErrUnhandledTransition, current, target)
	}
	d.Events = append([]enums.OutboxEventType(nil), d.Events...)
	return d, nil
}
