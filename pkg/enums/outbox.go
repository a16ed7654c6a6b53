package enums

// OutboxAggregateType is the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder   OutboxAggregateType = "order"
	AggregatePayment OutboxAggregateType = "payment"
)

var aggregateTypes = []OutboxAggregateType{AggregateOrder, AggregatePayment}

func (a OutboxAggregateType) IsValid() bool { return member(aggregateTypes, a) }

func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	return parseExact(aggregateTypes, "aggregate type", value)
}

// OutboxEventType is the event_type column of outbox_events and the
// event_type attribute on published messages.
type OutboxEventType string

const (
	EventOrderCreated       OutboxEventType = "order_created"
	EventOrderStatusUpdated OutboxEventType = "order_status_updated"
	EventPaymentCaptured    OutboxEventType = "payment_captured"
	EventPaymentFailed      OutboxEventType = "payment_failed"
)

var eventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderStatusUpdated,
	EventPaymentCaptured,
	EventPaymentFailed,
}

func (e OutboxEventType) IsValid() bool { return member(eventTypes, e) }

// ParseOutboxEventType accepts only the exact lower_snake values.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	return parseExact(eventTypes, "event type", value)
}
