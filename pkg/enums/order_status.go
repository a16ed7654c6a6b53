package enums

// OrderStatus is the customer-facing lifecycle of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "PENDING"
	OrderStatusConfirmed  OrderStatus = "CONFIRMED"
	OrderStatusProcessing OrderStatus = "PROCESSING"
	OrderStatusShipped    OrderStatus = "SHIPPED"
	OrderStatusDelivered  OrderStatus = "DELIVERED"
	OrderStatusCancelled  OrderStatus = "CANCELLED"
)

var orderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusConfirmed,
	OrderStatusProcessing,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

func (s OrderStatus) String() string {
	return string(s)
}

func (s OrderStatus) IsValid() bool { return member(orderStatuses, s) }

// OrderStatusNames lists the allowed values in lifecycle order.
func OrderStatusNames() []string {
	names := make([]string, 0, len(orderStatuses))
	for _, s := range orderStatuses {
		names = append(names, string(s))
	}
	return names
}

// ParseOrderStatus ignores case and surrounding whitespace.
func ParseOrderStatus(value string) (OrderStatus, error) {
	return parseUpper(orderStatuses, "order status", value)
}
