package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/events"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
)

const (
	orderNumberPrefix      = "ORD-"
	orderNumberConstraint  = "ux_orders_order_number"
	orderNumberColumn      = "orders.order_number"
	maxOrderNumberAttempts = 3
)

// allowedTransitions is the forward-only order lifecycle. Setting the current
// status again is accepted as a no-op and is not listed here.
var allowedTransitions = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusPending:    {enums.OrderStatusConfirmed, enums.OrderStatusCancelled},
	enums.OrderStatusConfirmed:  {enums.OrderStatusProcessing, enums.OrderStatusCancelled},
	enums.OrderStatusProcessing: {enums.OrderStatusShipped, enums.OrderStatusCancelled},
	enums.OrderStatusShipped:    {enums.OrderStatusDelivered},
}

// CanTransition reports whether an order may move from -> to.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range allowedTransitions[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// Service exposes the order lifecycle.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Get(ctx context.Context, id uuid.UUID) (*models.Order, error)
	GetForUser(ctx context.Context, userID string, id uuid.UUID) (*models.Order, error)
	List(ctx context.Context, userID string) ([]models.Order, error)
	SavedAddresses(ctx context.Context, userID string) ([]string, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string, actor *outbox.ActorRef) (*models.Order, error)
	ConfirmPayment(ctx context.Context, id uuid.UUID) (bool, error)
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	now    func() time.Time
}

// NewService wires the orders service.
func NewService(repo Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{repo: repo, tx: tx, outbox: outbox, logg: logg, now: time.Now}, nil
}

// Create persists the order and its items and queues OrderCreated in the same
// transaction. Order numbers are derived from the clock; a collision retries
// with the next millisecond.
func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if err := validateCreate(input); err != nil {
		return nil, err
	}

	var (
		order *models.Order
		err   error
	)
	base := s.now().UTC()
	for attempt := 0; attempt < maxOrderNumberAttempts; attempt++ {
		order = buildOrder(input, fmt.Sprintf("%s%d", orderNumberPrefix, base.UnixMilli()+int64(attempt)), base)
		err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.repo.WithTx(tx).Create(ctx, order); err != nil {
				return err
			}
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				Event: events.OrderCreated{
					OrderID:     order.ID,
					OrderNumber: order.OrderNumber,
					UserID:      order.UserID,
					TotalAmount: order.TotalAmount,
					Status:      order.Status,
				},
				Actor:      &outbox.ActorRef{UserID: order.UserID},
				OccurredAt: base,
			})
		})
		if err == nil {
			break
		}
		if !isOrderNumberCollision(err) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create order")
		}
	}
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeConflict, err, "allocate order number")
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{
		"order_number": order.OrderNumber,
		"total":        order.TotalAmount.StringFixed(2),
		"items":        len(order.Items),
	})
	s.logg.Info(logCtx, "order created")
	return order, nil
}

func (s *service) Get(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
	}
	if order == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

// GetForUser hides other users' orders behind a 404.
func (s *service) GetForUser(ctx context.Context, userID string, id uuid.UUID) (*models.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	order, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if order.UserID != userID {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) List(ctx context.Context, userID string) ([]models.Order, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	list, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list orders")
	}
	return list, nil
}

func (s *service) SavedAddresses(ctx context.Context, userID string) ([]string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	addrs, err := s.repo.ShippingAddresses(ctx, userID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list saved addresses")
	}
	return addrs, nil
}

// UpdateStatus is the admin transition. Re-applying the current status
// returns the order unchanged without emitting an event.
func (s *service) UpdateStatus(ctx context.Context, id uuid.UUID, raw string, actor *outbox.ActorRef) (*models.Order, error) {
	target, err := enums.ParseOrderStatus(raw)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid order status").
			WithDetails(map[string]any{"allowed": enums.OrderStatusNames()})
	}

	var updated *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		if order.Status == target {
			updated = order
			return nil
		}
		if !CanTransition(order.Status, target) {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order status transition not allowed").
				WithDetails(map[string]any{"from": order.Status, "to": target})
		}
		updated, err = s.transition(ctx, tx, order, target, actor)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ConfirmPayment moves a PENDING order to CONFIRMED. It reports false when the
// order was already past PENDING, which makes redelivered captures harmless.
func (s *service) ConfirmPayment(ctx context.Context, id uuid.UUID) (bool, error) {
	changed := false
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		order, err := s.repo.WithTx(tx).FindByID(ctx, id)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load order")
		}
		if order == nil {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		switch order.Status {
		case enums.OrderStatusPending:
		case enums.OrderStatusCancelled:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "payment captured for cancelled order").
				WithDetails(map[string]any{"orderId": order.ID})
		default:
			return nil
		}
		if _, err := s.transition(ctx, tx, order, enums.OrderStatusConfirmed, nil); err != nil {
			return err
		}
		changed = true
		return nil
	})
	return changed, err
}

func (s *service) transition(ctx context.Context, tx *gorm.DB, order *models.Order, target enums.OrderStatus, actor *outbox.ActorRef) (*models.Order, error) {
	repo := s.repo.WithTx(tx)
	previous := order.Status
	ok, err := repo.CompareAndSetStatus(ctx, order.ID, previous, target)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "update order status")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order status changed concurrently")
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		Event: events.OrderStatusUpdated{
			OrderID:        order.ID,
			UserID:         order.UserID,
			TotalAmount:    order.TotalAmount,
			Status:         target,
			PreviousStatus: previous,
		},
		Actor:      actor,
		OccurredAt: s.now().UTC(),
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "queue order status event")
	}

	logCtx := s.logg.WithOrderID(ctx, order.ID.String())
	logCtx = s.logg.WithFields(logCtx, map[string]any{"from": previous, "to": target})
	s.logg.Info(logCtx, "order status updated")

	order.Status = target
	return order, nil
}

func validateCreate(input CreateOrderInput) error {
	if strings.TrimSpace(input.UserID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "user id required")
	}
	details := map[string]any{}
	if strings.TrimSpace(input.ShippingAddress) == "" {
		details["shippingAddress"] = "required"
	}
	if strings.TrimSpace(input.PaymentMethod) == "" {
		details["paymentMethod"] = "required"
	}
	if len(input.Items) == 0 {
		details["items"] = "at least one item required"
	}
	for _, item := range input.Items {
		if item.Quantity <= 0 {
			details["items"] = fmt.Sprintf("quantity for product %d must be positive", item.ProductID)
			break
		}
	}
	if input.TotalAmount.IsNegative() {
		details["totalAmount"] = "must not be negative"
	}
	if len(details) > 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "invalid order").WithDetails(details)
	}
	return nil
}

func buildOrder(input CreateOrderInput, number string, now time.Time) *models.Order {
	orderID := uuid.New()
	items := make([]models.OrderItem, 0, len(input.Items))
	for i, it := range input.Items {
		items = append(items, models.OrderItem{
			ID:          uuid.New(),
			OrderID:     orderID,
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Price:       it.Price,
			ImageURLs:   pq.StringArray(it.ImageURLs),
			Position:    i,
			CreatedAt:   now,
		})
	}
	return &models.Order{
		ID:              orderID,
		UserID:          input.UserID,
		OrderNumber:     number,
		Status:          enums.OrderStatusPending,
		TotalAmount:     input.TotalAmount,
		ShippingAddress: strings.TrimSpace(input.ShippingAddress),
		PaymentMethod:   strings.TrimSpace(input.PaymentMethod),
		PromoCode:       input.PromoCode,
		DiscountAmount:  input.DiscountAmount,
		CheckoutStep:    enums.CheckoutStepOrderCreated,
		Items:           items,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func isOrderNumberCollision(err error) bool {
	return db.IsUniqueViolation(err, orderNumberConstraint) || db.IsUniqueViolation(err, orderNumberColumn)
}
