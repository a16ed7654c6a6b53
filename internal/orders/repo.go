package orders

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Repository defines persistence operations for orders and their items.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	ListByUser(ctx context.Context, userID string) ([]models.Order, error)
	ShippingAddresses(ctx context.Context, userID string) ([]string, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) (bool, error)
	MarkItemStockCommitted(ctx context.Context, itemID uuid.UUID, at time.Time) error
	UpdateCheckoutProgress(ctx context.Context, id uuid.UUID, progress CheckoutProgress) error
	ListStalledCheckouts(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Order, error)
}

// CheckoutProgress is the step cursor written after a stock commit attempt.
// CommittedItems are stamped with CommittedAt in the same transaction when
// they are not stamped yet.
type CheckoutProgress struct {
	Step           enums.CheckoutStep
	Attempts       int
	LastError      *string
	CommittedItems []uuid.UUID
	CommittedAt    time.Time
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds an orders repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Create inserts the order together with its items.
func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// FindByID returns nil, nil when the order does not exist.
func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("id = ?", id).
		First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &order, nil
}

func (r *repository) ListByUser(ctx context.Context, userID string) ([]models.Order, error) {
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Order("id DESC").
		Find(&orders).Error
	return orders, err
}

// ShippingAddresses returns the distinct addresses the user shipped to, most
// recent first.
func (r *repository) ShippingAddresses(ctx context.Context, userID string) ([]string, error) {
	var rows []struct {
		ShippingAddress string
	}
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("shipping_address, MAX(created_at) AS last_used").
		Where("user_id = ? AND shipping_address <> ''", userID).
		Group("shipping_address").
		Order("last_used DESC").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.ShippingAddress)
	}
	return out, nil
}

// CompareAndSetStatus moves the order from -> to and reports whether this
// call won; a false result means the status was no longer from.
func (r *repository) CompareAndSetStatus(ctx context.Context, id uuid.UUID, from, to enums.OrderStatus) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now().UTC(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) MarkItemStockCommitted(ctx context.Context, itemID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ? AND stock_committed_at IS NULL", itemID).
		Update("stock_committed_at", at).Error
}

func (r *repository) UpdateCheckoutProgress(ctx context.Context, id uuid.UUID, progress CheckoutProgress) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(progress.CommittedItems) > 0 {
			err := tx.Model(&models.OrderItem{}).
				Where("order_id = ? AND id IN ? AND stock_committed_at IS NULL", id, progress.CommittedItems).
				Update("stock_committed_at", progress.CommittedAt).Error
			if err != nil {
				return err
			}
		}
		return tx.Model(&models.Order{}).
			Where("id = ?", id).
			Updates(map[string]any{
				"checkout_step":           progress.Step,
				"stock_commit_attempts":   progress.Attempts,
				"last_stock_commit_error": progress.LastError,
				"updated_at":              time.Now().UTC(),
			}).Error
	})
}

// ListStalledCheckouts returns orders still waiting for stock commit whose
// last progress update is older than updatedBefore, oldest first.
func (r *repository) ListStalledCheckouts(ctx context.Context, updatedBefore time.Time, limit int) ([]models.Order, error) {
	if limit <= 0 {
		limit = 50
	}
	var orders []models.Order
	err := r.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Where("checkout_step = ? AND updated_at < ?", enums.CheckoutStepOrderCreated, updatedBefore).
		Order("updated_at ASC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}
