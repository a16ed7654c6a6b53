package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

// OrderItem freezes the product snapshot and price at purchase time.
type OrderItem struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OrderID          uuid.UUID       `gorm:"column:order_id;type:uuid;not null"`
	ProductID        int64           `gorm:"column:product_id;not null"`
	ProductName      string          `gorm:"column:product_name;not null"`
	Quantity         int             `gorm:"column:quantity;not null"`
	Price            decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	ImageURLs        pq.StringArray  `gorm:"column:image_urls;type:text[]"`
	Position         int             `gorm:"column:position;not null;default:0"`
	StockCommittedAt *time.Time      `gorm:"column:stock_committed_at"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (OrderItem) TableName() string { return "order_items" }
