package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLine snapshots the menu price at the moment the line was added.
type OrderLine struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	OrderID    uuid.UUID       `gorm:"column:order_id;type:uuid;not null;index"`
	MenuItemID uuid.UUID       `gorm:"column:menu_item_id;type:uuid;not null"`
	Quantity   int             `gorm:"column:quantity;not null"`
	PriceEach  decimal.Decimal `gorm:"column:price_each;type:numeric(12,2);not null"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
}

// Subtotal returns quantity × priceEach.
func (l OrderLine) Subtotal() decimal.Decimal {
	return l.PriceEach.Mul(decimal.NewFromInt(int64(l.Quantity)))
}
