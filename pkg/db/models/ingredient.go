package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ingredient carries the cached stock projection. QuantityOnHand and Version
// are written only by the ledger store.
type Ingredient struct {
	ID               uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name             string          `gorm:"column:name;not null;uniqueIndex"`
	Unit             string          `gorm:"column:unit;not null"`
	QuantityOnHand   decimal.Decimal `gorm:"column:quantity_on_hand;type:numeric(12,3);not null;default:0"`
	ReorderThreshold decimal.Decimal `gorm:"column:reorder_threshold;type:numeric(12,3);not null;default:0"`
	Version          int64           `gorm:"column:version;not null;default:0"`
	CreatedAt        time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// NeedsReorder reports whether stock has fallen to the reorder threshold.
func (i Ingredient) NeedsReorder() bool {
	return i.QuantityOnHand.LessThanOrEqual(i.ReorderThreshold)
}
