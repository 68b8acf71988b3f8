package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InventoryTx is one append-only ledger entry. Rows are never updated or deleted.
type InventoryTx struct {
	ID             uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	IngredientID   uuid.UUID       `gorm:"column:ingredient_id;type:uuid;not null;index:idx_inventory_tx_ingredient_date,priority:1"`
	TxDate         time.Time       `gorm:"column:tx_date;not null;index:idx_inventory_tx_ingredient_date,priority:2"`
	QuantityChange decimal.Decimal `gorm:"column:quantity_change;type:numeric(12,3);not null"`
	BalanceAfter   decimal.Decimal `gorm:"column:balance_after;type:numeric(12,3);not null"`
	Notes          string          `gorm:"column:notes;not null;default:''"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime"`
}

func (InventoryTx) TableName() string { return "inventory_transactions" }
