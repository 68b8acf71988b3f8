package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MenuItem is reference data owned by the menu module.
type MenuItem struct {
	ID        uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	Name      string          `gorm:"column:name;not null"`
	Price     decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null"`
	Available bool            `gorm:"column:available;not null"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}

// RecipeItem states how much of an ingredient one unit of a menu item consumes.
type RecipeItem struct {
	MenuItemID   uuid.UUID       `gorm:"column:menu_item_id;type:uuid;primaryKey"`
	IngredientID uuid.UUID       `gorm:"column:ingredient_id;type:uuid;primaryKey"`
	Quantity     decimal.Decimal `gorm:"column:quantity;type:numeric(12,3);not null"`
}
