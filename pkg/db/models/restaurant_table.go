package models

import (
	"time"

	"github.com/google/uuid"
)

// RestaurantTable is a physical table. IsOccupied mirrors whether an open order references it.
type RestaurantTable struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Number     int       `gorm:"column:number;not null;uniqueIndex"`
	Capacity   int       `gorm:"column:capacity;not null"`
	IsOccupied bool      `gorm:"column:is_occupied;not null;default:false"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (RestaurantTable) TableName() string { return "restaurant_tables" }
