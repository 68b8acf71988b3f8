package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/bistrohq/bistro-backend/pkg/enums"
)

// Order is a customer order seated at a table. At most one open order may
// reference a table at a time.
type Order struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	TableID   uuid.UUID         `gorm:"column:table_id;type:uuid;not null;index:ux_orders_open_table,unique,where:status = 'open'"`
	Status    enums.OrderStatus `gorm:"column:status;type:text;not null"`
	CreatedAt time.Time         `gorm:"column:created_at;not null"`
	ClosedAt  *time.Time        `gorm:"column:closed_at"`
	UpdatedAt time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
