package tables

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bistrohq/bistro-backend/internal/inventory"
	"github.com/bistrohq/bistro-backend/internal/ledger"
	"github.com/bistrohq/bistro-backend/pkg/db/models"
	"github.com/bistrohq/bistro-backend/pkg/outbox"
)

// Repository captures persistence for tables, orders and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	LockTable(ctx context.Context, id uuid.UUID) (*models.RestaurantTable, error)
	SetTableOccupied(ctx context.Context, id uuid.UUID, occupied bool) error

	FindOpenOrderByTable(ctx context.Context, tableID uuid.UUID) (*models.Order, error)
	FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error)
	CreateOrder(ctx context.Context, order *models.Order) error
	CloseOrder(ctx context.Context, id uuid.UUID, closedAt time.Time) (bool, error)

	FindMenuItem(ctx context.Context, id uuid.UUID) (*models.MenuItem, error)
	ListRecipeItems(ctx context.Context, menuItemIDs []uuid.UUID) ([]models.RecipeItem, error)

	CreateLine(ctx context.Context, line *models.OrderLine) error
	FindLine(ctx context.Context, id uuid.UUID) (*models.OrderLine, error)
	DeleteLine(ctx context.Context, id uuid.UUID) (bool, error)
	ListLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// StockConsumer records ingredient usage inside the closing transaction.
type StockConsumer interface {
	AdjustTx(ctx context.Context, tx *gorm.DB, input inventory.AdjustInput) (*ledger.TxRecord, error)
}
