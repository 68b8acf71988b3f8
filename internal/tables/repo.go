package tables

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bistrohq/bistro-backend/pkg/db/models"
	"github.com/bistrohq/bistro-backend/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds a tables repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) LockTable(ctx context.Context, id uuid.UUID) (*models.RestaurantTable, error) {
	var table models.RestaurantTable
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&table).Error; err != nil {
		return nil, err
	}
	return &table, nil
}

func (r *repository) SetTableOccupied(ctx context.Context, id uuid.UUID, occupied bool) error {
	return r.db.WithContext(ctx).
		Model(&models.RestaurantTable{}).
		Where("id = ?", id).
		Updates(map[string]any{"is_occupied": occupied}).Error
}

func (r *repository) FindOpenOrderByTable(ctx context.Context, tableID uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Where("table_id = ? AND status = ?", tableID, enums.OrderStatusOpen).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) FindOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) LockOrder(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&order).Error; err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *repository) CreateOrder(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// CloseOrder flips an open order to closed. It reports false when the order was
// no longer open.
func (r *repository) CloseOrder(ctx context.Context, id uuid.UUID, closedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("id = ? AND status = ?", id, enums.OrderStatusOpen).
		Updates(map[string]any{
			"status":    enums.OrderStatusClosed,
			"closed_at": closedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) FindMenuItem(ctx context.Context, id uuid.UUID) (*models.MenuItem, error) {
	var item models.MenuItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *repository) ListRecipeItems(ctx context.Context, menuItemIDs []uuid.UUID) ([]models.RecipeItem, error) {
	if len(menuItemIDs) == 0 {
		return nil, nil
	}
	var items []models.RecipeItem
	if err := r.db.WithContext(ctx).
		Where("menu_item_id IN ?", menuItemIDs).
		Order("ingredient_id ASC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) CreateLine(ctx context.Context, line *models.OrderLine) error {
	return r.db.WithContext(ctx).Create(line).Error
}

func (r *repository) FindLine(ctx context.Context, id uuid.UUID) (*models.OrderLine, error) {
	var line models.OrderLine
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&line).Error; err != nil {
		return nil, err
	}
	return &line, nil
}

// DeleteLine reports false when the line was already gone.
func (r *repository) DeleteLine(ctx context.Context, id uuid.UUID) (bool, error) {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.OrderLine{})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) ListLines(ctx context.Context, orderID uuid.UUID) ([]models.OrderLine, error) {
	var lines []models.OrderLine
	if err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}
