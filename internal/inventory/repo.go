package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bistrohq/bistro-backend/internal/repo"
	"github.com/bistrohq/bistro-backend/pkg/db/models"
)

// Repository exposes read paths over ingredients. Balances are written by the ledger only.
type Repository interface {
	FindIngredient(ctx context.Context, id uuid.UUID) (*models.Ingredient, error)
	ListAtOrBelowThreshold(ctx context.Context, after uuid.UUID, limit int) ([]models.Ingredient, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns an inventory repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) FindIngredient(ctx context.Context, id uuid.UUID) (*models.Ingredient, error) {
	var ingredient models.Ingredient
	if err := r.DB(ctx).Where("id = ?", id).First(&ingredient).Error; err != nil {
		return nil, err
	}
	return &ingredient, nil
}

// ListAtOrBelowThreshold pages through ingredients that need reordering, keyed on id.
func (r *repository) ListAtOrBelowThreshold(ctx context.Context, after uuid.UUID, limit int) ([]models.Ingredient, error) {
	var rows []models.Ingredient
	if err := r.DB(ctx).
		Where("quantity_on_hand <= reorder_threshold").
		Where("id > ?", after).
		Order("id ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}
