package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bistrohq/bistro-backend/pkg/db/models"
)

// Repository manages persistence for the inventory ledger and its cached balance.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindIngredient(ctx context.Context, id uuid.UUID) (*models.Ingredient, error)
	LockIngredient(ctx context.Context, id uuid.UUID) (*models.Ingredient, error)
	InsertTransaction(ctx context.Context, entry *models.InventoryTx) error
	SwapBalance(ctx context.Context, id uuid.UUID, expectedVersion int64, balance decimal.Decimal) (bool, error)
	SumChanges(ctx context.Context, id uuid.UUID) (decimal.Decimal, int64, error)
	ListTransactions(ctx context.Context, id uuid.UUID, limit int) ([]models.InventoryTx, error)
	ListIngredientIDs(ctx context.Context) ([]uuid.UUID, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a ledger repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindIngredient(ctx context.Context, id uuid.UUID) (*models.Ingredient, error) {
	var ingredient models.Ingredient
	if err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&ingredient).Error; err != nil {
		return nil, err
	}
	return &ingredient, nil
}

// LockIngredient reads the ingredient holding a row lock until the surrounding
// transaction ends. SQLite has no row locks and serialises writers instead.
func (r *repository) LockIngredient(ctx context.Context, id uuid.UUID) (*models.Ingredient, error) {
	var ingredient models.Ingredient
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&ingredient).Error; err != nil {
		return nil, err
	}
	return &ingredient, nil
}

func (r *repository) InsertTransaction(ctx context.Context, entry *models.InventoryTx) error {
	return r.db.WithContext(ctx).Create(entry).Error
}

// SwapBalance writes the new projection only if nobody bumped the version since
// it was read.
func (r *repository) SwapBalance(ctx context.Context, id uuid.UUID, expectedVersion int64, balance decimal.Decimal) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.Ingredient{}).
		Where("id = ? AND version = ?", id, expectedVersion).
		Updates(map[string]any{
			"quantity_on_hand": balance,
			"version":          gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SumChanges scans the full ledger for one ingredient. Audit use only.
func (r *repository) SumChanges(ctx context.Context, id uuid.UUID) (decimal.Decimal, int64, error) {
	var changes []decimal.Decimal
	if err := r.db.WithContext(ctx).
		Model(&models.InventoryTx{}).
		Where("ingredient_id = ?", id).
		Pluck("quantity_change", &changes).Error; err != nil {
		return decimal.Zero, 0, err
	}
	return decimal.Sum(decimal.Zero, changes...), int64(len(changes)), nil
}

func (r *repository) ListTransactions(ctx context.Context, id uuid.UUID, limit int) ([]models.InventoryTx, error) {
	var rows []models.InventoryTx
	q := r.db.WithContext(ctx).
		Where("ingredient_id = ?", id).
		Order("tx_date DESC").
		Order("created_at DESC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListIngredientIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	if err := r.db.WithContext(ctx).
		Model(&models.Ingredient{}).
		Order("name ASC").
		Pluck("id", &ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
