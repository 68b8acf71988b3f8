package inventory

import (
	"context"
	"fmt"
	"iter"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bistrohq/bistro-backend/internal/ledger"
	"github.com/bistrohq/bistro-backend/internal/repo"
	"github.com/bistrohq/bistro-backend/pkg/db/models"
	"github.com/bistrohq/bistro-backend/pkg/enums"
	pkgerrors "github.com/bistrohq/bistro-backend/pkg/errors"
	"github.com/bistrohq/bistro-backend/pkg/logger"
	"github.com/bistrohq/bistro-backend/pkg/outbox"
	"github.com/bistrohq/bistro-backend/pkg/outbox/payloads"
)

const defaultPageSize = 100

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service adjusts stock through the ledger and answers reorder questions.
type Service interface {
	Adjust(ctx context.Context, input AdjustInput) (*ledger.TxRecord, error)
	// AdjustTx applies an adjustment inside the caller's transaction. A negative
	// resulting balance fails with InsufficientStock and the caller must roll back.
	AdjustTx(ctx context.Context, tx *gorm.DB, input AdjustInput) (*ledger.TxRecord, error)
	GetIngredient(ctx context.Context, id uuid.UUID) (*models.Ingredient, error)
	ReorderCandidates(ctx context.Context) iter.Seq2[models.Ingredient, error]
}

// AdjustInput is one signed stock movement.
type AdjustInput struct {
	IngredientID   uuid.UUID
	QuantityChange decimal.Decimal
	Notes          string
}

// Options tunes retries and paging.
type Options struct {
	Retry    repo.RetryPolicy
	PageSize int
}

type service struct {
	repo   Repository
	ledger ledger.Service
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	opts   Options
}

// NewService builds the inventory service with the required dependencies.
func NewService(repository Repository, ledgerSvc ledger.Service, tx txRunner, outbox outboxPublisher, logg *logger.Logger, opts Options) (Service, error) {
	if repository == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if ledgerSvc == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if opts.PageSize <= 0 {
		opts.PageSize = defaultPageSize
	}
	return &service{
		repo:   repository,
		ledger: ledgerSvc,
		tx:     tx,
		outbox: outbox,
		logg:   logg,
		opts:   opts,
	}, nil
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*ledger.TxRecord, error) {
	if err := validateAdjust(input); err != nil {
		return nil, err
	}
	op := repo.Op{
		Name:     "inventory.adjust",
		EntityID: input.IngredientID,
		Inputs: map[string]any{
			"quantity_change": input.QuantityChange.String(),
			"notes":           input.Notes,
		},
	}

	var record *ledger.TxRecord
	err := repo.RetryConcurrent(ctx, s.opts.Retry, func(ctx context.Context) error {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			record, err = s.AdjustTx(ctx, tx, input)
			return err
		})
		return repo.StorageFailure(ctx, s.logg, op, err, "adjust stock")
	})
	if err != nil {
		return nil, err
	}
	return record, nil
}

func (s *service) AdjustTx(ctx context.Context, tx *gorm.DB, input AdjustInput) (*ledger.TxRecord, error) {
	if err := validateAdjust(input); err != nil {
		return nil, err
	}

	record, err := s.ledger.Append(ctx, tx, ledger.AppendInput{
		IngredientID:   input.IngredientID,
		QuantityChange: input.QuantityChange,
		Notes:          input.Notes,
	})
	if err != nil {
		return nil, err
	}
	if record.Balance.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeInsufficientStock, "adjustment would make stock negative").
			WithDetails(map[string]any{
				"ingredient_id": input.IngredientID,
				"available":     record.PreviousBalance.String(),
				"requested":     input.QuantityChange.Neg().String(),
			})
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventStockAdjusted,
		AggregateType: enums.AggregateIngredient,
		AggregateID:   input.IngredientID,
		Operation:     "inventory.adjust",
		Data: payloads.StockAdjustedEvent{
			IngredientID:   record.IngredientID,
			TransactionID:  record.ID,
			QuantityChange: record.QuantityChange,
			BalanceAfter:   record.Balance,
			Notes:          record.Notes,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("emit stock adjusted: %w", err)
	}
	return record, nil
}

func (s *service) GetIngredient(ctx context.Context, id uuid.UUID) (*models.Ingredient, error) {
	if id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ingredient id required")
	}
	ingredient, err := s.repo.FindIngredient(ctx, id)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ingredient not found")
		}
		return nil, repo.StorageFailure(ctx, s.logg, repo.Op{Name: "inventory.get_ingredient", EntityID: id}, err, "load ingredient")
	}
	return ingredient, nil
}

// ReorderCandidates lazily yields ingredients whose balance is at or below their
// reorder threshold. Pages are fetched only as the caller keeps iterating.
func (s *service) ReorderCandidates(ctx context.Context) iter.Seq2[models.Ingredient, error] {
	return func(yield func(models.Ingredient, error) bool) {
		after := uuid.Nil
		for {
			if err := ctx.Err(); err != nil {
				yield(models.Ingredient{}, err)
				return
			}
			page, err := s.repo.ListAtOrBelowThreshold(ctx, after, s.opts.PageSize)
			if err != nil {
				yield(models.Ingredient{}, repo.StorageFailure(ctx, s.logg, repo.Op{
					Name:   "inventory.reorder_candidates",
					Inputs: map[string]any{"after": after.String()},
				}, err, "list reorder candidates"))
				return
			}
			for _, ingredient := range page {
				if !yield(ingredient, nil) {
					return
				}
			}
			if len(page) < s.opts.PageSize {
				return
			}
			after = page[len(page)-1].ID
		}
	}
}

func validateAdjust(input AdjustInput) error {
	if input.IngredientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "ingredient id required")
	}
	if input.QuantityChange.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity change must be non-zero")
	}
	if utf8.RuneCountInString(input.Notes) > ledger.MaxNotesLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("notes must be at most %d characters", ledger.MaxNotesLength))
	}
	return nil
}
