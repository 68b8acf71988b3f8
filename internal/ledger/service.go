package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bistrohq/bistro-backend/internal/repo"
	"github.com/bistrohq/bistro-backend/pkg/db/models"
	pkgerrors "github.com/bistrohq/bistro-backend/pkg/errors"
	"github.com/bistrohq/bistro-backend/pkg/logger"
)

// MaxNotesLength bounds the free-text notes stored with a ledger entry.
const MaxNotesLength = 500

const defaultHistoryLimit = 50

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the only writer of an ingredient's cached balance.
type Service interface {
	// Append records one entry and moves the balance inside the caller's transaction.
	Append(ctx context.Context, tx *gorm.DB, input AppendInput) (*TxRecord, error)
	// AppendTransaction runs Append in its own transaction.
	AppendTransaction(ctx context.Context, input AppendInput) (*TxRecord, error)
	CurrentBalance(ctx context.Context, ingredientID uuid.UUID) (decimal.Decimal, error)
	Reconcile(ctx context.Context, ingredientID uuid.UUID, repair bool) (*ReconcileResult, error)
	History(ctx context.Context, ingredientID uuid.UUID, limit int) ([]TxRecord, error)
	IngredientIDs(ctx context.Context) ([]uuid.UUID, error)
}

// AppendInput captures one signed stock movement.
type AppendInput struct {
	IngredientID   uuid.UUID
	QuantityChange decimal.Decimal
	Notes          string
	TxDate         time.Time
}

// TxRecord is the result of a ledger append.
type TxRecord struct {
	ID              uuid.UUID       `json:"id"`
	IngredientID    uuid.UUID       `json:"ingredient_id"`
	TxDate          time.Time       `json:"tx_date"`
	QuantityChange  decimal.Decimal `json:"quantity_change"`
	PreviousBalance decimal.Decimal `json:"previous_balance"`
	Balance         decimal.Decimal `json:"balance"`
	Notes           string          `json:"notes,omitempty"`
}

// ReconcileResult compares the cached projection with the ledger sum.
type ReconcileResult struct {
	IngredientID uuid.UUID       `json:"ingredient_id"`
	Cached       decimal.Decimal `json:"cached"`
	Ledger       decimal.Decimal `json:"ledger"`
	Entries      int64           `json:"entries"`
	Drift        decimal.Decimal `json:"drift"`
	Repaired     bool            `json:"repaired"`
}

// Consistent reports whether the projection matches the ledger.
func (r ReconcileResult) Consistent() bool {
	return r.Drift.IsZero()
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
	now  func() time.Time
}

// NewService wires a ledger service with the provided repository.
func NewService(repository Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repository == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo: repository,
		tx:   tx,
		logg: logg,
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Append(ctx context.Context, tx *gorm.DB, input AppendInput) (*TxRecord, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	if err := validateAppend(input); err != nil {
		return nil, err
	}
	txRepo := s.repo.WithTx(tx)

	ingredient, err := txRepo.LockIngredient(ctx, input.IngredientID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ingredient not found")
		}
		return nil, fmt.Errorf("lock ingredient: %w", err)
	}

	txDate := input.TxDate
	if txDate.IsZero() {
		txDate = s.now()
	}
	previous := ingredient.QuantityOnHand
	balance := previous.Add(input.QuantityChange)

	entry := &models.InventoryTx{
		ID:             uuid.New(),
		IngredientID:   ingredient.ID,
		TxDate:         txDate,
		QuantityChange: input.QuantityChange,
		BalanceAfter:   balance,
		Notes:          strings.TrimSpace(input.Notes),
	}
	if err := txRepo.InsertTransaction(ctx, entry); err != nil {
		return nil, fmt.Errorf("insert inventory transaction: %w", err)
	}

	swapped, err := txRepo.SwapBalance(ctx, ingredient.ID, ingredient.Version, balance)
	if err != nil {
		return nil, fmt.Errorf("update balance: %w", err)
	}
	if !swapped {
		return nil, pkgerrors.New(pkgerrors.CodeConcurrentModification, "ingredient balance changed concurrently")
	}

	return &TxRecord{
		ID:              entry.ID,
		IngredientID:    entry.IngredientID,
		TxDate:          entry.TxDate,
		QuantityChange:  entry.QuantityChange,
		PreviousBalance: previous,
		Balance:         balance,
		Notes:           entry.Notes,
	}, nil
}

func (s *service) AppendTransaction(ctx context.Context, input AppendInput) (*TxRecord, error) {
	var record *TxRecord
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		record, err = s.Append(ctx, tx, input)
		return err
	})
	if err != nil {
		return nil, repo.StorageFailure(ctx, s.logg, appendOp(input), err, "append ledger entry")
	}
	return record, nil
}

func (s *service) CurrentBalance(ctx context.Context, ingredientID uuid.UUID) (decimal.Decimal, error) {
	if ingredientID == uuid.Nil {
		return decimal.Zero, pkgerrors.New(pkgerrors.CodeValidation, "ingredient id required")
	}
	ingredient, err := s.repo.FindIngredient(ctx, ingredientID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return decimal.Zero, pkgerrors.New(pkgerrors.CodeNotFound, "ingredient not found")
		}
		return decimal.Zero, repo.StorageFailure(ctx, s.logg, repo.Op{Name: "ledger.current_balance", EntityID: ingredientID}, err, "load ingredient balance")
	}
	return ingredient.QuantityOnHand, nil
}

// Reconcile recomputes the balance from the full ledger. With repair set, a
// drifted projection is overwritten with the ledger sum under the row lock.
func (s *service) Reconcile(ctx context.Context, ingredientID uuid.UUID, repair bool) (*ReconcileResult, error) {
	if ingredientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ingredient id required")
	}
	var result *ReconcileResult
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		ingredient, err := txRepo.LockIngredient(ctx, ingredientID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "ingredient not found")
			}
			return fmt.Errorf("lock ingredient: %w", err)
		}
		sum, entries, err := txRepo.SumChanges(ctx, ingredientID)
		if err != nil {
			return fmt.Errorf("sum ledger: %w", err)
		}
		result = &ReconcileResult{
			IngredientID: ingredientID,
			Cached:       ingredient.QuantityOnHand,
			Ledger:       sum,
			Entries:      entries,
			Drift:        ingredient.QuantityOnHand.Sub(sum),
		}
		if !repair || result.Consistent() {
			return nil
		}
		swapped, err := txRepo.SwapBalance(ctx, ingredientID, ingredient.Version, sum)
		if err != nil {
			return fmt.Errorf("repair balance: %w", err)
		}
		if !swapped {
			return pkgerrors.New(pkgerrors.CodeConcurrentModification, "ingredient balance changed concurrently")
		}
		result.Repaired = true
		return nil
	})
	if err != nil {
		return nil, repo.StorageFailure(ctx, s.logg, repo.Op{
			Name:     "ledger.reconcile",
			EntityID: ingredientID,
			Inputs:   map[string]any{"repair": repair},
		}, err, "reconcile ledger")
	}
	return result, nil
}

func (s *service) History(ctx context.Context, ingredientID uuid.UUID, limit int) ([]TxRecord, error) {
	if ingredientID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "ingredient id required")
	}
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	op := repo.Op{Name: "ledger.history", EntityID: ingredientID, Inputs: map[string]any{"limit": limit}}
	if _, err := s.repo.FindIngredient(ctx, ingredientID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "ingredient not found")
		}
		return nil, repo.StorageFailure(ctx, s.logg, op, err, "load ingredient")
	}
	rows, err := s.repo.ListTransactions(ctx, ingredientID, limit)
	if err != nil {
		return nil, repo.StorageFailure(ctx, s.logg, op, err, "list ledger entries")
	}
	records := make([]TxRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, TxRecord{
			ID:              row.ID,
			IngredientID:    row.IngredientID,
			TxDate:          row.TxDate,
			QuantityChange:  row.QuantityChange,
			PreviousBalance: row.BalanceAfter.Sub(row.QuantityChange),
			Balance:         row.BalanceAfter,
			Notes:           row.Notes,
		})
	}
	return records, nil
}

func (s *service) IngredientIDs(ctx context.Context) ([]uuid.UUID, error) {
	ids, err := s.repo.ListIngredientIDs(ctx)
	if err != nil {
		return nil, repo.StorageFailure(ctx, s.logg, repo.Op{Name: "ledger.ingredient_ids"}, err, "list ingredients")
	}
	return ids, nil
}

func validateAppend(input AppendInput) error {
	if input.IngredientID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "ingredient id required")
	}
	if input.QuantityChange.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity change must be non-zero")
	}
	if utf8.RuneCountInString(input.Notes) > MaxNotesLength {
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("notes must be at most %d characters", MaxNotesLength))
	}
	return nil
}

func appendOp(input AppendInput) repo.Op {
	return repo.Op{
		Name:     "ledger.append",
		EntityID: input.IngredientID,
		Inputs: map[string]any{
			"quantity_change": input.QuantityChange.String(),
			"notes":           input.Notes,
		},
	}
}
