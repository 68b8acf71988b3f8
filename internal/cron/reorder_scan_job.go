package cron

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/bistrohq/bistro-backend/pkg/db/models"
	"github.com/bistrohq/bistro-backend/pkg/enums"
	"github.com/bistrohq/bistro-backend/pkg/logger"
	"github.com/bistrohq/bistro-backend/pkg/outbox"
	"github.com/bistrohq/bistro-backend/pkg/outbox/payloads"
)

// ReorderScanJobParams configures the low-stock scan.
type ReorderScanJobParams struct {
	Logger     *logger.Logger
	DB         txRunner
	Inventory  reorderSource
	Outbox     outboxEmitter
	OutboxRepo pendingChecker
	// MaxAttempts matches the publisher budget; exhausted stock_low rows do not
	// suppress a fresh alert.
	MaxAttempts int
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type reorderSource interface {
	ReorderCandidates(ctx context.Context) iter.Seq2[models.Ingredient, error]
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type pendingChecker interface {
	HasPending(ctx context.Context, eventType enums.OutboxEventType, aggregateID uuid.UUID, maxAttempts int) (bool, error)
}

// NewReorderScanJob constructs the job that raises stock_low for every
// ingredient at or below its reorder threshold.
func NewReorderScanJob(params ReorderScanJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory service required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if params.OutboxRepo == nil {
		return nil, fmt.Errorf("outbox repository required")
	}
	maxAttempts := params.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = outbox.DefaultMaxAttempts
	}
	return &reorderScanJob{
		logg:        params.Logger,
		db:          params.DB,
		inventory:   params.Inventory,
		outbox:      params.Outbox,
		outboxRepo:  params.OutboxRepo,
		maxAttempts: maxAttempts,
	}, nil
}

type reorderScanJob struct {
	logg        *logger.Logger
	db          txRunner
	inventory   reorderSource
	outbox      outboxEmitter
	outboxRepo  pendingChecker
	maxAttempts int
}

func (j *reorderScanJob) Name() string { return "reorder-scan" }

// Run emits one stock_low per candidate. A candidate whose previous stock_low
// is still waiting for delivery is skipped.
func (j *reorderScanJob) Run(ctx context.Context) error {
	var errs error
	emitted, skipped := 0, 0
	for ingredient, err := range j.inventory.ReorderCandidates(ctx) {
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("list reorder candidates: %w", err))
			break
		}
		pending, err := j.outboxRepo.HasPending(ctx, enums.EventStockLow, ingredient.ID, j.maxAttempts)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("check pending stock_low for %s: %w", ingredient.ID, err))
			continue
		}
		if pending {
			skipped++
			continue
		}
		if err := j.emit(ctx, ingredient); err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		emitted++
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"emitted": emitted,
		"skipped": skipped,
	})
	j.logg.Info(logCtx, "reorder scan complete")
	return errs
}

func (j *reorderScanJob) emit(ctx context.Context, ingredient models.Ingredient) error {
	err := j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventStockLow,
			AggregateType: enums.AggregateIngredient,
			AggregateID:   ingredient.ID,
			Operation:     "cron.reorder_scan",
			Data: payloads.StockLowEvent{
				IngredientID:     ingredient.ID,
				Name:             ingredient.Name,
				Unit:             ingredient.Unit,
				QuantityOnHand:   ingredient.QuantityOnHand,
				ReorderThreshold: ingredient.ReorderThreshold,
			},
		})
	})
	if err != nil {
		return fmt.Errorf("queue stock_low for %s: %w", ingredient.ID, err)
	}
	return nil
}
