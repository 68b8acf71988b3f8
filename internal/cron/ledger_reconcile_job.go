package cron

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/bistrohq/bistro-backend/internal/ledger"
	"github.com/bistrohq/bistro-backend/pkg/logger"
)

// LedgerReconcileJobParams configures the ledger audit.
type LedgerReconcileJobParams struct {
	Logger *logger.Logger
	Ledger ledgerAuditor
	// Repair rewrites drifted projections. Off by default so drift is only
	// reported.
	Repair bool
}

type ledgerAuditor interface {
	IngredientIDs(ctx context.Context) ([]uuid.UUID, error)
	Reconcile(ctx context.Context, ingredientID uuid.UUID, repair bool) (*ledger.ReconcileResult, error)
}

// NewLedgerReconcileJob constructs the job that compares every cached
// balance with the sum of its ledger.
func NewLedgerReconcileJob(params LedgerReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("ledger service required")
	}
	return &ledgerReconcileJob{
		logg:   params.Logger,
		ledger: params.Ledger,
		repair: params.Repair,
	}, nil
}

type ledgerReconcileJob struct {
	logg   *logger.Logger
	ledger ledgerAuditor
	repair bool
}

func (j *ledgerReconcileJob) Name() string { return "ledger-reconcile" }

func (j *ledgerReconcileJob) Run(ctx context.Context) error {
	ids, err := j.ledger.IngredientIDs(ctx)
	if err != nil {
		return fmt.Errorf("list ingredients: %w", err)
	}

	var errs error
	checked, drifted, repaired := 0, 0, 0
	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return multierr.Append(errs, err)
		}
		result, err := j.ledger.Reconcile(ctx, id, j.repair)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reconcile %s: %w", id, err))
			continue
		}
		checked++
		if result.Consistent() {
			continue
		}
		drifted++
		if result.Repaired {
			repaired++
		}
		driftCtx := j.logg.WithFields(ctx, map[string]any{
			"ingredient_id": id.String(),
			"cached":        result.Cached.String(),
			"ledger":        result.Ledger.String(),
			"drift":         result.Drift.String(),
			"entries":       result.Entries,
			"repaired":      result.Repaired,
		})
		j.logg.Warn(driftCtx, "ingredient balance drifted from ledger")
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"checked":  checked,
		"drifted":  drifted,
		"repaired": repaired,
		"failed":   len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "ledger reconcile complete")
	return errs
}
