package inventory

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bistrohq/bistro-backend/api/responses"
	"github.com/bistrohq/bistro-backend/api/validators"
	internalinventory "github.com/bistrohq/bistro-backend/internal/inventory"
	"github.com/bistrohq/bistro-backend/internal/ledger"
	"github.com/bistrohq/bistro-backend/pkg/db/models"
	pkgerrors "github.com/bistrohq/bistro-backend/pkg/errors"
	"github.com/bistrohq/bistro-backend/pkg/logger"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 500
	maxReorderResults   = 1000
)

// HistoryReader lists the newest ledger rows for an ingredient.
type HistoryReader interface {
	History(ctx context.Context, ingredientID uuid.UUID, limit int) ([]ledger.TxRecord, error)
}

type adjustRequest struct {
	QuantityChange decimal.Decimal `json:"quantity_change" validate:"nonzero_decimal"`
	Notes          string          `json:"notes" validate:"max=500"`
}

type ingredientResponse struct {
	ID               uuid.UUID       `json:"id"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	QuantityOnHand   decimal.Decimal `json:"quantity_on_hand"`
	ReorderThreshold decimal.Decimal `json:"reorder_threshold"`
	NeedsReorder     bool            `json:"needs_reorder"`
}

// Adjust records one signed stock movement. Negative changes that would take
// the balance below zero answer 422 INSUFFICIENT_STOCK.
func Adjust(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		ingredientID, err := validators.ParseUUIDParam(r, "ingredientId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req adjustRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		record, err := svc.Adjust(r.Context(), internalinventory.AdjustInput{
			IngredientID:   ingredientID,
			QuantityChange: req.QuantityChange,
			Notes:          validators.SanitizeString(req.Notes, ledger.MaxNotesLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, record)
	}
}

func Balance(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		ingredientID, err := validators.ParseUUIDParam(r, "ingredientId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		ingredient, err := svc.GetIngredient(r.Context(), ingredientID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newIngredientResponse(*ingredient))
	}
}

func History(reader HistoryReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if reader == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "ledger unavailable"))
			return
		}
		ingredientID, err := validators.ParseUUIDParam(r, "ingredientId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", defaultHistoryLimit, 1, maxHistoryLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		records, err := reader.History(r.Context(), ingredientID, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, records)
	}
}

// Reorder lists ingredients at or below their reorder threshold.
func Reorder(svc internalinventory.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "inventory service unavailable"))
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", maxReorderResults, 1, maxReorderResults)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		items := make([]ingredientResponse, 0)
		for ingredient, err := range svc.ReorderCandidates(r.Context()) {
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			items = append(items, newIngredientResponse(ingredient))
			if len(items) >= limit {
				break
			}
		}
		responses.WriteSuccess(w, items)
	}
}

func newIngredientResponse(i models.Ingredient) ingredientResponse {
	return ingredientResponse{
		ID:               i.ID,
		Name:             i.Name,
		Unit:             i.Unit,
		QuantityOnHand:   i.QuantityOnHand,
		ReorderThreshold: i.ReorderThreshold,
		NeedsReorder:     i.NeedsReorder(),
	}
}
