package orders

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/bistrohq/bistro-backend/api/responses"
	"github.com/bistrohq/bistro-backend/api/validators"
	"github.com/bistrohq/bistro-backend/internal/tables"
	"github.com/bistrohq/bistro-backend/pkg/db/models"
	pkgerrors "github.com/bistrohq/bistro-backend/pkg/errors"
	"github.com/bistrohq/bistro-backend/pkg/logger"
)

type addLineRequest struct {
	MenuItemID string `json:"menu_item_id" validate:"required,uuid"`
	Quantity   int    `json:"quantity" validate:"required,gt=0,lte=999"`
}

type lineResponse struct {
	ID         uuid.UUID       `json:"id"`
	MenuItemID uuid.UUID       `json:"menu_item_id"`
	Quantity   int             `json:"quantity"`
	PriceEach  decimal.Decimal `json:"price_each"`
	Subtotal   decimal.Decimal `json:"subtotal"`
}

type orderResponse struct {
	ID        uuid.UUID       `json:"id"`
	TableID   uuid.UUID       `json:"table_id"`
	Status    string          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	ClosedAt  *time.Time      `json:"closed_at,omitempty"`
	Lines     []lineResponse  `json:"lines,omitempty"`
	Total     decimal.Decimal `json:"total"`
}

type seatResponse struct {
	Order   orderResponse `json:"order"`
	Created bool          `json:"created"`
}

// Seat opens an order on a table, or returns the one already open.
func Seat(svc tables.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tables service unavailable"))
			return
		}
		tableID, err := validators.ParseUUIDParam(r, "tableId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Seat(r.Context(), tableID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusOK
		if result.Created {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, seatResponse{
			Order:   newOrderResponse(result.Order, nil, decimal.Zero),
			Created: result.Created,
		})
	}
}

func Detail(svc tables.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tables service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.GetOrder(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(detail.Order, detail.Lines, detail.Total))
	}
}

func AddLine(svc tables.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tables service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req addLineRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		menuItemID, err := uuid.Parse(req.MenuItemID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid menu_item_id"))
			return
		}

		line, err := svc.AddLine(r.Context(), tables.AddLineInput{
			OrderID:    orderID,
			MenuItemID: menuItemID,
			Quantity:   req.Quantity,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newLineResponse(*line))
	}
}

func RemoveLine(svc tables.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tables service unavailable"))
			return
		}
		lineID, err := validators.ParseUUIDParam(r, "lineId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		if err := svc.RemoveLine(r.Context(), lineID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteNoContent(w)
	}
}

// Close settles an open order and frees its table. The body is ignored.
func Close(svc tables.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "tables service unavailable"))
			return
		}
		orderID, err := validators.ParseUUIDParam(r, "orderId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Close(r.Context(), orderID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, newOrderResponse(detail.Order, detail.Lines, detail.Total))
	}
}

func newOrderResponse(order models.Order, lines []models.OrderLine, total decimal.Decimal) orderResponse {
	resp := orderResponse{
		ID:        order.ID,
		TableID:   order.TableID,
		Status:    string(order.Status),
		CreatedAt: order.CreatedAt,
		ClosedAt:  order.ClosedAt,
		Total:     total,
	}
	for _, line := range lines {
		resp.Lines = append(resp.Lines, newLineResponse(line))
	}
	return resp
}

func newLineResponse(line models.OrderLine) lineResponse {
	return lineResponse{
		ID:         line.ID,
		MenuItemID: line.MenuItemID,
		Quantity:   line.Quantity,
		PriceEach:  line.PriceEach,
		Subtotal:   line.Subtotal(),
	}
}
