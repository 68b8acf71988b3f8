package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	dbtypes "github.com/bistrohq/bistro-backend/pkg/db/types"
	"github.com/bistrohq/bistro-backend/pkg/enums"
)

// OrderSeatedEvent is emitted when a table gets a new open order.
type OrderSeatedEvent struct {
	OrderID  uuid.UUID `json:"order_id"`
	TableID  uuid.UUID `json:"table_id"`
	SeatedAt time.Time `json:"seated_at"`
}

// OrderClosedEvent is emitted once an order is closed and its table freed.
type OrderClosedEvent struct {
	OrderID   uuid.UUID       `json:"order_id"`
	TableID   uuid.UUID       `json:"table_id"`
	LineCount int             `json:"line_count"`
	Total     decimal.Decimal `json:"total"`
	ClosedAt  time.Time       `json:"closed_at"`
}

// StockAdjustedEvent mirrors one ledger append.
type StockAdjustedEvent struct {
	IngredientID   uuid.UUID       `json:"ingredient_id"`
	TransactionID  uuid.UUID       `json:"transaction_id"`
	QuantityChange decimal.Decimal `json:"quantity_change"`
	BalanceAfter   decimal.Decimal `json:"balance_after"`
	Notes          string          `json:"notes,omitempty"`
}

// StockLowEvent asks purchasing to reorder an ingredient.
type StockLowEvent struct {
	IngredientID     uuid.UUID       `json:"ingredient_id"`
	Name             string          `json:"name"`
	Unit             string          `json:"unit"`
	QuantityOnHand   decimal.Decimal `json:"quantity_on_hand"`
	ReorderThreshold decimal.Decimal `json:"reorder_threshold"`
}

// TimeOffDecidedEvent is emitted when a pending request is approved or denied.
type TimeOffDecidedEvent struct {
	TimeOffID  uuid.UUID           `json:"time_off_id"`
	EmployeeID uuid.UUID           `json:"employee_id"`
	Status     enums.TimeOffStatus `json:"status"`
	StartDate  dbtypes.Date        `json:"start_date"`
	EndDate    dbtypes.Date        `json:"end_date"`
	FlaggedIDs []uuid.UUID         `json:"flagged_shift_ids,omitempty"`
}

// ShiftFlaggedEvent marks a shift that collides with approved time off.
type ShiftFlaggedEvent struct {
	ShiftID    uuid.UUID    `json:"shift_id"`
	EmployeeID uuid.UUID    `json:"employee_id"`
	TimeOffID  uuid.UUID    `json:"time_off_id"`
	ShiftDate  dbtypes.Date `json:"shift_date"`
}
