package tables

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/bistrohq/bistro-backend/internal/inventory"
	"github.com/bistrohq/bistro-backend/internal/repo"
	"github.com/bistrohq/bistro-backend/pkg/db"
	"github.com/bistrohq/bistro-backend/pkg/db/models"
	"github.com/bistrohq/bistro-backend/pkg/enums"
	pkgerrors "github.com/bistrohq/bistro-backend/pkg/errors"
	"github.com/bistrohq/bistro-backend/pkg/logger"
	"github.com/bistrohq/bistro-backend/pkg/outbox"
	"github.com/bistrohq/bistro-backend/pkg/outbox/payloads"
)

// MaxLineQuantity bounds a single order line.
const MaxLineQuantity = 999

// Service drives the table occupancy and order lifecycle.
type Service interface {
	Seat(ctx context.Context, tableID uuid.UUID) (*SeatResult, error)
	AddLine(ctx context.Context, input AddLineInput) (*models.OrderLine, error)
	RemoveLine(ctx context.Context, lineID uuid.UUID) error
	Close(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error)
	GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error)
}

// SeatResult carries the open order for a table. Created is false when the
// table already had one.
type SeatResult struct {
	Order   models.Order
	Created bool
}

// AddLineInput describes one menu item added to an open order.
type AddLineInput struct {
	OrderID    uuid.UUID
	MenuItemID uuid.UUID
	Quantity   int
}

// OrderDetail is an order with its lines and computed total.
type OrderDetail struct {
	Order models.Order
	Lines []models.OrderLine
	Total decimal.Decimal
}

// Options toggles the configurable close rules.
type Options struct {
	AllowEmptyClose   bool
	RecordConsumption bool
	Retry             repo.RetryPolicy
}

type service struct {
	repo      Repository
	tx        txRunner
	outbox    outboxPublisher
	inventory StockConsumer
	logg      *logger.Logger
	opts      Options
	now       func() time.Time
}

// NewService builds the order lifecycle service with the required dependencies.
func NewService(repository Repository, tx txRunner, outbox outboxPublisher, inventory StockConsumer, logg *logger.Logger, opts Options) (Service, error) {
	if repository == nil {
		return nil, fmt.Errorf("tables repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if inventory == nil && opts.RecordConsumption {
		return nil, fmt.Errorf("stock consumer required when recording consumption")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:      repository,
		tx:        tx,
		outbox:    outbox,
		inventory: inventory,
		logg:      logg,
		opts:      opts,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Seat returns the table's open order, creating one and marking the table
// occupied when none exists. A concurrent seat that loses the insert race is
// retried and then finds the winner's order.
func (s *service) Seat(ctx context.Context, tableID uuid.UUID) (*SeatResult, error) {
	if tableID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "table id required")
	}
	op := repo.Op{Name: "tables.seat", EntityID: tableID}

	var result *SeatResult
	err := repo.RetryConcurrent(ctx, s.opts.Retry, func(ctx context.Context) error {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			result, err = s.seatTx(ctx, tx, tableID)
			return err
		})
		return repo.StorageFailure(ctx, s.logg, op, err, "seat table")
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (s *service) seatTx(ctx context.Context, tx *gorm.DB, tableID uuid.UUID) (*SeatResult, error) {
	txRepo := s.repo.WithTx(tx)

	table, err := txRepo.LockTable(ctx, tableID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "table not found")
		}
		return nil, fmt.Errorf("lock table: %w", err)
	}

	existing, err := txRepo.FindOpenOrderByTable(ctx, table.ID)
	switch {
	case err == nil:
		if !table.IsOccupied {
			if err := txRepo.SetTableOccupied(ctx, table.ID, true); err != nil {
				return nil, fmt.Errorf("mark table occupied: %w", err)
			}
		}
		return &SeatResult{Order: *existing, Created: false}, nil
	case err != gorm.ErrRecordNotFound:
		return nil, fmt.Errorf("find open order: %w", err)
	}

	order := &models.Order{
		ID:        uuid.New(),
		TableID:   table.ID,
		Status:    enums.OrderStatusOpen,
		CreatedAt: s.now(),
	}
	if err := txRepo.CreateOrder(ctx, order); err != nil {
		if db.IsUniqueViolation(err, "") {
			return nil, pkgerrors.Wrap(pkgerrors.CodeConcurrentModification, err, "table was seated concurrently")
		}
		return nil, fmt.Errorf("create order: %w", err)
	}
	if err := txRepo.SetTableOccupied(ctx, table.ID, true); err != nil {
		return nil, fmt.Errorf("mark table occupied: %w", err)
	}

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderSeated,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Operation:     "tables.seat",
		Data: payloads.OrderSeatedEvent{
			OrderID:  order.ID,
			TableID:  table.ID,
			SeatedAt: order.CreatedAt,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("emit order seated: %w", err)
	}
	return &SeatResult{Order: *order, Created: true}, nil
}

func (s *service) AddLine(ctx context.Context, input AddLineInput) (*models.OrderLine, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.MenuItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "menu item id required")
	}
	if input.Quantity <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	if input.Quantity > MaxLineQuantity {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("quantity must be at most %d", MaxLineQuantity))
	}

	var line *models.OrderLine
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		order, err := txRepo.LockOrder(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return fmt.Errorf("lock order: %w", err)
		}
		if order.Status != enums.OrderStatusOpen {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "lines can only be added to an open order")
		}

		item, err := txRepo.FindMenuItem(ctx, input.MenuItemID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "menu item not found")
			}
			return fmt.Errorf("load menu item: %w", err)
		}
		if !item.Available {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "menu item is not available")
		}

		line = &models.OrderLine{
			ID:         uuid.New(),
			OrderID:    order.ID,
			MenuItemID: item.ID,
			Quantity:   input.Quantity,
			PriceEach:  item.Price,
		}
		if err := txRepo.CreateLine(ctx, line); err != nil {
			return fmt.Errorf("create order line: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, repo.StorageFailure(ctx, s.logg, repo.Op{
			Name:     "tables.add_line",
			EntityID: input.OrderID,
			Inputs: map[string]any{
				"menu_item_id": input.MenuItemID.String(),
				"quantity":     input.Quantity,
			},
		}, err, "add order line")
	}
	return line, nil
}

func (s *service) RemoveLine(ctx context.Context, lineID uuid.UUID) error {
	if lineID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order line id required")
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		line, err := txRepo.FindLine(ctx, lineID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order line not found")
			}
			return fmt.Errorf("load order line: %w", err)
		}
		order, err := txRepo.LockOrder(ctx, line.OrderID)
		if err != nil {
			return fmt.Errorf("lock order: %w", err)
		}
		if order.Status != enums.OrderStatusOpen {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "lines can only be removed from an open order")
		}
		deleted, err := txRepo.DeleteLine(ctx, line.ID)
		if err != nil {
			return fmt.Errorf("delete order line: %w", err)
		}
		if !deleted {
			return pkgerrors.New(pkgerrors.CodeNotFound, "order line not found")
		}
		return nil
	})
	return repo.StorageFailure(ctx, s.logg, repo.Op{Name: "tables.remove_line", EntityID: lineID}, err, "remove order line")
}

// Close finalises an open order, frees its table and, when enabled, consumes the
// recipe ingredients for every line. All of it commits or none of it does.
func (s *service) Close(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	op := repo.Op{Name: "tables.close", EntityID: orderID}

	var detail *OrderDetail
	err := repo.RetryConcurrent(ctx, s.opts.Retry, func(ctx context.Context) error {
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			var err error
			detail, err = s.closeTx(ctx, tx, orderID)
			return err
		})
		return repo.StorageFailure(ctx, s.logg, op, err, "close order")
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

func (s *service) closeTx(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*OrderDetail, error) {
	txRepo := s.repo.WithTx(tx)

	order, err := txRepo.LockOrder(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, fmt.Errorf("lock order: %w", err)
	}
	if order.Status != enums.OrderStatusOpen {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already closed")
	}

	lines, err := txRepo.ListLines(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order lines: %w", err)
	}
	if len(lines) == 0 && !s.opts.AllowEmptyClose {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cannot close an order without lines")
	}

	if s.opts.RecordConsumption {
		if err := s.consume(ctx, tx, txRepo, order.ID, lines); err != nil {
			return nil, err
		}
	}

	closedAt := s.now()
	closed, err := txRepo.CloseOrder(ctx, order.ID, closedAt)
	if err != nil {
		return nil, fmt.Errorf("close order: %w", err)
	}
	if !closed {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is already closed")
	}
	if _, err := txRepo.LockTable(ctx, order.TableID); err != nil {
		return nil, fmt.Errorf("lock table: %w", err)
	}
	if err := txRepo.SetTableOccupied(ctx, order.TableID, false); err != nil {
		return nil, fmt.Errorf("free table: %w", err)
	}

	order.Status = enums.OrderStatusClosed
	order.ClosedAt = &closedAt
	detail := newOrderDetail(*order, lines)

	event := outbox.DomainEvent{
		EventType:     enums.EventOrderClosed,
		AggregateType: enums.AggregateOrder,
		AggregateID:   order.ID,
		Operation:     "tables.close",
		Data: payloads.OrderClosedEvent{
			OrderID:   order.ID,
			TableID:   order.TableID,
			LineCount: len(lines),
			Total:     detail.Total,
			ClosedAt:  closedAt,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("emit order closed: %w", err)
	}
	return detail, nil
}

// consume deducts recipe quantities for every line. Ingredients are adjusted in
// id order so concurrent closes lock ledger rows in the same sequence.
func (s *service) consume(ctx context.Context, tx *gorm.DB, txRepo Repository, orderID uuid.UUID, lines []models.OrderLine) error {
	if len(lines) == 0 {
		return nil
	}
	servings := make(map[uuid.UUID]int64, len(lines))
	menuItemIDs := make([]uuid.UUID, 0, len(lines))
	for _, line := range lines {
		if _, seen := servings[line.MenuItemID]; !seen {
			menuItemIDs = append(menuItemIDs, line.MenuItemID)
		}
		servings[line.MenuItemID] += int64(line.Quantity)
	}

	recipes, err := txRepo.ListRecipeItems(ctx, menuItemIDs)
	if err != nil {
		return fmt.Errorf("list recipe items: %w", err)
	}
	usage := make(map[uuid.UUID]decimal.Decimal)
	for _, recipe := range recipes {
		amount := recipe.Quantity.Mul(decimal.NewFromInt(servings[recipe.MenuItemID]))
		usage[recipe.IngredientID] = usage[recipe.IngredientID].Add(amount)
	}

	ingredientIDs := make([]uuid.UUID, 0, len(usage))
	for id := range usage {
		ingredientIDs = append(ingredientIDs, id)
	}
	sort.Slice(ingredientIDs, func(i, j int) bool {
		return ingredientIDs[i].String() < ingredientIDs[j].String()
	})

	for _, id := range ingredientIDs {
		amount := usage[id]
		if !amount.IsPositive() {
			continue
		}
		if _, err := s.inventory.AdjustTx(ctx, tx, inventory.AdjustInput{
			IngredientID:   id,
			QuantityChange: amount.Neg(),
			Notes:          "consumed by order " + orderID.String(),
		}); err != nil {
			return err
		}
	}
	return nil
}

func (s *service) GetOrder(ctx context.Context, orderID uuid.UUID) (*OrderDetail, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	op := repo.Op{Name: "tables.get_order", EntityID: orderID}
	order, err := s.repo.FindOrder(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, repo.StorageFailure(ctx, s.logg, op, err, "load order")
	}
	lines, err := s.repo.ListLines(ctx, orderID)
	if err != nil {
		return nil, repo.StorageFailure(ctx, s.logg, op, err, "list order lines")
	}
	return newOrderDetail(*order, lines), nil
}

func newOrderDetail(order models.Order, lines []models.OrderLine) *OrderDetail {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(line.Subtotal())
	}
	if lines == nil {
		lines = []models.OrderLine{}
	}
	return &OrderDetail{Order: order, Lines: lines, Total: total}
}
