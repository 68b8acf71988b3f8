package inventory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bistrohq/bistro-backend/internal/ledger"
	"github.com/bistrohq/bistro-backend/internal/repo"
	"github.com/bistrohq/bistro-backend/pkg/db"
	"github.com/bistrohq/bistro-backend/pkg/db/dbtest"
	"github.com/bistrohq/bistro-backend/pkg/db/models"
	"github.com/bistrohq/bistro-backend/pkg/enums"
	pkgerrors "github.com/bistrohq/bistro-backend/pkg/errors"
	"github.com/bistrohq/bistro-backend/pkg/logger"
	"github.com/bistrohq/bistro-backend/pkg/outbox"
)

type fixture struct {
	conn   *gorm.DB
	ledger ledger.Service
	svc    Service
}

func newFixture(t *testing.T, opts Options) fixture {
	t.Helper()
	return newFixtureOn(t, dbtest.Open(t), opts)
}

func newFixtureOn(t *testing.T, conn *gorm.DB, opts Options) fixture {
	t.Helper()
	client := db.NewFromConn(conn)
	logg := logger.Nop()

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), client, logg)
	require.NoError(t, err)
	emitter := outbox.NewService(outbox.NewRepository(conn), logg)
	svc, err := NewService(NewRepository(conn), ledgerSvc, client, emitter, logg, opts)
	require.NoError(t, err)
	return fixture{conn: conn, ledger: ledgerSvc, svc: svc}
}

func (f fixture) seed(t *testing.T, name string, threshold int64) models.Ingredient {
	t.Helper()
	ingredient := models.Ingredient{
		ID:               uuid.New(),
		Name:             name,
		Unit:             "kg",
		ReorderThreshold: decimal.NewFromInt(threshold),
	}
	require.NoError(t, f.conn.Create(&ingredient).Error)
	return ingredient
}

func (f fixture) ledgerRows(t *testing.T, id uuid.UUID) []models.InventoryTx {
	t.Helper()
	var rows []models.InventoryTx
	require.NoError(t, f.conn.Where("ingredient_id = ?", id).Find(&rows).Error)
	return rows
}

func (f fixture) assertBalanceMatchesLedger(t *testing.T, id uuid.UUID) decimal.Decimal {
	t.Helper()
	balance, err := f.ledger.CurrentBalance(context.Background(), id)
	require.NoError(t, err)
	sum := decimal.Zero
	for _, row := range f.ledgerRows(t, id) {
		sum = sum.Add(row.QuantityChange)
	}
	assert.True(t, balance.Equal(sum), "balance %s != ledger sum %s", balance, sum)
	return balance
}

func TestConcurrentAdjustmentsOnOneIngredientSerialize(t *testing.T) {
	const workers = 8
	f := newFixtureOn(t, dbtest.OpenFile(t, workers), Options{
		Retry: repo.RetryPolicy{MaxRetries: 5, BaseDelay: time.Millisecond},
	})
	flour := f.seed(t, "flour", 1)

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Adjust(context.Background(), AdjustInput{
				IngredientID:   flour.ID,
				QuantityChange: decimal.NewFromInt(2),
				Notes:          "delivery",
			})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	assert.Len(t, f.ledgerRows(t, flour.ID), workers)
	balance := f.assertBalanceMatchesLedger(t, flour.ID)
	assert.True(t, balance.Equal(decimal.NewFromInt(2*workers)), "balance %s", balance)
}

func TestAdjustRoundTrip(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	tomato := f.seed(t, "tomato", 1)

	before := f.assertBalanceMatchesLedger(t, tomato.ID)

	_, err := f.svc.Adjust(ctx, AdjustInput{IngredientID: tomato.ID, QuantityChange: decimal.NewFromInt(10), Notes: "restock"})
	require.NoError(t, err)
	record, err := f.svc.Adjust(ctx, AdjustInput{IngredientID: tomato.ID, QuantityChange: decimal.NewFromInt(-10), Notes: "used"})
	require.NoError(t, err)
	assert.True(t, record.Balance.Equal(before))

	after := f.assertBalanceMatchesLedger(t, tomato.ID)
	assert.True(t, after.Equal(before))
	assert.Len(t, f.ledgerRows(t, tomato.ID), 2)

	var events []models.OutboxEvent
	require.NoError(t, f.conn.Where("aggregate_id = ?", tomato.ID).Find(&events).Error)
	require.Len(t, events, 2)
	assert.Equal(t, enums.EventStockAdjusted, events[0].EventType)
}

func TestAdjustOverdrawIsRejected(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()
	onion := f.seed(t, "onion", 1)

	_, err := f.svc.Adjust(ctx, AdjustInput{IngredientID: onion.ID, QuantityChange: decimal.RequireFromString("4.5")})
	require.NoError(t, err)

	balance := f.assertBalanceMatchesLedger(t, onion.ID)
	_, err = f.svc.Adjust(ctx, AdjustInput{
		IngredientID:   onion.ID,
		QuantityChange: balance.Add(decimal.NewFromInt(1)).Neg(),
		Notes:          "overdraw",
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	assert.False(t, pkgerrors.IsRetryable(err))

	after := f.assertBalanceMatchesLedger(t, onion.ID)
	assert.True(t, after.Equal(balance))
	assert.Len(t, f.ledgerRows(t, onion.ID), 1)

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Count(&events).Error)
	assert.Equal(t, int64(1), events)
}

func TestAdjustValidation(t *testing.T) {
	f := newFixture(t, Options{})
	ctx := context.Background()

	_, err := f.svc.Adjust(ctx, AdjustInput{IngredientID: uuid.New(), QuantityChange: decimal.Zero})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Adjust(ctx, AdjustInput{QuantityChange: decimal.NewFromInt(1)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.Adjust(ctx, AdjustInput{IngredientID: uuid.New(), QuantityChange: decimal.NewFromInt(1)})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestAdjustRetriesLostRace(t *testing.T) {
	f := newFixture(t, Options{})
	garlic := f.seed(t, "garlic", 1)

	flaky := &flakyLedger{Service: f.ledger, failures: 2}
	svc, err := NewService(NewRepository(f.conn), flaky, db.NewFromConn(f.conn),
		outbox.NewService(outbox.NewRepository(f.conn), logger.Nop()), logger.Nop(),
		Options{Retry: repo.RetryPolicy{MaxRetries: 3, BaseDelay: 1}})
	require.NoError(t, err)

	record, err := svc.Adjust(context.Background(), AdjustInput{IngredientID: garlic.ID, QuantityChange: decimal.NewFromInt(3)})
	require.NoError(t, err)
	assert.Equal(t, 3, flaky.calls)
	assert.True(t, record.Balance.Equal(decimal.NewFromInt(3)))
	assert.Len(t, f.ledgerRows(t, garlic.ID), 1)
}

func TestAdjustSurfacesConcurrentModificationWhenRetriesExhausted(t *testing.T) {
	f := newFixture(t, Options{})
	garlic := f.seed(t, "garlic", 1)

	flaky := &flakyLedger{Service: f.ledger, failures: 10}
	svc, err := NewService(NewRepository(f.conn), flaky, db.NewFromConn(f.conn),
		outbox.NewService(outbox.NewRepository(f.conn), logger.Nop()), logger.Nop(),
		Options{Retry: repo.RetryPolicy{MaxRetries: 1, BaseDelay: 1}})
	require.NoError(t, err)

	_, err = svc.Adjust(context.Background(), AdjustInput{IngredientID: garlic.ID, QuantityChange: decimal.NewFromInt(3)})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsRetryable(err))
	assert.Equal(t, 2, flaky.calls)
	assert.Empty(t, f.ledgerRows(t, garlic.ID))
}

func TestReorderCandidatesPagesLazily(t *testing.T) {
	f := newFixture(t, Options{PageSize: 2})
	ctx := context.Background()

	low := map[uuid.UUID]bool{}
	for i := 0; i < 5; i++ {
		ing := f.seed(t, fmt.Sprintf("low-%d", i), 3)
		low[ing.ID] = true
	}
	stocked := f.seed(t, "stocked", 3)
	_, err := f.svc.Adjust(ctx, AdjustInput{IngredientID: stocked.ID, QuantityChange: decimal.NewFromInt(10)})
	require.NoError(t, err)
	edge := f.seed(t, "edge", 3)
	_, err = f.svc.Adjust(ctx, AdjustInput{IngredientID: edge.ID, QuantityChange: decimal.NewFromInt(3)})
	require.NoError(t, err)
	low[edge.ID] = true

	seen := map[uuid.UUID]bool{}
	for ingredient, err := range f.svc.ReorderCandidates(ctx) {
		require.NoError(t, err)
		assert.True(t, ingredient.NeedsReorder())
		seen[ingredient.ID] = true
	}
	assert.Equal(t, low, seen)

	count := 0
	for _, err := range f.svc.ReorderCandidates(ctx) {
		require.NoError(t, err)
		count++
		if count == 1 {
			break
		}
	}
	assert.Equal(t, 1, count)
}

func TestReorderCandidatesStopsOnCanceledContext(t *testing.T) {
	f := newFixture(t, Options{})
	f.seed(t, "low", 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var gotErr error
	for _, err := range f.svc.ReorderCandidates(ctx) {
		gotErr = err
	}
	assert.ErrorIs(t, gotErr, context.Canceled)
}

func TestAdjustTxRollsBackWithCaller(t *testing.T) {
	f := newFixture(t, Options{})
	basil := f.seed(t, "basil", 1)
	client := db.NewFromConn(f.conn)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if _, err := f.svc.AdjustTx(context.Background(), tx, AdjustInput{IngredientID: basil.ID, QuantityChange: decimal.NewFromInt(2)}); err != nil {
			return err
		}
		_, err := f.svc.AdjustTx(context.Background(), tx, AdjustInput{IngredientID: basil.ID, QuantityChange: decimal.NewFromInt(-5)})
		return err
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock))
	assert.Empty(t, f.ledgerRows(t, basil.ID))
	f.assertBalanceMatchesLedger(t, basil.ID)
}

type flakyLedger struct {
	ledger.Service
	failures int
	calls    int
}

func (l *flakyLedger) Append(ctx context.Context, tx *gorm.DB, input ledger.AppendInput) (*ledger.TxRecord, error) {
	l.calls++
	if l.calls <= l.failures {
		return nil, pkgerrors.New(pkgerrors.CodeConcurrentModification, "ingredient balance changed concurrently")
	}
	return l.Service.Append(ctx, tx, input)
}
