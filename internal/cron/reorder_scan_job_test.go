package cron

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bistrohq/bistro-backend/internal/inventory"
	"github.com/bistrohq/bistro-backend/internal/ledger"
	"github.com/bistrohq/bistro-backend/pkg/db"
	"github.com/bistrohq/bistro-backend/pkg/db/dbtest"
	"github.com/bistrohq/bistro-backend/pkg/db/models"
	"github.com/bistrohq/bistro-backend/pkg/enums"
	"github.com/bistrohq/bistro-backend/pkg/logger"
	"github.com/bistrohq/bistro-backend/pkg/outbox"
	"github.com/bistrohq/bistro-backend/pkg/outbox/payloads"
)

func TestReorderScanJobEmitsStockLowOncePerPendingCandidate(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	client := db.NewFromConn(conn)
	logg := logger.Nop()
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), client, logg)
	require.NoError(t, err)
	invSvc, err := inventory.NewService(inventory.NewRepository(conn), ledgerSvc, client, emitter, logg, inventory.Options{PageSize: 1})
	require.NoError(t, err)

	low := seedIngredient(t, conn, "cream", 5)
	stocked := seedIngredient(t, conn, "butter", 5)
	_, err = invSvc.Adjust(ctx, inventory.AdjustInput{IngredientID: stocked, QuantityChange: decimal.NewFromInt(20)})
	require.NoError(t, err)

	job, err := NewReorderScanJob(ReorderScanJobParams{
		Logger:     logg,
		DB:         client,
		Inventory:  invSvc,
		Outbox:     emitter,
		OutboxRepo: outboxRepo,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(ctx))
	require.NoError(t, job.Run(ctx))

	var events []models.OutboxEvent
	require.NoError(t, conn.Where("event_type = ?", enums.EventStockLow).Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, low, events[0].AggregateID)

	envelope, err := outbox.DecodeEnvelope(events[0].Payload)
	require.NoError(t, err)
	var payload payloads.StockLowEvent
	require.NoError(t, envelope.DecodeData(&payload))
	assert.Equal(t, "cream", payload.Name)
	assert.True(t, payload.ReorderThreshold.Equal(decimal.NewFromInt(5)))
}

func TestReorderScanJobRealertsAfterUndeliverableEvent(t *testing.T) {
	conn := dbtest.Open(t)
	ctx := context.Background()
	client := db.NewFromConn(conn)
	logg := logger.Nop()
	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, logg)

	ledgerSvc, err := ledger.NewService(ledger.NewRepository(conn), client, logg)
	require.NoError(t, err)
	invSvc, err := inventory.NewService(inventory.NewRepository(conn), ledgerSvc, client, emitter, logg, inventory.Options{})
	require.NoError(t, err)

	low := seedIngredient(t, conn, "saffron", 5)

	job, err := NewReorderScanJob(ReorderScanJobParams{
		Logger:      logg,
		DB:          client,
		Inventory:   invSvc,
		Outbox:      emitter,
		OutboxRepo:  outboxRepo,
		MaxAttempts: 3,
	})
	require.NoError(t, err)

	require.NoError(t, job.Run(ctx))
	var first models.OutboxEvent
	require.NoError(t, conn.Where("event_type = ? AND aggregate_id = ?", enums.EventStockLow, low).First(&first).Error)
	require.NoError(t, outboxRepo.MarkTerminalTx(conn, first.ID, errors.New("broker rejected"), 3))

	require.NoError(t, job.Run(ctx))
	require.NoError(t, job.Run(ctx))

	var deliverable int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).
		Where("event_type = ? AND aggregate_id = ? AND published_at IS NULL AND attempt_count < ?", enums.EventStockLow, low, 3).
		Count(&deliverable).Error)
	assert.Equal(t, int64(1), deliverable)
}

func seedIngredient(t *testing.T, conn *gorm.DB, name string, threshold int64) uuid.UUID {
	t.Helper()
	ing := models.Ingredient{ID: uuid.New(), Name: name, Unit: "l", ReorderThreshold: decimal.NewFromInt(threshold)}
	require.NoError(t, conn.Create(&ing).Error)
	return ing.ID
}
