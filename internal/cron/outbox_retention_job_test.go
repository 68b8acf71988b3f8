package cron

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bistrohq/bistro-backend/pkg/db"
	"github.com/bistrohq/bistro-backend/pkg/db/dbtest"
	"github.com/bistrohq/bistro-backend/pkg/db/models"
	"github.com/bistrohq/bistro-backend/pkg/enums"
	"github.com/bistrohq/bistro-backend/pkg/logger"
	"github.com/bistrohq/bistro-backend/pkg/outbox"
)

func TestOutboxRetentionJobDeletesOnlyOldPublishedRows(t *testing.T) {
	conn := dbtest.Open(t)
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)

	old := now.AddDate(0, 0, -45)
	recent := now.AddDate(0, 0, -2)
	stale := insertOutboxRow(t, conn, &old)
	fresh := insertOutboxRow(t, conn, &recent)
	pending := insertOutboxRow(t, conn, nil)

	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		DB:         db.NewFromConn(conn),
		Repository: outbox.NewRepository(conn),
	})
	require.NoError(t, err)
	job := jobIface.(*outboxRetentionJob)
	job.now = func() time.Time { return now }

	require.NoError(t, job.Run(context.Background()))

	var remaining []uuid.UUID
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Pluck("id", &remaining).Error)
	assert.ElementsMatch(t, []uuid.UUID{fresh, pending}, remaining)
	assert.NotContains(t, remaining, stale)
}

func TestOutboxRetentionJobPropagatesError(t *testing.T) {
	jobIface, err := NewOutboxRetentionJob(OutboxRetentionJobParams{
		Logger:     logger.Nop(),
		DB:         passthroughTx{},
		Repository: failingRetentionRepo{},
		Retention:  7,
	})
	require.NoError(t, err)
	assert.Error(t, jobIface.Run(context.Background()))
}

func insertOutboxRow(t *testing.T, conn *gorm.DB, publishedAt *time.Time) uuid.UUID {
	t.Helper()
	payload, err := json.Marshal(map[string]any{"ok": true})
	require.NoError(t, err)
	row := models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventStockAdjusted,
		AggregateType: enums.AggregateIngredient,
		AggregateID:   uuid.New(),
		Payload:       payload,
		PublishedAt:   publishedAt,
	}
	require.NoError(t, conn.Create(&row).Error)
	return row.ID
}

type failingRetentionRepo struct{}

func (failingRetentionRepo) DeletePublishedBefore(context.Context, *gorm.DB, time.Time) (int64, error) {
	return 0, errors.New("boom")
}

type passthroughTx struct{}

func (passthroughTx) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}
