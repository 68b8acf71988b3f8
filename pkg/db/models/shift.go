package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/bistrohq/bistro-backend/pkg/db/types"
)

// Shift is a half-open [StartTime, EndTime) assignment on a single date.
type Shift struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	EmployeeID  uuid.UUID         `gorm:"column:employee_id;type:uuid;not null;index:idx_shifts_employee_date,priority:1"`
	ShiftDate   dbtypes.Date      `gorm:"column:shift_date;type:date;not null;index:idx_shifts_employee_date,priority:2"`
	StartTime   dbtypes.TimeOfDay `gorm:"column:start_minute;type:integer;not null"`
	EndTime     dbtypes.TimeOfDay `gorm:"column:end_minute;type:integer;not null"`
	Role        string            `gorm:"column:role;not null"`
	NeedsReview bool              `gorm:"column:needs_review;not null;default:false"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
