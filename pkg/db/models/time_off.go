package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/bistrohq/bistro-backend/pkg/db/types"
	"github.com/bistrohq/bistro-backend/pkg/enums"
)

// TimeOff covers whole days from StartDate through EndDate inclusive.
type TimeOff struct {
	ID         uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	EmployeeID uuid.UUID           `gorm:"column:employee_id;type:uuid;not null;index"`
	StartDate  dbtypes.Date        `gorm:"column:start_date;type:date;not null"`
	EndDate    dbtypes.Date        `gorm:"column:end_date;type:date;not null"`
	Status     enums.TimeOffStatus `gorm:"column:status;type:text;not null"`
	Reason     string              `gorm:"column:reason;not null;default:''"`
	DecidedAt  *time.Time          `gorm:"column:decided_at"`
	CreatedAt  time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (TimeOff) TableName() string { return "time_off_requests" }
