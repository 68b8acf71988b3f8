package scheduling

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/bistrohq/bistro-backend/pkg/db/models"
	dbtypes "github.com/bistrohq/bistro-backend/pkg/db/types"
	"github.com/bistrohq/bistro-backend/pkg/enums"
)

// Repository captures persistence for shifts and time-off requests.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindEmployee(ctx context.Context, id uuid.UUID) (*models.Employee, error)
	LockEmployee(ctx context.Context, id uuid.UUID) (*models.Employee, error)

	CreateShift(ctx context.Context, shift *models.Shift) error
	ListShiftsOn(ctx context.Context, employeeID uuid.UUID, date dbtypes.Date) ([]models.Shift, error)
	ListShiftsBetween(ctx context.Context, employeeID uuid.UUID, from, to dbtypes.Date) ([]models.Shift, error)
	FlagShifts(ctx context.Context, ids []uuid.UUID) error

	CreateTimeOff(ctx context.Context, request *models.TimeOff) error
	FindTimeOff(ctx context.Context, id uuid.UUID) (*models.TimeOff, error)
	LockTimeOff(ctx context.Context, id uuid.UUID) (*models.TimeOff, error)
	ListApprovedTimeOffOn(ctx context.Context, employeeID uuid.UUID, date dbtypes.Date) ([]models.TimeOff, error)
	DecideTimeOff(ctx context.Context, id uuid.UUID, status enums.TimeOffStatus, decidedAt time.Time) (bool, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a scheduling repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindEmployee(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	var employee models.Employee
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&employee).Error; err != nil {
		return nil, err
	}
	return &employee, nil
}

// LockEmployee serialises every schedule mutation for one employee.
func (r *repository) LockEmployee(ctx context.Context, id uuid.UUID) (*models.Employee, error) {
	var employee models.Employee
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&employee).Error; err != nil {
		return nil, err
	}
	return &employee, nil
}

func (r *repository) CreateShift(ctx context.Context, shift *models.Shift) error {
	return r.db.WithContext(ctx).Create(shift).Error
}

func (r *repository) ListShiftsOn(ctx context.Context, employeeID uuid.UUID, date dbtypes.Date) ([]models.Shift, error) {
	var shifts []models.Shift
	if err := r.db.WithContext(ctx).
		Where("employee_id = ? AND shift_date = ?", employeeID, date).
		Order("start_minute ASC").
		Find(&shifts).Error; err != nil {
		return nil, err
	}
	return shifts, nil
}

func (r *repository) ListShiftsBetween(ctx context.Context, employeeID uuid.UUID, from, to dbtypes.Date) ([]models.Shift, error) {
	var shifts []models.Shift
	if err := r.db.WithContext(ctx).
		Where("employee_id = ? AND shift_date >= ? AND shift_date <= ?", employeeID, from, to).
		Order("shift_date ASC").
		Order("start_minute ASC").
		Find(&shifts).Error; err != nil {
		return nil, err
	}
	return shifts, nil
}

func (r *repository) FlagShifts(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.Shift{}).
		Where("id IN ?", ids).
		Updates(map[string]any{"needs_review": true}).Error
}

func (r *repository) CreateTimeOff(ctx context.Context, request *models.TimeOff) error {
	return r.db.WithContext(ctx).Create(request).Error
}

func (r *repository) FindTimeOff(ctx context.Context, id uuid.UUID) (*models.TimeOff, error) {
	var request models.TimeOff
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) LockTimeOff(ctx context.Context, id uuid.UUID) (*models.TimeOff, error) {
	var request models.TimeOff
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).
		First(&request).Error; err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *repository) ListApprovedTimeOffOn(ctx context.Context, employeeID uuid.UUID, date dbtypes.Date) ([]models.TimeOff, error) {
	var requests []models.TimeOff
	if err := r.db.WithContext(ctx).
		Where("employee_id = ? AND status = ? AND start_date <= ? AND end_date >= ?",
			employeeID, enums.TimeOffStatusApproved, date, date).
		Find(&requests).Error; err != nil {
		return nil, err
	}
	return requests, nil
}

// DecideTimeOff moves a pending request to status. It reports false when the
// request was no longer pending.
func (r *repository) DecideTimeOff(ctx context.Context, id uuid.UUID, status enums.TimeOffStatus, decidedAt time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.TimeOff{}).
		Where("id = ? AND status = ?", id, enums.TimeOffStatusPending).
		Updates(map[string]any{
			"status":     status,
			"decided_at": decidedAt,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
