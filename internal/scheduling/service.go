package scheduling

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/bistrohq/bistro-backend/internal/repo"
	"github.com/bistrohq/bistro-backend/pkg/db/models"
	dbtypes "github.com/bistrohq/bistro-backend/pkg/db/types"
	"github.com/bistrohq/bistro-backend/pkg/enums"
	pkgerrors "github.com/bistrohq/bistro-backend/pkg/errors"
	"github.com/bistrohq/bistro-backend/pkg/logger"
	"github.com/bistrohq/bistro-backend/pkg/outbox"
	"github.com/bistrohq/bistro-backend/pkg/outbox/payloads"
)

// MaxReasonLength bounds the free-text reason on a time-off request.
const MaxReasonLength = 500

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service validates and persists shifts and time-off requests.
type Service interface {
	AddShift(ctx context.Context, input AddShiftInput) (*models.Shift, error)
	ListShifts(ctx context.Context, employeeID uuid.UUID, date dbtypes.Date) ([]models.Shift, error)
	RequestTimeOff(ctx context.Context, input TimeOffInput) (*models.TimeOff, error)
	SetTimeOffStatus(ctx context.Context, timeOffID uuid.UUID, status enums.TimeOffStatus) (*Decision, error)
}

// AddShiftInput is a proposed half-open [Start, End) shift on Date.
type AddShiftInput struct {
	EmployeeID uuid.UUID
	Date       dbtypes.Date
	Start      dbtypes.TimeOfDay
	End        dbtypes.TimeOfDay
	Role       string
}

// TimeOffInput covers StartDate through EndDate inclusive.
type TimeOffInput struct {
	EmployeeID uuid.UUID
	StartDate  dbtypes.Date
	EndDate    dbtypes.Date
	Reason     string
}

// Decision is the outcome of SetTimeOffStatus. FlaggedShiftIDs is only
// populated under the flag approval policy.
type Decision struct {
	TimeOff         models.TimeOff
	FlaggedShiftIDs []uuid.UUID
}

type service struct {
	repo   Repository
	tx     txRunner
	outbox outboxPublisher
	logg   *logger.Logger
	policy enums.ApprovalPolicy
	now    func() time.Time
}

// NewService builds the scheduling service. An empty policy selects reject.
func NewService(repository Repository, tx txRunner, outbox outboxPublisher, logg *logger.Logger, policy enums.ApprovalPolicy) (Service, error) {
	if repository == nil {
		return nil, fmt.Errorf("scheduling repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	parsed, err := enums.ParseApprovalPolicy(string(policy))
	if err != nil {
		return nil, err
	}
	return &service{
		repo:   repository,
		tx:     tx,
		outbox: outbox,
		logg:   logg,
		policy: parsed,
		now:    func() time.Time { return time.Now().UTC() },
	}, nil
}

// AddShift inserts a shift after re-checking overlaps while holding the
// employee row lock, so two concurrent inserts cannot both pass the check.
func (s *service) AddShift(ctx context.Context, input AddShiftInput) (*models.Shift, error) {
	if err := validateShift(input); err != nil {
		return nil, err
	}

	var shift *models.Shift
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if _, err := txRepo.LockEmployee(ctx, input.EmployeeID); err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "employee not found")
			}
			return fmt.Errorf("lock employee: %w", err)
		}

		existing, err := txRepo.ListShiftsOn(ctx, input.EmployeeID, input.Date)
		if err != nil {
			return fmt.Errorf("list shifts: %w", err)
		}
		for _, other := range existing {
			if overlaps(input.Start, input.End, other.StartTime, other.EndTime) {
				return pkgerrors.New(pkgerrors.CodeConflict, "shift overlaps an existing shift").
					WithDetails(map[string]any{
						"shift_id": other.ID.String(),
						"start":    other.StartTime.String(),
						"end":      other.EndTime.String(),
					})
			}
		}

		timeOff, err := txRepo.ListApprovedTimeOffOn(ctx, input.EmployeeID, input.Date)
		if err != nil {
			return fmt.Errorf("list approved time off: %w", err)
		}
		if len(timeOff) > 0 {
			return pkgerrors.New(pkgerrors.CodeConflict, "shift overlaps approved time off").
				WithDetails(map[string]any{"time_off_id": timeOff[0].ID.String()})
		}

		shift = &models.Shift{
			ID:         uuid.New(),
			EmployeeID: input.EmployeeID,
			ShiftDate:  input.Date,
			StartTime:  input.Start,
			EndTime:    input.End,
			Role:       strings.TrimSpace(input.Role),
		}
		if err := txRepo.CreateShift(ctx, shift); err != nil {
			return fmt.Errorf("create shift: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, repo.StorageFailure(ctx, s.logg, repo.Op{
			Name:     "scheduling.add_shift",
			EntityID: input.EmployeeID,
			Inputs: map[string]any{
				"date":  input.Date.String(),
				"start": input.Start.String(),
				"end":   input.End.String(),
				"role":  input.Role,
			},
		}, err, "add shift")
	}
	return shift, nil
}

func validateShift(input AddShiftInput) error {
	if input.EmployeeID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "employee id required")
	}
	if input.Date.IsZero() {
		return pkgerrors.New(pkgerrors.CodeValidation, "shift date required")
	}
	if !input.Start.Valid() || !input.End.Valid() {
		return pkgerrors.New(pkgerrors.CodeValidation, "shift times must be between 00:00 and 24:00")
	}
	if input.End <= input.Start {
		return pkgerrors.New(pkgerrors.CodeValidation, "shift end must be after start")
	}
	if strings.TrimSpace(input.Role) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "role required")
	}
	return nil
}

// overlaps is the half-open interval test; touching intervals do not overlap.
func overlaps(aStart, aEnd, bStart, bEnd dbtypes.TimeOfDay) bool {
	return aStart < bEnd && bStart < aEnd
}

func (s *service) ListShifts(ctx context.Context, employeeID uuid.UUID, date dbtypes.Date) ([]models.Shift, error) {
	if employeeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "employee id required")
	}
	if date.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "date required")
	}
	op := repo.Op{Name: "scheduling.list_shifts", EntityID: employeeID, Inputs: map[string]any{"date": date.String()}}
	if _, err := s.repo.FindEmployee(ctx, employeeID); err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "employee not found")
		}
		return nil, repo.StorageFailure(ctx, s.logg, op, err, "load employee")
	}
	shifts, err := s.repo.ListShiftsOn(ctx, employeeID, date)
	if err != nil {
		return nil, repo.StorageFailure(ctx, s.logg, op, err, "list shifts")
	}
	if shifts == nil {
		shifts = []models.Shift{}
	}
	return shifts, nil
}

// RequestTimeOff stores a pending request. Overlaps are only checked on approval.
func (s *service) RequestTimeOff(ctx context.Context, input TimeOffInput) (*models.TimeOff, error) {
	if input.EmployeeID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "employee id required")
	}
	if input.StartDate.IsZero() || input.EndDate.IsZero() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "start and end dates required")
	}
	if input.EndDate.Before(input.StartDate) {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "end date must not precede start date")
	}
	reason := strings.TrimSpace(input.Reason)
	if utf8.RuneCountInString(reason) > MaxReasonLength {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("reason must be at most %d characters", MaxReasonLength))
	}

	request := &models.TimeOff{
		ID:         uuid.New(),
		EmployeeID: input.EmployeeID,
		StartDate:  input.StartDate,
		EndDate:    input.EndDate,
		Status:     enums.TimeOffStatusPending,
		Reason:     reason,
	}
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		txRepo := s.repo.WithTx(tx)
		if _, err := txRepo.FindEmployee(ctx, input.EmployeeID); err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "employee not found")
			}
			return fmt.Errorf("load employee: %w", err)
		}
		if err := txRepo.CreateTimeOff(ctx, request); err != nil {
			return fmt.Errorf("create time off: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, repo.StorageFailure(ctx, s.logg, repo.Op{
			Name:     "scheduling.request_time_off",
			EntityID: input.EmployeeID,
			Inputs: map[string]any{
				"start_date": input.StartDate.String(),
				"end_date":   input.EndDate.String(),
			},
		}, err, "request time off")
	}
	return request, nil
}

// SetTimeOffStatus approves or denies a pending request. The employee row is
// locked first, matching AddShift, so approval and shift insertion serialise.
func (s *service) SetTimeOffStatus(ctx context.Context, timeOffID uuid.UUID, status enums.TimeOffStatus) (*Decision, error) {
	if timeOffID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "time off id required")
	}
	if !status.IsDecision() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "status must be approved or denied")
	}

	var decision *Decision
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		decision, err = s.decideTx(ctx, tx, timeOffID, status)
		return err
	})
	if err != nil {
		return nil, repo.StorageFailure(ctx, s.logg, repo.Op{
			Name:     "scheduling.set_time_off_status",
			EntityID: timeOffID,
			Inputs:   map[string]any{"status": status.String(), "policy": string(s.policy)},
		}, err, "set time off status")
	}
	return decision, nil
}

func (s *service) decideTx(ctx context.Context, tx *gorm.DB, timeOffID uuid.UUID, status enums.TimeOffStatus) (*Decision, error) {
	txRepo := s.repo.WithTx(tx)

	request, err := txRepo.FindTimeOff(ctx, timeOffID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "time off request not found")
		}
		return nil, fmt.Errorf("load time off: %w", err)
	}
	if _, err := txRepo.LockEmployee(ctx, request.EmployeeID); err != nil {
		return nil, fmt.Errorf("lock employee: %w", err)
	}
	request, err = txRepo.LockTimeOff(ctx, timeOffID)
	if err != nil {
		return nil, fmt.Errorf("lock time off: %w", err)
	}
	if request.Status != enums.TimeOffStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "time off request already decided").
			WithDetails(map[string]any{"status": request.Status.String()})
	}

	var flagged []uuid.UUID
	if status == enums.TimeOffStatusApproved {
		conflicts, err := txRepo.ListShiftsBetween(ctx, request.EmployeeID, request.StartDate, request.EndDate)
		if err != nil {
			return nil, fmt.Errorf("list conflicting shifts: %w", err)
		}
		if len(conflicts) > 0 {
			ids := shiftIDs(conflicts)
			if s.policy == enums.ApprovalPolicyReject {
				return nil, pkgerrors.New(pkgerrors.CodeConflict, "time off overlaps scheduled shifts").
					WithDetails(map[string]any{"conflicting_shift_ids": ids})
			}
			if err := txRepo.FlagShifts(ctx, ids); err != nil {
				return nil, fmt.Errorf("flag shifts: %w", err)
			}
			for _, shift := range conflicts {
				event := outbox.DomainEvent{
					EventType:     enums.EventShiftFlagged,
					AggregateType: enums.AggregateShift,
					AggregateID:   shift.ID,
					Operation:     "scheduling.set_time_off_status",
					Data: payloads.ShiftFlaggedEvent{
						ShiftID:    shift.ID,
						EmployeeID: shift.EmployeeID,
						TimeOffID:  request.ID,
						ShiftDate:  shift.ShiftDate,
					},
				}
				if err := s.outbox.Emit(ctx, tx, event); err != nil {
					return nil, fmt.Errorf("emit shift flagged: %w", err)
				}
			}
			flagged = ids
		}
	}

	decidedAt := s.now()
	updated, err := txRepo.DecideTimeOff(ctx, request.ID, status, decidedAt)
	if err != nil {
		return nil, fmt.Errorf("update time off: %w", err)
	}
	if !updated {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "time off request already decided")
	}
	request.Status = status
	request.DecidedAt = &decidedAt

	event := outbox.DomainEvent{
		EventType:     enums.EventTimeOffDecided,
		AggregateType: enums.AggregateTimeOff,
		AggregateID:   request.ID,
		Operation:     "scheduling.set_time_off_status",
		Data: payloads.TimeOffDecidedEvent{
			TimeOffID:  request.ID,
			EmployeeID: request.EmployeeID,
			Status:     status,
			StartDate:  request.StartDate,
			EndDate:    request.EndDate,
			FlaggedIDs: flagged,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return nil, fmt.Errorf("emit time off decided: %w", err)
	}
	return &Decision{TimeOff: *request, FlaggedShiftIDs: flagged}, nil
}

func shiftIDs(shifts []models.Shift) []uuid.UUID {
	ids := make([]uuid.UUID, 0, len(shifts))
	for _, shift := range shifts {
		ids = append(ids, shift.ID)
	}
	return ids
}
