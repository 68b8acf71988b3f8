package scheduling

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/bistrohq/bistro-backend/pkg/db"
	"github.com/bistrohq/bistro-backend/pkg/db/dbtest"
	"github.com/bistrohq/bistro-backend/pkg/db/models"
	dbtypes "github.com/bistrohq/bistro-backend/pkg/db/types"
	"github.com/bistrohq/bistro-backend/pkg/enums"
	pkgerrors "github.com/bistrohq/bistro-backend/pkg/errors"
	"github.com/bistrohq/bistro-backend/pkg/logger"
	"github.com/bistrohq/bistro-backend/pkg/outbox"
)

var monday = dbtypes.NewDate(2026, 3, 2)

type fixture struct {
	conn *gorm.DB
	svc  Service
}

func newFixture(t *testing.T, policy enums.ApprovalPolicy) fixture {
	t.Helper()
	conn := dbtest.Open(t)
	logg := logger.Nop()
	svc, err := NewService(NewRepository(conn), db.NewFromConn(conn),
		outbox.NewService(outbox.NewRepository(conn), logg), logg, policy)
	require.NoError(t, err)
	return fixture{conn: conn, svc: svc}
}

func (f fixture) employee(t *testing.T) models.Employee {
	t.Helper()
	employee := models.Employee{ID: uuid.New(), Name: "Sam", Role: "cook"}
	require.NoError(t, f.conn.Create(&employee).Error)
	return employee
}

func shift(employeeID uuid.UUID, date dbtypes.Date, start, end string) AddShiftInput {
	return AddShiftInput{
		EmployeeID: employeeID,
		Date:       date,
		Start:      dbtypes.MustTimeOfDay(start),
		End:        dbtypes.MustTimeOfDay(end),
		Role:       "cook",
	}
}

func (f fixture) countEvents(t *testing.T, eventType enums.OutboxEventType) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
	return n
}

func TestAddShiftOverlapRule(t *testing.T) {
	f := newFixture(t, enums.ApprovalPolicyReject)
	ctx := context.Background()
	emp := f.employee(t)

	_, err := f.svc.AddShift(ctx, shift(emp.ID, monday, "09:00", "17:00"))
	require.NoError(t, err)

	_, err = f.svc.AddShift(ctx, shift(emp.ID, monday, "16:00", "20:00"))
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))

	_, err = f.svc.AddShift(ctx, shift(emp.ID, monday, "17:00", "20:00"))
	require.NoError(t, err)

	_, err = f.svc.AddShift(ctx, shift(emp.ID, monday.AddDays(1), "16:00", "20:00"))
	require.NoError(t, err)

	shifts, err := f.svc.ListShifts(ctx, emp.ID, monday)
	require.NoError(t, err)
	require.Len(t, shifts, 2)
	assert.Equal(t, "09:00", shifts[0].StartTime.String())
	assert.Equal(t, "17:00", shifts[1].StartTime.String())
}

func TestAddShiftOverlapIsPerEmployee(t *testing.T) {
	f := newFixture(t, enums.ApprovalPolicyReject)
	ctx := context.Background()
	a, b := f.employee(t), f.employee(t)

	_, err := f.svc.AddShift(ctx, shift(a.ID, monday, "09:00", "17:00"))
	require.NoError(t, err)
	_, err = f.svc.AddShift(ctx, shift(b.ID, monday, "09:00", "17:00"))
	require.NoError(t, err)
}

func TestAddShiftValidation(t *testing.T) {
	f := newFixture(t, enums.ApprovalPolicyReject)
	ctx := context.Background()
	emp := f.employee(t)

	cases := map[string]AddShiftInput{
		"end equals start": shift(emp.ID, monday, "09:00", "09:00"),
		"end before start": shift(emp.ID, monday, "17:00", "09:00"),
		"missing employee": shift(uuid.Nil, monday, "09:00", "17:00"),
		"missing date":     shift(emp.ID, dbtypes.Date{}, "09:00", "17:00"),
		"blank role": func() AddShiftInput {
			in := shift(emp.ID, monday, "09:00", "17:00")
			in.Role = "  "
			return in
		}(),
		"out of range": {EmployeeID: emp.ID, Date: monday, Start: 0, End: dbtypes.MinutesPerDay + 1, Role: "cook"},
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.AddShift(ctx, input)
			assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "got %v", err)
		})
	}

	_, err := f.svc.AddShift(ctx, shift(uuid.New(), monday, "09:00", "17:00"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestAddShiftEndingAtMidnight(t *testing.T) {
	f := newFixture(t, enums.ApprovalPolicyReject)
	emp := f.employee(t)

	created, err := f.svc.AddShift(context.Background(), shift(emp.ID, monday, "18:00", "24:00"))
	require.NoError(t, err)
	assert.Equal(t, "24:00", created.EndTime.String())
}

func TestApprovedTimeOffBlocksShifts(t *testing.T) {
	f := newFixture(t, enums.ApprovalPolicyReject)
	ctx := context.Background()
	emp := f.employee(t)

	request, err := f.svc.RequestTimeOff(ctx, TimeOffInput{EmployeeID: emp.ID, StartDate: monday, EndDate: monday.AddDays(2), Reason: "trip"})
	require.NoError(t, err)
	assert.Equal(t, enums.TimeOffStatusPending, request.Status)

	_, err = f.svc.AddShift(ctx, shift(emp.ID, monday.AddDays(1), "09:00", "17:00"))
	require.NoError(t, err, "pending time off must not block shifts")

	other, err := f.svc.RequestTimeOff(ctx, TimeOffInput{EmployeeID: emp.ID, StartDate: monday.AddDays(5), EndDate: monday.AddDays(6)})
	require.NoError(t, err)
	_, err = f.svc.SetTimeOffStatus(ctx, other.ID, enums.TimeOffStatusApproved)
	require.NoError(t, err)

	_, err = f.svc.AddShift(ctx, shift(emp.ID, monday.AddDays(6), "09:00", "10:00"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConflict))
	_, err = f.svc.AddShift(ctx, shift(emp.ID, monday.AddDays(7), "00:00", "10:00"))
	require.NoError(t, err)
	_, err = f.svc.AddShift(ctx, shift(emp.ID, monday.AddDays(4), "20:00", "24:00"))
	require.NoError(t, err)
}

func TestRequestTimeOffValidation(t *testing.T) {
	f := newFixture(t, enums.ApprovalPolicyReject)
	ctx := context.Background()
	emp := f.employee(t)

	_, err := f.svc.RequestTimeOff(ctx, TimeOffInput{EmployeeID: emp.ID, StartDate: monday.AddDays(1), EndDate: monday})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	_, err = f.svc.RequestTimeOff(ctx, TimeOffInput{EmployeeID: uuid.New(), StartDate: monday, EndDate: monday})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	single, err := f.svc.RequestTimeOff(ctx, TimeOffInput{EmployeeID: emp.ID, StartDate: monday, EndDate: monday})
	require.NoError(t, err)
	assert.Equal(t, monday.String(), single.EndDate.String())
}

func TestSetTimeOffStatusOnlyFromPending(t *testing.T) {
	f := newFixture(t, enums.ApprovalPolicyReject)
	ctx := context.Background()
	emp := f.employee(t)

	request, err := f.svc.RequestTimeOff(ctx, TimeOffInput{EmployeeID: emp.ID, StartDate: monday, EndDate: monday})
	require.NoError(t, err)

	_, err = f.svc.SetTimeOffStatus(ctx, request.ID, enums.TimeOffStatusPending)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	decision, err := f.svc.SetTimeOffStatus(ctx, request.ID, enums.TimeOffStatusDenied)
	require.NoError(t, err)
	assert.Equal(t, enums.TimeOffStatusDenied, decision.TimeOff.Status)
	require.NotNil(t, decision.TimeOff.DecidedAt)

	_, err = f.svc.SetTimeOffStatus(ctx, request.ID, enums.TimeOffStatusApproved)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	_, err = f.svc.SetTimeOffStatus(ctx, request.ID, enums.TimeOffStatusDenied)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))

	_, err = f.svc.SetTimeOffStatus(ctx, uuid.New(), enums.TimeOffStatusApproved)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	assert.Equal(t, int64(1), f.countEvents(t, enums.EventTimeOffDecided))
}

func TestApprovalRejectPolicyListsConflicts(t *testing.T) {
	f := newFixture(t, enums.ApprovalPolicyReject)
	ctx := context.Background()
	emp := f.employee(t)

	existing, err := f.svc.AddShift(ctx, shift(emp.ID, monday, "09:00", "17:00"))
	require.NoError(t, err)
	request, err := f.svc.RequestTimeOff(ctx, TimeOffInput{EmployeeID: emp.ID, StartDate: monday, EndDate: monday})
	require.NoError(t, err)

	_, err = f.svc.SetTimeOffStatus(ctx, request.ID, enums.TimeOffStatusApproved)
	require.Error(t, err)
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	assert.Equal(t, pkgerrors.CodeConflict, typed.Code())
	details, ok := typed.Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []uuid.UUID{existing.ID}, details["conflicting_shift_ids"])

	var stored models.TimeOff
	require.NoError(t, f.conn.Where("id = ?", request.ID).First(&stored).Error)
	assert.Equal(t, enums.TimeOffStatusPending, stored.Status)

	_, err = f.svc.SetTimeOffStatus(ctx, request.ID, enums.TimeOffStatusDenied)
	require.NoError(t, err)
}

func TestApprovalFlagPolicyMarksShifts(t *testing.T) {
	f := newFixture(t, enums.ApprovalPolicyFlag)
	ctx := context.Background()
	emp := f.employee(t)

	inside, err := f.svc.AddShift(ctx, shift(emp.ID, monday.AddDays(1), "09:00", "17:00"))
	require.NoError(t, err)
	outside, err := f.svc.AddShift(ctx, shift(emp.ID, monday.AddDays(3), "09:00", "17:00"))
	require.NoError(t, err)
	request, err := f.svc.RequestTimeOff(ctx, TimeOffInput{EmployeeID: emp.ID, StartDate: monday, EndDate: monday.AddDays(2)})
	require.NoError(t, err)

	decision, err := f.svc.SetTimeOffStatus(ctx, request.ID, enums.TimeOffStatusApproved)
	require.NoError(t, err)
	assert.Equal(t, enums.TimeOffStatusApproved, decision.TimeOff.Status)
	assert.Equal(t, []uuid.UUID{inside.ID}, decision.FlaggedShiftIDs)

	var flagged, untouched models.Shift
	require.NoError(t, f.conn.Where("id = ?", inside.ID).First(&flagged).Error)
	require.NoError(t, f.conn.Where("id = ?", outside.ID).First(&untouched).Error)
	assert.True(t, flagged.NeedsReview)
	assert.False(t, untouched.NeedsReview)

	assert.Equal(t, int64(1), f.countEvents(t, enums.EventShiftFlagged))
	assert.Equal(t, int64(1), f.countEvents(t, enums.EventTimeOffDecided))
}

func TestListShiftsUnknownEmployee(t *testing.T) {
	f := newFixture(t, enums.ApprovalPolicyReject)

	_, err := f.svc.ListShifts(context.Background(), uuid.New(), monday)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	emp := f.employee(t)
	shifts, err := f.svc.ListShifts(context.Background(), emp.ID, monday)
	require.NoError(t, err)
	assert.Empty(t, shifts)
}

func TestNewServiceRejectsUnknownPolicy(t *testing.T) {
	conn := dbtest.Open(t)
	_, err := NewService(NewRepository(conn), db.NewFromConn(conn),
		outbox.NewService(outbox.NewRepository(conn), logger.Nop()), logger.Nop(), "sometimes")
	assert.Error(t, err)
}
