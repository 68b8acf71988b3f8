package scheduling

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/bistrohq/bistro-backend/api/responses"
	"github.com/bistrohq/bistro-backend/api/validators"
	internalscheduling "github.com/bistrohq/bistro-backend/internal/scheduling"
	"github.com/bistrohq/bistro-backend/pkg/db/models"
	dbtypes "github.com/bistrohq/bistro-backend/pkg/db/types"
	"github.com/bistrohq/bistro-backend/pkg/enums"
	pkgerrors "github.com/bistrohq/bistro-backend/pkg/errors"
	"github.com/bistrohq/bistro-backend/pkg/logger"
)

type addShiftRequest struct {
	Date      string `json:"date" validate:"required"`
	StartTime string `json:"start_time" validate:"required"`
	EndTime   string `json:"end_time" validate:"required"`
	Role      string `json:"role" validate:"required,max=64"`
}

type timeOffRequest struct {
	StartDate string `json:"start_date" validate:"required"`
	EndDate   string `json:"end_date" validate:"required"`
	Reason    string `json:"reason" validate:"max=500"`
}

type statusRequest struct {
	Status string `json:"status" validate:"required,oneof=approved denied"`
}

type shiftResponse struct {
	ID          uuid.UUID         `json:"id"`
	EmployeeID  uuid.UUID         `json:"employee_id"`
	Date        dbtypes.Date      `json:"date"`
	StartTime   dbtypes.TimeOfDay `json:"start_time"`
	EndTime     dbtypes.TimeOfDay `json:"end_time"`
	Role        string            `json:"role"`
	NeedsReview bool              `json:"needs_review"`
}

type timeOffResponse struct {
	ID         uuid.UUID    `json:"id"`
	EmployeeID uuid.UUID    `json:"employee_id"`
	StartDate  dbtypes.Date `json:"start_date"`
	EndDate    dbtypes.Date `json:"end_date"`
	Status     string       `json:"status"`
	Reason     string       `json:"reason,omitempty"`
	DecidedAt  *time.Time   `json:"decided_at,omitempty"`
}

type decisionResponse struct {
	TimeOff         timeOffResponse `json:"time_off"`
	FlaggedShiftIDs []uuid.UUID     `json:"flagged_shift_ids,omitempty"`
}

func AddShift(svc internalscheduling.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scheduling service unavailable"))
			return
		}
		employeeID, err := validators.ParseUUIDParam(r, "employeeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req addShiftRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		input, err := req.toInput(employeeID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shift, err := svc.AddShift(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newShiftResponse(*shift))
	}
}

func ListShifts(svc internalscheduling.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scheduling service unavailable"))
			return
		}
		employeeID, err := validators.ParseUUIDParam(r, "employeeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		date, err := validators.ParseQueryDate(r, "date")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		shifts, err := svc.ListShifts(r.Context(), employeeID, date)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		out := make([]shiftResponse, 0, len(shifts))
		for _, shift := range shifts {
			out = append(out, newShiftResponse(shift))
		}
		responses.WriteSuccess(w, out)
	}
}

func RequestTimeOff(svc internalscheduling.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scheduling service unavailable"))
			return
		}
		employeeID, err := validators.ParseUUIDParam(r, "employeeId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req timeOffRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		start, err := parseDateField("start_date", req.StartDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		end, err := parseDateField("end_date", req.EndDate)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		timeOff, err := svc.RequestTimeOff(r.Context(), internalscheduling.TimeOffInput{
			EmployeeID: employeeID,
			StartDate:  start,
			EndDate:    end,
			Reason:     validators.SanitizeString(req.Reason, internalscheduling.MaxReasonLength),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, newTimeOffResponse(*timeOff))
	}
}

// SetTimeOffStatus approves or denies a pending request. Conflicts with
// scheduled shifts are reported per the configured approval policy.
func SetTimeOffStatus(svc internalscheduling.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "scheduling service unavailable"))
			return
		}
		timeOffID, err := validators.ParseUUIDParam(r, "timeOffId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var req statusRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status, err := enums.ParseTimeOffStatus(req.Status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid status"))
			return
		}

		decision, err := svc.SetTimeOffStatus(r.Context(), timeOffID, status)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, decisionResponse{
			TimeOff:         newTimeOffResponse(decision.TimeOff),
			FlaggedShiftIDs: decision.FlaggedShiftIDs,
		})
	}
}

func (req addShiftRequest) toInput(employeeID uuid.UUID) (internalscheduling.AddShiftInput, error) {
	date, err := parseDateField("date", req.Date)
	if err != nil {
		return internalscheduling.AddShiftInput{}, err
	}
	start, err := parseTimeField("start_time", req.StartTime)
	if err != nil {
		return internalscheduling.AddShiftInput{}, err
	}
	end, err := parseTimeField("end_time", req.EndTime)
	if err != nil {
		return internalscheduling.AddShiftInput{}, err
	}
	return internalscheduling.AddShiftInput{
		EmployeeID: employeeID,
		Date:       date,
		Start:      start,
		End:        end,
		Role:       strings.TrimSpace(req.Role),
	}, nil
}

func parseDateField(field, raw string) (dbtypes.Date, error) {
	date, err := dbtypes.ParseDate(strings.TrimSpace(raw))
	if err != nil {
		return dbtypes.Date{}, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field).
			WithDetails(map[string]string{field: "must be YYYY-MM-DD"})
	}
	return date, nil
}

func parseTimeField(field, raw string) (dbtypes.TimeOfDay, error) {
	tod, err := dbtypes.ParseTimeOfDay(strings.TrimSpace(raw))
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid "+field).
			WithDetails(map[string]string{field: "must be HH:MM between 00:00 and 24:00"})
	}
	return tod, nil
}

func newShiftResponse(s models.Shift) shiftResponse {
	return shiftResponse{
		ID:          s.ID,
		EmployeeID:  s.EmployeeID,
		Date:        s.ShiftDate,
		StartTime:   s.StartTime,
		EndTime:     s.EndTime,
		Role:        s.Role,
		NeedsReview: s.NeedsReview,
	}
}

func newTimeOffResponse(t models.TimeOff) timeOffResponse {
	return timeOffResponse{
		ID:         t.ID,
		EmployeeID: t.EmployeeID,
		StartDate:  t.StartDate,
		EndDate:    t.EndDate,
		Status:     string(t.Status),
		Reason:     t.Reason,
		DecidedAt:  t.DecidedAt,
	}
}
