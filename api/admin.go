package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/warp/leave-engine/generic"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// CALENDAR HANDLERS
// =============================================================================

func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	holidays, err := h.Calendar.ListHolidays(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	dtos := make([]HolidayDTO, len(holidays))
	for i, hol := range holidays {
		dtos[i] = HolidayDTO{
			ID:         hol.ID,
			Name:       hol.Name,
			Date:       formatDate(hol.Date),
			Recurrence: hol.Recurrence,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListHolidayDates expands recurring holidays for ?year (default: this year).
func (h *Handler) ListHolidayDates(w http.ResponseWriter, r *http.Request) {
	year := time.Now().UTC().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		y, err := strconv.Atoi(raw)
		if err != nil || y < 1 {
			writeError(w, r, generic.NewValidationError("year", "must be a positive integer"))
			return
		}
		year = y
	}

	days, err := h.Calendar.Holidays(r.Context(), year)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dates := make([]string, len(days))
	for i, d := range days {
		dates[i] = formatDate(d)
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": year, "dates": dates})
}

func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	hol := &leave.Holiday{
		Name:       req.Name,
		Date:       validatedDate(req.Date),
		Recurrence: req.Recurrence,
	}
	if err := h.Calendar.AddHoliday(r.Context(), hol); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, HolidayDTO{
		ID:         hol.ID,
		Name:       hol.Name,
		Date:       formatDate(hol.Date),
		Recurrence: hol.Recurrence,
	})
}

func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Calendar.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) ListBlockedPeriods(w http.ResponseWriter, r *http.Request) {
	blocked, err := h.Calendar.ListBlockedPeriods(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}

	dtos := make([]BlockedPeriodDTO, len(blocked))
	for i, b := range blocked {
		dtos[i] = toBlockedPeriodDTO(&b)
	}
	writeJSON(w, http.StatusOK, dtos)
}

func (h *Handler) CreateBlockedPeriod(w http.ResponseWriter, r *http.Request) {
	var req CreateBlockedPeriodRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	b := &leave.BlockedPeriod{
		Name:   req.Name,
		From:   validatedDate(req.From),
		To:     validatedDate(req.To),
		Reason: req.Reason,
	}
	if err := h.Calendar.AddBlockedPeriod(r.Context(), b); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toBlockedPeriodDTO(b))
}

func (h *Handler) DeleteBlockedPeriod(w http.ResponseWriter, r *http.Request) {
	if err := h.Calendar.DeleteBlockedPeriod(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toBlockedPeriodDTO(b *leave.BlockedPeriod) BlockedPeriodDTO {
	return BlockedPeriodDTO{
		ID:     b.ID,
		Name:   b.Name,
		From:   formatDate(b.From),
		To:     formatDate(b.To),
		Reason: b.Reason,
	}
}

// =============================================================================
// BATCH JOB HANDLERS
// =============================================================================
// A run in which no entitlement succeeded answers 500 with the BatchError;
// the run record still carries the counts.

func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	var req AccrueAllRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.Jobs.AccrueAll(r.Context(), leave.AccrualRun{
		LeaveTypeID:  req.LeaveTypeID,
		DepartmentID: req.DepartmentID,
		Amount:       req.Amount,
		Actor:        req.Actor,
	})
	writeBatch(w, r, result, err)
}

func (h *Handler) RunCarryForward(w http.ResponseWriter, r *http.Request) {
	var req CarryForwardRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := h.Jobs.CarryForward(r.Context(), leave.CarryForwardRun{
		LeaveTypeID: req.LeaveTypeID,
		EmployeeID:  req.EmployeeID,
		AsOf:        parseOptionalDate(req.AsOf),
		Actor:       req.Actor,
	})
	writeBatch(w, r, result, err)
}

func (h *Handler) RunReset(w http.ResponseWriter, r *http.Request) {
	var req ResetRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	criterion := leave.ResetHireDate
	if req.Criterion != "" {
		criterion = leave.ResetCriterion(req.Criterion)
	}

	result, err := h.Jobs.Reset(r.Context(), criterion, req.Actor)
	writeBatch(w, r, result, err)
}

func (h *Handler) RunReminders(w http.ResponseWriter, r *http.Request) {
	var req RemindRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	olderThan := h.RemindAfter
	if req.OlderThanHours > 0 {
		olderThan = time.Duration(req.OlderThanHours) * time.Hour
	}

	sent, err := h.Jobs.Remind(r.Context(), olderThan)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"sent": sent})
}

// ListRuns returns recorded batch runs (?kind, ?limit, default 50).
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, generic.NewValidationError("limit", "must be a positive integer"))
			return
		}
		limit = n
	}

	runs, err := h.Jobs.ListRuns(r.Context(), r.URL.Query().Get("kind"), limit)
	if err != nil {
		writeError(w, r, err)
		return
	}
	dtos := make([]BatchRunDTO, len(runs))
	for i, run := range runs {
		dtos[i] = toBatchRunDTO(run)
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": dtos})
}

func writeBatch(w http.ResponseWriter, r *http.Request, result *generic.BatchResult, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(result))
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
