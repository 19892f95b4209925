package api

import (
	"database/sql"
	"errors"
	"net/http"
	"strconv"
	"time"

	"dutyroster/internal/domain"
	"dutyroster/internal/models"
	"dutyroster/internal/swap"
)

func pathID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		return 0, domain.Validationf("bad id %q", r.PathValue("id"))
	}
	return id, nil
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	u, err := decode[models.User](r)
	if err != nil {
		s.writeError(w, domain.Validationf("bad body: %v", err))
		return
	}
	if u.ID == 0 {
		s.writeError(w, domain.Validationf("id is required"))
		return
	}
	if err := s.users.CreateUser(r.Context(), &u); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, u)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	u, err := s.users.GetUser(r.Context(), id)
	if errors.Is(err, sql.ErrNoRows) {
		s.writeError(w, domain.NotFoundf("user %d not found", id))
		return
	}
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, u)
}

type enrollRequest struct {
	UserID int64  `json:"user_id"`
	Color  string `json:"color"`
	Phone  string `json:"phone"`
}

func (s *Server) handleListOperators(w http.ResponseWriter, r *http.Request) {
	ops, err := s.registry.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, ops)
}

func (s *Server) handleEnrollOperator(w http.ResponseWriter, r *http.Request) {
	req, err := decode[enrollRequest](r)
	if err != nil {
		s.writeError(w, domain.Validationf("bad body: %v", err))
		return
	}
	op, err := s.registry.Enroll(r.Context(), req.UserID, req.Color, req.Phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, op)
}

func (s *Server) handleRemoveOperator(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.registry.Remove(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReorderOperators(w http.ResponseWriter, r *http.Request) {
	entries, err := decode[[]models.ReorderEntry](r)
	if err != nil {
		s.writeError(w, domain.Validationf("bad body: %v", err))
		return
	}
	if err := s.registry.Reorder(r.Context(), entries); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListEscalation(w http.ResponseWriter, r *http.Request) {
	members, err := s.registry.ListEscalation(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, members)
}

func (s *Server) handleEnrollEscalation(w http.ResponseWriter, r *http.Request) {
	req, err := decode[enrollRequest](r)
	if err != nil {
		s.writeError(w, domain.Validationf("bad body: %v", err))
		return
	}
	member, err := s.registry.EnrollEscalation(r.Context(), req.UserID, req.Color, req.Phone)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, member)
}

func (s *Server) handleRemoveEscalation(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.registry.RemoveEscalation(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleReorderEscalation(w http.ResponseWriter, r *http.Request) {
	entries, err := decode[[]models.ReorderEntry](r)
	if err != nil {
		s.writeError(w, domain.Validationf("bad body: %v", err))
		return
	}
	if err := s.registry.ReorderEscalation(r.Context(), entries); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type generateBatchRequest struct {
	StartDate   string `json:"start_date"` // YYYY-MM-DD, snapped to the next handover
	WeekCount   int    `json:"week_count"`
	GeneratedBy int64  `json:"generated_by"`
}

func (s *Server) handleGenerateBatch(w http.ResponseWriter, r *http.Request) {
	req, err := decode[generateBatchRequest](r)
	if err != nil {
		s.writeError(w, domain.Validationf("bad body: %v", err))
		return
	}
	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		s.writeError(w, domain.Validationf("bad start_date %q", req.StartDate))
		return
	}
	batch, err := s.batches.Generate(r.Context(), start, req.WeekCount, req.GeneratedBy)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, batch)
}

func (s *Server) handleListPendingBatches(w http.ResponseWriter, r *http.Request) {
	batches, err := s.batches.ListPending(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, batches)
}

func (s *Server) handleGetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	batch, err := s.batches.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleBatchSchedules(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	schedules, err := s.batches.Schedules(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, schedules)
}

type decisionRequest struct {
	UserID int64  `json:"user_id"`
	Reason string `json:"reason"`
}

func (s *Server) handleApproveBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	req, err := decode[decisionRequest](r)
	if err != nil {
		s.writeError(w, domain.Validationf("bad body: %v", err))
		return
	}
	batch, err := s.batches.Approve(r.Context(), id, req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, batch)
}

func (s *Server) handleRejectBatch(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	req, err := decode[decisionRequest](r)
	if err != nil {
		s.writeError(w, domain.Validationf("bad body: %v", err))
		return
	}
	batch, err := s.batches.Reject(r.Context(), id, req.UserID, req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, batch)
}

type createSwapRequest struct {
	RequesterID        int64  `json:"requester_id"`
	ScheduleID         int64  `json:"schedule_id"`
	TargetUserID       int64  `json:"target_user_id"`
	ExchangeScheduleID *int64 `json:"exchange_schedule_id,omitempty"`
	Reason             string `json:"reason"`
}

func (s *Server) handleCreateSwap(w http.ResponseWriter, r *http.Request) {
	req, err := decode[createSwapRequest](r)
	if err != nil {
		s.writeError(w, domain.Validationf("bad body: %v", err))
		return
	}
	request, err := s.swaps.Create(r.Context(), swap.CreateParams{
		RequesterID:        req.RequesterID,
		ScheduleID:         req.ScheduleID,
		TargetUserID:       req.TargetUserID,
		ExchangeScheduleID: req.ExchangeScheduleID,
		Reason:             req.Reason,
	})
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, request)
}

func (s *Server) handleApproveSwap(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	req, err := decode[decisionRequest](r)
	if err != nil {
		s.writeError(w, domain.Validationf("bad body: %v", err))
		return
	}
	request, err := s.swaps.Approve(r.Context(), id, req.UserID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, request)
}

func (s *Server) handleRejectSwap(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	req, err := decode[decisionRequest](r)
	if err != nil {
		s.writeError(w, domain.Validationf("bad body: %v", err))
		return
	}
	request, err := s.swaps.Reject(r.Context(), id, req.UserID, req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, request)
}

type updateScheduleRequest struct {
	NewUserID    int64  `json:"new_user_id"`
	ActingUserID int64  `json:"acting_user_id"`
	Reason       string `json:"reason"`
}

func (s *Server) handleUpdateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	req, err := decode[updateScheduleRequest](r)
	if err != nil {
		s.writeError(w, domain.Validationf("bad body: %v", err))
		return
	}
	schedule, err := s.overrides.UpdateSchedule(r.Context(), id, req.NewUserID, req.ActingUserID, req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, schedule)
}

type createOverrideRequest struct {
	Date         string `json:"date"` // YYYY-MM-DD
	CoverUserID  int64  `json:"cover_user_id"`
	ActingUserID int64  `json:"acting_user_id"`
	Reason       string `json:"reason"`
}

func (s *Server) handleCreateOverride(w http.ResponseWriter, r *http.Request) {
	req, err := decode[createOverrideRequest](r)
	if err != nil {
		s.writeError(w, domain.Validationf("bad body: %v", err))
		return
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		s.writeError(w, domain.Validationf("bad date %q", req.Date))
		return
	}
	o, err := s.overrides.CreateDayOverride(r.Context(), date, req.CoverUserID, req.ActingUserID, req.Reason)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleRemoveOverride(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.overrides.RemoveDayOverride(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleOnCall(w http.ResponseWriter, r *http.Request) {
	at := time.Now()
	if v := r.URL.Query().Get("at"); v != "" {
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.writeError(w, domain.Validationf("bad at %q", v))
			return
		}
		at = parsed
	}
	oncall, err := s.resolver.OnCallAt(r.Context(), at)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, oncall)
}

func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	year, err := strconv.Atoi(r.URL.Query().Get("year"))
	if err != nil {
		s.writeError(w, domain.Validationf("bad year"))
		return
	}
	month, err := strconv.Atoi(r.URL.Query().Get("month"))
	if err != nil || month < 1 || month > 12 {
		s.writeError(w, domain.Validationf("bad month"))
		return
	}
	days, err := s.resolver.RenderMonth(r.Context(), year, time.Month(month))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, days)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	from, err := time.Parse("2006-01-02", r.URL.Query().Get("from"))
	if err != nil {
		s.writeError(w, domain.Validationf("bad from"))
		return
	}
	to, err := time.Parse("2006-01-02", r.URL.Query().Get("to"))
	if err != nil || !to.After(from) {
		s.writeError(w, domain.Validationf("bad to"))
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", `attachment; filename="roster.xlsx"`)
	if err := s.exporter.WriteRoster(r.Context(), w, from, to); err != nil {
		s.logger.Error().Err(err).Msg("roster export failed")
	}
}
