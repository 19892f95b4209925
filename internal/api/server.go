// Package api exposes the roster workflows over a small JSON HTTP
// surface for internal tooling. It carries no authentication of its
// own; acting user ids are supplied by the caller.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"dutyroster/internal/domain"
	"dutyroster/internal/models"
	"dutyroster/internal/resolve"
	"dutyroster/internal/swap"
)

// The workflow surfaces the handlers drive.
type (
	Users interface {
		CreateUser(ctx context.Context, u *models.User) error
		GetUser(ctx context.Context, id int64) (*models.User, error)
	}

	Registry interface {
		List(ctx context.Context) ([]models.Operator, error)
		Enroll(ctx context.Context, userID int64, color, phone string) (*models.Operator, error)
		Remove(ctx context.Context, operatorID int64) error
		Reorder(ctx context.Context, entries []models.ReorderEntry) error
		ListEscalation(ctx context.Context) ([]models.EscalationMember, error)
		EnrollEscalation(ctx context.Context, userID int64, color, phone string) (*models.EscalationMember, error)
		RemoveEscalation(ctx context.Context, memberID int64) error
		ReorderEscalation(ctx context.Context, entries []models.ReorderEntry) error
	}

	Batches interface {
		Generate(ctx context.Context, startDate time.Time, weekCount int, generatedBy int64) (*models.ScheduleBatch, error)
		Get(ctx context.Context, batchID int64) (*models.ScheduleBatch, error)
		ListPending(ctx context.Context) ([]models.ScheduleBatch, error)
		Schedules(ctx context.Context, batchID int64) ([]models.Schedule, error)
		Approve(ctx context.Context, batchID, approverID int64) (*models.ScheduleBatch, error)
		Reject(ctx context.Context, batchID, rejecterID int64, reason string) (*models.ScheduleBatch, error)
	}

	Swaps interface {
		Create(ctx context.Context, p swap.CreateParams) (*models.SwapRequest, error)
		Approve(ctx context.Context, requestID, approverID int64) (*models.SwapRequest, error)
		Reject(ctx context.Context, requestID, rejecterID int64, reason string) (*models.SwapRequest, error)
	}

	Overrides interface {
		UpdateSchedule(ctx context.Context, scheduleID, newUserID, actingUserID int64, reason string) (*models.Schedule, error)
		CreateDayOverride(ctx context.Context, date time.Time, coverUserID, actingUserID int64, reason string) (*models.DayOverride, error)
		RemoveDayOverride(ctx context.Context, id int64) error
	}

	Resolver interface {
		OnCallAt(ctx context.Context, t time.Time) (*resolve.OnCall, error)
		RenderMonth(ctx context.Context, year int, month time.Month) ([]models.CalendarDay, error)
	}

	Exporter interface {
		WriteRoster(ctx context.Context, w io.Writer, start, end time.Time) error
	}
)

// Server routes the admin API.
type Server struct {
	users     Users
	registry  Registry
	batches   Batches
	swaps     Swaps
	overrides Overrides
	resolver  Resolver
	exporter  Exporter
	logger    zerolog.Logger
}

func NewServer(users Users, registry Registry, batches Batches, swaps Swaps, overrides Overrides, resolver Resolver, exporter Exporter, logger zerolog.Logger) *Server {
	return &Server{
		users:     users,
		registry:  registry,
		batches:   batches,
		swaps:     swaps,
		overrides: overrides,
		resolver:  resolver,
		exporter:  exporter,
		logger:    logger.With().Str("component", "api").Logger(),
	}
}

// Routes returns the API mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/users", s.handleCreateUser)
	mux.HandleFunc("GET /api/users/{id}", s.handleGetUser)

	mux.HandleFunc("GET /api/operators", s.handleListOperators)
	mux.HandleFunc("POST /api/operators", s.handleEnrollOperator)
	mux.HandleFunc("DELETE /api/operators/{id}", s.handleRemoveOperator)
	mux.HandleFunc("PUT /api/operators/order", s.handleReorderOperators)

	mux.HandleFunc("GET /api/escalation", s.handleListEscalation)
	mux.HandleFunc("POST /api/escalation", s.handleEnrollEscalation)
	mux.HandleFunc("DELETE /api/escalation/{id}", s.handleRemoveEscalation)
	mux.HandleFunc("PUT /api/escalation/order", s.handleReorderEscalation)

	mux.HandleFunc("POST /api/batches", s.handleGenerateBatch)
	mux.HandleFunc("GET /api/batches/pending", s.handleListPendingBatches)
	mux.HandleFunc("GET /api/batches/{id}", s.handleGetBatch)
	mux.HandleFunc("POST /api/batches/{id}/approve", s.handleApproveBatch)
	mux.HandleFunc("POST /api/batches/{id}/reject", s.handleRejectBatch)
	mux.HandleFunc("GET /api/batches/{id}/schedules", s.handleBatchSchedules)

	mux.HandleFunc("POST /api/swaps", s.handleCreateSwap)
	mux.HandleFunc("POST /api/swaps/{id}/approve", s.handleApproveSwap)
	mux.HandleFunc("POST /api/swaps/{id}/reject", s.handleRejectSwap)

	mux.HandleFunc("PUT /api/schedules/{id}/operator", s.handleUpdateSchedule)
	mux.HandleFunc("POST /api/overrides", s.handleCreateOverride)
	mux.HandleFunc("DELETE /api/overrides/{id}", s.handleRemoveOverride)

	mux.HandleFunc("GET /api/oncall", s.handleOnCall)
	mux.HandleFunc("GET /api/calendar", s.handleCalendar)
	mux.HandleFunc("GET /api/roster.xlsx", s.handleExport)

	return mux
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error().Err(err).Msg("encode response")
	}
}

// writeError maps the domain error taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrConflict):
		status = http.StatusConflict
	case errors.Is(err, domain.ErrForbidden):
		status = http.StatusForbidden
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	s.writeJSON(w, status, map[string]string{"error": err.Error()})
}

func decode[T any](r *http.Request) (T, error) {
	var v T
	err := json.NewDecoder(r.Body).Decode(&v)
	return v, err
}
