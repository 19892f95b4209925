// Package batch implements the two-phase rotation generation workflow:
// plan now, materialize immediately or only after approval.
package batch

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"dutyroster/internal/auth"
	"dutyroster/internal/database"
	"dutyroster/internal/domain"
	"dutyroster/internal/metrics"
	"dutyroster/internal/models"
	"dutyroster/internal/notify"
	"dutyroster/internal/rotation"
)

// Store is the persistence surface of the batch workflow.
type Store interface {
	ListActiveOperators(ctx context.Context) ([]models.Operator, error)
	CreateBatch(ctx context.Context, batch *models.ScheduleBatch) error
	CreateApprovedBatch(ctx context.Context, batch *models.ScheduleBatch, schedules []models.Schedule) error
	GetBatch(ctx context.Context, id int64) (*models.ScheduleBatch, error)
	ListPendingBatches(ctx context.Context) ([]models.ScheduleBatch, error)
	GetSchedulesByBatch(ctx context.Context, batchID int64) ([]models.Schedule, error)
	ApproveBatch(ctx context.Context, batch *models.ScheduleBatch, approverID int64, decidedAt time.Time, schedules []models.Schedule) error
	RejectBatch(ctx context.Context, batchID, rejecterID int64, reason string, decidedAt time.Time) error
}

// Publisher pushes a materialized roster to an external surface, such
// as a shared spreadsheet.
type Publisher interface {
	PublishBatch(ctx context.Context, batch *models.ScheduleBatch, schedules []models.Schedule) error
}

// CacheInvalidator drops cached on-call resolutions after a mutation.
type CacheInvalidator interface {
	InvalidateCache(ctx context.Context)
}

// Service runs the batch state machine.
type Service struct {
	store     Store
	authz     auth.Authorizer
	notifier  notify.Notifier
	publisher Publisher
	cache     CacheInvalidator
	cfg       models.WorkflowConfig
	logger    zerolog.Logger
}

func NewService(store Store, authz auth.Authorizer, notifier notify.Notifier, cfg models.WorkflowConfig, logger zerolog.Logger) *Service {
	return &Service{
		store:    store,
		authz:    authz,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger.With().Str("component", "batch").Logger(),
	}
}

// SetPublisher enables roster publishing after materialization.
// Publish failures are logged, never fatal to the workflow.
func (s *Service) SetPublisher(p Publisher) {
	s.publisher = p
}

// SetCacheInvalidator hooks up resolution-cache invalidation.
func (s *Service) SetCacheInvalidator(c CacheInvalidator) {
	s.cache = c
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache != nil {
		s.cache.InvalidateCache(ctx)
	}
}

func (s *Service) publish(ctx context.Context, batch *models.ScheduleBatch, schedules []models.Schedule) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishBatch(ctx, batch, schedules); err != nil {
		s.logger.Error().Err(err).Int64("batch_id", batch.ID).Msg("roster publish failed")
	}
}

// Generate plans a rotation of weekCount weeks from startDate. When
// approval is not required (or no approver is configured) the batch is
// created approved and its schedules are materialized in the same
// write; otherwise it is persisted pending with only the plan, and the
// approver is notified.
func (s *Service) Generate(ctx context.Context, startDate time.Time, weekCount int, generatedBy int64) (*models.ScheduleBatch, error) {
	pool, err := s.store.ListActiveOperators(ctx)
	if err != nil {
		return nil, fmt.Errorf("load operator pool: %w", err)
	}
	ids := make([]int64, 0, len(pool))
	for _, op := range pool {
		ids = append(ids, op.UserID)
	}

	plan, err := rotation.Plan(startDate, weekCount, ids, 0)
	if err != nil {
		return nil, err
	}

	batch := &models.ScheduleBatch{
		StartDate:   plan.StartDate,
		EndDate:     rotation.PlanEnd(plan),
		WeekCount:   weekCount,
		Plan:        plan,
		GeneratedBy: generatedBy,
	}

	if !s.cfg.RequireApproval || s.cfg.ApproverID == 0 {
		now := time.Now()
		batch.Status = models.BatchApproved
		batch.ApprovedBy = &generatedBy
		batch.DecidedAt = &now

		schedules := rotation.Materialize(plan, 0)
		if err := s.store.CreateApprovedBatch(ctx, batch, schedules); err != nil {
			return nil, fmt.Errorf("create approved batch: %w", err)
		}
		metrics.IncBatchGenerated("approved")
		s.invalidate(ctx)

		s.logger.Info().
			Int64("batch_id", batch.ID).
			Time("start", batch.StartDate).
			Int("weeks", weekCount).
			Msg("rotation generated and materialized")

		s.notifyOperators(ctx, notify.EventScheduleGenerated, plan, batch)
		s.publish(ctx, batch, schedules)
		return batch, nil
	}

	batch.Status = models.BatchPendingApproval
	if err := s.store.CreateBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("create pending batch: %w", err)
	}
	metrics.IncBatchGenerated("pending_approval")

	s.logger.Info().
		Int64("batch_id", batch.ID).
		Int64("approver_id", s.cfg.ApproverID).
		Msg("rotation planned, awaiting approval")

	if err := s.notifier.Notify(ctx, notify.EventBatchPendingApproval, []int64{s.cfg.ApproverID}, map[string]string{
		"start_date": batch.StartDate.Format("2006-01-02"),
		"week_count": fmt.Sprintf("%d", weekCount),
	}); err != nil {
		s.logger.Error().Err(err).Msg("pending approval notification failed")
	}
	return batch, nil
}

// Approve materializes a pending batch. Existing schedules starting on
// or after the batch start are replaced, so an interrupted approval can
// be retried without leaving overlapping weeks.
func (s *Service) Approve(ctx context.Context, batchID, approverID int64) (*models.ScheduleBatch, error) {
	batch, err := s.getBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != models.BatchPendingApproval {
		return nil, domain.Conflictf("batch %d is %s, not pending approval", batchID, batch.Status)
	}

	allowed, err := s.authz.CanApproveBatch(ctx, approverID, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("authorize approval: %w", err)
	}
	if !allowed {
		return nil, domain.Forbiddenf("user %d cannot approve batch %d", approverID, batchID)
	}

	now := time.Now()
	schedules := rotation.Materialize(batch.Plan, batch.ID)
	if err := s.store.ApproveBatch(ctx, batch, approverID, now, schedules); err != nil {
		if errors.Is(err, database.ErrStaleState) {
			return nil, domain.Conflictf("batch %d already decided", batchID)
		}
		return nil, fmt.Errorf("approve batch: %w", err)
	}

	batch.Status = models.BatchApproved
	batch.ApprovedBy = &approverID
	batch.DecidedAt = &now
	metrics.IncBatchDecision("approved")
	s.invalidate(ctx)

	s.logger.Info().
		Int64("batch_id", batchID).
		Int64("approver_id", approverID).
		Msg("batch approved")

	s.notifyOperators(ctx, notify.EventScheduleGenerated, batch.Plan, batch)
	s.publish(ctx, batch, schedules)
	return batch, nil
}

// Reject declines a pending batch. No schedule rows exist and none are
// created.
func (s *Service) Reject(ctx context.Context, batchID, rejecterID int64, reason string) (*models.ScheduleBatch, error) {
	batch, err := s.getBatch(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if batch.Status != models.BatchPendingApproval {
		return nil, domain.Conflictf("batch %d is %s, not pending approval", batchID, batch.Status)
	}

	allowed, err := s.authz.CanApproveBatch(ctx, rejecterID, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("authorize rejection: %w", err)
	}
	if !allowed {
		return nil, domain.Forbiddenf("user %d cannot reject batch %d", rejecterID, batchID)
	}

	now := time.Now()
	if err := s.store.RejectBatch(ctx, batchID, rejecterID, reason, now); err != nil {
		if errors.Is(err, database.ErrStaleState) {
			return nil, domain.Conflictf("batch %d already decided", batchID)
		}
		return nil, fmt.Errorf("reject batch: %w", err)
	}

	batch.Status = models.BatchRejected
	batch.ApprovedBy = &rejecterID
	batch.DecidedAt = &now
	batch.RejectReason = reason
	metrics.IncBatchDecision("rejected")

	s.logger.Info().
		Int64("batch_id", batchID).
		Int64("rejecter_id", rejecterID).
		Str("reason", reason).
		Msg("batch rejected")

	if err := s.notifier.Notify(ctx, notify.EventBatchRejected, []int64{batch.GeneratedBy}, map[string]string{
		"start_date": batch.StartDate.Format("2006-01-02"),
		"reason":     reason,
	}); err != nil {
		s.logger.Error().Err(err).Msg("rejection notification failed")
	}
	return batch, nil
}

// Get returns a batch by id.
func (s *Service) Get(ctx context.Context, batchID int64) (*models.ScheduleBatch, error) {
	return s.getBatch(ctx, batchID)
}

// Schedules returns the weeks materialized from a batch. Pending and
// rejected batches have none.
func (s *Service) Schedules(ctx context.Context, batchID int64) ([]models.Schedule, error) {
	if _, err := s.getBatch(ctx, batchID); err != nil {
		return nil, err
	}
	schedules, err := s.store.GetSchedulesByBatch(ctx, batchID)
	if err != nil {
		return nil, fmt.Errorf("load batch schedules: %w", err)
	}
	return schedules, nil
}

// ListPending returns batches still awaiting a decision.
func (s *Service) ListPending(ctx context.Context) ([]models.ScheduleBatch, error) {
	batches, err := s.store.ListPendingBatches(ctx)
	if err != nil {
		return nil, fmt.Errorf("list pending batches: %w", err)
	}
	return batches, nil
}

func (s *Service) getBatch(ctx context.Context, batchID int64) (*models.ScheduleBatch, error) {
	batch, err := s.store.GetBatch(ctx, batchID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.NotFoundf("batch %d", batchID)
		}
		return nil, fmt.Errorf("load batch: %w", err)
	}
	return batch, nil
}

func (s *Service) notifyOperators(ctx context.Context, event notify.Event, plan models.RotationPlan, batch *models.ScheduleBatch) {
	seen := make(map[int64]bool, len(plan.OperatorIDs))
	recipients := make([]int64, 0, len(plan.OperatorIDs))
	for _, id := range plan.OperatorIDs {
		if !seen[id] {
			seen[id] = true
			recipients = append(recipients, id)
		}
	}
	if err := s.notifier.Notify(ctx, event, recipients, map[string]string{
		"start_date": batch.StartDate.Format("2006-01-02"),
	}); err != nil {
		s.logger.Error().Err(err).Str("event", string(event)).Msg("operator notification failed")
	}
}
