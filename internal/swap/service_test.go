package swap

import (
	"context"
	"database/sql"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"dutyroster/internal/domain"
	"dutyroster/internal/models"
	"dutyroster/internal/notify"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) GetSchedule(ctx context.Context, id int64) (*models.Schedule, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Schedule), args.Error(1)
}

func (m *mockStore) GetOperatorByUserID(ctx context.Context, userID int64) (*models.Operator, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Operator), args.Error(1)
}

func (m *mockStore) HasPendingSwapForSchedule(ctx context.Context, scheduleID int64) (bool, error) {
	args := m.Called(ctx, scheduleID)
	return args.Bool(0), args.Error(1)
}

func (m *mockStore) CreateSwapRequest(ctx context.Context, r *models.SwapRequest) error {
	args := m.Called(ctx, r)
	r.ID = 31
	return args.Error(0)
}

func (m *mockStore) GetSwapRequest(ctx context.Context, id int64) (*models.SwapRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.SwapRequest), args.Error(1)
}

func (m *mockStore) ApproveSwap(ctx context.Context, r *models.SwapRequest, approverID int64, respondedAt time.Time) error {
	return m.Called(ctx, r, approverID, respondedAt).Error(0)
}

func (m *mockStore) RejectSwap(ctx context.Context, id int64, reason string, respondedAt time.Time) error {
	return m.Called(ctx, id, reason, respondedAt).Error(0)
}

type mockAuthorizer struct {
	mock.Mock
}

func (m *mockAuthorizer) IsEscalationMember(ctx context.Context, userID int64) (bool, error) {
	args := m.Called(ctx, userID)
	return args.Bool(0), args.Error(1)
}

func (m *mockAuthorizer) CanApproveBatch(ctx context.Context, userID int64, cfg models.WorkflowConfig) (bool, error) {
	args := m.Called(ctx, userID, cfg)
	return args.Bool(0), args.Error(1)
}

func (m *mockAuthorizer) CanDecideSwap(ctx context.Context, userID, targetID int64) (bool, error) {
	args := m.Called(ctx, userID, targetID)
	return args.Bool(0), args.Error(1)
}

type mockNotifier struct {
	mock.Mock
}

func (m *mockNotifier) Notify(ctx context.Context, event notify.Event, recipients []int64, payload map[string]string) error {
	return m.Called(ctx, event, recipients, payload).Error(0)
}

func futureWeek(owner int64, daysAhead int) *models.Schedule {
	start := time.Now().AddDate(0, 0, daysAhead)
	return &models.Schedule{
		ID:        50,
		UserID:    owner,
		WeekStart: start,
		WeekEnd:   start.AddDate(0, 0, 7),
	}
}

func newService(store *mockStore, authz *mockAuthorizer, notifier *mockNotifier) *Service {
	cfg := models.DefaultWorkflowConfig()
	return NewService(store, authz, notifier, cfg, zerolog.New(io.Discard))
}

func TestCreateSwapRequest(t *testing.T) {
	store := new(mockStore)
	notifier := new(mockNotifier)
	svc := newService(store, new(mockAuthorizer), notifier)
	ctx := context.Background()

	store.On("GetSchedule", ctx, int64(50)).Return(futureWeek(10, 10), nil)
	store.On("GetOperatorByUserID", ctx, int64(20)).Return(&models.Operator{UserID: 20, Active: true}, nil)
	store.On("HasPendingSwapForSchedule", ctx, int64(50)).Return(false, nil)
	store.On("CreateSwapRequest", ctx, mock.Anything).Return(nil)
	notifier.On("Notify", ctx, notify.EventSwapRequested, []int64{20}, mock.Anything).Return(nil)

	req, err := svc.Create(ctx, CreateParams{RequesterID: 10, ScheduleID: 50, TargetUserID: 20})
	require.NoError(t, err)
	assert.Equal(t, models.SwapPending, req.Status)
	notifier.AssertExpectations(t)
}

func TestCreateRequesterMustOwnWeek(t *testing.T) {
	store := new(mockStore)
	svc := newService(store, new(mockAuthorizer), new(mockNotifier))
	ctx := context.Background()

	store.On("GetSchedule", ctx, int64(50)).Return(futureWeek(99, 10), nil)

	_, err := svc.Create(ctx, CreateParams{RequesterID: 10, ScheduleID: 50, TargetUserID: 20})
	assert.ErrorIs(t, err, domain.ErrForbidden)
}

func TestCreatePastWeek(t *testing.T) {
	store := new(mockStore)
	svc := newService(store, new(mockAuthorizer), new(mockNotifier))
	ctx := context.Background()

	store.On("GetSchedule", ctx, int64(50)).Return(futureWeek(10, -20), nil)

	_, err := svc.Create(ctx, CreateParams{RequesterID: 10, ScheduleID: 50, TargetUserID: 20})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateBelowAdvanceNotice(t *testing.T) {
	store := new(mockStore)
	svc := newService(store, new(mockAuthorizer), new(mockNotifier))
	ctx := context.Background()

	// Week starts in 3 days, threshold is 7.
	store.On("GetSchedule", ctx, int64(50)).Return(futureWeek(10, 3), nil)

	_, err := svc.Create(ctx, CreateParams{RequesterID: 10, ScheduleID: 50, TargetUserID: 20})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateInactiveTarget(t *testing.T) {
	store := new(mockStore)
	svc := newService(store, new(mockAuthorizer), new(mockNotifier))
	ctx := context.Background()

	store.On("GetSchedule", ctx, int64(50)).Return(futureWeek(10, 10), nil)
	store.On("GetOperatorByUserID", ctx, int64(20)).Return(&models.Operator{UserID: 20, Active: false}, nil)

	_, err := svc.Create(ctx, CreateParams{RequesterID: 10, ScheduleID: 50, TargetUserID: 20})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestCreateDuplicatePending(t *testing.T) {
	store := new(mockStore)
	svc := newService(store, new(mockAuthorizer), new(mockNotifier))
	ctx := context.Background()

	store.On("GetSchedule", ctx, int64(50)).Return(futureWeek(10, 10), nil)
	store.On("GetOperatorByUserID", ctx, int64(20)).Return(&models.Operator{UserID: 20, Active: true}, nil)
	store.On("HasPendingSwapForSchedule", ctx, int64(50)).Return(true, nil)

	_, err := svc.Create(ctx, CreateParams{RequesterID: 10, ScheduleID: 50, TargetUserID: 20})
	assert.ErrorIs(t, err, domain.ErrConflict)
	store.AssertNotCalled(t, "CreateSwapRequest", mock.Anything, mock.Anything)
}

func TestCreateExchangeMustBelongToTarget(t *testing.T) {
	store := new(mockStore)
	svc := newService(store, new(mockAuthorizer), new(mockNotifier))
	ctx := context.Background()

	exchangeID := int64(51)
	store.On("GetSchedule", ctx, int64(50)).Return(futureWeek(10, 10), nil)
	store.On("GetOperatorByUserID", ctx, int64(20)).Return(&models.Operator{UserID: 20, Active: true}, nil)
	other := futureWeek(77, 17)
	other.ID = exchangeID
	store.On("GetSchedule", ctx, exchangeID).Return(other, nil)

	_, err := svc.Create(ctx, CreateParams{
		RequesterID: 10, ScheduleID: 50, TargetUserID: 20, ExchangeScheduleID: &exchangeID,
	})
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func pendingRequest() *models.SwapRequest {
	return &models.SwapRequest{
		ID:          31,
		ScheduleID:  50,
		RequesterID: 10,
		TargetID:    20,
		Status:      models.SwapPending,
	}
}

func TestApproveByTarget(t *testing.T) {
	store := new(mockStore)
	authz := new(mockAuthorizer)
	notifier := new(mockNotifier)
	svc := newService(store, authz, notifier)
	ctx := context.Background()

	store.On("GetSwapRequest", ctx, int64(31)).Return(pendingRequest(), nil)
	authz.On("CanDecideSwap", ctx, int64(20), int64(20)).Return(true, nil)
	store.On("ApproveSwap", ctx, mock.Anything, int64(20), mock.Anything).Return(nil)
	store.On("GetSchedule", ctx, int64(50)).Return(futureWeek(10, 10), nil)
	notifier.On("Notify", ctx, notify.EventSwapApproved, []int64{10}, mock.Anything).Return(nil)

	req, err := svc.Approve(ctx, 31, 20)
	require.NoError(t, err)
	assert.Equal(t, models.SwapApproved, req.Status)
	assert.NotNil(t, req.RespondedAt)
}

func TestApproveByOutsiderForbidden(t *testing.T) {
	store := new(mockStore)
	authz := new(mockAuthorizer)
	svc := newService(store, authz, new(mockNotifier))
	ctx := context.Background()

	store.On("GetSwapRequest", ctx, int64(31)).Return(pendingRequest(), nil)
	authz.On("CanDecideSwap", ctx, int64(30), int64(20)).Return(false, nil)

	_, err := svc.Approve(ctx, 31, 30)
	assert.ErrorIs(t, err, domain.ErrForbidden)
	store.AssertNotCalled(t, "ApproveSwap", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestApproveDecidedRequest(t *testing.T) {
	store := new(mockStore)
	svc := newService(store, new(mockAuthorizer), new(mockNotifier))
	ctx := context.Background()

	decided := pendingRequest()
	decided.Status = models.SwapApproved
	store.On("GetSwapRequest", ctx, int64(31)).Return(decided, nil)

	_, err := svc.Approve(ctx, 31, 20)
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestRejectNotifiesRequester(t *testing.T) {
	store := new(mockStore)
	authz := new(mockAuthorizer)
	notifier := new(mockNotifier)
	svc := newService(store, authz, notifier)
	ctx := context.Background()

	week := futureWeek(10, 10)
	store.On("GetSwapRequest", ctx, int64(31)).Return(pendingRequest(), nil)
	authz.On("CanDecideSwap", ctx, int64(20), int64(20)).Return(true, nil)
	store.On("RejectSwap", ctx, int64(31), "on holiday", mock.Anything).Return(nil)
	store.On("GetSchedule", ctx, int64(50)).Return(week, nil)

	wantWeek := week.WeekStart.Format("2006-01-02")
	notifier.On("Notify", ctx, notify.EventSwapRejected, []int64{10},
		mock.MatchedBy(func(p map[string]string) bool {
			return p["week_start"] == wantWeek && p["reason"] == "on holiday"
		})).Return(nil)

	req, err := svc.Reject(ctx, 31, 20, "on holiday")
	require.NoError(t, err)
	assert.Equal(t, models.SwapRejected, req.Status)
	assert.Equal(t, "on holiday", req.RejectReason)
	notifier.AssertExpectations(t)
}

type mockInvalidator struct {
	mock.Mock
}

func (m *mockInvalidator) InvalidateCache(ctx context.Context) {
	m.Called(ctx)
}

func TestApproveDropsResolutionCache(t *testing.T) {
	store := new(mockStore)
	authz := new(mockAuthorizer)
	notifier := new(mockNotifier)
	inv := new(mockInvalidator)
	svc := newService(store, authz, notifier)
	svc.SetCacheInvalidator(inv)
	ctx := context.Background()

	store.On("GetSwapRequest", ctx, int64(31)).Return(pendingRequest(), nil)
	authz.On("CanDecideSwap", ctx, int64(20), int64(20)).Return(true, nil)
	store.On("ApproveSwap", ctx, mock.Anything, int64(20), mock.Anything).Return(nil)
	store.On("GetSchedule", ctx, int64(50)).Return(futureWeek(10, 10), nil)
	notifier.On("Notify", ctx, notify.EventSwapApproved, []int64{10}, mock.Anything).Return(nil)
	inv.On("InvalidateCache", ctx).Return()

	_, err := svc.Approve(ctx, 31, 20)
	require.NoError(t, err)
	inv.AssertExpectations(t)
}

func TestRequestNotFound(t *testing.T) {
	store := new(mockStore)
	svc := newService(store, new(mockAuthorizer), new(mockNotifier))
	ctx := context.Background()

	store.On("GetSwapRequest", ctx, int64(99)).Return(nil, sql.ErrNoRows)

	_, err := svc.Approve(ctx, 99, 20)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
