package registry

import (
	"context"
	"database/sql"
	"io"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"dutyroster/internal/domain"
	"dutyroster/internal/models"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) ListOperators(ctx context.Context) ([]models.Operator, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.Operator), args.Error(1)
}

func (m *mockStore) GetOperatorByUserID(ctx context.Context, userID int64) (*models.Operator, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Operator), args.Error(1)
}

func (m *mockStore) InsertOperator(ctx context.Context, op *models.Operator) error {
	args := m.Called(ctx, op)
	op.ID = 1
	op.Position = 3
	return args.Error(0)
}

func (m *mockStore) DeleteOperatorAndCompact(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) UpdateOperatorPositions(ctx context.Context, entries []models.ReorderEntry) error {
	return m.Called(ctx, entries).Error(0)
}

func (m *mockStore) ListEscalationMembers(ctx context.Context) ([]models.EscalationMember, error) {
	args := m.Called(ctx)
	return args.Get(0).([]models.EscalationMember), args.Error(1)
}

func (m *mockStore) InsertEscalationMember(ctx context.Context, em *models.EscalationMember) error {
	args := m.Called(ctx, em)
	em.ID = 1
	em.Position = 1
	return args.Error(0)
}

func (m *mockStore) DeleteEscalationMemberAndCompact(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockStore) UpdateEscalationPositions(ctx context.Context, entries []models.ReorderEntry) error {
	return m.Called(ctx, entries).Error(0)
}

func newService(store *mockStore) *Service {
	return NewService(store, zerolog.New(io.Discard))
}

func TestEnrollPicksPaletteColor(t *testing.T) {
	store := new(mockStore)
	svc := newService(store)
	ctx := context.Background()

	store.On("GetOperatorByUserID", ctx, int64(5)).Return(nil, sql.ErrNoRows)
	store.On("ListOperators", ctx).Return([]models.Operator{{}, {}}, nil)
	store.On("InsertOperator", ctx, mock.Anything).Return(nil)

	op, err := svc.Enroll(ctx, 5, "", "555-1234")
	assert.NoError(t, err)
	assert.Equal(t, Palette[2], op.Color, "third enrollment gets the third palette color")
	assert.True(t, op.Active)
}

func TestEnrollExplicitColorSkipsPalette(t *testing.T) {
	store := new(mockStore)
	svc := newService(store)
	ctx := context.Background()

	store.On("GetOperatorByUserID", ctx, int64(5)).Return(nil, sql.ErrNoRows)
	store.On("InsertOperator", ctx, mock.Anything).Return(nil)

	op, err := svc.Enroll(ctx, 5, "#ABCDEF", "")
	assert.NoError(t, err)
	assert.Equal(t, "#ABCDEF", op.Color)
	store.AssertNotCalled(t, "ListOperators", mock.Anything)
}

func TestEnrollDuplicateFails(t *testing.T) {
	store := new(mockStore)
	svc := newService(store)
	ctx := context.Background()

	store.On("GetOperatorByUserID", ctx, int64(5)).Return(&models.Operator{ID: 1, UserID: 5}, nil)

	_, err := svc.Enroll(ctx, 5, "", "")
	assert.ErrorIs(t, err, domain.ErrConflict)
	store.AssertNotCalled(t, "InsertOperator", mock.Anything, mock.Anything)
}

func TestRemoveMissingOperator(t *testing.T) {
	store := new(mockStore)
	svc := newService(store)
	ctx := context.Background()

	store.On("DeleteOperatorAndCompact", ctx, int64(9)).Return(sql.ErrNoRows)

	err := svc.Remove(ctx, 9)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestReorderWritesVerbatim(t *testing.T) {
	store := new(mockStore)
	svc := newService(store)
	ctx := context.Background()

	// Gaps are caller intent, passed through untouched.
	entries := []models.ReorderEntry{{ID: 1, Position: 10}, {ID: 2, Position: 20}}
	store.On("UpdateOperatorPositions", ctx, entries).Return(nil)

	assert.NoError(t, svc.Reorder(ctx, entries))
	store.AssertExpectations(t)
}

func TestReorderEmpty(t *testing.T) {
	svc := newService(new(mockStore))
	err := svc.Reorder(context.Background(), nil)
	assert.ErrorIs(t, err, domain.ErrValidation)
}

func TestEnrollEscalationDuplicate(t *testing.T) {
	store := new(mockStore)
	svc := newService(store)
	ctx := context.Background()

	store.On("ListEscalationMembers", ctx).Return([]models.EscalationMember{{UserID: 8}}, nil)

	_, err := svc.EnrollEscalation(ctx, 8, "", "")
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestColorForFallsBack(t *testing.T) {
	store := new(mockStore)
	svc := newService(store)
	ctx := context.Background()

	store.On("GetOperatorByUserID", ctx, int64(99)).Return(nil, sql.ErrNoRows)
	assert.Equal(t, FallbackColor, svc.ColorFor(ctx, 99))

	store.On("GetOperatorByUserID", ctx, int64(1)).Return(&models.Operator{Color: "#112233"}, nil)
	assert.Equal(t, "#112233", svc.ColorFor(ctx, 1))
}
