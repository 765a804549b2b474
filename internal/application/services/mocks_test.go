package services

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
	"github.com/styleatlas/catalog-annotation/internal/domain/providers"
	"github.com/styleatlas/catalog-annotation/internal/domain/repositories"
)

// Mocks shared by the service tests.

type MockBatchRepo struct {
	mock.Mock
}

func (m *MockBatchRepo) GetByID(ctx context.Context, id int64) (*entities.Batch, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Batch), args.Error(1)
}

type MockAssignmentRepo struct {
	mock.Mock
}

func (m *MockAssignmentRepo) GetByID(ctx context.Context, id int64) (*entities.Assignment, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Assignment), args.Error(1)
}

func (m *MockAssignmentRepo) ListByBatch(ctx context.Context, batchID int64, assignmentType entities.AssignmentType) ([]*entities.Assignment, error) {
	args := m.Called(ctx, batchID, assignmentType)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Assignment), args.Error(1)
}

func (m *MockAssignmentRepo) MarkPendingInProgress(ctx context.Context, batchID int64) (int64, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAssignmentRepo) UpdateStatus(ctx context.Context, id int64, status entities.AssignmentStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockAssignmentRepo) UpdateProgress(ctx context.Context, id int64, progress float64, status entities.AssignmentStatus) error {
	args := m.Called(ctx, id, progress, status)
	return args.Error(0)
}

func (m *MockAssignmentRepo) ResetForRetry(ctx context.Context, ids []int64) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAssignmentRepo) CancelByBatch(ctx context.Context, batchID int64) (int64, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockAssignmentRepo) ResetNonTerminalByBatch(ctx context.Context, batchID int64) (int64, error) {
	args := m.Called(ctx, batchID)
	return args.Get(0).(int64), args.Error(1)
}

type MockAssignmentItemRepo struct {
	mock.Mock
}

func (m *MockAssignmentItemRepo) ListPendingByAssignment(ctx context.Context, assignmentID int64) ([]*entities.AssignmentItem, error) {
	args := m.Called(ctx, assignmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.AssignmentItem), args.Error(1)
}

func (m *MockAssignmentItemRepo) ListByBatch(ctx context.Context, batchID int64) ([]*entities.AssignmentItem, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.AssignmentItem), args.Error(1)
}

func (m *MockAssignmentItemRepo) MarkInProgress(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAssignmentItemRepo) MarkDone(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockAssignmentItemRepo) SetStatus(ctx context.Context, id int64, status entities.ItemStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockAssignmentItemRepo) CountByAssignment(ctx context.Context, assignmentID int64) (repositories.ItemStatusCounts, error) {
	args := m.Called(ctx, assignmentID)
	return args.Get(0).(repositories.ItemStatusCounts), args.Error(1)
}

func (m *MockAssignmentItemRepo) FailNonDoneByAssignment(ctx context.Context, assignmentID int64) ([]int64, error) {
	args := m.Called(ctx, assignmentID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockAssignmentItemRepo) ResetFailedByAssignments(ctx context.Context, assignmentIDs []int64) ([]int64, error) {
	args := m.Called(ctx, assignmentIDs)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockAssignmentItemRepo) ResetNonTerminalByBatch(ctx context.Context, batchID int64) ([]int64, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockAssignmentItemRepo) ResetAllByBatch(ctx context.Context, batchID int64) ([]int64, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

type MockProcessingRunRepo struct {
	mock.Mock
}

func (m *MockProcessingRunRepo) Create(ctx context.Context, run *entities.ProcessingRun) error {
	args := m.Called(ctx, run)
	return args.Error(0)
}

func (m *MockProcessingRunRepo) MarkCompleted(ctx context.Context, id int64) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockProcessingRunRepo) MarkFailed(ctx context.Context, id int64, lastError string) error {
	args := m.Called(ctx, id, lastError)
	return args.Error(0)
}

func (m *MockProcessingRunRepo) ListByItem(ctx context.Context, assignmentItemID int64) ([]*entities.ProcessingRun, error) {
	args := m.Called(ctx, assignmentItemID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.ProcessingRun), args.Error(1)
}

type MockFailureLogRepo struct {
	mock.Mock
}

func (m *MockFailureLogRepo) Create(ctx context.Context, log *entities.FailureLog) error {
	args := m.Called(ctx, log)
	return args.Error(0)
}

func (m *MockFailureLogRepo) ListUnresolvedAssignmentIDs(ctx context.Context, batchID int64) ([]int64, error) {
	args := m.Called(ctx, batchID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]int64), args.Error(1)
}

func (m *MockFailureLogRepo) ResolveByAssignments(ctx context.Context, assignmentIDs []int64) (int64, error) {
	args := m.Called(ctx, assignmentIDs)
	return args.Get(0).(int64), args.Error(1)
}

type MockAnnotationRepo struct {
	mock.Mock
}

func (m *MockAnnotationRepo) Upsert(ctx context.Context, annotation *entities.Annotation) error {
	args := m.Called(ctx, annotation)
	return args.Error(0)
}

type MockProductRepo struct {
	mock.Mock
}

func (m *MockProductRepo) GetByID(ctx context.Context, id int64) (*entities.Product, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Product), args.Error(1)
}

func (m *MockProductRepo) UpdateStatus(ctx context.Context, id int64, status entities.ProcessingStatus) error {
	args := m.Called(ctx, id, status)
	return args.Error(0)
}

func (m *MockProductRepo) MarkFailedIfProcessing(ctx context.Context, ids []int64) (int64, error) {
	args := m.Called(ctx, ids)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProductRepo) BulkSetStatusExcluding(ctx context.Context, ids []int64, excluded []entities.ProcessingStatus, to entities.ProcessingStatus) (int64, error) {
	args := m.Called(ctx, ids, excluded, to)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockProductRepo) BulkSetStatus(ctx context.Context, ids []int64, to entities.ProcessingStatus) (int64, error) {
	args := m.Called(ctx, ids, to)
	return args.Get(0).(int64), args.Error(1)
}

type MockProviderRepo struct {
	mock.Mock
}

func (m *MockProviderRepo) GetActiveByID(ctx context.Context, id int64) (*entities.Provider, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.Provider), args.Error(1)
}

type MockAttributeRepo struct {
	mock.Mock
}

func (m *MockAttributeRepo) ListForSubclass(ctx context.Context, subclassID *int64) ([]*entities.Attribute, error) {
	args := m.Called(ctx, subclassID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*entities.Attribute), args.Error(1)
}

type MockControlRepo struct {
	mock.Mock
}

func (m *MockControlRepo) Get(ctx context.Context) (*entities.ProcessingControl, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entities.ProcessingControl), args.Error(1)
}

func (m *MockControlRepo) SetPaused(ctx context.Context, paused bool, by string) error {
	args := m.Called(ctx, paused, by)
	return args.Error(0)
}

type MockAnnotator struct {
	mock.Mock
}

func (m *MockAnnotator) Annotate(ctx context.Context, payload providers.ProductPayload, attributes []providers.AttributeSpec) (map[string]string, error) {
	args := m.Called(ctx, payload, attributes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]string), args.Error(1)
}

type MockAnnotatorFactory struct {
	mock.Mock
}

func (m *MockAnnotatorFactory) ForProvider(provider *entities.Provider) (providers.Annotator, error) {
	args := m.Called(provider)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(providers.Annotator), args.Error(1)
}

type MockEventBus struct {
	mock.Mock
}

func (m *MockEventBus) Publish(ctx context.Context, channel string, event *entities.BatchEvent) error {
	args := m.Called(ctx, channel, event)
	return args.Error(0)
}

func (m *MockEventBus) Subscribe(ctx context.Context, channel string) (<-chan *entities.BatchEvent, error) {
	args := m.Called(ctx, channel)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(<-chan *entities.BatchEvent), args.Error(1)
}

func (m *MockEventBus) Unsubscribe(ctx context.Context, channel string) error {
	args := m.Called(ctx, channel)
	return args.Error(0)
}

func (m *MockEventBus) Close() error {
	args := m.Called()
	return args.Error(0)
}

// unpausedControl wires a control repo that always reads unpaused.
func unpausedControl() *MockControlRepo {
	control := new(MockControlRepo)
	control.On("Get", mock.Anything).Return(&entities.ProcessingControl{ID: 1, IsPaused: false}, nil)
	return control
}

// pausedControl wires a control repo that always reads paused.
func pausedControl() *MockControlRepo {
	control := new(MockControlRepo)
	control.On("Get", mock.Anything).Return(&entities.ProcessingControl{ID: 1, IsPaused: true}, nil)
	return control
}
