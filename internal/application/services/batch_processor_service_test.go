package services

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
	"github.com/styleatlas/catalog-annotation/internal/domain/providers"
	"github.com/styleatlas/catalog-annotation/internal/domain/repositories"
	apperrors "github.com/styleatlas/catalog-annotation/pkg/errors"
)

// stubItemRunner returns a scripted outcome per item id and records which
// items it saw and with what settings.
type stubItemRunner struct {
	mu           sync.Mutex
	outcomes     map[int64]ItemOutcome
	seen         []int64
	lastSettings entities.ProviderSettings
}

func (s *stubItemRunner) ProcessItem(
	_ context.Context,
	item *entities.AssignmentItem,
	_ *entities.Provider,
	settings entities.ProviderSettings,
	_ providers.Annotator,
	_ time.Duration,
) ItemOutcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seen = append(s.seen, item.ID)
	s.lastSettings = settings
	if outcome, ok := s.outcomes[item.ID]; ok {
		return outcome
	}
	return ItemOutcomeDone
}

type batchProcessorFixture struct {
	batches      *MockBatchRepo
	assignments  *MockAssignmentRepo
	items        *MockAssignmentItemRepo
	providerRepo *MockProviderRepo
	products     *MockProductRepo
	failures     *MockFailureLogRepo
	control      *MockControlRepo
	factory      *MockAnnotatorFactory
	runner       *stubItemRunner

	processor *BatchProcessor
}

func newBatchProcessorFixture(control *MockControlRepo) *batchProcessorFixture {
	f := &batchProcessorFixture{
		batches:      new(MockBatchRepo),
		assignments:  new(MockAssignmentRepo),
		items:        new(MockAssignmentItemRepo),
		providerRepo: new(MockProviderRepo),
		products:     new(MockProductRepo),
		failures:     new(MockFailureLogRepo),
		control:      control,
		factory:      new(MockAnnotatorFactory),
		runner:       &stubItemRunner{outcomes: map[int64]ItemOutcome{}},
	}
	f.processor = NewBatchProcessor(
		f.batches, f.assignments, f.items, f.providerRepo, f.products,
		f.failures, f.control, f.runner, f.factory, nil,
	)
	return f
}

func activeProvider(id int64) *entities.Provider {
	return &entities.Provider{
		ID:          id,
		Name:        "OpenAI",
		ServiceName: "openai",
		ModelName:   "gpt-4o-mini",
		IsActive:    true,
		Config:      json.RawMessage(`{"api_key": "sk-test", "max_retries": 2, "max_threads": 2}`),
	}
}

func batchAssignment(id, batchID, providerID int64) *entities.Assignment {
	return &entities.Assignment{
		ID:         id,
		BatchID:    batchID,
		Type:       entities.AssignmentTypeAI,
		ProviderID: providerID,
		Status:     entities.AssignmentPending,
	}
}

func assignmentItem(id, assignmentID, batchItemID, productID int64, status entities.ItemStatus) *entities.AssignmentItem {
	return &entities.AssignmentItem{
		ID:           id,
		AssignmentID: assignmentID,
		BatchItemID:  batchItemID,
		ProductID:    productID,
		Status:       status,
	}
}

func (f *batchProcessorFixture) expectBatch(batchID int64, assignments ...*entities.Assignment) {
	f.batches.On("GetByID", mock.Anything, batchID).
		Return(&entities.Batch{ID: batchID, Name: "spring refresh", BatchType: entities.BatchTypeAI}, nil)
	f.assignments.On("ListByBatch", mock.Anything, batchID, entities.AssignmentTypeAI).
		Return(assignments, nil)
	f.assignments.On("MarkPendingInProgress", mock.Anything, batchID).Return(int64(len(assignments)), nil)
}

func TestRunBatchProcessesAllItems(t *testing.T) {
	f := newBatchProcessorFixture(unpausedControl())
	assignment := batchAssignment(5, 1, 7)
	f.expectBatch(1, assignment)

	f.providerRepo.On("GetActiveByID", mock.Anything, int64(7)).Return(activeProvider(7), nil)
	f.factory.On("ForProvider", mock.Anything).Return(new(MockAnnotator), nil)

	pending := []*entities.AssignmentItem{
		assignmentItem(11, 5, 21, 31, entities.ItemPendingAI),
		assignmentItem(12, 5, 22, 32, entities.ItemPendingAI),
	}
	f.items.On("ListPendingByAssignment", mock.Anything, int64(5)).Return(pending, nil)
	f.items.On("CountByAssignment", mock.Anything, int64(5)).
		Return(repositories.ItemStatusCounts{Total: 2, Completed: 2}, nil)
	f.assignments.On("UpdateProgress", mock.Anything, int64(5), 100.0, entities.AssignmentCompleted).Return(nil)

	doneItems := []*entities.AssignmentItem{
		assignmentItem(11, 5, 21, 31, entities.ItemAIDone),
		assignmentItem(12, 5, 22, 32, entities.ItemAIDone),
	}
	f.items.On("ListByBatch", mock.Anything, int64(1)).Return(doneItems, nil)
	f.products.On("MarkFailedIfProcessing", mock.Anything, mock.Anything).Return(int64(0), nil)
	f.products.On("BulkSetStatusExcluding", mock.Anything, mock.Anything, mock.Anything, entities.ProcessingAIDone).
		Return(int64(2), nil)

	results, err := f.processor.RunBatch(context.Background(), 1)

	assert.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 2, results[0].Completed)
	assert.Equal(t, 0, results[0].Failed)
	assert.ElementsMatch(t, []int64{11, 12}, f.runner.seen)
}

func TestRunBatchIsolatesConfigFailure(t *testing.T) {
	f := newBatchProcessorFixture(unpausedControl())
	broken := batchAssignment(5, 1, 7)
	healthy := batchAssignment(6, 1, 8)
	f.expectBatch(1, broken, healthy)

	// Provider 7 is missing; provider 8 works.
	f.providerRepo.On("GetActiveByID", mock.Anything, int64(7)).
		Return(nil, apperrors.NewNotFoundError("active AI provider 7 not found"))
	f.providerRepo.On("GetActiveByID", mock.Anything, int64(8)).Return(activeProvider(8), nil)
	f.factory.On("ForProvider", mock.Anything).Return(new(MockAnnotator), nil)

	f.items.On("ListPendingByAssignment", mock.Anything, int64(5)).
		Return([]*entities.AssignmentItem{assignmentItem(11, 5, 21, 31, entities.ItemPendingAI)}, nil)
	f.failures.On("Create", mock.Anything, mock.AnythingOfType("*entities.FailureLog")).Return(nil)
	f.items.On("FailNonDoneByAssignment", mock.Anything, int64(5)).Return([]int64{31}, nil)
	f.products.On("MarkFailedIfProcessing", mock.Anything, []int64{31}).Return(int64(1), nil)
	f.assignments.On("UpdateStatus", mock.Anything, int64(5), entities.AssignmentFailed).Return(nil)

	f.items.On("ListPendingByAssignment", mock.Anything, int64(6)).
		Return([]*entities.AssignmentItem{assignmentItem(12, 6, 22, 32, entities.ItemPendingAI)}, nil)
	f.items.On("CountByAssignment", mock.Anything, int64(6)).
		Return(repositories.ItemStatusCounts{Total: 1, Completed: 1}, nil)
	f.assignments.On("UpdateProgress", mock.Anything, int64(6), 100.0, entities.AssignmentCompleted).Return(nil)

	f.items.On("ListByBatch", mock.Anything, int64(1)).Return([]*entities.AssignmentItem{
		assignmentItem(11, 5, 21, 31, entities.ItemAIFailed),
		assignmentItem(12, 6, 22, 32, entities.ItemAIDone),
	}, nil)
	f.products.On("MarkFailedIfProcessing", mock.Anything, []int64{31}).Return(int64(1), nil)
	f.products.On("BulkSetStatusExcluding", mock.Anything, []int64{32}, mock.Anything, entities.ProcessingAIDone).
		Return(int64(1), nil)

	results, err := f.processor.RunBatch(context.Background(), 1)

	assert.NoError(t, err)
	assert.Len(t, results, 2)

	byAssignment := map[int64]AssignmentResult{}
	for _, result := range results {
		byAssignment[result.AssignmentID] = result
	}
	assert.Error(t, byAssignment[5].Err)
	assert.NoError(t, byAssignment[6].Err)
	assert.Equal(t, 1, byAssignment[6].Completed)
	assert.ElementsMatch(t, []int64{12}, f.runner.seen)
}

func TestRunBatchSkipsFinalizationWhenPaused(t *testing.T) {
	f := newBatchProcessorFixture(pausedControl())
	assignment := batchAssignment(5, 1, 7)
	f.expectBatch(1, assignment)

	f.providerRepo.On("GetActiveByID", mock.Anything, int64(7)).Return(activeProvider(7), nil)
	f.factory.On("ForProvider", mock.Anything).Return(new(MockAnnotator), nil)
	f.items.On("ListPendingByAssignment", mock.Anything, int64(5)).
		Return([]*entities.AssignmentItem{assignmentItem(11, 5, 21, 31, entities.ItemPendingAI)}, nil)
	f.assignments.On("UpdateStatus", mock.Anything, int64(5), entities.AssignmentPending).Return(nil)
	f.items.On("CountByAssignment", mock.Anything, int64(5)).
		Return(repositories.ItemStatusCounts{Total: 1}, nil)
	f.assignments.On("UpdateProgress", mock.Anything, int64(5), 0.0, entities.AssignmentPending).Return(nil)

	results, err := f.processor.RunBatch(context.Background(), 1)

	assert.NoError(t, err)
	assert.Empty(t, f.runner.seen)
	assert.True(t, results[0].Paused)
	f.items.AssertNotCalled(t, "ListByBatch", mock.Anything, mock.Anything)
	f.products.AssertNotCalled(t, "BulkSetStatusExcluding", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRunBatchFailedItemsDominateProgress(t *testing.T) {
	f := newBatchProcessorFixture(unpausedControl())
	assignment := batchAssignment(5, 1, 7)
	f.expectBatch(1, assignment)

	f.providerRepo.On("GetActiveByID", mock.Anything, int64(7)).Return(activeProvider(7), nil)
	f.factory.On("ForProvider", mock.Anything).Return(new(MockAnnotator), nil)

	f.runner.outcomes[12] = ItemOutcomeFailed
	pending := []*entities.AssignmentItem{
		assignmentItem(11, 5, 21, 31, entities.ItemPendingAI),
		assignmentItem(12, 5, 22, 32, entities.ItemPendingAI),
	}
	f.items.On("ListPendingByAssignment", mock.Anything, int64(5)).Return(pending, nil)
	f.items.On("CountByAssignment", mock.Anything, int64(5)).
		Return(repositories.ItemStatusCounts{Total: 2, Completed: 1, Failed: 1}, nil)

	// 50% complete but one failure: the assignment reads failed.
	f.assignments.On("UpdateProgress", mock.Anything, int64(5), 50.0, entities.AssignmentFailed).Return(nil)

	f.items.On("ListByBatch", mock.Anything, int64(1)).Return([]*entities.AssignmentItem{
		assignmentItem(11, 5, 21, 31, entities.ItemAIDone),
		assignmentItem(12, 5, 22, 32, entities.ItemAIFailed),
	}, nil)
	f.products.On("MarkFailedIfProcessing", mock.Anything, []int64{32}).Return(int64(1), nil)
	f.products.On("BulkSetStatusExcluding", mock.Anything, []int64{31}, mock.Anything, entities.ProcessingAIDone).
		Return(int64(1), nil)

	results, err := f.processor.RunBatch(context.Background(), 1)

	assert.NoError(t, err)
	assert.Equal(t, 1, results[0].Completed)
	assert.Equal(t, 1, results[0].Failed)
	f.assignments.AssertExpectations(t)
}

func TestRunBatchAppliesOperatorSettingsDefaults(t *testing.T) {
	f := newBatchProcessorFixture(unpausedControl())
	f.processor.WithSettingsDefaults(entities.SettingsDefaults{MaxThreads: 4, MaxRetries: 7})
	assignment := batchAssignment(5, 1, 7)
	f.expectBatch(1, assignment)

	// The stored config sets neither max_threads nor max_retries.
	provider := activeProvider(7)
	provider.Config = json.RawMessage(`{"api_key": "sk-test"}`)
	f.providerRepo.On("GetActiveByID", mock.Anything, int64(7)).Return(provider, nil)
	f.factory.On("ForProvider", mock.Anything).Return(new(MockAnnotator), nil)

	f.items.On("ListPendingByAssignment", mock.Anything, int64(5)).
		Return([]*entities.AssignmentItem{assignmentItem(11, 5, 21, 31, entities.ItemPendingAI)}, nil)
	f.items.On("CountByAssignment", mock.Anything, int64(5)).
		Return(repositories.ItemStatusCounts{Total: 1, Completed: 1}, nil)
	f.assignments.On("UpdateProgress", mock.Anything, int64(5), 100.0, entities.AssignmentCompleted).Return(nil)
	f.items.On("ListByBatch", mock.Anything, int64(1)).
		Return([]*entities.AssignmentItem{assignmentItem(11, 5, 21, 31, entities.ItemAIDone)}, nil)
	f.products.On("MarkFailedIfProcessing", mock.Anything, mock.Anything).Return(int64(0), nil)
	f.products.On("BulkSetStatusExcluding", mock.Anything, mock.Anything, mock.Anything, entities.ProcessingAIDone).
		Return(int64(1), nil)

	_, err := f.processor.RunBatch(context.Background(), 1)

	assert.NoError(t, err)
	assert.Equal(t, 4, f.runner.lastSettings.MaxThreads)
	assert.Equal(t, 7, f.runner.lastSettings.MaxRetries)
}

func TestRunBatchEmptyAssignmentCompletesImmediately(t *testing.T) {
	f := newBatchProcessorFixture(unpausedControl())
	assignment := batchAssignment(5, 1, 7)
	f.expectBatch(1, assignment)

	f.providerRepo.On("GetActiveByID", mock.Anything, int64(7)).Return(activeProvider(7), nil)
	f.factory.On("ForProvider", mock.Anything).Return(new(MockAnnotator), nil)
	f.items.On("ListPendingByAssignment", mock.Anything, int64(5)).Return([]*entities.AssignmentItem{}, nil)
	f.assignments.On("UpdateProgress", mock.Anything, int64(5), 100.0, entities.AssignmentCompleted).Return(nil)
	f.items.On("ListByBatch", mock.Anything, int64(1)).Return([]*entities.AssignmentItem{}, nil)
	f.products.On("MarkFailedIfProcessing", mock.Anything, mock.Anything).Return(int64(0), nil)
	f.products.On("BulkSetStatusExcluding", mock.Anything, mock.Anything, mock.Anything, entities.ProcessingAIDone).
		Return(int64(0), nil)

	_, err := f.processor.RunBatch(context.Background(), 1)

	assert.NoError(t, err)
	assert.Empty(t, f.runner.seen)
}
