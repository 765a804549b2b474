package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
	"github.com/styleatlas/catalog-annotation/internal/domain/providers"
)

type itemProcessorFixture struct {
	items       *MockAssignmentItemRepo
	runs        *MockProcessingRunRepo
	failures    *MockFailureLogRepo
	annotations *MockAnnotationRepo
	products    *MockProductRepo
	attributes  *MockAttributeRepo
	control     *MockControlRepo
	annotator   *MockAnnotator

	sleepMu sync.Mutex
	sleeps  []time.Duration

	processor *ItemProcessor
}

func newItemProcessorFixture(control *MockControlRepo) *itemProcessorFixture {
	f := &itemProcessorFixture{
		items:       new(MockAssignmentItemRepo),
		runs:        new(MockProcessingRunRepo),
		failures:    new(MockFailureLogRepo),
		annotations: new(MockAnnotationRepo),
		products:    new(MockProductRepo),
		attributes:  new(MockAttributeRepo),
		control:     control,
		annotator:   new(MockAnnotator),
	}
	f.processor = NewItemProcessor(
		f.items, f.runs, f.failures, f.annotations, f.products, f.attributes, f.control,
	).WithClock(time.Millisecond, func(ctx context.Context, d time.Duration) {
		f.sleepMu.Lock()
		defer f.sleepMu.Unlock()
		f.sleeps = append(f.sleeps, d)
	})
	return f
}

func (f *itemProcessorFixture) backoffs() []time.Duration {
	f.sleepMu.Lock()
	defer f.sleepMu.Unlock()
	var nonZero []time.Duration
	for _, d := range f.sleeps {
		if d > 0 {
			nonZero = append(nonZero, d)
		}
	}
	return nonZero
}

var testSubclassID = int64(42)

func testItem() *entities.AssignmentItem {
	return &entities.AssignmentItem{
		ID:           11,
		AssignmentID: 5,
		BatchItemID:  21,
		ProductID:    31,
		Status:       entities.ItemPendingAI,
	}
}

func testItemProvider() *entities.Provider {
	return &entities.Provider{ID: 7, Name: "OpenAI", ServiceName: "openai", ModelName: "gpt-4o-mini"}
}

func testItemSettings() entities.ProviderSettings {
	return entities.ProviderSettings{APIKey: "sk-test", MaxRetries: 3, MaxThreads: 2, MaxTokens: 100}
}

func testProductRecord() *entities.Product {
	return &entities.Product{
		ID:               31,
		StyleID:          "ST-100",
		StyleDesc:        "Crewneck Tee",
		ClassName:        "Tops",
		SubclassName:     "T-Shirts",
		SubclassID:       &testSubclassID,
		ProcessingStatus: entities.ProcessingPendingAI,
	}
}

func testAttributes() []*entities.Attribute {
	return []*entities.Attribute{
		{ID: 1, Name: "Color", AllowedValues: []string{"Red", "Blue"}},
		{ID: 2, Name: "Material"},
	}
}

func (f *itemProcessorFixture) expectItemStart() {
	f.items.On("MarkInProgress", mock.Anything, int64(11)).Return(nil)
	f.products.On("UpdateStatus", mock.Anything, int64(31), entities.ProcessingAIInProgress).Return(nil)
	f.products.On("GetByID", mock.Anything, int64(31)).Return(testProductRecord(), nil)
	f.attributes.On("ListForSubclass", mock.Anything, &testSubclassID).Return(testAttributes(), nil)
}

func (f *itemProcessorFixture) expectRunCreation() {
	f.runs.On("Create", mock.Anything, mock.AnythingOfType("*entities.ProcessingRun")).
		Run(func(args mock.Arguments) {
			run := args.Get(1).(*entities.ProcessingRun)
			run.ID = int64(100 + run.Attempt)
		}).Return(nil)
}

func TestProcessItemSuccess(t *testing.T) {
	f := newItemProcessorFixture(unpausedControl())
	f.expectItemStart()
	f.expectRunCreation()

	f.annotator.On("Annotate", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]string{"Color": "Red", "Material": "Unknown"}, nil)

	var upserted []*entities.Annotation
	f.annotations.On("Upsert", mock.Anything, mock.AnythingOfType("*entities.Annotation")).
		Run(func(args mock.Arguments) {
			upserted = append(upserted, args.Get(1).(*entities.Annotation))
		}).Return(nil)
	f.runs.On("MarkCompleted", mock.Anything, int64(101)).Return(nil)
	f.items.On("MarkDone", mock.Anything, int64(11)).Return(nil)

	outcome := f.processor.ProcessItem(context.Background(), testItem(), testItemProvider(), testItemSettings(), f.annotator, 0)

	assert.Equal(t, ItemOutcomeDone, outcome)
	f.runs.AssertNumberOfCalls(t, "Create", 1)
	assert.Len(t, upserted, 2)
	byAttribute := map[int64]*entities.Annotation{}
	for _, annotation := range upserted {
		byAttribute[annotation.AttributeID] = annotation
		assert.Equal(t, entities.SourceAI, annotation.SourceType)
		assert.Equal(t, int64(7), annotation.SourceID)
	}
	assert.Equal(t, 1.0, *byAttribute[1].ConfidenceScore)
	assert.Equal(t, 0.0, *byAttribute[2].ConfidenceScore)
}

func TestProcessItemRetryExhaustion(t *testing.T) {
	f := newItemProcessorFixture(unpausedControl())
	f.expectItemStart()

	var attempts []int
	f.runs.On("Create", mock.Anything, mock.AnythingOfType("*entities.ProcessingRun")).
		Run(func(args mock.Arguments) {
			run := args.Get(1).(*entities.ProcessingRun)
			run.ID = int64(100 + run.Attempt)
			attempts = append(attempts, run.Attempt)
		}).Return(nil)

	transient := errors.New("openai request failed with status 503")
	f.annotator.On("Annotate", mock.Anything, mock.Anything, mock.Anything).Return(nil, transient)
	f.runs.On("MarkFailed", mock.Anything, mock.Anything, transient.Error()).Return(nil)
	f.failures.On("Create", mock.Anything, mock.AnythingOfType("*entities.FailureLog")).Return(nil)
	f.items.On("SetStatus", mock.Anything, int64(11), entities.ItemAIFailed).Return(nil)
	f.products.On("MarkFailedIfProcessing", mock.Anything, []int64{31}).Return(int64(1), nil)

	outcome := f.processor.ProcessItem(context.Background(), testItem(), testItemProvider(), testItemSettings(), f.annotator, 0)

	assert.Equal(t, ItemOutcomeFailed, outcome)
	assert.Equal(t, []int{1, 2, 3}, attempts)
	f.failures.AssertNumberOfCalls(t, "Create", 3)
	f.items.AssertNumberOfCalls(t, "SetStatus", 1)

	// Backoff doubles per attempt; no sleep after the final attempt.
	assert.Equal(t, []time.Duration{2 * time.Millisecond, 4 * time.Millisecond}, f.backoffs())
}

func TestProcessItemAuthFailureShortCircuits(t *testing.T) {
	f := newItemProcessorFixture(unpausedControl())
	f.expectItemStart()
	f.expectRunCreation()

	authErr := fmt.Errorf("%w: openai request failed with status 401", providers.ErrAnnotationUnauthorized)
	f.annotator.On("Annotate", mock.Anything, mock.Anything, mock.Anything).Return(nil, authErr)
	f.runs.On("MarkFailed", mock.Anything, int64(101), authErr.Error()).Return(nil)

	var logged *entities.FailureLog
	f.failures.On("Create", mock.Anything, mock.AnythingOfType("*entities.FailureLog")).
		Run(func(args mock.Arguments) {
			logged = args.Get(1).(*entities.FailureLog)
		}).Return(nil)
	f.items.On("SetStatus", mock.Anything, int64(11), entities.ItemAIFailed).Return(nil)
	f.products.On("MarkFailedIfProcessing", mock.Anything, []int64{31}).Return(int64(1), nil)

	outcome := f.processor.ProcessItem(context.Background(), testItem(), testItemProvider(), testItemSettings(), f.annotator, 0)

	assert.Equal(t, ItemOutcomeAuthFailed, outcome)
	f.runs.AssertNumberOfCalls(t, "Create", 1)
	assert.Equal(t, entities.FailureTypeAuth, logged.ErrorType)
	assert.NotNil(t, logged.HTTPStatus)
	assert.Equal(t, 401, *logged.HTTPStatus)
}

func TestProcessItemAuthSignatureInText(t *testing.T) {
	f := newItemProcessorFixture(unpausedControl())
	f.expectItemStart()
	f.expectRunCreation()

	authErr := errors.New("Invalid API key provided")
	f.annotator.On("Annotate", mock.Anything, mock.Anything, mock.Anything).Return(nil, authErr)
	f.runs.On("MarkFailed", mock.Anything, int64(101), authErr.Error()).Return(nil)

	var logged *entities.FailureLog
	f.failures.On("Create", mock.Anything, mock.AnythingOfType("*entities.FailureLog")).
		Run(func(args mock.Arguments) {
			logged = args.Get(1).(*entities.FailureLog)
		}).Return(nil)
	f.items.On("SetStatus", mock.Anything, int64(11), entities.ItemAIFailed).Return(nil)
	f.products.On("MarkFailedIfProcessing", mock.Anything, []int64{31}).Return(int64(1), nil)

	outcome := f.processor.ProcessItem(context.Background(), testItem(), testItemProvider(), testItemSettings(), f.annotator, 0)

	assert.Equal(t, ItemOutcomeAuthFailed, outcome)
	assert.Equal(t, entities.FailureTypeAuth, logged.ErrorType)
	assert.Nil(t, logged.HTTPStatus)
}

func TestProcessItemPausedMidLoop(t *testing.T) {
	f := newItemProcessorFixture(pausedControl())
	f.expectItemStart()
	f.expectRunCreation()

	f.runs.On("MarkFailed", mock.Anything, int64(101), entities.PauseFailureReason).Return(nil)
	f.items.On("SetStatus", mock.Anything, int64(11), entities.ItemPendingAI).Return(nil)

	outcome := f.processor.ProcessItem(context.Background(), testItem(), testItemProvider(), testItemSettings(), f.annotator, 0)

	assert.Equal(t, ItemOutcomePaused, outcome)
	f.annotator.AssertNotCalled(t, "Annotate", mock.Anything, mock.Anything, mock.Anything)
	f.products.AssertNotCalled(t, "MarkFailedIfProcessing", mock.Anything, mock.Anything)
}

func TestProcessItemRefusesDoneItem(t *testing.T) {
	f := newItemProcessorFixture(unpausedControl())

	item := testItem()
	item.Status = entities.ItemAIDone

	outcome := f.processor.ProcessItem(context.Background(), item, testItemProvider(), testItemSettings(), f.annotator, 0)

	// A done item never re-enters processing: nothing is written and the
	// provider is never called.
	assert.Equal(t, ItemOutcomeFailed, outcome)
	assert.Equal(t, entities.ItemAIDone, item.Status)
	f.items.AssertNotCalled(t, "MarkInProgress", mock.Anything, mock.Anything)
	f.items.AssertNotCalled(t, "SetStatus", mock.Anything, mock.Anything, mock.Anything)
	f.products.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
	f.annotator.AssertNotCalled(t, "Annotate", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessItemReprocessesFailedItem(t *testing.T) {
	f := newItemProcessorFixture(unpausedControl())
	f.expectItemStart()
	f.expectRunCreation()

	f.annotator.On("Annotate", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]string{"Color": "Red", "Material": "Cotton"}, nil)
	f.annotations.On("Upsert", mock.Anything, mock.AnythingOfType("*entities.Annotation")).Return(nil)
	f.runs.On("MarkCompleted", mock.Anything, int64(101)).Return(nil)
	f.items.On("MarkDone", mock.Anything, int64(11)).Return(nil)

	// A previously failed item re-enters processing on batch resubmission.
	item := testItem()
	item.Status = entities.ItemAIFailed

	outcome := f.processor.ProcessItem(context.Background(), item, testItemProvider(), testItemSettings(), f.annotator, 0)

	assert.Equal(t, ItemOutcomeDone, outcome)
	assert.Equal(t, entities.ItemAIDone, item.Status)
}

func TestProcessItemLeavesHumanPipelineProductUntouched(t *testing.T) {
	f := newItemProcessorFixture(unpausedControl())
	f.items.On("MarkInProgress", mock.Anything, int64(11)).Return(nil)

	product := testProductRecord()
	product.ProcessingStatus = entities.ProcessingPendingHuman
	f.products.On("GetByID", mock.Anything, int64(31)).Return(product, nil)
	f.attributes.On("ListForSubclass", mock.Anything, &testSubclassID).Return(testAttributes(), nil)
	f.expectRunCreation()

	f.annotator.On("Annotate", mock.Anything, mock.Anything, mock.Anything).
		Return(map[string]string{"Color": "Red", "Material": "Cotton"}, nil)
	f.annotations.On("Upsert", mock.Anything, mock.AnythingOfType("*entities.Annotation")).Return(nil)
	f.runs.On("MarkCompleted", mock.Anything, int64(101)).Return(nil)
	f.items.On("MarkDone", mock.Anything, int64(11)).Return(nil)

	outcome := f.processor.ProcessItem(context.Background(), testItem(), testItemProvider(), testItemSettings(), f.annotator, 0)

	assert.Equal(t, ItemOutcomeDone, outcome)
	f.products.AssertNotCalled(t, "UpdateStatus", mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessItemNoAttributesIsTriviallyDone(t *testing.T) {
	f := newItemProcessorFixture(unpausedControl())
	f.items.On("MarkInProgress", mock.Anything, int64(11)).Return(nil)
	f.products.On("UpdateStatus", mock.Anything, int64(31), entities.ProcessingAIInProgress).Return(nil)
	f.products.On("GetByID", mock.Anything, int64(31)).Return(testProductRecord(), nil)
	f.attributes.On("ListForSubclass", mock.Anything, &testSubclassID).Return([]*entities.Attribute{}, nil)
	f.items.On("MarkDone", mock.Anything, int64(11)).Return(nil)

	outcome := f.processor.ProcessItem(context.Background(), testItem(), testItemProvider(), testItemSettings(), f.annotator, 0)

	assert.Equal(t, ItemOutcomeDone, outcome)
	f.annotator.AssertNotCalled(t, "Annotate", mock.Anything, mock.Anything, mock.Anything)
	f.runs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}
