package services

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
	"github.com/styleatlas/catalog-annotation/internal/domain/providers"
	"github.com/styleatlas/catalog-annotation/internal/domain/repositories"
)

// AssignmentResult is one provider task's outcome collected at fan-in.
// Task errors surface here and in persisted state, never as exceptions
// crossing into the batch queue.
type AssignmentResult struct {
	AssignmentID int64
	ProviderID   int64
	Completed    int
	Failed       int
	Paused       bool
	Err          error
}

// itemRunner is the processor's view of the per-item retry machine.
type itemRunner interface {
	ProcessItem(
		ctx context.Context,
		item *entities.AssignmentItem,
		provider *entities.Provider,
		settings entities.ProviderSettings,
		annotator providers.Annotator,
		requestDelay time.Duration,
	) ItemOutcome
}

// BatchProcessor fans a batch out into one task per AI assignment, each
// of which streams its items through a bounded worker pool, then finalizes
// product status after all tasks join.
type BatchProcessor struct {
	batches      repositories.BatchRepository
	assignments  repositories.AssignmentRepository
	items        repositories.AssignmentItemRepository
	providerRepo repositories.ProviderRepository
	products     repositories.ProductRepository
	failures     repositories.FailureLogRepository
	control      repositories.ProcessingControlRepository

	itemProcessor itemRunner
	factory       providers.AnnotatorFactory
	eventBus      providers.EventBus

	settingsDefaults entities.SettingsDefaults
}

// NewBatchProcessor creates a new batch processor. eventBus may be nil
// when no pub/sub backend is wired.
func NewBatchProcessor(
	batches repositories.BatchRepository,
	assignments repositories.AssignmentRepository,
	items repositories.AssignmentItemRepository,
	providerRepo repositories.ProviderRepository,
	products repositories.ProductRepository,
	failures repositories.FailureLogRepository,
	control repositories.ProcessingControlRepository,
	itemProcessor itemRunner,
	factory providers.AnnotatorFactory,
	eventBus providers.EventBus,
) *BatchProcessor {
	return &BatchProcessor{
		batches:       batches,
		assignments:   assignments,
		items:         items,
		providerRepo:  providerRepo,
		products:      products,
		failures:      failures,
		control:       control,
		itemProcessor: itemProcessor,
		factory:       factory,
		eventBus:      eventBus,
	}
}

// WithSettingsDefaults sets the operator-configured provider fallbacks
// (max threads, max retries) applied when a provider's stored config
// leaves them unset.
func (p *BatchProcessor) WithSettingsDefaults(defaults entities.SettingsDefaults) *BatchProcessor {
	p.settingsDefaults = defaults
	return p
}

// RunBatch executes one batch end to end: one goroutine per AI assignment,
// panic/error isolation per task, finalization skipped when the pause flag
// was raised mid-run.
func (p *BatchProcessor) RunBatch(ctx context.Context, batchID int64) ([]AssignmentResult, error) {
	batch, err := p.batches.GetByID(ctx, batchID)
	if err != nil {
		return nil, err
	}

	assignments, err := p.assignments.ListByBatch(ctx, batchID, entities.AssignmentTypeAI)
	if err != nil {
		return nil, err
	}
	if len(assignments) == 0 {
		log.Info().Int64("batch_id", batchID).Msg("batch has no AI assignments")
		return nil, nil
	}

	if _, err := p.assignments.MarkPendingInProgress(ctx, batchID); err != nil {
		return nil, err
	}

	p.publish(ctx, entities.NewBatchEvent(batchID, entities.BatchEventStarted, map[string]interface{}{
		"batch_name":  batch.Name,
		"assignments": len(assignments),
	}))

	results := make([]AssignmentResult, len(assignments))
	var wg sync.WaitGroup
	for i, assignment := range assignments {
		wg.Add(1)
		go func(idx int, assignment *entities.Assignment) {
			defer wg.Done()
			defer func() {
				// One provider's internal error must not stop siblings.
				if r := recover(); r != nil {
					log.Error().
						Int64("assignment_id", assignment.ID).
						Interface("panic", r).
						Msg("assignment task panicked")
					results[idx] = AssignmentResult{
						AssignmentID: assignment.ID,
						ProviderID:   assignment.ProviderID,
						Err:          fmt.Errorf("assignment task panicked: %v", r),
					}
				}
			}()
			results[idx] = p.runAssignment(ctx, assignment)
		}(i, assignment)
	}
	wg.Wait()

	for _, result := range results {
		if result.Err != nil {
			log.Error().Err(result.Err).
				Int64("assignment_id", result.AssignmentID).
				Msg("assignment task failed")
		}
	}

	// A pause raised during the run leaves assignments and items in their
	// paused state for a later resume; finalization waits for that resume.
	if p.isPaused(ctx) {
		log.Info().Int64("batch_id", batchID).Msg("batch paused before finalization")
		p.publish(ctx, entities.NewBatchEvent(batchID, entities.BatchEventPaused, nil))
		return results, nil
	}

	if err := p.finalizeProducts(ctx, batchID); err != nil {
		return results, err
	}

	p.publish(ctx, entities.NewBatchEvent(batchID, batchOutcomeEvent(results), map[string]interface{}{
		"completed_items": totalCompleted(results),
		"failed_items":    totalFailed(results),
	}))
	return results, nil
}

// runAssignment processes one provider's items through a bounded pool of
// the provider's max_threads workers, pacing requests by the provider's
// configured delay.
func (p *BatchProcessor) runAssignment(ctx context.Context, assignment *entities.Assignment) AssignmentResult {
	result := AssignmentResult{AssignmentID: assignment.ID, ProviderID: assignment.ProviderID}

	provider, err := p.providerRepo.GetActiveByID(ctx, assignment.ProviderID)
	if err != nil {
		result.Err = err
		p.failAssignment(ctx, assignment, entities.FailureTypeConfig, err)
		return result
	}

	annotator, err := p.factory.ForProvider(provider)
	if err != nil {
		result.Err = err
		p.failAssignment(ctx, assignment, entities.FailureTypeConfig, err)
		return result
	}
	settings, err := provider.SettingsWithDefaults(p.settingsDefaults)
	if err != nil {
		result.Err = err
		p.failAssignment(ctx, assignment, entities.FailureTypeConfig, err)
		return result
	}

	items, err := p.items.ListPendingByAssignment(ctx, assignment.ID)
	if err != nil {
		result.Err = err
		return result
	}
	if len(items) == 0 {
		if err := p.assignments.UpdateProgress(ctx, assignment.ID, 100, entities.AssignmentCompleted); err != nil {
			result.Err = err
		}
		return result
	}

	requestDelay := settings.RequestDelay()
	semaphore := make(chan struct{}, settings.MaxThreads)
	var wg sync.WaitGroup
	var completed, failed int64
	var paused atomic.Bool

	for _, item := range items {
		// Pause gates dispatch, not in-flight work: already-dispatched
		// items run to completion and persist their outcome.
		if p.isPaused(ctx) {
			paused.Store(true)
			if err := p.assignments.UpdateStatus(ctx, assignment.ID, entities.AssignmentPending); err != nil {
				log.Warn().Err(err).Int64("assignment_id", assignment.ID).Msg("failed to reset paused assignment")
			}
			break
		}

		semaphore <- struct{}{}
		wg.Add(1)
		go func(item *entities.AssignmentItem) {
			defer wg.Done()
			defer func() { <-semaphore }()

			outcome := p.itemProcessor.ProcessItem(ctx, item, provider, settings, annotator, requestDelay)
			switch outcome {
			case ItemOutcomeDone:
				atomic.AddInt64(&completed, 1)
			case ItemOutcomePaused:
				paused.Store(true)
			default:
				atomic.AddInt64(&failed, 1)
			}
		}(item)
	}
	wg.Wait()

	result.Completed = int(completed)
	result.Failed = int(failed)
	result.Paused = paused.Load()

	if err := p.updateProgress(ctx, assignment.ID, result.Paused); err != nil {
		result.Err = err
	}
	return result
}

// updateProgress recomputes one assignment's progress from its item
// counts. A single failed item dominates: the assignment reads failed even
// when every other item completed.
func (p *BatchProcessor) updateProgress(ctx context.Context, assignmentID int64, paused bool) error {
	counts, err := p.items.CountByAssignment(ctx, assignmentID)
	if err != nil {
		return err
	}

	progress := 0.0
	if counts.Total > 0 {
		progress = float64(counts.Completed) / float64(counts.Total) * 100
	}

	status := entities.AssignmentInProgress
	switch {
	case counts.Failed > 0:
		status = entities.AssignmentFailed
	case paused:
		status = entities.AssignmentPending
	case counts.Completed == counts.Total:
		status = entities.AssignmentCompleted
	}

	return p.assignments.UpdateProgress(ctx, assignmentID, progress, status)
}

// failAssignment handles a configuration failure: the assignment fails
// fast, every non-done item fails with a failure log row, and owning
// products still in a pre-failure status cascade to ai_failed.
func (p *BatchProcessor) failAssignment(ctx context.Context, assignment *entities.Assignment, errorType string, cause error) {
	log.Error().Err(cause).
		Int64("assignment_id", assignment.ID).
		Int64("provider_id", assignment.ProviderID).
		Msg("assignment configuration failure")

	items, err := p.items.ListPendingByAssignment(ctx, assignment.ID)
	if err != nil {
		log.Warn().Err(err).Int64("assignment_id", assignment.ID).Msg("failed to list items for failure logging")
	}
	for _, item := range items {
		record := &entities.FailureLog{
			ProviderID:       assignment.ProviderID,
			AssignmentItemID: item.ID,
			ErrorType:        errorType,
			ErrorMessage:     cause.Error(),
		}
		if err := p.failures.Create(ctx, record); err != nil {
			log.Warn().Err(err).Int64("item_id", item.ID).Msg("failed to create failure log")
		}
	}

	productIDs, err := p.items.FailNonDoneByAssignment(ctx, assignment.ID)
	if err != nil {
		log.Warn().Err(err).Int64("assignment_id", assignment.ID).Msg("failed to bulk-fail items")
	}
	if _, err := p.products.MarkFailedIfProcessing(ctx, productIDs); err != nil {
		log.Warn().Err(err).Int64("assignment_id", assignment.ID).Msg("failed to cascade product failures")
	}
	if err := p.assignments.UpdateStatus(ctx, assignment.ID, entities.AssignmentFailed); err != nil {
		log.Warn().Err(err).Int64("assignment_id", assignment.ID).Msg("failed to mark assignment failed")
	}
}

// finalizeProducts settles product status after every assignment joined:
// a product with any failed sibling item fails; one whose items are all
// done completes; anything else is left for a later run.
func (p *BatchProcessor) finalizeProducts(ctx context.Context, batchID int64) error {
	items, err := p.items.ListByBatch(ctx, batchID)
	if err != nil {
		return err
	}

	itemsByProduct := make(map[int64][]*entities.AssignmentItem)
	for _, item := range items {
		itemsByProduct[item.ProductID] = append(itemsByProduct[item.ProductID], item)
	}

	var doneIDs, failedIDs []int64
	for productID, productItems := range itemsByProduct {
		anyFailed := false
		allDone := true
		for _, item := range productItems {
			if item.Status == entities.ItemAIFailed {
				anyFailed = true
			}
			if !item.Status.Terminal() {
				allDone = false
			}
		}
		switch {
		case anyFailed:
			failedIDs = append(failedIDs, productID)
		case allDone:
			doneIDs = append(doneIDs, productID)
		}
	}

	if _, err := p.products.MarkFailedIfProcessing(ctx, failedIDs); err != nil {
		return err
	}

	// ai_done is reachable from ai_failed here: an operator retry that
	// succeeded upgrades the product. Human-pipeline statuses never regress.
	excluded := []entities.ProcessingStatus{
		entities.ProcessingAIDone,
		entities.ProcessingPendingHuman,
		entities.ProcessingHumanInProgress,
		entities.ProcessingHumanDone,
	}
	if _, err := p.products.BulkSetStatusExcluding(ctx, doneIDs, excluded, entities.ProcessingAIDone); err != nil {
		return err
	}

	log.Info().
		Int64("batch_id", batchID).
		Int("products_done", len(doneIDs)).
		Int("products_failed", len(failedIDs)).
		Msg("batch products finalized")
	return nil
}

func (p *BatchProcessor) isPaused(ctx context.Context) bool {
	control, err := p.control.Get(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read processing control")
		return false
	}
	return control.IsPaused
}

func (p *BatchProcessor) publish(ctx context.Context, event *entities.BatchEvent) {
	if p.eventBus == nil {
		return
	}
	for _, channel := range []string{providers.EventChannelBatchUpdates, providers.GetBatchChannel(event.BatchID)} {
		if err := p.eventBus.Publish(ctx, channel, event); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("failed to publish batch event")
		}
	}
}

func batchOutcomeEvent(results []AssignmentResult) entities.BatchEventType {
	anyOK := false
	for _, result := range results {
		if result.Err == nil && result.Failed == 0 {
			anyOK = true
		}
	}
	if anyOK {
		return entities.BatchEventCompleted
	}
	return entities.BatchEventFailed
}

func totalCompleted(results []AssignmentResult) int {
	total := 0
	for _, result := range results {
		total += result.Completed
	}
	return total
}

func totalFailed(results []AssignmentResult) int {
	total := 0
	for _, result := range results {
		total += result.Failed
	}
	return total
}
