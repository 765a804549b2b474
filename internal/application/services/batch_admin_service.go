package services

import (
	"context"

	"github.com/rs/zerolog/log"
	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
	"github.com/styleatlas/catalog-annotation/internal/domain/providers"
	"github.com/styleatlas/catalog-annotation/internal/domain/repositories"
)

// batchSubmitter is the admin service's view of the scheduler.
type batchSubmitter interface {
	Submit(ctx context.Context, batchID int64) bool
}

// BatchAdminService carries the operator controls: selective retry of
// failed work, cancel, and pause/resume of a single batch. State changes
// go through the store's filtered bulk updates so completed work is never
// disturbed.
type BatchAdminService struct {
	assignments repositories.AssignmentRepository
	items       repositories.AssignmentItemRepository
	failures    repositories.FailureLogRepository
	products    repositories.ProductRepository
	scheduler   batchSubmitter
	eventBus    providers.EventBus
}

// NewBatchAdminService creates a new batch admin service.
func NewBatchAdminService(
	assignments repositories.AssignmentRepository,
	items repositories.AssignmentItemRepository,
	failures repositories.FailureLogRepository,
	products repositories.ProductRepository,
	scheduler batchSubmitter,
	eventBus providers.EventBus,
) *BatchAdminService {
	return &BatchAdminService{
		assignments: assignments,
		items:       items,
		failures:    failures,
		products:    products,
		scheduler:   scheduler,
		eventBus:    eventBus,
	}
}

// humanPipelineStatuses never regress through AI-side operator actions.
var humanPipelineStatuses = []entities.ProcessingStatus{
	entities.ProcessingPendingHuman,
	entities.ProcessingHumanInProgress,
	entities.ProcessingHumanDone,
}

// RetryFailedItems re-runs only the work that actually failed: assignments
// with unresolved failure logs get their failed items flipped back to
// pending_ai, the logs resolved, and the batch resubmitted. Assignments
// with no recorded failure keep their completed state and ai_done items.
func (s *BatchAdminService) RetryFailedItems(ctx context.Context, batchID int64) error {
	assignmentIDs, err := s.failures.ListUnresolvedAssignmentIDs(ctx, batchID)
	if err != nil {
		return err
	}
	if len(assignmentIDs) == 0 {
		log.Info().Int64("batch_id", batchID).Msg("no unresolved failures to retry")
		return nil
	}

	productIDs, err := s.items.ResetFailedByAssignments(ctx, assignmentIDs)
	if err != nil {
		return err
	}
	if _, err := s.assignments.ResetForRetry(ctx, assignmentIDs); err != nil {
		return err
	}
	resolved, err := s.failures.ResolveByAssignments(ctx, assignmentIDs)
	if err != nil {
		return err
	}

	excluded := append([]entities.ProcessingStatus{entities.ProcessingAIDone}, humanPipelineStatuses...)
	if _, err := s.products.BulkSetStatusExcluding(ctx, productIDs, excluded, entities.ProcessingAIInProgress); err != nil {
		return err
	}

	log.Info().
		Int64("batch_id", batchID).
		Int("assignments", len(assignmentIDs)).
		Int("products", len(productIDs)).
		Int64("failures_resolved", resolved).
		Msg("failed items reset for retry")

	s.publish(ctx, entities.NewBatchEvent(batchID, entities.BatchEventRetrying, map[string]interface{}{
		"assignments": len(assignmentIDs),
	}))
	s.scheduler.Submit(ctx, batchID)
	return nil
}

// CancelBatch aborts a batch: every assignment is cancelled, items revert
// to pending_ai with cleared timestamps, and products return to the
// pre-batch pending_ai state.
func (s *BatchAdminService) CancelBatch(ctx context.Context, batchID int64) error {
	if _, err := s.assignments.CancelByBatch(ctx, batchID); err != nil {
		return err
	}
	productIDs, err := s.items.ResetAllByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if _, err := s.products.BulkSetStatus(ctx, productIDs, entities.ProcessingPendingAI); err != nil {
		return err
	}

	log.Info().Int64("batch_id", batchID).Int("products", len(productIDs)).Msg("batch cancelled")
	s.publish(ctx, entities.NewBatchEvent(batchID, entities.BatchEventCancelled, nil))
	return nil
}

// PauseBatch winds back a single batch without touching the global flag:
// non-terminal items return to pending_ai and their assignments to
// pending, ready for a later ResumeBatch. Terminal item state survives.
func (s *BatchAdminService) PauseBatch(ctx context.Context, batchID int64) error {
	productIDs, err := s.items.ResetNonTerminalByBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if _, err := s.assignments.ResetNonTerminalByBatch(ctx, batchID); err != nil {
		return err
	}

	excluded := append([]entities.ProcessingStatus{
		entities.ProcessingAIDone,
		entities.ProcessingAIFailed,
	}, humanPipelineStatuses...)
	if _, err := s.products.BulkSetStatusExcluding(ctx, productIDs, excluded, entities.ProcessingPendingAI); err != nil {
		return err
	}

	log.Info().Int64("batch_id", batchID).Msg("batch paused")
	s.publish(ctx, entities.NewBatchEvent(batchID, entities.BatchEventPaused, nil))
	return nil
}

// ResumeBatch resubmits a paused batch; pending items are picked up where
// PauseBatch left them.
func (s *BatchAdminService) ResumeBatch(ctx context.Context, batchID int64) error {
	s.publish(ctx, entities.NewBatchEvent(batchID, entities.BatchEventResumed, nil))
	s.scheduler.Submit(ctx, batchID)
	return nil
}

func (s *BatchAdminService) publish(ctx context.Context, event *entities.BatchEvent) {
	if s.eventBus == nil {
		return
	}
	for _, channel := range []string{providers.EventChannelBatchUpdates, providers.GetBatchChannel(event.BatchID)} {
		if err := s.eventBus.Publish(ctx, channel, event); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("failed to publish admin event")
		}
	}
}
