package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
	"github.com/styleatlas/catalog-annotation/internal/domain/providers"
	"github.com/styleatlas/catalog-annotation/internal/domain/repositories"
	"github.com/styleatlas/catalog-annotation/internal/infrastructure/observability"
)

// batchRunner is the scheduler's view of the batch processor.
type batchRunner interface {
	RunBatch(ctx context.Context, batchID int64) ([]AssignmentResult, error)
}

// BatchScheduler serializes batch execution: one batch runs at a time,
// duplicate submissions of a queued batch are no-ops, and the global
// pause flag is persisted through the control store so every process
// sees it. Construct one per process and inject it wherever batches are
// triggered.
type BatchScheduler struct {
	runner   batchRunner
	control  repositories.ProcessingControlRepository
	eventBus providers.EventBus

	mu     sync.Mutex
	queued map[int64]struct{}
	runMu  sync.Mutex

	// wg tracks spawned batch goroutines so shutdown can drain them.
	wg sync.WaitGroup

	metrics *observability.Metrics
}

// NewBatchScheduler creates a new batch scheduler.
func NewBatchScheduler(runner batchRunner, control repositories.ProcessingControlRepository, eventBus providers.EventBus) *BatchScheduler {
	return &BatchScheduler{
		runner:   runner,
		control:  control,
		eventBus: eventBus,
		queued:   make(map[int64]struct{}),
	}
}

// WithMetrics enables per-batch outcome metrics.
func (s *BatchScheduler) WithMetrics(metrics *observability.Metrics) *BatchScheduler {
	s.metrics = metrics
	return s
}

// Submit enqueues a batch for processing and returns immediately. Returns
// false when the batch is already queued or running; eventual outcome is
// visible only through persisted state and events, never as an error from
// Submit.
func (s *BatchScheduler) Submit(ctx context.Context, batchID int64) bool {
	s.mu.Lock()
	if _, exists := s.queued[batchID]; exists {
		s.mu.Unlock()
		log.Info().Int64("batch_id", batchID).Msg("batch already queued, skipping duplicate submit")
		return false
	}
	s.queued[batchID] = struct{}{}
	s.mu.Unlock()

	s.publish(ctx, entities.NewBatchEvent(batchID, entities.BatchEventQueued, nil))

	// The batch outlives the submitter's request context.
	runCtx := context.WithoutCancel(ctx)
	s.wg.Add(1)
	go s.run(runCtx, batchID)
	return true
}

func (s *BatchScheduler) run(ctx context.Context, batchID int64) {
	defer s.wg.Done()
	defer func() {
		s.mu.Lock()
		delete(s.queued, batchID)
		s.mu.Unlock()
	}()

	// The run lock serializes batches, not items: workers inside the
	// batch body still fan out.
	s.runMu.Lock()
	defer s.runMu.Unlock()

	if s.IsPaused(ctx) {
		log.Info().Int64("batch_id", batchID).Msg("processing paused, batch not started")
		s.publish(ctx, entities.NewBatchEvent(batchID, entities.BatchEventPaused, nil))
		return
	}

	started := time.Now()
	if _, err := s.runner.RunBatch(ctx, batchID); err != nil {
		log.Error().Err(err).Int64("batch_id", batchID).Msg("batch run failed")
		observability.RecordBatchMetric(ctx, s.metrics, "failed", time.Since(started))
		s.publish(ctx, entities.NewBatchEvent(batchID, entities.BatchEventFailed, map[string]interface{}{
			"error": err.Error(),
		}))
		return
	}
	observability.RecordBatchMetric(ctx, s.metrics, "completed", time.Since(started))
}

// PauseGlobal raises the shared pause flag. In-flight provider calls
// finish; the next unit of work at every granularity is gated.
func (s *BatchScheduler) PauseGlobal(ctx context.Context, by string) error {
	if err := s.control.SetPaused(ctx, true, by); err != nil {
		return err
	}
	log.Info().Str("paused_by", by).Msg("global processing paused")
	s.publish(ctx, entities.NewBatchEvent(0, entities.BatchEventPaused, map[string]interface{}{
		"paused_by": by,
	}))
	return nil
}

// ResumeGlobal clears the shared pause flag.
func (s *BatchScheduler) ResumeGlobal(ctx context.Context) error {
	if err := s.control.SetPaused(ctx, false, ""); err != nil {
		return err
	}
	log.Info().Msg("global processing resumed")
	s.publish(ctx, entities.NewBatchEvent(0, entities.BatchEventResumed, nil))
	return nil
}

// IsPaused reads the pause flag through the store, never from a cached
// copy, so a pause raised by another process is honored immediately.
func (s *BatchScheduler) IsPaused(ctx context.Context) bool {
	control, err := s.control.Get(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("failed to read processing control")
		return false
	}
	return control.IsPaused
}

// Wait blocks until every spawned batch goroutine has finished.
func (s *BatchScheduler) Wait() {
	s.wg.Wait()
}

func (s *BatchScheduler) publish(ctx context.Context, event *entities.BatchEvent) {
	if s.eventBus == nil {
		return
	}
	channels := []string{providers.EventChannelBatchUpdates}
	if event.BatchID != 0 {
		channels = append(channels, providers.GetBatchChannel(event.BatchID))
	}
	for _, channel := range channels {
		if err := s.eventBus.Publish(ctx, channel, event); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("failed to publish scheduler event")
		}
	}
}
