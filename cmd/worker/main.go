package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/styleatlas/catalog-annotation/internal/adapters/database"
	"github.com/styleatlas/catalog-annotation/internal/adapters/events"
	"github.com/styleatlas/catalog-annotation/internal/adapters/providers/annotation"
	"github.com/styleatlas/catalog-annotation/internal/application/services"
	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
	"github.com/styleatlas/catalog-annotation/internal/domain/providers"
	"github.com/styleatlas/catalog-annotation/internal/infrastructure/clients/postgres"
	"github.com/styleatlas/catalog-annotation/internal/infrastructure/clients/redis"
	"github.com/styleatlas/catalog-annotation/internal/infrastructure/observability"
	"github.com/styleatlas/catalog-annotation/pkg/config"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize structured logging
	env := os.Getenv("ENV")
	if env == "" {
		env = "production"
	}
	observability.InitLogger(cfg.OTEL.ServiceName+"-worker", env)

	log.Info().
		Str("service", cfg.OTEL.ServiceName+"-worker").
		Str("version", cfg.OTEL.ServiceVersion).
		Str("env", env).
		Msg("Starting annotation worker")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Initialize OpenTelemetry if enabled
	if cfg.OTEL.Enabled && cfg.OTEL.Endpoint != "" {
		shutdown, err := observability.Setup(
			ctx,
			cfg.OTEL.ServiceName+"-worker",
			cfg.OTEL.ServiceVersion,
			cfg.OTEL.Endpoint,
		)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to set up OpenTelemetry")
		} else {
			defer func() {
				shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer shutdownCancel()
				if err := shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Error shutting down OpenTelemetry")
				}
			}()
			log.Info().Msg("OpenTelemetry initialized successfully")
		}
	}

	// Initialize PostgreSQL client
	pgClient, err := postgres.NewClient(&cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize PostgreSQL client")
	}
	defer pgClient.Close()
	log.Info().Msg("PostgreSQL client initialized successfully")

	// Initialize Redis client (required for the event bus)
	redisClient, err := redis.NewClient(&cfg.Redis)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize Redis client")
	}
	defer redisClient.Close()
	log.Info().Msg("Redis client initialized successfully")

	providers.ConfigureChannels(cfg.Processing.EventChannelPrefix)
	eventBus := events.NewRedisEventBus(redisClient)
	defer eventBus.Close()

	// Persistence adapters
	batchRepo := database.NewBatchAdapter(pgClient)
	assignmentRepo := database.NewAssignmentAdapter(pgClient)
	itemRepo := database.NewAssignmentItemAdapter(pgClient)
	runRepo := database.NewProcessingRunAdapter(pgClient)
	failureRepo := database.NewFailureLogAdapter(pgClient)
	annotationRepo := database.NewAnnotationAdapter(pgClient)
	productRepo := database.NewProductAdapter(pgClient)
	providerRepo := database.NewProviderAdapter(pgClient)
	attributeRepo := database.NewAttributeAdapter(pgClient)
	controlRepo := database.NewProcessingControlAdapter(pgClient)

	metrics, err := observability.InitMetrics()
	if err != nil {
		log.Warn().Err(err).Msg("Failed to initialize metrics")
	}

	// Orchestration services
	factory := annotation.NewFactory(time.Duration(cfg.Processing.RequestTimeoutSeconds) * time.Second)
	itemProcessor := services.NewItemProcessor(
		itemRepo,
		runRepo,
		failureRepo,
		annotationRepo,
		productRepo,
		attributeRepo,
		controlRepo,
	).WithMetrics(metrics)
	batchProcessor := services.NewBatchProcessor(
		batchRepo,
		assignmentRepo,
		itemRepo,
		providerRepo,
		productRepo,
		failureRepo,
		controlRepo,
		itemProcessor,
		factory,
		eventBus,
	).WithSettingsDefaults(entities.SettingsDefaults{
		MaxThreads: cfg.Processing.DefaultMaxThreads,
		MaxRetries: cfg.Processing.DefaultMaxRetries,
	})
	scheduler := services.NewBatchScheduler(batchProcessor, controlRepo, eventBus).WithMetrics(metrics)
	admin := services.NewBatchAdminService(assignmentRepo, itemRepo, failureRepo, productRepo, scheduler, eventBus)

	// The admin layer drives the orchestrator over Redis; subscribe before
	// announcing readiness so no request is missed.
	submitRequests, err := eventBus.Subscribe(ctx, providers.EventChannelSubmitRequests)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to subscribe to submit requests")
	}
	controlRequests, err := eventBus.Subscribe(ctx, providers.EventChannelControlRequests)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to subscribe to control requests")
	}
	log.Info().
		Str("submit_channel", providers.EventChannelSubmitRequests).
		Str("control_channel", providers.EventChannelControlRequests).
		Msg("Annotation worker ready")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	for running := true; running; {
		select {
		case event, ok := <-submitRequests:
			if !ok {
				log.Warn().Msg("Submit request channel closed")
				running = false
				break
			}
			if event.EventType != entities.BatchEventSubmitRequested {
				continue
			}
			if scheduler.Submit(ctx, event.BatchID) {
				log.Info().Int64("batch_id", event.BatchID).Msg("Batch enqueued")
			}
		case event, ok := <-controlRequests:
			if !ok {
				log.Warn().Msg("Control request channel closed")
				running = false
				break
			}
			handleControlRequest(ctx, event, scheduler, admin)
		case sig := <-quit:
			log.Info().Str("signal", sig.String()).Msg("Annotation worker shutting down")
			running = false
		}
	}

	// Let in-flight batches finish before tearing down clients.
	drained := make(chan struct{})
	go func() {
		scheduler.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		log.Info().Msg("All queued batches drained")
	case <-time.After(60 * time.Second):
		log.Warn().Msg("Shutdown drain timed out, exiting with batches in flight")
	}

	for _, channel := range []string{providers.EventChannelSubmitRequests, providers.EventChannelControlRequests} {
		if err := eventBus.Unsubscribe(ctx, channel); err != nil {
			log.Warn().Err(err).Str("channel", channel).Msg("Error unsubscribing")
		}
	}

	log.Info().Msg("Annotation worker stopped")
}

// handleControlRequest routes an operator command to the scheduler or admin
// service. A pause or resume addressed to batch 0 toggles the global flag.
func handleControlRequest(ctx context.Context, event *entities.BatchEvent, scheduler *services.BatchScheduler, admin *services.BatchAdminService) {
	var err error
	switch event.EventType {
	case entities.BatchEventPauseRequested:
		if event.BatchID == 0 {
			by, _ := event.Details["paused_by"].(string)
			err = scheduler.PauseGlobal(ctx, by)
		} else {
			err = admin.PauseBatch(ctx, event.BatchID)
		}
	case entities.BatchEventResumeRequested:
		if event.BatchID == 0 {
			err = scheduler.ResumeGlobal(ctx)
		} else {
			err = admin.ResumeBatch(ctx, event.BatchID)
		}
	case entities.BatchEventCancelRequested:
		err = admin.CancelBatch(ctx, event.BatchID)
	case entities.BatchEventRetryRequested:
		err = admin.RetryFailedItems(ctx, event.BatchID)
	default:
		return
	}
	if err != nil {
		log.Error().Err(err).
			Int64("batch_id", event.BatchID).
			Str("event_type", string(event.EventType)).
			Msg("Operator command failed")
	}
}
