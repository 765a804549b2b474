package providers

import (
	"context"
	"fmt"

	"github.com/styleatlas/catalog-annotation/internal/domain/entities"
)

// EventBus defines the interface for publishing and subscribing to batch
// lifecycle events
type EventBus interface {
	// Publish publishes an event to all subscribers
	Publish(ctx context.Context, channel string, event *entities.BatchEvent) error

	// Subscribe subscribes to events on a channel
	Subscribe(ctx context.Context, channel string) (<-chan *entities.BatchEvent, error)

	// Unsubscribe unsubscribes from a channel
	Unsubscribe(ctx context.Context, channel string) error

	// Close closes the event bus and all subscriptions
	Close() error
}

// Event channel names. Derived from the configured channel prefix so
// multiple deployments can share one Redis; ConfigureChannels runs once at
// process startup, before any publisher or subscriber exists.
var (
	// EventChannelBatchPrefix is the prefix for batch-specific channels
	EventChannelBatchPrefix = "batch:"

	// EventChannelBatchUpdates is the channel for all batch lifecycle updates
	EventChannelBatchUpdates = "batch:updates"

	// EventChannelSubmitRequests is the channel the admin layer uses to ask
	// the orchestrator to enqueue batches
	EventChannelSubmitRequests = "batch:submit"

	// EventChannelControlRequests carries operator commands: pause, resume,
	// cancel and selective retry
	EventChannelControlRequests = "batch:control"
)

// ConfigureChannels rebases every event channel name on the given prefix.
// An empty prefix keeps the default "batch:".
func ConfigureChannels(prefix string) {
	if prefix == "" {
		prefix = "batch:"
	}
	EventChannelBatchPrefix = prefix
	EventChannelBatchUpdates = prefix + "updates"
	EventChannelSubmitRequests = prefix + "submit"
	EventChannelControlRequests = prefix + "control"
}

// GetBatchChannel returns the channel name for a specific batch
func GetBatchChannel(batchID int64) string {
	return fmt.Sprintf("%s%d", EventChannelBatchPrefix, batchID)
}
