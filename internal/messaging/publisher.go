package messaging

import (
	"context"

	"github.com/chaintrace/asset-indexer/internal/domain"
)

// Publisher defines the interface for publishing applied-operation
// notifications to the message broker
type Publisher interface {
	// PublishApplied publishes a notification for one applied operation event
	PublishApplied(ctx context.Context, event *domain.AppliedEvent) error
	// Close closes the connection
	Close()
	// CloseChan returns a channel that is closed when the publisher is closed
	CloseChan() <-chan struct{}
}
