package event

import "context"

// Publisher provides a simplified API for publishing messages.
// It wraps a Bus and stamps every message with a fixed source.
type Publisher struct {
	bus    Bus
	source string
}

// NewPublisher creates a new Publisher wrapping the given bus.
// The source parameter identifies where messages originate (e.g., "plugin-manager").
func NewPublisher(bus Bus, source string) *Publisher {
	return &Publisher{
		bus:    bus,
		source: source,
	}
}

// Publish publishes payload under msgType with the publisher's source.
func (p *Publisher) Publish(ctx context.Context, msgType string, payload any) (int, error) {
	return p.bus.Publish(ctx, msgType, payload, p.source)
}

// PublishWithMetadata publishes payload with metadata attached.
func (p *Publisher) PublishWithMetadata(ctx context.Context, msgType string, payload any, metadata map[string]any) (int, error) {
	return p.bus.PublishMessage(ctx, Outgoing{
		Type:     msgType,
		Payload:  payload,
		Source:   p.source,
		Metadata: metadata,
	})
}

// PublishWithCorrelation publishes a message with a correlation ID in its metadata.
// Useful for tracking related messages across operations.
func (p *Publisher) PublishWithCorrelation(ctx context.Context, msgType string, payload any, correlationID string) (int, error) {
	return p.PublishWithMetadata(ctx, msgType, payload, map[string]any{
		MetadataCorrelationID: correlationID,
	})
}

// MetadataCorrelationID is the metadata key used by PublishWithCorrelation.
const MetadataCorrelationID = "correlationId"
