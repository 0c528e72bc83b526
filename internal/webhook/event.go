package webhook

import (
	"context"
	"time"
)

// Event is the parsed inbound webhook payload passed to Process.
type Event struct {
	DeliveryID string
	EventType  string
	Action     string
	Signature  string
	RawBody    []byte
	ReceivedAt time.Time
}

// Handler processes a dispatched Event. Handlers run sequentially in
// priority order; a Handler error is isolated and never aborts the
// remaining handlers.
type Handler interface {
	Name() string
	Priority() int

	// Matches reports whether this handler wants to run for
	// (eventType, action), mirroring the (event_type, action) pairs
	// original_source's WebhookEventHandler registers against (an
	// empty action there means "any action for this event_type").
	Matches(eventType, action string) bool

	Handle(ctx context.Context, evt Event) error
}
