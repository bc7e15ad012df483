package protocols

import "context"

// WebhookDeduper tracks provider event ids so a re-delivery is processed once.
type WebhookDeduper interface {
	// Reserve returns false when the event was already processed or is in flight.
	Reserve(ctx context.Context, eventID string) (bool, error)
	MarkDone(ctx context.Context, eventID string) error
	// Release forgets an in-flight event so the provider's retry is processed.
	Release(ctx context.Context, eventID string) error
}
