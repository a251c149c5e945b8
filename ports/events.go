package ports

import "context"

// EventPublisher publishes lifecycle events to notify other components.
// Publishing is best-effort: services log failures but never fail the
// request over them.
type EventPublisher interface {
	PublishStandCreated(ctx context.Context, standID string) error
	PublishStandDeleted(ctx context.Context, standID string) error
	PublishCredentialRegistered(ctx context.Context, credentialID string) error
	PublishSessionCreated(ctx context.Context, sessionToken string) error
}
