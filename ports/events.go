package ports

import "context"

// EventPublisher notifies other components about authentication lifecycle
// events. Publishing failures are never fatal to the flow that triggered them.
type EventPublisher interface {
	PublishLogin(ctx context.Context, address string) error
	PublishLogout(ctx context.Context, address string) error
}
