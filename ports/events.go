package ports

import (
	"context"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
)

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishLogin(ctx context.Context, identity *core.Identity) error
	PublishConnection(ctx context.Context, event core.ConnectionEvent) error
}
