package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/google/uuid"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/ports"
)

const (
	TopicLogin      = "nft-ticketing.auth.login"
	TopicConnection = "nft-ticketing.connection"
)

// LoginEvent represents a successful wallet login
type LoginEvent struct {
	IdentityID    string    `json:"identity_id"`
	WalletAddress string    `json:"wallet_address"`
	At            time.Time `json:"at"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishLogin publishes a login event
func (p *WatermillPublisher) PublishLogin(ctx context.Context, identity *core.Identity) error {
	return p.publish(ctx, TopicLogin, LoginEvent{
		IdentityID:    identity.ID,
		WalletAddress: identity.WalletAddress,
		At:            time.Now().UTC(),
	})
}

// PublishConnection publishes a connection admitted/closed event
func (p *WatermillPublisher) PublishConnection(ctx context.Context, event core.ConnectionEvent) error {
	return p.publish(ctx, TopicConnection, event)
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(uuid.NewString(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}
