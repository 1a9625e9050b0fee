package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Naoki-K615/NFT-ticketing-Backend-Progressing/core"
)

func newPubSub(t *testing.T) *gochannel.GoChannel {
	pubSub := gochannel.NewGoChannel(gochannel.Config{OutputChannelBuffer: 8}, watermill.NopLogger{})
	t.Cleanup(func() { _ = pubSub.Close() })
	return pubSub
}

func receive(t *testing.T, messages <-chan *message.Message) *message.Message {
	t.Helper()
	select {
	case msg := <-messages:
		msg.Ack()
		return msg
	case <-time.After(time.Second):
		t.Fatal("no message received")
		return nil
	}
}

func TestPublishLogin(t *testing.T) {
	pubSub := newPubSub(t)
	messages, err := pubSub.Subscribe(context.Background(), TopicLogin)
	require.NoError(t, err)

	pub := NewWatermillPublisher(pubSub)
	identity := core.NewWalletIdentity("identity-1", "0x52908400098527886e0f7030069857d2e4169ee7", time.Now())
	require.NoError(t, pub.PublishLogin(context.Background(), identity))

	msg := receive(t, messages)
	assert.NotEmpty(t, msg.UUID)

	var event LoginEvent
	require.NoError(t, json.Unmarshal(msg.Payload, &event))
	assert.Equal(t, "identity-1", event.IdentityID)
	assert.Equal(t, identity.WalletAddress, event.WalletAddress)
	assert.False(t, event.At.IsZero())
}

func TestPublishConnection(t *testing.T) {
	pubSub := newPubSub(t)
	messages, err := pubSub.Subscribe(context.Background(), TopicConnection)
	require.NoError(t, err)

	pub := NewWatermillPublisher(pubSub)
	require.NoError(t, pub.PublishConnection(context.Background(), core.ConnectionEvent{
		IdentityID:   "identity-1",
		ConnectionID: "conn-1",
		State:        core.ConnectionClosed,
		Reason:       "client went away",
	}))

	var event core.ConnectionEvent
	require.NoError(t, json.Unmarshal(receive(t, messages).Payload, &event))
	assert.Equal(t, "conn-1", event.ConnectionID)
	assert.Equal(t, core.ConnectionClosed, event.State)
	assert.Equal(t, "client went away", event.Reason)
}

func TestPublishAfterCloseFails(t *testing.T) {
	pubSub := gochannel.NewGoChannel(gochannel.Config{}, watermill.NopLogger{})
	require.NoError(t, pubSub.Close())

	pub := NewWatermillPublisher(pubSub)
	err := pub.PublishConnection(context.Background(), core.ConnectionEvent{ConnectionID: "conn-1"})
	assert.Error(t, err)
}
