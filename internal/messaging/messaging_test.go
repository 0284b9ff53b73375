package messaging

import (
	"context"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_EventType(t *testing.T) {
	msg := Message{Headers: map[string]string{HeaderEventType: "lifecycle.reconcile"}}
	assert.Equal(t, "lifecycle.reconcile", msg.EventType())
	assert.Empty(t, Message{}.EventType())
}

func TestHeaderConversion(t *testing.T) {
	assert.Nil(t, kafkaHeaders(nil))
	assert.Equal(t, map[string]string{HeaderEventType: "auction.closed"},
		kafkaHeaders([]kafka.Header{{Key: HeaderEventType, Value: []byte("auction.closed")}}))

	assert.Nil(t, natsHeaders(nil))
	h := nats.Header{}
	h.Set("Event-Type", "bid.placed")
	assert.Equal(t, map[string]string{"Event-Type": "bid.placed"}, natsHeaders(h))
}

func TestNoop(t *testing.T) {
	client := NewNoop("auctions")
	assert.Equal(t, "auctions", client.Topic())
	require.NoError(t, client.Publish(context.Background(), []byte("a-1"), []byte("{}"), nil))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := client.Consume(ctx, func(context.Context, Message) error { return nil })
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
