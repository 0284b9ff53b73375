package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/config"
	"github.com/Additional-Code/auctioneer/internal/messaging"
)

func TestEngine_DispatchByEventType(t *testing.T) {
	var seen []string
	engine := NewEngine(Params{
		Client: messaging.NewNoop("auctions.events"),
		Logger: zap.NewNop(),
		Config: config.Config{},
		Registrations: []HandlerRegistration{
			{EventType: "lifecycle.reconcile", Handler: func(_ context.Context, msg messaging.Message) error {
				seen = append(seen, string(msg.Key))
				return nil
			}},
			{EventType: "", Handler: func(context.Context, messaging.Message) error {
				return errors.New("must not be registered")
			}},
		},
	})

	ctx := context.Background()
	require.NoError(t, engine.dispatch(ctx, messaging.Message{
		Key:     []byte("a-1"),
		Headers: map[string]string{messaging.HeaderEventType: "lifecycle.reconcile"},
	}))
	require.NoError(t, engine.dispatch(ctx, messaging.Message{
		Key:     []byte("a-2"),
		Headers: map[string]string{messaging.HeaderEventType: "bid.admitted"},
	}))
	require.NoError(t, engine.dispatch(ctx, messaging.Message{Key: []byte("a-3")}))

	assert.Equal(t, []string{"a-1"}, seen)
}

func TestEngine_StartDisabledIsNoop(t *testing.T) {
	engine := NewEngine(Params{
		Client: messaging.NewNoop("t"),
		Logger: zap.NewNop(),
		Config: config.Config{},
	})

	require.NoError(t, engine.start(context.Background()))
	require.NoError(t, engine.stop(context.Background()))
}
