package cache

import (
	"context"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisStore_PrefixesKeys(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedis(client, "auctioneer", time.Minute)

	mock.ExpectSet("auctioneer:auction:a-1", []byte(`{"id":"a-1"}`), time.Minute).SetVal("OK")
	mock.ExpectGet("auctioneer:auction:a-1").SetVal(`{"id":"a-1"}`)

	ctx := context.Background()
	require.NoError(t, SetJSON(ctx, store, Key("auction", "a-1"), map[string]string{"id": "a-1"}, 0))

	var got map[string]string
	require.NoError(t, GetJSON(ctx, store, Key("auction", "a-1"), &got))
	assert.Equal(t, "a-1", got["id"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRedisStore_MissTranslatesNil(t *testing.T) {
	client, mock := redismock.NewClientMock()
	store := NewRedis(client, "", time.Minute)

	mock.ExpectGet("absent").RedisNil()

	_, err := store.Get(context.Background(), "absent")
	assert.ErrorIs(t, err, ErrCacheMiss)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNoopStore_AlwaysMisses(t *testing.T) {
	store := NewNoop()
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "k", []byte("v"), time.Second))
	_, err := store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrCacheMiss)
}
