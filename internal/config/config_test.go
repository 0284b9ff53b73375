package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_Defaults(t *testing.T) {
	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.HTTP.Port)
	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, cfg.Database.WriterDSN, cfg.Database.ReaderDSN)
	assert.True(t, cfg.Auction.MinIncrement.IsZero())
	assert.Equal(t, 5*time.Second, cfg.Auction.SweepInterval)
	assert.Equal(t, "inline", cfg.Auction.SweepDispatch)
	assert.Equal(t, "local", cfg.Auction.LeaseDriver)
	assert.Equal(t, "/metrics", cfg.Observability.PrometheusPath)
}

func TestNew_AuctionOverrides(t *testing.T) {
	t.Setenv("AUCTION_MIN_INCREMENT", "2.50")
	t.Setenv("AUCTION_SWEEP_INTERVAL", "1s")
	t.Setenv("AUCTION_LEASE_DRIVER", "Redis")
	t.Setenv("DB_DRIVER", "memory")
	t.Setenv("OBS_PROMETHEUS_PATH", "prom")

	cfg, err := New()
	require.NoError(t, err)

	assert.True(t, cfg.Auction.MinIncrement.Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, time.Second, cfg.Auction.SweepInterval)
	assert.Equal(t, "redis", cfg.Auction.LeaseDriver)
	assert.Equal(t, "memory", cfg.Database.Driver)
	assert.Equal(t, "/prom", cfg.Observability.PrometheusPath)
}

func TestNew_RejectsInvalidValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bad increment":      {"AUCTION_MIN_INCREMENT": "abc"},
		"negative increment": {"AUCTION_MIN_INCREMENT": "-1"},
		"bad db driver":      {"DB_DRIVER": "oracle"},
		"queue without bus":  {"AUCTION_SWEEP_DISPATCH": "queue", "MESSAGING_ENABLED": "false"},
		"bad lease driver":   {"AUCTION_LEASE_DRIVER": "zookeeper"},
		"bad media driver":   {"MEDIA_DRIVER": "s3"},
		"bad sample ratio":   {"OBS_TRACE_SAMPLE_RATIO": "2"},
	}

	for name, env := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, err := New()
			assert.Error(t, err)
		})
	}
}

func TestNew_MessagingDisabledFallsBackToNoop(t *testing.T) {
	t.Setenv("MESSAGING_ENABLED", "false")
	t.Setenv("CACHE_ENABLED", "false")

	cfg, err := New()
	require.NoError(t, err)
	assert.Equal(t, "noop", cfg.Messaging.Driver)
	assert.Equal(t, "noop", cfg.Cache.Driver)
}
