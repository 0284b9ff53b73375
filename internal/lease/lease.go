// Package lease hands out short-lived exclusive claims on a key. The sweep
// uses one claim per auction so replicas never reconcile the same auction at
// the same time.
package lease

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/clock"
	"github.com/Additional-Code/auctioneer/internal/config"
)

// Lease is a held claim. Release is safe to call more than once.
type Lease interface {
	Release(ctx context.Context) error
}

// Manager acquires leases. ok is false when someone else holds the key.
type Manager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (l Lease, ok bool, err error)
}

// Module provides the configured lease manager.
var Module = fx.Provide(New)

// New selects the redis or local manager.
func New(cfg config.Config, client *goredis.Client, clk clock.Clock, logger *zap.Logger) (Manager, error) {
	switch cfg.Auction.LeaseDriver {
	case "redis":
		logger.Info("auction leases backed by redis")
		return NewRedis(client, cfg.Cache.Prefix), nil
	case "local":
		return NewLocal(clk), nil
	default:
		return nil, fmt.Errorf("unsupported lease driver: %s", cfg.Auction.LeaseDriver)
	}
}

// releaseScript deletes the key only while it still carries our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// Redis grants leases with SET NX PX across every replica sharing the server.
type Redis struct {
	client goredis.Cmdable
	prefix string
	token  func() string
}

// NewRedis returns a redis-backed manager.
func NewRedis(client goredis.Cmdable, prefix string) *Redis {
	return &Redis{
		client: client,
		prefix: prefix,
		token:  func() string { return uuid.NewString() },
	}
}

// Acquire sets the key with a random token unless another holder has it.
func (r *Redis) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	fullKey := r.fullKey(key)
	token := r.token()

	ok, err := r.client.SetNX(ctx, fullKey, token, ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("acquire lease %s: %w", key, err)
	}
	if !ok {
		return nil, false, nil
	}
	return &redisLease{client: r.client, key: fullKey, token: token}, true, nil
}

func (r *Redis) fullKey(key string) string {
	if r.prefix == "" {
		return "lease:" + key
	}
	return r.prefix + ":lease:" + key
}

type redisLease struct {
	client goredis.Cmdable
	key    string
	token  string
	once   sync.Once
	err    error
}

func (l *redisLease) Release(ctx context.Context) error {
	l.once.Do(func() {
		l.err = l.client.Eval(ctx, releaseScript, []string{l.key}, l.token).Err()
	})
	return l.err
}

// Local grants leases inside one process.
type Local struct {
	mu     sync.Mutex
	clock  clock.Clock
	held   map[string]localEntry
	serial uint64
}

type localEntry struct {
	serial  uint64
	expires time.Time
}

// NewLocal returns an in-process manager.
func NewLocal(clk clock.Clock) *Local {
	return &Local{clock: clk, held: make(map[string]localEntry)}
}

// Acquire grants the key unless an unexpired lease holds it.
func (l *Local) Acquire(_ context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock.Now()
	if entry, ok := l.held[key]; ok && now.Before(entry.expires) {
		return nil, false, nil
	}
	l.serial++
	l.held[key] = localEntry{serial: l.serial, expires: now.Add(ttl)}
	return &localLease{owner: l, key: key, serial: l.serial}, true, nil
}

type localLease struct {
	owner  *Local
	key    string
	serial uint64
}

func (l *localLease) Release(context.Context) error {
	l.owner.mu.Lock()
	defer l.owner.mu.Unlock()

	if entry, ok := l.owner.held[l.key]; ok && entry.serial == l.serial {
		delete(l.owner.held, l.key)
	}
	return nil
}
