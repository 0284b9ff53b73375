package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/cache"
	"github.com/Additional-Code/auctioneer/internal/clock"
	"github.com/Additional-Code/auctioneer/internal/config"
	"github.com/Additional-Code/auctioneer/internal/entity"
	"github.com/Additional-Code/auctioneer/internal/lease"
	"github.com/Additional-Code/auctioneer/internal/media"
	"github.com/Additional-Code/auctioneer/internal/messaging"
	"github.com/Additional-Code/auctioneer/internal/repository/directory"
	"github.com/Additional-Code/auctioneer/internal/repository/memory"
	auctionsvc "github.com/Additional-Code/auctioneer/internal/service/auction"
)

var t0 = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type published struct {
	key       string
	eventType string
	payload   []byte
}

type recordingPublisher struct {
	mu   sync.Mutex
	msgs []published
}

func (p *recordingPublisher) Publish(_ context.Context, key []byte, value []byte, headers map[string]string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.msgs = append(p.msgs, published{key: string(key), eventType: headers[messaging.HeaderEventType], payload: value})
	return nil
}

func (p *recordingPublisher) Consume(ctx context.Context, _ messaging.Handler) error {
	<-ctx.Done()
	return ctx.Err()
}

func (p *recordingPublisher) Topic() string { return "test" }

func (p *recordingPublisher) ofType(eventType string) []published {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []published
	for _, m := range p.msgs {
		if m.eventType == eventType {
			out = append(out, m)
		}
	}
	return out
}

type stubReconciler struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
}

func (r *stubReconciler) Reconcile(_ context.Context, id string) (*entity.Auction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, id)
	if err := r.fail[id]; err != nil {
		return nil, err
	}
	return &entity.Auction{ID: id}, nil
}

func testConfig(dispatch string) config.Config {
	return config.Config{Auction: config.Auction{
		SchedulerEnabled: true,
		SweepInterval:    time.Second,
		SweepBatch:       50,
		SweepDispatch:    dispatch,
		LeaseDriver:      "local",
		LeaseTTL:         30 * time.Second,
	}}
}

func seedAuction(t *testing.T, store *memory.Store, id string, status entity.Status, start, end time.Time) {
	t.Helper()
	require.NoError(t, store.Create(context.Background(), &entity.Auction{
		ID:            id,
		Name:          "Lot " + id,
		SellerID:      "seller-1",
		CategoryID:    "cat-1",
		Location:      "Porto",
		StartingPrice: decimal.NewFromInt(10),
		StartTime:     start,
		EndTime:       end,
		Status:        status,
		CreatedAt:     start.Add(-time.Hour),
	}))
}

func TestSweepOnce_InlineReconcilesDueAuctions(t *testing.T) {
	clk := clock.NewFake(t0)
	store := memory.New()
	seedAuction(t, store, "due-start", entity.StatusUpcoming, t0.Add(-time.Minute), t0.Add(time.Hour))
	seedAuction(t, store, "due-end", entity.StatusActive, t0.Add(-time.Hour), t0.Add(-time.Second))
	seedAuction(t, store, "not-due", entity.StatusActive, t0.Add(-time.Hour), t0.Add(2*time.Hour))

	rec := &stubReconciler{}
	s := New(Params{
		Store:      store,
		Reconciler: rec,
		Leases:     lease.NewLocal(clk),
		Publisher:  &recordingPublisher{},
		Clock:      clk,
		Config:     testConfig("inline"),
		Logger:     zap.NewNop(),
	})

	stats, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Due: 2, Reconciled: 2}, stats)
	assert.ElementsMatch(t, []string{"due-start", "due-end"}, rec.calls)
}

func TestSweepOnce_SkipsLeasedAuction(t *testing.T) {
	clk := clock.NewFake(t0)
	store := memory.New()
	seedAuction(t, store, "a1", entity.StatusActive, t0.Add(-time.Hour), t0.Add(-time.Minute))
	seedAuction(t, store, "a2", entity.StatusActive, t0.Add(-time.Hour), t0.Add(-time.Second))

	leases := lease.NewLocal(clk)
	held, ok, err := leases.Acquire(context.Background(), "auction:a1", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	rec := &stubReconciler{}
	s := New(Params{
		Store:      store,
		Reconciler: rec,
		Leases:     leases,
		Publisher:  &recordingPublisher{},
		Clock:      clk,
		Config:     testConfig("inline"),
		Logger:     zap.NewNop(),
	})

	stats, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Due: 2, Reconciled: 1, Skipped: 1}, stats)
	assert.Equal(t, []string{"a2"}, rec.calls)

	require.NoError(t, held.Release(context.Background()))
	stats, err = s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Reconciled)
}

func TestSweepOnce_FailureDoesNotStopBatch(t *testing.T) {
	clk := clock.NewFake(t0)
	store := memory.New()
	seedAuction(t, store, "bad", entity.StatusActive, t0.Add(-time.Hour), t0.Add(-time.Minute))
	seedAuction(t, store, "good", entity.StatusActive, t0.Add(-time.Hour), t0.Add(-time.Second))

	rec := &stubReconciler{fail: map[string]error{"bad": errors.New("boom")}}
	leases := lease.NewLocal(clk)
	s := New(Params{
		Store:      store,
		Reconciler: rec,
		Leases:     leases,
		Publisher:  &recordingPublisher{},
		Clock:      clk,
		Config:     testConfig("inline"),
		Logger:     zap.NewNop(),
	})

	stats, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Due: 2, Reconciled: 1, Failed: 1}, stats)

	// The failed auction's lease must have been released.
	_, ok, err := leases.Acquire(context.Background(), "auction:bad", time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSweepOnce_QueueDispatchPublishesRequests(t *testing.T) {
	clk := clock.NewFake(t0)
	store := memory.New()
	seedAuction(t, store, "q1", entity.StatusActive, t0.Add(-time.Hour), t0.Add(-time.Minute))

	rec := &stubReconciler{}
	pub := &recordingPublisher{}
	s := New(Params{
		Store:      store,
		Reconciler: rec,
		Leases:     lease.NewLocal(clk),
		Publisher:  pub,
		Clock:      clk,
		Config:     testConfig("queue"),
		Logger:     zap.NewNop(),
	})

	stats, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{Due: 1, Enqueued: 1}, stats)
	assert.Empty(t, rec.calls)

	msgs := pub.ofType(auctionsvc.EventLifecycleReconcile)
	require.Len(t, msgs, 1)
	assert.Equal(t, "q1", msgs[0].key)

	var req auctionsvc.ReconcileRequest
	require.NoError(t, json.Unmarshal(msgs[0].payload, &req))
	assert.Equal(t, "q1", req.AuctionID)
	assert.True(t, req.RequestedAt.Equal(t0))
}

func TestSweepOnce_ClosesAndResolvesWithService(t *testing.T) {
	clk := clock.NewFake(t0.Add(-time.Minute))
	store := memory.New()
	pub := &recordingPublisher{}
	svc := auctionsvc.NewService(auctionsvc.Params{
		Auctions:  store,
		Bids:      store,
		Directory: directory.NewStatic(),
		Media:     media.Noop{BaseURL: "https://media.test"},
		Cache:     cache.NewNoop(),
		Clock:     clk,
		Publisher: pub,
		Config:    config.Config{},
		Logger:    zap.NewNop(),
	})

	created, err := svc.Create(context.Background(), entity.Actor{ID: "seller-1", Role: entity.RoleSeller}, auctionsvc.CreateInput{
		Name:          "Walnut chair",
		Description:   "Mid-century, one owner",
		CategoryID:    "cat-1",
		Location:      "Porto",
		ImageURL:      "https://img.example/chair.png",
		StartingPrice: decimal.NewFromInt(40),
		StartTime:     t0,
		EndTime:       t0.Add(time.Hour),
	})
	require.NoError(t, err)

	clk.Set(t0.Add(time.Minute))
	_, err = svc.PlaceBid(context.Background(), auctionsvc.BidRequest{
		AuctionID: created.ID,
		BidderID:  "bidder-1",
		Amount:    decimal.NewFromInt(55),
	})
	require.NoError(t, err)

	s := New(Params{
		Store:      store,
		Reconciler: svc,
		Leases:     lease.NewLocal(clk),
		Publisher:  pub,
		Clock:      clk,
		Config:     testConfig("inline"),
		Logger:     zap.NewNop(),
	})

	clk.Set(t0.Add(time.Hour))
	stats, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Reconciled)

	stored, err := store.Get(context.Background(), created.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.StatusClosed, stored.Status)
	require.NotNil(t, stored.WinnerBidID)
	assert.Len(t, pub.ofType(auctionsvc.EventAuctionClosed), 1)

	// Nothing left to do on the next tick.
	stats, err = s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Stats{}, stats)
	assert.Len(t, pub.ofType(auctionsvc.EventAuctionClosed), 1)
}

func TestStart_DisabledIsNoop(t *testing.T) {
	cfg := testConfig("inline")
	cfg.Auction.SchedulerEnabled = false
	s := New(Params{
		Store:      memory.New(),
		Reconciler: &stubReconciler{},
		Leases:     lease.NewLocal(clock.System{}),
		Publisher:  &recordingPublisher{},
		Clock:      clock.System{},
		Config:     cfg,
		Logger:     zap.NewNop(),
	})

	require.NoError(t, s.Start(context.Background()))
	assert.Empty(t, s.cron.Entries())
	require.NoError(t, s.Stop(context.Background()))
}
