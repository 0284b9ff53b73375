// Package scheduler runs the eager lifecycle sweep: on a fixed interval it
// finds auctions whose stored status lags the clock and reconciles them one
// at a time, each under its own lease.
package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/clock"
	"github.com/Additional-Code/auctioneer/internal/config"
	"github.com/Additional-Code/auctioneer/internal/entity"
	"github.com/Additional-Code/auctioneer/internal/lease"
	"github.com/Additional-Code/auctioneer/internal/messaging"
	auctionrepo "github.com/Additional-Code/auctioneer/internal/repository/auction"
	auctionsvc "github.com/Additional-Code/auctioneer/internal/service/auction"
)

var tracer = otel.Tracer("github.com/Additional-Code/auctioneer/scheduler")

// Reconciler applies due lifecycle transitions to one auction.
type Reconciler interface {
	Reconcile(ctx context.Context, id string) (*entity.Auction, error)
}

// Params collects dependencies via Fx.
type Params struct {
	fx.In

	Store      auctionrepo.Store
	Reconciler Reconciler
	Leases     lease.Manager
	Publisher  messaging.Client
	Clock      clock.Clock
	Config     config.Config
	Logger     *zap.Logger
}

// Stats summarises one sweep.
type Stats struct {
	Due        int
	Reconciled int
	Enqueued   int
	Skipped    int
	Failed     int
}

// Scheduler owns the sweep and its cron trigger.
type Scheduler struct {
	store      auctionrepo.Store
	reconciler Reconciler
	leases     lease.Manager
	publisher  messaging.Client
	clock      clock.Clock
	cfg        config.Auction
	logger     *zap.Logger
	cron       *cron.Cron
	duration   metric.Float64Histogram
}

// New builds a Scheduler. It does not start the cron loop.
func New(p Params) *Scheduler {
	logger := p.Logger.Named("scheduler")
	cronLogger := zapCronLogger{logger: logger.Sugar()}

	duration, err := otel.Meter("github.com/Additional-Code/auctioneer/scheduler").
		Float64Histogram("auction.sweep.duration", metric.WithUnit("s"), metric.WithDescription("Lifecycle sweep duration"))
	if err != nil {
		logger.Warn("create sweep histogram", zap.Error(err))
	}

	return &Scheduler{
		store:      p.Store,
		reconciler: p.Reconciler,
		leases:     p.Leases,
		publisher:  p.Publisher,
		clock:      p.Clock,
		cfg:        p.Config.Auction,
		logger:     logger,
		cron: cron.New(
			cron.WithSeconds(),
			cron.WithLogger(cronLogger),
			cron.WithChain(cron.Recover(cronLogger), cron.SkipIfStillRunning(cronLogger)),
		),
		duration: duration,
	}
}

// Module provides the Scheduler and the reconciler it drives.
var Module = fx.Provide(
	New,
	func(svc *auctionsvc.Service) Reconciler { return svc },
)

// RunModule starts the cron loop with the application lifecycle.
var RunModule = fx.Invoke(func(lc fx.Lifecycle, s *Scheduler) {
	lc.Append(fx.Hook{
		OnStart: s.Start,
		OnStop:  s.Stop,
	})
})

// Start schedules the sweep every configured interval.
func (s *Scheduler) Start(context.Context) error {
	if !s.cfg.SchedulerEnabled {
		s.logger.Info("lifecycle sweep disabled")
		return nil
	}

	spec := fmt.Sprintf("@every %s", s.cfg.SweepInterval)
	if _, err := s.cron.AddFunc(spec, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.sweepTimeout())
		defer cancel()
		if _, err := s.SweepOnce(ctx); err != nil {
			s.logger.Error("lifecycle sweep failed", zap.Error(err))
		}
	}); err != nil {
		return fmt.Errorf("schedule sweep: %w", err)
	}

	s.cron.Start()
	s.logger.Info("lifecycle sweep started",
		zap.Duration("interval", s.cfg.SweepInterval),
		zap.String("dispatch", s.cfg.SweepDispatch),
	)
	return nil
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) sweepTimeout() time.Duration {
	if s.cfg.LeaseTTL > s.cfg.SweepInterval {
		return s.cfg.LeaseTTL
	}
	return s.cfg.SweepInterval
}

// SweepOnce runs a single pass over due auctions.
func (s *Scheduler) SweepOnce(ctx context.Context) (Stats, error) {
	ctx, span := tracer.Start(ctx, "Scheduler.SweepOnce")
	defer span.End()

	started := time.Now()
	defer func() {
		if s.duration != nil {
			s.duration.Record(ctx, time.Since(started).Seconds(),
				metric.WithAttributes(attribute.String("dispatch", s.cfg.SweepDispatch)))
		}
	}()

	var stats Stats
	ids, err := s.store.ListDue(ctx, s.clock.Now(), s.cfg.SweepBatch)
	if err != nil {
		span.RecordError(err)
		return stats, fmt.Errorf("list due auctions: %w", err)
	}
	stats.Due = len(ids)

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if s.cfg.SweepDispatch == "queue" {
			if err := s.enqueue(ctx, id); err != nil {
				stats.Failed++
				s.logger.Warn("enqueue reconcile failed", zap.String("auction_id", id), zap.Error(err))
				continue
			}
			stats.Enqueued++
			continue
		}

		ok, err := s.ReconcileLeased(ctx, id)
		switch {
		case err != nil:
			stats.Failed++
			s.logger.Warn("reconcile failed", zap.String("auction_id", id), zap.Error(err))
		case !ok:
			stats.Skipped++
		default:
			stats.Reconciled++
		}
	}

	span.SetAttributes(
		attribute.Int("sweep.due", stats.Due),
		attribute.Int("sweep.reconciled", stats.Reconciled),
		attribute.Int("sweep.failed", stats.Failed),
	)
	if stats.Due > 0 {
		s.logger.Debug("lifecycle sweep finished",
			zap.Int("due", stats.Due),
			zap.Int("reconciled", stats.Reconciled),
			zap.Int("enqueued", stats.Enqueued),
			zap.Int("skipped", stats.Skipped),
			zap.Int("failed", stats.Failed),
		)
	}
	return stats, nil
}

// ReconcileLeased reconciles one auction while holding its lease. It reports
// false when another holder has the lease.
func (s *Scheduler) ReconcileLeased(ctx context.Context, id string) (bool, error) {
	held, ok, err := s.leases.Acquire(ctx, leaseKey(id), s.cfg.LeaseTTL)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	defer func() {
		if err := held.Release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("release lease failed", zap.String("auction_id", id), zap.Error(err))
		}
	}()

	if _, err := s.reconciler.Reconcile(ctx, id); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Scheduler) enqueue(ctx context.Context, id string) error {
	payload, err := json.Marshal(auctionsvc.ReconcileRequest{AuctionID: id, RequestedAt: s.clock.Now()})
	if err != nil {
		return err
	}
	return s.publisher.Publish(ctx, []byte(id), payload, map[string]string{
		messaging.HeaderEventType: auctionsvc.EventLifecycleReconcile,
	})
}

func leaseKey(id string) string {
	return "auction:" + id
}

// zapCronLogger adapts zap to cron.Logger.
type zapCronLogger struct {
	logger *zap.SugaredLogger
}

func (l zapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debugw(msg, keysAndValues...)
}

func (l zapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Errorw(msg, append(keysAndValues, "error", err)...)
}
