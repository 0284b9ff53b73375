package auction

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/messaging"
	"github.com/Additional-Code/auctioneer/internal/scheduler"
	auctionsvc "github.com/Additional-Code/auctioneer/internal/service/auction"
	"github.com/Additional-Code/auctioneer/internal/worker"
)

var workerTracer = otel.Tracer("github.com/Additional-Code/auctioneer/worker/auction")

// LeasedReconciler reconciles one auction under its lease.
type LeasedReconciler interface {
	ReconcileLeased(ctx context.Context, id string) (bool, error)
}

// Module registers auction worker handlers.
var Module = fx.Module("worker_auction",
	fx.Provide(
		func(s *scheduler.Scheduler) LeasedReconciler { return s },
		fx.Annotate(
			NewReconcileHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
		fx.Annotate(
			NewClosedHandler,
			fx.ResultTags(`group:"worker.handlers"`),
		),
	),
)

// NewReconcileHandler applies lifecycle transitions requested by the sweep.
func NewReconcileHandler(reconciler LeasedReconciler, logger *zap.Logger) worker.HandlerRegistration {
	logger = logger.Named("worker.reconcile")

	handler := func(ctx context.Context, msg messaging.Message) error {
		ctx, span := workerTracer.Start(ctx, "worker.auctions.reconcile", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		id, err := reconcileTarget(msg)
		if err != nil {
			logger.Error("failed to decode reconcile request", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}
		span.SetAttributes(attribute.String("auction.id", id))

		ok, err := reconciler.ReconcileLeased(ctx, id)
		switch {
		case errors.Is(err, auctionsvc.ErrAuctionNotFound):
			logger.Debug("reconcile target gone", zap.String("auction_id", id))
			return nil
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, "reconcile failed")
			return err
		case !ok:
			logger.Debug("auction lease held elsewhere", zap.String("auction_id", id))
			return nil
		}

		logger.Debug("auction reconciled", zap.String("auction_id", id))
		return nil
	}

	return worker.HandlerRegistration{
		EventType: auctionsvc.EventLifecycleReconcile,
		Handler:   handler,
	}
}

// NewClosedHandler records settlement of closed auctions.
func NewClosedHandler(logger *zap.Logger) worker.HandlerRegistration {
	logger = logger.Named("worker.closed")

	handler := func(ctx context.Context, msg messaging.Message) error {
		_, span := workerTracer.Start(ctx, "worker.auctions.closed", trace.WithAttributes(
			attribute.String("messaging.topic", msg.Topic),
		))
		defer span.End()

		var event auctionsvc.AuctionClosedEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Error("failed to decode auction closed", zap.Error(err))

			span.RecordError(err)
			span.SetStatus(codes.Error, "decode error")
			return err
		}

		if event.WinnerBidID == nil {
			logger.Info("auction settled without winner", zap.String("auction_id", event.AuctionID))
			return nil
		}

		fields := []zap.Field{
			zap.String("auction_id", event.AuctionID),
			zap.String("winner_bid_id", *event.WinnerBidID),
		}
		if event.BidderID != nil {
			fields = append(fields, zap.String("bidder_id", *event.BidderID))
		}
		if event.Amount != nil {
			fields = append(fields, zap.String("amount", event.Amount.StringFixed(2)))
		}
		logger.Info("auction settled", fields...)
		return nil
	}

	return worker.HandlerRegistration{
		EventType: auctionsvc.EventAuctionClosed,
		Handler:   handler,
	}
}

// reconcileTarget prefers the payload and falls back to the message key.
func reconcileTarget(msg messaging.Message) (string, error) {
	if len(msg.Value) > 0 {
		var req auctionsvc.ReconcileRequest
		if err := json.Unmarshal(msg.Value, &req); err != nil {
			return "", err
		}
		if id := strings.TrimSpace(req.AuctionID); id != "" {
			return id, nil
		}
	}
	if id := strings.TrimSpace(string(msg.Key)); id != "" {
		return id, nil
	}
	return "", errors.New("reconcile request without auction id")
}
