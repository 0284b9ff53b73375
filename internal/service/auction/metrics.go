package auction

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/entity"
)

var noopMeter metric.Meter = noop.Meter{}

type instruments struct {
	bidsAdmitted metric.Int64Counter
	bidsRejected metric.Int64Counter
	transitions  metric.Int64Counter
	resolutions  metric.Int64Counter
}

func newInstruments(logger *zap.Logger) instruments {
	meter := otel.Meter("github.com/Additional-Code/auctioneer/service/auction")

	counter := func(name, desc string) metric.Int64Counter {
		c, err := meter.Int64Counter(name, metric.WithDescription(desc))
		if err != nil {
			logger.Warn("create counter", zap.String("name", name), zap.Error(err))
			c, _ = noopMeter.Int64Counter(name)
		}
		return c
	}

	return instruments{
		bidsAdmitted: counter("auction.bids.admitted", "Bids appended to the ledger"),
		bidsRejected: counter("auction.bids.rejected", "Bids refused by admission, by reason"),
		transitions:  counter("auction.status.transitions", "Persisted lifecycle transitions"),
		resolutions:  counter("auction.winner.resolutions", "Closed auctions whose winner was resolved"),
	}
}

func (i instruments) bidAdmitted(ctx context.Context) {
	i.bidsAdmitted.Add(ctx, 1)
}

func (i instruments) bidRejected(ctx context.Context, code string) {
	i.bidsRejected.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", code)))
}

func (i instruments) transitioned(ctx context.Context, from, to entity.Status) {
	i.transitions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("from", string(from)),
		attribute.String("to", string(to)),
	))
}

func (i instruments) resolved(ctx context.Context, hasWinner bool) {
	i.resolutions.Add(ctx, 1, metric.WithAttributes(attribute.Bool("has_winner", hasWinner)))
}
