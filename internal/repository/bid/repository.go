package bid

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Additional-Code/auctioneer/internal/database"
	"github.com/Additional-Code/auctioneer/internal/entity"
)

var repoTracer = otel.Tracer("github.com/Additional-Code/auctioneer/repository/bid")

// Repository is the SQL-backed Ledger. Every read goes to the writer: an
// admitted bid must be visible to the next read, and replicas may lag.
type Repository struct {
	writer *bun.DB
}

var _ Ledger = (*Repository)(nil)

// NewRepository wires a ledger backed by configured database connections.
func NewRepository(conns *database.Connections) *Repository {
	return &Repository{writer: conns.Writer}
}

// Append runs the high-bid guard and the insert in one transaction. The
// conditional update takes the auction row lock, so concurrent appends on the
// same auction are serialized by the database across replicas.
func (r *Repository) Append(ctx context.Context, bid *entity.Bid) error {
	if bid == nil {
		return errors.New("nil bid")
	}
	ctx, span := repoTracer.Start(ctx, "BidRepository.Append", trace.WithAttributes(
		attribute.String("auction.id", bid.AuctionID),
		attribute.String("bid.id", bid.ID),
	))
	defer span.End()

	err := r.writer.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		res, err := tx.NewUpdate().Model((*entity.Auction)(nil)).
			Set("high_bid_id = ?", bid.ID).
			Set("high_bid_amount = ?", bid.Amount).
			Set("updated_at = ?", bid.PlacedAt).
			Where("id = ?", bid.AuctionID).
			Where("status = ?", entity.StatusActive).
			Where("removed_at IS NULL").
			Where("(high_bid_amount IS NULL OR high_bid_amount < ?)", bid.Amount).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("advance high bid: %w", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return rejectReason(ctx, tx, bid.AuctionID)
		}

		var last sql.NullInt64
		err = tx.NewSelect().Model((*entity.Bid)(nil)).
			ColumnExpr("MAX(b.sequence)").
			Where("b.auction_id = ?", bid.AuctionID).
			Scan(ctx, &last)
		if err != nil {
			return fmt.Errorf("next sequence: %w", err)
		}
		bid.Sequence = last.Int64 + 1

		if _, err := tx.NewInsert().Model(bid).Exec(ctx); err != nil {
			return fmt.Errorf("insert bid: %w", err)
		}
		return nil
	})
	if err != nil {
		if !errors.Is(err, ErrStaleBid) && !errors.Is(err, ErrAuctionNotOpen) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "append failed")
		}
		return err
	}
	span.SetAttributes(attribute.Int64("bid.sequence", bid.Sequence))
	return nil
}

func rejectReason(ctx context.Context, tx bun.Tx, auctionID string) error {
	var status entity.Status
	err := tx.NewSelect().Model((*entity.Auction)(nil)).
		Column("a.status").
		Where("a.id = ?", auctionID).
		Where("a.removed_at IS NULL").
		Scan(ctx, &status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrAuctionNotOpen
	}
	if err != nil {
		return err
	}
	if status != entity.StatusActive {
		return ErrAuctionNotOpen
	}
	return ErrStaleBid
}

// HighBid returns the bid with the greatest amount, or ErrNotFound.
func (r *Repository) HighBid(ctx context.Context, auctionID string) (*entity.Bid, error) {
	ctx, span := repoTracer.Start(ctx, "BidRepository.HighBid", trace.WithAttributes(attribute.String("auction.id", auctionID)))
	defer span.End()

	bid := new(entity.Bid)
	err := r.writer.NewSelect().Model(bid).
		Where("b.auction_id = ?", auctionID).
		OrderExpr("b.amount DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return bid, nil
}

// AllBids lists bids in admission order.
func (r *Repository) AllBids(ctx context.Context, auctionID string) ([]entity.Bid, error) {
	ctx, span := repoTracer.Start(ctx, "BidRepository.AllBids", trace.WithAttributes(attribute.String("auction.id", auctionID)))
	defer span.End()

	var bids []entity.Bid
	err := r.writer.NewSelect().Model(&bids).
		Where("b.auction_id = ?", auctionID).
		OrderExpr("b.sequence ASC").
		Scan(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return bids, nil
}

// FindByIdempotencyKey looks up a previously admitted bid for a retried request.
func (r *Repository) FindByIdempotencyKey(ctx context.Context, auctionID, bidderID, key string) (*entity.Bid, error) {
	ctx, span := repoTracer.Start(ctx, "BidRepository.FindByIdempotencyKey", trace.WithAttributes(attribute.String("auction.id", auctionID)))
	defer span.End()

	bid := new(entity.Bid)
	err := r.writer.NewSelect().Model(bid).
		Where("b.auction_id = ?", auctionID).
		Where("b.bidder_id = ?", bidderID).
		Where("b.idempotency_key = ?", key).
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "select failed")
		return nil, err
	}
	return bid, nil
}

// Count returns the number of admitted bids.
func (r *Repository) Count(ctx context.Context, auctionID string) (int, error) {
	ctx, span := repoTracer.Start(ctx, "BidRepository.Count", trace.WithAttributes(attribute.String("auction.id", auctionID)))
	defer span.End()

	n, err := r.writer.NewSelect().Model((*entity.Bid)(nil)).
		Where("auction_id = ?", auctionID).
		Count(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "count failed")
	}
	return n, err
}
