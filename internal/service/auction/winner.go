package auction

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/entity"
	auctionrepo "github.com/Additional-Code/auctioneer/internal/repository/auction"
	bidrepo "github.com/Additional-Code/auctioneer/internal/repository/bid"
)

// ResolveWinner returns the winning bid of a closed auction, resolving it on
// first call. The result is nil when nobody bid.
func (s *Service) ResolveWinner(ctx context.Context, id string) (*entity.Bid, error) {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.ResolveWinner", trace.WithAttributes(attribute.String("auction.id", id)))
	defer span.End()

	unlock := s.locks.Lock(id)
	defer unlock()

	auction, err := s.loadAuction(ctx, id)
	if err != nil {
		return nil, err
	}
	if auction, err = s.reconcileLocked(ctx, auction); err != nil {
		return nil, err
	}
	return s.resolveLocked(ctx, auction)
}

// resolveLocked persists the winner once. Later calls read it back without
// writing.
func (s *Service) resolveLocked(ctx context.Context, auction *entity.Auction) (*entity.Bid, error) {
	if auction.Status != entity.StatusClosed {
		return nil, invalidTransitionError(auction.ID, auction.Status)
	}
	if auction.Resolved() {
		return s.winnerOf(ctx, auction)
	}

	high, err := s.bids.HighBid(ctx, auction.ID)
	if err != nil && !errors.Is(err, bidrepo.ErrNotFound) {
		return nil, storageError("failed to load high bid", err)
	}

	var winnerID *string
	if high != nil {
		id := high.ID
		winnerID = &id
	}

	now := s.clock.Now()
	err = s.auctions.SetWinner(ctx, auction.ID, winnerID, now)
	if errors.Is(err, auctionrepo.ErrAlreadyResolved) {
		// Another replica resolved it between our read and write.
		return s.adoptResolution(ctx, auction)
	}
	if err != nil {
		return nil, storageError("failed to persist winner", err)
	}
	auction.WinnerBidID = winnerID
	auction.ResolvedAt = &now

	s.metrics.resolved(ctx, high != nil)
	event := AuctionClosedEvent{AuctionID: auction.ID, WinnerBidID: winnerID, ResolvedAt: now}
	if high != nil {
		bidder := high.BidderID
		amount := high.Amount
		event.BidderID = &bidder
		event.Amount = &amount
		s.logger.Info("auction winner resolved",
			zap.String("auction_id", auction.ID),
			zap.String("bid_id", high.ID),
			zap.String("amount", high.Amount.StringFixed(2)),
		)
	} else {
		s.logger.Info("auction closed without bids", zap.String("auction_id", auction.ID))
	}
	s.publish(ctx, EventAuctionClosed, auction.ID, event)

	return high, nil
}

func (s *Service) adoptResolution(ctx context.Context, auction *entity.Auction) (*entity.Bid, error) {
	stored, err := s.loadAuction(ctx, auction.ID)
	if err != nil {
		return nil, err
	}
	auction.WinnerBidID = stored.WinnerBidID
	auction.ResolvedAt = stored.ResolvedAt
	auction.UpdatedAt = stored.UpdatedAt
	s.logger.Debug("auction resolved elsewhere", zap.String("auction_id", auction.ID))
	return s.winnerOf(ctx, auction)
}

func (s *Service) winnerOf(ctx context.Context, auction *entity.Auction) (*entity.Bid, error) {
	if auction.WinnerBidID == nil {
		return nil, nil
	}
	high, err := s.bids.HighBid(ctx, auction.ID)
	if err != nil {
		return nil, storageError("failed to load winning bid", err)
	}
	if high.ID != *auction.WinnerBidID {
		s.logger.Error("ledger high bid differs from recorded winner",
			zap.String("auction_id", auction.ID),
			zap.String("winner_bid_id", *auction.WinnerBidID),
			zap.String("high_bid_id", high.ID),
		)
	}
	return high, nil
}
