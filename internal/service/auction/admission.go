package auction

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/entity"
	bidrepo "github.com/Additional-Code/auctioneer/internal/repository/bid"
	"github.com/Additional-Code/auctioneer/pkg/errorbank"
)

const maxIdempotencyKeyLen = 128

// BidRequest is one logical bid attempt. Retries of the same attempt carry
// the same IdempotencyKey.
type BidRequest struct {
	AuctionID      string
	BidderID       string
	Amount         decimal.Decimal
	IdempotencyKey string
}

// PlaceBid admits a bid or explains why not. The floor check and the ledger
// append run inside the auction's critical section, and the ledger append is
// itself conditional on the stored high bid.
func (s *Service) PlaceBid(ctx context.Context, req BidRequest) (*entity.Bid, error) {
	ctx, span := serviceTracer.Start(ctx, "AuctionService.PlaceBid", trace.WithAttributes(
		attribute.String("auction.id", req.AuctionID),
		attribute.String("bid.amount", req.Amount.String()),
	))
	defer span.End()

	req.BidderID = strings.TrimSpace(req.BidderID)
	req.IdempotencyKey = strings.TrimSpace(req.IdempotencyKey)
	if err := validateBid(req); err != nil {
		return nil, s.rejected(ctx, span, CodeValidation, err)
	}

	unlock := s.locks.Lock(req.AuctionID)
	defer unlock()

	auction, err := s.loadAuction(ctx, req.AuctionID)
	if err != nil {
		return nil, err
	}

	if req.IdempotencyKey != "" {
		prior, err := s.bids.FindByIdempotencyKey(ctx, req.AuctionID, req.BidderID, req.IdempotencyKey)
		if err == nil {
			s.logger.Debug("bid replayed from idempotency key",
				zap.String("auction_id", req.AuctionID),
				zap.String("bid_id", prior.ID),
			)
			span.SetAttributes(attribute.Bool("bid.replayed", true))
			return prior, nil
		}
		if !errors.Is(err, bidrepo.ErrNotFound) {
			return nil, storageError("failed to look up idempotency key", err)
		}
	}

	if auction, err = s.reconcileLocked(ctx, auction); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	switch effectiveStatus(auction, now) {
	case entity.StatusUpcoming:
		return nil, s.rejected(ctx, span, CodeAuctionNotActive, notActiveError(auction.ID, ReasonNotStarted))
	case entity.StatusClosed:
		return nil, s.rejected(ctx, span, CodeAuctionNotActive, notActiveError(auction.ID, ReasonClosed))
	}

	if req.BidderID == auction.SellerID {
		return nil, s.rejected(ctx, span, CodeSelfBid, errorbank.BadRequest("sellers cannot bid on their own auction",
			errorbank.WithCode(CodeSelfBid),
			errorbank.WithCause(ErrSelfBid),
			errorbank.WithDetail("auction_id", auction.ID),
		))
	}

	floor := auction.Floor()
	minimum, inclusive := floor, false
	if s.minIncrement.IsPositive() && auction.HasHighBid() {
		minimum, inclusive = floor.Add(s.minIncrement), true
	}
	if !clears(req.Amount, minimum, inclusive) {
		return nil, s.rejected(ctx, span, CodeBidTooLow, bidTooLowError(auction.ID, floor, minimum, inclusive))
	}

	bid := &entity.Bid{
		ID:        uuid.NewString(),
		AuctionID: auction.ID,
		BidderID:  req.BidderID,
		Amount:    req.Amount,
		PlacedAt:  now,
	}
	if req.IdempotencyKey != "" {
		key := req.IdempotencyKey
		bid.IdempotencyKey = &key
	}

	if err := s.bids.Append(ctx, bid); err != nil {
		switch {
		case errors.Is(err, bidrepo.ErrStaleBid):
			return nil, s.rejected(ctx, span, CodeBidTooLow, bidTooLowError(auction.ID, floor, minimum, inclusive))
		case errors.Is(err, bidrepo.ErrAuctionNotOpen):
			return nil, s.rejected(ctx, span, CodeAuctionNotActive, notActiveError(auction.ID, ReasonClosed))
		default:
			span.RecordError(err)
			span.SetStatus(codes.Error, "ledger append failed")
			return nil, storageError("failed to record bid", err)
		}
	}

	s.metrics.bidAdmitted(ctx)
	span.SetAttributes(attribute.String("bid.id", bid.ID), attribute.Int64("bid.sequence", bid.Sequence))
	s.logger.Info("bid admitted",
		zap.String("auction_id", bid.AuctionID),
		zap.String("bid_id", bid.ID),
		zap.String("bidder_id", bid.BidderID),
		zap.String("amount", bid.Amount.StringFixed(2)),
		zap.Int64("sequence", bid.Sequence),
	)
	s.publish(ctx, EventBidAdmitted, bid.AuctionID, BidAdmittedEvent{
		AuctionID: bid.AuctionID,
		BidID:     bid.ID,
		BidderID:  bid.BidderID,
		Amount:    bid.Amount,
		Sequence:  bid.Sequence,
		PlacedAt:  bid.PlacedAt,
	})
	return bid, nil
}

func validateBid(req BidRequest) error {
	details := make(map[string]any)
	if strings.TrimSpace(req.AuctionID) == "" {
		details["auction_id"] = "required"
	}
	if req.BidderID == "" {
		details["bidder_id"] = "required"
	}
	if msg := priceProblem(req.Amount); msg != "" {
		details["amount"] = msg
	}
	if len(req.IdempotencyKey) > maxIdempotencyKeyLen {
		details["idempotency_key"] = "max=128"
	}
	if len(details) > 0 {
		return validationError("invalid bid", details)
	}
	return nil
}

// clears reports whether amount beats minimum: strictly, or with equality
// allowed when a minimum increment applies.
func clears(amount, minimum decimal.Decimal, inclusive bool) bool {
	if inclusive {
		return amount.GreaterThanOrEqual(minimum)
	}
	return amount.GreaterThan(minimum)
}

func bidTooLowError(auctionID string, floor, minimum decimal.Decimal, inclusive bool) error {
	rule := "greater_than"
	if inclusive {
		rule = "at_least"
	}
	return errorbank.BadRequest("bid is below the current floor",
		errorbank.WithCode(CodeBidTooLow),
		errorbank.WithCause(ErrBidTooLow),
		errorbank.WithDetail("auction_id", auctionID),
		errorbank.WithDetail("floor", floor.StringFixed(2)),
		errorbank.WithDetail("minimum", minimum.StringFixed(2)),
		errorbank.WithDetail("rule", rule),
	)
}

func (s *Service) rejected(ctx context.Context, span trace.Span, code string, err error) error {
	s.metrics.bidRejected(ctx, code)
	span.SetAttributes(attribute.String("bid.rejected", code))
	return err
}
