package auction

import (
	"context"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Additional-Code/auctioneer/internal/entity"
	"github.com/Additional-Code/auctioneer/internal/messaging"
)

// Event types published on the bus.
const (
	EventBidAdmitted        = "bid.admitted"
	EventStatusChanged      = "auction.status_changed"
	EventAuctionClosed      = "auction.closed"
	EventLifecycleReconcile = "lifecycle.reconcile"
)

// BidAdmittedEvent is emitted after a bid is committed to the ledger.
type BidAdmittedEvent struct {
	AuctionID string          `json:"auction_id"`
	BidID     string          `json:"bid_id"`
	BidderID  string          `json:"bidder_id"`
	Amount    decimal.Decimal `json:"amount"`
	Sequence  int64           `json:"sequence"`
	PlacedAt  time.Time       `json:"placed_at"`
}

// StatusChangedEvent is emitted after a persisted status transition.
type StatusChangedEvent struct {
	AuctionID string        `json:"auction_id"`
	From      entity.Status `json:"from"`
	To        entity.Status `json:"to"`
	At        time.Time     `json:"at"`
}

// AuctionClosedEvent is emitted once the winner has been resolved.
type AuctionClosedEvent struct {
	AuctionID   string           `json:"auction_id"`
	WinnerBidID *string          `json:"winner_bid_id"`
	BidderID    *string          `json:"winner_bidder_id"`
	Amount      *decimal.Decimal `json:"amount"`
	ResolvedAt  time.Time        `json:"resolved_at"`
}

// ReconcileRequest asks a worker to reconcile one auction.
type ReconcileRequest struct {
	AuctionID   string    `json:"auction_id"`
	RequestedAt time.Time `json:"requested_at"`
}

// publish sends events after the state change is committed. Delivery is
// best effort; failures are logged and never undo the committed change.
func (s *Service) publish(ctx context.Context, eventType, auctionID string, payload any) {
	if s.publisher == nil {
		return
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("marshal event", zap.String("event_type", eventType), zap.Error(err))
		return
	}
	headers := map[string]string{messaging.HeaderEventType: eventType}
	if err := s.publisher.Publish(ctx, []byte(auctionID), raw, headers); err != nil {
		s.logger.Warn("publish event failed",
			zap.String("event_type", eventType),
			zap.String("auction_id", auctionID),
			zap.Error(err),
		)
	}
}
