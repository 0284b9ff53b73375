package bid

import (
	"context"
	"errors"

	"github.com/Additional-Code/auctioneer/internal/entity"
)

var (
	// ErrStaleBid is returned when the amount no longer beats the stored high bid.
	ErrStaleBid = errors.New("bid does not exceed current high bid")
	// ErrAuctionNotOpen is returned when the auction left active before the append.
	ErrAuctionNotOpen = errors.New("auction is not accepting bids")
	// ErrNotFound is returned when no bid matches.
	ErrNotFound = errors.New("bid not found")
)

// Ledger is the append-only record of admitted bids.
type Ledger interface {
	// Append stores the bid and advances the auction's high bid atomically.
	// It assigns Sequence. The bid is rejected with ErrStaleBid unless its
	// amount strictly exceeds the high bid at the moment of the write.
	Append(ctx context.Context, bid *entity.Bid) error
	HighBid(ctx context.Context, auctionID string) (*entity.Bid, error)
	// AllBids returns bids in admission order.
	AllBids(ctx context.Context, auctionID string) ([]entity.Bid, error)
	FindByIdempotencyKey(ctx context.Context, auctionID, bidderID, key string) (*entity.Bid, error)
	Count(ctx context.Context, auctionID string) (int, error)
}
