package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Bid is an admitted offer on an auction. Bids are never updated or deleted.
type Bid struct {
	bun.BaseModel `bun:"table:bids,alias:b"`

	ID             string          `bun:"id,pk"`
	AuctionID      string          `bun:"auction_id,notnull"`
	BidderID       string          `bun:"bidder_id,notnull"`
	Amount         decimal.Decimal `bun:"amount,type:numeric(18,2),notnull"`
	Sequence       int64           `bun:"sequence,notnull"`
	PlacedAt       time.Time       `bun:"placed_at,notnull"`
	IdempotencyKey *string         `bun:"idempotency_key"`
}

// Clone returns a deep copy.
func (b *Bid) Clone() *Bid {
	if b == nil {
		return nil
	}
	cp := *b
	cp.IdempotencyKey = cloneString(b.IdempotencyKey)
	return &cp
}
