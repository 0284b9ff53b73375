package entity

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/uptrace/bun"
)

// Status is the lifecycle state of an auction.
type Status string

const (
	StatusUpcoming Status = "upcoming"
	StatusActive   Status = "active"
	StatusClosed   Status = "closed"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s.rank() > 0
}

// CanTransition reports whether moving from s to next is a forward step.
// Skipping active (upcoming -> closed) is allowed; nothing ever moves back.
func (s Status) CanTransition(next Status) bool {
	return s.Valid() && next.Valid() && s.rank() < next.rank()
}

// AtLeast reports whether s is the same as or later than other.
func (s Status) AtLeast(other Status) bool {
	return s.rank() >= other.rank()
}

func (s Status) rank() int {
	switch s {
	case StatusUpcoming:
		return 1
	case StatusActive:
		return 2
	case StatusClosed:
		return 3
	default:
		return 0
	}
}

// StatusAt derives the status an auction with window [start, end) has at now.
// The end instant itself is already closed.
func StatusAt(start, end, now time.Time) Status {
	switch {
	case now.Before(start):
		return StatusUpcoming
	case now.Before(end):
		return StatusActive
	default:
		return StatusClosed
	}
}

// Auction is an item listed by a seller for a fixed bidding window.
type Auction struct {
	bun.BaseModel `bun:"table:auctions,alias:a"`

	ID            string              `bun:"id,pk"`
	SellerID      string              `bun:"seller_id,notnull"`
	CategoryID    string              `bun:"category_id,notnull"`
	Name          string              `bun:"name,notnull"`
	Description   string              `bun:"description,notnull"`
	Location      string              `bun:"location,notnull"`
	ImageURL      string              `bun:"image_url,notnull"`
	StartingPrice decimal.Decimal     `bun:"starting_price,type:numeric(18,2),notnull"`
	StartTime     time.Time           `bun:"start_time,notnull"`
	EndTime       time.Time           `bun:"end_time,notnull"`
	Status        Status              `bun:"status,notnull"`
	HighBidID     *string             `bun:"high_bid_id"`
	HighBidAmount decimal.NullDecimal `bun:"high_bid_amount,type:numeric(18,2)"`
	WinnerBidID   *string             `bun:"winner_bid_id"`
	ResolvedAt    *time.Time          `bun:"resolved_at"`
	RemovedAt     *time.Time          `bun:"removed_at"`
	CreatedAt     time.Time           `bun:"created_at,nullzero,notnull,default:CURRENT_TIMESTAMP"`
	UpdatedAt     time.Time           `bun:"updated_at,nullzero"`
}

// Floor is the amount a new bid has to beat: the current high bid, or the
// starting price while there is none.
func (a *Auction) Floor() decimal.Decimal {
	if a.HighBidAmount.Valid && a.HighBidAmount.Decimal.GreaterThan(a.StartingPrice) {
		return a.HighBidAmount.Decimal
	}
	return a.StartingPrice
}

// EffectiveStatus is the later of the stored status and the one derived from
// now. A recorded closure holds even when the clock moves backwards.
func (a *Auction) EffectiveStatus(now time.Time) Status {
	derived := StatusAt(a.StartTime, a.EndTime, now)
	if a.Status.Valid() && a.Status.AtLeast(derived) {
		return a.Status
	}
	return derived
}

// HasHighBid reports whether at least one bid was admitted.
func (a *Auction) HasHighBid() bool {
	return a.HighBidID != nil && a.HighBidAmount.Valid
}

// Resolved reports whether the winner has been computed and persisted.
func (a *Auction) Resolved() bool {
	return a.ResolvedAt != nil
}

// Removed reports whether the auction was soft-removed.
func (a *Auction) Removed() bool {
	return a.RemovedAt != nil
}

// Clone returns a deep copy safe to hand out of an in-process store.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	cp := *a
	cp.HighBidID = cloneString(a.HighBidID)
	cp.WinnerBidID = cloneString(a.WinnerBidID)
	cp.ResolvedAt = cloneTime(a.ResolvedAt)
	cp.RemovedAt = cloneTime(a.RemovedAt)
	return &cp
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
