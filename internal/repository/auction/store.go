package auction

import (
	"context"
	"errors"
	"time"

	"github.com/Additional-Code/auctioneer/internal/entity"
)

var (
	// ErrNotFound is returned when an auction is missing or soft-removed.
	ErrNotFound = errors.New("auction not found")
	// ErrInvalidTransition is returned for a status change that is not a forward step.
	ErrInvalidTransition = errors.New("invalid auction status transition")
	// ErrStatusConflict is returned when the compare-and-set on status lost to
	// a concurrent writer; the caller should re-read.
	ErrStatusConflict = errors.New("auction status changed concurrently")
	// ErrNotEditable is returned when patching an auction that already opened.
	ErrNotEditable = errors.New("auction can only be edited while upcoming")
	// ErrHasBids is returned when removing an auction that has bids.
	ErrHasBids = errors.New("auction has bids")
	// ErrAlreadyResolved is returned by SetWinner when another writer stamped
	// the resolution first; the persisted winner stands.
	ErrAlreadyResolved = errors.New("auction winner already resolved")
)

// Filter is a set of optional predicates combined with AND. When AsOf is
// set, Statuses match the effective status at that instant instead of the
// stored one.
type Filter struct {
	Location     *string
	CategoryID   *string
	NameContains *string
	Statuses     []entity.Status
	AsOf         time.Time
	Limit        int
	Offset       int
}

// Patch holds the fields to overwrite; nil fields are left untouched.
type Patch struct {
	Name        *string
	Description *string
	Location    *string
	CategoryID  *string
	ImageURL    *string
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Name == nil && p.Description == nil && p.Location == nil && p.CategoryID == nil && p.ImageURL == nil
}

// Store persists auction records and is the source of truth for lifecycle state.
type Store interface {
	Create(ctx context.Context, auction *entity.Auction) error
	Get(ctx context.Context, id string) (*entity.Auction, error)
	List(ctx context.Context, filter Filter) ([]entity.Auction, error)
	// UpdateStatus moves the auction from -> to only if its stored status is still from.
	UpdateStatus(ctx context.Context, id string, from, to entity.Status, at time.Time) error
	// SetWinner records the resolution of a closed auction. bidID is nil when
	// nobody bid. A second call after resolution writes nothing and returns
	// ErrAlreadyResolved.
	SetWinner(ctx context.Context, id string, bidID *string, at time.Time) error
	Patch(ctx context.Context, id string, patch Patch, at time.Time) error
	Remove(ctx context.Context, id string, at time.Time) error
	// ListDue returns ids whose stored status lags the status derived from now,
	// plus closed auctions that are still unresolved.
	ListDue(ctx context.Context, now time.Time, limit int) ([]string, error)
}
