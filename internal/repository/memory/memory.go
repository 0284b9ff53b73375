// Package memory keeps auctions and bids in process. It backs the memory
// database driver used by local runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Additional-Code/auctioneer/internal/entity"
	"github.com/Additional-Code/auctioneer/internal/repository/auction"
	"github.com/Additional-Code/auctioneer/internal/repository/bid"
)

const defaultListLimit = 100

// Store implements both auction.Store and bid.Ledger over shared maps so a
// bid append and the high-bid update happen under one lock.
type Store struct {
	mu       sync.RWMutex
	auctions map[string]*entity.Auction
	bids     map[string][]*entity.Bid
}

var (
	_ auction.Store = (*Store)(nil)
	_ bid.Ledger    = (*Store)(nil)
)

// New returns an empty store.
func New() *Store {
	return &Store{
		auctions: make(map[string]*entity.Auction),
		bids:     make(map[string][]*entity.Bid),
	}
}

// Create stores a copy of the auction; the id must be unused.
func (s *Store) Create(_ context.Context, a *entity.Auction) error {
	if a == nil {
		return fmt.Errorf("nil auction")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.auctions[a.ID]; ok {
		return fmt.Errorf("auction %s already exists", a.ID)
	}
	cp := a.Clone()
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	s.auctions[a.ID] = cp
	return nil
}

// Get returns a copy of a live auction.
func (s *Store) Get(_ context.Context, id string) (*entity.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, err := s.live(id)
	if err != nil {
		return nil, err
	}
	return a.Clone(), nil
}

// List returns live auctions matching the filter, soonest ending first.
func (s *Store) List(_ context.Context, filter auction.Filter) ([]entity.Auction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var needle string
	if filter.NameContains != nil {
		needle = strings.ToLower(*filter.NameContains)
	}

	matched := make([]entity.Auction, 0)
	for _, a := range s.auctions {
		if a.Removed() {
			continue
		}
		if filter.Location != nil && a.Location != *filter.Location {
			continue
		}
		if filter.CategoryID != nil && a.CategoryID != *filter.CategoryID {
			continue
		}
		if filter.NameContains != nil && !strings.Contains(strings.ToLower(a.Name), needle) {
			continue
		}
		if len(filter.Statuses) > 0 {
			status := a.Status
			if !filter.AsOf.IsZero() {
				status = a.EffectiveStatus(filter.AsOf)
			}
			if !containsStatus(filter.Statuses, status) {
				continue
			}
		}
		matched = append(matched, *a.Clone())
	}

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].EndTime.Equal(matched[j].EndTime) {
			return matched[i].EndTime.Before(matched[j].EndTime)
		}
		return matched[i].ID < matched[j].ID
	})

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if filter.Offset >= len(matched) {
		return []entity.Auction{}, nil
	}
	end := filter.Offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[filter.Offset:end], nil
}

// UpdateStatus moves from -> to only while the stored status is still from.
func (s *Store) UpdateStatus(_ context.Context, id string, from, to entity.Status, at time.Time) error {
	if !from.CanTransition(to) {
		return fmt.Errorf("%w: %s -> %s", auction.ErrInvalidTransition, from, to)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.live(id)
	if err != nil {
		return err
	}
	if a.Status != from {
		return fmt.Errorf("%w: expected %s, found %s", auction.ErrStatusConflict, from, a.Status)
	}
	a.Status = to
	a.UpdatedAt = at
	return nil
}

// SetWinner stamps the resolution of a closed auction once.
func (s *Store) SetWinner(_ context.Context, id string, bidID *string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.live(id)
	if err != nil {
		return err
	}
	if a.Status != entity.StatusClosed {
		return fmt.Errorf("%w: winner requires closed auction, found %s", auction.ErrInvalidTransition, a.Status)
	}
	if a.Resolved() {
		return auction.ErrAlreadyResolved
	}
	if bidID != nil {
		v := *bidID
		a.WinnerBidID = &v
	}
	resolved := at
	a.ResolvedAt = &resolved
	a.UpdatedAt = at
	return nil
}

// Patch applies the non-nil fields while the auction is upcoming.
func (s *Store) Patch(_ context.Context, id string, patch auction.Patch, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.live(id)
	if err != nil {
		return err
	}
	if a.Status != entity.StatusUpcoming {
		return auction.ErrNotEditable
	}
	if patch.Name != nil {
		a.Name = *patch.Name
	}
	if patch.Description != nil {
		a.Description = *patch.Description
	}
	if patch.Location != nil {
		a.Location = *patch.Location
	}
	if patch.CategoryID != nil {
		a.CategoryID = *patch.CategoryID
	}
	if patch.ImageURL != nil {
		a.ImageURL = *patch.ImageURL
	}
	a.UpdatedAt = at
	return nil
}

// Remove soft-deletes an auction that has no bids.
func (s *Store) Remove(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, err := s.live(id)
	if err != nil {
		return err
	}
	if len(s.bids[id]) > 0 {
		return auction.ErrHasBids
	}
	removed := at
	a.RemovedAt = &removed
	a.UpdatedAt = at
	return nil
}

// ListDue returns ids whose stored status lags now, or that closed unresolved.
func (s *Store) ListDue(_ context.Context, now time.Time, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = defaultListLimit
	}

	due := make([]*entity.Auction, 0)
	for _, a := range s.auctions {
		if a.Removed() {
			continue
		}
		switch a.Status {
		case entity.StatusUpcoming:
			if !now.Before(a.StartTime) {
				due = append(due, a)
			}
		case entity.StatusActive:
			if !now.Before(a.EndTime) {
				due = append(due, a)
			}
		case entity.StatusClosed:
			if !a.Resolved() {
				due = append(due, a)
			}
		}
	}
	sort.Slice(due, func(i, j int) bool { return due[i].EndTime.Before(due[j].EndTime) })

	ids := make([]string, 0, len(due))
	for i, a := range due {
		if i == limit {
			break
		}
		ids = append(ids, a.ID)
	}
	return ids, nil
}

// Append admits the bid only if it beats the current high bid.
func (s *Store) Append(_ context.Context, b *entity.Bid) error {
	if b == nil {
		return fmt.Errorf("nil bid")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.auctions[b.AuctionID]
	if !ok || a.Removed() || a.Status != entity.StatusActive {
		return bid.ErrAuctionNotOpen
	}
	if a.HighBidAmount.Valid && !b.Amount.GreaterThan(a.HighBidAmount.Decimal) {
		return bid.ErrStaleBid
	}

	b.Sequence = int64(len(s.bids[b.AuctionID])) + 1
	s.bids[b.AuctionID] = append(s.bids[b.AuctionID], b.Clone())

	highID := b.ID
	a.HighBidID = &highID
	a.HighBidAmount.Decimal = b.Amount
	a.HighBidAmount.Valid = true
	a.UpdatedAt = b.PlacedAt
	return nil
}

// HighBid returns the greatest admitted bid.
func (s *Store) HighBid(_ context.Context, auctionID string) (*entity.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var high *entity.Bid
	for _, b := range s.bids[auctionID] {
		if high == nil || b.Amount.GreaterThan(high.Amount) {
			high = b
		}
	}
	if high == nil {
		return nil, bid.ErrNotFound
	}
	return high.Clone(), nil
}

// AllBids returns the auction's bids in admission order.
func (s *Store) AllBids(_ context.Context, auctionID string) ([]entity.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]entity.Bid, 0, len(s.bids[auctionID]))
	for _, b := range s.bids[auctionID] {
		out = append(out, *b.Clone())
	}
	return out, nil
}

// FindByIdempotencyKey returns the bid a retried request already placed.
func (s *Store) FindByIdempotencyKey(_ context.Context, auctionID, bidderID, key string) (*entity.Bid, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, b := range s.bids[auctionID] {
		if b.BidderID == bidderID && b.IdempotencyKey != nil && *b.IdempotencyKey == key {
			return b.Clone(), nil
		}
	}
	return nil, bid.ErrNotFound
}

// Count returns the number of admitted bids.
func (s *Store) Count(_ context.Context, auctionID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.bids[auctionID]), nil
}

func (s *Store) live(id string) (*entity.Auction, error) {
	a, ok := s.auctions[id]
	if !ok || a.Removed() {
		return nil, auction.ErrNotFound
	}
	return a, nil
}

func containsStatus(statuses []entity.Status, s entity.Status) bool {
	for _, candidate := range statuses {
		if candidate == s {
			return true
		}
	}
	return false
}
