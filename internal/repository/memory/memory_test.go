package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Additional-Code/auctioneer/internal/entity"
	"github.com/Additional-Code/auctioneer/internal/repository/auction"
	"github.com/Additional-Code/auctioneer/internal/repository/bid"
)

var base = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func seed(t *testing.T, s *Store, id string, status entity.Status) *entity.Auction {
	t.Helper()
	a := &entity.Auction{
		ID:            id,
		SellerID:      "seller",
		CategoryID:    "cat-1",
		Name:          "Vintage Lamp " + id,
		Location:      "Berlin",
		StartingPrice: decimal.NewFromInt(100),
		StartTime:     base,
		EndTime:       base.Add(time.Hour),
		Status:        status,
	}
	require.NoError(t, s.Create(context.Background(), a))
	return a
}

func newBid(id, auctionID string, amount int64) *entity.Bid {
	return &entity.Bid{
		ID:        id,
		AuctionID: auctionID,
		BidderID:  "bidder",
		Amount:    decimal.NewFromInt(amount),
		PlacedAt:  base.Add(time.Minute),
	}
}

func TestStore_AppendAdvancesHighBid(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, "a", entity.StatusActive)

	b1 := newBid("b1", "a", 120)
	require.NoError(t, s.Append(ctx, b1))
	assert.Equal(t, int64(1), b1.Sequence)

	assert.ErrorIs(t, s.Append(ctx, newBid("b2", "a", 120)), bid.ErrStaleBid)

	b3 := newBid("b3", "a", 130)
	require.NoError(t, s.Append(ctx, b3))
	assert.Equal(t, int64(2), b3.Sequence)

	a, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "b3", *a.HighBidID)
	assert.True(t, a.HighBidAmount.Decimal.Equal(decimal.NewFromInt(130)))

	high, err := s.HighBid(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "b3", high.ID)
}

func TestStore_AppendRequiresActive(t *testing.T) {
	s := New()
	seed(t, s, "a", entity.StatusUpcoming)

	err := s.Append(context.Background(), newBid("b1", "a", 120))
	assert.ErrorIs(t, err, bid.ErrAuctionNotOpen)
}

func TestStore_ConcurrentAppendsKeepLedgerIncreasing(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, "a", entity.StatusActive)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = s.Append(ctx, newBid(fmt.Sprintf("b%d", i), "a", int64(101+i)))
		}(i)
	}
	wg.Wait()

	bids, err := s.AllBids(ctx, "a")
	require.NoError(t, err)
	require.NotEmpty(t, bids)
	for i := 1; i < len(bids); i++ {
		assert.True(t, bids[i].Amount.GreaterThan(bids[i-1].Amount))
		assert.Equal(t, bids[i-1].Sequence+1, bids[i].Sequence)
	}
}

func TestStore_UpdateStatusCompareAndSet(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, "a", entity.StatusUpcoming)

	require.NoError(t, s.UpdateStatus(ctx, "a", entity.StatusUpcoming, entity.StatusActive, base))
	assert.ErrorIs(t, s.UpdateStatus(ctx, "a", entity.StatusUpcoming, entity.StatusActive, base), auction.ErrStatusConflict)
	assert.ErrorIs(t, s.UpdateStatus(ctx, "a", entity.StatusActive, entity.StatusUpcoming, base), auction.ErrInvalidTransition)
}

func TestStore_SetWinnerOnce(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, "a", entity.StatusClosed)

	first := "b1"
	require.NoError(t, s.SetWinner(ctx, "a", &first, base))
	second := "b2"
	assert.ErrorIs(t, s.SetWinner(ctx, "a", &second, base.Add(time.Minute)), auction.ErrAlreadyResolved)

	a, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "b1", *a.WinnerBidID)
	assert.True(t, a.ResolvedAt.Equal(base))
}

func TestStore_ListFilters(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, "a", entity.StatusActive)
	seed(t, s, "b", entity.StatusUpcoming)
	c := &entity.Auction{ID: "c", CategoryID: "cat-2", Name: "Oak Table", Location: "Paris", Status: entity.StatusActive, EndTime: base}
	require.NoError(t, s.Create(ctx, c))

	loc := "Berlin"
	got, err := s.List(ctx, auction.Filter{Location: &loc})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	name := "oak"
	got, err = s.List(ctx, auction.Filter{NameContains: &name})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c", got[0].ID)

	got, err = s.List(ctx, auction.Filter{Statuses: []entity.Status{entity.StatusUpcoming}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].ID)

	none := "Tokyo"
	got, err = s.List(ctx, auction.Filter{Location: &none})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStore_ListFiltersByEffectiveStatus(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, "lagging", entity.StatusUpcoming)
	seed(t, s, "closed", entity.StatusClosed)

	during := base.Add(30 * time.Minute)
	got, err := s.List(ctx, auction.Filter{Statuses: []entity.Status{entity.StatusActive}, AsOf: during})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "lagging", got[0].ID)

	got, err = s.List(ctx, auction.Filter{Statuses: []entity.Status{entity.StatusClosed}, AsOf: during})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "closed", got[0].ID)

	got, err = s.List(ctx, auction.Filter{Statuses: []entity.Status{entity.StatusClosed}, AsOf: base.Add(2 * time.Hour)})
	require.NoError(t, err)
	assert.Len(t, got, 2)
}

func TestStore_ListDue(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, "upcoming", entity.StatusUpcoming)
	seed(t, s, "active", entity.StatusActive)
	seed(t, s, "closed", entity.StatusClosed)

	ids, err := s.ListDue(ctx, base.Add(-time.Minute), 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"closed"}, ids)

	ids, err = s.ListDue(ctx, base.Add(time.Hour), 10)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"upcoming", "active", "closed"}, ids)
}

func TestStore_RemoveRejectsAuctionWithBids(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, "a", entity.StatusActive)
	seed(t, s, "b", entity.StatusUpcoming)
	require.NoError(t, s.Append(ctx, newBid("b1", "a", 150)))

	assert.ErrorIs(t, s.Remove(ctx, "a", base), auction.ErrHasBids)
	require.NoError(t, s.Remove(ctx, "b", base))

	_, err := s.Get(ctx, "b")
	assert.ErrorIs(t, err, auction.ErrNotFound)
}

func TestStore_PatchOnlyWhileUpcoming(t *testing.T) {
	s := New()
	ctx := context.Background()
	seed(t, s, "a", entity.StatusUpcoming)
	seed(t, s, "b", entity.StatusActive)

	desc := "restored"
	require.NoError(t, s.Patch(ctx, "a", auction.Patch{Description: &desc}, base))
	assert.ErrorIs(t, s.Patch(ctx, "b", auction.Patch{Description: &desc}, base), auction.ErrNotEditable)

	a, err := s.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, "restored", a.Description)
	assert.Equal(t, "Vintage Lamp a", a.Name)
}
