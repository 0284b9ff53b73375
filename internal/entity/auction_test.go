package entity

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestStatusAt(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	assert.Equal(t, StatusUpcoming, StatusAt(start, end, start.Add(-time.Nanosecond)))
	assert.Equal(t, StatusActive, StatusAt(start, end, start))
	assert.Equal(t, StatusActive, StatusAt(start, end, end.Add(-time.Nanosecond)))
	assert.Equal(t, StatusClosed, StatusAt(start, end, end))
}

func TestStatus_CanTransition(t *testing.T) {
	assert.True(t, StatusUpcoming.CanTransition(StatusActive))
	assert.True(t, StatusUpcoming.CanTransition(StatusClosed))
	assert.True(t, StatusActive.CanTransition(StatusClosed))

	assert.False(t, StatusActive.CanTransition(StatusUpcoming))
	assert.False(t, StatusClosed.CanTransition(StatusActive))
	assert.False(t, StatusClosed.CanTransition(StatusClosed))
	assert.False(t, Status("over").CanTransition(StatusClosed))
}

func TestAuction_Floor(t *testing.T) {
	a := &Auction{StartingPrice: decimal.NewFromInt(100)}
	assert.True(t, a.Floor().Equal(decimal.NewFromInt(100)))

	id := "bid-1"
	a.HighBidID = &id
	a.HighBidAmount = decimal.NewNullDecimal(decimal.NewFromInt(150))
	assert.True(t, a.HasHighBid())
	assert.True(t, a.Floor().Equal(decimal.NewFromInt(150)))
}

func TestAuction_CloneIsDeep(t *testing.T) {
	id := "bid-1"
	a := &Auction{ID: "a", HighBidID: &id}

	cp := a.Clone()
	*cp.HighBidID = "bid-2"

	assert.Equal(t, "bid-1", *a.HighBidID)
}

func TestAuction_EffectiveStatus(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	a := &Auction{StartTime: start, EndTime: start.Add(time.Hour), Status: StatusUpcoming}

	assert.Equal(t, StatusUpcoming, a.EffectiveStatus(start.Add(-time.Minute)))
	assert.Equal(t, StatusActive, a.EffectiveStatus(start))
	assert.Equal(t, StatusClosed, a.EffectiveStatus(start.Add(2*time.Hour)))

	// Closed early by an admin: the clock never reopens it.
	a.Status = StatusClosed
	assert.Equal(t, StatusClosed, a.EffectiveStatus(start.Add(time.Minute)))
	assert.Equal(t, StatusClosed, a.EffectiveStatus(start.Add(-time.Minute)))
}
