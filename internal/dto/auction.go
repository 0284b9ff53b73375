package dto

import (
	"time"

	"github.com/Additional-Code/auctioneer/internal/entity"
)

// AuctionResponse represents an auction as exposed via transport layers.
// Money is rendered as a fixed two-decimal string.
type AuctionResponse struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	SellerID      string    `json:"seller_id"`
	CategoryID    string    `json:"category_id"`
	Location      string    `json:"location"`
	ImageURL      string    `json:"image_url"`
	StartingPrice string    `json:"starting_price"`
	CurrentPrice  string    `json:"current_price"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
	Status        string    `json:"status"`
	HighBidID     *string   `json:"high_bid_id,omitempty"`
	WinnerBidID   *string   `json:"winner_bid_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// BidResponse represents an admitted bid.
type BidResponse struct {
	ID        string    `json:"id"`
	AuctionID string    `json:"auction_id"`
	BidderID  string    `json:"bidder_id"`
	Amount    string    `json:"amount"`
	Sequence  int64     `json:"sequence"`
	PlacedAt  time.Time `json:"placed_at"`
}

// SellerResponse is the public projection of the seller.
type SellerResponse struct {
	ID             string `json:"id"`
	FullName       string `json:"full_name"`
	Email          string `json:"email,omitempty"`
	Phone          string `json:"phone,omitempty"`
	ProfilePicture string `json:"profile_picture,omitempty"`
}

// CategoryResponse names the auction's category.
type CategoryResponse struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// AuctionDetailResponse is a single auction with display fields resolved.
type AuctionDetailResponse struct {
	AuctionResponse
	Seller   *SellerResponse   `json:"seller,omitempty"`
	Category *CategoryResponse `json:"category,omitempty"`
	HighBid  *BidResponse      `json:"high_bid,omitempty"`
	Winner   *BidResponse      `json:"winner"`
	BidCount int               `json:"bid_count"`
}

// CloseResponse is the outcome of closing an auction. Winner is null when
// nobody bid.
type CloseResponse struct {
	Auction AuctionResponse `json:"auction"`
	Winner  *BidResponse    `json:"winner"`
}

// CreateAuctionRequest is the JSON body for creating an auction.
type CreateAuctionRequest struct {
	Name          string    `json:"name"`
	Description   string    `json:"description"`
	CategoryID    string    `json:"category_id"`
	Location      string    `json:"location"`
	ImageURL      string    `json:"image_url"`
	StartingPrice string    `json:"starting_price"`
	StartTime     time.Time `json:"start_time"`
	EndTime       time.Time `json:"end_time"`
}

// PatchAuctionRequest carries the fields to change. Absent fields are kept.
type PatchAuctionRequest struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
	Location    *string `json:"location"`
	CategoryID  *string `json:"category_id"`
	ImageURL    *string `json:"image_url"`
}

// PlaceBidRequest is the JSON body for a bid. Amount is a decimal string.
type PlaceBidRequest struct {
	Amount string `json:"amount"`
}

// SearchRequest filters the auction listing.
type SearchRequest struct {
	Location string   `json:"location"`
	Category string   `json:"category"`
	Name     string   `json:"name"`
	Status   []string `json:"status"`
	Limit    int      `json:"limit"`
	Offset   int      `json:"offset"`
}

// FromAuction maps an entity to its response.
func FromAuction(a *entity.Auction) AuctionResponse {
	return AuctionResponse{
		ID:            a.ID,
		Name:          a.Name,
		Description:   a.Description,
		SellerID:      a.SellerID,
		CategoryID:    a.CategoryID,
		Location:      a.Location,
		ImageURL:      a.ImageURL,
		StartingPrice: a.StartingPrice.StringFixed(2),
		CurrentPrice:  a.Floor().StringFixed(2),
		StartTime:     a.StartTime,
		EndTime:       a.EndTime,
		Status:        string(a.Status),
		HighBidID:     a.HighBidID,
		WinnerBidID:   a.WinnerBidID,
		CreatedAt:     a.CreatedAt,
		UpdatedAt:     a.UpdatedAt,
	}
}

// FromAuctions maps a slice, never returning nil.
func FromAuctions(auctions []entity.Auction) []AuctionResponse {
	out := make([]AuctionResponse, 0, len(auctions))
	for i := range auctions {
		out = append(out, FromAuction(&auctions[i]))
	}
	return out
}

// FromBid maps a bid; nil stays nil.
func FromBid(b *entity.Bid) *BidResponse {
	if b == nil {
		return nil
	}
	return &BidResponse{
		ID:        b.ID,
		AuctionID: b.AuctionID,
		BidderID:  b.BidderID,
		Amount:    b.Amount.StringFixed(2),
		Sequence:  b.Sequence,
		PlacedAt:  b.PlacedAt,
	}
}

// FromBids maps a ledger, never returning nil.
func FromBids(bids []entity.Bid) []BidResponse {
	out := make([]BidResponse, 0, len(bids))
	for i := range bids {
		out = append(out, *FromBid(&bids[i]))
	}
	return out
}

// FromSeller maps a directory user; nil stays nil.
func FromSeller(u *entity.User) *SellerResponse {
	if u == nil {
		return nil
	}
	return &SellerResponse{
		ID:             u.ID,
		FullName:       u.FullName,
		Email:          u.Email,
		Phone:          u.Phone,
		ProfilePicture: u.ProfilePicture,
	}
}

// FromCategory maps a category; nil stays nil.
func FromCategory(c *entity.Category) *CategoryResponse {
	if c == nil {
		return nil
	}
	return &CategoryResponse{ID: c.ID, Name: c.Name}
}
