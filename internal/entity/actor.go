package entity

// Role is the marketplace role asserted by the upstream gateway.
type Role string

const (
	RoleSeller Role = "seller"
	RoleBidder Role = "bidder"
	RoleAdmin  Role = "admin"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleSeller, RoleBidder, RoleAdmin:
		return true
	default:
		return false
	}
}

// Actor identifies who is calling.
type Actor struct {
	ID   string
	Role Role
}

// IsAdmin reports whether the actor may act on any auction.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Owns reports whether the actor is the seller of the auction.
func (a Actor) Owns(auction *Auction) bool {
	return auction != nil && a.ID != "" && a.ID == auction.SellerID
}
