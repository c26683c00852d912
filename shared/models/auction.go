package models

// Status is the phase of the single active listing
type Status string

// Status constants
const (
	StatusIdle     Status = "idle"
	StatusSelling  Status = "selling"
	StatusAccepted Status = "accepted"
)

// Participant identifies a seller or bidder. The zero value means "nobody"
// and is never accepted as a caller.
type Participant string

// IsZero reports whether p is the empty identity
func (p Participant) IsZero() bool {
	return p == ""
}

// Auction is the record of the one listing a machine serves at a time
type Auction struct {
	ID            string      `json:"id"`
	ListingID     string      `json:"listing_id,omitempty"`
	Status        Status      `json:"status"`
	Product       string      `json:"product,omitempty"`
	Seller        Participant `json:"seller,omitempty"`
	HighestBid    uint64      `json:"highest_bid"`
	HighestBidder Participant `json:"highest_bidder,omitempty"`
	// Version increases on every successful operation and survives resets
	Version uint64 `json:"version"`
}

// NewAuction returns an Idle auction record
func NewAuction(id string) *Auction {
	return &Auction{
		ID:     id,
		Status: StatusIdle,
	}
}

// IsIdle reports whether no listing is active
func (a *Auction) IsIdle() bool {
	return a.Status == StatusIdle || a.Status == ""
}

// Reset clears the listing fields and returns the record to Idle.
// ID and Version are kept.
func (a *Auction) Reset() {
	a.Status = StatusIdle
	a.ListingID = ""
	a.Product = ""
	a.Seller = ""
	a.HighestBid = 0
	a.HighestBidder = ""
}
