package models

// StartSellingRequest opens a listing
type StartSellingRequest struct {
	Product      string `json:"product"`
	InitialPrice uint64 `json:"initial_price"`
}

// OfferRequest raises the highest bid
type OfferRequest struct {
	Price uint64 `json:"price"`
}

// PayRequest settles an accepted listing
type PayRequest struct {
	Amount uint64 `json:"amount"`
}

// AuctionResponse represents the API response after an operation
type AuctionResponse struct {
	Success bool    `json:"success"`
	Message string  `json:"message"`
	Auction Auction `json:"auction"`
	EventID string  `json:"event_id,omitempty"`
}

// ErrorResponse is returned for rejected or malformed requests
type ErrorResponse struct {
	Error   string   `json:"error"`
	Kind    string   `json:"kind,omitempty"`
	Auction *Auction `json:"auction,omitempty"`
}
