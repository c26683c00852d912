// Package auction implements the single-listing auction state machine:
// a seller lists a product, bidders raise offers, the seller accepts the
// best one and the winner pays, which moves the funds to the seller and
// returns the machine to Idle.
package auction

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/aaronwang/bidding-app/shared/models"
	"github.com/google/uuid"
)

// Transferer moves funds to a participant. It is called only while settling
// and its failure aborts the settlement. ref identifies the listing being
// paid for; a Transferer that has already applied ref to the same recipient
// and amount returns an error wrapping ErrDuplicateTransfer instead of moving
// the funds again.
type Transferer interface {
	Transfer(ctx context.Context, ref string, to models.Participant, amount uint64) error
}

// TransferFunc adapts a function to Transferer
type TransferFunc func(ctx context.Context, ref string, to models.Participant, amount uint64) error

// Transfer calls f
func (f TransferFunc) Transfer(ctx context.Context, ref string, to models.Participant, amount uint64) error {
	return f(ctx, ref, to, amount)
}

// Machine serializes all operations on one auction record. Every operation
// either applies completely or leaves the record untouched.
type Machine struct {
	mu       sync.Mutex
	auction  *models.Auction
	transfer Transferer
}

// New creates a machine over record. A nil record starts a fresh Idle
// auction. The machine takes ownership of record; read it through Snapshot.
func New(record *models.Auction, transfer Transferer) *Machine {
	if record == nil {
		record = models.NewAuction("")
	}
	if record.Status == "" {
		record.Status = models.StatusIdle
	}
	return &Machine{
		auction:  record,
		transfer: transfer,
	}
}

// Snapshot returns a copy of the current record
func (m *Machine) Snapshot() models.Auction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.auction
}

// StartSelling opens a listing for product with the caller as seller and
// bidder of record at initialPrice. Zero is a valid price.
func (m *Machine) StartSelling(ctx context.Context, caller models.Participant, product string, initialPrice uint64) (models.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireStatus(models.StatusIdle); err != nil {
		return *m.auction, fmt.Errorf("start selling: %w", err)
	}
	if caller.IsZero() {
		return *m.auction, fmt.Errorf("start selling: %w: caller identity is empty", ErrUnauthorized)
	}

	a := m.auction
	a.ListingID = uuid.New().String()
	a.Status = models.StatusSelling
	a.Product = product
	a.Seller = caller
	a.HighestBid = initialPrice
	a.HighestBidder = caller
	a.Version++
	return *a, nil
}

// Offer replaces the highest bid when price strictly exceeds it. Ties keep
// the earlier bidder.
func (m *Machine) Offer(ctx context.Context, caller models.Participant, price uint64) (models.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireStatus(models.StatusSelling); err != nil {
		return *m.auction, fmt.Errorf("offer: %w", err)
	}
	if caller.IsZero() {
		return *m.auction, fmt.Errorf("offer: %w: caller identity is empty", ErrUnauthorized)
	}
	if price <= m.auction.HighestBid {
		return *m.auction, fmt.Errorf("offer: %w: %d does not exceed %d", ErrBidTooLow, price, m.auction.HighestBid)
	}

	a := m.auction
	a.HighestBid = price
	a.HighestBidder = caller
	a.Version++
	return *a, nil
}

// AcceptOffer freezes the highest bid. Only the seller may call it.
func (m *Machine) AcceptOffer(ctx context.Context, caller models.Participant) (models.Auction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireStatus(models.StatusSelling); err != nil {
		return *m.auction, fmt.Errorf("accept offer: %w", err)
	}
	if err := m.requireCaller(caller, m.auction.Seller, "seller"); err != nil {
		return *m.auction, fmt.Errorf("accept offer: %w", err)
	}

	m.auction.Status = models.StatusAccepted
	m.auction.Version++
	return *m.auction, nil
}

// Pay settles an accepted listing. The highest bidder must attach exactly
// the accepted price; the amount is transferred to the seller and the
// record resets to Idle. If the transfer fails nothing changes. A transfer
// the Transferer reports as already recorded for this listing closes the
// listing without moving funds again, which covers a host restored from a
// snapshot taken before an earlier settlement. The returned Settlement
// describes the listing that was closed; its time is left for the caller.
func (m *Machine) Pay(ctx context.Context, caller models.Participant, amount uint64) (models.Auction, models.Settlement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.requireStatus(models.StatusAccepted); err != nil {
		return *m.auction, models.Settlement{}, fmt.Errorf("pay: %w", err)
	}
	if err := m.requireCaller(caller, m.auction.HighestBidder, "highest bidder"); err != nil {
		return *m.auction, models.Settlement{}, fmt.Errorf("pay: %w", err)
	}
	if amount != m.auction.HighestBid {
		return *m.auction, models.Settlement{}, fmt.Errorf("pay: %w: attached %d, accepted price %d", ErrAmountMismatch, amount, m.auction.HighestBid)
	}
	if m.transfer == nil {
		return *m.auction, models.Settlement{}, fmt.Errorf("pay: %w: no transfer primitive configured", ErrTransferFailed)
	}

	settled := models.Settlement{
		ID:        m.listingRef(),
		AuctionID: m.auction.ID,
		Product:   m.auction.Product,
		Seller:    m.auction.Seller,
		Buyer:     caller,
		Amount:    amount,
	}
	err := m.transfer.Transfer(ctx, settled.ID, m.auction.Seller, amount)
	if err != nil && !errors.Is(err, ErrDuplicateTransfer) {
		return *m.auction, models.Settlement{}, fmt.Errorf("pay: %w: %w", ErrTransferFailed, err)
	}

	m.auction.Reset()
	m.auction.Version++
	return *m.auction, settled, nil
}

// listingRef names the active listing. Records restored from before listing
// IDs existed fall back to the auction ID and the version at acceptance.
func (m *Machine) listingRef() string {
	if m.auction.ListingID != "" {
		return m.auction.ListingID
	}
	return fmt.Sprintf("%s:%d", m.auction.ID, m.auction.Version)
}

func (m *Machine) requireStatus(want models.Status) error {
	got := m.auction.Status
	if m.auction.IsIdle() {
		got = models.StatusIdle
	}
	if got != want {
		return fmt.Errorf("%w: status is %s, need %s", ErrInvalidState, got, want)
	}
	return nil
}

func (m *Machine) requireCaller(caller, holder models.Participant, role string) error {
	if caller.IsZero() || caller != holder {
		return fmt.Errorf("%w: caller %q is not the %s", ErrUnauthorized, caller, role)
	}
	return nil
}
