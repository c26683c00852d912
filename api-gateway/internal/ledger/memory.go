package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/aaronwang/bidding-app/api-gateway/internal/auction"
	"github.com/aaronwang/bidding-app/shared/models"
)

// Memory is an in-process ledger used in development and tests
type Memory struct {
	mu        sync.Mutex
	balances  map[models.Participant]uint64
	rejected  map[models.Participant]bool
	transfers map[string]transfer
}

type transfer struct {
	to     models.Participant
	amount uint64
}

// NewMemory creates an empty in-memory ledger
func NewMemory() *Memory {
	return &Memory{
		balances:  make(map[models.Participant]uint64),
		rejected:  make(map[models.Participant]bool),
		transfers: make(map[string]transfer),
	}
}

// Reject makes later transfers to p fail, simulating an unreachable payee
func (m *Memory) Reject(p models.Participant, reject bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rejected[p] = reject
}

// Transfer credits amount to the recipient's balance. A ref seen before is
// not credited twice: it reports auction.ErrDuplicateTransfer when the
// recipient and amount match and an error otherwise. An empty ref is always
// applied.
func (m *Memory) Transfer(ctx context.Context, ref string, to models.Participant, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if to.IsZero() {
		return ErrNoRecipient
	}
	if prev, ok := m.transfers[ref]; ok && ref != "" {
		if prev.to != to || prev.amount != amount {
			return fmt.Errorf("transfer %s already recorded as %d to %s", ref, prev.amount, prev.to)
		}
		return fmt.Errorf("transfer %s: %w", ref, auction.ErrDuplicateTransfer)
	}
	if m.rejected[to] {
		return fmt.Errorf("recipient %s rejected the transfer", to)
	}
	m.balances[to] += amount
	if ref != "" {
		m.transfers[ref] = transfer{to: to, amount: amount}
	}
	return nil
}

// Balance returns the amount credited to p so far
func (m *Memory) Balance(ctx context.Context, p models.Participant) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.balances[p], nil
}
