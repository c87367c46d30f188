package ledger

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryCash implements Cash with a mutex-guarded map. Used for testing and
// single-instance deployments without Redis.
type MemoryCash struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	opening  decimal.Decimal
}

// NewMemoryCash creates an in-memory cash ledger. Accounts not seen before
// start at the opening balance.
func NewMemoryCash(opening decimal.Decimal) *MemoryCash {
	return &MemoryCash{
		balances: make(map[string]decimal.Decimal),
		opening:  opening,
	}
}

func (c *MemoryCash) account(participant string) decimal.Decimal {
	bal, ok := c.balances[participant]
	if !ok {
		bal = c.opening
		c.balances[participant] = bal
	}
	return bal
}

func (c *MemoryCash) Balance(_ context.Context, participant string) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.account(participant), nil
}

func (c *MemoryCash) Debit(_ context.Context, participant string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("ledger: negative debit %s", amount)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	bal := c.account(participant)
	if amount.GreaterThan(bal) {
		return ErrInsufficientBalance
	}
	c.balances[participant] = bal.Sub(amount)
	return nil
}

func (c *MemoryCash) Credit(_ context.Context, participant string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("ledger: negative credit %s", amount)
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.balances[participant] = c.account(participant).Add(amount)
	return nil
}
