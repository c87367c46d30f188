// Package ledger is the boundary to the external cash ledger. The simulator
// consumes it; it never reaches inside. Debit is an atomic check-then-debit
// inside the ledger's own concurrency domain, so the simulator never has to
// hold its lock across an affordability check.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrInsufficientBalance is returned by Debit when the amount exceeds the
// participant's balance. No funds move in that case.
var ErrInsufficientBalance = errors.New("ledger: insufficient balance")

// Cash is the external cash ledger contract. Amounts are non-negative
// fixed-precision decimals in the same currency unit as instrument prices.
type Cash interface {
	// Balance returns the participant's spendable balance, creating the
	// account at the opening balance on first sight.
	Balance(ctx context.Context, participant string) (decimal.Decimal, error)

	// Debit atomically checks affordability and withdraws amount.
	// Returns ErrInsufficientBalance if amount > balance.
	Debit(ctx context.Context, participant string, amount decimal.Decimal) error

	// Credit deposits amount. Always succeeds for non-negative amounts.
	Credit(ctx context.Context, participant string, amount decimal.Decimal) error
}
