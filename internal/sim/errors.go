package sim

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Sentinel errors. The API layer maps these to HTTP status codes.
var (
	// ErrInvalidQuantity rejects trades with a non-positive quantity.
	ErrInvalidQuantity = errors.New("sim: quantity must be positive")

	// ErrLedgerDebit wraps a cash ledger failure during a buy, after the
	// affordability check passed. The buy aborts without touching the
	// portfolio.
	ErrLedgerDebit = errors.New("sim: cash ledger debit failed")

	// ErrLedgerCredit wraps a cash ledger failure during a sell. The
	// portfolio mutation has already been persisted at that point and is
	// not rolled back; callers should treat this as a warning requiring
	// reconciliation.
	ErrLedgerCredit = errors.New("sim: cash ledger credit failed")
)

// UnknownInstrumentError reports a symbol that resolves to no instrument.
type UnknownInstrumentError struct {
	Symbol string
}

func (e *UnknownInstrumentError) Error() string {
	return fmt.Sprintf("sim: unknown instrument %q", e.Symbol)
}

// InsufficientFundsError reports a buy the participant cannot afford.
type InsufficientFundsError struct {
	Symbol    string
	Quantity  int64
	Needed    decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("sim: insufficient funds for %d × %s: need %s, have %s",
		e.Quantity, e.Symbol, e.Needed, e.Available)
}

// InsufficientSharesError reports a sell larger than the position.
type InsufficientSharesError struct {
	Symbol    string
	Requested int64
	Owned     int64
}

func (e *InsufficientSharesError) Error() string {
	return fmt.Sprintf("sim: cannot sell %d × %s: only %d owned",
		e.Requested, e.Symbol, e.Owned)
}

// SubscriptionError reports an invalid subscription request.
type SubscriptionError struct {
	Reason string
}

func (e *SubscriptionError) Error() string {
	return "sim: " + e.Reason
}
