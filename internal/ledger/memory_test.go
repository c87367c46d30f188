package ledger

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
)

func TestMemoryCashOpeningBalance(t *testing.T) {
	c := NewMemoryCash(decimal.NewFromInt(1000))

	bal, err := c.Balance(context.Background(), "alice")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !bal.Equal(decimal.NewFromInt(1000)) {
		t.Errorf("first-seen account balance %s, want 1000", bal)
	}
}

func TestMemoryCashDebitCredit(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCash(decimal.NewFromInt(500))

	if err := c.Debit(ctx, "alice", decimal.NewFromInt(300)); err != nil {
		t.Fatalf("debit: %v", err)
	}
	bal, _ := c.Balance(ctx, "alice")
	if !bal.Equal(decimal.NewFromInt(200)) {
		t.Errorf("after debit: %s, want 200", bal)
	}

	if err := c.Credit(ctx, "alice", decimal.NewFromFloat(50.25)); err != nil {
		t.Fatalf("credit: %v", err)
	}
	bal, _ = c.Balance(ctx, "alice")
	if !bal.Equal(decimal.NewFromFloat(250.25)) {
		t.Errorf("after credit: %s, want 250.25", bal)
	}
}

func TestMemoryCashInsufficient(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCash(decimal.NewFromInt(100))

	err := c.Debit(ctx, "alice", decimal.NewFromFloat(100.01))
	if !errors.Is(err, ErrInsufficientBalance) {
		t.Fatalf("got %v, want ErrInsufficientBalance", err)
	}

	// A failed debit must not move the balance.
	bal, _ := c.Balance(ctx, "alice")
	if !bal.Equal(decimal.NewFromInt(100)) {
		t.Errorf("balance moved on failed debit: %s", bal)
	}

	// An exact-balance debit succeeds.
	if err := c.Debit(ctx, "alice", decimal.NewFromInt(100)); err != nil {
		t.Fatalf("exact debit: %v", err)
	}
	bal, _ = c.Balance(ctx, "alice")
	if !bal.IsZero() {
		t.Errorf("after exact debit: %s, want 0", bal)
	}
}

func TestMemoryCashRejectsNegativeAmounts(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryCash(decimal.NewFromInt(100))

	if err := c.Debit(ctx, "alice", decimal.NewFromInt(-1)); err == nil {
		t.Error("negative debit accepted")
	}
	if err := c.Credit(ctx, "alice", decimal.NewFromInt(-1)); err == nil {
		t.Error("negative credit accepted")
	}
}
