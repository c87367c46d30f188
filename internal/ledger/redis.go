package ledger

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
)

// RedisCash implements Cash on Redis. Balances are stored as integer cents
// so INCRBY/DECRBY stay exact; the check-then-debit runs as a single Lua
// script, which is Redis's atomicity domain.
type RedisCash struct {
	rdb     *redis.Client
	opening int64 // cents
}

// debitScript initializes the account at the opening balance if absent,
// then debits only if the balance covers the amount. Returns the new
// balance, or -1 when insufficient.
var debitScript = redis.NewScript(`
local bal = redis.call('GET', KEYS[1])
if not bal then
  bal = ARGV[2]
  redis.call('SET', KEYS[1], bal)
end
bal = tonumber(bal)
local amt = tonumber(ARGV[1])
if amt > bal then
  return -1
end
return redis.call('DECRBY', KEYS[1], amt)
`)

// creditScript initializes the account if absent, then credits.
var creditScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  redis.call('SET', KEYS[1], ARGV[2])
end
return redis.call('INCRBY', KEYS[1], ARGV[1])
`)

// NewRedisCash creates a Redis-backed cash ledger. Accounts not seen before
// start at the opening balance.
func NewRedisCash(rdb *redis.Client, opening decimal.Decimal) *RedisCash {
	return &RedisCash{rdb: rdb, opening: toCents(opening)}
}

func cashKey(participant string) string { return fmt.Sprintf("cash:%s", participant) }

func toCents(amount decimal.Decimal) int64 {
	return amount.Round(2).Shift(2).IntPart()
}

func fromCents(cents int64) decimal.Decimal {
	return decimal.New(cents, -2)
}

func (c *RedisCash) Balance(ctx context.Context, participant string) (decimal.Decimal, error) {
	cents, err := c.rdb.Get(ctx, cashKey(participant)).Int64()
	if err == redis.Nil {
		// First sight: materialize the opening balance.
		if err := c.rdb.SetNX(ctx, cashKey(participant), c.opening, 0).Err(); err != nil {
			return decimal.Zero, err
		}
		return fromCents(c.opening), nil
	}
	if err != nil {
		return decimal.Zero, err
	}
	return fromCents(cents), nil
}

func (c *RedisCash) Debit(ctx context.Context, participant string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("ledger: negative debit %s", amount)
	}
	res, err := debitScript.Run(ctx, c.rdb,
		[]string{cashKey(participant)}, toCents(amount), c.opening).Int64()
	if err != nil {
		return err
	}
	if res < 0 {
		return ErrInsufficientBalance
	}
	return nil
}

func (c *RedisCash) Credit(ctx context.Context, participant string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("ledger: negative credit %s", amount)
	}
	return creditScript.Run(ctx, c.rdb,
		[]string{cashKey(participant)}, toCents(amount), c.opening).Err()
}
