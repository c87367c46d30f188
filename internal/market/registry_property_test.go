package market

import (
	"math/rand"
	"testing"

	"github.com/shopspring/decimal"
	"pgregory.net/rapid"

	"github.com/papertrade/market-sim/internal/model"
)

// Whatever the volatility, drift, and shock history, a ticked price stays at
// or above the floor and carries at most two decimal places, and last_price
// always trails by exactly one tick.
func TestApplyTickInvariants(t *testing.T) {
	floor := decimal.NewFromFloat(0.50)

	rapid.Check(t, func(t *rapid.T) {
		price := decimal.NewFromFloat(rapid.Float64Range(0.50, 3000).Draw(t, "price")).Round(2)
		inst := model.Instrument{
			Symbol:     "PROP",
			Name:       "Property Test",
			Sector:     "Tech",
			Price:      price,
			LastPrice:  price,
			Volatility: rapid.Float64Range(0, 0.25).Draw(t, "vol"),
			Drift:      rapid.Float64Range(-0.05, 0.05).Draw(t, "drift"),
		}
		r := NewRegistry([]model.Instrument{inst})
		rng := rand.New(rand.NewSource(rapid.Int64().Draw(t, "seed")))

		if rapid.Bool().Draw(t, "shocked") {
			impact := rapid.Float64Range(-0.12, 0.12).Draw(t, "impact")
			ticks := rapid.IntRange(1, 6).Draw(t, "ticks")
			r.AddEffect(model.EffectInstrument, "PROP", impact, ticks)
		}

		steps := rapid.IntRange(1, 20).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			before, _ := r.Get("PROP")
			r.ApplyTick(rng)
			after, _ := r.Get("PROP")

			if after.Price.LessThan(floor) {
				t.Fatalf("price %s fell below the floor", after.Price)
			}
			if !after.Price.Equal(after.Price.Round(2)) {
				t.Fatalf("price %s has more than two decimal places", after.Price)
			}
			if !after.LastPrice.Equal(before.Price) {
				t.Fatalf("last_price %s does not match pre-tick price %s",
					after.LastPrice, before.Price)
			}
		}
	})
}
