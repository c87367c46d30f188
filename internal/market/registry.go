// Package market holds the authoritative set of tradable instruments and
// evolves their prices tick by tick.
//
// Registry is deliberately not self-locking: the simulation owns one coarse
// mutex covering the registry and the portfolio book together, so every
// method here must be called while holding that lock. Read methods return
// copies — no interior references outlive the critical section.
package market

import (
	"math/rand"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/papertrade/market-sim/internal/model"
)

const (
	// EffectDecay is the geometric decay applied to a shock effect's impact
	// each tick it survives.
	EffectDecay = 0.75

	// priceFloor keeps prices strictly positive.
	priceFloor = 0.50
)

// Registry is the instrument registry: symbol → instrument.
type Registry struct {
	instruments map[string]*model.Instrument
}

// NewRegistry builds a registry from an instrument list, typically either
// SeedInstruments() on first startup or a restored snapshot.
func NewRegistry(instruments []model.Instrument) *Registry {
	m := make(map[string]*model.Instrument, len(instruments))
	for i := range instruments {
		inst := instruments[i].Clone()
		m[inst.Symbol] = &inst
	}
	return &Registry{instruments: m}
}

// Len returns the number of instruments.
func (r *Registry) Len() int { return len(r.instruments) }

// Get returns a copy of the instrument, or false for an unknown symbol.
// Unknown symbols are an absence, not an error.
func (r *Registry) Get(symbol string) (model.Instrument, bool) {
	inst, ok := r.instruments[strings.ToUpper(symbol)]
	if !ok {
		return model.Instrument{}, false
	}
	return inst.Clone(), true
}

// All returns snapshot copies of every instrument, sorted by symbol.
func (r *Registry) All() []model.Instrument {
	out := make([]model.Instrument, 0, len(r.instruments))
	for _, inst := range r.instruments {
		out = append(out, inst.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// Symbols returns every symbol, sorted.
func (r *Registry) Symbols() []string {
	out := make([]string, 0, len(r.instruments))
	for sym := range r.instruments {
		out = append(out, sym)
	}
	sort.Strings(out)
	return out
}

// Search returns instruments whose symbol, name, or sector contains the
// query, case-insensitively, sorted by symbol.
func (r *Registry) Search(query string) []model.Instrument {
	q := strings.ToLower(strings.TrimSpace(query))
	if q == "" {
		return r.All()
	}
	var out []model.Instrument
	for _, inst := range r.instruments {
		if strings.Contains(strings.ToLower(inst.Symbol), q) ||
			strings.Contains(strings.ToLower(inst.Name), q) ||
			strings.Contains(strings.ToLower(inst.Sector), q) {
			out = append(out, inst.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

// matches reports whether an effect applies to an instrument, directly by
// symbol or via its sector.
func matches(eff model.ShockEffect, inst *model.Instrument) bool {
	switch eff.Kind {
	case model.EffectInstrument:
		return eff.Target == inst.Symbol
	case model.EffectSector:
		return eff.Target == inst.Sector
	}
	return false
}

// ApplyTick advances every instrument one tick: sums active effect impacts
// into the drift term, decays and expires effects, draws a Normal(0, vol)
// shock, and moves the price by drift + effects + shock, floored at 0.50 and
// rounded to two decimals. One call is a single atomic pass over all
// instruments — callers hold the simulation lock for its duration.
func (r *Registry) ApplyTick(rng *rand.Rand) {
	for _, inst := range r.instruments {
		effectMu := 0.0
		var remaining []model.ShockEffect
		for _, eff := range inst.Effects {
			if !matches(eff, inst) {
				continue
			}
			effectMu += eff.Impact
			eff.TicksLeft--
			if eff.TicksLeft > 0 {
				eff.Impact *= EffectDecay
				remaining = append(remaining, eff)
			}
		}
		inst.Effects = remaining

		shock := rng.NormFloat64() * inst.Volatility
		pct := inst.Drift + effectMu + shock

		next := inst.Price.InexactFloat64() * (1.0 + pct)
		if next < priceFloor {
			next = priceFloor
		}
		inst.LastPrice = inst.Price
		inst.Price = decimal.NewFromFloat(next).Round(2)
	}
}

// AddEffect appends a shock effect to every instrument matching the target
// and returns the affected symbols, sorted.
func (r *Registry) AddEffect(kind model.EffectKind, target string, impact float64, ticks int) []string {
	eff := model.ShockEffect{Kind: kind, Target: target, Impact: impact, TicksLeft: ticks}
	var affected []string
	for _, inst := range r.instruments {
		if matches(eff, inst) {
			inst.Effects = append(inst.Effects, eff)
			affected = append(affected, inst.Symbol)
		}
	}
	sort.Strings(affected)
	return affected
}
