// Package model defines the core domain types shared across the market
// simulator. All monetary values use shopspring/decimal — never float64 for
// money. Statistical parameters (volatility, drift, shock impact) are plain
// float64: they are rates, not currency.
package model

import (
	"github.com/shopspring/decimal"
)

// EffectKind says whether a shock effect targets one instrument or a sector.
type EffectKind string

const (
	EffectInstrument EffectKind = "instrument"
	EffectSector     EffectKind = "sector"
)

// ShockEffect is a temporary exogenous influence on an instrument's drift.
// Impact decays geometrically each tick it is applied; the effect is removed
// the tick TicksLeft reaches zero.
type ShockEffect struct {
	Kind      EffectKind `json:"kind"`
	Target    string     `json:"target"` // symbol or sector name
	Impact    float64    `json:"impact"` // proportional drift per tick while active
	TicksLeft int        `json:"ticks_left"`
}

// Instrument is one simulated tradable security.
// Price is always positive; LastPrice is the price immediately before the
// most recent tick.
type Instrument struct {
	Symbol     string          `json:"symbol" db:"symbol"`
	Name       string          `json:"name" db:"name"`
	Sector     string          `json:"sector" db:"sector"`
	Price      decimal.Decimal `json:"price" db:"price"`
	LastPrice  decimal.Decimal `json:"last_price" db:"last_price"`
	Volatility float64         `json:"volatility" db:"volatility"` // per-tick stddev of proportional change
	Drift      float64         `json:"drift" db:"drift"`           // per-tick proportional bias
	Effects    []ShockEffect   `json:"effects" db:"effects"`
}

// Clone returns a deep copy safe to hand out beyond a critical section.
func (i Instrument) Clone() Instrument {
	c := i
	if i.Effects != nil {
		c.Effects = make([]ShockEffect, len(i.Effects))
		copy(c.Effects, i.Effects)
	}
	return c
}

// PctChange is the proportional move since the previous tick, or zero when
// no previous price exists.
func (i Instrument) PctChange() float64 {
	if i.LastPrice.Sign() <= 0 {
		return 0
	}
	pct, _ := i.Price.Sub(i.LastPrice).Div(i.LastPrice).Float64()
	return pct
}

// Holding is one participant's position in one instrument. CostBasis is the
// weighted-average price paid per currently-held share; it is zero whenever
// Shares is zero.
type Holding struct {
	Shares    int64           `json:"shares"`
	CostBasis decimal.Decimal `json:"cost_basis"`
}

// Portfolio is one participant's full position set plus the profit/loss
// crystallized by sells so far.
type Portfolio struct {
	Holdings   map[string]Holding `json:"holdings"`
	RealizedPL decimal.Decimal    `json:"realized_pl"`
}

// NewPortfolio returns an empty portfolio ready for its first buy.
func NewPortfolio() *Portfolio {
	return &Portfolio{
		Holdings:   make(map[string]Holding),
		RealizedPL: decimal.Zero,
	}
}

// Clone returns a deep copy safe to hand out beyond a critical section.
func (p *Portfolio) Clone() *Portfolio {
	c := &Portfolio{
		Holdings:   make(map[string]Holding, len(p.Holdings)),
		RealizedPL: p.RealizedPL,
	}
	for sym, h := range p.Holdings {
		c.Holdings[sym] = h
	}
	return c
}
