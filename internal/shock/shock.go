// Package shock decides when exogenous market events occur and what they
// look like. The generator runs on its own schedule, longer than the price
// tick, and most rolls produce nothing.
package shock

import (
	"math/rand"

	"github.com/papertrade/market-sim/internal/model"
)

// Scenario is one entry of the fixed event table: a headline and the signed
// per-tick drift it contributes while active.
type Scenario struct {
	Label  string
	Impact float64
}

// Scenarios is the fixed event table.
var Scenarios = []Scenario{
	{"Product launch hype", +0.10},
	{"Earnings beat", +0.08},
	{"Analyst upgrade", +0.06},
	{"Supply chain issues", -0.07},
	{"Regulatory setback", -0.09},
	{"Data breach", -0.08},
	{"Patent win", +0.07},
	{"Short squeeze", +0.12},
	{"PR scandal", -0.10},
	{"New partnership", +0.05},
}

// Event is a rolled shock before application. Affected is filled in by the
// caller once the effect has been committed to the registry.
type Event struct {
	Kind     model.EffectKind `json:"kind"`
	Target   string           `json:"target"`
	Label    string           `json:"label"`
	Impact   float64          `json:"impact"`
	Duration int              `json:"duration_ticks"`
	Affected []string         `json:"affected,omitempty"`
}

// Generator rolls for market events with fixed probabilities.
type Generator struct {
	// Chance that a roll produces an event at all.
	Chance float64
	// InstrumentBias is the probability a produced event targets a single
	// instrument rather than a whole sector.
	InstrumentBias float64
	// Duration is how many price ticks an event lingers and decays.
	Duration int

	rng *rand.Rand
}

// NewGenerator returns a generator with the standard tuning: 55% event
// chance per roll, 60/40 instrument/sector split, six-tick duration.
func NewGenerator(rng *rand.Rand) *Generator {
	return &Generator{
		Chance:         0.55,
		InstrumentBias: 0.60,
		Duration:       6,
		rng:            rng,
	}
}

// Roll decides whether an event occurs and, if so, picks its kind, target,
// and scenario. Returns nil when no event occurs this period.
func (g *Generator) Roll(symbols, sectors []string) *Event {
	if g.rng.Float64() > g.Chance {
		return nil
	}
	if len(symbols) == 0 || len(sectors) == 0 {
		return nil
	}

	sc := Scenarios[g.rng.Intn(len(Scenarios))]

	if g.rng.Float64() < g.InstrumentBias {
		return &Event{
			Kind:     model.EffectInstrument,
			Target:   symbols[g.rng.Intn(len(symbols))],
			Label:    sc.Label,
			Impact:   sc.Impact,
			Duration: g.Duration,
		}
	}
	return &Event{
		Kind:     model.EffectSector,
		Target:   sectors[g.rng.Intn(len(sectors))],
		Label:    sc.Label,
		Impact:   sc.Impact,
		Duration: g.Duration,
	}
}
