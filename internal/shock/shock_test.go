package shock

import (
	"math/rand"
	"testing"

	"github.com/papertrade/market-sim/internal/model"
)

var (
	symbols = []string{"AAA", "BBB", "CCC"}
	sectors = []string{"Tech", "Food"}
)

func TestRollAlwaysFires(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewSource(42)))
	g.Chance = 1.0

	labels := make(map[string]bool, len(Scenarios))
	for _, sc := range Scenarios {
		labels[sc.Label] = true
	}

	for i := 0; i < 200; i++ {
		ev := g.Roll(symbols, sectors)
		if ev == nil {
			t.Fatalf("roll %d produced no event at chance 1.0", i)
		}
		if !labels[ev.Label] {
			t.Fatalf("unknown scenario label %q", ev.Label)
		}
		if ev.Duration != 6 {
			t.Fatalf("duration %d, want 6", ev.Duration)
		}
		if ev.Impact == 0 {
			t.Fatal("zero impact")
		}

		switch ev.Kind {
		case model.EffectInstrument:
			if !contains(symbols, ev.Target) {
				t.Fatalf("instrument target %q not in universe", ev.Target)
			}
		case model.EffectSector:
			if !contains(sectors, ev.Target) {
				t.Fatalf("sector target %q not in vocabulary", ev.Target)
			}
		default:
			t.Fatalf("unexpected kind %q", ev.Kind)
		}
	}
}

func TestRollNeverFiresAtZeroChance(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewSource(42)))
	g.Chance = 0

	for i := 0; i < 200; i++ {
		if ev := g.Roll(symbols, sectors); ev != nil {
			t.Fatalf("roll %d produced %+v at chance 0", i, ev)
		}
	}
}

func TestRollEmptyUniverse(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewSource(42)))
	g.Chance = 1.0

	if ev := g.Roll(nil, sectors); ev != nil {
		t.Errorf("event %+v with no symbols", ev)
	}
	if ev := g.Roll(symbols, nil); ev != nil {
		t.Errorf("event %+v with no sectors", ev)
	}
}

func TestRollBiasSplitsKinds(t *testing.T) {
	g := NewGenerator(rand.New(rand.NewSource(42)))
	g.Chance = 1.0

	kinds := make(map[model.EffectKind]int)
	for i := 0; i < 500; i++ {
		kinds[g.Roll(symbols, sectors).Kind]++
	}
	if kinds[model.EffectInstrument] == 0 || kinds[model.EffectSector] == 0 {
		t.Fatalf("500 rolls never produced both kinds: %v", kinds)
	}
	if kinds[model.EffectInstrument] <= kinds[model.EffectSector] {
		t.Errorf("instrument bias not visible: %v", kinds)
	}
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
