package market

import (
	"fmt"
	"math/rand"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/papertrade/market-sim/internal/model"
)

// Seeding constants. The fixed seed makes the initial universe reproducible
// across fresh deployments; subsequent price evolution uses a
// non-deterministic source.
const (
	SeedCount    = 50
	seedRandom   = 1337
	MaxSymbolLen = 6

	maxTickerRetries = 99
)

// Sectors is the fixed sector vocabulary. Sector-wide shocks pick targets
// from this list.
var Sectors = []string{
	"Tech", "Food", "Energy", "Games", "Shipping",
	"Finance", "Media", "Health", "Industrial", "Retail",
}

var nameLeft = []string{
	"Aurora", "Nimbus", "Vertex", "Quantum", "Solstice", "Lumen", "Cascade", "Pioneer", "Stellar", "Cinder",
	"Horizon", "Nova", "Echo", "Atlas", "Summit", "Drift", "Apex", "Harbor", "Forge", "Beacon",
	"Mariner", "Falcon", "Boreal", "Keystone", "Monarch", "Nebula", "Paragon", "Riverton", "Silver", "Zenith",
}

var nameRight = []string{
	"Tech", "Foods", "Energy", "Play", "Lines", "Capital", "Media", "Health", "Works", "Retail",
}

// makeTicker derives a candidate symbol from a company name: the name's
// letters uppercased, truncated to MaxSymbolLen, falling back to the first
// three letters of each word for two-word names.
func makeTicker(name string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(name) {
		if r >= 'A' && r <= 'Z' {
			b.WriteRune(r)
		}
	}
	base := b.String()
	if len(base) <= MaxSymbolLen {
		return base
	}
	parts := strings.Fields(strings.ToUpper(name))
	if len(parts) >= 2 {
		left := parts[0]
		if len(left) > 3 {
			left = left[:3]
		}
		right := parts[1]
		if len(right) > 3 {
			right = right[:3]
		}
		sym := left + right
		if len(sym) > MaxSymbolLen {
			sym = sym[:MaxSymbolLen]
		}
		return sym
	}
	return base[:MaxSymbolLen]
}

// disambiguate appends an increasing numeric suffix until the symbol is
// unused, keeping the result within MaxSymbolLen. The retry bound exists so
// a pathological word list cannot loop forever.
func disambiguate(base string, used map[string]bool) string {
	sym := base
	for i := 1; used[sym] && i <= maxTickerRetries; i++ {
		suffix := fmt.Sprintf("%d", i)
		keep := MaxSymbolLen - len(suffix)
		if keep > len(base) {
			keep = len(base)
		}
		sym = base[:keep] + suffix
	}
	return sym
}

// band is one price/volatility regime of the seeded universe.
type band struct {
	price float64
	vol   float64
}

// SeedInstruments generates the fixed universe of SeedCount instruments,
// distributed across four price/volatility bands: 10 ultra (1000–2500, low
// vol), 15 high (250–800), 15 mid (50–200), 10 low (5–30, high vol).
func SeedInstruments() []model.Instrument {
	rnd := rand.New(rand.NewSource(seedRandom))

	var bands []band
	for i := 0; i < 10; i++ {
		bands = append(bands, band{uniform(rnd, 1000, 2500), uniform(rnd, 0.015, 0.035)})
	}
	for i := 0; i < 15; i++ {
		bands = append(bands, band{uniform(rnd, 250, 800), uniform(rnd, 0.020, 0.045)})
	}
	for i := 0; i < 15; i++ {
		bands = append(bands, band{uniform(rnd, 50, 200), uniform(rnd, 0.018, 0.040)})
	}
	for i := 0; i < 10; i++ {
		bands = append(bands, band{uniform(rnd, 5, 30), uniform(rnd, 0.025, 0.060)})
	}

	used := make(map[string]bool, SeedCount)
	instruments := make([]model.Instrument, 0, SeedCount)

	for len(instruments) < SeedCount && len(bands) > 0 {
		left := nameLeft[rnd.Intn(len(nameLeft))]
		right := nameRight[rnd.Intn(len(nameRight))]
		sector := Sectors[rnd.Intn(len(Sectors))]
		name := left + " " + right

		sym := disambiguate(makeTicker(name), used)
		if used[sym] {
			// could not disambiguate; draw a fresh name
			continue
		}
		used[sym] = true

		b := bands[0]
		bands = bands[1:]

		price := decimal.NewFromFloat(b.price).Round(2)
		instruments = append(instruments, model.Instrument{
			Symbol:     sym,
			Name:       name,
			Sector:     sector,
			Price:      price,
			LastPrice:  price,
			Volatility: b.vol,
			Drift:      uniform(rnd, -0.002, 0.003),
		})
	}

	return instruments
}

func uniform(rnd *rand.Rand, lo, hi float64) float64 {
	return lo + rnd.Float64()*(hi-lo)
}
