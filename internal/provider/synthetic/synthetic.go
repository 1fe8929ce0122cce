package synthetic

import (
	"math"
	"math/rand/v2"
	"time"

	"optionchain/internal/provider"
)

// Config shapes the generated chain.
type Config struct {
	Underlying      string
	UnderlyingValue float64
	BaseStrike      float64
	StrikeStep      float64
	NumStrikes      int
	Seed            int64
	ExpiryLabel     string
}

func DefaultConfig() Config {
	return Config{
		Underlying:      "NIFTY",
		UnderlyingValue: 24784.2,
		BaseStrike:      24000,
		StrikeStep:      50,
		NumStrikes:      20,
		Seed:            12345,
		ExpiryLabel:     "29-May-2025",
	}
}

// Generator builds a plausible chain when no real data is available.
// IV, LTP, OI and net change come from a seeded LCG and repeat exactly for a
// given Config; change in OI, volume and bid/ask figures come from Rand.
type Generator struct {
	Config Config
	Rand   *rand.Rand // nil uses the math/rand/v2 global source
	Now    func() time.Time
}

func New(cfg Config) *Generator { return &Generator{Config: cfg} }

// lcg is the deterministic stream: seed = (seed*9301 + 49297) mod 233280.
type lcg struct{ seed int64 }

const (
	lcgMul = 9301
	lcgInc = 49297
	lcgMod = 233280
)

func newLCG(seed int64) *lcg {
	seed %= lcgMod
	if seed < 0 {
		seed += lcgMod
	}
	return &lcg{seed: seed}
}

func (l *lcg) next() float64 {
	l.seed = (l.seed*lcgMul + lcgInc) % lcgMod
	return float64(l.seed) / lcgMod
}

// Generate returns a snapshot sorted by strike with at least one row.
// The mock/recent labels are left for the caller to set.
func (g *Generator) Generate() provider.Snapshot {
	cfg := g.Config
	n := cfg.NumStrikes
	if n < 1 {
		n = 1
	}
	now := time.Now
	if g.Now != nil {
		now = g.Now
	}

	pr := newLCG(cfg.Seed)
	u := cfg.UnderlyingValue
	options := make([]provider.OptionQuote, 0, n)
	for i := 0; i < n; i++ {
		k := cfg.BaseStrike + float64(i)*cfg.StrikeStep
		dist := math.Abs(k - u)

		// draw order is part of the output contract
		callIV := 20 + pr.next()*10 - dist/1000
		putIV := 20 + pr.next()*10 - dist/1000
		callLTP := math.Max(0, u-k+pr.next()*100)
		putLTP := math.Max(0, k-u+pr.next()*100)
		callOI := math.Floor(10000 + pr.next()*50000)
		putOI := math.Floor(10000 + pr.next()*50000)
		callNet := pr.next()*20 - 10
		putNet := pr.next()*20 - 10

		options = append(options, provider.OptionQuote{
			StrikePrice: k,
			ExpiryDate:  cfg.ExpiryLabel,

			CallOI:         callOI,
			CallChangeInOI: math.Floor(g.float()*5000 - 2500),
			CallVolume:     math.Floor(1000 + g.float()*10000),
			CallIV:         callIV,
			CallLTP:        callLTP,
			CallNetChange:  callNet,
			CallBidQty:     math.Floor(10 + g.float()*100),
			CallBidPrice:   callLTP - g.float()*2,
			CallAskPrice:   callLTP + g.float()*2,
			CallAskQty:     math.Floor(10 + g.float()*100),

			PutOI:         putOI,
			PutChangeInOI: math.Floor(g.float()*5000 - 2500),
			PutVolume:     math.Floor(1000 + g.float()*10000),
			PutIV:         putIV,
			PutLTP:        putLTP,
			PutNetChange:  putNet,
			PutBidQty:     math.Floor(10 + g.float()*100),
			PutBidPrice:   putLTP - g.float()*2,
			PutAskPrice:   putLTP + g.float()*2,
			PutAskQty:     math.Floor(10 + g.float()*100),
		})
	}
	if cfg.StrikeStep < 0 {
		// ascending by strike regardless of step sign
		for i, j := 0, len(options)-1; i < j; i, j = i+1, j-1 {
			options[i], options[j] = options[j], options[i]
		}
	}

	return provider.Snapshot{
		Timestamp:       now().UTC(),
		Underlying:      cfg.Underlying,
		UnderlyingValue: u,
		Options:         options,
	}
}

func (g *Generator) float() float64 {
	if g.Rand != nil {
		return g.Rand.Float64()
	}
	return rand.Float64()
}
