package slot

import (
	"fmt"
	rand "math/rand/v2"
	"sync"
)

// ReelCount is the number of reel positions in a single outcome.
const ReelCount = 3

// Outcome is the result of a single spin. It is computed once per round and
// persisted verbatim as the round's result, so the JSON shape here is exactly
// what clients receive in the ROUND_RESULT broadcast.
type Outcome struct {
	Reels            [ReelCount]string `json:"reels"`
	LineWin          bool              `json:"lineWin"`
	WinningSymbol    string            `json:"winningSymbol,omitempty"`
	PayoutMultiplier int               `json:"payoutMultiplier"`
}

// Generator produces weighted random spin outcomes. The injected RNG is the
// only source of non-determinism.
type Generator struct {
	symbols []Symbol
	assist  float64
	total   int

	mu  sync.Mutex // guards rng; timer callbacks and tests may race
	rng *rand.Rand
}

// NewGenerator builds a generator over the given catalog. assist is the
// probability in [0,1] of forcing a winning line regardless of the natural
// three-independent-draws odds.
func NewGenerator(symbols []Symbol, assist float64, rng *rand.Rand) (*Generator, error) {
	if len(symbols) == 0 {
		return nil, fmt.Errorf("symbol catalog is empty")
	}
	if assist < 0 || assist > 1 {
		return nil, fmt.Errorf("assist probability %v outside [0,1]", assist)
	}
	total := 0
	for _, s := range symbols {
		if s.Weight <= 0 {
			return nil, fmt.Errorf("symbol %q has non-positive weight %d", s.Key, s.Weight)
		}
		if s.Multiplier < 0 {
			return nil, fmt.Errorf("symbol %q has negative multiplier %d", s.Key, s.Multiplier)
		}
		total += s.Weight
	}

	catalog := make([]Symbol, len(symbols))
	copy(catalog, symbols)

	return &Generator{
		symbols: catalog,
		assist:  assist,
		total:   total,
		rng:     rng,
	}, nil
}

// Symbols returns the catalog the generator draws from.
func (g *Generator) Symbols() []Symbol {
	out := make([]Symbol, len(g.symbols))
	copy(out, g.symbols)
	return out
}

// Generate produces one spin outcome. With probability assist the spin is a
// forced win: one weighted pick fills all three reels. Otherwise each reel is
// drawn independently and the line wins only when all three match.
func (g *Generator) Generate() Outcome {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.rng.Float64() < g.assist {
		s := g.pick()
		return Outcome{
			Reels:            [ReelCount]string{s.Icon, s.Icon, s.Icon},
			LineWin:          true,
			WinningSymbol:    s.Key,
			PayoutMultiplier: s.Multiplier,
		}
	}

	var out Outcome
	first := g.pick()
	out.Reels[0] = first.Icon
	allSame := true
	for i := 1; i < ReelCount; i++ {
		s := g.pick()
		out.Reels[i] = s.Icon
		if s.Key != first.Key {
			allSame = false
		}
	}
	if allSame {
		out.LineWin = true
		out.WinningSymbol = first.Key
		out.PayoutMultiplier = first.Multiplier
	}
	return out
}

// pick performs a weight-proportional selection: a uniform draw in
// [0, totalWeight) scanned against cumulative weights. The last entry is the
// fallback for floating-point edge cases at the boundary.
func (g *Generator) pick() Symbol {
	draw := g.rng.Float64() * float64(g.total)
	cum := 0.0
	for _, s := range g.symbols {
		cum += float64(s.Weight)
		if draw < cum {
			return s
		}
	}
	return g.symbols[len(g.symbols)-1]
}
