// Package generator produces simulated bedside vitals readings.
//
// Each reading carries all four metrics drawn uniformly from ranges wide
// enough to trip every alert rule now and then:
//
//	heart_rate  60..130   integer bpm
//	spo2        85..100   integer %
//	glucose     80..260   integer mg/dL
//	temp        36.0..39.0 degrees C, one decimal place
package generator

import (
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/vitalstream/vitalstream/pkg/types"
)

// Range is an inclusive bound for one metric.
type Range struct {
	Min, Max float64
	// Decimals is the number of decimal places kept; 0 draws integers.
	Decimals int
}

// Ranges are the default simulator bounds.
var Ranges = map[string]Range{
	types.HeartRate: {Min: 60, Max: 130},
	types.SpO2:      {Min: 85, Max: 100},
	types.Glucose:   {Min: 80, Max: 260},
	types.Temp:      {Min: 36.0, Max: 39.0, Decimals: 1},
}

// Generator draws readings from a seeded source. It is safe for concurrent
// use.
type Generator struct {
	mu     sync.Mutex
	rng    *rand.Rand
	ranges map[string]Range
}

// New returns a Generator seeded with seed; zero seeds from the clock.
func New(seed int64) *Generator {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{rng: rand.New(rand.NewSource(seed)), ranges: Ranges} //nolint:gosec // simulation only
}

// Next returns one reading with every configured metric.
func (g *Generator) Next() types.Vitals {
	g.mu.Lock()
	defer g.mu.Unlock()

	v := make(types.Vitals, len(g.ranges))
	for metric, r := range g.ranges {
		v[metric] = g.draw(r)
	}
	return v
}

func (g *Generator) draw(r Range) float64 {
	if r.Decimals == 0 {
		lo, hi := int(r.Min), int(r.Max)
		return float64(lo + g.rng.Intn(hi-lo+1))
	}
	scale := math.Pow(10, float64(r.Decimals))
	x := r.Min + g.rng.Float64()*(r.Max-r.Min)
	return math.Round(x*scale) / scale
}
