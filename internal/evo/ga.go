package evo

import (
	"math/rand/v2"
)

// geneticAlgorithm keeps the top EliteCount candidates unchanged and fills
// the rest of each generation with mutated offspring of selected parents.
type geneticAlgorithm struct {
	cfg      Config
	rng      *rand.Rand
	selector Selector
	ranked   []scoredCandidate
}

func newGA(cfg Config, rng *rand.Rand, selector Selector) *geneticAlgorithm {
	return &geneticAlgorithm{cfg: cfg, rng: rng, selector: selector}
}

func (g *geneticAlgorithm) propose(generation int) []candidate {
	space := g.cfg.Space
	n := g.cfg.PopulationSize
	out := make([]candidate, 0, n)
	if generation == 0 || len(g.ranked) == 0 {
		for i := 0; i < n; i++ {
			unit := space.Sample(g.rng)
			out = append(out, candidate{unit: unit, genome: space.Genome(candidateID(space.Family, generation, i), unit)})
		}
		return out
	}

	elites := g.cfg.Search.EliteCount
	if elites > len(g.ranked) {
		elites = len(g.ranked)
	}
	if elites > n {
		elites = n
	}
	for i := 0; i < elites; i++ {
		out = append(out, g.ranked[i].candidate)
	}

	for len(out) < n {
		p1 := g.pick()
		child := append([]float64(nil), g.ranked[p1].unit...)
		if g.rng.Float64() < g.cfg.Search.CrossoverRate {
			p2 := g.pick()
			child = blendCrossover(g.rng, g.ranked[p1].unit, g.ranked[p2].unit)
		}
		mutateGaussian(g.rng, child, g.cfg.Search.MutationScale)
		id := candidateID(space.Family, generation, len(out))
		out = append(out, candidate{unit: child, genome: space.Genome(id, child)})
	}
	return out
}

func (g *geneticAlgorithm) pick() int {
	idx, err := g.selector.PickParent(g.rng, g.ranked)
	if err != nil {
		return 0
	}
	return idx
}

func (g *geneticAlgorithm) observe(_ int, ranked []scoredCandidate) {
	g.ranked = ranked
}

func (g *geneticAlgorithm) stepSize() float64 { return g.cfg.Search.MutationScale }

// randomSearch samples a fresh uniform generation every time; the monitor
// keeps the best-ever candidate.
type randomSearch struct {
	cfg Config
	rng *rand.Rand
}

func newRandomSearch(cfg Config, rng *rand.Rand) *randomSearch {
	return &randomSearch{cfg: cfg, rng: rng}
}

func (r *randomSearch) propose(generation int) []candidate {
	space := r.cfg.Space
	out := make([]candidate, r.cfg.PopulationSize)
	for i := range out {
		unit := space.Sample(r.rng)
		out[i] = candidate{unit: unit, genome: space.Genome(candidateID(space.Family, generation, i), unit)}
	}
	return out
}

func (r *randomSearch) observe(int, []scoredCandidate) {}

func (r *randomSearch) stepSize() float64 { return 0 }

// blendCrossover draws each gene uniformly from the parents' interval
// widened by a quarter on both sides, clamped to the unit cube.
func blendCrossover(rng *rand.Rand, a, b []float64) []float64 {
	const alpha = 0.25
	child := make([]float64, len(a))
	for i := range a {
		lo, hi := a[i], b[i]
		if lo > hi {
			lo, hi = hi, lo
		}
		span := hi - lo
		child[i] = clampUnit(lo - alpha*span + rng.Float64()*(1+2*alpha)*span)
	}
	return child
}

// mutateGaussian perturbs each gene with probability 1/dim, and at least one
// gene, in place.
func mutateGaussian(rng *rand.Rand, unit []float64, scale float64) {
	if len(unit) == 0 {
		return
	}
	rate := 1 / float64(len(unit))
	mutated := false
	for i := range unit {
		if rng.Float64() < rate {
			unit[i] = clampUnit(unit[i] + scale*rng.NormFloat64())
			mutated = true
		}
	}
	if !mutated {
		i := rng.IntN(len(unit))
		unit[i] = clampUnit(unit[i] + scale*rng.NormFloat64())
	}
}

func clampUnit(v float64) float64 {
	switch {
	case v != v:
		return 0.5
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
