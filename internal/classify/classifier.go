// Package classify counts the stable output levels of a substrate response
// and flags direction-dependent behavior.
package classify

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"substrata/internal/model"
	"substrata/internal/substrate"
)

// Plateau is a maximal run of flat sweep points, inclusive on both ends.
type Plateau struct {
	Start int     `json:"start"`
	End   int     `json:"end"`
	Level float64 `json:"level"`
}

func (p Plateau) Len() int { return p.End - p.Start + 1 }

// Cluster is a group of plateaus whose levels lie closer than the minimum
// separation.
type Cluster struct {
	Level     float64 `json:"level"`
	Occupancy float64 `json:"occupancy"`
}

// Sweep is a noiseless response over ascending inputs. Backward holds the
// descending pass re-aligned to the same inputs.
type Sweep struct {
	Inputs   []float64 `json:"inputs"`
	Forward  []float64 `json:"forward"`
	Backward []float64 `json:"backward"`
}

type SeedClassification struct {
	NStates    int       `json:"n_states"`
	Hysteresis bool      `json:"hysteresis"`
	MaxGap     float64   `json:"max_gap"`
	Coverage   float64   `json:"coverage"`
	Plateaus   []Plateau `json:"plateaus"`
	Clusters   []Cluster `json:"clusters"`
}

type Classifier struct {
	settings model.ClassifierSettings
	grid     []float64
}

func New(settings model.ClassifierSettings) (*Classifier, error) {
	if settings.SweepPoints < 3 {
		return nil, model.NewConfigurationError("classifier.sweep_points", settings.SweepPoints, "must be >= 3")
	}
	if !(settings.DomainMax > settings.DomainMin) {
		return nil, model.NewConfigurationError("classifier.domain", [2]float64{settings.DomainMin, settings.DomainMax}, "domain_max must exceed domain_min")
	}
	return &Classifier{
		settings: settings,
		grid:     substrate.Grid(settings.DomainMin, settings.DomainMax, settings.SweepPoints),
	}, nil
}

func (c *Classifier) Settings() model.ClassifierSettings { return c.settings }

// Sweep runs the model forward then backward over the domain, each pass on a
// fresh run. The model's switch points are added to the grid so a latch band
// narrower than the grid spacing is still crossed from both sides.
func (c *Classifier) Sweep(m substrate.Model) Sweep {
	inputs := c.inputs(m)
	n := len(inputs)
	forward := m.Respond(inputs, nil)
	descending := make([]float64, n)
	for i := range descending {
		descending[i] = inputs[n-1-i]
	}
	back := m.Respond(descending, nil)
	backward := make([]float64, n)
	for i := range backward {
		backward[i] = back[n-1-i]
	}
	return Sweep{Inputs: inputs, Forward: forward, Backward: backward}
}

func (c *Classifier) inputs(m substrate.Model) []float64 {
	extra := m.SwitchPoints()
	inputs := make([]float64, 0, len(c.grid)+len(extra))
	inputs = append(inputs, c.grid...)
	added := false
	for _, x := range extra {
		if x > c.settings.DomainMin && x < c.settings.DomainMax {
			inputs = append(inputs, x)
			added = true
		}
	}
	if !added {
		return inputs
	}
	sort.Float64s(inputs)
	out := inputs[:1]
	for _, x := range inputs[1:] {
		if x != out[len(out)-1] {
			out = append(out, x)
		}
	}
	return out
}

// Classify counts the states of the forward sweep and compares it with the
// backward sweep for hysteresis.
func (c *Classifier) Classify(m substrate.Model) SeedClassification {
	sweep := c.Sweep(m)
	out := c.levels(sweep.Inputs, sweep.Forward)
	out.MaxGap = maxGap(sweep.Forward, sweep.Backward)
	out.Hysteresis = out.MaxGap > c.settings.HysteresisTolerance
	return out
}

// ClassifyGenome builds the model for genome and classifies it.
func (c *Classifier) ClassifyGenome(genome model.Genome) (SeedClassification, error) {
	m, err := substrate.New(genome)
	if err != nil {
		return SeedClassification{}, err
	}
	return c.Classify(m), nil
}

func (c *Classifier) levels(xs, ys []float64) SeedClassification {
	plateaus := findPlateaus(xs, ys, c.settings.MaxPlateauSlope)
	clusters := mergePlateaus(plateaus, c.settings.MinSeparation, len(xs))

	kept := clusters[:0]
	coverage := 0.0
	for _, cl := range clusters {
		if cl.Occupancy < c.settings.MinOccupancy {
			continue
		}
		kept = append(kept, cl)
		coverage += cl.Occupancy
	}

	out := SeedClassification{Plateaus: plateaus, Clusters: kept, Coverage: coverage}
	if coverage >= c.settings.MinCoverage {
		out.NStates = len(kept)
	}
	return out
}

// findPlateaus returns maximal runs of points whose central slope is at
// most maxSlope. NaN outputs are never flat.
func findPlateaus(xs, ys []float64, maxSlope float64) []Plateau {
	n := len(ys)
	flat := make([]bool, n)
	for i := range ys {
		lo, hi := i-1, i+1
		if lo < 0 {
			lo = 0
		}
		if hi >= n {
			hi = n - 1
		}
		dx := xs[hi] - xs[lo]
		if dx == 0 {
			continue
		}
		slope := math.Abs((ys[hi] - ys[lo]) / dx)
		flat[i] = slope <= maxSlope && !math.IsNaN(ys[i])
	}

	var plateaus []Plateau
	for i := 0; i < n; {
		if !flat[i] {
			i++
			continue
		}
		j := i
		for j+1 < n && flat[j+1] {
			j++
		}
		plateaus = append(plateaus, Plateau{Start: i, End: j, Level: stat.Mean(ys[i:j+1], nil)})
		i = j + 1
	}
	return plateaus
}

// mergePlateaus groups plateau levels by single linkage. Occupancy is the
// share of sweep points covered by each cluster's plateaus.
func mergePlateaus(plateaus []Plateau, minSeparation float64, points int) []Cluster {
	if len(plateaus) == 0 || points == 0 {
		return nil
	}
	sorted := append([]Plateau(nil), plateaus...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	var clusters []Cluster
	var levels, weights []float64
	flush := func() {
		total := 0.0
		for _, w := range weights {
			total += w
		}
		clusters = append(clusters, Cluster{
			Level:     stat.Mean(levels, weights),
			Occupancy: total / float64(points),
		})
		levels, weights = levels[:0], weights[:0]
	}
	for i, p := range sorted {
		if i > 0 && p.Level-sorted[i-1].Level >= minSeparation {
			flush()
		}
		levels = append(levels, p.Level)
		weights = append(weights, float64(p.Len()))
	}
	flush()
	return clusters
}

func maxGap(forward, backward []float64) float64 {
	gap := 0.0
	for i := range forward {
		d := math.Abs(forward[i] - backward[i])
		if d > gap {
			gap = d
		}
	}
	return gap
}

// Aggregate folds per-seed classifications into the modal state count. Ties
// go to the lower count; hysteresis is reported when more than half of the
// seeds show it.
func Aggregate(seeds []SeedClassification) model.ClassificationResult {
	if len(seeds) == 0 {
		return model.ClassificationResult{}
	}
	counts := map[int]int{}
	flagged := 0
	for _, s := range seeds {
		counts[s.NStates]++
		if s.Hysteresis {
			flagged++
		}
	}
	mode, best := 0, -1
	for n, k := range counts {
		if k > best || (k == best && n < mode) {
			mode, best = n, k
		}
	}
	return model.ClassificationResult{
		NStates:    mode,
		Successes:  best,
		Trials:     len(seeds),
		Hysteresis: 2*flagged > len(seeds),
	}
}
