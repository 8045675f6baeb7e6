package evo

import (
	"errors"
	"math/rand/v2"
	"testing"

	"substrata/internal/model"
)

func rankedFixture(values ...float64) []scoredCandidate {
	out := make([]scoredCandidate, len(values))
	for i, v := range values {
		out[i] = scoredCandidate{
			candidate: candidate{unit: []float64{float64(i) / 10}, genome: model.Genome{ID: candidateID(model.FamilyStep, 0, i)}},
			score:     model.FitnessScore{Kind: model.FitnessTask, Value: v},
		}
	}
	return out
}

func TestTruncationSelectorStaysInTopFraction(t *testing.T) {
	ranked := rankedFixture(0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2)
	selector := TruncationSelector{Fraction: 0.25}
	rng := rand.New(rand.NewPCG(1, 1))
	for i := 0; i < 200; i++ {
		idx, err := selector.PickParent(rng, ranked)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		if idx > 1 {
			t.Fatalf("picked index %d outside top quarter", idx)
		}
	}
}

func TestTournamentSelectorBiasesTowardFitter(t *testing.T) {
	ranked := rankedFixture(0.9, 0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2)
	selector := TournamentSelector{TournamentSize: 3}
	rng := rand.New(rand.NewPCG(7, 11))
	counts := make([]int, len(ranked))
	for i := 0; i < 2000; i++ {
		idx, err := selector.PickParent(rng, ranked)
		if err != nil {
			t.Fatalf("pick parent: %v", err)
		}
		counts[idx]++
	}
	if counts[0] <= counts[len(counts)-1] {
		t.Fatalf("expected best to be picked more often than worst: %v", counts)
	}
}

func TestSelectorsRejectEmptyPopulation(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	for _, selector := range []Selector{TournamentSelector{TournamentSize: 2}, TruncationSelector{Fraction: 0.5}} {
		if _, err := selector.PickParent(rng, nil); err == nil {
			t.Fatalf("%s: expected error for empty population", selector.Name())
		}
		if _, err := selector.PickParent(nil, rankedFixture(1)); err == nil {
			t.Fatalf("%s: expected error for nil rng", selector.Name())
		}
	}
}

func TestNewSelectorByName(t *testing.T) {
	settings := model.DefaultSettings().Search
	settings.Selection = model.SelectionTruncation
	selector, err := NewSelector(settings)
	if err != nil {
		t.Fatalf("new selector: %v", err)
	}
	if selector.Name() != model.SelectionTruncation {
		t.Fatalf("unexpected selector %q", selector.Name())
	}
	settings.Selection = "roulette"
	if _, err := NewSelector(settings); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}
