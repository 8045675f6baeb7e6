package evo

import (
	"fmt"
	"math"
	"math/rand/v2"

	"substrata/internal/model"
)

// Selector chooses a parent index from candidates ranked best first.
type Selector interface {
	Name() string
	PickParent(rng *rand.Rand, ranked []scoredCandidate) (int, error)
}

// NewSelector builds the selector named by the search settings.
func NewSelector(settings model.SearchSettings) (Selector, error) {
	switch settings.Selection {
	case model.SelectionTournament, "":
		return TournamentSelector{TournamentSize: settings.TournamentSize}, nil
	case model.SelectionTruncation:
		return TruncationSelector{Fraction: settings.TruncationFraction}, nil
	default:
		return nil, model.NewConfigurationError("search.selection", settings.Selection, "expected tournament|truncation")
	}
}

// TournamentSelector samples candidates with replacement and keeps the
// fittest.
type TournamentSelector struct {
	TournamentSize int
}

func (TournamentSelector) Name() string {
	return model.SelectionTournament
}

func (s TournamentSelector) PickParent(rng *rand.Rand, ranked []scoredCandidate) (int, error) {
	if rng == nil {
		return 0, fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return 0, fmt.Errorf("empty population")
	}
	size := s.TournamentSize
	if size <= 0 {
		size = 3
	}
	best := rng.IntN(len(ranked))
	for i := 1; i < size; i++ {
		idx := rng.IntN(len(ranked))
		if ranked[idx].score.Value > ranked[best].score.Value {
			best = idx
		}
	}
	return best, nil
}

// TruncationSelector picks uniformly from the top fraction.
type TruncationSelector struct {
	Fraction float64
}

func (TruncationSelector) Name() string {
	return model.SelectionTruncation
}

func (s TruncationSelector) PickParent(rng *rand.Rand, ranked []scoredCandidate) (int, error) {
	if rng == nil {
		return 0, fmt.Errorf("random source is required")
	}
	if len(ranked) == 0 {
		return 0, fmt.Errorf("empty population")
	}
	fraction := s.Fraction
	if fraction <= 0 || fraction > 1 {
		fraction = 0.5
	}
	pool := int(math.Ceil(fraction * float64(len(ranked))))
	if pool < 1 {
		pool = 1
	}
	return rng.IntN(pool), nil
}
