package evo

import (
	"context"
	"math/rand/v2"
	"testing"

	"substrata/internal/model"
	"substrata/internal/substrate"
)

// familyScorer prefers one family regardless of parameters.
type familyScorer struct {
	prefer model.Family
}

func (s familyScorer) Evaluate(genome model.Genome, _, _ int) model.FitnessScore {
	v := -1.0
	if genome.Family == s.prefer {
		v = -0.5
	}
	return model.FitnessScore{Kind: model.FitnessTask, Value: v, TaskError: -v}
}

func TestSearchPicksWinningFamily(t *testing.T) {
	spaces, err := substrate.Spaces(model.DiscreteOnly, 3)
	if err != nil {
		t.Fatalf("spaces: %v", err)
	}
	res, err := Search(context.Background(), SearchConfig{
		Kind:           model.OptimizerGA,
		Spaces:         spaces,
		Scorer:         familyScorer{prefer: model.FamilyQuantizer},
		PopulationSize: 6,
		Generations:    3,
		Seed:           1,
		Workers:        2,
		Search:         model.DefaultSettings().Search,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(res.PerFamily) != len(spaces) || len(res.Champions) != len(spaces) {
		t.Fatalf("expected one result per family, got %d/%d", len(res.PerFamily), len(res.Champions))
	}
	if res.Champion.Genome.Family != model.FamilyQuantizer {
		t.Fatalf("champion family = %s", res.Champion.Genome.Family)
	}
	if res.Champion.Genome.Params[substrate.QuantizerLevels] != 3 {
		t.Fatalf("quantizer levels not pinned: %v", res.Champion.Genome.Params)
	}
}

func TestSearchRequiresSpaces(t *testing.T) {
	_, err := Search(context.Background(), SearchConfig{Scorer: peakScorer{}})
	if err == nil {
		t.Fatal("expected error without spaces")
	}
}

func TestCMAESStepSizeStaysBounded(t *testing.T) {
	cfg := testConfig(t, model.OptimizerCMAES)
	cfg.Generations = 60
	res, err := Run(context.Background(), cfg)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, diag := range res.Diagnostics {
		if diag.StepSize < minStepSize || diag.StepSize > maxStepSize {
			t.Fatalf("generation %d step size %v out of bounds", diag.Generation, diag.StepSize)
		}
	}
}

func TestCMAESRecoversFromIndefiniteCovariance(t *testing.T) {
	cfg := testConfig(t, model.OptimizerCMAES)
	c := newCMAES(cfg, rand.New(rand.NewPCG(5, 6)))
	c.cov.SetSym(0, 0, -1)
	c.factorize()
	if c.cov.At(0, 0) != 1 || c.cov.At(1, 1) != 1 || c.cov.At(0, 1) != 0 {
		t.Fatalf("expected covariance reset to identity, got %v", c.cov)
	}
}
