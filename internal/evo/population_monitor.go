// Package evo searches a substrate family's parameter space for the genome
// that maximizes fitness.
package evo

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"substrata/internal/model"
	"substrata/internal/noise"
	"substrata/internal/substrate"
)

// Scorer evaluates one genome as a given individual of a given generation.
// Implementations must be safe for concurrent use and deterministic in their
// arguments.
type Scorer interface {
	Evaluate(genome model.Genome, generation, individual int) model.FitnessScore
}

type Config struct {
	Kind           model.OptimizerKind
	Space          substrate.Space
	Scorer         Scorer
	PopulationSize int
	Generations    int
	Seed           int64
	Workers        int
	Search         model.SearchSettings
	Logger         logrus.FieldLogger
}

type Result struct {
	Family           model.Family
	Best             model.Scored
	BestEver         model.Scored
	Final            model.Population
	BestByGeneration []float64
	Diagnostics      []model.GenerationDiagnostics
	Completed        int
	Cancelled        bool
}

// candidate is a proposed genome together with its unit-cube coordinates.
type candidate struct {
	unit   []float64
	genome model.Genome
}

type scoredCandidate struct {
	candidate
	score model.FitnessScore
}

// strategy is the optimizer-specific half of the loop. Implementations are
// only touched from the sequential phase between barriers.
type strategy interface {
	propose(generation int) []candidate
	observe(generation int, ranked []scoredCandidate)
	stepSize() float64
}

// PopulationMonitor drives one optimizer over one family. Each generation
// is proposed sequentially, scored in parallel and published as a whole.
type PopulationMonitor struct {
	cfg   Config
	strat strategy
	log   logrus.FieldLogger
}

func NewPopulationMonitor(cfg Config) (*PopulationMonitor, error) {
	if cfg.Scorer == nil {
		return nil, fmt.Errorf("scorer is required")
	}
	if cfg.Space.Dim() == 0 {
		return nil, model.NewConfigurationError("space", cfg.Space.Family, "family has no parameters")
	}
	if cfg.PopulationSize <= 0 {
		return nil, model.NewConfigurationError("population_size", cfg.PopulationSize, "must be > 0")
	}
	if cfg.Generations <= 0 {
		return nil, model.NewConfigurationError("generations", cfg.Generations, "must be > 0")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.GOMAXPROCS(0)
	}
	logger := cfg.Logger
	if logger == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		logger = discard
	}

	// Each family draws from its own stream so a portfolio search does not
	// couple families through shared randomness.
	rng := noise.Rand(noise.Key{Seed: cfg.Seed}, uint64(cfg.Space.Family))
	var strat strategy
	switch cfg.Kind {
	case model.OptimizerGA:
		selector, err := NewSelector(cfg.Search)
		if err != nil {
			return nil, err
		}
		strat = newGA(cfg, rng, selector)
	case model.OptimizerRandom:
		strat = newRandomSearch(cfg, rng)
	case model.OptimizerCMAES:
		strat = newCMAES(cfg, rng)
	default:
		return nil, model.NewConfigurationError("optimizer", cfg.Kind, "unknown value")
	}

	return &PopulationMonitor{
		cfg:   cfg,
		strat: strat,
		log:   logger.WithFields(logrus.Fields{"family": cfg.Space.Family.String(), "optimizer": cfg.Kind.String()}),
	}, nil
}

// Run executes the configured number of generations. Cancellation is
// observed between generations: the best result so far is returned with
// Cancelled set and a nil error.
func (m *PopulationMonitor) Run(ctx context.Context) (Result, error) {
	result := Result{
		Family:           m.cfg.Space.Family,
		BestByGeneration: make([]float64, 0, m.cfg.Generations),
		Diagnostics:      make([]model.GenerationDiagnostics, 0, m.cfg.Generations),
	}
	haveBest := false

	for gen := 0; gen < m.cfg.Generations; gen++ {
		if ctx.Err() != nil {
			result.Cancelled = true
			m.log.WithField("generation", gen).Debug("search cancelled")
			break
		}

		proposed := m.strat.propose(gen)
		ranked, err := m.evaluatePopulation(proposed, gen)
		if err != nil {
			return Result{}, err
		}
		sort.SliceStable(ranked, func(i, j int) bool {
			return ranked[i].score.Value > ranked[j].score.Value
		})
		m.strat.observe(gen, ranked)

		members := make([]model.Scored, len(ranked))
		for i, item := range ranked {
			members[i] = model.Scored{Genome: item.genome, Score: item.score}
		}
		result.Final = model.Population{Generation: gen, Members: members}
		result.Best = members[0]
		if !haveBest || members[0].Score.Value > result.BestEver.Score.Value {
			result.BestEver = members[0]
			haveBest = true
		}
		result.BestByGeneration = append(result.BestByGeneration, members[0].Score.Value)
		diag := summarizeGeneration(members, gen, m.cfg.Space.Family, m.strat.stepSize())
		result.Diagnostics = append(result.Diagnostics, diag)
		result.Completed = gen + 1

		m.log.WithFields(logrus.Fields{
			"generation": gen,
			"best":       diag.BestFitness,
			"mean":       diag.MeanFitness,
			"degenerate": diag.Degenerate,
		}).Trace("generation complete")
	}

	if !haveBest {
		return result, nil
	}
	if m.cfg.Kind == model.OptimizerRandom {
		result.Best = result.BestEver
	}
	return result, nil
}

// evaluatePopulation is the generation barrier: every candidate is scored
// before any is returned. Scores depend only on (genome, generation, index)
// so the worker count never changes the outcome.
func (m *PopulationMonitor) evaluatePopulation(population []candidate, generation int) ([]scoredCandidate, error) {
	scored := make([]scoredCandidate, len(population))
	var g errgroup.Group
	g.SetLimit(m.cfg.Workers)
	for i := range population {
		g.Go(func() error {
			score := m.cfg.Scorer.Evaluate(population[i].genome, generation, i)
			scored[i] = scoredCandidate{candidate: population[i], score: score}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return scored, nil
}

func summarizeGeneration(ranked []model.Scored, generation int, family model.Family, step float64) model.GenerationDiagnostics {
	diag := model.GenerationDiagnostics{Generation: generation, Family: family, StepSize: step}
	if len(ranked) == 0 {
		return diag
	}
	diag.BestFitness = ranked[0].Score.Value
	diag.MinFitness = ranked[0].Score.Value
	total := 0.0
	finite := 0
	for _, item := range ranked {
		if item.Score.Degenerate {
			diag.Degenerate++
			continue
		}
		total += item.Score.Value
		finite++
		if item.Score.Value < diag.MinFitness {
			diag.MinFitness = item.Score.Value
		}
	}
	if diag.Degenerate > 0 {
		diag.MinFitness = model.WorstFitness
	}
	if finite > 0 {
		diag.MeanFitness = total / float64(finite)
	}
	return diag
}

// Run is a convenience wrapper around NewPopulationMonitor and Run.
func Run(ctx context.Context, cfg Config) (Result, error) {
	monitor, err := NewPopulationMonitor(cfg)
	if err != nil {
		return Result{}, err
	}
	return monitor.Run(ctx)
}

func candidateID(family model.Family, generation, index int) string {
	return fmt.Sprintf("%s-g%d-i%d", family, generation, index)
}
