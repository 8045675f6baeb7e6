// Package platform evaluates experiment conditions end to end and drives
// sweeps over condition grids.
package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"runtime"

	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"substrata/internal/classify"
	"substrata/internal/evo"
	"substrata/internal/fitness"
	"substrata/internal/model"
	"substrata/internal/substrate"
)

// SeedOutcome is the evolved champion of one seed and its classification.
type SeedOutcome struct {
	Seed             int64                         `json:"seed"`
	Champion         model.Scored                  `json:"champion"`
	Champions        []model.Scored                `json:"champions"`
	Classification   classify.SeedClassification   `json:"classification"`
	Diagnostics      []model.GenerationDiagnostics `json:"diagnostics,omitempty"`
	BestByGeneration []float64                     `json:"best_by_generation"`
	Cancelled        bool                          `json:"cancelled,omitempty"`
}

// Classified reports whether the seed got far enough to have a champion.
// A cancelled seed may still be classified on its best-so-far genome.
func (s SeedOutcome) Classified() bool { return len(s.Champions) > 0 }

// ConditionOutcome aggregates the classified seeds. When Cancelled is set the
// result covers only those, some possibly on a best-so-far champion.
type ConditionOutcome struct {
	Condition model.Condition            `json:"condition"`
	Result    model.ClassificationResult `json:"result"`
	Seeds     []SeedOutcome              `json:"seeds"`
	Cancelled bool                       `json:"cancelled,omitempty"`
}

type Options struct {
	Logger logrus.FieldLogger
	// SeedParallelism bounds how many seeds run at once. Zero or less uses
	// GOMAXPROCS.
	SeedParallelism int
}

func (o Options) logger() logrus.FieldLogger {
	if o.Logger != nil {
		return o.Logger
	}
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func (o Options) seedParallelism() int {
	if o.SeedParallelism > 0 {
		return o.SeedParallelism
	}
	return runtime.GOMAXPROCS(0)
}

// EvaluateCondition runs cond.Seeds independent searches and returns the
// modal classification. On cancellation the result aggregates the seeds that
// completed at least one generation; the context's error is returned only
// when none did.
func EvaluateCondition(ctx context.Context, cond model.Condition) (model.ClassificationResult, error) {
	return EvaluateConditionWith(ctx, cond, Options{})
}

func EvaluateConditionWith(ctx context.Context, cond model.Condition, opts Options) (model.ClassificationResult, error) {
	out, err := Evaluate(ctx, cond, opts)
	if err != nil {
		return model.ClassificationResult{}, err
	}
	if out.Cancelled && out.Result.Trials == 0 {
		return model.ClassificationResult{}, fmt.Errorf("evaluate condition: %w", cancelCause(ctx))
	}
	return out.Result, nil
}

// Evaluate is EvaluateCondition with per-seed detail. Seed i uses
// cond.Seed+i, so the outcome does not depend on SeedParallelism.
func Evaluate(ctx context.Context, cond model.Condition, opts Options) (ConditionOutcome, error) {
	if err := cond.Validate(); err != nil {
		return ConditionOutcome{}, err
	}
	classifier, err := classify.New(cond.Settings.Classifier)
	if err != nil {
		return ConditionOutcome{}, err
	}
	log := opts.logger().WithFields(conditionFields(cond))

	seeds := make([]SeedOutcome, cond.Seeds)
	errs := make([]error, cond.Seeds)
	p := pool.New().WithMaxGoroutines(opts.seedParallelism())
	for i := range seeds {
		seed := cond.Seed + int64(i)
		p.Go(func() {
			if ctx.Err() != nil {
				seeds[i] = SeedOutcome{Seed: seed, Cancelled: true}
				return
			}
			seeds[i], errs[i] = EvaluateSeed(ctx, cond, seed, classifier, log)
		})
	}
	p.Wait()
	if err := errors.Join(errs...); err != nil {
		return ConditionOutcome{}, err
	}

	out := ConditionOutcome{Condition: cond}
	completed := make([]classify.SeedClassification, 0, len(seeds))
	for _, s := range seeds {
		if s.Cancelled {
			out.Cancelled = true
		}
		if !s.Classified() {
			continue
		}
		out.Seeds = append(out.Seeds, s)
		completed = append(completed, s.Classification)
	}
	out.Result = classify.Aggregate(completed)
	log.WithFields(logrus.Fields{
		"n_states":   out.Result.NStates,
		"consensus":  fmt.Sprintf("%d/%d", out.Result.Successes, out.Result.Trials),
		"hysteresis": out.Result.Hysteresis,
		"cancelled":  out.Cancelled,
	}).Info("condition evaluated")
	return out, nil
}

// EvaluateSeed searches every admitted family for one seed and classifies
// the champion. A cancelled search is classified on its best-so-far champion;
// only a search cancelled before its first generation comes back
// unclassified. cond is assumed valid.
func EvaluateSeed(ctx context.Context, cond model.Condition, seed int64, classifier *classify.Classifier, log logrus.FieldLogger) (SeedOutcome, error) {
	out := SeedOutcome{Seed: seed}
	evaluator, err := fitness.NewFromCondition(cond, seed)
	if err != nil {
		return out, err
	}
	spaces, err := substrate.Spaces(cond.Allowed, cond.QuantizerLevels)
	if err != nil {
		return out, err
	}
	res, err := evo.Search(ctx, evo.SearchConfig{
		Kind:           cond.Optimizer,
		Spaces:         spaces,
		Scorer:         evaluator,
		PopulationSize: cond.PopulationSize,
		Generations:    cond.Generations,
		Seed:           seed,
		Workers:        cond.Workers,
		Search:         cond.Settings.Search,
		Logger:         log,
	})
	if err != nil {
		return out, fmt.Errorf("seed %d: %w", seed, err)
	}
	out.Cancelled = res.Cancelled
	if len(res.Champions) == 0 {
		return out, nil
	}

	out.Champion = res.Champion
	out.Champions = res.Champions
	for _, fam := range res.PerFamily {
		if fam.Family == res.Champion.Genome.Family {
			out.Diagnostics = fam.Diagnostics
			out.BestByGeneration = fam.BestByGeneration
			break
		}
	}
	out.Classification, err = classifier.ClassifyGenome(res.Champion.Genome)
	if err != nil {
		return out, fmt.Errorf("seed %d: classify champion: %w", seed, err)
	}
	log.WithFields(logrus.Fields{
		"seed":      seed,
		"family":    res.Champion.Genome.Family.String(),
		"fitness":   res.Champion.Score.Value,
		"n_states":  out.Classification.NStates,
		"cancelled": out.Cancelled,
	}).Debug("seed evaluated")
	return out, nil
}

func conditionFields(cond model.Condition) logrus.Fields {
	return logrus.Fields{
		"allowed":     cond.Allowed.String(),
		"optimizer":   cond.Optimizer.String(),
		"fitness":     cond.Fitness.String(),
		"sigma":       cond.Sigma,
		"energy_zero": cond.EnergyZero,
		"energy_abs1": cond.EnergyAbs1,
	}
}

func cancelCause(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return context.Canceled
}
