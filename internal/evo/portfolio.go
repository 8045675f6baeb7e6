package evo

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"substrata/internal/model"
	"substrata/internal/substrate"
)

// SearchConfig is Config without a fixed family: one search runs per space.
type SearchConfig struct {
	Kind           model.OptimizerKind
	Spaces         []substrate.Space
	Scorer         Scorer
	PopulationSize int
	Generations    int
	Seed           int64
	Workers        int
	Search         model.SearchSettings
	Logger         logrus.FieldLogger
}

type SearchResult struct {
	// Champion is the winning family's best genome, scored under the shared
	// champion key.
	Champion  model.Scored
	Champions []model.Scored
	PerFamily []Result
	Cancelled bool
}

// Search runs one optimizer per admitted family and picks the winner by
// re-scoring every family champion under the same evaluation key, so no
// family wins on a lucky noise draw of its own. Ties keep the earlier space.
func Search(ctx context.Context, cfg SearchConfig) (SearchResult, error) {
	if len(cfg.Spaces) == 0 {
		return SearchResult{}, model.NewConfigurationError("allowed", "", "no admitted families")
	}
	if cfg.Scorer == nil {
		return SearchResult{}, fmt.Errorf("scorer is required")
	}

	out := SearchResult{
		PerFamily: make([]Result, 0, len(cfg.Spaces)),
		Champions: make([]model.Scored, 0, len(cfg.Spaces)),
	}
	for _, space := range cfg.Spaces {
		res, err := Run(ctx, Config{
			Kind:           cfg.Kind,
			Space:          space,
			Scorer:         cfg.Scorer,
			PopulationSize: cfg.PopulationSize,
			Generations:    cfg.Generations,
			Seed:           cfg.Seed,
			Workers:        cfg.Workers,
			Search:         cfg.Search,
			Logger:         cfg.Logger,
		})
		if err != nil {
			return SearchResult{}, fmt.Errorf("search %s: %w", space.Family, err)
		}
		out.PerFamily = append(out.PerFamily, res)
		if res.Cancelled {
			out.Cancelled = true
		}
		if res.Completed == 0 {
			continue
		}
		champion := res.Best.Genome
		out.Champions = append(out.Champions, model.Scored{
			Genome: champion,
			Score:  cfg.Scorer.Evaluate(champion, cfg.Generations, 0),
		})
		if out.Cancelled {
			break
		}
	}

	if len(out.Champions) == 0 {
		return out, nil
	}
	out.Champion = out.Champions[0]
	for _, item := range out.Champions[1:] {
		if item.Score.Value > out.Champion.Score.Value {
			out.Champion = item
		}
	}
	return out, nil
}
