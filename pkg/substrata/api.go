// Package substrata is the public entry point: evaluate conditions, run
// persisted sweeps and summarize sweep logs.
package substrata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"substrata/internal/classify"
	"substrata/internal/config"
	"substrata/internal/model"
	"substrata/internal/platform"
	"substrata/internal/stats"
	"substrata/internal/storage"
	"substrata/internal/substrate"
)

const (
	defaultRunsDir    = "runs"
	defaultExportsDir = "exports"
	defaultDBPath     = "substrata.db"
)

type (
	Condition            = model.Condition
	ClassificationResult = model.ClassificationResult
	Summary              = stats.Summary
	SweepConfig          = config.Sweep
)

// DefaultCondition is the reference ga/task condition.
func DefaultCondition() Condition { return model.DefaultCondition() }

type Options struct {
	StoreKind string
	DBPath    string
	// RunsDir receives per-run artifacts and the run index.
	RunsDir    string
	ExportsDir string
	Logger     logrus.FieldLogger
	// SeedParallelism bounds concurrently evaluated seeds per condition.
	SeedParallelism int
}

type Client struct {
	store  storage.Store
	logger logrus.FieldLogger

	runsDir         string
	exportsDir      string
	seedParallelism int
}

func New(opts Options) (*Client, error) {
	storeKind := opts.StoreKind
	if storeKind == "" {
		storeKind = storage.DefaultStoreKind()
	}
	dbPath := opts.DBPath
	if dbPath == "" {
		dbPath = defaultDBPath
	}
	runsDir := opts.RunsDir
	if runsDir == "" {
		runsDir = defaultRunsDir
	}
	exportsDir := opts.ExportsDir
	if exportsDir == "" {
		exportsDir = defaultExportsDir
	}
	logger := opts.Logger
	if logger == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		logger = l
	}

	store, err := storage.NewStore(storeKind, dbPath)
	if err != nil {
		return nil, err
	}
	return &Client{
		store:           store,
		logger:          logger,
		runsDir:         runsDir,
		exportsDir:      exportsDir,
		seedParallelism: opts.SeedParallelism,
	}, nil
}

func (c *Client) Close() error {
	return storage.CloseIfSupported(c.store)
}

func (c *Client) Init(ctx context.Context) error {
	if err := c.store.Init(ctx); err != nil {
		return err
	}
	return nil
}

// EvaluateCondition classifies one condition. A cancelled evaluation returns
// the aggregate of the seeds that got a champion, or the context's error when
// none did.
func (c *Client) EvaluateCondition(ctx context.Context, cond Condition) (ClassificationResult, error) {
	return platform.EvaluateConditionWith(ctx, cond, c.evalOptions())
}

type SweepRequest struct {
	Command string
	Config  SweepConfig
	// Out receives the log header and CSV_ROW lines as conditions finish.
	Out io.Writer
}

type SweepSummary struct {
	RunID        string
	ArtifactsDir string
	Conditions   int
	Failed       int
	Cancelled    bool
}

// Sweep evaluates the config's grid, stores every condition result and
// writes run artifacts. A cancelled sweep keeps what finished.
func (c *Client) Sweep(ctx context.Context, req SweepRequest) (SweepSummary, error) {
	if err := req.Config.Validate(); err != nil {
		return SweepSummary{}, err
	}
	runner := platform.NewRunner(platform.Config{
		Store:           c.store,
		Out:             req.Out,
		Logger:          c.logger,
		Parallelism:     req.Config.Parallelism,
		SeedParallelism: c.seedParallelism,
	})
	if err := runner.Init(ctx); err != nil {
		return SweepSummary{}, err
	}
	res, err := runner.Sweep(ctx, platform.SweepRequest{
		Command:    req.Command,
		Base:       req.Config.Condition,
		Conditions: req.Config.Conditions(),
	})
	if err != nil && res.Run.ID == "" {
		return SweepSummary{}, err
	}

	artifacts := stats.RunArtifacts{Run: res.Run, Conditions: res.Records}
	dir, writeErr := stats.WriteRunArtifacts(c.runsDir, artifacts)
	if writeErr != nil {
		return SweepSummary{}, errors.Join(err, writeErr)
	}
	if indexErr := stats.AppendRunIndex(c.runsDir, stats.IndexEntry(artifacts)); indexErr != nil {
		return SweepSummary{}, errors.Join(err, indexErr)
	}
	return SweepSummary{
		RunID:        res.Run.ID,
		ArtifactsDir: dir,
		Conditions:   len(res.Records),
		Failed:       res.Failed,
		Cancelled:    res.Cancelled,
	}, err
}

type InspectRequest struct {
	Condition Condition
	// SeedIndex selects seed Condition.Seed+SeedIndex.
	SeedIndex int
	// OutDir, when set, receives seed artifacts.
	OutDir string
	// Plot renders the response curve into OutDir as response.png.
	Plot bool
}

type InspectSummary struct {
	Outcome      platform.SeedOutcome
	Response     classify.Sweep
	ArtifactsDir string
	PlotPath     string
}

// Inspect evolves a single seed and returns its champion together with the
// forward and backward response of the champion.
func (c *Client) Inspect(ctx context.Context, req InspectRequest) (InspectSummary, error) {
	cond := req.Condition
	if err := cond.Validate(); err != nil {
		return InspectSummary{}, err
	}
	if req.SeedIndex < 0 || req.SeedIndex >= cond.Seeds {
		return InspectSummary{}, model.NewConfigurationError("seed_index", req.SeedIndex, "must be in [0, seeds)")
	}
	if req.Plot && req.OutDir == "" {
		return InspectSummary{}, errors.New("plot requires an output directory")
	}
	classifier, err := classify.New(cond.Settings.Classifier)
	if err != nil {
		return InspectSummary{}, err
	}
	seed := cond.Seed + int64(req.SeedIndex)
	outcome, err := platform.EvaluateSeed(ctx, cond, seed, classifier, c.logger)
	if err != nil {
		return InspectSummary{}, err
	}
	if !outcome.Classified() {
		return InspectSummary{}, fmt.Errorf("inspect seed %d: %w", seed, cancelErr(ctx))
	}
	m, err := substrate.New(outcome.Champion.Genome)
	if err != nil {
		return InspectSummary{}, err
	}
	out := InspectSummary{Outcome: outcome, Response: classifier.Sweep(m)}
	if req.OutDir == "" {
		return out, nil
	}

	out.ArtifactsDir, err = stats.WriteSeedArtifacts(req.OutDir, stats.SeedArtifacts{
		Name:             fmt.Sprintf("seed-%d", seed),
		Condition:        cond,
		Seed:             seed,
		Champion:         outcome.Champion,
		Champions:        outcome.Champions,
		Classification:   outcome.Classification,
		Diagnostics:      outcome.Diagnostics,
		BestByGeneration: outcome.BestByGeneration,
		Response:         out.Response,
	})
	if err != nil {
		return InspectSummary{}, err
	}
	if req.Plot {
		out.PlotPath = filepath.Join(out.ArtifactsDir, "response.png")
		title := fmt.Sprintf("%s seed %d: %s", outcome.Champion.Genome.Family, seed, stats.StateName(outcome.Classification.NStates))
		if err := stats.PlotResponse(out.PlotPath, title, out.Response.Inputs, out.Response.Forward, out.Response.Backward); err != nil {
			return InspectSummary{}, err
		}
	}
	return out, nil
}

type ReportRequest struct {
	Paths []string
	// OutDir, when set, receives final_validation_summary.json.
	OutDir string
}

type ReportSummary struct {
	Logs        []stats.Log
	Summary     Summary
	SummaryPath string
}

// Report parses sweep logs and summarizes them.
func (c *Client) Report(_ context.Context, req ReportRequest) (ReportSummary, error) {
	if len(req.Paths) == 0 {
		return ReportSummary{}, errors.New("report requires at least one log file")
	}
	logs := make([]stats.Log, 0, len(req.Paths))
	for _, path := range req.Paths {
		f, err := os.Open(path)
		if err != nil {
			return ReportSummary{}, err
		}
		log, err := stats.ParseLog(stats.LogName(path), f)
		f.Close()
		if err != nil {
			return ReportSummary{}, err
		}
		logs = append(logs, log)
	}
	out := ReportSummary{Logs: logs, Summary: stats.Summarize(logs)}
	if req.OutDir != "" {
		path, err := stats.WriteValidationSummary(req.OutDir, out.Summary)
		if err != nil {
			return ReportSummary{}, err
		}
		out.SummaryPath = path
	}
	return out, nil
}

type RunsRequest struct {
	Limit int
}

type RunItem struct {
	RunID        string
	CreatedAtUTC string
	Command      string
	Allowed      string
	Optimizer    string
	Fitness      string
	Conditions   int
	Stored       int
	Failed       int
}

// Runs lists stored runs newest first.
func (c *Client) Runs(ctx context.Context, req RunsRequest) ([]RunItem, error) {
	if req.Limit <= 0 {
		req.Limit = 20
	}
	runs, err := c.store.ListRuns(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]RunItem, 0, req.Limit)
	for i := len(runs) - 1; i >= 0 && len(out) < req.Limit; i-- {
		run := runs[i]
		records, err := c.store.ListConditionResults(ctx, run.ID)
		if err != nil {
			return nil, err
		}
		item := RunItem{
			RunID:        run.ID,
			CreatedAtUTC: run.CreatedAtUTC,
			Command:      run.Command,
			Allowed:      run.Base.Allowed.String(),
			Optimizer:    run.Base.Optimizer.String(),
			Fitness:      run.Base.Fitness.String(),
			Conditions:   run.Conditions,
			Stored:       len(records),
		}
		for _, rec := range records {
			if rec.Error != "" {
				item.Failed++
			}
		}
		out = append(out, item)
	}
	return out, nil
}

// Rows returns the CSV_ROW lines of a stored run in grid order.
func (c *Client) Rows(ctx context.Context, runID string) ([]string, error) {
	records, err := c.store.ListConditionResults(ctx, runID)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(records))
	for _, rec := range records {
		if rec.Error != "" {
			continue
		}
		out = append(out, stats.FormatRow(stats.NewRow(rec.Condition, rec.Result)))
	}
	return out, nil
}

type ExportRequest struct {
	RunID  string
	Latest bool
	OutDir string
}

type ExportSummary struct {
	RunID     string
	Directory string
}

func (c *Client) Export(_ context.Context, req ExportRequest) (ExportSummary, error) {
	if req.RunID != "" && req.Latest {
		return ExportSummary{}, errors.New("use either run id or latest")
	}
	if req.RunID == "" && !req.Latest {
		return ExportSummary{}, errors.New("export requires run id or latest")
	}
	if req.OutDir == "" {
		req.OutDir = c.exportsDir
	}

	runID := req.RunID
	if req.Latest {
		entries, err := stats.ListRunIndex(c.runsDir)
		if err != nil {
			return ExportSummary{}, err
		}
		if len(entries) == 0 {
			return ExportSummary{}, errors.New("no runs available to export")
		}
		runID = entries[0].RunID
	}
	dir, err := stats.ExportRunArtifacts(c.runsDir, runID, req.OutDir)
	if err != nil {
		return ExportSummary{}, err
	}
	return ExportSummary{RunID: runID, Directory: filepath.Clean(dir)}, nil
}

func (c *Client) evalOptions() platform.Options {
	return platform.Options{Logger: c.logger, SeedParallelism: c.seedParallelism}
}

func cancelErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return context.Canceled
}
