package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sourcegraph/conc/pool"

	"substrata/internal/model"
	"substrata/internal/stats"
	"substrata/internal/storage"
)

// SweepRequest is an expanded condition grid. Base supplies the log header.
type SweepRequest struct {
	Command    string
	Base       model.Condition
	Conditions []model.Condition
}

type SweepResult struct {
	Run       model.RunRecord         `json:"run"`
	Records   []model.ConditionRecord `json:"records"`
	Failed    int                     `json:"failed"`
	Cancelled bool                    `json:"cancelled,omitempty"`
}

type Config struct {
	Store storage.Store
	// Out receives the log header and one CSV_ROW per condition, in grid
	// order. Nil discards them.
	Out    io.Writer
	Logger logrus.FieldLogger
	// Parallelism bounds concurrently evaluated conditions; zero means one.
	Parallelism     int
	SeedParallelism int
	Now             func() time.Time
}

// Runner owns a store and evaluates sweeps into it.
type Runner struct {
	store storage.Store
	cfg   Config
	log   logrus.FieldLogger

	mu      sync.Mutex
	started bool
}

func NewRunner(cfg Config) *Runner {
	if cfg.Out == nil {
		cfg.Out = io.Discard
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Runner{store: cfg.Store, cfg: cfg, log: Options{Logger: cfg.Logger}.logger()}
}

func (r *Runner) Init(ctx context.Context) error {
	if r.store == nil {
		return fmt.Errorf("store is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}
	if err := r.store.Init(ctx); err != nil {
		return fmt.Errorf("init store: %w", err)
	}
	r.started = true
	return nil
}

func (r *Runner) Started() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.started
}

// Reset drops stored records when the store supports it and reinitializes.
func (r *Runner) Reset(ctx context.Context) error {
	if resetter, ok := r.store.(storage.Resetter); ok {
		if err := resetter.Reset(ctx); err != nil {
			return err
		}
	}
	r.mu.Lock()
	r.started = false
	r.mu.Unlock()
	return r.Init(ctx)
}

func (r *Runner) Store() storage.Store { return r.store }

// Sweep validates every condition, then evaluates them and streams rows in
// grid order. A failing condition is recorded with its error and the sweep
// continues; a configuration error in any condition aborts before the first
// evaluation. Cancellation stops at the next condition boundary and reports
// Cancelled without an error.
func (r *Runner) Sweep(ctx context.Context, req SweepRequest) (SweepResult, error) {
	if !r.Started() {
		return SweepResult{}, fmt.Errorf("runner is not initialized")
	}
	if len(req.Conditions) == 0 {
		return SweepResult{}, model.NewConfigurationError("conditions", 0, "sweep has no conditions")
	}
	if err := req.Base.Validate(); err != nil {
		return SweepResult{}, fmt.Errorf("base condition: %w", err)
	}
	for i, cond := range req.Conditions {
		if err := cond.Validate(); err != nil {
			return SweepResult{}, fmt.Errorf("condition %d: %w", i, err)
		}
	}

	run := model.RunRecord{
		VersionedRecord: storage.Versioned(),
		ID:              uuid.NewString(),
		CreatedAtUTC:    r.cfg.Now().UTC().Format(time.RFC3339Nano),
		Command:         req.Command,
		Base:            req.Base,
		Conditions:      len(req.Conditions),
	}
	if err := r.store.SaveRun(ctx, run); err != nil {
		return SweepResult{}, fmt.Errorf("save run: %w", err)
	}
	log := r.log.WithField("run_id", run.ID)
	log.WithField("conditions", len(req.Conditions)).Info("sweep started")

	em := &emitter{
		out:     r.cfg.Out,
		store:   r.store,
		records: make([]*model.ConditionRecord, len(req.Conditions)),
	}
	if err := em.writeLines(stats.HeaderLines(stats.MetadataFor(req.Command, req.Base))...); err != nil {
		return SweepResult{}, err
	}

	opts := Options{Logger: log, SeedParallelism: r.cfg.SeedParallelism}
	p := pool.New().WithMaxGoroutines(r.cfg.Parallelism)
	for i, cond := range req.Conditions {
		p.Go(func() {
			if ctx.Err() != nil {
				return
			}
			rec := model.ConditionRecord{VersionedRecord: storage.Versioned(), RunID: run.ID, Index: i, Condition: cond}
			out, err := Evaluate(ctx, cond, opts)
			switch {
			case err != nil:
				rec.Error = err.Error()
				log.WithError(err).WithField("index", i).Error("condition failed")
			case out.Cancelled:
				// A partial seed set would misreport consensus in the log.
				return
			default:
				rec.Result = out.Result
			}
			em.complete(ctx, i, rec)
		})
	}
	p.Wait()

	// Only the emitted prefix counts; a cancelled condition holds back
	// everything after it.
	result := SweepResult{Run: run, Cancelled: ctx.Err() != nil || em.next < len(em.records)}
	for _, rec := range em.records[:em.next] {
		if rec.Error != "" {
			result.Failed++
		}
		result.Records = append(result.Records, *rec)
	}
	if err := em.err(); err != nil {
		return result, err
	}
	log.WithFields(logrus.Fields{
		"completed": len(result.Records),
		"failed":    result.Failed,
		"cancelled": result.Cancelled,
	}).Info("sweep finished")
	return result, nil
}

// emitter releases completed conditions in index order so the output stays
// in grid order whatever the evaluation order.
type emitter struct {
	out     io.Writer
	store   storage.Store
	records []*model.ConditionRecord

	mu   sync.Mutex
	next int
	errs []error
}

func (e *emitter) complete(ctx context.Context, index int, rec model.ConditionRecord) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.records[index] = &rec
	for e.next < len(e.records) && e.records[e.next] != nil {
		cur := e.records[e.next]
		if err := e.store.SaveConditionResult(context.WithoutCancel(ctx), *cur); err != nil {
			e.errs = append(e.errs, fmt.Errorf("save condition %d: %w", cur.Index, err))
		}
		line := stats.FormatRow(stats.NewRow(cur.Condition, cur.Result))
		if cur.Error != "" {
			line = fmt.Sprintf("# condition %d failed: %s", cur.Index, strings.ReplaceAll(cur.Error, "\n", " "))
		}
		if _, err := io.WriteString(e.out, line+"\n"); err != nil {
			e.errs = append(e.errs, err)
		}
		e.next++
	}
}

func (e *emitter) writeLines(lines ...string) error {
	for _, line := range lines {
		if _, err := io.WriteString(e.out, line+"\n"); err != nil {
			return err
		}
	}
	return nil
}

func (e *emitter) err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return errors.Join(e.errs...)
}
