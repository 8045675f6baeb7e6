package storage

import (
	"context"
	"errors"
	"testing"

	"substrata/internal/model"
)

func sampleRun(id, created string) model.RunRecord {
	return model.RunRecord{
		VersionedRecord: Versioned(),
		ID:              id,
		CreatedAtUTC:    created,
		Command:         "substratactl sweep",
		Base:            model.DefaultCondition(),
		Conditions:      2,
	}
}

func sampleCondition(runID string, index, nStates int) model.ConditionRecord {
	cond := model.DefaultCondition()
	cond.Sigma = 0.1 * float64(index)
	return model.ConditionRecord{
		VersionedRecord: Versioned(),
		RunID:           runID,
		Index:           index,
		Condition:       cond,
		Result:          model.ClassificationResult{NStates: nStates, Successes: 9, Trials: 10},
	}
}

func TestMemoryStoreRunsRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}

	if err := store.SaveRun(ctx, sampleRun("b", "2026-01-02T00:00:00Z")); err != nil {
		t.Fatalf("save run: %v", err)
	}
	if err := store.SaveRun(ctx, sampleRun("a", "2026-01-03T00:00:00Z")); err != nil {
		t.Fatalf("save run: %v", err)
	}

	run, ok, err := store.GetRun(ctx, "b")
	if err != nil || !ok {
		t.Fatalf("get run: ok=%v err=%v", ok, err)
	}
	if run.Base.Allowed != model.ContinuousOnly || run.Conditions != 2 {
		t.Fatalf("unexpected run %+v", run)
	}
	if _, ok, _ := store.GetRun(ctx, "missing"); ok {
		t.Fatal("expected missing run")
	}

	runs, err := store.ListRuns(ctx)
	if err != nil {
		t.Fatalf("list runs: %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "b" || runs[1].ID != "a" {
		t.Fatalf("runs not ordered by creation: %+v", runs)
	}
}

func TestMemoryStoreConditionResultsOrderedByIndex(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	for _, idx := range []int{2, 0, 1} {
		if err := store.SaveConditionResult(ctx, sampleCondition("run-1", idx, 3)); err != nil {
			t.Fatalf("save condition: %v", err)
		}
	}
	if err := store.SaveConditionResult(ctx, sampleCondition("run-1", 1, 2)); err != nil {
		t.Fatalf("overwrite condition: %v", err)
	}

	records, err := store.ListConditionResults(ctx, "run-1")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
	for i, record := range records {
		if record.Index != i {
			t.Fatalf("record %d has index %d", i, record.Index)
		}
	}
	if records[1].Result.NStates != 2 {
		t.Fatalf("expected overwrite to win, got %+v", records[1].Result)
	}

	empty, err := store.ListConditionResults(ctx, "other")
	if err != nil || len(empty) != 0 {
		t.Fatalf("unexpected results for unknown run: %v %v", empty, err)
	}
}

func TestMemoryStoreRequiresInit(t *testing.T) {
	store := NewMemoryStore()
	if err := store.SaveRun(context.Background(), sampleRun("a", "")); !errors.Is(err, errNotInitialized) {
		t.Fatalf("expected not initialized error, got %v", err)
	}
}

func TestMemoryStoreReset(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Init(ctx); err != nil {
		t.Fatalf("init: %v", err)
	}
	if err := store.SaveRun(ctx, sampleRun("a", "x")); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Reset(ctx); err != nil {
		t.Fatalf("reset: %v", err)
	}
	runs, err := store.ListRuns(ctx)
	if err != nil || len(runs) != 0 {
		t.Fatalf("expected empty store after reset: %v %v", runs, err)
	}
}
