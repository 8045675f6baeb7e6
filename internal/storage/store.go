package storage

import (
	"context"

	"substrata/internal/model"
)

// Store persists sweep runs and their per-condition results. Records are
// written by the caller; nothing is saved implicitly.
type Store interface {
	Init(ctx context.Context) error
	SaveRun(ctx context.Context, run model.RunRecord) error
	GetRun(ctx context.Context, id string) (model.RunRecord, bool, error)
	ListRuns(ctx context.Context) ([]model.RunRecord, error)
	SaveConditionResult(ctx context.Context, record model.ConditionRecord) error
	ListConditionResults(ctx context.Context, runID string) ([]model.ConditionRecord, error)
}

// Resetter is implemented by stores that can drop all records.
type Resetter interface {
	Reset(ctx context.Context) error
}
