package model

import "math"

// VersionedRecord captures schema and codec evolution for persistent data.
type VersionedRecord struct {
	SchemaVersion int `json:"schema_version"`
	CodecVersion  int `json:"codec_version"`
}

// WorstFitness is the fitness assigned to genomes whose evaluation is not finite.
const WorstFitness = -math.MaxFloat64

type Genome struct {
	ID     string    `json:"id"`
	Family Family    `json:"family"`
	Params []float64 `json:"params"`
}

// Clone returns a deep copy with a new id.
func (g Genome) Clone(id string) Genome {
	return Genome{
		ID:     id,
		Family: g.Family,
		Params: append([]float64(nil), g.Params...),
	}
}

// FitnessScore is maximized by every optimizer. Value is reconstructable
// from the named components for the kind that produced it.
type FitnessScore struct {
	Kind           FitnessKind `json:"kind"`
	Value          float64     `json:"value"`
	TaskError      float64     `json:"task_error"`
	EnergyPenalty  float64     `json:"energy_penalty"`
	Regularization float64     `json:"regularization"`
	Information    float64     `json:"information"`
	Degenerate     bool        `json:"degenerate,omitempty"`
}

// Reconstruct recomputes Value from the components.
func (s FitnessScore) Reconstruct() float64 {
	if s.Degenerate {
		return WorstFitness
	}
	switch s.Kind {
	case FitnessTask:
		return -(s.TaskError + s.EnergyPenalty)
	case FitnessReg:
		return -(s.TaskError + s.EnergyPenalty + s.Regularization)
	case FitnessInfo:
		return s.Information - s.EnergyPenalty
	default:
		return WorstFitness
	}
}

type Scored struct {
	Genome Genome       `json:"genome"`
	Score  FitnessScore `json:"score"`
}

// Population is one generation of scored genomes. It is replaced as a whole
// at each generation barrier and never mutated after publication.
type Population struct {
	Generation int      `json:"generation"`
	Members    []Scored `json:"members"`
}

// Best returns the member with the highest fitness. Ties keep the earliest.
func (p Population) Best() (Scored, bool) {
	if len(p.Members) == 0 {
		return Scored{}, false
	}
	best := p.Members[0]
	for _, item := range p.Members[1:] {
		if item.Score.Value > best.Score.Value {
			best = item
		}
	}
	return best, true
}

type ClassificationResult struct {
	NStates    int  `json:"n_states"`
	Successes  int  `json:"successes"`
	Trials     int  `json:"trials"`
	Hysteresis bool `json:"hysteresis"`
}

func (r ClassificationResult) Consensus() float64 {
	if r.Trials == 0 {
		return 0
	}
	return float64(r.Successes) / float64(r.Trials)
}

type GenerationDiagnostics struct {
	Generation  int     `json:"generation"`
	Family      Family  `json:"family"`
	BestFitness float64 `json:"best_fitness"`
	MeanFitness float64 `json:"mean_fitness"`
	MinFitness  float64 `json:"min_fitness"`
	Degenerate  int     `json:"degenerate"`
	StepSize    float64 `json:"step_size,omitempty"`
}

// RunRecord describes one persisted sweep.
type RunRecord struct {
	VersionedRecord
	ID           string    `json:"id"`
	CreatedAtUTC string    `json:"created_at_utc"`
	Command      string    `json:"command,omitempty"`
	Base         Condition `json:"base"`
	Conditions   int       `json:"conditions"`
}

// ConditionRecord is one evaluated grid point of a run.
type ConditionRecord struct {
	VersionedRecord
	RunID     string               `json:"run_id"`
	Index     int                  `json:"index"`
	Condition Condition            `json:"condition"`
	Result    ClassificationResult `json:"result"`
	Error     string               `json:"error,omitempty"`
}
