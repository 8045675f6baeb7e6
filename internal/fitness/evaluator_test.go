package fitness

import (
	"errors"
	"math"
	"sync"
	"testing"

	"substrata/internal/model"
)

func testEvaluator(t *testing.T, kind model.FitnessKind, sigma float64) *Evaluator {
	t.Helper()
	cond := model.DefaultCondition()
	cond.Fitness = kind
	cond.Sigma = sigma
	cond.EnergyZero = 2.0
	cond.EnergyAbs1 = 1.0
	e, err := NewFromCondition(cond, 42)
	if err != nil {
		t.Fatalf("new evaluator: %v", err)
	}
	return e
}

var (
	ternary = model.Genome{ID: "q3", Family: model.FamilyQuantizer, Params: []float64{3, 2.0 / 3.0, 1, 0}}
	binary  = model.Genome{ID: "s", Family: model.FamilyStep, Params: []float64{0, 0.5}}
	ident   = model.Genome{ID: "lin", Family: model.FamilyLinear, Params: []float64{1, 0}}
)

func TestEvaluateIsDeterministic(t *testing.T) {
	e := testEvaluator(t, model.FitnessTask, 0.2)
	a := e.Evaluate(ternary, 3, 7)
	b := e.Evaluate(ternary, 3, 7)
	if math.Float64bits(a.Value) != math.Float64bits(b.Value) {
		t.Fatalf("repeated evaluation differs: %v vs %v", a.Value, b.Value)
	}
	if c := e.Evaluate(ternary, 3, 8); c.Value == a.Value {
		t.Fatalf("different individual index should draw different noise")
	}
}

func TestEvaluateIndependentOfParallelism(t *testing.T) {
	e := testEvaluator(t, model.FitnessReg, 0.3)
	const n = 32
	serial := make([]float64, n)
	for i := range serial {
		serial[i] = e.Evaluate(binary, 1, i).Value
	}
	parallel := make([]float64, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			parallel[i] = e.Evaluate(binary, 1, i).Value
		}(i)
	}
	wg.Wait()
	for i := range serial {
		if math.Float64bits(serial[i]) != math.Float64bits(parallel[i]) {
			t.Fatalf("individual %d differs under parallel evaluation", i)
		}
	}
}

func TestNoiselessIdentityHasZeroTaskError(t *testing.T) {
	e := testEvaluator(t, model.FitnessTask, 0)
	score := e.Evaluate(ident, 0, 0)
	if score.TaskError != 0 {
		t.Fatalf("task error = %v", score.TaskError)
	}
	if score.EnergyPenalty <= 0 {
		t.Fatalf("expected a positive energy penalty, got %v", score.EnergyPenalty)
	}
}

func TestScoreReconstructsFromComponents(t *testing.T) {
	for _, kind := range []model.FitnessKind{model.FitnessTask, model.FitnessReg, model.FitnessInfo} {
		e := testEvaluator(t, kind, 0.1)
		for _, g := range []model.Genome{ternary, binary, ident} {
			score := e.Evaluate(g, 0, 0)
			if score.Reconstruct() != score.Value {
				t.Fatalf("%s/%s: reconstruct %v != value %v", kind, g.Family, score.Reconstruct(), score.Value)
			}
		}
	}
}

func TestTernaryBeatsBinaryOnIdentityTask(t *testing.T) {
	e := testEvaluator(t, model.FitnessTask, 0.1)
	q := e.Evaluate(ternary, 0, 0)
	s := e.Evaluate(binary, 0, 0)
	if q.Value <= s.Value {
		t.Fatalf("expected ternary quantizer to outscore step: %v <= %v", q.Value, s.Value)
	}
}

func TestInfoRewardsMoreDistinguishableLevels(t *testing.T) {
	e := testEvaluator(t, model.FitnessInfo, 0)
	q := e.Evaluate(ternary, 0, 0)
	s := e.Evaluate(binary, 0, 0)
	if math.Abs(q.Information-math.Log2(3)) > 1e-9 {
		t.Fatalf("ternary information = %v, want log2(3)", q.Information)
	}
	if s.Information > 1+1e-9 {
		t.Fatalf("binary information = %v, want <= 1 bit", s.Information)
	}
	if q.Value <= s.Value {
		t.Fatalf("expected info fitness to prefer ternary: %v <= %v", q.Value, s.Value)
	}
}

func TestRegPenalizesLargerParameters(t *testing.T) {
	e := testEvaluator(t, model.FitnessReg, 0)
	small := e.Evaluate(model.Genome{Family: model.FamilyStep, Params: []float64{0, 0.5}}, 0, 0)
	large := e.Evaluate(model.Genome{Family: model.FamilyStep, Params: []float64{0.5, 0.5}}, 0, 0)
	if large.Regularization <= small.Regularization {
		t.Fatalf("regularization did not grow with magnitude: %v <= %v", large.Regularization, small.Regularization)
	}
}

func TestDegenerateGenomeMapsToWorstFitness(t *testing.T) {
	e := testEvaluator(t, model.FitnessTask, 0.1)
	bad := []model.Genome{
		{Family: model.FamilyQuantizer, Params: []float64{math.NaN(), 1, 1, 0}},
		{Family: model.FamilyTanh, Params: []float64{1, math.NaN(), 0}},
		{Family: model.FamilyStep, Params: []float64{0}},
	}
	for _, g := range bad {
		score := e.Evaluate(g, 0, 0)
		if !score.Degenerate || score.Value != model.WorstFitness {
			t.Fatalf("%v: expected degenerate worst fitness, got %+v", g.Params, score)
		}
		if math.IsInf(score.Value, 0) || math.IsNaN(score.Value) {
			t.Fatalf("worst fitness must be finite, got %v", score.Value)
		}
	}
}

func TestNewEvaluatorRejectsBadConfig(t *testing.T) {
	_, err := NewEvaluator(Config{Kind: model.FitnessKind(0), Settings: model.DefaultSettings().Fitness})
	if !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	_, err = NewEvaluator(Config{Kind: model.FitnessTask, Sigma: -1, Settings: model.DefaultSettings().Fitness})
	if !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error for negative sigma, got %v", err)
	}
}

func TestMutualInformationOfIndependentTable(t *testing.T) {
	joint := [][]int{{5, 5}, {5, 5}}
	if mi := mutualInformation(joint); mi != 0 {
		t.Fatalf("independent table mi = %v", mi)
	}
	perfect := [][]int{{10, 0}, {0, 10}}
	if mi := mutualInformation(perfect); math.Abs(mi-1) > 1e-12 {
		t.Fatalf("perfect channel mi = %v", mi)
	}
}
