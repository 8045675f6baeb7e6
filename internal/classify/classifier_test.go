package classify

import (
	"errors"
	"math"
	"testing"

	"substrata/internal/model"
	"substrata/internal/substrate"
)

func newClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := New(model.DefaultSettings().Classifier)
	if err != nil {
		t.Fatalf("new classifier: %v", err)
	}
	return c
}

func classifyGenome(t *testing.T, c *Classifier, family model.Family, params ...float64) SeedClassification {
	t.Helper()
	out, err := c.ClassifyGenome(model.Genome{ID: "g", Family: family, Params: params})
	if err != nil {
		t.Fatalf("classify: %v", err)
	}
	return out
}

func TestClassifyCountsLevels(t *testing.T) {
	c := newClassifier(t)
	cases := []struct {
		name   string
		family model.Family
		params []float64
		want   int
	}{
		{name: "step", family: model.FamilyStep, params: []float64{0.2, 0.5}, want: 2},
		{name: "quantizer2", family: model.FamilyQuantizer, params: []float64{2, 1, 1, 0}, want: 2},
		{name: "quantizer3", family: model.FamilyQuantizer, params: []float64{3, 2.0 / 3.0, 1, 0}, want: 3},
		{name: "quantizer3 shifted", family: model.FamilyQuantizer, params: []float64{3, 0.25, 0.5, 0.25}, want: 3},
		{name: "quantizer4", family: model.FamilyQuantizer, params: []float64{4, 1, 1.2, 0}, want: 4},
		{name: "identity", family: model.FamilyLinear, params: []float64{1, 0}, want: 0},
		{name: "flat line", family: model.FamilyLinear, params: []float64{0, 0.3}, want: 1},
		{name: "steep tanh", family: model.FamilyTanh, params: []float64{1, 20, 0}, want: 2},
		{name: "shallow tanh", family: model.FamilyTanh, params: []float64{2, 0.1, 0}, want: 0},
	}
	for _, tc := range cases {
		got := classifyGenome(t, c, tc.family, tc.params...)
		if got.NStates != tc.want {
			t.Fatalf("%s: n_states = %d, want %d (clusters=%+v coverage=%v)", tc.name, got.NStates, tc.want, got.Clusters, got.Coverage)
		}
		if got.Hysteresis {
			t.Fatalf("%s: memoryless family flagged hysteresis", tc.name)
		}
	}
}

func TestSchmittShowsHysteresis(t *testing.T) {
	c := newClassifier(t)
	got := classifyGenome(t, c, model.FamilySchmitt, 0, 0.2, 1)
	if !got.Hysteresis {
		t.Fatalf("expected hysteresis, max gap %v", got.MaxGap)
	}
	if got.NStates != 2 {
		t.Fatalf("schmitt n_states = %d, want 2", got.NStates)
	}
}

func TestNarrowSchmittBandIsCrossed(t *testing.T) {
	c := newClassifier(t)
	spacing := (c.Settings().DomainMax - c.Settings().DomainMin) / float64(c.Settings().SweepPoints-1)
	for _, h := range []float64{0.001, spacing / 10, 0.002} {
		got := classifyGenome(t, c, model.FamilySchmitt, 0.0012, h, 1)
		if !got.Hysteresis {
			t.Fatalf("half width %v: expected hysteresis, max gap %v", h, got.MaxGap)
		}
		if got.NStates != 2 {
			t.Fatalf("half width %v: n_states = %d, want 2", h, got.NStates)
		}
	}

	m, err := substrate.New(model.Genome{Family: model.FamilySchmitt, Params: []float64{0.0012, 0.001, 1}})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	sweep := c.Sweep(m)
	if len(sweep.Inputs) != c.Settings().SweepPoints+3 {
		t.Fatalf("expected switch points in the sweep, got %d inputs", len(sweep.Inputs))
	}
	for i := 1; i < len(sweep.Inputs); i++ {
		if sweep.Inputs[i] <= sweep.Inputs[i-1] {
			t.Fatalf("sweep inputs not strictly ascending at %d", i)
		}
	}
}

func TestContinuousFamiliesNeverReachThree(t *testing.T) {
	c := newClassifier(t)
	for _, space := range mustSpaces(t, model.ContinuousOnly) {
		grid := []float64{0, 0.25, 0.5, 0.75, 1}
		unit := make([]float64, space.Dim())
		var visit func(d int)
		visit = func(d int) {
			if d == len(unit) {
				m, err := substrate.New(space.Genome("g", unit))
				if err != nil {
					t.Fatalf("new model: %v", err)
				}
				if got := c.Classify(m); got.NStates >= 3 {
					t.Fatalf("%s %v classified as %d states", space.Family, space.Decode(unit), got.NStates)
				}
				return
			}
			for _, u := range grid {
				unit[d] = u
				visit(d + 1)
			}
		}
		visit(0)
	}
}

func TestNaNResponseIsAnalog(t *testing.T) {
	c := newClassifier(t)
	got := classifyGenome(t, c, model.FamilyStep, 0, math.NaN())
	if got.NStates != 0 {
		t.Fatalf("NaN response classified as %d states", got.NStates)
	}
}

func TestSweepBackwardIsAligned(t *testing.T) {
	c := newClassifier(t)
	m, err := substrate.New(model.Genome{Family: model.FamilyLinear, Params: []float64{1, 0}})
	if err != nil {
		t.Fatalf("new model: %v", err)
	}
	sweep := c.Sweep(m)
	for i := range sweep.Inputs {
		if sweep.Forward[i] != sweep.Backward[i] {
			t.Fatalf("memoryless sweep misaligned at %d: %v vs %v", i, sweep.Forward[i], sweep.Backward[i])
		}
	}
}

func TestAggregateModeAndTies(t *testing.T) {
	seeds := []SeedClassification{
		{NStates: 3}, {NStates: 3}, {NStates: 2, Hysteresis: true}, {NStates: 3}, {NStates: 0},
	}
	got := Aggregate(seeds)
	if got.NStates != 3 || got.Successes != 3 || got.Trials != 5 || got.Hysteresis {
		t.Fatalf("unexpected aggregate %+v", got)
	}

	tied := Aggregate([]SeedClassification{{NStates: 3}, {NStates: 2}, {NStates: 3}, {NStates: 2}})
	if tied.NStates != 2 || tied.Successes != 2 {
		t.Fatalf("tie should resolve to lower count, got %+v", tied)
	}

	flagged := Aggregate([]SeedClassification{{NStates: 2, Hysteresis: true}, {NStates: 2, Hysteresis: true}, {NStates: 2}})
	if !flagged.Hysteresis {
		t.Fatal("expected majority hysteresis flag")
	}
	half := Aggregate([]SeedClassification{{NStates: 2, Hysteresis: true}, {NStates: 2}})
	if half.Hysteresis {
		t.Fatal("exactly half should not flag hysteresis")
	}

	if empty := Aggregate(nil); empty.Trials != 0 {
		t.Fatalf("empty aggregate %+v", empty)
	}
}

func TestNewRejectsBadSettings(t *testing.T) {
	s := model.DefaultSettings().Classifier
	s.SweepPoints = 2
	if _, err := New(s); !errors.Is(err, model.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func mustSpaces(t *testing.T, allowed model.Allowed) []substrate.Space {
	t.Helper()
	spaces, err := substrate.Spaces(allowed, 0)
	if err != nil {
		t.Fatalf("spaces: %v", err)
	}
	return spaces
}
