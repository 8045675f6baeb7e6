package stats

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
)

func rows(n int, nStates int, hysteresis bool) []Row {
	out := make([]Row, n)
	for i := range out {
		out[i] = Row{Sigma: 0.1, NStates: nStates, Successes: 8, Trials: 10, HasConsensus: true, Hysteresis: hysteresis}
	}
	return out
}

func TestSummarizeHypotheses(t *testing.T) {
	logs := []Log{
		{Name: "cont_ga", Metadata: Metadata{Optimizer: "ga"}, Rows: append(rows(9, 0, false), rows(1, 2, false)...)},
		{Name: "run-7", Metadata: Metadata{Allowed: "continuous_only", Optimizer: "cmaes", EnergyModel: "leak"}, Rows: rows(4, 0, false)},
		{Name: "binary_ga", Metadata: Metadata{Optimizer: "ga"}, Rows: rows(100, 2, false)},
		{Name: "binary_random", Metadata: Metadata{Optimizer: "random"}, Rows: append(rows(9, 2, false), rows(1, 1, true)...)},
		{Name: "fitness_discrete_ga", Metadata: Metadata{Fitness: "info"}, Rows: append(rows(3, 3, false), rows(1, 2, false)...)},
	}
	s := Summarize(logs)

	require.Equal(t, 5, s.Experiments)
	require.Equal(t, 128, s.Conditions)
	require.InDelta(t, 10, s.MeanSeeds, 1e-12)
	require.Equal(t, 1, s.Hysteresis.Successes)

	require.Len(t, s.H1, 2)
	require.Equal(t, "ga", s.H1[0].Group)
	require.Equal(t, 1, s.H1[0].Binary.Successes)
	require.Equal(t, "cmaes", s.H1[1].Group)
	require.True(t, s.H1Consistent)

	require.Len(t, s.H3, 2)
	require.Equal(t, "ga", s.H3[0].Group)
	require.True(t, s.H3[0].Pass)
	require.Equal(t, "random", s.H3[1].Group)
	require.False(t, s.H3[1].Pass)

	// Only fitness_ experiments feed H5.
	require.Len(t, s.H5, 1)
	require.Equal(t, "info", s.H5[0].Group)
	require.Equal(t, 3, s.H5[0].Ternary.Successes)
	require.Equal(t, 4, s.H5[0].Ternary.Trials)

	require.Len(t, s.EnergyModels, 2)
	require.Equal(t, "base", s.EnergyModels[0].Group)
	require.Equal(t, "leak", s.EnergyModels[1].Group)

	require.Zero(t, s.ContinuousTernary.Successes)
	require.InDelta(t, 0.75, s.DiscreteTernary.Rate, 1e-12)
	require.Equal(t, 109, s.BinaryConstraint.Successes)
	require.True(t, s.OptimizerConsistent)

	require.Len(t, s.ExperimentList, 5)
	require.Equal(t, "binary_ga", s.ExperimentList[0].Name)
	require.Equal(t, 100, s.ExperimentList[0].Conditions)
	require.Equal(t, map[string]int{"continuous_only": 2, "binary_only": 2, "discrete_only": 1}, s.ExperimentCounts)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, s))
	require.Contains(t, buf.String(), "CONSISTENT ACROSS OPTIMIZERS")
	require.Contains(t, buf.String(), "PASS")
	require.Contains(t, buf.String(), "FAIL")
	require.Contains(t, buf.String(), "Ternary")
	require.Contains(t, buf.String(), "CONSTRAINTS WORK")
	require.Contains(t, buf.String(), "fitness_discrete_ga")
}

func withEnergyZero(in []Row, e0 float64) []Row {
	for i := range in {
		in[i].EnergyZero = e0
	}
	return in
}

func TestSummarizeEnergyZeroTrend(t *testing.T) {
	cont := Metadata{Allowed: "continuous_only", EnergyModel: "base"}
	declining := []Log{
		{Name: "cont_base_e0", Metadata: cont, Rows: withEnergyZero(append(rows(2, 3, false), rows(2, 0, false)...), 0.5)},
		{Name: "cont_base_e2", Metadata: cont, Rows: withEnergyZero(append(rows(1, 3, false), rows(3, 0, false)...), 2)},
		{Name: "cont_base_e1", Metadata: cont, Rows: withEnergyZero(append(rows(1, 3, false), rows(3, 0, false)...), 1)},
		// Other energy models and noise levels stay out of H2.
		{Name: "cont_leak", Metadata: Metadata{Allowed: "continuous_only", EnergyModel: "leak"}, Rows: withEnergyZero(rows(4, 3, false), 4)},
	}
	s := Summarize(declining)
	require.Len(t, s.H2, 3)
	require.Equal(t, []float64{0.5, 1, 2}, []float64{s.H2[0].EnergyZero, s.H2[1].EnergyZero, s.H2[2].EnergyZero})
	require.InDelta(t, 0.5, s.H2[0].Ternary.Rate, 1e-12)
	require.True(t, s.H2Declining)
	require.False(t, s.OptimizerConsistent)

	rising := Summarize([]Log{
		{Name: "cont_base_a", Metadata: cont, Rows: withEnergyZero(rows(4, 0, false), 0.5)},
		{Name: "cont_base_b", Metadata: cont, Rows: withEnergyZero(rows(4, 3, false), 2)},
	})
	require.Len(t, rising.H2, 2)
	require.False(t, rising.H2Declining)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, rising))
	require.Contains(t, buf.String(), "H2 energy-zero sensitivity")
	require.Contains(t, buf.String(), "declining trend: NO")
}

func TestSummarizeConvergenceAndPopulation(t *testing.T) {
	s := Summarize([]Log{
		{Name: "cont_base_g120", Metadata: Metadata{Allowed: "continuous_only"}, Rows: append(rows(3, 2, false), rows(1, 0, false)...)},
		{Name: "cont_base_g480", Metadata: Metadata{Allowed: "continuous_only"}, Rows: rows(4, 2, false)},
		{Name: "discrete_g120", Rows: append(rows(1, 3, false), rows(1, 2, false)...)},
		{Name: "discrete_g480", Rows: rows(2, 3, false)},
		{Name: "binary_g120", Rows: rows(2, 2, false)},
		{Name: "convergence_pop40_discrete", Rows: append(rows(1, 3, false), rows(3, 2, false)...)},
		{Name: "convergence_pop_large", Metadata: Metadata{Population: 200}, Rows: rows(2, 3, false)},
		{Name: "convergence_pop400", Rows: rows(2, 3, false)},
	})

	require.Len(t, s.Convergence, 2)
	require.Equal(t, "cont_base", s.Convergence[0].Experiment)
	require.InDelta(t, 0.25, s.Convergence[0].DeltaBinary, 1e-12)
	require.Zero(t, s.Convergence[0].DeltaTernary)
	require.Equal(t, "discrete", s.Convergence[1].Experiment)
	require.InDelta(t, 0.5, s.Convergence[1].DeltaTernary, 1e-12)
	require.InDelta(t, -0.5, s.Convergence[1].DeltaBinary, 1e-12)

	require.Len(t, s.Populations, 2)
	require.Equal(t, 40, s.Populations[0].Population)
	require.Equal(t, 4, s.Populations[0].Ternary.Trials)
	require.InDelta(t, 0.25, s.Populations[0].Ternary.Rate, 1e-12)
	require.Equal(t, 200, s.Populations[1].Population)
	require.Equal(t, 2, s.Populations[1].Ternary.Trials)

	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, s))
	require.Contains(t, buf.String(), "Convergence")
	require.Contains(t, buf.String(), "dT=+0.500")
	require.Contains(t, buf.String(), "pop  40")
}

func TestSummarizeFitnessNeedsFitnessExperiments(t *testing.T) {
	s := Summarize([]Log{
		{Name: "discrete_ga", Metadata: Metadata{Fitness: "info"}, Rows: rows(3, 3, false)},
		{Name: "fitness_reg", Metadata: Metadata{Fitness: "reg"}, Rows: rows(2, 3, false)},
		{Name: "fitness_task", Rows: rows(2, 2, false)},
	})
	require.Len(t, s.H5, 2)
	require.Equal(t, "task", s.H5[0].Group)
	require.Zero(t, s.H5[0].Ternary.Successes)
	require.Equal(t, "reg", s.H5[1].Group)
	require.Equal(t, 2, s.H5[1].Ternary.Trials)
}

func TestSummarizeFlagsOptimizerDependence(t *testing.T) {
	s := Summarize([]Log{
		{Name: "cont_ga", Metadata: Metadata{Optimizer: "ga"}, Rows: rows(2, 0, false)},
		{Name: "cont_random", Metadata: Metadata{Optimizer: "random"}, Rows: rows(2, 3, false)},
	})
	require.False(t, s.H1Consistent)
	require.InDelta(t, 0.5, s.ContinuousTernary.Rate, 1e-12)
}

func TestSummarizeSkipsHighNoiseForH1(t *testing.T) {
	high := rows(3, 3, false)
	for i := range high {
		high[i].Sigma = 0.5
	}
	s := Summarize([]Log{{Name: "cont_ga", Rows: high}})
	require.Empty(t, s.H1)
	require.True(t, s.H1Consistent)
	require.Equal(t, 3, s.ContinuousTernary.Successes)
}

func TestSummarizeEmpty(t *testing.T) {
	s := Summarize(nil)
	require.Zero(t, s.Conditions)
	var buf bytes.Buffer
	require.NoError(t, WriteSummary(&buf, s))
}

func TestStateName(t *testing.T) {
	require.Equal(t, "Ternary", StateName(3))
	require.Equal(t, "7-state", StateName(7))
}
