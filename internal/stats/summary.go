package stats

import (
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// H3Target is the Wilson lower bound a binary-only constraint must clear.
const H3Target = 0.90

// ContinuousNoiseLimit bounds the noise levels H1 considers low.
const ContinuousNoiseLimit = 0.3

// H2Sigma is the noise level at which energy-zero sensitivity is read.
const H2Sigma = 0.1

// Generation and population budgets compared by the convergence analysis.
const (
	ShortGenerations = 120
	LongGenerations  = 480
)

var (
	convergenceExperiments = []string{"cont_base", "cont_leak", "binary", "discrete"}
	convergencePopulations = []int{40, 200}
	constraintOrder        = []string{"continuous_only", "binary_only", "discrete_only", "relu_only"}
	popPattern             = regexp.MustCompile(`pop(\d+)`)
)

var stateNames = map[int]string{0: "Analog", 1: "Single", 2: "Binary", 3: "Ternary", 4: "Quaternary"}

// StateName labels a state count.
func StateName(n int) string {
	if name, ok := stateNames[n]; ok {
		return name
	}
	return fmt.Sprintf("%d-state", n)
}

var (
	optimizerOrder = []string{"ga", "random", "cmaes"}
	fitnessOrder   = []string{"task", "reg", "info"}
	energyOrder    = []string{"base", "asym", "leak"}
)

type StateShare struct {
	NStates int    `json:"n_states"`
	Name    string `json:"name"`
	Proportion
}

// GroupRate is the ternary and binary share of one group of rows.
type GroupRate struct {
	Group   string     `json:"group"`
	Ternary Proportion `json:"ternary"`
	Binary  Proportion `json:"binary"`
}

type Verdict struct {
	Group string     `json:"group"`
	Rate  Proportion `json:"rate"`
	Pass  bool       `json:"pass"`
}

// EnergyZeroRate is the ternary share at one energy_zero value.
type EnergyZeroRate struct {
	EnergyZero float64    `json:"energy_zero"`
	Ternary    Proportion `json:"ternary"`
}

// Convergence compares one experiment family at the short and long
// generation budgets.
type Convergence struct {
	Experiment   string    `json:"experiment"`
	Short        GroupRate `json:"short"`
	Long         GroupRate `json:"long"`
	DeltaTernary float64   `json:"delta_ternary"`
	DeltaBinary  float64   `json:"delta_binary"`
}

type PopulationRate struct {
	Population int        `json:"population"`
	Ternary    Proportion `json:"ternary"`
}

// ExperimentSummary is one log's condition count and header.
type ExperimentSummary struct {
	Name       string   `json:"name"`
	Constraint string   `json:"constraint,omitempty"`
	Conditions int      `json:"conditions"`
	Metadata   Metadata `json:"metadata"`
}

type Summary struct {
	Experiments int          `json:"experiments"`
	Conditions  int          `json:"conditions"`
	MeanSeeds   float64      `json:"mean_seeds"`
	States      []StateShare `json:"states"`
	Hysteresis  Proportion   `json:"hysteresis"`

	// H1: continuous-only rows at low noise, per optimizer. Consistent when
	// no optimizer produced a ternary result.
	H1           []GroupRate `json:"h1"`
	H1Consistent bool        `json:"h1_consistent"`
	// H2: continuous-only base-energy rows at H2Sigma by energy_zero.
	// Declining when the ternary rate never rises with energy_zero.
	H2          []EnergyZeroRate `json:"h2,omitempty"`
	H2Declining bool             `json:"h2_declining"`
	// H3: binary-only rows per optimizer must be binary with a Wilson lower
	// bound of at least H3Target.
	H3 []Verdict `json:"h3"`
	// H5: ternary rate per fitness kind over fitness_ experiments.
	H5 []GroupRate `json:"h5"`
	// EnergyModels is the continuous-only ternary rate per energy model.
	EnergyModels []GroupRate `json:"energy_models"`

	Convergence []Convergence    `json:"convergence,omitempty"`
	Populations []PopulationRate `json:"populations,omitempty"`

	ContinuousTernary Proportion `json:"continuous_ternary"`
	DiscreteTernary   Proportion `json:"discrete_ternary"`
	BinaryConstraint  Proportion `json:"binary_constraint"`
	// OptimizerConsistent holds when no known optimizer produced a ternary
	// continuous-only row at any noise level.
	OptimizerConsistent bool `json:"optimizer_consistent"`

	ExperimentList   []ExperimentSummary `json:"experiment_list"`
	ExperimentCounts map[string]int      `json:"experiment_counts"`
}

type taggedRow struct {
	Row
	experiment  string
	allowed     string
	optimizer   string
	fitness     string
	energyModel string
}

// Summarize pools the rows of all logs. A log's constraint comes from its
// allowed= header, or failing that from a cont_/binary_/discrete_ name
// prefix. Missing optimizer, fitness and energy model default to ga, task
// and base.
func Summarize(logs []Log) Summary {
	var rows []taggedRow
	s := Summary{Experiments: len(logs), H2Declining: true, OptimizerConsistent: true, ExperimentCounts: map[string]int{}}
	for _, l := range logs {
		constraint := constraintOf(l)
		s.ExperimentList = append(s.ExperimentList, ExperimentSummary{Name: l.Name, Constraint: constraint, Conditions: len(l.Rows), Metadata: l.Metadata})
		if constraint != "" {
			s.ExperimentCounts[constraint]++
		}
		for _, r := range l.Rows {
			rows = append(rows, taggedRow{
				Row:         r,
				experiment:  l.Name,
				allowed:     constraint,
				optimizer:   orDefault(l.Metadata.Optimizer, "ga"),
				fitness:     orDefault(l.Metadata.Fitness, "task"),
				energyModel: orDefault(l.Metadata.EnergyModel, "base"),
			})
		}
	}

	sort.SliceStable(s.ExperimentList, func(i, j int) bool { return s.ExperimentList[i].Name < s.ExperimentList[j].Name })
	s.Conditions = len(rows)
	if len(rows) == 0 {
		return s
	}

	seedTotal, seedRows := 0, 0
	counts := map[int]int{}
	hysteresis := 0
	for _, r := range rows {
		counts[r.NStates]++
		if r.Hysteresis {
			hysteresis++
		}
		if r.HasConsensus {
			seedTotal += r.Trials
			seedRows++
		}
	}
	if seedRows > 0 {
		s.MeanSeeds = float64(seedTotal) / float64(seedRows)
	}
	states := make([]int, 0, len(counts))
	for n := range counts {
		states = append(states, n)
	}
	sort.Ints(states)
	for _, n := range states {
		s.States = append(s.States, StateShare{NStates: n, Name: StateName(n), Proportion: NewProportion(counts[n], len(rows))})
	}
	s.Hysteresis = NewProportion(hysteresis, len(rows))

	continuous := filter(rows, func(r taggedRow) bool { return r.allowed == "continuous_only" })
	lowNoise := filter(continuous, func(r taggedRow) bool { return r.Sigma <= ContinuousNoiseLimit })
	s.H1Consistent = true
	for _, opt := range optimizerOrder {
		group := filter(lowNoise, func(r taggedRow) bool { return r.optimizer == opt })
		if len(group) == 0 {
			continue
		}
		rate := groupRate(opt, group)
		if rate.Ternary.Successes > 0 {
			s.H1Consistent = false
		}
		s.H1 = append(s.H1, rate)
	}

	s.H2, s.H2Declining = energyZeroTrend(filter(continuous, func(r taggedRow) bool {
		return r.energyModel == "base" && r.Sigma == H2Sigma
	}))

	binary := filter(rows, func(r taggedRow) bool { return r.allowed == "binary_only" })
	for _, opt := range optimizerOrder {
		group := filter(binary, func(r taggedRow) bool { return r.optimizer == opt })
		if len(group) == 0 {
			continue
		}
		p := NewProportion(countStates(group, 2), len(group))
		s.H3 = append(s.H3, Verdict{Group: opt, Rate: p, Pass: p.Lower >= H3Target})
	}

	fitnessRows := filter(rows, func(r taggedRow) bool { return strings.Contains(r.experiment, "fitness_") })
	for _, fit := range fitnessOrder {
		group := filter(fitnessRows, func(r taggedRow) bool { return r.fitness == fit })
		if len(group) > 0 {
			s.H5 = append(s.H5, groupRate(fit, group))
		}
	}
	for _, em := range energyOrder {
		group := filter(continuous, func(r taggedRow) bool { return r.energyModel == em })
		if len(group) > 0 {
			s.EnergyModels = append(s.EnergyModels, groupRate(em, group))
		}
	}

	s.Convergence = convergence(rows)
	s.Populations = populationRates(logs)

	for _, r := range continuous {
		if r.NStates == 3 && knownOptimizer(r.optimizer) {
			s.OptimizerConsistent = false
			break
		}
	}
	discrete := filter(rows, func(r taggedRow) bool { return r.allowed == "discrete_only" })
	s.ContinuousTernary = NewProportion(countStates(continuous, 3), len(continuous))
	s.DiscreteTernary = NewProportion(countStates(discrete, 3), len(discrete))
	s.BinaryConstraint = NewProportion(countStates(binary, 2), len(binary))
	return s
}

// WriteSummary prints a plain-text report of s.
func WriteSummary(w io.Writer, s Summary) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Experiments: %d\nConditions: %d\nMean seeds per condition: %.1f\n\n", s.Experiments, s.Conditions, s.MeanSeeds)
	b.WriteString("State distribution (95% Wilson CI)\n")
	for _, st := range s.States {
		fmt.Fprintf(&b, "  %-10s %4d/%d (%.3f) [%.3f-%.3f]\n", st.Name, st.Successes, st.Trials, st.Rate, st.Lower, st.Upper)
	}
	fmt.Fprintf(&b, "  %-10s %4d/%d (%.3f)\n\n", "Hysteresis", s.Hysteresis.Successes, s.Hysteresis.Trials, s.Hysteresis.Rate)

	b.WriteString("H1 continuous-only, low noise, by optimizer\n")
	for _, g := range s.H1 {
		writeGroup(&b, g, true)
	}
	if len(s.H1) > 0 {
		verdict := "OPTIMIZER-DEPENDENT"
		if s.H1Consistent {
			verdict = "CONSISTENT ACROSS OPTIMIZERS"
		}
		fmt.Fprintf(&b, "  result: %s\n", verdict)
	}
	if len(s.H2) > 0 {
		fmt.Fprintf(&b, "\nH2 energy-zero sensitivity (sigma=%g, continuous-only, base energy)\n", H2Sigma)
		for _, g := range s.H2 {
			t := g.Ternary
			fmt.Fprintf(&b, "  E0=%4.1f   %d/%d (%.3f) [%.3f-%.3f]\n", g.EnergyZero, t.Successes, t.Trials, t.Rate, t.Lower, t.Upper)
		}
		fmt.Fprintf(&b, "  declining trend: %s\n  result: %s\n", yesNo(s.H2Declining), passFail(s.H2Declining))
	}
	b.WriteString("\nH3 binary-only constraint, by optimizer\n")
	for _, v := range s.H3 {
		fmt.Fprintf(&b, "  %-8s %d/%d (%.3f) [%.3f-%.3f] %s\n", strings.ToUpper(v.Group), v.Rate.Successes, v.Rate.Trials, v.Rate.Rate, v.Rate.Lower, v.Rate.Upper, passFail(v.Pass))
	}
	b.WriteString("\nH5 ternary rate by fitness\n")
	for _, g := range s.H5 {
		writeGroup(&b, g, false)
	}
	b.WriteString("\nContinuous-only ternary rate by energy model\n")
	for _, g := range s.EnergyModels {
		writeGroup(&b, g, false)
	}
	if len(s.Convergence) > 0 || len(s.Populations) > 0 {
		b.WriteString("\nConvergence\n")
		for _, c := range s.Convergence {
			fmt.Fprintf(&b, "  %-12s %s T=%.3f B=%.3f | %s T=%.3f B=%.3f | dT=%+.3f dB=%+.3f\n", c.Experiment,
				c.Short.Group, c.Short.Ternary.Rate, c.Short.Binary.Rate,
				c.Long.Group, c.Long.Ternary.Rate, c.Long.Binary.Rate, c.DeltaTernary, c.DeltaBinary)
		}
		for _, p := range s.Populations {
			fmt.Fprintf(&b, "  pop %3d      ternary %.3f (n=%d)\n", p.Population, p.Ternary.Rate, p.Ternary.Trials)
		}
	}

	if len(s.ExperimentList) > 0 {
		b.WriteString("\nExperiments\n")
		for _, e := range s.ExperimentList {
			fmt.Fprintf(&b, "  %-24s %3d conditions, %s/%s/%s\n", e.Name, e.Conditions,
				orUnknown(e.Metadata.Generations, "gen"), orUnknown(e.Metadata.Population, "pop"), orUnknown(e.Metadata.Seeds, "seeds"))
		}
		for _, c := range constraintOrder {
			if n := s.ExperimentCounts[c]; n > 0 {
				fmt.Fprintf(&b, "  %-24s %3d experiments\n", c, n)
			}
		}
	}

	fmt.Fprintf(&b, "\nContinuous-only ternary: %.3f %s\nDiscrete-only ternary:   %.3f %s\nBinary constraint:       %.3f %s\nOptimizer consistency:   %s\n",
		s.ContinuousTernary.Rate, conclude(s.ContinuousTernary.Rate > 0.1, "TERNARY EMERGENCE CONFIRMED", "NO SIGNIFICANT TERNARY EMERGENCE"),
		s.DiscreteTernary.Rate, conclude(s.DiscreteTernary.Rate > 0.5, "TERNARY WITH QUANTIZERS", "LIMITED TERNARY"),
		s.BinaryConstraint.Rate, conclude(s.BinaryConstraint.Rate > 0.9, "CONSTRAINTS WORK", "CONSTRAINT VIOLATION"),
		conclude(s.OptimizerConsistent, "CONFIRMED", "OPTIMIZER-DEPENDENT"))

	_, err := io.WriteString(w, b.String())
	return err
}

func passFail(ok bool) string { return conclude(ok, "PASS", "FAIL") }

func yesNo(ok bool) string { return conclude(ok, "YES", "NO") }

func conclude(ok bool, yes, no string) string {
	if ok {
		return yes
	}
	return no
}

func orUnknown(n int, unit string) string {
	if n == 0 {
		return "unknown" + unit
	}
	return fmt.Sprintf("%d%s", n, unit)
}

func writeGroup(b *strings.Builder, g GroupRate, withBinary bool) {
	t := g.Ternary
	fmt.Fprintf(b, "  %-8s T=%d/%d (%.3f) [%.3f-%.3f]", strings.ToUpper(g.Group), t.Successes, t.Trials, t.Rate, t.Lower, t.Upper)
	if withBinary {
		bi := g.Binary
		fmt.Fprintf(b, " | B=%d/%d (%.3f) [%.3f-%.3f]", bi.Successes, bi.Trials, bi.Rate, bi.Lower, bi.Upper)
	}
	b.WriteByte('\n')
}

// energyZeroTrend groups rows by energy_zero in ascending order and reports
// whether the ternary rate never increases along it.
func energyZeroTrend(rows []taggedRow) ([]EnergyZeroRate, bool) {
	groups := map[float64][]taggedRow{}
	for _, r := range rows {
		groups[r.EnergyZero] = append(groups[r.EnergyZero], r)
	}
	keys := make([]float64, 0, len(groups))
	for k := range groups {
		keys = append(keys, k)
	}
	sort.Float64s(keys)

	declining := true
	var out []EnergyZeroRate
	for i, k := range keys {
		rate := EnergyZeroRate{EnergyZero: k, Ternary: NewProportion(countStates(groups[k], 3), len(groups[k]))}
		if i > 0 && rate.Ternary.Rate > out[i-1].Ternary.Rate {
			declining = false
		}
		out = append(out, rate)
	}
	return out, declining
}

// convergence pairs <family>_g120 with <family>_g480 experiments.
func convergence(rows []taggedRow) []Convergence {
	var out []Convergence
	for _, exp := range convergenceExperiments {
		short := filter(rows, func(r taggedRow) bool {
			return strings.Contains(r.experiment, fmt.Sprintf("%s_g%d", exp, ShortGenerations))
		})
		long := filter(rows, func(r taggedRow) bool {
			return strings.Contains(r.experiment, fmt.Sprintf("%s_g%d", exp, LongGenerations))
		})
		if len(short) == 0 || len(long) == 0 {
			continue
		}
		c := Convergence{
			Experiment: exp,
			Short:      groupRate(fmt.Sprintf("g%d", ShortGenerations), short),
			Long:       groupRate(fmt.Sprintf("g%d", LongGenerations), long),
		}
		c.DeltaTernary = c.Long.Ternary.Rate - c.Short.Ternary.Rate
		c.DeltaBinary = c.Long.Binary.Rate - c.Short.Binary.Rate
		out = append(out, c)
	}
	return out
}

// populationRates reads convergence_pop experiments. The population comes
// from a pop<N> name token, else from the gens/pop header.
func populationRates(logs []Log) []PopulationRate {
	byPop := map[int][]taggedRow{}
	for _, l := range logs {
		if !strings.Contains(l.Name, "convergence_pop") {
			continue
		}
		pop := l.Metadata.Population
		for _, m := range popPattern.FindAllStringSubmatch(l.Name, -1) {
			if n, err := strconv.Atoi(m[1]); err == nil {
				pop = n
			}
		}
		for _, r := range l.Rows {
			byPop[pop] = append(byPop[pop], taggedRow{Row: r})
		}
	}
	var out []PopulationRate
	for _, pop := range convergencePopulations {
		if group := byPop[pop]; len(group) > 0 {
			out = append(out, PopulationRate{Population: pop, Ternary: NewProportion(countStates(group, 3), len(group))})
		}
	}
	return out
}

func knownOptimizer(name string) bool {
	for _, opt := range optimizerOrder {
		if opt == name {
			return true
		}
	}
	return false
}

func groupRate(name string, rows []taggedRow) GroupRate {
	return GroupRate{
		Group:   name,
		Ternary: NewProportion(countStates(rows, 3), len(rows)),
		Binary:  NewProportion(countStates(rows, 2), len(rows)),
	}
}

func constraintOf(l Log) string {
	if l.Metadata.Allowed != "" {
		return l.Metadata.Allowed
	}
	switch {
	case strings.Contains(l.Name, "cont_"):
		return "continuous_only"
	case strings.Contains(l.Name, "binary_"):
		return "binary_only"
	case strings.Contains(l.Name, "discrete_"):
		return "discrete_only"
	case strings.Contains(l.Name, "relu_"):
		return "relu_only"
	}
	return ""
}

func filter(rows []taggedRow, keep func(taggedRow) bool) []taggedRow {
	var out []taggedRow
	for _, r := range rows {
		if keep(r) {
			out = append(out, r)
		}
	}
	return out
}

func countStates(rows []taggedRow, n int) int {
	count := 0
	for _, r := range rows {
		if r.NStates == n {
			count++
		}
	}
	return count
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
