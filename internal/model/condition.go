package model

import "math"

const DefaultBaseSeed int64 = 42

// Condition is one point of an experiment grid together with the search
// and classification settings it is evaluated under.
type Condition struct {
	Allowed         Allowed       `json:"allowed" yaml:"allowed" toml:"allowed"`
	Sigma           float64       `json:"sigma" yaml:"sigma" toml:"sigma"`
	EnergyZero      float64       `json:"energy_zero" yaml:"energy_zero" toml:"energy_zero"`
	EnergyAbs1      float64       `json:"energy_abs1" yaml:"energy_abs1" toml:"energy_abs1"`
	Generations     int           `json:"generations" yaml:"generations" toml:"generations"`
	PopulationSize  int           `json:"population_size" yaml:"population_size" toml:"population_size"`
	Seeds           int           `json:"seeds" yaml:"seeds" toml:"seeds"`
	Seed            int64         `json:"seed" yaml:"seed" toml:"seed"`
	EnergyModel     EnergyModel   `json:"energy_model" yaml:"energy_model" toml:"energy_model"`
	Optimizer       OptimizerKind `json:"optimizer" yaml:"optimizer" toml:"optimizer"`
	Fitness         FitnessKind   `json:"fitness" yaml:"fitness" toml:"fitness"`
	QuantizerLevels int           `json:"quantizer_levels,omitempty" yaml:"quantizer_levels" toml:"quantizer_levels"`
	Workers         int           `json:"workers,omitempty" yaml:"workers" toml:"workers"`
	Settings        Settings      `json:"settings" yaml:"settings" toml:"settings"`
}

type Settings struct {
	Energy     EnergySettings     `json:"energy" yaml:"energy" toml:"energy"`
	Fitness    FitnessSettings    `json:"fitness" yaml:"fitness" toml:"fitness"`
	Search     SearchSettings     `json:"search" yaml:"search" toml:"search"`
	Classifier ClassifierSettings `json:"classifier" yaml:"classifier" toml:"classifier"`
}

// EnergySettings holds the genome-independent coefficients of the energy
// models. Occupancy costs come from the condition itself.
type EnergySettings struct {
	SwitchCost float64 `json:"switch_cost" yaml:"switch_cost" toml:"switch_cost"`
	SwitchUp   float64 `json:"switch_up" yaml:"switch_up" toml:"switch_up"`
	SwitchDown float64 `json:"switch_down" yaml:"switch_down" toml:"switch_down"`
	LeakRate   float64 `json:"leak_rate" yaml:"leak_rate" toml:"leak_rate"`
	ZeroBand   float64 `json:"zero_band" yaml:"zero_band" toml:"zero_band"`
}

type FitnessSettings struct {
	BatteryPoints int     `json:"battery_points" yaml:"battery_points" toml:"battery_points"`
	Trials        int     `json:"trials" yaml:"trials" toml:"trials"`
	EnergyWeight  float64 `json:"energy_weight" yaml:"energy_weight" toml:"energy_weight"`
	RegWeight     float64 `json:"reg_weight" yaml:"reg_weight" toml:"reg_weight"`
	SwitchWeight  float64 `json:"switch_weight" yaml:"switch_weight" toml:"switch_weight"`
	InfoBins      int     `json:"info_bins" yaml:"info_bins" toml:"info_bins"`
}

const (
	SelectionTournament = "tournament"
	SelectionTruncation = "truncation"
)

type SearchSettings struct {
	EliteCount         int     `json:"elite_count" yaml:"elite_count" toml:"elite_count"`
	Selection          string  `json:"selection" yaml:"selection" toml:"selection"`
	TournamentSize     int     `json:"tournament_size" yaml:"tournament_size" toml:"tournament_size"`
	TruncationFraction float64 `json:"truncation_fraction" yaml:"truncation_fraction" toml:"truncation_fraction"`
	CrossoverRate      float64 `json:"crossover_rate" yaml:"crossover_rate" toml:"crossover_rate"`
	MutationScale      float64 `json:"mutation_scale" yaml:"mutation_scale" toml:"mutation_scale"`
	InitialStepSize    float64 `json:"initial_step_size" yaml:"initial_step_size" toml:"initial_step_size"`
}

// ClassifierSettings are the plateau and hysteresis thresholds. Their
// values decide classification boundaries and are part of an experiment's
// record.
type ClassifierSettings struct {
	SweepPoints         int     `json:"sweep_points" yaml:"sweep_points" toml:"sweep_points"`
	DomainMin           float64 `json:"domain_min" yaml:"domain_min" toml:"domain_min"`
	DomainMax           float64 `json:"domain_max" yaml:"domain_max" toml:"domain_max"`
	MaxPlateauSlope     float64 `json:"max_plateau_slope" yaml:"max_plateau_slope" toml:"max_plateau_slope"`
	MinSeparation       float64 `json:"min_separation" yaml:"min_separation" toml:"min_separation"`
	MinOccupancy        float64 `json:"min_occupancy" yaml:"min_occupancy" toml:"min_occupancy"`
	MinCoverage         float64 `json:"min_coverage" yaml:"min_coverage" toml:"min_coverage"`
	HysteresisTolerance float64 `json:"hysteresis_tolerance" yaml:"hysteresis_tolerance" toml:"hysteresis_tolerance"`
}

func DefaultSettings() Settings {
	return Settings{
		Energy: EnergySettings{
			SwitchCost: 0.1,
			SwitchUp:   0.15,
			SwitchDown: 0.05,
			LeakRate:   0.2,
			ZeroBand:   0.05,
		},
		Fitness: FitnessSettings{
			BatteryPoints: 33,
			Trials:        4,
			EnergyWeight:  0.02,
			RegWeight:     0.01,
			SwitchWeight:  0.01,
			InfoBins:      8,
		},
		Search: SearchSettings{
			EliteCount:         2,
			Selection:          SelectionTournament,
			TournamentSize:     3,
			TruncationFraction: 0.5,
			CrossoverRate:      0.7,
			MutationScale:      0.1,
			InitialStepSize:    0.3,
		},
		Classifier: ClassifierSettings{
			SweepPoints:         401,
			DomainMin:           -1,
			DomainMax:           1,
			MaxPlateauSlope:     0.1,
			MinSeparation:       0.1,
			MinOccupancy:        0.05,
			MinCoverage:         0.5,
			HysteresisTolerance: 0.05,
		},
	}
}

// DefaultCondition returns the reference ga/task condition with default
// settings. Grid values (sigma, energies) are left at zero.
func DefaultCondition() Condition {
	return Condition{
		Allowed:        ContinuousOnly,
		Generations:    120,
		PopulationSize: 40,
		Seeds:          100,
		Seed:           DefaultBaseSeed,
		EnergyModel:    EnergyBase,
		Optimizer:      OptimizerGA,
		Fitness:        FitnessTask,
		Settings:       DefaultSettings(),
	}
}

// Validate fails fast on anything that would make evaluation meaningless.
func (c Condition) Validate() error {
	if _, ok := allowedNames[c.Allowed]; !ok {
		return configErrorf("allowed", c.Allowed.String(), "unknown value")
	}
	if _, ok := energyModelNames[c.EnergyModel]; !ok {
		return configErrorf("energy_model", c.EnergyModel.String(), "unknown value")
	}
	if _, ok := optimizerNames[c.Optimizer]; !ok {
		return configErrorf("optimizer", c.Optimizer.String(), "unknown value")
	}
	if _, ok := fitnessNames[c.Fitness]; !ok {
		return configErrorf("fitness", c.Fitness.String(), "unknown value")
	}
	if !finite(c.Sigma) || c.Sigma < 0 {
		return NewConfigurationError("sigma", c.Sigma, "must be finite and >= 0")
	}
	if !finite(c.EnergyZero) || !finite(c.EnergyAbs1) {
		return NewConfigurationError("energy", [2]float64{c.EnergyZero, c.EnergyAbs1}, "energy costs must be finite")
	}
	if c.Generations <= 0 {
		return NewConfigurationError("generations", c.Generations, "must be > 0")
	}
	if c.PopulationSize <= 0 {
		return NewConfigurationError("population_size", c.PopulationSize, "must be > 0")
	}
	if c.Seeds <= 0 {
		return NewConfigurationError("seeds", c.Seeds, "must be > 0")
	}
	switch c.QuantizerLevels {
	case 0, 2, 3, 4:
	default:
		return NewConfigurationError("quantizer_levels", c.QuantizerLevels, "must be 0 (evolved) or one of 2, 3, 4")
	}
	if c.Workers < 0 {
		return NewConfigurationError("workers", c.Workers, "must be >= 0")
	}
	return c.Settings.Validate(c.PopulationSize)
}

func (s Settings) Validate(populationSize int) error {
	e := s.Energy
	for _, nv := range []namedValue{
		{"energy.switch_cost", e.SwitchCost},
		{"energy.switch_up", e.SwitchUp},
		{"energy.switch_down", e.SwitchDown},
		{"energy.leak_rate", e.LeakRate},
		{"energy.zero_band", e.ZeroBand},
	} {
		if !finite(nv.value) || nv.value < 0 {
			return NewConfigurationError(nv.name, nv.value, "must be finite and >= 0")
		}
	}

	f := s.Fitness
	if f.BatteryPoints < 2 {
		return NewConfigurationError("fitness.battery_points", f.BatteryPoints, "must be >= 2")
	}
	if f.Trials <= 0 {
		return NewConfigurationError("fitness.trials", f.Trials, "must be > 0")
	}
	if f.InfoBins < 2 {
		return NewConfigurationError("fitness.info_bins", f.InfoBins, "must be >= 2")
	}
	for _, nv := range []namedValue{
		{"fitness.energy_weight", f.EnergyWeight},
		{"fitness.reg_weight", f.RegWeight},
		{"fitness.switch_weight", f.SwitchWeight},
	} {
		if !finite(nv.value) || nv.value < 0 {
			return NewConfigurationError(nv.name, nv.value, "must be finite and >= 0")
		}
	}

	g := s.Search
	if g.EliteCount < 0 || g.EliteCount > populationSize {
		return NewConfigurationError("search.elite_count", g.EliteCount, "must be in [0, population_size]")
	}
	switch g.Selection {
	case SelectionTournament, SelectionTruncation:
	default:
		return NewConfigurationError("search.selection", g.Selection, "expected tournament|truncation")
	}
	if g.TournamentSize <= 0 {
		return NewConfigurationError("search.tournament_size", g.TournamentSize, "must be > 0")
	}
	if g.TruncationFraction <= 0 || g.TruncationFraction > 1 {
		return NewConfigurationError("search.truncation_fraction", g.TruncationFraction, "must be in (0, 1]")
	}
	if g.CrossoverRate < 0 || g.CrossoverRate > 1 {
		return NewConfigurationError("search.crossover_rate", g.CrossoverRate, "must be in [0, 1]")
	}
	if !finite(g.MutationScale) || g.MutationScale <= 0 {
		return NewConfigurationError("search.mutation_scale", g.MutationScale, "must be > 0")
	}
	if !finite(g.InitialStepSize) || g.InitialStepSize <= 0 {
		return NewConfigurationError("search.initial_step_size", g.InitialStepSize, "must be > 0")
	}

	c := s.Classifier
	if c.SweepPoints < 3 {
		return NewConfigurationError("classifier.sweep_points", c.SweepPoints, "must be >= 3")
	}
	if !(c.DomainMax > c.DomainMin) {
		return NewConfigurationError("classifier.domain", [2]float64{c.DomainMin, c.DomainMax}, "domain_max must exceed domain_min")
	}
	for _, nv := range []namedValue{
		{"classifier.max_plateau_slope", c.MaxPlateauSlope},
		{"classifier.min_separation", c.MinSeparation},
		{"classifier.hysteresis_tolerance", c.HysteresisTolerance},
	} {
		if !finite(nv.value) || nv.value <= 0 {
			return NewConfigurationError(nv.name, nv.value, "must be > 0")
		}
	}
	for _, nv := range []namedValue{
		{"classifier.min_occupancy", c.MinOccupancy},
		{"classifier.min_coverage", c.MinCoverage},
	} {
		if nv.value < 0 || nv.value > 1 {
			return NewConfigurationError(nv.name, nv.value, "must be in [0, 1]")
		}
	}
	return nil
}

// namedValue keeps validation order stable so the first invalid field in
// declaration order is the one reported.
type namedValue struct {
	name  string
	value float64
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
