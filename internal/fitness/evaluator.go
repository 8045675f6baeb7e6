// Package fitness scores substrate genomes over a fixed input battery under
// keyed noise.
package fitness

import (
	"fmt"
	"math"

	"substrata/internal/energy"
	"substrata/internal/model"
	"substrata/internal/noise"
	"substrata/internal/substrate"
)

const (
	batteryMin = -1.0
	batteryMax = 1.0
	infoMin    = -2.0
	infoMax    = 2.0
)

type Config struct {
	Kind       model.FitnessKind
	Sigma      float64
	Seed       int64
	Accountant energy.Accountant
	Settings   model.FitnessSettings
}

// Evaluator is safe for concurrent use: it holds no mutable state and every
// trial builds its own noise source.
type Evaluator struct {
	cfg     Config
	battery []float64
}

func NewEvaluator(cfg Config) (*Evaluator, error) {
	switch cfg.Kind {
	case model.FitnessTask, model.FitnessReg, model.FitnessInfo:
	default:
		return nil, model.NewConfigurationError("fitness", cfg.Kind, "unknown value")
	}
	if math.IsNaN(cfg.Sigma) || cfg.Sigma < 0 {
		return nil, model.NewConfigurationError("sigma", cfg.Sigma, "must be >= 0")
	}
	if cfg.Settings.BatteryPoints < 2 || cfg.Settings.Trials <= 0 || cfg.Settings.InfoBins < 2 {
		return nil, model.NewConfigurationError("fitness", fmt.Sprintf("%+v", cfg.Settings), "battery_points >= 2, trials > 0, info_bins >= 2 required")
	}
	return &Evaluator{
		cfg:     cfg,
		battery: substrate.Grid(batteryMin, batteryMax, cfg.Settings.BatteryPoints),
	}, nil
}

// NewFromCondition wires the evaluator a condition describes.
func NewFromCondition(cond model.Condition, seed int64) (*Evaluator, error) {
	accountant, err := energy.New(cond.EnergyModel, cond.EnergyZero, cond.EnergyAbs1, cond.Settings.Energy)
	if err != nil {
		return nil, err
	}
	return NewEvaluator(Config{
		Kind:       cond.Fitness,
		Sigma:      cond.Sigma,
		Seed:       seed,
		Accountant: accountant,
		Settings:   cond.Settings.Fitness,
	})
}

func (e *Evaluator) Kind() model.FitnessKind { return e.cfg.Kind }

// Battery returns a copy of the input battery in ascending order.
func (e *Evaluator) Battery() []float64 { return append([]float64(nil), e.battery...) }

// Evaluate scores genome as individual of generation. The result depends
// only on the arguments and the evaluator configuration.
func (e *Evaluator) Evaluate(genome model.Genome, generation, individual int) model.FitnessScore {
	m, err := substrate.New(genome)
	if err != nil {
		return degenerate(e.cfg.Kind)
	}

	n := len(e.battery)
	trials := e.cfg.Settings.Trials
	outputs := make([]float64, n)
	var joint [][]int
	if e.cfg.Kind == model.FitnessInfo {
		joint = make([][]int, n)
		for i := range joint {
			joint[i] = make([]int, e.cfg.Settings.InfoBins)
		}
	}

	sqErr := 0.0
	energySum := 0.0
	transitions := 0
	for trial := 0; trial < trials; trial++ {
		src := noise.New(noise.Key{Seed: e.cfg.Seed, Generation: generation, Individual: individual, Trial: trial})
		run := m.NewRun()
		for j := 0; j < n; j++ {
			idx := j
			if trial%2 == 1 {
				idx = n - 1 - j
			}
			x := e.battery[idx]
			y := run.Step(src.Perturb(x, e.cfg.Sigma))
			outputs[j] = y
			d := y - x
			sqErr += d * d
			if joint != nil && !math.IsNaN(y) {
				joint[idx][outputBin(y, e.cfg.Settings.InfoBins)]++
			}
		}
		report := e.cfg.Accountant.Account(outputs)
		energySum += report.PerSample()
		transitions += report.Transitions
	}

	samples := float64(trials * n)
	score := model.FitnessScore{
		Kind:          e.cfg.Kind,
		TaskError:     sqErr / samples,
		EnergyPenalty: e.cfg.Settings.EnergyWeight * energySum / float64(trials),
	}
	switch e.cfg.Kind {
	case model.FitnessTask:
		score.Value = -(score.TaskError + score.EnergyPenalty)
	case model.FitnessReg:
		score.Regularization = e.cfg.Settings.RegWeight*paramMagnitude(genome) +
			e.cfg.Settings.SwitchWeight*float64(transitions)/samples
		score.Value = -(score.TaskError + score.EnergyPenalty + score.Regularization)
	case model.FitnessInfo:
		score.Information = mutualInformation(joint)
		score.Value = score.Information - score.EnergyPenalty
	default:
		panic(fmt.Sprintf("fitness: unhandled kind %v", e.cfg.Kind))
	}

	if !finite(score.Value) || !finite(score.TaskError) || !finite(score.EnergyPenalty) ||
		!finite(score.Regularization) || !finite(score.Information) {
		return degenerate(e.cfg.Kind)
	}
	return score
}

func degenerate(kind model.FitnessKind) model.FitnessScore {
	return model.FitnessScore{Kind: kind, Value: model.WorstFitness, Degenerate: true}
}

// paramMagnitude is the mean squared shape parameter. The quantizer level
// count is structural and excluded.
func paramMagnitude(genome model.Genome) float64 {
	sum := 0.0
	count := 0
	for i, p := range genome.Params {
		if genome.Family == model.FamilyQuantizer && i == substrate.QuantizerLevels {
			continue
		}
		sum += p * p
		count++
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

func outputBin(y float64, bins int) int {
	u := (y - infoMin) / (infoMax - infoMin)
	b := int(math.Floor(u * float64(bins)))
	if b < 0 {
		return 0
	}
	if b >= bins {
		return bins - 1
	}
	return b
}

// mutualInformation returns I(X;Y) in bits from a joint count table.
func mutualInformation(joint [][]int) float64 {
	total := 0
	cols := 0
	for _, row := range joint {
		for _, c := range row {
			total += c
		}
		if len(row) > cols {
			cols = len(row)
		}
	}
	if total == 0 {
		return 0
	}
	rowSum := make([]float64, len(joint))
	colSum := make([]float64, cols)
	for i, row := range joint {
		for j, c := range row {
			rowSum[i] += float64(c)
			colSum[j] += float64(c)
		}
	}
	n := float64(total)
	mi := 0.0
	for i, row := range joint {
		for j, c := range row {
			if c == 0 {
				continue
			}
			pxy := float64(c) / n
			mi += pxy * math.Log2(pxy*n*n/(rowSum[i]*colSum[j]))
		}
	}
	if mi < 0 {
		return 0
	}
	return mi
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
