// Package energy prices the output trajectory of a trial.
package energy

import (
	"fmt"
	"math"

	"substrata/internal/model"
)

// Accountant computes trial cost under one energy model. Occupancy costs
// come from the experimental condition and are never evolved.
type Accountant struct {
	Model      model.EnergyModel
	EnergyZero float64
	EnergyAbs1 float64
	Settings   model.EnergySettings
}

type Report struct {
	Samples         int     `json:"samples"`
	Transitions     int     `json:"transitions"`
	UpTransitions   int     `json:"up_transitions"`
	DownTransitions int     `json:"down_transitions"`
	Switching       float64 `json:"switching"`
	Holding         float64 `json:"holding"`
	Resting         float64 `json:"resting"`
	Drain           float64 `json:"drain"`
	Total           float64 `json:"total"`
}

// PerSample normalizes the total by trial duration.
func (r Report) PerSample() float64 {
	if r.Samples == 0 {
		return 0
	}
	return r.Total / float64(r.Samples)
}

func New(kind model.EnergyModel, energyZero, energyAbs1 float64, settings model.EnergySettings) (Accountant, error) {
	switch kind {
	case model.EnergyBase, model.EnergyAsym, model.EnergyLeak:
	default:
		return Accountant{}, model.NewConfigurationError("energy_model", kind, "unknown value")
	}
	return Accountant{Model: kind, EnergyZero: energyZero, EnergyAbs1: energyAbs1, Settings: settings}, nil
}

// Level maps an output to its rest/active level: 0 inside the zero band,
// otherwise the sign.
func (a Accountant) Level(y float64) int {
	if math.Abs(y) <= a.Settings.ZeroBand {
		return 0
	}
	if y > 0 {
		return 1
	}
	return -1
}

// Account prices one trial's outputs, sampled at unit time steps.
func (a Accountant) Account(outputs []float64) Report {
	report := Report{Samples: len(outputs)}
	prev := 0
	for i, y := range outputs {
		level := a.Level(y)
		if level == 0 {
			report.Resting += a.EnergyZero
		} else {
			report.Holding += a.EnergyAbs1
		}
		if i > 0 && level != prev {
			report.Transitions++
			if level == 0 {
				report.DownTransitions++
			} else {
				report.UpTransitions++
			}
		}
		prev = level
	}

	switch a.Model {
	case model.EnergyBase:
		report.Switching = a.Settings.SwitchCost * float64(report.Transitions)
	case model.EnergyAsym:
		report.Switching = a.Settings.SwitchUp*float64(report.UpTransitions) +
			a.Settings.SwitchDown*float64(report.DownTransitions)
	case model.EnergyLeak:
		report.Switching = a.Settings.SwitchCost * float64(report.Transitions)
		report.Drain = a.Settings.LeakRate * float64(report.Samples)
	default:
		panic(fmt.Sprintf("energy: unhandled model %v", a.Model))
	}
	report.Total = report.Switching + report.Holding + report.Resting + report.Drain
	return report
}
