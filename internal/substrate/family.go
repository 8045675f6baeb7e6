package substrate

import (
	"fmt"

	"substrata/internal/model"
)

const (
	// InputLimit bounds inputs before transfer so extreme values saturate.
	InputLimit = 1e6
	// OutputLimit bounds every family's output.
	OutputLimit = 10.0
)

// Bounds is a closed parameter interval.
type Bounds struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

func (b Bounds) Width() float64 { return b.Max - b.Min }

func (b Bounds) Clamp(v float64) float64 {
	return saturate(v, b.Max, b.Min)
}

type ParamSpec struct {
	Name   string `json:"name"`
	Bounds Bounds `json:"bounds"`
}

// Parameter indices per family.
const (
	LinearGain = 0
	LinearBias = 1

	TanhAmplitude = 0
	TanhSlope     = 1
	TanhCenter    = 2

	ReluThreshold = 0
	ReluSlope     = 1

	StepThreshold = 0
	StepGain      = 1

	SchmittCenter    = 0
	SchmittHalfWidth = 1
	SchmittGain      = 2

	QuantizerLevels = 0
	QuantizerGain   = 1
	QuantizerWidth  = 2
	QuantizerOffset = 3
)

// Layout returns the genome layout of a family. The bounds keep every
// discrete family's levels inside the sweep domain with room to spare.
func Layout(family model.Family) ([]ParamSpec, error) {
	switch family {
	case model.FamilyLinear:
		return []ParamSpec{
			{Name: "gain", Bounds: Bounds{Min: -2, Max: 2}},
			{Name: "bias", Bounds: Bounds{Min: -1, Max: 1}},
		}, nil
	case model.FamilyTanh:
		return []ParamSpec{
			{Name: "amplitude", Bounds: Bounds{Min: 0.1, Max: 2}},
			{Name: "slope", Bounds: Bounds{Min: 0.1, Max: 20}},
			{Name: "center", Bounds: Bounds{Min: -0.5, Max: 0.5}},
		}, nil
	case model.FamilyRelu:
		return []ParamSpec{
			{Name: "threshold", Bounds: Bounds{Min: -0.5, Max: 0.5}},
			{Name: "slope", Bounds: Bounds{Min: 0.1, Max: 2}},
		}, nil
	case model.FamilyStep:
		return []ParamSpec{
			{Name: "threshold", Bounds: Bounds{Min: -0.5, Max: 0.5}},
			{Name: "gain", Bounds: Bounds{Min: 0.25, Max: 1.5}},
		}, nil
	case model.FamilySchmitt:
		return []ParamSpec{
			{Name: "center", Bounds: Bounds{Min: -0.5, Max: 0.5}},
			{Name: "half_width", Bounds: Bounds{Min: 0, Max: 0.5}},
			{Name: "gain", Bounds: Bounds{Min: 0.25, Max: 1.5}},
		}, nil
	case model.FamilyQuantizer:
		return []ParamSpec{
			{Name: "levels", Bounds: Bounds{Min: 2, Max: 4}},
			{Name: "gain", Bounds: Bounds{Min: 0.25, Max: 1.5}},
			{Name: "width", Bounds: Bounds{Min: 0.5, Max: 1.2}},
			{Name: "offset", Bounds: Bounds{Min: -0.25, Max: 0.25}},
		}, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownFamily, family)
	}
}

// Dim is the genome length of a family, or 0 for unknown families.
func Dim(family model.Family) int {
	layout, err := Layout(family)
	if err != nil {
		return 0
	}
	return len(layout)
}

// Memoryless reports whether the family's output depends only on the
// current input.
func Memoryless(family model.Family) bool {
	return family != model.FamilySchmitt
}

func saturate(v, max, min float64) float64 {
	if v > max {
		return max
	}
	if v < min {
		return min
	}
	return v
}
