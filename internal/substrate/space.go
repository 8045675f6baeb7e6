package substrate

import (
	"fmt"
	"math/rand/v2"

	"substrata/internal/model"
)

// Space is the search domain of one family. Optimizers work in the unit
// cube and map points onto parameter bounds through Decode.
type Space struct {
	Family model.Family
	Params []ParamSpec
}

// NewSpace builds the search space of a family. A non-zero quantizerLevels
// pins the quantizer level gene to that value.
func NewSpace(family model.Family, quantizerLevels int) (Space, error) {
	layout, err := Layout(family)
	if err != nil {
		return Space{}, err
	}
	if family == model.FamilyQuantizer && quantizerLevels != 0 {
		if quantizerLevels < 2 || quantizerLevels > 4 {
			return Space{}, model.NewConfigurationError("quantizer_levels", quantizerLevels, "must be one of 2, 3, 4")
		}
		layout[QuantizerLevels].Bounds = Bounds{Min: float64(quantizerLevels), Max: float64(quantizerLevels)}
	}
	return Space{Family: family, Params: layout}, nil
}

// Spaces builds one space per family admitted by allowed.
func Spaces(allowed model.Allowed, quantizerLevels int) ([]Space, error) {
	families := allowed.Families()
	if len(families) == 0 {
		return nil, model.NewConfigurationError("allowed", allowed, "unknown value")
	}
	out := make([]Space, 0, len(families))
	for _, family := range families {
		space, err := NewSpace(family, quantizerLevels)
		if err != nil {
			return nil, err
		}
		out = append(out, space)
	}
	return out, nil
}

func (s Space) Dim() int { return len(s.Params) }

// Decode maps a unit-cube point onto parameters, clamping out-of-cube
// coordinates.
func (s Space) Decode(unit []float64) []float64 {
	params := make([]float64, len(s.Params))
	for i, spec := range s.Params {
		u := saturate(unit[i], 1, 0)
		params[i] = spec.Bounds.Min + u*spec.Bounds.Width()
	}
	return params
}

// Encode maps parameters into the unit cube. Pinned parameters encode to 0.
func (s Space) Encode(params []float64) []float64 {
	unit := make([]float64, len(s.Params))
	for i, spec := range s.Params {
		w := spec.Bounds.Width()
		if w == 0 {
			continue
		}
		unit[i] = saturate((params[i]-spec.Bounds.Min)/w, 1, 0)
	}
	return unit
}

// Clamp returns params clamped onto the space bounds.
func (s Space) Clamp(params []float64) []float64 {
	out := make([]float64, len(params))
	for i, spec := range s.Params {
		out[i] = spec.Bounds.Clamp(params[i])
	}
	return out
}

// Genome wraps decoded parameters.
func (s Space) Genome(id string, unit []float64) model.Genome {
	return model.Genome{ID: id, Family: s.Family, Params: s.Decode(unit)}
}

// Sample draws a uniform unit-cube point.
func (s Space) Sample(rng *rand.Rand) []float64 {
	unit := make([]float64, len(s.Params))
	for i := range unit {
		unit[i] = rng.Float64()
	}
	return unit
}

// Contains reports whether genome belongs to the space.
func (s Space) Contains(genome model.Genome) error {
	if genome.Family != s.Family {
		return fmt.Errorf("%w: family=%s space=%s", ErrGenomeShape, genome.Family, s.Family)
	}
	if len(genome.Params) != len(s.Params) {
		return fmt.Errorf("%w: family=%s got=%d want=%d", ErrGenomeShape, genome.Family, len(genome.Params), len(s.Params))
	}
	for i, spec := range s.Params {
		v := genome.Params[i]
		if v < spec.Bounds.Min || v > spec.Bounds.Max {
			return fmt.Errorf("%w: %s=%g outside [%g, %g]", ErrGenomeShape, spec.Name, v, spec.Bounds.Min, spec.Bounds.Max)
		}
	}
	return nil
}

// Grid returns n evenly spaced points over [min, max], endpoints included.
func Grid(min, max float64, n int) []float64 {
	if n <= 1 {
		return []float64{min}
	}
	out := make([]float64, n)
	step := (max - min) / float64(n-1)
	for i := range out {
		out[i] = min + float64(i)*step
	}
	out[n-1] = max
	return out
}
