// Package substrate implements the parametrized transfer functions whose
// input/output behavior is evolved.
package substrate

import (
	"errors"
	"fmt"
	"math"

	"substrata/internal/model"
)

var (
	ErrUnknownFamily = errors.New("unknown transfer family")
	ErrGenomeShape   = errors.New("genome does not match family layout")
)

// Model is a genome bound to its family. It holds no trial state; every
// Run starts from the genome alone.
type Model struct {
	family model.Family
	params []float64
}

func New(genome model.Genome) (Model, error) {
	dim := Dim(genome.Family)
	if dim == 0 {
		return Model{}, fmt.Errorf("%w: %s", ErrUnknownFamily, genome.Family)
	}
	if len(genome.Params) != dim {
		return Model{}, fmt.Errorf("%w: family=%s got=%d want=%d", ErrGenomeShape, genome.Family, len(genome.Params), dim)
	}
	return Model{family: genome.Family, params: append([]float64(nil), genome.Params...)}, nil
}

func (m Model) Family() model.Family { return m.family }

// Params returns a copy of the genome parameters.
func (m Model) Params() []float64 { return append([]float64(nil), m.params...) }

// Levels is the quantizer level count encoded by the genome, or 0 for other
// families.
func (m Model) Levels() int {
	if m.family != model.FamilyQuantizer {
		return 0
	}
	return quantizerLevels(m.params[QuantizerLevels])
}

// SwitchPoints returns the inputs where a latching family changes behavior:
// the lower threshold, the center and the upper threshold of a Schmitt
// trigger with a non-zero band. Other families return nil.
func (m Model) SwitchPoints() []float64 {
	if m.family != model.FamilySchmitt {
		return nil
	}
	c, h := m.params[SchmittCenter], math.Abs(m.params[SchmittHalfWidth])
	if math.IsNaN(c) || math.IsNaN(h) || h == 0 {
		return nil
	}
	return []float64{c - h, c, c + h}
}

// Transfer evaluates a memoryless response. For the Schmitt family it is
// the response of a freshly latched trigger.
func (m Model) Transfer(x float64) float64 {
	r := m.NewRun()
	return r.Step(x)
}

// NewRun starts a trial. Schmitt latches are reset.
func (m Model) NewRun() *Run {
	return &Run{model: m}
}

// Respond runs a fresh trial over inputs and writes outputs into out,
// allocating when out is too short.
func (m Model) Respond(inputs []float64, out []float64) []float64 {
	if cap(out) < len(inputs) {
		out = make([]float64, len(inputs))
	}
	out = out[:len(inputs)]
	run := m.NewRun()
	for i, x := range inputs {
		out[i] = run.Step(x)
	}
	return out
}

// Run carries the only mutable state a substrate has: the Schmitt latch.
type Run struct {
	model   Model
	latched bool
	state   float64
}

// Step maps one input to one output. It is total: finite inputs never
// produce a panic and extreme inputs saturate.
func (r *Run) Step(x float64) float64 {
	x = saturate(x, InputLimit, -InputLimit)
	p := r.model.params
	var y float64
	switch r.model.family {
	case model.FamilyLinear:
		y = p[LinearGain]*x + p[LinearBias]
	case model.FamilyTanh:
		y = p[TanhAmplitude] * math.Tanh(p[TanhSlope]*(x-p[TanhCenter]))
	case model.FamilyRelu:
		y = p[ReluSlope] * math.Max(0, x-p[ReluThreshold])
	case model.FamilyStep:
		y = step(x, p[StepThreshold], p[StepGain])
	case model.FamilySchmitt:
		y = r.schmitt(x, p[SchmittCenter], p[SchmittHalfWidth], p[SchmittGain])
	case model.FamilyQuantizer:
		y = quantize(x, quantizerLevels(p[QuantizerLevels]), p[QuantizerGain], p[QuantizerWidth], p[QuantizerOffset])
	default:
		panic(fmt.Sprintf("substrate: unhandled family %v", r.model.family))
	}
	if math.IsNaN(y) {
		return y
	}
	return saturate(y, OutputLimit, -OutputLimit)
}

func step(x, threshold, gain float64) float64 {
	if math.IsNaN(threshold) || math.IsNaN(gain) {
		return math.NaN()
	}
	if x >= threshold {
		return gain
	}
	return -gain
}

func (r *Run) schmitt(x, center, halfWidth, gain float64) float64 {
	if math.IsNaN(center) || math.IsNaN(halfWidth) || math.IsNaN(gain) {
		return math.NaN()
	}
	halfWidth = math.Abs(halfWidth)
	switch {
	case !r.latched:
		r.latched = true
		r.state = step(x, center, gain)
	case x > center+halfWidth:
		r.state = gain
	case x < center-halfWidth:
		r.state = -gain
	}
	return r.state
}

// quantizerLevels rounds the level gene into [2, 4]; NaN yields 0.
func quantizerLevels(v float64) int {
	if math.IsNaN(v) {
		return 0
	}
	return int(math.Round(saturate(v, 4, 2)))
}

// quantize maps x onto n evenly spaced levels in [-gain, gain] using n equal
// bins over [offset-width, offset+width]. Inputs outside the bins take the
// nearest edge level.
func quantize(x float64, n int, gain, width, offset float64) float64 {
	if n < 2 || math.IsNaN(gain) || math.IsNaN(offset) {
		return math.NaN()
	}
	u := (x - offset + width) / (2 * width)
	if math.IsNaN(u) {
		return math.NaN()
	}
	k := 0
	switch {
	case u >= 1:
		k = n - 1
	case u > 0:
		k = int(u * float64(n))
		if k > n-1 {
			k = n - 1
		}
	}
	return -gain + float64(k)*2*gain/float64(n-1)
}
