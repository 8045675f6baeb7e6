package evo

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/mat"
)

const (
	minStepSize    = 1e-3
	maxStepSize    = 1.0
	growStepSize   = 1.2
	shrinkStep     = 0.8
	growAfter      = 2
	choleskyJitter = 1e-8
)

// cmaes is a rank-mu covariance adaptation strategy in the unit cube. The
// mean and covariance are re-estimated from the better half of each
// generation and the step size grows after consecutive improvements and
// shrinks on stalls.
type cmaes struct {
	cfg  Config
	rng  *rand.Rand
	dim  int
	mean *mat.VecDense
	cov  *mat.SymDense
	chol mat.TriDense
	step float64

	best      float64
	haveBest  bool
	improving int
}

func newCMAES(cfg Config, rng *rand.Rand) *cmaes {
	dim := cfg.Space.Dim()
	mean := mat.NewVecDense(dim, cfg.Space.Sample(rng))
	step := cfg.Search.InitialStepSize
	if step <= 0 {
		step = 0.3
	}
	c := &cmaes{
		cfg:  cfg,
		rng:  rng,
		dim:  dim,
		mean: mean,
		cov:  identity(dim),
		step: clampStep(step),
	}
	c.factorize()
	return c
}

func (c *cmaes) propose(generation int) []candidate {
	space := c.cfg.Space
	out := make([]candidate, c.cfg.PopulationSize)
	z := mat.NewVecDense(c.dim, nil)
	var y mat.VecDense
	for i := range out {
		for d := 0; d < c.dim; d++ {
			z.SetVec(d, c.rng.NormFloat64())
		}
		y.MulVec(&c.chol, z)
		unit := make([]float64, c.dim)
		for d := range unit {
			unit[d] = clampUnit(c.mean.AtVec(d) + c.step*y.AtVec(d))
		}
		out[i] = candidate{unit: unit, genome: space.Genome(candidateID(space.Family, generation, i), unit)}
	}
	return out
}

func (c *cmaes) observe(_ int, ranked []scoredCandidate) {
	if len(ranked) == 0 {
		return
	}
	mu := len(ranked) / 2
	if mu < 1 {
		mu = 1
	}

	// Rank-mu covariance estimate around the previous mean, normalized by
	// the step size so the shape stays independent of the scale.
	sample := mat.NewSymDense(c.dim, nil)
	diff := mat.NewVecDense(c.dim, nil)
	newMean := mat.NewVecDense(c.dim, nil)
	for _, item := range ranked[:mu] {
		for d := 0; d < c.dim; d++ {
			diff.SetVec(d, (item.unit[d]-c.mean.AtVec(d))/c.step)
			newMean.SetVec(d, newMean.AtVec(d)+item.unit[d]/float64(mu))
		}
		sample.SymRankOne(sample, 1/float64(mu), diff)
	}
	rate := math.Min(1, float64(mu)/(float64(c.dim*c.dim)+float64(mu)))
	c.cov.ScaleSym(1-rate, c.cov)
	sample.ScaleSym(rate, sample)
	c.cov.AddSym(c.cov, sample)
	c.mean = newMean

	top := ranked[0].score.Value
	switch {
	case !c.haveBest || top > c.best:
		c.best = top
		c.haveBest = true
		c.improving++
		if c.improving >= growAfter {
			c.step = clampStep(c.step * growStepSize)
		}
	default:
		c.improving = 0
		c.step = clampStep(c.step * shrinkStep)
	}
	c.factorize()
}

func (c *cmaes) stepSize() float64 { return c.step }

// factorize refreshes the Cholesky factor of the covariance. A matrix that
// lost definiteness gets a diagonal jitter and, failing that, is reset.
func (c *cmaes) factorize() {
	var chol mat.Cholesky
	if chol.Factorize(c.cov) {
		chol.LTo(&c.chol)
		return
	}
	for d := 0; d < c.dim; d++ {
		c.cov.SetSym(d, d, c.cov.At(d, d)+choleskyJitter)
	}
	if chol.Factorize(c.cov) {
		chol.LTo(&c.chol)
		return
	}
	c.cov = identity(c.dim)
	chol.Factorize(c.cov)
	chol.LTo(&c.chol)
}

func identity(dim int) *mat.SymDense {
	s := mat.NewSymDense(dim, nil)
	for d := 0; d < dim; d++ {
		s.SetSym(d, d, 1)
	}
	return s
}

func clampStep(v float64) float64 {
	return math.Max(minStepSize, math.Min(maxStepSize, v))
}
