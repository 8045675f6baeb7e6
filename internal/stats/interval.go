package stats

import "math"

// Z95 is the two-sided 95% normal quantile.
const Z95 = 1.96

// NormalInterval is the Wald interval for k successes in n trials, clipped
// to [0, 1].
func NormalInterval(successes, trials int, z float64) (float64, float64) {
	if trials <= 0 {
		return 0, 0
	}
	p := float64(successes) / float64(trials)
	margin := z * math.Sqrt(p*(1-p)/float64(trials))
	return math.Max(0, p-margin), math.Min(1, p+margin)
}

// WilsonInterval is the Wilson score interval for k successes in n trials.
func WilsonInterval(successes, trials int, z float64) (float64, float64) {
	if trials <= 0 {
		return 0, 0
	}
	n := float64(trials)
	p := float64(successes) / n
	z2 := z * z
	denom := 1 + z2/n
	centre := (p + z2/(2*n)) / denom
	margin := z * math.Sqrt((p*(1-p)+z2/(4*n))/n) / denom
	return math.Max(0, centre-margin), math.Min(1, centre+margin)
}

// Proportion is a rate with its Wilson 95% interval.
type Proportion struct {
	Successes int     `json:"successes"`
	Trials    int     `json:"trials"`
	Rate      float64 `json:"rate"`
	Lower     float64 `json:"lower"`
	Upper     float64 `json:"upper"`
}

func NewProportion(successes, trials int) Proportion {
	p := Proportion{Successes: successes, Trials: trials}
	if trials > 0 {
		p.Rate = float64(successes) / float64(trials)
	}
	p.Lower, p.Upper = WilsonInterval(successes, trials, Z95)
	return p
}
