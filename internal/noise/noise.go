// Package noise provides deterministic Gaussian perturbation keyed by the
// identity of a single trial.
package noise

import "math/rand/v2"

// Key addresses one trial. Two sources built from equal keys produce
// bit-identical sample streams regardless of scheduling.
type Key struct {
	Seed       int64
	Generation int
	Individual int
	Trial      int
}

// Source is a per-trial Gaussian stream. The n-th call to Perturb draws
// sample index n. A Source must not be shared between goroutines.
type Source struct {
	key    Key
	rng    *rand.Rand
	sample int
}

func New(key Key) *Source {
	hi, lo := key.words()
	return &Source{key: key, rng: rand.New(rand.NewPCG(hi, lo))}
}

func (s *Source) Key() Key { return s.key }

// Sample returns the index the next draw will use.
func (s *Source) Sample() int { return s.sample }

// Normal draws the next standard normal sample.
func (s *Source) Normal() float64 {
	s.sample++
	return s.rng.NormFloat64()
}

// Perturb returns x plus sigma-scaled Gaussian noise. sigma == 0 returns x
// exactly and consumes no sample.
func (s *Source) Perturb(x, sigma float64) float64 {
	if sigma == 0 {
		return x
	}
	return x + sigma*s.Normal()
}

// Rand exposes a generator derived from the key for non-noise uses such as
// sampling genomes. It is independent of the Perturb stream.
func Rand(key Key, stream uint64) *rand.Rand {
	hi, lo := key.words()
	return rand.New(rand.NewPCG(mix(hi^stream), mix(lo+stream)))
}

func (k Key) words() (uint64, uint64) {
	hi := mix(uint64(k.Seed))
	hi = mix(hi ^ uint64(int64(k.Generation)))
	lo := mix(uint64(int64(k.Individual)) + 0x9e3779b97f4a7c15)
	lo = mix(lo ^ uint64(int64(k.Trial)) ^ hi)
	return hi, lo
}

// mix is the splitmix64 finalizer.
func mix(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}
