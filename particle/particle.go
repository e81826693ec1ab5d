// Package particle defines the core data model (§3) and the generation
// construction / tolerance-descent step that seals a completed generation
// (§4.3): weight normalisation, score validation, and percentile-based
// tolerance for the next generation.
package particle

import (
	"sort"

	"github.com/tearne/abcd-go/abcderr"

	"gonum.org/v1/gonum/floats"
)

// Particle is one sampled parameter vector together with its simulator
// score and posterior-approximating weight. Weight > 0 implies Score is at
// or under the tolerance of the generation it belongs to.
type Particle[P any] struct {
	Parameters P       `json:"parameters"`
	Score      float64 `json:"score"`
	Weight     float64 `json:"weight"`
}

// Population is a normalised set of particles from one generation, plus
// the acceptance ratio observed while building it.
type Population[P any] struct {
	Acceptance          float32       `json:"acceptance"`
	NormalisedParticles []Particle[P] `json:"normalised_particles"`
}

// Generation is one sealed, immutable population plus the tolerance that
// gates acceptance into the next generation. Number 0 is the implicit
// pre-generation corresponding to the prior and is never stored; stored
// generations start at 1.
type Generation[P any] struct {
	Pop              Population[P] `json:"pop"`
	Number           uint16        `json:"number"`
	NextGenTolerance float64       `json:"next_gen_tolerance"`
}

// New seals accepted, not yet normalised particles into a Generation: it
// normalises weights to sum to 1, validates every score, and computes
// NextGenTolerance as the given percentile of the score distribution.
//
// particles must already carry their (unnormalised) weight assigned
// during weighing; New only rescales so the total is exactly 1, it does
// not recompute weights from scratch.
func New[P any](particles []Particle[P], number uint16, acceptance float32, percentile float64) (Generation[P], error) {
	if len(particles) == 0 {
		return Generation[P]{}, abcderr.Systemf("cannot seal a generation with zero particles")
	}

	weights := make([]float64, len(particles))
	scores := make([]float64, len(particles))
	for i, p := range particles {
		if p.Score < 0 {
			return Generation[P]{}, abcderr.Systemf("particle %d has negative score %v", i, p.Score)
		}
		if isNaN(p.Score) {
			return Generation[P]{}, abcderr.Systemf("particle %d has NaN score", i)
		}
		weights[i] = p.Weight
		scores[i] = p.Score
	}

	total := floats.Sum(weights)
	if total <= 0 || isNaN(total) {
		return Generation[P]{}, abcderr.Systemf("particle weights sum to non-positive or NaN total %v", total)
	}
	floats.Scale(1/total, weights)

	normalised := make([]Particle[P], len(particles))
	for i, p := range particles {
		normalised[i] = Particle[P]{Parameters: p.Parameters, Score: p.Score, Weight: weights[i]}
	}

	sortedScores := append([]float64(nil), scores...)
	sort.Float64s(sortedScores)
	tol := Percentile(sortedScores, percentile)
	if isNaN(tol) {
		return Generation[P]{}, abcderr.Systemf("next generation tolerance computed as NaN")
	}

	return Generation[P]{
		Pop: Population[P]{
			Acceptance:          acceptance,
			NormalisedParticles: normalised,
		},
		Number:           number,
		NextGenTolerance: tol,
	}, nil
}

// Percentile computes the inclusive-linear-interpolated percentile p
// (0..100) of the already-sorted-ascending slice sorted. For N values,
// k = floor(p*(N-1)/100) and the result is sorted[k] + f*(sorted[k+1]-sorted[k])
// where f is the fractional remainder. A single-element slice returns
// that element regardless of p.
func Percentile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return nan()
	}
	if n == 1 {
		return sorted[0]
	}
	rank := p * float64(n-1) / 100
	k := int(rank)
	if k >= n-1 {
		return sorted[n-1]
	}
	if k < 0 {
		return sorted[0]
	}
	f := rank - float64(k)
	return sorted[k] + f*(sorted[k+1]-sorted[k])
}

func isNaN(f float64) bool { return f != f }
func nan() float64         { var z float64; return z / z }
