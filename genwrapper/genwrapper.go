// Package genwrapper implements the generation wrapper (sampler, §4.2):
// the prior/empirical duality that unifies "sample from the prior"
// (generation 0) and "sample from the previous empirical distribution"
// (generation ≥1) behind one type, plus the weighing formula that turns
// a scored particle into an importance weight.
package genwrapper

import (
	"math"

	"golang.org/x/exp/rand"

	abcd "github.com/tearne/abcd-go"
	"github.com/tearne/abcd-go/abcderr"
	"github.com/tearne/abcd-go/kernel"
	"github.com/tearne/abcd-go/particle"
	abcdrand "github.com/tearne/abcd-go/rand"
)

// empirical holds the previous generation, its particle weights (used
// for roulette-wheel index sampling), the kernel builder derived from
// it, and the tolerance inherited from that generation.
type empirical[P abcd.Vector[P]] struct {
	prev      []particle.Particle[P]
	weights   []float64
	builder   kernel.Builder[P]
	tolerance float64
}

// Wrapper is GenWrapper: a Prior-mode wrapper carries a nil empirical
// field (mirroring GenWrapper::Prior | GenWrapper::Emp without needing a
// tagged union), an Empirical-mode wrapper carries one.
type Wrapper[P abcd.Vector[P]] struct {
	model     abcd.Model[P]
	empirical *empirical[P]
}

// NewPrior builds the generation-0 wrapper: sampling draws straight from
// the model's prior, perturbation is a no-op, tolerance is +Inf, and
// every weight is 1.0.
func NewPrior[P abcd.Vector[P]](model abcd.Model[P]) *Wrapper[P] {
	return &Wrapper[P]{model: model}
}

// NewEmpirical builds a generation-N (N≥1) wrapper backed by prev and a
// kernel builder derived from it, with the inherited tolerance.
func NewEmpirical[P abcd.Vector[P]](model abcd.Model[P], prev []particle.Particle[P], builder kernel.Builder[P], tolerance float64) (*Wrapper[P], error) {
	if len(prev) == 0 {
		return nil, abcderr.Systemf("cannot build an empirical generation wrapper from zero particles")
	}
	weights := make([]float64, len(prev))
	for i, p := range prev {
		weights[i] = p.Weight
	}

	return &Wrapper[P]{
		model: model,
		empirical: &empirical[P]{
			prev:      prev,
			weights:   weights,
			builder:   builder,
			tolerance: tolerance,
		},
	}, nil
}

// IsPrior reports whether this wrapper is in prior (generation 0) mode.
func (w *Wrapper[P]) IsPrior() bool { return w.empirical == nil }

// Tolerance is +Inf in prior mode, or the tolerance inherited from the
// previous generation in empirical mode.
func (w *Wrapper[P]) Tolerance() float64 {
	if w.IsPrior() {
		return math.Inf(1)
	}
	return w.empirical.tolerance
}

// Sample draws a raw candidate before perturbation: model.PriorSample in
// prior mode, or an index drawn proportional to weight from the previous
// generation in empirical mode.
func (w *Wrapper[P]) Sample(rng *rand.Rand) P {
	if w.IsPrior() {
		return w.model.PriorSample(rng)
	}
	idx, err := abcdrand.RouletteDrawN(w.empirical.weights, 1, rng)
	if err != nil {
		panic(err)
	}
	return w.empirical.prev[idx[0]].Parameters
}

// BuildKernel constructs the kernel bound to candidate in empirical
// mode, or returns nil in prior mode (Perturb treats a nil kernel as a
// no-op).
func (w *Wrapper[P]) BuildKernel(candidate P) (kernel.Kernel[P], error) {
	if w.IsPrior() {
		return nil, nil
	}
	return w.empirical.builder.BuildKernelAround(candidate)
}

// Perturb applies k to candidate (a no-op when k is nil, i.e. prior
// mode) and enforces the hard prior-support boundary: a perturbed value
// with zero prior density fails with a particle-local error that the
// driver catches and resamples from.
func (w *Wrapper[P]) Perturb(candidate P, k kernel.Kernel[P], rng *rand.Rand) (P, error) {
	perturbed := candidate
	if k != nil {
		perturbed = k.Perturb(candidate, rng)
	}
	if w.model.PriorDensity(perturbed) == 0 {
		return perturbed, abcderr.Particlef("perturbed particle fell outside the prior's support")
	}
	return perturbed, nil
}

// Weigh computes the importance weight of a perturbed particle x scored
// s, against k (the same kernel instance used to perturb x, reused here
// as the denominator term for every previous-generation particle). In
// prior mode the weight is always 1.0.
func (w *Wrapper[P]) Weigh(x P, score float64, k kernel.Kernel[P]) (float64, error) {
	if w.IsPrior() {
		return 1.0, nil
	}
	if score > w.empirical.tolerance {
		return 0.0, nil
	}

	prior := w.model.PriorDensity(x)
	denom := 0.0
	for _, prevP := range w.empirical.prev {
		denom += prevP.Weight * k.PertDensity(prevP.Parameters, x)
	}
	if denom <= 0 || isNaN(denom) {
		return 0, abcderr.Systemf("empirical weighing denominator is non-positive or NaN: %v", denom)
	}
	return prior / denom, nil
}

func isNaN(f float64) bool { return f != f }
