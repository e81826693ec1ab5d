// Package abcd defines the model contract (§6.3) consumed by the SMC
// driver: a prior sampler and density, a kernel-builder factory, and a
// scorer. It plays the same role as go-estimate's root filter.go: a small,
// framework-free interface a user type satisfies to plug into the engine.
package abcd

import (
	"golang.org/x/exp/rand"

	"github.com/tearne/abcd-go/kernel"
	"github.com/tearne/abcd-go/particle"
)

// Vector is satisfied by a parameter type P: lossless projection onto a
// dense real vector of fixed dimension D, plus the arithmetic the OLCM
// perturbation kernel needs (element-wise add/sub, clone). JSON
// (de)serialisation is expected via ordinary struct tags, not this
// interface.
type Vector[P any] interface {
	ToVector() []float64
	Add(P) P
	Sub(P) P
	Clone() P
}

// Factory builds a P back out of its dense vector form. It is supplied by
// the Model rather than being a method on P, because only the model knows
// how vector components map onto named fields.
type Factory[P any] func(v []float64) (P, error)

// Model is the user-supplied probabilistic model: prior sampler and
// density, a kernel-builder factory for perturbation, and a simulator or
// scorer producing a non-negative summary distance.
type Model[P Vector[P]] interface {
	// PriorSample draws a value from a distribution whose PriorDensity
	// is > 0 on its support.
	PriorSample(rng *rand.Rand) P
	// PriorDensity is non-negative, and zero outside the prior's support.
	PriorDensity(p P) float64
	// Factory builds a P from its dense vector form; used by kernel
	// builders to convert a perturbed vector back into the model's type.
	Factory() Factory[P]
	// BuildKernelBuilder constructs a kernel builder from the previous
	// generation's normalised particles. Called once per generation.
	BuildKernelBuilder(prev []particle.Particle[P]) (kernel.Builder[P], error)
	// Score computes a non-negative distance between a simulated summary
	// for p and the observed summary. May fail with a recoverable
	// particle-local error or a fatal infrastructure error.
	Score(p P) (float64, error)
}
