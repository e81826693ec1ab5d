// Package kernel defines the perturbation-kernel contract (§4.1) shared
// by the OLCM kernel (kernel/olcm) and any trivial fixed-bandwidth
// kernel supplied directly by a model.
package kernel

import "golang.org/x/exp/rand"

// Kernel samples a perturbation centred at a candidate and evaluates the
// perturbation density between two points. Implementations must treat
// mismatched dimensionality between from and to as a programming error,
// not a recoverable condition.
type Kernel[P any] interface {
	// Perturb draws a proposal from the kernel centred at p.
	Perturb(p P, rng *rand.Rand) P
	// PertDensity evaluates the density of moving from "from" to "to"
	// under this kernel. Always finite and non-negative.
	PertDensity(from, to P) float64
}

// Builder constructs a Kernel centred on a specific candidate particle.
// It fails only when the resulting covariance is not positive-definite.
// Builders must be safe to reuse across worker goroutines without
// reconstructing their precomputed per-generation statistics.
type Builder[P any] interface {
	BuildKernelAround(candidate P) (Kernel[P], error)
}

// Trivial wraps a Kernel that ignores the previous generation (e.g. a
// fixed-bandwidth Gaussian) so it can satisfy Builder: every candidate
// gets the same underlying kernel back.
type Trivial[P any] struct {
	K Kernel[P]
}

// NewTrivial wraps k as a Builder that always returns k itself.
func NewTrivial[P any](k Kernel[P]) Trivial[P] {
	return Trivial[P]{K: k}
}

func (t Trivial[P]) BuildKernelAround(_ P) (Kernel[P], error) {
	return t.K, nil
}
