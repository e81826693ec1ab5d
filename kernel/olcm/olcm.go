// Package olcm implements the Optimal Local Covariance Matrix
// perturbation kernel (§4.1): a per-candidate Gaussian proposal whose
// covariance is the previous generation's weighted covariance biased by
// the candidate's distance from the weighted mean.
package olcm

import (
	"math"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distmv"

	abcd "github.com/tearne/abcd-go"
	"github.com/tearne/abcd-go/abcderr"
	"github.com/tearne/abcd-go/kernel"
	"github.com/tearne/abcd-go/particle"
)

// Builder precomputes the weighted mean and weighted covariance of a
// previous generation once, then derives a per-candidate local
// covariance on each call to BuildKernelAround.
type Builder[P abcd.Vector[P]] struct {
	weightedMean []float64
	weightedCov  *mat.SymDense
	factory      abcd.Factory[P]
}

// NewBuilder computes the weighted mean and weighted covariance of prev
// and returns a Builder ready to construct per-candidate kernels.
func NewBuilder[P abcd.Vector[P]](prev []particle.Particle[P], factory abcd.Factory[P]) (*Builder[P], error) {
	if len(prev) == 0 {
		return nil, abcderr.Systemf("cannot build an OLCM kernel builder from zero particles")
	}

	d := len(prev[0].Parameters.ToVector())
	mean := make([]float64, d)
	for _, p := range prev {
		v := p.Parameters.ToVector()
		if len(v) != d {
			return nil, abcderr.Systemf("particle vector dimension mismatch: want %d got %d", d, len(v))
		}
		for i, x := range v {
			mean[i] += p.Weight * x
		}
	}

	cov := mat.NewSymDense(d, nil)
	for _, p := range prev {
		v := p.Parameters.ToVector()
		diff := make([]float64, d)
		for i := range v {
			diff[i] = v[i] - mean[i]
		}
		for i := 0; i < d; i++ {
			for j := i; j < d; j++ {
				cov.SetSym(i, j, cov.At(i, j)+p.Weight*diff[i]*diff[j])
			}
		}
	}

	return &Builder[P]{weightedMean: mean, weightedCov: cov, factory: factory}, nil
}

// WeightedMean returns a copy of the precomputed weighted mean vector.
func (b *Builder[P]) WeightedMean() []float64 {
	return append([]float64(nil), b.weightedMean...)
}

// WeightedCovariance returns a copy of the precomputed weighted covariance.
func (b *Builder[P]) WeightedCovariance() *mat.SymDense {
	d, _ := b.weightedCov.Dims()
	cp := mat.NewSymDense(d, nil)
	cp.CopySym(b.weightedCov)
	return cp
}

// BuildKernelAround derives the local covariance Σ_c = Σ + (μ-c)(μ-c)ᵀ
// for candidate and returns a Kernel wrapping it. Fails with a
// particle-local error if the local covariance is not positive-definite,
// and with a system error if candidate's dimension differs from the
// builder's.
func (b *Builder[P]) BuildKernelAround(candidate P) (kernel.Kernel[P], error) {
	v := candidate.ToVector()
	d := len(v)
	if d != len(b.weightedMean) {
		return nil, abcderr.Systemf("candidate vector dimension mismatch: want %d got %d", len(b.weightedMean), d)
	}

	diff := make([]float64, d)
	for i := range v {
		diff[i] = b.weightedMean[i] - v[i]
	}

	local := mat.NewSymDense(d, nil)
	for i := 0; i < d; i++ {
		for j := i; j < d; j++ {
			local.SetSym(i, j, b.weightedCov.At(i, j)+diff[i]*diff[j])
		}
	}

	var chol mat.Cholesky
	if ok := chol.Factorize(local); !ok {
		return nil, abcderr.Particlef("local covariance around candidate is not positive-definite")
	}
	var lower mat.TriDense
	chol.LTo(&lower)

	// distmv.NewNormal requires a *rand.Rand at construction but we only
	// ever use the returned Normal for LogProb (density evaluation), never
	// for .Rand(); sampling is done manually below via the Cholesky factor
	// so that Perturb can take its rng per call, which distmv's bound
	// source does not allow.
	normal, ok := distmv.NewNormal(make([]float64, d), local, rand.New(rand.NewSource(1)))
	if !ok {
		return nil, abcderr.Particlef("local covariance around candidate is not positive-definite")
	}

	return &Kernel[P]{dim: d, lower: &lower, normal: normal, factory: b.factory}, nil
}

// Kernel is the multivariate normal N(vec(c), Σ_c) for one candidate c,
// represented by its Cholesky factor (for sampling) and a distmv.Normal
// (for density evaluation).
type Kernel[P abcd.Vector[P]] struct {
	dim     int
	lower   *mat.TriDense
	normal  *distmv.Normal
	factory abcd.Factory[P]
}

// Perturb draws δ ~ N(0, Σ_c) via the Cholesky factor and returns p+δ.
func (k *Kernel[P]) Perturb(p P, rng *rand.Rand) P {
	z := make([]float64, k.dim)
	for i := range z {
		z[i] = rng.NormFloat64()
	}
	zVec := mat.NewVecDense(k.dim, z)

	delta := mat.NewVecDense(k.dim, nil)
	delta.MulVec(k.lower, zVec)

	deltaP, err := k.factory(delta.RawVector().Data)
	if err != nil {
		panic("olcm: factory rejected a perturbation vector of correct dimension: " + err.Error())
	}
	return p.Add(deltaP)
}

// PertDensity evaluates the PDF of N(0, Σ_c) at vec(to)-vec(from).
func (k *Kernel[P]) PertDensity(from, to P) float64 {
	fv := from.ToVector()
	tv := to.ToVector()
	diff := make([]float64, len(fv))
	for i := range fv {
		diff[i] = tv[i] - fv[i]
	}
	return math.Exp(k.normal.LogProb(diff))
}
