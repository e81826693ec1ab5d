// Package storage defines the versioned object store contract (§4.4)
// the SMC driver coordinates through: particle persistence, accepted/
// rejected counting, and atomic generation flush.
package storage

import (
	"context"
	"errors"

	abcd "github.com/tearne/abcd-go"
	"github.com/tearne/abcd-go/particle"
)

// ErrGenerationAlreadyExists is returned by Store.SaveNewGen when
// another worker has already flushed the same generation number.
// Callers (the driver's flush logic) treat this as a normal race
// outcome, not a fatal error.
var ErrGenerationAlreadyExists = errors.New("generation already exists")

// Store is the storage contract the driver depends on. Every method is
// a suspension point; implementations must retry transient failures
// internally and surface only a bounded, classified error.
type Store[P abcd.Vector[P]] interface {
	// PreviousGenNumber returns the highest N such that generation N is
	// completed, or 0 if none exists yet but the cluster is initialised.
	// Absence of the init marker is a fatal infrastructure error.
	PreviousGenNumber(ctx context.Context) (uint16, error)

	// LoadPreviousGen reads and verifies the canonical (oldest) version
	// of the highest completed generation. Rejects delete markers.
	LoadPreviousGen(ctx context.Context) (particle.Generation[P], error)

	// SaveParticle writes p under the given generation number. Returns a
	// system error if genNumber is not exactly PreviousGenNumber()+1.
	// Returns a stale-generation error if the generation has since been
	// flushed by another worker.
	SaveParticle(ctx context.Context, p particle.Particle[P], genNumber uint16) (string, error)

	// NumAcceptedParticles counts accepted particle objects under the
	// next generation's accepted prefix.
	NumAcceptedParticles(ctx context.Context) (uint32, error)

	// NumRejectedParticles counts rejected particle objects under the
	// next generation's rejected prefix.
	NumRejectedParticles(ctx context.Context) (uint64, error)

	// LoadAcceptedParticles reads every object under the next
	// generation's accepted prefix.
	LoadAcceptedParticles(ctx context.Context) ([]particle.Particle[P], error)

	// SaveNewGen writes the completed-generation object. Fails if the
	// object already exists or gen.Number != PreviousGenNumber()+1.
	SaveNewGen(ctx context.Context, gen particle.Generation[P]) error
}
