package fsstore

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tearne/abcd-go/abcderr"
	"github.com/tearne/abcd-go/particle"
)

type scalarP struct{ V float64 }

func (p scalarP) ToVector() []float64   { return []float64{p.V} }
func (p scalarP) Add(o scalarP) scalarP { return scalarP{p.V + o.V} }
func (p scalarP) Sub(o scalarP) scalarP { return scalarP{p.V - o.V} }
func (p scalarP) Clone() scalarP        { return p }

func scalarFactory(v []float64) (scalarP, error) { return scalarP{v[0]}, nil }

func TestPreviousGenNumberFailsWithoutInitMarker(t *testing.T) {
	dir := t.TempDir()
	s := New[scalarP](dir, scalarFactory)

	_, err := s.PreviousGenNumber(context.Background())
	require.Error(t, err)
}

func TestPreviousGenNumberZeroAfterInit(t *testing.T) {
	dir := t.TempDir()
	s := New[scalarP](dir, scalarFactory)
	require.NoError(t, s.Init())

	n, err := s.PreviousGenNumber(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint16(0), n)
}

func TestSaveParticleRejectsWrongGenNumber(t *testing.T) {
	dir := t.TempDir()
	s := New[scalarP](dir, scalarFactory)
	require.NoError(t, s.Init())

	p := particle.Particle[scalarP]{Parameters: scalarP{1}, Score: 0.1, Weight: 1}
	_, err := s.SaveParticle(context.Background(), p, 5)
	require.Error(t, err)
	assert.True(t, abcderr.Is(err, abcderr.System))
}

func TestSaveParticleAndCountAccepted(t *testing.T) {
	dir := t.TempDir()
	s := New[scalarP](dir, scalarFactory)
	require.NoError(t, s.Init())
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		p := particle.Particle[scalarP]{Parameters: scalarP{float64(i)}, Score: 0.1, Weight: 1}
		_, err := s.SaveParticle(ctx, p, 1)
		require.NoError(t, err)
	}
	rejected := particle.Particle[scalarP]{Parameters: scalarP{9}, Score: 9.9, Weight: 0}
	_, err := s.SaveParticle(ctx, rejected, 1)
	require.NoError(t, err)

	accepted, err := s.NumAcceptedParticles(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint32(3), accepted)

	rejectedCount, err := s.NumRejectedParticles(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rejectedCount)
}

func TestSaveAndLoadGeneration(t *testing.T) {
	dir := t.TempDir()
	s := New[scalarP](dir, scalarFactory)
	require.NoError(t, s.Init())
	ctx := context.Background()

	gen := particle.Generation[scalarP]{
		Pop: particle.Population[scalarP]{
			Acceptance: 0.5,
			NormalisedParticles: []particle.Particle[scalarP]{
				{Parameters: scalarP{1}, Score: 0.1, Weight: 1.0},
			},
		},
		Number:           1,
		NextGenTolerance: 0.2,
	}
	require.NoError(t, s.SaveNewGen(ctx, gen))

	n, err := s.PreviousGenNumber(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint16(1), n)

	loaded, err := s.LoadPreviousGen(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen, loaded)
}

func TestSaveNewGenRejectsDuplicateFlush(t *testing.T) {
	dir := t.TempDir()
	s := New[scalarP](dir, scalarFactory)
	require.NoError(t, s.Init())
	ctx := context.Background()

	gen := particle.Generation[scalarP]{
		Pop:              particle.Population[scalarP]{NormalisedParticles: []particle.Particle[scalarP]{{Parameters: scalarP{1}, Score: 0.1, Weight: 1}}},
		Number:           1,
		NextGenTolerance: 1.0,
	}
	require.NoError(t, s.SaveNewGen(ctx, gen))

	err := s.SaveNewGen(ctx, gen)
	require.ErrorIs(t, err, ErrGenerationAlreadyExists)
}

func TestConcurrentFlushExclusivity(t *testing.T) {
	dir := t.TempDir()
	s := New[scalarP](dir, scalarFactory)
	require.NoError(t, s.Init())
	ctx := context.Background()

	gen := particle.Generation[scalarP]{
		Pop:              particle.Population[scalarP]{NormalisedParticles: []particle.Particle[scalarP]{{Parameters: scalarP{1}, Score: 0.1, Weight: 1}}},
		Number:           1,
		NextGenTolerance: 1.0,
	}

	const workers = 8
	var wg sync.WaitGroup
	results := make([]error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = s.SaveNewGen(ctx, gen)
		}(i)
	}
	wg.Wait()

	successes := 0
	for _, err := range results {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrGenerationAlreadyExists)
		}
	}
	assert.Equal(t, 1, successes)

	loaded, err := s.LoadPreviousGen(ctx)
	require.NoError(t, err)
	assert.Equal(t, gen, loaded)
}

func TestStaleGenerationOnSaveAfterFlush(t *testing.T) {
	dir := t.TempDir()
	s := New[scalarP](dir, scalarFactory)
	require.NoError(t, s.Init())
	ctx := context.Background()

	gen := particle.Generation[scalarP]{
		Pop:              particle.Population[scalarP]{NormalisedParticles: []particle.Particle[scalarP]{{Parameters: scalarP{1}, Score: 0.1, Weight: 1}}},
		Number:           1,
		NextGenTolerance: 1.0,
	}
	require.NoError(t, s.SaveNewGen(ctx, gen))

	p := particle.Particle[scalarP]{Parameters: scalarP{2}, Score: 0.1, Weight: 1}
	_, err := s.SaveParticle(ctx, p, 1)
	require.Error(t, err)
	assert.True(t, abcderr.Is(err, abcderr.StaleGeneration))
}

func TestLoadPreviousGenRejectsDeleteMarker(t *testing.T) {
	dir := t.TempDir()
	s := New[scalarP](dir, scalarFactory)
	require.NoError(t, s.Init())

	versionsDir := s.genVersionsDir(1)
	require.NoError(t, os.MkdirAll(versionsDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(versionsDir, "00000000000000000001-000001.deleted"), nil, 0o644))

	_, err := s.LoadPreviousGen(context.Background())
	require.Error(t, err)
	assert.True(t, abcderr.Is(err, abcderr.System))
}
