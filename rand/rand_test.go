package rand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"golang.org/x/exp/rand"
)

func TestRouletteDrawNRejectsEmptyWeights(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	indices, err := RouletteDrawN(nil, 10, rng)
	assert.Error(t, err)
	assert.Nil(t, indices)
}

func TestRouletteDrawNReturnsRequestedCount(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	p := []float64{0.1, 0.7, 0.3, 0.4}
	indices, err := RouletteDrawN(p, 10, rng)
	assert.NoError(t, err)
	assert.Len(t, indices, 10)
	for _, i := range indices {
		assert.GreaterOrEqual(t, i, 0)
		assert.Less(t, i, len(p))
	}
}

func TestRouletteDrawNIsDeterministicForASeededSource(t *testing.T) {
	p := []float64{1, 1, 1, 1}
	a, err := RouletteDrawN(p, 20, rand.New(rand.NewSource(42)))
	assert.NoError(t, err)
	b, err := RouletteDrawN(p, 20, rand.New(rand.NewSource(42)))
	assert.NoError(t, err)
	assert.Equal(t, a, b)
}
