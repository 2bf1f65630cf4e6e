package entropy

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/talgya/seihrd/internal/simerr"
)

func TestStream_SameSeedSameSequence(t *testing.T) {
	a, b := NewStream(7), NewStream(7)
	for i := 0; i < 100; i++ {
		require.Equal(t, a.Uniform(), b.Uniform())
	}

	sa, err := a.SampleKOfN(50, 10)
	require.NoError(t, err)
	sb, err := b.SampleKOfN(50, 10)
	require.NoError(t, err)
	assert.Equal(t, sa, sb)
}

func TestStream_DifferentSeedsDiverge(t *testing.T) {
	a, b := NewStream(1), NewStream(2)
	same := 0
	for i := 0; i < 20; i++ {
		if a.Uniform() == b.Uniform() {
			same++
		}
	}
	assert.Less(t, same, 20)
}

func TestStream_UniformRange(t *testing.T) {
	s := NewStream(99)
	for i := 0; i < 10000; i++ {
		u := s.Uniform()
		require.GreaterOrEqual(t, u, 0.0)
		require.Less(t, u, 1.0)
	}
}

func TestStream_BernoulliClampsAndConsumesOneDraw(t *testing.T) {
	s, ref := NewStream(3), NewStream(3)

	assert.False(t, s.Bernoulli(0))
	ref.Uniform()
	assert.True(t, s.Bernoulli(1))
	ref.Uniform()
	assert.False(t, s.Bernoulli(-2))
	ref.Uniform()
	assert.True(t, s.Bernoulli(5))
	ref.Uniform()
	assert.False(t, s.Bernoulli(math.NaN()))
	ref.Uniform()

	// Both streams must still be aligned.
	assert.Equal(t, ref.Uniform(), s.Uniform())
}

func TestStream_BernoulliMatchesUniform(t *testing.T) {
	s, ref := NewStream(11), NewStream(11)
	for i := 0; i < 200; i++ {
		assert.Equal(t, ref.Uniform() < 0.3, s.Bernoulli(0.3))
	}
}

func TestStream_SampleKOfN(t *testing.T) {
	s := NewStream(5)
	for _, tc := range []struct{ n, k int }{{10, 0}, {10, 1}, {10, 5}, {10, 10}, {1000, 999}} {
		got, err := s.SampleKOfN(tc.n, tc.k)
		require.NoError(t, err)
		require.Len(t, got, tc.k)
		seen := map[int]bool{}
		for _, v := range got {
			require.GreaterOrEqual(t, v, 0)
			require.Less(t, v, tc.n)
			require.False(t, seen[v], "duplicate index %d", v)
			seen[v] = true
		}
	}
}

func TestStream_SampleKOfNRejectsBadArgs(t *testing.T) {
	s := NewStream(5)
	_, err := s.SampleKOfN(3, 4)
	assert.ErrorIs(t, err, simerr.ErrInvalidParameter)
	_, err = s.SampleKOfN(3, -1)
	assert.ErrorIs(t, err, simerr.ErrInvalidParameter)
	_, err = s.SampleKOfN(-1, 0)
	assert.ErrorIs(t, err, simerr.ErrInvalidParameter)
}

func TestDerive_KeysAreIndependentAndStable(t *testing.T) {
	a := Derive(42, 3, 17, OpProgression).Uniform()
	b := Derive(42, 3, 17, OpProgression).Uniform()
	assert.Equal(t, a, b)

	assert.NotEqual(t, a, Derive(42, 3, 17, OpTransmission).Uniform())
	assert.NotEqual(t, a, Derive(42, 4, 17, OpProgression).Uniform())
	assert.NotEqual(t, a, Derive(42, 3, 18, OpProgression).Uniform())
	assert.NotEqual(t, a, Derive(43, 3, 17, OpProgression).Uniform())
}

func TestShared_ReturnsSameStream(t *testing.T) {
	sh := NewShared(1)
	assert.Same(t, sh.For(1, 2, OpContact), sh.For(9, 9, OpProgression))
}

func TestNewSeed(t *testing.T) {
	seed, err := NewSeed()
	require.NoError(t, err)
	assert.Greater(t, seed, int64(0))
}
