package workpool

import (
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRange_CoversEveryIndexOnce(t *testing.T) {
	for _, workers := range []int{1, 2, 3, 8} {
		hits := make([]int32, 1001)
		err := Range(workers, len(hits), func(lo, hi int) error {
			for i := lo; i < hi; i++ {
				atomic.AddInt32(&hits[i], 1)
			}
			return nil
		})
		require.NoError(t, err)
		for i, h := range hits {
			require.Equal(t, int32(1), h, "workers=%d index=%d", workers, i)
		}
	}
}

func TestRange_Empty(t *testing.T) {
	called := false
	require.NoError(t, Range(4, 0, func(int, int) error {
		called = true
		return nil
	}))
	assert.False(t, called)
}

func TestRange_PropagatesError(t *testing.T) {
	boom := errors.New("boom")
	err := Range(4, 100, func(lo, hi int) error {
		if lo == 0 {
			return boom
		}
		return nil
	})
	assert.ErrorIs(t, err, boom)
}
