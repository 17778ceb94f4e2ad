package pool

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPreservesOrder(t *testing.T) {
	inputs := []int{5, 1, 4, 2, 3}
	results := Map(context.Background(), 3, inputs, func(_ context.Context, n int) (string, error) {
		time.Sleep(time.Duration(n) * time.Millisecond)
		return fmt.Sprintf("item-%d", n), nil
	})

	require.Len(t, results, len(inputs))
	for i, n := range inputs {
		assert.NoError(t, results[i].Err)
		assert.Equal(t, fmt.Sprintf("item-%d", n), results[i].Value)
	}
}

func TestMapBoundsConcurrency(t *testing.T) {
	var running, peak atomic.Int32
	inputs := make([]int, 20)
	Map(context.Background(), 4, inputs, func(_ context.Context, _ int) (struct{}, error) {
		n := running.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(2 * time.Millisecond)
		running.Add(-1)
		return struct{}{}, nil
	})
	assert.LessOrEqual(t, peak.Load(), int32(4))
	assert.Positive(t, peak.Load())
}

func TestMapFailureDoesNotCancelSiblings(t *testing.T) {
	boom := errors.New("boom")
	results := Map(context.Background(), 2, []int{1, 2, 3}, func(ctx context.Context, n int) (int, error) {
		if n == 1 {
			return 0, boom
		}
		time.Sleep(5 * time.Millisecond)
		if err := ctx.Err(); err != nil {
			return 0, err
		}
		return n * 10, nil
	})

	assert.ErrorIs(t, results[0].Err, boom)
	assert.Equal(t, 20, results[1].Value)
	assert.Equal(t, 30, results[2].Value)
}

func TestMapCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls atomic.Int32
	results := Map(ctx, 2, []string{"a", "b"}, func(context.Context, string) (int, error) {
		calls.Add(1)
		return 1, nil
	})
	assert.Zero(t, calls.Load())
	for _, r := range results {
		assert.ErrorIs(t, r.Err, context.Canceled)
	}
}

func TestMapEmpty(t *testing.T) {
	results := Map(context.Background(), 0, []int(nil), func(context.Context, int) (int, error) { return 0, nil })
	assert.Empty(t, results)
}
