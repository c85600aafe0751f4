package loader

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	lgerrors "github.com/tallyhq/ledgergate/errors"
)

func TestLoadBatchesConcurrentCalls(t *testing.T) {
	var batches atomic.Int64

	l := New(Config{Wait: 10 * time.Millisecond, MaxBatch: 100},
		func(_ context.Context, keys []string) (map[string]int, error) {
			batches.Add(1)
			out := make(map[string]int, len(keys))
			for i, k := range keys {
				out[k] = len(k) * (i + 1)
			}
			return out, nil
		})

	var wg sync.WaitGroup
	results := make([]int, 5)
	keys := []string{"a", "bb", "ccc", "a", "bb"}
	for i, k := range keys {
		wg.Add(1)
		go func(i int, k string) {
			defer wg.Done()
			v, err := l.Load(context.Background(), k)
			require.NoError(t, err)
			results[i] = v
		}(i, k)
	}
	wg.Wait()

	// Duplicate keys share one batch slot and one result
	assert.Equal(t, int64(1), batches.Load())
	assert.Equal(t, results[0], results[3])
	assert.Equal(t, results[1], results[4])
}

func TestLoadDispatchesWhenBatchFull(t *testing.T) {
	keysSeen := make(chan int, 2)

	l := New(Config{Wait: time.Hour, MaxBatch: 2},
		func(_ context.Context, keys []int) (map[int]int, error) {
			keysSeen <- len(keys)
			out := make(map[int]int, len(keys))
			for _, k := range keys {
				out[k] = k * 10
			}
			return out, nil
		})

	var wg sync.WaitGroup
	for i := 1; i <= 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			v, err := l.Load(context.Background(), i)
			require.NoError(t, err)
			assert.Equal(t, i*10, v)
		}(i)
	}
	wg.Wait()

	// The hour-long wait never elapsed; MaxBatch triggered the dispatch
	assert.Equal(t, 2, <-keysSeen)
}

func TestLoadMissingKey(t *testing.T) {
	l := New(DefaultConfig(), func(_ context.Context, keys []string) (map[string]string, error) {
		return map[string]string{}, nil
	})

	_, err := l.Load(context.Background(), "absent")
	require.Error(t, err)
	assert.True(t, errors.Is(err, lgerrors.ErrNotFound))
}

func TestLoadBatchError(t *testing.T) {
	boom := errors.New("store down")
	l := New(DefaultConfig(), func(_ context.Context, _ []string) (map[string]string, error) {
		return nil, boom
	})

	_, err := l.Load(context.Background(), "k")
	assert.True(t, errors.Is(err, boom))
}

func TestLoadContextCancelled(t *testing.T) {
	l := New(Config{Wait: time.Hour}, func(_ context.Context, keys []string) (map[string]string, error) {
		return map[string]string{}, nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Load(ctx, "k")
	assert.True(t, errors.Is(err, context.Canceled))
}

func TestSequentialBatches(t *testing.T) {
	var batches atomic.Int64
	l := New(Config{Wait: time.Millisecond, MaxBatch: 10},
		func(_ context.Context, keys []string) (map[string]bool, error) {
			batches.Add(1)
			out := make(map[string]bool, len(keys))
			for _, k := range keys {
				out[k] = true
			}
			return out, nil
		})

	v, err := l.Load(context.Background(), "first")
	require.NoError(t, err)
	assert.True(t, v)

	v, err = l.Load(context.Background(), "second")
	require.NoError(t, err)
	assert.True(t, v)

	assert.Equal(t, int64(2), batches.Load())
}
