package msgworker

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Dispatch no debe bloquear al caller aunque el job tarde
func TestPool_DispatchNonBlocking(t *testing.T) {
	pool := NewPool(2, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	start := time.Now()
	pool.Dispatch(Job{
		InstanceID: "wa1",
		SenderID:   "5511999999999",
		Handler: func(ctx context.Context) error {
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	})

	assert.Less(t, time.Since(start), 10*time.Millisecond)
}

// Jobs del mismo remitente se procesan en orden
func TestPool_SameSenderSequential(t *testing.T) {
	pool := NewPool(4, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	var (
		mu      sync.Mutex
		results []int
		done    = make(chan struct{})
	)

	for i := 1; i <= 5; i++ {
		val := i
		require.True(t, pool.TryDispatch(Job{
			InstanceID: "wa1",
			SenderID:   "5511999999999",
			Handler: func(ctx context.Context) error {
				time.Sleep(5 * time.Millisecond)
				mu.Lock()
				results = append(results, val)
				if len(results) == 5 {
					close(done)
				}
				mu.Unlock()
				return nil
			},
		}))
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("jobs were not processed in time")
	}

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{1, 2, 3, 4, 5}, results)
}

func TestPool_ShardIsStablePerKey(t *testing.T) {
	pool := NewPool(8, 10)

	first := pool.shardFor("wa1", "5511999999999")
	for i := 0; i < 20; i++ {
		assert.Equal(t, first, pool.shardFor("wa1", "5511999999999"))
	}
	assert.GreaterOrEqual(t, first, 0)
	assert.Less(t, first, 8)
}

func TestPool_RespectsMaxWorkers(t *testing.T) {
	maxWorkers := 3
	pool := NewPool(maxWorkers, 100)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)

	var activeCount, maxActive int32
	for i := 0; i < 10; i++ {
		pool.Dispatch(Job{
			InstanceID: "wa1",
			SenderID:   string(rune('A' + i)),
			Handler: func(ctx context.Context) error {
				current := atomic.AddInt32(&activeCount, 1)
				for {
					m := atomic.LoadInt32(&maxActive)
					if current <= m || atomic.CompareAndSwapInt32(&maxActive, m, current) {
						break
					}
				}
				time.Sleep(10 * time.Millisecond)
				atomic.AddInt32(&activeCount, -1)
				return nil
			},
		})
	}

	// Stop drena las colas antes de volver
	pool.Stop()
	assert.LessOrEqual(t, atomic.LoadInt32(&maxActive), int32(maxWorkers))
	assert.Equal(t, int64(10), pool.GetStats().TotalProcessed)
}

func TestPool_QueueFullDrops(t *testing.T) {
	pool := NewPool(1, 1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool.Start(ctx)
	defer pool.Stop()

	release := make(chan struct{})
	started := make(chan struct{})
	require.True(t, pool.TryDispatch(Job{InstanceID: "wa1", SenderID: "a", Handler: func(ctx context.Context) error {
		close(started)
		<-release
		return nil
	}}))
	<-started

	require.True(t, pool.TryDispatch(Job{InstanceID: "wa1", SenderID: "a", Handler: func(ctx context.Context) error { return nil }}))
	assert.False(t, pool.TryDispatch(Job{InstanceID: "wa1", SenderID: "a", Handler: func(ctx context.Context) error { return nil }}))
	close(release)

	assert.Equal(t, int64(1), pool.GetStats().TotalDropped)
}

func TestPool_ErrorsAndPanicsAreCounted(t *testing.T) {
	pool := NewPool(1, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ended int32
	pool.OnJobEnd = func(workerID int, key string, err error) {
		atomic.AddInt32(&ended, 1)
	}
	pool.Start(ctx)

	pool.Dispatch(Job{InstanceID: "wa1", SenderID: "a", Handler: func(ctx context.Context) error {
		return errors.New("boom")
	}})
	pool.Dispatch(Job{InstanceID: "wa1", SenderID: "a", Handler: func(ctx context.Context) error {
		panic("kaboom")
	}})
	pool.Stop()

	stats := pool.GetStats()
	assert.Equal(t, int64(2), stats.TotalErrors)
	assert.Equal(t, int64(2), stats.TotalProcessed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&ended))
}

func TestPool_DispatchAfterStopIsRejected(t *testing.T) {
	pool := NewPool(2, 10)
	pool.Start(context.Background())
	pool.Stop()

	ok := pool.TryDispatch(Job{InstanceID: "wa1", SenderID: "a", Handler: func(ctx context.Context) error { return nil }})
	assert.False(t, ok)
	assert.NotPanics(t, pool.Stop)
}
