package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkerPoolRunsAllSubmittedJobs(t *testing.T) {
	pool := NewWorkerPool(4)

	const n = 50
	var wg sync.WaitGroup
	wg.Add(n)

	var mu sync.Mutex
	count := 0

	for i := 0; i < n; i++ {
		pool.Submit(func() {
			mu.Lock()
			count++
			mu.Unlock()
			wg.Done()
		})
	}

	wg.Wait()
	pool.Stop()

	require.Equal(t, n, count)
}

func TestWorkerPoolStopJoinsWorkers(t *testing.T) {
	pool := NewWorkerPool(3)
	pool.Stop()
	// A second Stop must not block or panic (idempotent via sync.Once).
	pool.Stop()
}
