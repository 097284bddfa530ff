package session

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSessionRegistrySIDsMonotonicAndUnique(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Stop()

	reg := NewSessionRegistry()

	first := reg.Create(pool, nil, nil, nil, 0)
	second := reg.Create(pool, nil, nil, nil, 0)

	require.Less(t, uint64(first.GetSID()), uint64(second.GetSID()))
}

func TestSessionRegistryConcurrentCreateDistinctSIDs(t *testing.T) {
	pool := NewWorkerPool(4)
	defer pool.Stop()

	reg := NewSessionRegistry()

	const n = 200
	sids := make(chan SID, n)

	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func() {
			defer wg.Done()
			sess := reg.Create(pool, nil, nil, nil, 0)
			sids <- sess.GetSID()
		}()
	}
	wg.Wait()
	close(sids)

	seen := make(map[SID]struct{}, n)
	for sid := range sids {
		_, dup := seen[sid]
		require.False(t, dup, "duplicate sid %d", sid)
		seen[sid] = struct{}{}
	}
	require.Len(t, seen, n)
}

func TestSessionRegistryLookupAndRemove(t *testing.T) {
	pool := NewWorkerPool(1)
	defer pool.Stop()

	reg := NewSessionRegistry()
	sess := reg.Create(pool, nil, nil, nil, 0)

	found, ok := reg.Lookup(sess.GetSID())
	require.True(t, ok)
	require.Same(t, sess, found)

	reg.Remove(sess.GetSID())
	_, ok = reg.Lookup(sess.GetSID())
	require.False(t, ok)
}
