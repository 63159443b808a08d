package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/deliverly/adminsync/internal/metrics"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

func newTestStore(t *testing.T, clock *fakeClock) *Store {
	t.Helper()
	opts := []Option{}
	if clock != nil {
		opts = append(opts, WithClock(clock.Now))
	}
	return New(zap.NewNop(), metrics.Nop(), opts...)
}

func countingFetch(value any) (FetchFunc, *atomic.Int64) {
	var calls atomic.Int64
	return func(context.Context) (any, error) {
		calls.Add(1)
		return value, nil
	}, &calls
}

var testPolicy = Policy{StaleAfter: time.Minute, GCAfter: 10 * time.Minute}

func TestGetOrFetchMissThenHit(t *testing.T) {
	store := newTestStore(t, nil)
	ns := NS("orders", "list").With(map[string]string{"status": "pending"})
	fetch, calls := countingFetch("orders-v1")

	res := store.GetOrFetch(context.Background(), ns, fetch, testPolicy)
	require.NoError(t, res.Err)
	assert.Equal(t, "orders-v1", res.Data)
	assert.Equal(t, StatusFresh, res.Status)
	assert.Equal(t, int64(1), calls.Load())

	// Fresh entry answers without network I/O.
	res = store.GetOrFetch(context.Background(), ns, fetch, testPolicy)
	assert.Equal(t, "orders-v1", res.Data)
	assert.Equal(t, int64(1), calls.Load())
}

func TestInvalidationCausality(t *testing.T) {
	store := newTestStore(t, nil)
	ns := NS("orders", "list")
	fetch, calls := countingFetch("orders")

	store.GetOrFetch(context.Background(), ns, fetch, testPolicy)
	require.Equal(t, int64(1), calls.Load())

	store.Invalidate(NS("orders"))
	st, ok := store.Status(ns)
	require.True(t, ok)
	assert.Equal(t, StatusStale, st)

	// The next read serves stale data and issues exactly one refetch.
	res := store.GetOrFetch(context.Background(), ns, fetch, testPolicy)
	assert.Equal(t, "orders", res.Data)
	require.Eventually(t, func() bool {
		st, _ := store.Status(ns)
		return st == StatusFresh
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, int64(2), calls.Load())
}

func TestRequestDeduplication(t *testing.T) {
	store := newTestStore(t, nil)
	ns := NS("riders", "list").With(map[string]string{"status": "active"})

	gate := make(chan struct{})
	var calls atomic.Int64
	fetch := func(context.Context) (any, error) {
		calls.Add(1)
		<-gate
		return "riders", nil
	}

	// Two components mount simultaneously with no existing entry.
	results := make(chan Result, 2)
	for i := 0; i < 2; i++ {
		go func() {
			results <- store.GetOrFetch(context.Background(), ns, fetch, testPolicy)
		}()
	}

	require.Eventually(t, func() bool { return calls.Load() == 1 }, time.Second, time.Millisecond)
	close(gate)

	for i := 0; i < 2; i++ {
		res := <-results
		require.NoError(t, res.Err)
		assert.Equal(t, "riders", res.Data)
	}
	assert.Equal(t, int64(1), calls.Load(), "concurrent mounts must produce exactly one network call")
}

func TestPrefixScoping(t *testing.T) {
	store := newTestStore(t, nil)
	t1 := NS("tickets", "detail", "T1")
	t2 := NS("tickets", "detail", "T2")
	fetch, _ := countingFetch("ticket")

	store.GetOrFetch(context.Background(), t1, fetch, testPolicy)
	store.GetOrFetch(context.Background(), t2, fetch, testPolicy)

	store.Invalidate(t1)
	st1, _ := store.Status(t1)
	st2, _ := store.Status(t2)
	assert.Equal(t, StatusStale, st1)
	assert.Equal(t, StatusFresh, st2, "sibling detail entries must stay fresh")

	store.Invalidate(NS("tickets"))
	st2, _ = store.Status(t2)
	assert.Equal(t, StatusStale, st2, "parent invalidation covers all descendants")
}

func TestStaleWhileRevalidate(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(t, clock)
	ns := NS("stats", "dashboard")

	var version atomic.Int64
	fetch := func(context.Context) (any, error) {
		return fmt.Sprintf("v%d", version.Add(1)), nil
	}

	res := store.GetOrFetch(context.Background(), ns, fetch, testPolicy)
	require.Equal(t, "v1", res.Data)

	clock.Advance(testPolicy.StaleAfter + time.Second)

	// Stale read answers immediately with the old value.
	res = store.GetOrFetch(context.Background(), ns, fetch, testPolicy)
	assert.Equal(t, "v1", res.Data)
	assert.Equal(t, StatusStale, res.Status)

	require.Eventually(t, func() bool {
		st, _ := store.Status(ns)
		return st == StatusFresh
	}, time.Second, 5*time.Millisecond)

	res = store.GetOrFetch(context.Background(), ns, fetch, testPolicy)
	assert.Equal(t, "v2", res.Data)
}

func TestFetchErrorRetainsLastGoodData(t *testing.T) {
	store := newTestStore(t, nil)
	ns := NS("kyc", "list")

	failing := false
	var mu sync.Mutex
	fetch := func(context.Context) (any, error) {
		mu.Lock()
		defer mu.Unlock()
		if failing {
			return nil, errors.New("upstream 503")
		}
		return "kyc-v1", nil
	}

	res := store.GetOrFetch(context.Background(), ns, fetch, testPolicy)
	require.Equal(t, "kyc-v1", res.Data)

	mu.Lock()
	failing = true
	mu.Unlock()
	store.Invalidate(ns)

	// Stale read still serves the last-good value; the background refetch
	// fails and parks the entry in StatusError without blanking the data.
	res = store.GetOrFetch(context.Background(), ns, fetch, testPolicy)
	assert.Equal(t, "kyc-v1", res.Data)

	require.Eventually(t, func() bool {
		st, _ := store.Status(ns)
		return st == StatusError
	}, time.Second, 5*time.Millisecond)

	res = store.GetOrFetch(context.Background(), ns, fetch, testPolicy)
	assert.Equal(t, "kyc-v1", res.Data, "transient failure must not blank a working view")
	assert.Equal(t, StatusError, res.Status)
	assert.Error(t, res.Err)
}

func TestFirstFetchErrorSurfacesToCaller(t *testing.T) {
	store := newTestStore(t, nil)
	ns := NS("payments", "stats")

	boom := errors.New("connection refused")
	res := store.GetOrFetch(context.Background(), ns, func(context.Context) (any, error) {
		return nil, boom
	}, testPolicy)

	require.Error(t, res.Err)
	assert.ErrorIs(t, res.Err, boom)
	assert.Equal(t, StatusError, res.Status)

	// Retry happens on the next explicit read, not on a timer.
	fetch, calls := countingFetch("payments")
	res = store.GetOrFetch(context.Background(), ns, fetch, testPolicy)
	require.NoError(t, res.Err)
	assert.Equal(t, "payments", res.Data)
	assert.Equal(t, int64(1), calls.Load())
}

func TestInvalidateDuringInflightFetchIsNotLost(t *testing.T) {
	store := newTestStore(t, nil)
	ns := NS("orders", "detail", "O1")

	gate := make(chan struct{})
	started := make(chan struct{})
	var once sync.Once
	fetch := func(context.Context) (any, error) {
		once.Do(func() { close(started) })
		<-gate
		return "order", nil
	}

	done := make(chan Result, 1)
	go func() {
		done <- store.GetOrFetch(context.Background(), ns, fetch, testPolicy)
	}()

	<-started
	store.Invalidate(ns)
	close(gate)

	res := <-done
	require.NoError(t, res.Err)
	assert.Equal(t, "order", res.Data)

	// The completed fetch predates the invalidation, so the entry must not
	// land Fresh.
	st, ok := store.Status(ns)
	require.True(t, ok)
	assert.Equal(t, StatusStale, st)
}

func TestGCSafety(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(t, clock)
	ns := NS("tickets", "detail", "T1")
	fetch, _ := countingFetch("ticket")

	store.Subscribe(ns)
	store.GetOrFetch(context.Background(), ns, fetch, testPolicy)

	clock.Advance(24 * time.Hour)
	assert.Equal(t, 0, store.Sweep(), "subscribed entries are never evicted regardless of age")
	assert.Equal(t, 1, store.Len())

	store.Unsubscribe(ns)
	assert.Equal(t, 0, store.Sweep(), "GC window starts at unsubscribe")

	clock.Advance(testPolicy.GCAfter + time.Second)
	assert.Equal(t, 1, store.Sweep())
	assert.Equal(t, 0, store.Len())
}

func TestSweepKeepsEntriesInsideWindow(t *testing.T) {
	clock := newFakeClock()
	store := newTestStore(t, clock)
	fetch, _ := countingFetch("x")

	store.GetOrFetch(context.Background(), NS("a"), fetch, Policy{StaleAfter: time.Minute, GCAfter: time.Hour})
	store.GetOrFetch(context.Background(), NS("b"), fetch, Policy{StaleAfter: time.Minute, GCAfter: time.Minute})

	clock.Advance(10 * time.Minute)
	assert.Equal(t, 1, store.Sweep())

	_, ok := store.Status(NS("a"))
	assert.True(t, ok, "entry with the longer window survives")
	_, ok = store.Status(NS("b"))
	assert.False(t, ok)
}

func TestStoreConcurrentAccess(t *testing.T) {
	store := newTestStore(t, nil)

	var wg sync.WaitGroup
	numGoroutines := 10
	opsPerGoroutine := 50

	wg.Add(numGoroutines * 3)
	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				ns := NS("orders", "detail", fmt.Sprintf("O%d", j%7))
				fetch, _ := countingFetch(j)
				store.GetOrFetch(context.Background(), ns, fetch, testPolicy)
			}
		}(i)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				store.Invalidate(NS("orders"))
			}
		}(i)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < opsPerGoroutine; j++ {
				ns := NS("orders", "detail", fmt.Sprintf("O%d", j%7))
				store.Subscribe(ns)
				store.Unsubscribe(ns)
				store.Sweep()
			}
		}(i)
	}
	wg.Wait()

	entries, reads, writes := store.Stats()
	t.Logf("entries: %d, reads: %d, writes: %d", entries, reads, writes)
	if reads == 0 {
		t.Error("expected read traffic")
	}
}
