// Package consumers holds the UI-facing accessors, one per business entity
// domain. Each declares its namespaces, fetch functions and staleness
// policies once; all reads and writes flow through the shared cache store.
package consumers

import (
	"context"
	"fmt"

	"github.com/deliverly/adminsync/internal/cache"
)

// Policies groups the per-namespace-family staleness configuration. Live
// lists run short windows, detail views long ones; values come from
// configuration.
type Policies struct {
	LiveList cache.Policy
	Detail   cache.Policy
	Stats    cache.Policy
}

// Query is one declared read: a namespace, a fetch function and a policy.
// A view mounts it for as long as it renders the data and reads through
// Get; Mount/Unmount drive the entry's subscriber count so garbage
// collection never evicts data something is looking at.
type Query[T any] struct {
	store  *cache.Store
	ns     cache.Namespace
	policy cache.Policy
	fetch  cache.FetchFunc
}

func newQuery[T any](store *cache.Store, ns cache.Namespace, policy cache.Policy, fetch func(ctx context.Context) (T, error)) *Query[T] {
	return &Query[T]{
		store:  store,
		ns:     ns,
		policy: policy,
		fetch: func(ctx context.Context) (any, error) {
			return fetch(ctx)
		},
	}
}

// Mount registers this view as an active reader of the namespace.
func (q *Query[T]) Mount() {
	q.store.Subscribe(q.ns)
}

// Unmount drops the active-reader registration. It does not cancel an
// in-flight fetch; the result still lands in the cache for the next reader.
func (q *Query[T]) Unmount() {
	q.store.Unsubscribe(q.ns)
}

// Get reads through the cache: fresh data without network I/O, stale data
// immediately with a background revalidation, or an awaited first fetch.
func (q *Query[T]) Get(ctx context.Context) (T, cache.Status, error) {
	res := q.store.GetOrFetch(ctx, q.ns, q.fetch, q.policy)
	if res.Data == nil {
		var zero T
		return zero, res.Status, res.Err
	}
	data, ok := res.Data.(T)
	if !ok {
		var zero T
		return zero, cache.StatusError, fmt.Errorf("consumers: namespace %s holds %T, not %T", q.ns, res.Data, zero)
	}
	return data, res.Status, res.Err
}

// Refetch invalidates this query's own namespace and reads again, for a
// manual refresh control.
func (q *Query[T]) Refetch(ctx context.Context) (T, cache.Status, error) {
	q.store.Invalidate(q.ns)
	return q.Get(ctx)
}

// Namespace exposes the underlying key, mostly for logging and tests.
func (q *Query[T]) Namespace() cache.Namespace {
	return q.ns
}
