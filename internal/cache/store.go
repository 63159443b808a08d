package cache

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/deliverly/adminsync/internal/metrics"
)

// DefaultGCAfter applies to entries whose policy leaves GCAfter unset.
const DefaultGCAfter = 5 * time.Minute

// Store is the keyed cache every list and detail view renders from. One
// instance is shared by all consumers; it is constructed explicitly and
// injected, never a package global, so tests can build isolated stores.
//
// Reads are stale-while-revalidate: a stale entry answers immediately from
// cache while one background refetch runs. Concurrent readers of a
// namespace with a fetch in flight join that fetch; exactly one network
// call is made no matter how many components mount at once.
type Store struct {
	mu      sync.RWMutex
	entries map[string]*entry
	logger  *zap.Logger
	metrics *metrics.Metrics
	now     func() time.Time

	// Statistics (accessed atomically)
	reads  uint64
	writes uint64
}

// Option configures a Store.
type Option func(*Store)

// WithClock overrides the time source, used by staleness and GC tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// New creates an empty store.
func New(logger *zap.Logger, m *metrics.Metrics, opts ...Option) *Store {
	s := &Store{
		entries: make(map[string]*entry),
		logger:  logger.Named("cache"),
		metrics: m,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetOrFetch returns the data for ns, fetching it if the entry is missing,
// past its staleness window, invalidated, or errored. A Fresh entry answers
// without network I/O. A stale entry with data answers immediately and
// revalidates in the background. Callers with no cached data await the
// in-flight fetch; ctx cancels only the wait, never the fetch itself.
func (s *Store) GetOrFetch(ctx context.Context, ns Namespace, fetch FetchFunc, policy Policy) Result {
	atomic.AddUint64(&s.reads, 1)
	if policy.GCAfter == 0 {
		policy.GCAfter = DefaultGCAfter
	}

	key := ns.Key()
	s.mu.Lock()
	now := s.now()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{ns: ns, status: StatusIdle}
		s.entries[key] = e
		s.metrics.CacheEntries.Set(float64(len(s.entries)))
	}
	e.policy = policy
	e.lastAccessedAt = now

	// Staleness is evaluated lazily at read time.
	if e.status == StatusFresh && now.Sub(e.lastFetchedAt) >= policy.StaleAfter {
		e.status = StatusStale
	}

	if e.status == StatusFresh {
		data := e.data
		s.mu.Unlock()
		s.metrics.CacheHits.Inc()
		return Result{Data: data, Status: StatusFresh}
	}

	if e.hasData {
		// Stale-while-revalidate: serve what we have, refresh behind it.
		if e.inflight == nil {
			inf := s.beginFetchLocked(e)
			go s.runFetch(context.WithoutCancel(ctx), key, e, inf, fetch)
		}
		data, status, err := e.data, e.status, e.err
		s.mu.Unlock()
		s.metrics.CacheStale.Inc()
		if status != StatusError {
			err = nil
		}
		return Result{Data: data, Status: status, Err: err}
	}

	// Nothing cached yet: first fetch, or a retry after a failed first
	// fetch. Join the in-flight request if one exists.
	inf := e.inflight
	if inf == nil {
		inf = s.beginFetchLocked(e)
		go s.runFetch(context.WithoutCancel(ctx), key, e, inf, fetch)
		s.metrics.CacheMisses.Inc()
	}
	s.mu.Unlock()

	select {
	case <-inf.done:
		if inf.err != nil {
			return Result{Status: StatusError, Err: inf.err}
		}
		return Result{Data: inf.data, Status: StatusFresh}
	case <-ctx.Done():
		// The fetch is abandoned, not aborted; its result still lands in
		// the entry for the next reader.
		return Result{Status: StatusFetching, Err: ctx.Err()}
	}
}

// beginFetchLocked allocates the next fetch sequence number and installs the
// in-flight marker. Caller holds s.mu.
func (s *Store) beginFetchLocked(e *entry) *inflight {
	e.nextSeq++
	inf := &inflight{seq: e.nextSeq, done: make(chan struct{})}
	e.inflight = inf
	if !e.hasData {
		e.status = StatusFetching
	}
	return inf
}

// runFetch executes one fetch and applies its result. A completion whose
// sequence number is not newer than the last applied one is discarded, so
// out-of-order completions cannot roll data backwards. A completion for a
// fetch that started before the latest invalidation lands as Stale, not
// Fresh, so the invalidation is not lost.
func (s *Store) runFetch(ctx context.Context, key string, e *entry, inf *inflight, fetch FetchFunc) {
	data, err := fetch(ctx)
	inf.data, inf.err = data, err
	defer close(inf.done)

	s.mu.Lock()
	defer s.mu.Unlock()

	if e.inflight == inf {
		e.inflight = nil
	}

	if inf.seq <= e.appliedSeq {
		s.metrics.FetchDiscarded.Inc()
		s.logger.Debug("Discarding out-of-order fetch completion",
			zap.String("namespace", e.ns.String()),
			zap.Uint64("seq", inf.seq),
			zap.Uint64("applied_seq", e.appliedSeq))
		return
	}
	e.appliedSeq = inf.seq

	if err != nil {
		// Keep last-good data so a transient failure does not blank a
		// previously successful view.
		e.err = err
		e.status = StatusError
		s.metrics.FetchErrors.Inc()
		s.logger.Warn("Fetch failed",
			zap.String("namespace", e.ns.String()),
			zap.Error(err))
		return
	}

	atomic.AddUint64(&s.writes, 1)
	e.data = data
	e.hasData = true
	e.err = nil
	e.lastFetchedAt = s.now()
	if inf.seq <= e.staleSeq {
		e.status = StatusStale
	} else {
		e.status = StatusFresh
	}
}

// Invalidate marks every entry whose namespace starts with prefix as Stale,
// regardless of age. It never fetches: the next GetOrFetch against each
// entry does, so unmounted views cost nothing. Returns the number of
// entries affected.
func (s *Store) Invalidate(prefix Namespace) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	affected := 0
	for _, e := range s.entries {
		if !e.ns.HasPrefix(prefix) {
			continue
		}
		// Any fetch already in flight predates this invalidation and must
		// not complete as Fresh.
		e.staleSeq = e.nextSeq
		if e.status == StatusFresh {
			e.status = StatusStale
		}
		affected++
	}

	if affected > 0 {
		s.metrics.Invalidations.Add(float64(affected))
		s.logger.Debug("Invalidated namespace prefix",
			zap.String("prefix", prefix.String()),
			zap.Int("entries", affected))
	}
	return affected
}

// Subscribe registers an active reader of ns, pinning its entry against
// garbage collection. An entry is created on first subscribe if the
// namespace has never been read.
func (s *Store) Subscribe(ns Namespace) {
	key := ns.Key()
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[key]
	if !ok {
		e = &entry{ns: ns, status: StatusIdle}
		s.entries[key] = e
		s.metrics.CacheEntries.Set(float64(len(s.entries)))
	}
	e.subscribers++
	e.lastAccessedAt = s.now()
}

// Unsubscribe drops one active reader of ns. It only decrements the count;
// an in-flight fetch is left to finish and the GC window starts now.
func (s *Store) Unsubscribe(ns Namespace) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.entries[ns.Key()]; ok && e.subscribers > 0 {
		e.subscribers--
		e.lastAccessedAt = s.now()
	}
}

// Sweep evicts entries that have had zero subscribers for longer than their
// GC window. Entries with subscribers or an in-flight fetch are never
// evicted regardless of age. Returns the number of entries removed.
func (s *Store) Sweep() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	removed := 0
	for key, e := range s.entries {
		if e.subscribers > 0 || e.inflight != nil {
			continue
		}
		gcAfter := e.policy.GCAfter
		if gcAfter == 0 {
			gcAfter = DefaultGCAfter
		}
		if now.Sub(e.lastAccessedAt) > gcAfter {
			delete(s.entries, key)
			removed++
		}
	}

	if removed > 0 {
		s.metrics.CacheEvictions.Add(float64(removed))
		s.metrics.CacheEntries.Set(float64(len(s.entries)))
		s.logger.Info("Swept idle cache entries",
			zap.Int("removed", removed),
			zap.Int("remaining", len(s.entries)))
	}
	return removed
}

// RunSweeper sweeps on a fixed interval until ctx is cancelled. Interval
// sweeps bound GC overhead; there are no per-entry timers.
func (s *Store) RunSweeper(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sweep()
		}
	}
}

// Status reports the current status of the entry for ns, if one exists.
func (s *Store) Status(ns Namespace) (Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.entries[ns.Key()]
	if !ok {
		return StatusIdle, false
	}
	// Reflect lazy staleness without mutating under a read lock.
	if e.status == StatusFresh && e.policy.StaleAfter > 0 &&
		s.now().Sub(e.lastFetchedAt) >= e.policy.StaleAfter {
		return StatusStale, true
	}
	return e.status, true
}

// Subscribers returns the subscriber count for ns.
func (s *Store) Subscribers(ns Namespace) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if e, ok := s.entries[ns.Key()]; ok {
		return e.subscribers
	}
	return 0
}

// Len returns the number of entries currently held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Stats returns entry count plus cumulative read and write counters.
func (s *Store) Stats() (entries, reads, writes uint64) {
	s.mu.RLock()
	entries = uint64(len(s.entries))
	s.mu.RUnlock()

	reads = atomic.LoadUint64(&s.reads)
	writes = atomic.LoadUint64(&s.writes)
	return entries, reads, writes
}
