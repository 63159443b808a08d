package cache

import (
	"context"
	"time"
)

// Status is the lifecycle state of a cache entry.
type Status int

const (
	// StatusIdle marks an entry that has been subscribed to but never read.
	StatusIdle Status = iota
	// StatusFetching marks an entry whose first fetch has not completed.
	StatusFetching
	// StatusFresh marks an entry whose data is within its staleness window.
	StatusFresh
	// StatusStale marks an entry whose data is served while a revalidation
	// is due, either by age or by explicit invalidation.
	StatusStale
	// StatusError marks an entry whose last fetch failed; last-good data is
	// retained for rendering.
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusIdle:
		return "idle"
	case StatusFetching:
		return "fetching"
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}

// FetchFunc loads authoritative data for one namespace. Filters and paging
// are closed over at registration; the call itself takes only a context.
// Fetches must be idempotent and side-effect free on the server.
type FetchFunc func(ctx context.Context) (any, error)

// Policy is the per-namespace-family staleness and eviction configuration.
// Live lists run short windows, rarely-changing detail views long ones;
// these come from configuration, not global constants.
type Policy struct {
	// StaleAfter is how long after a successful fetch the data is served
	// without revalidation.
	StaleAfter time.Duration
	// GCAfter is how long an entry with no subscribers may sit untouched
	// before a sweep evicts it.
	GCAfter time.Duration
}

// Result is what a read returns to the consumer: data (possibly stale or
// last-known-good), the entry status at read time, and the fetch error if
// the entry is in StatusError with nothing cached.
type Result struct {
	Data   any
	Status Status
	Err    error
}

// entry is the stored record for one namespace. All fields are guarded by
// the store mutex.
type entry struct {
	ns             Namespace
	data           any
	hasData        bool
	err            error
	status         Status
	policy         Policy
	lastFetchedAt  time.Time
	lastAccessedAt time.Time
	subscribers    int

	// Fetch sequencing: completions carrying a sequence number at or below
	// appliedSeq are discarded, so a slow early fetch can never overwrite
	// the result of a faster later one.
	nextSeq    uint64
	appliedSeq uint64
	// staleSeq is the highest sequence number invalidated: a fetch started
	// at or below it completes as Stale instead of Fresh, so an
	// invalidation arriving mid-fetch is never lost.
	staleSeq uint64

	// inflight is non-nil while a fetch for this namespace is running;
	// concurrent readers join it instead of issuing a second request.
	inflight *inflight
}

// inflight is one outstanding fetch shared by all callers awaiting it.
type inflight struct {
	seq  uint64
	done chan struct{}
	data any
	err  error
}
