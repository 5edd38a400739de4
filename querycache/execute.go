package querycache

import (
	"context"
	"time"

	"github.com/goliatone/go-supply-cache/cache"
	"github.com/goliatone/go-supply-cache/retry"
	"go.uber.org/zap"
)

// StaleMessage is the advisory attached to results served from an expired entry after
// the remote read failed.
const StaleMessage = "showing cached data: the latest results could not be loaded"

// Request describes one parameterized read.
type Request struct {
	Operation string
	Filters   map[string]any
	Preset    string
	UseCache  bool
	TTL       time.Duration
	Offset    int
	Limit     int
}

// ID returns the query id of the request. Offset and limit take part in the id so
// pages never share an entry.
func (r Request) ID() string {
	filters := make(map[string]any, len(r.Filters)+2)
	for k, v := range r.Filters {
		filters[k] = v
	}
	if r.Offset > 0 {
		filters["offset"] = r.Offset
	}
	if r.Limit > 0 {
		filters["limit"] = r.Limit
	}
	return cache.QueryID(operationName(r.Operation), filters, r.Preset)
}

// Page is what a fetcher returns. TotalCount is the size of the full result set when
// the remote store reports it.
type Page[T any] struct {
	Data       []T
	TotalCount *int
}

// Fetcher performs the remote read.
type Fetcher[T any] func(ctx context.Context) (Page[T], error)

// Result is a query result, fresh or cached.
type Result[T any] struct {
	Data       []T     `json:"data"`
	Count      int     `json:"count"`
	TotalCount *int    `json:"totalCount,omitempty"`
	HasMore    bool    `json:"hasMore"`
	NextOffset *int    `json:"nextOffset,omitempty"`
	FromCache  bool    `json:"-"`
	Stale      bool    `json:"-"`
	Message    string  `json:"-"`
	Metrics    *Metric `json:"-"`
}

// Execute serves req from the cache when a fresh entry exists, otherwise fetches it
// through the retry policy (and breaker, when configured) and caches the result. When
// the fetch fails, an entry younger than twice the TTL is served with Stale set. With
// no fallback the error is returned next to an empty result.
//
// Concurrent calls for the same query id are rejected with ErrQueryInProgress.
func Execute[T any](ctx context.Context, qc *QueryCache, req Request, fetch Fetcher[T]) (Result[T], error) {
	id := req.ID()
	ttl := ttlOrDefault(req.TTL, qc.cfg.DefaultTTL)
	metric := Metric{QueryID: id, StartTime: qc.now()}

	if req.UseCache {
		if cached, ok := lookup[T](ctx, qc, id, ttl, true); ok {
			cached.FromCache = true
			qc.finish(&metric, true, cached.Count, nil)
			cached.Metrics = &metric
			return cached, nil
		}
	}

	if _, running := qc.inflight.LoadOrStore(id, struct{}{}); running {
		// The running execution owns this id's metric; the rejection is not recorded.
		qc.logger.Debug("query already in progress", zap.String("query_id", id))
		metric.EndTime = qc.now()
		metric.Duration = metric.EndTime.Sub(metric.StartTime)
		metric.Error = ErrQueryInProgress.Error()
		return Result[T]{Data: []T{}, Metrics: &metric}, ErrQueryInProgress
	}
	defer qc.inflight.Delete(id)

	op := func(ctx context.Context) (Page[T], error) {
		if qc.breaker != nil {
			return retry.Guard[Page[T]](ctx, qc.breaker, fetch)
		}
		return fetch(ctx)
	}

	outcome := retry.Execute(ctx, op, qc.retry)
	if outcome.Success {
		result := paginate(outcome.Data, req)
		Set(ctx, qc, id, result)
		qc.finish(&metric, false, result.Count, nil)
		result.Metrics = &metric
		return result, nil
	}

	if cached, ok := lookup[T](ctx, qc, id, 2*ttl, false); ok {
		qc.logger.Warn("serving stale query result",
			zap.String("query_id", id),
			zap.Int("attempts", outcome.Attempts),
			zap.Error(outcome.Err),
		)
		cached.FromCache = true
		cached.Stale = true
		cached.Message = StaleMessage
		qc.finish(&metric, true, cached.Count, outcome.Err)
		cached.Metrics = &metric
		return cached, nil
	}

	qc.logger.Error("query failed without cached fallback",
		zap.String("query_id", id),
		zap.Int("attempts", outcome.Attempts),
		zap.Error(outcome.Err),
	)
	qc.finish(&metric, false, 0, outcome.Err)
	return Result[T]{Data: []T{}, Metrics: &metric}, outcome.Err
}

// Get returns the entry for id when it was written less than ttl ago and no stale
// marker covers it.
func Get[T any](ctx context.Context, qc *QueryCache, id string, ttl time.Duration) (Result[T], bool) {
	return lookup[T](ctx, qc, id, ttlOrDefault(ttl, qc.cfg.DefaultTTL), true)
}

// Set writes result under id, stamps it and sweeps old entries. It reports whether the
// entry landed.
func Set[T any](ctx context.Context, qc *QueryCache, id string, result Result[T]) bool {
	if result.Data == nil {
		result.Data = []T{}
	}
	if !qc.store.Write(ctx, cache.QueryKey(id), result) {
		return false
	}
	ok := qc.store.WriteTimestamp(ctx, cache.QueryTimestampKey(id), qc.now())
	qc.Sweep(ctx)
	return ok
}

func lookup[T any](ctx context.Context, qc *QueryCache, id string, maxAge time.Duration, checkMarkers bool) (Result[T], bool) {
	written, ok := qc.writtenAt(ctx, id)
	if !ok || qc.now().Sub(written) >= maxAge {
		return Result[T]{}, false
	}
	if checkMarkers && qc.isMarkedStale(ctx, id, written) {
		qc.logger.Debug("cached query marked stale", zap.String("query_id", id))
		return Result[T]{}, false
	}
	return cache.Read[Result[T]](ctx, qc.store, cache.QueryKey(id))
}

// paginate derives the page bookkeeping: HasMore when the total exceeds what has been
// returned so far, NextOffset = offset + limit only when more rows remain.
func paginate[T any](page Page[T], req Request) Result[T] {
	data := page.Data
	if data == nil {
		data = []T{}
	}
	result := Result[T]{
		Data:       data,
		Count:      len(data),
		TotalCount: page.TotalCount,
	}

	if page.TotalCount != nil && *page.TotalCount > req.Offset+len(data) {
		step := req.Limit
		if step <= 0 {
			step = len(data)
		}
		next := req.Offset + step
		result.HasMore = true
		result.NextOffset = &next
	}
	return result
}
