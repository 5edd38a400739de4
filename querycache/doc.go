// Package querycache caches the results of parameterized reads.
//
// Each read is identified by a query id derived from the operation name, the field
// selection preset and the sanitized filters (see cache.QueryID), so filter maps that
// differ only in key order or unset values share an entry. Entries live under
// "query_<id>" with their write time under "query_<id>_timestamp"; the TTL is supplied
// per call and defaults to five minutes.
//
// Execute wraps the whole read path:
//
//	result, err := querycache.Execute(ctx, qc, querycache.Request{
//		Operation: "getProjects",
//		Filters:   map[string]any{"status": "active"},
//		Preset:    "basic",
//		UseCache:  true,
//	}, fetch)
//
// A fresh entry not covered by a stale marker is returned with FromCache set and the
// fetcher is not called. Otherwise the fetcher runs through the retry policy; on success
// the result is written back and entries older than a day are swept. On failure an entry
// younger than twice the TTL is returned with Stale set and an advisory Message.
//
// Every execution records a Metric. Metrics are held in a bounded LRU so long running
// processes do not grow without limit.
package querycache
