// Package cache provides the storage contracts shared by the entity cache, the query
// result cache and the invalidation engine.
//
// # Overview
//
//   - Store: a durable, string keyed store with a byte budget (sturdyc or sqlite backed)
//   - JSONStore: JSON helpers over a Store that log storage failures and discard corrupt payloads
//   - StaleMarkers: timestamps written by lazy invalidation and checked by readers
//   - QueryID: the deterministic identifier of a parameterized read
//   - KeySerializer: canonical, order independent serialization of filter values
//
// # Key Layout
//
// Every component owns a disjoint prefix of the shared Store:
//
//	entity_cache, entity_cache_timestamp   whole entity collection and its write time
//	offline_cache                          extended TTL copy used while offline
//	offline_queue, offline_dead_letters    pending and abandoned offline mutations
//	query_<id>, query_<id>_timestamp       cached query results
//	stale_<type>_<subject>                 lazy invalidation markers
//
// # Query Identifiers
//
// QueryID sanitizes filters (nil, nil pointers and empty strings are dropped, keys are
// snake_cased), sorts them and hashes the canonical serialization with xxhash:
//
//	id := cache.QueryID("getProjects", map[string]any{"stage": "design"}, "basic")
//	// get_projects_basic_stage_<hash>
//
// The operation, preset and filter field names stay readable in the id so glob patterns
// such as "projects*" or "*stage*" can select the queries an invalidation rule targets.
//
// # Error Handling
//
// Cache reads and writes never fail outward. JSONStore logs storage errors and reports a
// miss or a no-op; a payload that no longer decodes is deleted so the next read is a clean
// miss. A write over the byte budget fails with ErrQuotaExceeded and leaves the store as it was.
package cache
