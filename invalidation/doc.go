// Package invalidation maps data mutations to cache invalidations.
//
// A Rule pairs a Trigger (table, operation and optional field conditions) with the cache
// regions to invalidate and a Strategy:
//
//   - immediate: targets are cleared while ProcessDataChange runs.
//   - lazy: a stale marker is written under "stale_<type>_<subject>"; readers compare it
//     with the write time of what they are about to serve.
//   - scheduled: a timer keyed by rule id and record id is armed. Triggering the same
//     key again before it fires restarts the delay, so bursts collapse into one
//     invalidation.
//   - conditional: the trigger conditions are evaluated again against the current state
//     of the record (see WithStateReader) and the targets are cleared only if they still
//     hold.
//
// The neq operator means "field changed between the old and the new record"; its value
// is not used.
//
// Every processed event that matched at least one rule is recorded in a bounded history,
// most recent first.
package invalidation
