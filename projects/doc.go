// Package projects is the project service over a go-repository-bun repository.
//
// # Reads
//
// GetProjects lists projects through the query cache. Filters become both the query id
// (Filters.Map) and the bun select criteria sent to the repository (Filters.Criteria);
// the Preset picks the loaded columns:
//
//	result, err := svc.GetProjects(ctx, projects.Filters{Status: "active", Limit: 20}, projects.ReadOptions{})
//	if result.Stale {
//		showBanner(result.Message)
//	}
//
// GetProjectByID looks in the entity cache first, skipping records covered by a stale
// marker, then reads the repository. A failed read falls back to the offline copy.
//
// Failed reads with nothing to fall back on return an empty result next to the error.
//
// # Writes
//
// CreateProject, UpdateProject and DeleteProject run through the retry policy, the
// circuit breaker and a per attempt timeout. After a successful write the entity cache
// is patched and a MutationEvent carrying the old and new column values is handed to
// the invalidation engine.
//
// # Offline
//
// After SetOnline(false) reads are served from cached data only and writes are queued in
// the entity cache's offline queue. SyncOffline replays the queue once the service is
// back online; items that keep failing end up in DeadLetters.
package projects
