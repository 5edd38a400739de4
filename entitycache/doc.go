// Package entitycache keeps the whole working set of one entity type in a cache.Store.
//
// The collection is stored as a single JSON array next to its write time and is trusted
// for a TTL (15 minutes by default). A second copy with a longer TTL (24 hours) is kept
// for offline use. Mutations attempted while the remote store is unreachable are appended
// to an offline queue and replayed with Drain once connectivity returns; an item that keeps
// failing is moved to a dead-letter list after three attempts instead of being dropped.
//
// Storage failures never surface as errors: reads degrade to a miss and writes report
// false. The one exception is Enqueue, which returns ErrQueueUnavailable because losing a
// queued mutation is data loss the caller must know about.
//
//	projects := entitycache.New[*Project](store,
//		entitycache.WithIDFunc(func(p *Project) string { return p.ID.String() }),
//	)
//	projects.Replace(ctx, fetched)
//	if p, ok := projects.Get(ctx, id); ok {
//		...
//	}
package entitycache
