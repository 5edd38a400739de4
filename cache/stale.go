package cache

import (
	"context"
	"strings"
	"time"
)

// TargetAll is the marker subject (and target type) that applies to every key.
const TargetAll = "all"

// StaleMarkers records "do not fully trust this" timestamps for lazily invalidated
// targets. A marker never deletes data; readers compare it against the write time of
// the entry they are about to serve.
type StaleMarkers struct {
	store *JSONStore
	now   func() time.Time
}

// NewStaleMarkers creates marker bookkeeping on top of store. A nil clock uses time.Now.
func NewStaleMarkers(store *JSONStore, now func() time.Time) *StaleMarkers {
	if now == nil {
		now = time.Now
	}
	return &StaleMarkers{store: store, now: now}
}

// Mark records a marker for targetType/subject and returns its timestamp.
func (m *StaleMarkers) Mark(ctx context.Context, targetType, subject string) time.Time {
	at := m.now()
	m.store.WriteTimestamp(ctx, StaleKey(targetType, subject), at)
	return at
}

// MarkedAt returns the marker timestamp for targetType/subject.
func (m *StaleMarkers) MarkedAt(ctx context.Context, targetType, subject string) (time.Time, bool) {
	return m.store.ReadTimestamp(ctx, StaleKey(targetType, subject))
}

// IsStale reports whether an entry stored under key, written at writtenAt, is covered by
// a marker of targetType (or of the "all" type) recorded at or after writtenAt. Marker
// subjects are glob patterns; "all" covers every key of the type.
func (m *StaleMarkers) IsStale(ctx context.Context, targetType, key string, writtenAt time.Time) bool {
	for _, typ := range []string{targetType, TargetAll} {
		prefix := StaleKeyPrefix + typ + "_"
		for _, markerKey := range m.store.Keys(ctx, prefix) {
			subject := strings.TrimPrefix(markerKey, prefix)
			if subject != TargetAll && !MatchPattern(subject, key) {
				continue
			}
			at, ok := m.store.ReadTimestamp(ctx, markerKey)
			if ok && !at.Before(writtenAt) {
				return true
			}
		}
	}
	return false
}

// List returns every marker keyed by its storage key.
func (m *StaleMarkers) List(ctx context.Context) map[string]time.Time {
	out := make(map[string]time.Time)
	for _, key := range m.store.Keys(ctx, StaleKeyPrefix) {
		if at, ok := m.store.ReadTimestamp(ctx, key); ok {
			out[key] = at
		}
	}
	return out
}

// Clear removes every marker.
func (m *StaleMarkers) Clear(ctx context.Context) {
	m.store.Remove(ctx, m.store.Keys(ctx, StaleKeyPrefix)...)
}
