package cache

import "strings"

// Persisted key layout. Every component writes under its own prefix so the shared
// Store never sees cross component collisions.
const (
	KeyEntityCache          = "entity_cache"
	KeyEntityCacheTimestamp = "entity_cache_timestamp"
	KeyOfflineCache         = "offline_cache"
	KeyOfflineQueue         = "offline_queue"
	KeyOfflineDeadLetters   = "offline_dead_letters"

	QueryKeyPrefix  = "query_"
	StaleKeyPrefix  = "stale_"
	TimestampSuffix = "_timestamp"
)

// EntityKeys names the keys one entity cache owns.
type EntityKeys struct {
	Collection  string
	Timestamp   string
	Offline     string
	Queue       string
	DeadLetters string
}

// DefaultEntityKeys returns the layout used by the primary (projects) entity cache.
func DefaultEntityKeys() EntityKeys {
	return EntityKeys{
		Collection:  KeyEntityCache,
		Timestamp:   KeyEntityCacheTimestamp,
		Offline:     KeyOfflineCache,
		Queue:       KeyOfflineQueue,
		DeadLetters: KeyOfflineDeadLetters,
	}
}

// EntityKeysFor namespaces the default layout for a secondary entity type.
func EntityKeysFor(entity string) EntityKeys {
	name := toSnake(entity)
	if name == "" {
		return DefaultEntityKeys()
	}
	return EntityKeys{
		Collection:  KeyEntityCache + "_" + name,
		Timestamp:   KeyEntityCache + "_" + name + TimestampSuffix,
		Offline:     KeyOfflineCache + "_" + name,
		Queue:       KeyOfflineQueue + "_" + name,
		DeadLetters: KeyOfflineDeadLetters + "_" + name,
	}
}

// QueryKey returns the storage key of a cached query result.
func QueryKey(queryID string) string {
	return QueryKeyPrefix + queryID
}

// QueryTimestampKey returns the storage key holding the write time of a cached query result.
func QueryTimestampKey(queryID string) string {
	return QueryKeyPrefix + queryID + TimestampSuffix
}

// IsQueryTimestampKey reports whether key is the timestamp companion of a query entry.
func IsQueryTimestampKey(key string) bool {
	return strings.HasPrefix(key, QueryKeyPrefix) && strings.HasSuffix(key, TimestampSuffix)
}

// QueryIDFromKey strips the storage prefix (and timestamp suffix) from a query key.
func QueryIDFromKey(key string) string {
	id := strings.TrimPrefix(key, QueryKeyPrefix)
	return strings.TrimSuffix(id, TimestampSuffix)
}

// StaleKey returns the marker key for a lazily invalidated target.
// An empty subject marks the whole target type ("all").
func StaleKey(targetType, subject string) string {
	if subject == "" {
		subject = "all"
	}
	return StaleKeyPrefix + targetType + "_" + subject
}
