package cache

import (
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

var querySerializer = &defaultKeySerializer{}

// SanitizeFilters returns a copy of filters without unset values (nil, nil pointers,
// empty strings, empty slices and maps) and with snake_case keys. When two keys collapse to the same snake_case
// name the lexically first original key wins.
func SanitizeFilters(filters map[string]any) map[string]any {
	out := make(map[string]any, len(filters))
	if len(filters) == 0 {
		return out
	}

	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := filters[k]
		if isEmptyValue(reflect.ValueOf(v)) {
			continue
		}
		name := toSnake(k)
		if name == "" {
			continue
		}
		if _, exists := out[name]; exists {
			continue
		}
		out[name] = v
	}
	return out
}

// QueryID builds the deterministic identifier of a parameterized read. The id embeds the
// operation, the field selection preset and the sorted filter field names so glob patterns
// (for instance "*stage*") can target field scoped queries, followed by an xxhash of the
// canonical filter serialization.
func QueryID(operation string, filters map[string]any, preset string) string {
	clean := SanitizeFilters(filters)

	fields := make([]string, 0, len(clean))
	for k := range clean {
		fields = append(fields, k)
	}
	sort.Strings(fields)

	canonical := querySerializer.SerializeKey(operation, preset, clean)
	sum := xxhash.Sum64String(canonical)

	parts := []string{toSnake(operation)}
	if p := toSnake(preset); p != "" {
		parts = append(parts, p)
	}
	if len(fields) > 0 {
		parts = append(parts, strings.Join(fields, "."))
	}
	parts = append(parts, strconv.FormatUint(sum, 16))

	return strings.Join(parts, "_")
}
