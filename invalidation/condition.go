package invalidation

import (
	"fmt"
	"reflect"
)

// conditionsHold reports whether every condition holds for the old/new record pair.
func conditionsHold(conditions []Condition, oldData, newData map[string]any) bool {
	for _, c := range conditions {
		if !c.holds(oldData, newData) {
			return false
		}
	}
	return true
}

func (c Condition) holds(oldData, newData map[string]any) bool {
	newValue, hasNew := newData[c.Field]

	switch c.Operator {
	case OperatorEq:
		return hasNew && equalValues(newValue, c.Value)
	case OperatorNeq:
		oldValue, hasOld := oldData[c.Field]
		if !hasOld && !hasNew {
			return false
		}
		return !equalValues(oldValue, newValue)
	case OperatorIn:
		return hasNew && listContains(c.Value, newValue)
	case OperatorContains:
		return hasNew && listContains(newValue, c.Value)
	}
	return false
}

func listContains(list, value any) bool {
	v := reflect.ValueOf(list)
	if list == nil || (v.Kind() != reflect.Slice && v.Kind() != reflect.Array) {
		return false
	}
	for i := 0; i < v.Len(); i++ {
		if equalValues(v.Index(i).Interface(), value) {
			return true
		}
	}
	return false
}

// equalValues compares record values loosely: numbers by value whatever their Go type,
// and Stringers (uuid, decimal) by their string form.
func equalValues(a, b any) bool {
	a, b = normalizeValue(a), normalizeValue(b)
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return reflect.DeepEqual(a, b)
}

func normalizeValue(v any) any {
	if v == nil {
		return nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return rv.Float()
	case reflect.Ptr:
		if rv.IsNil() {
			return nil
		}
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String()
	}
	if rv.Kind() == reflect.String {
		return rv.String()
	}
	return v
}

// diff returns the fields that differ between the old and the new record.
func diff(oldData, newData map[string]any) map[string]Change {
	changes := make(map[string]Change)
	for field, to := range newData {
		from, ok := oldData[field]
		if ok && equalValues(from, to) {
			continue
		}
		changes[field] = Change{From: from, To: to}
	}
	for field, from := range oldData {
		if _, ok := newData[field]; ok {
			continue
		}
		changes[field] = Change{From: from}
	}
	return changes
}
