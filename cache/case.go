package cache

import (
	"strings"
	"unicode"
)

// toSnake converts a filter field name to snake_case so that "supplierID",
// "SupplierID" and "supplier_id" land on the same query id segment. Any run of
// other characters collapses to one underscore; glob patterns such as
// "*supplier_id*" rely on that to match field scoped queries.
func toSnake(s string) string {
	runes := []rune(s)
	var b strings.Builder
	b.Grow(len(runes) + len(runes)/2)

	// sep is true right after an underscore was written.
	sep := false
	boundary := func() {
		if !sep && b.Len() > 0 {
			b.WriteByte('_')
			sep = true
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsUpper(r):
			if i > 0 {
				prev := runes[i-1]
				nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
				if unicode.IsLower(prev) || unicode.IsDigit(prev) || nextLower {
					boundary()
				}
			}
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsDigit(r):
			if i > 0 && !unicode.IsDigit(runes[i-1]) {
				boundary()
			}
			b.WriteRune(r)
		case unicode.IsLower(r):
			b.WriteRune(r)
		default:
			boundary()
			continue
		}
		sep = false
	}

	return strings.TrimSuffix(b.String(), "_")
}
