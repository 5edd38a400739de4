package cache

import (
	"regexp"
	"strings"
)

// CompilePattern translates a glob pattern into a case insensitive regular expression.
// Only "*" is special and expands to ".*"; everything else matches literally. The
// expression is unanchored, so "projects*" matches any key containing "projects".
func CompilePattern(pattern string) *regexp.Regexp {
	parts := strings.Split(pattern, "*")
	for i, part := range parts {
		parts[i] = regexp.QuoteMeta(part)
	}
	return regexp.MustCompile("(?i)" + strings.Join(parts, ".*"))
}

// MatchPattern reports whether key matches the glob pattern. An empty pattern matches everything.
func MatchPattern(pattern, key string) bool {
	if pattern == "" || pattern == "*" {
		return true
	}
	return CompilePattern(pattern).MatchString(key)
}
