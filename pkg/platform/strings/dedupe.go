// Package strings provides string list helpers used when parsing settings.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each element and drops blanks and repeats, keeping the
// first occurrence order. A nil input stays nil.
func DedupeAndTrim(values []string) []string {
	if values == nil {
		return nil
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; ok {
			continue
		}
		seen[trimmed] = struct{}{}
		result = append(result, trimmed)
	}
	return result
}

// SplitList splits a separated list such as "a:9092, b:9092" and normalises it
// with DedupeAndTrim.
func SplitList(s, sep string) []string {
	if strings.TrimSpace(s) == "" {
		return []string{}
	}
	return DedupeAndTrim(strings.Split(s, sep))
}
