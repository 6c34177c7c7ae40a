// Package strings holds small list helpers shared by config parsing and middleware options.
package strings

import (
	"strings"
)

// SplitList splits v on sep and returns the trimmed, non-empty, distinct parts in order.
//
//	SplitList("k1:9092, k2:9092,,k1:9092", ",") // []string{"k1:9092", "k2:9092"}
func SplitList(v, sep string) []string {
	if v == "" {
		return nil
	}
	return DedupeAndTrim(strings.Split(v, sep))
}

// DedupeAndTrim removes duplicates and blank entries, trimming each element. Order is preserved.
func DedupeAndTrim(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		trimmed := strings.TrimSpace(v)
		if trimmed == "" {
			continue
		}
		if _, ok := seen[trimmed]; !ok {
			seen[trimmed] = struct{}{}
			result = append(result, trimmed)
		}
	}
	return result
}
