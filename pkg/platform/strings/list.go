// Package strings normalizes the string lists that arrive from config files
// and environment variables.
package strings

import "strings"

// SplitList splits a comma separated value and normalizes it with Dedupe.
func SplitList(v string, fold func(string) string) []string {
	return Dedupe(strings.Split(v, ","), fold)
}

// Dedupe trims each value, drops empties and keeps the first of each
// duplicate. fold, when non-nil, is applied before comparison and is what
// gets returned, e.g. strings.ToLower for case-insensitive keys.
func Dedupe(values []string, fold func(string) string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if fold != nil {
			v = fold(v)
		}
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
