// Package jsonutil provides helpers for working with decoded JSON documents.
package jsonutil

import "sort"

// FindKey depth-first searches an arbitrarily nested structure of maps and
// slices for the first occurrence of targetKey and returns its value, or nil
// when absent. A match at the current level wins over matches in nested
// values, and sibling subtrees are descended in sorted key order so the
// result is stable when several of them contain targetKey. Inputs are decoded
// JSON, so no cycle handling is needed.
func FindKey(data any, targetKey string) any {
	switch v := data.(type) {
	case map[string]any:
		if value, ok := v[targetKey]; ok {
			return value
		}
		keys := make([]string, 0, len(v))
		for key := range v {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			if result := FindKey(v[key], targetKey); result != nil {
				return result
			}
		}
	case []any:
		for _, item := range v {
			if result := FindKey(item, targetKey); result != nil {
				return result
			}
		}
	}
	return nil
}
