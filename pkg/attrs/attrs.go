// Package attrs reads values back out of slog-style key/value argument lists.
package attrs

// Extract returns the value stored under key in a [k1, v1, k2, v2, ...] list
// when it has type T. The last occurrence wins, matching slog output.
func Extract[T any](kv []any, key string) (T, bool) {
	var (
		out   T
		found bool
	)
	for i := 0; i+1 < len(kv); i += 2 {
		if k, ok := kv[i].(string); !ok || k != key {
			continue
		}
		if v, ok := kv[i+1].(T); ok {
			out, found = v, true
		}
	}
	return out, found
}

// ExtractString returns the string under key, or "" when absent.
func ExtractString(kv []any, key string) string {
	v, _ := Extract[string](kv, key)
	return v
}
