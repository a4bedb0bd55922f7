package storage

import (
	"fmt"
	"strings"
	"time"
)

// NormalizeKey converts a natural-key value to a canonical string form,
// suitable for in-memory identity sets (e.g. "7294831045" or "alice01").
//
// Backends must not assume a particular underlying type for keys; this helper
// keeps the identity cache consistent across backends and across the JSON
// parser (which may surface ids as string, json.Number, or int).
func NormalizeKey(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case []byte:
		return strings.TrimSpace(string(t))
	case int64:
		return fmt.Sprintf("%d", t)
	case int:
		return fmt.Sprintf("%d", t)
	default:
		return strings.TrimSpace(fmt.Sprint(v))
	}
}

// NormalizeValue maps a scanned column value into the canonical scalar form
// used for change detection: integers to int64, text to string, timestamps to
// RFC3339 UTC strings, NULL to nil.
//
// Every backend funnels tracked values through here before returning them, so
// the versioner can compare snapshots with plain equality regardless of what
// the driver chose to scan (TEXT as []byte, integers as int32, etc).
func NormalizeValue(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return t
	case []byte:
		return string(t)
	case int64:
		return t
	case int:
		return int64(t)
	case int32:
		return int64(t)
	case int16:
		return int64(t)
	case int8:
		return int64(t)
	case uint64:
		return int64(t)
	case uint32:
		return int64(t)
	case float64:
		// Integral floats come back from some drivers for bigint columns.
		if t == float64(int64(t)) {
			return int64(t)
		}
		return t
	case bool:
		if t {
			return int64(1)
		}
		return int64(0)
	case time.Time:
		return t.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(v)
	}
}

// EqualValues compares two tracked-value slices after normalization.
// Used by the versioner to decide SKIP vs UPDATE.
func EqualValues(a, b []any) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if NormalizeValue(a[i]) != NormalizeValue(b[i]) {
			return false
		}
	}
	return true
}
