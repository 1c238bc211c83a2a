package store

import (
	"encoding/json"
	"fmt"
	"time"
)

// SafeJSON marshals v after coercing values into persistable shapes:
// time.Time becomes an RFC 3339 UTC string and json.Number becomes a native
// number. Arrays and nested maps are walked recursively.
func SafeJSON(v interface{}) (string, error) {
	b, err := json.Marshal(sanitize(v))
	if err != nil {
		return "", fmt.Errorf("failed to marshal json blob: %w", err)
	}
	return string(b), nil
}

func sanitize(v interface{}) interface{} {
	switch t := v.(type) {
	case time.Time:
		return fmtTime(t)
	case *time.Time:
		if t == nil {
			return nil
		}
		return fmtTime(*t)
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]interface{}:
		out := make(map[string]interface{}, len(t))
		for k, val := range t {
			out[k] = sanitize(val)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(t))
		for i, val := range t {
			out[i] = sanitize(val)
		}
		return out
	default:
		return v
	}
}
