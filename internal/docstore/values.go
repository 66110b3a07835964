package docstore

import (
	"reflect"
	"strings"
	"time"
)

// TimeLayout is the fixed-width UTC layout used when timestamps are stored as
// text, so lexical and chronological order agree.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// FormatTime renders t with TimeLayout in UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// TimeValue reads a timestamp field stored either natively or as text.
func TimeValue(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t == nil {
			return time.Time{}, false
		}
		return *t, true
	case string:
		parsed, err := time.Parse(time.RFC3339Nano, t)
		if err != nil {
			return time.Time{}, false
		}
		return parsed, true
	}
	return time.Time{}, false
}

// StringsValue reads a string array field regardless of how the driver decoded it.
func StringsValue(v any) []string {
	switch arr := v.(type) {
	case []string:
		return append([]string(nil), arr...)
	case []any:
		out := make([]string, 0, len(arr))
		for _, item := range arr {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// rank groups values of different kinds so mixed fields still sort deterministically.
func rank(v any) int {
	switch v.(type) {
	case nil:
		return 0
	case bool:
		return 1
	case int, int32, int64, float32, float64:
		return 2
	case time.Time:
		return 3
	case string:
		return 4
	}
	return 5
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case int:
		return float64(n)
	case int32:
		return float64(n)
	case int64:
		return float64(n)
	case float32:
		return float64(n)
	case float64:
		return n
	}
	return 0
}

func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		if ra < rb {
			return -1
		}
		return 1
	}
	switch av := a.(type) {
	case nil:
		return 0
	case bool:
		bv := b.(bool)
		switch {
		case av == bv:
			return 0
		case !av:
			return -1
		default:
			return 1
		}
	case time.Time:
		return av.Compare(b.(time.Time))
	case string:
		return strings.Compare(av, b.(string))
	}
	if ra == 2 {
		fa, fb := toFloat(a), toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	}
	return 0
}

func equalValues(a, b any) bool {
	if rank(a) != rank(b) {
		return false
	}
	if rank(a) == 5 {
		return reflect.DeepEqual(a, b)
	}
	return compareValues(a, b) == 0
}

func containsValue(arr any, v any) bool {
	switch items := arr.(type) {
	case []string:
		s, ok := v.(string)
		if !ok {
			return false
		}
		for _, item := range items {
			if item == s {
				return true
			}
		}
	case []any:
		for _, item := range items {
			if equalValues(item, v) {
				return true
			}
		}
	}
	return false
}

func matches(fields map[string]any, filters []Filter) bool {
	for _, f := range filters {
		value, ok := fields[f.Field]
		if !ok {
			return false
		}
		switch f.Op {
		case OpEqual:
			if !equalValues(value, f.Value) {
				return false
			}
		case OpArrayContains:
			if !containsValue(value, f.Value) {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func cloneFields(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		switch val := v.(type) {
		case []string:
			out[k] = append([]string(nil), val...)
		case []any:
			out[k] = append([]any(nil), val...)
		default:
			out[k] = v
		}
	}
	return out
}
