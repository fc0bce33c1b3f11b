package validate

import (
	"fmt"
	"sort"
)

// checkRequired flags any missing top-level fields.
func checkRequired(data map[string]any, fields []string, r *Result) {
	for _, f := range fields {
		if _, ok := data[f]; !ok {
			r.AddError(fmt.Sprintf("missing required field: %q", f))
		}
	}
}

// checkEnum flags a value outside the allowed set.
func checkEnum(value any, valid []string, field string, r *Result) {
	s, ok := value.(string)
	if ok {
		for _, v := range valid {
			if s == v {
				return
			}
		}
	}
	r.AddError(fmt.Sprintf("invalid enum value for %q: %v not in %v", field, value, valid))
}

// checkRange flags a non-numeric or out-of-range value.
func checkRange(value any, min, max float64, field string, r *Result) {
	f, ok := asFloat(value)
	if !ok {
		r.AddError(fmt.Sprintf("field %q must be numeric, got %T", field, value))
		return
	}
	if f < min || f > max {
		r.AddError(fmt.Sprintf("field %q value %v out of range [%v, %v]", field, f, min, max))
	}
}

func asFloat(value any) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// scanForbidden recursively scans dicts and lists of dicts, at any depth,
// for denylisted field names.
func scanForbidden(data map[string]any, forbidden map[string]bool, r *Result, path string) {
	// Deterministic error ordering for stable output.
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		current := key
		if path != "" {
			current = path + "." + key
		}
		if forbidden[key] {
			r.AddError(fmt.Sprintf("forbidden field found: %q", current))
		}
		switch v := data[key].(type) {
		case map[string]any:
			scanForbidden(v, forbidden, r, current)
		case []any:
			for i, item := range v {
				if m, ok := item.(map[string]any); ok {
					scanForbidden(m, forbidden, r, fmt.Sprintf("%s[%d]", current, i))
				}
			}
		}
	}
}

func asSet(fields []string) map[string]bool {
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// getMap returns data[key] as a map, or nil.
func getMap(data map[string]any, key string) map[string]any {
	m, _ := data[key].(map[string]any)
	return m
}

// getString returns data[key] as a string, or "".
func getString(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return s
}
