package llm

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Args is a decoded tool-call argument object. Every accessor accepts the
// snake_case key and also finds its camelCase alias.
type Args map[string]any

// Lookup returns the raw value for key or its camelCase alias.
func (a Args) Lookup(key string) (any, bool) {
	if a == nil {
		return nil, false
	}
	if v, ok := a[key]; ok && v != nil {
		return v, true
	}
	if alt := camelCase(key); alt != key {
		if v, ok := a[alt]; ok && v != nil {
			return v, true
		}
	}
	return nil, false
}

// String returns a trimmed string value, or "" when absent.
func (a Args) String(key string) string {
	v, ok := a.Lookup(key)
	if !ok {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// Int returns an integer value. Numeric strings and whole floats are
// accepted; ok is false when the key is absent or not an integer.
func (a Args) Int(key string) (int, bool) {
	v, ok := a.Lookup(key)
	if !ok {
		return 0, false
	}
	return toInt(v)
}

// IntOr returns Int(key) or def.
func (a Args) IntOr(key string, def int) int {
	if n, ok := a.Int(key); ok {
		return n
	}
	return def
}

// Float returns a float value, accepting numeric strings.
func (a Args) Float(key string) (float64, bool) {
	v, ok := a.Lookup(key)
	if !ok {
		return 0, false
	}
	switch t := v.(type) {
	case float64:
		return t, true
	case int:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		return f, err == nil
	}
	return 0, false
}

// Ints returns an integer list. A single scalar is treated as a one-item
// list; non-integer items are skipped.
func (a Args) Ints(key string) []int {
	v, ok := a.Lookup(key)
	if !ok {
		return nil
	}
	items, isList := v.([]any)
	if !isList {
		items = []any{v}
	}
	out := make([]int, 0, len(items))
	for _, item := range items {
		if n, ok := toInt(item); ok {
			out = append(out, n)
		}
	}
	return out
}

// Strings returns a string list. A single string is treated as a
// one-item list; empty items are skipped.
func (a Args) Strings(key string) []string {
	v, ok := a.Lookup(key)
	if !ok {
		return nil
	}
	items, isList := v.([]any)
	if !isList {
		items = []any{v}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func toInt(v any) (int, bool) {
	switch t := v.(type) {
	case float64:
		if t != math.Trunc(t) || math.IsInf(t, 0) || math.IsNaN(t) {
			return 0, false
		}
		return int(t), true
	case int:
		return t, true
	case json.Number:
		n, err := t.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.Atoi(strings.TrimSpace(t))
		return n, err == nil
	}
	return 0, false
}

// camelCase converts signal_index to signalIndex.
func camelCase(key string) string {
	if !strings.Contains(key, "_") {
		return key
	}
	parts := strings.Split(key, "_")
	var b strings.Builder
	b.WriteString(parts[0])
	for _, p := range parts[1:] {
		if p == "" {
			continue
		}
		b.WriteString(strings.ToUpper(p[:1]))
		b.WriteString(p[1:])
	}
	return b.String()
}
