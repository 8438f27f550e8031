package macro

import (
	"fmt"
	"math"
	"strconv"
	"time"
)

// Settings is the type-specific payload of an item. Values arrive from
// JSON (float64), YAML (int) or the editor, so the accessors accept any
// reasonable numeric or string representation.
type Settings map[string]any

// Clone returns a deep copy of s.
func (s Settings) Clone() Settings {
	if s == nil {
		return nil
	}
	return Settings(deepCopyMap(s))
}

// Merge returns a copy of s with the keys of other applied on top.
func (s Settings) Merge(other Settings) Settings {
	out := s.Clone()
	if out == nil {
		out = Settings{}
	}
	for k, v := range other {
		out[k] = deepCopyValue(v)
	}
	return out
}

// String returns the value for key as a string, or def when unset.
func (s Settings) String(key, def string) string {
	v, ok := s[key]
	if !ok || v == nil {
		return def
	}
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprint(val)
	}
}

// Int returns the value for key as an int. It fails when the value is
// present but not an integral number.
func (s Settings) Int(key string, def int) (int, error) {
	v, ok := s[key]
	if !ok || v == nil {
		return def, nil
	}
	switch val := v.(type) {
	case int:
		return val, nil
	case int64:
		return int(val), nil
	case int32:
		return int(val), nil
	case uint64:
		return int(val), nil
	case float64:
		if val != math.Trunc(val) {
			return 0, fmt.Errorf("%s: %v is not an integer", key, val)
		}
		return int(val), nil
	case string:
		n, err := strconv.Atoi(val)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not an integer", key, val)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}

// Float returns the value for key as a float64.
func (s Settings) Float(key string, def float64) (float64, error) {
	v, ok := s[key]
	if !ok || v == nil {
		return def, nil
	}
	switch val := v.(type) {
	case float64:
		return val, nil
	case float32:
		return float64(val), nil
	case int:
		return float64(val), nil
	case int64:
		return float64(val), nil
	case string:
		f, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return 0, fmt.Errorf("%s: %q is not a number", key, val)
		}
		return f, nil
	default:
		return 0, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}

// Bool returns the value for key as a bool.
func (s Settings) Bool(key string, def bool) (bool, error) {
	v, ok := s[key]
	if !ok || v == nil {
		return def, nil
	}
	switch val := v.(type) {
	case bool:
		return val, nil
	case string:
		b, err := strconv.ParseBool(val)
		if err != nil {
			return false, fmt.Errorf("%s: %q is not a boolean", key, val)
		}
		return b, nil
	default:
		return false, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}

// Millis returns an integer millisecond setting as a Duration. Values too
// large for a Duration are errors rather than wrapping around.
func (s Settings) Millis(key string, def time.Duration) (time.Duration, error) {
	n, err := s.Int(key, int(def/time.Millisecond))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%s: must not be negative", key)
	}
	if int64(n) > math.MaxInt64/int64(time.Millisecond) {
		return 0, fmt.Errorf("%s: %d is too large", key, n)
	}
	return time.Duration(n) * time.Millisecond, nil
}

// Strings returns a list setting. A single string is treated as a
// one-element list.
func (s Settings) Strings(key string) ([]string, error) {
	v, ok := s[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch val := v.(type) {
	case []string:
		return append([]string(nil), val...), nil
	case []any:
		out := make([]string, len(val))
		for i, e := range val {
			out[i] = fmt.Sprint(e)
		}
		return out, nil
	case string:
		return []string{val}, nil
	default:
		return nil, fmt.Errorf("%s: unsupported type %T", key, v)
	}
}

// deepCopyMap creates a deep copy of a map[string]any.
// Nested maps and slices are recursively copied.
func deepCopyMap(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	cpy := make(map[string]any, len(m))
	for k, v := range m {
		cpy[k] = deepCopyValue(v)
	}
	return cpy
}

// deepCopyValue recursively copies a value, handling nested maps and slices.
func deepCopyValue(v any) any {
	if v == nil {
		return nil
	}
	switch val := v.(type) {
	case Settings:
		return Settings(deepCopyMap(val))
	case map[string]any:
		return deepCopyMap(val)
	case []any:
		cpy := make([]any, len(val))
		for i, elem := range val {
			cpy[i] = deepCopyValue(elem)
		}
		return cpy
	case []string:
		return append([]string(nil), val...)
	default:
		return v // Primitives are immutable
	}
}
