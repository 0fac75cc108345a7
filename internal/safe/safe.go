// Package safe reads fields out of loosely typed JSON without panicking.
//
// Vendor payloads are decoded into map[string]any / []any with
// json.Decoder.UseNumber so numbers arrive as json.Number and keep their
// exact decimal text. Every accessor returns its default when the key is
// missing, the value is JSON null or the value cannot be cast.
package safe

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"exchangeflow/internal/precise"
)

// Caster converts a raw JSON value into T. The boolean reports success.
type Caster[T any] func(v any) (T, bool)

// Extract returns the first candidate key that is present, non-null and
// castable, or def.
func Extract[T any](container any, keys []string, def T, cast Caster[T]) T {
	for _, key := range keys {
		raw, ok := lookup(container, key)
		if !ok || raw == nil {
			continue
		}
		if v, ok := cast(raw); ok {
			return v
		}
	}
	return def
}

func lookup(container any, key string) (any, bool) {
	switch c := container.(type) {
	case map[string]any:
		v, ok := c[key]
		return v, ok
	case map[string]string:
		v, ok := c[key]
		return v, ok
	case []any:
		i, err := strconv.Atoi(key)
		if err != nil {
			return nil, false
		}
		if i < 0 {
			i += len(c)
		}
		if i < 0 || i >= len(c) {
			return nil, false
		}
		return c[i], true
	default:
		return nil, false
	}
}

// Value returns the raw value of the first present, non-null key.
func Value(container any, keys ...string) any {
	return Extract[any](container, keys, nil, func(v any) (any, bool) { return v, true })
}

// Has reports whether any of the keys exists, even with a null value.
func Has(container any, keys ...string) bool {
	for _, key := range keys {
		if _, ok := lookup(container, key); ok {
			return true
		}
	}
	return false
}

// String returns the value as a string, or "".
func String(container any, keys ...string) string {
	return Extract(container, keys, "", ToString)
}

// StringLower is String lower-cased.
func StringLower(container any, keys ...string) string {
	return strings.ToLower(String(container, keys...))
}

// StringUpper is String upper-cased.
func StringUpper(container any, keys ...string) string {
	return strings.ToUpper(String(container, keys...))
}

// Number returns the value as a canonical decimal string, or "" when it is
// absent or not numeric.
func Number(container any, keys ...string) string {
	return Extract(container, keys, "", ToDecimal)
}

// Integer returns the value as an int64 and whether one was found.
func Integer(container any, keys ...string) (int64, bool) {
	const missing = math.MinInt64
	v := Extract[int64](container, keys, missing, ToInt)
	return v, v != missing
}

// Float returns the value as a float64, or def.
func Float(container any, def float64, keys ...string) float64 {
	return Extract(container, keys, def, ToFloat)
}

// Bool returns the value as a bool and whether one was found.
func Bool(container any, keys ...string) (bool, bool) {
	v := Extract[*bool](container, keys, nil, func(raw any) (*bool, bool) {
		b, ok := ToBool(raw)
		return &b, ok
	})
	if v == nil {
		return false, false
	}
	return *v, true
}

// Map returns a nested object, or nil.
func Map(container any, keys ...string) map[string]any {
	return Extract[map[string]any](container, keys, nil, func(v any) (map[string]any, bool) {
		m, ok := v.(map[string]any)
		return m, ok
	})
}

// List returns a nested array, or nil.
func List(container any, keys ...string) []any {
	return Extract[[]any](container, keys, nil, func(v any) ([]any, bool) {
		l, ok := v.([]any)
		return l, ok
	})
}

// ToString accepts strings, numbers and booleans.
func ToString(v any) (string, bool) {
	switch x := v.(type) {
	case string:
		return x, true
	case json.Number:
		return x.String(), true
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return "", false
		}
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case bool:
		return strconv.FormatBool(x), true
	default:
		return "", false
	}
}

// ToDecimal casts to a canonical decimal string.
func ToDecimal(v any) (string, bool) {
	d, ok := ToDecimalValue(v)
	if !ok {
		return "", false
	}
	return d.String(), true
}

// ToDecimalValue casts to a decimal.Decimal.
func ToDecimalValue(v any) (decimal.Decimal, bool) {
	if _, isBool := v.(bool); isBool {
		return decimal.Zero, false
	}
	s, ok := ToString(v)
	if !ok {
		return decimal.Zero, false
	}
	d, err := precise.Parse(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// ToFloat casts to a finite float64.
func ToFloat(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case json.Number:
		parsed, err := x.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	case int:
		f = float64(x)
	case int64:
		f = float64(x)
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

// ToInt casts to int64, truncating fractional values.
func ToInt(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int64:
		return x, true
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, true
		}
	case string:
		if i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64); err == nil {
			return i, true
		}
	}
	f, ok := ToFloat(v)
	if !ok || f > math.MaxInt64 || f < math.MinInt64 {
		return 0, false
	}
	return int64(f), true
}

// ToBool accepts JSON booleans and the strings "true" and "false".
func ToBool(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(strings.TrimSpace(x))
		if err != nil {
			return false, false
		}
		return b, true
	default:
		return false, false
	}
}

// Decode parses a JSON body keeping numbers as json.Number.
func Decode(body []byte) (any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
