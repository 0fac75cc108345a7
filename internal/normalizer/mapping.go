package normalizer

import (
	"github.com/shopspring/decimal"

	"exchangeflow/internal/precise"
	"exchangeflow/internal/safe"
)

// Kind is the semantic type a mapped field is cast to.
type Kind int

const (
	String Kind = iota
	Number
	Integer
	Bool
	Raw
)

// Field maps the first present vendor key in From onto the unified Key.
// Transform, when set, receives the cast value (nil when absent) and the
// whole vendor object; returning nil leaves the field unset.
type Field struct {
	Key       string
	From      []string
	Kind      Kind
	Transform func(v any, raw any) any
}

// Mapping is the declarative vendor-to-unified table of one entity.
type Mapping []Field

// F is shorthand for a field without a transform.
func F(key string, kind Kind, from ...string) Field {
	return Field{Key: key, From: from, Kind: kind}
}

// T is shorthand for a field with a transform.
func T(key string, kind Kind, transform func(v any, raw any) any, from ...string) Field {
	return Field{Key: key, From: from, Kind: kind, Transform: transform}
}

// Apply extracts every field of m from raw into a Bag.
func (m Mapping) Apply(raw any) Bag {
	bag := make(Bag, len(m))
	for _, f := range m {
		var v any
		switch f.Kind {
		case String:
			if s := safe.String(raw, f.From...); s != "" {
				v = s
			}
		case Number:
			if s := safe.Number(raw, f.From...); s != "" {
				v = s
			}
		case Integer:
			if i, ok := safe.Integer(raw, f.From...); ok {
				v = i
			}
		case Bool:
			if b, ok := safe.Bool(raw, f.From...); ok {
				v = b
			}
		case Raw:
			v = safe.Value(raw, f.From...)
		}
		if f.Transform != nil {
			v = f.Transform(v, raw)
		}
		if v != nil {
			bag[f.Key] = v
		}
	}
	return bag
}

// Bag holds already-extracted unified fields keyed by unified name.
type Bag map[string]any

// Set stores v under key unless v is nil or an empty string, and returns
// the bag for chaining.
func (b Bag) Set(key string, v any) Bag {
	if v == nil {
		return b
	}
	if s, ok := v.(string); ok && s == "" {
		return b
	}
	b[key] = v
	return b
}

// Default stores v only when key is not set yet.
func (b Bag) Default(key string, v any) Bag {
	if _, ok := b[key]; ok {
		return b
	}
	return b.Set(key, v)
}

// Has reports whether key is set.
func (b Bag) Has(key string) bool {
	_, ok := b[key]
	return ok
}

// String returns key as a string, or "".
func (b Bag) String(key string) string {
	s, _ := safe.ToString(b[key])
	return s
}

// Decimal returns key as a decimal, or nil when unset or not numeric.
func (b Bag) Decimal(key string) *decimal.Decimal {
	switch v := b[key].(type) {
	case nil:
		return nil
	case decimal.Decimal:
		return &v
	case *decimal.Decimal:
		return v
	}
	d, ok := safe.ToDecimalValue(b[key])
	if !ok {
		return nil
	}
	return &d
}

// Int returns key as an int64 pointer, or nil.
func (b Bag) Int(key string) *int64 {
	v, ok := safe.ToInt(b[key])
	if !ok {
		return nil
	}
	return &v
}

// Bool returns key as a bool and whether it was set.
func (b Bag) Bool(key string) (bool, bool) {
	return safe.ToBool(b[key])
}

// Lookup maps a vendor value through table and returns def for unknown
// values. It is the usual Transform for status and side enumerations.
func Lookup(table map[string]string, def string) func(v any, raw any) any {
	return func(v any, _ any) any {
		s, ok := v.(string)
		if !ok {
			return nil
		}
		if mapped, ok := table[s]; ok {
			return mapped
		}
		if def == "" {
			return s
		}
		return def
	}
}

// Scale multiplies a numeric value by factor, for seconds-to-milliseconds
// timestamps or fractional rates reported as ratios.
func Scale(factor string) func(v any, raw any) any {
	return func(v any, _ any) any {
		switch x := v.(type) {
		case int64:
			f, err := precise.Parse(factor)
			if err != nil {
				return nil
			}
			return decimal.NewFromInt(x).Mul(f).IntPart()
		case string:
			out, err := precise.Mul(x, factor)
			if err != nil {
				return nil
			}
			return out
		default:
			return nil
		}
	}
}

// ptr returns a pointer to d.
func ptr(d decimal.Decimal) *decimal.Decimal { return &d }
