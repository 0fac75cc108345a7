package precise

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Mode is the convention an exchange uses to express the smallest
// meaningful increment of a number.
type Mode int

const (
	DecimalPlaces Mode = iota
	SignificantDigits
	TickSize
)

func (m Mode) String() string {
	switch m {
	case DecimalPlaces:
		return "decimal_places"
	case SignificantDigits:
		return "significant_digits"
	case TickSize:
		return "tick_size"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Rounding selects between rounding half away from zero and truncation
// toward zero.
type Rounding int

const (
	Round Rounding = iota
	Truncate
)

// Padding controls whether trailing zeros are kept up to the precision.
type Padding int

const (
	NoPadding Padding = iota
	PadWithZero
)

// Precision pairs a mode with its value: a digit count for DecimalPlaces
// and SignificantDigits, a step such as "0.05" for TickSize. The zero value
// is unset.
type Precision struct {
	Mode  Mode   `json:"mode" yaml:"mode"`
	Value string `json:"value" yaml:"value"`
}

// Places builds a DecimalPlaces precision.
func Places(n int) Precision {
	return Precision{Mode: DecimalPlaces, Value: strconv.Itoa(n)}
}

// Significant builds a SignificantDigits precision.
func Significant(n int) Precision {
	return Precision{Mode: SignificantDigits, Value: strconv.Itoa(n)}
}

// Tick builds a TickSize precision from a step string.
func Tick(step string) Precision {
	return Precision{Mode: TickSize, Value: step}
}

// IsSet reports whether p carries a value.
func (p Precision) IsSet() bool {
	return strings.TrimSpace(p.Value) != ""
}

// ToPrecision formats value according to p. The result is canonical, so
// applying the same precision twice returns the same string.
func ToPrecision(value string, p Precision, rounding Rounding, padding Padding) (string, error) {
	d, err := Parse(value)
	if err != nil {
		return "", err
	}
	switch p.Mode {
	case DecimalPlaces:
		n, err := digits(p)
		if err != nil {
			return "", err
		}
		return toPlaces(d, int32(n), rounding, padding), nil
	case SignificantDigits:
		n, err := digits(p)
		if err != nil {
			return "", err
		}
		if n < 1 {
			return "", fmt.Errorf("significant digits must be positive, got %d", n)
		}
		return toSignificant(d, int32(n), rounding, padding), nil
	case TickSize:
		step, err := Parse(p.Value)
		if err != nil {
			return "", err
		}
		if !step.IsPositive() {
			return "", fmt.Errorf("tick size must be positive, got %s", p.Value)
		}
		return toTick(d, step, rounding, padding), nil
	default:
		return "", fmt.Errorf("unknown precision mode %v", p.Mode)
	}
}

func digits(p Precision) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(p.Value))
	if err != nil {
		return 0, fmt.Errorf("%w: precision %q", ErrMalformed, p.Value)
	}
	return n, nil
}

func roundTo(d decimal.Decimal, places int32, rounding Rounding) decimal.Decimal {
	if rounding == Truncate {
		return d.RoundDown(places)
	}
	return d.Round(places)
}

func toPlaces(d decimal.Decimal, places int32, rounding Rounding, padding Padding) string {
	r := roundTo(d, places, rounding)
	if padding == PadWithZero && places > 0 {
		return r.StringFixed(places)
	}
	return r.String()
}

// mostSignificant returns the power of ten of the leading digit of d.
func mostSignificant(d decimal.Decimal) int32 {
	coef := d.Coefficient()
	coef.Abs(coef)
	return int32(len(coef.String())) + d.Exponent() - 1
}

func toSignificant(d decimal.Decimal, n int32, rounding Rounding, padding Padding) string {
	if d.IsZero() {
		return "0"
	}
	r := roundTo(d, n-1-mostSignificant(d), rounding)
	if r.IsZero() {
		return "0"
	}
	places := n - 1 - mostSignificant(r)
	if padding == PadWithZero && places > 0 {
		return r.StringFixed(places)
	}
	return r.String()
}

func toTick(d, step decimal.Decimal, rounding Rounding, padding Padding) string {
	q, rem := d.QuoRem(step, 0)
	if rounding == Round && rem.Abs().Mul(decimal.NewFromInt(2)).GreaterThanOrEqual(step) {
		if d.IsNegative() {
			q = q.Sub(decimal.NewFromInt(1))
		} else {
			q = q.Add(decimal.NewFromInt(1))
		}
	}
	r := q.Mul(step)
	places := DecimalsOf(step.String())
	if padding == PadWithZero && places > 0 {
		return r.StringFixed(int32(places))
	}
	return r.String()
}

// DecimalsOf counts the fractional digits of a canonical decimal string,
// so "0.001" gives 3 and "10" gives 0.
func DecimalsOf(s string) int {
	if strings.ContainsAny(s, "eE") {
		if d, err := Parse(s); err == nil {
			s = d.String()
		}
	}
	i := strings.IndexByte(s, '.')
	if i < 0 {
		return 0
	}
	return len(strings.TrimRight(s[i+1:], "0"))
}

// StepFromPlaces turns a decimal place count into its tick, "2" -> "0.01".
func StepFromPlaces(places string) (string, error) {
	n, err := strconv.Atoi(strings.TrimSpace(places))
	if err != nil {
		return "", fmt.Errorf("%w: places %q", ErrMalformed, places)
	}
	return decimal.New(1, int32(-n)).String(), nil
}
