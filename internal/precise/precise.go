// Package precise implements lossless decimal string arithmetic and the
// rounding rules exchanges use for prices and amounts.
package precise

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// divisionScale is the number of fractional digits kept by Div.
const divisionScale = 18

var (
	// ErrMalformed is returned for empty or non-numeric input strings.
	ErrMalformed = errors.New("malformed decimal string")
	// ErrDivisionByZero is returned by Div and Mod when the divisor is zero.
	ErrDivisionByZero = errors.New("division by zero")
)

// Parse converts s into a decimal. Surrounding whitespace is ignored, an
// empty string or anything shopspring cannot parse yields ErrMalformed.
func Parse(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, fmt.Errorf("%w: empty string", ErrMalformed)
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	return d, nil
}

func parsePair(a, b string) (decimal.Decimal, decimal.Decimal, error) {
	x, err := Parse(a)
	if err != nil {
		return x, decimal.Zero, err
	}
	y, err := Parse(b)
	if err != nil {
		return x, y, err
	}
	return x, y, nil
}

// Add returns a + b.
func Add(a, b string) (string, error) {
	x, y, err := parsePair(a, b)
	if err != nil {
		return "", err
	}
	return x.Add(y).String(), nil
}

// Sub returns a - b.
func Sub(a, b string) (string, error) {
	x, y, err := parsePair(a, b)
	if err != nil {
		return "", err
	}
	return x.Sub(y).String(), nil
}

// Mul returns a * b.
func Mul(a, b string) (string, error) {
	x, y, err := parsePair(a, b)
	if err != nil {
		return "", err
	}
	return x.Mul(y).String(), nil
}

// Div returns a / b rounded to 18 fractional digits.
func Div(a, b string) (string, error) {
	x, y, err := parsePair(a, b)
	if err != nil {
		return "", err
	}
	if y.IsZero() {
		return "", ErrDivisionByZero
	}
	return x.DivRound(y, divisionScale).String(), nil
}

// Mod returns the remainder of a / b. The sign follows a.
func Mod(a, b string) (string, error) {
	x, y, err := parsePair(a, b)
	if err != nil {
		return "", err
	}
	if y.IsZero() {
		return "", ErrDivisionByZero
	}
	return x.Mod(y).String(), nil
}

// Cmp compares a and b and returns -1, 0 or +1.
func Cmp(a, b string) (int, error) {
	x, y, err := parsePair(a, b)
	if err != nil {
		return 0, err
	}
	return x.Cmp(y), nil
}

// Max returns the larger of a and b in canonical form.
func Max(a, b string) (string, error) {
	x, y, err := parsePair(a, b)
	if err != nil {
		return "", err
	}
	return decimal.Max(x, y).String(), nil
}

// Min returns the smaller of a and b in canonical form.
func Min(a, b string) (string, error) {
	x, y, err := parsePair(a, b)
	if err != nil {
		return "", err
	}
	return decimal.Min(x, y).String(), nil
}

// Neg returns -a.
func Neg(a string) (string, error) {
	x, err := Parse(a)
	if err != nil {
		return "", err
	}
	return x.Neg().String(), nil
}

// Abs returns |a|.
func Abs(a string) (string, error) {
	x, err := Parse(a)
	if err != nil {
		return "", err
	}
	return x.Abs().String(), nil
}

// Equal reports whether a and b are numerically equal. Malformed input is
// never equal to anything.
func Equal(a, b string) bool {
	c, err := Cmp(a, b)
	return err == nil && c == 0
}

// Gt reports a > b. Malformed input yields false.
func Gt(a, b string) bool {
	c, err := Cmp(a, b)
	return err == nil && c > 0
}

// Lt reports a < b. Malformed input yields false.
func Lt(a, b string) bool {
	c, err := Cmp(a, b)
	return err == nil && c < 0
}
