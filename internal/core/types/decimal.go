// Package types provides money, quantity and business-date value types.
package types

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// Money represents a monetary value with full precision.
type Money = decimal.Decimal

// NewMoneyFromString creates a Money value from a string.
func NewMoneyFromString(s string) (Money, error) {
	return decimal.NewFromString(s)
}

// MustMoney creates a Money value from a string, panics on error.
// Use only for constants and tests.
func MustMoney(s string) Money {
	d, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return d
}

// Zero returns zero Money value.
func Zero() Money {
	return decimal.Zero
}

// SumMoney adds up amounts.
func SumMoney(amounts ...Money) Money {
	total := decimal.Zero
	for _, a := range amounts {
		total = total.Add(a)
	}
	return total
}

// Quantity is a fixed-point quantity with 4 decimal places (scale = 1e4).
// Stored as BIGINT (scaled integer); JSON is a number with up to 4 decimals.
type Quantity int64

const QuantityScale int64 = 10_000

// MaxQuantity bounds every quantity and stock level: 100 billion units.
// Two bounded values always sum without int64 overflow.
const MaxQuantity Quantity = 100_000_000_000 * Quantity(QuantityScale)

// ErrQuantityRange is returned when a quantity leaves [-MaxQuantity, MaxQuantity].
var ErrQuantityRange = errors.New("quantity out of range")

func NewQuantityFromFloat64(v float64) Quantity {
	return Quantity(math.Round(v * float64(QuantityScale)))
}

// Units builds a whole-unit quantity (Units(3) == 3.0000).
func Units(n int64) Quantity { return Quantity(n * QuantityScale) }

// ParseQuantity parses a decimal string such as "12.5".
func ParseQuantity(s string) (Quantity, error) { return parseQuantityString(s) }

// MustQuantity parses s, panics on error. Use only for tests.
func MustQuantity(s string) Quantity {
	q, err := parseQuantityString(s)
	if err != nil {
		panic(err)
	}
	return q
}

func (q Quantity) Int64Scaled() int64 { return int64(q) }

func (q Quantity) Float64() float64 { return float64(q) / float64(QuantityScale) }

func (q Quantity) IsZero() bool { return q == 0 }

func (q Quantity) IsPositive() bool { return q > 0 }

func (q Quantity) IsNegative() bool { return q < 0 }

// InRange reports whether q is within [-MaxQuantity, MaxQuantity].
func (q Quantity) InRange() bool { return q >= -MaxQuantity && q <= MaxQuantity }

// Add returns q + o, or ErrQuantityRange when either operand or the sum is out of range.
func (q Quantity) Add(o Quantity) (Quantity, error) {
	if !q.InRange() || !o.InRange() {
		return 0, ErrQuantityRange
	}
	sum := q + o
	if !sum.InRange() {
		return 0, ErrQuantityRange
	}
	return sum, nil
}

// Decimal converts the quantity without loss.
func (q Quantity) Decimal() decimal.Decimal { return decimal.New(int64(q), -4) }

// Times returns q × unit price, the amount of a delivery line.
func (q Quantity) Times(price Money) Money { return q.Decimal().Mul(price) }

// String returns a decimal string with 4 fractional digits.
func (q Quantity) String() string {
	neg := q < 0
	v := q
	if neg {
		v = -v
	}
	intPart := int64(v) / QuantityScale
	frac := int64(v) % QuantityScale
	if neg {
		return fmt.Sprintf("-%d.%04d", intPart, frac)
	}
	return fmt.Sprintf("%d.%04d", intPart, frac)
}

// MarshalJSON encodes Quantity as JSON number, preserving 4 digits.
func (q Quantity) MarshalJSON() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalJSON accepts either a JSON number or string.
func (q *Quantity) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}

	if len(data) >= 2 && data[0] == '"' && data[len(data)-1] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		data = []byte(s)
	}

	parsed, err := parseQuantityString(string(data))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}

func parseQuantityString(s string) (Quantity, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("empty quantity")
	}
	if strings.ContainsAny(s, "eE") {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("parse quantity: %w", err)
		}
		if math.IsNaN(f) || math.Abs(f) > MaxQuantity.Float64() {
			return 0, fmt.Errorf("parse quantity %q: %w", s, ErrQuantityRange)
		}
		return NewQuantityFromFloat64(f), nil
	}

	sign := int64(1)
	if rest, ok := strings.CutPrefix(s, "-"); ok {
		sign = -1
		s = rest
	} else {
		s = strings.TrimPrefix(s, "+")
	}

	intPartStr, fracStr, _ := strings.Cut(s, ".")
	if intPartStr == "" {
		intPartStr = "0"
	}
	intPart, err := strconv.ParseInt(intPartStr, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse quantity integer part: %w", err)
	}
	if intPart < 0 {
		return 0, fmt.Errorf("parse quantity %q: repeated sign", s)
	}
	if intPart > int64(MaxQuantity)/QuantityScale {
		return 0, fmt.Errorf("parse quantity %q: %w", s, ErrQuantityRange)
	}

	// pad right, truncate past 4 digits
	if len(fracStr) > 4 {
		fracStr = fracStr[:4]
	}
	for len(fracStr) < 4 {
		fracStr += "0"
	}
	frac, err := strconv.ParseInt(fracStr, 10, 64)
	if err != nil || frac < 0 {
		return 0, fmt.Errorf("parse quantity fractional part of %q", s)
	}

	q := Quantity(sign * (intPart*QuantityScale + frac))
	if !q.InRange() {
		return 0, fmt.Errorf("parse quantity %q: %w", s, ErrQuantityRange)
	}
	return q, nil
}
