// Package core provides money parsing and handling utilities.
//
// Amounts are kept in integer cents; decimal arithmetic is only used at the
// edges (parsing, VAT computation, formatting) so totals never drift.
package core

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

type (
	Money struct {
		Cents int64
	}

	// Rate is a VAT percentage such as 21 or 5.5.
	Rate float64
)

var (
	ErrInvalidAmount = errors.New("invalid amount")
	ErrInvalidRate   = errors.New("vat rate must be between 0 and 100")
)

var hundred = decimal.NewFromInt(100)

// ComputeVAT returns subtotal*rate/100 rounded half away from zero to the cent.
// A NaN or infinite rate yields zero; Rate.Validate rejects it.
func ComputeVAT(subtotal Money, rate Rate) Money {
	if !rate.finite() {
		return Money{}
	}
	vat := decimal.NewFromInt(subtotal.Cents).
		Mul(rate.Decimal()).
		Div(hundred).
		Round(0)
	return Money{Cents: vat.IntPart()}
}

// ParseAmount converts a decimal string to Money.
//
// It accepts both dot (12.34) and comma (12,34) decimal separators and rounds
// half-up on the third decimal place. Zero and negative amounts are rejected.
//
// Examples:
//
//	ParseAmount("12.34")  -> 1234 cents
//	ParseAmount("12,346") -> 1235 cents
func ParseAmount(s string) (Money, error) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return Money{}, ErrInvalidAmount
	}
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return Money{}, ErrInvalidAmount
	}
	m, err := moneyFromDecimal(d)
	if err != nil {
		return Money{}, err
	}
	if err := m.Validate(); err != nil {
		return Money{}, err
	}
	return m, nil
}

func moneyFromDecimal(d decimal.Decimal) (Money, error) {
	cents := d.Round(2).Shift(2)
	if !cents.IsInteger() || cents.Abs().GreaterThan(decimal.NewFromInt(1<<62)) {
		return Money{}, ErrInvalidAmount
	}
	return Money{Cents: cents.IntPart()}, nil
}

// Cents is a shorthand constructor used heavily in tests and seeds.
func Cents(c int64) Money {
	return Money{Cents: c}
}

func (m Money) Validate() error {
	if m.Cents <= 0 {
		return ErrInvalidAmount
	}
	return nil
}

func (m Money) Add(o Money) Money {
	return Money{Cents: m.Cents + o.Cents}
}

// DivRound divides the amount by n, rounding half away from zero.
// Division by zero yields zero.
func (m Money) DivRound(n int) Money {
	if n == 0 {
		return Money{}
	}
	q := decimal.NewFromInt(m.Cents).Div(decimal.NewFromInt(int64(n))).Round(0)
	return Money{Cents: q.IntPart()}
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}

// Decimal returns the euro value as an exact decimal.
func (m Money) Decimal() decimal.Decimal {
	return decimal.New(m.Cents, -2)
}

// Euros returns the euro value as a float64 for display purposes.
// Use cents for calculations.
func (m Money) Euros() float64 {
	return m.Decimal().InexactFloat64()
}

// String formats the amount with two decimals and a dot separator.
func (m Money) String() string {
	return m.Decimal().StringFixed(2)
}

// FormatEuro formats the amount the way exports print it, e.g. "€12.34".
func (m Money) FormatEuro() string {
	if m.Cents < 0 {
		return "-€" + Money{Cents: -m.Cents}.String()
	}
	return "€" + m.String()
}

// MarshalJSON writes the amount as a JSON number in euros.
func (m Money) MarshalJSON() ([]byte, error) {
	return []byte(m.Decimal().String()), nil
}

func (m *Money) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		*m = Money{}
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return ErrInvalidAmount
	}
	parsed, err := moneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Money) MarshalYAML() (interface{}, error) {
	return m.Decimal().InexactFloat64(), nil
}

func (m *Money) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return ErrInvalidAmount
	}
	parsed, err := moneyFromDecimal(d)
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (r Rate) Validate() error {
	if !r.finite() || r < 0 || r > 100 {
		return ErrInvalidRate
	}
	return nil
}

func (r Rate) finite() bool {
	f := float64(r)
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (r Rate) Decimal() decimal.Decimal {
	if !r.finite() {
		return decimal.Zero
	}
	return decimal.NewFromFloat(float64(r))
}

// String prints the rate without trailing zeros: 21, 5.5.
func (r Rate) String() string {
	return strconv.FormatFloat(float64(r), 'f', -1, 64)
}

// MarshalText lets Rate key JSON objects.
func (r Rate) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Rate) UnmarshalText(text []byte) error {
	f, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(string(text)), "%"), 64)
	if err != nil || !Rate(f).finite() {
		return ErrInvalidRate
	}
	*r = Rate(f)
	return nil
}

// MarshalJSON keeps rate values numeric; map keys go through MarshalText.
func (r Rate) MarshalJSON() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Rate) UnmarshalJSON(data []byte) error {
	return r.UnmarshalText([]byte(strings.Trim(string(data), `"`)))
}

// ParseRate accepts "21", "21%" or "5,5".
func ParseRate(s string) (Rate, error) {
	var r Rate
	if err := r.UnmarshalText([]byte(strings.ReplaceAll(s, ",", "."))); err != nil {
		return 0, err
	}
	if err := r.Validate(); err != nil {
		return 0, err
	}
	return r, nil
}
