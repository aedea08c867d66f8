// Package money provides fixed-precision decimal amounts for aggregating
// monetary CSV columns.
package money

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/apd/v3"
)

const precision = 34

// Places used when converting aggregates to feature values.
const (
	SumPlaces  = 2
	MeanPlaces = 4
)

// Amount is an immutable decimal value.
type Amount struct {
	value apd.Decimal
}

func decimalContext() *apd.Context {
	return apd.BaseContext.WithPrecision(precision)
}

// Parse reads a decimal amount. Thousands separators (',') and a leading
// currency sign are tolerated; blank input is an error.
func Parse(s string) (Amount, error) {
	raw := strings.TrimSpace(s)
	raw = strings.TrimPrefix(raw, "₹")
	raw = strings.ReplaceAll(raw, ",", "")
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Amount{}, fmt.Errorf("invalid amount: empty")
	}
	var d apd.Decimal
	if _, _, err := d.SetString(raw); err != nil {
		return Amount{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Form != apd.Finite {
		return Amount{}, fmt.Errorf("invalid amount %q: not finite", s)
	}
	return Amount{value: d}, nil
}

// FromInt64 returns i as an Amount.
func FromInt64(i int64) Amount {
	var d apd.Decimal
	d.SetInt64(i)
	return Amount{value: d}
}

func (a Amount) String() string { return a.value.String() }

func (a Amount) IsZero() bool { return a.value.IsZero() }

func (a Amount) Cmp(other Amount) int { return a.value.Cmp(&other.value) }

// Add returns a + other.
func (a Amount) Add(other Amount) Amount {
	var out apd.Decimal
	_, _ = decimalContext().Add(&out, &a.value, &other.value)
	return Amount{value: out}
}

// Div returns a / n. Division by zero yields zero.
func (a Amount) Div(n int64) Amount {
	if n == 0 {
		return Amount{}
	}
	var out, den apd.Decimal
	den.SetInt64(n)
	_, _ = decimalContext().Quo(&out, &a.value, &den)
	return Amount{value: out}
}

// Round rounds half-even to the given number of decimal places.
func (a Amount) Round(places int32) Amount {
	var out apd.Decimal
	ctx := decimalContext()
	ctx.Rounding = apd.RoundHalfEven
	_, _ = ctx.Quantize(&out, &a.value, -places)
	return Amount{value: out}
}

// Float64 converts the amount for use as a model feature.
func (a Amount) Float64() float64 {
	f, err := a.value.Float64()
	if err != nil {
		return 0
	}
	return f
}

// Accumulator keeps a running sum and count.
type Accumulator struct {
	sum   Amount
	count int64
}

func (acc *Accumulator) Add(a Amount) {
	acc.sum = acc.sum.Add(a)
	acc.count++
}

func (acc *Accumulator) Count() int64 { return acc.count }

// Sum returns the total rounded to SumPlaces.
func (acc *Accumulator) Sum() Amount { return acc.sum.Round(SumPlaces) }

// Mean returns the average rounded to MeanPlaces; zero when empty.
func (acc *Accumulator) Mean() Amount {
	if acc.count == 0 {
		return Amount{}
	}
	return acc.sum.Div(acc.count).Round(MeanPlaces)
}
