// Package features turns the loaded source tables into one numeric row per
// beneficiary.
package features

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/KaramelBytes/creditloom-cli/internal/source"
)

var (
	// ErrMissingRequiredSource is returned when the beneficiary source is
	// absent or has no rows.
	ErrMissingRequiredSource = errors.New("beneficiary source missing or empty")
	// ErrDuplicateBeneficiary is returned when a beneficiary id repeats.
	ErrDuplicateBeneficiary = errors.New("duplicate beneficiary id")
)

// Base feature columns derived from the beneficiary source.
const (
	ColAge            = "age"
	ColAadhaarPresent = "aadhaar_present"
	ColMobilePresent  = "mobile_present"
)

const daysPerYear = 365.25

// Builder derives feature tables from source sets.
type Builder struct {
	// Now anchors age computation; defaults to time.Now.
	Now         func() time.Time
	Aggregators []Aggregator
	Log         *slog.Logger
}

// NewBuilder returns a builder with every default aggregator.
func NewBuilder(log *slog.Logger) *Builder {
	return &Builder{Now: time.Now, Aggregators: DefaultAggregators(), Log: log}
}

// Columns returns the feature columns Build produces, in order.
func (b *Builder) Columns() []string {
	cols := []string{ColAge, ColAadhaarPresent, ColMobilePresent}
	for _, a := range b.Aggregators {
		cols = append(cols, a.Columns()...)
	}
	return cols
}

// Build joins every source onto the beneficiary rows. The row set and order
// come from the beneficiary source alone; optional sources only add columns,
// and beneficiaries without activity in a source get zero there.
func (b *Builder) Build(set source.Set) (*Table, error) {
	ben := set.Get(source.Beneficiaries)
	if ben.IsEmpty() {
		return nil, fmt.Errorf("%w: %s", ErrMissingRequiredSource, describe(ben))
	}

	t, rowOf, err := b.base(ben)
	if err != nil {
		return nil, err
	}

	offset := 3
	for _, agg := range b.Aggregators {
		if err := b.join(t, rowOf, offset, agg, set.Get(agg.Source())); err != nil {
			return nil, err
		}
		offset += len(agg.Columns())
	}

	var filled int
	for _, row := range t.Values {
		for j, v := range row {
			if math.IsNaN(v) {
				row[j] = 0
				filled++
			}
		}
	}
	if filled > 0 {
		b.logger().Debug("filled residual nulls with zero", "cells", filled)
	}
	return t, nil
}

func (b *Builder) base(ben *source.Table) (*Table, map[string]int, error) {
	now := time.Now
	if b.Now != nil {
		now = b.Now
	}
	today := now().UTC()

	cols := b.Columns()
	t := &Table{
		IDs:     make([]string, 0, ben.Len()),
		Columns: cols,
		Values:  make([][]float64, 0, ben.Len()),
	}
	if ben.Has(LabelColumn) {
		t.Labels = make([]float64, 0, ben.Len())
	}
	rowOf := make(map[string]int, ben.Len())

	var badDates int
	for r := 0; r < ben.Len(); r++ {
		id := ben.Key(r)
		if _, dup := rowOf[id]; dup {
			return nil, nil, fmt.Errorf("%w: %s", ErrDuplicateBeneficiary, id)
		}
		rowOf[id] = len(t.IDs)

		row := make([]float64, len(cols))
		row[0] = math.NaN()
		if age, ok := ageYears(ben, r, today); ok {
			row[0] = age
		} else {
			badDates++
		}
		row[1] = presence(ben.Text(r, "aadhaar_number"))
		row[2] = presence(ben.Text(r, "mobile_number"))

		t.IDs = append(t.IDs, id)
		t.Values = append(t.Values, row)
		if t.Labels != nil {
			y := math.NaN()
			if v, ok := ben.Bool(r, LabelColumn); ok {
				y = 0
				if v {
					y = 1
				}
			}
			t.Labels = append(t.Labels, y)
		}
	}
	if badDates > 0 {
		b.logger().Warn("unparseable dates of birth", "rows", badDates)
	}
	return t, rowOf, nil
}

// join left-joins one aggregate onto t at the given column offset.
func (b *Builder) join(t *Table, rowOf map[string]int, offset int, agg Aggregator, src *source.Table) error {
	if src.IsEmpty() {
		b.logger().Debug("no rows for source, columns stay zero", "source", agg.Source())
		return nil
	}
	values, err := agg.Aggregate(src)
	if err != nil {
		return fmt.Errorf("aggregate %s: %w", agg.Source(), err)
	}
	width := len(agg.Columns())
	var orphans int
	for id, v := range values {
		if len(v) != width {
			return fmt.Errorf("aggregate %s: got %d values for %s, want %d", agg.Source(), len(v), id, width)
		}
		r, ok := rowOf[id]
		if !ok {
			orphans++
			continue
		}
		copy(t.Values[r][offset:offset+width], v)
	}
	if orphans > 0 {
		b.logger().Debug("dropped activity for unknown beneficiaries", "source", agg.Source(), "beneficiaries", orphans)
	}
	return nil
}

func (b *Builder) logger() *slog.Logger {
	if b.Log != nil {
		return b.Log
	}
	return slog.Default()
}

func presence(v string) float64 {
	if v == "" {
		return 0
	}
	return 1
}

func describe(t *source.Table) string {
	switch {
	case t.Missing && t.Path == "":
		return "no path configured"
	case t.Missing:
		return "file not found: " + t.Path
	default:
		return "no rows in " + t.Path
	}
}

// earliestDOB bounds plausible birth dates; anything earlier is a typo.
var earliestDOB = time.Date(1900, 1, 1, 0, 0, 0, 0, time.UTC)

// ageYears returns whole days since date_of_birth divided by daysPerYear.
// Unparseable, pre-1900 and future dates report ok=false.
func ageYears(ben *source.Table, row int, today time.Time) (float64, bool) {
	dob, ok := ben.Date(row, "date_of_birth")
	if !ok || dob.Before(earliestDOB) || dob.After(today) {
		return 0, false
	}
	days := math.Floor(float64(today.Unix()-dob.Unix()) / 86400)
	return days / daysPerYear, true
}
