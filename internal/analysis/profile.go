// Package analysis profiles loaded source tables for a quick data-quality
// read before training or scoring.
package analysis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"gonum.org/v1/gonum/stat"

	"github.com/KaramelBytes/creditloom-cli/internal/source"
	"github.com/KaramelBytes/creditloom-cli/internal/utils"
)

// Options controls profiling.
type Options struct {
	// OutlierThreshold is the robust |z| above which a value counts as an
	// outlier. Zero disables outlier counting.
	OutlierThreshold float64
	// TopValues limits how many distinct values are listed for text columns.
	TopValues int
}

// DefaultOptions returns sane defaults for profiling.
func DefaultOptions() Options {
	return Options{OutlierThreshold: 3.5, TopValues: 3}
}

// Report profiles every source of a set.
type Report struct {
	Sources []SourceProfile
}

// SourceProfile summarises one source table.
type SourceProfile struct {
	Name          string
	Path          string
	Missing       bool
	Rows          int
	Beneficiaries int
	Cols          []ColumnSummary
}

// ColumnSummary describes one declared column.
type ColumnSummary struct {
	Name    string
	Kind    string
	Present bool
	NonNull int
	Missing int
	// Invalid counts non-blank cells that do not parse as Kind.
	Invalid int

	// numeric (float, int, money)
	Min, Max, Mean, Std float64
	Median, MAD         float64
	OutliersCount       int
	OutlierThreshold    float64

	// string, bool, date
	TopValues []CategoryCount
	Unique    int
}

// CategoryCount is a value with its frequency.
type CategoryCount struct {
	Value string
	Count int
}

// Profile builds a report over every known source, in schema order.
func Profile(set source.Set, opt Options) *Report {
	r := &Report{}
	for _, name := range source.Names() {
		r.Sources = append(r.Sources, ProfileTable(set.Get(name), opt))
	}
	return r
}

// ProfileTable summarises a single table.
func ProfileTable(t *source.Table, opt Options) SourceProfile {
	p := SourceProfile{
		Name:          t.Schema.Name,
		Path:          t.Path,
		Missing:       t.Missing,
		Rows:          t.Len(),
		Beneficiaries: t.DistinctKeys(),
	}
	for _, col := range t.Schema.Columns {
		p.Cols = append(p.Cols, summarize(t, col, opt))
	}
	return p
}

func summarize(t *source.Table, col source.Column, opt Options) ColumnSummary {
	cs := ColumnSummary{Name: col.Name, Kind: col.Kind.String(), Present: t.Has(col.Name)}
	if !cs.Present {
		return cs
	}
	var nums []float64
	counts := map[string]int{}
	for r := 0; r < t.Len(); r++ {
		raw := t.Text(r, col.Name)
		if raw == "" {
			cs.Missing++
			continue
		}
		cs.NonNull++
		switch col.Kind {
		case source.Float, source.Int:
			if v, ok := t.Float(r, col.Name); ok {
				nums = append(nums, v)
			} else {
				cs.Invalid++
			}
		case source.Money:
			if a, ok := t.Money(r, col.Name); ok {
				nums = append(nums, a.Float64())
			} else {
				cs.Invalid++
			}
		case source.Date:
			if _, ok := t.Date(r, col.Name); !ok {
				cs.Invalid++
			}
		case source.Bool:
			if v, ok := t.Bool(r, col.Name); ok {
				counts[fmt.Sprint(v)]++
			} else {
				cs.Invalid++
			}
		default:
			counts[raw]++
		}
	}

	if len(nums) > 0 {
		sort.Float64s(nums)
		cs.Min, cs.Max = nums[0], nums[len(nums)-1]
		cs.Mean, cs.Std = stat.MeanStdDev(nums, nil)
		if math.IsNaN(cs.Std) {
			cs.Std = 0
		}
		cs.Median, cs.MAD = medianMAD(nums)
		if opt.OutlierThreshold > 0 && cs.MAD > 0 {
			cs.OutlierThreshold = opt.OutlierThreshold
			for _, v := range nums {
				// 0.6745 scales MAD to a standard deviation under normality.
				if z := 0.6745 * (v - cs.Median) / cs.MAD; math.Abs(z) > opt.OutlierThreshold {
					cs.OutliersCount++
				}
			}
		}
	}
	if len(counts) > 0 {
		cs.Unique = len(counts)
		for v, c := range counts {
			cs.TopValues = append(cs.TopValues, CategoryCount{Value: v, Count: c})
		}
		sort.Slice(cs.TopValues, func(i, j int) bool {
			if cs.TopValues[i].Count != cs.TopValues[j].Count {
				return cs.TopValues[i].Count > cs.TopValues[j].Count
			}
			return cs.TopValues[i].Value < cs.TopValues[j].Value
		})
		if opt.TopValues > 0 && len(cs.TopValues) > opt.TopValues {
			cs.TopValues = cs.TopValues[:opt.TopValues]
		}
	}
	return cs
}

// Markdown renders the report as plain text sections.
func (r *Report) Markdown() string {
	var b strings.Builder
	for i, s := range r.Sources {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(s.Markdown())
	}
	return b.String()
}

// Markdown renders one source profile.
func (s SourceProfile) Markdown() string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("[SOURCE %s]\n", strings.ToUpper(s.Name)))
	switch {
	case s.Missing && s.Path == "":
		b.WriteString("File: (not configured)\nStatus: missing\n")
		return b.String()
	case s.Missing:
		b.WriteString(fmt.Sprintf("File: %s\nStatus: missing\n", s.Path))
		return b.String()
	}
	if s.Path != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", s.Path))
	}
	b.WriteString(fmt.Sprintf("Rows: %d\nBeneficiaries: %d\n", s.Rows, s.Beneficiaries))
	for _, c := range s.Cols {
		if !c.Present {
			b.WriteString(fmt.Sprintf("- %s: %s (absent)\n", c.Name, c.Kind))
			continue
		}
		missPct := 0.0
		if total := c.NonNull + c.Missing; total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%", c.Name, c.Kind, c.NonNull, missPct))
		if c.Invalid > 0 {
			b.WriteString(fmt.Sprintf(", invalid %d", c.Invalid))
		}
		b.WriteString(")")
		switch c.Kind {
		case "float", "int", "money":
			if c.NonNull > c.Invalid {
				b.WriteString(fmt.Sprintf(" min %.4g, max %.4g, mean %.4g, median %.4g", c.Min, c.Max, c.Mean, c.Median))
				if c.OutlierThreshold > 0 {
					b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold))
				}
			}
		case "string", "bool":
			// Identifier-like columns (names, phone numbers) only report cardinality.
			if c.Unique > maxCategories {
				b.WriteString(fmt.Sprintf(" unique=%d", c.Unique))
			} else if len(c.TopValues) > 0 {
				b.WriteString(" top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
				if c.Unique > len(c.TopValues) {
					b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
				}
			}
		}
		b.WriteString("\n")
	}
	return b.String()
}

const maxCategories = 20

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	median = utils.Quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = utils.Quantile(dev, 0.5)
	return
}
