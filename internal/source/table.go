package source

import (
	"strconv"
	"strings"
	"time"

	"github.com/KaramelBytes/creditloom-cli/internal/money"
)

// Table holds the rows of one source file, addressed by canonical column
// name. A Table is never mutated after Load returns it.
type Table struct {
	Schema Schema
	Path   string
	// Missing is set when the file did not exist.
	Missing bool

	index map[string]int
	rows  [][]string
}

// Empty returns an empty table bound to the schema.
func Empty(schema Schema, path string) *Table {
	return &Table{Schema: schema, Path: path, index: map[string]int{}}
}

// Len returns the number of data rows.
func (t *Table) Len() int {
	if t == nil {
		return 0
	}
	return len(t.rows)
}

// IsEmpty reports whether the table has no data rows.
func (t *Table) IsEmpty() bool { return t.Len() == 0 }

// Has reports whether the file header carried the column.
func (t *Table) Has(col string) bool {
	if t == nil {
		return false
	}
	_, ok := t.index[col]
	return ok
}

// Key returns the beneficiary identifier of a row.
func (t *Table) Key(row int) string {
	return t.Text(row, t.Schema.Key)
}

// Text returns the trimmed cell value, or "" when the column is absent
// or the cell holds a missing-value marker.
func (t *Table) Text(row int, col string) string {
	i, ok := t.index[col]
	if !ok || row < 0 || row >= len(t.rows) {
		return ""
	}
	v := strings.TrimSpace(t.rows[row][i])
	if isMissing(v) {
		return ""
	}
	return v
}

// Float parses a numeric cell. ok is false for blank or non-numeric cells.
func (t *Table) Float(row int, col string) (float64, bool) {
	return parseNumeric(t.Text(row, col))
}

// Money parses a monetary cell as a fixed-precision amount.
func (t *Table) Money(row int, col string) (money.Amount, bool) {
	v := t.Text(row, col)
	if v == "" {
		return money.Amount{}, false
	}
	a, err := money.Parse(v)
	if err != nil {
		return money.Amount{}, false
	}
	return a, true
}

// Date parses a date cell using the layouts found in the exports.
func (t *Table) Date(row int, col string) (time.Time, bool) {
	return ParseDate(t.Text(row, col))
}

// Bool parses a flag cell (1/0, true/false, yes/no).
func (t *Table) Bool(row int, col string) (bool, bool) {
	switch strings.ToLower(t.Text(row, col)) {
	case "1", "true", "t", "yes", "y", "1.0":
		return true, true
	case "0", "false", "f", "no", "n", "0.0":
		return false, true
	default:
		return false, false
	}
}

// MissingCount returns how many rows have a blank value in col.
func (t *Table) MissingCount(col string) int {
	var n int
	for i := range t.rows {
		if t.Text(i, col) == "" {
			n++
		}
	}
	return n
}

// DistinctKeys returns the number of distinct beneficiary identifiers.
func (t *Table) DistinctKeys() int {
	seen := make(map[string]struct{}, t.Len())
	for i := 0; i < t.Len(); i++ {
		seen[t.Key(i)] = struct{}{}
	}
	return len(seen)
}

func isMissing(v string) bool {
	switch v {
	case "", "NA", "N/A", "NaN", "nan", "null", "NULL", "None":
		return true
	}
	return false
}

var dateLayouts = []string{
	"2006-01-02", "02-01-2006", "2006/01/02", "02/01/2006",
	time.RFC3339, "2006-01-02 15:04", "2006-01-02 15:04:05", "2006-01-02T15:04:05",
}

// ParseDate parses s with the first matching layout.
func ParseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, l := range dateLayouts {
		if d, err := time.Parse(l, s); err == nil {
			return d, true
		}
	}
	return time.Time{}, false
}

func parseNumeric(s string) (float64, bool) {
	raw := strings.TrimSpace(s)
	if raw == "" {
		return 0, false
	}
	raw = strings.TrimSuffix(raw, "%")
	raw = strings.ReplaceAll(raw, " ", "")
	raw = strings.ReplaceAll(raw, ",", "")
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}
