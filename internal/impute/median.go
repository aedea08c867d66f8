// Package impute fills missing feature values with per-column medians learned
// at training time.
package impute

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/KaramelBytes/creditloom-cli/internal/features"
	"github.com/KaramelBytes/creditloom-cli/internal/utils"
)

// ErrSchemaMismatch is matched by every *SchemaMismatchError.
var ErrSchemaMismatch = errors.New("feature schema mismatch")

// SchemaMismatchError reports the first column where two schemas diverge.
type SchemaMismatchError struct {
	Want []string
	Got  []string
}

func (e *SchemaMismatchError) Error() string {
	n := min(len(e.Want), len(e.Got))
	for i := 0; i < n; i++ {
		if e.Want[i] != e.Got[i] {
			return fmt.Sprintf("feature schema mismatch at column %d: model has %q, data has %q", i, e.Want[i], e.Got[i])
		}
	}
	return fmt.Sprintf("feature schema mismatch: model has %d columns, data has %d", len(e.Want), len(e.Got))
}

func (e *SchemaMismatchError) Is(target error) bool { return target == ErrSchemaMismatch }

// Median holds one fill value per feature column.
type Median struct {
	Columns []string  `json:"columns"`
	Medians []float64 `json:"medians"`
}

// Fit learns the median of the non-missing values of every column. A column
// with no values gets 0.
func Fit(t *features.Table) *Median {
	m := &Median{
		Columns: append([]string(nil), t.Columns...),
		Medians: make([]float64, len(t.Columns)),
	}
	col := make([]float64, 0, t.Len())
	for j := range t.Columns {
		col = col[:0]
		for _, row := range t.Values {
			if v := row[j]; !math.IsNaN(v) {
				col = append(col, v)
			}
		}
		sort.Float64s(col)
		m.Medians[j] = utils.Quantile(col, 0.5)
	}
	return m
}

// Check verifies that columns match the fitted schema in names and order.
func (m *Median) Check(columns []string) error {
	if len(columns) != len(m.Columns) {
		return &SchemaMismatchError{Want: m.Columns, Got: columns}
	}
	for i := range columns {
		if columns[i] != m.Columns[i] {
			return &SchemaMismatchError{Want: m.Columns, Got: columns}
		}
	}
	return nil
}

// Apply returns a copy of the feature values with NaN replaced by the fitted
// medians. The table itself is not modified.
func (m *Median) Apply(t *features.Table) ([][]float64, error) {
	if err := m.Check(t.Columns); err != nil {
		return nil, err
	}
	out := make([][]float64, len(t.Values))
	for i, row := range t.Values {
		r := make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) {
				v = m.Medians[j]
			}
			r[j] = v
		}
		out[i] = r
	}
	return out, nil
}
