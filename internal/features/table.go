package features

import (
	"bytes"
	"crypto/sha256"
	"encoding/csv"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/KaramelBytes/creditloom-cli/internal/source"
	"github.com/KaramelBytes/creditloom-cli/internal/utils"
)

// SchemaVersion is bumped whenever feature semantics change without a
// column rename, so persisted models trained before the change are rejected.
const SchemaVersion = 1

// LabelColumn is the default label carried by the beneficiary source.
const LabelColumn = "target_default"

// Table is the per-beneficiary feature matrix. Row i of Values belongs to
// IDs[i]; NaN marks a missing value.
type Table struct {
	IDs     []string
	Columns []string
	Values  [][]float64
	// Labels is nil when the beneficiary source has no label column.
	// Unparseable labels are NaN.
	Labels []float64
}

// Len returns the number of beneficiaries.
func (t *Table) Len() int { return len(t.IDs) }

// Column returns the position of a feature column, or -1.
func (t *Table) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

// Value returns the feature value for a beneficiary, with ok=false when the
// id or column is unknown.
func (t *Table) Value(id, column string) (float64, bool) {
	c := t.Column(column)
	if c < 0 {
		return 0, false
	}
	for i, x := range t.IDs {
		if x == id {
			return t.Values[i][c], true
		}
	}
	return 0, false
}

// HasLabels reports whether every row carries a valid 0/1 label.
func (t *Table) HasLabels() bool {
	if t.Labels == nil || len(t.Labels) != len(t.IDs) {
		return false
	}
	for _, y := range t.Labels {
		if math.IsNaN(y) {
			return false
		}
	}
	return true
}

// UnlabeledIDs returns the ids whose label is missing or invalid.
func (t *Table) UnlabeledIDs() []string {
	if t.Labels == nil {
		return append([]string(nil), t.IDs...)
	}
	var out []string
	for i, y := range t.Labels {
		if math.IsNaN(y) {
			out = append(out, t.IDs[i])
		}
	}
	return out
}

// Fingerprint identifies the feature schema.
func (t *Table) Fingerprint() string { return Fingerprint(t.Columns) }

// Fingerprint hashes the schema version and the ordered column names.
func Fingerprint(columns []string) string {
	h := sha256.New()
	fmt.Fprintf(h, "v%d\n", SchemaVersion)
	h.Write([]byte(strings.Join(columns, "\n")))
	return hex.EncodeToString(h.Sum(nil))
}

// WriteCSV writes the table with a beneficiary_id column first and the label
// last when present.
func (t *Table) WriteCSV(path string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := append([]string{source.KeyColumn}, t.Columns...)
	if t.Labels != nil {
		header = append(header, LabelColumn)
	}
	if err := w.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, id := range t.IDs {
		rec := make([]string, 0, len(header))
		rec = append(rec, id)
		for _, v := range t.Values[i] {
			rec = append(rec, formatFloat(v))
		}
		if t.Labels != nil {
			rec = append(rec, formatFloat(t.Labels[i]))
		}
		if err := w.Write(rec); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return utils.SafeWriteFile(path, buf.Bytes())
}

func formatFloat(v float64) string {
	if math.IsNaN(v) {
		return ""
	}
	return strconv.FormatFloat(v, 'g', -1, 64)
}
