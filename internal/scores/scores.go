// Package scores serves pre-computed default probabilities by beneficiary id.
package scores

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// ErrNotFound is returned for an unknown beneficiary id.
var ErrNotFound = errors.New("score not found")

// Risk band classes.
const (
	BandLow    = "LOW"
	BandMedium = "MEDIUM"
	BandHigh   = "HIGH"
)

// Bands maps a probability to a risk band. Probabilities below LowMax are
// LOW, below MediumMax MEDIUM, anything else HIGH.
type Bands struct {
	LowMax    float64 `mapstructure:"low_max" yaml:"low_max"`
	MediumMax float64 `mapstructure:"medium_max" yaml:"medium_max"`
}

// DefaultBands returns the 0.3 / 0.6 cut-offs.
func DefaultBands() Bands { return Bands{LowMax: 0.3, MediumMax: 0.6} }

// Validate checks that the cut-offs are ordered within [0,1].
func (b Bands) Validate() error {
	if b.LowMax < 0 || b.MediumMax > 1 || b.LowMax > b.MediumMax {
		return fmt.Errorf("invalid risk bands: low_max=%g medium_max=%g", b.LowMax, b.MediumMax)
	}
	return nil
}

// Classify returns the band for p.
func (b Bands) Classify(p float64) string {
	switch {
	case p < b.LowMax:
		return BandLow
	case p < b.MediumMax:
		return BandMedium
	default:
		return BandHigh
	}
}

// Entry is one looked-up score.
type Entry struct {
	BeneficiaryID string  `json:"beneficiary_id"`
	Score         float64 `json:"score"`
	RiskBandClass string  `json:"risk_band_class"`
}

// Table is an immutable in-memory score index. It is built once and never
// reloaded; restart the process to pick up a new scores file.
type Table struct {
	Path    string
	entries map[string]Entry
	order   []string
}

// Load reads a scores CSV with a beneficiary_id column and either a score or
// a default_prob column. A risk_band_class column, when present, overrides
// the computed band.
func Load(path string, bands Bands) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open scores: %w", err)
	}
	defer f.Close()
	t, err := Read(f, bands)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	t.Path = path
	return t, nil
}

// Read builds a table from CSV content.
func Read(r io.Reader, bands Bands) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("scores file is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	idCol, scoreCol, bandCol := -1, -1, -1
	for i, h := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))) {
		case "beneficiary_id":
			idCol = i
		case "score", "default_prob":
			if scoreCol < 0 {
				scoreCol = i
			}
		case "risk_band_class":
			bandCol = i
		}
	}
	if idCol < 0 || scoreCol < 0 {
		return nil, errors.New("scores file needs beneficiary_id and score (or default_prob) columns")
	}

	t := &Table{entries: map[string]Entry{}}
	line := 1
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", line, err)
		}
		id := cell(rec, idCol)
		if id == "" {
			continue
		}
		p, err := strconv.ParseFloat(cell(rec, scoreCol), 64)
		if err != nil {
			return nil, fmt.Errorf("row %d: invalid score for %s: %w", line, id, err)
		}
		if math.IsNaN(p) || p < 0 || p > 1 {
			return nil, fmt.Errorf("row %d: score %s for %s is outside [0,1]", line, cell(rec, scoreCol), id)
		}
		band := strings.ToUpper(cell(rec, bandCol))
		if band == "" {
			band = bands.Classify(p)
		}
		if _, dup := t.entries[id]; !dup {
			t.order = append(t.order, id)
		}
		t.entries[id] = Entry{BeneficiaryID: id, Score: p, RiskBandClass: band}
	}
	return t, nil
}

// FromProbs indexes freshly computed probabilities.
func FromProbs(ids []string, probs []float64, bands Bands) *Table {
	t := &Table{entries: make(map[string]Entry, len(ids))}
	for i, id := range ids {
		if _, dup := t.entries[id]; !dup {
			t.order = append(t.order, id)
		}
		t.entries[id] = Entry{BeneficiaryID: id, Score: probs[i], RiskBandClass: bands.Classify(probs[i])}
	}
	return t
}

func cell(rec []string, i int) string {
	if i < 0 || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

// Len returns the number of indexed beneficiaries.
func (t *Table) Len() int { return len(t.order) }

// Get returns the entry for id or ErrNotFound.
func (t *Table) Get(id string) (Entry, error) {
	e, ok := t.entries[strings.TrimSpace(id)]
	if !ok {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return e, nil
}

// Entries returns every entry in file order.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.order))
	for _, id := range t.order {
		out = append(out, t.entries[id])
	}
	return out
}

// BandCounts tallies entries per risk band.
func (t *Table) BandCounts() map[string]int {
	out := map[string]int{}
	for _, e := range t.entries {
		out[e.RiskBandClass]++
	}
	return out
}
