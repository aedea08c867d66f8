// Package pipeline drives training and scoring runs end to end.
package pipeline

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/KaramelBytes/creditloom-cli/internal/artifact"
	"github.com/KaramelBytes/creditloom-cli/internal/features"
	"github.com/KaramelBytes/creditloom-cli/internal/gbdt"
	"github.com/KaramelBytes/creditloom-cli/internal/impute"
	"github.com/KaramelBytes/creditloom-cli/internal/source"
	"github.com/KaramelBytes/creditloom-cli/internal/utils"
)

var (
	// ErrEmptyDataset is returned when training would see zero rows.
	ErrEmptyDataset = errors.New("empty training dataset")
	// ErrMissingLabel is returned when the label column is absent or blank.
	ErrMissingLabel = errors.New("training label missing")
)

// Trainer fits and persists a model from a source set.
type Trainer struct {
	Builder *features.Builder
	Params  gbdt.Params
	Store   *artifact.Store
	Log     *slog.Logger
}

// Run builds features, fits the imputer and the classifier, and saves both.
// Nothing is written when any step fails.
func (t *Trainer) Run(set source.Set) (*artifact.Bundle, error) {
	log := logger(t.Log).WithGroup("train")

	if ben := set.Get(source.Beneficiaries); !ben.Missing && ben.Len() == 0 {
		return nil, fmt.Errorf("%w: %s has no rows", ErrEmptyDataset, ben.Path)
	}
	ft, err := t.Builder.Build(set)
	if err != nil {
		return nil, err
	}
	if ft.Len() == 0 {
		return nil, ErrEmptyDataset
	}
	if ft.Labels == nil {
		return nil, fmt.Errorf("%w: no %s column in beneficiary source", ErrMissingLabel, features.LabelColumn)
	}
	if missing := ft.UnlabeledIDs(); len(missing) > 0 {
		return nil, fmt.Errorf("%w: %d beneficiaries without a valid %s (first: %s)", ErrMissingLabel, len(missing), features.LabelColumn, missing[0])
	}
	log.Debug("features built", "rows", ft.Len(), "columns", len(ft.Columns))

	imp := impute.Fit(ft)
	X, err := imp.Apply(ft)
	if err != nil {
		return nil, err
	}
	model, err := gbdt.Fit(X, ft.Labels, t.Params)
	if err != nil {
		return nil, fmt.Errorf("fit classifier: %w", err)
	}

	b := &artifact.Bundle{
		Manifest: artifact.NewManifest(ft.Columns, t.Params, ft.Len(), positiveRate(ft.Labels)),
		Imputer:  imp,
		Model:    model,
	}
	probs, err := model.PredictProba(X)
	if err != nil {
		return nil, err
	}
	if auc := rocAUC(probs, ft.Labels); !math.IsNaN(auc) {
		b.Manifest.TrainAUC = auc
	} else {
		log.Warn("training labels contain a single class")
	}

	if err := t.Store.Save(b); err != nil {
		return nil, fmt.Errorf("save model: %w", err)
	}
	log.Info("model saved", "run", b.Manifest.RunID, "dir", t.Store.Dir, "rows", ft.Len())
	return b, nil
}

// Scorer applies a persisted model to a source set.
type Scorer struct {
	Builder *features.Builder
	Store   *artifact.Store
	Log     *slog.Logger
}

// Scored holds one default probability per beneficiary, in source order.
type Scored struct {
	RunID      string
	ModelRunID string
	CreatedAt  time.Time
	IDs        []string
	Probs      []float64
}

// Len returns the number of scored beneficiaries.
func (s *Scored) Len() int { return len(s.IDs) }

// Run loads the model before touching any source so a missing model fails
// fast, then builds, imputes and predicts. The persisted model is never
// modified.
func (s *Scorer) Run(set source.Set) (*Scored, error) {
	log := logger(s.Log).WithGroup("score")

	b, err := s.Store.Load()
	if err != nil {
		return nil, err
	}
	ft, err := s.Builder.Build(set)
	if err != nil {
		return nil, err
	}
	if fp := ft.Fingerprint(); fp != b.Manifest.Fingerprint {
		return nil, &impute.SchemaMismatchError{Want: b.Manifest.Columns, Got: ft.Columns}
	}
	X, err := b.Imputer.Apply(ft)
	if err != nil {
		return nil, err
	}
	probs, err := b.Model.PredictProba(X)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}
	out := &Scored{
		RunID:      uuid.NewString(),
		ModelRunID: b.Manifest.RunID,
		CreatedAt:  time.Now().UTC(),
		IDs:        ft.IDs,
		Probs:      probs,
	}
	log.Debug("scored", "rows", out.Len(), "model", out.ModelRunID)
	return out, nil
}

// WriteCSV writes beneficiary_id,default_prob rows, replacing path atomically.
func (s *Scored) WriteCSV(path string) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write([]string{source.KeyColumn, "default_prob"}); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	for i, id := range s.IDs {
		if err := w.Write([]string{id, strconv.FormatFloat(s.Probs[i], 'g', -1, 64)}); err != nil {
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := utils.SafeWriteFile(path, buf.Bytes()); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Summary renders a short human-readable description of the run.
func (s *Scored) Summary() string {
	return fmt.Sprintf("Scored %d beneficiaries (run %s, model %s)", s.Len(), s.RunID, s.ModelRunID)
}

func logger(l *slog.Logger) *slog.Logger {
	if l != nil {
		return l
	}
	return slog.Default()
}
