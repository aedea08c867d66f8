// Package artifact persists the fitted imputer and classifier that a scoring
// run needs.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"github.com/KaramelBytes/creditloom-cli/internal/features"
	"github.com/KaramelBytes/creditloom-cli/internal/gbdt"
	"github.com/KaramelBytes/creditloom-cli/internal/impute"
	"github.com/KaramelBytes/creditloom-cli/internal/utils"
)

const (
	ImputerFile  = "imputer.json"
	ModelFile    = "gbdt_model.gob"
	ManifestFile = "manifest.yaml"
)

var (
	// ErrModelNotFound is returned when an artifact is missing.
	ErrModelNotFound = errors.New("trained model not found")
	// ErrInconsistentBundle is returned when the artifacts come from
	// different training runs.
	ErrInconsistentBundle = errors.New("model artifacts do not match")
)

// Manifest describes a training run.
type Manifest struct {
	RunID         string      `yaml:"run_id" json:"run_id"`
	CreatedAt     time.Time   `yaml:"created_at" json:"created_at"`
	SchemaVersion int         `yaml:"schema_version" json:"schema_version"`
	Fingerprint   string      `yaml:"fingerprint" json:"fingerprint"`
	Columns       []string    `yaml:"columns" json:"columns"`
	Params        gbdt.Params `yaml:"params" json:"params"`
	Rows          int         `yaml:"rows" json:"rows"`
	PositiveRate  float64     `yaml:"positive_rate" json:"positive_rate"`
	// TrainAUC is the in-sample ROC AUC; zero when only one class was seen.
	TrainAUC float64 `yaml:"train_auc" json:"train_auc"`
	// Digests of the imputer and model files written with this manifest.
	ImputerSHA256 string `yaml:"imputer_sha256" json:"imputer_sha256"`
	ModelSHA256   string `yaml:"model_sha256" json:"model_sha256"`
}

// NewManifest stamps a manifest with a fresh run id.
func NewManifest(columns []string, p gbdt.Params, rows int, positiveRate float64) Manifest {
	return Manifest{
		RunID:         uuid.NewString(),
		CreatedAt:     time.Now().UTC(),
		SchemaVersion: features.SchemaVersion,
		Fingerprint:   features.Fingerprint(columns),
		Columns:       append([]string(nil), columns...),
		Params:        p,
		Rows:          rows,
		PositiveRate:  positiveRate,
	}
}

// Bundle is everything needed to score.
type Bundle struct {
	Manifest Manifest
	Imputer  *impute.Median
	Model    *gbdt.Model
}

// Store reads and writes bundles in one directory. Concurrent writers to the
// same directory are not coordinated.
type Store struct {
	Dir string
}

// NewStore returns a store rooted at dir.
func NewStore(dir string) *Store { return &Store{Dir: dir} }

func (s *Store) path(name string) string { return filepath.Join(s.Dir, name) }

// Exists reports whether every artifact is present.
func (s *Store) Exists() bool {
	return utils.FileExists(s.path(ImputerFile)) && utils.FileExists(s.path(ModelFile)) &&
		utils.FileExists(s.path(ManifestFile))
}

// Save stages the imputer, the model and the manifest as temp files and
// renames them into place only after all three were written. The manifest
// carries digests of the other two and is renamed last.
func (s *Store) Save(b *Bundle) error {
	if b == nil || b.Imputer == nil || b.Model == nil {
		return errors.New("save bundle: imputer and model are required")
	}
	if err := utils.EnsureDir(s.Dir); err != nil {
		return fmt.Errorf("create model dir: %w", err)
	}
	imp, err := utils.PrettyJSON(b.Imputer)
	if err != nil {
		return fmt.Errorf("encode imputer: %w", err)
	}
	model, err := b.Model.MarshalBinary()
	if err != nil {
		return err
	}
	b.Manifest.ImputerSHA256 = digest(imp)
	b.Manifest.ModelSHA256 = digest(model)
	man, err := yaml.Marshal(b.Manifest)
	if err != nil {
		return fmt.Errorf("encode manifest: %w", err)
	}

	files := []struct {
		name string
		data []byte
	}{{ImputerFile, imp}, {ModelFile, model}, {ManifestFile, man}}
	var staged []string
	cleanup := func() {
		for _, p := range staged {
			_ = os.Remove(p)
		}
	}
	for _, f := range files {
		tmp := s.path(f.name) + ".tmp"
		if err := os.WriteFile(tmp, f.data, 0o644); err != nil {
			cleanup()
			return fmt.Errorf("write %s: %w", f.name, err)
		}
		staged = append(staged, tmp)
	}
	for i, f := range files {
		if err := os.Rename(staged[i], s.path(f.name)); err != nil {
			cleanup()
			return fmt.Errorf("install %s: %w", f.name, err)
		}
	}
	return nil
}

// Load reads a bundle. A missing artifact yields ErrModelNotFound. Files
// that do not match the manifest digests yield ErrInconsistentBundle.
func (s *Store) Load() (*Bundle, error) {
	imp, err := s.read(ImputerFile)
	if err != nil {
		return nil, err
	}
	raw, err := s.read(ModelFile)
	if err != nil {
		return nil, err
	}
	man, err := s.read(ManifestFile)
	if err != nil {
		return nil, err
	}

	var b Bundle
	if err := yaml.Unmarshal(man, &b.Manifest); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ManifestFile, err)
	}
	if b.Manifest.ImputerSHA256 != digest(imp) {
		return nil, fmt.Errorf("%w: %s does not belong to run %s", ErrInconsistentBundle, ImputerFile, b.Manifest.RunID)
	}
	if b.Manifest.ModelSHA256 != digest(raw) {
		return nil, fmt.Errorf("%w: %s does not belong to run %s", ErrInconsistentBundle, ModelFile, b.Manifest.RunID)
	}

	b.Imputer = &impute.Median{}
	if err := json.Unmarshal(imp, b.Imputer); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ImputerFile, err)
	}
	if len(b.Imputer.Columns) != len(b.Imputer.Medians) {
		return nil, fmt.Errorf("parse %s: %d columns but %d medians", ImputerFile, len(b.Imputer.Columns), len(b.Imputer.Medians))
	}
	b.Model = &gbdt.Model{}
	if err := b.Model.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("parse %s: %w", ModelFile, err)
	}

	if b.Manifest.Fingerprint != features.Fingerprint(b.Imputer.Columns) {
		return nil, fmt.Errorf("%w: manifest fingerprint does not match %s", impute.ErrSchemaMismatch, ImputerFile)
	}
	if b.Model.NumFeatures != len(b.Imputer.Columns) {
		return nil, fmt.Errorf("%w: model expects %d features, imputer has %d", impute.ErrSchemaMismatch, b.Model.NumFeatures, len(b.Imputer.Columns))
	}
	return &b, nil
}

func digest(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func (s *Store) read(name string) ([]byte, error) {
	p := s.path(name)
	b, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s missing (run train first)", ErrModelNotFound, p)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return b, nil
}
