package source

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"
)

// ErrMissingOptionalSource is attached to the warning logged when a source
// file does not exist. Load never returns it.
var ErrMissingOptionalSource = errors.New("source file not found")

// SchemaError reports a source whose header does not match its schema.
type SchemaError struct {
	Source string
	Path   string
	Reason string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("source %s (%s): %s", e.Source, e.Path, e.Reason)
}

// Load reads the CSV file at path and validates its header against schema.
// A missing file yields an empty table and a warning; a malformed file is an
// error.
func Load(path string, schema Schema, log *slog.Logger) (*Table, error) {
	if log == nil {
		log = slog.Default()
	}
	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			log.Warn("source not found, continuing without it",
				"source", schema.Name, "path", path, "error", ErrMissingOptionalSource)
			t := Empty(schema, path)
			t.Missing = true
			return t, nil
		}
		return nil, fmt.Errorf("open %s source: %w", schema.Name, err)
	}
	defer f.Close()

	t, err := read(f, schema, path, log)
	if err != nil {
		return nil, err
	}
	log.Debug("source loaded", "source", schema.Name, "path", path, "rows", t.Len())
	return t, nil
}

// Read parses CSV content from r against schema. It is Load without the
// file handling.
func Read(r io.Reader, schema Schema, log *slog.Logger) (*Table, error) {
	return read(r, schema, "", log)
}

func read(r io.Reader, schema Schema, path string, log *slog.Logger) (*Table, error) {
	if log == nil {
		log = slog.Default()
	}
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return Empty(schema, path), nil
		}
		return nil, fmt.Errorf("read %s header: %w", schema.Name, err)
	}
	index, err := bindHeader(header, schema, path)
	if err != nil {
		return nil, err
	}
	ncol := len(header)

	t := &Table{Schema: schema, Path: path, index: index}
	keyIdx := index[schema.Key]
	var skipped int
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read %s row %d: %w", schema.Name, line, err)
		}
		if len(rec) > ncol {
			return nil, &SchemaError{Source: schema.Name, Path: path,
				Reason: fmt.Sprintf("row %d has %d fields, header has %d", line, len(rec), ncol)}
		}
		if len(rec) < ncol {
			tmp := make([]string, ncol)
			copy(tmp, rec)
			rec = tmp
		}
		if isMissing(strings.TrimSpace(rec[keyIdx])) {
			skipped++
			continue
		}
		t.rows = append(t.rows, rec)
	}
	if skipped > 0 {
		log.Warn("rows without beneficiary id skipped", "source", schema.Name, "rows", skipped)
	}
	return t, nil
}

// bindHeader maps canonical column names to record positions.
func bindHeader(header []string, schema Schema, path string) (map[string]int, error) {
	pos := make(map[string]int, len(header))
	for i, h := range header {
		name := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if name == "" {
			continue
		}
		if _, dup := pos[name]; dup {
			return nil, &SchemaError{Source: schema.Name, Path: path, Reason: fmt.Sprintf("duplicate header %q", name)}
		}
		pos[name] = i
	}

	index := make(map[string]int, len(schema.Columns)+1)
	keyPos, ok := pos[schema.Key]
	if !ok {
		return nil, &SchemaError{Source: schema.Name, Path: path, Reason: fmt.Sprintf("missing key column %q", schema.Key)}
	}
	index[schema.Key] = keyPos

	var missing []string
	for _, c := range schema.Columns {
		p, found := pos[c.Name]
		if !found {
			for _, a := range c.Aliases {
				if p, found = pos[a]; found {
					break
				}
			}
		}
		if !found {
			if c.Required {
				missing = append(missing, c.Name)
			}
			continue
		}
		index[c.Name] = p
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Source: schema.Name, Path: path, Reason: "missing required columns: " + strings.Join(missing, ", ")}
	}
	return index, nil
}

// Paths maps source names to file paths.
type Paths map[string]string

// Set holds one table per source name.
type Set map[string]*Table

// Get returns the named table, or an empty table when it was never loaded.
func (s Set) Get(name string) *Table {
	if t, ok := s[name]; ok && t != nil {
		return t
	}
	schema, _ := SchemaFor(name)
	t := Empty(schema, "")
	t.Missing = true
	return t
}

// LoadSet loads every known source from paths. Sources without a configured
// path are treated like missing files.
func LoadSet(paths Paths, log *slog.Logger) (Set, error) {
	if log == nil {
		log = slog.Default()
	}
	set := make(Set, len(schemas))
	for _, schema := range schemas {
		p := strings.TrimSpace(paths[schema.Name])
		if p == "" {
			log.Warn("no path configured for source, continuing without it",
				"source", schema.Name, "error", ErrMissingOptionalSource)
			t := Empty(schema, "")
			t.Missing = true
			set[schema.Name] = t
			continue
		}
		t, err := Load(p, schema, log)
		if err != nil {
			return nil, err
		}
		set[schema.Name] = t
	}
	return set, nil
}
