// Package store records scoring runs in a local sqlite database.
package store

import (
	"database/sql"
	"embed"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/pkg/errors"
	_ "modernc.org/sqlite"
)

const (
	DataFileName = "history.db"

	// timeLayout is fixed width so created_at sorts lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z"

	insertRunSQL = `INSERT INTO score_run (run_id, model_run_id, created_at, output_path, num_scored)
		VALUES (?, ?, ?, ?, ?)`
	insertScoreSQL = `INSERT INTO score (run_id, beneficiary_id, default_prob, risk_band_class)
		VALUES (?, ?, ?, ?)`
	selectRunsSQL = `SELECT run_id, model_run_id, created_at, output_path, num_scored
		FROM score_run ORDER BY created_at DESC, run_id DESC LIMIT ?`
	selectRunScoresSQL = `SELECT beneficiary_id, default_prob, risk_band_class
		FROM score WHERE run_id = ? ORDER BY rowid`
	selectBeneficiarySQL = `SELECT s.run_id, r.created_at, s.default_prob, s.risk_band_class
		FROM score s JOIN score_run r ON r.run_id = s.run_id
		WHERE s.beneficiary_id = ? ORDER BY r.created_at DESC, s.run_id DESC`
)

var (
	//go:embed sql/*
	f embed.FS

	errDBNotInitialized = errors.New("database not initialized")

	// ErrRunNotFound is returned for an unknown run id.
	ErrRunNotFound = errors.New("score run not found")
)

// Run is one recorded scoring run.
type Run struct {
	RunID      string    `json:"run_id"`
	ModelRunID string    `json:"model_run_id"`
	CreatedAt  time.Time `json:"created_at"`
	OutputPath string    `json:"output_path"`
	NumScored  int       `json:"num_scored"`
}

// Score is one beneficiary's result within a run.
type Score struct {
	BeneficiaryID string  `json:"beneficiary_id"`
	DefaultProb   float64 `json:"default_prob"`
	RiskBandClass string  `json:"risk_band_class"`
}

// BeneficiaryScore is a beneficiary's score in one past run.
type BeneficiaryScore struct {
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Score
}

// Init creates the database file when missing and ensures the schema exists.
// The DDL is idempotent, so Init is safe on an existing database.
func Init(dbFilePath string) error {
	if dbFilePath == "" {
		return errors.New("dbFilePath not specified")
	}
	if dir := filepath.Dir(dbFilePath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrapf(err, "failed to create database dir: %s", dir)
		}
	}
	db, err := Open(dbFilePath)
	if err != nil {
		return errors.Wrapf(err, "error opening database: %s", dbFilePath)
	}
	defer db.Close()

	slog.Debug("ensuring db schema", "path", dbFilePath)
	b, err := f.ReadFile("sql/ddl.sql")
	if err != nil {
		return errors.Wrap(err, "failed to read the schema creation file")
	}
	if _, err := db.Exec(string(b)); err != nil {
		return errors.Wrapf(err, "failed to create database schema in: %s", dbFilePath)
	}
	return nil
}

// Open opens the sqlite database at path.
func Open(path string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database: %s", path)
	}
	return conn, nil
}

// SaveRun inserts a run and its scores in one transaction.
func SaveRun(db *sql.DB, run Run, scores []Score) error {
	if db == nil {
		return errDBNotInitialized
	}
	tx, err := db.Begin()
	if err != nil {
		return errors.Wrap(err, "failed to begin transaction")
	}
	if _, err := tx.Exec(insertRunSQL, run.RunID, run.ModelRunID,
		run.CreatedAt.UTC().Format(timeLayout), run.OutputPath, len(scores)); err != nil {
		rollback(tx)
		return errors.Wrapf(err, "error inserting run: %s", run.RunID)
	}
	stmt, err := tx.Prepare(insertScoreSQL)
	if err != nil {
		rollback(tx)
		return errors.Wrap(err, "failed to prepare score insert statement")
	}
	defer stmt.Close()
	for i, s := range scores {
		if _, err := stmt.Exec(run.RunID, s.BeneficiaryID, s.DefaultProb, s.RiskBandClass); err != nil {
			rollback(tx)
			return errors.Wrapf(err, "error inserting score[%d]: %s", i, s.BeneficiaryID)
		}
	}
	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, "failed to commit transaction")
	}
	return nil
}

// ListRuns returns up to limit runs, newest first.
func ListRuns(db *sql.DB, limit int) ([]*Run, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.Query(selectRunsSQL, limit)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute run select statement")
	}
	defer rows.Close()

	var list []*Run
	for rows.Next() {
		r := &Run{}
		var created string
		if err := rows.Scan(&r.RunID, &r.ModelRunID, &created, &r.OutputPath, &r.NumScored); err != nil {
			return nil, errors.Wrap(err, "failed to scan run row")
		}
		if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, errors.Wrapf(err, "invalid created_at for run %s", r.RunID)
		}
		list = append(list, r)
	}
	return list, errors.Wrap(rows.Err(), "failed to iterate runs")
}

// RunScores returns the scores of one run in insertion order.
func RunScores(db *sql.DB, runID string) ([]Score, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	rows, err := db.Query(selectRunScoresSQL, runID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute score select statement")
	}
	defer rows.Close()

	var list []Score
	for rows.Next() {
		var s Score
		if err := rows.Scan(&s.BeneficiaryID, &s.DefaultProb, &s.RiskBandClass); err != nil {
			return nil, errors.Wrap(err, "failed to scan score row")
		}
		list = append(list, s)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "failed to iterate scores")
	}
	if len(list) == 0 {
		var n int
		if err := db.QueryRow(`SELECT COUNT(*) FROM score_run WHERE run_id = ?`, runID).Scan(&n); err != nil {
			return nil, errors.Wrap(err, "failed to check run")
		}
		if n == 0 {
			return nil, errors.Wrapf(ErrRunNotFound, "run %s", runID)
		}
	}
	return list, nil
}

// BeneficiaryHistory returns every recorded score for one beneficiary, newest
// first.
func BeneficiaryHistory(db *sql.DB, beneficiaryID string) ([]BeneficiaryScore, error) {
	if db == nil {
		return nil, errDBNotInitialized
	}
	rows, err := db.Query(selectBeneficiarySQL, beneficiaryID)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute beneficiary select statement")
	}
	defer rows.Close()

	var list []BeneficiaryScore
	for rows.Next() {
		var (
			s       BeneficiaryScore
			created string
		)
		if err := rows.Scan(&s.RunID, &created, &s.DefaultProb, &s.RiskBandClass); err != nil {
			return nil, errors.Wrap(err, "failed to scan beneficiary row")
		}
		s.BeneficiaryID = beneficiaryID
		if s.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, errors.Wrapf(err, "invalid created_at for run %s", s.RunID)
		}
		list = append(list, s)
	}
	return list, errors.Wrap(rows.Err(), "failed to iterate beneficiary scores")
}

func rollback(tx *sql.Tx) {
	if err := tx.Rollback(); err != nil {
		slog.Error("failed to rollback transaction", "error", err)
	}
}
