package modelstore

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/mechanismd/internal/curve"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS models (
	name           TEXT PRIMARY KEY,
	dimension      INTEGER NOT NULL,
	sample_count   INTEGER NOT NULL,
	phase_dot_ref  REAL NOT NULL,
	path           TEXT,
	points_json    TEXT NOT NULL,
	stiffness_json TEXT NOT NULL,
	damping_json   TEXT NOT NULL,
	saved_at       TEXT NOT NULL
);
`

// #endregion schema

// #region store-struct
// Store is the SQLite-backed catalogue of curve models fittable from a
// demonstration matrix or reloadable from a previous save. Its methods
// satisfy mutation.Trainer, so it plugs into the insert and save lanes
// directly.
type Store struct {
	db *sql.DB
}

// #endregion store-struct

// #region constructor
// NewStore opens a SQLite database and runs migrations.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// #endregion constructor

// #region close
// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion close

// #region db-accessor
// DB returns the underlying *sql.DB for use by other packages.
func (s *Store) DB() *sql.DB {
	return s.db
}

// #endregion db-accessor

// #region train
// TrainFromMatrix fits a Curve to samples. It touches no database state:
// fitting is pure CPU work, safe to run on the insert lane without any
// locking, and produces a Curve nobody else can see until the tick
// thread publishes it.
func (s *Store) TrainFromMatrix(matrix [][]float64, phaseDotRef float64) (curve.Curve, error) {
	if len(matrix) == 0 {
		return nil, fmt.Errorf("train: empty sample matrix")
	}
	dim := len(matrix[0])
	for i, row := range matrix {
		if len(row) != dim {
			return nil, fmt.Errorf("train: row %d has %d columns, want %d", i, len(row), dim)
		}
	}
	return curve.NewFromMatrix(dim, matrix, phaseDotRef), nil
}

// #endregion train

// #region save
// SaveModel persists a curve's already-fit parameters under name,
// replacing any prior model of the same name.
func (s *Store) SaveModel(name string, snap curve.Params) error {
	pointsJSON, err := json.Marshal(snap.Points)
	if err != nil {
		return fmt.Errorf("marshal points: %w", err)
	}
	stiffnessJSON, err := json.Marshal(snap.Stiffness)
	if err != nil {
		return fmt.Errorf("marshal stiffness: %w", err)
	}
	dampingJSON, err := json.Marshal(snap.Damping)
	if err != nil {
		return fmt.Errorf("marshal damping: %w", err)
	}

	_, err = s.db.Exec(
		`INSERT INTO models (name, dimension, sample_count, phase_dot_ref, path, points_json, stiffness_json, damping_json, saved_at)
		 VALUES (?, ?, ?, ?, '', ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
			dimension = excluded.dimension,
			sample_count = excluded.sample_count,
			phase_dot_ref = excluded.phase_dot_ref,
			points_json = excluded.points_json,
			stiffness_json = excluded.stiffness_json,
			damping_json = excluded.damping_json,
			saved_at = excluded.saved_at`,
		name, snap.Dim, len(snap.Points), snap.PhaseDotRef,
		string(pointsJSON), string(stiffnessJSON), string(dampingJSON),
		time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save model %s: %w", name, err)
	}
	return nil
}

// #endregion save

// #region load
// LoadModel reconstructs a Curve from its saved parameters.
func (s *Store) LoadModel(name string) (curve.Curve, error) {
	var dim int
	var phaseDotRef float64
	var pointsJSON, stiffnessJSON, dampingJSON string

	err := s.db.QueryRow(
		`SELECT dimension, phase_dot_ref, points_json, stiffness_json, damping_json
		 FROM models WHERE name = ?`, name,
	).Scan(&dim, &phaseDotRef, &pointsJSON, &stiffnessJSON, &dampingJSON)
	if err != nil {
		return nil, fmt.Errorf("load model %s: %w", name, err)
	}

	var points [][]float64
	if err := json.Unmarshal([]byte(pointsJSON), &points); err != nil {
		return nil, fmt.Errorf("unmarshal points: %w", err)
	}
	var stiffness, damping []float64
	if err := json.Unmarshal([]byte(stiffnessJSON), &stiffness); err != nil {
		return nil, fmt.Errorf("unmarshal stiffness: %w", err)
	}
	if err := json.Unmarshal([]byte(dampingJSON), &damping); err != nil {
		return nil, fmt.Errorf("unmarshal damping: %w", err)
	}

	c := curve.NewFromMatrix(dim, points, phaseDotRef)
	c.SetGains(stiffness, damping)
	return c, nil
}

// #endregion load

// #region list
// ListModels returns the most recently saved models, most recent first.
func (s *Store) ListModels(limit int) ([]ModelRecord, error) {
	rows, err := s.db.Query(
		`SELECT name, dimension, sample_count, phase_dot_ref, path, saved_at
		 FROM models ORDER BY saved_at DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list models: %w", err)
	}
	defer rows.Close()

	var records []ModelRecord
	for rows.Next() {
		var rec ModelRecord
		var savedAt string
		if err := rows.Scan(&rec.Name, &rec.Dimension, &rec.SampleCount, &rec.PhaseDotRef, &rec.Path, &savedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		rec.SavedAt, _ = time.Parse(time.RFC3339Nano, savedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// #endregion list
