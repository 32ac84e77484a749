// Package store persists evaluation runs and per-batch metric snapshots in
// SQLite so a run's history can be charted or resumed later.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/evalmetrics/internal/metrics"
	"github.com/banshee-data/evalmetrics/internal/timeutil"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("store: run not found")

// timeLayout is fixed-width so stored timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

var pragmas = []string{
	"PRAGMA journal_mode=WAL",
	"PRAGMA busy_timeout=5000",
	"PRAGMA synchronous=NORMAL",
	"PRAGMA foreign_keys=ON",
}

// Store wraps the runs database.
type Store struct {
	db    *sql.DB
	path  string
	clock timeutil.Clock
}

// Option customizes Open.
type Option func(*Store)

// WithClock sets the timestamp source; the default is the system clock.
func WithClock(c timeutil.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// Open opens (creating if needed) the database at path. Call MigrateUp
// before first use.
func Open(path string, opts ...Option) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	// One connection keeps the per-connection pragmas in force.
	db.SetMaxOpenConns(1)
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	s := &Store{db: db, path: path, clock: timeutil.RealClock{}}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *Store) Close() error { return s.db.Close() }

// Run is one evaluation session.
type Run struct {
	ID         uuid.UUID `json:"id"`
	Suite      string    `json:"suite"`
	NumClasses int       `json:"num_classes"`
	CreatedAt  time.Time `json:"created_at"`
}

// Snapshot is one metric's reading after a given batch.
type Snapshot struct {
	RunID      uuid.UUID       `json:"run_id"`
	Batch      int             `json:"batch"`
	Metric     string          `json:"metric"`
	Kind       string          `json:"kind"`
	Value      json.RawMessage `json:"value"`
	Params     json.RawMessage `json:"params"`
	RecordedAt time.Time       `json:"recorded_at"`
}

// Point is a scalar metric value after a batch.
type Point struct {
	Batch int
	Value float64
}

// CreateRun starts a run for the named suite.
func (s *Store) CreateRun(ctx context.Context, suite string, nclasses int) (Run, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return Run{}, fmt.Errorf("generate run id: %w", err)
	}
	run := Run{ID: id, Suite: suite, NumClasses: nclasses, CreatedAt: s.clock.Now().UTC()}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, suite, num_classes, created_at) VALUES (?, ?, ?, ?)`,
		run.ID.String(), run.Suite, run.NumClasses, run.CreatedAt.Format(timeLayout))
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// GetRun loads one run.
func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT run_id, suite, num_classes, created_at FROM runs WHERE run_id = ?`, id.String())
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return run, err
}

// ListRuns returns every run, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, suite, num_classes, created_at FROM runs ORDER BY created_at DESC, run_id DESC`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(sc scanner) (Run, error) {
	var (
		run       Run
		id, stamp string
	)
	if err := sc.Scan(&id, &run.Suite, &run.NumClasses, &stamp); err != nil {
		return Run{}, err
	}
	var err error
	if run.ID, err = uuid.Parse(id); err != nil {
		return Run{}, fmt.Errorf("parse run id %q: %w", id, err)
	}
	if run.CreatedAt, err = time.Parse(timeLayout, stamp); err != nil {
		return Run{}, fmt.Errorf("parse created_at %q: %w", stamp, err)
	}
	return run, nil
}

// DeleteRun removes a run and its snapshots.
func (s *Store) DeleteRun(ctx context.Context, id uuid.UUID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE run_id = ?`, id.String())
	if err != nil {
		return fmt.Errorf("delete run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return nil
}

// RecordSnapshot stores every result for batch in one transaction.
// Recording the same batch twice replaces the earlier rows.
func (s *Store) RecordSnapshot(ctx context.Context, runID uuid.UUID, batch int, results []metrics.Result) error {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return err
	}
	now := s.clock.Now().UTC().Format(timeLayout)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO snapshots
			(run_id, batch, position, metric, kind, scalar, value_json, params_json, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare snapshot insert: %w", err)
	}
	defer stmt.Close()

	for i, r := range results {
		value, err := json.Marshal(r.Value)
		if err != nil {
			return fmt.Errorf("encode %s value: %w", r.Name, err)
		}
		params, err := json.Marshal(r.Params)
		if err != nil {
			return fmt.Errorf("encode %s params: %w", r.Name, err)
		}
		var scalar sql.NullFloat64
		if r.Value.Kind == metrics.ScalarKind && !math.IsNaN(r.Value.Scalar) && !math.IsInf(r.Value.Scalar, 0) {
			scalar = sql.NullFloat64{Float64: r.Value.Scalar, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, runID.String(), batch, i, r.Name, kindName(r.Value.Kind),
			scalar, string(value), string(params), now); err != nil {
			return fmt.Errorf("insert %s snapshot: %w", r.Name, err)
		}
	}
	return tx.Commit()
}

func kindName(k metrics.ValueKind) string {
	switch k {
	case metrics.VectorKind:
		return "vector"
	case metrics.MatrixKind:
		return "matrix"
	default:
		return "scalar"
	}
}

const snapshotColumns = `run_id, batch, metric, kind, value_json, params_json, recorded_at`

// Snapshots returns every snapshot of a run ordered by batch, then by the
// metric's position in the collection.
func (s *Store) Snapshots(ctx context.Context, runID uuid.UUID) ([]Snapshot, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.querySnapshots(ctx,
		`SELECT `+snapshotColumns+` FROM snapshots WHERE run_id = ? ORDER BY batch, position`,
		runID.String())
}

// LatestSnapshot returns the snapshots of the highest recorded batch. A run
// with no snapshots yields an empty slice.
func (s *Store) LatestSnapshot(ctx context.Context, runID uuid.UUID) ([]Snapshot, error) {
	if _, err := s.GetRun(ctx, runID); err != nil {
		return nil, err
	}
	return s.querySnapshots(ctx, `
		SELECT `+snapshotColumns+` FROM snapshots
		WHERE run_id = ? AND batch = (SELECT MAX(batch) FROM snapshots WHERE run_id = ?)
		ORDER BY position`,
		runID.String(), runID.String())
}

func (s *Store) querySnapshots(ctx context.Context, query string, args ...interface{}) ([]Snapshot, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query snapshots: %w", err)
	}
	defer rows.Close()

	out := []Snapshot{}
	for rows.Next() {
		var (
			snap                  Snapshot
			id, value, params, at string
		)
		if err := rows.Scan(&id, &snap.Batch, &snap.Metric, &snap.Kind, &value, &params, &at); err != nil {
			return nil, err
		}
		if snap.RunID, err = uuid.Parse(id); err != nil {
			return nil, fmt.Errorf("parse run id %q: %w", id, err)
		}
		if snap.RecordedAt, err = time.Parse(timeLayout, at); err != nil {
			return nil, fmt.Errorf("parse recorded_at %q: %w", at, err)
		}
		snap.Value = json.RawMessage(value)
		snap.Params = json.RawMessage(params)
		out = append(out, snap)
	}
	return out, rows.Err()
}

// History returns a scalar metric's value after each recorded batch.
// Vector and matrix metrics have no scalar history and yield nothing, and
// non-finite values are left out.
func (s *Store) History(ctx context.Context, runID uuid.UUID, metric string) ([]Point, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT batch, scalar FROM snapshots
		WHERE run_id = ? AND metric = ? AND scalar IS NOT NULL
		ORDER BY batch`,
		runID.String(), metric)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	var out []Point
	for rows.Next() {
		var p Point
		if err := rows.Scan(&p.Batch, &p.Value); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
