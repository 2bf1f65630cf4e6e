// Package persistence provides SQLite-based storage for simulation runs:
// run metadata, the per-step compartment series and per-individual outcomes.
package persistence

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/talgya/seihrd/internal/disease"
	"github.com/talgya/seihrd/internal/engine"
	"github.com/talgya/seihrd/internal/population"
)

// schemaVersion is recorded in meta when the database is opened.
const schemaVersion = "1"

// ErrNotFound is returned when a run id does not exist.
var ErrNotFound = errors.New("run not found")

// DB wraps a SQLite connection for run storage.
type DB struct {
	conn *sqlx.DB
}

// Open opens or creates a SQLite database at the given path.
func Open(path string) (*DB, error) {
	conn, err := sqlx.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	if err := db.SaveMeta("schema_version", schemaVersion); err != nil {
		conn.Close()
		return nil, fmt.Errorf("save schema version: %w", err)
	}

	return db, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

func (db *DB) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		seed INTEGER NOT NULL,
		steps INTEGER NOT NULL,
		population INTEGER NOT NULL,
		elapsed_ms INTEGER NOT NULL,
		config_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS counts (
		run_id TEXT NOT NULL,
		step INTEGER NOT NULL,
		s INTEGER NOT NULL,
		e INTEGER NOT NULL,
		i INTEGER NOT NULL,
		h INTEGER NOT NULL,
		r INTEGER NOT NULL,
		d INTEGER NOT NULL,
		PRIMARY KEY (run_id, step)
	);

	CREATE TABLE IF NOT EXISTS outcomes (
		run_id TEXT NOT NULL,
		individual_id INTEGER NOT NULL,
		family_id INTEGER NOT NULL,
		final_state INTEGER NOT NULL,
		exposed_at INTEGER NOT NULL,
		steps_infected INTEGER NOT NULL,
		PRIMARY KEY (run_id, individual_id)
	);

	CREATE TABLE IF NOT EXISTS meta (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	CREATE INDEX IF NOT EXISTS idx_outcomes_state ON outcomes(run_id, final_state);
	`
	_, err := db.conn.Exec(schema)
	return err
}

// Run is a stored run's metadata together with its final tally.
type Run struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Seed       int64           `json:"seed"`
	Steps      int             `json:"steps"`
	Population int             `json:"population"`
	Elapsed    time.Duration   `json:"elapsed"`
	Final      disease.Counts  `json:"final"`
	Config     json.RawMessage `json:"config,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type runRow struct {
	ID         string `db:"id"`
	Name       string `db:"name"`
	Seed       int64  `db:"seed"`
	Steps      int    `db:"steps"`
	Population int    `db:"population"`
	ElapsedMS  int64  `db:"elapsed_ms"`
	ConfigJSON string `db:"config_json"`
	CreatedAt  int64  `db:"created_at"`
	disease.Counts
}

func (r runRow) run() Run {
	return Run{
		ID:         r.ID,
		Name:       r.Name,
		Seed:       r.Seed,
		Steps:      r.Steps,
		Population: r.Population,
		Elapsed:    time.Duration(r.ElapsedMS) * time.Millisecond,
		Final:      r.Counts,
		Config:     json.RawMessage(r.ConfigJSON),
		CreatedAt:  time.UnixMilli(r.CreatedAt).UTC(),
	}
}

// runSelect joins each run to its last series record.
const runSelect = `SELECT r.id, r.name, r.seed, r.steps, r.population, r.elapsed_ms,
		r.config_json, r.created_at, c.step, c.s, c.e, c.i, c.h, c.r, c.d
	FROM runs r JOIN counts c ON c.run_id = r.id AND c.step = r.steps`

// SaveRun stores a finished run in a single transaction and returns its
// metadata. settings is recorded as JSON so the run can be reproduced.
func (db *DB) SaveRun(name string, settings any, res *engine.Result) (Run, error) {
	if res == nil || res.Population == nil || len(res.Series) == 0 {
		return Run{}, errors.New("save run: result has no series")
	}
	configJSON, err := json.Marshal(settings)
	if err != nil {
		return Run{}, fmt.Errorf("save run: encode settings: %w", err)
	}

	row := runRow{
		ID:         uuid.NewString(),
		Name:       name,
		Seed:       res.Seed,
		Steps:      len(res.Series),
		Population: res.Population.Size(),
		ElapsedMS:  res.Elapsed.Milliseconds(),
		ConfigJSON: string(configJSON),
		CreatedAt:  time.Now().UnixMilli(),
		Counts:     res.Final(),
	}

	tx, err := db.conn.Beginx()
	if err != nil {
		return Run{}, err
	}
	defer tx.Rollback()

	_, err = tx.NamedExec(`INSERT INTO runs
		(id, name, seed, steps, population, elapsed_ms, config_json, created_at)
		VALUES (:id, :name, :seed, :steps, :population, :elapsed_ms, :config_json, :created_at)`, row)
	if err != nil {
		return Run{}, fmt.Errorf("insert run: %w", err)
	}

	series := append([]disease.Counts{res.Initial}, res.Series...)
	if err := saveSeries(tx, row.ID, series); err != nil {
		return Run{}, err
	}
	if err := saveOutcomes(tx, row.ID, res.Outcomes()); err != nil {
		return Run{}, err
	}
	if err := saveMeta(tx, "last_run_id", row.ID); err != nil {
		return Run{}, fmt.Errorf("save meta: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return Run{}, err
	}

	slog.Info("run saved", "id", row.ID, "name", name, "steps", row.Steps, "population", row.Population)
	return row.run(), nil
}

func saveSeries(tx *sqlx.Tx, runID string, series []disease.Counts) error {
	stmt, err := tx.Preparex(`INSERT INTO counts
		(run_id, step, s, e, i, h, r, d) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, c := range series {
		_, err := stmt.Exec(runID, c.Step, c.Susceptible, c.Exposed, c.Infected, c.Hospitalised, c.Recovered, c.Dead)
		if err != nil {
			return fmt.Errorf("insert counts for step %d: %w", c.Step, err)
		}
	}
	return nil
}

func saveOutcomes(tx *sqlx.Tx, runID string, outcomes []population.Outcome) error {
	stmt, err := tx.Preparex(`INSERT INTO outcomes
		(run_id, individual_id, family_id, final_state, exposed_at, steps_infected)
		VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, o := range outcomes {
		_, err := stmt.Exec(runID, o.ID, o.FamilyID, int(o.FinalState), o.ExposedAt, o.StepsInfected)
		if err != nil {
			return fmt.Errorf("insert outcome %d: %w", o.ID, err)
		}
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (db *DB) ListRuns(limit int) ([]Run, error) {
	var rows []runRow
	err := db.conn.Select(&rows, runSelect+" ORDER BY r.created_at DESC, r.id LIMIT ?", limit)
	if err != nil {
		return nil, err
	}
	runs := make([]Run, len(rows))
	for i, r := range rows {
		runs[i] = r.run()
		runs[i].Config = nil
	}
	return runs, nil
}

// LoadRun returns one run, including its stored settings.
func (db *DB) LoadRun(id string) (Run, error) {
	var row runRow
	err := db.conn.Get(&row, runSelect+" WHERE r.id = ?", id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}
	return row.run(), nil
}

// LastRun returns the most recently saved run.
func (db *DB) LastRun() (Run, error) {
	id, err := db.GetMeta("last_run_id")
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	if err != nil {
		return Run{}, err
	}
	return db.LoadRun(id)
}

// LoadSeries returns the run's records for steps in [from, to]. Step 0 is the
// initial tally. A to of zero or less means through the last step.
func (db *DB) LoadSeries(id string, from, to int) ([]disease.Counts, error) {
	if err := db.exists(id); err != nil {
		return nil, err
	}
	if to <= 0 {
		to = math.MaxInt
	}
	series := []disease.Counts{}
	err := db.conn.Select(&series,
		`SELECT step, s, e, i, h, r, d FROM counts
		WHERE run_id = ? AND step >= ? AND step <= ? ORDER BY step`,
		id, from, to,
	)
	return series, err
}

// OutcomeFilter narrows LoadOutcomes.
type OutcomeFilter struct {
	State  *disease.State // only individuals that finished in this state
	Limit  int            // 0 means no limit
	Offset int
}

// LoadOutcomes returns the run's per-individual outcomes in id order.
func (db *DB) LoadOutcomes(id string, f OutcomeFilter) ([]population.Outcome, error) {
	if err := db.exists(id); err != nil {
		return nil, err
	}
	query := `SELECT individual_id, family_id, final_state, exposed_at, steps_infected
		FROM outcomes WHERE run_id = ?`
	args := []any{id}
	if f.State != nil {
		query += " AND final_state = ?"
		args = append(args, int(*f.State))
	}
	query += " ORDER BY individual_id"
	if f.Limit > 0 {
		query += " LIMIT ? OFFSET ?"
		args = append(args, f.Limit, f.Offset)
	}

	outcomes := []population.Outcome{}
	err := db.conn.Select(&outcomes, query, args...)
	return outcomes, err
}

// DeleteRun removes a run and everything stored with it.
func (db *DB) DeleteRun(id string) error {
	tx, err := db.conn.Beginx()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM runs WHERE id = ?", id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	for _, table := range []string{"counts", "outcomes"} {
		if _, err := tx.Exec("DELETE FROM "+table+" WHERE run_id = ?", id); err != nil {
			return fmt.Errorf("delete %s: %w", table, err)
		}
	}
	if _, err := tx.Exec("DELETE FROM meta WHERE key = 'last_run_id' AND value = ?", id); err != nil {
		return err
	}
	return tx.Commit()
}

func (db *DB) exists(id string) error {
	var n int
	if err := db.conn.Get(&n, "SELECT COUNT(*) FROM runs WHERE id = ?", id); err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// SaveMeta stores a key-value pair.
func (db *DB) SaveMeta(key, value string) error {
	return saveMeta(db.conn, key, value)
}

func saveMeta(ex sqlx.Execer, key, value string) error {
	_, err := ex.Exec(
		"INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)",
		key, value,
	)
	return err
}

// GetMeta retrieves a metadata value.
func (db *DB) GetMeta(key string) (string, error) {
	var value string
	err := db.conn.Get(&value, "SELECT value FROM meta WHERE key = ?", key)
	return value, err
}
