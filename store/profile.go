package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/chazu/monty/vm"

	_ "github.com/marcboeker/go-duckdb"
)

// ProfileStore sinks profiler snapshots into an embedded DuckDB
// database. Each Flush appends one timestamped snapshot; reports
// aggregate across every snapshot in the file, so repeated runs of the
// same workload accumulate.
type ProfileStore struct {
	db *sql.DB
}

// OpenProfile opens the profile database at path, creating it and its
// parent directory if needed.
func OpenProfile(path string) (*ProfileStore, error) {
	if err := ensureParentDir(path); err != nil {
		return nil, err
	}

	db, err := sql.Open("duckdb", path)
	if err != nil {
		return nil, fmt.Errorf("opening profile database: %w", err)
	}

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS profile_funcs (
			captured_at TIMESTAMP NOT NULL,
			name VARCHAR NOT NULL,
			calls BIGINT NOT NULL,
			resumes BIGINT NOT NULL,
			hot BOOLEAN NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS profile_ops (
			captured_at TIMESTAMP NOT NULL,
			opcode SMALLINT NOT NULL,
			name VARCHAR NOT NULL,
			count BIGINT NOT NULL
		)`,
	}
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("creating profile tables: %w", err)
		}
	}

	return &ProfileStore{db: db}, nil
}

// Close closes the database connection.
func (ps *ProfileStore) Close() error {
	if ps.db != nil {
		return ps.db.Close()
	}
	return nil
}

// Flush appends one snapshot of the profiler's function and opcode
// counters. The profiler is not reset.
func (ps *ProfileStore) Flush(p *vm.Profiler) error {
	now := time.Now().UTC()

	tx, err := ps.db.Begin()
	if err != nil {
		return fmt.Errorf("starting flush: %w", err)
	}
	defer tx.Rollback()

	for _, fs := range p.Snapshot() {
		if _, err := tx.Exec(
			"INSERT INTO profile_funcs (captured_at, name, calls, resumes, hot) VALUES (?, ?, ?, ?, ?)",
			now, fs.Name, int64(fs.Calls), int64(fs.Resumes), fs.Hot,
		); err != nil {
			return fmt.Errorf("flushing function %s: %w", fs.Name, err)
		}
	}
	for _, st := range p.OpStats() {
		if _, err := tx.Exec(
			"INSERT INTO profile_ops (captured_at, opcode, name, count) VALUES (?, ?, ?, ?)",
			now, int16(st.Opcode), st.Name, int64(st.Count),
		); err != nil {
			return fmt.Errorf("flushing opcode %s: %w", st.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing flush: %w", err)
	}

	log.Debugf("flushed profile snapshot at %s", now.Format(time.RFC3339))
	return nil
}

// FuncReport returns the most entered functions across all snapshots,
// limited to at most limit rows.
func (ps *ProfileStore) FuncReport(limit int) ([]vm.FuncStat, error) {
	rows, err := ps.db.Query(
		`SELECT name, SUM(calls), SUM(resumes), BOOL_OR(hot)
		 FROM profile_funcs
		 GROUP BY name
		 ORDER BY SUM(calls) + SUM(resumes) DESC
		 LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying function report: %w", err)
	}
	defer rows.Close()

	var report []vm.FuncStat
	for rows.Next() {
		var fs vm.FuncStat
		var calls, resumes int64
		if err := rows.Scan(&fs.Name, &calls, &resumes, &fs.Hot); err != nil {
			return nil, fmt.Errorf("scanning function row: %w", err)
		}
		fs.Calls = uint64(calls)
		fs.Resumes = uint64(resumes)
		report = append(report, fs)
	}
	return report, rows.Err()
}

// OpReport returns total execution counts per opcode across all
// snapshots, most executed first.
func (ps *ProfileStore) OpReport() ([]vm.OpStat, error) {
	rows, err := ps.db.Query(
		`SELECT opcode, name, SUM(count)
		 FROM profile_ops
		 GROUP BY opcode, name
		 ORDER BY SUM(count) DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("querying opcode report: %w", err)
	}
	defer rows.Close()

	var report []vm.OpStat
	for rows.Next() {
		var op int16
		var st vm.OpStat
		var count int64
		if err := rows.Scan(&op, &st.Name, &count); err != nil {
			return nil, fmt.Errorf("scanning opcode row: %w", err)
		}
		st.Opcode = vm.Opcode(op)
		st.Count = uint64(count)
		report = append(report, st)
	}
	return report, rows.Err()
}
