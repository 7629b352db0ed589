package tracestore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"strings"

	_ "modernc.org/sqlite" // Registers the "sqlite" driver.
)

const sqliteDriver = "sqlite"

// schemaVersion is bumped whenever the table layout changes.
const schemaVersion = 1

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS schema_version (version INTEGER NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS spans (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		ts INTEGER NOT NULL,
		dur INTEGER NOT NULL,
		tid INTEGER NOT NULL,
		pid INTEGER NOT NULL,
		depth INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS threads (tid INTEGER PRIMARY KEY, pid INTEGER NOT NULL, name TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS processes (pid INTEGER PRIMARY KEY, name TEXT NOT NULL)`,
	`CREATE TABLE IF NOT EXISTS thread_states (
		id INTEGER PRIMARY KEY,
		tid INTEGER NOT NULL,
		ts INTEGER NOT NULL,
		dur INTEGER NOT NULL,
		state TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS sched (
		id INTEGER PRIMARY KEY,
		cpu INTEGER NOT NULL,
		tid INTEGER NOT NULL,
		ts INTEGER NOT NULL,
		dur INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_spans_name_ts ON spans(name, ts)`,
	`CREATE INDEX IF NOT EXISTS idx_spans_ts ON spans(ts)`,
	`CREATE INDEX IF NOT EXISTS idx_states_tid_ts ON thread_states(tid, ts)`,
	`CREATE INDEX IF NOT EXISTS idx_sched_ts ON sched(ts)`,
}

var sqlitePragmas = []string{
	"PRAGMA journal_mode=WAL;",
	"PRAGMA synchronous=NORMAL;",
	"PRAGMA temp_store=MEMORY;",
}

// ErrSchemaVersion is returned when a database was written by an
// incompatible version.
var ErrSchemaVersion = errors.New("unsupported trace database schema")

// SQLiteStore is a Store backed by a SQLite database file.
type SQLiteStore struct {
	db *sql.DB
}

// OpenSQLite opens a database previously written by WriteSQLite.
func OpenSQLite(ctx context.Context, path string) (*SQLiteStore, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}

	db, err := sql.Open(sqliteDriver, path+"?_pragma=query_only(1)")
	if err != nil {
		return nil, fmt.Errorf("open trace db: %w", err)
	}

	var version int

	err = db.QueryRowContext(ctx, `SELECT version FROM schema_version LIMIT 1`).Scan(&version)
	if err != nil {
		_ = db.Close()

		return nil, fmt.Errorf("read schema version: %w", err)
	}

	if version != schemaVersion {
		_ = db.Close()

		return nil, fmt.Errorf("%w: %d", ErrSchemaVersion, version)
	}

	return &SQLiteStore{db: db}, nil
}

// WriteSQLite writes data into a fresh database at path, replacing any
// existing file. Span IDs are normalised the way NewMemoryStoreFrom does, so
// both stores number and order spans identically.
func WriteSQLite(ctx context.Context, path string, data Dataset) (err error) {
	data = NewMemoryStoreFrom(data).Dataset()

	if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
		return fmt.Errorf("remove old trace db: %w", removeErr)
	}

	db, err := sql.Open(sqliteDriver, path)
	if err != nil {
		return fmt.Errorf("create trace db: %w", err)
	}

	defer func() {
		err = errors.Join(err, db.Close())
	}()

	for _, p := range sqlitePragmas {
		if _, pragmaErr := db.ExecContext(ctx, p); pragmaErr != nil {
			return fmt.Errorf("set pragma %q: %w", p, pragmaErr)
		}
	}

	for _, stmt := range schemaStatements {
		if _, execErr := db.ExecContext(ctx, stmt); execErr != nil {
			return fmt.Errorf("create schema: %w", execErr)
		}
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}

	err = insertDataset(ctx, tx, data)
	if err != nil {
		return errors.Join(err, tx.Rollback())
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return fmt.Errorf("commit: %w", commitErr)
	}

	return nil
}

func insertDataset(ctx context.Context, tx *sql.Tx, data Dataset) error {
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_version (version) VALUES (?)`, schemaVersion); err != nil {
		return fmt.Errorf("insert schema version: %w", err)
	}

	err := insertRows(ctx, tx, `INSERT INTO spans (id, name, ts, dur, tid, pid, depth) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		len(data.Spans), func(i int) []any {
			s := data.Spans[i]

			return []any{s.ID, s.Name, s.Start, s.Dur, s.TID, s.PID, s.Depth}
		})
	if err != nil {
		return fmt.Errorf("insert spans: %w", err)
	}

	err = insertRows(ctx, tx, `INSERT OR REPLACE INTO threads (tid, pid, name) VALUES (?, ?, ?)`,
		len(data.Threads), func(i int) []any {
			th := data.Threads[i]

			return []any{th.TID, th.PID, th.Name}
		})
	if err != nil {
		return fmt.Errorf("insert threads: %w", err)
	}

	err = insertRows(ctx, tx, `INSERT OR REPLACE INTO processes (pid, name) VALUES (?, ?)`,
		len(data.Processes), func(i int) []any {
			p := data.Processes[i]

			return []any{p.PID, p.Name}
		})
	if err != nil {
		return fmt.Errorf("insert processes: %w", err)
	}

	err = insertRows(ctx, tx, `INSERT INTO thread_states (id, tid, ts, dur, state) VALUES (?, ?, ?, ?, ?)`,
		len(data.States), func(i int) []any {
			st := data.States[i]

			return []any{i + 1, st.TID, st.Start, st.Dur, st.State}
		})
	if err != nil {
		return fmt.Errorf("insert thread states: %w", err)
	}

	err = insertRows(ctx, tx, `INSERT INTO sched (id, cpu, tid, ts, dur) VALUES (?, ?, ?, ?, ?)`,
		len(data.Sched), func(i int) []any {
			sc := data.Sched[i]

			return []any{i + 1, sc.CPU, sc.TID, sc.Start, sc.Dur}
		})
	if err != nil {
		return fmt.Errorf("insert sched: %w", err)
	}

	return nil
}

func insertRows(ctx context.Context, tx *sql.Tx, query string, n int, row func(i int) []any) error {
	stmt, err := tx.PrepareContext(ctx, query)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for i := range n {
		if _, err := stmt.ExecContext(ctx, row(i)...); err != nil {
			return err
		}
	}

	return nil
}

// whereClause accumulates SQL predicates and their arguments.
type whereClause struct {
	preds []string
	args  []any
}

func (w *whereClause) add(pred string, args ...any) {
	w.preds = append(w.preds, pred)
	w.args = append(w.args, args...)
}

func (w *whereClause) addIn(column string, values []any) {
	if len(values) == 0 {
		return
	}

	marks := strings.TrimSuffix(strings.Repeat("?, ", len(values)), ", ")
	w.add(column+" IN ("+marks+")", values...)
}

func (w *whereClause) String() string {
	if len(w.preds) == 0 {
		return ""
	}

	return " WHERE " + strings.Join(w.preds, " AND ")
}

func toAny[T any](vals []T) []any {
	out := make([]any, len(vals))
	for i, v := range vals {
		out[i] = v
	}

	return out
}

// FirstSpan implements Store.
func (ss *SQLiteStore) FirstSpan(ctx context.Context, q SpanQuery) (Span, bool, error) {
	q.Limit = 1

	spans, err := ss.Spans(ctx, q)
	if err != nil || len(spans) == 0 {
		return Span{}, false, err
	}

	return spans[0], true, nil
}

// Spans implements Store.
func (ss *SQLiteStore) Spans(ctx context.Context, q SpanQuery) ([]Span, error) {
	var where whereClause

	if q.Name != "" {
		where.add("name = ?", q.Name)
	}

	where.addIn("name", toAny(q.Names))

	if q.Pattern != "" {
		where.add("name LIKE ?", q.Pattern)
	}

	if q.PID != 0 {
		where.add("pid = ?", q.PID)
	}

	if q.TID != 0 {
		where.add("tid = ?", q.TID)
	}

	switch q.Track {
	case TrackThread:
		where.add("tid != 0")
	case TrackProcess:
		where.add("tid = 0")
	case TrackAny:
	}

	if lo, ok := q.MinStart.Get(); ok {
		where.add("ts >= ?", lo)
	}

	if hi, ok := q.MaxStart.Get(); ok {
		where.add("ts <= ?", hi)
	}

	query := "SELECT id, name, ts, dur, tid, pid, depth FROM spans" + where.String()

	if q.Descending {
		query += " ORDER BY ts DESC, id DESC"
	} else {
		query += " ORDER BY ts, id"
	}

	args := where.args
	if q.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, q.Limit)
	}

	rows, err := ss.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query spans: %w", err)
	}
	defer rows.Close()

	var out []Span

	for rows.Next() {
		var s Span
		if err := rows.Scan(&s.ID, &s.Name, &s.Start, &s.Dur, &s.TID, &s.PID, &s.Depth); err != nil {
			return nil, fmt.Errorf("scan span: %w", err)
		}

		out = append(out, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate spans: %w", err)
	}

	return out, nil
}

// Overlap implements Store.
func (ss *SQLiteStore) Overlap(ctx context.Context, q OverlapQuery) ([]Segment, error) {
	if !q.Window.Valid() {
		return nil, nil
	}

	var (
		where whereClause
		query string
	)

	where.add("t.ts < ?", q.Window.End)
	where.add("t.ts + t.dur > ?", q.Window.Start)
	where.addIn("t.tid", toAny(q.TIDs))

	if q.Timeline == TimelineSched {
		where.addIn("t.cpu", toAny(q.CPUs))
		query = "SELECT '" + StateRunning + "', t.tid, COALESCE(th.pid, 0), t.cpu, t.ts, t.dur FROM sched t"
	} else {
		where.addIn("t.state", toAny(q.Labels))
		query = "SELECT t.state, t.tid, COALESCE(th.pid, 0), -1, t.ts, t.dur FROM thread_states t"
	}

	query += " LEFT JOIN threads th ON th.tid = t.tid" + where.String() + " ORDER BY t.ts, t.id"

	rows, err := ss.db.QueryContext(ctx, query, where.args...)
	if err != nil {
		return nil, fmt.Errorf("query overlap: %w", err)
	}
	defer rows.Close()

	var out []Segment

	for rows.Next() {
		var seg Segment
		if err := rows.Scan(&seg.Label, &seg.TID, &seg.PID, &seg.CPU, &seg.Start, &seg.Dur); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}

		seg.Overlap = q.Window.Clip(seg.Start, seg.Start+seg.Dur)
		out = append(out, seg)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate segments: %w", err)
	}

	return out, nil
}

// Threads implements Store.
func (ss *SQLiteStore) Threads(ctx context.Context, q ThreadQuery) ([]Thread, error) {
	var where whereClause

	if q.Pattern != "" {
		where.add("name LIKE ?", q.Pattern)
	}

	if q.PID != 0 {
		where.add("pid = ?", q.PID)
	}

	if q.MainOnly {
		where.add("tid = pid")
	}

	rows, err := ss.db.QueryContext(ctx, "SELECT tid, pid, name FROM threads"+where.String()+" ORDER BY tid", where.args...)
	if err != nil {
		return nil, fmt.Errorf("query threads: %w", err)
	}
	defer rows.Close()

	var out []Thread

	for rows.Next() {
		var th Thread
		if err := rows.Scan(&th.TID, &th.PID, &th.Name); err != nil {
			return nil, fmt.Errorf("scan thread: %w", err)
		}

		out = append(out, th)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate threads: %w", err)
	}

	return out, nil
}

// Processes implements Store.
func (ss *SQLiteStore) Processes(ctx context.Context) ([]Process, error) {
	rows, err := ss.db.QueryContext(ctx, "SELECT pid, name FROM processes ORDER BY pid")
	if err != nil {
		return nil, fmt.Errorf("query processes: %w", err)
	}
	defer rows.Close()

	var out []Process

	for rows.Next() {
		var p Process
		if err := rows.Scan(&p.PID, &p.Name); err != nil {
			return nil, fmt.Errorf("scan process: %w", err)
		}

		out = append(out, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate processes: %w", err)
	}

	return out, nil
}

// Close implements Store.
func (ss *SQLiteStore) Close() error {
	return ss.db.Close()
}
