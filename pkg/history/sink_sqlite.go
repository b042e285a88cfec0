// SPDX-License-Identifier: Apache-2.0

package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/jllopis/avalon/pkg/errors"
)

// SQLiteSink persists timeline records and a per-match index in SQLite.
type SQLiteSink struct {
	db *sql.DB
}

// OpenSQLite opens a SQLite database file for use by SQLiteSink. Writes are
// serialized through a single connection.
func OpenSQLite(path string) (*sql.DB, error) {
	dsn := path
	if !strings.HasPrefix(dsn, "file:") {
		dsn = "file:" + path + "?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "open sqlite", err).WithContext("path", path)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// NewSQLiteSink creates a SQLite-backed sink and ensures schema.
func NewSQLiteSink(db *sql.DB) (*SQLiteSink, error) {
	if db == nil {
		return nil, errors.New(errors.CodeConfiguration, "db is nil", nil)
	}
	if err := ensureTimelineSchema(db); err != nil {
		return nil, errors.New(errors.CodeStorage, "create timeline schema", err)
	}
	return &SQLiteSink{db: db}, nil
}

// Write stores a record and keeps the match index current.
func (s *SQLiteSink) Write(ctx context.Context, rec Record) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return errors.New(errors.CodeStorage, "encode record", err)
	}
	at := rec.At.UTC()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.New(errors.CodeStorage, "begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO timeline_records (match_id, seq, kind, round, payload_json, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, rec.MatchID, rec.Seq, string(rec.Kind), rec.Round, string(payload), at); err != nil {
		return errors.New(errors.CodeStorage, "insert record", err).WithContext("match_id", rec.MatchID)
	}

	switch rec.Kind {
	case RecordMatchStarted:
		_, err = tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO matches (match_id, seats, started_at) VALUES (?, ?, ?)
		`, rec.MatchID, strings.Join(rec.Seats, ","), at)
	case RecordResult:
		if rec.Result != nil {
			_, err = tx.ExecContext(ctx, `
				UPDATE matches SET finished_at = ?, winner = ?, good_wins = ?, evil_wins = ?, missions = ?
				WHERE match_id = ?
			`, at, string(rec.Result.Winner), rec.Result.GoodWins, rec.Result.EvilWins,
				encodeMissions(rec.Result.MissionResults), rec.MatchID)
		}
	}
	if err != nil {
		return errors.New(errors.CodeStorage, "update match index", err).WithContext("match_id", rec.MatchID)
	}
	if err := tx.Commit(); err != nil {
		return errors.New(errors.CodeStorage, "commit record", err)
	}
	return nil
}

// List returns records matching the filter in write order.
func (s *SQLiteSink) List(ctx context.Context, filter RecordFilter) ([]Record, error) {
	query := `SELECT payload_json FROM timeline_records`
	var args []any
	where := ""
	addFilter := func(clause string, value any) {
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
		args = append(args, value)
	}
	if filter.MatchID != "" {
		addFilter("match_id = ?", filter.MatchID)
	}
	if filter.Kind != "" {
		addFilter("kind = ?", string(filter.Kind))
	}
	query += where + " ORDER BY match_id ASC, seq ASC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "query records", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, errors.New(errors.CodeStorage, "scan record", err)
		}
		var rec Record
		if err := json.Unmarshal([]byte(payload), &rec); err != nil {
			return nil, errors.New(errors.CodeStorage, "decode record", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeStorage, "iterate records", err)
	}
	return out, nil
}

// MatchSummary is one row of the match index.
type MatchSummary struct {
	MatchID    string
	Seats      []string
	StartedAt  time.Time
	FinishedAt time.Time
	Winner     string
	GoodWins   int
	EvilWins   int
	Missions   []bool
}

// Finished reports whether a result was recorded.
func (m MatchSummary) Finished() bool { return m.Winner != "" }

// Matches lists the most recent matches first.
func (s *SQLiteSink) Matches(ctx context.Context, limit int) ([]MatchSummary, error) {
	query := `
		SELECT match_id, seats, started_at, finished_at, winner, good_wins, evil_wins, missions
		FROM matches ORDER BY started_at DESC, rowid DESC
	`
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.New(errors.CodeStorage, "query matches", err)
	}
	defer rows.Close()

	var out []MatchSummary
	for rows.Next() {
		var (
			m        MatchSummary
			seats    string
			started  sql.NullTime
			finished sql.NullTime
			winner   sql.NullString
			good     sql.NullInt64
			evil     sql.NullInt64
			missions sql.NullString
		)
		if err := rows.Scan(&m.MatchID, &seats, &started, &finished, &winner, &good, &evil, &missions); err != nil {
			return nil, errors.New(errors.CodeStorage, "scan match", err)
		}
		if seats != "" {
			m.Seats = strings.Split(seats, ",")
		}
		if started.Valid {
			m.StartedAt = started.Time
		}
		if finished.Valid {
			m.FinishedAt = finished.Time
		}
		m.Winner = winner.String
		m.GoodWins = int(good.Int64)
		m.EvilWins = int(evil.Int64)
		m.Missions = decodeMissions(missions.String)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.New(errors.CodeStorage, "iterate matches", err)
	}
	return out, nil
}

// encodeMissions stores results as a compact S/F string.
func encodeMissions(results []bool) string {
	var b strings.Builder
	for _, ok := range results {
		if ok {
			b.WriteByte('S')
		} else {
			b.WriteByte('F')
		}
	}
	return b.String()
}

func decodeMissions(s string) []bool {
	out := make([]bool, 0, len(s))
	for _, c := range s {
		out = append(out, c == 'S')
	}
	return out
}

func ensureTimelineSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS timeline_records (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			match_id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			kind TEXT NOT NULL,
			round INTEGER,
			payload_json TEXT NOT NULL,
			recorded_at TIMESTAMP
		);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_timeline_match_seq ON timeline_records(match_id, seq);
		CREATE INDEX IF NOT EXISTS idx_timeline_kind ON timeline_records(kind);
		CREATE TABLE IF NOT EXISTS matches (
			match_id TEXT PRIMARY KEY,
			seats TEXT,
			started_at TIMESTAMP,
			finished_at TIMESTAMP,
			winner TEXT,
			good_wins INTEGER,
			evil_wins INTEGER,
			missions TEXT
		);
	`)
	return err
}
