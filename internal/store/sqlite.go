package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"netwatch/internal/model"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS events (
	id       INTEGER PRIMARY KEY AUTOINCREMENT,
	ts       INTEGER NOT NULL,
	src_addr TEXT    NOT NULL,
	dst_addr TEXT    NOT NULL,
	protocol TEXT    NOT NULL,
	size     INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_events_ts  ON events(ts);
CREATE INDEX IF NOT EXISTS idx_events_src ON events(src_addr);
`

// SQLite is the embedded event store backend. Timestamps are stored as UTC
// UnixNano so that (ts, id) ordering is a plain integer sort.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens (creating if necessary) the sqlite database at dsn and
// ensures the events table and its indexes exist.
func NewSQLite(dsn string) (*SQLite, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:netwatch.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create events table: %w", err)
	}
	return &SQLite{db: db}, nil
}

// Append inserts one record; sqlite serializes the AUTOINCREMENT assignment.
func (s *SQLite) Append(ctx context.Context, rec *model.EventRecord) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO events (ts, src_addr, dst_addr, protocol, size) VALUES (?, ?, ?, ?, ?)`,
		rec.Timestamp.UTC().UnixNano(),
		rec.SrcAddr,
		rec.DstAddr,
		string(rec.Protocol),
		rec.Size,
	)
	if err != nil {
		return 0, storeErr("append", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storeErr("append", err)
	}
	return id, nil
}

// RangeByTime returns records with timestamp in [from, to), (ts, id) ascending.
func (s *SQLite) RangeByTime(ctx context.Context, from, to time.Time) ([]model.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, src_addr, dst_addr, protocol, size FROM events
		 WHERE ts >= ? AND ts < ? ORDER BY ts, id`,
		from.UTC().UnixNano(), to.UTC().UnixNano(),
	)
	if err != nil {
		return nil, storeErr("range", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// CountAll returns the total number of stored records.
func (s *SQLite) CountAll(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM events`).Scan(&n); err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}

// CountDistinct returns the number of distinct values of field.
func (s *SQLite) CountDistinct(ctx context.Context, field model.Field) (int64, error) {
	col, err := columnFor(field)
	if err != nil {
		return 0, err
	}
	var n int64
	query := fmt.Sprintf(`SELECT COUNT(DISTINCT %s) FROM events`, col)
	if err := s.db.QueryRowContext(ctx, query).Scan(&n); err != nil {
		return 0, storeErr("count distinct", err)
	}
	return n, nil
}

// SumBytes returns the total byte count, 0 for an empty store.
func (s *SQLite) SumBytes(ctx context.Context) (int64, error) {
	var sum int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(size), 0) FROM events`).Scan(&sum); err != nil {
		return 0, storeErr("sum", err)
	}
	return sum, nil
}

// GroupCount returns per-value counts for field, count descending, value
// ascending on ties.
func (s *SQLite) GroupCount(ctx context.Context, field model.Field, limit int) ([]model.FieldCount, error) {
	col, err := columnFor(field)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		`SELECT %s, COUNT(*) AS c FROM events GROUP BY %s ORDER BY c DESC, %s ASC`, col, col, col)
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storeErr("group count", err)
	}
	defer rows.Close()

	var out []model.FieldCount
	for rows.Next() {
		var fc model.FieldCount
		if err := rows.Scan(&fc.Value, &fc.Count); err != nil {
			return nil, storeErr("group count", err)
		}
		out = append(out, fc)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("group count", err)
	}
	return out, nil
}

// Latest returns up to limit records, (ts, id) descending.
func (s *SQLite) Latest(ctx context.Context, limit int) ([]model.EventRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, src_addr, dst_addr, protocol, size FROM events
		 ORDER BY ts DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, storeErr("latest", err)
	}
	defer rows.Close()
	return scanEvents(rows)
}

// Close closes the underlying database handle.
func (s *SQLite) Close() error {
	return s.db.Close()
}

func scanEvents(rows *sql.Rows) ([]model.EventRecord, error) {
	var out []model.EventRecord
	for rows.Next() {
		var (
			ev    model.EventRecord
			ts    int64
			proto string
		)
		if err := rows.Scan(&ev.ID, &ts, &ev.SrcAddr, &ev.DstAddr, &proto, &ev.Size); err != nil {
			return nil, storeErr("scan", err)
		}
		ev.Timestamp = time.Unix(0, ts).UTC()
		ev.Protocol = model.Protocol(proto)
		out = append(out, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("scan", err)
	}
	return out, nil
}
