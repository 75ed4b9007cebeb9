package store

import (
	"context"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"netwatch/internal/config"
	"netwatch/internal/model"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS events (
	id       UInt64,
	ts       DateTime64(9, 'UTC'),
	src_addr String,
	dst_addr String,
	protocol String,
	size     Int64
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(ts)
ORDER BY (ts, id);
`

// ClickHouse is the analytical event store backend. ClickHouse has no
// autoincrement, so IDs are assigned from an in-process counter seeded with
// max(id) at startup; the single-node store assumption makes that safe.
type ClickHouse struct {
	conn   driver.Conn
	nextID atomic.Int64
}

// NewClickHouse connects to ClickHouse, ensures the events table exists and
// seeds the ID counter.
func NewClickHouse(cfg config.ClickHouseConfig) (*ClickHouse, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured events table exists.")

	s := &ClickHouse{conn: conn}

	var maxID uint64
	row := conn.QueryRow(context.Background(), `SELECT max(id) FROM events`)
	if err := row.Scan(&maxID); err != nil {
		return nil, fmt.Errorf("failed to seed id counter: %w", err)
	}
	s.nextID.Store(int64(maxID))

	return s, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// Append assigns the next ID and inserts one record as a single-row batch.
func (s *ClickHouse) Append(ctx context.Context, rec *model.EventRecord) (int64, error) {
	id := s.nextID.Add(1)

	batch, err := s.conn.PrepareBatch(ctx, "INSERT INTO events")
	if err != nil {
		return 0, storeErr("append", err)
	}
	err = batch.Append(
		uint64(id),
		rec.Timestamp.UTC(),
		rec.SrcAddr,
		rec.DstAddr,
		string(rec.Protocol),
		rec.Size,
	)
	if err != nil {
		return 0, storeErr("append", err)
	}
	if err := batch.Send(); err != nil {
		return 0, storeErr("append", err)
	}
	return id, nil
}

// RangeByTime returns records with timestamp in [from, to), (ts, id) ascending.
func (s *ClickHouse) RangeByTime(ctx context.Context, from, to time.Time) ([]model.EventRecord, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT id, ts, src_addr, dst_addr, protocol, size FROM events
		 WHERE ts >= ? AND ts < ? ORDER BY ts, id`,
		from.UTC(), to.UTC(),
	)
	if err != nil {
		return nil, storeErr("range", err)
	}
	defer rows.Close()
	return scanCHEvents(rows)
}

// CountAll returns the total number of stored records.
func (s *ClickHouse) CountAll(ctx context.Context) (int64, error) {
	var n uint64
	if err := s.conn.QueryRow(ctx, `SELECT count() FROM events`).Scan(&n); err != nil {
		return 0, storeErr("count", err)
	}
	return int64(n), nil
}

// CountDistinct returns the number of distinct values of field.
func (s *ClickHouse) CountDistinct(ctx context.Context, field model.Field) (int64, error) {
	col, err := columnFor(field)
	if err != nil {
		return 0, err
	}
	var n uint64
	query := fmt.Sprintf(`SELECT uniqExact(%s) FROM events`, col)
	if err := s.conn.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, storeErr("count distinct", err)
	}
	return int64(n), nil
}

// SumBytes returns the total byte count, 0 for an empty store.
func (s *ClickHouse) SumBytes(ctx context.Context) (int64, error) {
	var sum int64
	if err := s.conn.QueryRow(ctx, `SELECT sum(size) FROM events`).Scan(&sum); err != nil {
		return 0, storeErr("sum", err)
	}
	return sum, nil
}

// GroupCount returns per-value counts for field, count descending, value
// ascending on ties.
func (s *ClickHouse) GroupCount(ctx context.Context, field model.Field, limit int) ([]model.FieldCount, error) {
	col, err := columnFor(field)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(
		`SELECT %s, count() AS c FROM events GROUP BY %s ORDER BY c DESC, %s ASC`, col, col, col)
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, storeErr("group count", err)
	}
	defer rows.Close()

	var out []model.FieldCount
	for rows.Next() {
		var (
			value string
			count uint64
		)
		if err := rows.Scan(&value, &count); err != nil {
			return nil, storeErr("group count", err)
		}
		out = append(out, model.FieldCount{Value: value, Count: int64(count)})
	}
	return out, nil
}

// Latest returns up to limit records, (ts, id) descending.
func (s *ClickHouse) Latest(ctx context.Context, limit int) ([]model.EventRecord, error) {
	rows, err := s.conn.Query(ctx,
		`SELECT id, ts, src_addr, dst_addr, protocol, size FROM events
		 ORDER BY ts DESC, id DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, storeErr("latest", err)
	}
	defer rows.Close()
	return scanCHEvents(rows)
}

// Close closes the ClickHouse connection.
func (s *ClickHouse) Close() error {
	return s.conn.Close()
}

func scanCHEvents(rows driver.Rows) ([]model.EventRecord, error) {
	var out []model.EventRecord
	for rows.Next() {
		var (
			ev    model.EventRecord
			id    uint64
			proto string
		)
		if err := rows.Scan(&id, &ev.Timestamp, &ev.SrcAddr, &ev.DstAddr, &proto, &ev.Size); err != nil {
			return nil, storeErr("scan", err)
		}
		ev.ID = int64(id)
		ev.Protocol = model.Protocol(proto)
		out = append(out, ev)
	}
	return out, nil
}
