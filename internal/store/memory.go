package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"netwatch/internal/model"
)

// Memory is an in-process event store. It backs the tests and serves as a
// zero-dependency backend for local runs; semantics match the SQL backends.
type Memory struct {
	mu     sync.RWMutex
	events []model.EventRecord
	nextID int64
}

// NewMemory creates an empty in-memory event store.
func NewMemory() *Memory {
	return &Memory{nextID: 1}
}

// Append assigns the next ID and stores a copy of rec.
func (m *Memory) Append(ctx context.Context, rec *model.EventRecord) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storeErr("append", err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	stored := *rec
	stored.Timestamp = rec.Timestamp.UTC()
	stored.ID = m.nextID
	m.nextID++
	m.events = append(m.events, stored)
	return stored.ID, nil
}

// RangeByTime returns records with timestamp in [from, to), (timestamp, id)
// ascending.
func (m *Memory) RangeByTime(ctx context.Context, from, to time.Time) ([]model.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeErr("range", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.EventRecord
	for _, ev := range m.events {
		if !ev.Timestamp.Before(from) && ev.Timestamp.Before(to) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// CountAll returns the number of stored records.
func (m *Memory) CountAll(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storeErr("count", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.events)), nil
}

// CountDistinct returns the number of distinct values of field.
func (m *Memory) CountDistinct(ctx context.Context, field model.Field) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storeErr("count distinct", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	seen := make(map[string]struct{})
	for _, ev := range m.events {
		v, err := fieldValue(&ev, field)
		if err != nil {
			return 0, err
		}
		seen[v] = struct{}{}
	}
	return int64(len(seen)), nil
}

// SumBytes returns the total byte count of all records.
func (m *Memory) SumBytes(ctx context.Context) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, storeErr("sum", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var sum int64
	for _, ev := range m.events {
		sum += ev.Size
	}
	return sum, nil
}

// GroupCount returns per-value counts, count descending, value ascending on
// ties. limit <= 0 means unbounded.
func (m *Memory) GroupCount(ctx context.Context, field model.Field, limit int) ([]model.FieldCount, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeErr("group count", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	counts := make(map[string]int64)
	for _, ev := range m.events {
		v, err := fieldValue(&ev, field)
		if err != nil {
			return nil, err
		}
		counts[v]++
	}

	out := make([]model.FieldCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, model.FieldCount{Value: v, Count: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Value < out[j].Value
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Latest returns up to limit records, (timestamp, id) descending.
func (m *Memory) Latest(ctx context.Context, limit int) ([]model.EventRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, storeErr("latest", err)
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]model.EventRecord, len(m.events))
	copy(out, m.events)
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.After(out[j].Timestamp)
		}
		return out[i].ID > out[j].ID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Close is a no-op for the in-memory store.
func (m *Memory) Close() error {
	return nil
}

func fieldValue(ev *model.EventRecord, field model.Field) (string, error) {
	switch field {
	case model.FieldSrcAddr:
		return ev.SrcAddr, nil
	case model.FieldDstAddr:
		return ev.DstAddr, nil
	case model.FieldProtocol:
		return string(ev.Protocol), nil
	default:
		return "", fmt.Errorf("%w: unknown field %q", model.ErrInvalidParameter, field)
	}
}
