package model

import (
	"context"
	"time"
)

// Field enumerates the event columns that grouped and distinct queries may
// target. Keeping this closed prevents arbitrary column names from reaching
// the storage backends.
type Field string

const (
	FieldSrcAddr  Field = "src_addr"
	FieldDstAddr  Field = "dst_addr"
	FieldProtocol Field = "protocol"
)

// FieldCount is one (value, count) pair of a grouped count.
type FieldCount struct {
	Value string
	Count int64
}

// EventStore is the single shared mutable resource of the system: an
// append-only collection of event records with indexed range queries.
// Implementations must be safe for concurrent callers and must assign IDs
// that strictly increase with insertion order.
type EventStore interface {
	// Append persists rec, assigns the next ID and returns it. The record's
	// ID field is ignored on input. Each append is atomic: no partial-write
	// state is ever observable.
	Append(ctx context.Context, rec *EventRecord) (int64, error)

	// RangeByTime returns all records with timestamp in [from, to), ordered
	// by (timestamp, id) ascending.
	RangeByTime(ctx context.Context, from, to time.Time) ([]EventRecord, error)

	// CountAll returns the total number of stored records.
	CountAll(ctx context.Context) (int64, error)

	// CountDistinct returns the number of distinct values of field.
	CountDistinct(ctx context.Context, field Field) (int64, error)

	// SumBytes returns the sum of all record sizes, 0 for an empty store.
	SumBytes(ctx context.Context) (int64, error)

	// GroupCount returns (value, count) pairs for field, ordered by count
	// descending with ties broken by value ascending. limit <= 0 means
	// unbounded.
	GroupCount(ctx context.Context, field Field, limit int) ([]FieldCount, error)

	// Latest returns up to limit records ordered by (timestamp, id)
	// descending.
	Latest(ctx context.Context, limit int) ([]EventRecord, error)

	// Close releases the underlying connection or handle.
	Close() error
}
