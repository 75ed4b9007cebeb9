package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"netwatch/internal/model"
)

// newBackends returns a fresh instance of every store backend that can run
// without external infrastructure. ClickHouse is exercised in integration
// environments only.
func newBackends(t *testing.T) map[string]model.EventStore {
	t.Helper()

	sqlite, err := NewSQLite("file:" + filepath.Join(t.TempDir(), "events.db"))
	if err != nil {
		t.Fatalf("Failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]model.EventStore{
		"memory": NewMemory(),
		"sqlite": sqlite,
	}
}

func mustAppend(t *testing.T, s model.EventStore, ts time.Time, src, dst string, proto model.Protocol, size int64) int64 {
	t.Helper()
	id, err := s.Append(context.Background(), &model.EventRecord{
		Timestamp: ts,
		SrcAddr:   src,
		DstAddr:   dst,
		Protocol:  proto,
		Size:      size,
	})
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	return id
}

func TestAppendAssignsIncreasingIDs(t *testing.T) {
	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			var prev int64
			for i := 0; i < 5; i++ {
				id := mustAppend(t, s, ts, "10.0.0.1", "10.0.0.2", model.ProtocolTCP, 100)
				if id <= prev {
					t.Fatalf("ID %d not greater than previous %d", id, prev)
				}
				prev = id
			}
		})
	}
}

func TestRangeByTime(t *testing.T) {
	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			mustAppend(t, s, base.Add(-time.Second), "before", "d", model.ProtocolTCP, 1)
			mustAppend(t, s, base, "first", "d", model.ProtocolTCP, 1)
			mustAppend(t, s, base.Add(2*time.Second), "second", "d", model.ProtocolUDP, 1)
			mustAppend(t, s, base.Add(10*time.Second), "end", "d", model.ProtocolTCP, 1)

			// [from, to): the lower bound is included, the upper excluded.
			got, err := s.RangeByTime(context.Background(), base, base.Add(10*time.Second))
			if err != nil {
				t.Fatalf("RangeByTime failed: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("Expected 2 records in range, got %d", len(got))
			}
			if got[0].SrcAddr != "first" || got[1].SrcAddr != "second" {
				t.Errorf("Wrong order: got %q then %q", got[0].SrcAddr, got[1].SrcAddr)
			}
		})
	}
}

func TestRangeByTimeBreaksTimestampTiesByID(t *testing.T) {
	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			idA := mustAppend(t, s, ts, "a", "d", model.ProtocolTCP, 1)
			idB := mustAppend(t, s, ts, "b", "d", model.ProtocolTCP, 1)

			got, err := s.RangeByTime(context.Background(), ts, ts.Add(time.Second))
			if err != nil {
				t.Fatalf("RangeByTime failed: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("Expected 2 records, got %d", len(got))
			}
			if got[0].ID != idA || got[1].ID != idB {
				t.Errorf("Tie not broken by ID: got %d then %d", got[0].ID, got[1].ID)
			}
		})
	}
}

func TestAggregates(t *testing.T) {
	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			mustAppend(t, s, ts, "10.0.0.1", "192.168.0.1", model.ProtocolTCP, 100)
			mustAppend(t, s, ts, "10.0.0.1", "192.168.0.2", model.ProtocolTCP, 200)
			mustAppend(t, s, ts, "10.0.0.2", "192.168.0.1", model.ProtocolUDP, 50)

			if n, err := s.CountAll(ctx); err != nil || n != 3 {
				t.Errorf("CountAll = %d, %v; want 3", n, err)
			}
			if n, err := s.CountDistinct(ctx, model.FieldSrcAddr); err != nil || n != 2 {
				t.Errorf("CountDistinct(src) = %d, %v; want 2", n, err)
			}
			if n, err := s.CountDistinct(ctx, model.FieldDstAddr); err != nil || n != 2 {
				t.Errorf("CountDistinct(dst) = %d, %v; want 2", n, err)
			}
			if sum, err := s.SumBytes(ctx); err != nil || sum != 350 {
				t.Errorf("SumBytes = %d, %v; want 350", sum, err)
			}
		})
	}
}

func TestAggregatesOnEmptyStore(t *testing.T) {
	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if n, err := s.CountAll(ctx); err != nil || n != 0 {
				t.Errorf("CountAll = %d, %v; want 0, nil", n, err)
			}
			if n, err := s.CountDistinct(ctx, model.FieldSrcAddr); err != nil || n != 0 {
				t.Errorf("CountDistinct = %d, %v; want 0, nil", n, err)
			}
			if sum, err := s.SumBytes(ctx); err != nil || sum != 0 {
				t.Errorf("SumBytes = %d, %v; want 0, nil", sum, err)
			}
		})
	}
}

func TestGroupCountOrderAndLimit(t *testing.T) {
	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			for i := 0; i < 3; i++ {
				mustAppend(t, s, ts, "10.0.0.3", "d", model.ProtocolTCP, 1)
			}
			// Two sources tied at 2: the tie breaks by address ascending.
			for i := 0; i < 2; i++ {
				mustAppend(t, s, ts, "10.0.0.2", "d", model.ProtocolTCP, 1)
				mustAppend(t, s, ts, "10.0.0.1", "d", model.ProtocolTCP, 1)
			}

			got, err := s.GroupCount(context.Background(), model.FieldSrcAddr, 2)
			if err != nil {
				t.Fatalf("GroupCount failed: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("Expected limit to cap results at 2, got %d", len(got))
			}
			if got[0].Value != "10.0.0.3" || got[0].Count != 3 {
				t.Errorf("First group = %+v, want 10.0.0.3 x3", got[0])
			}
			if got[1].Value != "10.0.0.1" || got[1].Count != 2 {
				t.Errorf("Second group = %+v, want 10.0.0.1 x2 (tie by address)", got[1])
			}

			all, err := s.GroupCount(context.Background(), model.FieldSrcAddr, 0)
			if err != nil {
				t.Fatalf("Unbounded GroupCount failed: %v", err)
			}
			if len(all) != 3 {
				t.Errorf("Unbounded GroupCount returned %d groups, want 3", len(all))
			}
		})
	}
}

func TestLatest(t *testing.T) {
	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
			mustAppend(t, s, base, "old", "d", model.ProtocolTCP, 1)
			mustAppend(t, s, base.Add(time.Second), "mid", "d", model.ProtocolTCP, 1)
			mustAppend(t, s, base.Add(2*time.Second), "new", "d", model.ProtocolTCP, 1)

			got, err := s.Latest(context.Background(), 2)
			if err != nil {
				t.Fatalf("Latest failed: %v", err)
			}
			if len(got) != 2 {
				t.Fatalf("Expected 2 records, got %d", len(got))
			}
			if got[0].SrcAddr != "new" || got[1].SrcAddr != "mid" {
				t.Errorf("Wrong order: got %q then %q", got[0].SrcAddr, got[1].SrcAddr)
			}
		})
	}
}

func TestTimestampsSurviveRoundTripInUTC(t *testing.T) {
	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			loc := time.FixedZone("UTC+7", 7*3600)
			ts := time.Date(2024, 5, 1, 19, 0, 0, 123456789, loc)
			mustAppend(t, s, ts, "src", "dst", model.ProtocolOther, 42)

			got, err := s.Latest(context.Background(), 1)
			if err != nil || len(got) != 1 {
				t.Fatalf("Latest = %v, %v", got, err)
			}
			if !got[0].Timestamp.Equal(ts) {
				t.Errorf("Timestamp = %v, want instant %v", got[0].Timestamp, ts)
			}
			if got[0].Timestamp.Location() != time.UTC {
				t.Errorf("Timestamp not normalized to UTC: %v", got[0].Timestamp.Location())
			}
		})
	}
}

func TestGroupCountRejectsUnknownField(t *testing.T) {
	for name, s := range newBackends(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := s.GroupCount(context.Background(), model.Field("size; DROP TABLE events"), 1); err == nil {
				t.Fatal("Expected an error for an unenumerated field")
			}
		})
	}
}
