package stats

import (
	"context"
	"fmt"
	"sort"
	"time"

	"netwatch/internal/config"
	"netwatch/internal/model"
)

// Service answers the read-only aggregation queries. Every call is computed
// fresh against the current store contents; there is no caching layer.
type Service struct {
	store model.EventStore
	cfg   config.StatsConfig
	now   func() time.Time
}

// NewService creates an aggregation service reading from store.
func NewService(store model.EventStore, cfg config.StatsConfig) *Service {
	return &Service{store: store, cfg: cfg, now: time.Now}
}

// Summary returns the store-wide aggregates. An empty store resolves to
// all-zero values, never an error.
func (s *Service) Summary(ctx context.Context) (*model.Summary, error) {
	total, err := s.store.CountAll(ctx)
	if err != nil {
		return nil, err
	}
	sources, err := s.store.CountDistinct(ctx, model.FieldSrcAddr)
	if err != nil {
		return nil, err
	}
	destinations, err := s.store.CountDistinct(ctx, model.FieldDstAddr)
	if err != nil {
		return nil, err
	}
	bytes, err := s.store.SumBytes(ctx)
	if err != nil {
		return nil, err
	}
	return &model.Summary{
		TotalPackets:       total,
		UniqueSources:      sources,
		UniqueDestinations: destinations,
		TotalBytes:         bytes,
	}, nil
}

// TopTalkers returns the n sources with the most events, count descending,
// ties broken by source address ascending. n <= 0 selects the configured
// default.
func (s *Service) TopTalkers(ctx context.Context, n int) ([]model.AddrCount, error) {
	if n == 0 {
		n = s.cfg.TopTalkers
	}
	if err := s.checkLimit("n", n); err != nil {
		return nil, err
	}

	groups, err := s.store.GroupCount(ctx, model.FieldSrcAddr, n)
	if err != nil {
		return nil, err
	}
	out := make([]model.AddrCount, 0, len(groups))
	for _, g := range groups {
		out = append(out, model.AddrCount{Addr: g.Value, Count: g.Count})
	}
	return out, nil
}

// ProtocolDistribution returns event counts per protocol, count descending.
func (s *Service) ProtocolDistribution(ctx context.Context) ([]model.ProtocolCount, error) {
	groups, err := s.store.GroupCount(ctx, model.FieldProtocol, 0)
	if err != nil {
		return nil, err
	}
	out := make([]model.ProtocolCount, 0, len(groups))
	for _, g := range groups {
		out = append(out, model.ProtocolCount{Protocol: model.Protocol(g.Value), Count: g.Count})
	}
	return out, nil
}

// TrafficOverTime buckets the trailing window into fixed-size intervals and
// returns packet count and byte total per non-empty bucket, bucket start
// ascending. Empty buckets are omitted; callers must handle the gaps.
// windowMinutes and bucketSeconds <= 0 select the configured defaults.
func (s *Service) TrafficOverTime(ctx context.Context, windowMinutes, bucketSeconds int) ([]model.TrafficBucket, error) {
	if windowMinutes == 0 {
		windowMinutes = s.cfg.TrafficWindowMinutes
	}
	if bucketSeconds == 0 {
		bucketSeconds = s.cfg.BucketSeconds
	}
	if windowMinutes < 1 {
		return nil, fmt.Errorf("%w: window_minutes must be positive, got %d", model.ErrInvalidParameter, windowMinutes)
	}
	if bucketSeconds < 1 {
		return nil, fmt.Errorf("%w: bucket_seconds must be positive, got %d", model.ErrInvalidParameter, bucketSeconds)
	}

	to := s.now().UTC()
	from := to.Add(-time.Duration(windowMinutes) * time.Minute)
	events, err := s.store.RangeByTime(ctx, from, to)
	if err != nil {
		return nil, err
	}

	bucket := time.Duration(bucketSeconds) * time.Second
	byStart := make(map[time.Time]*model.TrafficBucket)
	for _, ev := range events {
		start := ev.Timestamp.Truncate(bucket)
		b, ok := byStart[start]
		if !ok {
			b = &model.TrafficBucket{Timestamp: start}
			byStart[start] = b
		}
		b.PacketCount++
		b.TotalBytes += ev.Size
	}

	out := make([]model.TrafficBucket, 0, len(byStart))
	for _, b := range byStart {
		out = append(out, *b)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// RecentPackets returns the limit most recent records, most-recent-first.
// limit <= 0 selects the configured default.
func (s *Service) RecentPackets(ctx context.Context, limit int) ([]model.EventRecord, error) {
	if limit == 0 {
		limit = s.cfg.RecentLimit
	}
	if err := s.checkLimit("limit", limit); err != nil {
		return nil, err
	}

	events, err := s.store.Latest(ctx, limit)
	if err != nil {
		return nil, err
	}
	if events == nil {
		events = []model.EventRecord{}
	}
	return events, nil
}

func (s *Service) checkLimit(name string, v int) error {
	if v < 1 || v > s.cfg.MaxLimit {
		return fmt.Errorf("%w: %s must be between 1 and %d, got %d",
			model.ErrInvalidParameter, name, s.cfg.MaxLimit, v)
	}
	return nil
}
