package ingest

import (
	"context"
	"fmt"
	"time"

	"netwatch/internal/model"
)

// Payload is one candidate event as pushed by the capture agent. Field names
// follow the agent's wire format.
type Payload struct {
	Timestamp string `json:"timestamp,omitempty"`
	SrcAddr   string `json:"src_ip"`
	DstAddr   string `json:"dst_ip"`
	Protocol  string `json:"protocol"`
	Size      int64  `json:"packet_size"`
}

// Accepted timestamp layouts. Agents may omit the zone designator, in which
// case the timestamp is taken as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// Service validates candidate events and appends them to the event store.
// Delivery is at-least-once: a failed append is retried by the producer and
// may duplicate, since records carry no dedup key.
type Service struct {
	store model.EventStore
	now   func() time.Time
}

// NewService creates an ingestion service writing to store.
func NewService(store model.EventStore) *Service {
	return &Service{store: store, now: time.Now}
}

// Ingest validates p, persists it and returns the stored record.
// A payload without a timestamp gets the current UTC time assigned before
// append; a supplied timestamp is normalized to UTC and kept as-is.
func (s *Service) Ingest(ctx context.Context, p Payload) (*model.EventRecord, error) {
	rec, err := s.validate(p)
	if err != nil {
		return nil, err
	}

	id, err := s.store.Append(ctx, rec)
	if err != nil {
		return nil, err
	}
	rec.ID = id
	return rec, nil
}

func (s *Service) validate(p Payload) (*model.EventRecord, error) {
	if p.SrcAddr == "" {
		return nil, fmt.Errorf("%w: missing src_ip", model.ErrInvalidEvent)
	}
	if p.DstAddr == "" {
		return nil, fmt.Errorf("%w: missing dst_ip", model.ErrInvalidEvent)
	}
	if p.Size < 0 {
		return nil, fmt.Errorf("%w: negative packet_size %d", model.ErrInvalidEvent, p.Size)
	}
	proto, err := model.ParseProtocol(p.Protocol)
	if err != nil {
		return nil, err
	}

	ts := s.now().UTC()
	if p.Timestamp != "" {
		parsed, err := parseTimestamp(p.Timestamp)
		if err != nil {
			return nil, err
		}
		ts = parsed
	}

	return &model.EventRecord{
		Timestamp: ts,
		SrcAddr:   p.SrcAddr,
		DstAddr:   p.DstAddr,
		Protocol:  proto,
		Size:      p.Size,
	}, nil
}

func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: unparseable timestamp %q", model.ErrInvalidEvent, s)
}
