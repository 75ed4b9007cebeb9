package detector

import (
	"context"
	"sort"
	"time"

	"netwatch/internal/config"
	"netwatch/internal/model"
)

// AlertMessage is attached to every emitted alert.
const AlertMessage = "Possible port scanning detected"

// Detector evaluates the sliding-window anomaly rule: a source alerts when it
// produced strictly more than Threshold events within the trailing window.
//
// The detector keeps no state between evaluations; every call recomputes from
// the current store contents. That trades repeated window scans for
// simplicity and immunity to detector crashes, which is acceptable while
// windows stay small relative to store size.
type Detector struct {
	store     model.EventStore
	threshold int64
	window    time.Duration
	now       func() time.Time
}

// New creates a detector reading from store with the configured rule.
func New(store model.EventStore, cfg config.DetectorConfig) *Detector {
	return &Detector{
		store:     store,
		threshold: int64(cfg.Threshold),
		window:    cfg.Window(),
		now:       time.Now,
	}
}

// Detect scans the trailing window and returns one alert per source whose
// event count exceeds the threshold. The result is sorted by count descending
// then source ascending, so two evaluations over an unchanged store are
// identical. An empty store yields an empty set, never an error; a failed
// range query fails the whole evaluation, never a partial alert set.
func (d *Detector) Detect(ctx context.Context) ([]model.Alert, error) {
	windowEnd := d.now().UTC()
	windowStart := windowEnd.Add(-d.window)

	events, err := d.store.RangeByTime(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int64)
	for _, ev := range events {
		counts[ev.SrcAddr]++
	}

	alerts := make([]model.Alert, 0)
	for src, count := range counts {
		if count > d.threshold {
			alerts = append(alerts, model.Alert{
				SrcAddr:     src,
				PacketCount: count,
				WindowStart: windowStart,
				WindowEnd:   windowEnd,
				Message:     AlertMessage,
			})
		}
	}

	sort.Slice(alerts, func(i, j int) bool {
		if alerts[i].PacketCount != alerts[j].PacketCount {
			return alerts[i].PacketCount > alerts[j].PacketCount
		}
		return alerts[i].SrcAddr < alerts[j].SrcAddr
	})
	return alerts, nil
}
