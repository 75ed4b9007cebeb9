package model

import (
	"fmt"
	"time"
)

// Protocol is the transport protocol of a captured flow event.
// Decoding beyond this small set is intentionally out of scope.
type Protocol string

const (
	ProtocolTCP   Protocol = "TCP"
	ProtocolUDP   Protocol = "UDP"
	ProtocolOther Protocol = "OTHER"
)

// Valid reports whether p is one of the enumerated protocols.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolTCP, ProtocolUDP, ProtocolOther:
		return true
	}
	return false
}

// ParseProtocol maps a wire string to a Protocol.
func ParseProtocol(s string) (Protocol, error) {
	p := Protocol(s)
	if !p.Valid() {
		return "", fmt.Errorf("%w: unknown protocol %q", ErrInvalidEvent, s)
	}
	return p, nil
}

// EventRecord is one logged network flow observation. Records are immutable
// once stored: the store assigns ID, everything else is set by ingestion.
type EventRecord struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	SrcAddr   string    `json:"src_ip"`
	DstAddr   string    `json:"dst_ip"`
	Protocol  Protocol  `json:"protocol"`
	Size      int64     `json:"packet_size"`
}

// Alert is an ephemeral signal that a source exceeded the window threshold.
// Alerts are recomputed from scratch on every evaluation and never persisted.
type Alert struct {
	SrcAddr     string    `json:"src_ip"`
	PacketCount int64     `json:"packet_count"`
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
	Message     string    `json:"alert"`
}

// Summary holds the store-wide aggregates. All fields are zero on an empty
// store, never null.
type Summary struct {
	TotalPackets       int64 `json:"total_packets"`
	UniqueSources      int64 `json:"unique_sources"`
	UniqueDestinations int64 `json:"unique_destinations"`
	TotalBytes         int64 `json:"total_bytes"`
}

// AddrCount is one entry of a top-talkers ranking.
type AddrCount struct {
	Addr  string `json:"src_ip"`
	Count int64  `json:"count"`
}

// ProtocolCount is one entry of a protocol distribution.
type ProtocolCount struct {
	Protocol Protocol `json:"protocol"`
	Count    int64    `json:"count"`
}

// TrafficBucket aggregates the events of one fixed-size time subinterval.
// Buckets with zero events are omitted from series, not zero-filled.
type TrafficBucket struct {
	Timestamp   time.Time `json:"timestamp"`
	PacketCount int64     `json:"packet_count"`
	TotalBytes  int64     `json:"total_bytes"`
}
