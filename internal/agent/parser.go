package agent

import (
	"fmt"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"netwatch/internal/ingest"
)

// ParsePacket extracts one event payload from a decoded frame. Only IP
// traffic produces events; anything above IP that is not TCP or UDP is
// classified as OTHER rather than dropped, matching the enumerated protocol
// set of the backend.
func ParsePacket(packet gopacket.Packet) (*ingest.Payload, error) {
	var srcAddr, dstAddr string

	if l := packet.Layer(layers.LayerTypeIPv4); l != nil {
		ip := l.(*layers.IPv4)
		srcAddr = ip.SrcIP.String()
		dstAddr = ip.DstIP.String()
	} else if l := packet.Layer(layers.LayerTypeIPv6); l != nil {
		ip := l.(*layers.IPv6)
		srcAddr = ip.SrcIP.String()
		dstAddr = ip.DstIP.String()
	} else {
		return nil, fmt.Errorf("not an IP packet")
	}

	protocol := "OTHER"
	if packet.Layer(layers.LayerTypeTCP) != nil {
		protocol = "TCP"
	} else if packet.Layer(layers.LayerTypeUDP) != nil {
		protocol = "UDP"
	}

	ts := time.Now()
	size := len(packet.Data())
	if meta := packet.Metadata(); meta != nil {
		if !meta.Timestamp.IsZero() {
			ts = meta.Timestamp
		}
		if meta.Length > 0 {
			size = meta.Length
		}
	}

	return &ingest.Payload{
		Timestamp: ts.UTC().Format(time.RFC3339Nano),
		SrcAddr:   srcAddr,
		DstAddr:   dstAddr,
		Protocol:  protocol,
		Size:      int64(size),
	}, nil
}
