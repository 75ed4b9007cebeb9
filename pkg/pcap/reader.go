package pcap

import (
	"log"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"netwatch/internal/agent"
	"netwatch/internal/ingest"
)

// Reader replays events from a pcap file through the same parser the live
// agent uses.
type Reader struct {
	handle *pcap.Handle
}

// NewReader creates a new pcap reader for the given file path.
func NewReader(filePath string) (*Reader, error) {
	handle, err := pcap.OpenOffline(filePath)
	if err != nil {
		return nil, err
	}
	return &Reader{handle: handle}, nil
}

// Close closes the pcap handle.
func (r *Reader) Close() {
	r.handle.Close()
}

// ReadEvents parses all packets from the pcap file and sends the resulting
// payloads to the provided channel. It closes the channel when done.
func (r *Reader) ReadEvents(out chan<- *ingest.Payload) {
	defer close(out)

	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())
	for packet := range packetSource.Packets() {
		payload, err := agent.ParsePacket(packet)
		if err != nil {
			// Unsupported packet types are expected in arbitrary captures.
			log.Printf("Skipping packet: %v", err)
			continue
		}
		out <- payload
	}
}
