package agent

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
)

func buildPacket(t *testing.T, transport gopacket.SerializableLayer) gopacket.Packet {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version: 4,
		IHL:     5,
		TTL:     64,
		SrcIP:   net.ParseIP("10.0.0.5"),
		DstIP:   net.ParseIP("192.168.1.1"),
	}

	stack := []gopacket.SerializableLayer{eth, ip}
	switch l := transport.(type) {
	case *layers.TCP:
		ip.Protocol = layers.IPProtocolTCP
		l.SetNetworkLayerForChecksum(ip)
		stack = append(stack, l)
	case *layers.UDP:
		ip.Protocol = layers.IPProtocolUDP
		l.SetNetworkLayerForChecksum(ip)
		stack = append(stack, l)
	case *layers.ICMPv4:
		ip.Protocol = layers.IPProtocolICMPv4
		stack = append(stack, l)
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, stack...); err != nil {
		t.Fatalf("Failed to serialize packet: %v", err)
	}
	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
}

func TestParsePacketTCP(t *testing.T) {
	pkt := buildPacket(t, &layers.TCP{SrcPort: 44321, DstPort: 80})

	p, err := ParsePacket(pkt)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if p.SrcAddr != "10.0.0.5" || p.DstAddr != "192.168.1.1" {
		t.Errorf("Addresses = %q -> %q", p.SrcAddr, p.DstAddr)
	}
	if p.Protocol != "TCP" {
		t.Errorf("Protocol = %q, want TCP", p.Protocol)
	}
	if p.Size <= 0 {
		t.Errorf("Size = %d, want positive", p.Size)
	}
	if _, err := time.Parse(time.RFC3339Nano, p.Timestamp); err != nil {
		t.Errorf("Timestamp %q is not RFC3339: %v", p.Timestamp, err)
	}
}

func TestParsePacketUDP(t *testing.T) {
	pkt := buildPacket(t, &layers.UDP{SrcPort: 5353, DstPort: 5353})

	p, err := ParsePacket(pkt)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if p.Protocol != "UDP" {
		t.Errorf("Protocol = %q, want UDP", p.Protocol)
	}
}

func TestParsePacketICMPClassifiesAsOther(t *testing.T) {
	pkt := buildPacket(t, &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(8, 0)})

	p, err := ParsePacket(pkt)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if p.Protocol != "OTHER" {
		t.Errorf("Protocol = %q, want OTHER", p.Protocol)
	}
}

func TestParsePacketRejectsNonIP(t *testing.T) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		DstMAC:       net.HardwareAddr{0x66, 0x77, 0x88, 0x99, 0xaa, 0xbb},
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   []byte{0x00, 0x11, 0x22, 0x33, 0x44, 0x55},
		SourceProtAddress: []byte{10, 0, 0, 5},
		DstHwAddress:      []byte{0, 0, 0, 0, 0, 0},
		DstProtAddress:    []byte{192, 168, 1, 1},
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp); err != nil {
		t.Fatalf("Failed to serialize ARP packet: %v", err)
	}
	pkt := gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)

	if _, err := ParsePacket(pkt); err == nil {
		t.Fatal("Expected an error for a non-IP packet")
	}
}

func TestParsePacketUsesCaptureMetadata(t *testing.T) {
	pkt := buildPacket(t, &layers.TCP{SrcPort: 1234, DstPort: 80})
	ts := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	pkt.Metadata().Timestamp = ts
	pkt.Metadata().Length = 1500

	p, err := ParsePacket(pkt)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if p.Size != 1500 {
		t.Errorf("Size = %d, want wire length 1500", p.Size)
	}
	if p.Timestamp != ts.Format(time.RFC3339Nano) {
		t.Errorf("Timestamp = %q, want capture time %v", p.Timestamp, ts)
	}
}
