package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/gopacket"
	gppcap "github.com/google/gopacket/pcap"

	"netwatch/internal/agent"
	"netwatch/internal/config"
	"netwatch/internal/ingest"
	"netwatch/pkg/pcap"
)

const promiscuous = true

// deliverFunc pushes one event towards the backend.
type deliverFunc func(ctx context.Context, payload *ingest.Payload) error

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to the configuration file.")
	iface := flag.String("iface", "", "Interface to capture packets from.")
	pcapFile := flag.String("pcap", "", "Replay events from a pcap file instead of capturing live.")
	mode := flag.String("mode", "http", "Delivery mode: 'http' to POST to the ingest endpoint, 'nats' to publish to the broker.")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	deliver, cleanup := newDeliverer(*mode, cfg)
	defer cleanup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Shutdown on SIGINT/SIGTERM
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Println("Shutdown signal received, cleaning up...")
		cancel()
	}()

	switch {
	case *pcapFile != "":
		replayFile(ctx, *pcapFile, deliver)
	case *iface != "":
		captureLive(ctx, *iface, cfg, deliver)
	default:
		log.Println("Error: one of -iface or -pcap is required.")
		flag.Usage()
		os.Exit(1)
	}
}

// newDeliverer picks the delivery path for the chosen mode.
func newDeliverer(mode string, cfg *config.Config) (deliverFunc, func()) {
	switch mode {
	case "http":
		sender := agent.NewSender(cfg.Agent)
		return func(ctx context.Context, payload *ingest.Payload) error {
			return sender.Send(ctx, payload)
		}, func() {}
	case "nats":
		pub, err := agent.NewPublisher(cfg.NATS)
		if err != nil {
			log.Fatalf("Failed to connect to NATS: %v", err)
		}
		return func(_ context.Context, payload *ingest.Payload) error {
			return pub.Publish(payload)
		}, pub.Close
	default:
		log.Fatalf("Invalid mode: %s", mode)
		return nil, nil
	}
}

// captureLive reads frames off a network interface until the context ends.
func captureLive(ctx context.Context, interfaceName string, cfg *config.Config, deliver deliverFunc) {
	log.Printf("Starting nw-agent on interface: %s", interfaceName)

	handle, err := gppcap.OpenLive(interfaceName, cfg.Agent.SnapshotLen, promiscuous, gppcap.BlockForever)
	if err != nil {
		log.Fatalf("Error opening device %s: %v", interfaceName, err)
	}
	defer handle.Close()

	log.Println("Capture started successfully. Pushing events...")

	packetSource := gopacket.NewPacketSource(handle, handle.LinkType())
	delivered := 0
	for {
		select {
		case <-ctx.Done():
			return
		case packet, ok := <-packetSource.Packets():
			if !ok {
				return
			}
			payload, err := agent.ParsePacket(packet)
			if err != nil {
				continue // Skip non-IP packets
			}
			if err := deliver(ctx, payload); err != nil {
				log.Printf("Failed to deliver event: %v", err)
				continue
			}
			delivered++
			if delivered%1000 == 0 {
				log.Printf("%d events delivered...", delivered)
			}
		}
	}
}

// replayFile pushes every event of a capture file through the backend.
func replayFile(ctx context.Context, filePath string, deliver deliverFunc) {
	log.Printf("Replaying events from %s", filePath)

	reader, err := pcap.NewReader(filePath)
	if err != nil {
		log.Fatalf("Error opening pcap file %s: %v", filePath, err)
	}
	defer reader.Close()

	out := make(chan *ingest.Payload)
	go reader.ReadEvents(out)

	delivered := 0
	for payload := range out {
		if ctx.Err() != nil {
			return
		}
		if err := deliver(ctx, payload); err != nil {
			log.Printf("Failed to deliver event: %v", err)
			continue
		}
		delivered++
	}
	log.Printf("Replay finished, %d events delivered.", delivered)
}
