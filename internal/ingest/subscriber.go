package ingest

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"netwatch/internal/config"
)

// Subscriber consumes agent events from a NATS subject and feeds them into
// the ingestion service. It is the brokered alternative to the HTTP endpoint;
// both paths share validation and append semantics.
type Subscriber struct {
	nc      *nats.Conn
	sub     *nats.Subscription
	subject string
	svc     *Service
	timeout time.Duration
}

// NewSubscriber connects to NATS and prepares a subscriber for the configured
// subject.
func NewSubscriber(cfg config.NATSConfig, svc *Service, timeout time.Duration) (*Subscriber, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Subscriber{nc: nc, subject: cfg.Subject, svc: svc, timeout: timeout}, nil
}

// Start subscribes and ingests every received event. Malformed payloads are
// logged and dropped; store failures are logged and left to the publisher's
// redelivery (at-least-once, duplicates tolerated).
func (s *Subscriber) Start() error {
	sub, err := s.nc.Subscribe(s.subject, func(msg *nats.Msg) {
		var p Payload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			log.Printf("Error unmarshalling event: %v", err)
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()

		if _, err := s.svc.Ingest(ctx, p); err != nil {
			log.Printf("Error ingesting event from NATS: %v", err)
		}
	})
	if err != nil {
		return err
	}
	s.sub = sub
	log.Printf("Subscribed to '%s'. Waiting for events...", s.subject)
	return nil
}

// Close unsubscribes and drains the NATS connection.
func (s *Subscriber) Close() {
	if s.sub != nil {
		s.sub.Unsubscribe()
	}
	if s.nc != nil {
		s.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
