package agent

import (
	"encoding/json"
	"log"

	"github.com/nats-io/nats.go"

	"netwatch/internal/config"
)

// Publisher is the brokered delivery path: events are published to a NATS
// subject consumed by the backend's ingest subscriber.
type Publisher struct {
	nc      *nats.Conn
	subject string
}

// NewPublisher connects to the configured NATS server.
func NewPublisher(cfg config.NATSConfig) (*Publisher, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &Publisher{nc: nc, subject: cfg.Subject}, nil
}

// Publish serializes one event to JSON and publishes it.
func (p *Publisher) Publish(payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	return p.nc.Publish(p.subject, data)
}

// Close drains and closes the NATS connection.
func (p *Publisher) Close() {
	if p.nc != nil {
		p.nc.Drain()
		log.Println("NATS connection drained and closed.")
	}
}
