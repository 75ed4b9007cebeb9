package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"netwatch/internal/config"
)

// Sender pushes events to the ingestion endpoint over HTTP. Transient
// failures (network errors, 5xx) are retried with exponential backoff for
// at-least-once delivery; a 4xx response means the event itself is invalid
// and is never retried.
type Sender struct {
	client    *http.Client
	url       string
	attempts  int
	baseDelay time.Duration
}

// NewSender creates a sender targeting the configured ingest URL.
func NewSender(cfg config.AgentConfig) *Sender {
	attempts := cfg.RetryAttempts
	if attempts < 1 {
		attempts = 1
	}
	return &Sender{
		client:    &http.Client{Timeout: 5 * time.Second},
		url:       cfg.IngestURL,
		attempts:  attempts,
		baseDelay: cfg.BaseDelay(),
	}
}

// Send delivers one event, retrying transient failures until the attempt
// budget or the context runs out.
func (s *Sender) Send(ctx context.Context, payload interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	delay := s.baseDelay
	var lastErr error
	for attempt := 0; attempt < s.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		retryable, err := s.post(ctx, body)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable {
			return err
		}
		log.Printf("Delivery attempt %d failed: %v", attempt+1, err)
	}
	return fmt.Errorf("event not delivered after %d attempts: %w", s.attempts, lastErr)
}

// post performs one delivery attempt. The boolean reports whether the
// failure is worth retrying.
func (s *Sender) post(ctx context.Context, body []byte) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return true, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return false, nil
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return false, fmt.Errorf("event rejected with status %d: %s", resp.StatusCode, msg)
	default:
		return true, fmt.Errorf("ingest returned status %d", resp.StatusCode)
	}
}
