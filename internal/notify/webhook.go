// Package notify delivers run summaries to the configured sinks. Delivery is
// fire-and-forget: failures are logged, never fatal, and never retried.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"postpilot/internal/scheduler"
)

// Sink receives one summary per scheduler invocation.
type Sink interface {
	NotifyRun(ctx context.Context, summary scheduler.Summary) error
}

// Webhook posts the summary as JSON to one URL.
type Webhook struct {
	url    string
	client *http.Client
}

func NewWebhook(url string) *Webhook {
	return &Webhook{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (w *Webhook) NotifyRun(ctx context.Context, summary scheduler.Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("post summary: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// Multi fans a summary out to several sinks, logging individual failures.
// It never returns an error: notification loss must not affect the run.
type Multi struct {
	sinks []Sink
}

func NewMulti(sinks ...Sink) *Multi {
	return &Multi{sinks: sinks}
}

func (m *Multi) NotifyRun(ctx context.Context, summary scheduler.Summary) error {
	for _, sink := range m.sinks {
		if err := sink.NotifyRun(ctx, summary); err != nil {
			log.Printf("notify: sink %T failed: %v", sink, err)
		}
	}
	return nil
}
