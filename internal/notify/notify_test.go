package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"postpilot/internal/scheduler"
)

func sampleSummary() scheduler.Summary {
	return scheduler.Summary{
		RanAt:     time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC),
		Outcome:   scheduler.OutcomeCompleted,
		Due:       2,
		Published: 1,
		Failed:    1,
		SaveOK:    true,
		Results: []scheduler.SlotResult{
			{SlotID: "s1", Success: true, MediaID: "m-1", Permalink: "https://ig/p/1", Persisted: true},
			{SlotID: "s2", Error: "container expired", Persisted: true},
		},
	}
}

func TestWebhookPostsSummary(t *testing.T) {
	var received scheduler.Summary
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != "application/json" {
			t.Errorf("expected JSON content type, got %q", r.Header.Get("Content-Type"))
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	if err := NewWebhook(server.URL).NotifyRun(context.Background(), sampleSummary()); err != nil {
		t.Fatalf("NotifyRun failed: %v", err)
	}
	if received.Published != 1 || len(received.Results) != 2 {
		t.Fatalf("unexpected payload %+v", received)
	}
}

func TestWebhookErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	if err := NewWebhook(server.URL).NotifyRun(context.Background(), sampleSummary()); err == nil {
		t.Fatal("expected error on 5xx response")
	}
}

func TestMultiSwallowsSinkFailures(t *testing.T) {
	failing := sinkFunc(func(context.Context, scheduler.Summary) error {
		return fmt.Errorf("sink down")
	})
	calls := 0
	counting := sinkFunc(func(context.Context, scheduler.Summary) error {
		calls++
		return nil
	})

	multi := NewMulti(failing, counting)
	if err := multi.NotifyRun(context.Background(), sampleSummary()); err != nil {
		t.Fatalf("Multi must never propagate sink failures: %v", err)
	}
	if calls != 1 {
		t.Errorf("later sinks must still run, got %d calls", calls)
	}
}

type sinkFunc func(ctx context.Context, summary scheduler.Summary) error

func (f sinkFunc) NotifyRun(ctx context.Context, summary scheduler.Summary) error {
	return f(ctx, summary)
}

func TestSubjectLines(t *testing.T) {
	summary := sampleSummary()
	if got := Subject(summary); !strings.Contains(got, "1 published, 1 failed") {
		t.Errorf("unexpected subject %q", got)
	}

	summary.SaveOK = false
	if got := Subject(summary); !strings.Contains(got, "STATUS SAVE FAILED") {
		t.Errorf("failed save must be surfaced in the subject: %q", got)
	}

	summary.Outcome = scheduler.OutcomeNothingDue
	if got := Subject(summary); !strings.Contains(got, "nothing due") {
		t.Errorf("unexpected subject %q", got)
	}
}

func TestRenderSummaryWarnsOnFailedSave(t *testing.T) {
	summary := sampleSummary()
	summary.SaveOK = false

	html, err := renderSummary(summary)
	if err != nil {
		t.Fatalf("renderSummary failed: %v", err)
	}
	if !strings.Contains(html, "could not be saved") {
		t.Error("failed save warning missing from email body")
	}
	if !strings.Contains(html, "https://ig/p/1") {
		t.Error("permalink missing from email body")
	}
}
