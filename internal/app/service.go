// Package app is the one shared orchestration layer behind every entry
// point: the interactive client's sync endpoint, the manual publish-now
// trigger and the periodic scheduler run all call into the same Service. The
// entry points differ only in how they are triggered and what window or
// guards they apply; none of them carries its own copy of the merge or
// publish logic.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"postpilot/internal/docstore"
	"postpilot/internal/document"
	"postpilot/internal/history"
	"postpilot/internal/notify"
	"postpilot/internal/scheduler"
)

// DocumentStore is the blob-backed document client.
type DocumentStore interface {
	Fetch(ctx context.Context) (*document.Document, error)
	Write(ctx context.Context, doc *document.Document) (docstore.Receipt, error)
}

// Runner drives scheduled and on-demand publishing.
type Runner interface {
	Run(ctx context.Context) scheduler.Summary
	PublishNow(ctx context.Context, slotID string) (scheduler.SlotResult, error)
}

// Historian records document revisions and lists them back. Recording is
// best-effort; failures are logged.
type Historian interface {
	Record(doc *document.Document, actor, message string) error
	Versions(limit int) ([]history.Version, error)
}

// Pinger is implemented by collaborators with a cheap health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Service struct {
	store   DocumentStore
	runner  Runner
	sink    notify.Sink // may be nil
	history Historian   // may be nil
	catalog Pinger      // may be nil

	now func() time.Time
}

func New(store DocumentStore, runner Runner) *Service {
	return &Service{
		store:  store,
		runner: runner,
		now:    time.Now,
	}
}

// WithSink attaches the notification sink.
func (s *Service) WithSink(sink notify.Sink) *Service {
	s.sink = sink
	return s
}

// WithHistory attaches the document history recorder.
func (s *Service) WithHistory(history Historian) *Service {
	s.history = history
	return s
}

// WithCatalogPinger attaches the catalogue health probe.
func (s *Service) WithCatalogPinger(p Pinger) *Service {
	s.catalog = p
	return s
}

// Sync merges the interactive client's local copy against the freshest
// remote copy and writes the result, returning the merged document for the
// client to adopt. This is the only way a client write reaches the store.
func (s *Service) Sync(ctx context.Context, client document.Document) (document.Document, error) {
	remote, err := s.store.Fetch(ctx)
	if err != nil {
		return document.Document{}, s.storeError("load document", err)
	}

	merged := document.Merge(client, remote, s.now())
	if _, err := s.store.Write(ctx, &merged); err != nil {
		return document.Document{}, s.storeError("save document", err)
	}

	s.record(&merged, "sync client", "client sync")
	return merged, nil
}

// Document returns the current remote document, or a NOT_FOUND domain error
// on a fresh install.
func (s *Service) Document(ctx context.Context) (*document.Document, error) {
	doc, err := s.store.Fetch(ctx)
	if err != nil {
		return nil, s.storeError("load document", err)
	}
	if doc == nil {
		return nil, domainError(http.StatusNotFound, "NO_DOCUMENT", "No document exists yet", nil)
	}
	return doc, nil
}

// RunScheduled executes one scheduler invocation and emits its summary to
// the notification sink. Invoked by the internal ticker and by the one-shot
// scheduler binary.
func (s *Service) RunScheduled(ctx context.Context) scheduler.Summary {
	summary := s.runner.Run(ctx)
	s.notify(ctx, summary)
	if summary.Outcome == scheduler.OutcomeCompleted {
		s.recordCurrent(ctx, "scheduler", "scheduled publish run")
	}
	return summary
}

// PublishSlotNow publishes one slot on demand, bypassing the due window but
// not the idempotency guard. The outcome is reported to the sink as a
// single-slot run.
func (s *Service) PublishSlotNow(ctx context.Context, slotID string) (scheduler.SlotResult, error) {
	result, err := s.runner.PublishNow(ctx, slotID)
	if err != nil {
		switch {
		case errors.Is(err, scheduler.ErrSlotNotFound):
			return scheduler.SlotResult{}, domainError(http.StatusNotFound, "SLOT_NOT_FOUND", err.Error(), nil)
		case errors.Is(err, scheduler.ErrAlreadyPublished):
			return scheduler.SlotResult{}, domainError(http.StatusConflict, "ALREADY_PUBLISHED", err.Error(), nil)
		case errors.Is(err, scheduler.ErrNoDocument):
			return scheduler.SlotResult{}, domainError(http.StatusNotFound, "NO_DOCUMENT", err.Error(), nil)
		case errors.Is(err, scheduler.ErrNotConnected):
			return scheduler.SlotResult{}, domainError(http.StatusConflict, "NOT_CONNECTED", err.Error(), nil)
		}
		return scheduler.SlotResult{}, s.storeError("publish slot", err)
	}

	summary := scheduler.Summary{
		RanAt:   s.now(),
		Outcome: scheduler.OutcomeCompleted,
		Due:     1,
		SaveOK:  result.Persisted,
		Results: []scheduler.SlotResult{result},
	}
	if result.Success {
		summary.Published = 1
	} else if result.Skipped {
		summary.Skipped = 1
	} else {
		summary.Failed = 1
	}
	s.notify(ctx, summary)
	s.recordCurrent(ctx, "manual trigger", "publish now: "+slotID)
	return result, nil
}

// History lists recorded document revisions, newest first. Returns a 404
// domain error when no history trail is configured.
func (s *Service) History(limit int) ([]history.Version, error) {
	if s.history == nil {
		return nil, domainError(http.StatusNotFound, "HISTORY_DISABLED", "No history trail is configured", nil)
	}
	if limit <= 0 {
		limit = 20
	}
	versions, err := s.history.Versions(limit)
	if err != nil {
		return nil, domainError(http.StatusInternalServerError, "HISTORY_UNAVAILABLE", err.Error(), nil)
	}
	return versions, nil
}

// Ping reports blob store (and, when configured, catalogue) reachability.
func (s *Service) Ping(ctx context.Context) map[string]error {
	checks := make(map[string]error)
	if p, ok := s.store.(Pinger); ok {
		checks["blobstore"] = p.Ping(ctx)
	}
	if s.catalog != nil {
		checks["catalog"] = s.catalog.Ping(ctx)
	}
	return checks
}

func (s *Service) notify(ctx context.Context, summary scheduler.Summary) {
	if s.sink == nil {
		return
	}
	if err := s.sink.NotifyRun(ctx, summary); err != nil {
		log.Printf("app: notification failed: %v", err)
	}
}

func (s *Service) record(doc *document.Document, actor, message string) {
	if s.history == nil {
		return
	}
	if err := s.history.Record(doc, actor, message); err != nil {
		log.Printf("app: history record failed: %v", err)
	}
}

func (s *Service) recordCurrent(ctx context.Context, actor, message string) {
	if s.history == nil {
		return
	}
	doc, err := s.store.Fetch(ctx)
	if err != nil || doc == nil {
		return
	}
	s.record(doc, actor, message)
}

func (s *Service) storeError(op string, err error) error {
	if docstore.IsAuthError(err) {
		return domainError(http.StatusBadGateway, "STORE_AUTH",
			fmt.Sprintf("%s: blob store rejected our credentials", op), err.Error())
	}
	return domainError(http.StatusBadGateway, "STORE_UNAVAILABLE",
		fmt.Sprintf("%s: %v", op, err), nil)
}
