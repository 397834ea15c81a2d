// Package scheduler selects due schedule slots and drives them through the
// publisher, persisting each slot's outcome with a fetch-merge-write before
// moving on to the next.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"postpilot/internal/catalog"
	"postpilot/internal/docstore"
	"postpilot/internal/document"
	"postpilot/internal/publisher"
)

// DocumentStore is the blob-backed document client.
type DocumentStore interface {
	Fetch(ctx context.Context) (*document.Document, error)
	Write(ctx context.Context, doc *document.Document) (docstore.Receipt, error)
}

// PostPublisher runs one post to a terminal result.
type PostPublisher interface {
	Publish(ctx context.Context, images []string, caption string) publisher.Result
}

// PublisherFactory builds a publisher for the credentials found in the
// document at run time.
type PublisherFactory func(creds document.InstagramCredentials) PostPublisher

// Sentinel errors for the manual publish path.
var (
	ErrNoDocument       = errors.New("no document exists yet")
	ErrNotConnected     = errors.New("instagram is not connected")
	ErrSlotNotFound     = errors.New("slot not found")
	ErrAlreadyPublished = errors.New("slot was already published")
)

// Run outcomes.
const (
	OutcomeNoDocument   = "no_document"
	OutcomeDisconnected = "disconnected"
	OutcomeFetchFailed  = "fetch_failed"
	OutcomeNothingDue   = "nothing_due"
	OutcomeCompleted    = "completed"
)

// SlotResult is the outcome of one slot within a run.
type SlotResult struct {
	SlotID       string `json:"slotId"`
	DraftID      string `json:"draftId,omitempty"`
	Success      bool   `json:"success"`
	Skipped      bool   `json:"skipped,omitempty"`
	MediaID      string `json:"mediaId,omitempty"`
	Permalink    string `json:"permalink,omitempty"`
	Error        string `json:"error,omitempty"`
	RateLimitHit bool   `json:"rateLimitHit,omitempty"`
	Persisted    bool   `json:"persisted"`
}

// Summary is the one structured result every invocation produces, published
// to the notification sink. There are no silent no-ops.
type Summary struct {
	RanAt     time.Time    `json:"ranAt"`
	Outcome   string       `json:"outcome"`
	Due       int          `json:"due"`
	Published int          `json:"published"`
	Failed    int          `json:"failed"`
	Skipped   int          `json:"skipped"`
	SaveOK    bool         `json:"saveOk"`
	Results   []SlotResult `json:"results,omitempty"`
}

// Scheduler owns the due-window selection and the per-slot publish loop.
// Slots are processed sequentially; the only shared mutable state is the
// remote document, guarded by merge-before-write rather than locks.
type Scheduler struct {
	store        DocumentStore
	newPublisher PublisherFactory
	catalog      catalog.Source // nil when no catalogue is configured
	defaultTZ    string

	persistAttempts int
	persistBackoff  time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(store DocumentStore, factory PublisherFactory, source catalog.Source, defaultTZ string) *Scheduler {
	return &Scheduler{
		store:           store,
		newPublisher:    factory,
		catalog:         source,
		defaultTZ:       defaultTZ,
		persistAttempts: 4,
		persistBackoff:  500 * time.Millisecond,
		now:             time.Now,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
}

// Run executes one scheduler invocation: fetch, select due slots, publish
// each, persist each outcome immediately. It always returns a structured
// summary; per-slot failures never abort the remaining slots.
func (s *Scheduler) Run(ctx context.Context) Summary {
	summary := Summary{RanAt: s.now(), SaveOK: true}

	doc, err := s.store.Fetch(ctx)
	if err != nil {
		log.Printf("scheduler: document fetch failed: %v", err)
		summary.Outcome = OutcomeFetchFailed
		return summary
	}
	if doc == nil {
		summary.Outcome = OutcomeNoDocument
		return summary
	}
	if !doc.Instagram.Connected || doc.Instagram.AccessToken == "" {
		summary.Outcome = OutcomeDisconnected
		return summary
	}

	loc := s.location(doc)
	now := s.now().In(loc)
	windowStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc)

	due := DueSlots(doc, windowStart, now)
	summary.Due = len(due)
	if len(due) == 0 {
		summary.Outcome = OutcomeNothingDue
		return summary
	}

	pub := s.newPublisher(doc.Instagram)
	for _, slot := range due {
		result := s.publishSlot(ctx, doc, slot, pub)
		summary.Results = append(summary.Results, result)
		switch {
		case result.Skipped:
			summary.Skipped++
		case result.Success:
			summary.Published++
		default:
			summary.Failed++
		}
		if !result.Persisted && !result.Skipped {
			summary.SaveOK = false
		}
	}

	summary.Outcome = OutcomeCompleted
	return summary
}

// PublishNow publishes a single slot on explicit demand, bypassing the due
// window but never the idempotency guard: a slot with provider evidence of a
// previous publish is refused.
func (s *Scheduler) PublishNow(ctx context.Context, slotID string) (SlotResult, error) {
	doc, err := s.store.Fetch(ctx)
	if err != nil {
		return SlotResult{}, fmt.Errorf("fetch document: %w", err)
	}
	if doc == nil {
		return SlotResult{}, ErrNoDocument
	}
	if !doc.Instagram.Connected || doc.Instagram.AccessToken == "" {
		return SlotResult{}, ErrNotConnected
	}

	slot, ok := doc.Slot(slotID)
	if !ok {
		return SlotResult{}, fmt.Errorf("%w: %s", ErrSlotNotFound, slotID)
	}
	if slot.InstagramMediaID != "" || slot.PublishedAt != nil {
		return SlotResult{}, fmt.Errorf("%w: %s as %s", ErrAlreadyPublished, slotID, slot.InstagramMediaID)
	}

	pub := s.newPublisher(doc.Instagram)
	return s.publishSlot(ctx, doc, slot, pub), nil
}

// DueSlots selects pending slots scheduled within [windowStart, now]. The
// window covers all of today up to now (catch-up semantics): a slot missed
// earlier in the day still publishes on the next invocation. The guard is the
// absence of provider evidence, not the status field alone, and slots with a
// recorded error are never auto-retried.
func DueSlots(doc *document.Document, windowStart, now time.Time) []document.ScheduleSlot {
	var due []document.ScheduleSlot
	for _, slot := range doc.ScheduleSlots {
		if slot.Status != document.StatusPending {
			continue
		}
		if slot.InstagramMediaID != "" || slot.PublishedAt != nil {
			// Stale-overwritten status; the publish already happened.
			continue
		}
		if slot.Error != "" {
			continue
		}
		at, err := slotTime(slot, windowStart.Location())
		if err != nil {
			log.Printf("scheduler: slot %s has unparseable schedule (%s %s): %v",
				slot.ID, slot.ScheduledDate, slot.ScheduledTime, err)
			continue
		}
		if at.Before(windowStart) || at.After(now) {
			continue
		}
		due = append(due, slot)
	}
	return due
}

func slotTime(slot document.ScheduleSlot, loc *time.Location) (time.Time, error) {
	return time.ParseInLocation("2006-01-02 15:04", slot.ScheduledDate+" "+slot.ScheduledTime, loc)
}

// publishSlot runs one slot through the publisher and immediately persists
// its terminal state. Persisting per slot (not batched) means an interrupted
// invocation leaves already-published slots durably recorded.
func (s *Scheduler) publishSlot(ctx context.Context, doc *document.Document, slot document.ScheduleSlot, pub PostPublisher) SlotResult {
	result := SlotResult{SlotID: slot.ID, DraftID: slot.PostDraftID}

	draft, ok := doc.Draft(slot.PostDraftID)
	if !ok {
		// Dangling reference: tolerated, slot left untouched.
		log.Printf("scheduler: slot %s references missing draft %s, skipping", slot.ID, slot.PostDraftID)
		result.Skipped = true
		result.Persisted = true
		result.Error = "draft not found"
		return result
	}

	images, err := s.resolveImages(ctx, draft)
	if err != nil {
		log.Printf("scheduler: slot %s image resolution failed: %v", slot.ID, err)
		result.Skipped = true
		result.Persisted = true
		result.Error = err.Error()
		return result
	}

	outcome := pub.Publish(ctx, images, ComposeCaption(draft))
	result.Success = outcome.Success
	result.MediaID = outcome.MediaID
	result.Permalink = outcome.Permalink
	result.Error = outcome.Error
	result.RateLimitHit = outcome.RateLimitHit

	now := s.now()
	slot.UpdatedAt = now
	if outcome.Success {
		slot.Status = document.StatusPublished
		slot.InstagramMediaID = outcome.MediaID
		slot.Permalink = outcome.Permalink
		slot.PublishedAt = &now
		slot.Error = ""
	} else {
		slot.Status = document.StatusFailed
		slot.Error = outcome.Error
	}

	if err := s.persistSlot(ctx, doc, slot); err != nil {
		// The publish already happened on the provider side; the failed
		// save is surfaced, never rolled back or re-attempted as a publish.
		log.Printf("scheduler: persisting slot %s failed after retries: %v", slot.ID, err)
		result.Persisted = false
		return result
	}
	result.Persisted = true
	return result
}

// persistSlot applies the slot to the local copy and runs fetch-merge-write,
// retrying with exponential backoff. The fetch happens inside the retry loop
// so each attempt merges against the freshest remote copy.
func (s *Scheduler) persistSlot(ctx context.Context, doc *document.Document, slot document.ScheduleSlot) error {
	doc.SetSlot(slot)

	var lastErr error
	delay := s.persistBackoff
	for attempt := 0; attempt < s.persistAttempts; attempt++ {
		if attempt > 0 {
			if err := s.sleep(ctx, delay); err != nil {
				return err
			}
			delay *= 2
		}

		remote, err := s.store.Fetch(ctx)
		if err != nil {
			lastErr = fmt.Errorf("fetch before write: %w", err)
			continue
		}
		merged := document.Merge(*doc, remote, s.now())
		if _, err := s.store.Write(ctx, &merged); err != nil {
			lastErr = fmt.Errorf("write document: %w", err)
			continue
		}
		*doc = merged
		return nil
	}
	return lastErr
}

// invalidator is implemented by cached catalogue sources.
type invalidator interface {
	Invalidate(ctx context.Context, id string) error
}

// resolveImages turns the draft's ordered selection into publishable URLs.
// Absolute URLs pass through; bare entries are resolved against the
// catalogue project the draft references. A miss against a cached project is
// retried once with the cache entry invalidated, since the draft may have
// been written after the project images changed.
func (s *Scheduler) resolveImages(ctx context.Context, draft document.PostDraft) ([]string, error) {
	var project *catalog.Project
	refreshed := false
	out := make([]string, 0, len(draft.SelectedImages))

	for _, entry := range draft.SelectedImages {
		if isAbsoluteURL(entry) {
			out = append(out, entry)
			continue
		}
		if s.catalog == nil {
			return nil, fmt.Errorf("image %q needs a catalogue lookup but none is configured", entry)
		}
		if project == nil {
			p, err := s.catalog.Project(ctx, draft.ProjectID)
			if err != nil {
				return nil, fmt.Errorf("resolve project %s: %w", draft.ProjectID, err)
			}
			project = &p
		}
		resolved, ok := matchProjectImage(project.Images, entry)
		if !ok && !refreshed {
			if p, err := s.refreshProject(ctx, draft.ProjectID); err == nil {
				project = p
				refreshed = true
				resolved, ok = matchProjectImage(project.Images, entry)
			}
		}
		if !ok {
			return nil, fmt.Errorf("image %q not found in project %s", entry, draft.ProjectID)
		}
		out = append(out, TransformURL(resolved, aspectFor(draft.ImageMode)))
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("draft %s selects no images", draft.ID)
	}
	return out, nil
}

// refreshProject drops the cached copy of a project and fetches it again.
// Only meaningful for cached sources; a direct source has nothing to drop.
func (s *Scheduler) refreshProject(ctx context.Context, projectID string) (*catalog.Project, error) {
	inv, ok := s.catalog.(invalidator)
	if !ok {
		return nil, fmt.Errorf("catalogue source is not cached")
	}
	if err := inv.Invalidate(ctx, projectID); err != nil {
		return nil, fmt.Errorf("invalidate project %s: %w", projectID, err)
	}
	p, err := s.catalog.Project(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("refetch project %s: %w", projectID, err)
	}
	log.Printf("scheduler: refreshed stale catalogue entry for project %s", projectID)
	return &p, nil
}

func (s *Scheduler) location(doc *document.Document) *time.Location {
	tz := doc.Settings.Timezone
	if tz == "" {
		tz = s.defaultTZ
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("scheduler: unknown timezone %q, using UTC", tz)
		return time.UTC
	}
	return loc
}
