// Package document defines the shared planner document and the smart-merge
// engine that reconciles concurrent copies of it.
package document

import "time"

// Slot status values. pending is the only non-terminal state.
const (
	StatusPending   = "pending"
	StatusPublished = "published"
	StatusFailed    = "failed"
)

// Document is the single persisted aggregate. One copy lives in the blob
// store; every writer holds a provisional in-memory copy until it is merged
// and written back.
type Document struct {
	Version         int                  `json:"version"`
	ExportedAt      time.Time            `json:"exportedAt"`
	LastMergedAt    time.Time            `json:"lastMergedAt,omitzero"`
	Settings        Settings             `json:"settings"`
	Drafts          []PostDraft          `json:"drafts"`
	ScheduleSlots   []ScheduleSlot       `json:"scheduleSlots"`
	Templates       []Template           `json:"templates"`
	DefaultTemplate *Template            `json:"defaultTemplate,omitempty"`
	Instagram       InstagramCredentials `json:"instagram"`
	DeletedIDs      DeletedIDs           `json:"deletedIds"`
}

type Settings struct {
	Timezone    string `json:"timezone,omitempty"`
	AccountName string `json:"accountName,omitempty"`
}

// PostDraft is a prepared post: caption plus an ordered image selection.
// ProjectID references the external catalogue and is never embedded.
type PostDraft struct {
	ID             string    `json:"id"`
	ProjectID      string    `json:"projectId"`
	Caption        string    `json:"caption"`
	Hashtags       []string  `json:"hashtags"`
	SelectedImages []string  `json:"selectedImages"`
	ImageMode      string    `json:"imageMode,omitempty"`
	CreatedAt      time.Time `json:"createdAt"`
	UpdatedAt      time.Time `json:"updatedAt,omitzero"`
}

// ScheduleSlot binds a draft to a publish time. A dangling PostDraftID is
// tolerated: the slot is skipped, never fatal.
type ScheduleSlot struct {
	ID               string     `json:"id"`
	PostDraftID      string     `json:"postDraftId"`
	ScheduledDate    string     `json:"scheduledDate"` // YYYY-MM-DD
	ScheduledTime    string     `json:"scheduledTime"` // HH:MM
	Status           string     `json:"status"`
	InstagramMediaID string     `json:"instagramMediaId,omitempty"`
	Permalink        string     `json:"permalink,omitempty"`
	PublishedAt      *time.Time `json:"publishedAt,omitempty"`
	Error            string     `json:"error,omitempty"`
	CreatedAt        time.Time  `json:"createdAt,omitzero"`
	UpdatedAt        time.Time  `json:"updatedAt,omitzero"`
}

type Template struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Caption   string    `json:"caption"`
	Hashtags  []string  `json:"hashtags,omitempty"`
	CreatedAt time.Time `json:"createdAt,omitzero"`
	UpdatedAt time.Time `json:"updatedAt,omitzero"`
}

type InstagramCredentials struct {
	Connected     bool      `json:"connected"`
	AccessToken   string    `json:"accessToken,omitempty"`
	AccountID     string    `json:"accountId,omitempty"`
	TokenExpiry   time.Time `json:"tokenExpiry,omitzero"`
	LastRefreshed time.Time `json:"lastRefreshed,omitzero"`
}

// Tombstone records a deletion so a concurrent writer holding a stale copy
// cannot resurrect the item, unless the item was re-edited after deletedAt.
type Tombstone struct {
	ID        string    `json:"id"`
	DeletedAt time.Time `json:"deletedAt"`
}

type DeletedIDs struct {
	Drafts        []Tombstone `json:"drafts"`
	ScheduleSlots []Tombstone `json:"scheduleSlots"`
	Templates     []Tombstone `json:"templates"`
}

// ModifiedAt is the last-writer-wins comparison timestamp: updatedAt,
// falling back to createdAt.
func (d PostDraft) ModifiedAt() time.Time {
	if !d.UpdatedAt.IsZero() {
		return d.UpdatedAt
	}
	return d.CreatedAt
}

func (s ScheduleSlot) ModifiedAt() time.Time {
	if !s.UpdatedAt.IsZero() {
		return s.UpdatedAt
	}
	return s.CreatedAt
}

func (t Template) ModifiedAt() time.Time {
	if !t.UpdatedAt.IsZero() {
		return t.UpdatedAt
	}
	return t.CreatedAt
}

// Draft looks up a draft by id. The second return reports whether the
// reference resolved.
func (d *Document) Draft(id string) (PostDraft, bool) {
	for _, draft := range d.Drafts {
		if draft.ID == id {
			return draft, true
		}
	}
	return PostDraft{}, false
}

// Slot looks up a schedule slot by id.
func (d *Document) Slot(id string) (ScheduleSlot, bool) {
	for _, slot := range d.ScheduleSlots {
		if slot.ID == id {
			return slot, true
		}
	}
	return ScheduleSlot{}, false
}

// SetSlot replaces the slot with the same id, or appends it.
func (d *Document) SetSlot(slot ScheduleSlot) {
	for i := range d.ScheduleSlots {
		if d.ScheduleSlots[i].ID == slot.ID {
			d.ScheduleSlots[i] = slot
			return
		}
	}
	d.ScheduleSlots = append(d.ScheduleSlots, slot)
}
