package document

import (
	"reflect"
	"testing"
	"time"
)

var (
	t0 = time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	t1 = t0.Add(1 * time.Hour)
	t2 = t0.Add(2 * time.Hour)
	t3 = t0.Add(3 * time.Hour)
)

func draft(id string, updatedAt time.Time) PostDraft {
	return PostDraft{ID: id, ProjectID: "proj-" + id, Caption: "caption " + id, CreatedAt: t0, UpdatedAt: updatedAt}
}

func TestMergeNilRemoteIsIdentity(t *testing.T) {
	local := Document{
		ExportedAt: t1,
		Drafts:     []PostDraft{draft("a", t1)},
	}
	got := Merge(local, nil, t3)
	if !reflect.DeepEqual(got, local) {
		t.Fatalf("merge with nil remote changed the document: %+v", got)
	}
}

func TestMergeNewerLocalWins(t *testing.T) {
	local := Document{Drafts: []PostDraft{draft("a", t2)}}
	remote := Document{Drafts: []PostDraft{draft("a", t1)}}
	local.Drafts[0].Caption = "edited"

	got := Merge(local, &remote, t3)
	if len(got.Drafts) != 1 || got.Drafts[0].Caption != "edited" {
		t.Fatalf("expected local edit to win, got %+v", got.Drafts)
	}
	if !got.ExportedAt.Equal(t3) || !got.LastMergedAt.Equal(t3) {
		t.Fatalf("merge timestamps not set: %+v", got)
	}
}

func TestMergeTieKeepsRemote(t *testing.T) {
	local := Document{Drafts: []PostDraft{draft("a", t1)}}
	remote := Document{Drafts: []PostDraft{draft("a", t1)}}
	local.Drafts[0].Caption = "local"
	remote.Drafts[0].Caption = "remote"

	got := Merge(local, &remote, t3)
	if got.Drafts[0].Caption != "remote" {
		t.Fatalf("tie should keep the remote-seeded copy, got %q", got.Drafts[0].Caption)
	}
}

func TestMergeUnionsDistinctItems(t *testing.T) {
	local := Document{Drafts: []PostDraft{draft("a", t1)}}
	remote := Document{Drafts: []PostDraft{draft("b", t1)}}

	got := Merge(local, &remote, t3)
	if len(got.Drafts) != 2 {
		t.Fatalf("expected union of drafts, got %d", len(got.Drafts))
	}
	// Remote seeds first.
	if got.Drafts[0].ID != "b" || got.Drafts[1].ID != "a" {
		t.Fatalf("unexpected order: %+v", got.Drafts)
	}
}

func TestMergeDeletionPersists(t *testing.T) {
	// Deleted remotely at t2; local still carries the item from t1.
	local := Document{Drafts: []PostDraft{draft("a", t1)}}
	remote := Document{DeletedIDs: DeletedIDs{Drafts: []Tombstone{{ID: "a", DeletedAt: t2}}}}

	got := Merge(local, &remote, t3)
	if len(got.Drafts) != 0 {
		t.Fatalf("tombstoned draft reappeared: %+v", got.Drafts)
	}
	if len(got.DeletedIDs.Drafts) != 1 || got.DeletedIDs.Drafts[0].ID != "a" {
		t.Fatalf("tombstone lost: %+v", got.DeletedIDs.Drafts)
	}

	// Same deletion survives a re-merge against an even older copy.
	stale := Document{Drafts: []PostDraft{draft("a", t0)}}
	again := Merge(stale, &got, t3.Add(time.Hour))
	if len(again.Drafts) != 0 {
		t.Fatalf("deletion did not persist through second merge: %+v", again.Drafts)
	}
}

func TestMergeResurrection(t *testing.T) {
	// Deleted at t1 but re-saved locally at t2: the edit wins and the
	// tombstone is dropped.
	local := Document{Drafts: []PostDraft{draft("a", t2)}}
	remote := Document{DeletedIDs: DeletedIDs{Drafts: []Tombstone{{ID: "a", DeletedAt: t1}}}}

	got := Merge(local, &remote, t3)
	if len(got.Drafts) != 1 || got.Drafts[0].ID != "a" {
		t.Fatalf("resurrected draft missing: %+v", got.Drafts)
	}
	if len(got.DeletedIDs.Drafts) != 0 {
		t.Fatalf("tombstone should be consumed on resurrection: %+v", got.DeletedIDs.Drafts)
	}
}

func TestMergeDeletionAtExactTimestampWins(t *testing.T) {
	// Not strictly newer than the tombstone counts as deleted.
	local := Document{Drafts: []PostDraft{draft("a", t1)}}
	remote := Document{DeletedIDs: DeletedIDs{Drafts: []Tombstone{{ID: "a", DeletedAt: t1}}}}

	got := Merge(local, &remote, t3)
	if len(got.Drafts) != 0 {
		t.Fatalf("item at exact tombstone time should be dropped: %+v", got.Drafts)
	}
}

func TestMergeIdempotent(t *testing.T) {
	a := Document{
		ExportedAt: t1,
		Drafts:     []PostDraft{draft("a", t1), draft("b", t2)},
		ScheduleSlots: []ScheduleSlot{
			{ID: "s1", PostDraftID: "a", ScheduledDate: "2026-03-01", ScheduledTime: "11:00", Status: StatusPending, UpdatedAt: t1},
		},
		DeletedIDs: DeletedIDs{Templates: []Tombstone{{ID: "tpl1", DeletedAt: t1}}},
	}
	b := Document{
		ExportedAt: t2,
		Drafts:     []PostDraft{draft("a", t2), draft("c", t1)},
		Templates:  []Template{{ID: "tpl1", Name: "old", CreatedAt: t0}},
		DeletedIDs: DeletedIDs{Drafts: []Tombstone{{ID: "b", DeletedAt: t0}}},
	}

	once := Merge(a, &b, t3)
	twice := Merge(a, &once, t3)

	stripRunStamps := func(d Document) Document {
		d.ExportedAt = time.Time{}
		d.LastMergedAt = time.Time{}
		return d
	}
	if !reflect.DeepEqual(stripRunStamps(once), stripRunStamps(twice)) {
		t.Fatalf("merge not idempotent:\nonce:  %+v\ntwice: %+v", once, twice)
	}
}

func TestMergePreservesPublishEvidence(t *testing.T) {
	publishedAt := t1
	remote := Document{ScheduleSlots: []ScheduleSlot{{
		ID: "s1", Status: StatusPublished, InstagramMediaID: "m-1",
		Permalink: "https://instagram.com/p/x", PublishedAt: &publishedAt, UpdatedAt: t1,
	}}}
	// Stale writer re-saved the slot back to pending with a newer updatedAt.
	local := Document{ScheduleSlots: []ScheduleSlot{{
		ID: "s1", Status: StatusPending, UpdatedAt: t2,
	}}}

	got := Merge(local, &remote, t3)
	slot := got.ScheduleSlots[0]
	if slot.Status != StatusPending {
		t.Fatalf("newer copy should win the status field, got %q", slot.Status)
	}
	if slot.InstagramMediaID != "m-1" || slot.PublishedAt == nil || slot.Permalink == "" {
		t.Fatalf("publish evidence cleared by stale overwrite: %+v", slot)
	}
}

func TestMergeScalarsFollowNewerExport(t *testing.T) {
	local := Document{ExportedAt: t1, Settings: Settings{Timezone: "Europe/Amsterdam"}}
	remote := Document{ExportedAt: t2, Settings: Settings{Timezone: "America/New_York"},
		DefaultTemplate: &Template{ID: "tpl", Name: "remote default"}}

	got := Merge(local, &remote, t3)
	if got.Settings.Timezone != "America/New_York" || got.DefaultTemplate == nil {
		t.Fatalf("scalars should follow newer exportedAt: %+v", got.Settings)
	}

	// And the other way around.
	got = Merge(remote, &local, t3)
	if got.Settings.Timezone != "America/New_York" {
		t.Fatalf("older remote should not override newer local scalars: %+v", got.Settings)
	}
}

func TestMergeCredentials(t *testing.T) {
	local := Document{Instagram: InstagramCredentials{
		Connected: true, AccessToken: "new", LastRefreshed: t2, TokenExpiry: t3,
	}}
	remote := Document{Instagram: InstagramCredentials{
		Connected: true, AccessToken: "old", LastRefreshed: t1, TokenExpiry: t2,
	}}

	got := Merge(local, &remote, t3)
	if got.Instagram.AccessToken != "new" {
		t.Fatalf("fresher credentials should win, got %q", got.Instagram.AccessToken)
	}

	// Tie on lastRefreshed prefers the longer-lived token.
	remote.Instagram.LastRefreshed = t2
	remote.Instagram.TokenExpiry = t3.Add(time.Hour)
	got = Merge(local, &remote, t3)
	if got.Instagram.AccessToken != "old" {
		t.Fatalf("tie should prefer later tokenExpiry, got %q", got.Instagram.AccessToken)
	}
}

func TestMergeTombstoneUnionKeepsNewest(t *testing.T) {
	local := Document{DeletedIDs: DeletedIDs{Drafts: []Tombstone{{ID: "a", DeletedAt: t1}}}}
	remote := Document{DeletedIDs: DeletedIDs{Drafts: []Tombstone{{ID: "a", DeletedAt: t2}}}}

	got := Merge(local, &remote, t3)
	if len(got.DeletedIDs.Drafts) != 1 || !got.DeletedIDs.Drafts[0].DeletedAt.Equal(t2) {
		t.Fatalf("tombstone union should keep newest deletedAt: %+v", got.DeletedIDs.Drafts)
	}
}
