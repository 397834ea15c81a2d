package document

import (
	"sort"
	"time"
)

// Merge reconciles a local copy of the document with a freshly fetched remote
// copy. It is a pure function: neither input is mutated. With a nil remote
// (first write) the local copy is returned unchanged.
//
// The three id-keyed collections merge independently: the newest copy of each
// item wins, tombstones drop items unless the item was modified strictly
// after the deletion (resurrection), and surviving tombstones carry forward.
// Scalar fields follow the side with the newer document-level exportedAt.
func Merge(local Document, remote *Document, now time.Time) Document {
	if remote == nil {
		return local
	}

	out := local
	if remote.ExportedAt.After(local.ExportedAt) {
		out.Settings = remote.Settings
		out.DefaultTemplate = remote.DefaultTemplate
	}
	if remote.Version > out.Version {
		out.Version = remote.Version
	}
	out.Instagram = mergeCredentials(local.Instagram, remote.Instagram)

	draftStones := unionTombstones(local.DeletedIDs.Drafts, remote.DeletedIDs.Drafts)
	slotStones := unionTombstones(local.DeletedIDs.ScheduleSlots, remote.DeletedIDs.ScheduleSlots)
	templateStones := unionTombstones(local.DeletedIDs.Templates, remote.DeletedIDs.Templates)

	out.Drafts = mergeCollection(remote.Drafts, local.Drafts, draftKey, PostDraft.ModifiedAt, draftStones)
	out.ScheduleSlots = mergeCollection(remote.ScheduleSlots, local.ScheduleSlots, slotKey, ScheduleSlot.ModifiedAt, slotStones)
	out.Templates = mergeCollection(remote.Templates, local.Templates, templateKey, Template.ModifiedAt, templateStones)

	out.DeletedIDs = DeletedIDs{
		Drafts:        tombstoneList(draftStones),
		ScheduleSlots: tombstoneList(slotStones),
		Templates:     tombstoneList(templateStones),
	}

	out.ExportedAt = now
	out.LastMergedAt = now
	return out
}

func draftKey(d PostDraft) string   { return d.ID }
func slotKey(s ScheduleSlot) string { return s.ID }
func templateKey(t Template) string { return t.ID }

// mergeCollection folds local items into the remote-seeded result. Per id the
// copy with the newer modification time wins; ties keep the already seeded
// copy. Tombstoned ids are dropped unless the item is strictly newer than the
// tombstone, in which case the tombstone is consumed (resurrection).
func mergeCollection[T any](remote, local []T, key func(T) string, modified func(T) time.Time, stones map[string]time.Time) []T {
	index := make(map[string]int)
	out := make([]T, 0, len(remote)+len(local))

	fold := func(items []T) {
		for _, item := range items {
			id := key(item)
			if deletedAt, ok := stones[id]; ok {
				if !modified(item).After(deletedAt) {
					continue
				}
				delete(stones, id)
			}
			if i, ok := index[id]; ok {
				if modified(item).After(modified(out[i])) {
					out[i] = preserveGuards(out[i], item)
				} else {
					out[i] = preserveGuards(item, out[i])
				}
				continue
			}
			index[id] = len(out)
			out = append(out, item)
		}
	}

	fold(remote)
	fold(local)
	return out
}

// preserveGuards copies publish evidence from the losing slot copy onto the
// winning one, so a published slot stale-overwritten back to pending keeps
// its instagramMediaId and publishedAt. For non-slot types it returns the
// winner untouched.
func preserveGuards[T any](loser, winner T) T {
	lost, ok := any(loser).(ScheduleSlot)
	if !ok {
		return winner
	}
	won := any(winner).(ScheduleSlot)
	if lost.InstagramMediaID != "" && won.InstagramMediaID == "" {
		won.InstagramMediaID = lost.InstagramMediaID
	}
	if lost.PublishedAt != nil && won.PublishedAt == nil {
		won.PublishedAt = lost.PublishedAt
	}
	if lost.Permalink != "" && won.Permalink == "" {
		won.Permalink = lost.Permalink
	}
	return any(won).(T)
}

// mergeCredentials keeps the more recently refreshed credential record,
// falling back to tokenExpiry when lastRefreshed is unset; ties prefer the
// side whose token lives longer.
func mergeCredentials(local, remote InstagramCredentials) InstagramCredentials {
	localRef := credentialRef(local)
	remoteRef := credentialRef(remote)
	if localRef.After(remoteRef) {
		return local
	}
	if remoteRef.After(localRef) {
		return remote
	}
	if local.TokenExpiry.After(remote.TokenExpiry) {
		return local
	}
	return remote
}

func credentialRef(c InstagramCredentials) time.Time {
	if !c.LastRefreshed.IsZero() {
		return c.LastRefreshed
	}
	return c.TokenExpiry
}

// unionTombstones merges two tombstone lists keeping, per id, the newest
// deletedAt.
func unionTombstones(a, b []Tombstone) map[string]time.Time {
	stones := make(map[string]time.Time, len(a)+len(b))
	for _, list := range [][]Tombstone{a, b} {
		for _, stone := range list {
			if current, ok := stones[stone.ID]; !ok || stone.DeletedAt.After(current) {
				stones[stone.ID] = stone.DeletedAt
			}
		}
	}
	return stones
}

func tombstoneList(stones map[string]time.Time) []Tombstone {
	out := make([]Tombstone, 0, len(stones))
	for id, deletedAt := range stones {
		out = append(out, Tombstone{ID: id, DeletedAt: deletedAt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
