// Package publisher drives one post through the provider's container
// lifecycle: stage containers, wait for readiness, publish, and verify
// ambiguous rate-limit errors against the account's recent media.
package publisher

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"postpilot/internal/instagram"
)

// Provider hard limits, enforced locally before any network call.
const (
	MaxHashtags       = 30
	MaxCarouselImages = 10
)

// state of the per-post machine. Transitions are linear; failure from any
// state goes straight to stateDone.
type state int

const (
	stateBuildCaption state = iota
	stateCreateContainers
	stateCreateGroup
	statePublish
	stateVerify
	stateDone
)

// API is the provider surface the orchestrator needs.
type API interface {
	CreateImageContainer(ctx context.Context, imageURL, caption string, carouselItem bool) (string, error)
	CreateCarouselContainer(ctx context.Context, childIDs []string, caption string) (string, error)
	ContainerStatus(ctx context.Context, containerID string) (string, error)
	Publish(ctx context.Context, creationID string) (string, error)
	RecentMedia(ctx context.Context, limit int) ([]instagram.Media, error)
	Permalink(ctx context.Context, mediaID string) (string, error)
}

// Result is the terminal outcome of one post. A failed result is never
// retried here; retry policy belongs to the caller.
type Result struct {
	Success      bool   `json:"success"`
	MediaID      string `json:"mediaId,omitempty"`
	Permalink    string `json:"permalink,omitempty"`
	Error        string `json:"error,omitempty"`
	RateLimitHit bool   `json:"rateLimitHit,omitempty"`
}

// Publisher runs the state machine. Poll cadence and waits are fixed and
// bounded; the clock and sleeper are injectable for tests.
type Publisher struct {
	api API

	pollInterval      time.Duration
	maxReadyWait      time.Duration
	visibilityRetries int
	visibilityDelay   time.Duration
	verifyWindow      time.Duration

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

func New(api API) *Publisher {
	return &Publisher{
		api:               api,
		pollInterval:      2 * time.Second,
		maxReadyWait:      90 * time.Second,
		visibilityRetries: 3,
		visibilityDelay:   3 * time.Second,
		verifyWindow:      5 * time.Minute,
		now:               time.Now,
		sleep:             sleepCtx,
	}
}

// Publish runs one post to completion. images is the ordered image URL list;
// caption is the final caption text including hashtags.
func (p *Publisher) Publish(ctx context.Context, images []string, caption string) Result {
	var (
		childIDs   []string
		creationID string
		mediaID    string
		pubErr     error
	)

	current := stateBuildCaption
	for current != stateDone {
		switch current {
		case stateBuildCaption:
			if len(images) == 0 {
				return failure("post has no images", false)
			}
			if len(images) > MaxCarouselImages {
				log.Printf("publisher: truncating %d images to the %d-image carousel limit", len(images), MaxCarouselImages)
				images = images[:MaxCarouselImages]
			}
			caption = CapHashtags(caption)
			current = stateCreateContainers

		case stateCreateContainers:
			if len(images) == 1 {
				id, err := p.api.CreateImageContainer(ctx, images[0], caption, false)
				if err != nil {
					return failure(fmt.Sprintf("create container: %v", err), false)
				}
				if err := p.awaitReady(ctx, id); err != nil {
					return failure(err.Error(), false)
				}
				creationID = id
				current = statePublish
				break
			}
			for i, imageURL := range images {
				id, err := p.api.CreateImageContainer(ctx, imageURL, "", true)
				if err != nil {
					return failure(fmt.Sprintf("create carousel item %d: %v", i+1, err), false)
				}
				if err := p.awaitReady(ctx, id); err != nil {
					return failure(fmt.Sprintf("carousel item %d: %v", i+1, err), false)
				}
				childIDs = append(childIDs, id)
			}
			current = stateCreateGroup

		case stateCreateGroup:
			id, err := p.createGroup(ctx, childIDs, caption)
			if err != nil {
				return failure(fmt.Sprintf("create carousel container: %v", err), false)
			}
			if err := p.awaitReady(ctx, id); err != nil {
				return failure(fmt.Sprintf("carousel container: %v", err), false)
			}
			creationID = id
			current = statePublish

		case statePublish:
			mediaID, pubErr = p.api.Publish(ctx, creationID)
			if pubErr == nil {
				return p.success(ctx, mediaID, false)
			}
			if instagram.IsRateLimited(pubErr) {
				current = stateVerify
				break
			}
			return failure(fmt.Sprintf("publish: %v", pubErr), false)

		case stateVerify:
			// A rate-limit error can arrive after the post already went
			// live. Check the recent feed before declaring failure.
			id, ok := p.verifyRecentPost(ctx)
			if ok {
				log.Printf("publisher: rate-limited publish verified as committed, media %s", id)
				return p.success(ctx, id, true)
			}
			return failure(fmt.Sprintf("publish rate limited: %v", pubErr), true)
		}
	}

	return failure("publish flow ended without a result", false)
}

func (p *Publisher) success(ctx context.Context, mediaID string, rateLimited bool) Result {
	result := Result{Success: true, MediaID: mediaID, RateLimitHit: rateLimited}
	permalink, err := p.api.Permalink(ctx, mediaID)
	if err != nil {
		// Best-effort enrichment only.
		log.Printf("publisher: permalink lookup for %s failed: %v", mediaID, err)
		return result
	}
	result.Permalink = permalink
	return result
}

func failure(message string, rateLimited bool) Result {
	return Result{Error: message, RateLimitHit: rateLimited}
}

// awaitReady polls the container until it reports FINISHED, fails terminally,
// or the bounded wait is exhausted. The "not yet visible" condition is
// retried a fixed number of times with an extra delay: the status endpoint
// can lag container creation.
func (p *Publisher) awaitReady(ctx context.Context, containerID string) error {
	deadline := p.now().Add(p.maxReadyWait)
	invisible := 0

	for {
		status, err := p.api.ContainerStatus(ctx, containerID)
		switch {
		case err != nil && instagram.IsNotYetVisible(err):
			invisible++
			if invisible > p.visibilityRetries {
				return fmt.Errorf("container %s never became visible: %w", containerID, err)
			}
			if err := p.sleep(ctx, p.visibilityDelay); err != nil {
				return err
			}
			continue
		case err != nil:
			return fmt.Errorf("container status: %w", err)
		}

		switch status {
		case instagram.ContainerFinished:
			return nil
		case instagram.ContainerError, instagram.ContainerExpired:
			return fmt.Errorf("container %s reached terminal status %s", containerID, status)
		}

		if p.now().After(deadline) {
			return fmt.Errorf("container %s not ready after %s", containerID, p.maxReadyWait)
		}
		if err := p.sleep(ctx, p.pollInterval); err != nil {
			return err
		}
	}
}

// createGroup retries the carousel container create on the propagation-delay
// error: freshly awaited children may still be invisible to the group
// endpoint.
func (p *Publisher) createGroup(ctx context.Context, childIDs []string, caption string) (string, error) {
	var lastErr error
	for attempt := 0; attempt <= p.visibilityRetries; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, p.visibilityDelay); err != nil {
				return "", err
			}
		}
		id, err := p.api.CreateCarouselContainer(ctx, childIDs, caption)
		if err == nil {
			return id, nil
		}
		if !instagram.IsNotYetVisible(err) {
			return "", err
		}
		lastErr = err
	}
	return "", fmt.Errorf("carousel children never became visible: %w", lastErr)
}

// verifyRecentPost checks whether a post landed within the verification
// window, adopting its id if so.
func (p *Publisher) verifyRecentPost(ctx context.Context) (string, bool) {
	media, err := p.api.RecentMedia(ctx, 5)
	if err != nil {
		log.Printf("publisher: rate-limit verification query failed: %v", err)
		return "", false
	}
	cutoff := p.now().Add(-p.verifyWindow)
	for _, m := range media {
		if m.Timestamp.After(cutoff) {
			return m.ID, true
		}
	}
	return "", false
}

// CapHashtags enforces the provider's hashtag limit: any '#'-prefixed token
// beyond the first MaxHashtags is dropped from the caption. Normalization,
// not an error.
func CapHashtags(caption string) string {
	count := 0
	for _, token := range strings.Fields(caption) {
		if strings.HasPrefix(token, "#") {
			count++
		}
	}
	if count <= MaxHashtags {
		return caption
	}

	log.Printf("publisher: caption has %d hashtags, truncating to %d", count, MaxHashtags)
	kept := 0
	fields := strings.Fields(caption)
	out := make([]string, 0, len(fields))
	for _, token := range fields {
		if strings.HasPrefix(token, "#") {
			if kept >= MaxHashtags {
				continue
			}
			kept++
		}
		out = append(out, token)
	}
	return strings.Join(out, " ")
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
