// Package instagram is a thin client for the Graph API surface used by the
// publish flow: media container creation, readiness polling, publishing and
// the recent-media query used for rate-limit verification.
package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Container status codes reported by the Graph API.
const (
	ContainerInProgress = "IN_PROGRESS"
	ContainerFinished   = "FINISHED"
	ContainerError      = "ERROR"
	ContainerExpired    = "EXPIRED"
)

// Media is one entry of the account's recent-media feed.
type Media struct {
	ID        string
	Timestamp time.Time
}

// Client talks to the Graph API for one Instagram business account.
type Client struct {
	http      *http.Client
	baseURL   string
	token     string
	accountID string
}

// NewClient creates a Graph API client. baseURL is the versioned API root,
// e.g. https://graph.facebook.com/v19.0.
func NewClient(baseURL, accessToken, accountID string) *Client {
	return &Client{
		http:      &http.Client{Timeout: 30 * time.Second},
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     accessToken,
		accountID: accountID,
	}
}

// CreateImageContainer stages one image. Carousel children carry no caption
// of their own; the group container does.
func (c *Client) CreateImageContainer(ctx context.Context, imageURL, caption string, carouselItem bool) (string, error) {
	params := url.Values{"image_url": {imageURL}}
	if carouselItem {
		params.Set("is_carousel_item", "true")
	} else if caption != "" {
		params.Set("caption", caption)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/"+c.accountID+"/media", params, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// CreateCarouselContainer stages a group container referencing ready child
// containers.
func (c *Client) CreateCarouselContainer(ctx context.Context, childIDs []string, caption string) (string, error) {
	params := url.Values{
		"media_type": {"CAROUSEL"},
		"children":   {strings.Join(childIDs, ",")},
	}
	if caption != "" {
		params.Set("caption", caption)
	}

	var out struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, "/"+c.accountID+"/media", params, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// ContainerStatus reads a container's status_code.
func (c *Client) ContainerStatus(ctx context.Context, containerID string) (string, error) {
	var out struct {
		StatusCode string `json:"status_code"`
	}
	if err := c.get(ctx, "/"+containerID, url.Values{"fields": {"status_code"}}, &out); err != nil {
		return "", err
	}
	return out.StatusCode, nil
}

// Publish converts a ready container into a live post and returns the media
// id.
func (c *Client) Publish(ctx context.Context, creationID string) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	params := url.Values{"creation_id": {creationID}}
	if err := c.post(ctx, "/"+c.accountID+"/media_publish", params, &out); err != nil {
		return "", err
	}
	return out.ID, nil
}

// RecentMedia lists the account's most recent posts, newest first. Used only
// to verify whether a rate-limited publish call actually committed.
func (c *Client) RecentMedia(ctx context.Context, limit int) ([]Media, error) {
	var out struct {
		Data []struct {
			ID        string `json:"id"`
			Timestamp string `json:"timestamp"`
		} `json:"data"`
	}
	params := url.Values{
		"fields": {"id,timestamp"},
		"limit":  {fmt.Sprintf("%d", limit)},
	}
	if err := c.get(ctx, "/"+c.accountID+"/media", params, &out); err != nil {
		return nil, err
	}

	media := make([]Media, 0, len(out.Data))
	for _, item := range out.Data {
		ts, err := time.Parse("2006-01-02T15:04:05-0700", item.Timestamp)
		if err != nil {
			// Some responses use RFC3339 proper.
			ts, err = time.Parse(time.RFC3339, item.Timestamp)
			if err != nil {
				continue
			}
		}
		media = append(media, Media{ID: item.ID, Timestamp: ts})
	}
	return media, nil
}

// Permalink fetches the canonical post URL. Best-effort enrichment; callers
// tolerate failure.
func (c *Client) Permalink(ctx context.Context, mediaID string) (string, error) {
	var out struct {
		Permalink string `json:"permalink"`
	}
	if err := c.get(ctx, "/"+mediaID, url.Values{"fields": {"permalink"}}, &out); err != nil {
		return "", err
	}
	return out.Permalink, nil
}

func (c *Client) get(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("access_token", c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, path string, params url.Values, out any) error {
	params.Set("access_token", c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+path, strings.NewReader(params.Encode()))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("graph request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read graph response: %w", err)
	}

	if resp.StatusCode >= 400 {
		return parseAPIError(resp.StatusCode, body)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode graph response: %w", err)
	}
	return nil
}
