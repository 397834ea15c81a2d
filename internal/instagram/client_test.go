package instagram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestCreateImageContainer(t *testing.T) {
	var gotPath, gotImageURL, gotCaption, gotCarousel string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			t.Fatalf("parse form: %v", err)
		}
		gotPath = r.URL.Path
		gotImageURL = r.FormValue("image_url")
		gotCaption = r.FormValue("caption")
		gotCarousel = r.FormValue("is_carousel_item")
		w.Write([]byte(`{"id":"container-1"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token", "acct-1")
	id, err := client.CreateImageContainer(context.Background(), "https://img.example/a.jpg", "hello #world", false)
	if err != nil {
		t.Fatalf("CreateImageContainer failed: %v", err)
	}
	if id != "container-1" {
		t.Errorf("expected container-1, got %s", id)
	}
	if gotPath != "/acct-1/media" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotImageURL != "https://img.example/a.jpg" || gotCaption != "hello #world" {
		t.Errorf("unexpected params image_url=%q caption=%q", gotImageURL, gotCaption)
	}
	if gotCarousel != "" {
		t.Errorf("single image must not be a carousel item")
	}
}

func TestCreateCarouselContainer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		if r.FormValue("media_type") != "CAROUSEL" {
			t.Errorf("expected media_type CAROUSEL, got %q", r.FormValue("media_type"))
		}
		if r.FormValue("children") != "c1,c2,c3" {
			t.Errorf("unexpected children %q", r.FormValue("children"))
		}
		w.Write([]byte(`{"id":"group-1"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token", "acct-1")
	id, err := client.CreateCarouselContainer(context.Background(), []string{"c1", "c2", "c3"}, "caption")
	if err != nil {
		t.Fatalf("CreateCarouselContainer failed: %v", err)
	}
	if id != "group-1" {
		t.Errorf("expected group-1, got %s", id)
	}
}

func TestContainerStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("fields") != "status_code" {
			t.Errorf("expected fields=status_code, got %q", r.URL.Query().Get("fields"))
		}
		w.Write([]byte(`{"status_code":"FINISHED","id":"c1"}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token", "acct-1")
	status, err := client.ContainerStatus(context.Background(), "c1")
	if err != nil {
		t.Fatalf("ContainerStatus failed: %v", err)
	}
	if status != ContainerFinished {
		t.Errorf("expected FINISHED, got %s", status)
	}
}

func TestRecentMedia(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("limit") != "5" {
			t.Errorf("expected limit=5, got %q", r.URL.Query().Get("limit"))
		}
		w.Write([]byte(`{"data":[
			{"id":"m1","timestamp":"2026-03-01T10:00:00+0000"},
			{"id":"m2","timestamp":"2026-02-28T09:00:00+0000"}
		]}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token", "acct-1")
	media, err := client.RecentMedia(context.Background(), 5)
	if err != nil {
		t.Fatalf("RecentMedia failed: %v", err)
	}
	if len(media) != 2 || media[0].ID != "m1" {
		t.Fatalf("unexpected media list: %+v", media)
	}
	want := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	if !media[0].Timestamp.Equal(want) {
		t.Errorf("expected %v, got %v", want, media[0].Timestamp)
	}
}

func TestErrorClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Application request limit reached","type":"OAuthException","code":4,"fbtrace_id":"x"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token", "acct-1")
	_, err := client.Publish(context.Background(), "creation-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsRateLimited(err) {
		t.Errorf("code 4 should classify as rate limited: %v", err)
	}
	if IsNotYetVisible(err) {
		t.Errorf("rate limit is not a propagation delay: %v", err)
	}
}

func TestNotYetVisibleClassification(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error":{"message":"Unsupported get request. Object with ID 'c1' does not exist","type":"GraphMethodException","code":100,"error_subcode":33}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token", "acct-1")
	_, err := client.ContainerStatus(context.Background(), "c1")
	if err == nil {
		t.Fatal("expected error")
	}
	if !IsNotYetVisible(err) {
		t.Errorf("code 100/33 should classify as not yet visible: %v", err)
	}
	if IsRateLimited(err) {
		t.Errorf("propagation delay is not a rate limit: %v", err)
	}
}

func TestNonJSONErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte("upstream unavailable"))
	}))
	defer server.Close()

	client := NewClient(server.URL, "token", "acct-1")
	_, err := client.Publish(context.Background(), "creation-1")
	if err == nil {
		t.Fatal("expected error")
	}
	if IsRateLimited(err) || IsNotYetVisible(err) {
		t.Errorf("plain body should classify as terminal: %v", err)
	}
}
