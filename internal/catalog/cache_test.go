package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

type fakeSource struct {
	projects map[string]Project
	calls    int
}

func (f *fakeSource) Project(ctx context.Context, id string) (Project, error) {
	f.calls++
	project, ok := f.projects[id]
	if !ok {
		return Project{}, ErrNotFound
	}
	return project, nil
}

func setupTestCache(t *testing.T, source Source) (*Cache, *miniredis.Miniredis) {
	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})
	return NewCacheWithClient(client, source, 10*time.Minute), s
}

func TestCacheReadThrough(t *testing.T) {
	source := &fakeSource{projects: map[string]Project{
		"p1": {ID: "p1", Title: "Harbour set", Images: []string{"https://i/1.jpg", "https://i/2.jpg"}},
	}}
	cache, s := setupTestCache(t, source)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	first, err := cache.Project(ctx, "p1")
	if err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	if first.Title != "Harbour set" || len(first.Images) != 2 {
		t.Fatalf("unexpected project %+v", first)
	}

	second, err := cache.Project(ctx, "p1")
	if err != nil {
		t.Fatalf("cached Project failed: %v", err)
	}
	if second.Title != first.Title {
		t.Errorf("cache changed the record: %+v", second)
	}
	if source.calls != 1 {
		t.Errorf("second lookup should hit the cache, source called %d times", source.calls)
	}
}

func TestCacheExpiry(t *testing.T) {
	source := &fakeSource{projects: map[string]Project{"p1": {ID: "p1", Title: "x"}}}
	cache, s := setupTestCache(t, source)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	if _, err := cache.Project(ctx, "p1"); err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	s.FastForward(11 * time.Minute)
	if _, err := cache.Project(ctx, "p1"); err != nil {
		t.Fatalf("Project after expiry failed: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("expired entry should refetch, source called %d times", source.calls)
	}
}

func TestCacheMissingProject(t *testing.T) {
	cache, s := setupTestCache(t, &fakeSource{projects: map[string]Project{}})
	defer cache.Close()
	defer s.Close()

	if _, err := cache.Project(context.Background(), "ghost"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCacheInvalidate(t *testing.T) {
	source := &fakeSource{projects: map[string]Project{"p1": {ID: "p1", Title: "x"}}}
	cache, s := setupTestCache(t, source)
	defer cache.Close()
	defer s.Close()

	ctx := context.Background()
	if _, err := cache.Project(ctx, "p1"); err != nil {
		t.Fatalf("Project failed: %v", err)
	}
	if err := cache.Invalidate(ctx, "p1"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := cache.Project(ctx, "p1"); err != nil {
		t.Fatalf("Project after invalidate failed: %v", err)
	}
	if source.calls != 2 {
		t.Errorf("invalidated entry should refetch, source called %d times", source.calls)
	}
}
