package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/redis/go-redis/v9"
)

// Cache is a read-through Redis cache in front of a Source. It is an
// explicitly constructed lookup object with a bounded TTL; there is no
// process-wide lazy cache anywhere in this codebase.
type Cache struct {
	client *redis.Client
	source Source
	ttl    time.Duration
	prefix string
}

// NewCache wraps source with a Redis cache.
func NewCache(redisURL string, source Source, ttl time.Duration) (*Cache, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return &Cache{client: client, source: source, ttl: ttl, prefix: "catalog:"}, nil
}

// NewCacheWithClient creates a cache from an existing Redis client.
func NewCacheWithClient(client *redis.Client, source Source, ttl time.Duration) *Cache {
	return &Cache{client: client, source: source, ttl: ttl, prefix: "catalog:"}
}

func (c *Cache) key(id string) string {
	return c.prefix + id
}

// Project returns the cached project, falling through to the source on a
// miss. Cache failures degrade to a direct lookup, never an error.
func (c *Cache) Project(ctx context.Context, id string) (Project, error) {
	payload, err := c.client.Get(ctx, c.key(id)).Result()
	if err == nil {
		var project Project
		if err := json.Unmarshal([]byte(payload), &project); err == nil {
			return project, nil
		}
		// Corrupt entry; fall through and overwrite it.
	} else if err != redis.Nil {
		log.Printf("catalog: cache read for %s failed: %v", id, err)
	}

	project, err := c.source.Project(ctx, id)
	if err != nil {
		return Project{}, err
	}

	encoded, err := json.Marshal(project)
	if err == nil {
		if err := c.client.Set(ctx, c.key(id), encoded, c.ttl).Err(); err != nil {
			log.Printf("catalog: cache write for %s failed: %v", id, err)
		}
	}
	return project, nil
}

// Invalidate drops one cached project.
func (c *Cache) Invalidate(ctx context.Context, id string) error {
	if err := c.client.Del(ctx, c.key(id)).Err(); err != nil {
		return fmt.Errorf("invalidate project %s: %w", id, err)
	}
	return nil
}

// Close closes the Redis connection.
func (c *Cache) Close() error {
	return c.client.Close()
}
