package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cafe_backend/internal/models"

	"github.com/redis/go-redis/v9"
)

const menuKeyPrefix = "menu:v1:"

// MenuCache stores rendered menu listings keyed by filter combination.
// All keys share a prefix so a stock change can drop every variant at once.
type MenuCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewMenuCache(client *redis.Client, ttl time.Duration) *MenuCache {
	return &MenuCache{client: client, ttl: ttl}
}

func menuKey(filters models.MenuFilters) string {
	category, mode := "*", "*"
	if filters.Category != nil && *filters.Category != "" {
		category = *filters.Category
	}
	if filters.Mode != nil && *filters.Mode != "" {
		mode = string(*filters.Mode)
	}
	return fmt.Sprintf("%savail=%t:cat=%s:mode=%s", menuKeyPrefix, filters.AvailableOnly, category, mode)
}

// Get returns (nil, false, nil) on a miss.
func (c *MenuCache) Get(ctx context.Context, filters models.MenuFilters) ([]models.MenuItem, bool, error) {
	raw, err := c.client.Get(ctx, menuKey(filters)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("reading menu cache: %w", err)
	}
	var items []models.MenuItem
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, false, fmt.Errorf("decoding cached menu: %w", err)
	}
	return items, true, nil
}

func (c *MenuCache) Set(ctx context.Context, filters models.MenuFilters, items []models.MenuItem) error {
	raw, err := json.Marshal(items)
	if err != nil {
		return fmt.Errorf("encoding menu for cache: %w", err)
	}
	if err := c.client.Set(ctx, menuKey(filters), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("writing menu cache: %w", err)
	}
	return nil
}

// Invalidate drops every cached menu variant.
func (c *MenuCache) Invalidate(ctx context.Context) error {
	iter := c.client.Scan(ctx, 0, menuKeyPrefix+"*", 100).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("scanning menu cache keys: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("invalidating menu cache: %w", err)
	}
	return nil
}
