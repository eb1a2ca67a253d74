package batch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	mapKey     = "stocktrail:batchmap"
	historyKey = "stocktrail:batchhistory"
)

// SideCache is the Redis-backed durable side store. It holds the
// item-to-batch map and a copy of the most recent batch history for use when
// the primary store is unreachable. All methods tolerate a nil client.
type SideCache struct {
	client     *redis.Client
	historyTTL time.Duration
}

// NewSideCache instantiates the side cache helper.
func NewSideCache(client *redis.Client, historyTTL time.Duration) *SideCache {
	return &SideCache{client: client, historyTTL: historyTTL}
}

// Load reads the full item-to-batch map.
func (c *SideCache) Load(ctx context.Context) (map[int64]string, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	fields, err := c.client.HGetAll(ctx, mapKey).Result()
	if err != nil {
		return nil, fmt.Errorf("batch: load side map: %w", err)
	}
	refs := make(map[int64]string, len(fields))
	for field, code := range fields {
		id, err := strconv.ParseInt(field, 10, 64)
		if err != nil {
			// Skip rather than fail: a bad field means a stale writer, not
			// an unusable map.
			continue
		}
		refs[id] = code
	}
	return refs, nil
}

// Save replaces the whole map atomically.
func (c *SideCache) Save(ctx context.Context, refs map[int64]string) error {
	if c == nil || c.client == nil {
		return nil
	}
	pipe := c.client.TxPipeline()
	pipe.Del(ctx, mapKey)
	if len(refs) > 0 {
		fields := make(map[string]interface{}, len(refs))
		for id, code := range refs {
			fields[strconv.FormatInt(id, 10)] = code
		}
		pipe.HSet(ctx, mapKey, fields)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("batch: save side map: %w", err)
	}
	return nil
}

// SetTags merges entries into the map without touching other keys.
func (c *SideCache) SetTags(ctx context.Context, tags map[int64]string) error {
	if c == nil || c.client == nil || len(tags) == 0 {
		return nil
	}
	fields := make(map[string]interface{}, len(tags))
	for id, code := range tags {
		fields[strconv.FormatInt(id, 10)] = code
	}
	if err := c.client.HSet(ctx, mapKey, fields).Err(); err != nil {
		return fmt.Errorf("batch: set side map tags: %w", err)
	}
	return nil
}

// DeleteEntries removes map entries for the given item ids.
func (c *SideCache) DeleteEntries(ctx context.Context, ids []int64) error {
	if c == nil || c.client == nil || len(ids) == 0 {
		return nil
	}
	fields := make([]string, 0, len(ids))
	for _, id := range ids {
		fields = append(fields, strconv.FormatInt(id, 10))
	}
	if err := c.client.HDel(ctx, mapKey, fields...).Err(); err != nil {
		return fmt.Errorf("batch: delete side map entries: %w", err)
	}
	return nil
}

// CacheHistory stores a JSON copy of the batch history.
func (c *SideCache) CacheHistory(ctx context.Context, records []Record) error {
	if c == nil || c.client == nil {
		return nil
	}
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("batch: marshal history: %w", err)
	}
	if err := c.client.Set(ctx, historyKey, payload, c.historyTTL).Err(); err != nil {
		return fmt.Errorf("batch: cache history: %w", err)
	}
	return nil
}

// CachedHistory returns the cached history, or nil when none is cached.
func (c *SideCache) CachedHistory(ctx context.Context) ([]Record, error) {
	if c == nil || c.client == nil {
		return nil, nil
	}
	payload, err := c.client.Get(ctx, historyKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("batch: read cached history: %w", err)
	}
	var records []Record
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, fmt.Errorf("batch: unmarshal cached history: %w", err)
	}
	return records, nil
}
