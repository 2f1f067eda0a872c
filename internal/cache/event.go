package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/eventhub/eventhub/internal/model"
)

// Cache key prefixes and TTLs.
const (
	eventKeyPrefix = "event:"
	detailsSuffix  = ":details"
	statsSuffix    = ":stats"
	genSuffix      = ":gen"

	// DefaultEventTTL bounds staleness if an invalidation is lost.
	DefaultEventTTL = 5 * time.Minute

	// generationTTL must outlive any in-flight read-through request.
	generationTTL = 24 * time.Hour
)

// Common cache errors.
var (
	ErrCacheMiss = errors.New("cache miss")

	// ErrStaleGeneration is returned by SetEvent and SetStats when the event
	// was invalidated after the caller read its generation. Nothing is stored.
	ErrStaleGeneration = errors.New("cache generation changed")
)

// setIfGenerationScript stores a value only while the event's generation
// still equals the one the caller read before loading from the database.
// A missing generation key counts as 0.
var setIfGenerationScript = redis.NewScript(`
	local current = redis.call('GET', KEYS[1]) or '0'
	if current ~= ARGV[1] then
		return 0
	end
	redis.call('SET', KEYS[2], ARGV[2], 'PX', ARGV[3])
	return 1
`)

// Generation returns the event's current cache generation. Callers read it
// before loading from the database and pass it to SetEvent or SetStats.
func (c *Cache) Generation(ctx context.Context, id int64) (int64, error) {
	gen, err := c.client.Get(ctx, generationKey(id)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get generation failed: %w", err)
	}
	return gen, nil
}

// GetEvent retrieves cached event details, including registrations.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetEvent(ctx context.Context, id int64) (*model.Event, error) {
	var event model.Event
	if err := c.getJSON(ctx, detailsKey(id), &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// SetEvent stores event details loaded at generation gen.
func (c *Cache) SetEvent(ctx context.Context, gen int64, event *model.Event) error {
	return c.setJSON(ctx, event.ID, gen, detailsKey(event.ID), event)
}

// GetStats retrieves cached capacity statistics for an event.
// Returns ErrCacheMiss if not found.
func (c *Cache) GetStats(ctx context.Context, id int64) (*model.Stats, error) {
	var stats model.Stats
	if err := c.getJSON(ctx, statsKey(id), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

// SetStats stores capacity statistics loaded at generation gen.
func (c *Cache) SetStats(ctx context.Context, id, gen int64, stats *model.Stats) error {
	return c.setJSON(ctx, id, gen, statsKey(id), stats)
}

// InvalidateEvent bumps the event's generation and removes every cached view.
// Called after a registration change commits. The bump makes any read that
// started before the commit fail its conditional write.
func (c *Cache) InvalidateEvent(ctx context.Context, id int64) error {
	genKey := generationKey(id)
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, genKey)
		pipe.Expire(ctx, genKey, generationTTL)
		pipe.Del(ctx, detailsKey(id), statsKey(id))
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis invalidate failed: %w", err)
	}
	return nil
}

func (c *Cache) getJSON(ctx context.Context, key string, dst any) error {
	data, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		return fmt.Errorf("redis get failed: %w", err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		// Corrupt entry: drop it and treat as a miss.
		if delErr := c.client.Del(ctx, key).Err(); delErr != nil {
			return fmt.Errorf("drop corrupt entry %s: %w", key, delErr)
		}
		return ErrCacheMiss
	}
	return nil
}

func (c *Cache) setJSON(ctx context.Context, id, gen int64, key string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to encode cache entry: %w", err)
	}

	stored, err := setIfGenerationScript.Run(ctx, c.client,
		[]string{generationKey(id), key},
		strconv.FormatInt(gen, 10), data, c.ttl.Milliseconds(),
	).Int()
	if err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	if stored == 0 {
		return ErrStaleGeneration
	}
	return nil
}

func detailsKey(id int64) string {
	return eventKeyPrefix + strconv.FormatInt(id, 10) + detailsSuffix
}

func statsKey(id int64) string {
	return eventKeyPrefix + strconv.FormatInt(id, 10) + statsSuffix
}

func generationKey(id int64) string {
	return eventKeyPrefix + strconv.FormatInt(id, 10) + genSuffix
}
