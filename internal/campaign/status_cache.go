package campaign

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/novasend/novasend-platform/pkg/logging"
)

type campaignGetter interface {
	Get(ctx context.Context, id uuid.UUID) (*Campaign, error)
}

// StatusCache shields the campaigns table from UI polling by caching
// counter snapshots in Redis for a short TTL. A cold or unavailable cache
// falls through to the store.
type StatusCache struct {
	store  campaignGetter
	client *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

func NewStatusCache(store campaignGetter, client *redis.Client, ttl time.Duration, logger *logging.Logger) *StatusCache {
	if ttl <= 0 {
		ttl = 3 * time.Second
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &StatusCache{store: store, client: client, ttl: ttl, logger: logger}
}

func statusKey(id uuid.UUID) string {
	return "campaign:status:" + id.String()
}

// Get returns the campaign, preferring a fresh cached snapshot.
func (c *StatusCache) Get(ctx context.Context, id uuid.UUID) (*Campaign, error) {
	if c.client != nil {
		data, err := c.client.Get(ctx, statusKey(id)).Bytes()
		if err == nil {
			var cached Campaign
			if jsonErr := json.Unmarshal(data, &cached); jsonErr == nil {
				return &cached, nil
			}
		} else if !errors.Is(err, redis.Nil) {
			c.logger.Warn("status cache read failed", "error", err, "campaign_id", id)
		}
	}

	campaign, err := c.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if c.client != nil {
		data, err := json.Marshal(campaign)
		if err != nil {
			return nil, fmt.Errorf("campaign: marshal status snapshot: %w", err)
		}
		if err := c.client.Set(ctx, statusKey(id), data, c.ttl).Err(); err != nil {
			c.logger.Warn("status cache write failed", "error", err, "campaign_id", id)
		}
	}
	return campaign, nil
}

// Invalidate drops the snapshot, forcing the next read through to the store.
func (c *StatusCache) Invalidate(ctx context.Context, id uuid.UUID) {
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, statusKey(id)).Err(); err != nil {
		c.logger.Warn("status cache invalidate failed", "error", err, "campaign_id", id)
	}
}
