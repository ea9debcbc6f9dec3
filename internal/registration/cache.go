package registration

import (
	"context"
	"encoding/json"
	"time"

	"ticket-runners/internal/models"

	"github.com/go-redis/redis/v8"
)

const draftKeyPrefix = "draft_profile:"

// DraftCache holds pre-registration profile data keyed by phone number. The
// booking flow is the single writer per key; entries expire on their own.
type DraftCache struct {
	Client *redis.Client
	TTL    time.Duration
}

func NewDraftCache(client *redis.Client, ttl time.Duration) *DraftCache {
	return &DraftCache{Client: client, TTL: ttl}
}

func (c *DraftCache) StoreDraftProfile(ctx context.Context, phone string, profile models.DraftProfile) error {
	payload, err := json.Marshal(profile)
	if err != nil {
		return err
	}
	return c.Client.Set(ctx, draftKeyPrefix+phone, payload, c.TTL).Err()
}

// TakeDraftProfile returns and removes the draft for a phone. A missing entry
// returns nil without error; drafts are best-effort.
func (c *DraftCache) TakeDraftProfile(ctx context.Context, phone string) (*models.DraftProfile, error) {
	key := draftKeyPrefix + phone

	payload, err := c.Client.Get(ctx, key).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var profile models.DraftProfile
	if err := json.Unmarshal([]byte(payload), &profile); err != nil {
		return nil, err
	}

	_, err = c.Client.Del(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	return &profile, nil
}
