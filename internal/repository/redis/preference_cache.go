package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/CareOpsHQ/mednotify/internal/domain/preference"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var _ preference.Repo = (*PreferenceCache)(nil)

// PreferenceCache is a read-through cache in front of the postgres
// preference repo. Dispatch resolves preferences for every claimed
// notification, so the hot path reads redis; updates write through and drop
// the cached entry. Cache errors degrade to the underlying repo.
type PreferenceCache struct {
	next preference.Repo
	rdb  *redis.Client
	ttl  time.Duration
	log  *zap.Logger
}

func NewPreferenceCache(next preference.Repo, rdb *redis.Client, ttl time.Duration, log *zap.Logger) *PreferenceCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &PreferenceCache{next: next, rdb: rdb, ttl: ttl, log: log}
}

func prefKey(recipientID int64) string {
	return fmt.Sprintf("prefs:%d", recipientID)
}

func (c *PreferenceCache) GetOrCreate(ctx context.Context, recipientID int64) (*preference.Preference, error) {
	key := prefKey(recipientID)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var p preference.Preference
		if uerr := json.Unmarshal(raw, &p); uerr == nil {
			return &p, nil
		}
		// stale or corrupt entry, fall through to the source
		c.rdb.Del(ctx, key)
	} else if !errors.Is(err, redis.Nil) {
		c.log.Warn("preference cache read failed", zap.Int64("recipient_id", recipientID), zap.Error(err))
	}

	p, err := c.next.GetOrCreate(ctx, recipientID)
	if err != nil {
		return nil, err
	}

	if data, merr := json.Marshal(p); merr == nil {
		if serr := c.rdb.Set(ctx, key, data, c.ttl).Err(); serr != nil {
			c.log.Warn("preference cache write failed", zap.Int64("recipient_id", recipientID), zap.Error(serr))
		}
	}
	return p, nil
}

func (c *PreferenceCache) Update(ctx context.Context, p *preference.Preference) error {
	if err := c.next.Update(ctx, p); err != nil {
		return err
	}
	if err := c.rdb.Del(ctx, prefKey(p.RecipientID)).Err(); err != nil {
		c.log.Warn("preference cache invalidate failed", zap.Int64("recipient_id", p.RecipientID), zap.Error(err))
	}
	return nil
}
