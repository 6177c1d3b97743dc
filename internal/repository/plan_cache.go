package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/agency-booking/internal/config"
	"github.com/iliyamo/agency-booking/internal/model"
)

// PlanReader is anything that loads plans by id.
type PlanReader interface {
	GetByID(ctx context.Context, id uint64) (model.Plan, error)
}

// CachedPlans is a read-through Redis cache in front of a PlanReader.  The
// quota stage loads the plan on every creation request.  Plans are only
// written by migrations, so entries simply age out after the TTL.  Redis
// errors fall through to the underlying reader.
type CachedPlans struct {
	next PlanReader
	rdb  *redis.Client
	cfg  config.CacheConfig
	log  *zap.Logger
}

// NewCachedPlans returns next unchanged when caching is disabled or there is
// no Redis client.
func NewCachedPlans(next PlanReader, rdb *redis.Client, cfg config.CacheConfig, log *zap.Logger) PlanReader {
	if !cfg.Enabled || rdb == nil {
		return next
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &CachedPlans{next: next, rdb: rdb, cfg: cfg, log: log}
}

func (c *CachedPlans) key(id uint64) string {
	return fmt.Sprintf("%s:plan:%d", c.cfg.Prefix, id)
}

func (c *CachedPlans) GetByID(ctx context.Context, id uint64) (model.Plan, error) {
	key := c.key(id)
	bs, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var p model.Plan
		if jerr := json.Unmarshal(bs, &p); jerr == nil {
			return p, nil
		}
		c.log.Warn("dropping undecodable plan cache entry", zap.String("key", key))
		_ = c.rdb.Del(ctx, key).Err()
	case !errors.Is(err, redis.Nil):
		c.log.Warn("plan cache read failed", zap.Error(err))
	}

	p, err := c.next.GetByID(ctx, id)
	if err != nil {
		return model.Plan{}, err
	}
	if bs, err := json.Marshal(p); err == nil {
		if err := c.rdb.Set(ctx, key, bs, c.cfg.TTL).Err(); err != nil {
			c.log.Warn("plan cache write failed", zap.Error(err))
		}
	}
	return p, nil
}

