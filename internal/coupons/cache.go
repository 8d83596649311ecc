package coupons

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/joao-fontenele/storefront-pricing/internal/domain"
)

const cacheKeyPrefix = "pricing:coupon:"

type Finder interface {
	FindByCode(ctx context.Context, code string) (*domain.Coupon, error)
}

// CachedFinder serves coupon snapshots from Redis and falls back to the
// database on a miss. Redis failures degrade to a database read. The cached
// redemption_count may lag behind; eligibility reads usage from RedemptionStore.
type CachedFinder struct {
	next   Finder
	client redis.Cmdable
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedFinder(next Finder, client redis.Cmdable, ttl time.Duration, logger *zap.Logger) *CachedFinder {
	return &CachedFinder{
		next:   next,
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func cacheKey(code string) string {
	return cacheKeyPrefix + strings.ToLower(strings.TrimSpace(code))
}

func (f *CachedFinder) FindByCode(ctx context.Context, code string) (*domain.Coupon, error) {
	key := cacheKey(code)

	data, err := f.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var coupon domain.Coupon
		if err := json.Unmarshal(data, &coupon); err == nil {
			return &coupon, nil
		}
		f.logger.Warn("discarding corrupt cached coupon", zap.String("key", key))
	case !errors.Is(err, redis.Nil):
		f.logger.Warn("coupon cache read failed", zap.Error(err), zap.String("key", key))
	}

	coupon, err := f.next.FindByCode(ctx, code)
	if err != nil || coupon == nil {
		return coupon, err
	}

	if data, err := json.Marshal(coupon); err == nil {
		if err := f.client.Set(ctx, key, data, f.ttl).Err(); err != nil {
			f.logger.Warn("coupon cache write failed", zap.Error(err), zap.String("key", key))
		}
	}

	return coupon, nil
}

// Invalidate drops the cached snapshot so the next read sees the update.
func (f *CachedFinder) Invalidate(ctx context.Context, code string) error {
	return f.client.Del(ctx, cacheKey(code)).Err()
}
