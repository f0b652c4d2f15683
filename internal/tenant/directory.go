package tenant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/kursadbilgin/notification-dispatcher/internal/repository"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const activeTenantsKey = "tenants:active"

// Directory lists the tenants a system-wide notification fans out to.
type Directory interface {
	ListActive(ctx context.Context) ([]string, error)
}

// CachedDirectory reads active tenant ids from the repository through a
// short-lived Redis cache. Cache failures fall through to the repository.
//
// A positive ttl lets a fan-out miss tenants activated, or include tenants
// deactivated, within the last ttl. A ttl of zero or less reads the
// repository on every call, so the fan-out sees exactly the tenants active
// at dispatch time.
type CachedDirectory struct {
	repo   repository.TenantRepository
	cache  *goredis.Client
	ttl    time.Duration
	logger *zap.Logger
}

func NewCachedDirectory(repo repository.TenantRepository, cache *goredis.Client, ttl time.Duration, logger *zap.Logger) *CachedDirectory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedDirectory{repo: repo, cache: cache, ttl: ttl, logger: logger}
}

func (d *CachedDirectory) ListActive(ctx context.Context) ([]string, error) {
	if ids, ok := d.fromCache(ctx); ok {
		return ids, nil
	}

	tenants, err := d.repo.ListActive(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active tenants: %w", err)
	}

	ids := make([]string, 0, len(tenants))
	for _, t := range tenants {
		ids = append(ids, t.ID)
	}

	d.toCache(ctx, ids)
	return ids, nil
}

// Invalidate drops the cached tenant list.
func (d *CachedDirectory) Invalidate(ctx context.Context) error {
	if d.cache == nil {
		return nil
	}
	return d.cache.Del(ctx, activeTenantsKey).Err()
}

func (d *CachedDirectory) fromCache(ctx context.Context) ([]string, bool) {
	if d.cache == nil || d.ttl <= 0 {
		return nil, false
	}

	raw, err := d.cache.Get(ctx, activeTenantsKey).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			d.logger.Warn("tenant cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		d.logger.Warn("tenant cache entry is corrupt", zap.Error(err))
		return nil, false
	}
	return ids, true
}

func (d *CachedDirectory) toCache(ctx context.Context, ids []string) {
	if d.cache == nil || d.ttl <= 0 {
		return
	}

	raw, err := json.Marshal(ids)
	if err != nil {
		return
	}
	if err := d.cache.Set(ctx, activeTenantsKey, raw, d.ttl).Err(); err != nil {
		d.logger.Warn("tenant cache write failed", zap.Error(err))
	}
}
