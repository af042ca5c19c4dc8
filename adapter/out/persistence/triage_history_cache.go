package persistence

import (
	"context"
	"time"

	"triage_server/core/domain"
	"triage_server/core/port/out"
	"triage_server/pkg/cache"
	"triage_server/pkg/logger"
)

const (
	historyAllKey    = "history:all"
	historyRecentKey = "history:recent"

	// recentWindow is the number of newest records kept under historyRecentKey.
	recentWindow = 100
)

// CachedHistoryAdapter wraps any HistoryRepository with a Redis read-through
// cache. Cache errors are logged and the delegate is used instead.
type CachedHistoryAdapter struct {
	delegate out.HistoryRepository
	cache    *cache.RedisCache
	ttl      time.Duration
}

var _ out.HistoryRepository = (*CachedHistoryAdapter)(nil)

// NewCachedHistoryAdapter creates a cached history repository.
func NewCachedHistoryAdapter(delegate out.HistoryRepository, redisCache *cache.RedisCache, ttl time.Duration) *CachedHistoryAdapter {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &CachedHistoryAdapter{
		delegate: delegate,
		cache:    redisCache,
		ttl:      ttl,
	}
}

func (a *CachedHistoryAdapter) EnsureSchema(ctx context.Context) error {
	return a.delegate.EnsureSchema(ctx)
}

// Insert writes through to the delegate and drops the cached lists.
func (a *CachedHistoryAdapter) Insert(ctx context.Context, rec *domain.HistoryRecord) error {
	if err := a.delegate.Insert(ctx, rec); err != nil {
		return err
	}
	if err := a.cache.Delete(ctx, historyAllKey, historyRecentKey); err != nil {
		logger.WithContext(ctx).WithError(err).Warn("failed to invalidate history cache")
	}
	return nil
}

// ListRecent serves limits up to recentWindow from one cached list. A
// non-positive limit returns no records.
func (a *CachedHistoryAdapter) ListRecent(ctx context.Context, limit int) ([]*domain.HistoryRecord, error) {
	if limit <= 0 {
		return []*domain.HistoryRecord{}, nil
	}
	if limit > recentWindow {
		return a.delegate.ListRecent(ctx, limit)
	}

	records, err := a.readThrough(ctx, historyRecentKey, func() ([]*domain.HistoryRecord, error) {
		return a.delegate.ListRecent(ctx, recentWindow)
	})
	if err != nil {
		return nil, err
	}
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

func (a *CachedHistoryAdapter) ListAll(ctx context.Context) ([]*domain.HistoryRecord, error) {
	return a.readThrough(ctx, historyAllKey, func() ([]*domain.HistoryRecord, error) {
		return a.delegate.ListAll(ctx)
	})
}

func (a *CachedHistoryAdapter) Ping(ctx context.Context) error {
	return a.delegate.Ping(ctx)
}

func (a *CachedHistoryAdapter) readThrough(ctx context.Context, key string, load func() ([]*domain.HistoryRecord, error)) ([]*domain.HistoryRecord, error) {
	var cached []*domain.HistoryRecord
	found, err := a.cache.GetJSON(ctx, key, &cached)
	if err == nil && found {
		return cached, nil
	}
	if err != nil {
		logger.WithContext(ctx).WithError(err).WithField("key", key).Warn("history cache read failed")
	}

	records, err := load()
	if err != nil {
		return nil, err
	}

	// A load that started before a concurrent Insert can store a list missing
	// that record; it stays until the TTL expires.
	if err := a.cache.SetJSON(ctx, key, records, a.ttl); err != nil {
		logger.WithContext(ctx).WithError(err).WithField("key", key).Warn("history cache write failed")
	}
	return records, nil
}
