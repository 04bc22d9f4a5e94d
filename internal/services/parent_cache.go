package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aihub/rag-go/internal/logger"
	"github.com/aihub/rag-go/internal/rag"
)

const parentCacheKeySet = "rag:parents"

// CacheHitStats 缓存命中率统计
type CacheHitStats struct {
	hits   int64
	misses int64
	mu     sync.RWMutex
}

func (s *CacheHitStats) record(hit bool) {
	s.mu.Lock()
	if hit {
		s.hits++
	} else {
		s.misses++
	}
	s.mu.Unlock()
}

// Snapshot 返回命中/未命中次数
func (s *CacheHitStats) Snapshot() (hits, misses int64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.hits, s.misses
}

// CachedDocumentStore 在DocumentStore前加一层Redis缓存。
// 读路径先查缓存；写、清空、加载都会保持缓存与底层存储一致。
// Redis不可用时行为退化为直通，不影响正确性。
type CachedDocumentStore struct {
	inner    rag.DocumentStore
	client   *redis.Client
	ttl      time.Duration
	hitStats *CacheHitStats
}

// NewCachedDocumentStore 创建带缓存的文档库。client为nil时直通底层存储。
func NewCachedDocumentStore(inner rag.DocumentStore, client *redis.Client, ttlSeconds int) *CachedDocumentStore {
	ttl := time.Duration(ttlSeconds) * time.Second
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &CachedDocumentStore{
		inner:    inner,
		client:   client,
		ttl:      ttl,
		hitStats: &CacheHitStats{},
	}
}

func parentCacheKey(id string) string {
	return fmt.Sprintf("rag:parent:%s", id)
}

func (c *CachedDocumentStore) Put(ctx context.Context, parent rag.ParentSegment) error {
	if err := c.inner.Put(ctx, parent); err != nil {
		return err
	}
	c.cacheParent(ctx, parent)
	return nil
}

func (c *CachedDocumentStore) Get(ctx context.Context, id string) (*rag.ParentSegment, error) {
	if cached := c.lookup(ctx, id); cached != nil {
		return cached, nil
	}
	parent, err := c.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	c.cacheParent(ctx, *parent)
	return parent, nil
}

func (c *CachedDocumentStore) GetMany(ctx context.Context, ids []string) ([]*rag.ParentSegment, error) {
	result := make([]*rag.ParentSegment, len(ids))

	var missing []string
	var missingIdx []int
	for i, id := range ids {
		if cached := c.lookup(ctx, id); cached != nil {
			result[i] = cached
			continue
		}
		missing = append(missing, id)
		missingIdx = append(missingIdx, i)
	}
	if len(missing) == 0 {
		return result, nil
	}

	fetched, err := c.inner.GetMany(ctx, missing)
	if err != nil {
		return nil, err
	}
	for j, parent := range fetched {
		result[missingIdx[j]] = parent
		if parent != nil {
			c.cacheParent(ctx, *parent)
		}
	}
	return result, nil
}

func (c *CachedDocumentStore) Persist(ctx context.Context) error {
	return c.inner.Persist(ctx)
}

func (c *CachedDocumentStore) Load(ctx context.Context) error {
	if err := c.inner.Load(ctx); err != nil {
		return err
	}
	// 加载替换了底层状态，缓存整体失效
	c.invalidateAll(ctx)
	return nil
}

func (c *CachedDocumentStore) Clear(ctx context.Context) error {
	if err := c.inner.Clear(ctx); err != nil {
		return err
	}
	c.invalidateAll(ctx)
	return nil
}

func (c *CachedDocumentStore) Count(ctx context.Context) (int, error) {
	return c.inner.Count(ctx)
}

// HitStats 返回缓存命中统计
func (c *CachedDocumentStore) HitStats() *CacheHitStats {
	return c.hitStats
}

func (c *CachedDocumentStore) lookup(ctx context.Context, id string) *rag.ParentSegment {
	if c.client == nil {
		return nil
	}
	data, err := c.client.Get(ctx, parentCacheKey(id)).Bytes()
	if err != nil {
		c.hitStats.record(false)
		return nil
	}
	var parent rag.ParentSegment
	if err := json.Unmarshal(data, &parent); err != nil {
		c.hitStats.record(false)
		return nil
	}
	c.hitStats.record(true)
	return &parent
}

func (c *CachedDocumentStore) cacheParent(ctx context.Context, parent rag.ParentSegment) {
	if c.client == nil {
		return
	}
	data, err := json.Marshal(parent)
	if err != nil {
		return
	}
	key := parentCacheKey(parent.ID)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Warn("failed to cache parent segment", zap.String("id", parent.ID), zap.Error(err))
		return
	}
	if err := c.client.SAdd(ctx, parentCacheKeySet, parent.ID).Err(); err != nil {
		logger.Warn("failed to track cached parent", zap.String("id", parent.ID), zap.Error(err))
	}
}

func (c *CachedDocumentStore) invalidateAll(ctx context.Context) {
	if c.client == nil {
		return
	}
	ids, err := c.client.SMembers(ctx, parentCacheKeySet).Result()
	if err != nil {
		logger.Warn("failed to list cached parents", zap.Error(err))
		return
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, parentCacheKey(id))
	}
	keys = append(keys, parentCacheKeySet)
	if err := c.client.Del(ctx, keys...).Err(); err != nil {
		logger.Warn("failed to invalidate parent cache", zap.Error(err))
	}
}
