package rag

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"

	"github.com/aihub/rag-go/internal/apperrors"
	"github.com/aihub/rag-go/internal/storage"
)

// MemoryVectorIndex 内存向量索引：暴力扫描求近邻，快照写入ObjectStorage。
// 适合中小规模文档库；更大规模用Milvus后端。
type MemoryVectorIndex struct {
	mu       sync.RWMutex
	entries  map[string]VectorEntry
	metric   string
	store    storage.ObjectStorage
	snapshot string
}

// NewMemoryVectorIndex 创建内存索引，metric为cosine或l2
func NewMemoryVectorIndex(metric string, store storage.ObjectStorage, snapshotKey string) *MemoryVectorIndex {
	if snapshotKey == "" {
		snapshotKey = "vectorindex/vectors.json"
	}
	return &MemoryVectorIndex{
		entries:  make(map[string]VectorEntry),
		metric:   normalizeDistance(metric),
		store:    store,
		snapshot: snapshotKey,
	}
}

// Add 插入向量；重复ID直接替换
func (x *MemoryVectorIndex) Add(ctx context.Context, entry VectorEntry) error {
	if entry.ID == "" {
		return apperrors.NewValidationFault("vector entry id is empty")
	}
	if len(entry.Vector) == 0 {
		return apperrors.NewValidationFault("vector entry is empty")
	}
	x.mu.Lock()
	x.entries[entry.ID] = entry
	x.mu.Unlock()
	return nil
}

func (x *MemoryVectorIndex) Search(ctx context.Context, vector []float32, k int) ([]VectorHit, error) {
	if k <= 0 {
		return nil, apperrors.NewValidationFault("k must be positive")
	}

	x.mu.RLock()
	hits := make([]VectorHit, 0, len(x.entries))
	for _, entry := range x.entries {
		hits = append(hits, VectorHit{
			ID:       entry.ID,
			ParentID: entry.ParentID,
			Ordinal:  entry.Ordinal,
			Distance: distance(x.metric, vector, entry.Vector),
		})
	}
	x.mu.RUnlock()

	// 距离升序，距离相同按子块序号、ID保证确定性
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Distance != hits[j].Distance {
			return hits[i].Distance < hits[j].Distance
		}
		if hits[i].Ordinal != hits[j].Ordinal {
			return hits[i].Ordinal < hits[j].Ordinal
		}
		return hits[i].ID < hits[j].ID
	})

	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (x *MemoryVectorIndex) Size(ctx context.Context) (int, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries), nil
}

func (x *MemoryVectorIndex) Clear(ctx context.Context) error {
	x.mu.Lock()
	x.entries = make(map[string]VectorEntry)
	x.mu.Unlock()
	return nil
}

func (x *MemoryVectorIndex) Ready() bool {
	return true
}

// Persist 将全部向量刷写为快照
func (x *MemoryVectorIndex) Persist(ctx context.Context) error {
	if x.store == nil {
		return apperrors.NewStorageFault("vector index: no durable storage configured")
	}

	x.mu.RLock()
	copied := make(map[string]VectorEntry, len(x.entries))
	for id, entry := range x.entries {
		copied[id] = entry
	}
	x.mu.RUnlock()

	data, err := json.Marshal(copied)
	if err != nil {
		return apperrors.NewStorageFault("vector index: failed to encode snapshot").WithCause(err)
	}
	if err := x.store.Put(ctx, x.snapshot, data); err != nil {
		return apperrors.NewStorageFault("vector index: failed to write snapshot").WithCause(err)
	}
	return nil
}

// Load 用快照整体替换内存状态；解码失败时原状态保持不变
func (x *MemoryVectorIndex) Load(ctx context.Context) error {
	if x.store == nil {
		return apperrors.NewLoadFault("vector index: no durable storage configured")
	}

	data, err := x.store.Get(ctx, x.snapshot)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			return nil
		}
		return apperrors.NewLoadFault("vector index: failed to read snapshot").WithCause(err)
	}

	loaded := make(map[string]VectorEntry)
	if err := json.Unmarshal(data, &loaded); err != nil {
		return apperrors.NewLoadFault("vector index: snapshot is corrupt").WithCause(err)
	}

	x.mu.Lock()
	x.entries = loaded
	x.mu.Unlock()
	return nil
}
