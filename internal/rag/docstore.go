package rag

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/aihub/rag-go/internal/apperrors"
	"github.com/aihub/rag-go/internal/storage"
)

// DocumentStore 父块存储抽象。
// Put 按ID做幂等upsert：重复摄取同一来源会覆盖同ID的旧内容。
type DocumentStore interface {
	Put(ctx context.Context, parent ParentSegment) error
	// Get 未命中时返回 NOT_FOUND 错误
	Get(ctx context.Context, id string) (*ParentSegment, error)
	// GetMany 保持输入顺序，未命中的位置为nil，单个缺失不会让整个调用失败
	GetMany(ctx context.Context, ids []string) ([]*ParentSegment, error)
	// Persist 将全部父块刷写到持久化存储
	Persist(ctx context.Context) error
	// Load 用持久化内容整体替换内存状态；失败时内存状态保持不变
	Load(ctx context.Context) error
	Clear(ctx context.Context) error
	Count(ctx context.Context) (int, error)
}

// MemoryDocumentStore 内存父块存储，快照写入ObjectStorage。
// 读操作可并发；写、持久化、加载相互串行。
type MemoryDocumentStore struct {
	mu       sync.RWMutex
	parents  map[string]ParentSegment
	store    storage.ObjectStorage
	snapshot string
}

// NewMemoryDocumentStore 创建内存文档库。store为nil时 Persist/Load 返回 StorageFault/LoadFault。
func NewMemoryDocumentStore(store storage.ObjectStorage, snapshotKey string) *MemoryDocumentStore {
	if snapshotKey == "" {
		snapshotKey = "docstore/parents.json"
	}
	return &MemoryDocumentStore{
		parents:  make(map[string]ParentSegment),
		store:    store,
		snapshot: snapshotKey,
	}
}

func (s *MemoryDocumentStore) Put(ctx context.Context, parent ParentSegment) error {
	if parent.ID == "" {
		return apperrors.NewValidationFault("parent segment id is empty")
	}
	s.mu.Lock()
	s.parents[parent.ID] = parent
	s.mu.Unlock()
	return nil
}

func (s *MemoryDocumentStore) Get(ctx context.Context, id string) (*ParentSegment, error) {
	s.mu.RLock()
	parent, ok := s.parents[id]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.NewNotFound(fmt.Sprintf("parent segment %s not found", id))
	}
	return &parent, nil
}

func (s *MemoryDocumentStore) GetMany(ctx context.Context, ids []string) ([]*ParentSegment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*ParentSegment, len(ids))
	for i, id := range ids {
		if parent, ok := s.parents[id]; ok {
			p := parent
			result[i] = &p
		}
	}
	return result, nil
}

func (s *MemoryDocumentStore) Persist(ctx context.Context) error {
	if s.store == nil {
		return apperrors.NewStorageFault("document store: no durable storage configured")
	}

	// 持有读锁只做拷贝，序列化与IO在锁外进行
	s.mu.RLock()
	copied := make(map[string]ParentSegment, len(s.parents))
	for id, p := range s.parents {
		copied[id] = p
	}
	s.mu.RUnlock()

	data, err := json.Marshal(copied)
	if err != nil {
		return apperrors.NewStorageFault("document store: failed to encode snapshot").WithCause(err)
	}
	if err := s.store.Put(ctx, s.snapshot, data); err != nil {
		return apperrors.NewStorageFault("document store: failed to write snapshot").WithCause(err)
	}
	return nil
}

func (s *MemoryDocumentStore) Load(ctx context.Context) error {
	if s.store == nil {
		return apperrors.NewLoadFault("document store: no durable storage configured")
	}

	data, err := s.store.Get(ctx, s.snapshot)
	if err != nil {
		if errors.Is(err, storage.ErrKeyNotFound) {
			// 首次启动没有快照不算错误
			return nil
		}
		return apperrors.NewLoadFault("document store: failed to read snapshot").WithCause(err)
	}

	// 先完整解码，成功后再整体替换，保证加载失败无副作用
	loaded := make(map[string]ParentSegment)
	if err := json.Unmarshal(data, &loaded); err != nil {
		return apperrors.NewLoadFault("document store: snapshot is corrupt").WithCause(err)
	}

	s.mu.Lock()
	s.parents = loaded
	s.mu.Unlock()
	return nil
}

func (s *MemoryDocumentStore) Clear(ctx context.Context) error {
	s.mu.Lock()
	s.parents = make(map[string]ParentSegment)
	s.mu.Unlock()
	return nil
}

func (s *MemoryDocumentStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.parents), nil
}
