package rag

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/rag-go/internal/apperrors"
	"github.com/aihub/rag-go/internal/storage"
)

func newTestStorage(t *testing.T) *storage.LocalStorage {
	t.Helper()
	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return store
}

func sampleParent(id, text string) ParentSegment {
	return ParentSegment{
		ID:       id,
		SourceID: "doc.pdf",
		Text:     text,
		Metadata: map[string]interface{}{"page_number": float64(1)},
	}
}

func TestMemoryDocumentStorePutGet(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore(nil, "")

	parent := sampleParent("p1", "original text")
	require.NoError(t, store.Put(ctx, parent))

	got, err := store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "original text", got.Text)

	// 同ID重复Put为覆盖
	require.NoError(t, store.Put(ctx, sampleParent("p1", "replaced text")))
	got, err = store.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "replaced text", got.Text)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryDocumentStoreGetMissing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore(nil, "")

	_, err := store.Get(ctx, "nope")
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeNotFound))
}

func TestMemoryDocumentStorePutEmptyID(t *testing.T) {
	store := NewMemoryDocumentStore(nil, "")
	err := store.Put(context.Background(), ParentSegment{Text: "no id"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFault))
}

func TestMemoryDocumentStoreGetMany(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore(nil, "")
	require.NoError(t, store.Put(ctx, sampleParent("a", "aa")))
	require.NoError(t, store.Put(ctx, sampleParent("c", "cc")))

	// 保持输入顺序，缺失的位置为nil而不是报错
	result, err := store.GetMany(ctx, []string{"c", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, "cc", result[0].Text)
	assert.Nil(t, result[1])
	assert.Equal(t, "aa", result[2].Text)
}

func TestMemoryDocumentStorePersistLoadRoundTrip(t *testing.T) {
	ctx := context.Background()
	objStore := newTestStorage(t)

	store := NewMemoryDocumentStore(objStore, "docstore/parents.json")
	require.NoError(t, store.Put(ctx, sampleParent("p1", "one")))
	require.NoError(t, store.Put(ctx, sampleParent("p2", "two")))
	require.NoError(t, store.Persist(ctx))

	// 新实例从同一快照恢复
	restored := NewMemoryDocumentStore(objStore, "docstore/parents.json")
	require.NoError(t, restored.Load(ctx))

	count, err := restored.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	got, err := restored.Get(ctx, "p2")
	require.NoError(t, err)
	assert.Equal(t, "two", got.Text)
}

func TestMemoryDocumentStoreLoadMissingSnapshot(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore(newTestStorage(t), "docstore/parents.json")

	// 快照不存在视为首次启动
	require.NoError(t, store.Load(ctx))
	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestMemoryDocumentStoreLoadCorruptSnapshot(t *testing.T) {
	ctx := context.Background()
	objStore := newTestStorage(t)
	require.NoError(t, objStore.Put(ctx, "docstore/parents.json", []byte("{not json")))

	store := NewMemoryDocumentStore(objStore, "docstore/parents.json")
	require.NoError(t, store.Put(ctx, sampleParent("keep", "still here")))

	err := store.Load(ctx)
	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeLoadFault))

	// 加载失败不得破坏内存状态
	got, err := store.Get(ctx, "keep")
	require.NoError(t, err)
	assert.Equal(t, "still here", got.Text)
}

func TestMemoryDocumentStoreClear(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDocumentStore(nil, "")
	require.NoError(t, store.Put(ctx, sampleParent("p1", "one")))
	require.NoError(t, store.Clear(ctx))

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}
