package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/rag-go/internal/rag"
)

func testParent(id, text string) rag.ParentSegment {
	return rag.ParentSegment{ID: id, SourceID: "doc.pdf", Text: text}
}

// Redis不可用（client为nil）时缓存层必须退化为直通
func TestCachedDocumentStorePassThrough(t *testing.T) {
	ctx := context.Background()
	inner := rag.NewMemoryDocumentStore(nil, "")
	cached := NewCachedDocumentStore(inner, nil, 60)

	require.NoError(t, cached.Put(ctx, testParent("p1", "one")))

	got, err := cached.Get(ctx, "p1")
	require.NoError(t, err)
	assert.Equal(t, "one", got.Text)

	count, err := cached.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCachedDocumentStoreGetManyPassThrough(t *testing.T) {
	ctx := context.Background()
	inner := rag.NewMemoryDocumentStore(nil, "")
	cached := NewCachedDocumentStore(inner, nil, 60)

	require.NoError(t, cached.Put(ctx, testParent("a", "aa")))
	require.NoError(t, cached.Put(ctx, testParent("b", "bb")))

	result, err := cached.GetMany(ctx, []string{"b", "missing", "a"})
	require.NoError(t, err)
	require.Len(t, result, 3)
	assert.Equal(t, "bb", result[0].Text)
	assert.Nil(t, result[1])
	assert.Equal(t, "aa", result[2].Text)
}

func TestCachedDocumentStoreClear(t *testing.T) {
	ctx := context.Background()
	inner := rag.NewMemoryDocumentStore(nil, "")
	cached := NewCachedDocumentStore(inner, nil, 60)

	require.NoError(t, cached.Put(ctx, testParent("p1", "one")))
	require.NoError(t, cached.Clear(ctx))

	count, err := cached.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestCacheHitStats(t *testing.T) {
	stats := &CacheHitStats{}
	stats.record(true)
	stats.record(true)
	stats.record(false)

	hits, misses := stats.Snapshot()
	assert.Equal(t, int64(2), hits)
	assert.Equal(t, int64(1), misses)
}
