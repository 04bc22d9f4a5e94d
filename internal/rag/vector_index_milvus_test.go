package rag

import (
	"context"
	"sync"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMilvusClient 只实现集合生命周期相关的方法，其余沿用嵌入接口
type fakeMilvusClient struct {
	client.Client

	mu            sync.Mutex
	hasCollection bool
	createCalls   int
	loadCalls     int
	lastIndex     entity.Index
}

func (f *fakeMilvusClient) HasCollection(ctx context.Context, collName string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hasCollection, nil
}

func (f *fakeMilvusClient) CreateCollection(ctx context.Context, schema *entity.Schema, shardsNum int32, opts ...client.CreateCollectionOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	f.hasCollection = true
	return nil
}

func (f *fakeMilvusClient) CreateIndex(ctx context.Context, collName string, fieldName string, idx entity.Index, async bool, opts ...client.IndexOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastIndex = idx
	return nil
}

func (f *fakeMilvusClient) LoadCollection(ctx context.Context, collName string, async bool, opts ...client.LoadCollectionOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadCalls++
	return nil
}

func newFakeMilvusIndex(fake *fakeMilvusClient) *MilvusVectorIndex {
	return &MilvusVectorIndex{
		milvusClient: fake,
		collection:   "rag_children",
		vectorSize:   3,
		metric:       DistanceCosine,
		milvusMetric: entity.COSINE,
	}
}

func TestMilvusEnsureCollectionCreatesOnce(t *testing.T) {
	fake := &fakeMilvusClient{}
	index := newFakeMilvusIndex(fake)

	require.NoError(t, index.ensureCollection(context.Background()))
	require.NoError(t, index.ensureCollection(context.Background()))

	assert.Equal(t, 1, fake.createCalls)
	assert.Equal(t, 1, fake.loadCalls)
	require.NotNil(t, fake.lastIndex)
	assert.Equal(t, entity.HNSW, fake.lastIndex.IndexType())
}

func TestMilvusEnsureCollectionConcurrent(t *testing.T) {
	fake := &fakeMilvusClient{}
	index := newFakeMilvusIndex(fake)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- index.ensureCollection(context.Background())
		}()
	}
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	// 并发首次调用只允许一次建表和一次加载
	assert.Equal(t, 1, fake.createCalls)
	assert.Equal(t, 1, fake.loadCalls)
}
