package rag

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"github.com/aihub/rag-go/internal/apperrors"
)

// MilvusOptions Milvus客户端配置
type MilvusOptions struct {
	Address    string
	Username   string
	Password   string
	Collection string
	Database   string
	VectorSize int
	Distance   string
	UseTLS     bool
	Timeout    time.Duration
}

// MilvusVectorIndex Milvus向量索引后端。
// 子块ID为主键，插入前按ID删除旧条目，因此重复ID同样表现为替换。
type MilvusVectorIndex struct {
	milvusClient client.Client
	collection   string
	vectorSize   int
	metric       string
	milvusMetric entity.MetricType

	mu     sync.Mutex // 保护集合创建与加载状态
	loaded bool
}

// NewMilvusVectorIndex 创建Milvus向量索引
func NewMilvusVectorIndex(opts MilvusOptions) (*MilvusVectorIndex, error) {
	if opts.Address == "" {
		opts.Address = "localhost:19530"
	}
	if opts.Collection == "" {
		opts.Collection = "rag_children"
	}
	if opts.VectorSize == 0 {
		opts.VectorSize = 1536
	}
	if opts.Database == "" {
		opts.Database = "default"
	}
	if opts.Timeout == 0 {
		opts.Timeout = 10 * time.Second
	}

	metric := normalizeDistance(opts.Distance)

	ctx, cancel := context.WithTimeout(context.Background(), opts.Timeout)
	defer cancel()

	milvusClient, err := client.NewClient(ctx, client.Config{
		Address:       opts.Address,
		DBName:        opts.Database,
		Username:      opts.Username,
		Password:      opts.Password,
		EnableTLSAuth: opts.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create milvus client: %w", err)
	}

	return &MilvusVectorIndex{
		milvusClient: milvusClient,
		collection:   opts.Collection,
		vectorSize:   opts.VectorSize,
		metric:       metric,
		milvusMetric: milvusMetricType(metric),
	}, nil
}

func milvusMetricType(metric string) entity.MetricType {
	if metric == DistanceL2 {
		return entity.L2
	}
	return entity.COSINE
}

// ensureCollection 串行化集合的创建与加载，避免并发首次调用重复建表
func (x *MilvusVectorIndex) ensureCollection(ctx context.Context) error {
	x.mu.Lock()
	defer x.mu.Unlock()

	hasCollection, err := x.milvusClient.HasCollection(ctx, x.collection)
	if err != nil {
		return fmt.Errorf("failed to check collection: %w", err)
	}

	if !hasCollection {
		schema := &entity.Schema{
			CollectionName: x.collection,
			Description:    "RAG child segment vectors",
			Fields: []*entity.Field{
				{
					Name:       "id",
					DataType:   entity.FieldTypeVarChar,
					PrimaryKey: true,
					TypeParams: map[string]string{"max_length": "128"},
				},
				{
					Name:       "parent_id",
					DataType:   entity.FieldTypeVarChar,
					TypeParams: map[string]string{"max_length": "128"},
				},
				{
					Name:     "ordinal",
					DataType: entity.FieldTypeInt64,
				},
				{
					Name:     "vector",
					DataType: entity.FieldTypeFloatVector,
					TypeParams: map[string]string{
						"dim": fmt.Sprintf("%d", x.vectorSize),
					},
				},
			},
		}
		if err := x.milvusClient.CreateCollection(ctx, schema, entity.DefaultShardNumber); err != nil {
			return fmt.Errorf("failed to create collection: %w", err)
		}

		var index entity.Index
		index, indexErr := entity.NewIndexHNSW(x.milvusMetric, 8, 64)
		if indexErr != nil {
			index, indexErr = entity.NewIndexIvfFlat(x.milvusMetric, 128)
			if indexErr != nil {
				return fmt.Errorf("failed to create index: %w", indexErr)
			}
		}
		if err := x.milvusClient.CreateIndex(ctx, x.collection, "vector", index, false); err != nil {
			return fmt.Errorf("failed to create vector index: %w", err)
		}
	}

	if !x.loaded {
		if err := x.milvusClient.LoadCollection(ctx, x.collection, false); err != nil {
			return fmt.Errorf("failed to load collection: %w", err)
		}
		x.loaded = true
	}
	return nil
}

func (x *MilvusVectorIndex) Add(ctx context.Context, entry VectorEntry) error {
	if entry.ID == "" {
		return apperrors.NewValidationFault("vector entry id is empty")
	}
	if len(entry.Vector) == 0 {
		return apperrors.NewValidationFault("vector entry is empty")
	}
	if len(entry.Vector) != x.vectorSize {
		return apperrors.NewValidationFault(
			fmt.Sprintf("vector dimension %d does not match index dimension %d", len(entry.Vector), x.vectorSize))
	}

	if err := x.ensureCollection(ctx); err != nil {
		return apperrors.NewStorageFault("milvus: collection not available").WithCause(err)
	}

	// 删除同ID旧条目使Add表现为替换
	expr := fmt.Sprintf("id == %q", entry.ID)
	if err := x.milvusClient.Delete(ctx, x.collection, "", expr); err != nil {
		return apperrors.NewStorageFault("milvus: delete before insert failed").WithCause(err)
	}

	idColumn := entity.NewColumnVarChar("id", []string{entry.ID})
	parentColumn := entity.NewColumnVarChar("parent_id", []string{entry.ParentID})
	ordinalColumn := entity.NewColumnInt64("ordinal", []int64{int64(entry.Ordinal)})
	vectorColumn := entity.NewColumnFloatVector("vector", x.vectorSize, [][]float32{entry.Vector})

	if _, err := x.milvusClient.Insert(ctx, x.collection, "", idColumn, parentColumn, ordinalColumn, vectorColumn); err != nil {
		return apperrors.NewStorageFault("milvus: insert failed").WithCause(err)
	}
	return nil
}

func (x *MilvusVectorIndex) Search(ctx context.Context, vector []float32, k int) ([]VectorHit, error) {
	if k <= 0 {
		return nil, apperrors.NewValidationFault("k must be positive")
	}
	if err := x.ensureCollection(ctx); err != nil {
		return nil, apperrors.NewStorageFault("milvus: collection not available").WithCause(err)
	}

	sp, _ := entity.NewIndexHNSWSearchParam(64)
	searchResults, err := x.milvusClient.Search(
		ctx,
		x.collection,
		[]string{},
		"",
		[]string{"parent_id", "ordinal"},
		[]entity.Vector{entity.FloatVector(vector)},
		"vector",
		x.milvusMetric,
		k,
		sp,
	)
	if err != nil {
		return nil, apperrors.NewStorageFault("milvus: search failed").WithCause(err)
	}
	if len(searchResults) == 0 {
		return []VectorHit{}, nil
	}
	result := searchResults[0]
	if result.Err != nil {
		return nil, apperrors.NewStorageFault("milvus: search failed").WithCause(result.Err)
	}
	if result.ResultCount == 0 {
		return []VectorHit{}, nil
	}

	var ids []string
	if idCol, ok := result.IDs.(*entity.ColumnVarChar); ok {
		ids = idCol.Data()
	}
	var parentIDs []string
	var ordinals []int64
	for _, field := range result.Fields {
		switch field.Name() {
		case "parent_id":
			if col, ok := field.(*entity.ColumnVarChar); ok {
				parentIDs = col.Data()
			}
		case "ordinal":
			if col, ok := field.(*entity.ColumnInt64); ok {
				ordinals = col.Data()
			}
		}
	}

	hits := make([]VectorHit, 0, result.ResultCount)
	for i := 0; i < result.ResultCount; i++ {
		hit := VectorHit{}
		if i < len(ids) {
			hit.ID = ids[i]
		}
		if i < len(parentIDs) {
			hit.ParentID = parentIDs[i]
		}
		if i < len(ordinals) {
			hit.Ordinal = int(ordinals[i])
		}
		if i < len(result.Scores) {
			// COSINE度量返回相似度（越大越近），统一换算成距离
			if x.metric == DistanceCosine {
				hit.Distance = 1 - float64(result.Scores[i])
			} else {
				hit.Distance = float64(result.Scores[i])
			}
		}
		hits = append(hits, hit)
	}
	return hits, nil
}

func (x *MilvusVectorIndex) Size(ctx context.Context) (int, error) {
	hasCollection, err := x.milvusClient.HasCollection(ctx, x.collection)
	if err != nil || !hasCollection {
		return 0, nil
	}

	// Flush后统计才准确
	if err := x.milvusClient.Flush(ctx, x.collection, false); err == nil {
		stats, err := x.milvusClient.GetCollectionStatistics(ctx, x.collection)
		if err == nil {
			if rowCount, ok := stats["row_count"]; ok {
				if n, err := strconv.Atoi(rowCount); err == nil {
					return n, nil
				}
			}
		}
	}
	return 0, nil
}

func (x *MilvusVectorIndex) Clear(ctx context.Context) error {
	hasCollection, err := x.milvusClient.HasCollection(ctx, x.collection)
	if err != nil {
		return apperrors.NewStorageFault("milvus: failed to check collection").WithCause(err)
	}
	if !hasCollection {
		return nil
	}
	if err := x.milvusClient.DropCollection(ctx, x.collection); err != nil {
		return apperrors.NewStorageFault("milvus: failed to drop collection").WithCause(err)
	}
	x.mu.Lock()
	x.loaded = false
	x.mu.Unlock()
	return nil
}

func (x *MilvusVectorIndex) Ready() bool {
	if x.milvusClient == nil {
		return false
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := x.milvusClient.ListCollections(ctx)
	return err == nil
}
