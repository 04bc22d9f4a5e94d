package rag

import (
	"context"
	"math"
	"strings"
)

// 距离度量
const (
	DistanceCosine = "cosine"
	DistanceL2     = "l2"
)

// VectorEntry 索引中的一条向量，携带到父块的关联
type VectorEntry struct {
	ID       string    `json:"id"`
	ParentID string    `json:"parent_id"`
	Ordinal  int       `json:"ordinal"`
	Vector   []float32 `json:"vector"`
}

// VectorHit 一次近邻搜索的命中项
type VectorHit struct {
	ID       string
	ParentID string
	Ordinal  int
	Distance float64
}

// VectorIndex 向量索引抽象。
// Add 对重复ID执行替换（不拒绝）；Search 按距离升序返回至多k条，
// 索引条目不足k时返回全部，空索引返回空结果而非错误。
// 度量方式在构造时固定，索引与查询必须使用同一度量。
type VectorIndex interface {
	Add(ctx context.Context, entry VectorEntry) error
	Search(ctx context.Context, vector []float32, k int) ([]VectorHit, error)
	Size(ctx context.Context) (int, error)
	// Clear 清空全部向量，配合重新摄取实现索引重建
	Clear(ctx context.Context) error
	Ready() bool
}

// SnapshotIndex 支持快照持久化的索引（内存实现）
type SnapshotIndex interface {
	Persist(ctx context.Context) error
	Load(ctx context.Context) error
}

func normalizeDistance(metric string) string {
	switch strings.ToLower(metric) {
	case "l2", "euclidean":
		return DistanceL2
	default:
		return DistanceCosine
	}
}

// distance 根据度量计算两个向量的距离；cosine返回 1-相似度，取值[0,2]
func distance(metric string, a, b []float32) float64 {
	switch metric {
	case DistanceL2:
		return euclideanDistance(a, b)
	default:
		return 1 - cosineSimilarity(a, b)
	}
}

func euclideanDistance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i] - b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
