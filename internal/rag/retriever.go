package rag

import (
	"context"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/aihub/rag-go/internal/apperrors"
	"github.com/aihub/rag-go/internal/logger"
)

// Retriever 编排一次检索：向量化问题、搜索子块、回溯父块、按父块去重排序。
type Retriever struct {
	embedder  Embedder
	index     VectorIndex
	docStore  DocumentStore
	overfetch int
	onDrop    func(childID, parentID string)
}

// NewRetriever 创建检索器。overfetch为子块超采样倍数，
// 用于补偿多个子块命中同一父块的情况。
func NewRetriever(embedder Embedder, index VectorIndex, docStore DocumentStore, overfetch int) *Retriever {
	if overfetch < 1 {
		overfetch = 3
	}
	return &Retriever{
		embedder:  embedder,
		index:     index,
		docStore:  docStore,
		overfetch: overfetch,
	}
}

// SetDropHook 注册一致性丢弃回调，供上层统计用
func (r *Retriever) SetDropHook(hook func(childID, parentID string)) {
	r.onDrop = hook
}

// Retrieve 返回与问题最相关的至多k个父块，距离升序。
// 子块引用的父块缺失时记录一致性警告并跳过该命中，不让整次检索失败。
func (r *Retriever) Retrieve(ctx context.Context, question string, k int) (RetrievalResult, error) {
	if k <= 0 {
		return RetrievalResult{}, apperrors.NewValidationFault("k must be positive")
	}
	if strings.TrimSpace(question) == "" {
		return RetrievalResult{}, apperrors.NewValidationFault("question is empty")
	}

	queryVector, err := r.embedder.Embed(ctx, question)
	if err != nil {
		// EmbeddingFault原样上抛，不在核心内重试
		return RetrievalResult{}, err
	}

	hits, err := r.index.Search(ctx, queryVector, k*r.overfetch)
	if err != nil {
		return RetrievalResult{}, err
	}
	if len(hits) == 0 {
		return RetrievalResult{}, nil
	}

	parentIDs := make([]string, len(hits))
	for i, hit := range hits {
		parentIDs[i] = hit.ParentID
	}
	parents, err := r.docStore.GetMany(ctx, parentIDs)
	if err != nil {
		return RetrievalResult{}, err
	}

	// 按父块去重，保留每个父块的最优（最小）距离
	type candidate struct {
		parent   ParentSegment
		distance float64
		ordinal  int
	}
	best := make(map[string]candidate)
	order := make([]string, 0, len(hits))
	for i, hit := range hits {
		if parents[i] == nil {
			logger.Warn("consistency warning: child vector references missing parent, dropping hit",
				zap.String("child_id", hit.ID),
				zap.String("parent_id", hit.ParentID))
			if r.onDrop != nil {
				r.onDrop(hit.ID, hit.ParentID)
			}
			continue
		}
		existing, ok := best[hit.ParentID]
		if !ok {
			best[hit.ParentID] = candidate{parent: *parents[i], distance: hit.Distance, ordinal: hit.Ordinal}
			order = append(order, hit.ParentID)
			continue
		}
		if hit.Distance < existing.distance ||
			(hit.Distance == existing.distance && hit.Ordinal < existing.ordinal) {
			existing.distance = hit.Distance
			existing.ordinal = hit.Ordinal
			best[hit.ParentID] = existing
		}
	}

	candidates := make([]candidate, 0, len(order))
	for _, id := range order {
		candidates = append(candidates, best[id])
	}
	// 距离升序；距离相同按子块序号、父块ID保证确定性
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].distance != candidates[j].distance {
			return candidates[i].distance < candidates[j].distance
		}
		if candidates[i].ordinal != candidates[j].ordinal {
			return candidates[i].ordinal < candidates[j].ordinal
		}
		return candidates[i].parent.ID < candidates[j].parent.ID
	})

	if len(candidates) > k {
		candidates = candidates[:k]
	}

	segments := make([]RetrievedSegment, len(candidates))
	for i, c := range candidates {
		segments[i] = RetrievedSegment{Parent: c.parent, Distance: c.distance}
	}
	return RetrievalResult{Segments: segments}, nil
}
