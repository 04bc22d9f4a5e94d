package services

import (
	"context"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/aihub/rag-go/internal/apperrors"
	"github.com/aihub/rag-go/internal/config"
	"github.com/aihub/rag-go/internal/logger"
	"github.com/aihub/rag-go/internal/rag"
)

// RAGService 串起完整的检索增强生成流程：
// 文件解析 -> 分块 -> 父块入库 -> 子块向量化入索引 -> 快照持久化，
// 以及问答侧的 检索 -> 上下文组装 -> 生成。
// 所有依赖由构造函数注入，不读取任何包级全局状态。
type RAGService struct {
	parser      *rag.FileParserManager
	chunker     *rag.Chunker
	embedder    rag.Embedder
	generator   rag.Generator
	index       rag.VectorIndex
	docStore    rag.DocumentStore
	retriever   *rag.Retriever
	synthesizer *rag.Synthesizer

	searchK     int
	maxRetries  int
	backoffBase float64
}

// NewRAGService 创建RAG服务
func NewRAGService(
	parser *rag.FileParserManager,
	chunker *rag.Chunker,
	embedder rag.Embedder,
	generator rag.Generator,
	index rag.VectorIndex,
	docStore rag.DocumentStore,
	cfg *config.Config,
) *RAGService {
	retriever := rag.NewRetriever(embedder, index, docStore, cfg.RAG.Retrieval.OverfetchFactor)
	retriever.SetDropHook(func(childID, parentID string) {
		consistencyDrops.Inc()
	})

	searchK := cfg.RAG.Retrieval.SearchK
	if searchK <= 0 {
		searchK = 4
	}

	return &RAGService{
		parser:      parser,
		chunker:     chunker,
		embedder:    embedder,
		generator:   generator,
		index:       index,
		docStore:    docStore,
		retriever:   retriever,
		synthesizer: rag.NewSynthesizer(generator, cfg.RAG.Generation.MaxContextChars),
		searchK:     searchK,
		maxRetries:  cfg.RAG.Generation.MaxRetries,
		backoffBase: cfg.RAG.Generation.BackoffBase,
	}
}

// IngestFile 解析并摄取一个上传文件
func (s *RAGService) IngestFile(ctx context.Context, reader io.Reader, filename string) (rag.IngestionReport, error) {
	doc, err := s.parser.ParseFile(reader, filename)
	if err != nil {
		ingestTotal.WithLabelValues("error").Inc()
		return rag.IngestionReport{}, err
	}
	return s.IngestDocument(ctx, doc)
}

// IngestDocument 摄取一个已解析文档。
// 对每个父块先写文档库、再写其子块向量，保证索引里任何可命中的
// 子块都能回溯到父块。摄取完成后持久化两边的快照。
func (s *RAGService) IngestDocument(ctx context.Context, doc rag.ParsedDocument) (rag.IngestionReport, error) {
	if len(doc.Elements) == 0 {
		ingestTotal.WithLabelValues("error").Inc()
		return rag.IngestionReport{}, apperrors.NewIngestFault("document has no content")
	}

	parents, children := s.chunker.Chunk(doc)

	childrenByParent := make(map[string][]rag.ChildSegment, len(parents))
	for _, child := range children {
		childrenByParent[child.ParentID] = append(childrenByParent[child.ParentID], child)
	}

	report := rag.IngestionReport{ProcessedPages: countPages(doc.Elements)}
	for _, parent := range parents {
		// 父块先落文档库，随后才允许其子块进入向量索引
		if err := s.docStore.Put(ctx, parent); err != nil {
			ingestTotal.WithLabelValues("error").Inc()
			return report, err
		}
		report.ParentsAdded++

		for _, child := range childrenByParent[parent.ID] {
			vector, err := s.embedder.Embed(ctx, child.Text)
			if err != nil {
				ingestTotal.WithLabelValues("error").Inc()
				return report, err
			}
			entry := rag.VectorEntry{
				ID:       child.ID,
				ParentID: child.ParentID,
				Ordinal:  child.Ordinal,
				Vector:   vector,
			}
			if err := s.index.Add(ctx, entry); err != nil {
				ingestTotal.WithLabelValues("error").Inc()
				return report, err
			}
			report.ChildrenIndexed++
		}
	}

	if err := s.persistSnapshots(ctx); err != nil {
		// 摄取本身已成功，持久化失败只告警不回滚
		logger.Error("failed to persist snapshots after ingest",
			zap.String("source_id", doc.SourceID), zap.Error(err))
	}

	ingestTotal.WithLabelValues("success").Inc()
	ingestParents.Add(float64(report.ParentsAdded))
	ingestChildren.Add(float64(report.ChildrenIndexed))
	logger.Info("document ingested",
		zap.String("source_id", doc.SourceID),
		zap.Int("processed_pages", report.ProcessedPages),
		zap.Int("parents_added", report.ParentsAdded),
		zap.Int("children_indexed", report.ChildrenIndexed))
	return report, nil
}

// Chat 回答一个问题。k<=0时使用配置的默认检索数量。
func (s *RAGService) Chat(ctx context.Context, question string, k int) (rag.ChatAnswer, error) {
	if strings.TrimSpace(question) == "" {
		chatTotal.WithLabelValues("error").Inc()
		return rag.ChatAnswer{}, apperrors.NewValidationFault("question is empty")
	}
	if k <= 0 {
		k = s.searchK
	}

	start := time.Now()
	result, err := s.retriever.Retrieve(ctx, question, k)
	retrievalDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		chatTotal.WithLabelValues("error").Inc()
		return rag.ChatAnswer{}, err
	}

	genStart := time.Now()
	answer, err := s.answerWithRetry(ctx, question, result)
	generationDuration.Observe(time.Since(genStart).Seconds())
	if err != nil {
		chatTotal.WithLabelValues("error").Inc()
		return rag.ChatAnswer{}, err
	}

	chatTotal.WithLabelValues("success").Inc()
	return answer, nil
}

// answerWithRetry 生成回答，按配置做有限次重试。
// max_retries为0时（默认）和核心层一样不重试。
func (s *RAGService) answerWithRetry(ctx context.Context, question string, result rag.RetrievalResult) (rag.ChatAnswer, error) {
	var lastErr error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(s.backoffBase * float64(int(1)<<(attempt-1)) * float64(time.Second))
			logger.Warn("retrying answer generation",
				zap.Int("attempt", attempt), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return rag.ChatAnswer{}, apperrors.NewGenerationFault("generation cancelled").WithCause(ctx.Err())
			case <-time.After(backoff):
			}
		}
		answer, err := s.synthesizer.Answer(ctx, question, result)
		if err == nil {
			return answer, nil
		}
		if !apperrors.IsCode(err, apperrors.ErrCodeGenerationFault) {
			return rag.ChatAnswer{}, err
		}
		lastErr = err
	}
	return rag.ChatAnswer{}, lastErr
}

// ShowContext 只做检索，返回将用于回答的上下文
func (s *RAGService) ShowContext(ctx context.Context, question string, k int) (rag.RetrievalResult, error) {
	if k <= 0 {
		k = s.searchK
	}
	start := time.Now()
	result, err := s.retriever.Retrieve(ctx, question, k)
	retrievalDuration.Observe(time.Since(start).Seconds())
	return result, err
}

// Stats 返回当前库存统计
func (s *RAGService) Stats(ctx context.Context) (rag.Stats, error) {
	parentCount, err := s.docStore.Count(ctx)
	if err != nil {
		return rag.Stats{}, err
	}
	vectorCount, err := s.index.Size(ctx)
	if err != nil {
		return rag.Stats{}, err
	}
	return rag.Stats{ParentCount: parentCount, VectorCount: vectorCount}, nil
}

// Ready 报告各外部依赖的就绪状态
func (s *RAGService) Ready() map[string]bool {
	return map[string]bool{
		"embedder":     s.embedder.Ready(),
		"generator":    s.generator.Ready(),
		"vector_index": s.index.Ready(),
	}
}

// Reset 清空文档库与向量索引并持久化空状态
func (s *RAGService) Reset(ctx context.Context) error {
	if err := s.index.Clear(ctx); err != nil {
		return err
	}
	if err := s.docStore.Clear(ctx); err != nil {
		return err
	}
	if err := s.persistSnapshots(ctx); err != nil {
		logger.Error("failed to persist snapshots after reset", zap.Error(err))
	}
	logger.Info("document store and vector index cleared")
	return nil
}

// LoadSnapshots 启动时加载持久化快照。快照不存在视为首次启动，不报错。
func (s *RAGService) LoadSnapshots(ctx context.Context) error {
	if err := s.docStore.Load(ctx); err != nil {
		return err
	}
	if snap, ok := s.index.(rag.SnapshotIndex); ok {
		if err := snap.Load(ctx); err != nil {
			return err
		}
	}
	stats, err := s.Stats(ctx)
	if err != nil {
		return err
	}
	logger.Info("snapshots loaded",
		zap.Int("parent_count", stats.ParentCount),
		zap.Int("vector_count", stats.VectorCount))
	return nil
}

func (s *RAGService) persistSnapshots(ctx context.Context) error {
	if err := s.docStore.Persist(ctx); err != nil {
		return err
	}
	if snap, ok := s.index.(rag.SnapshotIndex); ok {
		if err := snap.Persist(ctx); err != nil {
			return err
		}
	}
	return nil
}

// SupportedFormats 透出解析器支持的文件扩展名
func (s *RAGService) SupportedFormats() []string {
	return s.parser.SupportedFormats()
}

func countPages(elements []rag.DocumentElement) int {
	maxPage := 0
	for _, el := range elements {
		if el.Page > maxPage {
			maxPage = el.Page
		}
	}
	if maxPage == 0 && len(elements) > 0 {
		maxPage = 1
	}
	return maxPage
}
