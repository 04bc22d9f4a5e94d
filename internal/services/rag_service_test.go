package services

import (
	"context"
	"hash/fnv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aihub/rag-go/internal/apperrors"
	"github.com/aihub/rag-go/internal/config"
	"github.com/aihub/rag-go/internal/rag"
)

// stubEmbedder 确定性向量化：同一文本总是得到同一向量
type stubEmbedder struct{}

func (e *stubEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	h := fnv.New32a()
	h.Write([]byte(text))
	sum := h.Sum32()
	return []float32{
		float32(sum%997) / 997,
		float32(sum%991) / 991,
		float32(len(text)%101) / 101,
	}, nil
}

func (e *stubEmbedder) Dimensions() int { return 3 }
func (e *stubEmbedder) Ready() bool     { return true }

// stubGenerator 前failures次调用返回GenerationFault，之后成功
type stubGenerator struct {
	failures int
	calls    int
}

func (g *stubGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	g.calls++
	if g.calls <= g.failures {
		return "", apperrors.NewGenerationFault("temporarily unavailable")
	}
	return "- stub answer", nil
}

func (g *stubGenerator) Ready() bool { return true }

func testConfig() *config.Config {
	return &config.Config{
		RAG: config.RAGConfig{
			Chunking: config.ChunkingConfig{
				ParentSize: 200, ParentOverlap: 20, ChildSize: 50, ChildOverlap: 10,
			},
			Generation: config.GenerationConfig{MaxContextChars: 12000, BackoffBase: 0.001},
			Retrieval:  config.RetrievalConfig{SearchK: 4, OverfetchFactor: 3},
		},
	}
}

func newTestService(t *testing.T, generator rag.Generator, cfg *config.Config) *RAGService {
	t.Helper()
	if cfg == nil {
		cfg = testConfig()
	}
	return NewRAGService(
		rag.NewFileParserManager(),
		rag.NewChunker(
			cfg.RAG.Chunking.ParentSize, cfg.RAG.Chunking.ParentOverlap,
			cfg.RAG.Chunking.ChildSize, cfg.RAG.Chunking.ChildOverlap,
		),
		&stubEmbedder{},
		generator,
		rag.NewMemoryVectorIndex("cosine", nil, ""),
		rag.NewMemoryDocumentStore(nil, ""),
		cfg,
	)
}

func sampleDocument(sourceID string) rag.ParsedDocument {
	return rag.ParsedDocument{
		SourceID: sourceID,
		Elements: []rag.DocumentElement{
			{Type: rag.ElementText, Text: strings.Repeat("the quick brown fox jumps over the lazy dog ", 20), Page: 1},
			{Type: rag.ElementTable, Text: "name\tvalue\nalpha\t1\nbeta\t2", Page: 2},
		},
	}
}

func TestIngestDocument(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &stubGenerator{}, nil)

	report, err := svc.IngestDocument(ctx, sampleDocument("report.pdf"))
	require.NoError(t, err)

	assert.Equal(t, 2, report.ProcessedPages)
	assert.Greater(t, report.ParentsAdded, 1)
	assert.GreaterOrEqual(t, report.ChildrenIndexed, report.ParentsAdded)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, report.ParentsAdded, stats.ParentCount)
	assert.Equal(t, report.ChildrenIndexed, stats.VectorCount)
}

func TestIngestDocumentEmpty(t *testing.T) {
	svc := newTestService(t, &stubGenerator{}, nil)

	_, err := svc.IngestDocument(context.Background(), rag.ParsedDocument{SourceID: "empty"})
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeIngestFault))
}

func TestIngestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &stubGenerator{}, nil)
	doc := sampleDocument("same.pdf")

	first, err := svc.IngestDocument(ctx, doc)
	require.NoError(t, err)

	// 重复摄取同一文档是按ID覆盖，库存不应翻倍
	second, err := svc.IngestDocument(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, first.ParentsAdded, second.ParentsAdded)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ParentsAdded, stats.ParentCount)
	assert.Equal(t, first.ChildrenIndexed, stats.VectorCount)
}

func TestIngestFileText(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &stubGenerator{}, nil)

	report, err := svc.IngestFile(ctx, strings.NewReader("a short note about migration plans"), "note.txt")
	require.NoError(t, err)
	assert.Equal(t, 1, report.ProcessedPages)
	assert.Equal(t, 1, report.ParentsAdded)
}

func TestIngestFileUnsupported(t *testing.T) {
	svc := newTestService(t, &stubGenerator{}, nil)

	_, err := svc.IngestFile(context.Background(), strings.NewReader("x"), "archive.zip")
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeIngestFault))
}

func TestChatAnswersFromIngestedContent(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &stubGenerator{}, nil)

	_, err := svc.IngestDocument(ctx, sampleDocument("kb.pdf"))
	require.NoError(t, err)

	answer, err := svc.Chat(ctx, "what does the fox do?", 0)
	require.NoError(t, err)
	assert.Equal(t, "- stub answer", answer.Answer)
	assert.False(t, answer.NoContext)
	assert.NotEmpty(t, answer.Sources)
	assert.LessOrEqual(t, answer.UsedK, 4)
}

func TestChatEmptyQuestion(t *testing.T) {
	svc := newTestService(t, &stubGenerator{}, nil)

	_, err := svc.Chat(context.Background(), "", 4)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeValidationFault))
}

func TestChatEmptyStoreStillAnswers(t *testing.T) {
	svc := newTestService(t, &stubGenerator{}, nil)

	// 库为空也要走完生成，结果带无上下文标记
	answer, err := svc.Chat(context.Background(), "anything?", 2)
	require.NoError(t, err)
	assert.True(t, answer.NoContext)
	assert.Empty(t, answer.Sources)
}

func TestChatRetriesGeneration(t *testing.T) {
	cfg := testConfig()
	cfg.RAG.Generation.MaxRetries = 2

	generator := &stubGenerator{failures: 2}
	svc := newTestService(t, generator, cfg)

	answer, err := svc.Chat(context.Background(), "q", 2)
	require.NoError(t, err)
	assert.Equal(t, "- stub answer", answer.Answer)
	assert.Equal(t, 3, generator.calls)
}

func TestChatNoRetryByDefault(t *testing.T) {
	generator := &stubGenerator{failures: 1}
	svc := newTestService(t, generator, nil)

	_, err := svc.Chat(context.Background(), "q", 2)
	assert.True(t, apperrors.IsCode(err, apperrors.ErrCodeGenerationFault))
	assert.Equal(t, 1, generator.calls)
}

func TestShowContext(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &stubGenerator{}, nil)

	_, err := svc.IngestDocument(ctx, sampleDocument("ctx.pdf"))
	require.NoError(t, err)

	result, err := svc.ShowContext(ctx, "fox", 0)
	require.NoError(t, err)
	assert.False(t, result.Empty())
	assert.LessOrEqual(t, len(result.Segments), 4)

	// 距离升序
	for i := 1; i < len(result.Segments); i++ {
		assert.GreaterOrEqual(t, result.Segments[i].Distance, result.Segments[i-1].Distance)
	}
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, &stubGenerator{}, nil)

	_, err := svc.IngestDocument(ctx, sampleDocument("gone.pdf"))
	require.NoError(t, err)
	require.NoError(t, svc.Reset(ctx))

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.ParentCount)
	assert.Equal(t, 0, stats.VectorCount)
}

func TestReadyReportsComponents(t *testing.T) {
	svc := newTestService(t, &stubGenerator{}, nil)

	ready := svc.Ready()
	assert.True(t, ready["embedder"])
	assert.True(t, ready["generator"])
	assert.True(t, ready["vector_index"])
}
