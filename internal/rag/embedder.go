package rag

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aihub/rag-go/internal/apperrors"
)

// Embedder 定义文本向量化接口。
// 实现必须对相同输入返回相同向量，否则重复摄取未变更的内容会让索引失真。
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Ready() bool
}

// NoopEmbedder 默认占位实现
type NoopEmbedder struct{}

func (n *NoopEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return nil, apperrors.NewEmbeddingFault("embedding provider not configured")
}

func (n *NoopEmbedder) Dimensions() int {
	return 0
}

func (n *NoopEmbedder) Ready() bool {
	return false
}

var embeddingDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
	"embeddinggemma:300m":    768,
	"nomic-embed-text":       768,
}

// OpenAIEmbedder 通过OpenAI兼容接口向量化文本。
// base URL可指向Ollama等兼容服务。
type OpenAIEmbedder struct {
	client     *openai.Client
	model      string
	dimensions atomic.Int64
	timeout    time.Duration
	limiter    sync.Mutex
}

// NewOpenAIEmbedder 创建向量化客户端，apiKey为空时返回占位实现
func NewOpenAIEmbedder(apiKey, baseURL, model string, timeoutSeconds int) Embedder {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return &NoopEmbedder{}
	}
	if model == "" {
		model = "text-embedding-3-small"
	}
	if timeoutSeconds <= 0 {
		timeoutSeconds = 30
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		clientConfig.BaseURL = baseURL
	}
	client := openai.NewClientWithConfig(clientConfig)

	dims, ok := embeddingDimensions[model]
	if !ok {
		dims = 1536
	}

	embedder := &OpenAIEmbedder{
		client:  client,
		model:   model,
		timeout: time.Duration(timeoutSeconds) * time.Second,
	}
	embedder.dimensions.Store(int64(dims))
	return embedder
}

func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.NewValidationFault("text is empty")
	}
	if e.client == nil {
		return nil, apperrors.NewEmbeddingFault("embedding client not initialized")
	}

	e.limiter.Lock()
	defer e.limiter.Unlock()

	// 调用边界上的显式超时
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Model: openai.EmbeddingModel(e.model),
		Input: []string{text},
	})
	if err != nil {
		return nil, apperrors.NewEmbeddingFault("embedding request failed").WithCause(err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, apperrors.NewEmbeddingFault("embedding response is empty")
	}

	embedding := resp.Data[0].Embedding
	// 以首个返回结果的维度为准
	e.dimensions.Store(int64(len(embedding)))
	return embedding, nil
}

func (e *OpenAIEmbedder) Dimensions() int {
	return int(e.dimensions.Load())
}

func (e *OpenAIEmbedder) Ready() bool {
	return e.client != nil
}
