package rag

import (
	"context"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/aihub/rag-go/internal/apperrors"
)

// Generator 生成模型能力：给定完整prompt返回补全文本。
// 延迟与费用由调用方承担，核心不做重试。
type Generator interface {
	Complete(ctx context.Context, prompt string) (string, error)
	Ready() bool
}

// NoopGenerator 默认占位实现
type NoopGenerator struct{}

func (n *NoopGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	return "", apperrors.NewGenerationFault("generation provider not configured")
}

func (n *NoopGenerator) Ready() bool {
	return false
}

// OpenAIGenerator 通过OpenAI兼容的chat接口调用生成模型
type OpenAIGenerator struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
	timeout     time.Duration
}

// GeneratorOptions 生成模型配置
type GeneratorOptions struct {
	APIKey         string
	BaseURL        string
	Model          string
	MaxTokens      int
	Temperature    float64
	TimeoutSeconds int
}

// NewOpenAIGenerator 创建生成模型客户端，apiKey为空时返回占位实现
func NewOpenAIGenerator(opts GeneratorOptions) Generator {
	apiKey := strings.TrimSpace(opts.APIKey)
	if apiKey == "" {
		return &NoopGenerator{}
	}
	if opts.Model == "" {
		opts.Model = "gpt-4o-mini"
	}

	if opts.TimeoutSeconds <= 0 {
		opts.TimeoutSeconds = 120
	}

	clientConfig := openai.DefaultConfig(apiKey)
	if opts.BaseURL != "" {
		clientConfig.BaseURL = opts.BaseURL
	}

	return &OpenAIGenerator{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       opts.Model,
		maxTokens:   opts.MaxTokens,
		temperature: float32(opts.Temperature),
		timeout:     time.Duration(opts.TimeoutSeconds) * time.Second,
	}
}

func (g *OpenAIGenerator) Complete(ctx context.Context, prompt string) (string, error) {
	if g.client == nil {
		return "", apperrors.NewGenerationFault("generation client not initialized")
	}

	// 调用边界上的显式超时
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
		Temperature: g.temperature,
	}
	if g.maxTokens > 0 {
		req.MaxTokens = g.maxTokens
	}

	resp, err := g.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", apperrors.NewGenerationFault("chat completion failed").WithCause(err)
	}
	if len(resp.Choices) == 0 {
		return "", apperrors.NewGenerationFault("chat completion returned no choices")
	}
	return resp.Choices[0].Message.Content, nil
}

func (g *OpenAIGenerator) Ready() bool {
	return g.client != nil
}
