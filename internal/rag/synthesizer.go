package rag

import (
	"context"
	"strings"

	"github.com/aihub/rag-go/internal/apperrors"
)

// 指令模板：只依据给出的上下文作答
const answerPromptTemplate = `You are a Q/A assistant that answers questions using ONLY the provided context.
If the context does not contain enough information, say exactly: "I don't know based on the provided context."

Rules:
- Start your answer immediately. Do NOT write any preface or lead-in (e.g., "Okay", "Let's break down", "Sure", "Here is", "Here's").
- Do not use outside knowledge or guess missing details.
- If the question is ambiguous, ask ONE short clarifying question.
- Keep the answer concise but include all meaningful details from the context relevant to the question.
- Don't answer anything outside the retrieved context. No citations or source tags.

Context:
{context}

Question:
{question}

Answer format:
- Use bullet points, one bullet per distinct fact from the context (still use a single bullet if only one fact).
- Do not add sources, citations, or page numbers.`

const noContextMarker = "[no supporting context found]"
const truncationMarker = "[context truncated]"

// Synthesizer 根据检索到的上下文合成答案。
// 上下文按检索顺序拼接（最优证据在前），超出长度上限时
// 从排名最低的父块开始整块丢弃，并显式标记截断。
type Synthesizer struct {
	generator       Generator
	maxContextChars int
}

// NewSynthesizer 创建答案合成器
func NewSynthesizer(generator Generator, maxContextChars int) *Synthesizer {
	if maxContextChars <= 0 {
		maxContextChars = 12000
	}
	return &Synthesizer{
		generator:       generator,
		maxContextChars: maxContextChars,
	}
}

// Answer 合成答案。上下文为空时仍会调用生成模型，
// 但结果会带上无上下文标记且sources为空——绝不伪造出处。
// 生成失败时GenerationFault原样上抛。
func (s *Synthesizer) Answer(ctx context.Context, question string, result RetrievalResult) (ChatAnswer, error) {
	if strings.TrimSpace(question) == "" {
		return ChatAnswer{}, apperrors.NewValidationFault("question is empty")
	}

	used, truncated := s.fitContext(result.Segments)

	var contextBuilder strings.Builder
	sources := make([]string, 0, len(used))
	for i, seg := range used {
		if i > 0 {
			contextBuilder.WriteString("\n\n")
		}
		contextBuilder.WriteString(seg.Parent.Text)
		sources = append(sources, seg.Parent.ID)
	}

	contextText := contextBuilder.String()
	noContext := len(used) == 0
	if noContext {
		contextText = noContextMarker
	} else if truncated {
		contextText += "\n\n" + truncationMarker
	}

	prompt := strings.NewReplacer(
		"{context}", contextText,
		"{question}", question,
	).Replace(answerPromptTemplate)

	answer, err := s.generator.Complete(ctx, prompt)
	if err != nil {
		return ChatAnswer{}, err
	}

	return ChatAnswer{
		Answer:    strings.TrimSpace(answer),
		Sources:   sources,
		UsedK:     len(used),
		NoContext: noContext,
		Truncated: truncated,
	}, nil
}

// fitContext 在长度预算内选取上下文，从最低排名开始整块丢弃
func (s *Synthesizer) fitContext(segments []RetrievedSegment) ([]RetrievedSegment, bool) {
	var used []RetrievedSegment
	total := 0
	truncated := false
	for _, seg := range segments {
		segLen := len([]rune(seg.Parent.Text))
		if total+segLen > s.maxContextChars && len(used) > 0 {
			truncated = true
			break
		}
		used = append(used, seg)
		total += segLen
	}
	return used, truncated
}
