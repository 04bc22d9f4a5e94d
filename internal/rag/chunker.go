package rag

import (
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"unicode"
)

// Chunker 两级文本分块器：先切出较大的父块，再把每个父块切成较小的子块。
// 父块ID由来源与序号决定，重复摄取同一内容会得到相同的ID。
type Chunker struct {
	parentSize    int
	parentOverlap int
	childSize     int
	childOverlap  int
}

// NewChunker 创建分块器，非法参数回退到安全默认值
func NewChunker(parentSize, parentOverlap, childSize, childOverlap int) *Chunker {
	if parentSize <= 0 {
		parentSize = 2000
	}
	if parentOverlap < 0 || parentOverlap >= parentSize {
		parentOverlap = parentSize / 10
	}
	if childSize <= 0 || childSize >= parentSize {
		childSize = parentSize / 5
	}
	if childOverlap < 0 || childOverlap >= childSize {
		childOverlap = childSize / 5
	}
	return &Chunker{
		parentSize:    parentSize,
		parentOverlap: parentOverlap,
		childSize:     childSize,
		childOverlap:  childOverlap,
	}
}

// Chunk 将解析后的文档切分为父块与子块。
// 空文档返回空切片，不是错误；表格和图片元素各自成为原子父块，
// 对应的唯一子块为其文字替代内容。
func (c *Chunker) Chunk(doc ParsedDocument) ([]ParentSegment, []ChildSegment) {
	var parents []ParentSegment
	var children []ChildSegment

	ordinal := 0
	for _, el := range doc.Elements {
		switch el.Type {
		case ElementTable, ElementImage:
			clean := strings.TrimSpace(el.Text)
			if clean == "" {
				continue
			}
			parent := ParentSegment{
				ID:       parentID(doc.SourceID, ordinal),
				SourceID: doc.SourceID,
				Text:     clean,
				Metadata: map[string]interface{}{
					"segment_type": el.Type,
					"page_number":  el.Page,
					"ordinal":      ordinal,
				},
			}
			parents = append(parents, parent)
			// 原子元素不做二次切分
			children = append(children, ChildSegment{
				ID:       childID(parent.ID, 0),
				ParentID: parent.ID,
				Text:     clean,
				Ordinal:  0,
			})
			ordinal++
		default:
			clean := normalizeWhitespace(el.Text)
			if clean == "" {
				continue
			}
			for _, piece := range splitRunes(clean, c.parentSize, c.parentOverlap) {
				parent := ParentSegment{
					ID:       parentID(doc.SourceID, ordinal),
					SourceID: doc.SourceID,
					Text:     piece,
					Metadata: map[string]interface{}{
						"segment_type": ElementText,
						"page_number":  el.Page,
						"ordinal":      ordinal,
					},
				}
				parents = append(parents, parent)
				childTexts := splitRunes(piece, c.childSize, c.childOverlap)
				if len(childTexts) == 0 {
					childTexts = []string{piece}
				}
				for i, ct := range childTexts {
					children = append(children, ChildSegment{
						ID:       childID(parent.ID, i),
						ParentID: parent.ID,
						Text:     ct,
						Ordinal:  i,
					})
				}
				ordinal++
			}
		}
	}

	return parents, children
}

// parentID 为同一来源的同一位置生成稳定ID
func parentID(sourceID string, ordinal int) string {
	sum := sha1.Sum([]byte(fmt.Sprintf("%s#%d", sourceID, ordinal)))
	return hex.EncodeToString(sum[:])
}

func childID(parentID string, ordinal int) string {
	return fmt.Sprintf("%s.%d", parentID, ordinal)
}

// splitRunes 按rune长度滑窗切分
func splitRunes(text string, size, overlap int) []string {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	step := size - overlap
	if step <= 0 {
		step = size
	}

	var pieces []string
	for start := 0; start < len(runes); start += step {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		piece := strings.TrimSpace(string(runes[start:end]))
		if piece != "" {
			pieces = append(pieces, piece)
		}
		if end == len(runes) {
			break
		}
	}
	return pieces
}

func normalizeWhitespace(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))

	var prevSpace bool
	for _, r := range s {
		if unicode.IsSpace(r) {
			if !prevSpace {
				builder.WriteRune(' ')
			}
			prevSpace = true
			continue
		}
		builder.WriteRune(r)
		prevSpace = false
	}
	return strings.TrimSpace(builder.String())
}
