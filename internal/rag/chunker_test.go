package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textDoc(sourceID, text string) ParsedDocument {
	return ParsedDocument{
		SourceID: sourceID,
		Elements: []DocumentElement{{Type: ElementText, Text: text, Page: 1}},
	}
}

func TestChunkEmptyDocument(t *testing.T) {
	chunker := NewChunker(2000, 200, 400, 80)

	parents, children := chunker.Chunk(ParsedDocument{SourceID: "empty.txt"})
	assert.Empty(t, parents)
	assert.Empty(t, children)

	// 只有空白字符的文档同样不产生任何块
	parents, children = chunker.Chunk(textDoc("blank.txt", "   \n\t  "))
	assert.Empty(t, parents)
	assert.Empty(t, children)
}

func TestChunkShortDocument(t *testing.T) {
	chunker := NewChunker(2000, 200, 400, 80)

	parents, children := chunker.Chunk(textDoc("short.txt", "hello world"))
	require.Len(t, parents, 1)
	require.Len(t, children, 1)
	assert.Equal(t, "hello world", parents[0].Text)
	assert.Equal(t, parents[0].ID, children[0].ParentID)
	assert.Equal(t, 0, children[0].Ordinal)
}

func TestChunkLongDocument(t *testing.T) {
	chunker := NewChunker(100, 10, 30, 5)

	text := strings.Repeat("abcdefghij", 50) // 500 runes
	parents, children := chunker.Chunk(textDoc("long.txt", text))

	assert.Greater(t, len(parents), 1)
	assert.Greater(t, len(children), len(parents))

	for _, p := range parents {
		assert.LessOrEqual(t, len([]rune(p.Text)), 100)
	}
	// 每个子块都能回溯到一个存在的父块
	parentIDs := make(map[string]bool)
	for _, p := range parents {
		parentIDs[p.ID] = true
	}
	for _, c := range children {
		assert.True(t, parentIDs[c.ParentID])
		assert.LessOrEqual(t, len([]rune(c.Text)), 30)
	}
}

func TestChunkDeterministicIDs(t *testing.T) {
	chunker := NewChunker(100, 10, 30, 5)
	doc := textDoc("report.pdf", strings.Repeat("lorem ipsum dolor sit amet ", 30))

	parents1, children1 := chunker.Chunk(doc)
	parents2, children2 := chunker.Chunk(doc)

	require.Equal(t, len(parents1), len(parents2))
	for i := range parents1 {
		assert.Equal(t, parents1[i].ID, parents2[i].ID)
	}
	require.Equal(t, len(children1), len(children2))
	for i := range children1 {
		assert.Equal(t, children1[i].ID, children2[i].ID)
	}

	// 不同来源得到不同的ID
	other, _ := chunker.Chunk(textDoc("other.pdf", strings.Repeat("lorem ipsum dolor sit amet ", 30)))
	assert.NotEqual(t, parents1[0].ID, other[0].ID)
}

func TestChunkAtomicElements(t *testing.T) {
	chunker := NewChunker(100, 10, 30, 5)

	tableText := strings.Repeat("col1\tcol2\tcol3\n", 50) // 远超parent_size
	doc := ParsedDocument{
		SourceID: "tables.docx",
		Elements: []DocumentElement{
			{Type: ElementTable, Text: tableText, Page: 2},
			{Type: ElementImage, Text: "figure 1: architecture diagram", Page: 3},
		},
	}

	parents, children := chunker.Chunk(doc)
	require.Len(t, parents, 2)
	require.Len(t, children, 2)

	// 原子元素不被切分，唯一子块与父块文本一致
	assert.Equal(t, strings.TrimSpace(tableText), parents[0].Text)
	assert.Equal(t, parents[0].Text, children[0].Text)
	assert.Equal(t, 0, children[0].Ordinal)
	assert.Equal(t, ElementTable, parents[0].Metadata["segment_type"])
	assert.Equal(t, ElementImage, parents[1].Metadata["segment_type"])
}

func TestChunkOverlap(t *testing.T) {
	chunker := NewChunker(50, 10, 20, 5)

	text := strings.Repeat("0123456789", 20)
	parents, _ := chunker.Chunk(textDoc("overlap.txt", text))
	require.Greater(t, len(parents), 1)

	// 相邻父块共享重叠部分
	first := []rune(parents[0].Text)
	second := []rune(parents[1].Text)
	tail := string(first[len(first)-10:])
	head := string(second[:10])
	assert.Equal(t, tail, head)
}

func TestNormalizeWhitespace(t *testing.T) {
	assert.Equal(t, "a b c", normalizeWhitespace("  a\n\tb   c  "))
	assert.Equal(t, "", normalizeWhitespace(" \n "))
}
