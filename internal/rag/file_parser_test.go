package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/unidoc/unipdf/v3/extractor"
)

func TestTextParserProducesSingleElement(t *testing.T) {
	parser := &TextFileParser{}

	elements, err := parser.Parse(strings.NewReader("  hello\nworld  "), "note.txt")
	require.NoError(t, err)
	require.Len(t, elements, 1)
	assert.Equal(t, ElementText, elements[0].Type)
	assert.Equal(t, "hello\nworld", elements[0].Text)
	assert.Equal(t, 1, elements[0].Page)
}

func TestTextParserEmptyFile(t *testing.T) {
	parser := &TextFileParser{}

	elements, err := parser.Parse(strings.NewReader("   \n\t"), "empty.md")
	require.NoError(t, err)
	assert.Empty(t, elements)
}

func TestPDFTableElement(t *testing.T) {
	table := extractor.TextTable{
		W: 2, H: 2,
		Cells: [][]extractor.TableCell{
			{{Text: " name "}, {Text: "price"}},
			{{Text: "apple"}, {Text: "3.50"}},
		},
	}

	el, ok := pdfTableElement(table, 4)
	require.True(t, ok)
	assert.Equal(t, ElementTable, el.Type)
	assert.Equal(t, 4, el.Page)
	assert.Equal(t, "name\tprice\napple\t3.50", el.Text)

	// 全空表格不产生元素
	empty := extractor.TextTable{Cells: [][]extractor.TableCell{{{Text: "  "}}}}
	_, ok = pdfTableElement(empty, 1)
	assert.False(t, ok)
}

func TestPDFImageElement(t *testing.T) {
	mark := extractor.ImageMark{Width: 320, Height: 240}

	el := pdfImageElement("report.pdf", 2, 1, mark)
	assert.Equal(t, ElementImage, el.Type)
	assert.Equal(t, 2, el.Page)
	assert.Contains(t, el.Text, "report.pdf")
	assert.Contains(t, el.Text, "320x240")
	assert.NotEmpty(t, strings.TrimSpace(el.Text))
}

func TestImageElementBecomesAtomicParent(t *testing.T) {
	chunker := NewChunker(2000, 200, 400, 80)
	doc := ParsedDocument{
		SourceID: "report.pdf",
		Elements: []DocumentElement{
			pdfImageElement("report.pdf", 1, 1, extractor.ImageMark{Width: 100, Height: 80}),
		},
	}

	parents, children := chunker.Chunk(doc)
	require.Len(t, parents, 1)
	require.Len(t, children, 1)
	assert.Equal(t, ElementImage, parents[0].Metadata["segment_type"])
	assert.Equal(t, parents[0].ID, children[0].ParentID)
}

func TestParserManagerRoutesByExtension(t *testing.T) {
	manager := NewFileParserManager()

	assert.True(t, manager.Supports("a.pdf"))
	assert.True(t, manager.Supports("a.docx"))
	assert.True(t, manager.Supports("a.md"))
	assert.False(t, manager.Supports("a.zip"))

	doc, err := manager.ParseFile(strings.NewReader("plain content"), "notes.txt")
	require.NoError(t, err)
	assert.Equal(t, "notes.txt", doc.SourceID)
	require.Len(t, doc.Elements, 1)
	assert.Equal(t, ElementText, doc.Elements[0].Type)
}
