package rag

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/unidoc/unioffice/document"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"github.com/aihub/rag-go/internal/apperrors"
)

// FileParser 文件解析器接口：把原始文件变成结构化元素序列
type FileParser interface {
	Parse(reader io.Reader, filename string) ([]DocumentElement, error)
	Supports(filename string) bool
}

// TextFileParser 纯文本/Markdown解析器
type TextFileParser struct{}

func (p *TextFileParser) Supports(filename string) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".txt" || ext == ".md" || ext == ".markdown"
}

func (p *TextFileParser) Parse(reader io.Reader, filename string) ([]DocumentElement, error) {
	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取文件失败: %w", err)
	}
	text := strings.TrimSpace(string(content))
	if text == "" {
		return nil, nil
	}
	return []DocumentElement{{Type: ElementText, Text: text, Page: 1}}, nil
}

// PDFFileParser PDF解析器，逐页提取文本、表格和图片。
// 表格转为制表符分隔的原子元素；图片没有文字内容，用占位描述作为可检索的文字替代。
type PDFFileParser struct{}

func (p *PDFFileParser) Supports(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) == ".pdf"
}

func (p *PDFFileParser) Parse(reader io.Reader, filename string) ([]DocumentElement, error) {
	pdfBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取PDF文件失败: %w", err)
	}

	pdfReader, err := model.NewPdfReader(bytes.NewReader(pdfBytes))
	if err != nil {
		return nil, fmt.Errorf("解析PDF失败: %w", err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("获取PDF页数失败: %w", err)
	}

	var elements []DocumentElement
	for i := 1; i <= numPages; i++ {
		page, err := pdfReader.GetPage(i)
		if err != nil {
			continue
		}
		ex, err := extractor.New(page)
		if err != nil {
			continue
		}
		pageText, _, _, err := ex.ExtractPageText()
		if err != nil {
			continue
		}
		if text := strings.TrimSpace(pageText.Text()); text != "" {
			elements = append(elements, DocumentElement{Type: ElementText, Text: text, Page: i})
		}
		for _, table := range pageText.Tables() {
			if el, ok := pdfTableElement(table, i); ok {
				elements = append(elements, el)
			}
		}
		if pageImages, err := ex.ExtractPageImages(nil); err == nil {
			for idx, mark := range pageImages.Images {
				elements = append(elements, pdfImageElement(filename, i, idx+1, mark))
			}
		}
	}
	return elements, nil
}

// pdfTableElement 把提取出的表格转为制表符分隔的原子表格元素
func pdfTableElement(table extractor.TextTable, page int) (DocumentElement, bool) {
	var tableBuilder strings.Builder
	for _, row := range table.Cells {
		cells := make([]string, 0, len(row))
		for _, cell := range row {
			cells = append(cells, strings.TrimSpace(cell.Text))
		}
		tableBuilder.WriteString(strings.Join(cells, "\t"))
		tableBuilder.WriteString("\n")
	}
	text := strings.TrimSpace(tableBuilder.String())
	if text == "" {
		return DocumentElement{}, false
	}
	return DocumentElement{Type: ElementTable, Text: text, Page: page}, true
}

// pdfImageElement 为页面图片生成占位描述元素
func pdfImageElement(filename string, page, ordinal int, mark extractor.ImageMark) DocumentElement {
	return DocumentElement{
		Type: ElementImage,
		Text: fmt.Sprintf("[图片] %s 第%d页 第%d张，显示尺寸 %.0fx%.0f", filename, page, ordinal, mark.Width, mark.Height),
		Page: page,
	}
}

// WordFileParser Word文档解析器：段落作为文本元素，表格作为原子表格元素
type WordFileParser struct{}

func (p *WordFileParser) Supports(filename string) bool {
	return strings.ToLower(filepath.Ext(filename)) == ".docx"
}

func (p *WordFileParser) Parse(reader io.Reader, filename string) ([]DocumentElement, error) {
	docBytes, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("读取Word文件失败: %w", err)
	}

	readerAt := bytes.NewReader(docBytes)
	doc, err := document.Read(readerAt, int64(len(docBytes)))
	if err != nil {
		return nil, fmt.Errorf("解析Word文档失败: %w", err)
	}
	defer doc.Close()

	var elements []DocumentElement

	var textBuilder strings.Builder
	for _, para := range doc.Paragraphs() {
		for _, run := range para.Runs() {
			textBuilder.WriteString(run.Text())
		}
		textBuilder.WriteString("\n")
	}
	if text := strings.TrimSpace(textBuilder.String()); text != "" {
		elements = append(elements, DocumentElement{Type: ElementText, Text: text, Page: 1})
	}

	// 表格转为制表符分隔的文字替代，作为原子元素
	for _, table := range doc.Tables() {
		var tableBuilder strings.Builder
		for _, row := range table.Rows() {
			var cells []string
			for _, cell := range row.Cells() {
				var cellText strings.Builder
				for _, para := range cell.Paragraphs() {
					for _, run := range para.Runs() {
						cellText.WriteString(run.Text())
					}
				}
				cells = append(cells, cellText.String())
			}
			if len(cells) > 0 {
				tableBuilder.WriteString(strings.Join(cells, "\t"))
				tableBuilder.WriteString("\n")
			}
		}
		if text := strings.TrimSpace(tableBuilder.String()); text != "" {
			elements = append(elements, DocumentElement{Type: ElementTable, Text: text, Page: 1})
		}
	}

	return elements, nil
}

// FileParserManager 文件解析器管理器
type FileParserManager struct {
	parsers []FileParser
}

// NewFileParserManager 创建文件解析器管理器
func NewFileParserManager() *FileParserManager {
	return &FileParserManager{
		parsers: []FileParser{
			&PDFFileParser{},
			&WordFileParser{},
			&TextFileParser{},
		},
	}
}

// ParseFile 解析文件为ParsedDocument；不支持的格式或解析失败返回IngestFault
func (m *FileParserManager) ParseFile(reader io.Reader, filename string) (ParsedDocument, error) {
	for _, parser := range m.parsers {
		if !parser.Supports(filename) {
			continue
		}
		elements, err := parser.Parse(reader, filename)
		if err != nil {
			return ParsedDocument{}, apperrors.NewIngestFault(
				fmt.Sprintf("failed to parse %s", filename)).WithCause(err)
		}
		return ParsedDocument{SourceID: filename, Elements: elements}, nil
	}
	return ParsedDocument{}, apperrors.NewIngestFault(fmt.Sprintf("不支持的文件格式: %s", filename))
}

// Supports 判断文件格式是否受支持
func (m *FileParserManager) Supports(filename string) bool {
	for _, parser := range m.parsers {
		if parser.Supports(filename) {
			return true
		}
	}
	return false
}

// SupportedFormats 返回支持的文件扩展名
func (m *FileParserManager) SupportedFormats() []string {
	return []string{".pdf", ".docx", ".txt", ".md", ".markdown"}
}
