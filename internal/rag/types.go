package rag

// 文档元素类型
const (
	ElementText  = "text"
	ElementTable = "table"
	ElementImage = "image"
)

// DocumentElement 解析器输出的结构化元素。
// 表格与图片是原子元素：不参与二次切分，各自成为独立的父块。
type DocumentElement struct {
	Type string `json:"type"` // text | table | image
	Text string `json:"text"` // 图片元素为文字替代描述
	Page int    `json:"page"`
}

// ParsedDocument 解析完成的文档，摄取入口的输入
type ParsedDocument struct {
	SourceID string            `json:"source_id"`
	Elements []DocumentElement `json:"elements"`
}

// ParentSegment 粗粒度文档块，检索时作为上下文返回。
// 写入文档库后不可变。
type ParentSegment struct {
	ID       string                 `json:"id"`
	SourceID string                 `json:"source_id"`
	Text     string                 `json:"text"`
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// ChildSegment 细粒度块，仅用于向量相似度匹配。
// 生命周期很短：向量化并写入索引后即丢弃，只有 id→parent_id 的关联保留在索引中。
type ChildSegment struct {
	ID       string `json:"id"`
	ParentID string `json:"parent_id"`
	Text     string `json:"text"`
	Ordinal  int    `json:"ordinal"` // 在父块内的序号，用于结果排序时打破平分
}

// RetrievedSegment 检索结果中的一项
type RetrievedSegment struct {
	Parent   ParentSegment `json:"parent"`
	Distance float64       `json:"distance"`
}

// RetrievalResult 按距离升序排列、已按父块去重的检索结果
type RetrievalResult struct {
	Segments []RetrievedSegment `json:"segments"`
}

// Empty 判断是否没有检索到任何上下文
func (r RetrievalResult) Empty() bool {
	return len(r.Segments) == 0
}

// ChatAnswer 问答结果
type ChatAnswer struct {
	Answer    string   `json:"answer"`
	Sources   []string `json:"sources"` // 实际使用的父块ID，按提供顺序
	UsedK     int      `json:"used_k"`
	NoContext bool     `json:"no_context"` // 没有任何支撑上下文时置为true
	Truncated bool     `json:"truncated"`  // 上下文因长度限制被截断
}

// IngestionReport 摄取结果统计
type IngestionReport struct {
	ProcessedPages  int `json:"processed_pages"`
	ParentsAdded    int `json:"parents_added"`
	ChildrenIndexed int `json:"children_indexed"`
}

// Stats 健康上报用的统计信息
type Stats struct {
	ParentCount int `json:"parent_count"`
	VectorCount int `json:"vector_count"`
}
