package document

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Chunk 检索分块
// 由若干连续文本单元的文本拼接而成，同时保留全部来源单元的快照
// 快照内嵌完整的页码和边界框数据，即使原始提取结果被丢弃，
// 每个分块也能独立还原出它在文档中的高亮区域
type Chunk struct {
	ID         string     // 分块ID，格式为{文档ID}_chunk_{序号}
	DocumentID string     // 所属文档ID
	Index      int        // 分块在文档内的序号，从0开始
	Text       string     // 分块文本，首尾空白已去除
	Units      []TextUnit // 来源文本单元快照，按阅读顺序排列，入库的分块不会为空
}

// 分块元数据中调试预览的最大长度
const chunkPreviewChars = 200

// Metadata 生成用于向量库存储的扁平元数据
// 单元快照序列化为JSON字符串嵌入，检索后由引用解析器还原
func (c *Chunk) Metadata() (map[string]interface{}, error) {
	encoded, err := EncodeUnits(c.Units)
	if err != nil {
		return nil, err
	}

	primaryPage := 0
	if len(c.Units) > 0 {
		primaryPage = c.Units[0].Page
	}

	return map[string]interface{}{
		"chunk_id":     c.ID,
		"file_id":      c.DocumentID,
		"source_units": encoded,
		"primary_page": primaryPage,
		"text_preview": headRunes(c.Text, chunkPreviewChars),
	}, nil
}

// SegmenterConfig 分块器配置
type SegmenterConfig struct {
	MaxChunkChars int // 分块的目标最大字符数
	OverlapChars  int // 相邻分块间的重叠字符数
}

// DefaultSegmenterConfig 返回默认分块器配置
func DefaultSegmenterConfig() SegmenterConfig {
	return SegmenterConfig{
		MaxChunkChars: 500,
		OverlapChars:  50,
	}
}

// Segmenter 溯源分块器
// 将有序的文本单元序列聚合成带重叠的检索分块
// 字符数按Unicode字符计数，避免中文文本被字节长度高估
type Segmenter struct {
	config SegmenterConfig
}

// NewSegmenter 创建新的分块器
func NewSegmenter(config SegmenterConfig) *Segmenter {
	if config.MaxChunkChars <= 0 {
		config.MaxChunkChars = DefaultSegmenterConfig().MaxChunkChars
	}
	if config.OverlapChars < 0 {
		config.OverlapChars = 0
	}
	return &Segmenter{config: config}
}

// Config 返回分块器生效的配置
func (s *Segmenter) Config() SegmenterConfig {
	return s.config
}

// Segment 将文本单元聚合成分块
//
// 聚合规则：
//   - 单元文本依次追加进累积区，单元之间以换行符分隔
//   - 追加某个单元会使累积区超出上限且累积区非空时，先固化当前分块，
//     再把最后一个单元文本的末尾重叠字符和该单元的快照带入新累积区，
//     使跨块边界的内容在前后两个分块中都可检索、都可高亮
//   - 单元永远不会被截断，单个超长单元会产生一个超出上限的分块
//   - 空输入返回零个分块
//
// 纯函数，相同输入产生字节级相同的分块文本和ID
func (s *Segmenter) Segment(documentID string, units []TextUnit) []Chunk {
	var chunks []Chunk
	counter := 0

	var buf strings.Builder
	bufChars := 0
	var current []TextUnit

	for _, unit := range units {
		unitChars := utf8.RuneCountInString(unit.Text)

		if bufChars+unitChars > s.config.MaxChunkChars && buf.Len() > 0 {
			chunks = append(chunks, newChunk(documentID, counter, buf.String(), current))
			counter++

			// 重叠承接：取刚固化的最后一个单元的末尾字符开启新累积区，
			// 该单元的快照同时留在前后两个分块中
			last := current[len(current)-1]
			overlap := tailRunes(last.Text, s.config.OverlapChars)
			buf.Reset()
			buf.WriteString(overlap)
			buf.WriteString(" ")
			bufChars = utf8.RuneCountInString(overlap) + 1
			current = []TextUnit{last}
		}

		buf.WriteString(unit.Text)
		buf.WriteString("\n")
		bufChars += unitChars + 1
		current = append(current, unit)
	}

	if strings.TrimSpace(buf.String()) != "" {
		chunks = append(chunks, newChunk(documentID, counter, buf.String(), current))
	}

	return chunks
}

// newChunk 固化累积区为分块，复制单元快照以隔离后续修改
func newChunk(documentID string, index int, text string, units []TextUnit) Chunk {
	snapshot := make([]TextUnit, len(units))
	copy(snapshot, units)

	return Chunk{
		ID:         fmt.Sprintf("%s_chunk_%d", documentID, index),
		DocumentID: documentID,
		Index:      index,
		Text:       strings.TrimSpace(text),
		Units:      snapshot,
	}
}

// tailRunes 取字符串末尾的n个字符，不足n时返回整个字符串
func tailRunes(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[len(runes)-n:])
}

// headRunes 取字符串开头的n个字符
func headRunes(text string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}
