package document

import (
	"errors"
	"io"
	"path/filepath"
	"strings"
)

// 过短的文本块视为噪声（页码、装饰符号等），提取时直接丢弃
const minUnitChars = 3

// 无法获知页面尺寸时使用A4默认值（单位为PDF点）
const (
	defaultPageWidth  = 595.28
	defaultPageHeight = 841.89
)

// Extractor 文档定位提取器接口
// 负责将不同格式的文档解析为带位置信息的文本单元序列
type Extractor interface {
	// Extract 解析文档，返回提取结果
	Extract(filePath string) (*ExtractResult, error)

	// ExtractReader 从Reader解析文档，返回提取结果
	// filename用于确定文档类型
	ExtractReader(r io.Reader, filename string) (*ExtractResult, error)
}

// ExtractResult 文档提取结果
type ExtractResult struct {
	FileName   string     // 源文件名
	TotalPages int        // 总页数
	Units      []TextUnit // 按阅读顺序排列的文本单元
}

// ContentType 表示文档的内容类型
type ContentType string

const (
	// PDF 文档类型
	PDF ContentType = "pdf"
	// Markdown 文档类型
	Markdown ContentType = "markdown"
	// PlainText 纯文本类型
	PlainText ContentType = "plaintext"
	// Word docx文档类型
	Word ContentType = "word"
	// Unknown 未知类型
	Unknown ContentType = "unknown"
)

// ExtractorFactory 提取器工厂函数，根据文件类型创建对应的提取器
// 只有PDF能提供真实的页面坐标，其余格式输出单页退化边界框
func ExtractorFactory(filePath string) (Extractor, error) {
	contentType := detectContentType(filePath)

	switch contentType {
	case PDF:
		return NewPDFExtractor(), nil
	case Markdown:
		return NewMarkdownExtractor(), nil
	case PlainText:
		return NewPlainTextExtractor(), nil
	case Word:
		return NewDocxExtractor(), nil
	default:
		return nil, errors.New("unsupported document type")
	}
}

// detectContentType 根据文件扩展名检测内容类型
func detectContentType(filePath string) ContentType {
	ext := strings.ToLower(filepath.Ext(filePath))

	switch ext {
	case ".pdf":
		return PDF
	case ".md", ".markdown":
		return Markdown
	case ".txt":
		return PlainText
	case ".docx":
		return Word
	default:
		return Unknown
	}
}

// paragraphUnits 将纯文本按段落切成无坐标的文本单元
// 供Markdown、纯文本等没有版面信息的格式复用，整个文档视作一页
func paragraphUnits(text string) []TextUnit {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var units []TextUnit
	index := 0
	for _, paragraph := range strings.Split(text, "\n\n") {
		paragraph = strings.TrimSpace(paragraph)
		if len([]rune(paragraph)) < minUnitChars {
			continue
		}
		units = append(units, TextUnit{
			Text:       paragraph,
			Page:       0,
			Box:        NewBoundingBox(0, 0, 0, 0),
			Index:      index,
			PageWidth:  defaultPageWidth,
			PageHeight: defaultPageHeight,
		})
		index++
	}

	return units
}
