package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownExtractor Markdown文档提取器
// Markdown没有版面信息，段落作为文本单元输出，边界框为退化框
type MarkdownExtractor struct{}

// NewMarkdownExtractor 创建新的Markdown提取器
func NewMarkdownExtractor() Extractor {
	return &MarkdownExtractor{}
}

// Extract 解析Markdown文件并提取文本单元
func (p *MarkdownExtractor) Extract(filePath string) (*ExtractResult, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open markdown file: %v", err)
	}
	defer file.Close()

	return p.ExtractReader(file, filePath)
}

// ExtractReader 从Reader解析Markdown内容
func (p *MarkdownExtractor) ExtractReader(r io.Reader, filename string) (*ExtractResult, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read markdown content: %v", err)
	}

	// 先渲染为HTML再剥离标签，保留标题和列表形成的段落边界
	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	mdParser := parser.NewWithExtensions(extensions)
	doc := mdParser.Parse(content)

	htmlFlags := html.CommonFlags | html.HrefTargetBlank
	renderer := html.NewRenderer(html.RendererOptions{Flags: htmlFlags})
	htmlContent := markdown.Render(doc, renderer)

	plainText := extractTextFromHTML(string(htmlContent))

	units := paragraphUnits(plainText)

	return &ExtractResult{
		FileName:   filepath.Base(filename),
		TotalPages: 1,
		Units:      units,
	}, nil
}

// extractTextFromHTML 从HTML中提取纯文本
// 注意：这是一个简化的实现，更复杂的情况可能需要使用HTML解析库
func extractTextFromHTML(html string) string {
	// 替换常见的HTML元素为空格或换行符
	replacements := []struct {
		Old string
		New string
	}{
		{"<br>", "\n"},
		{"<br/>", "\n"},
		{"<br />", "\n"},
		{"<p>", ""},
		{"</p>", "\n\n"},
		{"<li>", "- "},
		{"</li>", "\n"},
		{"<ul>", "\n"},
		{"</ul>", "\n\n"},
		{"<ol>", "\n"},
		{"</ol>", "\n\n"},
		{"<h1>", "\n\n"},
		{"</h1>", "\n\n"},
		{"<h2>", "\n\n"},
		{"</h2>", "\n\n"},
		{"<h3>", "\n\n"},
		{"</h3>", "\n\n"},
		{"<h4>", "\n\n"},
		{"</h4>", "\n\n"},
		{"<h5>", "\n\n"},
		{"</h5>", "\n\n"},
		{"<h6>", "\n\n"},
		{"</h6>", "\n\n"},
	}

	result := html
	for _, r := range replacements {
		result = strings.ReplaceAll(result, r.Old, r.New)
	}

	// 移除所有HTML标签
	for {
		start := strings.Index(result, "<")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], ">")
		if end == -1 {
			break
		}
		result = result[:start] + " " + result[start+end+1:]
	}

	return normalizeWhitespace(result)
}

// normalizeWhitespace 规范化文本中的空白符
// 行内空白压缩为单个空格，段落边界（连续换行）保留
func normalizeWhitespace(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.Join(strings.Fields(line), " ")
	}
	text = strings.Join(lines, "\n")

	// 连续多个空行压缩为一个段落分隔
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}

	return strings.TrimSpace(text)
}
