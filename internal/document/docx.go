package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fumiama/go-docx"
)

// DocxExtractor Word文档提取器
// 按段落输出文本单元，没有版面信息，边界框为退化框
type DocxExtractor struct{}

// NewDocxExtractor 创建一个新的docx提取器
func NewDocxExtractor() Extractor {
	return &DocxExtractor{}
}

// Extract 解析docx文件并提取文本单元
func (p *DocxExtractor) Extract(filePath string) (*ExtractResult, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open docx file: %v", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat docx file: %v", err)
	}

	return p.extract(file, info.Size(), filePath)
}

// ExtractReader 从Reader解析docx内容
// 解析库需要可随机读取的数据，先落盘到临时文件
func (p *DocxExtractor) ExtractReader(r io.Reader, filename string) (*ExtractResult, error) {
	tmpFile, err := os.CreateTemp("", "docx_extract_*.docx")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmpFile, r)
	if err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("failed to write temp file: %v", err)
	}
	if _, err := tmpFile.Seek(0, io.SeekStart); err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("failed to seek temp file: %v", err)
	}

	result, err := p.extract(tmpFile, size, filename)
	tmpFile.Close()
	return result, err
}

func (p *DocxExtractor) extract(r io.ReaderAt, size int64, filename string) (*ExtractResult, error) {
	doc, err := docx.Parse(r, size)
	if err != nil {
		return nil, fmt.Errorf("failed to parse docx: %v", err)
	}

	var paragraphs []string
	for _, item := range doc.Document.Body.Items {
		para, ok := item.(*docx.Paragraph)
		if !ok {
			continue
		}
		if text := paragraphText(para); text != "" {
			paragraphs = append(paragraphs, text)
		}
	}

	units := paragraphUnits(strings.Join(paragraphs, "\n\n"))

	return &ExtractResult{
		FileName:   filepath.Base(filename),
		TotalPages: 1,
		Units:      units,
	}, nil
}

// paragraphText 拼接段落内所有文本run
func paragraphText(para *docx.Paragraph) string {
	var builder strings.Builder
	for _, child := range para.Children {
		run, ok := child.(*docx.Run)
		if !ok {
			continue
		}
		for _, rc := range run.Children {
			if t, ok := rc.(*docx.Text); ok {
				builder.WriteString(t.Text)
			}
		}
	}
	return strings.TrimSpace(builder.String())
}
