package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// PlainTextExtractor 纯文本提取器
// 按空行分段输出文本单元，没有版面信息，边界框为退化框
type PlainTextExtractor struct{}

// NewPlainTextExtractor 创建一个新的纯文本提取器
func NewPlainTextExtractor() Extractor {
	return &PlainTextExtractor{}
}

// Extract 解析纯文本文件
func (p *PlainTextExtractor) Extract(filePath string) (*ExtractResult, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open text file: %v", err)
	}
	defer file.Close()

	return p.ExtractReader(file, filePath)
}

// ExtractReader 从Reader解析纯文本内容
func (p *PlainTextExtractor) ExtractReader(r io.Reader, filename string) (*ExtractResult, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read text file: %v", err)
	}

	// 没有可提取的文本也是合法输入，返回零个单元
	units := paragraphUnits(string(content))

	return &ExtractResult{
		FileName:   filepath.Base(filename),
		TotalPages: 1,
		Units:      units,
	}, nil
}
