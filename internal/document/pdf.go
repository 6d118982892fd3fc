package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// 行和块的聚合阈值，单位为PDF点
const (
	// 同一行内允许的基线高度差
	rowTolerance = 2.0
	// 相邻行垂直间距超过行高的该倍数时切分为新块
	blockGapFactor = 1.6
	// 字号缺失时的兜底行高
	fallbackFontSize = 10.0
)

// PDFExtractor PDF定位提取器
// 从PDF中提取带精确边界框的文本块，坐标换算为左上角原点
type PDFExtractor struct{}

// NewPDFExtractor 创建一个新的PDF提取器
func NewPDFExtractor() Extractor {
	return &PDFExtractor{}
}

// Extract 解析PDF文件并提取带位置信息的文本单元
func (p *PDFExtractor) Extract(filePath string) (*ExtractResult, error) {
	// 使用默认配置先校验文件，损坏的PDF在这里直接报错
	conf := model.NewDefaultConfiguration()
	if err := api.ValidateFile(filePath, conf); err != nil {
		return nil, fmt.Errorf("invalid PDF file: %v", err)
	}

	// 读取每页的MediaBox尺寸，前端按页面尺寸换算高亮坐标
	dims, err := api.PageDimsFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to read page dimensions: %v", err)
	}

	f, reader, err := pdflib.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open PDF: %v", err)
	}
	defer f.Close()

	result := &ExtractResult{
		FileName:   filepath.Base(filePath),
		TotalPages: reader.NumPage(),
	}

	unitIndex := 0
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}

		pageWidth, pageHeight := pageSize(dims, pageNum-1)

		// 文本片段按行聚合再按垂直间距聚合成块
		blocks := groupPageBlocks(page.Content().Text)
		for _, block := range blocks {
			text := block.text()
			if utf8.RuneCountInString(text) < minUnitChars {
				continue
			}

			result.Units = append(result.Units, TextUnit{
				Text:       text,
				Page:       pageNum - 1,
				Box:        block.boundingBox(pageHeight),
				Index:      unitIndex,
				PageWidth:  round2(pageWidth),
				PageHeight: round2(pageHeight),
			})
			unitIndex++
		}
	}

	// 扫描件等没有文本层的PDF产出零个单元，交给上层按空文档处理
	return result, nil
}

// ExtractReader 从Reader解析PDF内容
// 底层解析库需要可随机读取的文件，先落盘到临时文件再解析
func (p *PDFExtractor) ExtractReader(r io.Reader, filename string) (*ExtractResult, error) {
	tmpFile, err := os.CreateTemp("", "pdf_extract_*.pdf")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmpFile, r); err != nil {
		tmpFile.Close()
		return nil, fmt.Errorf("failed to write temp file: %v", err)
	}
	tmpFile.Close()

	result, err := p.Extract(tmpPath)
	if err != nil {
		return nil, err
	}
	result.FileName = filepath.Base(filename)
	return result, nil
}

// pageSize 返回指定页的宽高，页码从0开始
func pageSize(dims []types.Dim, index int) (float64, float64) {
	if index < 0 || index >= len(dims) {
		return defaultPageWidth, defaultPageHeight
	}
	dim := dims[index]
	if dim.Width <= 0 || dim.Height <= 0 {
		return defaultPageWidth, defaultPageHeight
	}
	return dim.Width, dim.Height
}

// textRow 同一基线上的文本片段
type textRow struct {
	y         float64
	fragments []pdflib.Text
}

// textBlock 垂直方向连续的若干行，相当于一个自然段
type textBlock struct {
	rows []textRow
}

// groupPageBlocks 将页面上的文本片段聚合成文本块
// PDF坐标系原点在左下角，行按Y从大到小即从上到下排列
func groupPageBlocks(fragments []pdflib.Text) []textBlock {
	var valid []pdflib.Text
	for _, frag := range fragments {
		if strings.TrimSpace(frag.S) != "" {
			valid = append(valid, frag)
		}
	}
	if len(valid) == 0 {
		return nil
	}

	sort.SliceStable(valid, func(i, j int) bool {
		if valid[i].Y != valid[j].Y {
			return valid[i].Y > valid[j].Y
		}
		return valid[i].X < valid[j].X
	})

	// 基线高度差在容差内的片段归入同一行
	var rows []textRow
	for _, frag := range valid {
		if len(rows) > 0 && absFloat(frag.Y-rows[len(rows)-1].y) <= rowTolerance {
			last := &rows[len(rows)-1]
			last.fragments = append(last.fragments, frag)
			continue
		}
		rows = append(rows, textRow{y: frag.Y, fragments: []pdflib.Text{frag}})
	}

	// 行间距明显大于行高时开启新块
	var blocks []textBlock
	for i, row := range rows {
		if i == 0 {
			blocks = append(blocks, textBlock{rows: []textRow{row}})
			continue
		}
		prev := rows[i-1]
		gap := prev.y - row.y
		if gap > rowFontSize(prev)*blockGapFactor {
			blocks = append(blocks, textBlock{rows: []textRow{row}})
			continue
		}
		last := &blocks[len(blocks)-1]
		last.rows = append(last.rows, row)
	}

	return blocks
}

// text 拼接块内文本，行之间以换行符分隔
func (b *textBlock) text() string {
	var lines []string
	for _, row := range b.rows {
		line := row.text()
		if line != "" {
			lines = append(lines, line)
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// text 按横向位置拼接一行内的片段
// 片段之间水平间距超过阈值时补一个空格，避免单词粘连
func (r *textRow) text() string {
	fragments := make([]pdflib.Text, len(r.fragments))
	copy(fragments, r.fragments)
	sort.SliceStable(fragments, func(i, j int) bool {
		return fragments[i].X < fragments[j].X
	})

	var builder strings.Builder
	for i, frag := range fragments {
		if i > 0 {
			prev := fragments[i-1]
			gap := frag.X - (prev.X + prev.W)
			if gap > spaceGap(prev.FontSize) && !strings.HasSuffix(prev.S, " ") {
				builder.WriteString(" ")
			}
		}
		builder.WriteString(frag.S)
	}
	return strings.TrimSpace(builder.String())
}

// boundingBox 计算块的边界框并换算到左上角原点坐标系
func (b *textBlock) boundingBox(pageHeight float64) BoundingBox {
	x0 := b.rows[0].fragments[0].X
	x1 := x0
	topPDF := b.rows[0].y
	bottomPDF := b.rows[0].y

	for _, row := range b.rows {
		size := rowFontSize(row)
		for _, frag := range row.fragments {
			if frag.X < x0 {
				x0 = frag.X
			}
			if right := frag.X + frag.W; right > x1 {
				x1 = right
			}
		}
		if top := row.y + size; top > topPDF {
			topPDF = top
		}
		if row.y < bottomPDF {
			bottomPDF = row.y
		}
	}

	y0 := pageHeight - topPDF
	y1 := pageHeight - bottomPDF
	if y0 < 0 {
		y0 = 0
	}
	return NewBoundingBox(x0, y0, x1, y1)
}

// rowFontSize 行内的最大字号，作为行高的估计值
func rowFontSize(row textRow) float64 {
	size := 0.0
	for _, frag := range row.fragments {
		if frag.FontSize > size {
			size = frag.FontSize
		}
	}
	if size <= 0 {
		return fallbackFontSize
	}
	return size
}

// spaceGap 判定补空格的最小间距
func spaceGap(fontSize float64) float64 {
	if fontSize <= 0 {
		fontSize = fallbackFontSize
	}
	return fontSize * 0.3
}

func absFloat(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
