package document

import (
	"encoding/json"
	"fmt"
	"math"
)

// BoundingBox 文本块在页面上的精确位置
// 坐标系以页面左上角为原点，单位为PDF点（1/72英寸）
type BoundingBox struct {
	X0     float64 `json:"x0"`     // 左边界
	Y0     float64 `json:"y0"`     // 上边界
	X1     float64 `json:"x1"`     // 右边界
	Y1     float64 `json:"y1"`     // 下边界
	Width  float64 `json:"width"`  // 宽度，等于X1-X0
	Height float64 `json:"height"` // 高度，等于Y1-Y0
}

// NewBoundingBox 创建边界框并计算宽高
// 所有坐标保留两位小数，面积为零的退化框是合法的
func NewBoundingBox(x0, y0, x1, y1 float64) BoundingBox {
	return BoundingBox{
		X0:     round2(x0),
		Y0:     round2(y0),
		X1:     round2(x1),
		Y1:     round2(y1),
		Width:  round2(x1 - x0),
		Height: round2(y1 - y0),
	}
}

// TextUnit 定位文本单元
// 提取器输出的最小文本块，记录文本在页面上的精确位置
// 分块时会整体复制到Chunk中，保证每个分块都能独立还原出高亮区域
type TextUnit struct {
	Text       string      `json:"text"`         // 文本内容，非空
	Page       int         `json:"page"`         // 页码，从0开始
	Box        BoundingBox `json:"bounding_box"` // 文本块边界
	Index      int         `json:"index"`        // 全文档内的阅读顺序
	PageWidth  float64     `json:"page_width"`   // 所在页面宽度
	PageHeight float64     `json:"page_height"`  // 所在页面高度
}

// EncodeUnits 将文本单元序列化为JSON字符串
// 向量库的元数据只支持扁平键值，单元快照以字符串形式嵌入其中
func EncodeUnits(units []TextUnit) (string, error) {
	data, err := json.Marshal(units)
	if err != nil {
		return "", fmt.Errorf("failed to encode text units: %w", err)
	}
	return string(data), nil
}

// DecodeUnits 从JSON字符串还原文本单元序列
func DecodeUnits(data string) ([]TextUnit, error) {
	if data == "" {
		return nil, fmt.Errorf("empty text unit payload")
	}
	var units []TextUnit
	if err := json.Unmarshal([]byte(data), &units); err != nil {
		return nil, fmt.Errorf("failed to decode text units: %w", err)
	}
	return units, nil
}

// round2 保留两位小数
func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
