package citation

import (
	"github.com/fyerfyer/pdf-citation-QA/internal/document"
)

// RankedSource 按相关度排序的检索结果
// 顺序由检索端给定，序号即引用编号，解析过程绝不重新排序
type RankedSource struct {
	ChunkID string              // 分块ID
	Text    string              // 分块完整文本
	Units   []document.TextUnit // 分块的来源单元快照，已从元数据还原
	Score   float32             // 检索端给出的相似度分数
}

// Entry 引用条目
// 每次问答按检索结果即时重建，将引用编号还原为文档中的高亮区域
type Entry struct {
	Text          string                 `json:"text"`           // 来源文本预览
	Page          int                    `json:"page"`           // 主页码，取最后一个来源单元所在页
	BoundingBoxes []document.BoundingBox `json:"bounding_boxes"` // 全部来源单元的边界框，按快照顺序
	PageWidth     float64                `json:"page_width"`     // 主页面宽度
	PageHeight    float64                `json:"page_height"`    // 主页面高度
	Score         float64                `json:"score"`          // 相似度分数，裁剪到[0,1]并保留三位小数
}
