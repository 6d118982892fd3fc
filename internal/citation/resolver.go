package citation

import (
	"math"
	"strconv"

	"github.com/fyerfyer/pdf-citation-QA/internal/document"
)

// Resolver 引用解析器
// 将排好序的检索结果映射为编号引用表，编号从"1"开始连续递增
type Resolver struct {
	previewChars int // 来源文本预览的最大字符数
}

// ResolverOption 引用解析器配置选项
type ResolverOption func(*Resolver)

// WithPreviewChars 设置来源文本预览长度
func WithPreviewChars(n int) ResolverOption {
	return func(r *Resolver) {
		if n > 0 {
			r.previewChars = n
		}
	}
}

// NewResolver 创建引用解析器
func NewResolver(opts ...ResolverOption) *Resolver {
	resolver := &Resolver{
		previewChars: 300,
	}

	for _, opt := range opts {
		opt(resolver)
	}

	return resolver
}

// Resolve 根据检索结果构建引用表
//
// 引用编号等于来源在输入中的1开始的位置，输入顺序就是检索端的相关度排序，
// 这里只做映射不做排序。主页码和页面尺寸取最后一个来源单元的值：
// 分块跨页时以内容收尾的页面为准，这是有意的取舍而非偶然。
// 边界框按单元快照顺序全部列出，重叠单元在相邻分块中各自出现一次。
// 空输入返回空表，调用方应将"没有引用"视为正常结果而不是错误。
func (r *Resolver) Resolve(sources []RankedSource) map[string]*Entry {
	entries := make(map[string]*Entry, len(sources))

	for i, source := range sources {
		rank := strconv.Itoa(i + 1)

		entry := &Entry{
			Text:          previewText(source.Text, r.previewChars),
			BoundingBoxes: make([]document.BoundingBox, 0, len(source.Units)),
			Score:         round3(clampScore(source.Score)),
		}

		for _, unit := range source.Units {
			entry.BoundingBoxes = append(entry.BoundingBoxes, unit.Box)
			entry.Page = unit.Page
			entry.PageWidth = unit.PageWidth
			entry.PageHeight = unit.PageHeight
		}

		entries[rank] = entry
	}

	return entries
}

// previewText 截取文本开头的n个字符作为预览
func previewText(text string, n int) string {
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return string(runes[:n])
}

// clampScore 将分数裁剪到[0,1]区间
func clampScore(score float32) float64 {
	v := float64(score)
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// round3 保留三位小数
func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
