package document

import (
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeUnit(text string, page, index int) TextUnit {
	return TextUnit{
		Text:       text,
		Page:       page,
		Box:        NewBoundingBox(0, float64(index*20), 100, float64(index*20+20)),
		Index:      index,
		PageWidth:  defaultPageWidth,
		PageHeight: defaultPageHeight,
	}
}

func TestSegment_OverlapCarryOver(t *testing.T) {
	body := strings.TrimSpace(strings.Repeat("Body B ", 40))
	units := []TextUnit{
		makeUnit("Intro text A", 0, 0),
		makeUnit(body, 0, 1),
		makeUnit("Conclusion C", 1, 2),
	}

	segmenter := NewSegmenter(SegmenterConfig{MaxChunkChars: 300, OverlapChars: 20})
	chunks := segmenter.Segment("doc1", units)

	require.Len(t, chunks, 2)
	assert.Equal(t, "doc1_chunk_0", chunks[0].ID)
	assert.Equal(t, "doc1_chunk_1", chunks[1].ID)

	// 第一块容纳前两个单元，正文单元把第三个单元挤到了下一块
	require.Len(t, chunks[0].Units, 2)
	assert.Equal(t, 0, chunks[0].Units[0].Index)
	assert.Equal(t, 1, chunks[0].Units[1].Index)
	assert.True(t, strings.HasPrefix(chunks[0].Text, "Intro text A"))

	// 新块以上一块最后单元的末尾重叠字符开头，该单元快照同时出现在两块中
	bodyRunes := []rune(body)
	overlap := string(bodyRunes[len(bodyRunes)-20:])
	assert.True(t, strings.HasPrefix(chunks[1].Text, overlap))
	require.Len(t, chunks[1].Units, 2)
	assert.Equal(t, 1, chunks[1].Units[0].Index)
	assert.Equal(t, 2, chunks[1].Units[1].Index)

	// 第二块以第1页的单元收尾
	last := chunks[1].Units[len(chunks[1].Units)-1]
	assert.Equal(t, 1, last.Page)
	assert.Contains(t, chunks[1].Text, "Conclusion C")
}

func TestSegment_ProvenanceComplete(t *testing.T) {
	var units []TextUnit
	for i := 0; i < 12; i++ {
		units = append(units, makeUnit(fmt.Sprintf("Paragraph %d with some filler text to occupy space.", i), i/4, i))
	}

	segmenter := NewSegmenter(SegmenterConfig{MaxChunkChars: 120, OverlapChars: 15})
	chunks := segmenter.Segment("doc1", units)
	require.NotEmpty(t, chunks)

	// 每个输入单元都必须出现在至少一个分块的快照中
	seen := make(map[int]bool)
	for _, chunk := range chunks {
		require.NotEmpty(t, chunk.Units)
		for _, unit := range chunk.Units {
			seen[unit.Index] = true
		}
	}
	for _, unit := range units {
		assert.True(t, seen[unit.Index], "unit %d missing from all chunks", unit.Index)
	}

	// 相邻分块通过同一个单元衔接
	for i := 1; i < len(chunks); i++ {
		prevLast := chunks[i-1].Units[len(chunks[i-1].Units)-1]
		assert.Equal(t, prevLast.Index, chunks[i].Units[0].Index)
	}

	// 分块序号连续且ID与序号一致
	for i, chunk := range chunks {
		assert.Equal(t, i, chunk.Index)
		assert.Equal(t, fmt.Sprintf("doc1_chunk_%d", i), chunk.ID)
	}
}

func TestSegment_NeverSplitsUnit(t *testing.T) {
	oversized := strings.Repeat("超长单元内容", 50)
	units := []TextUnit{makeUnit(oversized, 0, 0)}

	segmenter := NewSegmenter(SegmenterConfig{MaxChunkChars: 100, OverlapChars: 10})
	chunks := segmenter.Segment("doc1", units)

	require.Len(t, chunks, 1)
	assert.Equal(t, oversized, chunks[0].Text)
	assert.Greater(t, utf8.RuneCountInString(chunks[0].Text), 100)
	require.Len(t, chunks[0].Units, 1)
}

func TestSegment_ShortUnitOverlap(t *testing.T) {
	// 末尾单元比重叠长度短时，整个单元文本作为重叠承接
	units := []TextUnit{
		makeUnit(strings.Repeat("a", 90), 0, 0),
		makeUnit("tail", 0, 1),
		makeUnit(strings.Repeat("b", 90), 0, 2),
	}

	segmenter := NewSegmenter(SegmenterConfig{MaxChunkChars: 100, OverlapChars: 30})
	chunks := segmenter.Segment("doc1", units)

	require.GreaterOrEqual(t, len(chunks), 2)
	var carrier *Chunk
	for i := range chunks {
		if chunks[i].Units[0].Index == 1 && len(chunks[i].Units) > 1 {
			carrier = &chunks[i]
		}
	}
	require.NotNil(t, carrier)
	assert.True(t, strings.HasPrefix(carrier.Text, "tail"))
}

func TestSegment_EmptyInput(t *testing.T) {
	segmenter := NewSegmenter(DefaultSegmenterConfig())

	assert.Empty(t, segmenter.Segment("doc1", nil))
	assert.Empty(t, segmenter.Segment("doc1", []TextUnit{}))
}

func TestSegment_Idempotent(t *testing.T) {
	var units []TextUnit
	for i := 0; i < 8; i++ {
		units = append(units, makeUnit(fmt.Sprintf("第%d段，包含一些用于占位的正文内容。", i), 0, i))
	}

	segmenter := NewSegmenter(SegmenterConfig{MaxChunkChars: 60, OverlapChars: 10})
	first := segmenter.Segment("doc1", units)
	second := segmenter.Segment("doc1", units)

	assert.Equal(t, first, second)
}

func TestSegment_ConfigDefaults(t *testing.T) {
	segmenter := NewSegmenter(SegmenterConfig{MaxChunkChars: 0, OverlapChars: -5})

	cfg := segmenter.Config()
	assert.Equal(t, DefaultSegmenterConfig().MaxChunkChars, cfg.MaxChunkChars)
	assert.Equal(t, 0, cfg.OverlapChars)
}

func TestChunkMetadata(t *testing.T) {
	units := []TextUnit{
		makeUnit("First paragraph on page two.", 2, 0),
		makeUnit("Second paragraph crossing over.", 3, 1),
	}

	segmenter := NewSegmenter(DefaultSegmenterConfig())
	chunks := segmenter.Segment("doc1", units)
	require.Len(t, chunks, 1)

	metadata, err := chunks[0].Metadata()
	require.NoError(t, err)

	assert.Equal(t, "doc1_chunk_0", metadata["chunk_id"])
	assert.Equal(t, "doc1", metadata["file_id"])
	assert.Equal(t, 2, metadata["primary_page"])

	preview, ok := metadata["text_preview"].(string)
	require.True(t, ok)
	assert.True(t, strings.HasPrefix(chunks[0].Text, preview))
	assert.LessOrEqual(t, utf8.RuneCountInString(preview), chunkPreviewChars)

	// 单元快照经序列化后仍能完整还原
	encoded, ok := metadata["source_units"].(string)
	require.True(t, ok)
	decoded, err := DecodeUnits(encoded)
	require.NoError(t, err)
	assert.Equal(t, chunks[0].Units, decoded)
}
