package services

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/pdf-citation-QA/internal/cache"
	"github.com/fyerfyer/pdf-citation-QA/internal/citation"
	"github.com/fyerfyer/pdf-citation-QA/internal/document"
	"github.com/fyerfyer/pdf-citation-QA/internal/llm"
	"github.com/fyerfyer/pdf-citation-QA/internal/models"
	"github.com/fyerfyer/pdf-citation-QA/internal/repository"
	"github.com/fyerfyer/pdf-citation-QA/internal/vectordb"
)

// qaTestEnv 问答服务测试环境
type qaTestEnv struct {
	svc      *QAService
	vdb      vectordb.Repository
	docRepo  repository.DocumentRepository
	embedder *fakeEmbedder
	llmStub  *stubLLM
}

const testAnswerText = "根据文档内容，向量检索按相似度排序返回分块[1]。"

// newTestQAService 搭建完整的问答服务
// 嵌入和大模型客户端用预设结果的桩实现，向量库和缓存都在内存中
func newTestQAService(t *testing.T) (*qaTestEnv, func()) {
	db, dbCleanup := setupTestDB(t)

	vdb, err := vectordb.NewRepository(vectordb.Config{Type: "memory", Dimension: testVectorDim})
	require.NoError(t, err, "Failed to create vector repository")

	qaCache, err := cache.NewCache(cache.DefaultConfig())
	require.NoError(t, err, "Failed to create cache")

	embedder := &fakeEmbedder{vectors: map[string][]float32{}}
	llmStub := &stubLLM{text: testAnswerText}

	rag := llm.NewRAG(llmStub, citation.NewResolver())

	docRepo := repository.NewDocumentRepositoryWithDB(db)
	queryRepo := repository.NewQueryRepositoryWithDB(db)

	svc := NewQAService(embedder, vdb, rag,
		WithSearchTopK(3),
		WithQACache(qaCache),
		WithQACacheTTL(time.Minute),
		WithDocRepository(docRepo),
		WithQueryRepository(queryRepo),
		WithQALogger(quietLogger()),
	)

	env := &qaTestEnv{
		svc:      svc,
		vdb:      vdb,
		docRepo:  docRepo,
		embedder: embedder,
		llmStub:  llmStub,
	}
	return env, dbCleanup
}

// seedCompletedDocument 写入一条已完成处理的文档记录
func seedCompletedDocument(t *testing.T, repo repository.DocumentRepository, docID string) {
	doc := &models.Document{
		ID:       docID,
		FileName: docID + ".pdf",
		FileType: "pdf",
		Status:   models.DocStatusCompleted,
		Progress: 100,
	}
	require.NoError(t, repo.Create(doc))
}

// seedChunkRecord 写入一条带单元快照的向量记录
func seedChunkRecord(t *testing.T, env *qaTestEnv, docID string, index int, text string, page int, vector []float32) {
	units := []document.TextUnit{
		{
			Text:       text,
			Page:       page,
			Box:        document.NewBoundingBox(72, 100, 320, 140),
			Index:      index,
			PageWidth:  595.28,
			PageHeight: 841.89,
		},
	}
	encoded, err := document.EncodeUnits(units)
	require.NoError(t, err)

	chunkID := fmt.Sprintf("%s_chunk_%d", docID, index)
	err = env.vdb.Add(vectordb.ChunkRecord{
		ID:         chunkID,
		FileID:     docID,
		FileName:   docID + ".pdf",
		ChunkIndex: index,
		Text:       text,
		Vector:     vector,
		CreatedAt:  time.Now(),
		Metadata: map[string]interface{}{
			"chunk_id":     chunkID,
			"file_id":      docID,
			"source_units": encoded,
		},
	})
	require.NoError(t, err)
}

func TestQAService_AnswerWithCitations(t *testing.T) {
	env, cleanup := newTestQAService(t)
	defer cleanup()

	ctx := context.Background()
	const docID = "doc000000001"
	seedCompletedDocument(t, env.docRepo, docID)

	question := "向量检索如何排序？"
	env.embedder.vectors[question] = []float32{1, 0, 0, 0}
	seedChunkRecord(t, env, docID, 0, "向量检索通过余弦相似度排序返回最相关的分块。", 2, []float32{1, 0, 0, 0})
	seedChunkRecord(t, env, docID, 1, "引用编号与检索排序保持一致，从1开始连续编号。", 5, []float32{0.6, 0.8, 0, 0})

	result, err := env.svc.AnswerWithFile(ctx, docID, question)
	require.NoError(t, err)

	assert.Equal(t, testAnswerText, result.Answer)
	assert.False(t, result.Degraded)

	// 引用编号从"1"开始连续，顺序即检索排序
	require.Len(t, result.Citations, 2)
	first := result.Citations["1"]
	require.NotNil(t, first)
	assert.Contains(t, first.Text, "余弦相似度")
	assert.Equal(t, 2, first.Page)
	assert.Equal(t, 595.28, first.PageWidth)
	require.Len(t, first.BoundingBoxes, 1)

	second := result.Citations["2"]
	require.NotNil(t, second)
	assert.Equal(t, 5, second.Page)

	// 问答历史已落库
	records, total, err := env.svc.GetHistory(ctx, docID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, records, 1)
	assert.Equal(t, question, records[0].Question)
	assert.False(t, records[0].FromCache)
	assert.False(t, records[0].Degraded)
}

func TestQAService_EmptyQuestion(t *testing.T) {
	env, cleanup := newTestQAService(t)
	defer cleanup()

	_, err := env.svc.Answer(context.Background(), "   ")
	assert.Error(t, err)
	assert.Zero(t, atomic.LoadInt32(&env.embedder.embedCalls))
}

func TestQAService_DocumentNotFound(t *testing.T) {
	env, cleanup := newTestQAService(t)
	defer cleanup()

	_, err := env.svc.AnswerWithFile(context.Background(), "missing-doc", "有内容吗？")
	assert.ErrorIs(t, err, models.ErrDocumentNotFound)
}

func TestQAService_DocumentNotReady(t *testing.T) {
	env, cleanup := newTestQAService(t)
	defer cleanup()

	doc := &models.Document{
		ID:       "pending000001",
		FileName: "pending.pdf",
		Status:   models.DocStatusProcessing,
	}
	require.NoError(t, env.docRepo.Create(doc))

	_, err := env.svc.AnswerWithFile(context.Background(), doc.ID, "处理完了吗？")
	assert.ErrorIs(t, err, models.ErrDocumentNotReady)
}

func TestQAService_NoResults(t *testing.T) {
	env, cleanup := newTestQAService(t)
	defer cleanup()

	// 向量库为空，检索不到任何内容
	result, err := env.svc.Answer(context.Background(), "文档里有什么？")
	require.NoError(t, err)

	assert.Equal(t, llm.NotFoundAnswer, result.Answer)
	assert.NotNil(t, result.Citations)
	assert.Empty(t, result.Citations)
	assert.False(t, result.Degraded)

	// 未找到回答不经过大模型
	assert.Zero(t, atomic.LoadInt32(&env.llmStub.chatCalls))
}

func TestQAService_CacheHit(t *testing.T) {
	env, cleanup := newTestQAService(t)
	defer cleanup()

	ctx := context.Background()
	const docID = "doc000000002"
	seedCompletedDocument(t, env.docRepo, docID)

	question := "分块怎么携带来源？"
	env.embedder.vectors[question] = []float32{0, 1, 0, 0}
	seedChunkRecord(t, env, docID, 0, "分块携带来源单元快照，可还原高亮区域。", 0, []float32{0, 1, 0, 0})

	first, err := env.svc.AnswerWithFile(ctx, docID, question)
	require.NoError(t, err)

	second, err := env.svc.AnswerWithFile(ctx, docID, question)
	require.NoError(t, err)

	// 第二次命中缓存，不再向量化也不再调用大模型
	assert.Equal(t, first.Answer, second.Answer)
	assert.Equal(t, first.Citations["1"].Page, second.Citations["1"].Page)
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.embedder.embedCalls))
	assert.Equal(t, int32(1), atomic.LoadInt32(&env.llmStub.chatCalls))

	// 缓存命中也计入历史
	records, total, err := env.svc.GetHistory(ctx, docID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	fromCache := 0
	for _, record := range records {
		if record.FromCache {
			fromCache++
		}
	}
	assert.Equal(t, 1, fromCache)
}

func TestQAService_DegradedAnswer(t *testing.T) {
	env, cleanup := newTestQAService(t)
	defer cleanup()

	ctx := context.Background()
	const docID = "doc000000003"
	seedCompletedDocument(t, env.docRepo, docID)

	question := "生成失败会怎样？"
	env.embedder.vectors[question] = []float32{0, 0, 1, 0}
	seedChunkRecord(t, env, docID, 0, "生成失败时返回降级回答，引用表保持完整。", 3, []float32{0, 0, 1, 0})

	env.llmStub.err = assert.AnError

	result, err := env.svc.AnswerWithFile(ctx, docID, question)
	require.NoError(t, err, "降级结果应正常返回给调用方")

	assert.True(t, result.Degraded)
	assert.Equal(t, llm.DegradedAnswer, result.Answer)
	require.Len(t, result.Citations, 1, "降级时引用表应保持完整")
	assert.Equal(t, 3, result.Citations["1"].Page)

	// 历史记录标记了降级
	records, _, err := env.svc.GetHistory(ctx, docID, 0, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].Degraded)

	// 降级结果不缓存，恢复后重问可以得到正常回答
	env.llmStub.err = nil
	retry, err := env.svc.AnswerWithFile(ctx, docID, question)
	require.NoError(t, err)
	assert.False(t, retry.Degraded)
	assert.Equal(t, testAnswerText, retry.Answer)
}

func TestQAService_NoUnitsDegradesToNoHighlight(t *testing.T) {
	env, cleanup := newTestQAService(t)
	defer cleanup()

	ctx := context.Background()
	question := "没有快照的分块呢？"
	env.embedder.vectors[question] = []float32{0, 0, 0, 1}

	// 元数据缺失单元快照的记录，引用退化为无高亮
	err := env.vdb.Add(vectordb.ChunkRecord{
		ID:        "legacy_chunk_0",
		FileID:    "legacy000001",
		Text:      "旧版本入库的分块没有单元快照。",
		Vector:    []float32{0, 0, 0, 1},
		CreatedAt: time.Now(),
		Metadata:  map[string]interface{}{},
	})
	require.NoError(t, err)

	result, err := env.svc.Answer(ctx, question)
	require.NoError(t, err)

	require.Len(t, result.Citations, 1)
	entry := result.Citations["1"]
	assert.Empty(t, entry.BoundingBoxes, "没有单元快照时边界框为空")
	assert.Contains(t, entry.Text, "旧版本")
}

func TestQAService_ClearHistory(t *testing.T) {
	env, cleanup := newTestQAService(t)
	defer cleanup()

	ctx := context.Background()
	const docID = "doc000000004"
	seedCompletedDocument(t, env.docRepo, docID)

	question := "清理历史？"
	env.embedder.vectors[question] = []float32{1, 0, 0, 0}
	seedChunkRecord(t, env, docID, 0, "历史记录可按文档清理。", 1, []float32{1, 0, 0, 0})

	_, err := env.svc.AnswerWithFile(ctx, docID, question)
	require.NoError(t, err)

	require.NoError(t, env.svc.ClearHistory(ctx, docID))

	_, total, err := env.svc.GetHistory(ctx, docID, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
}
