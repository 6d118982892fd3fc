package repository

import (
	"testing"
	"time"

	"github.com/fyerfyer/pdf-citation-QA/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

func TestQueryRepository_Create(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewQueryRepository()

	// 创建测试记录
	record := &models.QueryRecord{
		DocumentID: "a1b2c3d4e5f6",
		Question:   "向量检索是怎么排序的？",
		Answer:     "向量检索通过余弦相似度排序[1]。",
		Citations:  datatypes.JSON([]byte(`{"1":{"text":"preview","page":2,"score":0.87}}`)),
		TopK:       2,
		LatencyMs:  135,
	}

	err := repo.Create(record)
	assert.NoError(t, err, "Query record creation should succeed")
	assert.NotZero(t, record.ID, "Record ID should be assigned")

	// 验证记录已创建
	saved, err := repo.GetByID(record.ID)
	assert.NoError(t, err, "Should be able to retrieve created record")
	assert.Equal(t, record.Question, saved.Question, "Question should match")
	assert.Equal(t, record.Answer, saved.Answer, "Answer should match")
	assert.Equal(t, record.DocumentID, saved.DocumentID, "Document ID should match")
	assert.JSONEq(t, string(record.Citations), string(saved.Citations), "Citations should roundtrip")

	// 空问题应被拒绝
	err = repo.Create(&models.QueryRecord{Answer: "no question"})
	assert.Error(t, err, "Empty question should be rejected")
}

func TestQueryRepository_List(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewQueryRepository()

	// 创建测试记录
	records := []*models.QueryRecord{
		{
			DocumentID: "doc-1",
			Question:   "第一个问题",
			Answer:     "第一个回答",
			CreatedAt:  time.Now().Add(-2 * time.Hour),
		},
		{
			DocumentID: "doc-1",
			Question:   "第二个问题",
			Answer:     "抱歉，回答生成失败，请稍后重试。",
			Degraded:   true,
			CreatedAt:  time.Now().Add(-1 * time.Hour),
		},
		{
			DocumentID: "doc-2",
			Question:   "第三个问题",
			Answer:     "第三个回答",
			FromCache:  true,
			CreatedAt:  time.Now(),
		},
	}

	for _, record := range records {
		require.NoError(t, repo.Create(record))
	}

	// 测试无过滤器列表
	result, total, err := repo.List(0, 10, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), total, "Total count should be 3")
	assert.Len(t, result, 3, "Should return 3 records")
	assert.Equal(t, "第三个问题", result[0].Question, "Should be ordered by newest first")

	// 测试文档过滤器
	result, total, err = repo.List(0, 10, map[string]interface{}{"document_id": "doc-1"})
	assert.NoError(t, err)
	assert.Equal(t, int64(2), total, "Total count should be 2 for doc-1")

	// 测试降级过滤器
	result, total, err = repo.List(0, 10, map[string]interface{}{"degraded": true})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), total, "Total count should be 1 degraded record")
	assert.True(t, result[0].Degraded, "Returned record should be degraded")

	// 测试缓存命中过滤器
	result, total, err = repo.List(0, 10, map[string]interface{}{"from_cache": true})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), total, "Total count should be 1 cached record")

	// 测试问题关键词过滤器
	result, total, err = repo.List(0, 10, map[string]interface{}{"question": "第二个"})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), total, "Total count should be 1 matching record")

	// 测试分页
	result, total, err = repo.List(1, 2, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), total, "Total count should still be 3")
	assert.Len(t, result, 2, "Should return 2 records with offset 1")
}

func TestQueryRepository_Recent(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewQueryRepository()

	for i := 0; i < 5; i++ {
		record := &models.QueryRecord{
			Question:  "问题",
			Answer:    "回答",
			CreatedAt: time.Now().Add(time.Duration(i) * time.Minute),
		}
		require.NoError(t, repo.Create(record))
	}

	recent, err := repo.Recent(3)
	assert.NoError(t, err)
	assert.Len(t, recent, 3, "Should return 3 most recent records")
}

func TestQueryRepository_DeleteByDocument(t *testing.T) {
	_, cleanup := setupTestDB(t)
	defer cleanup()

	repo := NewQueryRepository()

	require.NoError(t, repo.Create(&models.QueryRecord{DocumentID: "doc-1", Question: "q1", Answer: "a1"}))
	require.NoError(t, repo.Create(&models.QueryRecord{DocumentID: "doc-1", Question: "q2", Answer: "a2"}))
	require.NoError(t, repo.Create(&models.QueryRecord{DocumentID: "doc-2", Question: "q3", Answer: "a3"}))

	count, err := repo.CountByDocument("doc-1")
	assert.NoError(t, err)
	assert.Equal(t, int64(2), count, "Should count 2 records for doc-1")

	err = repo.DeleteByDocument("doc-1")
	assert.NoError(t, err, "DeleteByDocument should succeed")

	count, err = repo.CountByDocument("doc-1")
	assert.NoError(t, err)
	assert.Equal(t, int64(0), count, "Records for doc-1 should be deleted")

	count, err = repo.CountByDocument("doc-2")
	assert.NoError(t, err)
	assert.Equal(t, int64(1), count, "Records for other documents should remain")
}
