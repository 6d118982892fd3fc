package repository

import "github.com/fyerfyer/pdf-citation-QA/internal/models"

// DocumentRepository 文档仓储接口
// 负责文档元数据和分块概要的存储和检索
type DocumentRepository interface {
	// Create 创建文档记录
	Create(doc *models.Document) error

	// Update 更新文档记录
	Update(doc *models.Document) error

	// GetByID 根据ID获取文档
	GetByID(id string) (*models.Document, error)

	// List 列出文档列表，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error)

	// Delete 删除文档
	Delete(id string) error

	// UpdateStatus 更新文档状态
	UpdateStatus(id string, status models.DocumentStatus, errorMsg string) error

	// UpdateProgress 更新文档处理进度
	UpdateProgress(id string, progress int) error

	// UpdateCounts 更新文档的页数、单元数和分块数
	UpdateCounts(id string, pageCount, unitCount, chunkCount int) error

	// SaveChunk 保存文档分块概要
	SaveChunk(chunk *models.DocumentChunk) error

	// SaveChunks 批量保存文档分块概要
	SaveChunks(chunks []*models.DocumentChunk) error

	// ReplaceChunks 原子替换文档的全部分块概要
	ReplaceChunks(docID string, chunks []*models.DocumentChunk) error

	// GetChunks 获取文档的所有分块概要
	GetChunks(docID string) ([]*models.DocumentChunk, error)

	// CountChunks 统计文档的分块数量
	CountChunks(docID string) (int, error)

	// DeleteChunks 删除文档的所有分块概要
	DeleteChunks(docID string) error
}
