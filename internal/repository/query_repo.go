package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fyerfyer/pdf-citation-QA/internal/database"
	"github.com/fyerfyer/pdf-citation-QA/internal/models"
	"gorm.io/gorm"
)

// QueryRepository 问答历史仓储接口
// 负责问答记录的存储和检索
type QueryRepository interface {
	// Create 创建问答记录
	Create(record *models.QueryRecord) error

	// GetByID 根据ID获取问答记录
	GetByID(id uint) (*models.QueryRecord, error)

	// List 列出问答记录，支持分页和筛选
	List(offset, limit int, filters map[string]interface{}) ([]*models.QueryRecord, int64, error)

	// Recent 获取最近的问答记录
	Recent(limit int) ([]*models.QueryRecord, error)

	// CountByDocument 统计文档相关的问答数量
	CountByDocument(documentID string) (int64, error)

	// DeleteByDocument 删除文档相关的所有问答记录
	DeleteByDocument(documentID string) error

	// WithContext 创建带有上下文的仓储
	WithContext(ctx context.Context) QueryRepository
}

// queryRepo 问答历史仓储实现
type queryRepo struct {
	db *gorm.DB // 数据库连接
}

// NewQueryRepository 创建问答历史仓储实例
func NewQueryRepository() QueryRepository {
	return &queryRepo{
		db: database.MustDB(),
	}
}

// NewQueryRepositoryWithDB 使用指定的数据库连接创建问答历史仓储实例
func NewQueryRepositoryWithDB(db *gorm.DB) QueryRepository {
	if db == nil {
		db = database.MustDB()
	}
	return &queryRepo{
		db: db,
	}
}

// WithContext 创建带有上下文的仓储
func (r *queryRepo) WithContext(ctx context.Context) QueryRepository {
	return &queryRepo{
		db: r.db.WithContext(ctx),
	}
}

// Create 创建问答记录
func (r *queryRepo) Create(record *models.QueryRecord) error {
	if record.Question == "" {
		return errors.New("question cannot be empty")
	}

	// 确保时间字段被设置
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now()
	}

	return r.db.Create(record).Error
}

// GetByID 根据ID获取问答记录
func (r *queryRepo) GetByID(id uint) (*models.QueryRecord, error) {
	var record models.QueryRecord
	err := r.db.Where("id = ?", id).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("query record not found: %d", id)
		}
		return nil, err
	}
	return &record, nil
}

// List 列出问答记录，支持分页和筛选
func (r *queryRepo) List(offset, limit int, filters map[string]interface{}) ([]*models.QueryRecord, int64, error) {
	var records []*models.QueryRecord
	var total int64

	// 创建查询构造器
	query := r.db.Model(&models.QueryRecord{})

	// 应用筛选条件
	if filters != nil {
		// 文档过滤
		if documentID, ok := filters["document_id"].(string); ok && documentID != "" {
			query = query.Where("document_id = ?", documentID)
		}

		// 降级回答过滤
		if degraded, ok := filters["degraded"].(bool); ok {
			query = query.Where("degraded = ?", degraded)
		}

		// 缓存命中过滤
		if fromCache, ok := filters["from_cache"].(bool); ok {
			query = query.Where("from_cache = ?", fromCache)
		}

		// 时间范围过滤
		if startTime, ok := filters["start_time"].(time.Time); ok {
			query = query.Where("created_at >= ?", startTime)
		}

		if endTime, ok := filters["end_time"].(time.Time); ok {
			query = query.Where("created_at <= ?", endTime)
		}

		// 问题关键词搜索
		if question, ok := filters["question"].(string); ok && question != "" {
			query = query.Where("question LIKE ?", "%"+question+"%")
		}
	}

	// 获取总数
	err := query.Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	// 应用排序和分页
	err = query.Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&records).Error

	if err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// Recent 获取最近的问答记录
func (r *queryRepo) Recent(limit int) ([]*models.QueryRecord, error) {
	var records []*models.QueryRecord

	err := r.db.Order("created_at DESC").
		Limit(limit).
		Find(&records).Error

	if err != nil {
		return nil, err
	}

	return records, nil
}

// CountByDocument 统计文档相关的问答数量
func (r *queryRepo) CountByDocument(documentID string) (int64, error) {
	var count int64
	err := r.db.Model(&models.QueryRecord{}).
		Where("document_id = ?", documentID).
		Count(&count).Error

	return count, err
}

// DeleteByDocument 删除文档相关的所有问答记录
func (r *queryRepo) DeleteByDocument(documentID string) error {
	return r.db.Where("document_id = ?", documentID).
		Delete(&models.QueryRecord{}).Error
}
