package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// QueryRecord 问答历史模型
// 记录每次问答的问题、回答和引用快照
type QueryRecord struct {
	ID         uint           `gorm:"primaryKey;autoIncrement"` // 主键ID
	DocumentID string         `gorm:"index"`                    // 限定检索的文档ID，空表示全库
	Question   string         `gorm:"type:text;not null"`       // 用户问题
	Answer     string         `gorm:"type:text;not null"`       // 回答文本
	Citations  datatypes.JSON `gorm:"type:json"`                // 引用表，编号到引用条目
	TopK       int            `gorm:"not null;default:0"`       // 检索的来源数量
	Degraded   bool           `gorm:"not null;default:false"`   // 是否为降级回答
	FromCache  bool           `gorm:"not null;default:false"`   // 是否命中缓存
	LatencyMs  int64          `gorm:"not null;default:0"`       // 回答耗时（毫秒）
	CreatedAt  time.Time      `gorm:"not null;index"`           // 创建时间
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (q *QueryRecord) BeforeCreate(tx *gorm.DB) (err error) {
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now()
	}
	return nil
}

// TableName 明确指定表名
func (QueryRecord) TableName() string {
	return "query_records"
}
