package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// DocumentStatus 文档处理状态类型
type DocumentStatus string

const (
	// DocStatusUploaded 文档已上传，等待处理
	DocStatusUploaded DocumentStatus = "uploaded"
	// DocStatusProcessing 文档处理中
	DocStatusProcessing DocumentStatus = "processing"
	// DocStatusCompleted 文档处理完成，可以检索
	DocStatusCompleted DocumentStatus = "completed"
	// DocStatusFailed 文档处理失败
	DocStatusFailed DocumentStatus = "failed"
)

// ProcessStage 文档处理阶段
type ProcessStage string

const (
	// StageExtracting 定位文本提取阶段
	StageExtracting ProcessStage = "extracting"
	// StageSegmenting 分块阶段
	StageSegmenting ProcessStage = "segmenting"
	// StageVectorizing 向量化入库阶段
	StageVectorizing ProcessStage = "vectorizing"
	// StageCompleted 处理完成
	StageCompleted ProcessStage = "completed"
)

// Document 文档数据模型
// 记录文档元数据和提取管线的进度，向量和分块快照存放在向量库中
type Document struct {
	ID             string         `gorm:"primaryKey"`         // 文档ID，内容摘要生成
	FileName       string         `gorm:"not null"`           // 文件名
	FileType       string         `gorm:"not null"`           // 文件类型
	FilePath       string         `gorm:"not null"`           // 文件路径
	FileSize       int64          `gorm:"not null"`           // 文件大小（字节）
	Status         DocumentStatus `gorm:"not null;index"`     // 处理状态
	UploadedAt     time.Time      `gorm:"not null;index"`     // 上传时间
	ProcessedAt    *time.Time     `gorm:"index"`              // 处理完成时间
	UpdatedAt      time.Time      `gorm:"not null;index"`     // 更新时间
	Progress       int            `gorm:"not null;default:0"` // 处理进度（0-100）
	Error          string         `gorm:"type:text"`          // 错误信息
	PageCount      int            `gorm:"not null;default:0"` // 页数
	UnitCount      int            `gorm:"not null;default:0"` // 定位文本单元数量
	ChunkCount     int            `gorm:"not null;default:0"` // 分块数量
	Tags           string         `gorm:"type:varchar(255)"`  // 标签，逗号分隔
	Metadata       datatypes.JSON `gorm:"type:json"`          // 元数据，JSON格式
	CurrentStage   ProcessStage   `gorm:"size:20"`            // 当前处理阶段
	CurrentTaskID  string         `gorm:"size:50;index"`      // 当前关联的任务ID
	LastTaskStatus string         `gorm:"size:20"`            // 最后任务的状态
	RetryCount     int            `gorm:"default:0"`          // 重试次数
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (d *Document) BeforeCreate(tx *gorm.DB) (err error) {
	// 如果上传时间为零值，设置为当前时间
	if d.UploadedAt.IsZero() {
		d.UploadedAt = time.Now()
	}
	// 设置更新时间
	d.UpdatedAt = time.Now()
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (d *Document) BeforeUpdate(tx *gorm.DB) (err error) {
	d.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (Document) TableName() string {
	return "documents"
}

// DocumentChunk 文档分块数据模型
// 跟踪文档的分块概要，完整的单元快照和向量以分块ID关联存在向量库中
type DocumentChunk struct {
	ID         uint      `gorm:"primaryKey;autoIncrement"` // 主键ID
	DocumentID string    `gorm:"not null;index"`           // 所属文档ID
	ChunkID    string    `gorm:"not null;uniqueIndex"`     // 分块ID，与向量库记录一致
	Position   int       `gorm:"not null"`                 // 分块在文档内的序号
	Text       string    `gorm:"type:text;not null"`       // 分块文本内容
	UnitCount  int       `gorm:"not null;default:0"`       // 来源单元数量
	StartPage  int       `gorm:"not null;default:0"`       // 首个来源单元所在页
	EndPage    int       `gorm:"not null;default:0"`       // 最后来源单元所在页
	CreatedAt  time.Time `gorm:"not null"`                 // 创建时间
	UpdatedAt  time.Time `gorm:"not null"`                 // 更新时间
	TaskID     string    `gorm:"size:50;index"`            // 生成此分块的任务ID
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (dc *DocumentChunk) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	dc.CreatedAt = now
	dc.UpdatedAt = now
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (dc *DocumentChunk) BeforeUpdate(tx *gorm.DB) (err error) {
	dc.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (DocumentChunk) TableName() string {
	return "document_chunks"
}

// DocumentTask 文档任务关联模型
// 用于跟踪文档处理任务
type DocumentTask struct {
	ID         uint           `gorm:"primaryKey;autoIncrement"` // 主键ID
	DocumentID string         `gorm:"not null;index"`           // 文档ID
	TaskID     string         `gorm:"not null;uniqueIndex"`     // 任务ID
	TaskType   string         `gorm:"not null;size:50"`         // 任务类型
	Status     string         `gorm:"not null;size:20"`         // 任务状态
	CreatedAt  time.Time      `gorm:"not null"`                 // 创建时间
	UpdatedAt  time.Time      `gorm:"not null"`                 // 更新时间
	StartedAt  *time.Time     `gorm:""`                         // 开始时间
	EndedAt    *time.Time     `gorm:""`                         // 结束时间
	Error      string         `gorm:"type:text"`                // 错误信息
	Result     datatypes.JSON `gorm:"type:json"`                // 任务结果
	Retries    int            `gorm:"default:0"`                // 重试次数
	Progress   int            `gorm:"default:0"`                // 进度（0-100）
}

// BeforeCreate GORM的钩子函数，创建记录前自动设置时间
func (dt *DocumentTask) BeforeCreate(tx *gorm.DB) (err error) {
	now := time.Now()
	dt.CreatedAt = now
	dt.UpdatedAt = now
	return nil
}

// BeforeUpdate GORM的钩子函数，更新记录前自动设置更新时间
func (dt *DocumentTask) BeforeUpdate(tx *gorm.DB) (err error) {
	dt.UpdatedAt = time.Now()
	return nil
}

// TableName 明确指定表名
func (DocumentTask) TableName() string {
	return "document_tasks"
}
