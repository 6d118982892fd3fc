package model

import (
	"encoding/json"
	"time"

	"github.com/fyerfyer/pdf-citation-QA/internal/citation"
	"github.com/fyerfyer/pdf-citation-QA/internal/models"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// DocumentUploadResponse 文档上传响应
type DocumentUploadResponse struct {
	FileID   string `json:"file_id"`  // 文档ID，由内容摘要派生
	FileName string `json:"filename"` // 文件名
	Status   string `json:"status"`   // 文档状态：uploaded、processing、completed、failed
}

// DocumentStatusResponse 文档状态查询响应
type DocumentStatusResponse struct {
	FileID     string `json:"file_id"`              // 文档ID
	Status     string `json:"status"`               // 处理状态
	FileName   string `json:"filename"`             // 文件名
	Stage      string `json:"stage,omitempty"`      // 当前处理阶段
	Progress   int    `json:"progress"`             // 处理进度，0到100
	PageCount  int    `json:"page_count"`           // 页数
	UnitCount  int    `json:"unit_count"`           // 定位文本单元数量
	ChunkCount int    `json:"chunk_count"`          // 分块数量
	Error      string `json:"error,omitempty"`      // 错误信息（如果有）
	CreatedAt  string `json:"created_at"`           // 创建时间
	UpdatedAt  string `json:"updated_at"`           // 更新时间
	TaskID     string `json:"task_id,omitempty"`    // 最近的处理任务ID
	TaskStatus string `json:"task_status,omitempty"` // 最近的处理任务状态
}

// DocumentInfo 文档信息
type DocumentInfo struct {
	FileID     string    `json:"file_id"`     // 文档ID
	FileName   string    `json:"filename"`    // 文件名
	FileType   string    `json:"file_type"`   // 文件类型
	Status     string    `json:"status"`      // 状态
	Progress   int       `json:"progress"`    // 处理进度
	Tags       string    `json:"tags"`        // 标签
	UploadTime time.Time `json:"upload_time"` // 上传时间
	PageCount  int       `json:"page_count"`  // 页数
	ChunkCount int       `json:"chunk_count"` // 分块数量
}

// NewDocumentInfo 从文档记录构建文档信息
func NewDocumentInfo(doc *models.Document) DocumentInfo {
	return DocumentInfo{
		FileID:     doc.ID,
		FileName:   doc.FileName,
		FileType:   doc.FileType,
		Status:     string(doc.Status),
		Progress:   doc.Progress,
		Tags:       doc.Tags,
		UploadTime: doc.UploadedAt,
		PageCount:  doc.PageCount,
		ChunkCount: doc.ChunkCount,
	}
}

// DocumentListResponse 文档列表响应
type DocumentListResponse struct {
	Total     int64          `json:"total"`     // 总数量
	Page      int            `json:"page"`      // 当前页码
	PageSize  int            `json:"page_size"` // 每页大小
	Documents []DocumentInfo `json:"documents"` // 文档列表
}

// DocumentDeleteResponse 文档删除响应
type DocumentDeleteResponse struct {
	Success bool   `json:"success"` // 是否成功
	FileID  string `json:"file_id"` // 文档ID
}

// QAResponse 问答响应
// 引用表的键为引用编号，从"1"开始连续递增，顺序即检索排序
type QAResponse struct {
	Question  string                     `json:"question"`  // 用户问题
	Answer    string                     `json:"answer"`    // 生成的回答
	Citations map[string]*citation.Entry `json:"citations"` // 编号引用表
	Degraded  bool                       `json:"degraded"`  // 是否为降级回答
}

// QAHistoryItem 问答历史条目
type QAHistoryItem struct {
	ID        uint            `json:"id"`                  // 记录ID
	FileID    string          `json:"file_id,omitempty"`   // 文档ID，全库问答时为空
	Question  string          `json:"question"`            // 问题
	Answer    string          `json:"answer"`              // 回答
	Citations json.RawMessage `json:"citations,omitempty"` // 当时的引用表快照
	Degraded  bool            `json:"degraded"`            // 是否为降级回答
	FromCache bool            `json:"from_cache"`          // 是否命中缓存
	CreatedAt time.Time       `json:"created_at"`          // 提问时间
}

// QAHistoryResponse 问答历史响应
type QAHistoryResponse struct {
	Total    int64           `json:"total"`     // 总记录数
	Page     int             `json:"page"`      // 当前页码
	PageSize int             `json:"page_size"` // 每页大小
	Items    []QAHistoryItem `json:"items"`     // 历史记录
}

// PaginationResponse 分页响应信息
type PaginationResponse struct {
	Total    int64 `json:"total"`     // 总记录数
	Page     int   `json:"page"`      // 当前页码
	PageSize int   `json:"page_size"` // 每页大小
}
