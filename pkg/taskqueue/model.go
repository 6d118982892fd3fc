package taskqueue

import (
	"encoding/json"
	"time"
)

// TaskType 任务类型
type TaskType string

const (
	// TaskDocumentExtract 定位文本提取任务
	TaskDocumentExtract TaskType = "document_extract"
	// TaskDocumentSegment 溯源分块任务
	TaskDocumentSegment TaskType = "document_segment"
	// TaskDocumentVectorize 分块向量化入库任务
	TaskDocumentVectorize TaskType = "document_vectorize"
	// TaskDocumentProcess 文档处理完整流程任务（提取+分块+向量化）
	TaskDocumentProcess TaskType = "document_process"
)

// TaskStatus 任务状态
type TaskStatus string

const (
	// StatusPending 等待处理
	StatusPending TaskStatus = "pending"
	// StatusProcessing 处理中
	StatusProcessing TaskStatus = "processing"
	// StatusCompleted 已完成
	StatusCompleted TaskStatus = "completed"
	// StatusFailed 处理失败
	StatusFailed TaskStatus = "failed"
)

// Task 任务基础结构
type Task struct {
	ID          string          `json:"id"`           // 任务唯一标识符
	Type        TaskType        `json:"type"`         // 任务类型
	DocumentID  string          `json:"document_id"`  // 关联的文档ID
	Status      TaskStatus      `json:"status"`       // 任务状态
	Payload     json.RawMessage `json:"payload"`      // 任务载荷数据，不同任务类型对应不同结构
	Result      json.RawMessage `json:"result"`       // 任务结果数据，不同任务类型对应不同结构
	Error       string          `json:"error"`        // 错误信息（如果处理失败）
	CreatedAt   time.Time       `json:"created_at"`   // 创建时间
	UpdatedAt   time.Time       `json:"updated_at"`   // 更新时间
	StartedAt   *time.Time      `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time      `json:"completed_at"` // 完成时间
	Attempts    int             `json:"attempts"`     // 尝试次数
	MaxRetries  int             `json:"max_retries"`  // 最大重试次数
}

// DocumentExtractPayload 定位文本提取任务载荷
type DocumentExtractPayload struct {
	FilePath string `json:"file_path"` // 文件存储路径
	FileName string `json:"file_name"` // 文件名
	FileType string `json:"file_type"` // 文件类型
}

// DocumentExtractResult 定位文本提取任务结果
// 单元快照序列化为JSON字符串随结果传递，下一阶段还原
type DocumentExtractResult struct {
	DocumentID string `json:"document_id"` // 文档ID
	PageCount  int    `json:"page_count"`  // 文档页数
	UnitCount  int    `json:"unit_count"`  // 提取的定位文本单元数量
	UnitsJSON  string `json:"units_json"`  // 序列化的文本单元序列
	Error      string `json:"error"`       // 错误信息（如果有）
}

// DocumentSegmentPayload 溯源分块任务载荷
type DocumentSegmentPayload struct {
	DocumentID    string `json:"document_id"`     // 文档ID
	UnitsJSON     string `json:"units_json"`      // 序列化的文本单元序列
	MaxChunkChars int    `json:"max_chunk_chars"` // 分块的目标最大字符数
	OverlapChars  int    `json:"overlap_chars"`   // 相邻分块间的重叠字符数
}

// SegmentChunkInfo 分块概要信息
type SegmentChunkInfo struct {
	ChunkID   string `json:"chunk_id"`   // 分块ID
	Index     int    `json:"index"`      // 分块序号
	Text      string `json:"text"`       // 分块文本
	UnitsJSON string `json:"units_json"` // 该分块的来源单元快照
}

// DocumentSegmentResult 溯源分块任务结果
type DocumentSegmentResult struct {
	DocumentID string             `json:"document_id"` // 文档ID
	Chunks     []SegmentChunkInfo `json:"chunks"`      // 分块列表
	ChunkCount int                `json:"chunk_count"` // 分块数量
	Error      string             `json:"error"`       // 错误信息（如果有）
}

// DocumentVectorizePayload 分块向量化入库任务载荷
type DocumentVectorizePayload struct {
	DocumentID string             `json:"document_id"` // 文档ID
	FileName   string             `json:"file_name"`   // 文件名
	Chunks     []SegmentChunkInfo `json:"chunks"`      // 待向量化的分块
	Model      string             `json:"model"`       // 嵌入模型名称
}

// DocumentVectorizeResult 向量化入库任务结果
type DocumentVectorizeResult struct {
	DocumentID  string `json:"document_id"`  // 文档ID
	VectorCount int    `json:"vector_count"` // 入库的向量数量
	Dimension   int    `json:"dimension"`    // 向量维度
	Model       string `json:"model"`        // 使用的模型
	Error       string `json:"error"`        // 错误信息（如果有）
}

// DocumentProcessPayload 完整处理流程任务载荷
type DocumentProcessPayload struct {
	DocumentID    string            `json:"document_id"`     // 文档ID
	FilePath      string            `json:"file_path"`       // 文件存储路径
	FileName      string            `json:"file_name"`       // 文件名
	FileType      string            `json:"file_type"`       // 文件类型
	MaxChunkChars int               `json:"max_chunk_chars"` // 分块的目标最大字符数
	OverlapChars  int               `json:"overlap_chars"`   // 相邻分块间的重叠字符数
	Model         string            `json:"model"`           // 嵌入模型
	Metadata      map[string]string `json:"metadata"`        // 附加元数据
}

// DocumentProcessResult 完整处理流程结果
type DocumentProcessResult struct {
	DocumentID string `json:"document_id"` // 文档ID
	PageCount  int    `json:"page_count"`  // 文档页数
	UnitCount  int    `json:"unit_count"`  // 定位文本单元数量
	ChunkCount int    `json:"chunk_count"` // 分块数量
	Dimension  int    `json:"dimension"`   // 向量维度
	Error      string `json:"error"`       // 错误信息（如果有）
}

// TaskInfo 表示任务的元信息
// 用于传递给客户端的简化任务信息
type TaskInfo struct {
	ID          string     `json:"id"`           // 任务唯一标识符
	Type        TaskType   `json:"type"`         // 任务类型
	DocumentID  string     `json:"document_id"`  // 关联的文档ID
	Status      TaskStatus `json:"status"`       // 任务状态
	Error       string     `json:"error"`        // 错误信息
	CreatedAt   time.Time  `json:"created_at"`   // 创建时间
	StartedAt   *time.Time `json:"started_at"`   // 开始处理时间
	CompletedAt *time.Time `json:"completed_at"` // 完成时间
	Progress    float64    `json:"progress"`     // 处理进度（0-100）
}

// NewTaskInfo 从Task创建TaskInfo
func NewTaskInfo(task *Task) *TaskInfo {
	return &TaskInfo{
		ID:          task.ID,
		Type:        task.Type,
		DocumentID:  task.DocumentID,
		Status:      task.Status,
		Error:       task.Error,
		CreatedAt:   task.CreatedAt,
		StartedAt:   task.StartedAt,
		CompletedAt: task.CompletedAt,
		Progress:    getTaskProgress(task),
	}
}

// getTaskProgress 根据任务状态计算进度
func getTaskProgress(task *Task) float64 {
	switch task.Status {
	case StatusPending:
		return 0.0
	case StatusProcessing:
		// 处理中默认返回50%，细粒度进度记在文档记录上
		return 50.0
	case StatusCompleted:
		return 100.0
	case StatusFailed:
		// 失败任务的进度取决于失败时的处理阶段
		return 50.0
	default:
		return 0.0
	}
}

// ErrTaskNotFound 任务未找到错误
var ErrTaskNotFound = TaskError("task not found")

// ErrTaskTimeout 任务超时错误
var ErrTaskTimeout = TaskError("task timed out")

// ErrInvalidPayload 无效的任务载荷错误
var ErrInvalidPayload = TaskError("invalid task payload")

// TaskError 任务错误类型
type TaskError string

// Error 实现error接口
func (e TaskError) Error() string {
	return string(e)
}

// MarshalPayload 将任务载荷序列化为JSON
func MarshalPayload(payload interface{}) (json.RawMessage, error) {
	if payload == nil {
		return json.RawMessage("{}"), nil
	}
	return json.Marshal(payload)
}

// UnmarshalPayload 将JSON反序列化为任务载荷
func UnmarshalPayload(data json.RawMessage, v interface{}) error {
	if len(data) == 0 {
		return nil
	}
	return json.Unmarshal(data, v)
}
