package services

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fyerfyer/pdf-citation-QA/internal/document"
	"github.com/fyerfyer/pdf-citation-QA/internal/embedding"
	"github.com/fyerfyer/pdf-citation-QA/internal/models"
	"github.com/fyerfyer/pdf-citation-QA/internal/repository"
	"github.com/fyerfyer/pdf-citation-QA/internal/vectordb"
	"github.com/fyerfyer/pdf-citation-QA/pkg/storage"
	"github.com/fyerfyer/pdf-citation-QA/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// DocumentService 文档服务
// 负责协调文档的上传、定位提取、溯源分块、向量化和入库
type DocumentService struct {
	storage       storage.Storage               // 原始文件存储
	segmenter     *document.Segmenter           // 溯源分块器
	embedder      embedding.Client              // 嵌入模型客户端
	vectorDB      vectordb.Repository           // 向量数据库
	repo          repository.DocumentRepository // 文档元数据存储
	statusManager *DocumentStatusManager        // 文档状态管理器
	taskQueue     taskqueue.Queue               // 任务队列
	asyncEnabled  bool                          // 是否启用异步处理
	batchSize     int                           // 嵌入批处理大小
	maxWorkers    int                           // 嵌入并发工作协程数
	timeout       time.Duration                 // 处理超时时间
	logger        *logrus.Logger                // 日志记录器

	// 同一文档的处理串行执行，重复上传不会交错写入向量库
	docLocks sync.Map
}

// DocumentOption 文档服务配置选项
type DocumentOption func(*DocumentService)

// NewDocumentService 创建一个新的文档服务
func NewDocumentService(
	storage storage.Storage,
	segmenter *document.Segmenter,
	embedder embedding.Client,
	vectorDB vectordb.Repository,
	opts ...DocumentOption,
) *DocumentService {
	// 创建服务实例
	srv := &DocumentService{
		storage:      storage,
		segmenter:    segmenter,
		embedder:     embedder,
		vectorDB:     vectorDB,
		batchSize:    16,              // 默认批处理大小
		maxWorkers:   4,               // 默认并发数
		timeout:      time.Minute * 5, // 默认超时时间
		logger:       logrus.New(),    // 默认日志记录器
		asyncEnabled: false,           // 默认不启用异步处理
	}

	// 应用配置选项
	for _, opt := range opts {
		opt(srv)
	}

	return srv
}

// WithBatchSize 设置嵌入批处理大小
func WithBatchSize(size int) DocumentOption {
	return func(s *DocumentService) {
		if size > 0 {
			s.batchSize = size
		}
	}
}

// WithMaxWorkers 设置嵌入并发工作协程数
func WithMaxWorkers(n int) DocumentOption {
	return func(s *DocumentService) {
		if n > 0 {
			s.maxWorkers = n
		}
	}
}

// WithTimeout 设置处理超时时间
func WithTimeout(timeout time.Duration) DocumentOption {
	return func(s *DocumentService) {
		s.timeout = timeout
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) DocumentOption {
	return func(s *DocumentService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDocumentRepository 设置文档仓储
func WithDocumentRepository(repo repository.DocumentRepository) DocumentOption {
	return func(s *DocumentService) {
		s.repo = repo
	}
}

// WithStatusManager 设置状态管理器
func WithStatusManager(manager *DocumentStatusManager) DocumentOption {
	return func(s *DocumentService) {
		s.statusManager = manager
	}
}

// WithTaskQueue 设置任务队列
func WithTaskQueue(queue taskqueue.Queue) DocumentOption {
	return func(s *DocumentService) {
		s.taskQueue = queue
		s.asyncEnabled = queue != nil
	}
}

// WithAsyncProcessing 设置是否启用异步处理
func WithAsyncProcessing(enabled bool) DocumentOption {
	return func(s *DocumentService) {
		s.asyncEnabled = enabled
	}
}

// Init 初始化文档服务
// 确保必要的依赖都已设置
func (s *DocumentService) Init() error {
	// 如果没有设置仓储，创建默认仓储
	if s.repo == nil {
		s.repo = repository.NewDocumentRepository()
	}

	// 如果没有设置状态管理器，创建默认状态管理器
	if s.statusManager == nil {
		s.statusManager = NewDocumentStatusManager(s.repo, s.logger)
	}

	// 如果没有设置分块器，使用默认配置
	if s.segmenter == nil {
		s.segmenter = document.NewSegmenter(document.DefaultSegmenterConfig())
	}

	return nil
}

// UploadDocument 保存上传的文件并创建文档记录
// 文档ID由内容摘要派生，同一份文件重复上传得到同一个ID
func (s *DocumentService) UploadDocument(ctx context.Context, reader io.Reader, filename string) (*models.Document, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	content, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to read upload content: %w", err)
	}

	digest := md5.Sum(content)
	docID := hex.EncodeToString(digest[:])[:12]

	// 同一内容重复上传直接返回已有记录
	if existing, err := s.repo.GetByID(docID); err == nil {
		s.logger.WithFields(logrus.Fields{
			"doc_id":   docID,
			"filename": filename,
		}).Info("Document already uploaded, reusing record")
		return existing, nil
	}

	info, err := s.storage.Save(bytes.NewReader(content), filename)
	if err != nil {
		return nil, fmt.Errorf("failed to save file: %w", err)
	}

	if err := s.statusManager.MarkAsUploaded(ctx, docID, filename, info.Path, info.Size); err != nil {
		return nil, fmt.Errorf("failed to create document record: %w", err)
	}

	return s.statusManager.GetDocument(ctx, docID)
}

// ProcessDocument 处理文档（定位提取、溯源分块、向量化、入库）
func (s *DocumentService) ProcessDocument(ctx context.Context, fileID string, filePath string) error {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return err
	}

	s.logger.WithFields(logrus.Fields{
		"file_id":   fileID,
		"file_path": filePath,
	}).Info("Starting document processing")

	// 检查输入参数
	if fileID == "" {
		return errors.New("fileID cannot be empty")
	}
	if filePath == "" {
		return errors.New("filePath cannot be empty")
	}

	// 如果启用异步处理并且任务队列已配置，使用任务队列处理
	if s.asyncEnabled && s.taskQueue != nil {
		return s.processDocumentAsync(ctx, fileID, filePath)
	}

	// 否则，使用同步方式处理
	return s.processDocumentSync(ctx, fileID, filePath)
}

// lockDocument 获取指定文档的处理锁
func (s *DocumentService) lockDocument(fileID string) func() {
	v, _ := s.docLocks.LoadOrStore(fileID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// processDocumentSync 同步处理文档
// 直接在当前进程中跑完整个提取管线
func (s *DocumentService) processDocumentSync(ctx context.Context, fileID string, filePath string) error {
	unlock := s.lockDocument(fileID)
	defer unlock()

	// 设置上下文超时
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	// 更新文档状态为处理中
	if err := s.statusManager.MarkAsProcessing(ctx, fileID); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as processing")
		// 继续处理，不中断
	}

	// 定位提取
	s.updateStage(ctx, fileID, models.StageExtracting, 10)

	result, err := s.extractUnits(filePath)
	if err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to extract document: %v", err))
		return fmt.Errorf("failed to extract document: %w", err)
	}

	// 溯源分块
	s.updateStage(ctx, fileID, models.StageSegmenting, 30)
	chunks := s.segmenter.Segment(fileID, result.Units)

	// 空文档是合法输入，完成处理但没有可检索内容
	if len(chunks) == 0 {
		if err := s.replaceDocumentData(fileID, nil, nil); err != nil {
			s.failDocument(ctx, fileID, fmt.Sprintf("failed to clear document data: %v", err))
			return err
		}
		if err := s.statusManager.MarkAsCompleted(ctx, fileID, result.TotalPages, len(result.Units), 0); err != nil {
			s.logger.WithError(err).Error("Failed to mark document as completed")
		}
		s.logger.WithField("file_id", fileID).Info("Document has no extractable content")
		return nil
	}

	// 向量化并入库
	s.updateStage(ctx, fileID, models.StageVectorizing, 50)

	records, err := s.vectorizeChunks(ctx, fileID, result.FileName, chunks)
	if err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to vectorize chunks: %v", err))
		return fmt.Errorf("failed to vectorize chunks: %w", err)
	}

	summaries := chunkSummaries(fileID, chunks, "")
	if err := s.replaceDocumentData(fileID, records, summaries); err != nil {
		// 入库失败时清掉本次写入的向量，不留半成品索引
		if cleanErr := s.vectorDB.DeleteByFileID(fileID); cleanErr != nil {
			s.logger.WithError(cleanErr).Warn("Failed to clean up vectors after store failure")
		}
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to store document data: %v", err))
		return fmt.Errorf("failed to store document data: %w", err)
	}

	// 文档处理完成，更新状态
	if err := s.statusManager.MarkAsCompleted(ctx, fileID, result.TotalPages, len(result.Units), len(chunks)); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as completed")
		// 虽然状态更新失败，但文档处理成功，所以不返回错误
	}

	s.logger.WithFields(logrus.Fields{
		"file_id":     fileID,
		"page_count":  result.TotalPages,
		"unit_count":  len(result.Units),
		"chunk_count": len(chunks),
	}).Info("Document processing completed successfully")

	return nil
}

// updateStage 更新处理阶段和进度，失败只记录日志
func (s *DocumentService) updateStage(ctx context.Context, fileID string, stage models.ProcessStage, progress int) {
	if err := s.statusManager.UpdateStage(ctx, fileID, stage); err != nil {
		s.logger.WithError(err).Warn("Failed to update document stage")
	}
	if err := s.statusManager.UpdateProgress(ctx, fileID, progress); err != nil {
		s.logger.WithError(err).Warn("Failed to update document progress")
	}
}

// extractUnits 从存储中读取文件并提取定位文本单元
func (s *DocumentService) extractUnits(filePath string) (*document.ExtractResult, error) {
	s.logger.WithField("file_path", filePath).Debug("Extracting document")

	// 文档记录中保存的是存储路径
	reader, err := s.storage.GetByPath(filePath)
	if err != nil {
		s.logger.WithError(err).Debug("Failed to get file by path, trying with storage id")
		// 回退到按存储ID查找
		reader, err = s.storage.Get(storageIDFromPath(filePath))
		if err != nil {
			return nil, fmt.Errorf("failed to get file from storage: %w", err)
		}
	}
	defer reader.Close()

	extractor, err := document.ExtractorFactory(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create extractor: %w", err)
	}

	result, err := extractor.ExtractReader(reader, filepath.Base(filePath))
	if err != nil {
		return nil, fmt.Errorf("failed to extract document: %w", err)
	}

	return result, nil
}

// vectorizeChunks 批量生成分块向量并构建向量库记录
func (s *DocumentService) vectorizeChunks(ctx context.Context, fileID string, fileName string, chunks []document.Chunk) ([]vectordb.ChunkRecord, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	processor := embedding.NewBatchProcessor(s.embedder, s.batchSize, s.maxWorkers)
	vectors, err := processor.Process(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(vectors) != len(chunks) {
		return nil, fmt.Errorf("embedding count mismatch: got %d vectors for %d chunks", len(vectors), len(chunks))
	}

	records := make([]vectordb.ChunkRecord, len(chunks))
	for i := range chunks {
		metadata, err := chunks[i].Metadata()
		if err != nil {
			return nil, fmt.Errorf("failed to build chunk metadata: %w", err)
		}

		records[i] = vectordb.ChunkRecord{
			ID:         chunks[i].ID,
			FileID:     fileID,
			FileName:   fileName,
			ChunkIndex: chunks[i].Index,
			Text:       chunks[i].Text,
			Vector:     vectors[i],
			CreatedAt:  time.Now(),
			Metadata:   metadata,
		}
	}

	return records, nil
}

// replaceDocumentData 以替换语义写入向量库和分块概要
// 先清空同一文档的旧数据，重新处理不会产生重复切片
func (s *DocumentService) replaceDocumentData(fileID string, records []vectordb.ChunkRecord, summaries []*models.DocumentChunk) error {
	if err := s.vectorDB.DeleteByFileID(fileID); err != nil {
		return fmt.Errorf("failed to clear old vectors: %w", err)
	}

	if len(records) > 0 {
		if err := s.vectorDB.AddBatch(records); err != nil {
			return fmt.Errorf("failed to store vectors: %w", err)
		}
	}

	if err := s.repo.ReplaceChunks(fileID, summaries); err != nil {
		return fmt.Errorf("failed to save chunk summaries: %w", err)
	}

	return nil
}

// chunkSummaries 从分块构建数据库概要记录
func chunkSummaries(fileID string, chunks []document.Chunk, taskID string) []*models.DocumentChunk {
	summaries := make([]*models.DocumentChunk, len(chunks))
	for i, chunk := range chunks {
		summary := &models.DocumentChunk{
			DocumentID: fileID,
			ChunkID:    chunk.ID,
			Position:   chunk.Index,
			Text:       chunk.Text,
			UnitCount:  len(chunk.Units),
			TaskID:     taskID,
		}
		if len(chunk.Units) > 0 {
			summary.StartPage = chunk.Units[0].Page
			summary.EndPage = chunk.Units[len(chunk.Units)-1].Page
		}
		summaries[i] = summary
	}
	return summaries
}

// storageIDFromPath 从存储路径推导存储对象ID
// 本地和MinIO存储都以对象ID作为文件基础名
func storageIDFromPath(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DeleteDocument 删除文档及其相关数据
func (s *DocumentService) DeleteDocument(ctx context.Context, fileID string) error {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return err
	}

	unlock := s.lockDocument(fileID)
	defer unlock()

	s.logger.WithField("file_id", fileID).Info("Deleting document")

	doc, err := s.statusManager.GetDocument(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	// 1. 从向量数据库中删除
	if err := s.vectorDB.DeleteByFileID(fileID); err != nil {
		s.logger.WithError(err).Error("Failed to delete document vectors")
		return fmt.Errorf("failed to delete document vectors: %w", err)
	}

	// 2. 从存储中删除文件
	if err := s.storage.Delete(storageIDFromPath(doc.FilePath)); err != nil {
		// 文件可能已被删除，记录错误但不中断流程
		s.logger.WithError(err).Warn("Failed to delete file from storage")
	}

	// 3. 删除分块概要和文档记录
	if err := s.repo.DeleteChunks(fileID); err != nil {
		s.logger.WithError(err).Warn("Failed to delete chunk summaries")
	}
	if err := s.statusManager.DeleteDocument(ctx, fileID); err != nil {
		s.logger.WithError(err).Error("Failed to delete document record")
		return fmt.Errorf("failed to delete document record: %w", err)
	}

	// 4. 如果任务队列已配置，删除相关任务
	if s.taskQueue != nil {
		tasks, err := s.taskQueue.GetTasksByDocument(ctx, fileID)
		if err == nil && len(tasks) > 0 {
			for _, task := range tasks {
				if err := s.taskQueue.DeleteTask(ctx, task.ID); err != nil {
					s.logger.WithError(err).WithField("task_id", task.ID).Warn("Failed to delete document task")
				}
			}
		}
	}

	s.logger.WithField("file_id", fileID).Info("Document deleted successfully")
	return nil
}

// GetDocumentInfo 获取文档信息
func (s *DocumentService) GetDocumentInfo(ctx context.Context, fileID string) (map[string]interface{}, error) {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return nil, err
	}

	// 获取文档状态
	doc, err := s.statusManager.GetDocument(ctx, fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	// 构建文档信息
	info := map[string]interface{}{
		"file_id":     doc.ID,
		"filename":    doc.FileName,
		"status":      doc.Status,
		"created_at":  doc.UploadedAt.Format(time.RFC3339),
		"updated_at":  doc.UpdatedAt.Format(time.RFC3339),
		"size":        doc.FileSize,
		"progress":    doc.Progress,
		"page_count":  doc.PageCount,
		"unit_count":  doc.UnitCount,
		"chunk_count": doc.ChunkCount,
	}

	// 处理阶段只在进入管线后才有值
	if doc.CurrentStage != "" {
		info["stage"] = doc.CurrentStage
	}

	// 如果有错误信息，添加到返回结果
	if doc.Error != "" {
		info["error"] = doc.Error
	}

	// 如果有处理完成时间，添加到返回结果
	if doc.ProcessedAt != nil {
		info["processed_at"] = doc.ProcessedAt.Format(time.RFC3339)
	}

	// 如果有标签，添加到返回结果
	if doc.Tags != "" {
		info["tags"] = doc.Tags
	}

	// 如果启用了异步处理，尝试获取相关任务信息
	if s.asyncEnabled && s.taskQueue != nil {
		tasks, err := s.taskQueue.GetTasksByDocument(ctx, fileID)
		if err == nil && len(tasks) > 0 {
			// 添加最近的任务信息
			latestTask := tasks[0]
			for _, task := range tasks {
				if task.UpdatedAt.After(latestTask.UpdatedAt) {
					latestTask = task
				}
			}

			info["task_id"] = latestTask.ID
			info["task_status"] = latestTask.Status
			info["task_created_at"] = latestTask.CreatedAt.Format(time.RFC3339)
			info["task_updated_at"] = latestTask.UpdatedAt.Format(time.RFC3339)

			if latestTask.StartedAt != nil {
				info["task_started_at"] = latestTask.StartedAt.Format(time.RFC3339)
			}
			if latestTask.CompletedAt != nil {
				info["task_completed_at"] = latestTask.CompletedAt.Format(time.RFC3339)
			}
			if latestTask.Error != "" {
				info["task_error"] = latestTask.Error
			}
		}
	}

	return info, nil
}

// GetDocumentStatus 获取文档处理状态
func (s *DocumentService) GetDocumentStatus(ctx context.Context, fileID string) (models.DocumentStatus, error) {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return "", err
	}

	return s.statusManager.GetStatus(ctx, fileID)
}

// GetDocumentChunks 获取文档的分块概要列表
func (s *DocumentService) GetDocumentChunks(ctx context.Context, fileID string) ([]*models.DocumentChunk, error) {
	if err := s.Init(); err != nil {
		return nil, err
	}

	return s.repo.GetChunks(fileID)
}

// GetDocumentTasks 获取文档相关的任务
func (s *DocumentService) GetDocumentTasks(ctx context.Context, fileID string) ([]*taskqueue.Task, error) {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return nil, err
	}

	if !s.asyncEnabled || s.taskQueue == nil {
		return nil, errors.New("async processing not enabled")
	}

	return s.taskQueue.GetTasksByDocument(ctx, fileID)
}

// WaitForDocumentProcessing 等待文档处理完成
func (s *DocumentService) WaitForDocumentProcessing(ctx context.Context, fileID string, timeout time.Duration) error {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return err
	}

	if !s.asyncEnabled || s.taskQueue == nil {
		// 如果未启用异步处理，直接检查文档状态
		status, err := s.statusManager.GetStatus(ctx, fileID)
		if err != nil {
			return err
		}
		if status == models.DocStatusFailed {
			return fmt.Errorf("document processing failed")
		}
		if status != models.DocStatusCompleted {
			return fmt.Errorf("document not processed")
		}
		return nil
	}

	// 设置上下文超时
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// 获取文档相关的任务
	tasks, err := s.taskQueue.GetTasksByDocument(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to get document tasks: %w", err)
	}

	if len(tasks) == 0 {
		return fmt.Errorf("no processing tasks found for document %s", fileID)
	}

	// 找到最新的完整流程任务
	var latestTask *taskqueue.Task
	for _, task := range tasks {
		if task.Type == taskqueue.TaskDocumentProcess {
			if latestTask == nil || task.CreatedAt.After(latestTask.CreatedAt) {
				latestTask = task
			}
		}
	}

	if latestTask == nil {
		return fmt.Errorf("no processing task found for document %s", fileID)
	}

	// 等待任务完成
	_, err = s.taskQueue.WaitForTask(ctx, latestTask.ID, timeout)
	if err != nil {
		return fmt.Errorf("failed to wait for document processing: %w", err)
	}

	// 再次检查文档状态
	status, err := s.statusManager.GetStatus(ctx, fileID)
	if err != nil {
		return err
	}

	if status == models.DocStatusFailed {
		return fmt.Errorf("document processing failed")
	}

	if status != models.DocStatusCompleted {
		return fmt.Errorf("document processing incomplete")
	}

	return nil
}

// CountDocumentChunks 统计文档分块数量
func (s *DocumentService) CountDocumentChunks(ctx context.Context, fileID string) (int, error) {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return 0, err
	}

	// 使用仓储统计分块数量
	return s.repo.CountChunks(fileID)
}

// ListDocuments 获取文档列表
func (s *DocumentService) ListDocuments(ctx context.Context, offset, limit int, filters map[string]interface{}) ([]*models.Document, int64, error) {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return nil, 0, err
	}

	// 使用状态管理器获取文档列表
	return s.statusManager.ListDocuments(ctx, offset, limit, filters)
}

// GetDocumentFile 获取文档原始文件内容，用于前端预览和高亮展示
func (s *DocumentService) GetDocumentFile(ctx context.Context, fileID string) (io.ReadCloser, *models.Document, error) {
	if err := s.Init(); err != nil {
		return nil, nil, err
	}

	doc, err := s.statusManager.GetDocument(ctx, fileID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get document: %w", err)
	}

	reader, err := s.storage.GetByPath(doc.FilePath)
	if err != nil {
		reader, err = s.storage.Get(storageIDFromPath(doc.FilePath))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get file from storage: %w", err)
		}
	}

	return reader, doc, nil
}

// UpdateDocumentTags 更新文档标签
func (s *DocumentService) UpdateDocumentTags(ctx context.Context, fileID string, tags string) error {
	// 确保初始化完成
	if err := s.Init(); err != nil {
		return err
	}

	// 获取文档
	doc, err := s.statusManager.GetDocument(ctx, fileID)
	if err != nil {
		return fmt.Errorf("failed to get document: %w", err)
	}

	// 更新标签
	doc.Tags = tags

	// 保存更新
	return s.repo.Update(doc)
}

// failDocument 将文档标记为失败状态
func (s *DocumentService) failDocument(ctx context.Context, fileID string, errorMsg string) {
	if s.statusManager == nil {
		s.logger.Error("Cannot mark document as failed: status manager not initialized")
		return
	}

	if err := s.statusManager.MarkAsFailed(ctx, fileID, errorMsg); err != nil {
		s.logger.WithFields(logrus.Fields{
			"file_id": fileID,
			"error":   err,
		}).Error("Failed to mark document as failed")
	}
}

// GetStatusManager 返回文档状态管理器实例
func (s *DocumentService) GetStatusManager() *DocumentStatusManager {
	return s.statusManager
}

// GetTaskQueue 返回任务队列实例
func (s *DocumentService) GetTaskQueue() taskqueue.Queue {
	return s.taskQueue
}
