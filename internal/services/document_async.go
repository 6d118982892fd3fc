package services

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/fyerfyer/pdf-citation-QA/internal/document"
	"github.com/fyerfyer/pdf-citation-QA/internal/models"
	"github.com/fyerfyer/pdf-citation-QA/pkg/taskqueue"
	"github.com/sirupsen/logrus"
)

// processDocumentAsync 异步处理文档
// 将完整流程任务加入队列并立即返回
func (s *DocumentService) processDocumentAsync(ctx context.Context, fileID string, filePath string) error {
	s.logger.WithFields(logrus.Fields{
		"file_id":   fileID,
		"file_path": filePath,
	}).Info("Enqueuing document for async processing")

	// 更新文档状态为处理中
	if err := s.statusManager.MarkAsProcessing(ctx, fileID); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as processing")
		// 继续处理，不中断
	}

	fileName := filepath.Base(filePath)
	segConfig := s.segmenter.Config()

	payload := taskqueue.DocumentProcessPayload{
		DocumentID:    fileID,
		FilePath:      filePath,
		FileName:      fileName,
		FileType:      strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), "."),
		MaxChunkChars: segConfig.MaxChunkChars,
		OverlapChars:  segConfig.OverlapChars,
		Model:         s.embedder.Name(),
		Metadata: map[string]string{
			"source": "api",
		},
	}

	taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskDocumentProcess, fileID, payload)
	if err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to enqueue processing task: %v", err))
		return fmt.Errorf("failed to enqueue processing task: %w", err)
	}

	// 在文档记录上留下当前任务的痕迹，便于排查
	if doc, err := s.statusManager.GetDocument(ctx, fileID); err == nil {
		doc.CurrentTaskID = taskID
		doc.LastTaskStatus = string(taskqueue.StatusPending)
		if err := s.repo.Update(doc); err != nil {
			s.logger.WithError(err).Warn("Failed to record task id on document")
		}
	}

	s.logger.WithFields(logrus.Fields{
		"file_id": fileID,
		"task_id": taskID,
	}).Info("Document processing task enqueued successfully")

	return nil
}

// ProcessDocumentStaged 以分阶段任务链处理文档
// 提取、分块、向量化各自入队执行，单阶段失败可以独立重试
func (s *DocumentService) ProcessDocumentStaged(ctx context.Context, fileID string, filePath string) error {
	if err := s.Init(); err != nil {
		return err
	}
	if s.taskQueue == nil {
		return fmt.Errorf("task queue not configured")
	}

	if err := s.statusManager.MarkAsProcessing(ctx, fileID); err != nil {
		s.logger.WithError(err).Error("Failed to mark document as processing")
	}

	fileName := filepath.Base(filePath)
	payload := taskqueue.DocumentExtractPayload{
		FilePath: filePath,
		FileName: fileName,
		FileType: strings.TrimPrefix(strings.ToLower(filepath.Ext(fileName)), "."),
	}

	taskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskDocumentExtract, fileID, payload)
	if err != nil {
		s.failDocument(ctx, fileID, fmt.Sprintf("failed to enqueue extract task: %v", err))
		return fmt.Errorf("failed to enqueue extract task: %w", err)
	}

	s.logger.WithFields(logrus.Fields{
		"file_id": fileID,
		"task_id": taskID,
	}).Info("Document extract task enqueued")

	return nil
}

// RegisterTaskHandlers 将文档处理函数注册到任务分发器
// 注册完整流程任务和三个分阶段任务的处理函数
func (s *DocumentService) RegisterTaskHandlers(dispatcher *taskqueue.Dispatcher) error {
	if err := s.Init(); err != nil {
		return err
	}

	dispatcher.Register(taskqueue.TaskDocumentProcess, s.handleProcessTask(dispatcher))
	dispatcher.Register(taskqueue.TaskDocumentExtract, s.handleExtractTask(dispatcher))
	dispatcher.Register(taskqueue.TaskDocumentSegment, s.handleSegmentTask(dispatcher))
	dispatcher.Register(taskqueue.TaskDocumentVectorize, s.handleVectorizeTask(dispatcher))

	return nil
}

// handleProcessTask 处理完整流程任务
// 在工作进程内跑完提取、分块、向量化三个阶段
func (s *DocumentService) handleProcessTask(dispatcher *taskqueue.Dispatcher) taskqueue.HandlerFunc {
	return func(ctx context.Context, task *taskqueue.Task) error {
		var payload taskqueue.DocumentProcessPayload
		if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal process payload: %w", err)
		}

		if err := s.processDocumentSync(ctx, payload.DocumentID, payload.FilePath); err != nil {
			return err
		}

		doc, err := s.statusManager.GetDocument(ctx, payload.DocumentID)
		if err != nil {
			return fmt.Errorf("failed to get processed document: %w", err)
		}

		result := &taskqueue.DocumentProcessResult{
			DocumentID: payload.DocumentID,
			PageCount:  doc.PageCount,
			UnitCount:  doc.UnitCount,
			ChunkCount: doc.ChunkCount,
			Dimension:  s.vectorDB.GetDimension(),
		}
		return dispatcher.Complete(ctx, task.ID, result)
	}
}

// handleExtractTask 处理定位提取任务
// 完成后将单元快照随结果落库并链式入队分块任务
func (s *DocumentService) handleExtractTask(dispatcher *taskqueue.Dispatcher) taskqueue.HandlerFunc {
	return func(ctx context.Context, task *taskqueue.Task) error {
		var payload taskqueue.DocumentExtractPayload
		if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal extract payload: %w", err)
		}

		s.updateStage(ctx, task.DocumentID, models.StageExtracting, 10)

		result, err := s.extractUnits(payload.FilePath)
		if err != nil {
			s.failDocument(ctx, task.DocumentID, fmt.Sprintf("failed to extract document: %v", err))
			return fmt.Errorf("failed to extract document: %w", err)
		}

		encoded, err := document.EncodeUnits(result.Units)
		if err != nil {
			s.failDocument(ctx, task.DocumentID, fmt.Sprintf("failed to encode units: %v", err))
			return fmt.Errorf("failed to encode units: %w", err)
		}

		extractResult := &taskqueue.DocumentExtractResult{
			DocumentID: task.DocumentID,
			PageCount:  result.TotalPages,
			UnitCount:  len(result.Units),
			UnitsJSON:  encoded,
		}
		if err := dispatcher.Complete(ctx, task.ID, extractResult); err != nil {
			return err
		}

		// 页数和单元数先行落库，分块数由后续阶段补齐
		if err := s.repo.UpdateCounts(task.DocumentID, result.TotalPages, len(result.Units), 0); err != nil {
			s.logger.WithError(err).Warn("Failed to record extract counts")
		}

		segConfig := s.segmenter.Config()
		segmentPayload := taskqueue.DocumentSegmentPayload{
			DocumentID:    task.DocumentID,
			UnitsJSON:     encoded,
			MaxChunkChars: segConfig.MaxChunkChars,
			OverlapChars:  segConfig.OverlapChars,
		}

		segmentTaskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskDocumentSegment, task.DocumentID, segmentPayload)
		if err != nil {
			s.failDocument(ctx, task.DocumentID, fmt.Sprintf("failed to enqueue segment task: %v", err))
			return fmt.Errorf("failed to enqueue segment task: %w", err)
		}

		s.logger.WithFields(logrus.Fields{
			"document_id":     task.DocumentID,
			"unit_count":      len(result.Units),
			"segment_task_id": segmentTaskID,
		}).Info("Document extraction completed")

		return nil
	}
}

// handleSegmentTask 处理溯源分块任务
// 完成后链式入队向量化任务
func (s *DocumentService) handleSegmentTask(dispatcher *taskqueue.Dispatcher) taskqueue.HandlerFunc {
	return func(ctx context.Context, task *taskqueue.Task) error {
		var payload taskqueue.DocumentSegmentPayload
		if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal segment payload: %w", err)
		}

		s.updateStage(ctx, task.DocumentID, models.StageSegmenting, 30)

		units, err := document.DecodeUnits(payload.UnitsJSON)
		if err != nil {
			s.failDocument(ctx, task.DocumentID, fmt.Sprintf("failed to decode units: %v", err))
			return fmt.Errorf("failed to decode units: %w", err)
		}

		segmenter := s.segmenter
		if payload.MaxChunkChars > 0 {
			segmenter = document.NewSegmenter(document.SegmenterConfig{
				MaxChunkChars: payload.MaxChunkChars,
				OverlapChars:  payload.OverlapChars,
			})
		}
		chunks := segmenter.Segment(task.DocumentID, units)

		chunkInfos := make([]taskqueue.SegmentChunkInfo, len(chunks))
		for i, chunk := range chunks {
			unitsJSON, err := document.EncodeUnits(chunk.Units)
			if err != nil {
				s.failDocument(ctx, task.DocumentID, fmt.Sprintf("failed to encode chunk units: %v", err))
				return fmt.Errorf("failed to encode chunk units: %w", err)
			}
			chunkInfos[i] = taskqueue.SegmentChunkInfo{
				ChunkID:   chunk.ID,
				Index:     chunk.Index,
				Text:      chunk.Text,
				UnitsJSON: unitsJSON,
			}
		}

		segmentResult := &taskqueue.DocumentSegmentResult{
			DocumentID: task.DocumentID,
			Chunks:     chunkInfos,
			ChunkCount: len(chunkInfos),
		}
		if err := dispatcher.Complete(ctx, task.ID, segmentResult); err != nil {
			return err
		}

		// 空文档没有可向量化的内容，直接完成
		if len(chunkInfos) == 0 {
			doc, err := s.statusManager.GetDocument(ctx, task.DocumentID)
			if err != nil {
				return fmt.Errorf("failed to get document: %w", err)
			}
			if err := s.replaceDocumentData(task.DocumentID, nil, nil); err != nil {
				s.failDocument(ctx, task.DocumentID, fmt.Sprintf("failed to clear document data: %v", err))
				return err
			}
			if err := s.statusManager.MarkAsCompleted(ctx, task.DocumentID, doc.PageCount, doc.UnitCount, 0); err != nil {
				s.logger.WithError(err).Error("Failed to mark document as completed")
			}
			s.logger.WithField("document_id", task.DocumentID).Info("Document has no extractable content")
			return nil
		}

		vectorizePayload := taskqueue.DocumentVectorizePayload{
			DocumentID: task.DocumentID,
			FileName:   fileNameOf(ctx, s, task.DocumentID),
			Chunks:     chunkInfos,
			Model:      s.embedder.Name(),
		}

		vectorizeTaskID, err := s.taskQueue.Enqueue(ctx, taskqueue.TaskDocumentVectorize, task.DocumentID, vectorizePayload)
		if err != nil {
			s.failDocument(ctx, task.DocumentID, fmt.Sprintf("failed to enqueue vectorize task: %v", err))
			return fmt.Errorf("failed to enqueue vectorize task: %w", err)
		}

		s.logger.WithFields(logrus.Fields{
			"document_id":       task.DocumentID,
			"chunk_count":       len(chunkInfos),
			"vectorize_task_id": vectorizeTaskID,
		}).Info("Document segmentation completed")

		return nil
	}
}

// handleVectorizeTask 处理向量化入库任务
// 管线的最后一个阶段，完成后将文档标记为可检索
func (s *DocumentService) handleVectorizeTask(dispatcher *taskqueue.Dispatcher) taskqueue.HandlerFunc {
	return func(ctx context.Context, task *taskqueue.Task) error {
		var payload taskqueue.DocumentVectorizePayload
		if err := taskqueue.UnmarshalPayload(task.Payload, &payload); err != nil {
			return fmt.Errorf("failed to unmarshal vectorize payload: %w", err)
		}

		s.updateStage(ctx, task.DocumentID, models.StageVectorizing, 50)

		// 从载荷还原分块及其单元快照
		chunks := make([]document.Chunk, len(payload.Chunks))
		for i, info := range payload.Chunks {
			units, err := document.DecodeUnits(info.UnitsJSON)
			if err != nil {
				s.failDocument(ctx, task.DocumentID, fmt.Sprintf("failed to decode chunk units: %v", err))
				return fmt.Errorf("failed to decode chunk units: %w", err)
			}
			chunks[i] = document.Chunk{
				ID:         info.ChunkID,
				DocumentID: task.DocumentID,
				Index:      info.Index,
				Text:       info.Text,
				Units:      units,
			}
		}

		records, err := s.vectorizeChunks(ctx, task.DocumentID, payload.FileName, chunks)
		if err != nil {
			s.failDocument(ctx, task.DocumentID, fmt.Sprintf("failed to vectorize chunks: %v", err))
			return fmt.Errorf("failed to vectorize chunks: %w", err)
		}

		summaries := chunkSummaries(task.DocumentID, chunks, task.ID)
		if err := s.replaceDocumentData(task.DocumentID, records, summaries); err != nil {
			if cleanErr := s.vectorDB.DeleteByFileID(task.DocumentID); cleanErr != nil {
				s.logger.WithError(cleanErr).Warn("Failed to clean up vectors after store failure")
			}
			s.failDocument(ctx, task.DocumentID, fmt.Sprintf("failed to store document data: %v", err))
			return fmt.Errorf("failed to store document data: %w", err)
		}

		doc, err := s.statusManager.GetDocument(ctx, task.DocumentID)
		if err != nil {
			return fmt.Errorf("failed to get document: %w", err)
		}
		if err := s.statusManager.MarkAsCompleted(ctx, task.DocumentID, doc.PageCount, doc.UnitCount, len(chunks)); err != nil {
			s.logger.WithError(err).Error("Failed to mark document as completed")
		}

		vectorizeResult := &taskqueue.DocumentVectorizeResult{
			DocumentID:  task.DocumentID,
			VectorCount: len(records),
			Dimension:   s.vectorDB.GetDimension(),
			Model:       payload.Model,
		}
		if err := dispatcher.Complete(ctx, task.ID, vectorizeResult); err != nil {
			return err
		}

		s.logger.WithFields(logrus.Fields{
			"document_id":  task.DocumentID,
			"vector_count": len(records),
		}).Info("Document vectorization completed")

		return nil
	}
}

// fileNameOf 从文档记录获取文件名，取不到时退回文档ID
func fileNameOf(ctx context.Context, s *DocumentService, docID string) string {
	doc, err := s.statusManager.GetDocument(ctx, docID)
	if err != nil || doc.FileName == "" {
		return docID
	}
	return doc.FileName
}
