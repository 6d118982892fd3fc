package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path/filepath"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/pdf-citation-QA/api/middleware"
	"github.com/fyerfyer/pdf-citation-QA/api/model"
	"github.com/fyerfyer/pdf-citation-QA/internal/models"
	"github.com/fyerfyer/pdf-citation-QA/internal/services"
)

// DocumentHandler 处理文档相关的API请求
type DocumentHandler struct {
	documentService *services.DocumentService // 文档服务
	logger          *logrus.Logger            // 日志记录器
}

// NewDocumentHandler 创建新的文档处理器
func NewDocumentHandler(documentService *services.DocumentService) *DocumentHandler {
	return &DocumentHandler{
		documentService: documentService,
		logger:          middleware.GetLogger(),
	}
}

// HealthCheck 健康检查处理函数
// GET /api/health
func (h *DocumentHandler) HealthCheck(generationReady bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		_, total, err := h.documentService.ListDocuments(c.Request.Context(), 0, 1, nil)
		if err != nil {
			h.logger.WithError(err).Warn("Failed to count documents for health check")
			c.JSON(http.StatusOK, gin.H{"status": "degraded"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":                "ok",
			"documents_loaded":      total,
			"generation_configured": generationReady,
		})
	}
}

// UploadDocument 处理文档上传请求
// POST /api/documents
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	// 绑定请求参数
	var req model.DocumentUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		h.logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("Invalid document upload request")

		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	// 检查文件类型
	filename := req.File.Filename
	if !isValidFileType(filepath.Ext(filename)) {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"不支持的文件类型，仅支持 .pdf, .md, .markdown, .txt, .docx",
		))
		return
	}

	// 打开上传的文件
	file, err := req.File.Open()
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"filename": filename,
		}).Error("Failed to open uploaded file")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"无法打开上传的文件",
		))
		return
	}
	defer file.Close()

	// 保存文件并创建文档记录，同一份文件重复上传得到同一个ID
	doc, err := h.documentService.UploadDocument(c.Request.Context(), file, filename)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":    err.Error(),
			"filename": filename,
		}).Error("Failed to save uploaded document")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"保存文件失败",
		))
		return
	}

	if req.Tags != "" {
		if err := h.documentService.UpdateDocumentTags(c.Request.Context(), doc.ID, req.Tags); err != nil {
			h.logger.WithError(err).Warn("Failed to set document tags")
		}
	}

	h.logger.WithFields(logrus.Fields{
		"file_id":  doc.ID,
		"filename": doc.FileName,
		"size":     doc.FileSize,
	}).Info("File uploaded successfully")

	// 处理管线在后台运行，调用方通过状态接口轮询进度
	go func() {
		ctx := context.Background()
		if err := h.documentService.ProcessDocument(ctx, doc.ID, doc.FilePath); err != nil {
			h.logger.WithFields(logrus.Fields{
				"error":   err.Error(),
				"file_id": doc.ID,
			}).Error("Failed to process document")
		}
	}()

	resp := model.DocumentUploadResponse{
		FileID:   doc.ID,
		FileName: doc.FileName,
		Status:   string(doc.Status),
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetDocumentStatus 获取文档处理状态
// GET /api/documents/:id/status
func (h *DocumentHandler) GetDocumentStatus(c *gin.Context) {
	// 绑定路径参数
	var req model.DocumentStatusRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文档ID"))
		return
	}

	// 获取文档信息
	docInfo, err := h.documentService.GetDocumentInfo(c.Request.Context(), req.ID)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":   err.Error(),
			"file_id": req.ID,
		}).Warn("Failed to get document info")

		c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "未找到文档"))
		return
	}

	// 构建响应
	resp := model.DocumentStatusResponse{
		FileID:     req.ID,
		FileName:   stringField(docInfo, "filename"),
		Progress:   intField(docInfo, "progress"),
		PageCount:  intField(docInfo, "page_count"),
		UnitCount:  intField(docInfo, "unit_count"),
		ChunkCount: intField(docInfo, "chunk_count"),
		CreatedAt:  stringField(docInfo, "created_at"),
		UpdatedAt:  stringField(docInfo, "updated_at"),
		Error:      stringField(docInfo, "error"),
		TaskID:     stringField(docInfo, "task_id"),
		TaskStatus: stringField(docInfo, "task_status"),
	}
	// 状态和阶段字段是自定义字符串类型，格式化后返回
	if v, ok := docInfo["status"]; ok {
		resp.Status = fmt.Sprint(v)
	}
	if v, ok := docInfo["stage"]; ok {
		resp.Stage = fmt.Sprint(v)
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// ListDocuments 获取文档列表
// GET /api/documents
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	// 绑定查询参数
	var req model.DocumentListRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的查询参数"))
		return
	}

	// 构建过滤条件
	filters := make(map[string]interface{})
	if req.Status != "" {
		filters["status"] = req.Status
	}
	if req.Tags != "" {
		filters["tags"] = req.Tags
	}
	if req.StartTime != nil {
		filters["start_time"] = req.StartTime.Format(time.RFC3339)
	}
	if req.EndTime != nil {
		filters["end_time"] = req.EndTime.Format(time.RFC3339)
	}

	page := req.GetPage()
	pageSize := req.GetPageSize()

	docs, total, err := h.documentService.ListDocuments(c.Request.Context(), (page-1)*pageSize, pageSize, filters)
	if err != nil {
		h.logger.WithError(err).Error("Failed to list documents")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取文档列表失败",
		))
		return
	}

	infos := make([]model.DocumentInfo, len(docs))
	for i, doc := range docs {
		infos[i] = model.NewDocumentInfo(doc)
	}

	resp := model.DocumentListResponse{
		Total:     total,
		Page:      page,
		PageSize:  pageSize,
		Documents: infos,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetDocumentFile 下载文档原始文件
// 前端用原始文件配合引用的边界框渲染高亮
// GET /api/documents/:id/file
func (h *DocumentHandler) GetDocumentFile(c *gin.Context) {
	var req model.DocumentStatusRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文档ID"))
		return
	}

	reader, doc, err := h.documentService.GetDocumentFile(c.Request.Context(), req.ID)
	if err != nil {
		h.logger.WithFields(logrus.Fields{
			"error":   err.Error(),
			"file_id": req.ID,
		}).Warn("Failed to get document file")

		c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "未找到文档文件"))
		return
	}
	defer reader.Close()

	contentType := mime.TypeByExtension(filepath.Ext(doc.FileName))
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", `inline; filename="`+doc.FileName+`"`)
	if _, err := io.Copy(c.Writer, reader); err != nil {
		h.logger.WithError(err).Warn("Failed to stream document file")
	}
}

// DeleteDocument 删除文档
// DELETE /api/documents/:id
func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	// 绑定路径参数
	var req model.DocumentDeleteRequest
	if err := c.ShouldBindUri(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的文档ID"))
		return
	}

	// 删除文档
	err := h.documentService.DeleteDocument(c.Request.Context(), req.ID)
	if err != nil {
		if errors.Is(err, models.ErrDocumentNotFound) {
			c.JSON(http.StatusNotFound, model.NewErrorResponse(http.StatusNotFound, "未找到文档"))
			return
		}

		h.logger.WithFields(logrus.Fields{
			"error":   err.Error(),
			"file_id": req.ID,
		}).Error("Failed to delete document")

		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"删除文档失败",
		))
		return
	}

	h.logger.WithField("file_id", req.ID).Info("Document deleted successfully")

	// 返回成功响应
	resp := model.DocumentDeleteResponse{
		Success: true,
		FileID:  req.ID,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// isValidFileType 检查文件类型是否有效
func isValidFileType(ext string) bool {
	validTypes := map[string]bool{
		".pdf":      true,
		".md":       true,
		".markdown": true,
		".txt":      true,
		".docx":     true,
	}
	return validTypes[ext]
}

// stringField 从文档信息中取字符串字段，缺失时返回空串
func stringField(info map[string]interface{}, key string) string {
	if v, ok := info[key].(string); ok {
		return v
	}
	return ""
}

// intField 从文档信息中取整数字段，缺失时返回0
func intField(info map[string]interface{}, key string) int {
	if v, ok := info[key].(int); ok {
		return v
	}
	return 0
}
