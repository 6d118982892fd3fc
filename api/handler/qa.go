package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/pdf-citation-QA/api/middleware"
	"github.com/fyerfyer/pdf-citation-QA/api/model"
	"github.com/fyerfyer/pdf-citation-QA/internal/models"
	"github.com/fyerfyer/pdf-citation-QA/internal/services"
)

// QAHandler 处理问答相关的API请求
type QAHandler struct {
	qaService *services.QAService // 问答服务
	logger    *logrus.Logger      // 日志记录器
}

// NewQAHandler 创建新的问答处理器
func NewQAHandler(qaService *services.QAService) *QAHandler {
	return &QAHandler{
		qaService: qaService,
		logger:    middleware.GetLogger(),
	}
}

// AnswerQuestion 处理问答请求
// 返回生成的回答和编号引用表，降级回答同样携带完整引用
// POST /api/qa
func (h *QAHandler) AnswerQuestion(c *gin.Context) {
	// 绑定请求参数
	var req model.QARequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.WithFields(logrus.Fields{
			"error": err.Error(),
		}).Warn("Invalid question request")

		c.JSON(http.StatusBadRequest, model.NewErrorResponse(
			http.StatusBadRequest,
			"无效的请求参数",
		))
		return
	}

	ctx := c.Request.Context()

	h.logger.WithFields(logrus.Fields{
		"question": req.Question,
		"file_id":  req.FileID,
	}).Info("Answering question")

	result, err := h.qaService.AnswerWithFile(ctx, req.FileID, req.Question)
	if err != nil {
		// 领域错误交给错误中间件归一化为对应的HTTP状态码
		switch {
		case errors.Is(err, models.ErrDocumentNotFound):
			middleware.HandleError(c, middleware.NewNotFoundError("未找到指定的文档"))
		case errors.Is(err, models.ErrDocumentNotReady):
			middleware.HandleError(c, middleware.NewConflictError("文档尚未处理完成，暂不可检索"))
		default:
			h.logger.WithFields(logrus.Fields{
				"error":    err.Error(),
				"question": req.Question,
			}).Error("Failed to answer question")

			middleware.HandleError(c, middleware.NewInternalError("处理问题时出错"))
		}
		return
	}

	resp := model.QAResponse{
		Question:  req.Question,
		Answer:    result.Answer,
		Citations: result.Citations,
		Degraded:  result.Degraded,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}

// GetHistory 获取问答历史
// GET /api/qa/history
func (h *QAHandler) GetHistory(c *gin.Context) {
	var req model.QAHistoryRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.NewErrorResponse(http.StatusBadRequest, "无效的查询参数"))
		return
	}

	page := req.GetPage()
	pageSize := req.GetPageSize()

	records, total, err := h.qaService.GetHistory(c.Request.Context(), req.FileID, (page-1)*pageSize, pageSize)
	if err != nil {
		h.logger.WithError(err).Error("Failed to get query history")
		c.JSON(http.StatusInternalServerError, model.NewErrorResponse(
			http.StatusInternalServerError,
			"获取问答历史失败",
		))
		return
	}

	items := make([]model.QAHistoryItem, len(records))
	for i, record := range records {
		items[i] = model.QAHistoryItem{
			ID:        record.ID,
			FileID:    record.DocumentID,
			Question:  record.Question,
			Answer:    record.Answer,
			Citations: json.RawMessage(record.Citations),
			Degraded:  record.Degraded,
			FromCache: record.FromCache,
			CreatedAt: record.CreatedAt,
		}
	}

	resp := model.QAHistoryResponse{
		Total:    total,
		Page:     page,
		PageSize: pageSize,
		Items:    items,
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(resp))
}
