package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/pdf-citation-QA/api/handler"
	"github.com/fyerfyer/pdf-citation-QA/api/middleware"
)

// RouterConfig 路由配置
type RouterConfig struct {
	APIKey          string // 接口密钥，空串表示不鉴权
	EnableCORS      bool   // 是否允许跨域请求
	GenerationReady bool   // 生成端API密钥是否已配置
	TaskHandler     *handler.TaskHandler
}

// SetupRouter 设置API路由
// 配置所有的API端点并应用中间件
func SetupRouter(
	docHandler *handler.DocumentHandler,
	qaHandler *handler.QAHandler,
	cfg RouterConfig,
) *gin.Engine {
	router := gin.New()

	// 应用全局中间件
	router.Use(middleware.Logger())
	router.Use(middleware.ErrorMiddleware())
	router.Use(middleware.SetTraceID())

	if cfg.EnableCORS {
		router.Use(Cors())
	}

	// 在调试模式下记录请求体和响应体
	if gin.Mode() == gin.DebugMode {
		router.Use(middleware.RequestBodyLog())
		router.Use(middleware.ResponseLogger())
	}

	// 健康检查不经过鉴权
	router.GET("/api/health", docHandler.HealthCheck(cfg.GenerationReady))

	// 创建API分组
	api := router.Group("/api")
	api.Use(middleware.APIKeyAuth(cfg.APIKey))
	{
		// 文档管理API
		docGroup := api.Group("/documents")
		{
			// 上传文档 - POST /api/documents
			docGroup.POST("", docHandler.UploadDocument)

			// 获取文档列表 - GET /api/documents
			docGroup.GET("", docHandler.ListDocuments)

			// 获取文档详情 - GET /api/documents/:id
			docGroup.GET("/:id", docHandler.GetDocumentStatus)

			// 获取文档状态 - GET /api/documents/:id/status
			docGroup.GET("/:id/status", docHandler.GetDocumentStatus)

			// 下载文档原始文件 - GET /api/documents/:id/file
			docGroup.GET("/:id/file", docHandler.GetDocumentFile)

			// 删除文档 - DELETE /api/documents/:id
			docGroup.DELETE("/:id", docHandler.DeleteDocument)

			// 获取文档相关任务 - GET /api/documents/:id/tasks
			if cfg.TaskHandler != nil {
				docGroup.GET("/:id/tasks", cfg.TaskHandler.GetDocumentTasks)
			}
		}

		// 问答API
		qaGroup := api.Group("/qa")
		{
			// 回答问题 - POST /api/qa
			qaGroup.POST("", qaHandler.AnswerQuestion)

			// 问答历史 - GET /api/qa/history
			qaGroup.GET("/history", qaHandler.GetHistory)
		}

		// 任务查询API，仅在任务队列启用时注册
		if cfg.TaskHandler != nil {
			api.GET("/tasks/:id", cfg.TaskHandler.GetTaskStatus)
		}
	}

	return router
}

// Cors 跨域资源共享中间件
func Cors() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With, X-Trace-ID, X-API-Key")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
