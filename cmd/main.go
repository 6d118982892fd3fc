package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/fyerfyer/pdf-citation-QA/api"
	"github.com/fyerfyer/pdf-citation-QA/api/handler"
	"github.com/fyerfyer/pdf-citation-QA/api/middleware"
	"github.com/fyerfyer/pdf-citation-QA/config"
	"github.com/fyerfyer/pdf-citation-QA/internal/cache"
	"github.com/fyerfyer/pdf-citation-QA/internal/citation"
	"github.com/fyerfyer/pdf-citation-QA/internal/database"
	"github.com/fyerfyer/pdf-citation-QA/internal/document"
	"github.com/fyerfyer/pdf-citation-QA/internal/embedding"
	"github.com/fyerfyer/pdf-citation-QA/internal/llm"
	"github.com/fyerfyer/pdf-citation-QA/internal/repository"
	"github.com/fyerfyer/pdf-citation-QA/internal/services"
	"github.com/fyerfyer/pdf-citation-QA/internal/vectordb"
	"github.com/fyerfyer/pdf-citation-QA/pkg/storage"
	"github.com/fyerfyer/pdf-citation-QA/pkg/taskqueue"
)

func main() {
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	gin.SetMode(cfg.Server.Mode)

	logger := setupLogger(cfg.Log)
	logger.Info("Starting PDF citation QA service...")

	if err := setupDatabase(cfg.Database, logger); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	fileStorage, err := setupStorage(cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to initialize storage: %v", err)
	}

	vectorDB, err := setupVectorDB(cfg.VectorDB, logger)
	if err != nil {
		logger.Fatalf("Failed to initialize vector database: %v", err)
	}
	defer vectorDB.Close()

	embeddingClient, err := embedding.NewClient(cfg.Embed.Provider,
		embedding.WithAPIKey(cfg.Embed.APIKey),
		embedding.WithModel(cfg.Embed.Model),
		embedding.WithBatchSize(cfg.Embed.BatchSize),
	)
	if err != nil {
		logger.Fatalf("Failed to initialize embedding client: %v", err)
	}

	llmClient, err := llm.NewClient(cfg.LLM.Provider,
		llm.WithAPIKey(cfg.LLM.APIKey),
		llm.WithModel(cfg.LLM.Model),
		llm.WithMaxTokens(cfg.LLM.MaxTokens),
		llm.WithTemperature(cfg.LLM.Temperature),
	)
	if err != nil {
		logger.Fatalf("Failed to initialize LLM client: %v", err)
	}

	// 引用解析器和RAG服务，回答携带编号引用表
	resolver := citation.NewResolver(citation.WithPreviewChars(cfg.Search.PreviewChars))
	ragService := llm.NewRAG(llmClient, resolver,
		llm.WithRAGMaxTokens(cfg.LLM.MaxTokens),
		llm.WithRAGTemperature(cfg.LLM.Temperature),
	)

	// 任务队列是可选的，未启用时文档在上传请求的后台协程中同步处理
	var queue taskqueue.Queue
	var worker taskqueue.Worker
	if cfg.Queue.Enable {
		queue, worker, err = setupTaskQueue(cfg.Queue, logger)
		if err != nil {
			logger.Fatalf("Failed to initialize task queue: %v", err)
		}
		defer queue.Close()
	}

	var repo repository.DocumentRepository
	if queue != nil {
		repo = repository.NewDocumentRepositoryWithQueue(database.MustDB(), queue)
	} else {
		repo = repository.NewDocumentRepository()
	}
	statusManager := services.NewDocumentStatusManager(repo, logger)

	segmenter := document.NewSegmenter(document.SegmenterConfig{
		MaxChunkChars: cfg.Segment.MaxChunkChars,
		OverlapChars:  cfg.Segment.OverlapChars,
	})

	documentOptions := []services.DocumentOption{
		services.WithDocumentRepository(repo),
		services.WithStatusManager(statusManager),
		services.WithBatchSize(cfg.Embed.BatchSize),
		services.WithLogger(logger),
	}
	if queue != nil {
		documentOptions = append(documentOptions,
			services.WithTaskQueue(queue),
			services.WithAsyncProcessing(true),
		)
	}

	documentService := services.NewDocumentService(
		fileStorage,
		segmenter,
		embeddingClient,
		vectorDB,
		documentOptions...,
	)
	if err := documentService.Init(); err != nil {
		logger.Fatalf("Failed to initialize document service: %v", err)
	}

	qaOptions := []services.QAOption{
		services.WithSearchTopK(cfg.Search.TopK),
		services.WithMinScore(cfg.Search.MinScore),
		services.WithDocRepository(repo),
		services.WithQueryRepository(repository.NewQueryRepositoryWithDB(database.MustDB())),
		services.WithQALogger(logger),
	}
	if cfg.Cache.Enable {
		cacheService, err := setupCache(cfg.Cache)
		if err != nil {
			logger.Fatalf("Failed to initialize cache: %v", err)
		}
		qaOptions = append(qaOptions,
			services.WithQACache(cacheService),
			services.WithQACacheTTL(time.Duration(cfg.Cache.TTL)*time.Second),
		)
	}

	qaService := services.NewQAService(
		embeddingClient,
		vectorDB,
		ragService,
		qaOptions...,
	)

	// 队列启用时把处理函数挂到Worker上，由Worker消费任务
	var taskHandler *handler.TaskHandler
	if queue != nil {
		dispatcher := taskqueue.NewDispatcher(queue, logger)
		if err := documentService.RegisterTaskHandlers(dispatcher); err != nil {
			logger.Fatalf("Failed to register task handlers: %v", err)
		}
		dispatcher.Attach(worker)
		if err := worker.Start(); err != nil {
			logger.Fatalf("Failed to start task worker: %v", err)
		}
		defer worker.Stop()

		taskHandler = handler.NewTaskHandler(queue)
	}

	docHandler := handler.NewDocumentHandler(documentService)
	qaHandler := handler.NewQAHandler(qaService)

	router := api.SetupRouter(docHandler, qaHandler, api.RouterConfig{
		APIKey:          cfg.Server.APIKey,
		EnableCORS:      cfg.Server.EnableCORS,
		GenerationReady: cfg.LLM.APIKey != "",
		TaskHandler:     taskHandler,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		logger.Infof("Server is listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatalf("Server forced to shutdown: %v", err)
	}

	logger.Info("Server exited")
}

// setupLogger 设置日志系统
// API中间件共用同一个logger实例，文件输出经lumberjack轮转
func setupLogger(cfg config.LogConfig) *logrus.Logger {
	logger := middleware.GetLogger()

	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if cfg.File != "" {
		rotator := &lumberjack.Logger{
			Filename:   cfg.File,
			MaxSize:    cfg.MaxSize,
			MaxBackups: cfg.MaxBackups,
			MaxAge:     cfg.MaxAge,
			Compress:   cfg.Compress,
		}
		logger.SetOutput(io.MultiWriter(os.Stdout, rotator))
	}

	return logger
}

// setupDatabase 设置数据库
func setupDatabase(cfg config.DatabaseConfig, logger *logrus.Logger) error {
	if cfg.Type == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(cfg.DSN), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return database.Setup(&database.Config{
		Type: cfg.Type,
		DSN:  cfg.DSN,
	}, logger)
}

// setupStorage 设置文件存储服务
func setupStorage(cfg config.StorageConfig) (storage.Storage, error) {
	switch cfg.Type {
	case "minio":
		return storage.NewMinioStorage(storage.MinioConfig{
			Endpoint:  cfg.Endpoint,
			AccessKey: cfg.AccessKey,
			SecretKey: cfg.SecretKey,
			UseSSL:    cfg.UseSSL,
			Bucket:    cfg.Bucket,
		})
	default:
		if err := os.MkdirAll(cfg.Path, 0755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		return storage.NewLocalStorage(storage.LocalConfig{Path: cfg.Path})
	}
}

// setupVectorDB 设置向量数据库
func setupVectorDB(cfg config.VectorDBConfig, logger *logrus.Logger) (vectordb.Repository, error) {
	repo, err := vectordb.NewRepository(vectordb.Config{
		Type:              cfg.Type,
		Path:              cfg.Path,
		Dimension:         cfg.Dim,
		DistanceType:      vectordb.DistanceType(cfg.Distance),
		CreateIfNotExists: true,
	})
	if err != nil && cfg.Type != "memory" {
		// 持久化实现初始化失败时回退到内存实现，服务照常可用
		logger.WithError(err).Warn("Failed to initialize persistent vector database, falling back to in-memory")
		return vectordb.NewRepository(vectordb.Config{
			Type:         "memory",
			Dimension:    cfg.Dim,
			DistanceType: vectordb.DistanceType(cfg.Distance),
		})
	}
	return repo, err
}

// setupCache 设置问答缓存
func setupCache(cfg config.CacheConfig) (cache.Cache, error) {
	cacheConfig := cache.Config{
		Type:            cfg.Type,
		DefaultTTL:      time.Duration(cfg.TTL) * time.Second,
		CleanupInterval: 10 * time.Minute,
	}
	if cfg.Type == "redis" {
		cacheConfig.RedisAddr = cfg.Address
		cacheConfig.RedisPassword = cfg.Password
		cacheConfig.RedisDB = cfg.DB
	}
	return cache.NewCache(cacheConfig)
}

// setupTaskQueue 设置任务队列和配套的Worker
func setupTaskQueue(cfg config.QueueConfig, logger *logrus.Logger) (taskqueue.Queue, taskqueue.Worker, error) {
	queueConfig := taskqueue.DefaultConfig()
	queueConfig.RedisAddr = cfg.RedisAddr
	queueConfig.RedisPassword = cfg.RedisPassword
	queueConfig.RedisDB = cfg.RedisDB
	queueConfig.Concurrency = cfg.Concurrency
	queueConfig.RetryLimit = cfg.RetryLimit
	queueConfig.RetryDelay = time.Duration(cfg.RetryDelay) * time.Second

	logger.WithFields(logrus.Fields{
		"type":        cfg.Type,
		"redis_addr":  cfg.RedisAddr,
		"concurrency": cfg.Concurrency,
	}).Info("Setting up task queue")

	queue, err := taskqueue.NewQueue(cfg.Type, queueConfig)
	if err != nil {
		return nil, nil, err
	}

	redisQueue, ok := queue.(*taskqueue.RedisQueue)
	if !ok {
		queue.Close()
		return nil, nil, fmt.Errorf("queue type %s does not support workers", cfg.Type)
	}

	return queue, taskqueue.NewRedisWorker(redisQueue, queueConfig), nil
}
