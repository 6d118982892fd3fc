package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyerfyer/pdf-citation-QA/internal/cache"
	"github.com/fyerfyer/pdf-citation-QA/internal/citation"
	"github.com/fyerfyer/pdf-citation-QA/internal/document"
	"github.com/fyerfyer/pdf-citation-QA/internal/embedding"
	"github.com/fyerfyer/pdf-citation-QA/internal/llm"
	"github.com/fyerfyer/pdf-citation-QA/internal/models"
	"github.com/fyerfyer/pdf-citation-QA/internal/repository"
	"github.com/fyerfyer/pdf-citation-QA/internal/vectordb"
	"github.com/sirupsen/logrus"
)

// QAService 问答服务
// 负责把问题转成向量检索分块，交给RAG生成带引用的回答
type QAService struct {
	embedder  embedding.Client    // 嵌入模型客户端
	vectorDB  vectordb.Repository // 向量数据库
	rag       *llm.RAGService     // 检索增强问答服务
	cache     cache.Cache         // 问答结果缓存
	docRepo   repository.DocumentRepository
	queryRepo repository.QueryRepository // 问答历史存储
	topK      int                        // 检索返回的分块数量
	minScore  float32                    // 最小相似度阈值
	cacheTTL  time.Duration              // 缓存过期时间
	logger    *logrus.Logger             // 日志记录器
}

// QAOption 问答服务配置选项
type QAOption func(*QAService)

// NewQAService 创建问答服务
func NewQAService(
	embedder embedding.Client,
	vectorDB vectordb.Repository,
	rag *llm.RAGService,
	opts ...QAOption,
) *QAService {
	svc := &QAService{
		embedder: embedder,
		vectorDB: vectorDB,
		rag:      rag,
		topK:     5,              // 默认检索5个分块
		minScore: 0.0,            // 默认不过滤低分结果
		cacheTTL: time.Hour * 24, // 默认缓存一天
		logger:   logrus.New(),
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc
}

// WithSearchTopK 设置检索返回的分块数量
func WithSearchTopK(k int) QAOption {
	return func(s *QAService) {
		if k > 0 {
			s.topK = k
		}
	}
}

// WithMinScore 设置最小相似度阈值
func WithMinScore(score float32) QAOption {
	return func(s *QAService) {
		s.minScore = score
	}
}

// WithQACache 设置问答结果缓存
func WithQACache(c cache.Cache) QAOption {
	return func(s *QAService) {
		s.cache = c
	}
}

// WithQACacheTTL 设置缓存过期时间
func WithQACacheTTL(ttl time.Duration) QAOption {
	return func(s *QAService) {
		if ttl > 0 {
			s.cacheTTL = ttl
		}
	}
}

// WithQALogger 设置日志记录器
func WithQALogger(logger *logrus.Logger) QAOption {
	return func(s *QAService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithDocRepository 设置文档仓储，用于校验文档是否可检索
func WithDocRepository(repo repository.DocumentRepository) QAOption {
	return func(s *QAService) {
		s.docRepo = repo
	}
}

// WithQueryRepository 设置问答历史存储
func WithQueryRepository(repo repository.QueryRepository) QAOption {
	return func(s *QAService) {
		s.queryRepo = repo
	}
}

// cachedAnswer 缓存中的问答结果
type cachedAnswer struct {
	Answer    string                     `json:"answer"`
	Citations map[string]*citation.Entry `json:"citations"`
}

// Answer 在全部已入库文档中回答问题
func (s *QAService) Answer(ctx context.Context, question string) (*llm.AnswerResult, error) {
	return s.answer(ctx, "", question)
}

// AnswerWithFile 在指定文档范围内回答问题
func (s *QAService) AnswerWithFile(ctx context.Context, fileID string, question string) (*llm.AnswerResult, error) {
	return s.answer(ctx, fileID, question)
}

// answer 执行一次完整的问答流程
// 检索不到内容返回未找到回答，生成失败返回带完整引用的降级回答，都不算错误
func (s *QAService) answer(ctx context.Context, fileID string, question string) (*llm.AnswerResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, errors.New("question cannot be empty")
	}

	start := time.Now()

	// 限定文档时先确认文档存在且可检索
	if fileID != "" && s.docRepo != nil {
		doc, err := s.docRepo.GetByID(fileID)
		if err != nil {
			return nil, models.ErrDocumentNotFound
		}
		if doc.Status != models.DocStatusCompleted {
			return nil, models.ErrDocumentNotReady
		}
	}

	// 先查缓存
	cacheKey := cache.AnswerKey(fileID, question)
	if s.cache != nil {
		if value, found, err := s.cache.Get(cacheKey); err == nil && found {
			var cached cachedAnswer
			if err := json.Unmarshal([]byte(value), &cached); err == nil {
				s.logger.WithFields(logrus.Fields{
					"file_id": fileID,
					"key":     cacheKey,
				}).Debug("Answer cache hit")

				result := &llm.AnswerResult{
					Answer:    cached.Answer,
					Citations: cached.Citations,
				}
				s.recordQuery(ctx, fileID, question, result, true, time.Since(start))
				return result, nil
			}
		}
	}

	// 问题向量化
	vector, err := s.embedder.Embed(ctx, question)
	if err != nil {
		return nil, fmt.Errorf("failed to embed question: %w", err)
	}

	// 相似度检索
	filter := vectordb.SearchFilter{
		MinScore:   s.minScore,
		MaxResults: s.topK,
	}
	if fileID != "" {
		filter.FileIDs = []string{fileID}
	}

	results, err := s.vectorDB.Search(vector, filter)
	if err != nil {
		return nil, fmt.Errorf("failed to search vectors: %w", err)
	}

	sources := s.buildRankedSources(results)

	// 生成回答，降级结果照常返回给调用方
	result, err := s.rag.Answer(ctx, question, sources)
	if err != nil && !errors.Is(err, llm.ErrGenerationFailed) {
		return nil, err
	}
	if result.Degraded {
		s.logger.WithFields(logrus.Fields{
			"file_id": fileID,
			"error":   err,
		}).Warn("Answer generation degraded")
	}

	s.recordQuery(ctx, fileID, question, result, false, time.Since(start))

	// 降级回答不缓存，下次重试还有机会得到正常回答
	if s.cache != nil && !result.Degraded {
		data, err := json.Marshal(cachedAnswer{
			Answer:    result.Answer,
			Citations: result.Citations,
		})
		if err == nil {
			if err := s.cache.Set(cacheKey, string(data), s.cacheTTL); err != nil {
				s.logger.WithError(err).Warn("Failed to cache answer")
			}
		}
	}

	return result, nil
}

// buildRankedSources 将检索结果还原为带单元快照的来源序列
// 顺序保持检索端给定的相关度排序，序号即引用编号
func (s *QAService) buildRankedSources(results []vectordb.SearchResult) []citation.RankedSource {
	sources := make([]citation.RankedSource, 0, len(results))
	for _, result := range results {
		source := citation.RankedSource{
			ChunkID: result.Record.ID,
			Text:    result.Record.Text,
			Score:   result.Score,
		}

		// 元数据里的单元快照缺失或损坏时引用退化为无高亮，不中断回答
		if raw, ok := result.Record.Metadata["source_units"].(string); ok && raw != "" {
			units, err := document.DecodeUnits(raw)
			if err != nil {
				s.logger.WithError(err).WithField("chunk_id", result.Record.ID).
					Warn("Failed to decode source units from metadata")
			} else {
				source.Units = units
			}
		}

		sources = append(sources, source)
	}
	return sources
}

// recordQuery 记录问答历史，失败只影响审计不影响回答
func (s *QAService) recordQuery(ctx context.Context, fileID string, question string, result *llm.AnswerResult, fromCache bool, latency time.Duration) {
	if s.queryRepo == nil {
		return
	}

	citationsJSON, err := json.Marshal(result.Citations)
	if err != nil {
		s.logger.WithError(err).Warn("Failed to marshal citations for history")
		citationsJSON = []byte("{}")
	}

	record := &models.QueryRecord{
		DocumentID: fileID,
		Question:   question,
		Answer:     result.Answer,
		Citations:  citationsJSON,
		TopK:       s.topK,
		Degraded:   result.Degraded,
		FromCache:  fromCache,
		LatencyMs:  latency.Milliseconds(),
	}

	if err := s.queryRepo.WithContext(ctx).Create(record); err != nil {
		s.logger.WithError(err).Warn("Failed to record query history")
	}
}

// GetHistory 获取问答历史，documentID为空时不过滤文档
func (s *QAService) GetHistory(ctx context.Context, documentID string, offset, limit int) ([]*models.QueryRecord, int64, error) {
	if s.queryRepo == nil {
		return nil, 0, errors.New("query repository not configured")
	}

	filters := map[string]interface{}{}
	if documentID != "" {
		filters["document_id"] = documentID
	}

	return s.queryRepo.WithContext(ctx).List(offset, limit, filters)
}

// RecentQueries 获取最近的问答记录
func (s *QAService) RecentQueries(ctx context.Context, limit int) ([]*models.QueryRecord, error) {
	if s.queryRepo == nil {
		return nil, errors.New("query repository not configured")
	}

	return s.queryRepo.WithContext(ctx).Recent(limit)
}

// ClearHistory 清除指定文档的问答历史
func (s *QAService) ClearHistory(ctx context.Context, documentID string) error {
	if s.queryRepo == nil {
		return errors.New("query repository not configured")
	}

	return s.queryRepo.WithContext(ctx).DeleteByDocument(documentID)
}
