package embedding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
)

// 默认OpenAI嵌入模型
const defaultOpenAIModel = "text-embedding-3-small"

// OpenAIClient OpenAI嵌入API客户端
type OpenAIClient struct {
	client     *openai.Client // OpenAI API客户端
	model      string         // 使用的嵌入模型
	maxRetries int            // 最大重试次数
	dimensions int            // 向量维度，0表示模型默认
	batchSize  int            // 单次请求的最大文本数
	timeout    time.Duration  // 单次请求超时时间
}

// NewOpenAIClient 创建新的OpenAI嵌入客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	model := cfg.Model
	if model == "" {
		model = defaultOpenAIModel
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 16
	}

	return &OpenAIClient{
		client:     openai.NewClientWithConfig(clientConfig),
		model:      model,
		maxRetries: cfg.MaxRetries,
		dimensions: cfg.Dimensions,
		batchSize:  batchSize,
		timeout:    cfg.Timeout,
	}, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.model
}

// Embed 生成单条文本的向量表示
func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}

	if len(vectors) == 0 {
		return nil, NewEmbeddingError(ErrCodeServerError, "no embedding vectors returned")
	}

	return vectors[0], nil
}

// EmbedBatch 批量生成文本的向量表示
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if len(texts) > c.batchSize {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest,
			fmt.Sprintf("batch size %d exceeds maximum %d", len(texts), c.batchSize))
	}

	for _, text := range texts {
		if text == "" {
			return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
		}
	}

	req := openai.EmbeddingRequest{
		Input: texts,
		Model: openai.EmbeddingModel(c.model),
	}
	if c.dimensions > 0 {
		req.Dimensions = c.dimensions
	}

	var resp openai.EmbeddingResponse
	var err error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, NewEmbeddingError(ErrCodeTimeout, ctx.Err().Error())
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}

		resp, err = c.createEmbeddings(ctx, req)
		if err == nil {
			break
		}
		if !isRetryableError(err) {
			return nil, translateOpenAIError(err)
		}
	}
	if err != nil {
		return nil, translateOpenAIError(err)
	}

	if len(resp.Data) == 0 {
		return nil, NewEmbeddingError(ErrCodeServerError, "no embeddings returned")
	}

	// 按照原始文本顺序构建结果
	result := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(texts) {
			continue
		}
		result[item.Index] = item.Embedding
	}

	return result, nil
}

// createEmbeddings 执行单次带超时的嵌入请求
func (c *OpenAIClient) createEmbeddings(ctx context.Context, req openai.EmbeddingRequest) (openai.EmbeddingResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	return c.client.CreateEmbeddings(ctx, req)
}

// isRetryableError 判断错误是否可以重试
// 速率限制和服务端错误可以重试，其余错误直接返回
func isRetryableError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests ||
			apiErr.HTTPStatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// translateOpenAIError 将OpenAI错误转换为嵌入错误
func translateOpenAIError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == http.StatusUnauthorized:
			return NewEmbeddingError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
		case apiErr.HTTPStatusCode == http.StatusTooManyRequests:
			return NewEmbeddingError(ErrCodeRateLimited, ErrMsgRateLimited)
		case apiErr.HTTPStatusCode >= 500:
			return NewEmbeddingError(ErrCodeServerError, apiErr.Message)
		default:
			return NewEmbeddingError(ErrCodeInvalidRequest, apiErr.Message)
		}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return NewEmbeddingError(ErrCodeTimeout, ErrMsgTimeout)
	}
	return NewEmbeddingError(ErrCodeNetworkError, fmt.Sprintf("embedding API error: %v", err))
}

// 在包初始化时注册OpenAI客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
}
