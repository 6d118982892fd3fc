package llm

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient OpenAI大模型客户端实现
// 兼容所有提供OpenAI格式chat接口的服务，通过BaseURL切换
type OpenAIClient struct {
	client      *openai.Client // 官方SDK客户端
	model       string         // 模型名称
	maxRetries  int            // 最大重试次数
	maxTokens   int            // 最大生成Token数
	temperature float32        // 温度参数
	topP        float32        // topP参数
	timeout     time.Duration  // 单次请求超时时间
}

// NewOpenAIClient 创建新的OpenAI大模型客户端
func NewOpenAIClient(opts ...Option) (Client, error) {
	cfg := NewConfig(opts...)

	if cfg.APIKey == "" {
		return nil, NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
	}

	model := cfg.Model
	if model == "" {
		model = ModelGPT4oMini
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}

	client := &OpenAIClient{
		client:      openai.NewClientWithConfig(clientConfig),
		model:       model,
		maxRetries:  cfg.MaxRetries,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		topP:        cfg.TopP,
		timeout:     cfg.Timeout,
	}

	return client, nil
}

// Name 返回模型名称
func (c *OpenAIClient) Name() string {
	return c.model
}

// Generate 根据提示词生成回答
func (c *OpenAIClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	if prompt == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, ErrMsgEmptyPrompt)
	}

	messages := []Message{
		{
			Role:    RoleUser,
			Content: prompt,
		},
	}

	return c.Chat(ctx, messages, applyGenerateOptions(options...).asChatOptions()...)
}

// Chat 进行多轮对话
func (c *OpenAIClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	if len(messages) == 0 {
		return nil, NewLLMError(ErrCodeInvalidRequest, "messages cannot be empty")
	}

	opts := applyChatOptions(options...)

	req := openai.ChatCompletionRequest{
		Model:    c.model,
		Messages: convertMessages(messages),
	}

	if opts.MaxTokens != nil {
		req.MaxTokens = *opts.MaxTokens
	} else if c.maxTokens > 0 {
		req.MaxTokens = c.maxTokens
	}

	if opts.Temperature != nil {
		req.Temperature = *opts.Temperature
	} else if c.temperature > 0 {
		req.Temperature = c.temperature
	}

	if opts.TopP != nil {
		req.TopP = *opts.TopP
	} else if c.topP > 0 {
		req.TopP = c.topP
	}

	var resp openai.ChatCompletionResponse
	var err error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, NewLLMError(ErrCodeTimeout, ctx.Err().Error())
			case <-time.After(time.Duration(1<<attempt) * 100 * time.Millisecond):
			}
		}

		resp, err = c.createChatCompletion(ctx, req)
		if err == nil {
			break
		}

		if !isRetryableOpenAIError(err) {
			return nil, translateOpenAIChatError(err)
		}
	}

	if err != nil {
		return nil, translateOpenAIChatError(err)
	}

	return c.processResponse(&resp)
}

// createChatCompletion 发送单次请求，附加独立超时
func (c *OpenAIClient) createChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	return c.client.CreateChatCompletion(ctx, req)
}

// processResponse 处理OpenAI的响应
func (c *OpenAIClient) processResponse(resp *openai.ChatCompletionResponse) (*Response, error) {
	if len(resp.Choices) == 0 {
		return nil, NewLLMError(ErrCodeServerError, "empty response from API")
	}

	choice := resp.Choices[0]
	result := &Response{
		Text:       choice.Message.Content,
		ModelName:  c.model,
		TokenCount: resp.Usage.TotalTokens,
		FinishTime: time.Now(),
	}
	result.Messages = append(result.Messages, Message{
		Role:    MessageRole(choice.Message.Role),
		Content: choice.Message.Content,
	})

	return result, nil
}

// convertMessages 将通用消息格式转换为SDK格式
func convertMessages(messages []Message) []openai.ChatCompletionMessage {
	converted := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		converted = append(converted, openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
			Name:    msg.Name,
		})
	}
	return converted
}

// isRetryableOpenAIError 判断错误是否可以重试
func isRetryableOpenAIError(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// translateOpenAIChatError 将SDK错误转换为统一的LLM错误
func translateOpenAIChatError(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 401:
			return NewLLMError(ErrCodeInvalidAPIKey, ErrMsgInvalidAPIKey)
		case apiErr.HTTPStatusCode == 429:
			return NewLLMError(ErrCodeRateLimited, ErrMsgRateLimited)
		case apiErr.HTTPStatusCode >= 500:
			return NewLLMError(ErrCodeServerError, fmt.Sprintf("API error: %v", apiErr.Message))
		default:
			return NewLLMError(ErrCodeInvalidRequest, fmt.Sprintf("API error: %v", apiErr.Message))
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return NewLLMError(ErrCodeTimeout, ErrMsgTimeout)
	}

	return NewLLMError(ErrCodeNetworkError, fmt.Sprintf("request failed: %v", err))
}

// 在包初始化时注册OpenAI客户端
func init() {
	RegisterClient("openai", NewOpenAIClient)
}
