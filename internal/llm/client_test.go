package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubClient 测试用的大模型客户端桩
// 记录调用次数和最后一次请求，返回固定结果
type stubClient struct {
	chatCalls    int32
	lastMessages []Message
	lastOptions  *ChatOptions
	response     *Response
	err          error
}

func (s *stubClient) Generate(ctx context.Context, prompt string, options ...GenerateOption) (*Response, error) {
	return s.Chat(ctx, []Message{{Role: RoleUser, Content: prompt}})
}

func (s *stubClient) Chat(ctx context.Context, messages []Message, options ...ChatOption) (*Response, error) {
	atomic.AddInt32(&s.chatCalls, 1)
	s.lastMessages = messages

	opts := &ChatOptions{}
	for _, opt := range options {
		opt(opts)
	}
	s.lastOptions = opts

	if s.err != nil {
		return nil, s.err
	}
	if s.response != nil {
		return s.response, nil
	}
	return &Response{Text: "桩回答", ModelName: s.Name(), FinishTime: time.Now()}, nil
}

func (s *stubClient) Name() string {
	return "stub-model"
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, 60*time.Second, cfg.Timeout, "默认超时时间应为60秒")
	assert.Equal(t, 3, cfg.MaxRetries, "默认重试次数应为3")
	assert.Equal(t, 2048, cfg.MaxTokens, "默认最大Token数应为2048")
	assert.Equal(t, float32(0.2), cfg.Temperature, "默认温度应为0.2")
	assert.Equal(t, float32(0.9), cfg.TopP, "默认TopP应为0.9")
	assert.Empty(t, cfg.BaseURL, "默认BaseURL应为空，由客户端填入")
	assert.Empty(t, cfg.Model, "默认模型应为空，由客户端填入")
}

func TestConfigOptions(t *testing.T) {
	cfg := NewConfig(
		WithAPIKey("test-key"),
		WithBaseURL("https://example.com/api"),
		WithModel(ModelQwenPlus),
		WithTimeout(10*time.Second),
		WithMaxRetries(5),
		WithMaxTokens(512),
		WithTemperature(0.8),
		WithTopP(0.95),
	)

	assert.Equal(t, "test-key", cfg.APIKey, "应正确设置API密钥")
	assert.Equal(t, "https://example.com/api", cfg.BaseURL, "应正确设置BaseURL")
	assert.Equal(t, ModelQwenPlus, cfg.Model, "应正确设置模型")
	assert.Equal(t, 10*time.Second, cfg.Timeout, "应正确设置超时时间")
	assert.Equal(t, 5, cfg.MaxRetries, "应正确设置重试次数")
	assert.Equal(t, 512, cfg.MaxTokens, "应正确设置最大Token数")
	assert.Equal(t, float32(0.8), cfg.Temperature, "应正确设置温度")
	assert.Equal(t, float32(0.95), cfg.TopP, "应正确设置TopP")
}

func TestChatOptions(t *testing.T) {
	opts := &ChatOptions{}
	for _, opt := range []ChatOption{
		WithChatMaxTokens(256),
		WithChatTemperature(0.3),
		WithChatTopP(0.7),
		WithChatTopK(40),
	} {
		opt(opts)
	}

	require.NotNil(t, opts.MaxTokens, "MaxTokens应被设置")
	assert.Equal(t, 256, *opts.MaxTokens, "应正确设置MaxTokens")
	require.NotNil(t, opts.Temperature, "Temperature应被设置")
	assert.Equal(t, float32(0.3), *opts.Temperature, "应正确设置Temperature")
	require.NotNil(t, opts.TopP, "TopP应被设置")
	assert.Equal(t, float32(0.7), *opts.TopP, "应正确设置TopP")
	require.NotNil(t, opts.TopK, "TopK应被设置")
	assert.Equal(t, 40, *opts.TopK, "应正确设置TopK")
}

func TestClientRegistry(t *testing.T) {
	RegisterClient("stub", func(opts ...Option) (Client, error) {
		return &stubClient{}, nil
	})

	client, err := NewClient("stub")
	require.NoError(t, err, "创建已注册的客户端不应返回错误")
	assert.Equal(t, "stub-model", client.Name(), "应返回正确的模型名称")

	_, err = NewClient("no-such-provider")
	require.Error(t, err, "创建未注册的客户端应返回错误")

	var llmErr LLMError
	require.ErrorAs(t, err, &llmErr, "错误类型应为LLMError")
	assert.Equal(t, ErrCodeInvalidRequest, llmErr.Code, "错误码应为无效请求")
}

func TestClientRequiresAPIKey(t *testing.T) {
	for _, name := range []string{"tongyi", "openai"} {
		t.Run(name, func(t *testing.T) {
			_, err := NewClient(name)
			require.Error(t, err, "缺少API密钥时应返回错误")

			var llmErr LLMError
			require.ErrorAs(t, err, &llmErr, "错误类型应为LLMError")
			assert.Equal(t, ErrCodeInvalidAPIKey, llmErr.Code, "错误码应为无效API密钥")
		})
	}
}

func TestTongyiClientChat(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"), "应携带Bearer认证头")

		var req TongyiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req), "请求体应为合法JSON")
		require.NotNil(t, req.Input, "请求应包含输入内容")
		assert.Len(t, req.Input.Messages, 2, "应发送系统消息和用户消息")
		assert.Equal(t, RoleSystem, req.Input.Messages[0].Role, "第一条应为系统消息")
		require.NotNil(t, req.Parameters, "请求应包含参数")
		assert.Equal(t, "message", req.Parameters.ResultFormat, "应使用message格式")
		require.NotNil(t, req.Parameters.MaxTokens, "应设置最大Token数")
		assert.Equal(t, 128, *req.Parameters.MaxTokens, "应透传最大Token数")

		resp := TongyiResponse{
			RequestID: "req-1",
			Output: TongyiOutput{
				Choices: []TongyiChoice{
					{
						FinishReason: "stop",
						Message:      Message{Role: RoleAssistant, Content: "测试回答[1]"},
					},
				},
			},
			Usage: TongyiUsage{InputTokens: 80, OutputTokens: 20, TotalTokens: 100},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewTongyiClient(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
	)
	require.NoError(t, err, "创建客户端不应返回错误")

	messages := []Message{
		{Role: RoleSystem, Content: "你是问答助手"},
		{Role: RoleUser, Content: "测试问题"},
	}
	resp, err := client.Chat(context.Background(), messages, WithChatMaxTokens(128))
	require.NoError(t, err, "对话不应返回错误")
	assert.Equal(t, "测试回答[1]", resp.Text, "应返回模型生成的文本")
	assert.Equal(t, 100, resp.TokenCount, "应统计Token用量")
	require.Len(t, resp.Messages, 1, "应返回助手消息")
	assert.Equal(t, RoleAssistant, resp.Messages[0].Role, "返回消息角色应为助手")
}

func TestTongyiClientRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)

		// 每次请求都必须携带完整的请求体
		var req TongyiRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req), "重试请求体应为合法JSON")
		require.NotNil(t, req.Input, "重试请求应包含输入内容")
		require.NotEmpty(t, req.Input.Messages, "重试请求不应丢失消息")

		if n == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		text := "重试后的回答"
		resp := TongyiResponse{
			Output: TongyiOutput{Text: &text},
			Usage:  TongyiUsage{TotalTokens: 10},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewTongyiClient(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithMaxRetries(2),
	)
	require.NoError(t, err, "创建客户端不应返回错误")

	resp, err := client.Generate(context.Background(), "测试问题")
	require.NoError(t, err, "重试成功后不应返回错误")
	assert.Equal(t, "重试后的回答", resp.Text, "应返回重试成功的文本")
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "首次失败后应重试一次")
}

func TestTongyiClientRateLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer server.Close()

	client, err := NewTongyiClient(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
	)
	require.NoError(t, err, "创建客户端不应返回错误")

	_, err = client.Generate(context.Background(), "测试问题")
	require.Error(t, err, "限流时应返回错误")

	var llmErr LLMError
	require.ErrorAs(t, err, &llmErr, "错误类型应为LLMError")
	assert.Equal(t, ErrCodeRateLimited, llmErr.Code, "错误码应为请求频率超限")
}

func TestTongyiClientEmptyPrompt(t *testing.T) {
	client, err := NewTongyiClient(WithAPIKey("test-key"))
	require.NoError(t, err, "创建客户端不应返回错误")

	_, err = client.Generate(context.Background(), "")
	require.Error(t, err, "空提示词应返回错误")

	var llmErr LLMError
	require.ErrorAs(t, err, &llmErr, "错误类型应为LLMError")
	assert.Equal(t, ErrCodeEmptyPrompt, llmErr.Code, "错误码应为提示词为空")
}

// TestRealTongyiClient 真实API集成测试
// 需要设置TONGYI_API_KEY环境变量
func TestRealTongyiClient(t *testing.T) {
	apiKey := os.Getenv("TONGYI_API_KEY")
	if apiKey == "" {
		t.Skip("未设置TONGYI_API_KEY环境变量，跳过真实API测试")
	}

	client, err := NewClient("tongyi",
		WithAPIKey(apiKey),
		WithModel(ModelQwenTurbo),
	)
	require.NoError(t, err, "创建客户端不应返回错误")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	resp, err := client.Generate(ctx, "用一句话介绍向量检索", WithGenerateMaxTokens(128))
	require.NoError(t, err, "生成回答不应返回错误")
	assert.NotEmpty(t, resp.Text, "回答不应为空")
	assert.Greater(t, resp.TokenCount, 0, "应统计Token用量")

	t.Logf("模型回答: %s", resp.Text)
}
