package embedding

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

// MockClient 实现了Client接口的模拟客户端
type MockClient struct {
	vectors  map[string][]float32 // 预设的向量结果
	embedErr error                // 注入的错误
}

// NewMockClient 创建一个新的模拟客户端
func NewMockClient() *MockClient {
	return &MockClient{
		vectors: map[string][]float32{
			"hello": {0.1, 0.2, 0.3},
			"world": {0.4, 0.5, 0.6},
		},
	}
}

// Embed 实现Client接口的Embed方法
func (m *MockClient) Embed(ctx context.Context, text string) ([]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if text == "" {
		return nil, NewEmbeddingError(ErrCodeEmptyInput, ErrMsgEmptyInput)
	}

	if vec, ok := m.vectors[text]; ok {
		return vec, nil
	}

	// 未预设的文本返回由文本长度推导的向量，便于验证顺序
	return []float32{float32(len(text)), 0.5, 0.25}, nil
}

// EmbedBatch 实现Client接口的EmbedBatch方法
func (m *MockClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if m.embedErr != nil {
		return nil, m.embedErr
	}
	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	if len(texts) > 10 {
		return nil, NewEmbeddingError(ErrCodeInvalidRequest, "batch too large")
	}

	results := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := m.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		results[i] = vec
	}

	return results, nil
}

// Name 返回模型名称
func (m *MockClient) Name() string {
	return "mock-model"
}

// TestMockEmbedding 测试模拟嵌入客户端
func TestMockEmbedding(t *testing.T) {
	client := NewMockClient()
	ctx := context.Background()

	t.Run("single text", func(t *testing.T) {
		vector, err := client.Embed(ctx, "hello")
		require.NoError(t, err)
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, vector)

		_, err = client.Embed(ctx, "")
		require.Error(t, err, "空文本应该返回错误")

		var embErr EmbeddingError
		require.ErrorAs(t, err, &embErr)
		assert.Equal(t, ErrCodeEmptyInput, embErr.Code)
	})

	t.Run("batch text", func(t *testing.T) {
		texts := []string{"hello", "world", "test"}
		vectors, err := client.EmbedBatch(ctx, texts)
		require.NoError(t, err)
		require.Len(t, vectors, len(texts))

		assert.Equal(t, []float32{0.1, 0.2, 0.3}, vectors[0])
		assert.Equal(t, []float32{0.4, 0.5, 0.6}, vectors[1])
		assert.Equal(t, []float32{4, 0.5, 0.25}, vectors[2])

		emptyVectors, err := client.EmbedBatch(ctx, []string{})
		require.NoError(t, err)
		assert.Empty(t, emptyVectors)

		largeBatch := make([]string, 11)
		for i := range largeBatch {
			largeBatch[i] = "text"
		}
		_, err = client.EmbedBatch(ctx, largeBatch)
		assert.Error(t, err, "超出批量限制应该返回错误")
	})
}

// TestBatchProcessor 测试批处理器
func TestBatchProcessor(t *testing.T) {
	mockClient := NewMockClient()
	processor := NewBatchProcessor(mockClient, 2, 2)
	ctx := context.Background()

	t.Run("order preserved across batches", func(t *testing.T) {
		texts := []string{"hello", "world", "ab", "abcd", "abcdefgh"}

		vectors, err := processor.Process(ctx, texts)
		require.NoError(t, err)
		require.Len(t, vectors, len(texts))

		// 每个位置的向量必须对应原始文本，跨批次也不能乱序
		assert.Equal(t, []float32{0.1, 0.2, 0.3}, vectors[0])
		assert.Equal(t, []float32{0.4, 0.5, 0.6}, vectors[1])
		assert.Equal(t, []float32{2, 0.5, 0.25}, vectors[2])
		assert.Equal(t, []float32{4, 0.5, 0.25}, vectors[3])
		assert.Equal(t, []float32{8, 0.5, 0.25}, vectors[4])
	})

	t.Run("empty input", func(t *testing.T) {
		vectors, err := processor.Process(ctx, []string{})
		require.NoError(t, err)
		assert.Empty(t, vectors)
	})

	t.Run("empty texts keep position", func(t *testing.T) {
		texts := []string{"hello", "", "world"}
		vectors, err := processor.Process(ctx, texts)
		require.NoError(t, err)
		require.Len(t, vectors, 3)

		assert.Equal(t, []float32{0.1, 0.2, 0.3}, vectors[0])
		assert.Nil(t, vectors[1], "空文本位置应该返回nil")
		assert.Equal(t, []float32{0.4, 0.5, 0.6}, vectors[2])
	})

	t.Run("propagates client error", func(t *testing.T) {
		failing := NewMockClient()
		failing.embedErr = NewEmbeddingError(ErrCodeServerError, ErrMsgServerError)
		failingProcessor := NewBatchProcessor(failing, 2, 2)

		_, err := failingProcessor.Process(ctx, []string{"hello", "world"})
		assert.Error(t, err)
	})
}

// TestTongyiClientDashScope 测试通义客户端的DashScope接口处理
func TestTongyiClientDashScope(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		var req DashScopeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Input.Texts, "请求体不能为空")

		// 故意乱序返回，验证客户端按text_index重排
		resp := DashScopeResponse{
			RequestID: "test-request",
			Output: DashScopeOutput{
				Embeddings: []DashScopeEmbedding{
					{Embedding: []float32{0.4, 0.5}, TextIndex: 1},
					{Embedding: []float32{0.1, 0.2}, TextIndex: 0},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewTongyiClient(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithTimeout(5*time.Second),
	)
	require.NoError(t, err)
	assert.Equal(t, "text-embedding-v1", client.Name(), "未指定模型时应使用默认模型")

	vectors, err := client.EmbedBatch(context.Background(), []string{"第一段", "第二段"})
	require.NoError(t, err)
	require.Len(t, vectors, 2)
	assert.Equal(t, []float32{0.1, 0.2}, vectors[0], "结果顺序应与输入文本一致")
	assert.Equal(t, []float32{0.4, 0.5}, vectors[1])
}

// TestTongyiClientRetry 测试通义客户端对服务端错误的重试
func TestTongyiClientRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempt := atomic.AddInt32(&calls, 1)

		var req DashScopeRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.NotEmpty(t, req.Input.Texts, "重试请求也必须携带完整请求体")

		if attempt == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}

		resp := DashScopeResponse{
			RequestID: "retry-request",
			Output: DashScopeOutput{
				Embeddings: []DashScopeEmbedding{
					{Embedding: []float32{0.7, 0.8}, TextIndex: 0},
				},
			},
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	client, err := NewTongyiClient(
		WithAPIKey("test-key"),
		WithBaseURL(server.URL),
		WithTimeout(5*time.Second),
		WithMaxRetries(2),
	)
	require.NoError(t, err)

	vector, err := client.Embed(context.Background(), "重试测试")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.7, 0.8}, vector)
	assert.Equal(t, int32(2), atomic.LoadInt32(&calls), "第一次失败后应该重试一次")
}

// TestRealOpenAIClient 测试实际的OpenAI客户端
func TestRealOpenAIClient(t *testing.T) {
	apiKey := os.Getenv("OPENAI_API_KEY")
	if apiKey == "" {
		t.Skip("OPENAI_API_KEY not set, skipping OpenAI client test")
	}

	client, err := NewClient("openai", WithAPIKey(apiKey))
	require.NoError(t, err)

	t.Run("single embed", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		vector, err := client.Embed(ctx, "This is a test sentence.")
		require.NoError(t, err)
		assert.NotEmpty(t, vector)
	})

	t.Run("batch embed", func(t *testing.T) {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		texts := []string{
			"First test sentence.",
			"Second completely different sentence.",
		}

		vectors, err := client.EmbedBatch(ctx, texts)
		require.NoError(t, err)
		require.Len(t, vectors, len(texts))
		for _, vec := range vectors {
			assert.NotEmpty(t, vec)
		}
	})
}
