package llm

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/pdf-citation-QA/internal/citation"
	"github.com/fyerfyer/pdf-citation-QA/internal/document"
)

// testRankedSources 构造带来源单元快照的检索结果
// 第一个来源跨两页，第二个来源只有一个单元
func testRankedSources() []citation.RankedSource {
	return []citation.RankedSource{
		{
			ChunkID: "file1_chunk_0",
			Text:    "向量检索通过计算余弦相似度找到最相关的文本分块。",
			Units: []document.TextUnit{
				{
					Text:       "向量检索通过计算余弦相似度",
					Page:       1,
					Box:        document.NewBoundingBox(60, 100, 480, 120),
					Index:      3,
					PageWidth:  595.32,
					PageHeight: 841.92,
				},
				{
					Text:       "找到最相关的文本分块。",
					Page:       2,
					Box:        document.NewBoundingBox(60, 72, 300, 92),
					Index:      4,
					PageWidth:  595.32,
					PageHeight: 841.92,
				},
			},
			Score: 0.87,
		},
		{
			ChunkID: "file1_chunk_1",
			Text:    "引用编号与检索排序保持一致，从1开始连续编号。",
			Units: []document.TextUnit{
				{
					Text:       "引用编号与检索排序保持一致，从1开始连续编号。",
					Page:       0,
					Box:        document.NewBoundingBox(60, 140, 500, 160),
					Index:      1,
					PageWidth:  595.32,
					PageHeight: 841.92,
				},
			},
			Score: 0.74,
		},
	}
}

func TestAnswerWithSources(t *testing.T) {
	stub := &stubClient{
		response: &Response{Text: "  向量检索通过余弦相似度排序[1]。  ", ModelName: "stub-model"},
	}
	rag := NewRAG(stub, nil)

	result, err := rag.Answer(context.Background(), "向量检索是怎么排序的？", testRankedSources())
	require.NoError(t, err, "回答不应返回错误")
	require.NotNil(t, result, "结果不应为nil")

	assert.Equal(t, "向量检索通过余弦相似度排序[1]。", result.Answer, "应返回去除首尾空白的回答")
	assert.False(t, result.Degraded, "正常回答不应标记为降级")
	assert.Len(t, result.Citations, 2, "每个来源应有一条引用")
	assert.Equal(t, int32(1), stub.chatCalls, "应只调用一次大模型")
}

func TestAnswerPromptAssembly(t *testing.T) {
	stub := &stubClient{}
	rag := NewRAG(stub, nil)

	question := "向量检索是怎么排序的？"
	sources := testRankedSources()
	_, err := rag.Answer(context.Background(), question, sources)
	require.NoError(t, err, "回答不应返回错误")

	require.Len(t, stub.lastMessages, 2, "应发送系统消息和用户消息")
	assert.Equal(t, RoleSystem, stub.lastMessages[0].Role, "第一条应为系统消息")
	assert.Equal(t, DefaultAnswerSystemPrompt, stub.lastMessages[0].Content, "系统消息应使用默认系统提示词")

	prompt := stub.lastMessages[1].Content
	assert.Equal(t, RoleUser, stub.lastMessages[1].Role, "第二条应为用户消息")
	assert.Contains(t, prompt, question, "提示词应包含用户问题")
	assert.Contains(t, prompt, "【来源 1】（第 2 页）", "第一个来源的展示页码应取首个单元所在页")
	assert.Contains(t, prompt, "【来源 2】（第 1 页）", "第二个来源的展示页码应从1开始")
	assert.Contains(t, prompt, sources[0].Text, "提示词应包含第一个来源的完整文本")
	assert.Contains(t, prompt, sources[1].Text, "提示词应包含第二个来源的完整文本")
	assert.Less(t, strings.Index(prompt, "【来源 1】"), strings.Index(prompt, "【来源 2】"),
		"来源编号应按检索排序出现")

	require.NotNil(t, stub.lastOptions.MaxTokens, "应设置最大Token数")
	assert.Equal(t, 2048, *stub.lastOptions.MaxTokens, "默认最大Token数应为2048")
	require.NotNil(t, stub.lastOptions.Temperature, "应设置温度")
	assert.Equal(t, float32(0.2), *stub.lastOptions.Temperature, "默认温度应为0.2")
}

func TestAnswerCitations(t *testing.T) {
	stub := &stubClient{}
	rag := NewRAG(stub, nil)

	sources := testRankedSources()
	result, err := rag.Answer(context.Background(), "向量检索是怎么排序的？", sources)
	require.NoError(t, err, "回答不应返回错误")

	first, ok := result.Citations["1"]
	require.True(t, ok, "应存在编号为1的引用")
	assert.Equal(t, sources[0].Text, first.Text, "短文本的预览应为完整文本")
	assert.Equal(t, 2, first.Page, "主页码应取最后一个来源单元所在页")
	assert.Len(t, first.BoundingBoxes, 2, "应包含全部来源单元的边界框")
	assert.InDelta(t, 595.32, first.PageWidth, 0.001, "应记录主页面宽度")
	assert.InDelta(t, 841.92, first.PageHeight, 0.001, "应记录主页面高度")
	assert.InDelta(t, 0.87, first.Score, 0.001, "分数应保留三位小数")

	second, ok := result.Citations["2"]
	require.True(t, ok, "应存在编号为2的引用")
	assert.Equal(t, 0, second.Page, "单页来源的主页码应为该页")
	assert.Len(t, second.BoundingBoxes, 1, "单个单元应只有一个边界框")
}

func TestAnswerNoSources(t *testing.T) {
	stub := &stubClient{}
	rag := NewRAG(stub, nil)

	result, err := rag.Answer(context.Background(), "一个没有检索结果的问题", nil)
	require.NoError(t, err, "没有检索结果属于正常情况，不应返回错误")
	require.NotNil(t, result, "结果不应为nil")

	assert.Equal(t, NotFoundAnswer, result.Answer, "应返回固定的未找到回答")
	assert.NotNil(t, result.Citations, "引用表应为空表而不是nil")
	assert.Empty(t, result.Citations, "没有来源时引用表应为空")
	assert.False(t, result.Degraded, "未找到不属于降级")
	assert.Equal(t, int32(0), stub.chatCalls, "没有检索结果时不应调用大模型")
}

func TestAnswerEmptyQuestion(t *testing.T) {
	stub := &stubClient{}
	rag := NewRAG(stub, nil)

	for _, question := range []string{"", "   "} {
		_, err := rag.Answer(context.Background(), question, testRankedSources())
		require.Error(t, err, "空问题应返回错误")

		var llmErr LLMError
		require.ErrorAs(t, err, &llmErr, "错误类型应为LLMError")
		assert.Equal(t, ErrCodeEmptyPrompt, llmErr.Code, "错误码应为提示词为空")
	}
	assert.Equal(t, int32(0), stub.chatCalls, "空问题不应调用大模型")
}

func TestAnswerDegraded(t *testing.T) {
	stub := &stubClient{
		err: NewLLMError(ErrCodeServerError, "upstream unavailable"),
	}
	rag := NewRAG(stub, nil)

	result, err := rag.Answer(context.Background(), "向量检索是怎么排序的？", testRankedSources())
	require.Error(t, err, "生成失败应返回错误")
	assert.True(t, errors.Is(err, ErrGenerationFailed), "错误应包装ErrGenerationFailed")

	require.NotNil(t, result, "降级时仍应返回结果")
	assert.True(t, result.Degraded, "生成失败应标记为降级")
	assert.Equal(t, DegradedAnswer, result.Answer, "降级回答应为固定的失败提示")
	assert.Len(t, result.Citations, 2, "降级时引用表应保持完整")
	assert.Equal(t, int32(1), stub.chatCalls, "降级前应只调用过一次大模型")
}

func TestAnswerCustomTemplate(t *testing.T) {
	stub := &stubClient{}
	template := "问题: {{.Question}}\n材料:\n{{.Sources}}"
	rag := NewRAG(stub, nil,
		WithTemplate(template),
		WithSystemPrompt("自定义系统提示词"),
	)

	_, err := rag.Answer(context.Background(), "自定义模板问题", testRankedSources())
	require.NoError(t, err, "回答不应返回错误")

	require.Len(t, stub.lastMessages, 2, "应发送系统消息和用户消息")
	assert.Equal(t, "自定义系统提示词", stub.lastMessages[0].Content, "应使用自定义系统提示词")

	prompt := stub.lastMessages[1].Content
	assert.True(t, strings.HasPrefix(prompt, "问题: 自定义模板问题"), "应按自定义模板组装提示词")
	assert.Contains(t, prompt, "【来源 1】", "自定义模板仍应包含编号后的来源")
	assert.NotContains(t, prompt, "{{.Question}}", "模板变量应被替换")
	assert.NotContains(t, prompt, "{{.Sources}}", "模板变量应被替换")
}

func TestAnswerGenerationOptions(t *testing.T) {
	stub := &stubClient{}
	rag := NewRAG(stub, nil,
		WithRAGMaxTokens(512),
		WithRAGTemperature(0.5),
		WithRAGTimeout(5*time.Second),
	)

	_, err := rag.Answer(context.Background(), "配置选项测试", testRankedSources())
	require.NoError(t, err, "回答不应返回错误")

	require.NotNil(t, stub.lastOptions.MaxTokens, "应设置最大Token数")
	assert.Equal(t, 512, *stub.lastOptions.MaxTokens, "应使用自定义最大Token数")
	require.NotNil(t, stub.lastOptions.Temperature, "应设置温度")
	assert.Equal(t, float32(0.5), *stub.lastOptions.Temperature, "应使用自定义温度")
}

func TestAnswerSourceWithoutUnits(t *testing.T) {
	stub := &stubClient{}
	rag := NewRAG(stub, nil)

	sources := []citation.RankedSource{
		{
			ChunkID: "file2_chunk_0",
			Text:    "没有位置信息的文本分块。",
			Score:   0.6,
		},
	}
	result, err := rag.Answer(context.Background(), "没有单元快照时会怎样？", sources)
	require.NoError(t, err, "回答不应返回错误")

	assert.Contains(t, stub.lastMessages[1].Content, "【来源 1】（第 1 页）",
		"没有单元快照的来源应归到第1页")

	entry, ok := result.Citations["1"]
	require.True(t, ok, "应存在编号为1的引用")
	assert.Empty(t, entry.BoundingBoxes, "没有单元快照时边界框应为空")
}

// TestRealRAGAnswer 真实API集成测试
// 需要设置TONGYI_API_KEY环境变量
func TestRealRAGAnswer(t *testing.T) {
	apiKey := os.Getenv("TONGYI_API_KEY")
	if apiKey == "" {
		t.Skip("未设置TONGYI_API_KEY环境变量，跳过真实API测试")
	}

	client, err := NewClient("tongyi", WithAPIKey(apiKey))
	require.NoError(t, err, "创建客户端不应返回错误")

	rag := NewRAG(client, nil, WithRAGTimeout(30*time.Second))

	result, err := rag.Answer(context.Background(), "向量检索是怎么找到相关分块的？", testRankedSources())
	require.NoError(t, err, "回答不应返回错误")
	assert.NotEmpty(t, result.Answer, "回答不应为空")
	assert.Len(t, result.Citations, 2, "应返回全部引用")

	t.Logf("模型回答: %s", result.Answer)
}
