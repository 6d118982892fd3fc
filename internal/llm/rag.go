package llm

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fyerfyer/pdf-citation-QA/internal/citation"
)

// DefaultAnswerTemplate 默认问答提示词模板
// 包含变量：
// {{.Question}} - 用户问题
// {{.Sources}} - 编号后的来源内容
const DefaultAnswerTemplate = `以下是从文档中检索到的来源内容，按相关度编号：

{{.Sources}}
用户问题: {{.Question}}

请严格根据上面的来源内容回答问题：
1. 引用某个来源时，在对应内容后面标注编号，例如[1]、[2]
2. 如果来源内容不足以回答问题，直接说"抱歉，我没有找到相关信息"，不要猜测或编造
3. 直接回答问题，不要重复问题内容`

// DefaultAnswerSystemPrompt 默认系统提示词
const DefaultAnswerSystemPrompt = `你是一个严谨的文档问答助手。你只能使用用户提供的来源内容回答问题，并且必须用[编号]的格式标注引用的来源。`

// NotFoundAnswer 检索不到相关内容时的固定回答
// 不调用大模型，直接返回
const NotFoundAnswer = "抱歉，我没有找到相关信息，无法回答这个问题。"

// DegradedAnswer 回答生成失败时的降级回答
const DegradedAnswer = "抱歉，回答生成失败，请稍后重试。"

// ErrGenerationFailed 回答生成失败
// 与降级结果一起返回，调用方可以选择展示降级回答和引用
var ErrGenerationFailed = errors.New("answer generation failed")

// AnswerResult 问答结果
// Citations的键是回答文本中标注的来源编号，从"1"开始
type AnswerResult struct {
	Answer    string                     // 回答文本
	Citations map[string]*citation.Entry // 编号到引用条目的映射
	Degraded  bool                       // 生成失败降级时为true，引用仍然完整
}

// RAGConfig 检索增强问答配置
type RAGConfig struct {
	SystemPrompt string        // 系统提示词
	Template     string        // 提示词模板
	MaxTokens    int           // 最大生成Token数
	Temperature  float32       // 温度参数
	Timeout      time.Duration // 生成超时时间
}

// DefaultRAGConfig 返回默认配置
func DefaultRAGConfig() *RAGConfig {
	return &RAGConfig{
		SystemPrompt: DefaultAnswerSystemPrompt,
		Template:     DefaultAnswerTemplate,
		MaxTokens:    2048,
		Temperature:  0.2,
		Timeout:      30 * time.Second,
	}
}

// RAGService 检索增强问答服务
// 将检索结果装配成提示词交给大模型，并为每个来源构建可高亮的引用
type RAGService struct {
	Client   Client
	resolver *citation.Resolver
	config   *RAGConfig
}

// RAGOption RAG服务配置选项
type RAGOption func(*RAGConfig)

// WithTemplate 设置自定义提示词模板
func WithTemplate(template string) RAGOption {
	return func(c *RAGConfig) {
		if template != "" {
			c.Template = template
		}
	}
}

// WithSystemPrompt 设置自定义系统提示词
func WithSystemPrompt(prompt string) RAGOption {
	return func(c *RAGConfig) {
		if prompt != "" {
			c.SystemPrompt = prompt
		}
	}
}

// WithRAGMaxTokens 设置最大生成Token数
func WithRAGMaxTokens(maxTokens int) RAGOption {
	return func(c *RAGConfig) {
		if maxTokens > 0 {
			c.MaxTokens = maxTokens
		}
	}
}

// WithRAGTemperature 设置温度参数
func WithRAGTemperature(temperature float32) RAGOption {
	return func(c *RAGConfig) {
		if temperature >= 0 {
			c.Temperature = temperature
		}
	}
}

// WithRAGTimeout 设置生成超时时间
func WithRAGTimeout(timeout time.Duration) RAGOption {
	return func(c *RAGConfig) {
		if timeout > 0 {
			c.Timeout = timeout
		}
	}
}

// NewRAG 创建检索增强问答服务
// resolver为nil时使用默认引用解析器
func NewRAG(client Client, resolver *citation.Resolver, opts ...RAGOption) *RAGService {
	config := DefaultRAGConfig()
	for _, opt := range opts {
		opt(config)
	}

	if resolver == nil {
		resolver = citation.NewResolver()
	}

	return &RAGService{
		Client:   client,
		resolver: resolver,
		config:   config,
	}
}

// Answer 根据检索结果回答问题
//
// sources为空时不调用大模型，直接返回固定的未找到回答和空引用表，
// 这种情况属于正常结果，错误为nil。生成失败时返回降级结果：
// 回答为固定的失败提示，引用表仍然完整，Degraded为true，
// 同时返回包装了ErrGenerationFailed的错误，由调用方决定如何呈现。
func (r *RAGService) Answer(ctx context.Context, question string, sources []citation.RankedSource) (*AnswerResult, error) {
	if strings.TrimSpace(question) == "" {
		return nil, NewLLMError(ErrCodeEmptyPrompt, "question cannot be empty")
	}

	if len(sources) == 0 {
		return &AnswerResult{
			Answer:    NotFoundAnswer,
			Citations: map[string]*citation.Entry{},
		}, nil
	}

	// 先构建引用表，生成失败时引用仍然可用
	citations := r.resolver.Resolve(sources)

	prompt := r.buildPrompt(question, sources)

	if r.config.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.Timeout)
		defer cancel()
	}

	messages := []Message{
		{Role: RoleSystem, Content: r.config.SystemPrompt},
		{Role: RoleUser, Content: prompt},
	}

	resp, err := r.Client.Chat(ctx, messages,
		WithChatMaxTokens(r.config.MaxTokens),
		WithChatTemperature(r.config.Temperature),
	)
	if err != nil {
		return &AnswerResult{
			Answer:    DegradedAnswer,
			Citations: citations,
			Degraded:  true,
		}, fmt.Errorf("%w: %v", ErrGenerationFailed, err)
	}

	return &AnswerResult{
		Answer:    strings.TrimSpace(resp.Text),
		Citations: citations,
	}, nil
}

// buildPrompt 将问题和来源内容填入模板
func (r *RAGService) buildPrompt(question string, sources []citation.RankedSource) string {
	prompt := strings.ReplaceAll(r.config.Template, "{{.Sources}}", formatSources(sources))
	prompt = strings.ReplaceAll(prompt, "{{.Question}}", question)
	return prompt
}

// formatSources 将来源格式化为带编号和页码的文本块
// 编号与引用表的键一致，展示页码从1开始，取来源首个单元所在页
func formatSources(sources []citation.RankedSource) string {
	var sb strings.Builder
	for i, source := range sources {
		sb.WriteString(fmt.Sprintf("【来源 %d】（第 %d 页）\n%s\n\n", i+1, displayPage(source), source.Text))
	}
	return sb.String()
}

// displayPage 计算来源的展示页码
// 内部页码从0开始，展示页码从1开始；没有单元快照时归到第1页
func displayPage(source citation.RankedSource) int {
	if len(source.Units) == 0 {
		return 1
	}
	return source.Units[0].Page + 1
}
