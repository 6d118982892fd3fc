package embedding

// DashScopeRequest DashScope原生嵌入API请求结构
type DashScopeRequest struct {
	Model      string                `json:"model"`                // 模型名称
	Input      DashScopeRequestInput `json:"input"`                // 输入文本
	Parameters *DashScopeParameters  `json:"parameters,omitempty"` // 可选参数
}

// DashScopeRequestInput 请求的文本列表
type DashScopeRequestInput struct {
	Texts []string `json:"texts"`
}

// DashScopeParameters 请求参数
type DashScopeParameters struct {
	Dimension  int    `json:"dimension,omitempty"`   // 向量维度，仅v3模型支持
	OutputType string `json:"output_type,omitempty"` // 输出类型
}

// DashScopeResponse DashScope原生嵌入API响应结构
type DashScopeResponse struct {
	StatusCode int             `json:"status_code,omitempty"` // 响应状态码
	RequestID  string          `json:"request_id"`            // 请求ID
	Code       string          `json:"code,omitempty"`        // 错误代码
	Message    string          `json:"message,omitempty"`     // 错误消息
	Output     DashScopeOutput `json:"output"`                // 输出结果
	Usage      DashScopeUsage  `json:"usage"`                 // 资源使用情况
}

// DashScopeOutput 嵌入输出结果
type DashScopeOutput struct {
	Embeddings []DashScopeEmbedding `json:"embeddings"`
}

// DashScopeEmbedding 单条文本的嵌入结果
type DashScopeEmbedding struct {
	Embedding []float32 `json:"embedding"`  // 嵌入向量
	TextIndex int       `json:"text_index"` // 对应输入文本的序号
}

// DashScopeUsage 资源使用情况
type DashScopeUsage struct {
	TotalTokens int `json:"total_tokens"` // 使用的总token数
}

// openAICompatResponse OpenAI兼容接口的响应结构
type openAICompatResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
	Model string `json:"model"`
	Usage struct {
		PromptTokens int `json:"prompt_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}
