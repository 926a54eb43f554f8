package llm

import "context"

// Request 描述一次补全调用。Context 会被序列化为 JSON 附在系统提示之后。
// Temperature 为 nil 时使用服务端默认值，0 是合法取值。
type Request struct {
	Prompt      string
	System      string
	Context     any
	Model       string
	Temperature *float64
	MaxTokens   int
}

// Temperature 返回指向 v 的指针，便于构造 Request。
func Temperature(v float64) *float64 {
	return &v
}

// Usage 记录 token 消耗。
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response 是补全服务返回的文本与用量。
type Response struct {
	Text  string
	Model string
	Usage Usage
}

// Client 定义了调用大模型的统一接口。
type Client interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}

// DefaultSystemPrompt 是所有 Sui 相关问答共用的系统提示。
const DefaultSystemPrompt = "You are an AI assistant specialized in Sui blockchain and Move programming. " +
	"Provide accurate, helpful responses about Sui development, smart contracts, and blockchain concepts. " +
	"When writing code, wrap it in fenced code blocks tagged with the language."
