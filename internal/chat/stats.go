package chat

import (
	"fmt"
	"strings"
	"time"

	"SuiCoPilot/internal/llm"
)

// Stats 是测试面板展示的单次调用统计。
type Stats struct {
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`
	EstimatedCostUSD string `json:"estimated_cost_usd"`
}

// pricing 以美元/百万 token 计价，按模型名前缀匹配，越具体的前缀越靠前。
var pricing = []struct {
	prefix     string
	input      float64
	completion float64
}{
	{"gpt-4o-mini", 0.15, 0.60},
	{"gpt-4o", 2.50, 10.00},
	{"gpt-4.1-mini", 0.40, 1.60},
	{"gpt-4.1", 2.00, 8.00},
	{"gemini-2.5-flash", 0.30, 2.50},
	{"gemini-2.5-pro", 1.25, 10.00},
	{"gemini-2.0-flash", 0.10, 0.40},
}

// EstimateCost 估算一次调用的费用，未知模型按 gpt-4o-mini 计价。
func EstimateCost(model string, usage llm.Usage) string {
	input, completion := pricing[0].input, pricing[0].completion
	name := strings.ToLower(strings.TrimSpace(model))
	for _, p := range pricing {
		if strings.HasPrefix(name, p.prefix) {
			input, completion = p.input, p.completion
			break
		}
	}
	cost := (float64(usage.PromptTokens)*input + float64(usage.CompletionTokens)*completion) / 1_000_000
	return fmt.Sprintf("%.6f", cost)
}

func newStats(model string, usage llm.Usage, elapsed time.Duration) Stats {
	return Stats{
		Model:            model,
		PromptTokens:     usage.PromptTokens,
		CompletionTokens: usage.CompletionTokens,
		TotalTokens:      usage.TotalTokens,
		ProcessingTimeMS: elapsed.Milliseconds(),
		EstimatedCostUSD: EstimateCost(model, usage),
	}
}
