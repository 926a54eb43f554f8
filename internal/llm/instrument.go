package llm

import (
	"context"
	"log/slog"
	"time"

	"SuiCoPilot/internal/observability/metrics"
	"SuiCoPilot/pkg/logger"
)

type instrumented struct {
	provider string
	next     Client
}

// Instrument 包装 Client，记录调用耗时、token 用量与失败日志。
func Instrument(provider string, next Client) Client {
	if next == nil {
		return nil
	}
	return &instrumented{provider: provider, next: next}
}

func (c *instrumented) Generate(ctx context.Context, req Request) (*Response, error) {
	start := time.Now()
	resp, err := c.next.Generate(ctx, req)
	elapsed := time.Since(start)

	model := req.Model
	var usage Usage
	if resp != nil {
		usage = resp.Usage
		if resp.Model != "" {
			model = resp.Model
		}
	}
	metrics.ObserveLLM(c.provider, model, elapsed, usage.PromptTokens, usage.CompletionTokens, err)
	if err != nil {
		logger.L().Warn("补全调用失败",
			slog.String("provider", c.provider),
			slog.Duration("elapsed", elapsed),
			slog.Any("error", err))
	}
	return resp, err
}
