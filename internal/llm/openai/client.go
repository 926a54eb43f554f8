package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/llm"
)

const (
	defaultBaseURL   = "https://api.openai.com/v1"
	defaultModelName = "gpt-4o-mini"
	defaultMaxTokens = 1000
	defaultTimeout   = 60 * time.Second
)

// Config 描述了调用 OpenAI Chat Completions API 所需的信息。
// BaseURL 可以指向任何兼容的网关，例如 Azure 或本地代理。
type Config struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Client 通过 HTTP 调用 OpenAI 兼容的补全接口。
type Client struct {
	apiKey     string
	endpoint   string
	model      string
	httpClient *http.Client
}

// NewClient 根据配置创建 OpenAI 客户端。缺少 API Key 时返回 INITIALIZATION_FAILURE。
func NewClient(cfg Config) (*Client, error) {
	c := &Client{
		apiKey:     strings.TrimSpace(cfg.APIKey),
		endpoint:   strings.TrimRight(orDefault(cfg.BaseURL, defaultBaseURL), "/") + "/chat/completions",
		model:      orDefault(cfg.Model, defaultModelName),
		httpClient: cfg.HTTPClient,
	}
	if c.apiKey == "" {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未提供 OpenAI API Key")
	}
	if c.httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		c.httpClient = &http.Client{Timeout: timeout}
	}
	return c, nil
}

func orDefault(value, fallback string) string {
	if v := strings.TrimSpace(value); v != "" {
		return v
	}
	return fallback
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature *float64      `json:"temperature,omitempty"`
}

type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage llm.Usage `json:"usage"`
}

// apiError 是 OpenAI 错误响应的 error 字段。
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    any    `json:"code"`
	} `json:"error"`
}

// Generate 调用 Chat Completions 接口。任何失败都以 UPSTREAM 错误返回，不做重试。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, xerrors.Validation("提示词不能为空")
	}
	payload, err := c.buildPayload(req)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, xerrors.Upstream(err, "构建 OpenAI 请求失败")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "OpenAI 请求超时或被取消")
		}
		return nil, xerrors.Upstream(err, "请求 OpenAI 失败")
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, statusError(resp)
	}

	var decoded chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, xerrors.Upstream(err, "解析 OpenAI 响应失败")
	}
	if len(decoded.Choices) == 0 {
		return nil, xerrors.Upstream(nil, "OpenAI 响应中没有有效的 choices")
	}
	content := strings.TrimSpace(decoded.Choices[0].Message.Content)
	if content == "" {
		return nil, xerrors.Upstream(nil, "OpenAI 响应内容为空")
	}

	usage := decoded.Usage
	if usage.TotalTokens == 0 {
		usage.TotalTokens = usage.PromptTokens + usage.CompletionTokens
	}
	model := decoded.Model
	if model == "" {
		model = c.modelFor(req)
	}
	return &llm.Response{Text: content, Model: model, Usage: usage}, nil
}

func (c *Client) modelFor(req llm.Request) string {
	if m := strings.TrimSpace(req.Model); m != "" {
		return m
	}
	return c.model
}

func (c *Client) buildPayload(req llm.Request) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	body := chatRequest{
		Model: c.modelFor(req),
		Messages: []chatMessage{
			{Role: "system", Content: llm.SystemMessage(req)},
			{Role: "user", Content: req.Prompt},
		},
		MaxTokens: maxTokens,
	}
	if req.Temperature != nil {
		body.Temperature = llm.Temperature(*req.Temperature)
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("序列化 OpenAI 请求失败: %w", err)
	}
	return encoded, nil
}

// statusError 把非 2xx 响应转换为 UPSTREAM 错误，优先使用 OpenAI 返回的 message。
func statusError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := strings.TrimSpace(string(body))
	var parsed apiError
	if json.Unmarshal(body, &parsed) == nil && parsed.Error.Message != "" {
		detail = parsed.Error.Message
	}
	opts := []xerrors.Option{xerrors.WithMetadata("status", strconv.Itoa(resp.StatusCode))}
	if parsed.Error.Type != "" {
		opts = append(opts, xerrors.WithMetadata("type", parsed.Error.Type))
	}
	message := "OpenAI 返回错误状态"
	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		message = "OpenAI 拒绝了 API Key"
	case http.StatusTooManyRequests:
		message = "OpenAI 请求过于频繁或额度不足"
	}
	return xerrors.Upstream(fmt.Errorf("status %d: %s", resp.StatusCode, detail), message, opts...)
}

var _ llm.Client = (*Client)(nil)
