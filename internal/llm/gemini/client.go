package gemini

import (
	"context"
	"errors"
	"strings"

	"google.golang.org/genai"

	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/llm"
)

const (
	defaultModelName = "gemini-2.5-flash"
	defaultMaxTokens = 1000
)

// Config 描述调用 Gemini 所需的信息。
type Config struct {
	APIKey string
	Model  string
}

// generator 是 genai.Models 中本客户端使用到的方法。
type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Client 通过 google.golang.org/genai 调用 Gemini。
type Client struct {
	models generator
	model  string
}

// NewClient 创建 Gemini 客户端。
func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("未提供 Gemini API Key")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "创建 Gemini 客户端失败")
	}
	return newWithGenerator(client.Models, cfg.Model), nil
}

func newWithGenerator(models generator, model string) *Client {
	model = strings.TrimSpace(model)
	if model == "" {
		model = defaultModelName
	}
	return &Client{models: models, model: model}
}

// Generate 调用 GenerateContent。失败统一返回 UPSTREAM 错误。
func (c *Client) Generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, xerrors.Validation("提示词不能为空")
	}
	model := c.model
	if m := strings.TrimSpace(req.Model); m != "" {
		model = m
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	config := &genai.GenerateContentConfig{
		SystemInstruction: genai.NewContentFromText(llm.SystemMessage(req), genai.RoleUser),
		MaxOutputTokens:   int32(maxTokens),
	}
	if req.Temperature != nil {
		config.Temperature = genai.Ptr(float32(*req.Temperature))
	}

	resp, err := c.models.GenerateContent(ctx, model, genai.Text(req.Prompt), config)
	if err != nil {
		return nil, xerrors.Upstream(err, "请求 Gemini 失败")
	}
	if resp == nil {
		return nil, xerrors.Upstream(nil, "Gemini 响应为空")
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return nil, xerrors.Upstream(nil, "Gemini 响应内容为空")
	}

	out := &llm.Response{Text: text, Model: model}
	if resp.ModelVersion != "" {
		out.Model = resp.ModelVersion
	}
	if usage := resp.UsageMetadata; usage != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(usage.PromptTokenCount),
			CompletionTokens: int(usage.CandidatesTokenCount),
			TotalTokens:      int(usage.TotalTokenCount),
		}
	}
	return out, nil
}

var _ llm.Client = (*Client)(nil)
