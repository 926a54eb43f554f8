package chat

import (
	"context"
	stdErrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"SuiCoPilot/internal/auth"
	"SuiCoPilot/internal/conversation"
	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/history"
	"SuiCoPilot/internal/knowledge"
	"SuiCoPilot/internal/llm"
	"SuiCoPilot/internal/wallet"
	"SuiCoPilot/pkg/logger"
)

// defaultHistoryDepth 是放入上下文的最近对话条数。
const defaultHistoryDepth = 6

// Recorder 是对话存储中助手依赖的部分，*history.Service 满足该接口。
type Recorder interface {
	Append(ctx context.Context, userID, prompt, response string, kind history.Kind, tokensUsed int)
	LoadRecent(ctx context.Context, userID string, kind history.Kind, limit int) ([]conversation.Message, error)
}

// WalletSource 提供当前会话的钱包快照，*wallet.Service 满足该接口。
type WalletSource interface {
	Current(ctx context.Context, session *auth.Session, network string) (*wallet.Result, error)
}

// Envelope 是随提示一起发送给大模型的结构化上下文。
type Envelope struct {
	Task          string              `json:"task"`
	UserID        string              `json:"userId,omitempty"`
	Language      string              `json:"language,omitempty"`
	WalletAddress string              `json:"walletAddress,omitempty"`
	WalletInfo    *wallet.Excerpt     `json:"walletInfo,omitempty"`
	History       []conversation.Turn `json:"history,omitempty"`
	Concepts      []ConceptCard       `json:"relatedConcepts,omitempty"`
	Extra         map[string]any      `json:"extra,omitempty"`
}

// ConceptCard 是附在上下文中的概念摘要。
type ConceptCard struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// AskOptions 调整一次问答。
type AskOptions struct {
	Network     string
	Model       string
	Temperature *float64
	MaxTokens   int
	Context     map[string]any
}

// Answer 是一次问答的结果。
type Answer struct {
	Question conversation.Message `json:"question"`
	Message  conversation.Message `json:"message"`
	Usage    llm.Usage            `json:"usage"`
	Concepts []knowledge.Concept  `json:"concepts,omitempty"`
}

// CodeResult 是代码生成的结果。
type CodeResult struct {
	Code        string    `json:"code"`
	Explanation string    `json:"explanation"`
	Snippets    []string  `json:"snippets"`
	Tokens      llm.Usage `json:"tokens"`
}

// CompletionRequest 是不经会话包装的原始补全请求。
type CompletionRequest struct {
	Prompt      string         `json:"prompt"`
	Context     map[string]any `json:"context,omitempty"`
	Model       string         `json:"model,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
}

// Completion 是原始补全的结果。
type Completion struct {
	Response string    `json:"response"`
	Tokens   llm.Usage `json:"tokens"`
	Stats    Stats     `json:"stats"`
}

// Assistant 协调大模型、知识库、钱包与对话存储。
type Assistant struct {
	llmClient    llm.Client
	recorder     Recorder
	knowledge    knowledge.Provider
	wallets      WalletSource
	historyDepth int
	llmTimeout   time.Duration
	maxTokens    int
	temperature  float64
	now          func() time.Time
}

// Option 定义可选的 Assistant 配置。
type Option func(*Assistant)

// WithRecorder 配置对话存储。
func WithRecorder(recorder Recorder) Option {
	return func(a *Assistant) {
		a.recorder = recorder
	}
}

// WithKnowledgeProvider 配置知识库，用于在推理前补充上下文。
func WithKnowledgeProvider(provider knowledge.Provider) Option {
	return func(a *Assistant) {
		a.knowledge = provider
	}
}

// WithWalletSource 配置钱包快照来源。
func WithWalletSource(source WalletSource) Option {
	return func(a *Assistant) {
		a.wallets = source
	}
}

// WithHistoryDepth 设置上下文中携带的最近对话条数。
func WithHistoryDepth(depth int) Option {
	return func(a *Assistant) {
		if depth > 0 {
			a.historyDepth = depth
		}
	}
}

// WithLLMTimeout 设置调用大模型的超时时间。
func WithLLMTimeout(timeout time.Duration) Option {
	return func(a *Assistant) {
		if timeout > 0 {
			a.llmTimeout = timeout
		}
	}
}

// WithDefaults 设置请求未指定时使用的 max_tokens 与 temperature。
func WithDefaults(maxTokens int, temperature float64) Option {
	return func(a *Assistant) {
		a.maxTokens = maxTokens
		a.temperature = temperature
	}
}

// New 创建 Assistant。
func New(client llm.Client, opts ...Option) *Assistant {
	a := &Assistant{
		llmClient:    client,
		historyDepth: defaultHistoryDepth,
		now:          time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}
	return a
}

// Ask 回答一个聊天问题，成功后异步写入 ai_chat 历史。
func (a *Assistant) Ask(ctx context.Context, session *auth.Session, prompt string, opts AskOptions) (*Answer, error) {
	if session == nil {
		return nil, auth.ErrMissingToken
	}
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, xerrors.Validation("Please enter a message")
	}
	userID := session.UserID()

	envelope := Envelope{
		Task:          "chat",
		UserID:        userID,
		WalletAddress: session.Wallet.Address,
		History:       a.recentTurns(ctx, userID),
		Extra:         opts.Context,
	}
	if excerpt := a.walletExcerpt(ctx, session, opts.Network); excerpt != nil {
		envelope.WalletInfo = excerpt
		if envelope.WalletAddress == "" {
			envelope.WalletAddress = excerpt.Address
		}
	}
	concepts := a.relatedConcepts(prompt)
	refs := make([]conversation.Reference, 0, len(concepts))
	for _, c := range concepts {
		envelope.Concepts = append(envelope.Concepts, ConceptCard{Title: c.Title, Description: c.Description})
		if c.DocLink != "" {
			refs = append(refs, conversation.Reference{Title: c.Title, URL: c.DocLink})
		}
	}

	asked := a.now()
	resp, err := a.generate(ctx, llm.Request{
		Prompt:      prompt,
		Context:     envelope,
		Model:       opts.Model,
		Temperature: a.temperatureOr(opts.Temperature),
		MaxTokens:   a.maxTokensOr(opts.MaxTokens),
	})
	if err != nil {
		return nil, err
	}

	id := asked.UnixMilli()
	answer := &Answer{
		Question: conversation.NewUserMessage(id, prompt),
		Message:  conversation.NewAssistantMessage(id+1, resp.Text, refs...),
		Usage:    resp.Usage,
		Concepts: concepts,
	}
	a.record(ctx, userID, prompt, resp.Text, history.KindChat, resp.Usage.TotalTokens)
	return answer, nil
}

// GenerateCode 生成带注释的 Move 代码，成功后写入 code_generation 历史。
func (a *Assistant) GenerateCode(ctx context.Context, session *auth.Session, task string) (*CodeResult, error) {
	if session == nil {
		return nil, auth.ErrMissingToken
	}
	task = strings.TrimSpace(task)
	if task == "" {
		return nil, xerrors.Validation("Please enter a valid prompt to generate code")
	}

	resp, err := a.generate(ctx, llm.Request{
		Prompt: fmt.Sprintf("Generate Sui Move code for: %s. Include explanatory comments in the code.", task),
		Context: Envelope{
			Task:     "code_generation",
			Language: "move",
			UserID:   session.UserID(),
		},
		Temperature: a.temperatureOr(nil),
		MaxTokens:   a.maxTokens,
	})
	if err != nil {
		return nil, err
	}

	snippets := conversation.ExtractCodeSnippets(resp.Text)
	code := resp.Text
	if len(snippets) > 0 {
		code = snippets[0]
	}
	a.record(ctx, session.UserID(), task, resp.Text, history.KindCode, resp.Usage.TotalTokens)
	return &CodeResult{
		Code:        code,
		Explanation: conversation.StripCodeSnippets(resp.Text),
		Snippets:    snippets,
		Tokens:      resp.Usage,
	}, nil
}

// Complete 执行一次原始补全并返回统计信息，不写历史。
func (a *Assistant) Complete(ctx context.Context, req CompletionRequest) (*Completion, error) {
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return nil, xerrors.Validation("Prompt is required")
	}
	var envelope any
	if len(req.Context) > 0 {
		envelope = req.Context
	}

	start := a.now()
	resp, err := a.generate(ctx, llm.Request{
		Prompt:      prompt,
		Context:     envelope,
		Model:       req.Model,
		Temperature: a.temperatureOr(req.Temperature),
		MaxTokens:   a.maxTokensOr(req.MaxTokens),
	})
	if err != nil {
		return nil, err
	}
	model := resp.Model
	if model == "" {
		model = req.Model
	}
	return &Completion{
		Response: resp.Text,
		Tokens:   resp.Usage,
		Stats:    newStats(model, resp.Usage, a.now().Sub(start)),
	}, nil
}

// Probe 供模型测试面板使用，成功后写入 ai_test 历史。
func (a *Assistant) Probe(ctx context.Context, session *auth.Session, prompt, model string, temperature *float64, maxTokens int) (*Completion, error) {
	if session == nil {
		return nil, auth.ErrMissingToken
	}
	completion, err := a.Complete(ctx, CompletionRequest{
		Prompt:      prompt,
		Context:     map[string]any{"task": "ai_test", "userId": session.UserID()},
		Model:       model,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return nil, err
	}
	a.record(ctx, session.UserID(), strings.TrimSpace(prompt), completion.Response, history.KindTest, completion.Tokens.TotalTokens)
	return completion, nil
}

// History 返回会话用户最近的对话，按时间升序。
func (a *Assistant) History(ctx context.Context, session *auth.Session, kind history.Kind, limit int) ([]conversation.Message, error) {
	if session == nil {
		return nil, auth.ErrMissingToken
	}
	if a.recorder == nil {
		return []conversation.Message{}, nil
	}
	return a.recorder.LoadRecent(ctx, session.UserID(), kind, limit)
}

func (a *Assistant) generate(ctx context.Context, req llm.Request) (*llm.Response, error) {
	if a.llmClient == nil {
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "未配置大模型客户端")
	}
	if a.llmTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.llmTimeout)
		defer cancel()
	}
	resp, err := a.llmClient.Generate(ctx, req)
	if err != nil {
		if stdErrors.Is(err, context.DeadlineExceeded) {
			return nil, xerrors.Wrap(xerrors.CodeTimeout, err, "大模型推理超时")
		}
		if _, ok := xerrors.From(err); ok {
			return nil, err
		}
		return nil, xerrors.Upstream(err, "Failed to get AI response")
	}
	if resp == nil || strings.TrimSpace(resp.Text) == "" {
		return nil, xerrors.Upstream(nil, "No response from AI")
	}
	return resp, nil
}

func (a *Assistant) recentTurns(ctx context.Context, userID string) []conversation.Turn {
	if a.recorder == nil || a.historyDepth <= 0 {
		return nil
	}
	messages, err := a.recorder.LoadRecent(ctx, userID, history.KindChat, history.DefaultLimit)
	if err != nil {
		logger.L().Warn("加载对话历史失败", slog.String("user_id", userID), slog.Any("error", err))
		return nil
	}
	return conversation.LastTurns(messages, a.historyDepth)
}

func (a *Assistant) walletExcerpt(ctx context.Context, session *auth.Session, network string) *wallet.Excerpt {
	if a.wallets == nil {
		return nil
	}
	result, err := a.wallets.Current(ctx, session, network)
	if err != nil || result == nil || result.Toast != nil {
		return nil
	}
	return result.Snapshot.Excerpt()
}

func (a *Assistant) relatedConcepts(prompt string) []knowledge.Concept {
	if a.knowledge == nil {
		return nil
	}
	return a.knowledge.Query(prompt)
}

func (a *Assistant) record(ctx context.Context, userID, prompt, response string, kind history.Kind, tokens int) {
	if a.recorder == nil {
		return
	}
	a.recorder.Append(ctx, userID, prompt, response, kind, tokens)
}

// temperatureOr 优先使用请求显式给出的值（包括 0），否则回落到默认值；两者都没有时返回 nil。
func (a *Assistant) temperatureOr(t *float64) *float64 {
	if t != nil {
		return llm.Temperature(*t)
	}
	if a.temperature > 0 {
		return llm.Temperature(a.temperature)
	}
	return nil
}

func (a *Assistant) maxTokensOr(n int) int {
	if n > 0 {
		return n
	}
	return a.maxTokens
}
