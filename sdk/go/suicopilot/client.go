package suicopilot

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strconv"
	"sync"
	"time"
)

// DefaultHTTPTimeout is used by clients created without a custom http.Client.
// Model calls can take a while, so it is longer than a plain REST timeout.
const DefaultHTTPTimeout = 90 * time.Second

// Client wraps the HTTP interactions with a SuiCoPilot server.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client

	mu          sync.RWMutex
	accessToken string
	wallet      string
	network     string
}

// Credentials is the email/password pair used by SignIn and SignUp.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// User is the authenticated identity.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Session is returned by the auth endpoints.
type Session struct {
	User        User      `json:"user"`
	AccessToken string    `json:"access_token,omitempty"`
	TokenType   string    `json:"token_type,omitempty"`
	ExpiresAt   time.Time `json:"expires_at,omitempty"`
	Wallet      struct {
		Address string `json:"address,omitempty"`
		Network string `json:"network,omitempty"`
	} `json:"wallet"`
}

// Usage is the token accounting of one model call.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Stats is returned by the AI probe endpoints.
type Stats struct {
	Model            string `json:"model"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	ProcessingTimeMS int64  `json:"processing_time_ms"`
	EstimatedCostUSD string `json:"estimated_cost_usd"`
}

// AskAIRequest is the body of the ask-ai function.
type AskAIRequest struct {
	Prompt      string         `json:"prompt"`
	Context     map[string]any `json:"context,omitempty"`
	Model       string         `json:"model,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
}

// AskAIResponse is returned by the ask-ai function.
type AskAIResponse struct {
	Response string `json:"response"`
	Tokens   Usage  `json:"tokens"`
	Stats    *Stats `json:"stats,omitempty"`
}

// WalletInfoRequest is the body of the get-wallet-info function.
type WalletInfoRequest struct {
	WalletAddress       string `json:"walletAddress"`
	Network             string `json:"network,omitempty"`
	IncludeTransactions bool   `json:"includeTransactions,omitempty"`
}

// Balance mirrors the node balance payload.
type Balance struct {
	CoinType        string `json:"coinType"`
	CoinObjectCount int    `json:"coinObjectCount"`
	TotalBalance    string `json:"totalBalance"`
}

// WalletInfo is returned by the get-wallet-info function. Objects and
// transactions are passed through from the node untouched.
type WalletInfo struct {
	Balance      Balance           `json:"balance"`
	Objects      []json.RawMessage `json:"objects"`
	Transactions []json.RawMessage `json:"transactions,omitempty"`
	Network      string            `json:"network"`
	CoinMetadata json.RawMessage   `json:"coinMetadata,omitempty"`
}

// GasEstimation carries the gas fields of the dry-run effects.
type GasEstimation struct {
	ComputationCost         string `json:"computationCost"`
	StorageCost             string `json:"storageCost"`
	StorageRebate           string `json:"storageRebate"`
	NonRefundableStorageFee string `json:"nonRefundableStorageFee"`
}

// SimulationResult is the outcome of one dry run.
type SimulationResult struct {
	Success       bool            `json:"success"`
	GasEstimation GasEstimation   `json:"gasEstimation"`
	Effects       json.RawMessage `json:"effects,omitempty"`
	Result        json.RawMessage `json:"result,omitempty"`
	Errors        []string        `json:"errors,omitempty"`
	Network       string          `json:"network"`
}

// TransactionSimRequest is the body of the run-transaction-sim function.
// TXB accepts either a transaction block object or its serialized string.
type TransactionSimRequest struct {
	TXB     any    `json:"txb"`
	Sender  string `json:"sender"`
	Network string `json:"network,omitempty"`
}

// Message is one chat bubble.
type Message struct {
	ID           int64    `json:"id"`
	Role         string   `json:"role"`
	Content      string   `json:"content"`
	CodeSnippets []string `json:"codeSnippets"`
	References   []struct {
		Title string `json:"title"`
		URL   string `json:"url"`
	} `json:"references,omitempty"`
}

// Answer is returned by Ask.
type Answer struct {
	Question Message `json:"question"`
	Message  Message `json:"message"`
	Usage    Usage   `json:"usage"`
}

// AskOptions tunes a chat request.
type AskOptions struct {
	Network     string         `json:"network,omitempty"`
	Model       string         `json:"model,omitempty"`
	Temperature *float64       `json:"temperature,omitempty"`
	MaxTokens   int            `json:"max_tokens,omitempty"`
	Context     map[string]any `json:"context,omitempty"`
}

// CodeResult is returned by GenerateCode.
type CodeResult struct {
	Code        string   `json:"code"`
	Explanation string   `json:"explanation"`
	Snippets    []string `json:"snippets"`
	Tokens      Usage    `json:"tokens"`
}

// Completion is returned by TestAI.
type Completion struct {
	Response string `json:"response"`
	Tokens   Usage  `json:"tokens"`
	Stats    Stats  `json:"stats"`
}

// Concept is one entry of the learning catalogue.
type Concept struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	DocLink     string   `json:"docLink,omitempty"`
	Category    string   `json:"category"`
	Keywords    []string `json:"keywords"`
}

// Snippet is one Move code sample.
type Snippet struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Code        string `json:"code"`
}

// Toast is a user-facing notification.
type Toast struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Variant     string `json:"variant,omitempty"`
}

// WalletSnapshot is the wallet panel view for one network.
type WalletSnapshot struct {
	Address            string            `json:"address"`
	Network            string            `json:"network"`
	Balance            Balance           `json:"balance"`
	FormattedBalance   string            `json:"formattedBalance"`
	OwnedObjects       []json.RawMessage `json:"ownedObjects"`
	RecentTransactions []json.RawMessage `json:"recentTransactions"`
	ExplorerURL        string            `json:"explorerUrl,omitempty"`
	FetchedAt          time.Time         `json:"fetchedAt"`
}

// WalletResult is returned by the wallet endpoints. A non-nil Toast means the
// refresh failed and the snapshot is empty.
type WalletResult struct {
	Snapshot WalletSnapshot `json:"snapshot"`
	Toast    *Toast         `json:"toast,omitempty"`
	Cached   bool           `json:"cached"`
}

// Intent is the transfer a simulation was run for.
type Intent struct {
	Recipient  string `json:"recipient"`
	Amount     string `json:"amount"`
	AmountMist uint64 `json:"amountMist"`
	Sender     string `json:"sender"`
	Network    string `json:"network"`
}

// Execution is the node response to a signed transfer.
type Execution struct {
	Digest  string          `json:"digest"`
	Effects json.RawMessage `json:"effects,omitempty"`
}

// TransactionState is the transfer panel state on the server.
type TransactionState struct {
	State      string            `json:"state"`
	Intent     *Intent           `json:"intent,omitempty"`
	Simulation *SimulationResult `json:"simulation,omitempty"`
	Execution  *Execution        `json:"execution,omitempty"`
	CanExecute bool              `json:"canExecute"`
	Error      string            `json:"error,omitempty"`
	UpdatedAt  time.Time         `json:"updatedAt"`
}

// TransferRequest describes a SUI transfer.
type TransferRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Network   string `json:"network,omitempty"`
}

// TransactionLog is one audit row of the transfer history.
type TransactionLog struct {
	ID        string    `json:"id"`
	Status    string    `json:"status"`
	TxHash    string    `json:"tx_hash"`
	GasUsed   int64     `json:"gas_used"`
	CreatedAt time.Time `json:"created_at"`
	Details   struct {
		Type      string `json:"type"`
		Network   string `json:"network"`
		Recipient string `json:"recipient"`
		Amount    string `json:"amount"`
	} `json:"details"`
}

// Network is one configured Sui network.
type Network struct {
	Name        string `json:"name"`
	RPCURL      string `json:"rpcUrl"`
	ExplorerURL string `json:"explorerUrl,omitempty"`
	Description string `json:"description,omitempty"`
	Default     bool   `json:"default"`
}

// APIError represents a non-2xx server response. Application endpoints
// answer with a toast, function endpoints with a flat {error} payload.
type APIError struct {
	StatusCode int
	Title      string `json:"title"`
	Message    string `json:"description"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Title != "" {
		return fmt.Sprintf("suicopilot api error (%d): %s - %s", e.StatusCode, e.Title, e.Message)
	}
	return fmt.Sprintf("suicopilot api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for a SuiCoPilot server. When httpClient is
// nil, a default client with DefaultHTTPTimeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SignIn exchanges credentials for an access token and stores it for
// subsequent calls.
func (c *Client) SignIn(ctx context.Context, creds Credentials) (*Session, error) {
	return c.authenticate(ctx, "/api/v1/auth/signin", creds)
}

// SignUp registers a new account and stores the returned token.
func (c *Client) SignUp(ctx context.Context, creds Credentials) (*Session, error) {
	return c.authenticate(ctx, "/api/v1/auth/signup", creds)
}

func (c *Client) authenticate(ctx context.Context, endpoint string, creds Credentials) (*Session, error) {
	var session Session
	if err := c.post(ctx, endpoint, creds, &session, false); err != nil {
		return nil, err
	}
	c.SetAccessToken(session.AccessToken)
	return &session, nil
}

// SignOut revokes the stored token and forgets it.
func (c *Client) SignOut(ctx context.Context) error {
	if err := c.post(ctx, "/api/v1/auth/signout", struct{}{}, nil, true); err != nil {
		return err
	}
	c.SetAccessToken("")
	return nil
}

// Session returns the session the server associates with the stored token.
func (c *Client) Session(ctx context.Context) (*Session, error) {
	var session Session
	if err := c.get(ctx, "/api/v1/auth/session", &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// AskAI calls the ask-ai function.
func (c *Client) AskAI(ctx context.Context, req AskAIRequest) (*AskAIResponse, error) {
	var out AskAIResponse
	if err := c.post(ctx, "/functions/v1/ask-ai", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// GetWalletInfo calls the get-wallet-info function.
func (c *Client) GetWalletInfo(ctx context.Context, req WalletInfoRequest) (*WalletInfo, error) {
	var out WalletInfo
	if err := c.post(ctx, "/functions/v1/get-wallet-info", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// RunTransactionSim calls the run-transaction-sim function.
func (c *Client) RunTransactionSim(ctx context.Context, req TransactionSimRequest) (*SimulationResult, error) {
	var out SimulationResult
	if err := c.post(ctx, "/functions/v1/run-transaction-sim", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Ask sends a chat message and returns the assistant reply.
func (c *Client) Ask(ctx context.Context, prompt string, opts AskOptions) (*Answer, error) {
	body := struct {
		Prompt string `json:"prompt"`
		AskOptions
	}{Prompt: prompt, AskOptions: opts}
	var out Answer
	if err := c.post(ctx, "/api/v1/chat/ask", body, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// History returns the stored conversation of the given type ("chat", "code"
// or "test"), oldest first.
func (c *Client) History(ctx context.Context, kind string, limit int) ([]Message, error) {
	query := url.Values{}
	if kind != "" {
		query.Set("type", kind)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := c.get(ctx, withQuery("/api/v1/chat/history", query), &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

// GenerateCode asks for a Sui Move module.
func (c *Client) GenerateCode(ctx context.Context, prompt string) (*CodeResult, error) {
	var out CodeResult
	if err := c.post(ctx, "/api/v1/code/generate", map[string]string{"prompt": prompt}, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// TestAI runs an AI probe through the application API.
func (c *Client) TestAI(ctx context.Context, req AskAIRequest) (*Completion, error) {
	var out Completion
	if err := c.post(ctx, "/api/v1/ai/test", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Concepts lists catalogue concepts. A non-empty search term takes
// precedence over the category filter.
func (c *Client) Concepts(ctx context.Context, category, search string) ([]Concept, error) {
	query := url.Values{}
	if category != "" {
		query.Set("category", category)
	}
	if search != "" {
		query.Set("q", search)
	}
	var out struct {
		Concepts []Concept `json:"concepts"`
	}
	if err := c.get(ctx, withQuery("/api/v1/concepts", query), &out); err != nil {
		return nil, err
	}
	return out.Concepts, nil
}

// Snippets lists the Move code samples.
func (c *Client) Snippets(ctx context.Context) ([]Snippet, error) {
	var out struct {
		Snippets []Snippet `json:"snippets"`
	}
	if err := c.get(ctx, "/api/v1/snippets", &out); err != nil {
		return nil, err
	}
	return out.Snippets, nil
}

// ConnectWallet saves address as the user's wallet and returns its snapshot.
func (c *Client) ConnectWallet(ctx context.Context, address, network string) (*WalletResult, error) {
	var out WalletResult
	body := map[string]string{"address": address, "network": network}
	if err := c.post(ctx, "/api/v1/wallet/connect", body, &out, true); err != nil {
		return nil, err
	}
	c.UseWallet(address, network)
	return &out, nil
}

// Wallet returns the wallet snapshot, bypassing the server cache when refresh
// is set.
func (c *Client) Wallet(ctx context.Context, network string, refresh bool) (*WalletResult, error) {
	query := url.Values{}
	if network != "" {
		query.Set("network", network)
	}
	if refresh {
		query.Set("refresh", "true")
	}
	var out WalletResult
	if err := c.get(ctx, withQuery("/api/v1/wallet", query), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Simulate dry-runs a SUI transfer from the connected wallet.
func (c *Client) Simulate(ctx context.Context, req TransferRequest) (*TransactionState, error) {
	var out TransactionState
	if err := c.post(ctx, "/api/v1/transactions/simulate", req, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// Execute signs and submits the previously simulated transfer.
func (c *Client) Execute(ctx context.Context) (*TransactionState, error) {
	var out TransactionState
	if err := c.post(ctx, "/api/v1/transactions/execute", struct{}{}, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransactionState returns the current transfer panel state.
func (c *Client) TransactionState(ctx context.Context) (*TransactionState, error) {
	var out TransactionState
	if err := c.get(ctx, "/api/v1/transactions/state", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResetTransaction returns the transfer panel to idle.
func (c *Client) ResetTransaction(ctx context.Context) (*TransactionState, error) {
	var out TransactionState
	if err := c.post(ctx, "/api/v1/transactions/reset", struct{}{}, &out, true); err != nil {
		return nil, err
	}
	return &out, nil
}

// TransactionLogs returns the newest transfer audit rows first.
func (c *Client) TransactionLogs(ctx context.Context, limit int) ([]TransactionLog, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var out struct {
		Logs []TransactionLog `json:"logs"`
	}
	if err := c.get(ctx, withQuery("/api/v1/transactions/logs", query), &out); err != nil {
		return nil, err
	}
	return out.Logs, nil
}

// Networks returns the configured networks and the default one.
func (c *Client) Networks(ctx context.Context) ([]Network, string, error) {
	var out struct {
		Default  string    `json:"default"`
		Networks []Network `json:"networks"`
	}
	if err := c.get(ctx, "/api/v1/networks", &out); err != nil {
		return nil, "", err
	}
	return out.Networks, out.Default, nil
}

// AccessToken returns the currently stored token string.
func (c *Client) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// SetAccessToken overrides the stored access token.
func (c *Client) SetAccessToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.accessToken = token
}

// UseWallet binds every following request to the given wallet.
func (c *Client) UseWallet(address, network string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wallet = address
	c.network = network
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any, withAuth bool) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body), withAuth)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil, true)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader, withAuth bool) (*http.Request, error) {
	endpointURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, endpointURL.Path), RawQuery: endpointURL.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if withAuth {
		c.mu.RLock()
		token, wallet, network := c.accessToken, c.wallet, c.network
		c.mu.RUnlock()
		if token == "" {
			return nil, errors.New("suicopilot: access token is not set")
		}
		req.Header.Set("Authorization", "Bearer "+token)
		if wallet != "" {
			req.Header.Set("X-Wallet-Address", wallet)
		}
		if network != "" {
			req.Header.Set("X-Sui-Network", network)
		}
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			var flat struct {
				Error string `json:"error"`
			}
			if err := json.Unmarshal(data, apiErr); err == nil && apiErr.Message == "" {
				if json.Unmarshal(data, &flat) == nil {
					apiErr.Message = flat.Error
				}
			}
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return apiErr
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func withQuery(endpoint string, query url.Values) string {
	if len(query) == 0 {
		return endpoint
	}
	return endpoint + "?" + query.Encode()
}
