package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"SuiCoPilot/internal/auth"
	"SuiCoPilot/internal/chat"
	"SuiCoPilot/internal/history"
	"SuiCoPilot/internal/knowledge"
	"SuiCoPilot/internal/llm"
	"SuiCoPilot/internal/notify"
	"SuiCoPilot/internal/sui"
	"SuiCoPilot/internal/txflow"
	"SuiCoPilot/internal/wallet"
)

type fakeChain struct {
	mu        sync.Mutex
	simulated int
	executed  int
}

func (f *fakeChain) WalletInfo(_ context.Context, address, network string, opts sui.WalletOptions) (*sui.WalletInfo, error) {
	if network == "" {
		network = sui.Testnet
	}
	info := &sui.WalletInfo{
		Address: address,
		Network: network,
		Balance: sui.Balance{CoinType: sui.SUICoinType, TotalBalance: "2000000000"},
		Objects: []sui.OwnedObject{{Data: &sui.ObjectData{ObjectID: "0xobj"}}},
	}
	if opts.IncludeTransactions {
		info.Transactions = []sui.TransactionSummary{{Digest: "tx-1"}}
	}
	return info, nil
}

func (f *fakeChain) Simulate(_ context.Context, block *sui.TransactionBlock, sender, network string) (*sui.SimulationResult, error) {
	f.mu.Lock()
	f.simulated++
	f.mu.Unlock()
	if network == "" {
		network = sui.Testnet
	}
	return &sui.SimulationResult{
		Success: true,
		GasEstimate: sui.GasCostSummary{
			ComputationCost:         "1000000",
			StorageCost:             "2000000",
			StorageRebate:           "500000",
			NonRefundableStorageFee: "0",
		},
		Effects: json.RawMessage(`{"status":{"status":"success"}}`),
		Network: network,
	}, nil
}

func (f *fakeChain) Execute(_ context.Context, _ sui.Signer, _ *sui.TransactionBlock, _ string) (*sui.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.executed++
	return &sui.ExecutionResult{Digest: "0xdigest"}, nil
}

type stubLLM struct{ text string }

func (s *stubLLM) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	return &llm.Response{Text: s.text, Model: "gpt-4o-mini", Usage: llm.Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15}}, nil
}

type fixture struct {
	handler http.Handler
	chain   *fakeChain
	history *history.Service
}

func newFixture(t *testing.T, authSvc *auth.Service) *fixture {
	t.Helper()
	store, err := history.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("file store: %v", err)
	}
	hist := history.NewService(store)
	t.Cleanup(func() { _ = hist.Close() })

	catalogue, err := knowledge.Builtin(3)
	if err != nil {
		t.Fatalf("catalogue: %v", err)
	}
	chain := &fakeChain{}
	registry := sui.NewRegistry(sui.DefaultNetworkDefinitions())
	wallets := wallet.NewService(chain, registry, wallet.WithProfiles(hist))
	assistant := chat.New(&stubLLM{text: "Use ```move\nmodule a::b {}\n``` to start."},
		chat.WithRecorder(hist),
		chat.WithKnowledgeProvider(catalogue),
		chat.WithWalletSource(wallets),
	)

	srv := NewServer(Config{AllowedOrigins: []string{"http://localhost:5173"}}, Dependencies{
		Auth:         authSvc,
		Assistant:    assistant,
		Catalogue:    catalogue,
		Chain:        chain,
		Networks:     registry,
		Wallets:      wallets,
		Transactions: txflow.NewRegistry(chain, nil, hist),
		History:      hist,
	})
	return &fixture{handler: srv.Handler(), chain: chain, history: hist}
}

func (f *fixture) do(t *testing.T, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("condition not met in time")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestAskAIFunction(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/functions/v1/ask-ai", map[string]any{"prompt": "What is Sui?", "max_tokens": 50}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[askAIResponse](t, rec)
	if got.Tokens.TotalTokens != 15 || got.Stats == nil || got.Stats.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected response %+v", got)
	}

	rec = f.do(t, http.MethodPost, "/functions/v1/ask-ai", map[string]any{"prompt": ""}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if body := decode[map[string]string](t, rec); body["error"] == "" {
		t.Fatalf("expected error body, got %s", rec.Body.String())
	}
}

func TestGetWalletInfoFunction(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/functions/v1/get-wallet-info", map[string]any{
		"walletAddress": "0xabc", "network": "devnet", "includeTransactions": true,
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
	}
	got := decode[walletInfoResponse](t, rec)
	if got.Network != "devnet" || len(got.Objects) != 1 || len(got.Transactions) != 1 {
		t.Fatalf("unexpected wallet info %+v", got)
	}

	rec = f.do(t, http.MethodPost, "/functions/v1/get-wallet-info", map[string]any{"network": "devnet"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestRunTransactionSimFunction(t *testing.T) {
	f := newFixture(t, nil)
	txb, err := sui.NewTransferBlock("0xdef", 1_000_000_000).Serialize()
	if err != nil {
		t.Fatalf("serialize: %v", err)
	}

	for _, encoded := range []any{json.RawMessage(txb), string(txb)} {
		rec := f.do(t, http.MethodPost, "/functions/v1/run-transaction-sim", map[string]any{
			"txb": encoded, "sender": "0xabc", "network": "testnet",
		}, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("unexpected status %d: %s", rec.Code, rec.Body.String())
		}
		got := decode[map[string]any](t, rec)
		gas, _ := got["gasEstimation"].(map[string]any)
		if got["success"] != true || gas["computationCost"] != "1000000" {
			t.Fatalf("unexpected simulation %+v", got)
		}
	}

	rec := f.do(t, http.MethodPost, "/functions/v1/run-transaction-sim", map[string]any{"txb": "not json", "sender": "0xabc"}, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for garbage block, got %d", rec.Code)
	}
}

func TestTransactionFlowThroughAPI(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/transactions/execute", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("execute before simulate must fail, got %d", rec.Code)
	}
	toast := decode[notify.Toast](t, rec)
	if toast.Variant != notify.VariantDestructive {
		t.Fatalf("expected destructive toast, got %+v", toast)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/wallet/connect", map[string]any{"address": "0xabc", "network": "testnet"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("connect: %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/api/v1/transactions/simulate", map[string]any{"recipient": "0xdef", "amount": "1"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("simulate: %d %s", rec.Code, rec.Body.String())
	}
	snap := decode[txflow.Snapshot](t, rec)
	if snap.State != txflow.StateSimulated || !snap.CanExecute || snap.Intent.AmountMist != 1_000_000_000 || snap.Intent.Sender != "0xabc" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/transactions/execute", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("execute: %d %s", rec.Code, rec.Body.String())
	}
	snap = decode[txflow.Snapshot](t, rec)
	if snap.State != txflow.StateExecuted || snap.Execution == nil || snap.Execution.Digest != "0xdigest" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}

	rec = f.do(t, http.MethodGet, "/api/v1/transactions/state", nil, nil)
	if decode[txflow.Snapshot](t, rec).State != txflow.StateExecuted {
		t.Fatalf("state endpoint out of sync: %s", rec.Body.String())
	}

	waitFor(t, func() bool {
		logs, err := f.history.TransactionLogs(context.Background(), auth.DevelopmentUser.ID, 10)
		return err == nil && len(logs) == 2
	})
	rec = f.do(t, http.MethodGet, "/api/v1/transactions/logs", nil, nil)
	logs := decode[map[string][]history.TransactionLog](t, rec)["logs"]
	if len(logs) != 2 {
		t.Fatalf("unexpected logs %+v", logs)
	}
	var executed *history.TransactionLog
	for i := range logs {
		if logs[i].Status == history.TxExecuted {
			executed = &logs[i]
		}
	}
	if executed == nil || executed.TxHash != "0xdigest" || executed.Details.Amount != "1" {
		t.Fatalf("missing execution log in %+v", logs)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/transactions/reset", nil, nil)
	if decode[txflow.Snapshot](t, rec).State != txflow.StateIdle {
		t.Fatalf("reset did not return to idle: %s", rec.Body.String())
	}
}

func TestChatAndHistoryThroughAPI(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodPost, "/api/v1/chat/ask", map[string]any{"prompt": "Explain gas fees"},
		map[string]string{headerWalletAddress: "0xabc"})
	if rec.Code != http.StatusOK {
		t.Fatalf("ask: %d %s", rec.Code, rec.Body.String())
	}
	answer := decode[chat.Answer](t, rec)
	if len(answer.Message.CodeSnippets) != 1 || len(answer.Message.References) == 0 {
		t.Fatalf("unexpected answer %+v", answer)
	}

	waitFor(t, func() bool {
		rec := f.do(t, http.MethodGet, "/api/v1/chat/history?limit=10", nil, nil)
		return len(decode[map[string][]json.RawMessage](t, rec)["messages"]) == 2
	})

	rec = f.do(t, http.MethodPost, "/api/v1/code/generate", map[string]any{"prompt": "a counter"}, nil)
	if rec.Code != http.StatusOK || decode[chat.CodeResult](t, rec).Code != "module a::b {}" {
		t.Fatalf("generate: %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodPost, "/api/v1/ai/test", map[string]any{"prompt": "ping", "model": "gpt-4o-mini"}, nil)
	if rec.Code != http.StatusOK || decode[chat.Completion](t, rec).Stats.TotalTokens != 15 {
		t.Fatalf("probe: %d %s", rec.Code, rec.Body.String())
	}

	rec = f.do(t, http.MethodGet, "/api/v1/chat/history?type=bogus", nil, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("unknown history type must be rejected, got %d", rec.Code)
	}
}

func TestCatalogueAndNetworks(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/api/v1/concepts?category=advanced", nil, nil)
	concepts := decode[map[string][]knowledge.Concept](t, rec)["concepts"]
	if len(concepts) == 0 {
		t.Fatal("expected advanced concepts")
	}
	for _, c := range concepts {
		if c.Category != knowledge.CategoryAdvanced {
			t.Fatalf("unexpected category %s", c.Category)
		}
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/concepts/gas-fees", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("concept lookup: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/concepts/missing", nil, nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/snippets", nil, nil); len(decode[map[string][]knowledge.Snippet](t, rec)["snippets"]) == 0 {
		t.Fatal("expected snippets")
	}

	rec = f.do(t, http.MethodGet, "/api/v1/networks", nil, nil)
	networks := decode[struct {
		Default  string            `json:"default"`
		Networks []sui.NetworkInfo `json:"networks"`
	}](t, rec)
	if networks.Default != sui.Testnet || len(networks.Networks) != 4 {
		t.Fatalf("unexpected networks %+v", networks)
	}

	if rec := f.do(t, http.MethodGet, "/healthz", nil, nil); rec.Code != http.StatusOK {
		t.Fatalf("healthz: %d", rec.Code)
	}
}

func TestAuthenticationRequired(t *testing.T) {
	authSvc, err := auth.NewService(context.Background(), auth.Config{
		Mode:      auth.ModeJWT,
		JWTSecret: "test-secret",
		AccessTTL: time.Minute,
	}, auth.NewMemoryStore())
	if err != nil {
		t.Fatalf("auth: %v", err)
	}
	f := newFixture(t, authSvc)

	rec := f.do(t, http.MethodGet, "/api/v1/auth/session", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
	if rec := f.do(t, http.MethodPost, "/functions/v1/ask-ai", map[string]any{"prompt": "hi"}, nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("functions must require a session, got %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/v1/auth/signup", auth.Credentials{Email: "alice@example.com", Password: "secret1"}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("signup: %d %s", rec.Code, rec.Body.String())
	}
	session := decode[auth.Session](t, rec)
	bearer := map[string]string{"Authorization": "Bearer " + session.AccessToken}

	rec = f.do(t, http.MethodGet, "/api/v1/auth/session", nil, bearer)
	if rec.Code != http.StatusOK || decode[auth.Session](t, rec).User.Email != "alice@example.com" {
		t.Fatalf("session: %d %s", rec.Code, rec.Body.String())
	}

	if rec := f.do(t, http.MethodPost, "/api/v1/auth/signout", nil, bearer); rec.Code != http.StatusNoContent {
		t.Fatalf("signout: %d", rec.Code)
	}
	if rec := f.do(t, http.MethodGet, "/api/v1/auth/session", nil, bearer); rec.Code != http.StatusUnauthorized {
		t.Fatalf("revoked token accepted: %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/chat/ask", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK || rec.Header().Get("Access-Control-Allow-Origin") != "http://localhost:5173" {
		t.Fatalf("unexpected preflight %d %v", rec.Code, rec.Header())
	}
}
