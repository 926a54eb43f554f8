package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"SuiCoPilot/internal/auth"
	"SuiCoPilot/internal/chat"
	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/history"
	"SuiCoPilot/internal/knowledge"
	"SuiCoPilot/internal/sui"
)

// 请求可以通过这两个头临时指定钱包，否则使用已保存的钱包资料。
const (
	headerWalletAddress = "X-Wallet-Address"
	headerNetwork       = "X-Sui-Network"
)

var errNotConfigured = xerrors.New(xerrors.CodeInitializationFailure, "Service is not configured")

func (s *Server) handleSignIn(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := decodeJSON(r, &creds); err != nil {
		writeError(w, err)
		return
	}
	session, err := s.deps.Auth.SignIn(r.Context(), creds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *Server) handleSignUp(w http.ResponseWriter, r *http.Request) {
	var creds auth.Credentials
	if err := decodeJSON(r, &creds); err != nil {
		writeError(w, err)
		return
	}
	session, err := s.deps.Auth.SignUp(r.Context(), creds)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, session)
}

func (s *Server) handleSignOut(w http.ResponseWriter, r *http.Request) {
	session := auth.SessionFromContext(r.Context())
	if err := s.deps.Auth.SignOut(r.Context(), session); err != nil {
		writeError(w, err)
		return
	}
	if s.deps.Transactions != nil {
		s.deps.Transactions.Forget(session.UserID())
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.walletSession(r))
}

type chatAskRequest struct {
	Prompt      string         `json:"prompt"`
	Network     string         `json:"network"`
	Model       string         `json:"model"`
	Temperature *float64       `json:"temperature"`
	MaxTokens   int            `json:"max_tokens"`
	Context     map[string]any `json:"context"`
}

func (s *Server) handleChatAsk(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assistant == nil {
		writeError(w, errNotConfigured)
		return
	}
	var req chatAskRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	answer, err := s.deps.Assistant.Ask(r.Context(), s.walletSession(r), req.Prompt, chat.AskOptions{
		Network:     req.Network,
		Model:       req.Model,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Context:     req.Context,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, answer)
}

func (s *Server) handleChatHistory(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assistant == nil {
		writeError(w, errNotConfigured)
		return
	}
	kind := history.Kind(r.URL.Query().Get("type"))
	if kind == "" {
		kind = history.KindChat
	}
	messages, err := s.deps.Assistant.History(r.Context(), auth.SessionFromContext(r.Context()), kind, queryInt(r, "limit", history.DefaultLimit))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": messages})
}

type codeRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleGenerateCode(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assistant == nil {
		writeError(w, errNotConfigured)
		return
	}
	var req codeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := s.deps.Assistant.GenerateCode(r.Context(), auth.SessionFromContext(r.Context()), req.Prompt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleAITest(w http.ResponseWriter, r *http.Request) {
	if s.deps.Assistant == nil {
		writeError(w, errNotConfigured)
		return
	}
	var req chat.CompletionRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	completion, err := s.deps.Assistant.Probe(r.Context(), auth.SessionFromContext(r.Context()), req.Prompt, req.Model, req.Temperature, req.MaxTokens)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, completion)
}

func (s *Server) handleConcepts(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalogue == nil {
		writeError(w, errNotConfigured)
		return
	}
	var concepts []knowledge.Concept
	if term := strings.TrimSpace(r.URL.Query().Get("q")); term != "" {
		concepts = s.deps.Catalogue.Search(term)
	} else {
		concepts = s.deps.Catalogue.Concepts(knowledge.Category(r.URL.Query().Get("category")))
	}
	if concepts == nil {
		concepts = []knowledge.Concept{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"concepts": concepts})
}

func (s *Server) handleConcept(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalogue == nil {
		writeError(w, errNotConfigured)
		return
	}
	concept, ok := s.deps.Catalogue.Concept(chi.URLParam(r, "id"))
	if !ok {
		writeError(w, xerrors.New(xerrors.CodeNotFound, "Concept not found"))
		return
	}
	writeJSON(w, http.StatusOK, concept)
}

func (s *Server) handleSnippets(w http.ResponseWriter, r *http.Request) {
	if s.deps.Catalogue == nil {
		writeError(w, errNotConfigured)
		return
	}
	snippets := s.deps.Catalogue.Snippets()
	if snippets == nil {
		snippets = []knowledge.Snippet{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"snippets": snippets})
}

func (s *Server) handleWallet(w http.ResponseWriter, r *http.Request) {
	if s.deps.Wallets == nil {
		writeError(w, errNotConfigured)
		return
	}
	session := s.walletSession(r)
	network := r.URL.Query().Get("network")
	fetch := s.deps.Wallets.Current
	if r.URL.Query().Get("refresh") == "true" {
		fetch = s.deps.Wallets.Refresh
	}
	result, err := fetch(r.Context(), session, network)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type connectRequest struct {
	Address string `json:"address"`
	Network string `json:"network"`
}

func (s *Server) handleWalletConnect(w http.ResponseWriter, r *http.Request) {
	if s.deps.Wallets == nil {
		writeError(w, errNotConfigured)
		return
	}
	var req connectRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	result, err := s.deps.Wallets.Connect(r.Context(), auth.SessionFromContext(r.Context()), req.Address, req.Network)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

type simulateRequest struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Network   string `json:"network"`
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transactions == nil {
		writeError(w, errNotConfigured)
		return
	}
	var req simulateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	session := s.walletSession(r)
	snapshot, err := s.deps.Transactions.For(session.UserID()).Simulate(r.Context(), session, req.Recipient, req.Amount, req.Network)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transactions == nil {
		writeError(w, errNotConfigured)
		return
	}
	session := s.walletSession(r)
	snapshot, err := s.deps.Transactions.For(session.UserID()).Execute(r.Context(), session)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleTransactionState(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transactions == nil {
		writeError(w, errNotConfigured)
		return
	}
	session := auth.SessionFromContext(r.Context())
	writeJSON(w, http.StatusOK, s.deps.Transactions.For(session.UserID()).Snapshot())
}

func (s *Server) handleTransactionReset(w http.ResponseWriter, r *http.Request) {
	if s.deps.Transactions == nil {
		writeError(w, errNotConfigured)
		return
	}
	session := auth.SessionFromContext(r.Context())
	snapshot, err := s.deps.Transactions.For(session.UserID()).Reset()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

func (s *Server) handleTransactionLogs(w http.ResponseWriter, r *http.Request) {
	if s.deps.History == nil {
		writeError(w, errNotConfigured)
		return
	}
	session := auth.SessionFromContext(r.Context())
	logs, err := s.deps.History.TransactionLogs(r.Context(), session.UserID(), queryInt(r, "limit", 20))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"logs": logs})
}

func (s *Server) handleNetworks(w http.ResponseWriter, r *http.Request) {
	if s.deps.Networks == nil {
		writeError(w, errNotConfigured)
		return
	}
	networks := s.deps.Networks.Networks()
	if networks == nil {
		networks = []sui.NetworkInfo{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"default":  s.deps.Networks.Default(),
		"networks": networks,
	})
}

// walletSession 返回绑定了钱包的会话：优先使用请求头，其次是已保存的钱包资料。
func (s *Server) walletSession(r *http.Request) *auth.Session {
	session := auth.SessionFromContext(r.Context())
	if session == nil {
		return nil
	}
	if addr := strings.TrimSpace(r.Header.Get(headerWalletAddress)); addr != "" {
		return session.WithWallet(addr, r.Header.Get(headerNetwork))
	}
	if session.Wallet.Address != "" || s.deps.History == nil {
		return session
	}
	profile, err := s.deps.History.Profile(r.Context(), session.UserID())
	if err != nil || profile == nil || profile.WalletAddress == "" {
		return session
	}
	return session.WithWallet(profile.WalletAddress, r.Header.Get(headerNetwork))
}
