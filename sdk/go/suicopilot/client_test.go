package suicopilot

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	client, err := NewClient(srv.URL, srv.Client())
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

func TestSignInStoresToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/auth/signin" || r.Method != http.MethodPost {
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var creds Credentials
		if err := json.NewDecoder(r.Body).Decode(&creds); err != nil || creds.Email != "dev@example.com" {
			t.Fatalf("unexpected body %+v (%v)", creds, err)
		}
		_ = json.NewEncoder(w).Encode(Session{User: User{ID: "u-1", Email: creds.Email}, AccessToken: "abc123"})
	}))

	session, err := client.SignIn(context.Background(), Credentials{Email: "dev@example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("sign in: %v", err)
	}
	if session.User.ID != "u-1" || client.AccessToken() != "abc123" {
		t.Fatalf("unexpected session %+v / token %q", session, client.AccessToken())
	}
}

func TestAskAISendsBearerAndWallet(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/functions/v1/ask-ai" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Fatalf("expected bearer token, got %q", r.Header.Get("Authorization"))
		}
		if r.Header.Get("X-Wallet-Address") != "0xabc" || r.Header.Get("X-Sui-Network") != "devnet" {
			t.Fatalf("wallet headers missing: %v", r.Header)
		}
		var req AskAIRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Prompt != "What is a UID?" || req.MaxTokens != 200 {
			t.Fatalf("unexpected body %+v", req)
		}
		_ = json.NewEncoder(w).Encode(AskAIResponse{Response: "An object id.", Tokens: Usage{TotalTokens: 12}})
	}))
	client.SetAccessToken("token")
	client.UseWallet("0xabc", "devnet")

	resp, err := client.AskAI(context.Background(), AskAIRequest{Prompt: "What is a UID?", MaxTokens: 200})
	if err != nil {
		t.Fatalf("ask: %v", err)
	}
	if resp.Response != "An object id." || resp.Tokens.TotalTokens != 12 {
		t.Fatalf("unexpected response %+v", resp)
	}
}

func TestRequestsRequireToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("request must not be sent without a token")
	}))
	if _, err := client.Snippets(context.Background()); err == nil {
		t.Fatal("expected missing token error")
	}
}

func TestToastErrorsAreDecoded(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(Toast{Title: "Invalid input", Description: "Please simulate the transaction first", Variant: "destructive"})
	}))
	client.SetAccessToken("token")

	_, err := client.Execute(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %T", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Message != "Please simulate the transaction first" {
		t.Fatalf("unexpected error %+v", apiErr)
	}
}

func TestFunctionErrorsAreDecoded(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"error": "Failed to fetch wallet information"})
	}))
	client.SetAccessToken("token")

	_, err := client.GetWalletInfo(context.Background(), WalletInfoRequest{WalletAddress: "0xabc"})
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "Failed to fetch wallet information" {
		t.Fatalf("unexpected error %v", err)
	}
}

func TestHistoryEncodesQuery(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v1/chat/history" || r.URL.Query().Get("type") != "code" || r.URL.Query().Get("limit") != "5" {
			t.Fatalf("unexpected request %s", r.URL.String())
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"messages": []Message{
			{ID: 1, Role: "user", Content: "a counter"},
			{ID: 2, Role: "assistant", Content: "module demo::counter {}"},
		}})
	}))
	client.SetAccessToken("token")

	messages, err := client.History(context.Background(), "code", 5)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(messages) != 2 || messages[1].Role != "assistant" {
		t.Fatalf("unexpected messages %+v", messages)
	}
}

func TestSignOutClearsToken(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	client.SetAccessToken("token")
	if err := client.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}
	if client.AccessToken() != "" {
		t.Fatal("token should be cleared")
	}
}
