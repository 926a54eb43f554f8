package sui

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	xerrors "SuiCoPilot/internal/errors"
)

func TestRemoteSignerPostsBytes(t *testing.T) {
	var got SignRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sign-and-execute" || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		if r.Header.Get("Authorization") != "Bearer secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(map[string]string{"digest": "5nDigest"})
	}))
	defer srv.Close()

	signer, err := NewRemoteSigner(SignerConfig{URL: srv.URL + "/", Token: "secret"})
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}
	res, err := signer.SignAndExecute(context.Background(), SignRequest{TxBytes: "AAEC", Sender: testSender, Network: Testnet})
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if res.Digest != "5nDigest" || got.TxBytes != "AAEC" || got.Network != Testnet {
		t.Fatalf("unexpected exchange: res=%+v req=%+v", res, got)
	}
}

func TestRemoteSignerErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"wallet locked"}`))
	}))
	defer srv.Close()

	signer, _ := NewRemoteSigner(SignerConfig{URL: srv.URL})
	_, err := signer.SignAndExecute(context.Background(), SignRequest{TxBytes: "AAEC"})
	if !xerrors.HasCode(err, xerrors.CodeNetwork) {
		t.Fatalf("expected NETWORK error, got %v", err)
	}

	if _, err := NewRemoteSigner(SignerConfig{}); err == nil {
		t.Fatal("expected missing url to fail")
	}
}
