package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"SuiCoPilot/internal/auth"
	xerrors "SuiCoPilot/internal/errors"
	"SuiCoPilot/internal/history"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(context.Background(), filepath.Join(t.TempDir(), "suicopilot.db"))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func TestHistoryRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i, prompt := range []string{"one", "two", "three", "four"} {
		kind := history.KindChat
		if i == 3 {
			kind = history.KindCode
		}
		record := &history.Record{UserID: "u", Prompt: prompt, Response: "re " + prompt, Type: kind, CreatedAt: base.Add(time.Duration(i) * time.Second)}
		if err := store.AppendRecord(ctx, record); err != nil {
			t.Fatalf("append: %v", err)
		}
		if record.ID != int64(i+1) {
			t.Fatalf("expected id %d, got %d", i+1, record.ID)
		}
	}

	records, err := store.ListRecent(ctx, "u", history.KindChat, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	messages := history.Replay(records)
	if len(messages) != 6 {
		t.Fatalf("expected 6 messages, got %d", len(messages))
	}
	if messages[0].Content != "one" || messages[0].ID != 2 || messages[1].ID != 3 {
		t.Fatalf("unexpected first pair %+v", messages[:2])
	}

	latest, err := store.ListRecent(ctx, "u", "", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(latest) != 2 || latest[0].Prompt != "three" || latest[1].Prompt != "four" {
		t.Fatalf("unexpected latest records %+v", latest)
	}
	if !latest[1].CreatedAt.Equal(base.Add(3 * time.Second)) {
		t.Fatalf("created_at not preserved: %v", latest[1].CreatedAt)
	}
}

func TestTransactionLogsAndProfiles(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	for i, status := range []history.TxStatus{history.TxSimulated, history.TxExecuted} {
		entry := &history.TransactionLog{
			ID:        []string{"a", "b"}[i],
			UserID:    "u",
			Status:    status,
			TxHash:    "hash",
			GasUsed:   int64(100 * (i + 1)),
			Details:   history.TransactionDetails{Type: "transfer", Network: "testnet", Recipient: "0x1", Amount: "1"},
			CreatedAt: time.UnixMilli(int64(1000 * (i + 1))),
		}
		if err := store.AppendTransactionLog(ctx, entry); err != nil {
			t.Fatalf("append log: %v", err)
		}
	}
	logs, err := store.ListTransactionLogs(ctx, "u", 10)
	if err != nil {
		t.Fatalf("list logs: %v", err)
	}
	if len(logs) != 2 || logs[0].ID != "b" || logs[0].Details.Network != "testnet" {
		t.Fatalf("unexpected logs %+v", logs)
	}

	if _, err := store.Profile(ctx, "u"); !xerrors.HasCode(err, xerrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
	for _, addr := range []string{"0x1", "0x2"} {
		if err := store.UpsertProfile(ctx, history.Profile{ID: "u", WalletAddress: addr, UpdatedAt: time.Now()}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}
	profile, err := store.Profile(ctx, "u")
	if err != nil || profile.WalletAddress != "0x2" {
		t.Fatalf("unexpected profile %+v (%v)", profile, err)
	}
}

func TestUserStoreBackedByLocalProvider(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	provider, err := auth.NewLocalProvider(store, "test-secret", "suicopilot", time.Hour)
	if err != nil {
		t.Fatalf("provider: %v", err)
	}
	session, err := provider.SignUp(ctx, auth.Credentials{Email: "Dev@Example.com", Password: "secret123"})
	if err != nil {
		t.Fatalf("sign up: %v", err)
	}
	if session.User.Email != "dev@example.com" {
		t.Fatalf("email not normalised: %q", session.User.Email)
	}
	if _, err := provider.SignUp(ctx, auth.Credentials{Email: "dev@example.com", Password: "secret123"}); !xerrors.HasCode(err, xerrors.CodeConflict) {
		t.Fatalf("expected CONFLICT on duplicate sign up, got %v", err)
	}
	if _, err := provider.SignIn(ctx, auth.Credentials{Email: "dev@example.com", Password: "secret123"}); err != nil {
		t.Fatalf("sign in: %v", err)
	}
}

func TestOpenInMemory(t *testing.T) {
	store, err := Open(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer store.Close()
	if err := store.AppendRecord(context.Background(), &history.Record{UserID: "u", Type: history.KindTest}); err != nil {
		t.Fatalf("append: %v", err)
	}
}
