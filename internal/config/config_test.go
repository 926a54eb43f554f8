package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "suicopilot.json", `{"sui":{"networks_file":"networks.yaml"}}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Address != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Server.Address)
	}
	if cfg.LLM.Provider != "openai" || cfg.LLM.MaxTokens != 1000 || cfg.LLM.HistoryDepth != 6 {
		t.Fatalf("unexpected llm defaults %+v", cfg.LLM)
	}
	if cfg.Sui.DefaultNetwork != "testnet" {
		t.Fatalf("unexpected default network %q", cfg.Sui.DefaultNetwork)
	}
	if cfg.Sui.NetworksFile != filepath.Join(dir, "networks.yaml") {
		t.Fatalf("networks file not resolved: %q", cfg.Sui.NetworksFile)
	}
	if cfg.Runtime.DataDir != filepath.Join(dir, "data") {
		t.Fatalf("unexpected data dir %q", cfg.Runtime.DataDir)
	}
}

func TestLoadEnvOverridesSecrets(t *testing.T) {
	dir := t.TempDir()
	envPath := writeFile(t, dir, ".env", "OPENAI_API_KEY=sk-from-env\nSUPABASE_URL=https://demo.supabase.co\n")
	path := writeFile(t, dir, "suicopilot.json", `{"llm":{"openai":{"api_key":"sk-file"}}}`)

	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("SUPABASE_URL", "")
	os.Unsetenv("OPENAI_API_KEY")
	os.Unsetenv("SUPABASE_URL")

	if err := LoadEnv(envPath, filepath.Join(dir, "missing.env")); err != nil {
		t.Fatalf("load env: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.OpenAI.APIKey != "sk-from-env" {
		t.Fatalf("env did not override api key: %q", cfg.LLM.OpenAI.APIKey)
	}
	if cfg.Auth.SupabaseURL != "https://demo.supabase.co" {
		t.Fatalf("unexpected supabase url %q", cfg.Auth.SupabaseURL)
	}
}

func TestLoadRejectsUnknownDrivers(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"storage": `{"storage":{"driver":"postgres"}}`,
		"queue":   `{"queue":{"driver":"kafka"}}`,
		"mysql":   `{"storage":{"driver":"mysql"}}`,
		"auth":    `{"auth":{"mode":"oauth"}}`,
	}
	for name, body := range cases {
		path := writeFile(t, dir, name+".json", body)
		if _, err := Load(path); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestSQLiteDefaultDSN(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "c.json", `{"storage":{"driver":"sqlite"},"runtime":{"data_dir":"state"}}`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Storage.DSN != filepath.Join(dir, "state", "suicopilot.db") {
		t.Fatalf("unexpected dsn %q", cfg.Storage.DSN)
	}
}
