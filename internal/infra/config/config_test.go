package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaults(t *testing.T) {
	cfg := Defaults()

	if cfg.LLM.DefaultProvider != "anthropic" {
		t.Errorf("default provider = %q", cfg.LLM.DefaultProvider)
	}
	if cfg.Chat.MaxHistory != 20 {
		t.Errorf("max history = %d", cfg.Chat.MaxHistory)
	}
	if cfg.Chat.ReapMaxAge != 30*24*time.Hour {
		t.Errorf("reap max age = %s", cfg.Chat.ReapMaxAge)
	}
	if !cfg.LLM.CircuitBreaker.Enabled {
		t.Error("circuit breaker should default on")
	}
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"), nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Level != "info" {
		t.Errorf("level = %q", cfg.Logger.Level)
	}
}

func TestLoadMergesOverDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
llm:
  default_provider: openai
  providers:
    - name: openai
      type: openai
      api_key: sk-plain
      model: gpt-4o
logger:
  level: debug
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.LLM.DefaultProvider != "openai" {
		t.Errorf("default provider = %q", cfg.LLM.DefaultProvider)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("level = %q", cfg.Logger.Level)
	}
	// Unspecified sections keep their defaults.
	if cfg.Chat.MaxHistory != 20 {
		t.Errorf("max history = %d", cfg.Chat.MaxHistory)
	}

	p, ok := cfg.Provider("openai")
	if !ok || p.APIKey != "sk-plain" {
		t.Errorf("provider lookup = %+v, %v", p, ok)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
llm:
  providers:
    - name: anthropic
      type: anthropic
      api_key: from-file
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("RELATOR_ANTHROPIC_API_KEY", "from-env")
	t.Setenv("RELATOR_LOG_LEVEL", "warn")

	cfg, err := Load(path, nil)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, _ := cfg.Provider("anthropic")
	if p.APIKey != "from-env" {
		t.Errorf("api key = %q", p.APIKey)
	}
	if cfg.Logger.Level != "warn" {
		t.Errorf("level = %q", cfg.Logger.Level)
	}
}

func TestLoadDecryptsSecrets(t *testing.T) {
	keys := NewKeyContext("senha-forte")
	encrypted, err := keys.Encrypt("sk-secreta")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	path := filepath.Join(t.TempDir(), "config.yaml")
	data := "llm:\n  providers:\n    - name: anthropic\n      type: anthropic\n      api_key: \"enc:" + encrypted + "\"\n"
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path, keys)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	p, _ := cfg.Provider("anthropic")
	if p.APIKey != "sk-secreta" {
		t.Errorf("decrypted key = %q", p.APIKey)
	}

	// Without a key context the encrypted value is an error, not a silent
	// pass-through of ciphertext.
	if _, err := Load(path, nil); err == nil {
		t.Error("expected error loading encrypted key without passphrase")
	}
}

func TestKeyContextRoundTrip(t *testing.T) {
	keys := NewKeyContext("senha")

	encrypted, err := keys.Encrypt("valor sigiloso")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	plain, err := keys.Decrypt(encrypted)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if plain != "valor sigiloso" {
		t.Errorf("round trip = %q", plain)
	}

	// A different passphrase cannot decrypt.
	wrong := NewKeyContext("outra-senha")
	if _, err := wrong.Decrypt(encrypted); err == nil {
		t.Error("expected decryption failure with wrong passphrase")
	}

	// Reset drops the key cache but derivation still works.
	keys.Reset()
	if again, err := keys.Decrypt(encrypted); err != nil || again != "valor sigiloso" {
		t.Errorf("after reset: %q, %v", again, err)
	}
}

func TestKeyContextDecryptBadFormat(t *testing.T) {
	keys := NewKeyContext("senha")
	for _, bad := range []string{"", "semseparador", "zz:zz", "00ff:short"} {
		if _, err := keys.Decrypt(bad); err == nil {
			t.Errorf("expected error for %q", bad)
		}
	}
}
