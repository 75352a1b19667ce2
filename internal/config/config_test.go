package config

import "testing"

func withEnv(t *testing.T, kv map[string]string, fn func()) {
	t.Helper()
	for k, v := range kv {
		t.Setenv(k, v)
	}
	fn()
}

func TestLoadRequiresBlossomServer(t *testing.T) {
	withEnv(t, map[string]string{
		"BLOSSOM_SERVER": "",
		"NOSTR_RELAYS":   "wss://relay.example",
	}, func() {
		if _, err := Load(); err == nil {
			t.Fatal("expected error when BLOSSOM_SERVER is missing")
		}
	})
}

func TestLoadRequiresRelays(t *testing.T) {
	withEnv(t, map[string]string{
		"BLOSSOM_SERVER": "https://blossom.example",
		"NOSTR_RELAYS":   "",
	}, func() {
		if _, err := Load(); err == nil {
			t.Fatal("expected error when NOSTR_RELAYS is missing")
		}
	})
}

func TestLoadDefaults(t *testing.T) {
	withEnv(t, map[string]string{
		"BLOSSOM_SERVER": "https://blossom.example/",
		"NOSTR_RELAYS":   "wss://a.example, wss://b.example",
	}, func() {
		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if cfg.BlossomServer != "https://blossom.example" {
			t.Errorf("BlossomServer = %q, want trailing slash trimmed", cfg.BlossomServer)
		}
		if len(cfg.Relays) != 2 {
			t.Errorf("Relays = %v, want 2 entries", cfg.Relays)
		}
		if cfg.Concurrency != 3 {
			t.Errorf("Concurrency default = %d, want 3", cfg.Concurrency)
		}
		if cfg.MaxRetries != 3 {
			t.Errorf("MaxRetries default = %d, want 3", cfg.MaxRetries)
		}
	})
}

func TestLoadRejectsBadConcurrency(t *testing.T) {
	withEnv(t, map[string]string{
		"BLOSSOM_SERVER": "https://blossom.example",
		"NOSTR_RELAYS":   "wss://a.example",
		"CONCURRENCY":    "not-a-number",
	}, func() {
		if _, err := Load(); err == nil {
			t.Fatal("expected error for non-numeric CONCURRENCY")
		}
	})
}
