package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LOOKUP_TTL_SECONDS", "")
	t.Setenv("OUTBOX_WORKER", "")
	t.Setenv("DEFAULT_STORE_ID", "")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("expected address :8080, got %q", cfg.Address())
	}
	if cfg.LookupTTLSeconds != 30 {
		t.Fatalf("expected default lookup TTL 30, got %d", cfg.LookupTTLSeconds)
	}
	if cfg.StoreID != "1" {
		t.Fatalf("expected default store id 1, got %q", cfg.StoreID)
	}
	if !cfg.OutboxWorker {
		t.Fatalf("expected outbox worker enabled by default")
	}
}

func TestOutboxWorkerDisable(t *testing.T) {
	t.Setenv("OUTBOX_WORKER", "false")

	cfg := Load()
	if cfg.OutboxWorker {
		t.Fatalf("expected OUTBOX_WORKER=false to disable the worker")
	}
}

func TestLookupTTLIgnoresGarbage(t *testing.T) {
	t.Setenv("LOOKUP_TTL_SECONDS", "not-a-number")

	cfg := Load()
	if cfg.LookupTTLSeconds != 30 {
		t.Fatalf("expected fallback TTL 30, got %d", cfg.LookupTTLSeconds)
	}
}
