package config

import "testing"

func TestLoadDoesNotInjectWeakAuthDefaults(t *testing.T) {
	t.Setenv("AUTH_SECRET", "")

	cfg := Load()
	if cfg.AuthSecret != "" {
		t.Fatalf("expected empty AUTH_SECRET when unset, got %q", cfg.AuthSecret)
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("STATS_TTL_SECONDS", "")
	t.Setenv("ACCESS_TOKEN_TTL_MINUTES", "naoenumero")

	cfg := Load()
	if cfg.Port != "8080" {
		t.Fatalf("expected default port 8080, got %q", cfg.Port)
	}
	if cfg.StatsTTLSeconds != 30 {
		t.Fatalf("expected default stats ttl 30, got %d", cfg.StatsTTLSeconds)
	}
	if cfg.AccessTokenTTLMinutes != 480 {
		t.Fatalf("expected default token ttl 480, got %d", cfg.AccessTokenTTLMinutes)
	}
	if cfg.Address() != ":8080" {
		t.Fatalf("unexpected address %q", cfg.Address())
	}
}
