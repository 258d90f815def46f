package main

import (
	"testing"

	"tokopos/backend/internal/config"
)

func TestValidateSecurityConfigRejectsWeakValues(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: "short"}); err == nil {
		t.Fatalf("expected weak security config to be rejected")
	}
	if err := validateSecurityConfig(config.Config{}); err == nil {
		t.Fatalf("expected missing secret to be rejected")
	}
}

func TestValidateSecurityConfigAcceptsStrongValues(t *testing.T) {
	if err := validateSecurityConfig(config.Config{AuthSecret: "0123456789abcdef0123456789abcdef"}); err != nil {
		t.Fatalf("expected strong config to pass, got %v", err)
	}
}
