package httpapi

import (
	"context"
	"sync"
	"testing"
	"time"

	"tokopos/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
}

func (s *userStoreStub) CreateUser(_ context.Context, user domain.UserAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.users == nil {
		s.users = make(map[string]domain.UserAccount)
	}
	s.users[user.Username] = user
	return nil
}

func (s *userStoreStub) ListUsers(_ context.Context) ([]domain.UserAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.UserAccount, 0, len(s.users))
	for _, user := range s.users {
		out = append(out, user)
	}
	return out, nil
}

func (s *userStoreStub) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user := s.users[username]
	user.Password = password
	s.users[username] = user
	s.updates++
	return nil
}

func TestAuthManagerUpgradesLegacyPlainPassword(t *testing.T) {
	store := &userStoreStub{
		users: map[string]domain.UserAccount{
			"admin": {
				Username:  "admin",
				Password:  "admin123",
				Role:      "admin",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, store)
	_, err := manager.Login(domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := store.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !isPasswordHash(users[0].Password) {
		t.Fatalf("expected bcrypt hash in store, got %q", users[0].Password)
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)

	token, err := manager.sign("admin", "admin", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	actor, err := manager.ParseToken(token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if actor.Username != "admin" || actor.Role != "admin" {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	issuer := NewAuthManager("issuer-secret-issuer-secret", time.Hour, nil)
	verifier := NewAuthManager("different-secret-different!", time.Hour, nil)

	token, err := issuer.sign("admin", "admin", time.Now().UTC().Add(time.Hour))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := verifier.ParseToken(token); err == nil {
		t.Fatalf("expected token signed with another secret to be rejected")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, nil)

	token, err := manager.sign("admin", "admin", time.Now().UTC().Add(-time.Minute))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := manager.ParseToken(token); err == nil {
		t.Fatalf("expected expired token to be rejected")
	}
}

func TestCreateCashierValidation(t *testing.T) {
	manager := NewAuthManager("test-secret", time.Hour, &userStoreStub{})

	cases := []domain.CashierCreateRequest{
		{Username: "ab", Password: "secret123"},
		{Username: "has space", Password: "secret123"},
		{Username: "kasir", Password: "123"},
	}
	for i, req := range cases {
		if _, err := manager.CreateCashier(req); err == nil {
			t.Fatalf("case %d: expected validation error", i)
		}
	}

	cashier, err := manager.CreateCashier(domain.CashierCreateRequest{Username: "Kasir2", Password: "secret123"})
	if err != nil {
		t.Fatalf("create cashier: %v", err)
	}
	if cashier.Username != "kasir2" {
		t.Fatalf("expected lowercased username, got %q", cashier.Username)
	}
	if _, err := manager.CreateCashier(domain.CashierCreateRequest{Username: "kasir2", Password: "secret123"}); err == nil {
		t.Fatalf("expected duplicate username to be rejected")
	}
}
