package httpapi

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"vendafacil/backend/internal/domain"
)

type userStoreStub struct {
	mu      sync.Mutex
	users   map[string]domain.UserAccount
	updates int
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
	userStore := &userStoreStub{
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

	manager := NewAuthManager("test-secret", time.Hour, userStore)
	_, err := manager.Login(domain.LoginRequest{
		Username: "admin",
		Password: "admin123",
	})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	users, err := userStore.ListUsers(context.Background())
	if err != nil {
		t.Fatalf("list users failed: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected 1 user, got %d", len(users))
	}
	if users[0].Password == "admin123" {
		t.Fatalf("expected password to be upgraded from plain-text")
	}
	if !strings.HasPrefix(users[0].Password, "$2") {
		t.Fatalf("expected bcrypt password hash, got %s", users[0].Password)
	}
}

func TestLoginRejectsWrongPasswordAndInactiveAccount(t *testing.T) {
	userStore := &userStoreStub{
		users: map[string]domain.UserAccount{
			"vendedor": {
				Username:  "vendedor",
				Password:  "vendedor123",
				Role:      "vendedor",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
			"inativo": {
				Username:  "inativo",
				Password:  "inativo123",
				Role:      "vendedor",
				Active:    false,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, userStore)

	if _, err := manager.Login(domain.LoginRequest{Username: "vendedor", Password: "errada"}); err == nil {
		t.Fatalf("expected login with wrong password to fail")
	}
	if _, err := manager.Login(domain.LoginRequest{Username: "inativo", Password: "inativo123"}); err == nil {
		t.Fatalf("expected login with inactive account to fail")
	}
}

func TestParseTokenRoundTrip(t *testing.T) {
	userStore := &userStoreStub{
		users: map[string]domain.UserAccount{
			"vendedor": {
				Username:  "vendedor",
				Password:  "vendedor123",
				Role:      "vendedor",
				Active:    true,
				CreatedAt: time.Now().UTC(),
			},
		},
	}

	manager := NewAuthManager("test-secret", time.Hour, userStore)
	resp, err := manager.Login(domain.LoginRequest{Username: "vendedor", Password: "vendedor123"})
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}

	actor, err := manager.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token failed: %v", err)
	}
	if actor.Username != "vendedor" || actor.Role != "vendedor" {
		t.Fatalf("unexpected actor %+v", actor)
	}

	other := NewAuthManager("another-secret", time.Hour, userStore)
	if _, err := other.ParseToken(resp.AccessToken); err == nil {
		t.Fatalf("expected token signed with different secret to be rejected")
	}
}
