package httpapi

import (
	"context"
	"errors"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"warungpos/backend/internal/domain"
	"warungpos/backend/internal/store"
)

type stubUserStore struct {
	users map[string]domain.UserAccount
}

func (s *stubUserStore) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	user, ok := s.users[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *stubUserStore) CreateUser(_ context.Context, user domain.UserAccount) error {
	if _, exists := s.users[user.Username]; exists {
		return store.ErrValidation
	}
	s.users[user.Username] = user
	return nil
}

func newStubUserStore(t *testing.T) *stubUserStore {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("rahasia1"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return &stubUserStore{users: map[string]domain.UserAccount{
		"budi": {
			ID:       "user-budi",
			Username: "budi",
			Password: string(hash),
			Role:     domain.RoleStaff,
			TenantID: "tenant-x",
			Active:   true,
		},
		"lama": {
			ID:       "user-lama",
			Username: "lama",
			Password: string(hash),
			Role:     domain.RoleStaff,
			TenantID: "tenant-x",
			Active:   false,
		},
	}}
}

func TestNewAuthManagerRejectsEmptySecret(t *testing.T) {
	if _, err := NewAuthManager("  ", time.Hour, newStubUserStore(t)); err == nil {
		t.Fatalf("expected error for empty secret")
	}
}

func TestLoginRoundTripCarriesTenantAndRole(t *testing.T) {
	auth, err := NewAuthManager("test-secret", time.Hour, newStubUserStore(t))
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: " Budi ", Password: "rahasia1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if resp.TenantID != "tenant-x" || resp.Role != domain.RoleStaff {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	actor, err := auth.ParseToken(resp.AccessToken)
	if err != nil {
		t.Fatalf("parse token: %v", err)
	}
	if actor.ID != "user-budi" || actor.Username != "budi" || actor.TenantID != "tenant-x" || actor.Role != domain.RoleStaff {
		t.Fatalf("unexpected actor: %+v", actor)
	}
}

func TestLoginRejectsWrongPasswordAndUnknownUser(t *testing.T) {
	auth, err := NewAuthManager("test-secret", time.Hour, newStubUserStore(t))
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "budi", Password: "salah"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for wrong password, got %v", err)
	}
	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "ghost", Password: "rahasia1"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestLoginRejectsInactiveAccount(t *testing.T) {
	auth, err := NewAuthManager("test-secret", time.Hour, newStubUserStore(t))
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	if _, err := auth.Login(context.Background(), domain.LoginRequest{Username: "lama", Password: "rahasia1"}); !errors.Is(err, ErrAccountInactive) {
		t.Fatalf("expected ErrAccountInactive, got %v", err)
	}
}

func TestCreateUserStoresHashInActorTenant(t *testing.T) {
	users := newStubUserStore(t)
	auth, err := NewAuthManager("test-secret", time.Hour, users)
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}
	owner := domain.Actor{ID: "user-owner", TenantID: "tenant-x", Role: domain.RoleOwner}

	created, err := auth.CreateUser(context.Background(), owner, domain.UserCreateRequest{
		Username: " KasirBaru ",
		Password: "rahasia2",
	})
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	if created.Username != "kasirbaru" || created.Role != domain.RoleStaff || created.TenantID != "tenant-x" {
		t.Fatalf("unexpected user: %+v", created)
	}

	stored := users.users["kasirbaru"]
	if stored.Password == "rahasia2" || !isPasswordHash(stored.Password) {
		t.Fatalf("password must be stored as a bcrypt hash, got %q", stored.Password)
	}
	if bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("rahasia2")) != nil {
		t.Fatalf("stored hash does not verify the password")
	}
}

func TestCreateUserRejectsWeakInput(t *testing.T) {
	auth, err := NewAuthManager("test-secret", time.Hour, newStubUserStore(t))
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}
	owner := domain.Actor{ID: "user-owner", TenantID: "tenant-x", Role: domain.RoleOwner}

	cases := []domain.UserCreateRequest{
		{Username: "abc", Password: "rahasia2"},
		{Username: "kasirbaru", Password: "12345"},
		{Username: "kasirbaru", Password: "rahasia2", Role: "manager"},
		{Username: "budi", Password: "rahasia2"}, // already exists
	}
	for _, req := range cases {
		if _, err := auth.CreateUser(context.Background(), owner, req); !errors.Is(err, store.ErrValidation) {
			t.Errorf("expected ErrValidation for %+v, got %v", req, err)
		}
	}
}

func TestParseTokenRejectsForeignSecret(t *testing.T) {
	users := newStubUserStore(t)
	signer, err := NewAuthManager("secret-one", time.Hour, users)
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}
	verifier, err := NewAuthManager("secret-two", time.Hour, users)
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}

	resp, err := signer.Login(context.Background(), domain.LoginRequest{Username: "budi", Password: "rahasia1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if _, err := verifier.ParseToken(resp.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken across secrets, got %v", err)
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	auth, err := NewAuthManager("test-secret", time.Nanosecond, newStubUserStore(t))
	if err != nil {
		t.Fatalf("auth manager: %v", err)
	}
	// tokenTTL <= 0 falls back to 8h, so the smallest positive duration
	// gives an already-expired token by the time we parse it.
	resp, err := auth.Login(context.Background(), domain.LoginRequest{Username: "budi", Password: "rahasia1"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if _, err := auth.ParseToken(resp.AccessToken); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken for expired token, got %v", err)
	}
}
