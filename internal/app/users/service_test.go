package users

import (
	"context"
	"errors"
	"testing"
	"time"

	"trackrank/internal/auth"
	"trackrank/internal/store"
)

type fakeStore struct {
	users map[string]string
	ids   map[string]int64
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]string{}, ids: map[string]int64{}}
}

func (f *fakeStore) CreateUser(_ context.Context, username, password string) (int64, error) {
	if _, ok := f.users[username]; ok {
		return 0, store.ErrUserExists
	}
	f.users[username] = password
	f.ids[username] = int64(len(f.ids) + 1)
	return f.ids[username], nil
}

func (f *fakeStore) Authenticate(_ context.Context, username, password string) (int64, error) {
	if pw, ok := f.users[username]; !ok || pw != password {
		return 0, store.ErrInvalidCredentials
	}
	return f.ids[username], nil
}

func TestSignupLoginIdentify(t *testing.T) {
	svc := New(newFakeStore(), auth.NewTokenManager("0123456789abcdef", time.Hour))
	ctx := context.Background()

	if err := svc.Signup(ctx, "alice", "pw"); err != nil {
		t.Fatalf("Signup error: %v", err)
	}
	if err := svc.Signup(ctx, "alice", "pw"); !errors.Is(err, store.ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}

	if _, err := svc.Authenticate(ctx, "alice", "bad"); !errors.Is(err, store.ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	token, err := svc.Authenticate(ctx, "alice", "pw")
	if err != nil {
		t.Fatalf("Authenticate error: %v", err)
	}

	userID, err := svc.Identify(ctx, token)
	if err != nil || userID != 1 {
		t.Fatalf("expected user 1, got %d %v", userID, err)
	}

	if _, err := svc.Identify(ctx, "garbage"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestCanceledContext(t *testing.T) {
	svc := New(newFakeStore(), auth.NewTokenManager("0123456789abcdef", time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := svc.Signup(ctx, "bob", "pw"); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
