package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avelasko/taskpilot/internal/models"
	"github.com/avelasko/taskpilot/internal/storage"
	"go.uber.org/zap"
)

func newTestValidator(t *testing.T) (*Validator, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	v := NewValidator(store, zap.NewNop())
	return v, store
}

func seedSession(t *testing.T, store *storage.MemoryStorage, token, userID string, expiresAt time.Time) {
	t.Helper()
	ctx := context.Background()
	if err := store.CreateUser(ctx, &models.User{ID: userID, Email: userID + "@example.com"}); err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	err := store.CreateSession(ctx, &models.Session{
		ID:        "row-" + token,
		Token:     token,
		UserID:    userID,
		ExpiresAt: expiresAt,
	})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
}

func TestValidateLiveSession(t *testing.T) {
	v, store := newTestValidator(t)
	seedSession(t, store, "tok-live", "user-1", time.Now().Add(time.Hour))

	userID, err := v.Validate(context.Background(), "tok-live")
	if err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
	if userID != "user-1" {
		t.Errorf("Validate() userID = %q, want %q", userID, "user-1")
	}
}

func TestValidateLooksUpByTokenNotID(t *testing.T) {
	v, store := newTestValidator(t)
	seedSession(t, store, "tok-abc", "user-1", time.Now().Add(time.Hour))

	// The internal row id must not work as a credential.
	if _, err := v.Validate(context.Background(), "row-tok-abc"); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("Validate(row id) error = %v, want ErrInvalidSession", err)
	}
}

func TestValidateRejectsUniformly(t *testing.T) {
	v, store := newTestValidator(t)
	seedSession(t, store, "tok-expired", "user-1", time.Now().Add(-time.Minute))

	tests := []struct {
		name  string
		token string
	}{
		{"expired session", "tok-expired"},
		{"unknown token", "tok-nope"},
		{"empty token", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Validate(context.Background(), tt.token)
			// Expired and absent tokens must be indistinguishable.
			if !errors.Is(err, ErrInvalidSession) {
				t.Errorf("Validate() error = %v, want ErrInvalidSession", err)
			}
		})
	}
}

func TestValidateExpiryBoundary(t *testing.T) {
	v, store := newTestValidator(t)
	now := time.Now()
	v.now = func() time.Time { return now }
	seedSession(t, store, "tok-edge", "user-1", now)

	// expiresAt must be strictly in the future.
	if _, err := v.Validate(context.Background(), "tok-edge"); !errors.Is(err, ErrInvalidSession) {
		t.Errorf("Validate() at exact expiry error = %v, want ErrInvalidSession", err)
	}
}
