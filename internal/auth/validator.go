package auth

import (
	"context"
	"errors"
	"time"

	"github.com/avelasko/taskpilot/internal/storage"
	"go.uber.org/zap"
)

// ErrInvalidSession is returned for any token that cannot be validated.
// Callers get the same error whether the token was absent or expired, so the
// two cases are indistinguishable from outside.
var ErrInvalidSession = errors.New("invalid session")

// Validator resolves bearer tokens to user identities against the auth
// provider's session table. It is read-only: no renewal, no network calls.
type Validator struct {
	store  storage.Storage
	logger *zap.Logger
	now    func() time.Time
}

func NewValidator(store storage.Storage, logger *zap.Logger) *Validator {
	return &Validator{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// Validate looks the session up by token and returns the owning user id. A
// session is live iff its expiry is strictly in the future.
func (v *Validator) Validate(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidSession
	}

	session, err := v.store.GetSessionByToken(ctx, token)
	if err != nil {
		if storage.IsNotFound(err) {
			return "", ErrInvalidSession
		}
		// Storage trouble is not the caller's fault, but the caller is still
		// unauthenticated; log the real cause and reject uniformly.
		v.logger.Error("session lookup failed", zap.Error(err))
		return "", ErrInvalidSession
	}

	if !session.ExpiresAt.After(v.now()) {
		return "", ErrInvalidSession
	}

	return session.UserID, nil
}
