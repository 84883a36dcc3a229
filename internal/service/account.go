package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iliyamo/smartbooking/internal/model"
	q "github.com/iliyamo/smartbooking/internal/queue"
	"github.com/iliyamo/smartbooking/internal/repository"
	"github.com/iliyamo/smartbooking/internal/utils"
)

var (
	// ErrInvalidResetToken covers unknown, used and expired reset tokens.
	ErrInvalidResetToken = errors.New("invalid or expired token")
	// ErrWeakPassword is returned for passwords outside the accepted length.
	ErrWeakPassword = fmt.Errorf("password must be %d to %d characters", utils.MinPasswordLength, utils.MaxPasswordLength)
)

// AccountUsers is the user persistence needed by password reset.
type AccountUsers interface {
	GetByEmail(ctx context.Context, email string) (model.User, error)
	UpdatePassword(ctx context.Context, id uint64, hash string) error
}

// ResetStore persists hashed password reset tokens.
type ResetStore interface {
	Replace(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	Lookup(ctx context.Context, tokenHash string) (uint64, error)
	Delete(ctx context.Context, tokenHash string) error
}

// SessionRevoker drops every session of a user.
type SessionRevoker interface {
	RevokeAllForUser(ctx context.Context, userID uint64) error
}

// Accounts implements the forgot/reset password flow.
type Accounts struct {
	Users      AccountUsers
	Resets     ResetStore
	Sessions   SessionRevoker
	Events     EventPublisher
	Log        *zap.Logger
	BcryptCost int
	TTL        time.Duration
	ResetURL   func(token string) string
}

// RequestReset creates a reset token for the account registered with email
// and publishes a password.reset event. Unknown emails are not reported so
// the endpoint cannot be used to discover accounts.
func (a *Accounts) RequestReset(ctx context.Context, email string) error {
	u, err := a.Users.GetByEmail(ctx, repository.NormalizeEmail(email))
	if errors.Is(err, repository.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	token := uuid.NewString()
	exp := time.Now().UTC().Add(a.TTL)
	if err := a.Resets.Replace(ctx, u.ID, utils.HashRefreshRaw(token), exp); err != nil {
		return err
	}
	if a.Events == nil {
		return nil
	}
	event := q.PasswordResetEvent{
		UserID:    u.ID,
		Email:     u.Email,
		Firstname: u.Firstname,
		Langue:    u.Langue,
		ExpiresAt: exp.Format(time.RFC3339),
	}
	if a.ResetURL != nil {
		event.ResetURL = a.ResetURL(token)
	}
	if err := a.Events.PublishPasswordReset(ctx, event); err != nil && a.Log != nil {
		a.Log.Warn("publish password.reset", zap.Uint64("user_id", u.ID), zap.Error(err))
	}
	return nil
}

// Reset sets a new password for the owner of token, consumes the token and
// revokes all sessions of the user.
func (a *Accounts) Reset(ctx context.Context, token, password string) error {
	if len(password) < utils.MinPasswordLength || len(password) > utils.MaxPasswordLength {
		return ErrWeakPassword
	}
	if token == "" {
		return ErrInvalidResetToken
	}
	hash := utils.HashRefreshRaw(token)
	userID, err := a.Resets.Lookup(ctx, hash)
	if errors.Is(err, repository.ErrNotFound) {
		return ErrInvalidResetToken
	}
	if err != nil {
		return err
	}
	pw, err := utils.HashPassword(password, a.BcryptCost)
	if err != nil {
		return err
	}
	if err := a.Users.UpdatePassword(ctx, userID, pw); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrInvalidResetToken
		}
		return err
	}
	if err := a.Resets.Delete(ctx, hash); err != nil {
		return err
	}
	if a.Sessions != nil {
		return a.Sessions.RevokeAllForUser(ctx, userID)
	}
	return nil
}
