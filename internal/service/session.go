package service

import (
	"context"
	"errors"
	"time"

	"github.com/iliyamo/smartbooking/internal/model"
	"github.com/iliyamo/smartbooking/internal/utils"
)

// ErrInvalidSession is returned when a refresh token is unknown, revoked
// or expired.
var ErrInvalidSession = errors.New("invalid session")

// RefreshStore persists hashed refresh tokens.
type RefreshStore interface {
	StoreRefresh(ctx context.Context, userID uint64, tokenHash string, exp time.Time) error
	ValidateRefresh(ctx context.Context, tokenHash string) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
}

// Session is a freshly issued pair of tokens.
type Session struct {
	Access  utils.AccessToken
	Refresh utils.RefreshToken
}

// Sessions issues, refreshes and revokes login sessions.
type Sessions struct {
	Tokens         RefreshStore
	Users          UserLookup
	Secret         string
	AccessTTLMin   int
	RefreshTTLDays int
}

// Issue creates an access token and a stored refresh token for u.
func (s *Sessions) Issue(ctx context.Context, u model.User) (Session, error) {
	at, err := utils.NewAccessToken(s.Secret, u.ID, u.Login, u.Roles, s.AccessTTLMin)
	if err != nil {
		return Session{}, err
	}
	rt, err := utils.NewRefreshToken(s.RefreshTTLDays)
	if err != nil {
		return Session{}, err
	}
	if err := s.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(rt.Raw), rt.Exp); err != nil {
		return Session{}, err
	}
	return Session{Access: at, Refresh: rt}, nil
}

// Refresh exchanges a valid refresh token for a new access token. Roles are
// reloaded so role changes apply on the next refresh.
func (s *Sessions) Refresh(ctx context.Context, raw string) (model.User, utils.AccessToken, error) {
	if raw == "" {
		return model.User{}, utils.AccessToken{}, ErrInvalidSession
	}
	userID, err := s.Tokens.ValidateRefresh(ctx, utils.HashRefreshRaw(raw))
	if err != nil {
		return model.User{}, utils.AccessToken{}, ErrInvalidSession
	}
	u, err := s.Users.GetByID(ctx, userID)
	if err != nil {
		return model.User{}, utils.AccessToken{}, ErrInvalidSession
	}
	at, err := utils.NewAccessToken(s.Secret, u.ID, u.Login, u.Roles, s.AccessTTLMin)
	if err != nil {
		return model.User{}, utils.AccessToken{}, err
	}
	return u, at, nil
}

// Revoke invalidates a refresh token. Empty tokens are ignored.
func (s *Sessions) Revoke(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}
	return s.Tokens.RevokeByHash(ctx, utils.HashRefreshRaw(raw))
}
