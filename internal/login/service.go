// ABOUTME: Login flow turning an email and password into a signed access token
// ABOUTME: Unknown emails and wrong passwords collapse into one WrongLogin error

package login

import (
	"context"
	"errors"
	"log/slog"

	"github.com/2389/refuge-gateway/internal/apperr"
	"github.com/2389/refuge-gateway/internal/auth"
	"github.com/2389/refuge-gateway/internal/store"
)

// Result is returned on successful login.
type Result struct {
	AccessToken string               `json:"access_token"`
	User        store.PublicIdentity `json:"user"`
}

// Service runs the login flow.
type Service struct {
	identities store.IdentityReader
	codec      *auth.TokenCodec
	logger     *slog.Logger
}

// NewService creates a login service. A nil logger uses slog.Default.
func NewService(identities store.IdentityReader, codec *auth.TokenCodec, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		identities: identities,
		codec:      codec,
		logger:     logger.With("component", "login"),
	}
}

// Login verifies the credentials and issues a token for the identity.
func (s *Service) Login(ctx context.Context, email, password string) (*Result, error) {
	identity, err := s.identities.FindIdentityByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			auth.EqualizeTiming(password)
			auth.RecordLogin(auth.LoginWrongLogin)
			return nil, apperr.WrongLogin()
		}
		s.logger.Error("identity lookup failed", "error", err)
		auth.RecordLogin(auth.LoginError)
		return nil, apperr.Internal(err)
	}

	ok, err := auth.VerifyPassword(password, identity.PasswordHash)
	if err != nil {
		s.logger.Error("stored password digest unreadable", "identity_id", identity.ID, "error", err)
		auth.RecordLogin(auth.LoginError)
		return nil, apperr.From(err)
	}
	if !ok {
		auth.RecordLogin(auth.LoginWrongLogin)
		return nil, apperr.WrongLogin()
	}

	if auth.NeedsRehash(identity.PasswordHash) {
		s.logger.Warn("password digest below current bcrypt cost, re-hash it", "identity_id", identity.ID)
	}

	claims := s.codec.NewClaims(identity)
	token, err := s.codec.Issue(claims)
	if err != nil {
		s.logger.Error("issuing token failed", "identity_id", identity.ID, "error", err)
		auth.RecordLogin(auth.LoginError)
		return nil, apperr.From(err)
	}

	auth.RecordLogin(auth.LoginSucceeded)
	s.logger.Info("login succeeded", "identity_id", identity.ID, "role", claims.Role.String())
	return &Result{AccessToken: token, User: identity.Public()}, nil
}
