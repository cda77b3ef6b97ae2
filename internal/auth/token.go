// ABOUTME: HS256 token codec issuing and parsing access tokens
// ABOUTME: Every parse failure collapses into a single bad-client-data error

package auth

import (
	"errors"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/2389/refuge-gateway/internal/apperr"
	"github.com/2389/refuge-gateway/internal/store"
)

// Codec errors
var (
	ErrEmptySecret      = errors.New("token secret is empty")
	ErrInvalidTTL       = errors.New("token ttl must be at least one second")
	ErrInvalidLifetime  = errors.New("token expiry must be after issuance")
	ErrSubjectMismatch  = errors.New("token subject does not match user_id")
	ErrTokenNotVerified = errors.New("token not verified")
)

// CodecOption configures a TokenCodec.
type CodecOption func(*TokenCodec)

// WithClock replaces time.Now for issuance and expiry checks.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) {
		c.now = now
	}
}

// TokenCodec signs and verifies access tokens with a process-wide secret.
// It is immutable after construction and safe for concurrent use.
type TokenCodec struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// MinTTL is the shortest token lifetime. Token timestamps are whole seconds,
// so anything shorter would issue a token with exp equal to iat.
const MinTTL = time.Second

// NewTokenCodec creates a codec. The secret is copied.
func NewTokenCodec(secret []byte, ttl time.Duration, opts ...CodecOption) (*TokenCodec, error) {
	if len(secret) == 0 {
		return nil, ErrEmptySecret
	}
	if ttl < MinTTL {
		return nil, ErrInvalidTTL
	}

	c := &TokenCodec{
		secret: append([]byte(nil), secret...),
		ttl:    ttl,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// NewClaims builds the claims for identity, valid from now for the codec TTL.
func (c *TokenCodec) NewClaims(identity *store.Identity) Claims {
	now := c.now()
	return Claims{
		UserID: identity.ID,
		Email:  identity.Email,
		Role:   DeriveRole(identity.Shelter != nil, identity.Foster != nil),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(identity.ID, 10),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
			ID:        uuid.NewString(),
		},
	}
}

// Issue signs claims into a compact token.
func (c *TokenCodec) Issue(claims Claims) (string, error) {
	if claims.IssuedAt == nil || claims.ExpiresAt == nil || !claims.ExpiresAt.After(claims.IssuedAt.Time) {
		return "", apperr.Internal(ErrInvalidLifetime)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, &claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", apperr.Internal(err)
	}

	tokensIssued.Inc()
	return signed, nil
}

// Parse verifies the signature and expiry of token and returns its claims.
// Any failure is reported as apperr.KindBadClientData wrapping the cause.
func (c *TokenCodec) Parse(token string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(*jwt.Token) (any, error) {
			return c.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindBadClientData, err)
	}
	if !parsed.Valid {
		return nil, apperr.Wrap(apperr.KindBadClientData, ErrTokenNotVerified)
	}
	if claims.Subject != strconv.FormatInt(claims.UserID, 10) {
		return nil, apperr.Wrap(apperr.KindBadClientData, ErrSubjectMismatch)
	}

	return claims, nil
}
