// ABOUTME: HTTP middleware for bearer-token authentication and role gates
// ABOUTME: Verified claims are attached to the request context for handlers

package auth

import (
	"log/slog"
	"net/http"
	"strings"

	"github.com/2389/refuge-gateway/internal/apperr"
)

// Rejection messages returned to clients.
const (
	MsgMissingHeader           = "Authorization header not found"
	MsgInvalidHeaderFormat     = "Invalid authorization header format"
	MsgInvalidToken            = "Invalid token format. Please log in again."
	MsgInsufficientPermissions = "Insufficient permissions."
)

const bearerPrefix = "Bearer "

// Failure reasons used in logs and metrics.
const (
	reasonMissingHeader = "missing_header"
	reasonInvalidFormat = "invalid_format"
	reasonInvalidToken  = "invalid_token"
	reasonForbiddenRole = "insufficient_role"
)

// Authenticator verifies bearer tokens with a TokenCodec. Role gates are
// built from it so a gate always has an identity source.
type Authenticator struct {
	codec  *TokenCodec
	logger *slog.Logger
}

// NewAuthenticator creates an Authenticator. A nil logger uses slog.Default.
func NewAuthenticator(codec *TokenCodec, logger *slog.Logger) *Authenticator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Authenticator{
		codec:  codec,
		logger: logger.With("component", "auth"),
	}
}

// authFailure is a rejected authentication attempt.
type authFailure struct {
	reason string
	err    *apperr.Error
}

// authenticate runs the header checks on the values of an Authorization
// header (HTTP) or authorization metadata key (gRPC).
func (a *Authenticator) authenticate(values []string) (*Claims, *authFailure) {
	if len(values) == 0 {
		return nil, &authFailure{reasonMissingHeader, apperr.Unauthorized(MsgMissingHeader)}
	}

	header := values[0]
	if !isHeaderText(header) || !strings.HasPrefix(header, bearerPrefix) {
		return nil, &authFailure{reasonInvalidFormat, apperr.Unauthorized(MsgInvalidHeaderFormat)}
	}

	token := strings.TrimSpace(strings.TrimPrefix(header, bearerPrefix))
	claims, err := a.codec.Parse(token)
	if err != nil {
		// The cause is logged, never the token itself
		a.logger.Debug("token decode failed", "error", err)
		return nil, &authFailure{reasonInvalidToken, apperr.Unauthorized(MsgInvalidToken)}
	}

	return claims, nil
}

// isHeaderText reports whether s only holds visible ASCII, spaces and tabs.
func isHeaderText(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '\t' {
			continue
		}
		if c < 0x20 || c > 0x7e {
			return false
		}
	}
	return true
}

func (a *Authenticator) logFailure(transport, reason, remoteAddr string, attrs ...any) {
	authRequests.WithLabelValues(transport, reason).Inc()
	baseAttrs := []any{"reason", reason, "transport", transport}
	if remoteAddr != "" {
		baseAttrs = append(baseAttrs, "remote_addr", remoteAddr)
	}
	a.logger.Warn("auth failure", append(baseAttrs, attrs...)...)
}

// RequireAuth rejects requests without a valid bearer token and attaches the
// verified claims to the request context otherwise.
func (a *Authenticator) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, failure := a.authenticate(r.Header.Values("Authorization"))
		if failure != nil {
			a.logFailure(transportHTTP, failure.reason, r.RemoteAddr, "path", r.URL.Path)
			apperr.Write(w, failure.err)
			return
		}

		authRequests.WithLabelValues(transportHTTP, outcomeOK).Inc()
		next.ServeHTTP(w, r.WithContext(WithClaims(r.Context(), claims)))
	})
}

// RequireRole returns a gate admitting only requests whose claims carry role.
// It must wrap handlers that are already behind RequireAuth; without claims
// the request is rejected. RequireRole panics for RoleNone.
func (a *Authenticator) RequireRole(role Role) func(http.Handler) http.Handler {
	if role == RoleNone {
		panic("auth: RequireRole needs a concrete role")
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, _ := ClaimsFromContext(r.Context())
			if !claims.HasRole(role) {
				a.logFailure(transportHTTP, reasonForbiddenRole, r.RemoteAddr,
					"path", r.URL.Path, "required_role", role.String())
				apperr.Write(w, apperr.Unauthorized(MsgInsufficientPermissions))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Protect wraps h with RequireAuth and, unless role is RoleNone, RequireRole
// in the order the gate depends on.
func (a *Authenticator) Protect(role Role, h http.Handler) http.Handler {
	if role == RoleNone {
		return a.RequireAuth(h)
	}
	return a.RequireAuth(a.RequireRole(role)(h))
}
