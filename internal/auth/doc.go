// Package auth authenticates requests with signed tokens and gates routes by role.
//
// # Tokens
//
// Clients obtain a token from the login flow and present it as
//
//	Authorization: Bearer <token>
//
// Tokens are compact HS256 JWTs produced by TokenCodec. The payload carries
// sub, user_id, email, role, iat, exp and jti. The signing secret is loaded
// once at startup and injected into the codec; it is never mutated.
//
//	codec, err := auth.NewTokenCodec(secret, time.Minute)
//	token, err := codec.Issue(codec.NewClaims(identity))
//	claims, err := codec.Parse(token)
//
// Parse reports every failure (bad signature, corrupt payload, expiry) as the
// same BadClientData error. The cause is kept wrapped for debug logging only.
//
// # Roles
//
// Role is one of RoleNone, RoleShelter or RoleFoster. DeriveRole picks the
// role from the identity's associations; the shelter association wins when
// both are present.
//
// # Middleware
//
// An Authenticator wraps a codec and builds both stages of the chain:
//
//	authn := auth.NewAuthenticator(codec, logger)
//	mux.Handle("/api/session", authn.RequireAuth(h))
//	mux.Handle("/api/animals", authn.Protect(auth.RoleShelter, h))
//
// RequireRole only reads what RequireAuth attached to the request context.
// A gate reached without claims rejects the request.
//
// # gRPC Interceptors
//
// UnaryInterceptor and StreamInterceptor apply the same header checks to the
// "authorization" metadata key. RequireRoleUnary gates methods by full name
// and must be chained after UnaryInterceptor.
//
// # Passwords
//
// HashPassword and VerifyPassword use bcrypt at PasswordCost. EqualizeTiming
// burns one comparison against a fixed digest so that unknown accounts take
// as long to reject as wrong passwords.
package auth
