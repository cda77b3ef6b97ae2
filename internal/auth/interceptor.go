// ABOUTME: gRPC interceptors applying bearer-token authentication and role gates
// ABOUTME: Reads the authorization metadata key and populates context for handlers

package auth

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/peer"
	"google.golang.org/grpc/status"
)

const authorizationMetadataKey = "authorization"

func peerAddr(ctx context.Context) string {
	if p, ok := peer.FromContext(ctx); ok && p.Addr != nil {
		return p.Addr.String()
	}
	return ""
}

// authenticateGRPC runs the header checks on incoming metadata.
func (a *Authenticator) authenticateGRPC(ctx context.Context, method string) (context.Context, error) {
	md, _ := metadata.FromIncomingContext(ctx)
	claims, failure := a.authenticate(md.Get(authorizationMetadataKey))
	if failure != nil {
		a.logFailure(transportGRPC, failure.reason, peerAddr(ctx), "method", method)
		return nil, status.Error(codes.Unauthenticated, failure.err.Message)
	}

	authRequests.WithLabelValues(transportGRPC, outcomeOK).Inc()
	return WithClaims(ctx, claims), nil
}

func isPublic(method string, public []string) bool {
	for _, m := range public {
		if m == method {
			return true
		}
	}
	return false
}

// UnaryInterceptor returns a gRPC unary interceptor that authenticates
// requests. Methods listed in publicMethods (full names) skip authentication.
func UnaryInterceptor(authn *Authenticator, publicMethods ...string) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if isPublic(info.FullMethod, publicMethods) {
			return handler(ctx, req)
		}

		ctx, err := authn.authenticateGRPC(ctx, info.FullMethod)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// StreamInterceptor returns a gRPC stream interceptor that authenticates
// requests. Methods listed in publicMethods skip authentication.
func StreamInterceptor(authn *Authenticator, publicMethods ...string) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if isPublic(info.FullMethod, publicMethods) {
			return handler(srv, ss)
		}

		ctx, err := authn.authenticateGRPC(ss.Context(), info.FullMethod)
		if err != nil {
			return err
		}
		return handler(srv, &wrappedServerStream{ServerStream: ss, ctx: ctx})
	}
}

// gateMethod enforces the role policy for method on the claims in ctx.
// Methods absent from policy, or mapped to RoleNone, only need authentication.
func (a *Authenticator) gateMethod(ctx context.Context, method string, policy map[string]Role) error {
	required, ok := policy[method]
	if !ok || required == RoleNone {
		return nil
	}

	claims, _ := ClaimsFromContext(ctx)
	if !claims.HasRole(required) {
		a.logFailure(transportGRPC, reasonForbiddenRole, peerAddr(ctx),
			"method", method, "required_role", required.String())
		return status.Error(codes.Unauthenticated, MsgInsufficientPermissions)
	}
	return nil
}

// RequireRoleUnary gates unary methods by full name. It must be chained
// after UnaryInterceptor.
func (a *Authenticator) RequireRoleUnary(policy map[string]Role) grpc.UnaryServerInterceptor {
	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if err := a.gateMethod(ctx, info.FullMethod, policy); err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// RequireRoleStream gates streaming methods by full name. It must be chained
// after StreamInterceptor, whose wrapped stream carries the claims.
func (a *Authenticator) RequireRoleStream(policy map[string]Role) grpc.StreamServerInterceptor {
	return func(
		srv any,
		ss grpc.ServerStream,
		info *grpc.StreamServerInfo,
		handler grpc.StreamHandler,
	) error {
		if err := a.gateMethod(ss.Context(), info.FullMethod, policy); err != nil {
			return err
		}
		return handler(srv, ss)
	}
}

// wrappedServerStream wraps a grpc.ServerStream with a custom context.
type wrappedServerStream struct {
	grpc.ServerStream
	ctx context.Context
}

// Context returns the wrapped context.
func (w *wrappedServerStream) Context() context.Context {
	return w.ctx
}
