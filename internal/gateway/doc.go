// Package gateway orchestrates the refuge-gateway server components.
//
// # Overview
//
// The gateway owns the identity store, the token codec, the authentication
// chain and the login service, and serves them over HTTP and gRPC.
//
// # HTTP Routes
//
//   - GET / - Service status
//   - GET /health - Liveness check
//   - GET /health/ready - Readiness check (pings the store)
//   - POST /connexion - Login, returns an access token and the public identity
//   - GET /api/session - Claims of any authenticated caller
//   - GET /api/session/shelter - Same, restricted to the SHELTER role
//   - GET /api/session/foster - Same, restricted to the FOSTER role
//   - GET /metrics - Prometheus metrics when enabled
//
// Domain handlers are mounted behind the chain with Handle:
//
//	gw.Handle("GET /api/animaux", auth.RoleShelter, animalsHandler)
//
// # gRPC
//
// Every unary and streaming call goes through the authentication
// interceptor, except the standard health service checks. Per-method role
// requirements are registered with RequireGRPCRole before Run:
//
//	gw.RequireGRPCRole("/refuge.v1.Animals/Create", auth.RoleShelter)
//
// # Lifecycle
//
//	gw, err := gateway.New(cfg, logger)
//	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
//	err = gw.Run(ctx) // blocks, shuts down when ctx is canceled
//
// When tailscale.enabled is set the listeners are created on a tsnet node
// instead of the configured TCP addresses.
package gateway
