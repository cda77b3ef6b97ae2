// Package config handles configuration loading for refuge-gateway.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from REFUGE_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/refuge/gateway.yaml
//  3. ~/.config/refuge/gateway.yaml
//
// Files ending in .toml are decoded as TOML; every other file as YAML. Both
// formats share the same keys.
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	database:
//	  url: "${REFUGE_DATABASE_URL}"
//
// Unset variables expand to the empty string.
//
// # Overrides
//
// JWT_SECRET and DATABASE_URL, when set, replace auth.jwt_secret and
// database.url. When no secret is configured at all the development secret
// is used and Auth.UsingDevelopmentSecret is set so the caller can warn.
//
// # CORS
//
// server.cors_origins defaults to the local front-end dev servers
// (localhost ports 3000, 3001, 5173, 4173 and 4200). An explicit empty list
// turns CORS headers off.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	auth:
//	  token_ttl: "1m"   # at least 1s
//	server:
//	  shutdown_timeout: "10s"
//
// # Example
//
//	server:
//	  http_addr: "localhost:8080"
//	  grpc_addr: "localhost:50051"
//	  cors_origins: ["http://localhost:5173"]
//
//	database:
//	  driver: "sqlite"
//	  path: "~/.local/share/refuge/gateway.db"
//
//	auth:
//	  jwt_secret: "${JWT_SECRET}"
//	  token_ttl: "1m"
//
//	logging:
//	  level: "info"
//	  format: "text"
//
//	metrics:
//	  enabled: true
//	  path: "/metrics"
package config
