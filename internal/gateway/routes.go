// ABOUTME: HTTP routes served by the gateway
// ABOUTME: Public status, health and login endpoints plus session routes behind the auth chain

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/2389/refuge-gateway/internal/apperr"
	"github.com/2389/refuge-gateway/internal/auth"
	"github.com/2389/refuge-gateway/internal/login"
	"github.com/2389/refuge-gateway/internal/store"
)

// registerRoutes registers every built-in route on the mux.
func (g *Gateway) registerRoutes() {
	// Public
	g.mux.HandleFunc("GET /{$}", g.handleRoot)
	g.mux.HandleFunc("/health", g.handleHealth)
	g.mux.HandleFunc("/health/ready", g.handleReady)
	g.mux.Handle("/connexion", login.NewHandler(g.login))

	if g.config.Metrics.Enabled {
		g.mux.Handle(g.config.Metrics.Path, promhttp.Handler())
		g.logger.Info("metrics endpoint enabled", "path", g.config.Metrics.Path)
	}

	// Session introspection behind each stage of the chain
	g.Handle("GET /api/session", auth.RoleNone, http.HandlerFunc(g.handleSession))
	g.Handle("GET /api/session/shelter", auth.RoleShelter, http.HandlerFunc(g.handleSession))
	g.Handle("GET /api/session/foster", auth.RoleFoster, http.HandlerFunc(g.handleSession))
}

// writeJSON writes v as a JSON response with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// handleRoot reports that the service is up.
func (g *Gateway) handleRoot(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "UP",
		"message": "Hello World !",
	})
}

// handleHealth returns 200 OK if the server is alive.
func (g *Gateway) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the identity store answers.
func (g *Gateway) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if err := g.store.Ping(ctx); err != nil {
		g.logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// sessionResponse describes the caller's verified identity.
type sessionResponse struct {
	UserID    int64                `json:"user_id"`
	Role      auth.Role            `json:"role"`
	TokenID   string               `json:"token_id"`
	ExpiresAt int64                `json:"expires_at"`
	User      store.PublicIdentity `json:"user"`
}

// handleSession returns the claims of the caller together with the current
// state of their identity.
func (g *Gateway) handleSession(w http.ResponseWriter, r *http.Request) {
	claims := auth.MustClaimsFromContext(r.Context())

	identity, err := g.store.FindIdentityByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			apperr.Write(w, apperr.NotFound())
			return
		}
		g.logger.Error("session lookup failed", "user_id", claims.UserID, "error", err)
		apperr.Write(w, apperr.Internal(err))
		return
	}

	resp := sessionResponse{
		UserID:  claims.UserID,
		Role:    claims.Role,
		TokenID: claims.ID,
		User:    identity.Public(),
	}
	if claims.ExpiresAt != nil {
		resp.ExpiresAt = claims.ExpiresAt.Unix()
	}
	writeJSON(w, http.StatusOK, resp)
}
