// ABOUTME: Prometheus counters for authentication and login outcomes
// ABOUTME: Registered on the default registry and served by the gateway

package auth

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	transportHTTP = "http"
	transportGRPC = "grpc"
	outcomeOK     = "ok"
)

// Login outcomes recorded by RecordLogin.
const (
	LoginSucceeded  = "ok"
	LoginWrongLogin = "wrong_login"
	LoginError      = "error"
)

var (
	authRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "refuge",
			Subsystem: "auth",
			Name:      "requests_total",
			Help:      "Authentication decisions by transport and outcome",
		},
		[]string{"transport", "outcome"},
	)

	loginAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "refuge",
			Subsystem: "auth",
			Name:      "login_attempts_total",
			Help:      "Login attempts by outcome",
		},
		[]string{"outcome"},
	)

	tokensIssued = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "refuge",
			Subsystem: "auth",
			Name:      "tokens_issued_total",
			Help:      "Access tokens signed",
		},
	)
)

// RecordLogin counts a login attempt with the given outcome.
func RecordLogin(outcome string) {
	loginAttempts.WithLabelValues(outcome).Inc()
}
