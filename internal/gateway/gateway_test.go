// ABOUTME: Tests for the Gateway orchestrator over real HTTP and gRPC listeners
// ABOUTME: Exercises login, gated session routes, health, metrics and shutdown

package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/2389/refuge-gateway/internal/auth"
	"github.com/2389/refuge-gateway/internal/config"
	"github.com/2389/refuge-gateway/internal/store"
)

// freeAddr returns a loopback address with an available port.
func freeAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

// testConfig creates a minimal config for testing with available ports.
func testConfig(t *testing.T) *config.Config {
	t.Helper()
	return &config.Config{
		Server: config.ServerConfig{
			GRPCAddr:        freeAddr(t),
			HTTPAddr:        freeAddr(t),
			ShutdownTimeout: 5 * time.Second,
			CORSOrigins:     config.DefaultCORSOrigins,
		},
		Database: config.DatabaseConfig{Driver: "sqlite", Path: ":memory:"},
		Auth: config.AuthConfig{
			JWTSecret: "gateway-test-secret-32-bytes-ok!",
			TokenTTL:  time.Minute,
		},
		Metrics: config.MetricsConfig{Enabled: true, Path: "/metrics"},
	}
}

// testLogger creates a silent logger for tests.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testEnv struct {
	gw     *Gateway
	store  *store.SQLiteStore
	server *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newTestEnvWithLogger(t, testLogger())
}

func newTestEnvWithLogger(t *testing.T, logger *slog.Logger) *testEnv {
	t.Helper()

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)

	gw, err := NewWithStore(testConfig(t), s, logger)
	require.NoError(t, err)

	server := httptest.NewServer(gw.Handler())
	t.Cleanup(func() {
		server.Close()
		_ = gw.Shutdown(context.Background())
	})

	return &testEnv{gw: gw, store: s, server: server}
}

// addIdentity creates an identity with the given password and optional associations.
func (e *testEnv) addIdentity(t *testing.T, email, password string, shelter, foster string) *store.Identity {
	t.Helper()
	ctx := context.Background()

	hash, err := auth.HashPassword(password)
	require.NoError(t, err)
	identity, err := e.store.CreateIdentity(ctx, email, hash)
	require.NoError(t, err)

	if shelter != "" {
		_, err = e.store.AttachShelter(ctx, identity.ID, shelter)
		require.NoError(t, err)
	}
	if foster != "" {
		_, err = e.store.AttachFoster(ctx, identity.ID, foster)
		require.NoError(t, err)
	}
	return identity
}

func (e *testEnv) login(t *testing.T, email, password string) string {
	t.Helper()
	body := `{"email":"` + email + `","mot_de_passe":"` + password + `"}`
	resp, err := http.Post(e.server.URL+"/connexion", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

func (e *testEnv) get(t *testing.T, path, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, e.server.URL+path, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestGateway_Root(t *testing.T) {
	env := newTestEnv(t)

	resp := env.get(t, "/", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]string
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "UP", body["status"])
	assert.Equal(t, "Hello World !", body["message"])

	assert.Equal(t, http.StatusNotFound, env.get(t, "/does-not-exist", "").StatusCode)
}

func TestGateway_HealthAndReady(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.get(t, "/health", "").StatusCode)
	assert.Equal(t, http.StatusOK, env.get(t, "/health/ready", "").StatusCode)
}

func TestGateway_ReadyFailsWhenStoreClosed(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.store.Close())

	assert.Equal(t, http.StatusServiceUnavailable, env.get(t, "/health/ready", "").StatusCode)
}

func TestGateway_Metrics(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(t, "user@example.com", "pw", "", "")
	env.login(t, "user@example.com", "pw")

	resp := env.get(t, "/metrics", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "refuge_auth_tokens_issued_total")
}

func TestGateway_SessionRoutes(t *testing.T) {
	env := newTestEnv(t)
	foster := env.addIdentity(t, "famille@example.com", "pw", "", "Famille Martin")
	env.addIdentity(t, "refuge@example.com", "pw", "Refuge du Nord", "")

	fosterToken := env.login(t, "famille@example.com", "pw")
	shelterToken := env.login(t, "refuge@example.com", "pw")

	tests := []struct {
		name   string
		path   string
		token  string
		status int
	}{
		{"session without token", "/api/session", "", http.StatusUnauthorized},
		{"session with token", "/api/session", fosterToken, http.StatusOK},
		{"foster on shelter gate", "/api/session/shelter", fosterToken, http.StatusUnauthorized},
		{"foster on foster gate", "/api/session/foster", fosterToken, http.StatusOK},
		{"shelter on shelter gate", "/api/session/shelter", shelterToken, http.StatusOK},
		{"shelter on foster gate", "/api/session/foster", shelterToken, http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.get(t, tt.path, tt.token)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}

	resp := env.get(t, "/api/session/foster", fosterToken)
	var session sessionResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&session))
	assert.Equal(t, foster.ID, session.UserID)
	assert.Equal(t, auth.RoleFoster, session.Role)
	assert.NotEmpty(t, session.TokenID)
	require.NotNil(t, session.User.Foster)
	assert.Equal(t, "Famille Martin", session.User.Foster.Name)
}

func TestGateway_Handle(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(t, "refuge@example.com", "pw", "Refuge", "")
	token := env.login(t, "refuge@example.com", "pw")

	env.gw.Handle("GET /api/animals", auth.RoleShelter, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, _ := auth.UserIDFromContext(r.Context())
		writeJSON(w, http.StatusOK, map[string]int64{"owner": id})
	}))

	assert.Equal(t, http.StatusUnauthorized, env.get(t, "/api/animals", "").StatusCode)
	assert.Equal(t, http.StatusOK, env.get(t, "/api/animals", token).StatusCode)
}

func TestGateway_LoginFailuresIdentical(t *testing.T) {
	env := newTestEnv(t)
	env.addIdentity(t, "user@example.com", "right", "", "")

	post := func(body string) (int, string) {
		resp, err := http.Post(env.server.URL+"/connexion", "application/json", strings.NewReader(body))
		require.NoError(t, err)
		defer resp.Body.Close()
		b, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return resp.StatusCode, string(b)
	}

	wrongStatus, wrongBody := post(`{"email":"user@example.com","mot_de_passe":"wrong"}`)
	unknownStatus, unknownBody := post(`{"email":"nobody@example.com","mot_de_passe":"right"}`)

	assert.Equal(t, http.StatusUnauthorized, wrongStatus)
	assert.Equal(t, wrongStatus, unknownStatus)
	assert.Equal(t, wrongBody, unknownBody)
}

// startGateway runs gw in the background until the test ends and returns a
// client connection to its gRPC listener.
func startGateway(t *testing.T, cfg *config.Config, gw *Gateway) (*grpc.ClientConn, context.CancelFunc, <-chan error) {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gw.Run(ctx)
	}()

	// Wait for HTTP to come up
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + cfg.Server.HTTPAddr + "/health")
		if err != nil {
			return false
		}
		resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	conn, err := grpc.NewClient(cfg.Server.GRPCAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	return conn, cancel, errCh
}

// newRunnableGateway builds a gateway over a fresh store holding one identity
// without associations.
func newRunnableGateway(t *testing.T) (*config.Config, *Gateway, *store.Identity) {
	t.Helper()
	cfg := testConfig(t)

	s, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)
	identity, err := s.CreateIdentity(context.Background(), "grpc@example.com", hash)
	require.NoError(t, err)

	gw, err := NewWithStore(cfg, s, testLogger())
	require.NoError(t, err)
	return cfg, gw, identity
}

func bearerContext(t *testing.T, gw *Gateway, identity *store.Identity) context.Context {
	t.Helper()
	token, err := gw.Codec().Issue(gw.Codec().NewClaims(identity))
	require.NoError(t, err)
	return metadata.AppendToOutgoingContext(context.Background(), "authorization", "Bearer "+token)
}

func TestGateway_StoreFailures(t *testing.T) {
	mock := store.NewMockStore()
	gw, err := NewWithStore(testConfig(t), mock, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	hash, err := auth.HashPassword("pw")
	require.NoError(t, err)
	identity, err := mock.CreateIdentity(context.Background(), "user@example.com", hash)
	require.NoError(t, err)
	token, err := gw.Codec().Issue(gw.Codec().NewClaims(identity))
	require.NoError(t, err)

	mock.SetErr(errors.New("connection refused"))

	tests := []struct {
		name   string
		req    *http.Request
		status int
		kind   string
	}{
		{
			name:   "login",
			req:    httptest.NewRequest(http.MethodPost, "/connexion", strings.NewReader(`{"email":"user@example.com","mot_de_passe":"pw"}`)),
			status: http.StatusInternalServerError,
			kind:   "Internal Server Error",
		},
		{
			name:   "session lookup",
			req:    httptest.NewRequest(http.MethodGet, "/api/session", nil),
			status: http.StatusInternalServerError,
			kind:   "Internal Server Error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.req.Header.Set("Authorization", "Bearer "+token)
			rec := httptest.NewRecorder()
			gw.Handler().ServeHTTP(rec, tt.req)

			assert.Equal(t, tt.status, rec.Code)
			var env struct {
				Error string `json:"error"`
			}
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&env))
			assert.Equal(t, tt.kind, env.Error)
			assert.NotContains(t, rec.Body.String(), "connection refused")
		})
	}

	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGateway_SessionForDeletedIdentity(t *testing.T) {
	mock := store.NewMockStore()
	gw, err := NewWithStore(testConfig(t), mock, testLogger())
	require.NoError(t, err)
	defer gw.Shutdown(context.Background())

	// A valid token whose subject is not in the store
	token, err := gw.Codec().Issue(gw.Codec().NewClaims(&store.Identity{ID: 77, Email: "gone@example.com"}))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/session", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	gw.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGatewayRunAndShutdown(t *testing.T) {
	cfg, gw, identity := newRunnableGateway(t)
	conn, cancel, errCh := startGateway(t, cfg, gw)
	client := healthpb.NewHealthClient(conn)
	ctx := context.Background()

	// Health check is public
	checkResp, err := client.Check(ctx, &healthpb.HealthCheckRequest{})
	require.NoError(t, err)
	assert.Equal(t, healthpb.HealthCheckResponse_SERVING, checkResp.GetStatus())

	// Other methods go through the auth interceptor
	_, err = client.List(ctx, &healthpb.HealthListRequest{})
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.Equal(t, auth.MsgMissingHeader, st.Message())

	_, err = client.List(bearerContext(t, gw, identity), &healthpb.HealthListRequest{})
	require.NoError(t, err)

	// Shutdown via context cancel
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Error("gateway did not shutdown in time")
	}
}

func TestGateway_RequireGRPCRole(t *testing.T) {
	cfg, gw, identity := newRunnableGateway(t)
	gw.RequireGRPCRole(healthpb.Health_List_FullMethodName, auth.RoleShelter)
	conn, _, _ := startGateway(t, cfg, gw)
	client := healthpb.NewHealthClient(conn)

	_, err := client.List(bearerContext(t, gw, identity), &healthpb.HealthListRequest{})
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.Equal(t, auth.MsgInsufficientPermissions, st.Message())

	// Methods outside the policy only need a valid token
	_, err = client.Check(bearerContext(t, gw, identity), &healthpb.HealthCheckRequest{})
	assert.NoError(t, err)
}

func TestNew_InvalidDriver(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Driver = "mysql"

	_, err := New(cfg, testLogger())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mysql")
}

func TestNew_OpensSQLiteStore(t *testing.T) {
	cfg := testConfig(t)
	cfg.Database.Path = t.TempDir() + "/gateway.db"

	gw, err := New(cfg, testLogger())
	require.NoError(t, err)
	assert.NoError(t, gw.Shutdown(context.Background()))
	// Shutdown is idempotent
	assert.NoError(t, gw.Shutdown(context.Background()))
}

const feedFollowMethod = "/refuge.test.Feed/Follow"

// registerFeed adds a server-streaming method that records whether its
// handler ran.
func registerFeed(gw *Gateway, reached *atomic.Bool) {
	gw.GRPCServer().RegisterService(&grpc.ServiceDesc{
		ServiceName: "refuge.test.Feed",
		HandlerType: (*any)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    "Follow",
			ServerStreams: true,
			Handler: func(srv any, stream grpc.ServerStream) error {
				reached.Store(true)
				var req healthpb.HealthCheckRequest
				if err := stream.RecvMsg(&req); err != nil {
					return err
				}
				return stream.SendMsg(&healthpb.HealthCheckResponse{Status: healthpb.HealthCheckResponse_SERVING})
			},
		}},
	}, nil)
}

func followFeed(ctx context.Context, conn *grpc.ClientConn) error {
	stream, err := conn.NewStream(ctx, &grpc.StreamDesc{ServerStreams: true}, feedFollowMethod)
	if err != nil {
		return err
	}
	// Send errors surface again on RecvMsg
	_ = stream.SendMsg(&healthpb.HealthCheckRequest{})
	_ = stream.CloseSend()

	var resp healthpb.HealthCheckResponse
	return stream.RecvMsg(&resp)
}

func TestGateway_RequireGRPCRole_Stream(t *testing.T) {
	cfg, gw, identity := newRunnableGateway(t)

	var reached atomic.Bool
	registerFeed(gw, &reached)
	gw.RequireGRPCRole(feedFollowMethod, auth.RoleShelter)
	conn, _, _ := startGateway(t, cfg, gw)

	// Valid token without the required role
	err := followFeed(bearerContext(t, gw, identity), conn)
	st, ok := status.FromError(err)
	require.True(t, ok)
	assert.Equal(t, codes.Unauthenticated, st.Code())
	assert.Equal(t, auth.MsgInsufficientPermissions, st.Message())
	assert.False(t, reached.Load())

	// A shelter operator gets through
	shelter := &store.Identity{ID: identity.ID, Email: identity.Email, Shelter: &store.Shelter{ID: 1, Name: "Refuge"}}
	require.NoError(t, followFeed(bearerContext(t, gw, shelter), conn))
	assert.True(t, reached.Load())
}
