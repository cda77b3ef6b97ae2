// ABOUTME: Tailnet exposure for the gateway through an embedded tsnet node
// ABOUTME: Builds the node from config and opens the gRPC and HTTP listeners on it

package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"tailscale.com/ipn/ipnstate"
	"tailscale.com/tsnet"

	"github.com/2389/refuge-gateway/internal/config"
)

// EnvTailscaleAuthKey is read when tailscale.auth_key is not configured.
const EnvTailscaleAuthKey = "TS_AUTHKEY"

// Ports the gateway listens on inside the tailnet.
const (
	tailnetGRPCPort  = ":50051"
	tailnetHTTPPort  = ":80"
	tailnetHTTPSPort = ":443"
)

var errNoTailnetAuthKey = errors.New("tailscale auth key required: set tailscale.auth_key or " + EnvTailscaleAuthKey)

// tailnetExposure is how the HTTP routes are reachable through the node.
type tailnetExposure string

const (
	exposeTailnetHTTP  tailnetExposure = "http"
	exposeTailnetHTTPS tailnetExposure = "https"
	exposeFunnel       tailnetExposure = "funnel"
)

// exposureFor picks the HTTP exposure. Funnel wins over HTTPS since it
// already serves TLS.
func exposureFor(cfg config.TailscaleConfig) tailnetExposure {
	switch {
	case cfg.Funnel:
		return exposeFunnel
	case cfg.HTTPS:
		return exposeTailnetHTTPS
	default:
		return exposeTailnetHTTP
	}
}

// tailnetListener is the part of *tsnet.Server that opens listeners.
type tailnetListener interface {
	Listen(network, addr string) (net.Listener, error)
	ListenTLS(network, addr string) (net.Listener, error)
	ListenFunnel(network, addr string, opts ...tsnet.FunnelOption) (net.Listener, error)
}

var _ tailnetListener = (*tsnet.Server)(nil)

// tailnetStateDir returns configured, or the per-user default under the
// home directory.
func tailnetStateDir(configured string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine home directory for tailscale state (set tailscale.state_dir): %w", err)
	}
	return filepath.Join(home, ".local", "share", "refuge-gateway", "tailscale"), nil
}

// tailnetAuthKey prefers the configured key and falls back to getenv.
func tailnetAuthKey(configured string, getenv func(string) string) (string, error) {
	if configured != "" {
		return configured, nil
	}
	if key := getenv(EnvTailscaleAuthKey); key != "" {
		return key, nil
	}
	return "", errNoTailnetAuthKey
}

// newTailnetServer builds the node described by cfg. Nothing is started.
func newTailnetServer(cfg config.TailscaleConfig, getenv func(string) string) (*tsnet.Server, error) {
	dir, err := tailnetStateDir(cfg.StateDir)
	if err != nil {
		return nil, err
	}
	authKey, err := tailnetAuthKey(cfg.AuthKey, getenv)
	if err != nil {
		return nil, err
	}
	return &tsnet.Server{
		Hostname:  cfg.Hostname,
		Dir:       dir,
		Ephemeral: cfg.Ephemeral,
		AuthKey:   authKey,
	}, nil
}

// openTailnetListeners opens the gRPC listener and the HTTP listener for
// exposure. Nothing stays open when an error is returned.
func openTailnetListeners(node tailnetListener, exposure tailnetExposure) (grpcLn, httpLn net.Listener, err error) {
	grpcLn, err = node.Listen("tcp", tailnetGRPCPort)
	if err != nil {
		return nil, nil, fmt.Errorf("listening on tailnet gRPC port: %w", err)
	}

	switch exposure {
	case exposeFunnel:
		httpLn, err = node.ListenFunnel("tcp", tailnetHTTPSPort)
	case exposeTailnetHTTPS:
		httpLn, err = node.ListenTLS("tcp", tailnetHTTPSPort)
	default:
		httpLn, err = node.Listen("tcp", tailnetHTTPPort)
	}
	if err != nil {
		_ = grpcLn.Close()
		return nil, nil, fmt.Errorf("listening on tailnet %s port: %w", exposure, err)
	}
	return grpcLn, httpLn, nil
}

// setupTailscaleListeners joins the tailnet and returns listeners for gRPC
// and HTTP. The node is kept on the gateway only once both are open.
func (g *Gateway) setupTailscaleListeners(ctx context.Context) (grpcLn, httpLn net.Listener, err error) {
	tsCfg := g.config.Tailscale

	node, err := newTailnetServer(tsCfg, os.Getenv)
	if err != nil {
		return nil, nil, err
	}
	if err := os.MkdirAll(node.Dir, 0700); err != nil {
		return nil, nil, fmt.Errorf("creating tailscale state dir: %w", err)
	}

	g.logger.Info("starting tailscale node", "hostname", node.Hostname, "state_dir", node.Dir, "ephemeral", node.Ephemeral)
	status, err := node.Up(ctx)
	if err != nil {
		_ = node.Close()
		return nil, nil, fmt.Errorf("starting tailscale: %w", err)
	}
	g.logTailnetStatus(node.Hostname, status)

	exposure := exposureFor(tsCfg)
	grpcLn, httpLn, err = openTailnetListeners(node, exposure)
	if err != nil {
		_ = node.Close()
		return nil, nil, err
	}

	g.logger.Info("tailnet listeners open", "grpc", tailnetGRPCPort, "http", httpLn.Addr().String(), "exposure", string(exposure))
	g.tsnetServer = node
	return grpcLn, httpLn, nil
}

func (g *Gateway) logTailnetStatus(hostname string, status *ipnstate.Status) {
	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	} else {
		g.logger.Warn("tailscale node has no IP addresses assigned")
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	g.logger.Info("tailscale node ready", "hostname", hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)
}
