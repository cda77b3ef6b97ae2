// ABOUTME: Interactive config file generation for refuge-gateway
// ABOUTME: Prompts for listeners, database and logging and writes a YAML config with a random secret

package main

import (
	"bufio"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

func runInit() error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("refuge-gateway configuration setup")
	fmt.Println("==================================")
	fmt.Println()

	outputFile := prompt(reader, "Config file path", getConfigPath())

	if _, err := os.Stat(outputFile); err == nil {
		if !isYes(prompt(reader, "File exists. Overwrite?", "no")) {
			fmt.Println("Aborted.")
			return nil
		}
	}

	answers, err := askInitAnswers(reader)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(outputFile, []byte(renderConfig(answers)), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	if answers.Driver == "sqlite" {
		if err := os.MkdirAll(filepath.Dir(answers.DBPath), 0755); err != nil {
			return fmt.Errorf("creating data directory: %w", err)
		}
	}

	fmt.Printf("\nConfig written to %s\n", outputFile)
	fmt.Println("\nNext steps:")
	fmt.Println("  refuge-gateway adduser --email you@example.com --password ... --shelter \"Mon Refuge\"")
	fmt.Println("  refuge-gateway serve")
	return nil
}

type initAnswers struct {
	HTTPAddr    string
	GRPCAddr    string
	Driver      string
	DBPath      string
	DBURL       string
	TokenTTL    string
	JWTSecret   string
	LogLevel    string
	LogFormat   string
	Metrics     bool
	Tailscale   bool
	TSHostname  string
	TSEphemeral bool
	TSFunnel    bool
}

func askInitAnswers(reader *bufio.Reader) (initAnswers, error) {
	var a initAnswers

	fmt.Println("\n--- Server Configuration ---")
	a.HTTPAddr = prompt(reader, "HTTP address", "localhost:8080")
	a.GRPCAddr = prompt(reader, "gRPC address (empty to disable)", "")

	fmt.Println("\n--- Database Configuration ---")
	a.Driver = strings.ToLower(prompt(reader, "Driver (sqlite/postgres)", "sqlite"))
	switch a.Driver {
	case "sqlite":
		a.DBPath = prompt(reader, "SQLite database path", filepath.Join(getDataPath(), "gateway.db"))
	case "postgres":
		a.DBURL = prompt(reader, "PostgreSQL URL", "${DATABASE_URL}")
	default:
		return a, fmt.Errorf("unknown database driver %q", a.Driver)
	}

	fmt.Println("\n--- Auth Configuration ---")
	a.TokenTTL = prompt(reader, "Token lifetime", "1m")
	secret, err := generateSecret(rand.Reader)
	if err != nil {
		return a, err
	}
	a.JWTSecret = secret

	fmt.Println("\n--- Tailscale Configuration ---")
	a.Tailscale = isYes(prompt(reader, "Enable Tailscale?", "no"))
	if a.Tailscale {
		a.TSHostname = prompt(reader, "Tailscale hostname", "refuge-gateway")
		a.TSEphemeral = isYes(prompt(reader, "Ephemeral node?", "no"))
		a.TSFunnel = isYes(prompt(reader, "Enable Funnel (public HTTPS)?", "no"))
	}

	fmt.Println("\n--- Logging Configuration ---")
	a.LogLevel = prompt(reader, "Log level (debug/info/warn/error)", "info")
	a.LogFormat = prompt(reader, "Log format (text/json)", "text")
	a.Metrics = isYes(prompt(reader, "Expose Prometheus metrics?", "yes"))

	return a, nil
}

// generateSecret returns 32 random bytes, base64 encoded.
func generateSecret(r io.Reader) (string, error) {
	secret := make([]byte, 32)
	if _, err := io.ReadFull(r, secret); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(secret), nil
}

func renderConfig(a initAnswers) string {
	var cfg strings.Builder
	cfg.WriteString("# refuge-gateway configuration\n")
	cfg.WriteString("# Generated by refuge-gateway init\n\n")

	cfg.WriteString("server:\n")
	fmt.Fprintf(&cfg, "  http_addr: %q\n", a.HTTPAddr)
	if a.GRPCAddr != "" {
		fmt.Fprintf(&cfg, "  grpc_addr: %q\n", a.GRPCAddr)
	}
	cfg.WriteString("\n")

	cfg.WriteString("database:\n")
	fmt.Fprintf(&cfg, "  driver: %q\n", a.Driver)
	if a.Driver == "postgres" {
		fmt.Fprintf(&cfg, "  url: %q\n", a.DBURL)
	} else {
		fmt.Fprintf(&cfg, "  path: %q\n", a.DBPath)
	}
	cfg.WriteString("\n")

	cfg.WriteString("auth:\n")
	fmt.Fprintf(&cfg, "  jwt_secret: %q\n", a.JWTSecret)
	fmt.Fprintf(&cfg, "  token_ttl: %q\n", a.TokenTTL)
	cfg.WriteString("\n")

	cfg.WriteString("tailscale:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", a.Tailscale)
	if a.Tailscale {
		fmt.Fprintf(&cfg, "  hostname: %q\n", a.TSHostname)
		fmt.Fprintf(&cfg, "  ephemeral: %t\n", a.TSEphemeral)
		fmt.Fprintf(&cfg, "  funnel: %t\n", a.TSFunnel)
	}
	cfg.WriteString("\n")

	cfg.WriteString("logging:\n")
	fmt.Fprintf(&cfg, "  level: %q\n", a.LogLevel)
	fmt.Fprintf(&cfg, "  format: %q\n", a.LogFormat)
	cfg.WriteString("\n")

	cfg.WriteString("metrics:\n")
	fmt.Fprintf(&cfg, "  enabled: %t\n", a.Metrics)
	cfg.WriteString("  path: \"/metrics\"\n")

	return cfg.String()
}

func isYes(answer string) bool {
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "yes" || answer == "y"
}

func prompt(reader *bufio.Reader, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("%s [%s]: ", question, defaultVal)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil {
		// On EOF or error, return default
		fmt.Println()
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
