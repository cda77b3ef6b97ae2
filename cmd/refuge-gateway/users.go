// ABOUTME: Identity administration subcommands for refuge-gateway
// ABOUTME: adduser creates identities with optional associations, token issues access tokens

package main

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/2389/refuge-gateway/internal/auth"
	"github.com/2389/refuge-gateway/internal/gateway"
	"github.com/2389/refuge-gateway/internal/store"
)

// parseFlags reads "--name value" and "--name=value" pairs. Every flag in
// allowed takes a value; anything else is an error.
func parseFlags(args []string, allowed ...string) (map[string]string, error) {
	known := make(map[string]bool, len(allowed))
	for _, name := range allowed {
		known[name] = true
	}

	values := make(map[string]string)
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "--") {
			return nil, fmt.Errorf("unexpected argument: %s", arg)
		}

		name, value, hasValue := strings.Cut(strings.TrimPrefix(arg, "--"), "=")
		if !known[name] {
			return nil, fmt.Errorf("unknown flag: %s", arg)
		}
		if !hasValue {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("--%s requires a value", name)
			}
			value = args[i+1]
			i++
		}
		values[name] = value
	}
	return values, nil
}

type addUserOptions struct {
	Email    string
	Password string
	Shelter  string
	Foster   string
}

func parseAddUserOptions(args []string) (addUserOptions, error) {
	flags, err := parseFlags(args, "email", "password", "shelter", "foster")
	if err != nil {
		return addUserOptions{}, err
	}

	opts := addUserOptions{
		Email:    strings.TrimSpace(flags["email"]),
		Password: flags["password"],
		Shelter:  strings.TrimSpace(flags["shelter"]),
		Foster:   strings.TrimSpace(flags["foster"]),
	}
	if opts.Email == "" {
		return opts, errors.New("--email flag is required")
	}
	if opts.Password == "" {
		return opts, errors.New("--password flag is required")
	}
	return opts, nil
}

// addUser hashes the password and stores the identity with its associations.
func addUser(ctx context.Context, s store.IdentityWriter, opts addUserOptions) (*store.Identity, error) {
	hash, err := auth.HashPassword(opts.Password)
	if err != nil {
		return nil, err
	}

	identity, err := s.CreateIdentity(ctx, opts.Email, hash)
	if err != nil {
		return nil, fmt.Errorf("creating identity: %w", err)
	}

	// If an association cannot be attached, remove the identity so a retry
	// does not hit ErrEmailExists on a half-created account.
	if opts.Shelter != "" {
		shelter, err := s.AttachShelter(ctx, identity.ID, opts.Shelter)
		if err != nil {
			_ = s.DeleteIdentity(ctx, identity.ID)
			return nil, fmt.Errorf("attaching shelter: %w", err)
		}
		identity.Shelter = shelter
	}
	if opts.Foster != "" {
		foster, err := s.AttachFoster(ctx, identity.ID, opts.Foster)
		if err != nil {
			_ = s.DeleteIdentity(ctx, identity.ID)
			return nil, fmt.Errorf("attaching foster: %w", err)
		}
		identity.Foster = foster
	}
	return identity, nil
}

// issueToken signs an access token for the identity registered with email.
func issueToken(ctx context.Context, s store.IdentityReader, codec *auth.TokenCodec, email string) (string, *auth.Claims, error) {
	identity, err := s.FindIdentityByEmail(ctx, email)
	if err != nil {
		return "", nil, fmt.Errorf("looking up %s: %w", email, err)
	}

	claims := codec.NewClaims(identity)
	token, err := codec.Issue(claims)
	if err != nil {
		return "", nil, err
	}
	return token, &claims, nil
}

func runAddUser(ctx context.Context, args []string) error {
	opts, err := parseAddUserOptions(args)
	if err != nil {
		return err
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := gateway.OpenStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	identity, err := addUser(ctx, s, opts)
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	cyan := color.New(color.FgCyan)

	green.Printf("  ✓ Created identity %d\n", identity.ID)
	fmt.Println()
	cyan.Println("  Identity")
	cyan.Println("  --------")
	fmt.Printf("  Email:  %s\n", identity.Email)
	fmt.Printf("  Role:   %s\n", roleLabel(auth.DeriveRole(identity.Shelter != nil, identity.Foster != nil)))
	if identity.Shelter != nil {
		fmt.Printf("  Refuge: %s\n", identity.Shelter.Name)
	}
	if identity.Foster != nil {
		fmt.Printf("  Famille: %s\n", identity.Foster.Name)
	}
	fmt.Println()
	return nil
}

func runToken(ctx context.Context, args []string) error {
	flags, err := parseFlags(args, "email")
	if err != nil {
		return err
	}
	email := strings.TrimSpace(flags["email"])
	if email == "" {
		return errors.New("--email flag is required")
	}

	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	s, err := gateway.OpenStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer s.Close()

	codec, err := gateway.NewCodec(cfg.Auth)
	if err != nil {
		return err
	}

	token, claims, err := issueToken(ctx, s, codec, email)
	if err != nil {
		return err
	}

	gray := color.New(color.FgHiBlack)
	gray.Printf("  role: %s, expires %s\n", roleLabel(claims.Role), claims.ExpiresAt.Time.Format(time.RFC3339))
	fmt.Println(token)
	return nil
}

func roleLabel(r auth.Role) string {
	if r == auth.RoleNone {
		return "none"
	}
	return r.String()
}
