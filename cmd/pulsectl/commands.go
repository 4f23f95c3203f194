// Quality Pulse - Authenticated Realtime Delivery
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/qualitypulse

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/goccy/go-json"

	"github.com/tomtom215/qualitypulse/internal/client"
	"github.com/tomtom215/qualitypulse/internal/logging"
)

// Env is what commands need from the process.
type Env struct {
	Stdout io.Writer
	Stderr io.Writer
	SDK    client.SDK
	Getenv func(string) string
}

func registerCommands(r *CommandRegistry) {
	r.Register(&Command{
		Name:        "config",
		Description: "Check the FIREBASE_* and PULSE_API_URL settings",
		Usage:       "pulsectl config",
		Run:         configCommand,
	})

	r.Register(&Command{
		Name:        "token",
		Description: "Sign in and print the current ID token",
		Usage:       "pulsectl token [-email <email>] [-password <password>]",
		Examples: []string{
			"PULSE_EMAIL=me@example.com PULSE_PASSWORD=secret pulsectl token",
		},
		Run: tokenCommand,
	})

	r.Register(&Command{
		Name:        "call",
		Description: "Call an API path, signed in when credentials are given",
		Usage:       "pulsectl call [-method GET] [-data <json>] <path>",
		Examples: []string{
			"pulsectl call /governance/standards",
			"pulsectl call -email me@example.com -password secret /reports",
			`pulsectl call -method POST -data '{"title":"Audit due","message":"Site 4 audit is due"}' /notifications`,
		},
		Run: callCommand,
	})

	r.Register(&Command{
		Name:        "listen",
		Description: "Join your realtime channel and print events as JSON lines",
		Usage:       "pulsectl listen [-origin http://localhost:3000] [-path /ws]",
		Examples: []string{
			"pulsectl listen -email me@example.com -password secret",
		},
		Run: listenCommand,
	})
}

// credentials registers -email and -password with environment defaults.
func credentials(fs *flag.FlagSet, env *Env) (email, password *string) {
	email = fs.String("email", env.Getenv("PULSE_EMAIL"), "account email (default $PULSE_EMAIL)")
	password = fs.String("password", env.Getenv("PULSE_PASSWORD"), "account password (default $PULSE_PASSWORD)")
	return email, password
}

func parseFlags(fs *flag.FlagSet, args []string) error {
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return errHelp
		}
		return errUsage
	}
	return nil
}

// session loads the client configuration and signs in when email is set.
func session(ctx context.Context, env *Env, email, password string) (*client.Config, *client.TokenProvider, error) {
	cfg, err := client.LoadConfig()
	if err != nil {
		return nil, nil, err
	}
	provider := client.NewTokenProvider(*cfg, env.SDK)
	if email == "" {
		return cfg, provider, nil
	}
	if err := provider.SignIn(ctx, email, password); err != nil {
		return nil, nil, fmt.Errorf("sign in: %w", err)
	}
	logging.Debug().Str("user_id", provider.UserID()).Msg("Signed in")
	return cfg, provider, nil
}

func configCommand(_ context.Context, env *Env, fs *flag.FlagSet, args []string) error {
	if err := parseFlags(fs, args); err != nil {
		return err
	}

	cfg, err := client.LoadConfig()
	if err != nil {
		return err
	}

	fmt.Fprintf(env.Stdout, "enabled:     %t\n", cfg.Enabled)
	fmt.Fprintf(env.Stdout, "api key:     %s\n", logging.Mask(cfg.APIKey))
	fmt.Fprintf(env.Stdout, "project id:  %s\n", orUnset(cfg.ProjectID))
	fmt.Fprintf(env.Stdout, "auth domain: %s\n", orUnset(cfg.AuthDomain))
	fmt.Fprintf(env.Stdout, "api url:     %s\n", cfg.APIURL)

	if err := cfg.Validate(); err != nil {
		return err
	}
	fmt.Fprintln(env.Stdout, "configuration ok")
	return nil
}

func tokenCommand(ctx context.Context, env *Env, fs *flag.FlagSet, args []string) error {
	email, password := credentials(fs, env)
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *email == "" {
		return client.ErrNotSignedIn
	}

	_, provider, err := session(ctx, env, *email, *password)
	if err != nil {
		return err
	}
	token, err := provider.CurrentToken(ctx)
	if err != nil {
		return err
	}
	if token == "" {
		return client.ErrNotSignedIn
	}
	fmt.Fprintln(env.Stdout, token)
	return nil
}

func callCommand(ctx context.Context, env *Env, fs *flag.FlagSet, args []string) error {
	email, password := credentials(fs, env)
	method := fs.String("method", http.MethodGet, "HTTP method")
	data := fs.String("data", "", "JSON request body")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return errUsage
	}

	var body interface{}
	if *data != "" {
		if !json.Valid([]byte(*data)) {
			return fmt.Errorf("-data is not valid JSON")
		}
		body = json.RawMessage(*data)
	}

	cfg, provider, err := session(ctx, env, *email, *password)
	if err != nil {
		return err
	}

	api := client.NewAPIClient(cfg.APIURL, provider)
	resp, err := api.Do(ctx, strings.ToUpper(*method), fs.Arg(0), body)
	if len(resp) > 0 {
		fmt.Fprintln(env.Stdout, strings.TrimSpace(string(resp)))
	}
	return err
}

func listenCommand(ctx context.Context, env *Env, fs *flag.FlagSet, args []string) error {
	email, password := credentials(fs, env)
	origin := fs.String("origin", "http://localhost:3000", "Origin header sent on the upgrade")
	path := fs.String("path", "/ws", "realtime endpoint path")
	if err := parseFlags(fs, args); err != nil {
		return err
	}
	if *email == "" {
		return client.ErrNotSignedIn
	}

	cfg, provider, err := session(ctx, env, *email, *password)
	if err != nil {
		return err
	}

	url, err := client.RealtimeURL(cfg.APIURL, *path)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(env.Stdout)
	err = client.Listen(ctx, client.ListenerConfig{
		URL:    url,
		Origin: *origin,
		UserID: provider.UserID(),
		Source: provider,
	}, func(event client.Event) {
		if err := enc.Encode(event); err != nil {
			logging.Warn().Err(err).Msg("Failed to print event")
		}
	})
	if errors.Is(err, client.ErrSessionEnded) {
		fmt.Fprintln(env.Stderr, "session ended by the server; sign in again")
		return nil
	}
	return err
}

func orUnset(v string) string {
	if v == "" {
		return "<unset>"
	}
	return v
}
