// Package main is the provisioning CLI: it creates the counter rows of a
// store, overrides counters, audits them against sales and issues
// terminal tokens.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"ncfpos/internal/app"
	"ncfpos/internal/domain/auth"
)

func main() {
	cmd := NewRootCommand(Backend{
		Sequences: func(ctx context.Context) (Sequences, func(), error) {
			cfg, log, err := app.Load()
			if err != nil {
				return nil, nil, err
			}
			a, err := app.New(ctx, cfg, log, nil)
			if err != nil {
				return nil, nil, err
			}
			return a.Sequences, a.Close, nil
		},
		Tokens: func() (TokenIssuer, error) {
			cfg, _, err := app.Load()
			if err != nil {
				return nil, err
			}
			return auth.NewJWTService(auth.DefaultJWTConfig(cfg.Auth.JWTSecret, cfg.Auth.Issuer)), nil
		},
	})

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(ExitCommandError)
	}
}
