package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/nerrad567/gray-logic-gluehome/internal/api"
	"github.com/nerrad567/gray-logic-gluehome/internal/infrastructure/config"
)

// runToken prints a bearer token for the local API.
//
// Usage: gluehome token <subject>
//
// The subject names the client (for example "home-assistant") and shows up
// in request logs. The token is signed with api.jwt_secret and lives for
// api.token_ttl hours.
func runToken(out io.Writer, args []string) error {
	if len(args) != 1 || args[0] == "" {
		return errors.New("usage: gluehome token <subject>")
	}

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if !cfg.API.AuthEnabled() {
		return errors.New("api.jwt_secret is not set; the API does not use tokens")
	}

	token, err := api.IssueToken(cfg.API.JWTSecret, args[0], cfg.API.GetTokenTTL())
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, token)
	return err
}
