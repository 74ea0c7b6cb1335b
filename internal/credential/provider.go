package credential

import (
	"context"
	"errors"
	"fmt"

	"github.com/nerrad567/gray-logic-gluehome/internal/infrastructure/config"
)

// Issuer exchanges account credentials for a new API key.
type Issuer interface {
	IssueAPIKey(ctx context.Context, username, password, name string) (string, error)
}

// Logger is the logging surface of the provider.
type Logger interface {
	Info(msg string, args ...any)
}

// Provider resolves the API key the bridge should use.
type Provider struct {
	repo   Repository
	issuer Issuer
	logger Logger
}

// NewProvider creates a Provider. logger may be nil.
func NewProvider(repo Repository, issuer Issuer, logger Logger) *Provider {
	return &Provider{repo: repo, issuer: issuer, logger: logger}
}

// Resolve returns the API key for cfg.
//
// Resolution order:
//  1. cfg.APIKey, if set
//  2. the key stored for cfg.Username against the same host
//  3. a newly issued key, which is then stored
//
// Returns:
//   - string: The API key
//   - error: ErrNoCredentials, or the issuing/storage failure (cloud.ErrInvalidAuth
//     when the username or password is wrong)
func (p *Provider) Resolve(ctx context.Context, cfg config.GlueHomeConfig) (string, error) {
	if cfg.APIKey != "" {
		return cfg.APIKey, nil
	}
	if cfg.Username == "" || cfg.Password == "" {
		return "", ErrNoCredentials
	}

	stored, err := p.repo.Get(ctx, cfg.Username)
	switch {
	case err == nil && stored.Host == cfg.Host:
		return stored.Key, nil
	case err != nil && !errors.Is(err, ErrNotFound):
		return "", err
	}

	key, err := p.issuer.IssueAPIKey(ctx, cfg.Username, cfg.Password, cfg.KeyName)
	if err != nil {
		return "", fmt.Errorf("issuing api key: %w", err)
	}

	if err := p.repo.Save(ctx, &APIKey{
		Username: cfg.Username,
		KeyName:  cfg.KeyName,
		Key:      key,
		Host:     cfg.Host,
	}); err != nil {
		return "", err
	}

	if p.logger != nil {
		p.logger.Info("issued api key", "username", cfg.Username, "key_name", cfg.KeyName)
	}
	return key, nil
}

// Forget drops the stored key for cfg.Username so the next Resolve issues a
// fresh one. A configured APIKey is never forgotten.
func (p *Provider) Forget(ctx context.Context, cfg config.GlueHomeConfig) error {
	if cfg.APIKey != "" || cfg.Username == "" {
		return nil
	}
	return p.repo.Delete(ctx, cfg.Username)
}
