package application

import (
	"context"
	"fmt"
	"time"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

// ConnectionReport holds the identities both tokens of a configuration
// authenticate as.
type ConnectionReport struct {
	Source      model.Identity
	Destination model.Identity
}

// ConnectionService checks the credentials of a configuration against both
// providers.
type ConnectionService struct {
	configs     driven.ConfigStore
	clients     *ClientProvider
	callTimeout time.Duration
}

// NewConnectionService creates a ConnectionService.
func NewConnectionService(configs driven.ConfigStore, clients *ClientProvider, callTimeout time.Duration) *ConnectionService {
	return &ConnectionService{configs: configs, clients: clients, callTimeout: callTimeout}
}

// TestConnection loads a stored configuration and tests it.
func (s *ConnectionService) TestConnection(ctx context.Context, configID string) (ConnectionReport, error) {
	cfg, err := s.configs.Get(ctx, configID)
	if err != nil {
		return ConnectionReport{}, err
	}
	return s.TestConfig(ctx, *cfg)
}

// TestConfig tests a configuration that need not be stored yet. The source
// is checked first.
func (s *ConnectionService) TestConfig(ctx context.Context, cfg model.Configuration) (ConnectionReport, error) {
	var report ConnectionReport

	callCtx, cancel := withCallTimeout(ctx, s.callTimeout)
	defer cancel()

	source, err := s.clients.Source(cfg).TestConnection(callCtx)
	if err != nil {
		return report, fmt.Errorf("github: %w", err)
	}
	report.Source = source

	dest, err := s.clients.Destination(callCtx, cfg)
	if err != nil {
		return report, fmt.Errorf("gitea: %w", err)
	}
	identity, err := dest.TestConnection(callCtx)
	if err != nil {
		return report, fmt.Errorf("gitea: %w", err)
	}
	report.Destination = identity

	return report, nil
}
