package application

import (
	"context"
	"sync"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

// SourceFactory builds a source provider bound to one token.
type SourceFactory func(token string) driven.SourceProvider

// DestinationFactory builds a destination provider bound to one forge URL and
// token. It may reach the network.
type DestinationFactory func(ctx context.Context, url, token string) (driven.DestinationProvider, error)

type sourceEntry struct {
	token  string
	client driven.SourceProvider
}

type destinationEntry struct {
	url, token string
	client     driven.DestinationProvider
}

// ClientProvider hands out provider clients per configuration. Clients are
// cached by configuration id and rebuilt when the configuration's
// credentials change, so a token rotation takes effect on the next call
// without restarting the process.
type ClientProvider struct {
	newSource      SourceFactory
	newDestination DestinationFactory

	mu           sync.RWMutex
	sources      map[string]sourceEntry
	destinations map[string]destinationEntry
}

// NewClientProvider creates a provider using the given factories.
func NewClientProvider(newSource SourceFactory, newDestination DestinationFactory) *ClientProvider {
	return &ClientProvider{
		newSource:      newSource,
		newDestination: newDestination,
		sources:        make(map[string]sourceEntry),
		destinations:   make(map[string]destinationEntry),
	}
}

// Source returns the source client for cfg.
func (p *ClientProvider) Source(cfg model.Configuration) driven.SourceProvider {
	p.mu.RLock()
	entry, ok := p.sources[cfg.ID]
	p.mu.RUnlock()
	if ok && entry.token == cfg.GitHub.Token {
		return entry.client
	}

	client := p.newSource(cfg.GitHub.Token)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources[cfg.ID] = sourceEntry{token: cfg.GitHub.Token, client: client}
	return client
}

// Destination returns the destination client for cfg, connecting on first use.
// A failed connection is not cached.
func (p *ClientProvider) Destination(ctx context.Context, cfg model.Configuration) (driven.DestinationProvider, error) {
	p.mu.RLock()
	entry, ok := p.destinations[cfg.ID]
	p.mu.RUnlock()
	if ok && entry.url == cfg.Gitea.URL && entry.token == cfg.Gitea.Token {
		return entry.client, nil
	}

	client, err := p.newDestination(ctx, cfg.Gitea.URL, cfg.Gitea.Token)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.destinations[cfg.ID] = destinationEntry{url: cfg.Gitea.URL, token: cfg.Gitea.Token, client: client}
	return client, nil
}

// Forget drops the cached clients of a configuration.
func (p *ClientProvider) Forget(configID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.sources, configID)
	delete(p.destinations, configID)
}
