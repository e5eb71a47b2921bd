package main

import (
	"context"
	"log/slog"

	giteaadapter "github.com/ericfisherdev/giteamirror/internal/adapter/driven/gitea"
	githubadapter "github.com/ericfisherdev/giteamirror/internal/adapter/driven/github"
	sqliteadapter "github.com/ericfisherdev/giteamirror/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/giteamirror/internal/application"
	"github.com/ericfisherdev/giteamirror/internal/config"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

// app is the composition root shared by every command.
type app struct {
	cfg *config.Config
	db  *sqliteadapter.DB

	configs driven.ConfigStore
	repos   driven.RepositoryStore
	orgs    driven.OrganizationStore
	jobs    driven.JobStore

	clients *application.ClientProvider
	syncer  *application.SyncService
	mirror  *application.MirrorService
	jobSvc  *application.JobService
	conn    *application.ConnectionService
}

func newSource(token string) driven.SourceProvider {
	return githubadapter.NewClient(token)
}

func newDestination(ctx context.Context, url, token string) (driven.DestinationProvider, error) {
	client, err := giteaadapter.NewClient(ctx, url, token)
	if err != nil {
		return nil, err
	}
	return client, nil
}

// openApp loads the environment, opens and migrates the database and wires
// the services.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(cfg.NewLogger())
	if !cfg.HasSecretKey() {
		slog.Warn("GITMIRROR_SECRET_KEY not set, configurations with tokens cannot be saved or read")
	}

	db, err := sqliteadapter.NewDB(ctx, cfg.DBPath)
	if err != nil {
		return nil, err
	}
	slog.Debug("database opened", "path", cfg.DBPath)

	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		_ = db.Close()
		return nil, err
	}

	a := &app{
		cfg:     cfg,
		db:      db,
		configs: sqliteadapter.NewConfigRepo(db, cfg.SecretKey),
		repos:   sqliteadapter.NewRepoRepo(db),
		orgs:    sqliteadapter.NewOrgRepo(db),
		jobs:    sqliteadapter.NewJobRepo(db),
		clients: application.NewClientProvider(newSource, newDestination),
	}

	a.syncer = application.NewSyncService(a.configs, a.repos, a.orgs, a.clients, cfg.CallTimeout)
	a.mirror = application.NewMirrorService(a.repos, a.jobs, a.clients, cfg.CallTimeout)
	a.jobSvc = application.NewJobService(a.configs, a.repos, a.jobs, a.mirror)
	a.conn = application.NewConnectionService(a.configs, a.clients, cfg.CallTimeout)

	return a, nil
}

// Close interrupts running jobs, then closes the database.
func (a *app) Close() {
	a.jobSvc.Close()
	if err := a.db.Close(); err != nil {
		slog.Error("error closing database", "error", err)
	}
}
