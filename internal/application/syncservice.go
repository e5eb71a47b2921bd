package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

// fetchConcurrency bounds the organization listings run in parallel.
const fetchConcurrency = 4

// SyncResult summarizes one synchronization of a configuration.
type SyncResult struct {
	Added         int
	Updated       int
	Unchanged     int
	Organizations int
}

// SyncService discovers source repositories and organizations for a
// configuration and upserts them into the stores. It never deletes
// repositories and never touches mirror state.
type SyncService struct {
	configs     driven.ConfigStore
	repos       driven.RepositoryStore
	orgs        driven.OrganizationStore
	clients     *ClientProvider
	callTimeout time.Duration
}

// NewSyncService creates a SyncService. callTimeout bounds each provider call;
// zero disables the bound.
func NewSyncService(
	configs driven.ConfigStore,
	repos driven.RepositoryStore,
	orgs driven.OrganizationStore,
	clients *ClientProvider,
	callTimeout time.Duration,
) *SyncService {
	return &SyncService{
		configs:     configs,
		repos:       repos,
		orgs:        orgs,
		clients:     clients,
		callTimeout: callTimeout,
	}
}

// Sync loads the configuration and synchronizes it.
func (s *SyncService) Sync(ctx context.Context, configID string) (SyncResult, error) {
	cfg, err := s.configs.Get(ctx, configID)
	if err != nil {
		return SyncResult{}, err
	}
	return s.SyncConfig(ctx, *cfg)
}

// SyncConfig synchronizes an already loaded configuration. Running it twice
// against an unchanged source adds and updates nothing the second time.
func (s *SyncService) SyncConfig(ctx context.Context, cfg model.Configuration) (SyncResult, error) {
	if err := cfg.Validate(); err != nil {
		return SyncResult{}, fmt.Errorf("%w: configuration %s: %w", driven.ErrValidation, cfg.ID, err)
	}

	start := time.Now()
	source := s.clients.Source(cfg)

	var (
		fetched []model.Repository
		orgs    int
		err     error
	)
	if cfg.GitHub.SingleRepo != "" {
		fetched, err = s.fetchSingle(ctx, source, cfg)
	} else {
		fetched, orgs, err = s.fetchAll(ctx, source, cfg)
	}
	if err != nil {
		return SyncResult{}, err
	}

	selected := FilterRepositories(dedupe(fetched), cfg.Include, cfg.Exclude)

	result := SyncResult{Organizations: orgs}
	for _, repo := range selected {
		changed, added, err := s.upsertRepository(ctx, cfg.ID, repo)
		if err != nil {
			return result, err
		}
		switch {
		case added:
			result.Added++
		case changed:
			result.Updated++
		default:
			result.Unchanged++
		}
	}

	slog.Info("configuration synced",
		"config", cfg.ID,
		"fetched", len(fetched),
		"selected", len(selected),
		"added", result.Added,
		"updated", result.Updated,
		"organizations", result.Organizations,
		"duration", time.Since(start).Round(time.Millisecond),
	)

	return result, nil
}

func (s *SyncService) fetchSingle(ctx context.Context, source driven.SourceProvider, cfg model.Configuration) ([]model.Repository, error) {
	callCtx, cancel := withCallTimeout(ctx, s.callTimeout)
	defer cancel()

	repo, err := source.GetRepository(callCtx, cfg.GitHub.SingleRepo)
	if err != nil {
		return nil, fmt.Errorf("sync single repository %s: %w", cfg.GitHub.SingleRepo, err)
	}
	return []model.Repository{*repo}, nil
}

// fetchAll gathers owned, starred and organization repositories. Any listing
// failure aborts the sync so a partial view is never persisted.
func (s *SyncService) fetchAll(ctx context.Context, source driven.SourceProvider, cfg model.Configuration) ([]model.Repository, int, error) {
	targets, known, err := s.discoverOrganizations(ctx, source, cfg)
	if err != nil {
		return nil, 0, err
	}

	owned, starred := 1, 0
	if cfg.GitHub.OnlyMirrorOrgs {
		owned = 0
	}
	if cfg.GitHub.MirrorStarred {
		starred = 1
	}

	// Slots: [owned][starred][one per organization], filled concurrently.
	slots := make([][]model.Repository, owned+starred+len(targets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchConcurrency)

	if owned == 1 {
		g.Go(func() error {
			callCtx, cancel := withCallTimeout(gctx, s.callTimeout)
			defer cancel()
			repos, err := source.ListUserRepositories(callCtx, cfg.GitHub)
			if err != nil {
				return fmt.Errorf("list user repositories: %w", err)
			}
			slots[0] = repos
			return nil
		})
	}
	if starred == 1 {
		g.Go(func() error {
			callCtx, cancel := withCallTimeout(gctx, s.callTimeout)
			defer cancel()
			repos, err := source.ListStarredRepositories(callCtx, cfg.GitHub)
			if err != nil {
				return fmt.Errorf("list starred repositories: %w", err)
			}
			slots[owned] = repos
			return nil
		})
	}
	for i, org := range targets {
		slot := owned + starred + i
		g.Go(func() error {
			callCtx, cancel := withCallTimeout(gctx, s.callTimeout)
			defer cancel()
			repos, err := source.ListOrganizationRepositories(callCtx, org.Name, cfg.GitHub)
			if err != nil {
				return fmt.Errorf("list repositories of organization %s: %w", org.Name, err)
			}
			slots[slot] = repos
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, 0, err
	}

	for i, org := range targets {
		org.RepositoryCount = len(slots[owned+starred+i])
		if _, err := s.orgs.Upsert(ctx, org); err != nil {
			return nil, 0, fmt.Errorf("store organization %s: %w", org.Name, err)
		}
	}

	var all []model.Repository
	for _, slot := range slots {
		all = append(all, slot...)
	}
	return all, known, nil
}

// discoverOrganizations records every visible organization and returns the
// ones whose repositories are in scope, along with the number discovered.
func (s *SyncService) discoverOrganizations(ctx context.Context, source driven.SourceProvider, cfg model.Configuration) ([]model.Organization, int, error) {
	if !cfg.GitHub.MirrorOrganizations && !cfg.GitHub.MirrorPublicOrgs {
		return nil, 0, nil
	}

	var discovered []model.Organization
	seen := make(map[string]bool)

	if cfg.GitHub.MirrorOrganizations {
		callCtx, cancel := withCallTimeout(ctx, s.callTimeout)
		member, err := source.ListUserOrganizations(callCtx)
		cancel()
		if err != nil {
			return nil, 0, fmt.Errorf("list organizations: %w", err)
		}
		for _, o := range member {
			if !seen[o.Name] {
				seen[o.Name] = true
				discovered = append(discovered, o)
			}
		}
	}

	if cfg.GitHub.MirrorPublicOrgs {
		for _, name := range cfg.GitHub.PublicOrgs {
			if seen[name] {
				continue
			}
			callCtx, cancel := withCallTimeout(ctx, s.callTimeout)
			org, err := source.GetOrganization(callCtx, name)
			cancel()
			if err != nil {
				return nil, 0, fmt.Errorf("get public organization %s: %w", name, err)
			}
			seen[name] = true
			discovered = append(discovered, *org)
		}
	}

	var targets []model.Organization
	for _, o := range discovered {
		o.ConfigID = cfg.ID

		stored, err := s.orgs.GetByName(ctx, cfg.ID, o.Name)
		if err != nil {
			return nil, 0, fmt.Errorf("load organization %s: %w", o.Name, err)
		}
		included := stored == nil || stored.IsIncluded

		if included && cfg.GitHub.OrgSelected(o.Name) {
			targets = append(targets, o)
			continue
		}

		// Out-of-scope organizations are still recorded so they can be toggled,
		// keeping whatever repository count was last observed.
		if stored != nil {
			o.RepositoryCount = stored.RepositoryCount
		}
		if _, err := s.orgs.Upsert(ctx, o); err != nil {
			return nil, 0, fmt.Errorf("store organization %s: %w", o.Name, err)
		}
		slog.Debug("organization skipped", "config", cfg.ID, "org", o.Name, "included", included)
	}

	return targets, len(discovered), nil
}

// upsertRepository reports whether the stored row changed and whether it was new.
func (s *SyncService) upsertRepository(ctx context.Context, configID string, repo model.Repository) (changed, added bool, err error) {
	repo.ConfigID = configID

	stored, err := s.repos.GetByFullName(ctx, configID, repo.FullName)
	if err != nil {
		return false, false, fmt.Errorf("load repository %s: %w", repo.FullName, err)
	}

	if stored == nil {
		repo.ID = uuid.NewString()
		repo.Status = model.RepoStatusPending
		if err := s.repos.Insert(ctx, repo); err != nil {
			return false, false, fmt.Errorf("store repository %s: %w", repo.FullName, err)
		}
		return true, true, nil
	}

	if stored.DescriptiveEqual(repo) {
		return false, false, nil
	}

	repo.ID = stored.ID
	if err := s.repos.UpdateDescriptive(ctx, repo); err != nil {
		return false, false, fmt.Errorf("update repository %s: %w", repo.FullName, err)
	}
	return true, false, nil
}

// dedupe collapses repositories listed by more than one source. The first
// occurrence wins, and IsStarred is set when any occurrence was starred.
func dedupe(repos []model.Repository) []model.Repository {
	index := make(map[string]int, len(repos))
	out := make([]model.Repository, 0, len(repos))
	for _, r := range repos {
		if i, ok := index[r.FullName]; ok {
			out[i].IsStarred = out[i].IsStarred || r.IsStarred
			continue
		}
		index[r.FullName] = len(out)
		out = append(out, r)
	}
	return out
}

// withCallTimeout bounds one provider call. A non-positive d only adds cancellation.
func withCallTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
