package application_test

import (
	"cmp"
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/giteamirror/internal/application"
	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

var (
	_ driven.ConfigStore         = (*memConfigStore)(nil)
	_ driven.RepositoryStore     = (*memRepoStore)(nil)
	_ driven.OrganizationStore   = (*memOrgStore)(nil)
	_ driven.JobStore            = (*memJobStore)(nil)
	_ driven.SourceProvider      = (*fakeSource)(nil)
	_ driven.DestinationProvider = (*fakeDestination)(nil)
)

// --- In-memory stores ---

type memConfigStore struct {
	mu      sync.Mutex
	configs map[string]model.Configuration
	runs    map[string][2]time.Time
}

func newMemConfigStore(cfgs ...model.Configuration) *memConfigStore {
	s := &memConfigStore{configs: make(map[string]model.Configuration), runs: make(map[string][2]time.Time)}
	for _, c := range cfgs {
		s.configs[c.ID] = c
	}
	return s
}

func (s *memConfigStore) Save(_ context.Context, cfg model.Configuration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.configs[cfg.ID] = cfg
	return nil
}

func (s *memConfigStore) Get(_ context.Context, id string) (*model.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[id]
	if !ok {
		return nil, driven.ErrConfigNotFound
	}
	return &cfg, nil
}

func (s *memConfigStore) GetActiveForUser(_ context.Context, userID string) (*model.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range s.configs {
		if c.UserID == userID && c.IsActive {
			return &c, nil
		}
	}
	return nil, driven.ErrConfigNotFound
}

func (s *memConfigStore) List(_ context.Context) ([]model.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Configuration
	for _, c := range s.configs {
		out = append(out, c)
	}
	slices.SortFunc(out, func(a, b model.Configuration) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *memConfigStore) ListDue(_ context.Context, now time.Time) ([]model.Configuration, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Configuration
	for _, c := range s.configs {
		if c.IsActive && c.Schedule.Enabled && (c.Schedule.NextRun == nil || !c.Schedule.NextRun.After(now)) {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *memConfigStore) RecordRun(_ context.Context, id string, lastRun, nextRun time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cfg, ok := s.configs[id]
	if !ok {
		return driven.ErrConfigNotFound
	}
	cfg.Schedule.LastRun, cfg.Schedule.NextRun = &lastRun, &nextRun
	s.configs[id] = cfg
	s.runs[id] = [2]time.Time{lastRun, nextRun}
	return nil
}

type memRepoStore struct {
	mu     sync.Mutex
	repos  map[string]model.Repository
	claims []string // "from->to" per successful claim
}

func newMemRepoStore(repos ...model.Repository) *memRepoStore {
	s := &memRepoStore{repos: make(map[string]model.Repository)}
	for _, r := range repos {
		s.repos[r.ID] = r
	}
	return s
}

func (s *memRepoStore) Insert(_ context.Context, repo model.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.repos {
		if r.ConfigID == repo.ConfigID && r.FullName == repo.FullName {
			return driven.ErrRepoAlreadyExists
		}
	}
	s.repos[repo.ID] = repo
	return nil
}

func (s *memRepoStore) UpdateDescriptive(_ context.Context, repo model.Repository) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.repos[repo.ID]
	if !ok {
		return driven.ErrRepoNotFound
	}
	repo.Status, repo.LastMirrored, repo.ErrorMessage = stored.Status, stored.LastMirrored, stored.ErrorMessage
	s.repos[repo.ID] = repo
	return nil
}

func (s *memRepoStore) Get(_ context.Context, id string) (*model.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return nil, driven.ErrRepoNotFound
	}
	return &r, nil
}

func (s *memRepoStore) GetByFullName(_ context.Context, configID, fullName string) (*model.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.repos {
		if r.ConfigID == configID && r.FullName == fullName {
			return &r, nil
		}
	}
	return nil, nil
}

func (s *memRepoStore) ListByConfig(_ context.Context, configID string) ([]model.Repository, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Repository
	for _, r := range s.repos {
		if r.ConfigID == configID {
			out = append(out, r)
		}
	}
	slices.SortFunc(out, func(a, b model.Repository) int { return cmp.Compare(a.FullName, b.FullName) })
	return out, nil
}

func (s *memRepoStore) Claim(_ context.Context, id string) (model.RepoStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[id]
	if !ok {
		return "", driven.ErrRepoNotFound
	}
	if r.Status.IsBusy() {
		return "", driven.ErrRepoBusy
	}
	prev := r.Status
	r.Status = prev.ClaimTarget()
	s.claims = append(s.claims, string(prev)+"->"+string(r.Status))
	s.repos[id] = r
	return prev, nil
}

func (s *memRepoStore) apply(outcome driven.RepoOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.repos[outcome.RepositoryID]
	if !ok {
		return driven.ErrRepoNotFound
	}
	r.Status = outcome.Status
	r.ErrorMessage = outcome.ErrorMessage
	if outcome.LastMirrored != nil {
		r.LastMirrored = outcome.LastMirrored
	}
	s.repos[r.ID] = r
	return nil
}

func (s *memRepoStore) byName(fullName string) model.Repository {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.repos {
		if r.FullName == fullName {
			return r
		}
	}
	return model.Repository{}
}

type memOrgStore struct {
	mu   sync.Mutex
	orgs map[string]model.Organization // keyed by name
}

func newMemOrgStore(orgs ...model.Organization) *memOrgStore {
	s := &memOrgStore{orgs: make(map[string]model.Organization)}
	for _, o := range orgs {
		s.orgs[o.Name] = o
	}
	return s
}

func (s *memOrgStore) Upsert(_ context.Context, org model.Organization) (model.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if stored, ok := s.orgs[org.Name]; ok {
		org.ID = stored.ID
		org.IsIncluded = stored.IsIncluded
	} else {
		org.ID = "org-" + org.Name
	}
	s.orgs[org.Name] = org
	return org, nil
}

func (s *memOrgStore) GetByName(_ context.Context, _, name string) (*model.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[name]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (s *memOrgStore) ListByConfig(_ context.Context, _ string) ([]model.Organization, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Organization
	for _, o := range s.orgs {
		out = append(out, o)
	}
	slices.SortFunc(out, func(a, b model.Organization) int { return cmp.Compare(a.Name, b.Name) })
	return out, nil
}

func (s *memOrgStore) SetIncluded(_ context.Context, _, name string, included bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	o, ok := s.orgs[name]
	if !ok {
		return driven.ErrNotFound
	}
	o.IsIncluded = included
	s.orgs[name] = o
	return nil
}

type memJobStore struct {
	mu        sync.Mutex
	jobs      map[string]model.MirrorJob
	repos     *memRepoStore
	appendErr error
}

func newMemJobStore(repos *memRepoStore) *memJobStore {
	return &memJobStore{jobs: make(map[string]model.MirrorJob), repos: repos}
}

func (s *memJobStore) Create(_ context.Context, job model.MirrorJob) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	log := job.Log
	job.Log = nil
	for _, e := range log {
		s.appendLocked(&job, e)
	}
	s.jobs[job.ID] = job
	return nil
}

func (s *memJobStore) Get(_ context.Context, id string) (*model.MirrorJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, driven.ErrJobNotFound
	}
	job.Log = slices.Clone(job.Log)
	return &job, nil
}

func (s *memJobStore) GetStatus(_ context.Context, id string) (model.JobStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return "", driven.ErrJobNotFound
	}
	return job.Status, nil
}

func (s *memJobStore) ListByConfig(_ context.Context, configID string) ([]model.MirrorJob, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.MirrorJob
	for _, j := range s.jobs {
		if j.ConfigID == configID {
			j.Log = nil
			out = append(out, j)
		}
	}
	return out, nil
}

func (s *memJobStore) AppendLog(_ context.Context, jobID string, entry model.LogEntry) (model.LogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.appendErr != nil {
		return model.LogEntry{}, s.appendErr
	}
	job, ok := s.jobs[jobID]
	if !ok {
		return model.LogEntry{}, driven.ErrJobNotFound
	}
	stored := s.appendLocked(&job, entry)
	s.jobs[jobID] = job
	return stored, nil
}

func (s *memJobStore) RecordOutcome(ctx context.Context, jobID string, entry model.LogEntry, outcome driven.RepoOutcome) (model.LogEntry, error) {
	if err := s.repos.apply(outcome); err != nil {
		return model.LogEntry{}, err
	}
	return s.AppendLog(ctx, jobID, entry)
}

func (s *memJobStore) Transition(_ context.Context, id string, from []model.JobStatus, to model.JobStatus, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return false, driven.ErrJobNotFound
	}
	if !slices.Contains(from, job.Status) {
		return false, nil
	}
	job.Status = to
	if to == model.JobStatusRunning {
		job.StartedAt = &at
	}
	if to.IsTerminal() {
		job.CompletedAt = &at
	}
	s.jobs[id] = job
	return true, nil
}

func (s *memJobStore) appendLocked(job *model.MirrorJob, e model.LogEntry) model.LogEntry {
	e.Sequence = len(job.Log) + 1
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	if e.Level == "" {
		e.Level = model.LogLevelInfo
	}
	job.Log = append(job.Log, e)
	return e
}

// --- Provider fakes ---

type fakeSource struct {
	mu         sync.Mutex
	user       []model.Repository
	starred    []model.Repository
	orgRepos   map[string][]model.Repository
	memberOrgs []model.Organization
	publicOrgs map[string]model.Organization
	single     map[string]model.Repository
	issues     map[string][]model.Issue
	listErr    error
	orgCalls   []string
}

func (f *fakeSource) TestConnection(context.Context) (model.Identity, error) {
	return model.Identity{Login: "octocat"}, nil
}

func (f *fakeSource) ListUserRepositories(context.Context, model.GitHubConfig) ([]model.Repository, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return slices.Clone(f.user), nil
}

func (f *fakeSource) ListStarredRepositories(context.Context, model.GitHubConfig) ([]model.Repository, error) {
	return slices.Clone(f.starred), nil
}

func (f *fakeSource) ListOrganizationRepositories(_ context.Context, org string, _ model.GitHubConfig) ([]model.Repository, error) {
	f.mu.Lock()
	f.orgCalls = append(f.orgCalls, org)
	f.mu.Unlock()
	return slices.Clone(f.orgRepos[org]), nil
}

func (f *fakeSource) GetRepository(_ context.Context, fullName string) (*model.Repository, error) {
	r, ok := f.single[fullName]
	if !ok {
		return nil, &driven.ProviderError{Kind: driven.ErrNotFound, Op: "get repository", Err: errors.New("404")}
	}
	return &r, nil
}

func (f *fakeSource) ListUserOrganizations(context.Context) ([]model.Organization, error) {
	return slices.Clone(f.memberOrgs), nil
}

func (f *fakeSource) GetOrganization(_ context.Context, org string) (*model.Organization, error) {
	o, ok := f.publicOrgs[org]
	if !ok {
		return nil, &driven.ProviderError{Kind: driven.ErrNotFound, Op: "get organization", Err: errors.New("404")}
	}
	return &o, nil
}

func (f *fakeSource) ListIssues(_ context.Context, owner, repo string) ([]model.Issue, error) {
	return slices.Clone(f.issues[owner+"/"+repo]), nil
}

type fakeDestination struct {
	mu         sync.Mutex
	login      string
	mirrorErr  map[string]error // keyed by repository name
	existing   map[string]model.DestinationRepo
	syncErr    error
	issueErr   func(model.Issue) error
	blockNames map[string]bool // MirrorRepository waits for ctx cancellation
	started    chan string

	ensured  []string
	mirrored []model.MirrorRequest
	synced   []string
	issues   []string
}

func newFakeDestination() *fakeDestination {
	return &fakeDestination{
		login:    "mirror-bot",
		existing: make(map[string]model.DestinationRepo),
	}
}

func (f *fakeDestination) TestConnection(context.Context) (model.Identity, error) {
	return model.Identity{Login: f.login}, nil
}

func (f *fakeDestination) EnsureOrganization(_ context.Context, name string, visibility model.Visibility) (*model.DestinationOrg, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ensured = append(f.ensured, name)
	return &model.DestinationOrg{Name: name, Visibility: visibility}, nil
}

func (f *fakeDestination) GetRepository(_ context.Context, owner, name string) (*model.DestinationRepo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r, ok := f.existing[owner+"/"+name]
	if !ok {
		return nil, &driven.ProviderError{Kind: driven.ErrNotFound, Op: "get repository", Err: errors.New("404")}
	}
	return &r, nil
}

func (f *fakeDestination) MirrorRepository(ctx context.Context, req model.MirrorRequest) (*model.DestinationRepo, error) {
	if f.blockNames[req.Name] {
		if f.started != nil {
			f.started <- req.Name
		}
		<-ctx.Done()
		return nil, &driven.ProviderError{Kind: driven.ErrConnection, Op: "mirror", Err: ctx.Err()}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.mirrorErr[req.Name]; err != nil {
		return nil, err
	}
	owner := req.Owner
	if owner == "" {
		owner = f.login
	}
	if _, ok := f.existing[owner+"/"+req.Name]; ok {
		return nil, &driven.ProviderError{Kind: driven.ErrConflict, Op: "migrate", StatusCode: 409, Err: errors.New("repository already exists")}
	}
	f.mirrored = append(f.mirrored, req)

	repo := model.DestinationRepo{ID: int64(len(f.mirrored)), Owner: owner, Name: req.Name, FullName: owner + "/" + req.Name, IsMirror: true}
	f.existing[repo.FullName] = repo
	return &repo, nil
}

func (f *fakeDestination) SyncMirror(_ context.Context, owner, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.syncErr != nil {
		return f.syncErr
	}
	f.synced = append(f.synced, owner+"/"+name)
	return nil
}

func (f *fakeDestination) CreateIssue(_ context.Context, owner, repo string, issue model.Issue) error {
	if f.issueErr != nil {
		if err := f.issueErr(issue); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.issues = append(f.issues, owner+"/"+repo+"#"+issue.Title)
	return nil
}

func (f *fakeDestination) mirroredNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.mirrored))
	for _, m := range f.mirrored {
		names = append(names, m.Owner+"/"+m.Name)
	}
	return names
}

// --- Fixtures ---

func testConfig(id string) model.Configuration {
	cfg := model.Configuration{
		ID:       id,
		UserID:   "user-1",
		Name:     "config " + id,
		IsActive: true,
		GitHub:   model.GitHubConfig{Username: "octocat", Token: "ghp_source"},
		Gitea:    model.GiteaConfig{URL: "https://gitea.example.com", Token: "gitea-token"},
	}
	cfg.ApplyDefaults()
	return cfg
}

func sourceRepo(fullName string) model.Repository {
	owner, name, _ := strings.Cut(fullName, "/")
	return model.Repository{
		FullName:  fullName,
		Name:      name,
		Owner:     owner,
		URL:       "https://github.com/" + fullName,
		CloneURL:  "https://github.com/" + fullName + ".git",
		HasIssues: true,
	}
}

func storedRepo(configID, id, fullName string, status model.RepoStatus) model.Repository {
	r := sourceRepo(fullName)
	r.ID = id
	r.ConfigID = configID
	r.Status = status
	return r
}

// harness wires the application services over in-memory stores and fake providers.
type harness struct {
	configs *memConfigStore
	repos   *memRepoStore
	orgs    *memOrgStore
	jobs    *memJobStore
	source  *fakeSource
	dest    *fakeDestination
	clients *application.ClientProvider
	syncer  *application.SyncService
	mirror  *application.MirrorService
	jobSvc  *application.JobService
}

func newHarness(t *testing.T, cfg model.Configuration, repos ...model.Repository) *harness {
	t.Helper()

	h := &harness{
		configs: newMemConfigStore(cfg),
		repos:   newMemRepoStore(repos...),
		orgs:    newMemOrgStore(),
		source:  &fakeSource{},
		dest:    newFakeDestination(),
	}
	h.jobs = newMemJobStore(h.repos)
	h.clients = application.NewClientProvider(
		func(string) driven.SourceProvider { return h.source },
		func(context.Context, string, string) (driven.DestinationProvider, error) { return h.dest, nil },
	)
	h.syncer = application.NewSyncService(h.configs, h.repos, h.orgs, h.clients, time.Second)
	h.mirror = application.NewMirrorService(h.repos, h.jobs, h.clients, time.Second)
	h.jobSvc = application.NewJobService(h.configs, h.repos, h.jobs, h.mirror)
	t.Cleanup(h.jobSvc.Close)

	return h
}

// waitTerminal waits for a job to reach a terminal status and returns it.
func (h *harness) waitTerminal(t *testing.T, jobID string) *model.MirrorJob {
	t.Helper()

	require.NoError(t, h.jobSvc.Wait(context.Background(), jobID))
	job, err := h.jobs.Get(context.Background(), jobID)
	require.NoError(t, err)
	require.True(t, job.Status.IsTerminal(), "job status %s", job.Status)
	return job
}

func newSyncService(h *harness) *application.SyncService {
	return application.NewSyncService(h.configs, h.repos, h.orgs, h.clients, time.Second)
}
