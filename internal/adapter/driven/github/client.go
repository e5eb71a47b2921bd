// Package github implements the SourceProvider port using the go-github library.
package github

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"
	"golang.org/x/oauth2"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.SourceProvider = (*Client)(nil)

const perPage = 100

// Client implements the driven.SourceProvider port for one access token.
type Client struct {
	gh *gh.Client
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. oauth2 (static bearer token)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. httpcache (ETag-based conditional request caching)
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)

	httpClient := &http.Client{
		Transport: &oauth2.Transport{
			Source: oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}),
			Base:   rateLimitClient.Transport,
		},
	}

	return &Client{gh: gh.NewClient(httpClient)}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// TestConnection returns the identity the token authenticates as.
func (c *Client) TestConnection(ctx context.Context) (model.Identity, error) {
	user, resp, err := c.gh.Users.Get(ctx, "")
	if err != nil {
		return model.Identity{}, classify("get authenticated user", resp, err)
	}
	logRateLimit(resp, "user", 0, 1)

	return model.Identity{
		Login:     user.GetLogin(),
		Name:      user.GetName(),
		AvatarURL: user.GetAvatarURL(),
	}, nil
}

// ListUserRepositories retrieves every repository owned by the authenticated
// user, most recently updated first.
func (c *Client) ListUserRepositories(ctx context.Context, cfg model.GitHubConfig) ([]model.Repository, error) {
	opts := &gh.RepositoryListByAuthenticatedUserOptions{
		Affiliation: "owner",
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	var all []model.Repository
	for {
		repos, resp, err := c.gh.Repositories.ListByAuthenticatedUser(ctx, opts)
		if err != nil {
			return nil, classify(fmt.Sprintf("list user repositories (page %d)", opts.Page), resp, err)
		}

		logRateLimit(resp, "user/repos", opts.Page, len(repos))
		all = appendFiltered(all, repos, cfg, false)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return nonNilRepos(all), nil
}

// ListStarredRepositories retrieves the repositories starred by the
// authenticated user. Every result carries IsStarred.
func (c *Client) ListStarredRepositories(ctx context.Context, cfg model.GitHubConfig) ([]model.Repository, error) {
	opts := &gh.ActivityListStarredOptions{
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	var all []model.Repository
	for {
		starred, resp, err := c.gh.Activity.ListStarred(ctx, "", opts)
		if err != nil {
			return nil, classify(fmt.Sprintf("list starred repositories (page %d)", opts.Page), resp, err)
		}

		logRateLimit(resp, "user/starred", opts.Page, len(starred))

		repos := make([]*gh.Repository, 0, len(starred))
		for _, s := range starred {
			if s.Repository != nil {
				repos = append(repos, s.Repository)
			}
		}
		all = appendFiltered(all, repos, cfg, true)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return nonNilRepos(all), nil
}

// ListOrganizationRepositories retrieves the repositories of one organization.
func (c *Client) ListOrganizationRepositories(ctx context.Context, org string, cfg model.GitHubConfig) ([]model.Repository, error) {
	opts := &gh.RepositoryListByOrgOptions{
		Sort:        "updated",
		Direction:   "desc",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}

	var all []model.Repository
	for {
		repos, resp, err := c.gh.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			return nil, classify(fmt.Sprintf("list repositories of %s (page %d)", org, opts.Page), resp, err)
		}

		logRateLimit(resp, "orgs/"+org+"/repos", opts.Page, len(repos))
		all = appendFiltered(all, repos, cfg, false)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return nonNilRepos(all), nil
}

// GetRepository retrieves one repository by "owner/repo". No fork or private
// filtering is applied.
func (c *Client) GetRepository(ctx context.Context, fullName string) (*model.Repository, error) {
	owner, repo, err := splitRepo(fullName)
	if err != nil {
		return nil, err
	}

	r, resp, err := c.gh.Repositories.Get(ctx, owner, repo)
	if err != nil {
		return nil, classify("get repository "+fullName, resp, err)
	}
	logRateLimit(resp, "repos/"+fullName, 0, 1)

	mapped := mapRepository(r, false)
	return &mapped, nil
}

// ListUserOrganizations retrieves the organizations the authenticated user
// belongs to, typed member.
func (c *Client) ListUserOrganizations(ctx context.Context) ([]model.Organization, error) {
	opts := &gh.ListOptions{PerPage: perPage}

	orgs := []model.Organization{}
	for {
		page, resp, err := c.gh.Organizations.List(ctx, "", opts)
		if err != nil {
			return nil, classify(fmt.Sprintf("list organizations (page %d)", opts.Page), resp, err)
		}

		logRateLimit(resp, "user/orgs", opts.Page, len(page))
		for _, o := range page {
			orgs = append(orgs, mapOrganization(o, model.OrgTypeMember))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return orgs, nil
}

// GetOrganization retrieves a public organization by login, typed public.
func (c *Client) GetOrganization(ctx context.Context, org string) (*model.Organization, error) {
	o, resp, err := c.gh.Organizations.Get(ctx, org)
	if err != nil {
		return nil, classify("get organization "+org, resp, err)
	}
	logRateLimit(resp, "orgs/"+org, 0, 1)

	mapped := mapOrganization(o, model.OrgTypePublic)
	return &mapped, nil
}

// ListIssues retrieves open and closed issues of a repository. Pull requests,
// which the issues endpoint also returns, are dropped.
func (c *Client) ListIssues(ctx context.Context, owner, repo string) ([]model.Issue, error) {
	opts := &gh.IssueListByRepoOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "asc",
		ListOptions: gh.ListOptions{PerPage: perPage},
	}
	fullName := owner + "/" + repo

	issues := []model.Issue{}
	for {
		page, resp, err := c.gh.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return nil, classify(fmt.Sprintf("list issues of %s (page %d)", fullName, opts.ListOptions.Page), resp, err)
		}

		logRateLimit(resp, "repos/"+fullName+"/issues", opts.ListOptions.Page, len(page))
		for _, issue := range page {
			if issue.IsPullRequest() {
				continue
			}
			issues = append(issues, mapIssue(issue))
		}

		if resp.NextPage == 0 {
			break
		}
		opts.ListOptions.Page = resp.NextPage
	}

	return issues, nil
}

// appendFiltered maps repos and drops forks and private repositories the
// configuration does not ask for.
func appendFiltered(dst []model.Repository, repos []*gh.Repository, cfg model.GitHubConfig, starred bool) []model.Repository {
	for _, r := range repos {
		if cfg.SkipForks && r.GetFork() {
			continue
		}
		if r.GetPrivate() && !cfg.PrivateRepositories {
			continue
		}
		dst = append(dst, mapRepository(r, starred))
	}
	return dst
}

// mapRepository converts a go-github Repository to a domain model Repository.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapRepository(r *gh.Repository, starred bool) model.Repository {
	var organization string
	if r.GetOwner().GetType() == "Organization" {
		organization = r.GetOwner().GetLogin()
	}

	return model.Repository{
		FullName:     r.GetFullName(),
		Name:         r.GetName(),
		Owner:        r.GetOwner().GetLogin(),
		Organization: organization,
		Description:  r.GetDescription(),
		URL:          r.GetHTMLURL(),
		CloneURL:     r.GetCloneURL(),
		IsPrivate:    r.GetPrivate(),
		IsFork:       r.GetFork(),
		HasIssues:    r.GetHasIssues(),
		IsStarred:    starred,
		Status:       model.RepoStatusPending,
	}
}

func mapOrganization(o *gh.Organization, orgType model.OrgType) model.Organization {
	return model.Organization{
		Name:            o.GetLogin(),
		Type:            orgType,
		AvatarURL:       o.GetAvatarURL(),
		Description:     o.GetDescription(),
		IsIncluded:      true,
		RepositoryCount: int(o.GetPublicRepos()),
	}
}

func mapIssue(i *gh.Issue) model.Issue {
	labels := make([]model.Label, 0, len(i.Labels))
	for _, l := range i.Labels {
		if l.GetName() == "" {
			continue
		}
		labels = append(labels, model.Label{Name: l.GetName(), Color: l.GetColor()})
	}

	var closedAt *time.Time
	if i.ClosedAt != nil {
		t := i.GetClosedAt().Time
		closedAt = &t
	}

	return model.Issue{
		Number:    i.GetNumber(),
		Title:     i.GetTitle(),
		Body:      i.GetBody(),
		State:     i.GetState(),
		Author:    i.GetUser().GetLogin(),
		Labels:    labels,
		CreatedAt: i.GetCreatedAt().Time,
		UpdatedAt: i.GetUpdatedAt().Time,
		ClosedAt:  closedAt,
	}
}

// logRateLimit logs the GitHub API rate limit status after each call.
func logRateLimit(resp *gh.Response, endpoint string, page, count int) {
	if resp == nil {
		return
	}

	slog.Debug("github api call",
		"endpoint", endpoint,
		"page", page,
		"count", count,
		"rate_remaining", resp.Rate.Remaining,
		"rate_limit", resp.Rate.Limit,
	)

	if resp.Rate.Limit > 0 && resp.Rate.Remaining < 100 {
		slog.Warn("github rate limit low",
			"remaining", resp.Rate.Remaining,
			"reset_in", time.Until(resp.Rate.Reset.Time).Round(time.Second),
		)
	}
}

func nonNilRepos(repos []model.Repository) []model.Repository {
	if repos == nil {
		return []model.Repository{}
	}
	return repos
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo: %w", fullName, driven.ErrValidation)
	}
	return parts[0], parts[1], nil
}
