// Package gitea implements the DestinationProvider port using the Gitea SDK.
package gitea

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"code.gitea.io/sdk/gitea"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.DestinationProvider = (*Client)(nil)

const labelPageSize = 50

// Client implements the driven.DestinationProvider port for one forge URL and
// token. The SDK client carries a single request context, so calls are
// serialized under mu.
type Client struct {
	mu  sync.Mutex
	sdk *gitea.Client

	login  string                      // Authenticated user, resolved lazily.
	labels map[string]map[string]int64 // "owner/repo" -> label name -> id.
}

// NewClient connects to the forge at baseURL. The SDK probes the server
// version while constructing, so an unreachable forge fails here with
// ErrConnection.
func NewClient(ctx context.Context, baseURL, token string) (*Client, error) {
	return NewClientWithHTTPClient(ctx, http.DefaultClient, baseURL, token)
}

// NewClientWithHTTPClient creates a Client with a custom http.Client.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(ctx context.Context, httpClient *http.Client, baseURL, token string) (*Client, error) {
	sdk, err := gitea.NewClient(strings.TrimSuffix(baseURL, "/"),
		gitea.SetToken(token),
		gitea.SetHTTPClient(httpClient),
		gitea.SetContext(ctx),
	)
	if err != nil {
		return nil, classify("connect to "+baseURL, nil, err)
	}

	return &Client{sdk: sdk, labels: make(map[string]map[string]int64)}, nil
}

// TestConnection returns the identity the token authenticates as.
func (c *Client) TestConnection(ctx context.Context) (model.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sdk.SetContext(ctx)

	user, resp, err := c.sdk.GetMyUserInfo()
	if err != nil {
		return model.Identity{}, classify("get authenticated user", resp, err)
	}
	c.login = user.UserName

	return model.Identity{Login: user.UserName, Name: user.FullName, AvatarURL: user.AvatarURL}, nil
}

// EnsureOrganization returns the organization, creating it if the forge
// reports it missing. A creation conflict from a concurrent creator is
// resolved by reading the organization again.
func (c *Client) EnsureOrganization(ctx context.Context, name string, visibility model.Visibility) (*model.DestinationOrg, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sdk.SetContext(ctx)

	org, resp, err := c.sdk.GetOrg(name)
	if err == nil {
		return mapOrg(org), nil
	}
	if statusOf(resp) != http.StatusNotFound {
		return nil, classify("get organization "+name, resp, err)
	}

	if visibility == "" {
		visibility = model.VisibilityPublic
	}
	slog.Info("creating destination organization", "org", name, "visibility", visibility)

	org, resp, err = c.sdk.CreateOrg(gitea.CreateOrgOption{
		Name:       name,
		Visibility: gitea.VisibleType(visibility),
	})
	if err == nil {
		return mapOrg(org), nil
	}
	if status := statusOf(resp); status != http.StatusConflict && status != http.StatusUnprocessableEntity {
		return nil, classify("create organization "+name, resp, err)
	}

	org, resp, err = c.sdk.GetOrg(name)
	if err != nil {
		return nil, classify("get organization "+name, resp, err)
	}
	return mapOrg(org), nil
}

// GetRepository returns a destination repository, or a ProviderError of kind
// ErrNotFound.
func (c *Client) GetRepository(ctx context.Context, owner, name string) (*model.DestinationRepo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sdk.SetContext(ctx)

	repo, resp, err := c.sdk.GetRepo(owner, name)
	if err != nil {
		return nil, classify("get repository "+owner+"/"+name, resp, err)
	}
	return mapRepo(repo), nil
}

// MirrorRepository triggers the forge's migrate endpoint with mirror enabled.
// An empty req.Owner places the mirror under the authenticated user. Label
// ids cached for the same owner and name are forgotten.
func (c *Client) MirrorRepository(ctx context.Context, req model.MirrorRequest) (*model.DestinationRepo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sdk.SetContext(ctx)

	owner := req.Owner
	if owner == "" {
		login, err := c.authenticatedLogin()
		if err != nil {
			return nil, err
		}
		owner = login
	}

	repo, resp, err := c.sdk.MigrateRepo(gitea.MigrateRepoOption{
		RepoName:    req.Name,
		RepoOwner:   owner,
		CloneAddr:   req.CloneURL,
		Service:     gitea.GitServiceGithub,
		AuthToken:   req.AuthToken,
		Mirror:      true,
		Private:     req.IsPrivate,
		Description: req.Description,
	})
	if err != nil {
		return nil, classify(fmt.Sprintf("mirror %s into %s/%s", req.CloneURL, owner, req.Name), resp, err)
	}

	// A repository recreated under the same name has new label ids.
	delete(c.labels, owner+"/"+req.Name)

	slog.Debug("gitea mirror accepted", "owner", owner, "repo", req.Name, "id", repo.ID)
	return mapRepo(repo), nil
}

// SyncMirror asks the forge to pull the latest changes into an existing mirror.
func (c *Client) SyncMirror(ctx context.Context, owner, name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sdk.SetContext(ctx)

	resp, err := c.sdk.MirrorSync(owner, name)
	if err != nil {
		return classify("sync mirror "+owner+"/"+name, resp, err)
	}
	return nil
}

// CreateIssue creates one issue with the provenance prefix. Labels are
// resolved to destination label ids and created when missing.
func (c *Client) CreateIssue(ctx context.Context, owner, repo string, issue model.Issue) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sdk.SetContext(ctx)

	labelIDs, err := c.resolveLabels(owner, repo, issue.Labels)
	if err != nil {
		return err
	}

	_, resp, err := c.sdk.CreateIssue(owner, repo, gitea.CreateIssueOption{
		Title:  issue.Title,
		Body:   fmt.Sprintf(driven.IssueProvenanceFormat, issue.Author) + issue.Body,
		Labels: labelIDs,
		Closed: issue.IsClosed(),
	})
	if err != nil {
		return classify(fmt.Sprintf("create issue #%d in %s/%s", issue.Number, owner, repo), resp, err)
	}
	return nil
}

// authenticatedLogin must be called with mu held.
func (c *Client) authenticatedLogin() (string, error) {
	if c.login != "" {
		return c.login, nil
	}
	user, resp, err := c.sdk.GetMyUserInfo()
	if err != nil {
		return "", classify("get authenticated user", resp, err)
	}
	c.login = user.UserName
	return c.login, nil
}

// resolveLabels must be called with mu held.
func (c *Client) resolveLabels(owner, repo string, labels []model.Label) ([]int64, error) {
	if len(labels) == 0 {
		return nil, nil
	}

	key := owner + "/" + repo
	known, ok := c.labels[key]
	if !ok {
		known = make(map[string]int64)
		for page := 1; ; page++ {
			batch, resp, err := c.sdk.ListRepoLabels(owner, repo, gitea.ListLabelsOptions{
				ListOptions: gitea.ListOptions{Page: page, PageSize: labelPageSize},
			})
			if err != nil {
				return nil, classify("list labels of "+key, resp, err)
			}
			for _, l := range batch {
				known[l.Name] = l.ID
			}
			if len(batch) < labelPageSize {
				break
			}
		}
		c.labels[key] = known
	}

	ids := make([]int64, 0, len(labels))
	for _, l := range labels {
		if id, ok := known[l.Name]; ok {
			ids = append(ids, id)
			continue
		}

		color := l.Color
		if color == "" {
			color = "ededed"
		}
		created, resp, err := c.sdk.CreateLabel(owner, repo, gitea.CreateLabelOption{
			Name:  l.Name,
			Color: "#" + strings.TrimPrefix(color, "#"),
		})
		if err != nil {
			return nil, classify(fmt.Sprintf("create label %q in %s", l.Name, key), resp, err)
		}
		known[created.Name] = created.ID
		ids = append(ids, created.ID)
	}

	return ids, nil
}

func mapOrg(o *gitea.Organization) *model.DestinationOrg {
	return &model.DestinationOrg{
		ID:         o.ID,
		Name:       o.UserName,
		Visibility: model.Visibility(o.Visibility),
	}
}

func mapRepo(r *gitea.Repository) *model.DestinationRepo {
	repo := &model.DestinationRepo{
		ID:       r.ID,
		Name:     r.Name,
		FullName: r.FullName,
		IsMirror: r.Mirror,
		IsEmpty:  r.Empty,
		HTMLURL:  r.HTMLURL,
	}
	if r.Owner != nil {
		repo.Owner = r.Owner.UserName
	}
	return repo
}
