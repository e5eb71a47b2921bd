package driven

import (
	"context"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
)

// SourceProvider defines the driven port for the source code host (GitHub).
// Implementations are bound to one access token. Every list method exhausts
// pagination and applies the fork/private filtering of the given config, so
// callers always receive the complete result set for the requested scope.
type SourceProvider interface {
	// TestConnection returns the identity the token authenticates as.
	TestConnection(ctx context.Context) (model.Identity, error)

	// ListUserRepositories returns repositories owned by the authenticated
	// identity, most recently updated first.
	ListUserRepositories(ctx context.Context, cfg model.GitHubConfig) ([]model.Repository, error)
	// ListStarredRepositories returns starred repositories, always with IsStarred set.
	ListStarredRepositories(ctx context.Context, cfg model.GitHubConfig) ([]model.Repository, error)
	// ListOrganizationRepositories returns the repositories of one organization.
	ListOrganizationRepositories(ctx context.Context, org string, cfg model.GitHubConfig) ([]model.Repository, error)
	// GetRepository returns one repository by "owner/repo".
	GetRepository(ctx context.Context, fullName string) (*model.Repository, error)

	// ListUserOrganizations returns organizations the identity belongs to, typed member.
	ListUserOrganizations(ctx context.Context) ([]model.Organization, error)
	// GetOrganization returns a public organization by name, typed public.
	GetOrganization(ctx context.Context, org string) (*model.Organization, error)

	// ListIssues returns open and closed issues, excluding pull requests.
	ListIssues(ctx context.Context, owner, repo string) ([]model.Issue, error)
}
