package driven

import (
	"context"

	"github.com/ericfisherdev/giteamirror/internal/domain/model"
)

// IssueProvenanceFormat prefixes the body of every replicated issue so mirrored
// issues can be told apart from native ones. The argument is the original author.
const IssueProvenanceFormat = "*Mirrored from GitHub*\n\nOriginal issue by @%s\n\n"

// DestinationProvider defines the driven port for the destination forge (Gitea).
// Implementations are bound to one forge URL and token.
type DestinationProvider interface {
	// TestConnection returns the identity the token authenticates as. Fails
	// with ErrConnection on network failure and ErrAuthentication on bad credentials.
	TestConnection(ctx context.Context) (model.Identity, error)

	// EnsureOrganization returns the named organization, creating it only if
	// absent. It never fails because the organization already exists.
	EnsureOrganization(ctx context.Context, name string, visibility model.Visibility) (*model.DestinationOrg, error)

	// GetRepository returns a destination repository, or ErrNotFound.
	GetRepository(ctx context.Context, owner, name string) (*model.DestinationRepo, error)

	// MirrorRepository asks the forge to clone a repository as a pull mirror.
	// Success means the request was accepted, not that the clone finished.
	MirrorRepository(ctx context.Context, req model.MirrorRequest) (*model.DestinationRepo, error)

	// SyncMirror asks the forge to refresh an existing pull mirror.
	SyncMirror(ctx context.Context, owner, name string) error

	// CreateIssue creates one issue. The body is prefixed with IssueProvenanceFormat.
	CreateIssue(ctx context.Context, owner, repo string, issue model.Issue) error
}
