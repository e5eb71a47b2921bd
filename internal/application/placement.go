package application

import "github.com/ericfisherdev/giteamirror/internal/domain/model"

// ResolveDestination returns the destination organization a repository is
// mirrored under, or "" for the authenticated user's own namespace.
// First match wins:
//  1. starred repositories go to gitea.starredReposOrg
//  2. organization repositories keep their organization when
//     github.preserveOrgStructure is set
//  3. gitea.organization
func ResolveDestination(repo model.Repository, cfg model.Configuration) string {
	switch {
	case repo.IsStarred && cfg.Gitea.StarredReposOrg != "":
		return cfg.Gitea.StarredReposOrg
	case repo.Organization != "" && cfg.GitHub.PreserveOrgStructure:
		return repo.Organization
	case cfg.Gitea.Organization != "":
		return cfg.Gitea.Organization
	default:
		return ""
	}
}
