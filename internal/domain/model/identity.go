package model

// Identity is the account a provider token authenticates as.
type Identity struct {
	Login     string
	Name      string
	AvatarURL string
}

// DestinationOrg is an organization on the destination forge.
type DestinationOrg struct {
	ID         int64
	Name       string
	Visibility Visibility
}

// DestinationRepo is a repository on the destination forge.
type DestinationRepo struct {
	ID       int64
	Owner    string
	Name     string
	FullName string
	IsMirror bool
	IsEmpty  bool
	HTMLURL  string
}

// MirrorRequest asks the destination forge to clone a source repository as a
// pull mirror. Owner is empty for the authenticated identity's namespace.
type MirrorRequest struct {
	CloneURL    string
	Name        string
	Owner       string
	Description string
	IsPrivate   bool
	AuthToken   string // Source token for private repositories.
}
