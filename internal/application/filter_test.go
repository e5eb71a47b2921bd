package application_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ericfisherdev/giteamirror/internal/application"
	"github.com/ericfisherdev/giteamirror/internal/domain/model"
)

func TestMatchPattern(t *testing.T) {
	tests := []struct {
		name    string
		subject string
		pattern string
		want    bool
	}{
		{name: "owner wildcard", subject: "foo/bar", pattern: "foo/*", want: true},
		{name: "other owner", subject: "foo/bar", pattern: "baz/*", want: false},
		{name: "lone star", subject: "anything/at-all", pattern: "*", want: true},
		{name: "lone star empty", subject: "", pattern: "*", want: true},
		{name: "literal", subject: "foo/bar", pattern: "foo/bar", want: true},
		{name: "literal is anchored", subject: "foo/barn", pattern: "foo/bar", want: false},
		{name: "suffix", subject: "user/private-repo", pattern: "*/private-repo", want: true},
		{name: "suffix mismatch", subject: "user/public-repo", pattern: "*/private-repo", want: false},
		{name: "star crosses slash", subject: "a/b/c", pattern: "a*c", want: true},
		{name: "star matches empty", subject: "foo/", pattern: "foo/*", want: true},
		{name: "middle segments", subject: "acme/api-gateway-v2", pattern: "acme/*gate*v2", want: true},
		{name: "middle out of order", subject: "acme/v2-gateway", pattern: "acme/*gate*v2", want: false},
		{name: "prefix and suffix overlap", subject: "ab", pattern: "ab*b", want: false},
		{name: "question mark is literal", subject: "foo/bar", pattern: "foo/ba?", want: false},
		{name: "brackets are literal", subject: "foo/[x]", pattern: "foo/[x]", want: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, application.MatchPattern(tt.subject, tt.pattern))
		})
	}
}

func TestSelected_ExcludeWins(t *testing.T) {
	assert.False(t, application.Selected("acme/secret", []string{"acme/*"}, []string{"*/secret"}))
	assert.True(t, application.Selected("acme/public", []string{"acme/*"}, []string{"*/secret"}))
}

func TestSelected_WildcardIncludeMeansAll(t *testing.T) {
	assert.True(t, application.Selected("any/repo", []string{"*"}, nil))
	assert.True(t, application.Selected("any/repo", nil, nil))
	assert.False(t, application.Selected("any/repo", []string{"other/*"}, nil))
}

func TestFilterRepositories_PreservesOrder(t *testing.T) {
	repos := []model.Repository{
		{FullName: "user/zeta"},
		{FullName: "user/private-repo"},
		{FullName: "user/alpha"},
	}

	got := application.FilterRepositories(repos, []string{"*"}, []string{"*/private-repo"})

	assert.Equal(t, []model.Repository{{FullName: "user/zeta"}, {FullName: "user/alpha"}}, got)
}
