package github

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"

	gh "github.com/google/go-github/v82/github"

	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

// classify wraps a go-github failure in a driven.ProviderError whose Kind is
// one of the port's taxonomy sentinels.
func classify(op string, resp *gh.Response, err error) error {
	pe := &driven.ProviderError{Op: op, Err: err}
	if resp != nil && resp.Response != nil {
		pe.StatusCode = resp.StatusCode
	}

	var (
		rateErr  *gh.RateLimitError
		abuseErr *gh.AbuseRateLimitError
		apiErr   *gh.ErrorResponse
		netErr   net.Error
	)

	switch {
	case errors.As(err, &rateErr), errors.As(err, &abuseErr):
		pe.Kind = driven.ErrRateLimit
	case errors.As(err, &apiErr) && apiErr.Response != nil:
		pe.StatusCode = apiErr.Response.StatusCode
		pe.Kind = kindForStatus(apiErr.Response.StatusCode, apiErr.Message)
	case errors.Is(err, context.DeadlineExceeded), errors.As(err, &netErr):
		pe.Kind = driven.ErrConnection
	case pe.StatusCode != 0:
		pe.Kind = kindForStatus(pe.StatusCode, "")
	default:
		pe.Kind = driven.ErrConnection
	}

	return pe
}

func kindForStatus(status int, message string) error {
	switch {
	case status == http.StatusUnauthorized:
		return driven.ErrAuthentication
	case status == http.StatusForbidden && strings.Contains(strings.ToLower(message), "rate limit"):
		return driven.ErrRateLimit
	case status == http.StatusForbidden:
		return driven.ErrAuthentication
	case status == http.StatusTooManyRequests:
		return driven.ErrRateLimit
	case status == http.StatusNotFound:
		return driven.ErrNotFound
	case status == http.StatusConflict:
		return driven.ErrConflict
	case status == http.StatusUnprocessableEntity:
		return driven.ErrValidation
	default:
		return driven.ErrConnection
	}
}
