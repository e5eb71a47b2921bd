package gitea

import (
	"net/http"

	"code.gitea.io/sdk/gitea"

	"github.com/ericfisherdev/giteamirror/internal/domain/port/driven"
)

// classify wraps an SDK failure in a driven.ProviderError. Without a response
// the forge was never reached.
func classify(op string, resp *gitea.Response, err error) error {
	pe := &driven.ProviderError{Op: op, Err: err, StatusCode: statusOf(resp)}

	switch pe.StatusCode {
	case 0:
		pe.Kind = driven.ErrConnection
	case http.StatusUnauthorized, http.StatusForbidden:
		pe.Kind = driven.ErrAuthentication
	case http.StatusNotFound:
		pe.Kind = driven.ErrNotFound
	case http.StatusConflict:
		pe.Kind = driven.ErrConflict
	case http.StatusUnprocessableEntity, http.StatusBadRequest:
		pe.Kind = driven.ErrValidation
	case http.StatusTooManyRequests:
		pe.Kind = driven.ErrRateLimit
	default:
		pe.Kind = driven.ErrConnection
	}

	return pe
}

func statusOf(resp *gitea.Response) int {
	if resp == nil || resp.Response == nil {
		return 0
	}
	return resp.StatusCode
}
