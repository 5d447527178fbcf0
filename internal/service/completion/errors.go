package completion

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies why a completion call failed.
type Kind string

const (
	KindConfiguration     Kind = "ConfigurationError"
	KindTransport         Kind = "TransportError"
	KindUpstream          Kind = "UpstreamError"
	KindMalformedResponse Kind = "MalformedResponseError"
)

// Error is the only error type returned by Client.Complete.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf extracts the failure kind from err, or "" when err is not a completion error.
func KindOf(err error) Kind {
	var cerr *Error
	if errors.As(err, &cerr) {
		return cerr.Kind
	}
	return ""
}

// ErrMissingAPIKey is wrapped by configuration errors raised before any request is sent.
var ErrMissingAPIKey = errors.New("completion api key is not configured")

func statusDescription(code int) string {
	if text := http.StatusText(code); text != "" {
		return fmt.Sprintf("upstream request failed: %s", text)
	}
	return "upstream request failed"
}
