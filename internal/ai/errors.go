package ai

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the provider is not configured (missing key).
	ErrUnavailable = errors.New("ai provider unavailable")
	// ErrNoChoices means the provider answered 2xx but carried no usable
	// generation.
	ErrNoChoices = errors.New("response has no choices")
	// ErrBadResponse means the provider body could not be parsed.
	ErrBadResponse = errors.New("malformed provider response")
)

// StatusError is a non-success HTTP status from a provider. Callers treat it
// as a soft failure: the request reached the provider and the provider
// answered, just not with a generation.
type StatusError struct {
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("provider request failed: %s: %s", e.Status, e.Body)
}

// IsSoftFailure reports whether err is a provider answer we can surface
// in-band (error text, zero vector) instead of failing the caller. Transport
// errors and timeouts are not soft.
func IsSoftFailure(err error) bool {
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return true
	}
	return errors.Is(err, ErrNoChoices) || errors.Is(err, ErrBadResponse) || errors.Is(err, ErrUnavailable)
}
