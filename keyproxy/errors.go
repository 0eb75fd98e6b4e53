package keyproxy

import (
	"errors"
	"fmt"
	"net/http"
)

// GenericErrorMessage is shown to users for transport failures; the cause is
// only logged.
const GenericErrorMessage = "An error occurred"

var (
	// ErrPasswordMismatch is raised locally when password and confirmation
	// differ. No request is sent.
	ErrPasswordMismatch = &ValidationError{Message: "Passwords do not match"}

	ErrSecretNotFound   = errors.New("secret not found")
	ErrFetchSecret      = errors.New("failed to fetch secret")
	ErrMissingToken     = errors.New("login response did not include a token")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrSubmitInFlight   = errors.New("a request is already in flight")
	ErrControllerClosed = errors.New("auth controller is closed")
	ErrProbeUnsupported = errors.New("kms status probe is not supported for this provider")
)

// ValidationError is a local input error caught before any network call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// RemoteError is a non-2xx answer from the backend. Its message is the
// server-supplied error text when one was sent.
type RemoteError struct {
	Op         string
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	if t := http.StatusText(e.StatusCode); t != "" {
		return t
	}
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.StatusCode)
}

// TransportError covers requests that produced no usable response: network
// failures and undecodable bodies.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return e.Op + ": " + e.Err.Error() }

func (e *TransportError) Unwrap() error { return e.Err }

// UserMessage renders err as the single line shown above a form.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		verr *ValidationError
		rerr *RemoteError
		terr *TransportError
	)
	switch {
	case errors.As(err, &verr):
		return verr.Message
	case errors.As(err, &rerr):
		return rerr.Error()
	case errors.As(err, &terr):
		return GenericErrorMessage
	}
	return err.Error()
}
