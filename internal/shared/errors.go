package shared

import (
	"fmt"
	"net/http"
)

var (
	ErrNotImplemented = fmt.Errorf("not implemented")

	// Configuration errors
	ErrMissingConfig      = fmt.Errorf("configuration not found")
	ErrInvalidConfig      = fmt.Errorf("invalid configuration")
	ErrMissingCredentials = fmt.Errorf("missing credentials")
	ErrInvalidCredentials = fmt.Errorf("invalid credentials")

	// Token lifecycle errors
	ErrExternalAuth     = fmt.Errorf("external authorization failed")
	ErrSessionExpired   = fmt.Errorf("session expired")
	ErrRequestFailed    = fmt.Errorf("request failed")
	ErrNetwork          = fmt.Errorf("network error")
	ErrLinkingFailure   = fmt.Errorf("identity linking failed")
	ErrNotAuthenticated = fmt.Errorf("not authenticated")
	ErrNoRefreshToken   = fmt.Errorf("no refresh token available")
	ErrNoToken          = fmt.Errorf("no token stored")
	ErrInvalidState     = fmt.Errorf("invalid state parameter")
	ErrInvalidSession   = fmt.Errorf("invalid session token")
	ErrTimeout          = fmt.Errorf("operation timed out")
	ErrInvalidPhase     = fmt.Errorf("invalid auth state transition")

	// Account errors
	ErrAccountExists   = fmt.Errorf("account already exists")
	ErrAccountNotFound = fmt.Errorf("account not found")

	// Input validation errors
	ErrInvalidInput    = fmt.Errorf("invalid input")
	ErrMissingArgument = fmt.Errorf("missing required argument")
	ErrInvalidArgument = fmt.Errorf("invalid argument")
)

// ProviderError is returned when the OAuth provider rejects a code or refresh-token exchange.
type ProviderError struct {
	Status      int
	Code        string
	Description string
}

func (e *ProviderError) Error() string {
	switch {
	case e.Description != "":
		return fmt.Sprintf("%v: %s", ErrExternalAuth, e.Description)
	case e.Code != "":
		return fmt.Sprintf("%v: %s", ErrExternalAuth, e.Code)
	default:
		return fmt.Sprintf("%v: status %d", ErrExternalAuth, e.Status)
	}
}

func (e *ProviderError) Unwrap() error { return ErrExternalAuth }

// RequestError is a non-2xx response from the provider API that does not trigger a refresh.
type RequestError struct {
	Status  int
	Message string
}

func (e *RequestError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%v: status %d %s", ErrRequestFailed, e.Status, http.StatusText(e.Status))
	}
	return fmt.Sprintf("%v: status %d: %s", ErrRequestFailed, e.Status, e.Message)
}

func (e *RequestError) Unwrap() error { return ErrRequestFailed }
