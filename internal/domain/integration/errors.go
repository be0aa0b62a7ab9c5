package integration

import (
	"errors"
	"fmt"
)

var (
	// ErrUnsupportedIntegration signals an unknown provider name.
	ErrUnsupportedIntegration = errors.New("integration: unsupported integration")
	// ErrInvalidState indicates a state payload missing required fields.
	ErrInvalidState = errors.New("integration: invalid state data")
	// ErrStateMismatch indicates the stored nonce is absent or differs from
	// the one presented on callback.
	ErrStateMismatch = errors.New("integration: state does not match")
	// ErrMalformedState indicates the state token could not be decoded.
	ErrMalformedState = errors.New("integration: malformed state token")
	// ErrCredentialsNotFound signals the credential slot is empty or expired.
	ErrCredentialsNotFound = errors.New("integration: no credentials found")
	// ErrMalformedCredentials indicates stored credentials failed to decode.
	ErrMalformedCredentials = errors.New("integration: malformed credentials")
)

// TokenExchangeError carries the upstream response when a provider rejects
// the authorization code.
type TokenExchangeError struct {
	Provider Provider
	Status   int
	Body     string
}

func (e *TokenExchangeError) Error() string {
	return fmt.Sprintf("integration: token exchange with %s failed: status=%d body=%s", e.Provider, e.Status, e.Body)
}
