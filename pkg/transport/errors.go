package transport

import "errors"

// Handshake and connection errors.
var (
	// ErrCannotConnect indicates the socket could not be opened.
	ErrCannotConnect = errors.New("cannot connect to hub")

	// ErrInvalidAuth indicates the hub rejected the credential.
	ErrInvalidAuth = errors.New("invalid authentication")

	// ErrConnectionLost indicates the socket closed or failed after opening.
	ErrConnectionLost = errors.New("connection lost")

	// ErrHostNotConfigured indicates no usable base URL was configured.
	ErrHostNotConfigured = errors.New("hub host not configured")

	// ErrInsecureSchemeMismatch indicates the configured scheme does not
	// match what the hub serves (plain ws against a TLS-only hub or the
	// reverse).
	ErrInsecureSchemeMismatch = errors.New("insecure scheme mismatch")

	// ErrMalformedFrame indicates a frame that is not valid JSON or has no type.
	ErrMalformedFrame = errors.New("malformed frame")
)

// IsRetryable reports whether a connect attempt that failed with err may be
// retried.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	switch {
	case errors.Is(err, ErrInvalidAuth),
		errors.Is(err, ErrHostNotConfigured),
		errors.Is(err, ErrInsecureSchemeMismatch):
		return false
	}
	return true
}
