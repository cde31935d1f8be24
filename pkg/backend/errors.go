package backend

import "errors"

// Sentinel errors for the backend response taxonomy. Callers classify
// with errors.Is; only ErrUnauthorized is authoritative about the
// session, everything else leaves session state alone.
var (
	// ErrUnauthorized means the backend authoritatively rejected the
	// token (HTTP 401). The client's token source has already been
	// invalidated by the time this error is returned.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden means the caller lacks permission (HTTP 403).
	ErrForbidden = errors.New("permission denied")

	// ErrRateLimited means the backend throttled the request (HTTP 429).
	ErrRateLimited = errors.New("rate limited")

	// ErrServer means the backend failed internally (HTTP 5xx).
	ErrServer = errors.New("server error")

	// ErrNetwork means the request never produced an authoritative
	// response: connection failure, DNS error, or timeout. The outcome
	// of the underlying operation is unknown.
	ErrNetwork = errors.New("network error")

	// ErrNoToken means an authenticated call was attempted with no
	// stored token.
	ErrNoToken = errors.New("no authentication token")
)

// IsTransient reports whether the error is retryable without any state
// change: the backend was unreachable, throttling, or failing, but did
// not reject the session.
func IsTransient(err error) bool {
	return errors.Is(err, ErrNetwork) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrServer)
}
