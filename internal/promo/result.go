package promo

import "errors"

var (
	// ErrAuth wraps every login failure. Callers retry after a cooldown.
	ErrAuth = errors.New("login failed")

	// ErrTransport indicates a network failure or a response body that could not be parsed.
	ErrTransport = errors.New("transport error")
)

// Result is the interpreted outcome of a register-event call.
type Result int

const (
	UnknownError Result = iota
	Granted
	Pending
	Unauthorized
	RateLimited
)

func (r Result) String() string {
	switch r {
	case Granted:
		return "granted"
	case Pending:
		return "pending"
	case Unauthorized:
		return "unauthorized"
	case RateLimited:
		return "rate_limited"
	default:
		return "unknown_error"
	}
}
