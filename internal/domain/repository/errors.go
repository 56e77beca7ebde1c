package repository

import "errors"

// Fetch errors. Sources wrap these so callers can classify failures with
// errors.Is regardless of which transport produced them.
var (
	// ErrRateLimited means the upstream refused the request with 403/429.
	// Retrying the same path would only dig the limit deeper, so the
	// caller gets this immediately.
	ErrRateLimited = errors.New("rate limited")
	// ErrInvalidAccount means the account does not exist.
	ErrInvalidAccount = errors.New("invalid account")
	// ErrNetwork covers transport failures and unexpected statuses.
	ErrNetwork = errors.New("network error")
	// ErrPartialResults marks a degraded success: some pages failed but
	// the fetched subset is returned alongside this error.
	ErrPartialResults = errors.New("partial results")
)
