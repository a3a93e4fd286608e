// Package errors provides structured error handling with error codes for login-guard.
//
// Store-facing code wraps failures with StoreFailure so that callers can apply
// their own failure policy without string matching:
//
//	count, err := repo.CountFailedSince(ctx, identifier, since)
//	if err != nil {
//		return errors.StoreFailure(err, "failed to count failed attempts")
//	}
//
//	if errors.IsStoreFailure(err) {
//		// rate limiter: fail open; token validation: fail closed
//	}
//
// Error codes map to HTTP status codes through MapErrorCodeToHTTPStatus for the
// handlers in pkg/device/api and the rate limit middleware.
package errors
