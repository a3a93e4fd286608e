// Package ratelimit throttles authentication attempts per identifier over a
// trailing window backed by the attempt ledger.
//
// Typical login flow:
//
//	id := identifier.FromRequest(r)
//	if res := limiter.CheckRateLimit(ctx, id, ratelimit.LoginPolicy); !res.Allowed {
//		// respond with res.Message
//	}
//	ok := authenticate(...)
//	_ = limiter.RecordLoginAttempt(ctx, id, ok, ratelimit.AttemptDetails{Email: email})
//
// Middleware wraps the same check around an http.Handler and exposes the
// derived identifier through IdentifierFromContext.
package ratelimit
