// Package device provides fingerprint-bound "remember this device" sessions.
//
// # Overview
//
// The device package provides:
//   - Device fingerprinting (SHA-256 over user agent, address, language, timezone and screen)
//   - Remember-me token issuance bound to a fingerprint
//   - Token validation that deactivates a session on fingerprint mismatch
//   - Per-session and per-user revocation
//   - Listing of a user's active devices
//   - Expired session cleanup
//
// # Basic Usage
//
//	import "github.com/tendant/login-guard/pkg/device"
//
//	repo := device.NewPostgresRepository(pool)
//	service := device.NewService(repo, events,
//		device.WithDefaultDuration(30*24*time.Hour),
//	)
//
//	// After a successful login with "remember me" checked
//	info := device.ExtractDeviceInfo(r)
//	issued, ok := service.TryCreateSession(ctx, userID, info, 0)
//	if ok {
//		// set issued.Token in a cookie that expires at issued.ExpiresAt
//	}
//
//	// On a later visit
//	result := service.ValidateToken(ctx, cookieValue, device.ExtractDeviceInfo(r))
//	if result.Valid {
//		// sign in result.UserID
//	}
//
// # Failure policy
//
// Validation fails closed: a store error yields an invalid result. Issuance
// through TryCreateSession is best-effort so a failed write never fails the
// login that triggered it.
package device
