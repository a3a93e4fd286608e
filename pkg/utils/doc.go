// Package utils provides small helpers shared by the repositories and services of login-guard.
//
// SQL null conversions keep optional columns (email, user agent, blocked_until) NULL instead of
// empty strings or zero times:
//
//	_, err := db.Exec(ctx, "INSERT INTO login_attempts (id, email) VALUES ($1, $2)",
//	    uuid.New(),
//	    utils.ToNullString(email), // "" becomes NULL
//	)
//
// MaskEmail keeps presented emails out of diagnostic logs:
//
//	slog.Info("Failed login recorded", "email", utils.MaskEmail(email))
//	// email=j***e@example.com
package utils
