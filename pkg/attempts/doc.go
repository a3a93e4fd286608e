// Package attempts is the ledger of login attempts keyed by rate-limit
// identifier.
//
// Three implementations share the Repository contract: InMemRepository for
// tests, PostgresRepository over the login_attempts table and RedisRepository
// over per-identifier sorted sets. Use NewRepository to pick one by name.
package attempts
