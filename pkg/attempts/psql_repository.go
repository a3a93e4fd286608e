package attempts

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	guarderrors "github.com/tendant/login-guard/pkg/errors"
	"github.com/tendant/login-guard/pkg/utils"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresRepository implements Repository using the login_attempts table
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a new PostgreSQL attempt ledger
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, attempt LoginAttempt) (LoginAttempt, error) {
	if attempt.ID == uuid.Nil {
		attempt.ID = uuid.New()
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO login_attempts (id, identifier, success, email, ip_address, user_agent, user_id, blocked_until, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.Exec(ctx, query,
		attempt.ID,
		attempt.Identifier,
		attempt.Success,
		utils.ToNullString(attempt.Email),
		utils.ToNullString(attempt.IPAddress),
		utils.ToNullString(attempt.UserAgent),
		utils.ToNullString(attempt.UserID),
		utils.ToNullTime(attempt.BlockedUntil),
		attempt.CreatedAt,
	)
	if err != nil {
		return LoginAttempt{}, guarderrors.StoreFailure(err, "failed to insert login attempt")
	}
	return attempt, nil
}

func (r *PostgresRepository) CountFailedSince(ctx context.Context, identifier string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM login_attempts WHERE identifier = $1 AND success = FALSE AND created_at > $2`
	return r.scanCount(ctx, query, "failed to count failed attempts", identifier, since)
}

func (r *PostgresRepository) CountSince(ctx context.Context, identifier string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM login_attempts WHERE identifier = $1 AND created_at > $2`
	return r.scanCount(ctx, query, "failed to count attempts", identifier, since)
}

func (r *PostgresRepository) DistinctEmailsSince(ctx context.Context, identifier string, since time.Time) (int, error) {
	query := `SELECT COUNT(DISTINCT email) FROM login_attempts WHERE identifier = $1 AND email IS NOT NULL AND email <> '' AND created_at > $2`
	return r.scanCount(ctx, query, "failed to count distinct emails", identifier, since)
}

func (r *PostgresRepository) ActiveBlock(ctx context.Context, identifier string, now time.Time) (*time.Time, error) {
	query := `SELECT MAX(blocked_until) FROM login_attempts WHERE identifier = $1 AND blocked_until > $2`
	var blockedUntil sql.NullTime
	if err := r.db.QueryRow(ctx, query, identifier, now).Scan(&blockedUntil); err != nil {
		return nil, guarderrors.StoreFailure(err, "failed to query active block")
	}
	return utils.FromNullTime(blockedUntil), nil
}

func (r *PostgresRepository) LatestSuccess(ctx context.Context, identifier string) (*time.Time, error) {
	query := `SELECT MAX(created_at) FROM login_attempts WHERE identifier = $1 AND success = TRUE`
	var last sql.NullTime
	if err := r.db.QueryRow(ctx, query, identifier).Scan(&last); err != nil {
		return nil, guarderrors.StoreFailure(err, "failed to query last successful login")
	}
	return utils.FromNullTime(last), nil
}

func (r *PostgresRepository) scanCount(ctx context.Context, query, msg string, args ...interface{}) (int, error) {
	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, guarderrors.StoreFailure(err, msg)
	}
	return count, nil
}
