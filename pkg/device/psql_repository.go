package device

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"reflect"
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

// PostgresRepository implements Repository using the device_sessions table
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a new PostgreSQL device session repository
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const sessionColumns = `id, user_id, device_fingerprint, device_name, ip_address, user_agent,
	remember_token, expires_at, created_at, last_used_at, is_active`

func (r *PostgresRepository) Create(ctx context.Context, session DeviceSession) (DeviceSession, error) {
	if session.ID == uuid.Nil {
		session.ID = uuid.New()
	}

	query := `
		INSERT INTO device_sessions (` + sessionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err := r.db.Exec(ctx, query,
		session.ID,
		session.UserID,
		session.DeviceFingerprint,
		session.DeviceName,
		utils.ToNullString(session.IPAddress),
		utils.ToNullString(session.UserAgent),
		session.RememberToken,
		session.ExpiresAt,
		session.CreatedAt,
		session.LastUsedAt,
		session.IsActive,
	)
	if err != nil {
		slog.Error("Failed to create device session", "user_id", session.UserID, "error", err)
		return DeviceSession{}, guarderrors.StoreFailure(err, "failed to insert device session")
	}
	return session, nil
}

func (r *PostgresRepository) FindActiveByToken(ctx context.Context, token string, now time.Time) (DeviceSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM device_sessions
		WHERE remember_token = $1 AND is_active = TRUE AND expires_at >= $2`

	session, err := scanSession(r.db.QueryRow(ctx, query, token, now))
	if errors.Is(err, pgx.ErrNoRows) {
		return DeviceSession{}, ErrSessionNotFound
	}
	if err != nil {
		return DeviceSession{}, guarderrors.StoreFailure(err, "failed to find device session")
	}
	return session, nil
}

func (r *PostgresRepository) TouchLastUsed(ctx context.Context, id uuid.UUID, usedAt time.Time) error {
	tag, err := r.db.Exec(ctx, `UPDATE device_sessions SET last_used_at = $2 WHERE id = $1`, id, usedAt)
	if err != nil {
		return guarderrors.StoreFailure(err, "failed to update device session last used time")
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func (r *PostgresRepository) Deactivate(ctx context.Context, id uuid.UUID, userID string) (bool, error) {
	query := `UPDATE device_sessions SET is_active = FALSE
		WHERE id = $1 AND is_active = TRUE AND ($2::text = '' OR user_id = $2::text)`
	tag, err := r.db.Exec(ctx, query, id, userID)
	if err != nil {
		return false, guarderrors.StoreFailure(err, "failed to deactivate device session")
	}
	return tag.RowsAffected() > 0, nil
}

func (r *PostgresRepository) DeactivateAllForUser(ctx context.Context, userID string, except *uuid.UUID) (int, error) {
	query := `UPDATE device_sessions SET is_active = FALSE
		WHERE user_id = $1 AND is_active = TRUE AND ($2::uuid IS NULL OR id <> $2::uuid)`
	tag, err := r.db.Exec(ctx, query, userID, except)
	if err != nil {
		return 0, guarderrors.StoreFailure(err, "failed to deactivate user device sessions")
	}
	return int(tag.RowsAffected()), nil
}

func (r *PostgresRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM device_sessions WHERE expires_at < $1`, now)
	if err != nil {
		return 0, guarderrors.StoreFailure(err, "failed to delete expired device sessions")
	}
	return tag.RowsAffected(), nil
}

func (r *PostgresRepository) ListActiveByUser(ctx context.Context, userID string, now time.Time) ([]DeviceSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM device_sessions
		WHERE user_id = $1 AND is_active = TRUE AND expires_at >= $2
		ORDER BY last_used_at DESC`

	rows, err := r.db.Query(ctx, query, userID, now)
	if err != nil {
		return nil, guarderrors.StoreFailure(err, "failed to list device sessions")
	}
	defer rows.Close()

	var sessions []DeviceSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, guarderrors.StoreFailure(err, "failed to scan device session")
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, guarderrors.StoreFailure(err, "failed to iterate device sessions")
	}
	return sessions, nil
}

// WithTx returns a new repository with the given transaction
func (r *PostgresRepository) WithTx(tx interface{}) *PostgresRepository {
	if tx == nil {
		return r
	}

	pgxTx, ok := tx.(pgx.Tx)
	if !ok {
		slog.Warn("Unsupported transaction type", "type", reflect.TypeOf(tx))
		return r
	}
	return NewPostgresRepository(pgxTx)
}

func scanSession(row pgx.Row) (DeviceSession, error) {
	var (
		s         DeviceSession
		ipAddress sql.NullString
		userAgent sql.NullString
	)
	err := row.Scan(
		&s.ID,
		&s.UserID,
		&s.DeviceFingerprint,
		&s.DeviceName,
		&ipAddress,
		&userAgent,
		&s.RememberToken,
		&s.ExpiresAt,
		&s.CreatedAt,
		&s.LastUsedAt,
		&s.IsActive,
	)
	if err != nil {
		return DeviceSession{}, err
	}
	s.IPAddress = utils.FromNullString(ipAddress)
	s.UserAgent = utils.FromNullString(userAgent)
	return s, nil
}
