package securityevent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	guarderrors "github.com/tendant/login-guard/pkg/errors"
)

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// PostgresRepository implements Repository using the security_events table
type PostgresRepository struct {
	db DBTX
}

// NewPostgresRepository creates a new PostgreSQL security event repository
func NewPostgresRepository(db DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, event SecurityEvent) (SecurityEvent, error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	metadata := []byte("{}")
	if len(event.Metadata) > 0 {
		b, err := json.Marshal(event.Metadata)
		if err != nil {
			return SecurityEvent{}, guarderrors.Wrap(err, guarderrors.ErrCodeInvalidInput, "failed to encode event metadata")
		}
		metadata = b
	}

	query := `
		INSERT INTO security_events (id, event_type, severity, ip_address, user_agent, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
	`
	_, err := r.db.Exec(ctx, query,
		event.ID,
		string(event.EventType),
		string(event.Severity),
		nullIfEmpty(event.IPAddress),
		nullIfEmpty(event.UserAgent),
		string(metadata),
		event.CreatedAt,
	)
	if err != nil {
		return SecurityEvent{}, guarderrors.StoreFailure(err, "failed to insert security event")
	}
	return event, nil
}

func (r *PostgresRepository) Count(ctx context.Context, filter Filter) (int, error) {
	where, args := buildWhere(filter)
	query := "SELECT COUNT(*) FROM security_events" + where

	var count int
	if err := r.db.QueryRow(ctx, query, args...).Scan(&count); err != nil {
		return 0, guarderrors.StoreFailure(err, "failed to count security events")
	}
	return count, nil
}

func (r *PostgresRepository) List(ctx context.Context, filter Filter) ([]SecurityEvent, error) {
	where, args := buildWhere(filter)
	query := `SELECT id, event_type, severity, COALESCE(ip_address, ''), COALESCE(user_agent, ''), metadata, created_at
		FROM security_events` + where + " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, guarderrors.StoreFailure(err, "failed to list security events")
	}
	defer rows.Close()

	var events []SecurityEvent
	for rows.Next() {
		var (
			e         SecurityEvent
			eventType string
			severity  string
			metadata  []byte
		)
		if err := rows.Scan(&e.ID, &eventType, &severity, &e.IPAddress, &e.UserAgent, &metadata, &e.CreatedAt); err != nil {
			return nil, guarderrors.StoreFailure(err, "failed to scan security event")
		}
		e.EventType = EventType(eventType)
		e.Severity = Severity(severity)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, guarderrors.Wrap(err, guarderrors.ErrCodeInternal, "failed to decode event metadata")
			}
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, guarderrors.StoreFailure(err, "failed to iterate security events")
	}
	return events, nil
}

func buildWhere(filter Filter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)
	if filter.Identifier != "" {
		args = append(args, filter.Identifier)
		conds = append(conds, fmt.Sprintf("metadata->>'identifier' = $%d", len(args)))
	}
	if len(filter.EventTypes) > 0 {
		types := make([]string, len(filter.EventTypes))
		for i, t := range filter.EventTypes {
			types[i] = string(t)
		}
		args = append(args, types)
		conds = append(conds, fmt.Sprintf("event_type = ANY($%d)", len(args)))
	}
	if !filter.Since.IsZero() {
		args = append(args, filter.Since)
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if !filter.Until.IsZero() {
		args = append(args, filter.Until)
		conds = append(conds, fmt.Sprintf("created_at < $%d", len(args)))
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
