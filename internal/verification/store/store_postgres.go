package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"zkcred/internal/sentinel"
	"zkcred/internal/verification/models"
	"zkcred/internal/verification/scope"
)

const uniqueViolation = "23505"

// PostgresStore persists sessions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const sessionColumns = `id, kind, verification_type, conditions, reason, scopes, status,
	created_at, updated_at, expires_at, result`

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) Create(ctx context.Context, session *models.Session) error {
	conditions, scopes, result, err := marshalSession(session)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO verification_sessions (`+sessionColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		session.ID,
		string(session.Kind),
		string(session.VerificationType),
		nullableJSON(conditions),
		session.Reason,
		string(scopes),
		string(session.Status),
		session.CreatedAt,
		session.UpdatedAt,
		session.ExpiresAt,
		nullableJSON(result),
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert verification session: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Session, error) {
	session, err := scanSession(s.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM verification_sessions WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find verification session: %w", err)
	}
	return session, nil
}

// Update locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (s *PostgresStore) Update(ctx context.Context, id string, fn UpdateFunc) (*models.Session, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin session update tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	session, err := scanSession(tx.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM verification_sessions WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock verification session: %w", err)
	}
	if err := fn(session); err != nil {
		return nil, err
	}

	_, _, result, err := marshalSession(session)
	if err != nil {
		return nil, err
	}
	_, err = tx.ExecContext(ctx, `
		UPDATE verification_sessions
		SET status = $2, updated_at = $3, result = $4
		WHERE id = $1
	`, session.ID, string(session.Status), session.UpdatedAt, nullableJSON(result))
	if err != nil {
		return nil, fmt.Errorf("update verification session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit session update: %w", err)
	}
	return session, nil
}

func (s *PostgresStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*models.Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+sessionColumns+`
		FROM verification_sessions
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY expires_at ASC
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	defer rows.Close()

	var out []*models.Session
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired session: %w", err)
		}
		out = append(out, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired sessions: %w", err)
	}
	return out, nil
}

func marshalSession(session *models.Session) (conditions, scopes, result []byte, err error) {
	if session.Conditions != nil {
		if conditions, err = json.Marshal(session.Conditions); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal session conditions: %w", err)
		}
	}
	if scopes, err = json.Marshal(session.Scopes); err != nil {
		return nil, nil, nil, fmt.Errorf("marshal session scopes: %w", err)
	}
	if session.Result != nil {
		if result, err = json.Marshal(session.Result); err != nil {
			return nil, nil, nil, fmt.Errorf("marshal session result: %w", err)
		}
	}
	return conditions, scopes, result, nil
}

func scanSession(row rowScanner) (*models.Session, error) {
	var (
		session                    models.Session
		kind, vt, status           string
		conditions, scopes, result []byte
	)
	err := row.Scan(
		&session.ID,
		&kind,
		&vt,
		&conditions,
		&session.Reason,
		&scopes,
		&status,
		&session.CreatedAt,
		&session.UpdatedAt,
		&session.ExpiresAt,
		&result,
	)
	if err != nil {
		return nil, err
	}
	session.Kind = models.Kind(kind)
	session.VerificationType = scope.VerificationType(vt)
	session.Status = models.Status(status)
	session.CreatedAt = session.CreatedAt.UTC()
	session.UpdatedAt = session.UpdatedAt.UTC()
	session.ExpiresAt = session.ExpiresAt.UTC()

	if len(conditions) > 0 {
		if err := json.Unmarshal(conditions, &session.Conditions); err != nil {
			return nil, fmt.Errorf("unmarshal session conditions: %w", err)
		}
	}
	if err := json.Unmarshal(scopes, &session.Scopes); err != nil {
		return nil, fmt.Errorf("unmarshal session scopes: %w", err)
	}
	if len(result) > 0 {
		session.Result = &models.Result{}
		if err := json.Unmarshal(result, session.Result); err != nil {
			return nil, fmt.Errorf("unmarshal session result: %w", err)
		}
	}
	return &session, nil
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
