package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"zkcred/internal/claims/models"
	"zkcred/internal/sentinel"
)

const uniqueViolation = "23505"

// PostgresStore persists claims in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const claimColumns = `id, reference_id, holder_id, subject, status, created_at, updated_at,
	issued_at, revoked_at, revocation_reason, backend_credential_id, credential_source, credential, issued_to`

type rowScanner interface {
	Scan(dest ...any) error
}

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *PostgresStore) Create(ctx context.Context, claim *models.Claim) error {
	subject, err := json.Marshal(claim.Subject)
	if err != nil {
		return fmt.Errorf("marshal claim subject: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO claims (`+claimColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		claim.ID,
		claim.ReferenceID,
		claim.HolderID,
		string(subject),
		string(claim.Status),
		claim.CreatedAt,
		claim.UpdatedAt,
		claim.IssuedAt,
		claim.RevokedAt,
		claim.RevocationReason,
		claim.BackendCredentialID,
		string(claim.CredentialSource),
		nullableJSON(claim.Credential),
		claim.IssuedTo,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert claim: %w", err)
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, id string) (*models.Claim, error) {
	claim, err := scanClaim(s.db.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find claim: %w", err)
	}
	return claim, nil
}

// Update locks the row with SELECT ... FOR UPDATE for the duration of fn.
func (s *PostgresStore) Update(ctx context.Context, id string, fn UpdateFunc) (*models.Claim, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin claim update tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	claim, err := scanClaim(tx.QueryRowContext(ctx, `SELECT `+claimColumns+` FROM claims WHERE id = $1 FOR UPDATE`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("lock claim: %w", err)
	}
	if err := fn(claim); err != nil {
		return nil, err
	}
	if err := updateClaim(ctx, tx, claim); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit claim update: %w", err)
	}
	return claim, nil
}

func updateClaim(ctx context.Context, exec dbExecutor, claim *models.Claim) error {
	_, err := exec.ExecContext(ctx, `
		UPDATE claims
		SET status = $2, updated_at = $3, issued_at = $4, revoked_at = $5,
			revocation_reason = $6, credential = $7, issued_to = $8
		WHERE id = $1
	`,
		claim.ID,
		string(claim.Status),
		claim.UpdatedAt,
		claim.IssuedAt,
		claim.RevokedAt,
		claim.RevocationReason,
		nullableJSON(claim.Credential),
		claim.IssuedTo,
	)
	if err != nil {
		return fmt.Errorf("update claim: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListByHolder(ctx context.Context, holderID string, limit int) ([]*models.Claim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+claimColumns+`
		FROM claims
		WHERE holder_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, holderID, limit)
	if err != nil {
		return nil, fmt.Errorf("list claims by holder: %w", err)
	}
	defer rows.Close()

	var claims []*models.Claim
	for rows.Next() {
		claim, err := scanClaim(rows)
		if err != nil {
			return nil, fmt.Errorf("scan claim: %w", err)
		}
		claims = append(claims, claim)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate claims: %w", err)
	}
	return claims, nil
}

func (s *PostgresStore) Stats(ctx context.Context, dayStart time.Time) (*models.Stats, error) {
	stats := &models.Stats{Skills: make(map[string]int)}
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'pending'),
			COUNT(*) FILTER (WHERE status = 'issued'),
			COUNT(*) FILTER (WHERE status = 'revoked'),
			COUNT(*) FILTER (WHERE issued_at >= $1)
		FROM claims
	`, dayStart).Scan(&stats.Total, &stats.Pending, &stats.Issued, &stats.Revoked, &stats.IssuedToday)
	if err != nil {
		return nil, fmt.Errorf("count claims: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT subject->>'skill', COUNT(*)
		FROM claims
		WHERE COALESCE(subject->>'skill', '') <> ''
		GROUP BY 1
	`)
	if err != nil {
		return nil, fmt.Errorf("count claim skills: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var skill string
		var count int
		if err := rows.Scan(&skill, &count); err != nil {
			return nil, fmt.Errorf("scan skill count: %w", err)
		}
		stats.Skills[skill] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate skill counts: %w", err)
	}
	return stats, nil
}

func scanClaim(row rowScanner) (*models.Claim, error) {
	var (
		claim      models.Claim
		subject    []byte
		status     string
		source     string
		credential []byte
		issuedAt   sql.NullTime
		revokedAt  sql.NullTime
	)
	if err := row.Scan(
		&claim.ID,
		&claim.ReferenceID,
		&claim.HolderID,
		&subject,
		&status,
		&claim.CreatedAt,
		&claim.UpdatedAt,
		&issuedAt,
		&revokedAt,
		&claim.RevocationReason,
		&claim.BackendCredentialID,
		&source,
		&credential,
		&claim.IssuedTo,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal(subject, &claim.Subject); err != nil {
		return nil, fmt.Errorf("decode claim subject: %w", err)
	}
	claim.Status = models.Status(status)
	claim.CredentialSource = models.CredentialSource(source)
	if len(credential) > 0 {
		claim.Credential = json.RawMessage(credential)
	}
	if issuedAt.Valid {
		t := issuedAt.Time
		claim.IssuedAt = &t
	}
	if revokedAt.Valid {
		t := revokedAt.Time
		claim.RevokedAt = &t
	}
	return &claim, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
