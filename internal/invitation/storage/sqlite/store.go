// Package sqlite provides a SQLite-backed invitation ledger implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/katalystmx/dashboard/internal/invitation"
	"github.com/katalystmx/dashboard/internal/invitation/storage/sqlite/migrations"
	sqlitemigrate "github.com/katalystmx/dashboard/internal/platform/storage/sqlitemigrate"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists the invitation ledger in SQLite.
type Store struct {
	sqlDB *sql.DB
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite ledger store and applies embedded migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := sqlitemigrate.ApplyMigrations(sqlDB, migrations.FS); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// FindByToken returns one ledger entry.
func (s *Store) FindByToken(ctx context.Context, token string) (invitation.Token, error) {
	if err := ctx.Err(); err != nil {
		return invitation.Token{}, err
	}
	if s == nil || s.sqlDB == nil {
		return invitation.Token{}, fmt.Errorf("storage is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return invitation.Token{}, fmt.Errorf("token is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT token, invitee_email, target_group_id, inviter_contact_id, status, issued_at, expires_at, accepted_at
		 FROM invitation_tokens WHERE token = ?`, token)

	var record invitation.Token
	var status string
	var issuedAt int64
	var expiresAt, acceptedAt sql.NullInt64
	err := row.Scan(&record.Token, &record.InviteeEmail, &record.TargetGroupID,
		&record.InviterContactID, &status, &issuedAt, &expiresAt, &acceptedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return invitation.Token{}, invitation.ErrTokenNotFound
		}
		return invitation.Token{}, fmt.Errorf("scan invitation token: %w", err)
	}
	record.Status = invitation.StatusFromLabel(status)
	record.IssuedAt = fromMillis(issuedAt)
	if expiresAt.Valid {
		at := fromMillis(expiresAt.Int64)
		record.ExpiresAt = &at
	}
	if acceptedAt.Valid {
		at := fromMillis(acceptedAt.Int64)
		record.AcceptedAt = &at
	}
	return record, nil
}

// Create inserts one pending ledger entry.
func (s *Store) Create(ctx context.Context, token invitation.Token) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	if strings.TrimSpace(token.Token) == "" {
		return fmt.Errorf("token is required")
	}
	if strings.TrimSpace(token.InviteeEmail) == "" {
		return fmt.Errorf("invitee email is required")
	}
	if strings.TrimSpace(token.TargetGroupID) == "" {
		return fmt.Errorf("target group id is required")
	}

	status := token.Status
	if status == invitation.StatusUnspecified {
		status = invitation.StatusPending
	}
	issuedAt := token.IssuedAt.UTC()
	if issuedAt.IsZero() {
		issuedAt = time.Now().UTC()
	}

	var expiresAt *int64
	if token.ExpiresAt != nil {
		millis := toMillis(*token.ExpiresAt)
		expiresAt = &millis
	}
	var acceptedAt *int64
	if token.AcceptedAt != nil {
		millis := toMillis(*token.AcceptedAt)
		acceptedAt = &millis
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO invitation_tokens (token, invitee_email, target_group_id, inviter_contact_id, status, issued_at, expires_at, accepted_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		strings.TrimSpace(token.Token),
		strings.TrimSpace(token.InviteeEmail),
		strings.TrimSpace(token.TargetGroupID),
		strings.TrimSpace(token.InviterContactID),
		invitation.StatusLabel(status),
		toMillis(issuedAt),
		expiresAt,
		acceptedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return invitation.ErrTokenAlreadyExists
		}
		return fmt.Errorf("create invitation token: %w", err)
	}
	return nil
}

// MarkAccepted transitions pending to accepted with a conditional update.
// Two concurrent redeems cannot both take the transition: conditioning on
// status makes the write a compare-and-swap.
func (s *Store) MarkAccepted(ctx context.Context, token string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	token = strings.TrimSpace(token)
	if token == "" {
		return fmt.Errorf("token is required")
	}

	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE invitation_tokens SET status = ?, accepted_at = ?
		 WHERE token = ? AND status = ?`,
		invitation.StatusLabel(invitation.StatusAccepted),
		toMillis(at),
		token,
		invitation.StatusLabel(invitation.StatusPending),
	)
	if err != nil {
		return fmt.Errorf("mark invitation accepted: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark invitation accepted rows: %w", err)
	}
	if affected == 0 {
		var found int
		row := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM invitation_tokens WHERE token = ?`, token)
		if scanErr := row.Scan(&found); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return invitation.ErrTokenNotFound
			}
			return fmt.Errorf("mark invitation accepted lookup: %w", scanErr)
		}
		return invitation.ErrAlreadyAccepted
	}
	return nil
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			return true
		}
	}
	return false
}
