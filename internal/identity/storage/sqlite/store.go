// Package sqlite provides a SQLite-backed identity storage implementation.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/katalystmx/dashboard/internal/identity"
	"github.com/katalystmx/dashboard/internal/identity/storage"
	"github.com/katalystmx/dashboard/internal/identity/storage/sqlite/migrations"
	sqlitemigrate "github.com/katalystmx/dashboard/internal/platform/storage/sqlitemigrate"
	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"
)

// Store persists identity state in SQLite.
type Store struct {
	sqlDB *sql.DB
	clock func() time.Time
}

func toMillis(value time.Time) int64 {
	return value.UTC().UnixMilli()
}

func fromMillis(value int64) time.Time {
	return time.UnixMilli(value).UTC()
}

// Open opens a SQLite identity store and applies embedded migrations.
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
	return &Store{sqlDB: sqlDB, clock: time.Now}, nil
}

// Close closes the SQLite handle.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// SetClock overrides the store's time source for tests.
func (s *Store) SetClock(clock func() time.Time) {
	if clock != nil {
		s.clock = clock
	}
}

// FindByEmail returns one identity with its associated group IDs.
func (s *Store) FindByEmail(ctx context.Context, email string) (identity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return identity.Identity{}, err
	}
	if s == nil || s.sqlDB == nil {
		return identity.Identity{}, fmt.Errorf("storage is not configured")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return identity.Identity{}, fmt.Errorf("email is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT email, display_name, external_contact_id, verified_at, created_at, updated_at
		 FROM identities WHERE email = ?`, email)
	ident, err := scanIdentity(row)
	if err != nil {
		return identity.Identity{}, err
	}
	if err := s.loadGroups(ctx, &ident); err != nil {
		return identity.Identity{}, err
	}
	return ident, nil
}

// FindByContactID returns the identity bound to a CRM contact item.
func (s *Store) FindByContactID(ctx context.Context, contactID string) (identity.Identity, error) {
	if err := ctx.Err(); err != nil {
		return identity.Identity{}, err
	}
	if s == nil || s.sqlDB == nil {
		return identity.Identity{}, fmt.Errorf("storage is not configured")
	}
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return identity.Identity{}, fmt.Errorf("contact id is required")
	}

	row := s.sqlDB.QueryRowContext(ctx,
		`SELECT email, display_name, external_contact_id, verified_at, created_at, updated_at
		 FROM identities WHERE external_contact_id = ?`, contactID)
	ident, err := scanIdentity(row)
	if err != nil {
		return identity.Identity{}, err
	}
	if err := s.loadGroups(ctx, &ident); err != nil {
		return identity.Identity{}, err
	}
	return ident, nil
}

// Create inserts one identity record and its group associations.
func (s *Store) Create(ctx context.Context, ident identity.Identity) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	email := strings.TrimSpace(ident.Email)
	if email == "" {
		return fmt.Errorf("email is required")
	}

	now := s.clock().UTC()
	createdAt := ident.CreatedAt.UTC()
	if createdAt.IsZero() {
		createdAt = now
	}
	updatedAt := ident.UpdatedAt.UTC()
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}

	var verifiedAt *int64
	if ident.VerifiedAt != nil {
		millis := toMillis(*ident.VerifiedAt)
		verifiedAt = &millis
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO identities (email, display_name, external_contact_id, verified_at, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		email,
		strings.TrimSpace(ident.DisplayName),
		strings.TrimSpace(ident.ExternalContactID),
		verifiedAt,
		toMillis(createdAt),
		toMillis(updatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("create identity: %w", err)
	}

	for _, groupID := range ident.AssociatedGroupIDs {
		if err := s.AddAssociatedGroup(ctx, email, groupID); err != nil {
			return err
		}
	}
	return nil
}

// SetExternalContactID binds an identity to a CRM contact item. The binding
// is write-once: setting the same contact again is a no-op, setting a
// different one fails with ErrContactAlreadyBound.
func (s *Store) SetExternalContactID(ctx context.Context, email, contactID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	email = strings.TrimSpace(email)
	contactID = strings.TrimSpace(contactID)
	if email == "" || contactID == "" {
		return fmt.Errorf("email and contact id are required")
	}

	result, err := s.sqlDB.ExecContext(ctx,
		`UPDATE identities SET external_contact_id = ?, updated_at = ?
		 WHERE email = ? AND (external_contact_id = '' OR external_contact_id = ?)`,
		contactID, toMillis(s.clock()), email, contactID)
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrContactAlreadyBound
		}
		return fmt.Errorf("set external contact id: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("set external contact id rows: %w", err)
	}
	if affected == 0 {
		var found int
		row := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM identities WHERE email = ?`, email)
		if scanErr := row.Scan(&found); scanErr != nil {
			if errors.Is(scanErr, sql.ErrNoRows) {
				return storage.ErrNotFound
			}
			return fmt.Errorf("set external contact id lookup: %w", scanErr)
		}
		return storage.ErrContactAlreadyBound
	}
	return nil
}

// AddAssociatedGroup records a group association with set semantics.
func (s *Store) AddAssociatedGroup(ctx context.Context, email, groupID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	email = strings.TrimSpace(email)
	groupID = strings.TrimSpace(groupID)
	if email == "" || groupID == "" {
		return fmt.Errorf("email and group id are required")
	}

	var found int
	row := s.sqlDB.QueryRowContext(ctx, `SELECT 1 FROM identities WHERE email = ?`, email)
	if err := row.Scan(&found); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("add associated group lookup: %w", err)
	}

	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO identity_groups (email, group_id, added_at) VALUES (?, ?, ?)`,
		email, groupID, toMillis(s.clock()))
	if err != nil {
		return fmt.Errorf("add associated group: %w", err)
	}
	return nil
}

// TryAcquireRegistration takes the short-lived per-email registration lock.
// Expired locks are reclaimed; a live lock makes the acquisition fail.
func (s *Store) TryAcquireRegistration(ctx context.Context, email string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if s == nil || s.sqlDB == nil {
		return false, fmt.Errorf("storage is not configured")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return false, fmt.Errorf("email is required")
	}
	if ttl <= 0 {
		return false, fmt.Errorf("lock ttl must be positive")
	}

	now := s.clock().UTC()
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM registration_locks WHERE email = ? AND expires_at <= ?`,
		email, toMillis(now)); err != nil {
		return false, fmt.Errorf("reclaim registration lock: %w", err)
	}

	result, err := s.sqlDB.ExecContext(ctx,
		`INSERT OR IGNORE INTO registration_locks (email, expires_at) VALUES (?, ?)`,
		email, toMillis(now.Add(ttl)))
	if err != nil {
		return false, fmt.Errorf("acquire registration lock: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire registration lock rows: %w", err)
	}
	return affected == 1, nil
}

// ReleaseRegistration drops the per-email registration lock.
func (s *Store) ReleaseRegistration(ctx context.Context, email string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := s.sqlDB.ExecContext(ctx,
		`DELETE FROM registration_locks WHERE email = ?`, email); err != nil {
		return fmt.Errorf("release registration lock: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIdentity(row rowScanner) (identity.Identity, error) {
	var ident identity.Identity
	var verifiedAt sql.NullInt64
	var createdAt, updatedAt int64
	err := row.Scan(&ident.Email, &ident.DisplayName, &ident.ExternalContactID,
		&verifiedAt, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return identity.Identity{}, storage.ErrNotFound
		}
		return identity.Identity{}, fmt.Errorf("scan identity: %w", err)
	}
	if verifiedAt.Valid {
		at := fromMillis(verifiedAt.Int64)
		ident.VerifiedAt = &at
	}
	ident.CreatedAt = fromMillis(createdAt)
	ident.UpdatedAt = fromMillis(updatedAt)
	return ident, nil
}

func (s *Store) loadGroups(ctx context.Context, ident *identity.Identity) error {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT group_id FROM identity_groups WHERE email = ? ORDER BY added_at, group_id`,
		ident.Email)
	if err != nil {
		return fmt.Errorf("load identity groups: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()
	for rows.Next() {
		var groupID string
		if err := rows.Scan(&groupID); err != nil {
			return fmt.Errorf("scan identity group: %w", err)
		}
		ident.AssociatedGroupIDs = append(ident.AssociatedGroupIDs, groupID)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate identity groups: %w", err)
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
