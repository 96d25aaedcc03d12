// Copyright (c) 2026 The passkeyd authors
//
// This file is part of passkeyd.
//
// passkeyd is licensed under the GNU Affero General Public License v3.0.
// See https://www.gnu.org/licenses/agpl-3.0.html for details.

// Package postgres implements the CredentialStore interface on PostgreSQL.
// Atomicity relies on single-statement guarantees: the challenge consume is a
// DELETE ... RETURNING and the counter update is a conditional UPDATE, so no
// explicit locking is needed for the per-user serialization the interface
// requires.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-webauthn/webauthn/protocol"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/passkeyd/passkeyd/pkg/storage/postgres/migrations"
	"github.com/passkeyd/passkeyd/pkg/webauthn"
)

// pgUniqueViolation is the SQLSTATE for unique constraint violations.
const pgUniqueViolation = "23505"

// Store is a PostgreSQL-backed CredentialStore.
type Store struct {
	db *sql.DB
}

// New opens a connection pool for dsn and runs pending migrations.
func New(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	s := &Store{db: db}
	if err := s.runMigrations(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return s, nil
}

// NewWithDB wraps an existing database handle without running migrations.
// Intended for tests that manage their own schema.
func NewWithDB(db *sql.DB) *Store {
	return &Store{db: db}
}

func (s *Store) runMigrations(ctx context.Context) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.UpContext(ctx, s.db, ".")
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks database connectivity for health reporting.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// GetAccount retrieves an account and its credentials by username.
func (s *Store) GetAccount(ctx context.Context, username string) (*webauthn.Account, error) {
	account := &webauthn.Account{Username: username}

	query := `SELECT user_id, display_name, created_at FROM accounts WHERE username = $1`
	err := s.db.QueryRowContext(ctx, query, username).
		Scan(&account.ID, &account.DisplayName, &account.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, webauthn.ErrUserNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	creds, err := s.credentialsFor(ctx, username)
	if err != nil {
		return nil, err
	}
	account.Credentials = creds
	return account, nil
}

// EnsureAccount retrieves the account for username, creating it if absent.
func (s *Store) EnsureAccount(ctx context.Context, username string) (*webauthn.Account, error) {
	account := webauthn.NewAccount(username)

	query := `INSERT INTO accounts (username, user_id, display_name, created_at)
	          VALUES ($1, $2, $3, $4)
	          ON CONFLICT (username) DO NOTHING`
	_, err := s.db.ExecContext(ctx, query,
		account.Username, account.ID, account.DisplayName, account.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return s.GetAccount(ctx, username)
}

// AddCredential attaches a verified credential to an account. The primary key
// on the credential ID enforces global uniqueness.
func (s *Store) AddCredential(ctx context.Context, username string, cred *webauthn.Credential) error {
	query := `INSERT INTO credentials
	          (id, username, public_key, attestation_type, transports, aaguid,
	           sign_count, clone_flagged, backup_eligible, backup_state, created_at)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err := s.db.ExecContext(ctx, query,
		cred.ID, username, cred.PublicKey, cred.AttestationType,
		joinTransports(cred.Transports), cred.AAGUID,
		int64(cred.SignCount), cred.CloneFlagged,
		cred.BackupEligible, cred.BackupState, cred.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return webauthn.ErrCredentialExists
		}
		// Foreign key failure means the account row is missing.
		if strings.Contains(err.Error(), "violates foreign key") {
			return webauthn.ErrUserNotFound
		}
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// UpdateSignCount advances the stored counter with a conditional UPDATE.
// The WHERE clause is the compare-and-set: when it matches no row the counter
// did not advance, and the credential gets flagged instead.
func (s *Store) UpdateSignCount(ctx context.Context, username string, credentialID []byte, newCount uint32) error {
	update := `UPDATE credentials
	           SET sign_count = $1, last_used_at = now()
	           WHERE id = $2 AND username = $3 AND sign_count < $1`
	res, err := s.db.ExecContext(ctx, update, int64(newCount), credentialID, username)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected > 0 {
		return nil
	}

	flag := `UPDATE credentials SET clone_flagged = TRUE WHERE id = $1 AND username = $2`
	res, err = s.db.ExecContext(ctx, flag, credentialID, username)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err = res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return webauthn.ErrCredentialNotFound
	}
	return webauthn.ErrCloneDetected
}

// PutChallenge stores the pending challenge for username. The table holds at
// most one row per user, so a new issuance replaces the previous challenge
// whatever ceremony it belonged to.
func (s *Store) PutChallenge(ctx context.Context, username string, challenge *webauthn.PendingChallenge) error {
	session, err := json.Marshal(challenge.Session)
	if err != nil {
		return fmt.Errorf("session encode error: %w", err)
	}

	query := `INSERT INTO pending_challenges (username, ceremony, session, issued_at, expires_at)
	          VALUES ($1, $2, $3, $4, $5)
	          ON CONFLICT (username) DO UPDATE
	          SET ceremony = EXCLUDED.ceremony,
	              session = EXCLUDED.session,
	              issued_at = EXCLUDED.issued_at,
	              expires_at = EXCLUDED.expires_at`
	_, err = s.db.ExecContext(ctx, query,
		username, string(challenge.Ceremony), session, challenge.IssuedAt, challenge.ExpiresAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

// ConsumeChallenge atomically removes and returns the pending challenge. The
// ceremony predicate keeps a challenge stored for the other ceremony in
// place; it is still the most recent issuance for its own ceremony.
func (s *Store) ConsumeChallenge(ctx context.Context, username string, ceremony webauthn.CeremonyType) (*webauthn.PendingChallenge, error) {
	query := `DELETE FROM pending_challenges
	          WHERE username = $1 AND ceremony = $2
	          RETURNING session, issued_at, expires_at`

	var session []byte
	challenge := &webauthn.PendingChallenge{Ceremony: ceremony}
	err := s.db.QueryRowContext(ctx, query, username, string(ceremony)).
		Scan(&session, &challenge.IssuedAt, &challenge.ExpiresAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, webauthn.ErrNoActiveCeremony
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if challenge.Expired(time.Now()) {
		return nil, webauthn.ErrNoActiveCeremony
	}

	if err := json.Unmarshal(session, &challenge.Session); err != nil {
		return nil, fmt.Errorf("session decode error: %w", err)
	}
	return challenge, nil
}

// SweepChallenges removes challenges that expired before now.
func (s *Store) SweepChallenges(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM pending_challenges WHERE expires_at < $1`, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return int(affected), nil
}

func (s *Store) credentialsFor(ctx context.Context, username string) ([]*webauthn.Credential, error) {
	query := `SELECT id, public_key, attestation_type, transports, aaguid,
	                 sign_count, clone_flagged, backup_eligible, backup_state,
	                 created_at, last_used_at
	          FROM credentials WHERE username = $1 ORDER BY created_at`

	rows, err := s.db.QueryContext(ctx, query, username)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	userID := webauthn.DeriveUserID(username)
	creds := make([]*webauthn.Credential, 0)
	for rows.Next() {
		cred := &webauthn.Credential{UserID: userID}
		var transports string
		var signCount int64
		var lastUsed sql.NullTime

		err := rows.Scan(&cred.ID, &cred.PublicKey, &cred.AttestationType,
			&transports, &cred.AAGUID, &signCount, &cred.CloneFlagged,
			&cred.BackupEligible, &cred.BackupState, &cred.CreatedAt, &lastUsed)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}

		cred.SignCount = uint32(signCount)
		cred.Transports = splitTransports(transports)
		if lastUsed.Valid {
			cred.LastUsedAt = lastUsed.Time
		}
		creds = append(creds, cred)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return creds, nil
}

func joinTransports(transports []protocol.AuthenticatorTransport) string {
	parts := make([]string, len(transports))
	for i, t := range transports {
		parts[i] = string(t)
	}
	return strings.Join(parts, ",")
}

func splitTransports(s string) []protocol.AuthenticatorTransport {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	transports := make([]protocol.AuthenticatorTransport, len(parts))
	for i, p := range parts {
		transports[i] = protocol.AuthenticatorTransport(p)
	}
	return transports
}
