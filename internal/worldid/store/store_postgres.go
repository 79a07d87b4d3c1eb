package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"personhood/internal/worldid/models"
	"personhood/internal/worldid/service"
	dErrors "personhood/pkg/domain-errors"
	"personhood/pkg/platform/sentinel"
	txcontext "personhood/pkg/platform/tx"
)

const pgUniqueViolation = "23505"

// PostgresStore persists verification state in PostgreSQL. Queries run on
// the pool, or on the transaction the store was bound to by RunInTx.
type PostgresStore struct {
	db      *sql.DB
	exec    txcontext.Executor
	timeout time.Duration
}

// NewPostgres constructs a PostgreSQL-backed verification store.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db, exec: db}
}

// newPostgresTx binds a store to an open transaction.
func newPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{exec: tx}
}

const selectAccount = `
	SELECT id, is_verified, trust_score, verification_badges,
		worldid_verified_at, worldid_nullifier, worldid_level, worldid_boost,
		created_at, updated_at
	FROM accounts
	WHERE id = $1`

func (s *PostgresStore) GetAccount(ctx context.Context, accountID string) (*models.Account, error) {
	account, err := scanAccount(s.exec.QueryRowContext(ctx, selectAccount, accountID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	return account, nil
}

func (s *PostgresStore) EnsureAccount(ctx context.Context, accountID string, now time.Time) (*models.Account, error) {
	query := `
		INSERT INTO accounts (id, created_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := s.exec.ExecContext(ctx, query, accountID, now); err != nil {
		return nil, fmt.Errorf("ensure account: %w", err)
	}
	return s.GetAccount(ctx, accountID)
}

func (s *PostgresStore) SaveSession(ctx context.Context, session models.Session) error {
	query := `
		INSERT INTO worldid_sessions (account_id, signal, action, created_at, expires_at, verified, verified_at)
		VALUES ($1, $2, $3, $4, $5, FALSE, NULL)
		ON CONFLICT (account_id) DO UPDATE SET
			signal = EXCLUDED.signal,
			action = EXCLUDED.action,
			created_at = EXCLUDED.created_at,
			expires_at = EXCLUDED.expires_at,
			verified = FALSE,
			verified_at = NULL
	`
	_, err := s.exec.ExecContext(ctx, query,
		session.AccountID, session.Signal, session.Action, session.CreatedAt, session.ExpiresAt)
	if err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, accountID string) (*models.Session, error) {
	query := `
		SELECT account_id, signal, action, created_at, expires_at, verified, verified_at
		FROM worldid_sessions
		WHERE account_id = $1
	`
	var (
		session    models.Session
		verifiedAt sql.NullTime
	)
	err := s.exec.QueryRowContext(ctx, query, accountID).Scan(
		&session.AccountID, &session.Signal, &session.Action,
		&session.CreatedAt, &session.ExpiresAt, &session.Verified, &verifiedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find session by account: %w", err)
	}
	if verifiedAt.Valid {
		session.VerifiedAt = &verifiedAt.Time
	}
	return &session, nil
}

func (s *PostgresStore) FindNullifier(ctx context.Context, nullifierHash string) (*models.NullifierRecord, error) {
	query := `
		SELECT id, nullifier_hash, user_id, verified_at, verification_level
		FROM worldid_nullifiers
		WHERE nullifier_hash = $1
	`
	var (
		record models.NullifierRecord
		level  string
	)
	err := s.exec.QueryRowContext(ctx, query, nullifierHash).Scan(
		&record.ID, &record.NullifierHash, &record.UserID, &record.VerifiedAt, &level,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sentinel.ErrNotFound
		}
		return nil, fmt.Errorf("find nullifier: %w", err)
	}
	record.VerificationLevel = models.VerificationLevel(level)
	return &record, nil
}

// MarkAccountVerified only matches an unverified account, so a concurrent
// commit for the same account loses with ErrInvalidState.
func (s *PostgresStore) MarkAccountVerified(ctx context.Context, v models.Verification) error {
	query := `
		UPDATE accounts SET
			is_verified = TRUE,
			trust_score = trust_score + $2,
			verification_badges = array_append(verification_badges, $3),
			worldid_verified_at = $4,
			worldid_nullifier = $5,
			worldid_level = $6,
			worldid_boost = $2,
			updated_at = $4
		WHERE id = $1 AND is_verified = FALSE
	`
	res, err := s.exec.ExecContext(ctx, query,
		v.AccountID, v.TrustScoreBoost, v.BadgeName, v.VerifiedAt, v.NullifierHash, string(v.VerificationLevel))
	if err != nil {
		return fmt.Errorf("mark account verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark account verified: %w", err)
	}
	if n == 0 {
		if _, err := s.GetAccount(ctx, v.AccountID); err != nil {
			return err
		}
		return sentinel.ErrInvalidState
	}
	return nil
}

// InsertNullifier relies on the primary key: the second insert of a hash
// fails with ErrAlreadyUsed no matter how the callers interleave.
func (s *PostgresStore) InsertNullifier(ctx context.Context, record models.NullifierRecord) error {
	query := `
		INSERT INTO worldid_nullifiers (nullifier_hash, id, user_id, verified_at, verification_level)
		VALUES ($1, $2, $3, $4, $5)
	`
	_, err := s.exec.ExecContext(ctx, query,
		record.NullifierHash, record.ID, record.UserID, record.VerifiedAt, string(record.VerificationLevel))
	if err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert nullifier: %w", err)
	}
	return nil
}

func (s *PostgresStore) MarkSessionVerified(ctx context.Context, accountID, signal string, verifiedAt time.Time) error {
	query := `
		UPDATE worldid_sessions SET verified = TRUE, verified_at = $3
		WHERE account_id = $1 AND signal = $2 AND verified = FALSE
	`
	res, err := s.exec.ExecContext(ctx, query, accountID, signal, verifiedAt)
	if err != nil {
		return fmt.Errorf("mark session verified: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark session verified: %w", err)
	}
	if n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// RunInTx runs fn inside a database transaction and commits only when fn
// succeeds.
func (s *PostgresStore) RunInTx(ctx context.Context, fn func(store service.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := s.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	if s.db == nil {
		return errors.New("begin transaction: store is already bound to a transaction")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(newPostgresTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		if isUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func scanAccount(row *sql.Row) (*models.Account, error) {
	var (
		account    models.Account
		badges     pq.StringArray
		verifiedAt sql.NullTime
		nullifier  sql.NullString
		level      sql.NullString
		boost      sql.NullInt64
	)
	err := row.Scan(
		&account.ID, &account.IsVerified, &account.TrustScore, &badges,
		&verifiedAt, &nullifier, &level, &boost,
		&account.CreatedAt, &account.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	account.VerificationBadges = append([]string{}, badges...)
	if verifiedAt.Valid {
		account.WorldIDVerification = &models.WorldIDVerification{
			VerifiedAt:        verifiedAt.Time,
			NullifierHash:     nullifier.String,
			VerificationLevel: models.VerificationLevel(level.String),
			TrustScoreBoost:   int(boost.Int64),
		}
	}
	return &account, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation
}
