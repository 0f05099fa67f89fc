package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/larexx40/gowagr-test/internal/domain"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"
)

const userColumns = `id, email, firstname, lastname, username, password_hash, balance,
	is_verified, verification_otp, otp_expires_at, refresh_token, created_at, updated_at`

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := s.conn(ctx).ExecContext(ctx, query,
		user.ID, user.Email, user.Firstname, user.Lastname, user.Username,
		user.PasswordHash, user.Balance, user.IsVerified,
		nullString(user.VerificationOTP), nullTime(user.OTPExpiresAt),
		nullString(user.RefreshToken), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email or username taken", domain.ErrConflict)
		}
		return fmt.Errorf("failed to create user: %w", err)
	}
	return nil
}

// UpdateUser persists every mutable field except balance. Balance moves only
// through LockUsers/UpdateBalance inside a unit of work.
func (s *Store) UpdateUser(ctx context.Context, user *domain.User) error {
	query := `
		UPDATE users
		SET email = $2, firstname = $3, lastname = $4, username = $5,
			password_hash = $6, is_verified = $7, verification_otp = $8,
			otp_expires_at = $9, refresh_token = $10, updated_at = $11
		WHERE id = $1
	`
	result, err := s.conn(ctx).ExecContext(ctx, query,
		user.ID, user.Email, user.Firstname, user.Lastname, user.Username,
		user.PasswordHash, user.IsVerified,
		nullString(user.VerificationOTP), nullTime(user.OTPExpiresAt),
		nullString(user.RefreshToken), time.Now().UTC(),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: email or username taken", domain.ErrConflict)
		}
		return fmt.Errorf("failed to update user: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: user", domain.ErrNotFound)
	}
	return nil
}

func (s *Store) FindUserByID(ctx context.Context, id string) (*domain.User, error) {
	return s.findUser(ctx, `WHERE id = $1`, id)
}

func (s *Store) FindUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	return s.findUser(ctx, `WHERE username = $1`, username)
}

func (s *Store) FindUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	return s.findUser(ctx, `WHERE email = $1`, email)
}

// FindUserByEmailOrUsername is the signup collision probe: it returns whichever
// user already holds either identifier.
func (s *Store) FindUserByEmailOrUsername(ctx context.Context, email, username string) (*domain.User, error) {
	return s.findUser(ctx, `WHERE email = $1 OR username = $2`, email, username)
}

func (s *Store) findUser(ctx context.Context, where string, args ...any) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ` + where
	row := s.conn(ctx).QueryRowContext(ctx, query, args...)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: user", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// LockUsers takes exclusive row locks on the given users for the duration of
// the surrounding unit of work. Locks are always acquired in ascending id
// order regardless of argument order, so two opposite-direction transfers can
// never deadlock each other. Missing rows are simply absent from the result.
func (s *Store) LockUsers(ctx context.Context, ids ...string) (map[string]*domain.User, error) {
	if getTx(ctx) == nil {
		return nil, fmt.Errorf("LockUsers called outside a transaction")
	}

	sorted := append([]string(nil), ids...)
	sort.Strings(sorted)

	query := `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = ANY($1)
		ORDER BY id
		FOR UPDATE
	`
	rows, err := s.conn(ctx).QueryContext(ctx, query, pq.Array(sorted))
	if err != nil {
		return nil, fmt.Errorf("failed to lock users: %w", mapLockErr(err))
	}
	defer rows.Close()

	locked := make(map[string]*domain.User, len(ids))
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan locked user: %w", err)
		}
		locked[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to lock users: %w", mapLockErr(err))
	}
	return locked, nil
}

// UpdateBalance writes a new balance for a locked user row. Must only be
// called inside the unit of work holding the row lock.
func (s *Store) UpdateBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	query := `UPDATE users SET balance = $2, updated_at = NOW() WHERE id = $1`
	result, err := s.conn(ctx).ExecContext(ctx, query, userID, balance)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", mapLockErr(err))
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: user vanished mid-transaction", domain.ErrOperationUnavailable)
	}
	return nil
}

type scannable interface {
	Scan(dest ...any) error
}

func scanUser(row scannable) (*domain.User, error) {
	var user domain.User
	var otp, refreshToken sql.NullString
	var otpExpiresAt sql.NullTime

	err := row.Scan(
		&user.ID, &user.Email, &user.Firstname, &user.Lastname, &user.Username,
		&user.PasswordHash, &user.Balance, &user.IsVerified,
		&otp, &otpExpiresAt, &refreshToken, &user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if otp.Valid {
		user.VerificationOTP = otp.String
	}
	if otpExpiresAt.Valid {
		user.OTPExpiresAt = otpExpiresAt.Time
	}
	if refreshToken.Valid {
		user.RefreshToken = refreshToken.String
	}
	return &user, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}
