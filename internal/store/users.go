package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateUser inserts an account. Returns ErrDuplicate when the email
// (case-insensitive) or ID is taken.
func (s *Store) CreateUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, email, password_hash, created_at)
		VALUES (?, ?, ?, ?)
	`, u.ID, u.Email, u.PasswordHash, toNanos(u.CreatedAt))
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("create user %s: %w", u.Email, ErrDuplicate)
		}
		return fmt.Errorf("create user: %w", err)
	}
	return nil
}

// UserByEmail looks up an account by email (case-insensitive).
func (s *Store) UserByEmail(ctx context.Context, email string) (User, error) {
	return s.queryUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE email = ?`, email)
}

// UserByID looks up an account by ID.
func (s *Store) UserByID(ctx context.Context, id string) (User, error) {
	return s.queryUser(ctx, `SELECT id, email, password_hash, created_at FROM users WHERE id = ?`, id)
}

func (s *Store) queryUser(ctx context.Context, query string, arg string) (User, error) {
	var (
		u         User
		createdAt int64
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(&u.ID, &u.Email, &u.PasswordHash, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("user %s: %w", arg, ErrNotFound)
	}
	if err != nil {
		return User{}, fmt.Errorf("query user: %w", err)
	}
	u.CreatedAt = fromNanos(createdAt)
	return u, nil
}

// UpdatePassword replaces the stored hash for userID.
func (s *Store) UpdatePassword(ctx context.Context, userID string, hash []byte) error {
	result, err := s.db.ExecContext(ctx, `UPDATE users SET password_hash = ? WHERE id = ?`, hash, userID)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update password: rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("update password for %s: %w", userID, ErrNotFound)
	}
	return nil
}

// CreateReset stores a password reset token for userID.
func (s *Store) CreateReset(ctx context.Context, token, userID string, expires time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO password_resets (token, user_id, expires_at) VALUES (?, ?, ?)
	`, token, userID, toNanos(expires))
	if err != nil {
		return fmt.Errorf("create reset: %w", err)
	}
	return nil
}

// ConsumeReset marks token used and returns its user. A token can be
// consumed once; unknown or used tokens return ErrNotFound, stale ones
// ErrExpired.
func (s *Store) ConsumeReset(ctx context.Context, token string, now time.Time) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("consume reset: begin tx: %w", err)
	}
	defer tx.Rollback()

	var (
		userID  string
		expires int64
	)
	err = tx.QueryRowContext(ctx, `
		SELECT user_id, expires_at FROM password_resets WHERE token = ? AND used = 0
	`, token).Scan(&userID, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("consume reset: %w", ErrNotFound)
	}
	if err != nil {
		return "", fmt.Errorf("consume reset: %w", err)
	}
	if toNanos(now) > expires {
		return "", fmt.Errorf("consume reset: %w", ErrExpired)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE password_resets SET used = 1 WHERE token = ?`, token); err != nil {
		return "", fmt.Errorf("consume reset: mark used: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("consume reset: commit: %w", err)
	}
	return userID, nil
}
