package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/mnzioki/dukabook/pkg/ledger"
)

// UserStore manages account rows in the users table.
type UserStore struct {
	db *sql.DB
}

// NewUserStore creates a user store on an existing database handle.
func NewUserStore(db *sql.DB) *UserStore {
	return &UserStore{db: db}
}

// Register creates an account with a bcrypt-hashed password.
func (s *UserStore) Register(ctx context.Context, email, password, businessName string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, &ledger.ValidationError{Field: "email", Message: "a valid email is required"}
	}
	if len(password) < 8 {
		return nil, &ledger.ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &User{Email: email, BusinessName: businessName}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password_hash, business_name)
		VALUES ($1, $2, NULLIF($3, ''))
		RETURNING id, created_at, updated_at
	`, email, string(hash), businessName).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Authenticate verifies credentials and returns the account.
func (s *UserStore) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))

	user := &User{}
	var businessName sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, business_name, created_at, updated_at
		FROM users WHERE email = $1
	`, email).Scan(&user.ID, &user.Email, &user.PasswordHash, &businessName,
		&user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}
	user.BusinessName = businessName.String

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// Get loads an account by ID.
func (s *UserStore) Get(ctx context.Context, userID string) (*User, error) {
	user := &User{}
	var businessName sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT id, email, password_hash, business_name, created_at, updated_at
		FROM users WHERE id = $1
	`, userID).Scan(&user.ID, &user.Email, &user.PasswordHash, &businessName,
		&user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	user.BusinessName = businessName.String
	return user, nil
}

// ChangePassword rehashes and stores a new password after verifying the
// current one.
func (s *UserStore) ChangePassword(ctx context.Context, userID, current, next string) error {
	user, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(current)) != nil {
		return ErrInvalidCredentials
	}
	if len(next) < 8 {
		return &ledger.ValidationError{Field: "password", Message: "password must be at least 8 characters"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		UPDATE users SET password_hash = $2, updated_at = NOW() WHERE id = $1
	`, userID, string(hash))
	if err != nil {
		return fmt.Errorf("failed to update password: %w", err)
	}
	return nil
}
