package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/roach88/contest/internal/store"
)

// DefaultResetTTL is how long a password reset token stays valid.
const DefaultResetTTL = time.Hour

// Accounts is the slice of the contest store Local needs.
type Accounts interface {
	CreateUser(ctx context.Context, u store.User) error
	UserByEmail(ctx context.Context, email string) (store.User, error)
	UserByID(ctx context.Context, id string) (store.User, error)
	UpdatePassword(ctx context.Context, userID string, hash []byte) error
	CreateReset(ctx context.Context, token, userID string, expires time.Time) error
	ConsumeReset(ctx context.Context, token string, now time.Time) (string, error)
}

// Local authenticates against the contest store's users table.
// Passwords are bcrypt hashes; reset tokens are random UUIDs.
type Local struct {
	hub
	accounts Accounts
	now      func() time.Time
	resetTTL time.Duration
	cost     int
	logger   *slog.Logger
}

// LocalOption configures Local.
type LocalOption func(*Local)

// WithNow overrides the clock.
func WithNow(now func() time.Time) LocalOption {
	return func(l *Local) { l.now = now }
}

// WithResetTTL overrides DefaultResetTTL.
func WithResetTTL(d time.Duration) LocalOption {
	return func(l *Local) { l.resetTTL = d }
}

// WithBcryptCost overrides bcrypt.DefaultCost. Tests use bcrypt.MinCost.
func WithBcryptCost(cost int) LocalOption {
	return func(l *Local) { l.cost = cost }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) LocalOption {
	return func(l *Local) { l.logger = logger }
}

// NewLocal returns a provider over accounts.
func NewLocal(accounts Accounts, opts ...LocalOption) *Local {
	l := &Local{
		accounts: accounts,
		now:      time.Now,
		resetTTL: DefaultResetTTL,
		cost:     bcrypt.DefaultCost,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func normalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

func (l *Local) SignIn(ctx context.Context, email, password string) (User, error) {
	su, err := l.accounts.UserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return User{}, ErrInvalidCredentials
	}
	if err != nil {
		return User{}, fmt.Errorf("sign in: %w", err)
	}
	if err := bcrypt.CompareHashAndPassword(su.PasswordHash, []byte(password)); err != nil {
		return User{}, ErrInvalidCredentials
	}

	u := User{ID: su.ID, Email: su.Email}
	l.logger.Info("signed in", "user_id", u.ID)
	l.set(SignedIn, &u)
	return u, nil
}

func (l *Local) SignUp(ctx context.Context, email, password string) (User, error) {
	email = normalizeEmail(email)
	if len(password) < MinPasswordLength {
		return User{}, ErrWeakPassword
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), l.cost)
	if err != nil {
		return User{}, fmt.Errorf("sign up: hash password: %w", err)
	}

	su := store.User{
		ID:           uuid.NewString(),
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    l.now(),
	}
	if err := l.accounts.CreateUser(ctx, su); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			return User{}, ErrEmailTaken
		}
		return User{}, fmt.Errorf("sign up: %w", err)
	}

	u := User{ID: su.ID, Email: su.Email}
	l.logger.Info("signed up", "user_id", u.ID)
	l.set(SignedIn, &u)
	return u, nil
}

func (l *Local) SignOut(context.Context) error {
	l.set(SignedOut, nil)
	return nil
}

// Refresh re-reads the signed-in account and emits TokenRefreshed.
func (l *Local) Refresh(ctx context.Context) error {
	u, ok := l.current()
	if !ok {
		return ErrNotSignedIn
	}
	su, err := l.accounts.UserByID(ctx, u.ID)
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	u.Email = su.Email
	l.set(TokenRefreshed, &u)
	return nil
}

func (l *Local) RequestPasswordReset(ctx context.Context, email string) (string, error) {
	su, err := l.accounts.UserByEmail(ctx, normalizeEmail(email))
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", fmt.Errorf("request reset: %w", err)
	}

	token := uuid.NewString()
	if err := l.accounts.CreateReset(ctx, token, su.ID, l.now().Add(l.resetTTL)); err != nil {
		return "", fmt.Errorf("request reset: %w", err)
	}
	l.logger.Info("password reset requested", "user_id", su.ID)
	return token, nil
}

func (l *Local) ConfirmPasswordReset(ctx context.Context, token, newPassword string) (User, error) {
	if len(newPassword) < MinPasswordLength {
		return User{}, ErrWeakPassword
	}

	userID, err := l.accounts.ConsumeReset(ctx, token, l.now())
	if errors.Is(err, store.ErrNotFound) || errors.Is(err, store.ErrExpired) {
		return User{}, ErrInvalidToken
	}
	if err != nil {
		return User{}, fmt.Errorf("confirm reset: %w", err)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), l.cost)
	if err != nil {
		return User{}, fmt.Errorf("confirm reset: hash password: %w", err)
	}
	if err := l.accounts.UpdatePassword(ctx, userID, hash); err != nil {
		return User{}, fmt.Errorf("confirm reset: %w", err)
	}
	su, err := l.accounts.UserByID(ctx, userID)
	if err != nil {
		return User{}, fmt.Errorf("confirm reset: %w", err)
	}

	u := User{ID: su.ID, Email: su.Email}
	l.set(PasswordRecovery, &u)
	l.set(SignedIn, &u)
	return u, nil
}

func (l *Local) CurrentUser() (User, bool) {
	return l.current()
}

func (l *Local) Subscribe(fn func(Event)) func() {
	return l.subscribe(fn)
}
