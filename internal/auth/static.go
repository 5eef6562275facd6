package auth

import (
	"context"
	"strings"
)

// Static is an in-memory provider with a fixed account list. Tests and the
// scenario harness use it.
type Static struct {
	hub
	accounts map[string]staticAccount
}

type staticAccount struct {
	user     User
	password string
}

// NewStatic returns a provider with no accounts.
func NewStatic() *Static {
	return &Static{accounts: make(map[string]staticAccount)}
}

// Add registers an account.
func (s *Static) Add(u User, password string) {
	s.accounts[strings.ToLower(u.Email)] = staticAccount{user: u, password: password}
}

func (s *Static) SignIn(_ context.Context, email, password string) (User, error) {
	acct, ok := s.accounts[strings.ToLower(strings.TrimSpace(email))]
	if !ok || acct.password != password {
		return User{}, ErrInvalidCredentials
	}
	s.set(SignedIn, &acct.user)
	return acct.user, nil
}

// As signs in u without a password check.
func (s *Static) As(u User) {
	s.set(SignedIn, &u)
}

func (s *Static) SignUp(ctx context.Context, email, password string) (User, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	if _, ok := s.accounts[key]; ok {
		return User{}, ErrEmailTaken
	}
	if len(password) < MinPasswordLength {
		return User{}, ErrWeakPassword
	}
	u := User{ID: "user-" + key, Email: strings.TrimSpace(email)}
	s.accounts[key] = staticAccount{user: u, password: password}
	s.set(SignedIn, &u)
	return u, nil
}

func (s *Static) SignOut(context.Context) error {
	s.set(SignedOut, nil)
	return nil
}

// Refresh emits TokenRefreshed for the current user.
func (s *Static) Refresh() {
	if u, ok := s.current(); ok {
		s.set(TokenRefreshed, &u)
	}
}

func (s *Static) RequestPasswordReset(_ context.Context, email string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(email))
	if _, ok := s.accounts[key]; !ok {
		return "", ErrInvalidCredentials
	}
	return "reset:" + key, nil
}

func (s *Static) ConfirmPasswordReset(_ context.Context, token, newPassword string) (User, error) {
	key, ok := strings.CutPrefix(token, "reset:")
	acct, found := s.accounts[key]
	if !ok || !found {
		return User{}, ErrInvalidToken
	}
	if len(newPassword) < MinPasswordLength {
		return User{}, ErrWeakPassword
	}
	acct.password = newPassword
	s.accounts[key] = acct
	s.set(PasswordRecovery, &acct.user)
	s.set(SignedIn, &acct.user)
	return acct.user, nil
}

func (s *Static) CurrentUser() (User, bool) {
	return s.current()
}

func (s *Static) Subscribe(fn func(Event)) func() {
	return s.subscribe(fn)
}
