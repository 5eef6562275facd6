// Package auth is the identity boundary. The rest of the contest only
// needs "who is signed in, if anyone" and a notification on every change.
package auth

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrInvalidCredentials is returned for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid email or password")

	// ErrEmailTaken is returned by SignUp for an existing account.
	ErrEmailTaken = errors.New("email already registered")

	// ErrWeakPassword is returned for passwords shorter than MinPasswordLength.
	ErrWeakPassword = errors.New("password too short")

	// ErrInvalidToken is returned for unknown, used or expired reset tokens.
	ErrInvalidToken = errors.New("invalid or expired reset token")

	// ErrNotSignedIn is returned by operations that need a session.
	ErrNotSignedIn = errors.New("not signed in")
)

// MinPasswordLength is the shortest accepted password.
const MinPasswordLength = 6

// User is the signed-in identity.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// EventType names an identity transition.
type EventType string

const (
	SignedIn         EventType = "SIGNED_IN"
	SignedOut        EventType = "SIGNED_OUT"
	TokenRefreshed   EventType = "TOKEN_REFRESHED"
	UserUpdated      EventType = "USER_UPDATED"
	PasswordRecovery EventType = "PASSWORD_RECOVERY"
)

// Event is delivered to subscribers on every transition. User is nil for
// SignedOut.
type Event struct {
	Type EventType
	User *User
}

// Provider is an identity provider.
type Provider interface {
	SignIn(ctx context.Context, email, password string) (User, error)
	SignUp(ctx context.Context, email, password string) (User, error)
	SignOut(ctx context.Context) error

	// RequestPasswordReset issues a reset token for email. Delivery of the
	// token is the provider's concern; Local returns it to the caller.
	RequestPasswordReset(ctx context.Context, email string) (string, error)

	// ConfirmPasswordReset sets a new password and signs the user in.
	ConfirmPasswordReset(ctx context.Context, token, newPassword string) (User, error)

	CurrentUser() (User, bool)

	// Subscribe registers fn for every subsequent event and returns a
	// function that removes it.
	Subscribe(fn func(Event)) (unsubscribe func())
}

// hub tracks the current user and fans events out to subscribers.
// Subscribers run synchronously, in registration order, without hub locks
// held, so they may call back into the provider.
type hub struct {
	mu     sync.Mutex
	user   *User
	nextID int
	subs   map[int]func(Event)
	order  []int
}

func (h *hub) current() (User, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.user == nil {
		return User{}, false
	}
	return *h.user, true
}

func (h *hub) subscribe(fn func(Event)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]func(Event))
	}
	id := h.nextID
	h.nextID++
	h.subs[id] = fn
	h.order = append(h.order, id)

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
		for i, v := range h.order {
			if v == id {
				h.order = append(h.order[:i], h.order[i+1:]...)
				break
			}
		}
	}
}

// set updates the current user and emits typ.
func (h *hub) set(typ EventType, u *User) {
	h.mu.Lock()
	if u != nil {
		cp := *u
		h.user = &cp
	} else if typ == SignedOut {
		h.user = nil
	}
	fns := make([]func(Event), 0, len(h.order))
	for _, id := range h.order {
		fns = append(fns, h.subs[id])
	}
	var evUser *User
	if h.user != nil {
		cp := *h.user
		evUser = &cp
	}
	h.mu.Unlock()

	ev := Event{Type: typ, User: evUser}
	for _, fn := range fns {
		fn(ev)
	}
}
