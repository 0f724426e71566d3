// README: Account model and registration/login errors.
package account

import (
	"errors"
	"time"

	"rideshare/internal/types"
)

const MinPasswordLength = 6

var (
	ErrInvalidEmail       = errors.New("enter a valid email address")
	ErrWeakPassword       = errors.New("password must be at least 6 characters")
	ErrEmailTaken         = errors.New("email is already registered")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrNotFound           = errors.New("account not found")
)

type Account struct {
	ID           types.ID
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Session is what a successful login hands back to the client.
type Session struct {
	Token     string
	ExpiresAt time.Time
	Account   *Account
}
