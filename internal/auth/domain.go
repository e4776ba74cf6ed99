package auth

import (
	"errors"
	"time"

	"github.com/coworkhub/coworkhub/internal/access"
	"github.com/coworkhub/coworkhub/internal/session"
)

var (
	// ErrInvalidCredentials hides whether the email or the password was wrong.
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
	// ErrUserNotFound is returned by repositories for unknown emails.
	ErrUserNotFound = errors.New("auth: user not found")
)

// User represents an account able to sign in.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	Role         access.Role
	IsActive     bool
	Status       session.Status
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// LoginInput carries credentials and client metadata of a login attempt.
type LoginInput struct {
	Email     string
	Password  string
	IP        string
	UserAgent string
}

// LoginResult is a successful login.
type LoginResult struct {
	User  *User
	Raw   string
	Token session.Token
}
