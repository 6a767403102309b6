package domain

import (
	"strings"
	"time"
)

// RoleClient is the role tag attached to every standard shop customer.
const RoleClient = "client"

// User represents a registered shop customer.
type User struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Age          string
	BirthDate    string
	Profession   string
	Engaged      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Credentials is the login payload. It is never persisted.
type Credentials struct {
	Email    string
	Password string
}

// UserProfile is the minimal projection of a User carried inside issued tokens.
type UserProfile struct {
	ID   string
	Name string
	Role string
}

// DisplayName joins first and last name, skipping whichever is missing.
func (u User) DisplayName() string {
	first := strings.TrimSpace(u.FirstName)
	last := strings.TrimSpace(u.LastName)
	switch {
	case first == "":
		return last
	case last == "":
		return first
	default:
		return first + " " + last
	}
}

// NormalizeEmail is the canonical form emails are stored and looked up in.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
