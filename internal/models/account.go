package models

import (
	"fmt"
	"strings"
	"time"
)

// Account is a local user account. It optionally links to one Spotify identity.
type Account struct {
	id           string
	sequence     int
	username     string
	email        string
	passwordHash string
	identity     *LinkedIdentity
	createdAt    time.Time
	updatedAt    time.Time
	deletedAt    *time.Time
}

// NewAccount creates an unsaved [Account]. The ID is assigned by the repository.
func NewAccount(sequence int, username, email, passwordHash string) *Account {
	now := time.Now().UTC()
	return &Account{
		sequence:     sequence,
		username:     strings.TrimSpace(username),
		email:        strings.ToLower(strings.TrimSpace(email)),
		passwordHash: passwordHash,
		createdAt:    now,
		updatedAt:    now,
	}
}

func (a *Account) ID() string { return a.id }
func (a *Account) Sequence() int { return a.sequence }
func (a *Account) Username() string { return a.username }
func (a *Account) Email() string { return a.email }
func (a *Account) PasswordHash() string { return a.passwordHash }
func (a *Account) CreatedAt() time.Time { return a.createdAt }
func (a *Account) UpdatedAt() time.Time { return a.updatedAt }
func (a *Account) DeletedAt() *time.Time { return a.deletedAt }
func (a *Account) Identity() *LinkedIdentity { return a.identity }

func (a *Account) SetID(id string) { a.id = id }
func (a *Account) SetSequence(seq int) { a.sequence = seq }
func (a *Account) SetEmail(email string) { a.email = strings.ToLower(strings.TrimSpace(email)) }
func (a *Account) SetPasswordHash(hash string) { a.passwordHash = hash }
func (a *Account) SetCreatedAt(t time.Time) { a.createdAt = t }
func (a *Account) SetUpdatedAt(t time.Time) { a.updatedAt = t }
func (a *Account) SetDeletedAt(t *time.Time) { a.deletedAt = t }
func (a *Account) SetIdentity(l *LinkedIdentity) { a.identity = l }

// SpotifyConnected reports whether a connected identity with a stored refresh token exists.
func (a *Account) SpotifyConnected() bool {
	return a.identity != nil && a.identity.Connected && a.identity.ExternalRefreshToken != ""
}

// SpotifyRefreshToken returns the stored refresh token of the linked identity, if any.
func (a *Account) SpotifyRefreshToken() string {
	if !a.SpotifyConnected() {
		return ""
	}
	return a.identity.ExternalRefreshToken
}

// Validate checks required fields.
func (a *Account) Validate() error {
	if a.username == "" {
		return fmt.Errorf("username is required")
	}
	if a.email == "" || !strings.Contains(a.email, "@") {
		return fmt.Errorf("valid email is required")
	}
	if a.passwordHash == "" {
		return fmt.Errorf("password hash is required")
	}
	if a.identity != nil && !a.identity.Valid() {
		return fmt.Errorf("linked identity is incomplete")
	}
	return nil
}
