package session

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/desertthunder/soundcheck/internal/models"
)

// Credentials is everything the client persists between runs.
//
// The JSON keys are fixed; the token file is shared by every CLI invocation.
type Credentials struct {
	AccessToken  string              `json:"access_token,omitempty"`
	RefreshToken string              `json:"refresh_token,omitempty"`
	AuthToken    string              `json:"auth_token,omitempty"`
	UserData     *models.AccountView `json:"user_data,omitempty"`
}

// Token returns the stored provider credentials, or nil when no access token is stored.
func (c Credentials) Token() *models.TokenRecord {
	if c.AccessToken == "" {
		return nil
	}
	return &models.TokenRecord{AccessToken: c.AccessToken, RefreshToken: c.RefreshToken}
}

// SetToken replaces the access token and, when rec carries one, the refresh token.
func (c *Credentials) SetToken(rec models.TokenRecord) {
	c.AccessToken = rec.AccessToken
	if rec.RefreshToken != "" {
		c.RefreshToken = rec.RefreshToken
	}
}

// ClearToken discards both provider tokens and keeps the local account session.
func (c *Credentials) ClearToken() {
	c.AccessToken = ""
	c.RefreshToken = ""
}

// TokenStore persists [Credentials].
//
// Update runs fn against the current value and persists the result atomically; concurrent updates
// are serialized.
type TokenStore interface {
	Load() (Credentials, error)
	Update(fn func(*Credentials) error) error
}

// FileStore is a [TokenStore] backed by a JSON file.
//
// Writes go to a temp file that is renamed over the target while a sibling lock file is held,
// so readers in other processes never observe a partial write.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store at path. The file and its directory are created on first write.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Path returns the token file location.
func (f *FileStore) Path() string {
	return f.path
}

// Load reads the token file. A missing file is an empty [Credentials].
func (f *FileStore) Load() (Credentials, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.read()
}

// Update implements [TokenStore].
func (f *FileStore) Update(fn func(*Credentials) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(f.path), 0o700); err != nil {
		return fmt.Errorf("failed to create token directory: %w", err)
	}

	lock, err := acquireFileLock(f.path)
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	defer lock.release()

	// An unreadable file is left for the user to inspect rather than overwritten.
	creds, err := f.read()
	if err != nil {
		return fmt.Errorf("%w (remove %s to start over)", err, f.path)
	}

	if err := fn(&creds); err != nil {
		return err
	}
	return f.write(creds)
}

func (f *FileStore) read() (Credentials, error) {
	var creds Credentials

	data, err := os.ReadFile(f.path)
	if errors.Is(err, os.ErrNotExist) {
		return creds, nil
	}
	if err != nil {
		return creds, fmt.Errorf("failed to read token file: %w", err)
	}
	if len(data) == 0 {
		return creds, nil
	}

	if err := json.Unmarshal(data, &creds); err != nil {
		return Credentials{}, fmt.Errorf("failed to parse token file: %w", err)
	}
	return creds, nil
}

func (f *FileStore) write(creds Credentials) error {
	data, err := json.MarshalIndent(creds, "", "  ")
	if err != nil {
		return err
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := os.Rename(tmp, f.path); err != nil {
		if removeErr := os.Remove(tmp); removeErr != nil {
			return fmt.Errorf("failed to rename temp file: %v; additionally failed to remove temp file: %w", err, removeErr)
		}
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// MemoryStore is a process-local [TokenStore].
type MemoryStore struct {
	mu    sync.Mutex
	creds Credentials
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) Load() (Credentials, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.creds, nil
}

func (m *MemoryStore) Update(fn func(*Credentials) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	next := m.creds
	if err := fn(&next); err != nil {
		return err
	}
	m.creds = next
	return nil
}
