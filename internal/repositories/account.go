package repositories

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/soundcheck/internal/models"
	"github.com/desertthunder/soundcheck/internal/shared"
)

const accountColumns = `
	a.id, a.sequence, a.username, a.email, a.password_hash, a.created_at, a.updated_at, a.deleted_at,
	li.external_account_id, li.external_refresh_token, li.connected
`

const accountFrom = `
	FROM accounts a
	LEFT JOIN linked_identities li ON li.account_id = a.id
`

// AccountRepository implements [models.Repository] for [models.Account] persistence.
type AccountRepository struct {
	db *sql.DB
}

// NewAccountRepository creates a new [AccountRepository] with the given database connection
func NewAccountRepository(db *sql.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

// Create inserts a new account with generated ID and sequence.
//
// Returns [shared.ErrAccountExists] when the username or email is taken.
func (r *AccountRepository) Create(account *models.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	sequence, err := NextSequence(r.db, "accounts")
	if err != nil {
		return fmt.Errorf("failed to generate sequence: %w", err)
	}

	id := shared.GenerateID()

	query := `
		INSERT INTO accounts (id, sequence, username, email, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.Exec(query, id, sequence, account.Username(), account.Email(), account.PasswordHash(),
		account.CreatedAt(), account.UpdatedAt())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", shared.ErrAccountExists, account.Username())
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}

	account.SetID(id)
	account.SetSequence(sequence)
	return nil
}

// Get retrieves an account by ID, excluding soft-deleted accounts
func (r *AccountRepository) Get(id string) (*models.Account, error) {
	query := "SELECT " + accountColumns + accountFrom + " WHERE a.id = ? AND a.deleted_at IS NULL"

	account, err := scanAccount(r.db.QueryRow(query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return account, nil
}

// FindByUsername retrieves an account by its unique username
func (r *AccountRepository) FindByUsername(username string) (*models.Account, error) {
	query := "SELECT " + accountColumns + accountFrom + " WHERE a.username = ? AND a.deleted_at IS NULL"

	account, err := scanAccount(r.db.QueryRow(query, username))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", shared.ErrAccountNotFound, username)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query account: %w", err)
	}
	return account, nil
}

// Update modifies the email and password hash of an existing account
func (r *AccountRepository) Update(account *models.Account) error {
	if err := account.Validate(); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}

	now := time.Now().UTC()

	query := `
		UPDATE accounts
		SET email = ?, password_hash = ?, updated_at = ?
		WHERE id = ? AND deleted_at IS NULL
	`

	result, err := r.db.Exec(query, account.Email(), account.PasswordHash(), now, account.ID())
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", shared.ErrAccountExists, account.Email())
		}
		return fmt.Errorf("failed to update account: %w", err)
	}

	if err := expectOneRow(result, account.ID()); err != nil {
		return err
	}

	account.SetUpdatedAt(now)
	return nil
}

// Delete soft-deletes an account by ID
func (r *AccountRepository) Delete(id string) error {
	query := `UPDATE accounts SET deleted_at = ? WHERE id = ? AND deleted_at IS NULL`

	result, err := r.db.Exec(query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to delete account: %w", err)
	}

	return expectOneRow(result, id)
}

// List retrieves all accounts matching the given criteria, excluding soft-deleted accounts.
//
// Supported criteria: "email" (string), "connected" (bool).
func (r *AccountRepository) List(criteria map[string]any) ([]*models.Account, error) {
	query := "SELECT " + accountColumns + accountFrom + " WHERE a.deleted_at IS NULL"
	args := []any{}

	if email, ok := criteria["email"].(string); ok && email != "" {
		query += " AND a.email = ?"
		args = append(args, email)
	}
	if connected, ok := criteria["connected"].(bool); ok {
		if connected {
			query += " AND li.connected = 1"
		} else {
			query += " AND (li.connected IS NULL OR li.connected = 0)"
		}
	}

	query += " ORDER BY a.sequence ASC"

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*models.Account
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return accounts, nil
}

// Link stores identity against its local account, replacing any previous link.
//
// Returns [shared.ErrAccountNotFound] when the account does not exist or is deleted.
func (r *AccountRepository) Link(identity models.LinkedIdentity) error {
	if !identity.Valid() {
		return fmt.Errorf("%w: incomplete linked identity", shared.ErrInvalidInput)
	}

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists bool
	err = tx.QueryRow("SELECT EXISTS(SELECT 1 FROM accounts WHERE id = ? AND deleted_at IS NULL)", identity.LocalUserID).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check account: %w", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", shared.ErrAccountNotFound, identity.LocalUserID)
	}

	now := time.Now().UTC()
	query := `
		INSERT INTO linked_identities (account_id, external_account_id, external_refresh_token, connected, linked_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(account_id) DO UPDATE SET
			external_account_id = excluded.external_account_id,
			external_refresh_token = excluded.external_refresh_token,
			connected = excluded.connected,
			updated_at = excluded.updated_at
	`
	if _, err := tx.Exec(query, identity.LocalUserID, identity.ExternalAccountID, identity.ExternalRefreshToken,
		identity.Connected, now, now); err != nil {
		return fmt.Errorf("failed to link identity: %w", err)
	}

	if _, err := tx.Exec("UPDATE accounts SET updated_at = ? WHERE id = ?", now, identity.LocalUserID); err != nil {
		return fmt.Errorf("failed to touch account: %w", err)
	}

	return tx.Commit()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*models.Account, error) {
	var (
		id           string
		sequence     int
		username     string
		email        string
		passwordHash string
		createdAt    time.Time
		updatedAt    time.Time
		deletedAt    sql.NullTime
		externalID   sql.NullString
		refreshToken sql.NullString
		connected    sql.NullBool
	)

	err := row.Scan(&id, &sequence, &username, &email, &passwordHash, &createdAt, &updatedAt, &deletedAt,
		&externalID, &refreshToken, &connected)
	if err != nil {
		return nil, err
	}

	account := models.NewAccount(sequence, username, email, passwordHash)
	account.SetID(id)
	account.SetCreatedAt(createdAt)
	account.SetUpdatedAt(updatedAt)
	if deletedAt.Valid {
		account.SetDeletedAt(&deletedAt.Time)
	}
	if externalID.Valid {
		account.SetIdentity(&models.LinkedIdentity{
			LocalUserID:          id,
			ExternalAccountID:    externalID.String,
			ExternalRefreshToken: refreshToken.String,
			Connected:            connected.Valid && connected.Bool,
		})
	}

	return account, nil
}

func expectOneRow(result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%w: %s", shared.ErrAccountNotFound, id)
	}
	return nil
}
