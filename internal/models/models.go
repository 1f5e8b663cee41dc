package models

import "time"

// Model is implemented by every record the account store persists.
type Model interface {
	ID() string
	CreatedAt() time.Time
	UpdatedAt() time.Time
	Validate() error // Validate rejects records that must not reach the database
}

// Repository is the CRUD surface shared by the sqlite repositories.
//
// Delete only marks a row as deleted; Get and List never return marked rows.
type Repository[T Model] interface {
	Create(model T) error
	Get(id string) (T, error)
	Update(model T) error
	Delete(id string) error
	List(criteria map[string]any) ([]T, error) // List filters on the keys each repository documents
}
