// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"

	"github.com/and161185/secure-notes/internal/model"
	"github.com/gofrs/uuid/v5"
)

// AccountRepository provides access to accounts.
type AccountRepository interface {
	// Create inserts a new account; errs.ErrAlreadyExists on duplicate email.
	Create(ctx context.Context, a *model.Account) error
	// GetByID loads an account by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Account, error)
	// GetByEmail loads an account by normalized email.
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	// Save overwrites the mutable fields of an existing account.
	Save(ctx context.Context, a *model.Account) error
}

// CredentialRepository is the append-only store of issued token pairs.
type CredentialRepository interface {
	// FindActiveByAccount returns credentials with LoggedOut=false.
	FindActiveByAccount(ctx context.Context, accountID uuid.UUID) ([]model.Credential, error)
	// Save inserts a credential or updates its LoggedOut flag.
	Save(ctx context.Context, c *model.Credential) error
	// SaveAll applies Save to every credential in one transaction.
	SaveAll(ctx context.Context, cs []model.Credential) error
	// GetByAccessHash looks a credential up by access token digest.
	GetByAccessHash(ctx context.Context, hash []byte) (*model.Credential, error)
	// GetByRefreshHash looks a credential up by refresh token digest.
	GetByRefreshHash(ctx context.Context, hash []byte) (*model.Credential, error)
}

// NoteRepository stores encrypted notes.
type NoteRepository interface {
	// GetByID loads a note regardless of owner; ownership is the caller's check.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Note, error)
	// ListByOwner returns all of an owner's notes in insertion order.
	ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Note, error)
	// ListPlainByOwner returns the owner's notes without a secondary password.
	ListPlainByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Note, error)
	// Save inserts or updates a note and fills in its timestamps.
	Save(ctx context.Context, n *model.Note) error
	// Delete removes a note by ID.
	Delete(ctx context.Context, id uuid.UUID) error
}
