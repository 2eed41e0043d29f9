package postgres

import (
	"context"
	"errors"

	"github.com/and161185/secure-notes/internal/errs"
	"github.com/and161185/secure-notes/internal/model"
	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"
)

// NoteRepo implements NoteRepository using PostgreSQL.
type NoteRepo struct{ db *DB }

// NewNoteRepo constructs a note repository.
func NewNoteRepo(db *DB) *NoteRepo { return &NoteRepo{db: db} }

// GetByID returns a single note by id.
func (r *NoteRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Note, error) {
	const q = `
SELECT id, owner_id, title_enc, desc_enc, secret_hash, created_at, updated_at
FROM notes WHERE id=$1`
	var n model.Note
	err := r.db.q(ctx).QueryRow(ctx, q, id).
		Scan(&n.ID, &n.OwnerID, &n.TitleEnc, &n.DescEnc, &n.SecretHash, &n.CreatedAt, &n.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &n, nil
}

// ListByOwner returns all notes of an owner, oldest first.
func (r *NoteRepo) ListByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Note, error) {
	const q = `
SELECT id, owner_id, title_enc, desc_enc, secret_hash, created_at, updated_at
FROM notes
WHERE owner_id=$1
ORDER BY created_at ASC, id ASC`
	return r.list(ctx, q, ownerID)
}

// ListPlainByOwner returns the owner's notes that carry no secondary password.
func (r *NoteRepo) ListPlainByOwner(ctx context.Context, ownerID uuid.UUID) ([]model.Note, error) {
	const q = `
SELECT id, owner_id, title_enc, desc_enc, secret_hash, created_at, updated_at
FROM notes
WHERE owner_id=$1 AND secret_hash IS NULL
ORDER BY created_at ASC, id ASC`
	return r.list(ctx, q, ownerID)
}

func (r *NoteRepo) list(ctx context.Context, q string, ownerID uuid.UUID) ([]model.Note, error) {
	rows, err := r.db.q(ctx).Query(ctx, q, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.Note
	for rows.Next() {
		var n model.Note
		if err = rows.Scan(&n.ID, &n.OwnerID, &n.TitleEnc, &n.DescEnc, &n.SecretHash, &n.CreatedAt, &n.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

// Save inserts a new note or replaces content and protection of an existing
// one. The owner of an existing row never changes.
func (r *NoteRepo) Save(ctx context.Context, n *model.Note) error {
	const q = `
INSERT INTO notes (id, owner_id, title_enc, desc_enc, secret_hash)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (id) DO UPDATE
SET title_enc=EXCLUDED.title_enc, desc_enc=EXCLUDED.desc_enc, secret_hash=EXCLUDED.secret_hash, updated_at=now()
RETURNING created_at, updated_at`
	return r.db.q(ctx).QueryRow(ctx, q, n.ID, n.OwnerID, n.TitleEnc, n.DescEnc, n.SecretHash).
		Scan(&n.CreatedAt, &n.UpdatedAt)
}

// Delete removes a note.
func (r *NoteRepo) Delete(ctx context.Context, id uuid.UUID) error {
	const q = `DELETE FROM notes WHERE id=$1`
	tag, err := r.db.q(ctx).Exec(ctx, q, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}
