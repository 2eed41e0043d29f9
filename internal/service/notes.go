package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/secure-notes/internal/crypto"
	"github.com/and161185/secure-notes/internal/crypto/fieldcrypto"
	"github.com/and161185/secure-notes/internal/errs"
	"github.com/and161185/secure-notes/internal/lock"
	"github.com/and161185/secure-notes/internal/metrics"
	"github.com/and161185/secure-notes/internal/model"
	"github.com/and161185/secure-notes/internal/repository"
)

// FieldCipher encrypts note text fields at rest.
type FieldCipher interface {
	EncryptString(s string, aad []byte) ([]byte, error)
	DecryptString(blob, aad []byte) (string, error)
}

var _ FieldCipher = (*fieldcrypto.Cipher)(nil)

const (
	fieldTitle = "title"
	fieldDesc  = "description"
)

// LockedHint replaces the content of a secured note in listings.
const LockedHint = "enter the note password to show its content"

// NoteInput is the content of a create or update request. An empty Secret
// means the note is (or becomes) plain.
type NoteInput struct {
	Title       string
	Description string
	Secret      string
}

// NoteService defines owner-scoped note operations behind the access gate.
type NoteService interface {
	// Create stores a new note, encrypted, optionally protected by Secret.
	Create(ctx context.Context, owner uuid.UUID, in NoteInput) (*model.NoteView, error)
	// Get returns the decrypted note.
	Get(ctx context.Context, owner, id uuid.UUID, secret string) (*model.NoteView, error)
	// Update replaces content and protection of the note.
	Update(ctx context.Context, owner, id uuid.UUID, secret string, in NoteInput) (*model.NoteView, error)
	// Delete removes the note and returns its last content.
	Delete(ctx context.Context, owner, id uuid.UUID, secret string) (*model.NoteView, error)
	// SetSecret protects a plain note with a secondary password.
	SetSecret(ctx context.Context, owner, id uuid.UUID, newSecret string) (*model.NoteView, error)
	// ClearSecret removes the secondary password given the current one.
	ClearSecret(ctx context.Context, owner, id uuid.UUID, secret string) (*model.NoteView, error)
	// List returns the owner's notes; secured ones are locked stubs.
	List(ctx context.Context, owner uuid.UUID) ([]model.NoteView, error)
	// Search returns plain notes whose title or description contains keyword.
	Search(ctx context.Context, owner uuid.UUID, keyword string) ([]model.NoteView, error)
}

type NoteServiceImpl struct {
	notes   repository.NoteRepository
	cipher  FieldCipher
	hasher  crypto.Hasher
	locks   lock.Locker
	metrics metrics.Recorder
	log     *zap.Logger
}

// NewNoteService constructs NoteService with required dependencies.
func NewNoteService(notes repository.NoteRepository, cipher FieldCipher, hasher crypto.Hasher, locks lock.Locker, rec metrics.Recorder, log *zap.Logger) *NoteServiceImpl {
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &NoteServiceImpl{notes: notes, cipher: cipher, hasher: hasher, locks: locks, metrics: rec, log: log}
}

// Create encrypts the text fields before anything is persisted.
func (s *NoteServiceImpl) Create(ctx context.Context, owner uuid.UUID, in NoteInput) (*model.NoteView, error) {
	if owner == uuid.Nil {
		return nil, fmt.Errorf("%w: empty owner", errs.ErrInvalidArgument)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return nil, err
	}
	n := &model.Note{ID: id, OwnerID: owner}
	if err := s.apply(n, in); err != nil {
		return nil, err
	}
	if err := s.notes.Save(ctx, n); err != nil {
		return nil, err
	}
	return plainView(n, in), nil
}

// Get resolves access and decrypts.
func (s *NoteServiceImpl) Get(ctx context.Context, owner, id uuid.UUID, secret string) (*model.NoteView, error) {
	n, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.gate("get", n, owner, secret); err != nil {
		return nil, err
	}
	return s.view(n)
}

// Update re-encrypts the fields and re-states protection from in.
func (s *NoteServiceImpl) Update(ctx context.Context, owner, id uuid.UUID, secret string, in NoteInput) (*model.NoteView, error) {
	var out *model.NoteView
	err := s.mutate(ctx, id, func(lctx context.Context, n *model.Note) error {
		if err := s.gate("update", n, owner, secret); err != nil {
			return err
		}
		if err := s.apply(n, in); err != nil {
			return err
		}
		if err := s.notes.Save(lctx, n); err != nil {
			return err
		}
		out = plainView(n, in)
		return nil
	})
	return out, err
}

// Delete returns the decrypted content of the removed note.
func (s *NoteServiceImpl) Delete(ctx context.Context, owner, id uuid.UUID, secret string) (*model.NoteView, error) {
	var out *model.NoteView
	err := s.mutate(ctx, id, func(lctx context.Context, n *model.Note) error {
		if err := s.gate("delete", n, owner, secret); err != nil {
			return err
		}
		v, err := s.view(n)
		if err != nil {
			return err
		}
		if err := s.notes.Delete(lctx, n.ID); err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// SetSecret is the one-way Plain -> Secured transition.
func (s *NoteServiceImpl) SetSecret(ctx context.Context, owner, id uuid.UUID, newSecret string) (*model.NoteView, error) {
	if newSecret == "" {
		return nil, fmt.Errorf("%w: empty password", errs.ErrInvalidArgument)
	}
	var out *model.NoteView
	err := s.mutate(ctx, id, func(lctx context.Context, n *model.Note) error {
		if err := owns(n, owner); err != nil {
			s.denied("set_secret", err)
			return err
		}
		if n.Secured() {
			return errs.ErrAlreadySecured
		}
		digest, err := s.hasher.Hash([]byte(newSecret))
		if err != nil {
			return fmt.Errorf("hash note password: %w", err)
		}
		n.SecretHash = digest
		if err := s.notes.Save(lctx, n); err != nil {
			return err
		}
		out, err = s.view(n)
		return err
	})
	return out, err
}

// ClearSecret is Secured -> Plain, allowed only with the current secret.
func (s *NoteServiceImpl) ClearSecret(ctx context.Context, owner, id uuid.UUID, secret string) (*model.NoteView, error) {
	var out *model.NoteView
	err := s.mutate(ctx, id, func(lctx context.Context, n *model.Note) error {
		if err := owns(n, owner); err != nil {
			s.denied("clear_secret", err)
			return err
		}
		if !n.Secured() {
			return errs.ErrNotSecured
		}
		if err := s.gate("clear_secret", n, owner, secret); err != nil {
			return err
		}
		n.SecretHash = nil
		if err := s.notes.Save(lctx, n); err != nil {
			return err
		}
		var err error
		out, err = s.view(n)
		return err
	})
	return out, err
}

// List decrypts plain notes and withholds the content of secured ones.
func (s *NoteServiceImpl) List(ctx context.Context, owner uuid.UUID) ([]model.NoteView, error) {
	ns, err := s.notes.ListByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	out := make([]model.NoteView, 0, len(ns))
	for i := range ns {
		n := &ns[i]
		if n.Secured() {
			out = append(out, lockedView(n))
			continue
		}
		v, err := s.view(n)
		if err != nil {
			return nil, err
		}
		out = append(out, *v)
	}
	return out, nil
}

func (s *NoteServiceImpl) load(ctx context.Context, id uuid.UUID) (*model.Note, error) {
	n, err := s.notes.GetByID(ctx, id)
	if errors.Is(err, errs.ErrNotFound) {
		return nil, nil
	}
	return n, err
}

// mutate runs fn on the note loaded under its lock. A missing note is passed
// as nil so the gate reports it. fn must use the context it is given for
// store calls.
func (s *NoteServiceImpl) mutate(ctx context.Context, id uuid.UUID, fn func(context.Context, *model.Note) error) error {
	lctx, unlock, err := s.locks.Lock(ctx, lock.NoteKey(id.String()))
	if err != nil {
		return err
	}
	defer unlock()

	n, err := s.load(lctx, id)
	if err != nil {
		return err
	}
	return fn(lctx, n)
}

func (s *NoteServiceImpl) gate(op string, n *model.Note, owner uuid.UUID, secret string) error {
	err := resolve(n, owner, secret, s.hasher)
	s.denied(op, err)
	return err
}

func (s *NoteServiceImpl) denied(op string, err error) {
	if errors.Is(err, errs.ErrForbidden) {
		s.metrics.RecordNoteAccessDenied(op)
		s.log.Debug("note access denied", zap.String("op", op))
	}
}

// apply encrypts in onto n and sets its protection. Title and description
// are always written together.
func (s *NoteServiceImpl) apply(n *model.Note, in NoteInput) error {
	title, err := s.cipher.EncryptString(in.Title, fieldcrypto.FieldAAD(n.ID.Bytes(), fieldTitle))
	if err != nil {
		return fmt.Errorf("encrypt title: %w", err)
	}
	desc, err := s.cipher.EncryptString(in.Description, fieldcrypto.FieldAAD(n.ID.Bytes(), fieldDesc))
	if err != nil {
		return fmt.Errorf("encrypt description: %w", err)
	}
	var secretHash []byte
	if in.Secret != "" {
		if secretHash, err = s.hasher.Hash([]byte(in.Secret)); err != nil {
			return fmt.Errorf("hash note password: %w", err)
		}
	}
	n.TitleEnc, n.DescEnc, n.SecretHash = title, desc, secretHash
	return nil
}

func (s *NoteServiceImpl) view(n *model.Note) (*model.NoteView, error) {
	title, err := s.cipher.DecryptString(n.TitleEnc, fieldcrypto.FieldAAD(n.ID.Bytes(), fieldTitle))
	if err != nil {
		return nil, fmt.Errorf("decrypt note %s: %w", n.ID, err)
	}
	desc, err := s.cipher.DecryptString(n.DescEnc, fieldcrypto.FieldAAD(n.ID.Bytes(), fieldDesc))
	if err != nil {
		return nil, fmt.Errorf("decrypt note %s: %w", n.ID, err)
	}
	return plainView(n, NoteInput{Title: title, Description: desc}), nil
}

func plainView(n *model.Note, in NoteInput) *model.NoteView {
	return &model.NoteView{
		ID:          n.ID,
		OwnerID:     n.OwnerID,
		Title:       in.Title,
		Description: in.Description,
		Secured:     n.Secured(),
		CreatedAt:   n.CreatedAt,
		UpdatedAt:   n.UpdatedAt,
	}
}

func lockedView(n *model.Note) model.NoteView {
	return model.NoteView{
		ID:        n.ID,
		OwnerID:   n.OwnerID,
		Secured:   true,
		Locked:    true,
		Hint:      LockedHint,
		CreatedAt: n.CreatedAt,
		UpdatedAt: n.UpdatedAt,
	}
}

var _ NoteService = (*NoteServiceImpl)(nil)
