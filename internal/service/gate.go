package service

import (
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/secure-notes/internal/crypto"
	"github.com/and161185/secure-notes/internal/errs"
	"github.com/and161185/secure-notes/internal/model"
)

// resolve decides whether requester may read or change n for this call.
//
//	n == nil                             -> ErrNotFound
//	requester is not the owner           -> ErrForbidden
//	plain note                           -> allowed
//	secured, secret missing or wrong     -> ErrForbidden
//	secured, secret verifies             -> allowed for this call only
//
// Callers outside the package see ErrForbidden and ErrNotFound as the same
// outcome through errs.Public.
func resolve(n *model.Note, requester uuid.UUID, secret string, hasher crypto.Hasher) error {
	if n == nil {
		return errs.ErrNotFound
	}
	if n.OwnerID != requester {
		return errs.ErrForbidden
	}
	if !n.Secured() {
		return nil
	}
	if secret == "" || !hasher.Verify([]byte(secret), n.SecretHash) {
		return errs.ErrForbidden
	}
	return nil
}

// owns is the ownership half of resolve, for transitions that manage the
// secret itself.
func owns(n *model.Note, requester uuid.UUID) error {
	if n == nil {
		return errs.ErrNotFound
	}
	if n.OwnerID != requester {
		return errs.ErrForbidden
	}
	return nil
}
