package service

import (
	"context"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/secure-notes/internal/model"
)

// Search scans the owner's plain notes. Field ciphertext is randomized, so
// every candidate is decrypted and matched in memory; secured notes are never
// fetched. Results keep the store's order.
func (s *NoteServiceImpl) Search(ctx context.Context, owner uuid.UUID, keyword string) ([]model.NoteView, error) {
	ns, err := s.notes.ListPlainByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(keyword)
	out := make([]model.NoteView, 0)
	for i := range ns {
		if ns[i].Secured() {
			continue
		}
		v, err := s.view(&ns[i])
		if err != nil {
			return nil, err
		}
		if matches(v, needle) {
			out = append(out, *v)
		}
	}
	return out, nil
}

func matches(v *model.NoteView, lowerNeedle string) bool {
	return strings.Contains(strings.ToLower(v.Title), lowerNeedle) ||
		strings.Contains(strings.ToLower(v.Description), lowerNeedle)
}
