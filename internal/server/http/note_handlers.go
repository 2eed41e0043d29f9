package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/secure-notes/internal/errs"
	"github.com/and161185/secure-notes/internal/model"
	"github.com/and161185/secure-notes/internal/service"
)

// NotePasswordHeader carries the secondary password of a secured note for
// one call.
const NotePasswordHeader = "X-Note-Password"

type noteRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Password    string `json:"password,omitempty"`
}

type notePasswordRequest struct {
	Password string `json:"password"`
}

type noteResponse struct {
	ID          string    `json:"id"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Secured     bool      `json:"secured"`
	Locked      bool      `json:"locked,omitempty"`
	Hint        string    `json:"hint,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toNoteResponse(v *model.NoteView) noteResponse {
	return noteResponse{
		ID:          v.ID.String(),
		Title:       v.Title,
		Description: v.Description,
		Secured:     v.Secured,
		Locked:      v.Locked,
		Hint:        v.Hint,
		CreatedAt:   v.CreatedAt,
		UpdatedAt:   v.UpdatedAt,
	}
}

func toNoteList(vs []model.NoteView) []noteResponse {
	out := make([]noteResponse, 0, len(vs))
	for i := range vs {
		out = append(out, toNoteResponse(&vs[i]))
	}
	return out
}

// noteID parses the {id} path segment. A malformed id is reported like a
// missing note.
func noteID(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.FromString(chi.URLParam(r, "id"))
	if err != nil {
		return uuid.Nil, errs.ErrNotFound
	}
	return id, nil
}

func caller(r *http.Request) uuid.UUID {
	p, _ := PrincipalFrom(r.Context())
	return p.AccountID
}

func (a *api) createNote(w http.ResponseWriter, r *http.Request) {
	var req noteRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	v, err := a.notes.Create(r.Context(), caller(r), service.NoteInput{
		Title:       req.Title,
		Description: req.Description,
		Secret:      req.Password,
	})
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, toNoteResponse(v))
}

func (a *api) listNotes(w http.ResponseWriter, r *http.Request) {
	vs, err := a.notes.List(r.Context(), caller(r))
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteList(vs))
}

func (a *api) searchNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeError(w, r, a.log, errs.ErrInvalidArgument)
		return
	}
	vs, err := a.notes.Search(r.Context(), caller(r), q)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteList(vs))
}

func (a *api) getNote(w http.ResponseWriter, r *http.Request) {
	id, err := noteID(r)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	v, err := a.notes.Get(r.Context(), caller(r), id, r.Header.Get(NotePasswordHeader))
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(v))
}

func (a *api) updateNote(w http.ResponseWriter, r *http.Request) {
	id, err := noteID(r)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	var req noteRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	v, err := a.notes.Update(r.Context(), caller(r), id, r.Header.Get(NotePasswordHeader), service.NoteInput{
		Title:       req.Title,
		Description: req.Description,
		Secret:      req.Password,
	})
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(v))
}

func (a *api) deleteNote(w http.ResponseWriter, r *http.Request) {
	id, err := noteID(r)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	v, err := a.notes.Delete(r.Context(), caller(r), id, r.Header.Get(NotePasswordHeader))
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(v))
}

func (a *api) setNotePassword(w http.ResponseWriter, r *http.Request) {
	id, err := noteID(r)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	var req notePasswordRequest
	if err := decode(w, r, &req); err != nil {
		writeError(w, r, a.log, err)
		return
	}
	v, err := a.notes.SetSecret(r.Context(), caller(r), id, req.Password)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(v))
}

func (a *api) clearNotePassword(w http.ResponseWriter, r *http.Request) {
	id, err := noteID(r)
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	v, err := a.notes.ClearSecret(r.Context(), caller(r), id, r.Header.Get(NotePasswordHeader))
	if err != nil {
		writeError(w, r, a.log, err)
		return
	}
	writeJSON(w, http.StatusOK, toNoteResponse(v))
}
