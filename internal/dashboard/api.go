package dashboard

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gorilla/mux"

	"github.com/tickit-notes/tickit/internal/note"
)

// NoteService is the note store the API edits.
type NoteService interface {
	List() []*note.Note
	Add(ctx context.Context, n *note.Note) (*note.Note, error)
	Update(ctx context.Context, id string, patch note.Patch) (*note.Note, error)
	Delete(ctx context.Context, id string) error
}

// SyncTrigger requests a sync pass without waiting for it.
type SyncTrigger interface {
	Trigger()
}

// API serves the REST endpoints under /api.
type API struct {
	notes    NoteService
	sync     SyncTrigger
	validate *validator.Validate
	now      func() time.Time
	logger   *log.Logger
}

// NewAPI creates the REST API. sync may be nil, which disables POST /api/sync.
func NewAPI(notes NoteService, sync SyncTrigger, logger *log.Logger) *API {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	return &API{
		notes:    notes,
		sync:     sync,
		validate: validator.New(),
		now:      time.Now,
		logger:   logger,
	}
}

type createNoteRequest struct {
	Title   string `json:"title" validate:"max=500"`
	Content string `json:"content" validate:"max=16383"`
	Label   string `json:"label" validate:"max=60"`
	Due     string `json:"due" validate:"max=200"`
}

// updateNoteRequest fields left out of the body are not changed. An empty
// due clears it.
type updateNoteRequest struct {
	Title   *string `json:"title" validate:"omitempty,max=500"`
	Content *string `json:"content" validate:"omitempty,max=16383"`
	Label   *string `json:"label" validate:"omitempty,max=60"`
	Due     *string `json:"due" validate:"omitempty,max=200"`
}

// noteResponse is a note as the API shows it.
type noteResponse struct {
	*note.Note
	Synced     bool   `json:"synced"`
	DueDisplay string `json:"due_display,omitempty"`
}

func toResponse(n *note.Note) noteResponse {
	return noteResponse{Note: n, Synced: n.IsSynced(), DueDisplay: n.Due.String()}
}

type errorResponse struct {
	Error string `json:"error"`
}

// Register adds the /api routes to r. They are mounted with full paths on r
// itself so a method mismatch is answered with 405.
func (a *API) Register(r *mux.Router) {
	r.HandleFunc("/api/notes", a.List).Methods(http.MethodGet)
	r.HandleFunc("/api/notes", a.Create).Methods(http.MethodPost)
	r.HandleFunc("/api/notes/{id}", a.Update).Methods(http.MethodPatch)
	r.HandleFunc("/api/notes/{id}", a.Delete).Methods(http.MethodDelete)
	r.HandleFunc("/api/sync", a.Sync).Methods(http.MethodPost)
}

// List handles GET /api/notes.
func (a *API) List(w http.ResponseWriter, r *http.Request) {
	notes := a.notes.List()
	out := make([]noteResponse, len(notes))
	for i, n := range notes {
		out[i] = toResponse(n)
	}
	writeJSON(w, http.StatusOK, out)
}

// Create handles POST /api/notes.
func (a *API) Create(w http.ResponseWriter, r *http.Request) {
	var req createNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	n := &note.Note{Title: req.Title, Content: req.Content, Label: strings.TrimSpace(req.Label)}
	if req.Due != "" {
		due, err := note.ParseDue(req.Due, a.now())
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		n.Due = due
	}

	created, err := a.notes.Add(r.Context(), n)
	if err != nil {
		a.logger.Printf("Failed to create note: %v", err)
		writeError(w, http.StatusInternalServerError, "Failed to create note")
		return
	}
	writeJSON(w, http.StatusCreated, toResponse(created))
}

// Update handles PATCH /api/notes/{id}.
func (a *API) Update(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req updateNoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request payload")
		return
	}
	if err := a.validate.Struct(req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	patch := note.Patch{Title: req.Title, Content: req.Content, Label: req.Label}
	if req.Due != nil {
		if strings.TrimSpace(*req.Due) == "" {
			patch.ClearDue = true
		} else {
			due, err := note.ParseDue(*req.Due, a.now())
			if err != nil {
				writeError(w, http.StatusBadRequest, err.Error())
				return
			}
			patch.Due = due
		}
	}
	if patch.IsEmpty() {
		writeError(w, http.StatusBadRequest, "Nothing to update")
		return
	}

	updated, err := a.notes.Update(r.Context(), id, patch)
	if err != nil {
		a.logger.Printf("Failed to update note %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to update note")
		return
	}
	if updated == nil {
		writeError(w, http.StatusNotFound, "Note not found")
		return
	}
	writeJSON(w, http.StatusOK, toResponse(updated))
}

// Delete handles DELETE /api/notes/{id}. Deleting an unknown id succeeds.
func (a *API) Delete(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := a.notes.Delete(r.Context(), id); err != nil {
		a.logger.Printf("Failed to delete note %s: %v", id, err)
		writeError(w, http.StatusInternalServerError, "Failed to delete note")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Sync handles POST /api/sync.
func (a *API) Sync(w http.ResponseWriter, r *http.Request) {
	if a.sync == nil {
		writeError(w, http.StatusServiceUnavailable, "Sync is not available")
		return
	}
	a.sync.Trigger()
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "triggered"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
