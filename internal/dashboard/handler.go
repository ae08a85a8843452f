package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/tickit-notes/tickit/internal/daemon"
	"github.com/tickit-notes/tickit/internal/note"
	"github.com/tickit-notes/tickit/internal/notes"
	"github.com/tickit-notes/tickit/internal/store"
	notesync "github.com/tickit-notes/tickit/internal/sync"
)

// NoteUpdateData contains note change information
type NoteUpdateData struct {
	NoteID string `json:"note_id"`
	Action string `json:"action"` // created, updated, deleted
	Title  string `json:"title,omitempty"`
	Label  string `json:"label,omitempty"`
	Due    string `json:"due,omitempty"`
	Synced bool   `json:"synced"`
}

// SyncCompleteData contains sync pass results
type SyncCompleteData struct {
	Skipped          bool          `json:"skipped"`
	DeletionsFlushed int           `json:"deletions_flushed"`
	Created          int           `json:"created"`
	Updated          int           `json:"updated"`
	Failed           int           `json:"failed"`
	Pulled           int           `json:"pulled"`
	Duration         time.Duration `json:"duration"`
	Error            string        `json:"error,omitempty"`
}

// StatsData contains note statistics
type StatsData struct {
	store.Stats
	Syncing bool `json:"syncing"`
}

// StatsSource reports local note counts.
type StatsSource interface {
	Stats() (store.Stats, error)
}

// Handler turns note store and scheduler events into dashboard messages.
type Handler struct {
	server *Server
	source StatsSource
	logger *log.Logger

	mu      sync.Mutex
	syncing bool
}

var (
	_ notes.Listener  = (*Handler)(nil)
	_ daemon.Observer = (*Handler)(nil)
)

// NewHandler creates a new event handler connected to a dashboard server.
// It also makes every new client start with a stats message.
func NewHandler(server *Server, source StatsSource, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}

	h := &Handler{
		server: server,
		source: source,
		logger: logger,
	}
	server.SetWelcome(h.statsMessage)
	return h
}

// OnNoteAdded implements notes.Listener.
func (h *Handler) OnNoteAdded(n *note.Note) {
	h.noteUpdate("created", n)
}

// OnNoteUpdated implements notes.Listener.
func (h *Handler) OnNoteUpdated(n *note.Note) {
	h.noteUpdate("updated", n)
}

// OnNoteDeleted implements notes.Listener.
func (h *Handler) OnNoteDeleted(id string) {
	h.logger.Printf("Note deleted: %s", id)
	h.send(MessageTypeNoteUpdate, NoteUpdateData{NoteID: id, Action: "deleted"})
	h.broadcastStats()
}

// OnNotesReplaced implements notes.Listener. Clients refetch the list, so
// only the counts are sent.
func (h *Handler) OnNotesReplaced(all []*note.Note) {
	h.broadcastStats()
}

// PassStarted implements daemon.Observer.
func (h *Handler) PassStarted() {
	h.mu.Lock()
	h.syncing = true
	h.mu.Unlock()

	h.send(MessageTypeSyncStarted, nil)
}

// PassFinished implements daemon.Observer.
func (h *Handler) PassFinished(result *notesync.Result, err error) {
	h.mu.Lock()
	h.syncing = false
	h.mu.Unlock()

	data := SyncCompleteData{}
	if result != nil {
		data.Skipped = result.Skipped
		data.DeletionsFlushed = result.DeletionsFlushed
		data.Created = result.Created
		data.Updated = result.Updated
		data.Failed = result.Failed()
		data.Pulled = result.Pulled
		data.Duration = result.Duration
	}
	if err != nil {
		data.Error = err.Error()
	}

	h.logger.Printf("Sync complete: created=%d updated=%d pulled=%d failed=%d", data.Created, data.Updated, data.Pulled, data.Failed)
	h.send(MessageTypeSyncComplete, data)
	h.broadcastStats()
}

func (h *Handler) noteUpdate(action string, n *note.Note) {
	h.logger.Printf("Note %s: %s (%s)", action, n.ID, n.Title)
	h.send(MessageTypeNoteUpdate, NoteUpdateData{
		NoteID: n.ID,
		Action: action,
		Title:  n.Title,
		Label:  n.Label,
		Due:    n.Due.String(),
		Synced: n.IsSynced(),
	})
	h.broadcastStats()
}

// GetStats returns the current statistics
func (h *Handler) GetStats() (StatsData, error) {
	h.mu.Lock()
	syncing := h.syncing
	h.mu.Unlock()

	stats, err := h.source.Stats()
	if err != nil {
		return StatsData{}, err
	}
	return StatsData{Stats: stats, Syncing: syncing}, nil
}

func (h *Handler) statsMessage() Message {
	stats, err := h.GetStats()
	if err != nil {
		h.logger.Printf("Failed to read stats: %v", err)
		return Message{Type: MessageTypeStats, Timestamp: time.Now()}
	}
	return h.message(MessageTypeStats, stats)
}

// broadcastStats sends current statistics to all clients
func (h *Handler) broadcastStats() {
	h.server.Broadcast(h.statsMessage())
}

func (h *Handler) send(typ MessageType, data any) {
	h.server.Broadcast(h.message(typ, data))
}

func (h *Handler) message(typ MessageType, data any) Message {
	msg := Message{Type: typ, Timestamp: time.Now()}
	if data == nil {
		return msg
	}
	dataJSON, err := json.Marshal(data)
	if err != nil {
		h.logger.Printf("Failed to marshal %s data: %v", typ, err)
		return msg
	}
	msg.Data = dataJSON
	return msg
}
