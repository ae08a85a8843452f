package notes

import "github.com/tickit-notes/tickit/internal/note"

// State is the facade's in-memory view. A State is never modified after it
// is published; every action produces a new one.
type State struct {
	Notes   []*note.Note
	Loading bool
	Syncing bool
}

// Action is a tagged state transition.
type Action interface {
	isNotesAction()
}

// SetLoading marks the initial read from the store as in progress or done.
type SetLoading struct{ Loading bool }

// SetSyncing marks a sync pass as running or finished.
type SetSyncing struct{ Syncing bool }

// SetNotes replaces the whole list.
type SetNotes struct{ Notes []*note.Note }

// AddNote appends a note, or replaces one with the same id.
type AddNote struct{ Note *note.Note }

// UpdateNote replaces the note with the same id.
type UpdateNote struct{ Note *note.Note }

// DeleteNote removes the note with ID.
type DeleteNote struct{ ID string }

func (SetLoading) isNotesAction() {}
func (SetSyncing) isNotesAction() {}
func (SetNotes) isNotesAction()   {}
func (AddNote) isNotesAction()    {}
func (UpdateNote) isNotesAction() {}
func (DeleteNote) isNotesAction() {}

// Reduce applies an action to a state and returns the new state. The input
// state and its slice are left untouched.
func Reduce(state State, action Action) State {
	next := state
	switch a := action.(type) {
	case SetLoading:
		next.Loading = a.Loading
	case SetSyncing:
		next.Syncing = a.Syncing
	case SetNotes:
		next.Notes = cloneAll(a.Notes)
	case AddNote:
		next.Notes = upsert(state.Notes, a.Note)
	case UpdateNote:
		next.Notes = upsert(state.Notes, a.Note)
	case DeleteNote:
		next.Notes = remove(state.Notes, a.ID)
	}
	return next
}

func upsert(notes []*note.Note, n *note.Note) []*note.Note {
	out := make([]*note.Note, 0, len(notes)+1)
	replaced := false
	for _, existing := range notes {
		if existing.ID == n.ID {
			out = append(out, n.Clone())
			replaced = true
			continue
		}
		out = append(out, existing)
	}
	if !replaced {
		out = append(out, n.Clone())
	}
	return out
}

func remove(notes []*note.Note, id string) []*note.Note {
	out := make([]*note.Note, 0, len(notes))
	for _, n := range notes {
		if n.ID != id {
			out = append(out, n)
		}
	}
	return out
}

func cloneAll(notes []*note.Note) []*note.Note {
	out := make([]*note.Note, len(notes))
	for i, n := range notes {
		out[i] = n.Clone()
	}
	return out
}
