// Package remotetest provides an in-memory remote.Gateway for tests.
package remotetest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tickit-notes/tickit/internal/note"
	"github.com/tickit-notes/tickit/internal/remote"
)

// Op names a gateway method.
type Op string

const (
	OpList   Op = "list"
	OpCreate Op = "create"
	OpUpdate Op = "update"
	OpDelete Op = "delete"
)

// Call records one gateway invocation.
type Call struct {
	Op    Op
	ID    string // empty for list and create
	Title string
}

// Gateway is a remote.Gateway backed by an ordered slice. Ids are assigned
// sequentially from FirstID. It is safe for concurrent use.
type Gateway struct {
	mu     sync.Mutex
	owner  string
	notes  []*note.Note
	nextID int
	calls  []Call

	queued map[Op][]error
	byID   map[string]error
	stale  []*note.Note
	hooks  map[Op]func(Call)
}

var _ remote.Gateway = (*Gateway)(nil)

// FirstID is the id given to the first created note.
const FirstID = 999

// Owner is the user id the fake assigns to created notes.
const Owner = "42"

// New returns an empty fake.
func New() *Gateway {
	return &Gateway{
		owner:  Owner,
		nextID: FirstID,
		queued: make(map[Op][]error),
		byID:   make(map[string]error),
		hooks:  make(map[Op]func(Call)),
	}
}

// Seed adds notes as if created remotely by another device.
func (g *Gateway) Seed(notes ...*note.Note) {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, n := range notes {
		c := n.Clone()
		c.Dirty = false
		if c.Owner == "" || c.IsLocal() {
			c.Owner = g.owner
		}
		g.notes = append(g.notes, c)
	}
}

// FailNext makes the next call of op fail with err. Calls queue up.
func (g *Gateway) FailNext(op Op, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.queued[op] = append(g.queued[op], err)
}

// FailFor makes every update or delete of id fail with err, and every create
// of a note titled id. A nil err clears it.
func (g *Gateway) FailFor(key string, err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err == nil {
		delete(g.byID, key)
		return
	}
	g.byID[key] = err
}

// ListAlso makes List return these notes in addition to the real set,
// simulating a listing that raced with a deletion.
func (g *Gateway) ListAlso(notes ...*note.Note) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.stale = append(g.stale, notes...)
}

// OnCall runs fn after a successful op, before the result is returned. The
// fake's lock is not held.
func (g *Gateway) OnCall(op Op, fn func(Call)) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.hooks[op] = fn
}

// Calls returns every call made so far.
func (g *Gateway) Calls() []Call {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]Call(nil), g.calls...)
}

// Count returns how many times op was called.
func (g *Gateway) Count(op Op) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, c := range g.calls {
		if c.Op == op {
			n++
		}
	}
	return n
}

// ResetCalls forgets recorded calls.
func (g *Gateway) ResetCalls() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = nil
}

// Notes returns a copy of the remote set.
func (g *Gateway) Notes() []*note.Note {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]*note.Note, len(g.notes))
	for i, n := range g.notes {
		out[i] = n.Clone()
	}
	return out
}

// Get returns the remote note with id, or nil.
func (g *Gateway) Get(id string) *note.Note {
	g.mu.Lock()
	defer g.mu.Unlock()
	if i := g.index(id); i >= 0 {
		return g.notes[i].Clone()
	}
	return nil
}

// List implements remote.Gateway.
func (g *Gateway) List(ctx context.Context) ([]*note.Note, error) {
	call := Call{Op: OpList}
	if err := g.begin(ctx, call, ""); err != nil {
		return nil, err
	}

	g.mu.Lock()
	out := make([]*note.Note, 0, len(g.notes)+len(g.stale))
	for _, n := range g.notes {
		out = append(out, n.Clone())
	}
	for _, n := range g.stale {
		out = append(out, n.Clone())
	}
	g.mu.Unlock()

	g.after(call)
	return out, nil
}

// Create implements remote.Gateway.
func (g *Gateway) Create(ctx context.Context, n *note.Note) (*note.Note, error) {
	call := Call{Op: OpCreate, Title: n.Title}
	if err := g.begin(ctx, call, n.Title); err != nil {
		return nil, err
	}

	g.mu.Lock()
	created := n.Clone()
	created.ID = fmt.Sprint(g.nextID)
	g.nextID++
	created.Owner = g.owner
	created.Dirty = false
	created.UpdatedAt = time.Now()
	g.notes = append(g.notes, created)
	out := created.Clone()
	g.mu.Unlock()

	g.after(Call{Op: OpCreate, ID: out.ID, Title: out.Title})
	return out, nil
}

// Update implements remote.Gateway.
func (g *Gateway) Update(ctx context.Context, id string, n *note.Note) (*note.Note, error) {
	call := Call{Op: OpUpdate, ID: id, Title: n.Title}
	if err := g.begin(ctx, call, id); err != nil {
		return nil, err
	}

	g.mu.Lock()
	i := g.index(id)
	if i < 0 {
		g.mu.Unlock()
		return nil, fmt.Errorf("update %s: %w", id, remote.ErrNotFound)
	}
	updated := n.Clone()
	updated.ID = id
	updated.Owner = g.notes[i].Owner
	updated.Dirty = false
	updated.UpdatedAt = time.Now()
	g.notes[i] = updated
	out := updated.Clone()
	g.mu.Unlock()

	g.after(call)
	return out, nil
}

// Delete implements remote.Gateway.
func (g *Gateway) Delete(ctx context.Context, id string) error {
	call := Call{Op: OpDelete, ID: id}
	if err := g.begin(ctx, call, id); err != nil {
		return err
	}

	g.mu.Lock()
	i := g.index(id)
	if i < 0 {
		g.mu.Unlock()
		return fmt.Errorf("delete %s: %w", id, remote.ErrNotFound)
	}
	g.notes = append(g.notes[:i], g.notes[i+1:]...)
	g.mu.Unlock()

	g.after(call)
	return nil
}

// begin records the call and returns any injected failure.
func (g *Gateway) begin(ctx context.Context, call Call, key string) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%s: %w: %v", call.Op, remote.ErrNetwork, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, call)

	if q := g.queued[call.Op]; len(q) > 0 {
		g.queued[call.Op] = q[1:]
		return q[0]
	}
	if key != "" {
		if err, ok := g.byID[key]; ok {
			return err
		}
	}
	return nil
}

func (g *Gateway) after(call Call) {
	g.mu.Lock()
	fn := g.hooks[call.Op]
	g.mu.Unlock()
	if fn != nil {
		fn(call)
	}
}

func (g *Gateway) index(id string) int {
	for i, n := range g.notes {
		if n.ID == id {
			return i
		}
	}
	return -1
}
