package note

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// LocalOwner is the ownership scope of a note the remote service has never seen.
const LocalOwner = "local"

// Note is a single note/task. Records are last-write-wins at the whole-record level.
type Note struct {
	// ===== Identity =====
	ID    string `json:"id" validate:"required"`
	Owner string `json:"owner" validate:"required"` // "local" or the remote user id

	// ===== Content =====
	Title   string `json:"title" validate:"max=500"`
	Content string `json:"content" validate:"max=16383"` // markdown
	Label   string `json:"label,omitempty" validate:"max=60"`

	// ===== Scheduling =====
	Due *Due `json:"due,omitempty"`

	// ===== Sync state =====
	Dirty     bool      `json:"dirty"`
	UpdatedAt time.Time `json:"updated_at"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// NewLocal returns a note that exists only locally, with a fresh id.
func NewLocal(title, content string) *Note {
	return &Note{
		ID:        uuid.NewString(),
		Owner:     LocalOwner,
		Title:     title,
		Content:   content,
		Dirty:     true,
		UpdatedAt: time.Now(),
	}
}

// IsLocal reports whether the note has never been pushed.
func (n *Note) IsLocal() bool {
	return n.Owner == LocalOwner
}

// IsSynced is true iff the remote knows the note and no local mutation is pending.
func (n *Note) IsSynced() bool {
	return n.Owner != LocalOwner && !n.Dirty
}

// SetDefaults fills the identity fields a partial note may be missing.
func (n *Note) SetDefaults() {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	if n.Owner == "" {
		n.Owner = LocalOwner
	}
	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now()
	}
}

// Validate checks the note's field values.
func (n *Note) Validate() error {
	err := validate.Struct(n)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return fieldError(verrs[0])
	}
	return err
}

func fieldError(fe validator.FieldError) error {
	name := strings.ToLower(fe.Field())
	switch fe.Tag() {
	case "required":
		return fmt.Errorf("%s is required", name)
	case "max":
		s, _ := fe.Value().(string)
		return fmt.Errorf("%s must be %s characters or less (got %d)", name, fe.Param(), utf8.RuneCountInString(s))
	default:
		return fmt.Errorf("%s is invalid (%s)", name, fe.Tag())
	}
}

// Clone returns a deep copy.
func (n *Note) Clone() *Note {
	if n == nil {
		return nil
	}
	c := *n
	if n.Due != nil {
		d := *n.Due
		c.Due = &d
	}
	return &c
}

// Patch is a partial update. Nil fields are left untouched.
type Patch struct {
	Title   *string
	Content *string
	Label   *string
	Due     *Due

	// ClearDue removes the due date. It wins over Due.
	ClearDue bool
}

// IsEmpty reports whether applying the patch would change nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Content == nil && p.Label == nil && p.Due == nil && !p.ClearDue
}

// Apply merges the patch over n and bumps UpdatedAt.
func (p Patch) Apply(n *Note) {
	if p.Title != nil {
		n.Title = *p.Title
	}
	if p.Content != nil {
		n.Content = *p.Content
	}
	if p.Label != nil {
		n.Label = strings.TrimSpace(*p.Label)
	}
	switch {
	case p.ClearDue:
		n.Due = nil
	case p.Due != nil:
		d := *p.Due
		n.Due = &d
	}
	n.UpdatedAt = time.Now()
}

// String returns a pointer to s, for building patches.
func String(s string) *string {
	return &s
}
