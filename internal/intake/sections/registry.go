package sections

import (
	"fmt"

	"kycflow/internal/intake/models"
	id "kycflow/pkg/domain"
)

// FieldKind tells the completion predicate how to read a field.
type FieldKind string

const (
	FieldText FieldKind = "text"
	// FieldFlag is a checkbox; false is its default and is not an answer.
	FieldFlag FieldKind = "flag"
	// FieldTriState is a yes/no question where false is an answer and null
	// means unanswered.
	FieldTriState FieldKind = "tristate"
	// FieldAttachment holds the URL of one uploaded binary.
	FieldAttachment FieldKind = "attachment"
	// FieldAttachments holds a list of uploaded binary URLs.
	FieldAttachments FieldKind = "attachments"
)

// FieldSpec declares one field of a section. Path is relative to the section.
type FieldSpec struct {
	Path     models.Path
	Label    string
	Kind     FieldKind
	Required bool
}

func (f FieldSpec) IsAttachment() bool {
	return f.Kind == FieldAttachment || f.Kind == FieldAttachments
}

// Accepts reports whether v has a shape this field can hold. Null is
// always accepted and clears the answer.
func (f FieldSpec) Accepts(v models.Value) bool {
	switch v.Kind() {
	case models.KindNull:
		return true
	case models.KindText:
		return f.Kind == FieldText || f.Kind == FieldAttachment
	case models.KindBool:
		return f.Kind == FieldFlag || f.Kind == FieldTriState
	case models.KindList:
		return f.Kind == FieldAttachments
	}
	return false
}

// Section is a named, ordered group of fields.
type Section struct {
	Key    string
	Label  string
	Fields []FieldSpec
}

// FieldPath returns the absolute path of a field declared in the section.
func (s Section) FieldPath(f FieldSpec) models.Path {
	return append(models.Path{s.Key}, f.Path...)
}

func (s Section) spec(rel models.Path) (FieldSpec, bool) {
	key := rel.String()
	for _, f := range s.Fields {
		if f.Path.String() == key {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// IsComplete is the section's completion predicate: at least one field holds
// non-blank text or a non-empty list, a boolean is true, or a tri-state
// question was answered false. Completion is binary.
func (s Section) IsComplete(root models.Group) bool {
	sec, ok := root.Section(s.Key)
	if !ok {
		return false
	}
	complete := false
	sec.Leaves(func(rel models.Path, v models.Value) {
		if complete {
			return
		}
		if v.HasContent() {
			complete = true
			return
		}
		flag, isBool := v.Bool()
		if !isBool {
			return
		}
		if flag {
			complete = true
			return
		}
		if spec, ok := s.spec(rel); ok && spec.Kind == FieldTriState {
			complete = true
		}
	})
	return complete
}

// AttachmentSlot is a field that receives uploaded binaries.
type AttachmentSlot struct {
	Path     models.Path
	Multi    bool
	Required bool
}

// Registry is the fixed, ordered list of sections for one role. Order never
// changes at runtime.
type Registry struct {
	role     id.Role
	sections []Section
}

// NewRegistry validates and freezes a section list.
func NewRegistry(role id.Role, sections ...Section) (*Registry, error) {
	seen := make(map[string]bool, len(sections))
	for i, s := range sections {
		if s.Key == "" {
			return nil, fmt.Errorf("section %d has no key", i)
		}
		if seen[s.Key] {
			return nil, fmt.Errorf("duplicate section key %q", s.Key)
		}
		seen[s.Key] = true
		for _, f := range s.Fields {
			if !f.Path.Valid() {
				return nil, fmt.Errorf("section %q has a field with an invalid path", s.Key)
			}
		}
	}
	return &Registry{role: role, sections: append([]Section(nil), sections...)}, nil
}

func (r *Registry) Role() id.Role { return r.role }

func (r *Registry) Len() int { return len(r.sections) }

// At returns the section at index i.
func (r *Registry) At(i int) (Section, bool) {
	if i < 0 || i >= len(r.sections) {
		return Section{}, false
	}
	return r.sections[i], true
}

// Sections returns the ordered section list.
func (r *Registry) Sections() []Section {
	return append([]Section(nil), r.sections...)
}

// Index returns the position of a section key, or -1.
func (r *Registry) Index(key string) int {
	for i, s := range r.sections {
		if s.Key == key {
			return i
		}
	}
	return -1
}

// IsSectionComplete evaluates section i against root. Out-of-range indexes
// are incomplete.
func (r *Registry) IsSectionComplete(root models.Group, i int) bool {
	s, ok := r.At(i)
	if !ok {
		return false
	}
	return s.IsComplete(root)
}

// CompletedCount counts sections whose predicate holds.
func (r *Registry) CompletedCount(root models.Group) int {
	n := 0
	for _, s := range r.sections {
		if s.IsComplete(root) {
			n++
		}
	}
	return n
}

// Field looks up the declaration for an absolute path.
func (r *Registry) Field(path models.Path) (FieldSpec, bool) {
	if len(path) < 2 {
		return FieldSpec{}, false
	}
	i := r.Index(path.Section())
	if i < 0 {
		return FieldSpec{}, false
	}
	return r.sections[i].spec(path[1:])
}

// AttachmentSlots lists every attachment field in section order.
func (r *Registry) AttachmentSlots() []AttachmentSlot {
	var slots []AttachmentSlot
	for _, s := range r.sections {
		for _, f := range s.Fields {
			if !f.IsAttachment() {
				continue
			}
			slots = append(slots, AttachmentSlot{
				Path:     s.FieldPath(f),
				Multi:    f.Kind == FieldAttachments,
				Required: f.Required,
			})
		}
	}
	return slots
}

// MissingRequiredAttachments returns required slots with no URL in root.
func (r *Registry) MissingRequiredAttachments(root models.Group) []models.Path {
	var missing []models.Path
	for _, slot := range r.AttachmentSlots() {
		if !slot.Required {
			continue
		}
		v, ok := root.Value(slot.Path)
		if !ok || !v.HasContent() {
			missing = append(missing, slot.Path)
		}
	}
	return missing
}
