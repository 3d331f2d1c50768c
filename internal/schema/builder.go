package schema

import (
	"errors"
	"fmt"
)

// Structural authoring errors. These reject a definition at authoring time
// and never reach submission validation.
var (
	ErrDuplicateSlug      = errors.New("duplicate form slug")
	ErrDuplicateFieldName = errors.New("duplicate field name")
	ErrInvalidFieldType   = errors.New("invalid field type")
	ErrOptionNotAllowed   = errors.New("options not allowed for field type")
	ErrRuleCycle          = errors.New("conditional rule cycle")
	ErrMissingLabel       = errors.New("field label or name required")
)

// FieldSpec is the authoring input for a single field.
type FieldSpec struct {
	Name        string
	Label       string
	Type        FieldType
	Placeholder string
	HelpText    string
	Order       int
	Required    bool
	Multiple    bool
	Config      map[string]any
	Rules       RuleSet
}

// Builder constructs Form hierarchies and enforces structural invariants at
// construction time, before anything touches storage. Known slugs seed the
// duplicate-slug check; the database unique index remains the authoritative
// enforcement under concurrency.
type Builder struct {
	slugs map[string]bool
	seq   int
}

func NewBuilder(existingSlugs ...string) *Builder {
	b := &Builder{slugs: make(map[string]bool, len(existingSlugs))}
	for _, s := range existingSlugs {
		b.slugs[s] = true
	}
	return b
}

// DefineForm creates a new empty form. Fails with ErrDuplicateSlug when the
// slug is already taken.
func (b *Builder) DefineForm(name, slug, description string) (*Form, error) {
	if slug == "" {
		slug = DeriveFieldName(name)
	}
	if b.slugs[slug] {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateSlug, slug)
	}
	b.slugs[slug] = true
	return &Form{
		Slug:        slug,
		Name:        name,
		Description: description,
		Active:      true,
	}, nil
}

// AddSection appends a section to the form.
func (b *Builder) AddSection(form *Form, title, description string, order int) *Section {
	b.seq++
	section := &Section{
		Title:       title,
		Description: description,
		Order:       order,
		seq:         b.seq,
	}
	form.Sections = append(form.Sections, section)
	return section
}

// AddField adds a field to the form, inside section when non-nil. The
// internal name is derived from the label when absent. Fails with
// ErrDuplicateFieldName on a name collision within the form,
// ErrInvalidFieldType on an unknown type, and ErrRuleCycle when the field's
// required_if conditions close a dependency cycle.
func (b *Builder) AddField(form *Form, section *Section, spec FieldSpec) (*Field, error) {
	if !ValidFieldType(spec.Type) {
		return nil, fmt.Errorf("%w: %s", ErrInvalidFieldType, spec.Type)
	}

	name := spec.Name
	if name == "" {
		name = DeriveFieldName(spec.Label)
	}
	if name == "" {
		return nil, ErrMissingLabel
	}
	if form.HasField(name) {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateFieldName, name)
	}

	b.seq++
	field := &Field{
		Name:        name,
		Label:       spec.Label,
		Type:        spec.Type,
		Placeholder: spec.Placeholder,
		HelpText:    spec.HelpText,
		Order:       spec.Order,
		Required:    spec.Required,
		Multiple:    spec.Multiple,
		Config:      spec.Config,
		Rules:       spec.Rules,
		seq:         b.seq,
	}

	if section != nil {
		section.Fields = append(section.Fields, field)
	} else {
		form.Fields = append(form.Fields, field)
	}

	if cycle := conditionCycle(form); cycle != nil {
		// Roll the field back out so the form stays usable.
		if section != nil {
			section.Fields = section.Fields[:len(section.Fields)-1]
		} else {
			form.Fields = form.Fields[:len(form.Fields)-1]
		}
		return nil, fmt.Errorf("%w: %v", ErrRuleCycle, cycle)
	}

	return field, nil
}

// AddOption adds an option to a field. Fails with ErrOptionNotAllowed unless
// the field type is select, radio or checkbox.
func (b *Builder) AddOption(field *Field, value, label string, order int) (*Option, error) {
	if !field.Type.HasOptions() {
		return nil, fmt.Errorf("%w: %s", ErrOptionNotAllowed, field.Type)
	}
	b.seq++
	option := &Option{Value: value, Label: label, Order: order, seq: b.seq}
	field.Options = append(field.Options, option)
	return option, nil
}

// conditionCycle looks for a cycle in the required_if dependency graph.
// Edges to names that are not (yet) fields are ignored: nested authoring may
// reference fields added later. Returns the fields on the first cycle found,
// or nil.
func conditionCycle(form *Form) []string {
	deps := make(map[string][]string)
	for _, f := range form.AllFields() {
		for _, dep := range f.Rules.ConditionFields() {
			if form.HasField(dep) {
				deps[f.Name] = append(deps[f.Name], dep)
			}
		}
	}

	const (
		white = 0 // unvisited
		gray  = 1 // on stack
		black = 2 // done
	)
	color := make(map[string]int, len(deps))

	var stack []string
	var visit func(name string) []string
	visit = func(name string) []string {
		color[name] = gray
		stack = append(stack, name)
		for _, dep := range deps[name] {
			switch color[dep] {
			case gray:
				// Found a cycle: slice the stack from dep onward.
				for i, n := range stack {
					if n == dep {
						return append([]string{}, stack[i:]...)
					}
				}
				return stack
			case white:
				if cycle := visit(dep); cycle != nil {
					return cycle
				}
			}
		}
		stack = stack[:len(stack)-1]
		color[name] = black
		return nil
	}

	for name := range deps {
		if color[name] == white {
			if cycle := visit(name); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
