package schema

import (
	"sort"
	"time"
)

// FieldType is the closed set of supported field types.
type FieldType string

const (
	TypeText     FieldType = "text"
	TypeTextarea FieldType = "textarea"
	TypeNumber   FieldType = "number"
	TypeDate     FieldType = "date"
	TypeSelect   FieldType = "select"
	TypeCheckbox FieldType = "checkbox"
	TypeRadio    FieldType = "radio"
	TypeFile     FieldType = "file"
	TypeEmail    FieldType = "email"
)

// ValidFieldType reports whether t is one of the supported field types.
func ValidFieldType(t FieldType) bool {
	switch t {
	case TypeText, TypeTextarea, TypeNumber, TypeDate, TypeSelect,
		TypeCheckbox, TypeRadio, TypeFile, TypeEmail:
		return true
	}
	return false
}

// HasOptions reports whether the field type carries declared options.
func (t FieldType) HasOptions() bool {
	return t == TypeSelect || t == TypeRadio || t == TypeCheckbox
}

type Form struct {
	ID          string         `json:"id,omitempty"`
	Slug        string         `json:"slug"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
	Active      bool           `json:"is_active"`
	CreatedBy   string         `json:"created_by,omitempty"`
	CreatedAt   time.Time      `json:"created_at,omitempty"`
	UpdatedAt   time.Time      `json:"updated_at,omitempty"`
	Sections    []*Section     `json:"sections,omitempty"`
	Fields      []*Field       `json:"fields,omitempty"` // top-level fields outside any section
}

type Section struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title,omitempty"`
	Description string   `json:"description,omitempty"`
	Order       int      `json:"order"`
	Fields      []*Field `json:"fields,omitempty"`

	seq int // insertion order, tie-breaker for Order
}

type Field struct {
	ID          string         `json:"id,omitempty"`
	SectionID   string         `json:"section_id,omitempty"`
	Name        string         `json:"name"`
	Label       string         `json:"label"`
	Type        FieldType      `json:"field_type"`
	Placeholder string         `json:"placeholder,omitempty"`
	HelpText    string         `json:"help_text,omitempty"`
	Order       int            `json:"order"`
	Required    bool           `json:"required"`
	Multiple    bool           `json:"multiple"`
	Config      map[string]any `json:"config,omitempty"`
	Rules       RuleSet        `json:"validation,omitempty"`
	Options     []*Option      `json:"options,omitempty"`

	seq int
}

type Option struct {
	ID    string `json:"id,omitempty"`
	Value string `json:"value"`
	Label string `json:"label"`
	Order int    `json:"order"`

	seq int
}

// AllFields returns every field reachable from the form: section fields in
// section order, then top-level fields. Within a parent, fields are ordered
// by Order with insertion order breaking ties.
func (f *Form) AllFields() []*Field {
	var fields []*Field
	for _, s := range f.SortedSections() {
		fields = append(fields, sortedFields(s.Fields)...)
	}
	fields = append(fields, sortedFields(f.Fields)...)
	return fields
}

// GetField returns the field with the given internal name, or nil.
func (f *Form) GetField(name string) *Field {
	for _, fl := range f.AllFields() {
		if fl.Name == name {
			return fl
		}
	}
	return nil
}

// HasField reports whether any reachable field has the given internal name.
func (f *Form) HasField(name string) bool {
	return f.GetField(name) != nil
}

// FieldNames returns the internal names of all reachable fields, in order.
func (f *Form) FieldNames() []string {
	all := f.AllFields()
	names := make([]string, len(all))
	for i, fl := range all {
		names[i] = fl.Name
	}
	return names
}

// SortedSections returns sections ordered by Order, stable on insertion order.
func (f *Form) SortedSections() []*Section {
	sections := make([]*Section, len(f.Sections))
	copy(sections, f.Sections)
	sort.SliceStable(sections, func(i, j int) bool {
		if sections[i].Order != sections[j].Order {
			return sections[i].Order < sections[j].Order
		}
		return sections[i].seq < sections[j].seq
	})
	return sections
}

// OptionValues returns the declared option values in order.
func (fl *Field) OptionValues() []string {
	opts := make([]*Option, len(fl.Options))
	copy(opts, fl.Options)
	sort.SliceStable(opts, func(i, j int) bool {
		if opts[i].Order != opts[j].Order {
			return opts[i].Order < opts[j].Order
		}
		return opts[i].seq < opts[j].seq
	})
	values := make([]string, len(opts))
	for i, o := range opts {
		values[i] = o.Value
	}
	return values
}

// HasOptionValue reports whether v is one of the field's declared option values.
func (fl *Field) HasOptionValue(v string) bool {
	for _, o := range fl.Options {
		if o.Value == v {
			return true
		}
	}
	return false
}

func sortedFields(fields []*Field) []*Field {
	out := make([]*Field, len(fields))
	copy(out, fields)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].seq < out[j].seq
	})
	return out
}
