package schema

import (
	"errors"
	"testing"
)

func TestBuilder_DefineForm_DuplicateSlug(t *testing.T) {
	b := NewBuilder("onboarding")

	if _, err := b.DefineForm("Onboarding", "onboarding", ""); !errors.Is(err, ErrDuplicateSlug) {
		t.Fatalf("expected ErrDuplicateSlug, got %v", err)
	}

	form, err := b.DefineForm("Exit Interview", "", "")
	if err != nil {
		t.Fatalf("define form: %v", err)
	}
	if form.Slug != "exit_interview" {
		t.Fatalf("expected derived slug exit_interview, got %s", form.Slug)
	}

	// Derived slugs count against the namespace too.
	if _, err := b.DefineForm("Exit-Interview", "", ""); !errors.Is(err, ErrDuplicateSlug) {
		t.Fatalf("expected ErrDuplicateSlug for derived collision, got %v", err)
	}
}

func TestBuilder_AddField_DerivedName(t *testing.T) {
	b := NewBuilder()
	form, _ := b.DefineForm("Test", "test", "")

	field, err := b.AddField(form, nil, FieldSpec{Label: "Full Name!", Type: TypeText})
	if err != nil {
		t.Fatalf("add field: %v", err)
	}
	if field.Name != "full_name" {
		t.Fatalf("expected derived name full_name, got %s", field.Name)
	}

	// A second label collapsing to the same name collides.
	if _, err := b.AddField(form, nil, FieldSpec{Label: "full name", Type: TypeText}); !errors.Is(err, ErrDuplicateFieldName) {
		t.Fatalf("expected ErrDuplicateFieldName, got %v", err)
	}
}

func TestBuilder_AddField_DuplicateAcrossSections(t *testing.T) {
	b := NewBuilder()
	form, _ := b.DefineForm("Test", "test", "")
	s1 := b.AddSection(form, "One", "", 0)
	s2 := b.AddSection(form, "Two", "", 1)

	if _, err := b.AddField(form, s1, FieldSpec{Label: "Email", Type: TypeEmail}); err != nil {
		t.Fatalf("add field: %v", err)
	}
	// Uniqueness is per form, not per section.
	if _, err := b.AddField(form, s2, FieldSpec{Label: "Email", Type: TypeEmail}); !errors.Is(err, ErrDuplicateFieldName) {
		t.Fatalf("expected ErrDuplicateFieldName across sections, got %v", err)
	}
}

func TestBuilder_AddField_InvalidType(t *testing.T) {
	b := NewBuilder()
	form, _ := b.DefineForm("Test", "test", "")

	if _, err := b.AddField(form, nil, FieldSpec{Label: "X", Type: "dropdown"}); !errors.Is(err, ErrInvalidFieldType) {
		t.Fatalf("expected ErrInvalidFieldType, got %v", err)
	}
}

func TestBuilder_AddField_MissingLabel(t *testing.T) {
	b := NewBuilder()
	form, _ := b.DefineForm("Test", "test", "")

	if _, err := b.AddField(form, nil, FieldSpec{Label: "???", Type: TypeText}); !errors.Is(err, ErrMissingLabel) {
		t.Fatalf("expected ErrMissingLabel for all-punctuation label, got %v", err)
	}
}

func TestBuilder_AddOption_TypePairing(t *testing.T) {
	b := NewBuilder()
	form, _ := b.DefineForm("Test", "test", "")

	text, _ := b.AddField(form, nil, FieldSpec{Label: "Comment", Type: TypeText})
	if _, err := b.AddOption(text, "a", "A", 0); !errors.Is(err, ErrOptionNotAllowed) {
		t.Fatalf("expected ErrOptionNotAllowed on text field, got %v", err)
	}

	sel, _ := b.AddField(form, nil, FieldSpec{Label: "Size", Type: TypeSelect})
	if _, err := b.AddOption(sel, "s", "Small", 0); err != nil {
		t.Fatalf("add option on select: %v", err)
	}
	if _, err := b.AddOption(sel, "m", "Medium", 1); err != nil {
		t.Fatalf("add option on select: %v", err)
	}
	if got := sel.OptionValues(); len(got) != 2 || got[0] != "s" || got[1] != "m" {
		t.Fatalf("unexpected option values: %v", got)
	}
}

func TestBuilder_RequiredIfCycle(t *testing.T) {
	b := NewBuilder()
	form, _ := b.DefineForm("Test", "test", "")

	requiredIf := func(other string) RuleSet {
		return RuleSet{{Kind: RuleRequiredIf, Field: other, Equals: "yes"}}
	}

	if _, err := b.AddField(form, nil, FieldSpec{Label: "A", Type: TypeText, Rules: requiredIf("b")}); err != nil {
		// b does not exist yet; forward references are allowed.
		t.Fatalf("forward reference rejected: %v", err)
	}
	if _, err := b.AddField(form, nil, FieldSpec{Label: "C", Type: TypeText, Rules: requiredIf("a")}); err != nil {
		t.Fatalf("add field c: %v", err)
	}

	// Closing the loop a -> b -> a must fail.
	if _, err := b.AddField(form, nil, FieldSpec{Label: "B", Type: TypeText, Rules: requiredIf("a")}); !errors.Is(err, ErrRuleCycle) {
		t.Fatalf("expected ErrRuleCycle, got %v", err)
	}

	// The rejected field must not linger on the form.
	if form.HasField("b") {
		t.Fatal("rejected field b still present on form")
	}

	// The form stays usable after the rejection.
	if _, err := b.AddField(form, nil, FieldSpec{Label: "D", Type: TypeText}); err != nil {
		t.Fatalf("form unusable after cycle rejection: %v", err)
	}
}

func TestBuilder_RequiredIfSelfCycle(t *testing.T) {
	b := NewBuilder()
	form, _ := b.DefineForm("Test", "test", "")

	rules := RuleSet{{Kind: RuleRequiredIf, Field: "a", Equals: "yes"}}
	if _, err := b.AddField(form, nil, FieldSpec{Label: "A", Type: TypeText, Rules: rules}); !errors.Is(err, ErrRuleCycle) {
		t.Fatalf("expected ErrRuleCycle for self-reference, got %v", err)
	}
}

func TestForm_AllFieldsOrdering(t *testing.T) {
	b := NewBuilder()
	form, _ := b.DefineForm("Test", "test", "")

	// Sections out of order: Order wins over insertion.
	late := b.AddSection(form, "Late", "", 2)
	early := b.AddSection(form, "Early", "", 1)

	b.AddField(form, late, FieldSpec{Label: "Three", Type: TypeText, Order: 0})
	b.AddField(form, early, FieldSpec{Label: "Two", Type: TypeText, Order: 1})
	b.AddField(form, early, FieldSpec{Label: "One", Type: TypeText, Order: 0})
	b.AddField(form, nil, FieldSpec{Label: "Four", Type: TypeText})

	got := form.FieldNames()
	want := []string{"one", "two", "three", "four"}
	if len(got) != len(want) {
		t.Fatalf("expected %d fields, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("field order mismatch at %d: got %v, want %v", i, got, want)
		}
	}
}
