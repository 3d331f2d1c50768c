package engine

import (
	"testing"

	"onboard-backend/internal/schema"
)

func buildForm(t *testing.T, fields ...schema.FieldSpec) *schema.Form {
	t.Helper()
	b := schema.NewBuilder()
	form, err := b.DefineForm("Test Form", "test_form", "")
	if err != nil {
		t.Fatalf("define form: %v", err)
	}
	for _, spec := range fields {
		field, err := b.AddField(form, nil, spec)
		if err != nil {
			t.Fatalf("add field %s: %v", spec.Label, err)
		}
		if field.Type.HasOptions() {
			opts, _ := spec.Config["options"].([]string)
			for i, v := range opts {
				if _, err := b.AddOption(field, v, v, i); err != nil {
					t.Fatalf("add option %s: %v", v, err)
				}
			}
		}
	}
	return form
}

func TestValidate_RequiredMissing(t *testing.T) {
	form := buildForm(t, schema.FieldSpec{Label: "Age", Type: schema.TypeNumber, Required: true})

	result, appErr := Validate(form, map[string]any{})
	if appErr != nil {
		t.Fatalf("unexpected app error: %v", appErr)
	}
	if result.OK() {
		t.Fatal("expected validation failure for empty payload")
	}
	msgs := result.Errors["age"]
	if len(msgs) != 1 || msgs[0] != "required" {
		t.Fatalf("expected [required], got %v", msgs)
	}
}

func TestValidate_SelectOptionMembership(t *testing.T) {
	form := buildForm(t, schema.FieldSpec{
		Label: "Country", Type: schema.TypeSelect,
		Config: map[string]any{"options": []string{"US", "KE"}},
	})

	result, appErr := Validate(form, map[string]any{"country": "FR"})
	if appErr != nil {
		t.Fatalf("unexpected app error: %v", appErr)
	}
	msgs := result.Errors["country"]
	if len(msgs) != 1 || msgs[0] != "not a valid option" {
		t.Fatalf("expected [not a valid option], got %v", msgs)
	}

	result, _ = Validate(form, map[string]any{"country": "KE"})
	if !result.OK() {
		t.Fatalf("expected success for KE, got %v", result.Errors)
	}
	if result.Values["country"] != "KE" {
		t.Fatalf("expected normalized country KE, got %v", result.Values["country"])
	}
}

func TestValidate_NormalizesCoercedValues(t *testing.T) {
	form := buildForm(t,
		schema.FieldSpec{Label: "Age", Type: schema.TypeNumber, Required: true},
		schema.FieldSpec{Label: "Country", Type: schema.TypeSelect, Required: true,
			Config: map[string]any{"options": []string{"US", "KE"}}},
	)

	// Numeric strings coerce; the stored value is the number.
	result, appErr := Validate(form, map[string]any{"age": "30", "country": "US"})
	if appErr != nil {
		t.Fatalf("unexpected app error: %v", appErr)
	}
	if !result.OK() {
		t.Fatalf("expected success, got %v", result.Errors)
	}
	if result.Values["age"] != float64(30) {
		t.Fatalf("expected age 30 (float64), got %v (%T)", result.Values["age"], result.Values["age"])
	}
	if result.Values["country"] != "US" {
		t.Fatalf("expected country US, got %v", result.Values["country"])
	}

	// Validating the normalized output again must succeed unchanged.
	again, appErr := Validate(form, result.Values)
	if appErr != nil || !again.OK() {
		t.Fatalf("normalized payload did not revalidate: %v %v", appErr, again)
	}
	if again.Values["age"] != float64(30) {
		t.Fatalf("round trip changed age: %v", again.Values["age"])
	}
}

func TestValidate_DateNormalization(t *testing.T) {
	form := buildForm(t, schema.FieldSpec{Label: "Start Date", Type: schema.TypeDate})

	result, _ := Validate(form, map[string]any{"start_date": "2026-03-15T00:00:00Z"})
	if !result.OK() {
		t.Fatalf("expected success, got %v", result.Errors)
	}
	if result.Values["start_date"] != "2026-03-15" {
		t.Fatalf("expected normalized date 2026-03-15, got %v", result.Values["start_date"])
	}

	result, _ = Validate(form, map[string]any{"start_date": "not-a-date"})
	if result.OK() {
		t.Fatal("expected failure for unparseable date")
	}
}

func TestValidate_Email(t *testing.T) {
	form := buildForm(t, schema.FieldSpec{Label: "Email", Type: schema.TypeEmail})

	result, _ := Validate(form, map[string]any{"email": "user@example.com"})
	if !result.OK() {
		t.Fatalf("expected success, got %v", result.Errors)
	}

	for _, bad := range []string{"nope", "a@b", "a b@c.com", "@x.com"} {
		result, _ := Validate(form, map[string]any{"email": bad})
		if result.OK() {
			t.Fatalf("expected failure for email %q", bad)
		}
	}
}

func TestValidate_CheckboxBoolean(t *testing.T) {
	form := buildForm(t, schema.FieldSpec{Label: "Agree", Type: schema.TypeCheckbox, Required: true})

	result, _ := Validate(form, map[string]any{"agree": true})
	if !result.OK() {
		t.Fatalf("expected success for bool, got %v", result.Errors)
	}
	if result.Values["agree"] != true {
		t.Fatalf("expected true, got %v", result.Values["agree"])
	}

	// HTML form encodings coerce too.
	result, _ = Validate(form, map[string]any{"agree": "on"})
	if !result.OK() || result.Values["agree"] != true {
		t.Fatalf("expected 'on' to coerce to true, got %v %v", result.Errors, result.Values)
	}
}

func TestValidate_MultipleValues(t *testing.T) {
	multi := schema.FieldSpec{
		Label: "Skills", Type: schema.TypeSelect, Multiple: true,
		Config: map[string]any{"options": []string{"go", "sql"}},
	}
	single := schema.FieldSpec{
		Label: "Level", Type: schema.TypeSelect,
		Config: map[string]any{"options": []string{"junior", "senior"}},
	}
	form := buildForm(t, multi, single)

	result, _ := Validate(form, map[string]any{"skills": []any{"go", "sql"}})
	if !result.OK() {
		t.Fatalf("expected success for multi, got %v", result.Errors)
	}
	vals, ok := result.Values["skills"].([]any)
	if !ok || len(vals) != 2 {
		t.Fatalf("expected 2 normalized values, got %v", result.Values["skills"])
	}

	// A list on a single-value field is rejected.
	result, _ = Validate(form, map[string]any{"level": []any{"junior", "senior"}})
	if result.OK() {
		t.Fatal("expected failure for list on single-value field")
	}
	msgs := result.Errors["level"]
	if len(msgs) != 1 || msgs[0] != "multiple values not allowed" {
		t.Fatalf("expected [multiple values not allowed], got %v", msgs)
	}
}

func TestValidate_RequiredIfOverridesStaticFlag(t *testing.T) {
	form := buildForm(t,
		schema.FieldSpec{Label: "Employed", Type: schema.TypeText},
		schema.FieldSpec{
			Label: "Employer", Type: schema.TypeText, Required: true,
			Rules: schema.RuleSet{{Kind: schema.RuleRequiredIf, Field: "employed", Equals: "yes"}},
		},
	)

	// Condition not met: the static required flag does not apply.
	result, _ := Validate(form, map[string]any{"employed": "no"})
	if !result.OK() {
		t.Fatalf("expected success when condition unmet, got %v", result.Errors)
	}

	// Condition met and employer missing.
	result, _ = Validate(form, map[string]any{"employed": "yes"})
	if result.OK() {
		t.Fatal("expected failure when condition met and field missing")
	}
	if msgs := result.Errors["employer"]; len(msgs) != 1 || msgs[0] != "required" {
		t.Fatalf("expected [required], got %v", msgs)
	}

	// Condition field absent entirely: not required.
	result, _ = Validate(form, map[string]any{})
	if !result.OK() {
		t.Fatalf("expected success when condition field absent, got %v", result.Errors)
	}
}

func TestValidate_NumericBoundsAndLengths(t *testing.T) {
	form := buildForm(t,
		schema.FieldSpec{
			Label: "Age", Type: schema.TypeNumber,
			Rules: schema.RuleSet{
				{Kind: schema.RuleMin, Value: 18, Message: "Must be an adult"},
				{Kind: schema.RuleMax, Value: 120},
			},
		},
		schema.FieldSpec{
			Label: "Bio", Type: schema.TypeTextarea,
			Rules: schema.RuleSet{
				{Kind: schema.RuleMinLength, Value: 3},
				{Kind: schema.RuleMaxLength, Value: 10},
			},
		},
	)

	result, _ := Validate(form, map[string]any{"age": 15})
	if msgs := result.Errors["age"]; len(msgs) != 1 || msgs[0] != "Must be an adult" {
		t.Fatalf("expected custom min message, got %v", msgs)
	}

	result, _ = Validate(form, map[string]any{"age": 200})
	if msgs := result.Errors["age"]; len(msgs) != 1 || msgs[0] != "must be at most 120" {
		t.Fatalf("expected default max message, got %v", msgs)
	}

	result, _ = Validate(form, map[string]any{"bio": "ab"})
	if result.OK() {
		t.Fatal("expected min_length failure")
	}
	result, _ = Validate(form, map[string]any{"bio": "this is far too long"})
	if result.OK() {
		t.Fatal("expected max_length failure")
	}
	result, _ = Validate(form, map[string]any{"age": 30, "bio": "short"})
	if !result.OK() {
		t.Fatalf("expected success, got %v", result.Errors)
	}
}

func TestValidate_PatternRule(t *testing.T) {
	form := buildForm(t, schema.FieldSpec{
		Label: "Employee ID", Type: schema.TypeText,
		Rules: schema.RuleSet{{Kind: schema.RulePattern, Pattern: `^EMP-\d{4}$`, Message: "Use EMP-NNNN"}},
	})

	result, _ := Validate(form, map[string]any{"employee_id": "EMP-0042"})
	if !result.OK() {
		t.Fatalf("expected success, got %v", result.Errors)
	}

	result, _ = Validate(form, map[string]any{"employee_id": "42"})
	if msgs := result.Errors["employee_id"]; len(msgs) != 1 || msgs[0] != "Use EMP-NNNN" {
		t.Fatalf("expected pattern message, got %v", msgs)
	}
}

func TestValidate_ExpressionRule(t *testing.T) {
	form := buildForm(t,
		schema.FieldSpec{Label: "Start", Type: schema.TypeNumber},
		schema.FieldSpec{
			Label: "End", Type: schema.TypeNumber,
			Rules: schema.RuleSet{{
				Kind:    schema.RuleExpression,
				Expr:    `"start" in payload && value < payload["start"]`,
				Message: "End must not precede start",
			}},
		},
	)

	result, _ := Validate(form, map[string]any{"start": 5, "end": 3})
	if msgs := result.Errors["end"]; len(msgs) != 1 || msgs[0] != "End must not precede start" {
		t.Fatalf("expected expression violation, got %v", result.Errors)
	}

	result, _ = Validate(form, map[string]any{"start": 3, "end": 5})
	if !result.OK() {
		t.Fatalf("expected success, got %v", result.Errors)
	}
}

func TestValidate_CollectsAllErrors(t *testing.T) {
	form := buildForm(t,
		schema.FieldSpec{Label: "Age", Type: schema.TypeNumber, Required: true},
		schema.FieldSpec{Label: "Email", Type: schema.TypeEmail, Required: true},
		schema.FieldSpec{Label: "Name", Type: schema.TypeText, Required: true},
	)

	result, _ := Validate(form, map[string]any{"age": "abc", "email": "nope"})
	if result.OK() {
		t.Fatal("expected failure")
	}
	if len(result.Errors) != 3 {
		t.Fatalf("expected errors on all 3 fields, got %v", result.Errors)
	}
	if result.Values != nil {
		t.Fatalf("failed result must not carry values, got %v", result.Values)
	}
}

func TestValidate_StructuralMisuse(t *testing.T) {
	form := buildForm(t, schema.FieldSpec{Label: "Age", Type: schema.TypeNumber})

	// Payload intersecting no known field is misuse, not a field error.
	if _, appErr := Validate(form, map[string]any{"bogus": 1}); appErr == nil || appErr.Code != "INVALID_REQUEST" {
		t.Fatalf("expected INVALID_REQUEST, got %v", appErr)
	}

	// Inactive forms refuse submissions outright.
	form.Active = false
	if _, appErr := Validate(form, map[string]any{"age": 1}); appErr == nil || appErr.Code != "INVALID_REQUEST" {
		t.Fatalf("expected INVALID_REQUEST for inactive form, got %v", appErr)
	}

	if _, appErr := Validate(nil, map[string]any{}); appErr == nil {
		t.Fatal("expected error for nil form")
	}
}

func TestValidate_EmptyStringIsAbsent(t *testing.T) {
	form := buildForm(t, schema.FieldSpec{Label: "Nickname", Type: schema.TypeText, Required: true})

	result, _ := Validate(form, map[string]any{"nickname": ""})
	if result.OK() {
		t.Fatal("expected required failure for empty string")
	}
	if msgs := result.Errors["nickname"]; len(msgs) != 1 || msgs[0] != "required" {
		t.Fatalf("expected [required], got %v", msgs)
	}

	// Optional field: empty string means simply absent.
	form2 := buildForm(t, schema.FieldSpec{Label: "Nickname", Type: schema.TypeText})
	result, _ = Validate(form2, map[string]any{"nickname": ""})
	if !result.OK() {
		t.Fatalf("expected success, got %v", result.Errors)
	}
	if _, present := result.Values["nickname"]; present {
		t.Fatal("empty optional field must not appear in normalized values")
	}
}
