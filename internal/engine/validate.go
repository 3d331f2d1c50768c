package engine

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"onboard-backend/internal/schema"
)

// FieldErrors maps a field's internal name to its violation messages, in the
// order the checks ran.
type FieldErrors map[string][]string

// Result is the outcome of validating a payload against a form. Exactly one
// of Values and Errors is populated: a success carries the normalized payload
// and no errors, a failure carries one entry per invalid field and no values.
type Result struct {
	Values map[string]any `json:"values,omitempty"`
	Errors FieldErrors    `json:"errors,omitempty"`
}

// OK reports whether validation succeeded.
func (r *Result) OK() bool {
	return len(r.Errors) == 0
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

// Validate checks payload against the form's live schema.
//
// Invalid user input is a normal result, never an error: every invalid field
// is collected before returning. The AppError return covers structural misuse
// only: a nil or inactive form, or a payload that references no known field
// at all.
func Validate(form *schema.Form, payload map[string]any) (*Result, *AppError) {
	if form == nil {
		return nil, InvalidRequestError("no form to validate against")
	}
	if !form.Active {
		return nil, InvalidRequestError(fmt.Sprintf("form %s is not active", form.Slug))
	}

	fields := form.AllFields()

	if len(payload) > 0 {
		known := false
		for key := range payload {
			if form.HasField(key) {
				known = true
				break
			}
		}
		if !known {
			return nil, InvalidRequestError("payload references no known fields")
		}
	}

	errs := make(FieldErrors)
	values := make(map[string]any, len(fields))
	fail := func(name, msg string) {
		errs[name] = append(errs[name], msg)
	}

	for _, field := range fields {
		raw, present := payload[field.Name]
		vals := extractValues(raw, present)

		if len(vals) == 0 {
			if isRequired(field, payload) {
				fail(field.Name, "required")
			}
			continue
		}

		if !field.Multiple && len(vals) > 1 {
			fail(field.Name, "multiple values not allowed")
			continue
		}

		coerced := make([]any, 0, len(vals))
		ok := true
		for _, v := range vals {
			cv, msg := coerceValue(field, v)
			if msg != "" {
				fail(field.Name, msg)
				ok = false
				continue
			}
			coerced = append(coerced, cv)
		}
		if !ok {
			continue
		}

		for _, msg := range checkRules(field, coerced, payload) {
			fail(field.Name, msg)
		}
		if len(errs[field.Name]) > 0 {
			continue
		}

		if field.Multiple {
			values[field.Name] = coerced
		} else {
			values[field.Name] = coerced[0]
		}
	}

	if len(errs) > 0 {
		return &Result{Errors: errs}, nil
	}
	return &Result{Values: values}, nil
}

// extractValues flattens a payload entry into a list of candidate values.
// Absence and empty are distinct: an absent key, a nil value, an empty string
// and an empty list all extract to no values, but only because there is
// nothing to coerce; the required check decides whether that is a failure.
func extractValues(raw any, present bool) []any {
	if !present || raw == nil {
		return nil
	}
	switch v := raw.(type) {
	case []any:
		var out []any
		for _, item := range v {
			if item == nil {
				continue
			}
			if s, isStr := item.(string); isStr && s == "" {
				continue
			}
			out = append(out, item)
		}
		return out
	case []string:
		var out []any
		for _, s := range v {
			if s != "" {
				out = append(out, s)
			}
		}
		return out
	case string:
		if v == "" {
			return nil
		}
		return []any{v}
	default:
		return []any{v}
	}
}

// isRequired resolves the effective required flag for a field. A required_if
// rule overrides the static flag and is evaluated against the extracted
// payload, never the database.
func isRequired(field *schema.Field, payload map[string]any) bool {
	if rule := field.Rules.Kind(schema.RuleRequiredIf); rule != nil {
		other, present := payload[rule.Field]
		if !present {
			return false
		}
		return looseEqual(other, rule.Equals)
	}
	if field.Rules.Kind(schema.RuleRequired) != nil {
		return true
	}
	return field.Required
}

// coerceValue converts a submitted value to the field type's canonical
// representation. Returns the coerced value, or a violation message.
func coerceValue(field *schema.Field, v any) (any, string) {
	switch field.Type {
	case schema.TypeNumber:
		n, ok := toNumber(v)
		if !ok {
			return nil, "must be a number"
		}
		return n, ""

	case schema.TypeDate:
		s, ok := toString(v)
		if !ok {
			return nil, "must be an ISO date"
		}
		t, err := parseDate(s)
		if err != nil {
			return nil, "must be an ISO date"
		}
		return t.Format("2006-01-02"), ""

	case schema.TypeEmail:
		s, ok := toString(v)
		if !ok || !emailPattern.MatchString(s) {
			return nil, "must be a valid email address"
		}
		return s, ""

	case schema.TypeSelect, schema.TypeRadio:
		s, ok := toString(v)
		if !ok {
			return nil, "not a valid option"
		}
		if !field.HasOptionValue(s) {
			return nil, "not a valid option"
		}
		return s, ""

	case schema.TypeCheckbox:
		// A checkbox without declared options is a plain boolean consent box.
		if len(field.Options) == 0 {
			b, ok := toBool(v)
			if !ok {
				return nil, "must be a boolean"
			}
			return b, ""
		}
		s, ok := toString(v)
		if !ok || !field.HasOptionValue(s) {
			return nil, "not a valid option"
		}
		return s, ""

	default: // text, textarea, file
		s, ok := toString(v)
		if !ok {
			return nil, "must be a string"
		}
		return s, ""
	}
}

// checkRules applies the field's ruleset to the coerced values and returns
// every violation message.
func checkRules(field *schema.Field, coerced []any, payload map[string]any) []string {
	var msgs []string
	add := func(rule *schema.Rule, fallback string) {
		if rule.Message != "" {
			msgs = append(msgs, rule.Message)
		} else {
			msgs = append(msgs, fallback)
		}
	}

	for _, rule := range field.Rules {
		switch rule.Kind {
		case schema.RuleMin:
			for _, v := range coerced {
				if n, ok := toNumber(v); ok && n < rule.Value {
					add(rule, fmt.Sprintf("must be at least %g", rule.Value))
					break
				}
			}

		case schema.RuleMax:
			for _, v := range coerced {
				if n, ok := toNumber(v); ok && n > rule.Value {
					add(rule, fmt.Sprintf("must be at most %g", rule.Value))
					break
				}
			}

		case schema.RuleMinLength:
			for _, v := range coerced {
				if s, ok := v.(string); ok && len(s) < int(rule.Value) {
					add(rule, fmt.Sprintf("must be at least %d characters", int(rule.Value)))
					break
				}
			}

		case schema.RuleMaxLength:
			for _, v := range coerced {
				if s, ok := v.(string); ok && len(s) > int(rule.Value) {
					add(rule, fmt.Sprintf("must be at most %d characters", int(rule.Value)))
					break
				}
			}

		case schema.RulePattern:
			re, err := regexp.Compile(rule.Pattern)
			if err != nil {
				continue // rejected at authoring time; never fail the submitter for it
			}
			for _, v := range coerced {
				if s, ok := v.(string); ok && !re.MatchString(s) {
					add(rule, "invalid format")
					break
				}
			}

		case schema.RuleExpression:
			if violated := evalExpressionRule(rule, payload, coerced); violated {
				add(rule, "invalid value")
			}
		}
	}
	return msgs
}

// evalExpressionRule runs an expr-lang boolean over the extracted payload.
// A true result is a violation. Programs are compiled lazily and cached on
// the rule.
func evalExpressionRule(rule *schema.Rule, payload map[string]any, coerced []any) bool {
	prog, ok := rule.Compiled.(*vm.Program)
	if !ok || prog == nil {
		compiled, err := expr.Compile(rule.Expr, expr.AsBool())
		if err != nil {
			return false // malformed expressions never fail the submitter
		}
		rule.Compiled = compiled
		prog = compiled
	}

	env := map[string]any{"payload": payload}
	if len(coerced) == 1 {
		env["value"] = coerced[0]
	} else {
		env["value"] = coerced
	}

	result, err := expr.Run(prog, env)
	if err != nil {
		return false
	}
	violated, ok := result.(bool)
	return ok && violated
}

func parseDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02 15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unparseable date: %s", s)
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}

func toString(v any) (string, bool) {
	s, ok := v.(string)
	return s, ok
}

func toBool(v any) (bool, bool) {
	switch b := v.(type) {
	case bool:
		return b, true
	case string:
		switch strings.ToLower(b) {
		case "true", "on", "1", "yes":
			return true, true
		case "false", "off", "0", "no":
			return false, true
		}
	}
	return false, false
}

func looseEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	if na, ok := toNumber(a); ok {
		if nb, ok := toNumber(b); ok {
			return na == nb
		}
	}
	return fmt.Sprintf("%v", a) == fmt.Sprintf("%v", b)
}
