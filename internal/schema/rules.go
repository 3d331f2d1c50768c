package schema

import (
	"encoding/json"
	"fmt"
)

// Rule kinds. A field's validation ruleset is a closed tagged-variant list
// rather than an open-ended map, so the engine can exhaust every kind.
const (
	RuleRequired   = "required"
	RuleMin        = "min"
	RuleMax        = "max"
	RuleMinLength  = "min_length"
	RuleMaxLength  = "max_length"
	RulePattern    = "pattern"
	RuleRequiredIf = "required_if"
	RuleExpression = "expression"
)

// Rule is one validation rule attached to a field.
//
//   - min/max: numeric bound for number fields
//   - min_length/max_length: string length bound
//   - pattern: regexp the string value must match
//   - required_if: the field is required only when Field equals Equals
//     in the same payload
//   - expression: expr-lang boolean over {"payload": ...}; a true result
//     is a violation
type Rule struct {
	Kind    string  `json:"kind"`
	Value   float64 `json:"value,omitempty"`      // min, max, min_length, max_length
	Pattern string  `json:"pattern,omitempty"`    // pattern
	Field   string  `json:"field,omitempty"`      // required_if: other field name
	Equals  any     `json:"equals,omitempty"`     // required_if: value to compare
	Expr    string  `json:"expression,omitempty"` // expression
	Message string  `json:"message,omitempty"`

	// Compiled holds the cached expr-lang program for expression rules.
	Compiled any `json:"-"`
}

type RuleSet []*Rule

// Kind returns the first rule of the given kind, or nil.
func (rs RuleSet) Kind(kind string) *Rule {
	for _, r := range rs {
		if r.Kind == kind {
			return r
		}
	}
	return nil
}

// ConditionFields returns the names of fields this ruleset's required_if
// rules depend on.
func (rs RuleSet) ConditionFields() []string {
	var names []string
	for _, r := range rs {
		if r.Kind == RuleRequiredIf && r.Field != "" {
			names = append(names, r.Field)
		}
	}
	return names
}

// ParseRuleSet decodes a JSON ruleset and rejects unknown rule kinds.
func ParseRuleSet(raw []byte) (RuleSet, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var rs RuleSet
	if err := json.Unmarshal(raw, &rs); err != nil {
		return nil, fmt.Errorf("parse ruleset: %w", err)
	}
	for _, r := range rs {
		switch r.Kind {
		case RuleRequired, RuleMin, RuleMax, RuleMinLength, RuleMaxLength,
			RulePattern, RuleRequiredIf, RuleExpression:
		default:
			return nil, fmt.Errorf("unknown rule kind: %s", r.Kind)
		}
		if r.Kind == RuleRequiredIf && r.Field == "" {
			return nil, fmt.Errorf("required_if rule missing field")
		}
	}
	return rs, nil
}
