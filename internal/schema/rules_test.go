package schema

import "testing"

func TestParseRuleSet(t *testing.T) {
	raw := []byte(`[
		{"kind": "min", "value": 18, "message": "Must be an adult"},
		{"kind": "pattern", "pattern": "^[A-Z]{2}\\d{4}$"},
		{"kind": "required_if", "field": "employed", "equals": true}
	]`)

	rs, err := ParseRuleSet(raw)
	if err != nil {
		t.Fatalf("parse ruleset: %v", err)
	}
	if len(rs) != 3 {
		t.Fatalf("expected 3 rules, got %d", len(rs))
	}
	if rs[0].Kind != RuleMin || rs[0].Value != 18 {
		t.Fatalf("unexpected min rule: %+v", rs[0])
	}
	if rs[0].Message != "Must be an adult" {
		t.Fatalf("message lost: %+v", rs[0])
	}

	deps := rs.ConditionFields()
	if len(deps) != 1 || deps[0] != "employed" {
		t.Fatalf("expected condition field [employed], got %v", deps)
	}
}

func TestParseRuleSet_UnknownKind(t *testing.T) {
	if _, err := ParseRuleSet([]byte(`[{"kind": "fancy"}]`)); err == nil {
		t.Fatal("expected error for unknown rule kind")
	}
}

func TestParseRuleSet_RequiredIfMissingField(t *testing.T) {
	if _, err := ParseRuleSet([]byte(`[{"kind": "required_if", "equals": "x"}]`)); err == nil {
		t.Fatal("expected error for required_if without field")
	}
}

func TestParseRuleSet_Empty(t *testing.T) {
	rs, err := ParseRuleSet(nil)
	if err != nil {
		t.Fatalf("nil ruleset: %v", err)
	}
	if rs != nil {
		t.Fatalf("expected nil ruleset, got %v", rs)
	}
}

func TestRuleSet_Kind(t *testing.T) {
	rs := RuleSet{
		{Kind: RuleMin, Value: 1},
		{Kind: RuleMax, Value: 10},
	}
	if rs.Kind(RuleMax) == nil {
		t.Fatal("expected max rule")
	}
	if rs.Kind(RulePattern) != nil {
		t.Fatal("expected nil for absent kind")
	}
}
