package schema

import "testing"

func TestDeriveFieldName(t *testing.T) {
	cases := []struct {
		label string
		want  string
	}{
		{"First Name", "first_name"},
		{"Email Address!", "email_address"},
		{"  Date of Birth  ", "date_of_birth"},
		{"What's your T-shirt size?", "what_s_your_t_shirt_size"},
		{"ALL CAPS", "all_caps"},
		{"already_snake", "already_snake"},
		{"multiple   spaces", "multiple_spaces"},
		{"---", ""},
		{"", ""},
	}

	for _, tc := range cases {
		got := DeriveFieldName(tc.label)
		if got != tc.want {
			t.Errorf("DeriveFieldName(%q) = %q, want %q", tc.label, got, tc.want)
		}
	}
}

// A derived name fed back through derivation must not change. Labels that
// differ only in punctuation collapse to the same name.
func TestDeriveFieldName_Stable(t *testing.T) {
	labels := []string{"First Name", "first name", "First-Name", "first_name?"}
	for _, label := range labels {
		name := DeriveFieldName(label)
		if name != "first_name" {
			t.Fatalf("DeriveFieldName(%q) = %q, want first_name", label, name)
		}
		if again := DeriveFieldName(name); again != name {
			t.Fatalf("derivation not stable: %q -> %q", name, again)
		}
	}
}
