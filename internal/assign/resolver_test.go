package assign

import "testing"

func directory() []Identity {
	return []Identity{
		{ID: "u1", Email: "alice@example.com", Staff: true},
		{ID: "u2", Email: "bob@example.com", Staff: true},
		{ID: "u3", Email: "carol@example.com"},
		{ID: "u4", Email: "dan@example.com", Staff: true, Superuser: true},
		{ID: "u5", Email: "erin@example.com", Staff: true},
	}
}

func TestResolveAudience_Staff(t *testing.T) {
	got := ResolveAudience(GroupStaff, directory())
	if len(got) != 3 {
		t.Fatalf("expected 3 staff, got %d: %v", len(got), got)
	}
	// Superusers never land in the staff audience.
	for _, id := range got {
		if id.Superuser {
			t.Fatalf("superuser %s in staff audience", id.ID)
		}
	}
	// Sorted by ID.
	if got[0].ID != "u1" || got[1].ID != "u2" || got[2].ID != "u5" {
		t.Fatalf("unexpected order: %v", got)
	}
}

func TestResolveAudience_Client(t *testing.T) {
	got := ResolveAudience(GroupClient, directory())
	if len(got) != 1 || got[0].ID != "u3" {
		t.Fatalf("expected [u3], got %v", got)
	}
}

func TestResolveAudience_UnknownGroupIsEmpty(t *testing.T) {
	got := ResolveAudience("contractors", directory())
	if len(got) != 0 {
		t.Fatalf("unknown group must resolve to empty, got %v", got)
	}
}

func TestResolveAudience_Deterministic(t *testing.T) {
	first := ResolveAudience(GroupStaff, directory())
	second := ResolveAudience(GroupStaff, directory())
	if len(first) != len(second) {
		t.Fatalf("resolution not deterministic: %v vs %v", first, second)
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("resolution not deterministic at %d: %v vs %v", i, first, second)
		}
	}
}

func TestKnownGroup(t *testing.T) {
	if !KnownGroup(GroupStaff) || !KnownGroup(GroupClient) {
		t.Fatal("staff and client must be known groups")
	}
	if KnownGroup("admins") {
		t.Fatal("admins must not be a known group")
	}
}

func TestIdentity_Privileged(t *testing.T) {
	cases := []struct {
		id   Identity
		want bool
	}{
		{Identity{Staff: true, Superuser: true}, true},
		{Identity{Staff: true}, false},
		{Identity{Superuser: true}, false},
		{Identity{}, false},
	}
	for _, tc := range cases {
		if got := tc.id.Privileged(); got != tc.want {
			t.Errorf("Privileged(%+v) = %v, want %v", tc.id, got, tc.want)
		}
	}
}

func TestAdded(t *testing.T) {
	prev := []Identity{{ID: "u1"}, {ID: "u2"}}
	next := []Identity{{ID: "u1"}, {ID: "u2"}, {ID: "u9"}}

	added := Added(prev, next)
	if len(added) != 1 || added[0].ID != "u9" {
		t.Fatalf("expected [u9], got %v", added)
	}

	// A shrinking audience adds nobody; the snapshot never loses members.
	if added := Added(next, prev); len(added) != 0 {
		t.Fatalf("expected no additions, got %v", added)
	}

	if added := Added(nil, next); len(added) != 3 {
		t.Fatalf("expected all 3 added from empty snapshot, got %v", added)
	}
}
