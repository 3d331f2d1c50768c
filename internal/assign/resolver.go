// Package assign computes form audiences from a user-directory snapshot.
//
// Resolution is point-in-time: the audience is evaluated once against the
// snapshot supplied by the caller and persisted as a fixed set. Later
// directory changes never alter an existing assignment.
package assign

import (
	"log"
	"sort"
)

// Groups a form can be assigned to.
const (
	GroupStaff  = "staff"
	GroupClient = "client"
)

// Identity is one user in the directory snapshot.
type Identity struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	Staff     bool   `json:"is_staff"`
	Superuser bool   `json:"is_superuser"`
}

// Privileged reports whether the identity can see every form and submission.
func (i *Identity) Privileged() bool {
	return i.Staff && i.Superuser
}

// KnownGroup reports whether group is one of the recognized assignment groups.
func KnownGroup(group string) bool {
	return group == GroupStaff || group == GroupClient
}

// ResolveAudience returns the identities in the directory snapshot matching
// the group predicate:
//
//	staff  -> staff members that are not superusers
//	client -> members that are neither staff nor superusers
//
// An unrecognized group resolves to an empty set rather than an error, so a
// typo never notifies the wrong audience. The miss is logged.
func ResolveAudience(group string, directory []Identity) []Identity {
	var audience []Identity
	switch group {
	case GroupStaff:
		for _, id := range directory {
			if id.Staff && !id.Superuser {
				audience = append(audience, id)
			}
		}
	case GroupClient:
		for _, id := range directory {
			if !id.Staff && !id.Superuser {
				audience = append(audience, id)
			}
		}
	default:
		log.Printf("WARN: unrecognized assignment group %q resolves to empty audience", group)
	}

	sort.Slice(audience, func(i, j int) bool { return audience[i].ID < audience[j].ID })
	return audience
}

// Added returns the identities present in next but not in prev. Consumed by
// the notifier on re-resolution so already-notified users are not mailed again.
func Added(prev, next []Identity) []Identity {
	seen := make(map[string]bool, len(prev))
	for _, id := range prev {
		seen[id.ID] = true
	}
	var added []Identity
	for _, id := range next {
		if !seen[id.ID] {
			added = append(added, id)
		}
	}
	return added
}
