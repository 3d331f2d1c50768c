package engine

import (
	"context"
	"fmt"

	"github.com/gofiber/fiber/v2"

	"onboard-backend/internal/assign"
	"onboard-backend/internal/notify"
	"onboard-backend/internal/schema"
	"onboard-backend/internal/store"
)

// AssignmentHandler serves group assignments of forms.
type AssignmentHandler struct {
	store    *store.Store
	registry *schema.Registry
	notifier *notify.Notifier
}

func NewAssignmentHandler(s *store.Store, reg *schema.Registry, n *notify.Notifier) *AssignmentHandler {
	return &AssignmentHandler{store: s, registry: reg, notifier: n}
}

// Create handles POST /api/assignments: resolves the group against the
// current user directory and persists the audience as a fixed snapshot.
// Everyone in the audience gets an email.
func (h *AssignmentHandler) Create(c *fiber.Ctx) error {
	var body struct {
		FormID string `json:"form_id"`
		Group  string `json:"group"`
	}
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.FormID == "" || body.Group == "" {
		return NewAppError("INVALID_PAYLOAD", 400, "form_id and group are required")
	}

	form := h.registry.Get(body.FormID)
	if form == nil {
		return NotFoundError("form", body.FormID)
	}

	ctx := c.Context()

	directory, err := h.loadDirectory(ctx)
	if err != nil {
		return err
	}
	audience := assign.ResolveAudience(body.Group, directory)

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var createdBy *string
	if user := getUser(c); user != nil {
		createdBy = &user.ID
	}
	row, err := store.QueryRow(ctx, tx,
		`INSERT INTO form_assignments (form_id, grp, created_by)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		form.ID, body.Group, createdBy)
	if err != nil {
		return err
	}
	assignmentID := fmt.Sprintf("%v", row["id"])

	for _, u := range audience {
		_, err := store.Exec(ctx, tx,
			`INSERT INTO assignment_users (assignment_id, user_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			assignmentID, u.ID)
		if err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return err
	}

	h.notifier.FormAssigned(ctx, form.Name, audience)

	return c.Status(201).JSON(fiber.Map{
		"data": fiber.Map{
			"id":      assignmentID,
			"form_id": form.ID,
			"group":   body.Group,
			"users":   audience,
		},
	})
}

// Resolve handles POST /api/assignments/:id/resolve: re-runs the group
// predicate against today's directory. Users already in the snapshot stay;
// only the newly matched ones are added and notified.
func (h *AssignmentHandler) Resolve(c *fiber.Ctx) error {
	id := c.Params("id")
	ctx := c.Context()

	arow, err := store.QueryRow(ctx, h.store.Pool,
		"SELECT id, form_id, grp FROM form_assignments WHERE id = $1", id)
	if err != nil {
		return NotFoundError("assignment", id)
	}
	formID := fmt.Sprintf("%v", arow["form_id"])
	group := fmt.Sprintf("%v", arow["grp"])

	form := h.registry.Get(formID)
	if form == nil {
		return NotFoundError("form", formID)
	}

	prev, err := h.snapshotUsers(ctx, id)
	if err != nil {
		return err
	}
	directory, err := h.loadDirectory(ctx)
	if err != nil {
		return err
	}

	next := assign.ResolveAudience(group, directory)
	added := assign.Added(prev, next)

	for _, u := range added {
		_, err := store.Exec(ctx, h.store.Pool,
			`INSERT INTO assignment_users (assignment_id, user_id) VALUES ($1, $2)
			 ON CONFLICT DO NOTHING`,
			id, u.ID)
		if err != nil {
			return err
		}
	}

	if len(added) > 0 {
		h.notifier.FormAssigned(ctx, form.Name, added)
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"id":       id,
			"form_id":  formID,
			"group":    group,
			"existing": len(prev),
			"added":    added,
		},
	})
}

// List handles GET /api/assignments.
func (h *AssignmentHandler) List(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.Pool,
		`SELECT fa.id, fa.form_id, f.name AS form_name, fa.grp AS "group", fa.created_at,
		        COUNT(au.user_id) AS user_count
		 FROM form_assignments fa
		 JOIN forms f ON f.id = fa.form_id
		 LEFT JOIN assignment_users au ON au.assignment_id = fa.id
		 GROUP BY fa.id, fa.form_id, f.name, fa.grp, fa.created_at
		 ORDER BY fa.created_at DESC`)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

// loadDirectory reads the active user directory for audience resolution.
func (h *AssignmentHandler) loadDirectory(ctx context.Context) ([]assign.Identity, error) {
	rows, err := store.QueryRows(ctx, h.store.Pool,
		`SELECT id, email, first_name, last_name, is_staff, is_superuser
		 FROM _users WHERE active = true`)
	if err != nil {
		return nil, fmt.Errorf("load directory: %w", err)
	}

	directory := make([]assign.Identity, 0, len(rows))
	for _, r := range rows {
		id, _ := r["id"].(string)
		email, _ := r["email"].(string)
		first, _ := r["first_name"].(string)
		last, _ := r["last_name"].(string)
		staff, _ := r["is_staff"].(bool)
		superuser, _ := r["is_superuser"].(bool)
		name := first
		if last != "" {
			if name != "" {
				name += " "
			}
			name += last
		}
		directory = append(directory, assign.Identity{
			ID: id, Email: email, Name: name, Staff: staff, Superuser: superuser,
		})
	}
	return directory, nil
}

// snapshotUsers returns the identities currently persisted for an assignment.
func (h *AssignmentHandler) snapshotUsers(ctx context.Context, assignmentID string) ([]assign.Identity, error) {
	rows, err := store.QueryRows(ctx, h.store.Pool,
		`SELECT u.id, u.email, u.is_staff, u.is_superuser
		 FROM assignment_users au
		 JOIN _users u ON u.id = au.user_id
		 WHERE au.assignment_id = $1`, assignmentID)
	if err != nil {
		return nil, err
	}
	users := make([]assign.Identity, 0, len(rows))
	for _, r := range rows {
		id, _ := r["id"].(string)
		email, _ := r["email"].(string)
		staff, _ := r["is_staff"].(bool)
		superuser, _ := r["is_superuser"].(bool)
		users = append(users, assign.Identity{ID: id, Email: email, Staff: staff, Superuser: superuser})
	}
	return users, nil
}
