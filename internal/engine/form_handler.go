package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"

	"github.com/expr-lang/expr"
	"github.com/gofiber/fiber/v2"
	"github.com/jackc/pgx/v5"

	"onboard-backend/internal/assign"
	"onboard-backend/internal/schema"
	"onboard-backend/internal/store"
)

// FormHandler serves form authoring and listing.
type FormHandler struct {
	store    *store.Store
	registry *schema.Registry
}

func NewFormHandler(s *store.Store, reg *schema.Registry) *FormHandler {
	return &FormHandler{store: s, registry: reg}
}

// Authoring payload for a full form definition. Sections, fields and options
// arrive nested and are written in one transaction.
type formInput struct {
	Name        string         `json:"name"`
	Slug        string         `json:"slug"`
	Description string         `json:"description"`
	Sections    []sectionInput `json:"sections"`
	Fields      []fieldInput   `json:"fields"`
}

type sectionInput struct {
	Title       string       `json:"title"`
	Description string       `json:"description"`
	Position    int          `json:"position"`
	Fields      []fieldInput `json:"fields"`
}

type fieldInput struct {
	Name        string          `json:"name"`
	Label       string          `json:"label"`
	Type        string          `json:"field_type"`
	Placeholder string          `json:"placeholder"`
	HelpText    string          `json:"help_text"`
	Position    int             `json:"position"`
	Required    bool            `json:"required"`
	Multiple    bool            `json:"multiple"`
	Config      map[string]any  `json:"config"`
	Rules       json.RawMessage `json:"rules"`
	Options     []optionInput   `json:"options"`
}

type optionInput struct {
	Value    string `json:"value"`
	Label    string `json:"label"`
	Position int    `json:"position"`
}

// Create handles POST /api/forms: builds the definition in memory, enforcing
// the structural invariants, then persists the whole hierarchy transactionally
// and reloads the registry.
func (h *FormHandler) Create(c *fiber.Ctx) error {
	var input formInput
	if err := c.BodyParser(&input); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if input.Name == "" {
		return NewAppError("INVALID_PAYLOAD", 400, "Form name is required")
	}

	builder := schema.NewBuilder(h.registry.Slugs()...)
	form, err := builder.DefineForm(input.Name, input.Slug, input.Description)
	if err != nil {
		return structuralAppError(err)
	}
	if user := getUser(c); user != nil {
		form.CreatedBy = user.ID
	}

	for _, si := range input.Sections {
		section := builder.AddSection(form, si.Title, si.Description, si.Position)
		for _, fi := range si.Fields {
			if err := addField(builder, form, section, fi); err != nil {
				return structuralAppError(err)
			}
		}
	}
	for _, fi := range input.Fields {
		if err := addField(builder, form, nil, fi); err != nil {
			return structuralAppError(err)
		}
	}

	formID, err := h.insertForm(c.Context(), form)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return StructuralError("DUPLICATE_SLUG", fmt.Sprintf("Form slug %q already exists", form.Slug))
		}
		return fmt.Errorf("insert form: %w", err)
	}

	if err := schema.Reload(c.Context(), h.store.Pool, h.registry); err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}

	return c.Status(201).JSON(fiber.Map{"data": h.registry.Get(formID)})
}

// addField parses the field input's ruleset and options and adds it through
// the builder so every structural check runs.
func addField(builder *schema.Builder, form *schema.Form, section *schema.Section, fi fieldInput) error {
	rules, err := schema.ParseRuleSet(fi.Rules)
	if err != nil {
		return err
	}
	if err := vetRules(rules); err != nil {
		return err
	}

	field, err := builder.AddField(form, section, schema.FieldSpec{
		Name:        fi.Name,
		Label:       fi.Label,
		Type:        schema.FieldType(fi.Type),
		Placeholder: fi.Placeholder,
		HelpText:    fi.HelpText,
		Order:       fi.Position,
		Required:    fi.Required,
		Multiple:    fi.Multiple,
		Config:      fi.Config,
		Rules:       rules,
	})
	if err != nil {
		return err
	}

	for _, oi := range fi.Options {
		if _, err := builder.AddOption(field, oi.Value, oi.Label, oi.Position); err != nil {
			return err
		}
	}
	return nil
}

// vetRules rejects patterns and expressions that cannot compile. Caught here,
// at authoring time, so submitters never pay for a broken rule.
func vetRules(rules schema.RuleSet) error {
	for _, r := range rules {
		switch r.Kind {
		case schema.RulePattern:
			if _, err := regexp.Compile(r.Pattern); err != nil {
				return fmt.Errorf("invalid pattern rule: %w", err)
			}
		case schema.RuleExpression:
			if _, err := expr.Compile(r.Expr, expr.AsBool()); err != nil {
				return fmt.Errorf("invalid expression rule: %w", err)
			}
		}
	}
	return nil
}

// insertForm writes the form hierarchy in one transaction and returns the new
// form id.
func (h *FormHandler) insertForm(ctx context.Context, form *schema.Form) (string, error) {
	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	row, err := store.QueryRow(ctx, tx,
		`INSERT INTO forms (slug, name, description, created_by)
		 VALUES ($1, $2, $3, NULLIF($4, '')::uuid)
		 RETURNING id`,
		form.Slug, form.Name, form.Description, form.CreatedBy)
	if err != nil {
		return "", err
	}
	formID := fmt.Sprintf("%v", row["id"])

	for _, section := range form.SortedSections() {
		srow, err := store.QueryRow(ctx, tx,
			`INSERT INTO form_sections (form_id, title, description, position)
			 VALUES ($1, $2, $3, $4)
			 RETURNING id`,
			formID, section.Title, section.Description, section.Order)
		if err != nil {
			return "", err
		}
		sectionID := fmt.Sprintf("%v", srow["id"])
		for _, field := range section.Fields {
			if err := insertField(ctx, tx, formID, &sectionID, field); err != nil {
				return "", err
			}
		}
	}
	for _, field := range form.Fields {
		if err := insertField(ctx, tx, formID, nil, field); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return formID, nil
}

func insertField(ctx context.Context, tx pgx.Tx, formID string, sectionID *string, field *schema.Field) error {
	configJSON, err := json.Marshal(orEmptyMap(field.Config))
	if err != nil {
		return fmt.Errorf("marshal field config: %w", err)
	}
	rulesJSON, err := json.Marshal(orEmptyRules(field.Rules))
	if err != nil {
		return fmt.Errorf("marshal field rules: %w", err)
	}

	row, err := store.QueryRow(ctx, tx,
		`INSERT INTO form_fields (form_id, section_id, name, label, field_type, placeholder,
		                          help_text, position, required, multiple, config, rules)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		 RETURNING id`,
		formID, sectionID, field.Name, field.Label, string(field.Type), field.Placeholder,
		field.HelpText, field.Order, field.Required, field.Multiple, configJSON, rulesJSON)
	if err != nil {
		return err
	}
	fieldID := fmt.Sprintf("%v", row["id"])

	for _, opt := range field.Options {
		_, err := store.Exec(ctx, tx,
			`INSERT INTO field_options (field_id, value, label, position)
			 VALUES ($1, $2, $3, $4)`,
			fieldID, opt.Value, opt.Label, opt.Order)
		if err != nil {
			return err
		}
	}
	return nil
}

// List handles GET /api/forms. Privileged callers see every form; everyone
// else sees only the forms assigned to them. Newest first.
func (h *FormHandler) List(c *fiber.Ctx) error {
	user := getUser(c)

	var rows []map[string]any
	var err error
	if user != nil && user.Privileged() {
		rows, err = store.QueryRows(c.Context(), h.store.Pool,
			`SELECT id, slug, name, description, is_active, created_by, created_at, updated_at
			 FROM forms ORDER BY created_at DESC`)
	} else {
		rows, err = h.assignedForms(c.Context(), user, false)
	}
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

// Available handles GET /api/forms/available: the active forms the caller can
// actually submit. Privileged callers get every active form.
func (h *FormHandler) Available(c *fiber.Ctx) error {
	user := getUser(c)

	var rows []map[string]any
	var err error
	if user != nil && user.Privileged() {
		rows, err = store.QueryRows(c.Context(), h.store.Pool,
			`SELECT id, slug, name, description, is_active, created_at, updated_at
			 FROM forms WHERE is_active = true ORDER BY created_at DESC`)
	} else {
		rows, err = h.assignedForms(c.Context(), user, true)
	}
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

func (h *FormHandler) assignedForms(ctx context.Context, user *assign.Identity, activeOnly bool) ([]map[string]any, error) {
	if user == nil {
		return nil, nil
	}
	sql := `SELECT DISTINCT f.id, f.slug, f.name, f.description, f.is_active, f.created_at, f.updated_at
	        FROM forms f
	        JOIN form_assignments fa ON fa.form_id = f.id
	        JOIN assignment_users au ON au.assignment_id = fa.id
	        WHERE au.user_id = $1`
	if activeOnly {
		sql += " AND f.is_active = true"
	}
	sql += " ORDER BY f.created_at DESC"
	return store.QueryRows(ctx, h.store.Pool, sql, user.ID)
}

// Count handles GET /api/forms/count.
func (h *FormHandler) Count(c *fiber.Ctx) error {
	row, err := store.QueryRow(c.Context(), h.store.Pool, "SELECT COUNT(*) AS count FROM forms")
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"count": row["count"]})
}

// Get handles GET /api/forms/:id and returns the full definition from the
// registry. Non-privileged callers must be assigned to the form.
func (h *FormHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	form := h.registry.Get(id)
	if form == nil {
		form = h.registry.GetBySlug(id)
	}
	if form == nil {
		return NotFoundError("form", id)
	}

	user := getUser(c)
	if user != nil && !user.Privileged() {
		assigned, err := h.isAssigned(c.Context(), form.ID, user.ID)
		if err != nil {
			return err
		}
		if !assigned {
			return ForbiddenError("You are not assigned to this form")
		}
	}

	return c.JSON(fiber.Map{"data": form})
}

func (h *FormHandler) isAssigned(ctx context.Context, formID, userID string) (bool, error) {
	row, err := store.QueryRow(ctx, h.store.Pool,
		`SELECT COUNT(*) AS count
		 FROM form_assignments fa
		 JOIN assignment_users au ON au.assignment_id = fa.id
		 WHERE fa.form_id = $1 AND au.user_id = $2`,
		formID, userID)
	if err != nil {
		return false, err
	}
	n, _ := row["count"].(int64)
	return n > 0, nil
}

// Update handles PUT /api/forms/:id: metadata only. Field structure is
// immutable once defined; a new revision means a new form.
func (h *FormHandler) Update(c *fiber.Ctx) error {
	id := c.Params("id")
	var body struct {
		Name        *string `json:"name"`
		Description *string `json:"description"`
		Active      *bool   `json:"is_active"`
	}
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}

	affected, err := store.Exec(c.Context(), h.store.Pool,
		`UPDATE forms
		 SET name = COALESCE($1, name),
		     description = COALESCE($2, description),
		     is_active = COALESCE($3, is_active),
		     updated_at = NOW()
		 WHERE id = $4`,
		body.Name, body.Description, body.Active, id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return NotFoundError("form", id)
	}

	if err := schema.Reload(c.Context(), h.store.Pool, h.registry); err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}
	return c.JSON(fiber.Map{"data": h.registry.Get(id)})
}

// Delete handles DELETE /api/forms/:id. A form with submissions is only
// deactivated so existing submissions keep their definition; an unused form
// is removed outright.
func (h *FormHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")
	ctx := c.Context()

	row, err := store.QueryRow(ctx, h.store.Pool,
		"SELECT COUNT(*) AS count FROM submissions WHERE form_id = $1", id)
	if err != nil {
		return err
	}
	hasSubmissions, _ := row["count"].(int64)

	if hasSubmissions > 0 {
		affected, err := store.Exec(ctx, h.store.Pool,
			"UPDATE forms SET is_active = false, updated_at = NOW() WHERE id = $1", id)
		if err != nil {
			return err
		}
		if affected == 0 {
			return NotFoundError("form", id)
		}
	} else {
		affected, err := store.Exec(ctx, h.store.Pool, "DELETE FROM forms WHERE id = $1", id)
		if err != nil {
			return err
		}
		if affected == 0 {
			return NotFoundError("form", id)
		}
	}

	if err := schema.Reload(ctx, h.store.Pool, h.registry); err != nil {
		return fmt.Errorf("reload registry: %w", err)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "deactivated": hasSubmissions > 0}})
}

// structuralAppError maps builder errors onto the structural error taxonomy.
func structuralAppError(err error) *AppError {
	switch {
	case errors.Is(err, schema.ErrDuplicateSlug):
		return StructuralError("DUPLICATE_SLUG", err.Error())
	case errors.Is(err, schema.ErrDuplicateFieldName):
		return StructuralError("DUPLICATE_FIELD_NAME", err.Error())
	case errors.Is(err, schema.ErrInvalidFieldType):
		return StructuralError("INVALID_FIELD_TYPE", err.Error())
	case errors.Is(err, schema.ErrOptionNotAllowed):
		return StructuralError("OPTION_NOT_ALLOWED", err.Error())
	case errors.Is(err, schema.ErrRuleCycle):
		return StructuralError("RULE_CYCLE", err.Error())
	default:
		return NewAppError("INVALID_PAYLOAD", 400, err.Error())
	}
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptyRules(rs schema.RuleSet) schema.RuleSet {
	if rs == nil {
		return schema.RuleSet{}
	}
	return rs
}
