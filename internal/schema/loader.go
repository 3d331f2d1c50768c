package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// LoadAll reads every form with its sections, fields and options from the
// database and populates the registry.
func LoadAll(ctx context.Context, pool *pgxpool.Pool, reg *Registry) error {
	forms, err := loadForms(ctx, pool)
	if err != nil {
		return fmt.Errorf("load forms: %w", err)
	}

	if err := loadSections(ctx, pool, forms); err != nil {
		return fmt.Errorf("load sections: %w", err)
	}
	if err := loadFields(ctx, pool, forms); err != nil {
		return fmt.Errorf("load fields: %w", err)
	}

	all := make([]*Form, 0, len(forms))
	for _, f := range forms {
		all = append(all, f)
	}
	reg.Load(all)

	log.Printf("Loaded %d forms into registry", len(all))
	return nil
}

// Reload is an alias for LoadAll, called after authoring mutations.
func Reload(ctx context.Context, pool *pgxpool.Pool, reg *Registry) error {
	return LoadAll(ctx, pool, reg)
}

func loadForms(ctx context.Context, pool *pgxpool.Pool) (map[string]*Form, error) {
	rows, err := pool.Query(ctx,
		`SELECT id, slug, name, description, schema, is_active, created_by, created_at, updated_at
		 FROM forms ORDER BY created_at`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	forms := make(map[string]*Form)
	for rows.Next() {
		var f Form
		var schemaJSON []byte
		var createdBy *string
		var createdAt, updatedAt *time.Time
		if err := rows.Scan(&f.ID, &f.Slug, &f.Name, &f.Description, &schemaJSON,
			&f.Active, &createdBy, &createdAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan form row: %w", err)
		}
		if len(schemaJSON) > 0 {
			if err := json.Unmarshal(schemaJSON, &f.Schema); err != nil {
				log.Printf("WARN: form %s has invalid schema blob: %v", f.Slug, err)
			}
		}
		if createdBy != nil {
			f.CreatedBy = *createdBy
		}
		if createdAt != nil {
			f.CreatedAt = *createdAt
		}
		if updatedAt != nil {
			f.UpdatedAt = *updatedAt
		}
		forms[f.ID] = &f
	}
	return forms, rows.Err()
}

func loadSections(ctx context.Context, pool *pgxpool.Pool, forms map[string]*Form) error {
	rows, err := pool.Query(ctx,
		`SELECT id, form_id, title, description, position
		 FROM form_sections ORDER BY form_id, position, created_at`)
	if err != nil {
		return err
	}
	defer rows.Close()

	seq := 0
	for rows.Next() {
		var s Section
		var formID string
		if err := rows.Scan(&s.ID, &formID, &s.Title, &s.Description, &s.Order); err != nil {
			return fmt.Errorf("scan section row: %w", err)
		}
		form := forms[formID]
		if form == nil {
			continue
		}
		seq++
		s.seq = seq
		form.Sections = append(form.Sections, &s)
	}
	return rows.Err()
}

func loadFields(ctx context.Context, pool *pgxpool.Pool, forms map[string]*Form) error {
	rows, err := pool.Query(ctx,
		`SELECT id, form_id, section_id, name, label, field_type, placeholder, help_text,
		        position, required, multiple, config, rules
		 FROM form_fields ORDER BY form_id, position, created_at`)
	if err != nil {
		return err
	}
	defer rows.Close()

	fieldsByID := make(map[string]*Field)
	seq := 0
	for rows.Next() {
		var f Field
		var formID string
		var sectionID *string
		var configJSON, rulesJSON []byte
		if err := rows.Scan(&f.ID, &formID, &sectionID, &f.Name, &f.Label, &f.Type,
			&f.Placeholder, &f.HelpText, &f.Order, &f.Required, &f.Multiple,
			&configJSON, &rulesJSON); err != nil {
			return fmt.Errorf("scan field row: %w", err)
		}

		form := forms[formID]
		if form == nil {
			continue
		}
		if len(configJSON) > 0 {
			if err := json.Unmarshal(configJSON, &f.Config); err != nil {
				log.Printf("WARN: field %s has invalid config: %v", f.Name, err)
			}
		}
		rules, err := ParseRuleSet(rulesJSON)
		if err != nil {
			log.Printf("WARN: field %s has invalid ruleset, ignoring: %v", f.Name, err)
		}
		f.Rules = rules

		seq++
		f.seq = seq
		fieldsByID[f.ID] = &f

		if sectionID != nil {
			f.SectionID = *sectionID
			if section := findSection(form, *sectionID); section != nil {
				section.Fields = append(section.Fields, &f)
				continue
			}
		}
		form.Fields = append(form.Fields, &f)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	return loadOptions(ctx, pool, fieldsByID)
}

func loadOptions(ctx context.Context, pool *pgxpool.Pool, fields map[string]*Field) error {
	rows, err := pool.Query(ctx,
		`SELECT id, field_id, value, label, position
		 FROM field_options ORDER BY field_id, position, created_at`)
	if err != nil {
		return err
	}
	defer rows.Close()

	seq := 0
	for rows.Next() {
		var o Option
		var fieldID string
		if err := rows.Scan(&o.ID, &fieldID, &o.Value, &o.Label, &o.Order); err != nil {
			return fmt.Errorf("scan option row: %w", err)
		}
		field := fields[fieldID]
		if field == nil {
			continue
		}
		seq++
		o.seq = seq
		field.Options = append(field.Options, &o)
	}
	return rows.Err()
}

func findSection(form *Form, id string) *Section {
	for _, s := range form.Sections {
		if s.ID == id {
			return s
		}
	}
	return nil
}
