package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"mime/multipart"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"onboard-backend/internal/assign"
	"onboard-backend/internal/notify"
	"onboard-backend/internal/schema"
	"onboard-backend/internal/storage"
	"onboard-backend/internal/store"
)

// Submission statuses. Closed set: anything else is rejected.
const (
	StatusSubmitted = "submitted"
	StatusReviewed  = "reviewed"
	StatusRejected  = "rejected"
)

func validStatus(s string) bool {
	return s == StatusSubmitted || s == StatusReviewed || s == StatusRejected
}

// SubmissionHandler serves submission intake and review.
type SubmissionHandler struct {
	store    *store.Store
	registry *schema.Registry
	storage  storage.FileStorage
	notifier *notify.Notifier
	maxSize  int64
}

func NewSubmissionHandler(s *store.Store, reg *schema.Registry, fs storage.FileStorage, n *notify.Notifier, maxSize int64) *SubmissionHandler {
	return &SubmissionHandler{store: s, registry: reg, storage: fs, notifier: n, maxSize: maxSize}
}

// Submit handles POST /api/forms/:id/submit. Accepts a plain JSON payload, or
// multipart form data with a "data" JSON part and an optional "file" part.
// The payload is validated against the live definition; all field violations
// come back in one response. The attachment and the submission row commit
// together or not at all.
func (h *SubmissionHandler) Submit(c *fiber.Ctx) error {
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

	payload, fileHeader, perr := h.parseSubmission(c)
	if perr != nil {
		return perr
	}

	result, appErr := Validate(form, payload)
	if appErr != nil {
		return appErr
	}
	if !result.OK() {
		return ValidationFailed(fieldErrorDetails(result.Errors))
	}

	ctx := c.Context()

	// Store the attachment before opening the transaction; the file is
	// removed again if the database insert fails.
	var attachmentID *string
	var storagePath string
	if fileHeader != nil {
		if fileHeader.Size > h.maxSize {
			msg := fmt.Sprintf("File too large: %d bytes (max %d)", fileHeader.Size, h.maxSize)
			return NewAppError("FILE_TOO_LARGE", 413, msg)
		}
		src, err := fileHeader.Open()
		if err != nil {
			return fmt.Errorf("open uploaded file: %w", err)
		}
		defer src.Close()

		fileID := uuid.New().String()
		storagePath, err = h.storage.Save(ctx, fileID, fileHeader.Filename, src)
		if err != nil {
			return fmt.Errorf("save file: %w", err)
		}
		attachmentID = &fileID
	}

	submissionID, err := h.insertSubmission(ctx, form.ID, user, result.Values, attachmentID, fileHeader, storagePath)
	if err != nil {
		if storagePath != "" {
			_ = h.storage.Delete(ctx, storagePath)
		}
		return fmt.Errorf("insert submission: %w", err)
	}

	h.notifyReviewers(ctx, form, user)

	return c.Status(201).JSON(fiber.Map{
		"data": fiber.Map{
			"id":            submissionID,
			"form_id":       form.ID,
			"status":        StatusSubmitted,
			"attachment_id": attachmentID,
		},
	})
}

// parseSubmission extracts the payload and optional attachment from either a
// JSON or a multipart request.
func (h *SubmissionHandler) parseSubmission(c *fiber.Ctx) (map[string]any, *multipart.FileHeader, *AppError) {
	contentType := c.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		dataPart := c.FormValue("data")
		if dataPart == "" {
			return nil, nil, NewAppError("INVALID_PAYLOAD", 400, `Missing "data" part in form data`)
		}
		var payload map[string]any
		if err := json.Unmarshal([]byte(dataPart), &payload); err != nil {
			return nil, nil, NewAppError("INVALID_PAYLOAD", 400, `The "data" part is not valid JSON`)
		}
		file, err := c.FormFile("file")
		if err != nil {
			file = nil // attachment is optional
		}
		if file == nil {
			return payload, nil, nil
		}
		return payload, file, nil
	}

	var payload map[string]any
	if err := c.BodyParser(&payload); err != nil {
		return nil, nil, NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	return payload, nil, nil
}

func (h *SubmissionHandler) insertSubmission(ctx context.Context, formID string, user *assign.Identity,
	values map[string]any, attachmentID *string, file *multipart.FileHeader, storagePath string) (string, error) {

	dataJSON, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("marshal submission data: %w", err)
	}

	tx, err := h.store.BeginTx(ctx)
	if err != nil {
		return "", err
	}
	defer tx.Rollback(ctx)

	if attachmentID != nil {
		mimeType := file.Header.Get("Content-Type")
		if mimeType == "" {
			mimeType = "application/octet-stream"
		}
		var uploadedBy *string
		if user != nil {
			uploadedBy = &user.ID
		}
		_, err = store.Exec(ctx, tx,
			`INSERT INTO _files (id, filename, storage_path, mime_type, size, uploaded_by)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			*attachmentID, file.Filename, storagePath, mimeType, file.Size, uploadedBy)
		if err != nil {
			return "", err
		}
	}

	var submittedBy *string
	if user != nil {
		submittedBy = &user.ID
	}
	row, err := store.QueryRow(ctx, tx,
		`INSERT INTO submissions (form_id, submitted_by, data, attachment_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id`,
		formID, submittedBy, dataJSON, attachmentID)
	if err != nil {
		return "", err
	}

	if err := tx.Commit(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("%v", row["id"]), nil
}

// notifyReviewers mails the privileged administrators about the new
// submission. Lookup failures only cost the notification.
func (h *SubmissionHandler) notifyReviewers(ctx context.Context, form *schema.Form, user *assign.Identity) {
	rows, err := store.QueryRows(ctx, h.store.Pool,
		`SELECT id, email FROM _users
		 WHERE is_staff = true AND is_superuser = true AND active = true`)
	if err != nil {
		return
	}
	reviewers := make([]assign.Identity, 0, len(rows))
	for _, r := range rows {
		id, _ := r["id"].(string)
		email, _ := r["email"].(string)
		reviewers = append(reviewers, assign.Identity{ID: id, Email: email})
	}

	submitter := "An anonymous user"
	if user != nil && user.Email != "" {
		submitter = user.Email
	}
	h.notifier.SubmissionCreated(ctx, form.Name, submitter, reviewers)
}

// List handles GET /api/submissions. Privileged callers see everything;
// everyone else sees only their own. Newest first.
func (h *SubmissionHandler) List(c *fiber.Ctx) error {
	user := getUser(c)
	if user == nil {
		return UnauthorizedError("Missing auth token")
	}

	sql := `SELECT s.id, s.form_id, f.name AS form_name, f.slug AS form_slug,
	               s.submitted_by, s.data, s.attachment_id, s.status, s.created_at, s.updated_at
	        FROM submissions s
	        JOIN forms f ON f.id = s.form_id`
	var args []any
	if !user.Privileged() {
		sql += " WHERE s.submitted_by = $1"
		args = append(args, user.ID)
	}
	sql += " ORDER BY s.created_at DESC"

	rows, err := store.QueryRows(c.Context(), h.store.Pool, sql, args...)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

// Count handles GET /api/submissions/count, scoped like List.
func (h *SubmissionHandler) Count(c *fiber.Ctx) error {
	user := getUser(c)
	if user == nil {
		return UnauthorizedError("Missing auth token")
	}

	sql := "SELECT COUNT(*) AS count FROM submissions"
	var args []any
	if !user.Privileged() {
		sql += " WHERE submitted_by = $1"
		args = append(args, user.ID)
	}

	row, err := store.QueryRow(c.Context(), h.store.Pool, sql, args...)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"count": row["count"]})
}

// Get handles GET /api/submissions/:id. Owners and privileged callers only.
func (h *SubmissionHandler) Get(c *fiber.Ctx) error {
	id := c.Params("id")
	row, err := store.QueryRow(c.Context(), h.store.Pool,
		`SELECT s.id, s.form_id, f.name AS form_name, s.submitted_by, s.data,
		        s.attachment_id, s.status, s.created_at, s.updated_at
		 FROM submissions s
		 JOIN forms f ON f.id = s.form_id
		 WHERE s.id = $1`, id)
	if err != nil {
		return NotFoundError("submission", id)
	}

	user := getUser(c)
	if user != nil && !user.Privileged() {
		owner, _ := row["submitted_by"].(string)
		if owner != user.ID {
			return ForbiddenError("You cannot view this submission")
		}
	}
	return c.JSON(fiber.Map{"data": row})
}

// UpdateStatus handles PATCH /api/submissions/:id/status. Staff only; the
// status value comes from the closed set.
func (h *SubmissionHandler) UpdateStatus(c *fiber.Ctx) error {
	user := getUser(c)
	if user == nil || !user.Staff {
		return ForbiddenError("Only staff can review submissions")
	}

	id := c.Params("id")
	var body struct {
		Status string `json:"status"`
	}
	if err := c.BodyParser(&body); err != nil {
		return NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if !validStatus(body.Status) {
		return NewAppError("INVALID_STATUS", 400,
			fmt.Sprintf("Status must be one of: %s, %s, %s", StatusSubmitted, StatusReviewed, StatusRejected))
	}

	affected, err := store.Exec(c.Context(), h.store.Pool,
		"UPDATE submissions SET status = $1, updated_at = NOW() WHERE id = $2",
		body.Status, id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return NotFoundError("submission", id)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id, "status": body.Status}})
}

func (h *SubmissionHandler) isAssigned(ctx context.Context, formID, userID string) (bool, error) {
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

// fieldErrorDetails flattens validation errors into the response detail list,
// ordered by field name so responses are stable.
func fieldErrorDetails(errs FieldErrors) []ErrorDetail {
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Strings(names)

	var details []ErrorDetail
	for _, name := range names {
		for _, msg := range errs[name] {
			details = append(details, ErrorDetail{Field: name, Message: msg})
		}
	}
	return details
}
