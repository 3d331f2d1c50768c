package auth

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"onboard-backend/internal/engine"
	"onboard-backend/internal/store"
)

// Handler handles authentication and user-management endpoints.
type Handler struct {
	store     *store.Store
	jwtSecret string
}

func NewHandler(s *store.Store, jwtSecret string) *Handler {
	return &Handler{store: s, jwtSecret: jwtSecret}
}

// Signup handles POST /api/auth/signup.
func (h *Handler) Signup(c *fiber.Ctx) error {
	var body struct {
		FirstName       string `json:"first_name"`
		LastName        string `json:"last_name"`
		Email           string `json:"email"`
		Username        string `json:"username"`
		Password        string `json:"password"`
		ConfirmPassword string `json:"confirm_password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}

	var details []engine.ErrorDetail
	if body.Email == "" {
		details = append(details, engine.ErrorDetail{Field: "email", Rule: "required", Message: "required"})
	}
	if body.Username == "" {
		details = append(details, engine.ErrorDetail{Field: "username", Rule: "required", Message: "required"})
	}
	if err := ValidatePassword(body.Password); err != nil {
		details = append(details, engine.ErrorDetail{Field: "password", Rule: "policy", Message: err.Error()})
	}
	if body.Password != body.ConfirmPassword {
		details = append(details, engine.ErrorDetail{Field: "confirm_password", Rule: "match", Message: "Passwords do not match"})
	}
	if len(details) > 0 {
		return engine.ValidationFailed(details)
	}

	hash, err := HashPassword(body.Password)
	if err != nil {
		return engine.NewAppError("INTERNAL_ERROR", 500, "Failed to hash password")
	}

	row, err := store.QueryRow(c.Context(), h.store.Pool,
		`INSERT INTO _users (email, username, first_name, last_name, password_hash)
		 VALUES ($1, $2, $3, $4, $5)
		 RETURNING id, email, username, first_name, last_name, is_staff, is_superuser`,
		strings.ToLower(body.Email), body.Username, body.FirstName, body.LastName, hash)
	if err != nil {
		if store.IsUniqueViolation(err) {
			return engine.ConflictError("Email or username already exists")
		}
		return err
	}

	return c.Status(201).JSON(fiber.Map{"data": row})
}

// Login handles POST /api/auth/login.
func (h *Handler) Login(c *fiber.Ctx) error {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.Email == "" || body.Password == "" {
		return engine.UnauthorizedError("Email and password are required")
	}

	ctx := c.Context()

	user, err := h.findUserByEmail(ctx, strings.ToLower(body.Email))
	if err != nil {
		return engine.UnauthorizedError("Invalid email or password")
	}

	active, _ := user["active"].(bool)
	if !active {
		return engine.UnauthorizedError("Account is disabled")
	}

	passwordHash, _ := user["password_hash"].(string)
	if !CheckPassword(body.Password, passwordHash) {
		return engine.UnauthorizedError("Invalid email or password")
	}

	pair, err := h.generateTokenPair(ctx, user)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"data": fiber.Map{
			"user": fiber.Map{
				"id":       user["id"],
				"email":    user["email"],
				"username": user["username"],
			},
			"access_token":  pair.AccessToken,
			"refresh_token": pair.RefreshToken,
		},
	})
}

// Refresh handles POST /api/auth/refresh.
func (h *Handler) Refresh(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	ctx := c.Context()

	row, err := store.QueryRow(ctx, h.store.Pool,
		`SELECT rt.id, rt.expires_at, u.id AS user_id, u.email, u.is_staff, u.is_superuser, u.active
		 FROM _refresh_tokens rt
		 JOIN _users u ON u.id = rt.user_id
		 WHERE rt.token = $1`, body.RefreshToken)
	if err != nil {
		return engine.UnauthorizedError("Invalid refresh token")
	}

	expiresAt, _ := row["expires_at"].(time.Time)
	if time.Now().After(expiresAt) {
		_, _ = store.Exec(ctx, h.store.Pool,
			"DELETE FROM _refresh_tokens WHERE token = $1", body.RefreshToken)
		return engine.UnauthorizedError("Refresh token expired")
	}

	active, _ := row["active"].(bool)
	if !active {
		return engine.UnauthorizedError("Account is disabled")
	}

	// Rotation: the used token is gone either way.
	tokenID, _ := row["id"].(string)
	_, _ = store.Exec(ctx, h.store.Pool,
		"DELETE FROM _refresh_tokens WHERE id = $1", tokenID)

	user := map[string]any{
		"id":           row["user_id"],
		"email":        row["email"],
		"is_staff":     row["is_staff"],
		"is_superuser": row["is_superuser"],
	}
	pair, err := h.generateTokenPair(ctx, user)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{"data": pair})
}

// Logout handles POST /api/auth/logout.
func (h *Handler) Logout(c *fiber.Ctx) error {
	var body struct {
		RefreshToken string `json:"refresh_token"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.RefreshToken == "" {
		return engine.UnauthorizedError("Refresh token is required")
	}

	_, _ = store.Exec(c.Context(), h.store.Pool,
		"DELETE FROM _refresh_tokens WHERE token = $1", body.RefreshToken)

	return c.JSON(fiber.Map{"message": "Logged out"})
}

// Me handles GET /api/me.
func (h *Handler) Me(c *fiber.Ctx) error {
	user := GetUser(c)
	if user == nil {
		return engine.UnauthorizedError("Missing auth token")
	}

	row, err := store.QueryRow(c.Context(), h.store.Pool,
		`SELECT id, email, username, first_name, last_name, is_staff, is_superuser
		 FROM _users WHERE id = $1`, user.ID)
	if err != nil {
		return engine.NotFoundError("user", user.ID)
	}

	return c.JSON(fiber.Map{"data": row})
}

// ListUsers handles GET /api/users.
func (h *Handler) ListUsers(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.Pool,
		`SELECT id, email, username, first_name, last_name, is_staff, is_superuser, active
		 FROM _users ORDER BY created_at`)
	if err != nil {
		return err
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

// CountUsers handles GET /api/users/count.
func (h *Handler) CountUsers(c *fiber.Ctx) error {
	row, err := store.QueryRow(c.Context(), h.store.Pool, "SELECT COUNT(*) AS count FROM _users")
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"count": row["count"]})
}

// DeleteUser handles DELETE /api/users/:id. Admins only; self-deletion is
// rejected.
func (h *Handler) DeleteUser(c *fiber.Ctx) error {
	id := c.Params("id")
	user := GetUser(c)
	if user != nil && user.ID == id {
		return engine.NewAppError("INVALID_REQUEST", 400, "You cannot delete yourself")
	}

	affected, err := store.Exec(c.Context(), h.store.Pool,
		"DELETE FROM _users WHERE id = $1", id)
	if err != nil {
		return err
	}
	if affected == 0 {
		return engine.NotFoundError("user", id)
	}
	return c.JSON(fiber.Map{"data": fiber.Map{"id": id}})
}

// AssignRole handles POST /api/roles. The role maps onto the directory
// flags: admin -> staff+superuser, staff -> staff only, anything else ->
// plain client.
func (h *Handler) AssignRole(c *fiber.Ctx) error {
	var body struct {
		UserID string `json:"user_id"`
		Role   string `json:"role"`
	}
	if err := c.BodyParser(&body); err != nil {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "Invalid request body")
	}
	if body.UserID == "" || body.Role == "" {
		return engine.NewAppError("INVALID_PAYLOAD", 400, "user_id and role are required")
	}

	var staff, superuser bool
	switch strings.ToLower(body.Role) {
	case "admin":
		staff, superuser = true, true
	case "staff":
		staff, superuser = true, false
	default:
		staff, superuser = false, false
	}

	affected, err := store.Exec(c.Context(), h.store.Pool,
		`UPDATE _users SET is_staff = $1, is_superuser = $2, updated_at = NOW() WHERE id = $3`,
		staff, superuser, body.UserID)
	if err != nil {
		return err
	}
	if affected == 0 {
		return engine.NotFoundError("user", body.UserID)
	}

	return c.Status(201).JSON(fiber.Map{
		"data": fiber.Map{
			"user_id":      body.UserID,
			"role":         strings.ToLower(body.Role),
			"is_staff":     staff,
			"is_superuser": superuser,
		},
	})
}

// RegisterRoutes registers auth routes. Public auth endpoints skip the
// middleware; user management requires it, and admin endpoints stack
// RequireAdmin on top.
func RegisterRoutes(app *fiber.App, h *Handler, authMW, adminMW fiber.Handler) {
	grp := app.Group("/api/auth")
	grp.Post("/signup", h.Signup)
	grp.Post("/login", h.Login)
	grp.Post("/refresh", h.Refresh)
	grp.Post("/logout", h.Logout)

	api := app.Group("/api", authMW)
	api.Get("/me", h.Me)
	api.Get("/users/count", h.CountUsers)
	api.Get("/users", h.ListUsers)
	api.Delete("/users/:id", adminMW, h.DeleteUser)
	api.Post("/roles", adminMW, h.AssignRole)
}

// --- helpers ---

func (h *Handler) findUserByEmail(ctx context.Context, email string) (map[string]any, error) {
	return store.QueryRow(ctx, h.store.Pool,
		`SELECT id, email, username, password_hash, is_staff, is_superuser, active
		 FROM _users WHERE email = $1`, email)
}

func (h *Handler) generateTokenPair(ctx context.Context, user map[string]any) (*TokenPair, error) {
	userID, _ := user["id"].(string)
	email, _ := user["email"].(string)
	staff, _ := user["is_staff"].(bool)
	superuser, _ := user["is_superuser"].(bool)

	accessToken, err := GenerateAccessToken(userID, email, staff, superuser, h.jwtSecret)
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to generate access token")
	}

	refreshToken := GenerateRefreshToken()
	expiresAt := time.Now().Add(RefreshTokenTTL)

	_, err = store.Exec(ctx, h.store.Pool,
		`INSERT INTO _refresh_tokens (user_id, token, expires_at) VALUES ($1, $2, $3)`,
		userID, refreshToken, expiresAt)
	if err != nil {
		return nil, engine.NewAppError("INTERNAL_ERROR", 500, "Failed to store refresh token")
	}

	return &TokenPair{AccessToken: accessToken, RefreshToken: refreshToken}, nil
}
