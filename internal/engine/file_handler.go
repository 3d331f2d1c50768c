package engine

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"onboard-backend/internal/storage"
	"onboard-backend/internal/store"
)

// FileHandler serves submission attachments.
type FileHandler struct {
	store   *store.Store
	storage storage.FileStorage
}

func NewFileHandler(s *store.Store, fs storage.FileStorage) *FileHandler {
	return &FileHandler{store: s, storage: fs}
}

// Serve handles GET /api/files/:id and streams the stored file inline.
func (h *FileHandler) Serve(c *fiber.Ctx) error {
	id := c.Params("id")

	row, err := store.QueryRow(c.Context(), h.store.Pool,
		"SELECT filename, storage_path, mime_type, size FROM _files WHERE id = $1", id)
	if err != nil {
		return NotFoundError("file", id)
	}

	storagePath := fmt.Sprintf("%v", row["storage_path"])
	mimeType := fmt.Sprintf("%v", row["mime_type"])
	filename := fmt.Sprintf("%v", row["filename"])

	reader, err := h.storage.Open(c.Context(), storagePath)
	if err != nil {
		return fmt.Errorf("open stored file: %w", err)
	}
	defer reader.Close()

	c.Set("Content-Type", mimeType)
	c.Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, filename))

	return c.SendStream(reader)
}

// List handles GET /api/files for administrators.
func (h *FileHandler) List(c *fiber.Ctx) error {
	rows, err := store.QueryRows(c.Context(), h.store.Pool,
		"SELECT id, filename, mime_type, size, uploaded_by, created_at FROM _files ORDER BY created_at DESC")
	if err != nil {
		return fmt.Errorf("list files: %w", err)
	}
	if rows == nil {
		rows = []map[string]any{}
	}
	return c.JSON(fiber.Map{"data": rows})
}

// Delete handles DELETE /api/files/:id: removes the stored file and its row.
func (h *FileHandler) Delete(c *fiber.Ctx) error {
	id := c.Params("id")

	row, err := store.QueryRow(c.Context(), h.store.Pool,
		"SELECT storage_path FROM _files WHERE id = $1", id)
	if err != nil {
		return NotFoundError("file", id)
	}

	storagePath := fmt.Sprintf("%v", row["storage_path"])
	if err := h.storage.Delete(c.Context(), storagePath); err != nil {
		return fmt.Errorf("delete stored file: %w", err)
	}

	if _, err := store.Exec(c.Context(), h.store.Pool, "DELETE FROM _files WHERE id = $1", id); err != nil {
		return fmt.Errorf("delete file row: %w", err)
	}

	return c.JSON(fiber.Map{"data": fiber.Map{"deleted": true}})
}
