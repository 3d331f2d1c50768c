package engine

import "github.com/gofiber/fiber/v2"

// RegisterRoutes wires the form, submission, assignment and file endpoints.
// Every route requires authentication; authoring and assignment routes
// additionally require an administrator.
func RegisterRoutes(app *fiber.App, forms *FormHandler, submissions *SubmissionHandler,
	assignments *AssignmentHandler, files *FileHandler, authMW, adminMW fiber.Handler) {

	api := app.Group("/api", authMW)

	api.Get("/forms/available", forms.Available)
	api.Get("/forms/count", forms.Count)
	api.Get("/forms", forms.List)
	api.Post("/forms", adminMW, forms.Create)
	api.Get("/forms/:id", forms.Get)
	api.Put("/forms/:id", adminMW, forms.Update)
	api.Delete("/forms/:id", adminMW, forms.Delete)
	api.Post("/forms/:id/submit", submissions.Submit)

	api.Get("/submissions/count", submissions.Count)
	api.Get("/submissions", submissions.List)
	api.Get("/submissions/:id", submissions.Get)
	api.Patch("/submissions/:id/status", submissions.UpdateStatus)

	api.Get("/assignments", adminMW, assignments.List)
	api.Post("/assignments", adminMW, assignments.Create)
	api.Post("/assignments/:id/resolve", adminMW, assignments.Resolve)

	api.Get("/files/:id", files.Serve)
	api.Get("/files", adminMW, files.List)
	api.Delete("/files/:id", adminMW, files.Delete)
}
