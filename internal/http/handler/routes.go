package handler

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"transitdocs/internal/analysis"
	"transitdocs/internal/config"
	"transitdocs/internal/gmail"
	"transitdocs/internal/model"
	"transitdocs/internal/service"
	"transitdocs/internal/session"
	"transitdocs/pkg/logger"
)

// maxUploadBytes caps a single uploaded file.
const maxUploadBytes = 64 << 20

// OAuthCompleter marks a Gmail OAuth state as finished. *gmail.Bridge
// satisfies it; the callback route is the only writer.
type OAuthCompleter interface {
	Complete(ctx context.Context, state string) error
}

// RegisterRoutes attaches HTTP routes to the provided Fiber app.
// Keep handlers minimal and free of business logic here: decode, call the
// service, translate the error.
func RegisterRoutes(app *fiber.App, db *sql.DB, authCfg config.AuthConfig, ingest service.Ingestor, docs service.DocumentsService, health analysis.Client, completer OAuthCompleter) {
	// Serve OpenAPI spec and Swagger UI
	app.Get("/openapi.yaml", func(c *fiber.Ctx) error {
		c.Type("yaml")
		return c.SendFile("openapi.yaml")
	})
	app.Get("/docs", func(c *fiber.Ctx) error {
		html := `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8" />
  <meta name="viewport" content="width=device-width, initial-scale=1" />
  <title>API Docs</title>
  <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
</head>
<body>
  <div id="swagger-ui"></div>
  <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js"></script>
  <script>
    window.ui = SwaggerUIBundle({
      url: '/openapi.yaml',
      dom_id: '#swagger-ui',
      presets: [SwaggerUIBundle.presets.apis],
      layout: 'BaseLayout'
    });
  </script>
</body>
</html>`
		return c.Type("html").SendString(html)
	})

	// Health endpoint: checks DB connectivity; the analysis service is probed
	// but only logged, the API stays healthy when analysis is degraded.
	app.Get("/health", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()
		if err := db.PingContext(ctx); err != nil {
			return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "dependency unavailable")
		}
		analysisStatus := "ok"
		if _, err := health.Health(ctx); err != nil {
			logger.Warn(c.UserContext(), "analysis service health check failed", "error", err)
			analysisStatus = "degraded"
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "healthy", "analysis": analysisStatus})
	})

	// Simple liveness probe
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	// OAuth consent redirect target. Unauthenticated: the browser arrives
	// here from the provider, not from our client.
	app.Get("/gmail/callback", func(c *fiber.Ctx) error {
		state := c.Query("state")
		if state == "" {
			return writeError(c, fiber.StatusBadRequest, "STATE_REQUIRED", "state is required")
		}
		if err := completer.Complete(c.UserContext(), state); err != nil {
			return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
		}
		return c.Type("html").SendString("<!DOCTYPE html><html><body><p>Authorization complete. You may close this window.</p></body></html>")
	})

	auth := session.Middleware(authCfg)

	// Upload documents (multipart/form-data, field name: files)
	app.Post("/documents", auth, func(c *fiber.Ctx) error {
		sess, ok := session.FromCtx(c)
		if !ok {
			return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "session required")
		}
		form, err := c.MultipartForm()
		if err != nil {
			return writeError(c, fiber.StatusBadRequest, "FILES_REQUIRED", "multipart form with files is required")
		}
		headers := form.File["files"]
		if len(headers) == 0 {
			return writeError(c, fiber.StatusBadRequest, "FILES_REQUIRED", "at least one file is required")
		}

		files := make([]service.FileInput, 0, len(headers))
		for _, fh := range headers {
			if fh.Size > maxUploadBytes {
				return writeError(c, fiber.StatusRequestEntityTooLarge, "FILE_TOO_LARGE", "file exceeds size limit")
			}
			f, err := fh.Open()
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "FILE_OPEN_ERROR", "cannot open uploaded file")
			}
			content, err := io.ReadAll(io.LimitReader(f, maxUploadBytes))
			f.Close()
			if err != nil {
				return writeError(c, fiber.StatusBadRequest, "FILE_READ_ERROR", "cannot read uploaded file")
			}
			ct := fh.Header.Get("Content-Type")
			if ct == "" {
				ct = "application/octet-stream"
			}
			files = append(files, service.FileInput{Name: fh.Filename, MimeType: ct, Content: content})
		}

		instruction := c.FormValue("instruction")
		res, err := ingest.Ingest(c.UserContext(), sess, files, instruction)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.Status(fiber.StatusCreated).JSON(res)
	})

	// List documents for the session's user or department
	app.Get("/documents", auth, func(c *fiber.Ctx) error {
		sess, ok := session.FromCtx(c)
		if !ok {
			return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "session required")
		}
		scope := model.Scope(c.Query("scope", string(model.ScopeUser)))
		items, err := docs.Load(c.UserContext(), sess, scope)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"data": items, "total": len(items)})
	})

	// Toggle the read flag
	app.Patch("/documents/:id/read", auth, func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := docs.ToggleRead(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	})

	// Re-run analysis on a stored document
	app.Post("/documents/:id/reanalyze", auth, func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		doc, err := docs.Reanalyze(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(doc)
	})

	// Resolve a viewable URL for the document's payload
	app.Get("/documents/:id/view", auth, func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		url, err := docs.ViewURL(c.UserContext(), id)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{"url": url})
	})

	// Delete document by ID
	app.Delete("/documents/:id", auth, func(c *fiber.Ctx) error {
		id := c.Params("id")
		if _, err := uuid.Parse(id); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "invalid id format")
		}
		if err := docs.Delete(c.UserContext(), id); err != nil {
			return writeServiceError(c, err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	// Start a Gmail import: fetch the consent URL and state for this user
	app.Get("/gmail/auth-url", auth, func(c *fiber.Ctx) error {
		sess, ok := session.FromCtx(c)
		if !ok {
			return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "session required")
		}
		authURL, err := ingest.GmailAuthURL(c.UserContext(), sess)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(fiber.Map{
			"auth_url": authURL.URL,
			"state":    authURL.State,
			"popup":    fiber.Map{"width": gmail.PopupWidth, "height": gmail.PopupHeight},
		})
	})

	// Long-poll until the consent completes (bounded server-side), then import
	app.Post("/gmail/import", auth, func(c *fiber.Ctx) error {
		sess, ok := session.FromCtx(c)
		if !ok {
			return writeError(c, fiber.StatusUnauthorized, "UNAUTHORIZED", "session required")
		}
		var body struct {
			State string `json:"state"`
		}
		if err := c.BodyParser(&body); err != nil {
			return writeError(c, fiber.StatusBadRequest, "INVALID_BODY", "invalid request body")
		}
		res, err := ingest.ImportFromGmail(c.UserContext(), sess, body.State)
		if err != nil {
			return writeServiceError(c, err)
		}
		return c.JSON(res)
	})
}

// writeServiceError translates service-layer errors into the standard
// envelope without leaking internals.
func writeServiceError(c *fiber.Ctx, err error) error {
	var storageErr *service.StorageError
	var persistErr *service.PersistenceError
	var analysisErr *analysis.AnalysisError
	var authURLErr *analysis.AuthURLError
	var importErr *analysis.ImportError

	switch {
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
	case errors.Is(err, service.ErrIDRequired),
		errors.Is(err, service.ErrStateRequired),
		errors.Is(err, service.ErrNoFiles),
		errors.Is(err, service.ErrInvalidScope):
		return writeError(c, fiber.StatusBadRequest, "BAD_REQUEST", err.Error())
	case errors.Is(err, context.Canceled):
		return writeError(c, fiber.StatusBadRequest, "REQUEST_CANCELLED", "request cancelled")
	case errors.As(err, &storageErr):
		if storageErr.NotFound {
			return writeError(c, fiber.StatusNotFound, "STORAGE_NOT_FOUND", storageErr.Message)
		}
		return writeError(c, fiber.StatusBadGateway, "STORAGE_ERROR", "storage operation failed")
	case errors.As(err, &analysisErr):
		return writeError(c, fiber.StatusBadGateway, "ANALYSIS_ERROR", "analysis service error")
	case errors.As(err, &authURLErr), errors.As(err, &importErr):
		return writeError(c, fiber.StatusBadGateway, "GMAIL_ERROR", "gmail service error")
	case errors.As(err, &persistErr):
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}
