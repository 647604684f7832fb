package storefront

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/eringen/storefront/content"
)

const maxContentBody = 2 << 20

func apiError(c echo.Context, code int, msg string) error {
	return c.JSON(code, ErrorResponse{Error: msg})
}

func handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// handleGetContent returns the resolved document for ?handle=. An unknown
// handle yields an empty document, not a 404.
func (a *App) handleGetContent(c echo.Context) error {
	raw := strings.TrimSpace(c.QueryParam("handle"))
	if raw == "" {
		return apiError(c, http.StatusBadRequest, "handle is required")
	}
	handle := NormalizeHandle(raw)
	doc, err := a.Gateway.Fetch(c.Request().Context(), handle)
	if err != nil {
		if errors.Is(err, content.ErrInvalidInput) {
			return apiError(c, http.StatusBadRequest, err.Error())
		}
		a.Logger.Error("content fetch failed", "handle", handle, "error", err)
		return apiError(c, http.StatusInternalServerError, "failed to load content")
	}
	resolved := a.Resolver.Resolve(c.Request().Context(), doc)
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, resolved)
}

func handleContentTemplate(c echo.Context) error {
	c.Response().Header().Set("Cache-Control", "no-store")
	return c.JSON(http.StatusOK, content.DefaultTemplate(strings.TrimSpace(c.QueryParam("slug"))))
}

func (a *App) handleSaveContent(c echo.Context) error {
	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxContentBody+1))
	if err != nil {
		return apiError(c, http.StatusBadRequest, "failed to read body")
	}
	if len(body) > maxContentBody {
		return apiError(c, http.StatusRequestEntityTooLarge, "body too large")
	}
	if err := a.validator.Validate(body); err != nil {
		return apiError(c, http.StatusBadRequest, err.Error())
	}
	var req SaveContentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return apiError(c, http.StatusBadRequest, "invalid content: "+err.Error())
	}
	handle := NormalizeHandle(req.Handle)

	rec, err := a.Gateway.Upsert(c.Request().Context(), handle, req.Data)
	if err != nil {
		if errors.Is(err, content.ErrInvalidInput) {
			return apiError(c, http.StatusBadRequest, err.Error())
		}
		a.Logger.Error("content save failed", "handle", handle, "error", err)
		a.Diagnostics.Record(Diagnostic{
			Time:      time.Now(),
			Operation: "save",
			Handle:    handle,
			Message:   err.Error(),
		})
		return apiError(c, http.StatusInternalServerError, "failed to save content")
	}
	return c.JSON(http.StatusOK, MutationResponse{Success: true, ID: rec.ID, Handle: handle})
}

// handleDeleteContent deletes by ?id= when given, otherwise by ?handle=.
// Handles are normalised the same way POST /content normalises them.
func (a *App) handleDeleteContent(c echo.Context) error {
	raw := strings.TrimSpace(c.QueryParam("handle"))
	id := strings.TrimSpace(c.QueryParam("id"))
	if raw == "" && id == "" {
		return apiError(c, http.StatusBadRequest, "handle or id is required")
	}
	handle := ""
	if raw != "" {
		handle = NormalizeHandle(raw)
		if handle == "" && id == "" {
			return apiError(c, http.StatusBadRequest, "invalid handle")
		}
	}
	err := a.Gateway.Delete(c.Request().Context(), handle, id)
	switch {
	case err == nil:
		return c.JSON(http.StatusOK, MutationResponse{Success: true, ID: id, Handle: handle})
	case errors.Is(err, content.ErrNotFound):
		return apiError(c, http.StatusNotFound, "content not found")
	case errors.Is(err, content.ErrInvalidInput):
		return apiError(c, http.StatusBadRequest, err.Error())
	}
	a.Logger.Error("content delete failed", "handle", handle, "id", id, "error", err)
	return apiError(c, http.StatusInternalServerError, "failed to delete content")
}

// isAPIPath reports whether errors on path should be rendered as JSON.
func isAPIPath(path string) bool {
	return path == "/content" || strings.HasPrefix(path, "/content/") ||
		path == "/assets" || path == "/health" || path == "/metrics" ||
		strings.HasPrefix(path, "/admin/")
}

func (a *App) httpErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	code := http.StatusInternalServerError
	msg := http.StatusText(code)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
		if m, ok := he.Message.(string); ok {
			msg = m
		} else {
			msg = http.StatusText(code)
		}
	}
	if code >= 500 {
		a.Logger.Error("server error", "method", c.Request().Method, "path", c.Request().URL.Path, "error", err)
	}

	if isAPIPath(c.Request().URL.Path) {
		_ = apiError(c, code, msg)
		return
	}
	switch {
	case code == http.StatusNotFound && a.Views.NotFound != nil:
		_ = RenderStatus(c, code, a.Views.NotFound())
	case code >= 500 && a.Views.ServerError != nil:
		_ = RenderStatus(c, code, a.Views.ServerError())
	default:
		a.Echo.DefaultHTTPErrorHandler(err, c)
	}
}
