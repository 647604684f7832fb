package storefront

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/eringen/storefront/content"
)

// handlePage renders a stored page through the host's Page component.
// Pages without sections are treated as absent.
func (a *App) handlePage(c echo.Context) error {
	handle := c.Param("handle")
	if !content.ValidHandle(handle) {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	doc, err := a.Gateway.Fetch(c.Request().Context(), handle)
	if err != nil {
		return err
	}
	if len(doc.Sections) == 0 {
		return echo.NewHTTPError(http.StatusNotFound)
	}
	resolved := a.Resolver.Resolve(c.Request().Context(), doc)
	if a.Views.Page == nil {
		return c.JSON(http.StatusOK, resolved)
	}
	return Render(c, a.Views.Page(handle, resolved, a.Config.URL))
}
