package storefront

import (
	"crypto/subtle"
	"net/http"

	"github.com/labstack/echo/v4"
)

func (a *App) handleAdminLogin(c echo.Context) error {
	ip := c.RealIP()
	if !a.loginLimiter.Check(ip) {
		return apiError(c, http.StatusTooManyRequests, "too many login attempts, try again later")
	}
	pass := c.FormValue("password")
	if a.Config.AdminPassword == "" || subtle.ConstantTimeCompare([]byte(pass), []byte(a.Config.AdminPassword)) != 1 {
		a.loginLimiter.Record(ip)
		a.Logger.Warn("admin login failed", "ip", ip)
		return apiError(c, http.StatusUnauthorized, "invalid password")
	}
	if err := setAdminSession(c); err != nil {
		return err
	}
	a.loginLimiter.Reset(ip)
	return c.JSON(http.StatusOK, MutationResponse{Success: true})
}

func handleAdminLogout(c echo.Context) error {
	if err := clearAdminSession(c); err != nil {
		return err
	}
	return c.JSON(http.StatusOK, MutationResponse{Success: true})
}

// requireAuthorized guards write routes with the App's authorizer.
func (a *App) requireAuthorized(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		if a.authorize == nil || !a.authorize(c) {
			return apiError(c, http.StatusUnauthorized, "unauthorized")
		}
		return next(c)
	}
}
