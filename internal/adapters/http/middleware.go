package httpadapter

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/PabloGalante/farum-reflect/internal/adapters/identity"
	"github.com/PabloGalante/farum-reflect/internal/domain"
	"github.com/PabloGalante/farum-reflect/internal/observability"
)

// HeaderUserID carries the signed-in user, set by the fronting proxy.
const HeaderUserID = "X-User-ID"

// withCORS leaves every origin open; the web front-end is served elsewhere.
func withCORS() echo.MiddlewareFunc {
	return middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodOptions},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization, HeaderUserID},
	})
}

// withRequestContext moves the request id and the user into the request
// context, where the logger and the identity provider look for them.
func withRequestContext(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		req := c.Request()
		ctx := req.Context()

		if id := c.Response().Header().Get(echo.HeaderXRequestID); id != "" {
			ctx = observability.WithRequestID(ctx, id)
		}
		if user := req.Header.Get(HeaderUserID); user != "" {
			ctx = identity.WithUser(ctx, domain.UserID(user))
		}

		c.SetRequest(req.WithContext(ctx))
		return next(c)
	}
}

// withLogging logs every request once it has been answered.
func withLogging(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)
		if err != nil {
			c.Error(err)
		}

		observability.LoggerFromContext(c.Request().Context()).Info("http request",
			"method", c.Request().Method,
			"path", c.Path(),
			"status", c.Response().Status,
			"duration", time.Since(start),
		)
		return nil
	}
}
