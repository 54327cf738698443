package middleware

import (
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/pkg/context"
)

const (
	// HeaderUserID is the header key for the acting user's ID
	HeaderUserID = "X-User-ID"
	// HeaderRole is the header key for the acting user's role
	HeaderRole = "X-Role"
	// HeaderPermissions is the header key for staff permission strings (comma separated)
	HeaderPermissions = "X-Permissions"
)

// Context copies request identity headers into the request context. When
// authentication is enabled the Authentication middleware overwrites the
// identity values with verified claims; the headers are only trusted in
// local/test setups.
func Context() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = uuid.New().String()
			}

			userID := req.Header.Get(HeaderUserID)
			role := req.Header.Get(HeaderRole)

			var permissions []string
			if raw := req.Header.Get(HeaderPermissions); raw != "" {
				for _, p := range strings.Split(raw, ",") {
					if p = strings.TrimSpace(p); p != "" {
						permissions = append(permissions, p)
					}
				}
			}

			ctx := req.Context()
			ctx = context.SetRequestID(ctx, requestID)
			ctx = context.SetMethod(ctx, req.Method)
			ctx = context.SetRoute(ctx, req.URL.Path)
			ctx = context.SetRemoteIP(ctx, c.RealIP())
			ctx = context.SetReferer(ctx, req.Referer())
			ctx = context.SetUserID(ctx, userID)
			ctx = context.SetRole(ctx, role)
			ctx = context.SetPermissions(ctx, permissions)

			c.SetRequest(req.WithContext(ctx))

			return next(c)
		}
	}
}
