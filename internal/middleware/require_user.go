package middleware // middleware provides shared request processing for handlers

import (
    "net/http" // http package defines standard HTTP status codes

    "github.com/labstack/echo/v4" // echo provides middleware chaining and context
)

// RequireUser rejects requests that JWTAuth did not authenticate. Missing
// credentials are reported as 403, matching the permission-denied shape
// used for the owner rule, so callers cannot tell the two apart by status.
func RequireUser() echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            if _, ok := UserID(c); !ok {
                return echo.NewHTTPError(http.StatusForbidden, "Authentication credentials were not provided.")
            }
            return next(c)
        }
    }
}
