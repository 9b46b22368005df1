package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http" // HTTP status codes for responses
    "strings"  // string utilities for prefix checking and trimming

    "github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

    "github.com/iliyamo/movierama/internal/utils"
)

// Context keys set by JWTAuth.
const (
    ContextUserID   = "user_id"
    ContextUsername = "username"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// when one is present and injects the user id (uint64) and username into
// the request context. Requests without an Authorization header pass
// through anonymously so public routes can still personalize responses;
// RequireUser enforces authentication where it is mandatory. A header that
// is present but invalid is always rejected with 401.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get(echo.HeaderAuthorization)
            if auth == "" {
                return next(c)
            }
            if !strings.HasPrefix(auth, "Bearer ") {
                return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token header.")
            }
            claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
            if err != nil {
                return echo.NewHTTPError(http.StatusUnauthorized, "Invalid token.")
            }
            c.Set(ContextUserID, claims.UserID)
            c.Set(ContextUsername, claims.Username)
            return next(c)
        }
    }
}
