package handler // handler defines http handlers

import (
    "context"  // per-request store deadlines
    "net/http" // status codes
    "strconv"  // path parameter parsing
    "time"

    "github.com/labstack/echo/v4"
)

// storeTimeout bounds every store call made by a handler.
const storeTimeout = 5 * time.Second

// storeCtx derives a context with the store timeout from the request.
func storeCtx(c echo.Context) (context.Context, context.CancelFunc) {
    return context.WithTimeout(c.Request().Context(), storeTimeout)
}

// pathID parses the :id path parameter as a positive integer.
func pathID(c echo.Context) (uint64, bool) {
    id, err := strconv.ParseUint(c.Param("id"), 10, 64)
    return id, err == nil && id > 0
}

// fieldErrors collects validation messages per request field. Returned
// as an error, HTTPErrorHandler renders it as
// {"<field>": ["<message>", ...], "status_code": 400}.
type fieldErrors map[string][]string

func (f fieldErrors) add(field, msg string) {
    f[field] = append(f[field], msg)
}

func (f fieldErrors) Error() string { return "validation failed" }

func (f fieldErrors) body() echo.Map {
    body := make(echo.Map, len(f)+1)
    for k, v := range f {
        body[k] = v
    }
    body["status_code"] = http.StatusBadRequest
    return body
}

// Validation messages shared by the handlers.
const (
    msgRequired = "This field is required."
    msgBlank    = "This field may not be blank."
)

var errMalformedBody = echo.NewHTTPError(http.StatusBadRequest, "Malformed request body.")
