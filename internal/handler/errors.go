package handler

import (
    "errors"
    "net/http"

    "github.com/labstack/echo/v4"
    "go.uber.org/zap"
)

// HTTPErrorHandler renders every error returned by a handler or middleware
// as {"detail": ..., "status_code": ...}. *echo.HTTPError keeps its code
// and message, validation failures list messages per field, and anything
// else is logged and reported as a 500 without leaking the cause.
func HTTPErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
    return func(err error, c echo.Context) {
        if c.Response().Committed {
            return
        }

        var fe fieldErrors
        if errors.As(err, &fe) {
            if werr := c.JSON(http.StatusBadRequest, fe.body()); werr != nil {
                log.Warn("write error response", zap.Error(werr))
            }
            return
        }

        code := http.StatusInternalServerError
        detail := "internal server error"

        var he *echo.HTTPError
        if errors.As(err, &he) {
            code = he.Code
            switch m := he.Message.(type) {
            case string:
                detail = m
            case error:
                detail = m.Error()
            default:
                detail = http.StatusText(code)
            }
            if code >= http.StatusInternalServerError && he.Internal != nil {
                log.Error("request failed", zap.Error(he.Internal), requestIDField(c))
            }
        } else {
            log.Error("unhandled error", zap.Error(err), requestIDField(c))
        }

        if c.Request().Method == http.MethodHead {
            err = c.NoContent(code)
        } else {
            err = c.JSON(code, echo.Map{"detail": detail, "status_code": code})
        }
        if err != nil {
            log.Warn("write error response", zap.Error(err))
        }
    }
}

func requestIDField(c echo.Context) zap.Field {
    return zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID))
}
