package handler

import (
    "errors"        // errors.Is for store sentinels
    "fmt"           // error wrapping
    "net/http"      // HTTP status codes and primitives
    "strings"       // string manipulation utilities
    "time"          // token expiry timestamps
    "unicode/utf8"  // username length in characters

    "github.com/labstack/echo/v4" // Echo framework for HTTP routing
    "go.uber.org/zap"

    "github.com/iliyamo/movierama/internal/config"     // app configuration
    "github.com/iliyamo/movierama/internal/middleware" // authenticated user lookup
    "github.com/iliyamo/movierama/internal/model"
    "github.com/iliyamo/movierama/internal/repository" // stores and sentinel errors
    "github.com/iliyamo/movierama/internal/utils"      // hashing and token issuing
)

// maxUsernameLength is the size of the users.username column.
const maxUsernameLength = 150

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
    Cfg    config.Config
    Users  repository.UserStore
    Tokens repository.TokenStore
    Log    *zap.Logger
}

func NewAuthHandler(cfg config.Config, u repository.UserStore, t repository.TokenStore, log *zap.Logger) *AuthHandler {
    return &AuthHandler{Cfg: cfg, Users: u, Tokens: t, Log: log}
}

// ----- DTOs -----

type registerReq struct {
    Username  string `json:"username"`
    Password  string `json:"password"`
    FirstName string `json:"first_name"`
    LastName  string `json:"last_name"`
}
type loginReq struct {
    Username string `json:"username"`
    Password string `json:"password"`
}
type refreshReq struct {
    RefreshToken string `json:"refresh_token"`
}

type tokenPart struct {
    Token   string    `json:"token"`
    Expires time.Time `json:"expires"`
}
type authResp struct {
    User    model.UserSummary `json:"user"`
    Access  tokenPart         `json:"access"`
    Refresh tokenPart         `json:"refresh"`
}

// Register: create user and return tokens immediately.
func (h *AuthHandler) Register(c echo.Context) error {
    var req registerReq
    if err := c.Bind(&req); err != nil {
        return errMalformedBody
    }
    req.Username = strings.TrimSpace(req.Username)

    errs := fieldErrors{}
    switch {
    case req.Username == "":
        errs.add("username", msgRequired)
    case utf8.RuneCountInString(req.Username) > maxUsernameLength:
        errs.add("username", fmt.Sprintf("Ensure this field has no more than %d characters.", maxUsernameLength))
    }
    if req.Password == "" {
        errs.add("password", msgRequired)
    }
    if len(errs) > 0 {
        return errs
    }

    ctx, cancel := storeCtx(c)
    defer cancel()

    uid, err := h.Users.Create(ctx, repository.NewUser{
        Username:  req.Username,
        FirstName: req.FirstName,
        LastName:  req.LastName,
        Password:  req.Password,
    }, h.Cfg.BcryptCost)
    if err != nil {
        if errors.Is(err, repository.ErrUsernameExists) {
            return echo.NewHTTPError(http.StatusConflict, "A user with that username already exists.")
        }
        return fmt.Errorf("create user: %w", err)
    }
    u, err := h.Users.GetByID(ctx, uid)
    if err != nil {
        return fmt.Errorf("load user: %w", err)
    }

    resp, err := h.issuePair(c, u)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusCreated, resp)
}

// Login: verify and return new pair.
func (h *AuthHandler) Login(c echo.Context) error {
    var req loginReq
    if err := c.Bind(&req); err != nil {
        return errMalformedBody
    }
    req.Username = strings.TrimSpace(req.Username)
    if req.Username == "" || req.Password == "" {
        errs := fieldErrors{}
        if req.Username == "" {
            errs.add("username", msgRequired)
        }
        if req.Password == "" {
            errs.add("password", msgRequired)
        }
        return errs
    }

    ctx, cancel := storeCtx(c)
    defer cancel()

    u, err := h.Users.GetByUsername(ctx, req.Username)
    if err != nil {
        if errors.Is(err, repository.ErrUserNotFound) {
            return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials.")
        }
        return fmt.Errorf("load user: %w", err)
    }
    if !u.IsActive || !utils.VerifyPassword(u.PasswordHash, req.Password) {
        return echo.NewHTTPError(http.StatusUnauthorized, "Invalid credentials.")
    }

    resp, err := h.issuePair(c, u)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, resp)
}

// Refresh: validate by hash, revoke old, issue new.
func (h *AuthHandler) Refresh(c echo.Context) error {
    raw, err := bindRefresh(c)
    if err != nil {
        return err
    }
    hash := utils.HashRefreshRaw(raw)

    ctx, cancel := storeCtx(c)
    defer cancel()

    userID, err := h.Tokens.ValidateRefresh(ctx, hash)
    if err != nil {
        return echo.NewHTTPError(http.StatusUnauthorized, "Invalid refresh token.")
    }
    if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
        return fmt.Errorf("revoke refresh: %w", err)
    }

    u, err := h.Users.GetByID(ctx, userID)
    if err != nil {
        if errors.Is(err, repository.ErrUserNotFound) {
            return echo.NewHTTPError(http.StatusUnauthorized, "Invalid refresh token.")
        }
        return fmt.Errorf("load user: %w", err)
    }

    resp, err := h.issuePair(c, u)
    if err != nil {
        return err
    }
    return c.JSON(http.StatusOK, resp)
}

// RefreshAccess returns a new access token without rotating the refresh
// token.
func (h *AuthHandler) RefreshAccess(c echo.Context) error {
    raw, err := bindRefresh(c)
    if err != nil {
        return err
    }

    ctx, cancel := storeCtx(c)
    defer cancel()

    userID, err := h.Tokens.ValidateRefresh(ctx, utils.HashRefreshRaw(raw))
    if err != nil {
        return echo.NewHTTPError(http.StatusUnauthorized, "Invalid refresh token.")
    }
    u, err := h.Users.GetByID(ctx, userID)
    if err != nil {
        if errors.Is(err, repository.ErrUserNotFound) {
            return echo.NewHTTPError(http.StatusUnauthorized, "Invalid refresh token.")
        }
        return fmt.Errorf("load user: %w", err)
    }
    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Username, h.Cfg.AccessTTLMin)
    if err != nil {
        return fmt.Errorf("issue access: %w", err)
    }
    return c.JSON(http.StatusOK, echo.Map{
        "access": tokenPart{Token: access.Token, Expires: access.Exp},
    })
}

// Logout revokes a single session when a refresh_token is posted, or
// every session of the bearer when only an access token is present.
// JWTAuth runs in front of it in optional mode.
func (h *AuthHandler) Logout(c echo.Context) error {
    var req refreshReq
    _ = c.Bind(&req) // an empty or invalid body just means "no refresh token"
    refreshToken := strings.TrimSpace(req.RefreshToken)

    ctx, cancel := storeCtx(c)
    defer cancel()

    if refreshToken != "" {
        hash := utils.HashRefreshRaw(refreshToken)
        if _, err := h.Tokens.ValidateRefresh(ctx, hash); err != nil {
            return echo.NewHTTPError(http.StatusUnauthorized, "Invalid refresh token.")
        }
        if err := h.Tokens.RevokeByHash(ctx, hash); err != nil {
            return fmt.Errorf("revoke refresh: %w", err)
        }
        return c.NoContent(http.StatusNoContent)
    }

    if uid, ok := middleware.UserID(c); ok {
        if err := h.Tokens.RevokeAllForUser(ctx, uid); err != nil {
            return fmt.Errorf("revoke all: %w", err)
        }
        return c.NoContent(http.StatusNoContent)
    }
    return echo.NewHTTPError(http.StatusBadRequest, "Provide an Authorization header or a refresh_token.")
}

// Me returns the public fields of the authenticated user.
func (h *AuthHandler) Me(c echo.Context) error {
    uid, _ := middleware.UserID(c)

    ctx, cancel := storeCtx(c)
    defer cancel()

    u, err := h.Users.GetByID(ctx, uid)
    if err != nil {
        if errors.Is(err, repository.ErrUserNotFound) {
            return echo.NewHTTPError(http.StatusNotFound, "Not found.")
        }
        return fmt.Errorf("load user: %w", err)
    }
    return c.JSON(http.StatusOK, u.Summary())
}

// issuePair signs an access token, stores a fresh refresh token and builds
// the auth response.
func (h *AuthHandler) issuePair(c echo.Context, u model.User) (authResp, error) {
    access, err := utils.NewAccessToken(h.Cfg.JWTSecret, u.ID, u.Username, h.Cfg.AccessTTLMin)
    if err != nil {
        return authResp{}, fmt.Errorf("issue access: %w", err)
    }
    refresh, err := utils.NewRefreshToken(h.Cfg.RefreshTTLDays)
    if err != nil {
        return authResp{}, fmt.Errorf("issue refresh: %w", err)
    }

    ctx, cancel := storeCtx(c)
    defer cancel()
    if err := h.Tokens.StoreRefresh(ctx, u.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
        return authResp{}, fmt.Errorf("save refresh: %w", err)
    }
    h.Log.Debug("issued tokens", zap.Uint64("user_id", u.ID))

    return authResp{
        User:    u.Summary(),
        Access:  tokenPart{Token: access.Token, Expires: access.Exp},
        Refresh: tokenPart{Token: refresh.Raw, Expires: refresh.Exp}, // raw back to client
    }, nil
}

func bindRefresh(c echo.Context) (string, error) {
    var req refreshReq
    if err := c.Bind(&req); err != nil {
        return "", errMalformedBody
    }
    raw := strings.TrimSpace(req.RefreshToken)
    if raw == "" {
        errs := fieldErrors{}
        errs.add("refresh_token", msgRequired)
        return "", errs
    }
    return raw, nil
}
