package middleware

import (
    "net/http"
    "net/http/httptest"
    "strconv"
    "sync/atomic"
    "testing"
    "time"

    "github.com/alicebob/miniredis/v2"
    "github.com/labstack/echo/v4"
    "github.com/redis/go-redis/v9"
    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
    "go.uber.org/zap"

    "github.com/iliyamo/movierama/internal/config"
    "github.com/iliyamo/movierama/internal/utils"
)

const testSecret = "test-secret"

func bearer(t *testing.T, uid uint64) string {
    t.Helper()
    tok, err := utils.NewAccessToken(testSecret, uid, "user"+strconv.FormatUint(uid, 10), 5)
    require.NoError(t, err)
    return "Bearer " + tok.Token
}

func whoami(c echo.Context) error {
    return c.String(http.StatusOK, userKey(c))
}

func TestJWTAuth(t *testing.T) {
    e := echo.New()
    e.GET("/", whoami, JWTAuth(testSecret))
    e.GET("/private", whoami, JWTAuth(testSecret), RequireUser())

    do := func(path, auth string) *httptest.ResponseRecorder {
        req := httptest.NewRequest(http.MethodGet, path, nil)
        if auth != "" {
            req.Header.Set(echo.HeaderAuthorization, auth)
        }
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, req)
        return rec
    }

    t.Run("anonymous passes through", func(t *testing.T) {
        rec := do("/", "")
        assert.Equal(t, http.StatusOK, rec.Code)
        assert.Equal(t, "anon", rec.Body.String())
    })

    t.Run("valid token sets the user", func(t *testing.T) {
        rec := do("/", bearer(t, 7))
        assert.Equal(t, http.StatusOK, rec.Code)
        assert.Equal(t, "7", rec.Body.String())
    })

    t.Run("invalid token is 401", func(t *testing.T) {
        assert.Equal(t, http.StatusUnauthorized, do("/", "Bearer nope").Code)
        assert.Equal(t, http.StatusUnauthorized, do("/", "Token abc").Code)
    })

    t.Run("RequireUser rejects anonymous with 403", func(t *testing.T) {
        assert.Equal(t, http.StatusForbidden, do("/private", "").Code)
        assert.Equal(t, http.StatusOK, do("/private", bearer(t, 3)).Code)
    })
}

func newRedis(t *testing.T) *redis.Client {
    t.Helper()
    mr := miniredis.RunT(t)
    rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
    t.Cleanup(func() { _ = rdb.Close() })
    return rdb
}

func cacheConfig() config.CacheConfig {
    return config.CacheConfig{
        Enabled:     true,
        Methods:     map[string]bool{http.MethodGet: true},
        TTL:         time.Minute,
        KeyStrategy: "route_query",
        Prefix:      "test:cache",
    }
}

func TestRedisCache(t *testing.T) {
    rdb := newRedis(t)
    cfg := cacheConfig()
    log := zap.NewNop()

    var hits atomic.Int32
    e := echo.New()
    list := func(c echo.Context) error {
        hits.Add(1)
        return c.JSON(http.StatusOK, map[string]int32{"n": hits.Load()})
    }
    e.GET("/movies", list, JWTAuth(testSecret), NewRedisCache(cfg, rdb, log))
    e.POST("/movies", func(c echo.Context) error { return c.NoContent(http.StatusCreated) },
        JWTAuth(testSecret), InvalidateOnWrite(cfg, rdb, log))
    e.POST("/fail", func(c echo.Context) error { return c.NoContent(http.StatusBadRequest) },
        InvalidateOnWrite(cfg, rdb, log))

    get := func(auth string) *httptest.ResponseRecorder {
        req := httptest.NewRequest(http.MethodGet, "/movies?ordering=-likes_counter", nil)
        if auth != "" {
            req.Header.Set(echo.HeaderAuthorization, auth)
        }
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, req)
        return rec
    }
    post := func(path string) {
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
    }

    first := get("")
    require.Equal(t, http.StatusOK, first.Code)
    assert.Equal(t, "MISS", first.Header().Get("X-Cache"))

    second := get("")
    assert.Equal(t, "HIT", second.Header().Get("X-Cache"))
    assert.JSONEq(t, first.Body.String(), second.Body.String())
    assert.EqualValues(t, 1, hits.Load())

    // authenticated callers always reach the handler
    authed := get(bearer(t, 5))
    assert.Empty(t, authed.Header().Get("X-Cache"))
    assert.EqualValues(t, 2, hits.Load())

    // failed writes keep the cache
    post("/fail")
    assert.Equal(t, "HIT", get("").Header().Get("X-Cache"))

    // successful writes invalidate
    post("/movies")
    third := get("")
    assert.Equal(t, "MISS", third.Header().Get("X-Cache"))
    assert.EqualValues(t, 3, hits.Load())
}

func TestRedisCache_DisabledWithoutClient(t *testing.T) {
    mw := NewRedisCache(cacheConfig(), nil, zap.NewNop())
    e := echo.New()
    e.GET("/", func(c echo.Context) error { return c.String(http.StatusOK, "ok") }, mw)

    rec := httptest.NewRecorder()
    e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
    assert.Equal(t, http.StatusOK, rec.Code)
    assert.Empty(t, rec.Header().Get("X-Cache"))
}

func TestTokenBucket(t *testing.T) {
    rdb := newRedis(t)
    cfg := config.RateLimitConfig{
        Enabled:        true,
        Capacity:       2,
        RefillTokens:   1,
        RefillInterval: time.Hour,
        TTL:            2 * time.Hour,
        KeyStrategy:    "user_route",
        Prefix:         "test:rl",
    }

    e := echo.New()
    e.POST("/movies", func(c echo.Context) error { return c.NoContent(http.StatusCreated) },
        JWTAuth(testSecret), NewTokenBucket(cfg, rdb, zap.NewNop()))

    post := func(auth string) *httptest.ResponseRecorder {
        req := httptest.NewRequest(http.MethodPost, "/movies", nil)
        req.Header.Set(echo.HeaderAuthorization, auth)
        rec := httptest.NewRecorder()
        e.ServeHTTP(rec, req)
        return rec
    }

    alice, bob := bearer(t, 1), bearer(t, 2)
    assert.Equal(t, http.StatusCreated, post(alice).Code)
    rec := post(alice)
    assert.Equal(t, http.StatusCreated, rec.Code)
    assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

    blocked := post(alice)
    assert.Equal(t, http.StatusTooManyRequests, blocked.Code)
    assert.NotEmpty(t, blocked.Header().Get("Retry-After"))

    // buckets are per user
    assert.Equal(t, http.StatusCreated, post(bob).Code)
}

func TestBuildRateKey(t *testing.T) {
    e := echo.New()
    req := httptest.NewRequest(http.MethodPost, "/v1/movies", nil)
    req.Header.Set(echo.HeaderXRealIP, "10.0.0.1")
    c := e.NewContext(req, httptest.NewRecorder())
    c.SetPath("/v1/movies")
    c.Set(ContextUserID, uint64(9))

    cfg := config.RateLimitConfig{Prefix: "rl", KeyStrategy: "user_route"}
    assert.Equal(t, "rl:user:9:route:POST /v1/movies", buildRateKey(cfg, c))

    cfg.KeyStrategy = "ip"
    assert.Equal(t, "rl:ip:10.0.0.1", buildRateKey(cfg, c))
}
