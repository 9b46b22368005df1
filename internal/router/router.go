package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/iliyamo/movierama/internal/handler"    // handlers that implement the endpoints
	"github.com/iliyamo/movierama/internal/middleware" // JWT authentication and authorization
)

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance: liveness and readiness probes.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterAuth registers all authentication-related routes. Token
// exchange lives under /v1/auth, the current user under /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	// JWTAuth is optional here; logout uses the bearer when no refresh
	// token is posted.
	g := e.Group("/v1/auth", middleware.JWTAuth(jwtSecret))
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	// rotates the refresh token
	g.POST("/refresh", a.Refresh)
	// new access token, same refresh token
	g.POST("/refresh-access", a.RefreshAccess)
	g.POST("/logout", a.Logout)

	auth := e.Group("/v1", middleware.JWTAuth(jwtSecret))
	auth.GET("/me", a.Me, middleware.RequireUser())
}

// MovieMiddleware holds the optional Redis-backed middleware for movie
// routes. Nil entries are skipped.
type MovieMiddleware struct {
	ListCache  echo.MiddlewareFunc // anonymous GET /v1/movies
	Invalidate echo.MiddlewareFunc // bumps the cache generation after writes
	RateLimit  echo.MiddlewareFunc // token bucket on writes
}

// RegisterMovies registers the movie listing, detail, creation and opinion
// routes. Reads accept anonymous callers and personalise the payload when
// a valid token is present; writes require an authenticated user.
func RegisterMovies(e *echo.Echo, m *handler.MovieHandler, jwtSecret string, mw MovieMiddleware) {
	g := e.Group("/v1/movies", middleware.JWTAuth(jwtSecret))

	g.GET("", m.ListMovies, chain(mw.ListCache)...)
	g.GET("/:id", m.GetMovie)

	writes := chain(middleware.RequireUser(), mw.RateLimit, mw.Invalidate)
	g.POST("", m.CreateMovie, writes...)
	g.POST("/:id/opinion", m.SubmitOpinion, writes...)
}

// chain drops nil middleware, keeping order.
func chain(mws ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := make([]echo.MiddlewareFunc, 0, len(mws))
	for _, m := range mws {
		if m != nil {
			out = append(out, m)
		}
	}
	return out
}
