package main // Entry point package

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/iliyamo/movierama/internal/config"
	"github.com/iliyamo/movierama/internal/database"
	"github.com/iliyamo/movierama/internal/handler"
	"github.com/iliyamo/movierama/internal/logging"
	"github.com/iliyamo/movierama/internal/middleware"
	"github.com/iliyamo/movierama/internal/queue"
	"github.com/iliyamo/movierama/internal/repository"
	"github.com/iliyamo/movierama/internal/router"
	"github.com/iliyamo/movierama/internal/service"
)

// stores groups the three store views handlers depend on.
type stores struct {
	users  repository.UserStore
	tokens repository.TokenStore
	movies repository.MovieStore
	db     *sql.DB // nil for the memory driver
}

func main() {
	_ = godotenv.Load() // .env is optional; real env vars win
	cfg := config.Load()

	log, err := logging.ForEnv(cfg.Env, cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg, log)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	if st.db != nil {
		defer st.db.Close()
	}

	rdb, err := config.NewRedisClient(ctx)
	if err != nil {
		log.Warn("redis unavailable, cache and rate limit disabled", zap.Error(err))
	}
	if rdb != nil {
		defer rdb.Close()
	}

	var events service.EventPublisher = service.NopPublisher{}
	if cfg.EventsEnabled {
		events = service.NewQueuePublisher(cfg.AMQPURL, log)
		log.Info("movie events enabled", zap.String("queue", queue.MovieEventsQueue))
	}
	if cfg.EventsConsumerEnabled {
		c := &queue.Consumer{URL: cfg.AMQPURL, LogPath: "logs/activity.log", Log: log}
		go func() {
			if err := c.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error("movie-events consumer stopped", zap.Error(err))
			}
		}()
	}

	e := echo.New()
	e.HideBanner = true
	e.HTTPErrorHandler = handler.HTTPErrorHandler(log)
	e.Use(echomw.Recover())
	e.Use(echomw.RequestID())
	e.Use(middleware.RequestLogger(log))

	var pinger handler.Pinger
	if st.db != nil {
		pinger = st.db
	}
	router.RegisterRoutes(e, pinger)
	router.RegisterAuth(e, handler.NewAuthHandler(cfg, st.users, st.tokens, log), cfg.JWTSecret)
	router.RegisterMovies(e,
		handler.NewMovieHandler(st.movies, events, log, cfg.PageSize),
		cfg.JWTSecret,
		movieMiddleware(rdb, log),
	)

	addr := ":" + cfg.Port
	go func() {
		log.Info("listening", zap.String("addr", addr), zap.String("env", cfg.Env), zap.String("store", cfg.StoreDriver))
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown", zap.Error(err))
	}
	log.Info("stopped")
}

// openStores selects the store backend. MySQL runs the embedded
// migrations first; the memory driver is for local development and is
// rejected by config in production.
func openStores(ctx context.Context, cfg config.Config, log *zap.Logger) (stores, error) {
	if cfg.StoreDriver == config.DriverMemory {
		log.Warn("STORE_DRIVER=memory, data is lost on restart (development only)")
		mem := repository.NewMemoryStore()
		return stores{users: mem.Users(), tokens: mem.Tokens(), movies: mem.Movies()}, nil
	}

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		return stores{}, err
	}
	if err := database.Migrate(ctx, db, log); err != nil {
		_ = db.Close()
		return stores{}, err
	}
	log.Info("connected to mysql", zap.String("host", cfg.DBHost), zap.String("db", cfg.DBName))
	return stores{
		users:  repository.NewUserRepo(db),
		tokens: repository.NewTokenRepo(db),
		movies: repository.NewMovieRepo(db),
		db:     db,
	}, nil
}

func movieMiddleware(rdb *redis.Client, log *zap.Logger) router.MovieMiddleware {
	if rdb == nil {
		return router.MovieMiddleware{}
	}
	cacheCfg := config.LoadCacheConfig()
	return router.MovieMiddleware{
		ListCache:  middleware.NewRedisCache(cacheCfg, rdb, log),
		Invalidate: middleware.InvalidateOnWrite(cacheCfg, rdb, log),
		RateLimit:  middleware.NewTokenBucket(config.LoadRateLimitConfig(), rdb, log),
	}
}
