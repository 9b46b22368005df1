// Command recount rebuilds every movie's likes_counter and hates_counter
// from the movie_opinions rows. Use it after manual data fixes.
package main

import (
	"context"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/iliyamo/movierama/internal/config"
	"github.com/iliyamo/movierama/internal/database"
	"github.com/iliyamo/movierama/internal/logging"
	"github.com/iliyamo/movierama/internal/repository"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	log, err := logging.New(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.StoreDriver != config.DriverMySQL {
		log.Fatal("recount needs STORE_DRIVER=mysql", zap.String("store", cfg.StoreDriver))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	db, err := database.Open(ctx, cfg.DBUser, cfg.DBPass, cfg.DBHost, cfg.DBPort, cfg.DBName)
	if err != nil {
		log.Fatal("connect to database", zap.Error(err))
	}
	defer db.Close()

	start := time.Now()
	changed, err := repository.NewMovieRepo(db).RecountAll(ctx)
	if err != nil {
		log.Fatal("recount", zap.Error(err))
	}
	log.Info("recount done", zap.Int64("movies_changed", changed), zap.Duration("took", time.Since(start)))
}
