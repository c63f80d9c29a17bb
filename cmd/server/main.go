package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/npezzotti/go-whiteboard/internal/api"
	"github.com/npezzotti/go-whiteboard/internal/config"
	"github.com/npezzotti/go-whiteboard/internal/database"
	"github.com/npezzotti/go-whiteboard/internal/server"
	"github.com/npezzotti/go-whiteboard/internal/stats"
	"github.com/sirupsen/logrus"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, config.SplitList(value)...)
	return nil
}

var (
	addr           string
	dsn            string
	redisAddr      string
	redisPassword  string
	evictionGrace  time.Duration
	rateLimit      int
	rateWindow     time.Duration
	logLevel       string
	allowedOrigins stringSliceFlag
)

func openRepository(cfg *config.Config, logger *logrus.Logger) (database.WhiteboardRepository, error) {
	switch {
	case cfg.DatabaseDSN != "":
		logger.Info("persisting to postgres")
		return database.NewPgWhiteboardRepository(cfg.DatabaseDSN)
	case cfg.RedisAddr != "":
		logger.WithField("addr", cfg.RedisAddr).Info("persisting to redis")
		return database.NewRedisWhiteboardRepository(cfg.RedisAddr, cfg.RedisPassword)
	default:
		logger.Warn("no database configured, chat history will not be kept")
		return database.NopWhiteboardRepository{}, nil
	}
}

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := config.LoadEnv(); err != nil {
		logger.WithError(err).Fatal("load .env")
	}

	flag.StringVar(&addr, "addr", config.EnvString("ADDR", "localhost:3000"), "server address")
	flag.StringVar(&dsn, "dsn", config.EnvString("DATABASE_DSN", ""), "postgres connection string")
	flag.StringVar(&redisAddr, "redis-addr", config.EnvString("REDIS_ADDR", ""), "redis address, used when no dsn is set")
	flag.StringVar(&redisPassword, "redis-password", config.EnvString("REDIS_PASSWORD", ""), "redis password")
	flag.DurationVar(&evictionGrace, "eviction-grace", config.EnvDuration("EVICTION_GRACE", 5*time.Minute), "how long an empty room is kept")
	flag.IntVar(&rateLimit, "rate-limit", config.EnvInt("RATE_LIMIT", 100), "HTTP API requests allowed per client per window")
	flag.DurationVar(&rateWindow, "rate-window", config.EnvDuration("RATE_WINDOW", 15*time.Minute), "HTTP API rate limit window")
	flag.StringVar(&logLevel, "log-level", config.EnvString("LOG_LEVEL", "info"), "log level")
	allowedOrigins = config.SplitList(os.Getenv("ALLOWED_ORIGINS"))
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS")
	flag.Parse()

	cfg, err := config.NewConfig(config.Params{
		ServerAddr:     addr,
		DatabaseDSN:    dsn,
		RedisAddr:      redisAddr,
		RedisPassword:  redisPassword,
		AllowedOrigins: allowedOrigins,
		EvictionGrace:  evictionGrace,
		RateLimit:      rateLimit,
		RateWindow:     rateWindow,
		LogLevel:       logLevel,
	})
	if err != nil {
		logger.WithError(err).Fatal("config")
	}
	logger.SetLevel(cfg.LogLevel)

	repo, err := openRepository(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("db open")
	}
	defer func() {
		if err := repo.Close(); err != nil {
			logger.WithError(err).Error("db close")
		}
	}()

	recorder := database.NewRecorder(repo, logger, 0)
	recorder.Run()

	mux := http.NewServeMux()

	statsUpdater := stats.NewStatsUpdater(mux)
	statsUpdater.Run()
	defer statsUpdater.Stop()

	boardServer := server.NewBoardServer(logger, recorder, statsUpdater, server.Options{
		EvictionGrace: cfg.EvictionGrace,
	})

	srv := api.NewWhiteboardApp(mux, logger, boardServer, repo, cfg)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.WithField("signal", sig.String()).Info("received signal")
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Error("server")
		}
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.WithError(err).Error("HTTP server shutdown")
	}

	if err := boardServer.Shutdown(shutDownCtx); err != nil {
		logger.WithError(err).Error("board server shutdown")
	}

	logger.Info("flushing pending writes...")
	recorder.Stop()

	logger.Info("shutdown complete")
}
