// Command server serves the seeded course catalog over HTTP.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"catalog/internal/auth"
	"catalog/internal/catalog"
	"catalog/internal/config"
	"catalog/internal/httpapi"
	"catalog/internal/logger"
	"catalog/internal/metrics"
	"catalog/internal/metrics/datadog"
	"catalog/internal/metrics/setup"
)

const usage = "usage: server -env dev|test [-config-dir dir] [-v]"

const shutdownTimeout = 10 * time.Second

type appDeps struct {
	loadConfig  func(env, dir string) (config.Config, error)
	newLogger   func(opt logger.Options) (*zap.Logger, error)
	initMetrics func(ctx context.Context, log *zap.Logger, opt setup.Options) (metrics.Backend, func(), error)
	openDB      func(ctx context.Context, kind, dsn string, log *zap.Logger) (*gorm.DB, error)
	newRedis    func(cfg config.Config) redis.UniversalClient
	listen      func(network, addr string) (net.Listener, error)
}

func defaultDeps() appDeps {
	return appDeps{
		loadConfig:  config.Load,
		newLogger:   logger.New,
		initMetrics: setup.Init,
		openDB:      catalog.Open,
		newRedis: func(cfg config.Config) redis.UniversalClient {
			return redis.NewClient(&redis.Options{
				Addr:     cfg.RedisAddr,
				Password: cfg.RedisPassword,
				DB:       cfg.RedisDB,
			})
		},
		listen: net.Listen,
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain serves until ctx is cancelled. Exit codes: 0 clean shutdown,
// 1 runtime failure, 2 usage error.
func runMain(ctx context.Context, args []string, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(stderr)
	var (
		env       = fs.String("env", "", "environment selector: dev|test")
		configDir = fs.String("config-dir", ".", "directory holding .env.<env> files")
		verbose   = fs.Bool("v", false, "enable debug logs")
	)
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if strings.TrimSpace(*env) == "" || fs.NArg() > 0 {
		fmt.Fprintln(stderr, usage)
		return 2
	}
	if _, err := config.ResolveEnv(*env); err != nil {
		fmt.Fprintf(stderr, "%v\n%s\n", err, usage)
		return 2
	}

	cfg, err := deps.loadConfig(*env, *configDir)
	if err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}
	if err := cfg.ValidateServer(); err != nil {
		fmt.Fprintf(stderr, "load config: %v\n", err)
		return 1
	}

	lvl := cfg.LogLevel
	if *verbose {
		lvl = "debug"
	}
	log, err := deps.newLogger(logger.Options{Level: lvl, Mode: cfg.LogMode})
	if err != nil {
		fmt.Fprintf(stderr, "init logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Sync() }()
	log.Debug("config loaded", zap.Any("config", logger.Redact(cfg.Summary())))

	mb, cleanup, err := deps.initMetrics(ctx, log, setup.Options{
		Backend: cfg.MetricsBackend,
		JobName: "catalog-api",
		Tags:    datadog.ParseTagsCSV(cfg.MetricsTags),
	})
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	if err := serve(ctx, cfg, log, mb, deps); err != nil {
		log.Error("server stopped", zap.Error(err))
		fmt.Fprintf(stderr, "serve: %v\n", err)
		return 1
	}
	log.Info("server stopped")
	return 0
}

func serve(ctx context.Context, cfg config.Config, log *zap.Logger, mb metrics.Backend, deps appDeps) error {
	db, err := deps.openDB(ctx, cfg.DBKind, cfg.DSN(), log)
	if err != nil {
		return err
	}
	defer func() { _ = catalog.Close(db) }()
	if err := catalog.Migrate(ctx, db); err != nil {
		return err
	}

	var (
		cache   catalog.Cache = catalog.NopCache{}
		limiter *httpapi.RateLimiter
	)
	if cfg.RedisAddr != "" {
		rdb := deps.newRedis(cfg)
		defer func() { _ = rdb.Close() }()

		pingCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := rdb.Ping(pingCtx).Err(); err != nil {
			log.Warn("redis unreachable; cache and rate limit will fail open", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		}
		cancel()

		cache = catalog.NewRedisCache(rdb, "catalog:")
		if cfg.RateLimitPerSecond > 0 {
			limiter = httpapi.NewRateLimiter(rdb, cfg.RateLimitPerSecond, time.Second, log)
		}
	} else {
		log.Info("REDIS_ADDR not set; caching and rate limiting disabled")
	}

	svc := catalog.NewService(db, catalog.Options{
		Cache:    cache,
		CacheTTL: time.Duration(cfg.CacheTTLSeconds) * time.Second,
		Log:      log.Named("catalog"),
	})

	if strings.HasPrefix(strings.ToLower(cfg.LogMode), "prod") {
		gin.SetMode(gin.ReleaseMode)
	}
	router := httpapi.NewRouter(httpapi.Deps{
		Catalog:     svc,
		Tokens:      auth.NewTokenManager(cfg.SecretKey, time.Duration(cfg.AccessTokenExpireMinutes)*time.Minute),
		Log:         log.Named("http"),
		Metrics:     mb,
		Limiter:     limiter,
		CORSOrigins: cfg.CORSOriginList(),
	})

	ln, err := deps.listen("tcp", cfg.Addr())
	if err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Addr(), err)
	}
	srv := &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ErrorLog:          zap.NewStdLog(log.Named("http")),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("listening", zap.String("addr", ln.Addr().String()))
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		log.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}
