// Command seed loads the course export into the catalog database.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"go.uber.org/zap"

	"catalog/internal/config"
	"catalog/internal/logger"
	"catalog/internal/metrics"
	"catalog/internal/metrics/datadog"
	"catalog/internal/metrics/setup"
	"catalog/internal/multitable"

	// register all backends with the storage factory.
	_ "catalog/internal/storage/all"
)

const usage = "usage: seed -env dev|test [-drop-all] [-data path.csv] [-config-dir dir] [-metrics-backend none|datadog] [-lenient-audit] [-strip-html] [-v]"

type runner interface {
	Run(ctx context.Context, cfg config.Config, opts multitable.RunOptions) (multitable.Report, error)
}

// appDeps are the seams runMain reaches the outside world through.
type appDeps struct {
	loadConfig  func(env, dir string) (config.Config, error)
	newLogger   func(opt logger.Options) (*zap.Logger, error)
	initMetrics func(ctx context.Context, log *zap.Logger, opt setup.Options) (metrics.Backend, func(), error)
	newRunner   func(log *zap.Logger, mb metrics.Backend) runner
}

func defaultDeps() appDeps {
	return appDeps{
		loadConfig:  config.Load,
		newLogger:   logger.New,
		initMetrics: setup.Init,
		newRunner: func(log *zap.Logger, mb metrics.Backend) runner {
			r := multitable.NewDefaultRunner(log)
			r.Metrics = mb
			return r
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := runMain(ctx, os.Args[1:], os.Stdout, os.Stderr, defaultDeps())
	stop()
	os.Exit(code)
}

// runMain parses flags, loads config once and runs the seeder. Exit codes:
// 0 success, 1 runtime failure, 2 usage error.
func runMain(ctx context.Context, args []string, stdout, stderr io.Writer, deps appDeps) int {
	fs := flag.NewFlagSet("seed", flag.ContinueOnError)
	fs.SetOutput(stderr)

	var (
		env            = fs.String("env", "", "environment selector: dev|test")
		dropAll        = fs.Bool("drop-all", false, "drop all catalog tables before seeding")
		dataPath       = fs.String("data", "", "course CSV path (default SEED_DATA_PATH)")
		configDir      = fs.String("config-dir", ".", "directory holding .env.<env> files")
		metricsBackend = fs.String("metrics-backend", "", "metrics backend: none|datadog (default METRICS_BACKEND)")
		lenientAudit   = fs.Bool("lenient-audit", false, "log row count mismatches instead of rolling back")
		stripHTML      = fs.Bool("strip-html", false, "reduce description markup to text")
		verbose        = fs.Bool("v", false, "enable debug logs")
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

	backend := *metricsBackend
	if backend == "" {
		backend = cfg.MetricsBackend
	}
	mb, cleanup, err := deps.initMetrics(ctx, log, setup.Options{
		Backend: backend,
		JobName: "seed",
		Tags:    datadog.ParseTagsCSV(cfg.MetricsTags),
	})
	if err != nil {
		fmt.Fprintf(stderr, "init metrics: %v\n", err)
		return 1
	}
	defer cleanup()

	rep, err := deps.newRunner(log, mb).Run(ctx, cfg, multitable.RunOptions{
		DataPath:     *dataPath,
		DropAll:      *dropAll,
		LenientAudit: *lenientAudit,
		StripHTML:    *stripHTML,
	})
	if err != nil {
		log.Error("seed failed", zap.String("stage", string(rep.Stage)), zap.Error(err))
		fmt.Fprintf(stderr, "run: %v\n", err)
		return 1
	}

	log.Info("database seeded",
		zap.String("env", cfg.Env),
		zap.Any("counts", rep.Counts),
		zap.Strings("ignored_handout_columns", rep.IgnoredHandoutColumns),
		zap.String("source_digest", rep.SourceDigest),
		zap.Duration("duration", rep.Duration),
	)
	fmt.Fprintln(stdout, "ok")
	return 0
}
