package main

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"catalog/internal/config"
	"catalog/internal/logger"
	"catalog/internal/metrics"
	"catalog/internal/metrics/setup"
	"catalog/internal/multitable"
)

// fakeRunner records calls and returns a configurable result.
type fakeRunner struct {
	err   error
	calls atomic.Int64

	mu       sync.Mutex
	lastCfg  config.Config
	lastOpts multitable.RunOptions
}

func (r *fakeRunner) Run(ctx context.Context, cfg config.Config, opts multitable.RunOptions) (multitable.Report, error) {
	r.calls.Add(1)
	r.mu.Lock()
	r.lastCfg, r.lastOpts = cfg, opts
	r.mu.Unlock()
	if r.err != nil {
		return multitable.Report{Stage: multitable.StageDimensionsSeeded}, r.err
	}
	return multitable.Report{Stage: multitable.StageDone, Counts: map[string]int64{"courses": 6}}, nil
}

func nopLogger(logger.Options) (*zap.Logger, error) { return zap.NewNop(), nil }

// stubBackend is a distinct metrics.Backend value runMain must hand through.
type stubBackend struct{ metrics.Nop }

func TestRunMain_UsageErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		args          []string
		wantStderrSub string
	}{
		{"missing_env", []string{}, "usage: seed -env"},
		{"blank_env", []string{"-env", "  "}, "usage: seed -env"},
		{"invalid_env", []string{"-env", "prod"}, "invalid environment"},
		{"unknown_flag", []string{"-nope"}, "flag provided but not defined"},
		{"positional_args", []string{"-env", "dev", "extra"}, "usage: seed -env"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var stdout, stderr bytes.Buffer
			code := runMain(context.Background(), tc.args, &stdout, &stderr, appDeps{
				loadConfig: func(string, string) (config.Config, error) {
					t.Fatalf("loadConfig must not be called on usage errors")
					return config.Config{}, nil
				},
				newLogger: func(logger.Options) (*zap.Logger, error) {
					t.Fatalf("newLogger must not be called on usage errors")
					return nil, nil
				},
				initMetrics: func(context.Context, *zap.Logger, setup.Options) (metrics.Backend, func(), error) {
					t.Fatalf("initMetrics must not be called on usage errors")
					return nil, func() {}, nil
				},
				newRunner: func(*zap.Logger, metrics.Backend) runner {
					t.Fatalf("newRunner must not be called on usage errors")
					return &fakeRunner{}
				},
			})

			if code != 2 {
				t.Fatalf("exit code=%d, want 2; stderr=%q", code, stderr.String())
			}
			if !strings.Contains(stderr.String(), tc.wantStderrSub) {
				t.Fatalf("stderr=%q, want contains %q", stderr.String(), tc.wantStderrSub)
			}
			if stdout.Len() != 0 {
				t.Fatalf("stdout=%q, want empty", stdout.String())
			}
		})
	}
}

func TestRunMain_ConfigMetricsRun_FullFlow(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name             string
		loadErr          error
		initMetricsErr   error
		runErr           error
		wantCode         int
		wantStderrSub    string
		wantStdout       string
		wantRunnerCalls  int64
		wantCleanupCalls int64
	}{
		{name: "load_config_error", loadErr: errors.New("bad dotenv"), wantCode: 1, wantStderrSub: "load config:"},
		{name: "init_metrics_error", initMetricsErr: errors.New("no api key"), wantCode: 1, wantStderrSub: "init metrics:"},
		{name: "runner_error_runs_cleanup", runErr: errors.New("db failed"), wantCode: 1, wantStderrSub: "run: db failed", wantRunnerCalls: 1, wantCleanupCalls: 1},
		{name: "success", wantCode: 0, wantStdout: "ok\n", wantRunnerCalls: 1, wantCleanupCalls: 1},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			var stdout, stderr bytes.Buffer
			fr := &fakeRunner{err: tc.runErr}
			var cleanupCalls atomic.Int64
			mb := &stubBackend{}

			deps := appDeps{
				loadConfig: func(env, dir string) (config.Config, error) {
					if env != "test" || dir != "cfgdir" {
						t.Fatalf("loadConfig(%q, %q)", env, dir)
					}
					return config.Config{Env: config.EnvTest, MetricsBackend: "datadog", MetricsTags: "team:web"}, tc.loadErr
				},
				newLogger: nopLogger,
				initMetrics: func(ctx context.Context, log *zap.Logger, opt setup.Options) (metrics.Backend, func(), error) {
					// The flag wins over METRICS_BACKEND.
					if opt.Backend != "none" || opt.JobName != "seed" {
						t.Fatalf("metrics options=%+v", opt)
					}
					if len(opt.Tags) != 1 || opt.Tags[0] != "team:web" {
						t.Fatalf("tags=%v", opt.Tags)
					}
					if tc.initMetricsErr != nil {
						return metrics.Nop{}, func() {}, tc.initMetricsErr
					}
					return mb, func() { cleanupCalls.Add(1) }, nil
				},
				newRunner: func(_ *zap.Logger, got metrics.Backend) runner {
					if got != metrics.Backend(mb) {
						t.Fatalf("runner got backend %v, want the one from initMetrics", got)
					}
					return fr
				},
			}

			code := runMain(context.Background(),
				[]string{"-env", "test", "-config-dir", "cfgdir", "-metrics-backend", "none", "-drop-all", "-data", "x.csv", "-lenient-audit"},
				&stdout, &stderr, deps)

			if code != tc.wantCode {
				t.Fatalf("exit code=%d, want %d; stderr=%q", code, tc.wantCode, stderr.String())
			}
			if tc.wantStderrSub != "" && !strings.Contains(stderr.String(), tc.wantStderrSub) {
				t.Fatalf("stderr=%q, want contains %q", stderr.String(), tc.wantStderrSub)
			}
			if got := stdout.String(); got != tc.wantStdout {
				t.Fatalf("stdout=%q, want %q", got, tc.wantStdout)
			}
			if got := fr.calls.Load(); got != tc.wantRunnerCalls {
				t.Fatalf("runner calls=%d, want %d", got, tc.wantRunnerCalls)
			}
			if got := cleanupCalls.Load(); got != tc.wantCleanupCalls {
				t.Fatalf("cleanup calls=%d, want %d", got, tc.wantCleanupCalls)
			}
			if tc.wantRunnerCalls == 1 {
				want := multitable.RunOptions{DataPath: "x.csv", DropAll: true, LenientAudit: true}
				if fr.lastOpts != want {
					t.Fatalf("run options=%+v, want %+v", fr.lastOpts, want)
				}
				if fr.lastCfg.Env != config.EnvTest {
					t.Fatalf("cfg.Env=%q", fr.lastCfg.Env)
				}
			}
		})
	}
}

func TestRunMain_LogsSeededReport(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zapcore.DebugLevel)
	var gotLevel string
	deps := appDeps{
		loadConfig: func(string, string) (config.Config, error) {
			return config.Config{LogLevel: "warn", PostgresPassword: "hunter2"}, nil
		},
		newLogger: func(opt logger.Options) (*zap.Logger, error) {
			gotLevel = opt.Level
			return zap.New(core), nil
		},
		initMetrics: func(context.Context, *zap.Logger, setup.Options) (metrics.Backend, func(), error) {
			return metrics.Nop{}, func() {}, nil
		},
		newRunner: func(*zap.Logger, metrics.Backend) runner { return &fakeRunner{} },
	}

	var stdout, stderr bytes.Buffer
	if code := runMain(context.Background(), []string{"-env", "dev", "-v"}, &stdout, &stderr, deps); code != 0 {
		t.Fatalf("exit code=%d; stderr=%q", code, stderr.String())
	}
	if gotLevel != "debug" {
		t.Fatalf("level=%q, want debug with -v", gotLevel)
	}
	if logs.FilterMessage("database seeded").Len() != 1 {
		t.Fatalf("missing completion log: %v", logs.All())
	}
	entries := logs.FilterMessage("config loaded").All()
	if len(entries) != 1 {
		t.Fatalf("config loaded logs=%d, want 1", len(entries))
	}
	summary, ok := entries[0].ContextMap()["config"].(map[string]string)
	if !ok {
		t.Fatalf("config field=%T", entries[0].ContextMap()["config"])
	}
	if summary["POSTGRES_PASSWORD"] != "***" {
		t.Fatalf("password logged as %q", summary["POSTGRES_PASSWORD"])
	}
}
