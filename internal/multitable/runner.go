package multitable

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"catalog/internal/config"
	"catalog/internal/metrics"
	csvparser "catalog/internal/parser/csv"
	"catalog/internal/storage"
	"catalog/internal/transformer"
)

// RunOptions are per-invocation overrides on top of config.
type RunOptions struct {
	DataPath     string // empty means cfg.SeedDataPath
	DropAll      bool
	LenientAudit bool
	StripHTML    bool
}

// Runner wires config, the source file and a repository into an Engine.
type Runner struct {
	// storage-agnostic factory seam
	NewRepository func(ctx context.Context, cfg storage.Config) (storage.Repository, error)

	// ReadTable loads the raw export.
	ReadTable func(ctx context.Context, path string) (*transformer.Table, error)

	Log     *zap.Logger
	Metrics metrics.Backend
}

func NewDefaultRunner(log *zap.Logger) *Runner {
	return &Runner{
		NewRepository: storage.New,
		ReadTable: func(ctx context.Context, path string) (*transformer.Table, error) {
			return csvparser.ReadFile(ctx, path, csvparser.Options{})
		},
		Log: log,
	}
}

// EngineOptions derives engine options from config and overrides.
func EngineOptions(cfg config.Config, opts RunOptions) Options {
	o := DefaultOptions()
	if langs := cfg.HandoutLanguages(); len(langs) > 0 {
		o.HandoutLanguages = langs
	}
	o.StrictAudit = cfg.SeedStrictAudit && !opts.LenientAudit
	o.StripHTML = cfg.SeedStripHTML || opts.StripHTML
	o.DropAll = opts.DropAll
	return o
}

func (r *Runner) Run(ctx context.Context, cfg config.Config, opts RunOptions) (Report, error) {
	if r.NewRepository == nil || r.ReadTable == nil {
		return Report{}, errors.New("runner: NewRepository and ReadTable are required")
	}
	if err := cfg.Validate(); err != nil {
		return Report{}, err
	}
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}

	path := opts.DataPath
	if path == "" {
		path = cfg.SeedDataPath
	}
	if path == "" {
		return Report{}, errors.New("runner: no data path (set -data or SEED_DATA_PATH)")
	}

	raw, err := r.ReadTable(ctx, path)
	if err != nil {
		return Report{}, fmt.Errorf("read %s: %w", path, err)
	}
	log.Info("source loaded", zap.String("path", path), zap.Int("rows", raw.Len()), zap.Int("columns", len(raw.Columns)))

	repo, err := r.NewRepository(ctx, storage.Config{Kind: cfg.DBKind, DSN: cfg.DSN()})
	if err != nil {
		return Report{}, fmt.Errorf("open %s repository: %w", cfg.DBKind, err)
	}
	defer repo.Close()

	engine := &Engine{
		Repo:    repo,
		Log:     log,
		Metrics: r.Metrics,
		Options: EngineOptions(cfg, opts),
	}
	return engine.Run(ctx, raw)
}
