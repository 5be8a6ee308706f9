// Package setup builds the metrics backend selected by config or flags.
package setup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"catalog/internal/metrics"
	"catalog/internal/metrics/datadog"
)

// Options selects and configures a backend.
type Options struct {
	Backend    string // none | datadog
	JobName    string
	Tags       []string
	FlushEvery time.Duration
}

type backend interface {
	metrics.Backend
	Close() error
}

// Seam for tests.
var newDatadogBackend = func(ctx context.Context, opts datadog.Options) (backend, error) {
	b, err := datadog.NewBackend(ctx, opts)
	if err != nil {
		return nil, err
	}
	return b, nil
}

// Init builds the backend named by opt.Backend. Callers hand it to whatever
// records metrics and run cleanup on exit to flush it. The backend and the
// cleanup are never nil, even on error.
func Init(ctx context.Context, log *zap.Logger, opt Options) (metrics.Backend, func(), error) {
	noop := func() {}
	if log == nil {
		log = zap.NewNop()
	}

	switch strings.ToLower(strings.TrimSpace(opt.Backend)) {
	case "", "none", "noop":
		log.Debug("metrics disabled")
		return metrics.Nop{}, noop, nil

	case "datadog", "dd":
		// Close stops the periodic flush loop and performs a final Flush.
		b, err := newDatadogBackend(ctx, datadog.Options{
			JobName:    opt.JobName,
			Tags:       opt.Tags,
			FlushEvery: opt.FlushEvery,
		})
		if err != nil {
			return metrics.Nop{}, noop, fmt.Errorf("datadog: %w", err)
		}
		log.Info("metrics enabled", zap.String("backend", "datadog"), zap.String("job", opt.JobName), zap.Strings("tags", opt.Tags))
		return b, func() {
			if err := b.Close(); err != nil {
				log.Error("metrics: datadog close error", zap.Error(err))
			}
		}, nil

	default:
		return metrics.Nop{}, noop, fmt.Errorf("unknown metrics backend %q (want none|datadog)", opt.Backend)
	}
}
