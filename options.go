package tokio

import (
	"time"

	"go.uber.org/zap"

	"github.com/martell/tokio/metrics"
	"github.com/martell/tokio/park"
)

// Option configures a Runtime. Use New(opts...) to construct one.
type Option func(*config)

// WithWorkers sets the number of worker goroutines (must be > 0).
func WithWorkers(n uint) Option {
	return func(cfg *config) {
		if n == 0 {
			panic("tokio: WithWorkers requires n > 0")
		}
		cfg.Workers = n
	}
}

// WithParkTimeout sets how long an idle worker sleeps before re-checking the
// run queue (default 1s).
func WithParkTimeout(d time.Duration) Option {
	return func(cfg *config) { cfg.ParkTimeout = d }
}

// WithLogger sets the lifecycle logger (default zap.NewNop()).
func WithLogger(l *zap.Logger) Option {
	return func(cfg *config) {
		if l == nil {
			panic("tokio: WithLogger requires a non-nil logger")
		}
		cfg.Logger = l
	}
}

// WithMetrics sets the metrics provider (default noop).
func WithMetrics(p metrics.Provider) Option {
	return func(cfg *config) {
		if p == nil {
			panic("tokio: WithMetrics requires a non-nil provider")
		}
		cfg.Metrics = p
	}
}

// WithDriver supplies the I/O driver workers sleep on. The caller keeps
// ownership: the runtime will not close it on Shutdown.
func WithDriver(d park.Driver) Option {
	return func(cfg *config) {
		if d == nil {
			panic("tokio: WithDriver requires a non-nil driver")
		}
		cfg.Driver = d
	}
}

// resolveOptions applies opts over the defaults and validates the result.
func resolveOptions(opts []Option) (config, error) {
	cfg := defaultConfig()
	for _, opt := range opts {
		if opt == nil {
			panic("tokio: nil runtime option")
		}
		opt(&cfg)
	}
	if err := validateConfig(&cfg); err != nil {
		return config{}, err
	}
	return cfg, nil
}
