package tokio

import (
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/martell/tokio/metrics"
	"github.com/martell/tokio/park"
)

// config holds Runtime configuration.
type config struct {
	// Workers defines the number of worker goroutines polling tasks.
	// Zero (default) means runtime.GOMAXPROCS(0).
	Workers uint

	// ParkTimeout bounds how long an idle worker sleeps before re-checking
	// the run queue and the shutdown flag. It also keeps workers from
	// waiting behind the driver claim indefinitely.
	// Default: 1s.
	ParkTimeout time.Duration

	// Logger receives lifecycle events (worker start/stop, shutdown).
	// The poll/wake/park hot paths never log.
	// Default: zap.NewNop().
	Logger *zap.Logger

	// Metrics receives runtime instrumentation.
	// Default: metrics.NewNoopProvider().
	Metrics metrics.Provider

	// Driver is the I/O driver workers sleep on when they hold the driver
	// claim. Nil (default) means the runtime opens the platform default
	// driver and closes it on Shutdown.
	Driver park.Driver
}

// defaultConfig centralizes default values for config.
func defaultConfig() config {
	return config{
		Workers:     0, // GOMAXPROCS
		ParkTimeout: time.Second,
		Logger:      zap.NewNop(),
		Metrics:     metrics.NewNoopProvider(),
		Driver:      nil, // platform default, owned by the runtime
	}
}

// validateConfig performs lightweight invariant checks.
func validateConfig(cfg *config) error {
	if cfg.ParkTimeout <= 0 {
		return fmt.Errorf("%w: ParkTimeout must be positive", ErrInvalidConfig)
	}
	return nil
}

// workerCount resolves the configured worker count.
func (c *config) workerCount() int {
	if c.Workers > 0 {
		return int(c.Workers)
	}
	return runtime.GOMAXPROCS(0)
}
