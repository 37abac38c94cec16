package worker

import (
	"github.com/okian/scoreboard/pkg/logger"
)

// Option applies a configuration option to the Pool.
type Option func(*Pool)

// WithLogger sets a custom logger for the pool and its workers.
func WithLogger(l logger.Logger) Option {
	return func(p *Pool) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithWorkerCount sets the number of workers. Values < 1 keep the default.
func WithWorkerCount(n int) Option {
	return func(p *Pool) {
		if n > 0 {
			p.count = n
		}
	}
}

// WithReleaser sets where event ids of retryable failures are released.
func WithReleaser(r Releaser) Option {
	return func(p *Pool) {
		if r != nil {
			p.releaser = r
		}
	}
}
