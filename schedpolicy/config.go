package schedpolicy

import "github.com/m-lab/netsim/simlog"

// config holds the options shared by the parallel policy constructors.
type config struct {
	log *simlog.Logger
}

// Option configures a parallel policy variant at construction.
type Option func(*config)

// WithLogger attaches a logger used for causality-clamp diagnostics.
func WithLogger(log *simlog.Logger) Option {
	return func(c *config) { c.log = log }
}

func newConfig(opts []Option) config {
	var c config
	for _, opt := range opts {
		opt(&c)
	}
	return c
}
