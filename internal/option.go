package internal

import (
	"io"
)

// Option is a functional option for configuring the application.
type Option func(*application)

type application struct {
	config *Config
	force  bool
	watch  bool
	stderr io.Writer
}

// WithConfig sets the application configuration.
func WithConfig(cfg *Config) Option {
	return func(a *application) {
		a.config = cfg
	}
}

// WithForce rebuilds every reachable node regardless of recorded hashes.
func WithForce(force bool) Option {
	return func(a *application) {
		a.force = force
	}
}

// WithWatch keeps rebuilding on source changes until the context ends.
func WithWatch(watch bool) Option {
	return func(a *application) {
		a.watch = watch
	}
}

// WithStderr sets where failure summaries are printed.
func WithStderr(w io.Writer) Option {
	return func(a *application) {
		a.stderr = w
	}
}
