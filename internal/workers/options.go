package workers

import "time"

// Options holds configurable parameters for the Runner.
type Options struct {
	Timeout         time.Duration
	RetryDelay      time.Duration
	HealthCheckPort int
	HealthCheckHost string
}

type Option func(*Options) error

// WithTimeout bounds a single Handle invocation.
func WithTimeout(t time.Duration) Option {
	return func(o *Options) error {
		o.Timeout = t
		return nil
	}
}

// WithRetryDelay sets the redelivery delay used after a transient failure.
func WithRetryDelay(d time.Duration) Option {
	return func(o *Options) error {
		o.RetryDelay = d
		return nil
	}
}

// WithHealthCheckPort sets the listening port for the health check HTTP server.
func WithHealthCheckPort(port int) Option {
	return func(o *Options) error {
		o.HealthCheckPort = port
		return nil
	}
}

func WithHealthCheckHost(host string) Option {
	return func(o *Options) error {
		o.HealthCheckHost = host
		return nil
	}
}
