package upscaler

import "time"

// Config holds configuration for the job queue.
type Config struct {
	// MaxConcurrentJobs is the maximum number of jobs processed
	// concurrently. Enhancement jobs are GPU-bound, so this is 1 by
	// default.
	MaxConcurrentJobs int

	// PausePollInterval is how often a paused queue or paused job checks
	// whether it may proceed.
	PausePollInterval time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout time.Duration

	// PreflightTimeout bounds the producer stage's validation run. The
	// first run of an AI model may compile for many minutes, so this is
	// deliberately long.
	PreflightTimeout time.Duration

	// ProducerGracePeriod is how long the upstream (producer) stage may
	// keep running after a termination request before it is killed.
	ProducerGracePeriod time.Duration

	// EncoderGracePeriod is how long the downstream (encoder) stage may
	// keep running after a termination request before it is killed, enough
	// time to flush and finalize the output container.
	EncoderGracePeriod time.Duration

	// MaxRetries is the default automatic-retry ceiling for new jobs.
	MaxRetries int
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs:   1,
		PausePollInterval:   500 * time.Millisecond,
		ShutdownTimeout:     30 * time.Second,
		PreflightTimeout:    30 * time.Minute,
		ProducerGracePeriod: 10 * time.Second,
		EncoderGracePeriod:  5 * time.Second,
		MaxRetries:          3,
	}
}
