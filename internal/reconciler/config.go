package reconciler

import "time"

// Config holds the reconciler's tunable knobs. DefaultConfig supplies the
// stock value for every field.
type Config struct {
	MaxConcurrent       int
	AutoStart           bool
	AutoRetry           bool
	MaxRetries          int
	DetectDeadWorkers   bool
	DeadWorkerThreshold time.Duration
	DetectStuckBeads    bool
	StuckBeadThreshold  time.Duration
}

// DefaultConfig returns the stock reconciler settings.
func DefaultConfig() Config {
	return Config{
		MaxConcurrent:       10,
		AutoStart:           true,
		AutoRetry:           true,
		MaxRetries:          3,
		DetectDeadWorkers:   true,
		DeadWorkerThreshold: 60 * time.Second,
		DetectStuckBeads:    true,
		StuckBeadThreshold:  300 * time.Second,
	}
}

func (c Config) validate() error {
	if c.MaxConcurrent < 0 {
		return ErrInvalidConfig
	}
	if c.DeadWorkerThreshold < 0 || c.StuckBeadThreshold < 0 {
		return ErrInvalidConfig
	}
	return nil
}
