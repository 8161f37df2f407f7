package audit

import "time"

// Config controls buffering and batching of the Recorder.
type Config struct {
	BufferSize     int           `env:"AUDIT_BUFFER_SIZE" envDefault:"1000"`
	BatchSize      int           `env:"AUDIT_BATCH_SIZE" envDefault:"100"`
	FlushInterval  time.Duration `env:"AUDIT_FLUSH_INTERVAL" envDefault:"1s"`
	StorageTimeout time.Duration `env:"AUDIT_STORAGE_TIMEOUT" envDefault:"5s"`
}

func (c Config) withDefaults() Config {
	if c.BufferSize <= 0 {
		c.BufferSize = 1000
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 100
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = time.Second
	}
	if c.StorageTimeout <= 0 {
		c.StorageTimeout = 5 * time.Second
	}
	return c
}
