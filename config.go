package lockbox

import (
	"time"

	"go.uber.org/zap"
)

// Config tunes the apply engine shared by every backend. The zero value is
// usable; unset fields fall back to the exported defaults
type Config struct {
	// Logger receives engine and checkpoint worker diagnostics
	Logger *zap.Logger

	// Hub, when set, receives every applied update event
	Hub *Hub

	// QueueSize bounds the number of scheduled updates awaiting execution
	QueueSize int

	// BatchSize bounds how many pending updates are journaled in a single
	// durable append
	BatchSize int

	// CheckpointEvery triggers an automatic checkpoint once this many
	// updates have been journaled since the last one. Zero disables the
	// checkpoint worker
	CheckpointEvery int64

	// WriteTimeout bounds each durable journal write
	WriteTimeout time.Duration
}

const (
	DefaultQueueSize       = 1024
	DefaultBatchSize       = 64
	DefaultWriteTimeout    = 30 * time.Second
	DefaultCheckpointEvery = 4096

	DefaultRedisEndpoint = "localhost:6379"
	DefaultRedisPrefix   = "lockbox"
	DefaultRedisDB       = 0

	DefaultPostgresPrefix = "lockbox"
)

func DefaultConfig() Config {
	return Config{
		QueueSize:       DefaultQueueSize,
		BatchSize:       DefaultBatchSize,
		WriteTimeout:    DefaultWriteTimeout,
		CheckpointEvery: DefaultCheckpointEvery,
	}
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = zap.NewNop()
	}
	if c.QueueSize <= 0 {
		c.QueueSize = DefaultQueueSize
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = DefaultWriteTimeout
	}
	return c
}
