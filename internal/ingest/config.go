// Package ingest publishes accepted events onto a dataset's router topic.
// Every event is stamped with an arrival-time envelope before it is written,
// so the default timestamp field always resolves downstream.
package ingest

import (
	"time"

	"github.com/conductor-io/conductor/internal/config"
)

const (
	defaultBrokers      = "localhost:9092"
	defaultBatchTimeout = 100 * time.Millisecond
	defaultWriteTimeout = 10 * time.Second
)

// Config holds Kafka producer configuration, loaded from the environment.
type Config struct {
	Brokers      []string
	BatchTimeout time.Duration
	WriteTimeout time.Duration
}

// LoadConfig loads Kafka producer configuration from environment variables
// with fallback to local-development defaults.
func LoadConfig() *Config {
	return &Config{
		Brokers:      config.ParseCommaSeparatedList(config.GetEnvStr("KAFKA_BROKERS", defaultBrokers)),
		BatchTimeout: config.GetEnvDuration("KAFKA_BATCH_TIMEOUT", defaultBatchTimeout),
		WriteTimeout: config.GetEnvDuration("KAFKA_WRITE_TIMEOUT", defaultWriteTimeout),
	}
}
