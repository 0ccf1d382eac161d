package middleware

import (
	"github.com/conductor-io/conductor/internal/config"
)

// Config holds rate limiter configuration. Rates are requests per second;
// burst fields of 0 are computed automatically as twice the rate.
type Config struct {
	GlobalRPS  int
	DatasetRPS int

	GlobalBurst  int
	DatasetBurst int

	MaxDatasets int
}

// LoadConfig loads rate limiter configuration from environment variables with
// fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		GlobalRPS:  config.GetEnvInt("CONDUCTOR_GLOBAL_RPS", defaultGlobalRPS),
		DatasetRPS: config.GetEnvInt("CONDUCTOR_DATASET_RPS", defaultDatasetRPS),

		GlobalBurst:  config.GetEnvInt("CONDUCTOR_GLOBAL_BURST", 0),
		DatasetBurst: config.GetEnvInt("CONDUCTOR_DATASET_BURST", 0),

		MaxDatasets: config.GetEnvInt("CONDUCTOR_RATE_LIMIT_MAX_DATASETS", defaultMaxDatasets),
	}
}
