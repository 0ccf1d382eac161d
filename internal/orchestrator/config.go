// Package orchestrator holds the HTTP clients for the external collaborators
// of the control plane: the pipeline command service that publishes datasets
// and restarts the ingestion pipeline, and the query-engine admin API used to
// terminate ingestion supervisors.
package orchestrator

import (
	"time"

	"github.com/conductor-io/conductor/internal/config"
)

const (
	defaultCommandServiceURL  = "http://localhost:8000"
	defaultCommandServicePath = "/system/v1/dataset/command"
	defaultDruidURL           = "http://localhost:8888"
	defaultRequestTimeout     = 30 * time.Second
)

// Config holds collaborator endpoints, loaded from the environment.
type Config struct {
	CommandServiceURL  string
	CommandServicePath string
	DruidURL           string
	RequestTimeout     time.Duration
}

// LoadConfig loads collaborator configuration from environment variables with
// fallback to local-development defaults.
func LoadConfig() *Config {
	return &Config{
		CommandServiceURL:  config.GetEnvStr("COMMAND_SERVICE_URL", defaultCommandServiceURL),
		CommandServicePath: config.GetEnvStr("COMMAND_SERVICE_PATH", defaultCommandServicePath),
		DruidURL:           config.GetEnvStr("DRUID_URL", defaultDruidURL),
		RequestTimeout:     config.GetEnvDuration("COLLABORATOR_REQUEST_TIMEOUT", defaultRequestTimeout),
	}
}
