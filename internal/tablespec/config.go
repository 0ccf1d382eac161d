package tablespec

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/conductor-io/conductor/internal/config"
)

// Defaults holds the operator-tunable portions of compiled ingestion specs.
// Every value has a built-in fallback, so the YAML file is optional and may
// override any subset of fields.
//
//nolint:tagliatelle // snake_case is intentional for YAML config files
type Defaults struct {
	SegmentGranularity string `yaml:"segment_granularity"`
	QueryGranularity   string `yaml:"query_granularity"`
	TaskCount          int    `yaml:"task_count"`
	Replicas           int    `yaml:"replicas"`
	TaskDuration       string `yaml:"task_duration"`
	CompletionTimeout  string `yaml:"completion_timeout"`
	MaxBytesInMemory   int64  `yaml:"max_bytes_in_memory"`
	MaxRowsPerSegment  int    `yaml:"max_rows_per_segment"`
	BootstrapServers   string `yaml:"bootstrap_servers"`
	UseEarliestOffset  bool   `yaml:"use_earliest_offset"`

	// ArrivalTimeField is the envelope field stamped on every record at
	// ingestion time. It is always appended to the compiled field list and is
	// the fallback event-time column.
	ArrivalTimeField string `yaml:"arrival_time_field"`
}

// DefaultSpecPath is the default location for the spec defaults file.
const DefaultSpecPath = ".conductor-spec.yaml"

// SpecPathEnvVar is the environment variable name for a custom defaults path.
const SpecPathEnvVar = "CONDUCTOR_SPEC_DEFAULTS_PATH"

// NewDefaults returns the built-in spec defaults.
func NewDefaults() *Defaults {
	return &Defaults{
		SegmentGranularity: "DAY",
		QueryGranularity:   "none",
		TaskCount:          1,
		Replicas:           1,
		TaskDuration:       "PT4H",
		CompletionTimeout:  "PT4H",
		MaxBytesInMemory:   134217728,
		MaxRowsPerSegment:  5000000,
		BootstrapServers:   "localhost:9092",
		UseEarliestOffset:  true,
		ArrivalTimeField:   "meta.syncts",
	}
}

// LoadDefaults loads spec defaults from a YAML file at the given path.
//
// Behavior:
//   - Returns built-in defaults (not error) if the file doesn't exist
//   - Returns built-in defaults + logs warning if YAML is invalid
//   - Returns built-in defaults overlaid with the file's values on success
func LoadDefaults(path string) (*Defaults, error) {
	defaults := NewDefaults()

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			slog.Debug("Spec defaults file not found, using built-in defaults",
				slog.String("path", path))

			return defaults, nil
		}

		slog.Warn("Failed to read spec defaults file, using built-in defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return defaults, nil
	}

	if len(data) == 0 {
		return defaults, nil
	}

	if err := yaml.Unmarshal(data, defaults); err != nil {
		slog.Warn("Failed to parse spec defaults file, using built-in defaults",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return NewDefaults(), nil
	}

	return defaults, nil
}

// LoadDefaultsFromEnv loads spec defaults from the path specified in
// CONDUCTOR_SPEC_DEFAULTS_PATH. Falls back to ".conductor-spec.yaml" in the
// current directory if not set.
func LoadDefaultsFromEnv() (*Defaults, error) {
	path := config.GetEnvStr(SpecPathEnvVar, DefaultSpecPath)

	return LoadDefaults(path)
}
