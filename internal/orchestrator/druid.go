package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/conductor-io/conductor/internal/config"
	"github.com/conductor-io/conductor/internal/dataset"
	"github.com/conductor-io/conductor/internal/service"
)

// DruidClient talks to the query engine's supervisor admin API.
type DruidClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// DruidClient implements the supervisor termination collaborator interface.
var _ service.SupervisorAdmin = (*DruidClient)(nil)

// NewDruidClient creates a supervisor admin client from the configuration.
func NewDruidClient(cfg *Config) *DruidClient {
	return &DruidClient{
		baseURL:    cfg.DruidURL,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// TerminateSupervisor implements service.SupervisorAdmin.
func (c *DruidClient) TerminateSupervisor(ctx context.Context, datasourceRef string) error {
	url := fmt.Sprintf("%s/druid/indexer/v1/supervisor/%s/terminate", c.baseURL, datasourceRef)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return fmt.Errorf("building terminate request for %s: %w", datasourceRef, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dataset.Upstream(dataset.CodeCommandFailed, err,
			"supervisor admin unreachable terminating %s", datasourceRef)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		return dataset.Upstream(dataset.CodeCommandFailed, nil,
			"supervisor admin returned status %d terminating %s: %s",
			resp.StatusCode, datasourceRef, string(body))
	}

	c.logger.Info("Supervisor terminated", slog.String("datasource_ref", datasourceRef))

	return nil
}
