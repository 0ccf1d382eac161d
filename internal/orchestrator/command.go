package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"github.com/google/uuid"

	"github.com/conductor-io/conductor/internal/config"
	"github.com/conductor-io/conductor/internal/dataset"
	"github.com/conductor-io/conductor/internal/service"
)

// Command names a pipeline command understood by the command service.
type Command string

// Commands issued by lifecycle transitions.
const (
	CommandPublishDataset  Command = "PUBLISH_DATASET"
	CommandRestartPipeline Command = "RESTART_PIPELINE"
)

// CommandClient talks to the pipeline command service.
type CommandClient struct {
	endpoint   string
	httpClient *http.Client
	logger     *slog.Logger
}

// CommandClient implements the transition collaborator interface.
var _ service.Orchestrator = (*CommandClient)(nil)

// commandRequest is the command service's request envelope.
type commandRequest struct {
	ID   string      `json:"id"`
	Data commandData `json:"data"`
}

type commandData struct {
	DatasetID string `json:"dataset_id"`
	Command   string `json:"command"`
}

// NewCommandClient creates a command service client from the configuration.
func NewCommandClient(cfg *Config) *CommandClient {
	return &CommandClient{
		endpoint:   cfg.CommandServiceURL + cfg.CommandServicePath,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger: slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: config.GetEnvLogLevel("LOG_LEVEL", slog.LevelInfo),
		})),
	}
}

// PublishDataset implements service.Orchestrator.
func (c *CommandClient) PublishDataset(ctx context.Context, datasetID string) error {
	return c.execute(ctx, datasetID, CommandPublishDataset)
}

// RestartPipeline implements service.Orchestrator.
func (c *CommandClient) RestartPipeline(ctx context.Context, datasetID string) error {
	return c.execute(ctx, datasetID, CommandRestartPipeline)
}

func (c *CommandClient) execute(ctx context.Context, datasetID string, command Command) error {
	payload, err := json.Marshal(commandRequest{
		ID: uuid.NewString(),
		Data: commandData{
			DatasetID: datasetID,
			Command:   string(command),
		},
	})
	if err != nil {
		return fmt.Errorf("encoding %s command for dataset %s: %w", command, datasetID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("building %s request for dataset %s: %w", command, datasetID, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return dataset.Upstream(dataset.CodeCommandFailed, err,
			"command service unreachable for %s of dataset %s", command, datasetID)
	}

	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))

		c.logger.Error("Command service rejected command",
			slog.String("dataset_id", datasetID),
			slog.String("command", string(command)),
			slog.Int("status", resp.StatusCode),
			slog.String("body", string(body)),
		)

		return dataset.Upstream(dataset.CodeCommandFailed, nil,
			"command service returned status %d for %s of dataset %s", resp.StatusCode, command, datasetID)
	}

	c.logger.Info("Command executed",
		slog.String("dataset_id", datasetID),
		slog.String("command", string(command)),
	)

	return nil
}
