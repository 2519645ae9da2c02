package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
)

// Client enqueues task runs for the worker pool.
type Client struct {
	client *asynq.Client
	logger *logger.Logger
}

// ClientConfig contains configuration for the job client.
type ClientConfig struct {
	RedisAddr     string
	RedisPassword string
	RedisDB       int
}

// NewClient creates a new job client.
func NewClient(cfg ClientConfig, log *logger.Logger) *Client {
	client := asynq.NewClient(asynq.RedisClientOpt{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	return &Client{
		client: client,
		logger: log.With("component", "job_client"),
	}
}

// Close closes the client connection.
func (c *Client) Close() error {
	return c.client.Close()
}

// EnqueueTaskRun dispatches one ledger task to the worker pool.
func (c *Client) EnqueueTaskRun(ctx context.Context, taskID string) error {
	t, err := NewTaskRunTask(TaskRunPayload{TaskID: taskID})
	if err != nil {
		return err
	}

	info, err := c.client.EnqueueContext(ctx, t)
	if err != nil {
		c.logger.Error("failed to enqueue task run", "task_id", taskID, "error", err)
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	c.logger.Debug("task run queued", "task_id", taskID, "queue", info.Queue)
	return nil
}
