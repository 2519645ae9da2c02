package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/SSC-ICT-Innovatie/nl-kat-coordination/pkg/logger"
)

// CancelChannel is the Redis pub/sub channel for task cancellations.
const CancelChannel = "kat:scheduler:tasks:cancel"

// CancelNotification tells workers that a running task was cancelled and
// its sandbox should be killed.
type CancelNotification struct {
	TaskID      string `json:"task_id"`
	CancelledAt int64  `json:"cancelled_at"` // Unix timestamp
}

// CancelNotifier fans task cancellations out to the worker pool. The ledger
// row is already cancelled when a notification is published; the pub/sub
// hop only shortens how long the sandbox keeps running.
type CancelNotifier struct {
	client *Client
	logger *logger.Logger
}

// NewCancelNotifier creates a new CancelNotifier.
func NewCancelNotifier(client *Client, log *logger.Logger) *CancelNotifier {
	return &CancelNotifier{client: client, logger: log}
}

// NotifyCancel publishes a cancellation for the given task.
func (n *CancelNotifier) NotifyCancel(ctx context.Context, taskID string) error {
	data, err := json.Marshal(CancelNotification{
		TaskID:      taskID,
		CancelledAt: time.Now().Unix(),
	})
	if err != nil {
		return fmt.Errorf("marshal cancel notification: %w", err)
	}

	if err := n.client.Client().Publish(ctx, CancelChannel, data).Err(); err != nil {
		return fmt.Errorf("publish cancel notification: %w", err)
	}

	n.logger.Debug("published task cancellation", "task_id", taskID)
	return nil
}

// Listen subscribes to cancellations and invokes handler for each one until
// the context is done. Malformed messages are logged and skipped.
func (n *CancelNotifier) Listen(ctx context.Context, handler func(CancelNotification)) error {
	sub := n.client.Client().Subscribe(ctx, CancelChannel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var notification CancelNotification
			if err := json.Unmarshal([]byte(msg.Payload), &notification); err != nil {
				n.logger.Warn("skipping malformed cancel notification", "error", err)
				continue
			}
			handler(notification)
		}
	}
}
