package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/DocScrub/internal/logger"
)

const (
	// RedactSubmissionTask is scheduled each time a submission is accepted.
	RedactSubmissionTask = "submission:redact"
)

// RedactPayload is serialized into the task payload. Everything else the
// worker needs is read from the job store.
type RedactPayload struct {
	SubmissionID string `json:"submission_id"`
	RequestID    string `json:"request_id,omitempty"`
}

// NewRedactTask builds the task for a submission. Failed jobs are never
// retried: a failure is recorded on the submission instead.
func NewRedactTask(payload RedactPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return asynq.NewTask(RedactSubmissionTask, data, asynq.MaxRetry(0)), nil
}

// ParseRedactPayload decodes a task payload.
func ParseRedactPayload(task *asynq.Task) (RedactPayload, error) {
	var payload RedactPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode payload: %w", err)
	}
	if payload.SubmissionID == "" {
		return payload, fmt.Errorf("decode payload: missing submission_id")
	}
	return payload, nil
}

// EnqueueRedact enqueues a redaction job.
func EnqueueRedact(ctx context.Context, client *asynq.Client, payload RedactPayload) error {
	task, err := NewRedactTask(payload)
	if err != nil {
		return err
	}
	if _, err := client.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("enqueue redact task: %w", err)
	}
	return nil
}

// Scheduler hands submissions to asynq workers running elsewhere.
type Scheduler struct {
	client *asynq.Client
}

// NewScheduler wraps an asynq client.
func NewScheduler(client *asynq.Client) *Scheduler {
	return &Scheduler{client: client}
}

// Schedule enqueues the submission, carrying the request id from ctx.
func (s *Scheduler) Schedule(ctx context.Context, id string) error {
	return EnqueueRedact(ctx, s.client, RedactPayload{SubmissionID: id, RequestID: logger.RequestID(ctx)})
}
