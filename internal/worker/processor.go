package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/dharsanguruparan/DocScrub/internal/logger"
	"github.com/dharsanguruparan/DocScrub/internal/processing"
	"github.com/dharsanguruparan/DocScrub/internal/queue"
)

// Processor is plugged into the asynq worker loop.
type Processor struct {
	exec processing.Executor
}

// NewProcessor constructs a worker processor around the submission manager.
func NewProcessor(exec processing.Executor) *Processor {
	return &Processor{exec: exec}
}

// Handler registers the redact job handler.
func (p *Processor) Handler() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.RedactSubmissionTask, p.handleRedact)
	return mux
}

func (p *Processor) handleRedact(ctx context.Context, task *asynq.Task) error {
	payload, err := queue.ParseRedactPayload(task)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	ctx = logger.WithRequestID(ctx, payload.RequestID)
	if err := p.exec.Execute(ctx, payload.SubmissionID); err != nil {
		logger.FromContext(ctx).Error("redact task failed", "submission_id", payload.SubmissionID, "error", err)
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	return nil
}
