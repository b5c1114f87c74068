package submission

import (
	"context"
	"io"

	"github.com/dharsanguruparan/DocScrub/internal/model"
)

// Store persists submission records. Every implementation enforces
// model.CanTransition itself and returns model.ErrInvalidTransition when an
// update would skip or regress a status, and model.ErrNotFound for unknown ids.
type Store interface {
	// Create inserts rec with status queued and fresh timestamps.
	Create(ctx context.Context, rec *model.Submission) error
	Get(ctx context.Context, id string) (*model.Submission, error)
	// List returns records newest first.
	List(ctx context.Context, limit, offset int) ([]*model.Submission, error)
	MarkProcessing(ctx context.Context, id string) error
	MarkDone(ctx context.Context, id, location string, replaced int) error
	MarkFailed(ctx context.Context, id string, kind model.ErrorKind, msg string) error
	// Rate sets the rating regardless of status and returns the updated record.
	Rate(ctx context.Context, id string, rating int, note *string) (*model.Submission, error)
}

// Artifacts stores original uploads and produced documents.
type Artifacts interface {
	UploadRaw(ctx context.Context, name string, r io.Reader, size int64) error
	DownloadRaw(ctx context.Context, name string) ([]byte, error)
	// DeleteRaw removes an upload. Removing a missing upload is not an error.
	DeleteRaw(ctx context.Context, name string) error
	// UploadProcessed returns the location to record on the submission.
	UploadProcessed(ctx context.Context, name string, r io.Reader, size int64) (string, error)
	OpenProcessed(ctx context.Context, location string) (io.ReadCloser, error)
}

// Redactor applies a replacement list to a document.
type Redactor interface {
	Apply(in io.Reader, out io.Writer, pairs model.Replacements) (int, error)
}

// Scheduler arranges for Manager.Execute to run for id at some later point.
// Schedule may block for backpressure but must not run the job inline.
type Scheduler interface {
	Schedule(ctx context.Context, id string) error
}
