// Package submission drives a submission through its lifecycle: accept the
// upload, record it, hand it to a scheduler, run the redaction engine and
// record the outcome.
package submission

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/dharsanguruparan/DocScrub/internal/artifact"
	"github.com/dharsanguruparan/DocScrub/internal/logger"
	"github.com/dharsanguruparan/DocScrub/internal/metrics"
	"github.com/dharsanguruparan/DocScrub/internal/model"
	"github.com/dharsanguruparan/DocScrub/internal/redact"
)

const (
	// DefaultListLimit is used when List is called without a positive limit.
	DefaultListLimit = 50
	// MaxListLimit caps a single List page.
	MaxListLimit = 500
)

// CreateInput describes an accepted upload.
type CreateInput struct {
	Filename     string
	ContentType  string
	Body         io.Reader
	Size         int64
	Replacements model.Replacements
}

// RateInput is the body of a rating request.
type RateInput struct {
	Rating int     `json:"rating" validate:"min=1,max=5"`
	Note   *string `json:"note,omitempty" validate:"omitempty,max=500"`
}

// Manager owns every status transition of a submission.
type Manager struct {
	store     Store
	artifacts Artifacts
	redactor  Redactor
	scheduler Scheduler
	newID     func() string
}

// NewManager wires a Manager. A scheduler must be attached with SetScheduler
// before Create is called; schedulers usually need the Manager themselves.
func NewManager(store Store, artifacts Artifacts, redactor Redactor) *Manager {
	return &Manager{
		store:     store,
		artifacts: artifacts,
		redactor:  redactor,
		newID:     NewID,
	}
}

// SetScheduler attaches the scheduler used by Create.
func (m *Manager) SetScheduler(s Scheduler) {
	m.scheduler = s
}

// NewID returns a 32 character lowercase hex identifier.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Create stores the upload, records a queued submission and schedules it. The
// returned snapshot is taken before scheduling, so it always reads queued.
func (m *Manager) Create(ctx context.Context, in CreateInput) (*model.Submission, error) {
	if mediaType, _, err := mime.ParseMediaType(in.ContentType); err != nil || mediaType != "application/pdf" {
		return nil, &ValidationError{
			Message: fmt.Sprintf("unsupported content type %q: %v", in.ContentType, ErrUnsupportedMediaType),
			Err:     ErrUnsupportedMediaType,
		}
	}
	if m.scheduler == nil {
		return nil, errors.New("submission manager has no scheduler")
	}

	id := m.newID()
	log := logger.FromContext(ctx).With("submission_id", id)
	if err := m.artifacts.UploadRaw(ctx, artifact.UploadName(id), in.Body, in.Size); err != nil {
		return nil, fmt.Errorf("store upload %s: %w", id, err)
	}
	rec := &model.Submission{
		ID:           id,
		Filename:     in.Filename,
		ContentType:  in.ContentType,
		Replacements: append(model.Replacements{}, in.Replacements...),
	}
	if err := m.store.Create(ctx, rec); err != nil {
		if rmErr := m.artifacts.DeleteRaw(context.WithoutCancel(ctx), artifact.UploadName(id)); rmErr != nil {
			log.Warn("remove orphaned upload", "error", rmErr)
		}
		return nil, fmt.Errorf("record submission %s: %w", id, err)
	}
	snapshot := rec.Clone()
	metrics.SubmissionsCreated.Inc()

	if err := m.scheduler.Schedule(ctx, id); err != nil {
		log.Error("schedule submission", "error", err)
		if markErr := m.store.MarkFailed(context.WithoutCancel(ctx), id, model.ErrorScheduling, err.Error()); markErr != nil {
			log.Error("record scheduling failure", "error", markErr)
		}
		metrics.JobsFinished.WithLabelValues(string(model.StatusFailed), string(model.ErrorScheduling)).Inc()
		return nil, fmt.Errorf("schedule submission %s: %w", id, err)
	}
	log.Info("submission queued", "filename", in.Filename, "pairs", len(in.Replacements))
	return snapshot, nil
}

// Execute runs one job. A submission that is no longer queued is skipped, so
// a redelivered job is harmless. Processing failures are recorded on the
// submission and not returned; the returned error only reports that the store
// could not be updated. Execute ignores cancellation of ctx once the job has
// been claimed so a started job always reaches a terminal status.
func (m *Manager) Execute(ctx context.Context, id string) (err error) {
	ctx = logger.With(ctx, "submission_id", id)
	log := logger.FromContext(ctx)

	if err := m.store.MarkProcessing(ctx, id); err != nil {
		if errors.Is(err, model.ErrInvalidTransition) {
			log.Info("submission already claimed, skipping")
			return nil
		}
		return fmt.Errorf("claim submission %s: %w", id, err)
	}
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			err = m.fail(ctx, id, start, model.ErrorInternal, fmt.Errorf("panic: %v", r))
		}
	}()

	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return m.fail(ctx, id, start, model.ErrorStorage, fmt.Errorf("load submission: %w", err))
	}
	data, err := m.artifacts.DownloadRaw(ctx, artifact.UploadName(id))
	if err != nil {
		return m.fail(ctx, id, start, model.ErrorStorage, fmt.Errorf("load upload: %w", err))
	}

	var out bytes.Buffer
	count, err := m.redactor.Apply(bytes.NewReader(data), &out, rec.Replacements)
	if err != nil {
		kind, ok := redact.KindOf(err)
		if !ok {
			kind = model.ErrorInternal
		}
		return m.fail(ctx, id, start, kind, err)
	}

	size := int64(out.Len())
	location, err := m.artifacts.UploadProcessed(ctx, artifact.OutputName(id), &out, size)
	if err != nil {
		return m.fail(ctx, id, start, model.ErrorWrite, fmt.Errorf("store output: %w", err))
	}
	if err := m.store.MarkDone(ctx, id, location, count); err != nil {
		return fmt.Errorf("record completion of %s: %w", id, err)
	}

	metrics.JobsFinished.WithLabelValues(string(model.StatusDone), "").Inc()
	metrics.JobDuration.Observe(time.Since(start).Seconds())
	metrics.Replacements.Observe(float64(count))
	log.Info("submission done", "replaced", count, "bytes", size, "duration", time.Since(start))
	return nil
}

func (m *Manager) fail(ctx context.Context, id string, start time.Time, kind model.ErrorKind, cause error) error {
	logger.FromContext(ctx).Warn("submission failed", "error_kind", kind, "error", cause)
	metrics.JobsFinished.WithLabelValues(string(model.StatusFailed), string(kind)).Inc()
	metrics.JobDuration.Observe(time.Since(start).Seconds())
	if err := m.store.MarkFailed(ctx, id, kind, cause.Error()); err != nil {
		return fmt.Errorf("record failure of %s: %w", id, err)
	}
	return nil
}

// Rate validates in and stores it on the submission regardless of status.
func (m *Manager) Rate(ctx context.Context, id string, in RateInput) (*model.Submission, error) {
	if err := check(in); err != nil {
		return nil, err
	}
	rec, err := m.store.Rate(ctx, id, in.Rating, in.Note)
	if err != nil {
		return nil, fmt.Errorf("rate submission %s: %w", id, err)
	}
	return rec, nil
}

// Get returns the current snapshot of a submission.
func (m *Manager) Get(ctx context.Context, id string) (*model.Submission, error) {
	rec, err := m.store.Get(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get submission %s: %w", id, err)
	}
	return rec, nil
}

// List returns submissions newest first. A non-positive limit means
// DefaultListLimit and limits above MaxListLimit are capped.
func (m *Manager) List(ctx context.Context, limit, offset int) ([]*model.Submission, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	recs, err := m.store.List(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return recs, nil
}

// OpenOutput opens the produced document of a done submission.
func (m *Manager) OpenOutput(ctx context.Context, id string) (io.ReadCloser, *model.Submission, error) {
	rec, err := m.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if rec.Status != model.StatusDone || rec.OutputLocation == nil {
		return nil, rec, ErrNotReady
	}
	rc, err := m.artifacts.OpenProcessed(ctx, *rec.OutputLocation)
	if errors.Is(err, artifact.ErrNotExist) {
		return nil, rec, fmt.Errorf("open output of %s: %w", id, ErrOutputMissing)
	}
	if err != nil {
		return nil, rec, fmt.Errorf("open output of %s: %w", id, err)
	}
	return rc, rec, nil
}
